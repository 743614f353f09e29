package grading

import "sort"

// Rank orders a class/exam group and assigns competition ranks: students with equal keys
// share a rank and the next distinct key resumes at its position (1, 1, 3).
//
// The input slice is not modified. Ties are ordered by student ID so repeated calls produce
// the same order. Students with no counted subjects always sort last.
func Rank(group []StudentAggregate, policy Policy) []StudentAggregate {
	ranked := make([]StudentAggregate, len(group))
	copy(ranked, group)

	key := policy.RankKey
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := compareMerit(ranked[i], ranked[j], key); c != 0 {
			return c < 0
		}
		return ranked[i].StudentID < ranked[j].StudentID
	})

	for i := range ranked {
		if i > 0 && compareMerit(ranked[i-1], ranked[i], key) == 0 {
			ranked[i].Rank = ranked[i-1].Rank
		} else {
			ranked[i].Rank = i + 1
		}
		ranked[i].TotalStudentsInGroup = len(ranked)
	}
	return ranked
}

// compareMerit returns a negative value when a ranks ahead of b, positive when behind and
// zero when they tie.
func compareMerit(a, b StudentAggregate, key RankKey) int {
	aEmpty, bEmpty := a.CountedSlots() == 0, b.CountedSlots() == 0
	switch {
	case aEmpty && !bEmpty:
		return 1
	case !aEmpty && bEmpty:
		return -1
	}

	switch key {
	case RankByAverage:
		switch {
		case a.AverageMark > b.AverageMark:
			return -1
		case a.AverageMark < b.AverageMark:
			return 1
		}
	default:
		switch {
		case a.TotalPoints < b.TotalPoints:
			return -1
		case a.TotalPoints > b.TotalPoints:
			return 1
		}
	}
	return 0
}
