package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoresFromMarks(t *testing.T, marks map[string]*float64, order []string, principals ...string) []SubjectScore {
	t.Helper()
	catalog := SubjectCatalog{}
	for _, id := range principals {
		catalog[id] = SubjectInfo{ID: id, Principal: true}
	}
	entries := make([]MarkEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, MarkEntry{StudentID: "s1", SubjectID: id, Mark: marks[id]})
	}
	scores, err := ScoreSubjects("s1", entries, catalog, DefaultGradeTable())
	require.NoError(t, err)
	return scores
}

func TestAggregateBestSevenOfNine(t *testing.T) {
	order := []string{"civ", "his", "geo", "kis", "eng", "phy", "che", "bio", "math"}
	marks := map[string]*float64{
		"civ":  mark(85), // A 1
		"his":  mark(15), // F 9
		"geo":  mark(70), // B 2
		"kis":  mark(90), // A 1
		"eng":  mark(45), // C 3
		"phy":  mark(25), // E 5
		"che":  mark(35), // D 4
		"bio":  mark(62), // B 2
		"math": mark(10), // F 9
	}
	scores := scoresFromMarks(t, marks, order)

	policy := DefaultPolicy()
	sel, err := Aggregate(scores, policy)
	require.NoError(t, err)

	assert.Equal(t, []string{"civ", "geo", "kis", "eng", "phy", "che", "bio"}, sel.Selected)
	assert.Equal(t, 1+2+1+3+5+4+2, sel.TotalPoints)
	assert.NotContains(t, sel.Selected, "his")
	assert.NotContains(t, sel.Selected, "math")
}

func TestAggregateTieBreakByInputOrder(t *testing.T) {
	order := []string{"a", "b", "c"}
	marks := map[string]*float64{"a": mark(50), "b": mark(55), "c": mark(90)}
	scores := scoresFromMarks(t, marks, order)

	policy := DefaultPolicy()
	policy.BestN = 2
	for i := 0; i < 5; i++ {
		sel, err := Aggregate(scores, policy)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, sel.Selected)
		assert.Equal(t, 4, sel.TotalPoints)
	}
}

func TestAggregatePaddingRules(t *testing.T) {
	order := []string{"a", "b", "c"}
	marks := map[string]*float64{"a": mark(90), "b": nil, "c": mark(70)}
	scores := scoresFromMarks(t, marks, order)

	t.Run("none", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.BestN = 3
		_, err := Aggregate(scores, policy)
		var insufficient *InsufficientSubjectsError
		require.True(t, errors.As(err, &insufficient))
		assert.Equal(t, 3, insufficient.Required)
		assert.Equal(t, 2, insufficient.Available)
	})

	t.Run("worst", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.BestN = 3
		policy.Padding = PaddingWorst
		sel, err := Aggregate(scores, policy)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, sel.Selected)
		assert.Equal(t, 1, sel.Padded)
		assert.Equal(t, 1+2+9, sel.TotalPoints)
	})

	t.Run("exclude", func(t *testing.T) {
		policy := DefaultPolicy()
		policy.BestN = 3
		policy.Padding = PaddingExclude
		sel, err := Aggregate(scores, policy)
		require.NoError(t, err)
		assert.Equal(t, 0, sel.Padded)
		assert.Equal(t, 3, sel.TotalPoints)
	})
}

func TestAggregatePrincipalFirst(t *testing.T) {
	order := []string{"gs", "phy", "che", "math", "sub"}
	marks := map[string]*float64{
		"gs":   mark(95), // A 1, subsidiary
		"phy":  mark(35), // D 4
		"che":  mark(65), // B 2
		"math": mark(45), // C 3
		"sub":  mark(85), // A 1, subsidiary
	}
	scores := scoresFromMarks(t, marks, order, "phy", "che", "math")

	policy := DefaultPolicy()
	policy.Selection = SelectPrincipalFirst
	policy.BestN = 4
	sel, err := Aggregate(scores, policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"gs", "phy", "che", "math"}, sel.Selected)
	assert.Equal(t, 1+4+2+3, sel.TotalPoints)

	policy.BestN = 2
	sel, err = Aggregate(scores, policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"che", "math"}, sel.Selected)
}

func TestAggregateZeroBestNCountsAll(t *testing.T) {
	order := []string{"a", "b", "c"}
	marks := map[string]*float64{"a": mark(90), "b": nil, "c": mark(10)}
	scores := scoresFromMarks(t, marks, order)

	policy := DefaultPolicy()
	policy.BestN = 0
	sel, err := Aggregate(scores, policy)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, sel.Selected)
	assert.Equal(t, 10, sel.TotalPoints)
}
