package grading

import (
	"fmt"
	"sort"
)

// Division is the banded overall-performance category.
type Division string

const (
	DivisionI    Division = "I"
	DivisionII   Division = "II"
	DivisionIII  Division = "III"
	DivisionIV   Division = "IV"
	DivisionZero Division = "0"
)

// Divisions lists every division best first, ending with the ungraded band.
func Divisions() []Division {
	return []Division{DivisionI, DivisionII, DivisionIII, DivisionIV, DivisionZero}
}

func (d Division) ordinal() int {
	switch d {
	case DivisionI:
		return 1
	case DivisionII:
		return 2
	case DivisionIII:
		return 3
	case DivisionIV:
		return 4
	default:
		return 5
	}
}

// AtLeast reports whether d is the same as or better than threshold. The ungraded
// band never qualifies.
func (d Division) AtLeast(threshold Division) bool {
	if d == DivisionZero || d == "" {
		return false
	}
	return d.ordinal() <= threshold.ordinal()
}

// DivisionBand covers the inclusive integer range [Min, Max].
type DivisionBand struct {
	Division Division `json:"division"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
}

// DivisionBands classifies total points. Totals outside every band fall back to DivisionZero.
type DivisionBands []DivisionBand

// DefaultDivisionBands returns [7,17] I, [18,21] II, [22,25] III, [26,33] IV.
func DefaultDivisionBands() DivisionBands {
	return DivisionBands{
		{Division: DivisionI, Min: 7, Max: 17},
		{Division: DivisionII, Min: 18, Max: 21},
		{Division: DivisionIII, Min: 22, Max: 25},
		{Division: DivisionIV, Min: 26, Max: 33},
	}
}

// Classify maps a total to exactly one division.
func (b DivisionBands) Classify(total int) Division {
	for _, band := range b {
		if total >= band.Min && total <= band.Max {
			return band.Division
		}
	}
	return DivisionZero
}

// ClassifySelection classifies a best-N selection. A selection with no counted or padded
// subjects is degenerate and always lands in DivisionZero.
func (b DivisionBands) ClassifySelection(sel Selection) Division {
	if len(sel.Selected) == 0 && sel.Padded == 0 {
		return DivisionZero
	}
	return b.Classify(sel.TotalPoints)
}

// Validate rejects empty, inverted or overlapping bands.
func (b DivisionBands) Validate() error {
	if len(b) == 0 {
		return fmt.Errorf("division bands are empty")
	}
	sorted := make(DivisionBands, len(b))
	copy(sorted, b)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	for i, band := range sorted {
		if band.Division == DivisionZero || band.Division == "" {
			return fmt.Errorf("band [%d,%d]: division 0 is the fallback and cannot be banded", band.Min, band.Max)
		}
		if band.Min > band.Max {
			return fmt.Errorf("band %s: min %d greater than max %d", band.Division, band.Min, band.Max)
		}
		if i > 0 && band.Min <= sorted[i-1].Max {
			return fmt.Errorf("band %s overlaps band %s", band.Division, sorted[i-1].Division)
		}
	}
	return nil
}
