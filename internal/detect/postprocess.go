package detect

import "fmt"

// Postprocessor filters or trims a detector's raw boxes.
type Postprocessor func([]Box) []Box

// NewScoreFilter drops boxes scoring below threshold.
func NewScoreFilter(threshold float64) Postprocessor {
	return func(in []Box) []Box {
		out := make([]Box, 0, len(in))
		for _, b := range in {
			if float64(b.Score) >= threshold {
				out = append(out, b)
			}
		}
		return out
	}
}

// NewLimit keeps at most max boxes, preserving detector order.
func NewLimit(max int) Postprocessor {
	return func(in []Box) []Box {
		if max >= 0 && len(in) > max {
			return in[:max]
		}
		return in
	}
}

// validate rejects the whole set when any box is malformed; a partial set
// would misreport the count.
func validate(set Set) error {
	for i, b := range set.Boxes {
		if !b.Valid() {
			return fmt.Errorf("box %d is malformed: %+v", i, b)
		}
	}
	return nil
}
