package detect

import (
	"context"
	"math"

	"detectd/internal/frame"
)

// Box is one detection in pixel coordinates of the frame it came from.
type Box struct {
	Left   float32
	Top    float32
	Right  float32
	Bottom float32
	Class  int
	Score  float32
}

// Valid reports whether the box has finite, correctly ordered corners.
func (b Box) Valid() bool {
	for _, v := range []float32{b.Left, b.Top, b.Right, b.Bottom, b.Score} {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return b.Left <= b.Right && b.Top <= b.Bottom
}

// Set is the result of one detector invocation on one frame.
type Set struct {
	Boxes []Box
}

// Count returns the number of boxes.
func (s Set) Count() int {
	return len(s.Boxes)
}

// Empty reports whether nothing was detected.
func (s Set) Empty() bool {
	return len(s.Boxes) == 0
}

// Detector runs inference on a single frame. Implementations return at most
// maxBoxes boxes and must honour ctx cancellation.
type Detector interface {
	Detect(ctx context.Context, buf frame.Buffer, maxBoxes int) (Set, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, buf frame.Buffer, maxBoxes int) (Set, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, buf frame.Buffer, maxBoxes int) (Set, error) {
	return f(ctx, buf, maxBoxes)
}

// Outcome records what one stage did on one frame.
type Outcome struct {
	Name   string
	Ran    bool
	Failed bool
	Set    Set
}

// FrameResult holds one outcome per configured stage, in stage order.
type FrameResult struct {
	Index    int
	Outcomes []Outcome
}

// HasDetections reports whether any stage produced at least one box.
func (r FrameResult) HasDetections() bool {
	for _, o := range r.Outcomes {
		if !o.Set.Empty() {
			return true
		}
	}
	return false
}

// Count returns the number of boxes a named stage produced, or 0.
func (r FrameResult) Count(name string) int {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o.Set.Count()
		}
	}
	return 0
}
