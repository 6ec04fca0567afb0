package results

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"detectd/internal/detect"
)

// Coordinates selects how box corners are written.
type Coordinates string

const (
	// Float writes the shortest decimal that round-trips the float32 value.
	Float Coordinates = "float"
	// Int rounds to the nearest whole pixel.
	Int Coordinates = "int"
)

// ErrSealed is returned by Append once the log has been rendered.
var ErrSealed = errors.New("result log already rendered")

// Options fixes the output format for every log of a deployment.
type Options struct {
	Stages      []string
	Coordinates Coordinates
	SkipEmpty   bool
}

// Log is the ordered, append-only record of one job.
type Log struct {
	opts    Options
	entries []detect.FrameResult
	sealed  bool
}

// New returns an empty log for the given stage order.
func New(opts Options) *Log {
	if opts.Coordinates == "" {
		opts.Coordinates = Float
	}
	opts.Stages = append([]string(nil), opts.Stages...)
	return &Log{opts: opts}
}

// Append records one frame. Frames must arrive in increasing index order and
// carry one outcome per configured stage.
func (l *Log) Append(result detect.FrameResult) error {
	if l.sealed {
		return ErrSealed
	}
	if n := len(l.entries); n > 0 && result.Index <= l.entries[n-1].Index {
		return fmt.Errorf("frame %d appended after frame %d", result.Index, l.entries[n-1].Index)
	}
	if len(result.Outcomes) != len(l.opts.Stages) {
		return fmt.Errorf("frame %d has %d outcomes, want %d", result.Index, len(result.Outcomes), len(l.opts.Stages))
	}
	for i, o := range result.Outcomes {
		if o.Name != l.opts.Stages[i] {
			return fmt.Errorf("frame %d outcome %d is %q, want %q", result.Index, i, o.Name, l.opts.Stages[i])
		}
	}
	l.entries = append(l.entries, result)
	return nil
}

// Len returns the number of appended frames, including empty ones.
func (l *Log) Len() int {
	return len(l.entries)
}

// Frames returns a copy of the appended results.
func (l *Log) Frames() []detect.FrameResult {
	return append([]detect.FrameResult(nil), l.entries...)
}

// Render serializes the log and seals it against further appends.
func (l *Log) Render() string {
	l.sealed = true
	var b strings.Builder
	for _, entry := range l.entries {
		if l.opts.SkipEmpty && !entry.HasDetections() {
			continue
		}
		l.writeLine(&b, entry)
	}
	return b.String()
}

// Line renders a single frame without touching the log state.
func (l *Log) Line(entry detect.FrameResult) string {
	var b strings.Builder
	l.writeLine(&b, entry)
	return strings.TrimSuffix(b.String(), "\n")
}

func (l *Log) writeLine(b *strings.Builder, entry detect.FrameResult) {
	b.WriteString(strconv.Itoa(entry.Index))
	for _, o := range entry.Outcomes {
		b.WriteByte(',')
		b.WriteString(o.Name)
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(o.Set.Count()))
	}
	for _, o := range entry.Outcomes {
		for _, box := range o.Set.Boxes {
			for _, v := range [4]float32{box.Left, box.Top, box.Right, box.Bottom} {
				b.WriteByte(',')
				b.WriteString(l.formatCoord(v))
			}
		}
	}
	b.WriteByte('\n')
}

func (l *Log) formatCoord(v float32) string {
	if l.opts.Coordinates == Int {
		return strconv.Itoa(int(math.Round(float64(v))))
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// Summary totals boxes per stage across the log.
func (l *Log) Summary() map[string]int {
	totals := make(map[string]int, len(l.opts.Stages))
	for _, name := range l.opts.Stages {
		totals[name] = 0
	}
	for _, entry := range l.entries {
		for _, o := range entry.Outcomes {
			totals[o.Name] += o.Set.Count()
		}
	}
	return totals
}
