// Package sampler thins a video frame source down to every Nth frame and
// keeps one early frame as the job thumbnail.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"detectd/internal/frame"
	"detectd/internal/media"
	"detectd/internal/services"
)

// DefaultStride matches the classic one-in-fifty detection cadence.
const DefaultStride = 50

// Sample is a frame selected for detection with its 1-based index in the source.
type Sample struct {
	Index  int
	Buffer frame.Buffer
}

// Sampler yields frames whose 1-based index satisfies (index-1) mod stride == 0.
type Sampler struct {
	src            media.Source
	stride         int
	thumbnailIndex int
	index          int
	thumbnail      frame.Buffer
	hasThumbnail   bool
	passthrough    bool
}

// New wraps a video source. Non-positive stride or thumbnail index fall back
// to the defaults (50 and 2).
func New(src media.Source, stride, thumbnailIndex int) *Sampler {
	if stride <= 0 {
		stride = DefaultStride
	}
	if thumbnailIndex <= 0 {
		thumbnailIndex = 2
	}
	return &Sampler{src: src, stride: stride, thumbnailIndex: thumbnailIndex}
}

// ForImage wraps a single-frame source: every frame is yielded and the first
// one doubles as the thumbnail.
func ForImage(src media.Source) *Sampler {
	return &Sampler{src: src, stride: 1, thumbnailIndex: 1, passthrough: true}
}

// Next returns the next selected frame, or io.EOF when the source is exhausted.
// Any other error comes from the underlying source and ends the iteration; an
// expired ctx is a decode failure tagged as a timeout.
func (s *Sampler) Next(ctx context.Context) (Sample, error) {
	for {
		if ctx.Err() != nil {
			return Sample{}, services.Wrap(services.ErrDecodeFailure, "sample", "next frame",
				fmt.Sprintf("stopped after frame %d", s.index), fmt.Errorf("%w: %w", services.ErrTimeout, context.Cause(ctx)))
		}
		buf, err := s.src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Sample{}, io.EOF
			}
			return Sample{}, err
		}
		s.index++
		if s.index == s.thumbnailIndex && !s.hasThumbnail {
			s.thumbnail = buf.Clone()
			s.hasThumbnail = true
		}
		if s.passthrough || Selected(s.index, s.stride) {
			return Sample{Index: s.index, Buffer: buf}, nil
		}
	}
}

// Thumbnail returns the captured thumbnail frame, if the source reached it.
func (s *Sampler) Thumbnail() (frame.Buffer, bool) {
	return s.thumbnail, s.hasThumbnail
}

// FramesRead reports how many frames were pulled from the source so far.
func (s *Sampler) FramesRead() int {
	return s.index
}

// Selected reports whether the 1-based frame index is kept at the given stride.
func Selected(index, stride int) bool {
	if stride <= 1 {
		return index >= 1
	}
	return index >= 1 && (index-1)%stride == 0
}
