// Package frame defines the pixel buffer handed between the loader, the
// sampler and the detectors.
package frame

import (
	"fmt"
	"image"
	"image/draw"
)

// Channels is the number of float samples per pixel (R, G, B, A).
const Channels = 4

// Buffer is a row-major RGBA image with one float32 sample per channel in the
// 0..255 range. Ownership moves with the value: the producer does not touch
// Pix after handing a Buffer on.
type Buffer struct {
	Width  int
	Height int
	Pix    []float32
}

// New allocates a zeroed buffer of the given size.
func New(width, height int) Buffer {
	return Buffer{Width: width, Height: height, Pix: make([]float32, width*height*Channels)}
}

// FromImage converts any decoded image into a fresh buffer of the same size.
func FromImage(img image.Image) Buffer {
	bounds := img.Bounds()
	rgba, ok := img.(*image.NRGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return fromBytes(rgba.Rect.Dx(), rgba.Rect.Dy(), rgba.Pix, rgba.Stride)
}

// FromRGBA converts a packed rgba byte frame, as produced by a rawvideo
// decoder, into a buffer.
func FromRGBA(width, height int, raw []byte) (Buffer, error) {
	if want := width * height * Channels; len(raw) != want {
		return Buffer{}, fmt.Errorf("rgba frame is %d bytes, want %d for %dx%d", len(raw), want, width, height)
	}
	return fromBytes(width, height, raw, width*Channels), nil
}

func fromBytes(width, height int, pix []byte, stride int) Buffer {
	buf := New(width, height)
	row := width * Channels
	for y := 0; y < height; y++ {
		src := pix[y*stride : y*stride+row]
		dst := buf.Pix[y*row : (y+1)*row]
		for i, v := range src {
			dst[i] = float32(v)
		}
	}
	return buf
}

// Validate reports whether Pix matches the declared dimensions.
func (b Buffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", b.Width, b.Height)
	}
	if want := b.Width * b.Height * Channels; len(b.Pix) != want {
		return fmt.Errorf("frame has %d samples, want %d for %dx%d", len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// Empty reports whether the buffer holds no pixels.
func (b Buffer) Empty() bool {
	return len(b.Pix) == 0
}

// Clone returns a deep copy.
func (b Buffer) Clone() Buffer {
	out := Buffer{Width: b.Width, Height: b.Height, Pix: make([]float32, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// Image converts the buffer back to an 8-bit image, clamping out of range samples.
func (b Buffer) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i, v := range b.Pix {
		img.Pix[i] = clamp(v)
	}
	return img
}

func clamp(v float32) uint8 {
	switch {
	case v != v || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
