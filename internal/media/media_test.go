package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"detectd/internal/media/ffprobe"
	"detectd/internal/services"
)

func TestLoadImageYieldsSingleFrameAndRemovesSource(t *testing.T) {
	path := writePNG(t, 640, 480)
	loader := NewLoader(Options{ExpectedWidth: 1024, ExpectedHeight: 768})

	src, err := loader.Load(context.Background(), path, KindImage)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer src.Close()

	buf, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(buf.Pix) != 640*480*4 {
		t.Fatalf("expected %d samples, got %d", 640*480*4, len(buf.Pix))
	}
	if got := buf.Image().NRGBAAt(1, 1); got.G != 128 {
		t.Fatalf("unexpected pixel %v", got)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after the only frame, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected image to be removed after read, stat err=%v", err)
	}
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	loader := NewLoader(Options{})
	_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "detect.jpg"), KindImage)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptImageIsDecodeFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detect.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewLoader(Options{}).Load(context.Background(), path, KindImage)
	if !errors.Is(err, services.ErrDecodeFailure) {
		t.Fatalf("expected ErrDecodeFailure, got %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("corrupt image should be left for the caller to discard: %v", err)
	}
}

func TestLoadVideoSlicesFrames(t *testing.T) {
	const w, h = 4, 2
	raw := make([]byte, 0, 3*w*h*4)
	for i := 0; i < 3; i++ {
		raw = append(raw, bytes.Repeat([]byte{byte(i + 1)}, w*h*4)...)
	}
	fd := &fakeDecoder{data: raw}
	loader := NewLoader(Options{
		ExpectedWidth:  w,
		ExpectedHeight: h,
		Probe:          probeReturning(w, h),
		Decoder:        fd.start,
	})

	src, err := loader.Load(context.Background(), touch(t, "detect.mp4"), KindVideo)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var firsts []float32
	for {
		buf, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if buf.Width != w || buf.Height != h || len(buf.Pix) != w*h*4 {
			t.Fatalf("unexpected frame %dx%d len=%d", buf.Width, buf.Height, len(buf.Pix))
		}
		firsts = append(firsts, buf.Pix[0])
	}
	if !slices.Equal(firsts, []float32{1, 2, 3}) {
		t.Fatalf("unexpected frame order %v", firsts)
	}
	if !fd.closed {
		t.Fatal("expected decoder to be closed at end of stream")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestLoadVideoResolutionMismatch(t *testing.T) {
	fd := &fakeDecoder{}
	loader := NewLoader(Options{
		ExpectedWidth:  1024,
		ExpectedHeight: 768,
		Probe:          probeReturning(1280, 720),
		Decoder:        fd.start,
	})
	_, err := loader.Load(context.Background(), touch(t, "detect.mp4"), KindVideo)
	if !errors.Is(err, services.ErrResolutionMismatch) {
		t.Fatalf("expected ErrResolutionMismatch, got %v", err)
	}
	if fd.started {
		t.Fatal("decoder must not start for mismatched video")
	}
}

func TestLoadVideoFailures(t *testing.T) {
	tests := []struct {
		name    string
		probe   ProbeFunc
		decoder *fakeDecoder
	}{
		{
			name:    "probe error",
			probe:   func(context.Context, string, string) (ffprobe.Result, error) { return ffprobe.Result{}, errors.New("moov atom not found") },
			decoder: &fakeDecoder{},
		},
		{
			name:    "no video stream",
			probe:   func(context.Context, string, string) (ffprobe.Result, error) { return ffprobe.Result{}, nil },
			decoder: &fakeDecoder{},
		},
		{
			name:    "truncated frame",
			probe:   probeReturning(2, 2),
			decoder: &fakeDecoder{data: make([]byte, 2*2*4+3)},
		},
		{
			name:    "decoder exit status",
			probe:   probeReturning(2, 2),
			decoder: &fakeDecoder{data: make([]byte, 2*2*4), closeErr: errors.New("exit status 1")},
		},
		{
			name:    "empty stream",
			probe:   probeReturning(2, 2),
			decoder: &fakeDecoder{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader(Options{ExpectedWidth: 2, ExpectedHeight: 2, Probe: tt.probe, Decoder: tt.decoder.start})
			err := drain(loader, touch(t, "detect.mp4"))
			if !errors.Is(err, services.ErrDecodeFailure) {
				t.Fatalf("expected ErrDecodeFailure, got %v", err)
			}
		})
	}
}

func TestLoadVideoTimeoutIsTagged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loader := NewLoader(Options{
		ExpectedWidth:  2,
		ExpectedHeight: 2,
		Probe: func(ctx context.Context, _, _ string) (ffprobe.Result, error) {
			return ffprobe.Result{}, ctx.Err()
		},
	})
	_, err := loader.Load(ctx, touch(t, "detect.mp4"), KindVideo)
	if !errors.Is(err, services.ErrDecodeFailure) || !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected decode failure tagged as timeout, got %v", err)
	}
}

func TestDecodeArgs(t *testing.T) {
	args := DecodeArgs("/dev/shm/detect.mp4", 1024, 768)
	if args[len(args)-1] != "pipe:" {
		t.Fatalf("expected output to stdout, got %v", args)
	}
	for _, pair := range [][2]string{{"-i", "/dev/shm/detect.mp4"}, {"-f", "rawvideo"}, {"-pix_fmt", "rgba"}, {"-s", "1024x768"}} {
		idx := slices.Index(args, pair[0])
		if idx < 0 || idx+1 >= len(args) || args[idx+1] != pair[1] {
			t.Fatalf("expected %s %s in %v", pair[0], pair[1], args)
		}
	}
}

func TestKindForPath(t *testing.T) {
	tests := map[string]Kind{
		"detect.jpg":  KindImage,
		"DETECT.JPEG": KindImage,
		"still.webp":  KindImage,
		"detect.mp4":  KindVideo,
		"clip.mkv":    KindVideo,
	}
	for path, want := range tests {
		if got := KindForPath(path); got != want {
			t.Errorf("KindForPath(%q) = %s, want %s", path, got, want)
		}
	}
}

type fakeDecoder struct {
	data     []byte
	closeErr error
	started  bool
	closed   bool
}

func (f *fakeDecoder) start(context.Context, string, string, int, int) (io.ReadCloser, error) {
	f.started = true
	return &fakeReader{Reader: bytes.NewReader(f.data), owner: f}, nil
}

type fakeReader struct {
	*bytes.Reader
	owner *fakeDecoder
}

func (r *fakeReader) Close() error {
	r.owner.closed = true
	return r.owner.closeErr
}

func probeReturning(w, h int) ProbeFunc {
	return func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", CodecName: "h264", Width: w, Height: h}}}, nil
	}
}

func drain(loader *Loader, path string) error {
	src, err := loader.Load(context.Background(), path, KindVideo)
	if err != nil {
		return err
	}
	defer src.Close()
	for {
		if _, err := src.Next(context.Background()); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func touch(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 128, B: 250, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "detect.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}
