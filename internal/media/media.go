package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/media/ffprobe"
	"detectd/internal/services"
)

// Kind distinguishes still images from videos.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tif": {}, ".tiff": {}, ".webp": {},
}

// KindForPath guesses the media kind from the file extension.
func KindForPath(path string) Kind {
	if _, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return KindImage
	}
	return KindVideo
}

// Source yields decoded frames in order. Next returns io.EOF once the media
// is exhausted; a Source cannot be restarted.
type Source interface {
	Next(ctx context.Context) (frame.Buffer, error)
	Close() error
}

// ProbeFunc inspects a video container.
type ProbeFunc func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// DecoderFunc starts decoding path into packed rgba frames of the given size.
// Closing the returned reader releases the decoder and reports its exit status.
type DecoderFunc func(ctx context.Context, binary, path string, width, height int) (io.ReadCloser, error)

// Options configures a Loader.
type Options struct {
	ExpectedWidth  int
	ExpectedHeight int
	FFmpegBinary   string
	FFprobeBinary  string
	Logger         *slog.Logger
	Probe          ProbeFunc
	Decoder        DecoderFunc
}

// Loader turns media files into frame sources.
type Loader struct {
	width   int
	height  int
	ffmpeg  string
	ffprobe string
	probe   ProbeFunc
	decoder DecoderFunc
	logger  *slog.Logger
}

// NewLoader builds a loader, defaulting to ffprobe and ffmpeg on PATH.
func NewLoader(opts Options) *Loader {
	l := &Loader{
		width:   opts.ExpectedWidth,
		height:  opts.ExpectedHeight,
		ffmpeg:  opts.FFmpegBinary,
		ffprobe: opts.FFprobeBinary,
		probe:   opts.Probe,
		decoder: opts.Decoder,
		logger:  logging.NewComponentLogger(opts.Logger, "media"),
	}
	if l.ffmpeg == "" {
		l.ffmpeg = "ffmpeg"
	}
	if l.ffprobe == "" {
		l.ffprobe = "ffprobe"
	}
	if l.probe == nil {
		l.probe = ffprobe.Inspect
	}
	if l.decoder == nil {
		l.decoder = startFFmpeg
	}
	return l
}

// Load opens path as the given kind. Image sources hold their single frame
// and the file is already removed when Load returns; video sources decode
// lazily and leave the file in place.
func (l *Loader) Load(ctx context.Context, path string, kind Kind) (Source, error) {
	ctx = services.WithStage(ctx, "load")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "load", "stat", path, err)
		}
		return nil, services.Wrap(services.ErrDecodeFailure, "load", "stat", path, err)
	}
	switch kind {
	case KindImage:
		return l.loadImage(ctx, path)
	case KindVideo:
		return l.loadVideo(ctx, path)
	default:
		return nil, fmt.Errorf("load %s: unknown media kind %q", path, kind)
	}
}

// loadErr tags context expiry as a timeout so callers can tell a stuck decoder
// from a corrupt file.
func loadErr(ctx context.Context, marker error, operation, message string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(marker, "load", operation, message, fmt.Errorf("%w: %w", services.ErrTimeout, context.Cause(ctx)))
	}
	return services.Wrap(marker, "load", operation, message, err)
}
