package media

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/services"
)

func (l *Loader) loadImage(ctx context.Context, path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "load", "read image", path, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, services.Wrap(services.ErrDecodeFailure, "load", "decode image", path, err)
	}
	buf := frame.FromImage(img)

	// The producer may reuse the name for the next job as soon as it is gone.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.WarnWithContext(logging.WithContext(ctx, l.logger), "failed to remove consumed image", "media_cleanup",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "image may be reprocessed by a later trigger"),
		)
	}
	logging.WithContext(ctx, l.logger).Debug("image decoded",
		logging.String("path", path),
		logging.Int("width", buf.Width),
		logging.Int("height", buf.Height),
	)
	return NewImageSource(buf), nil
}

type imageSource struct {
	buf  frame.Buffer
	done bool
}

func (s *imageSource) Next(context.Context) (frame.Buffer, error) {
	if s.done {
		return frame.Buffer{}, io.EOF
	}
	s.done = true
	buf := s.buf
	s.buf = frame.Buffer{}
	return buf, nil
}

func (s *imageSource) Close() error {
	s.done = true
	s.buf = frame.Buffer{}
	return nil
}

// NewImageSource wraps an already decoded frame as a single-frame source.
func NewImageSource(buf frame.Buffer) Source {
	return &imageSource{buf: buf}
}
