package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/multierr"

	"detectd/internal/config"
	"detectd/internal/fileutil"
	"detectd/internal/frame"
	"detectd/internal/logging"
	"detectd/internal/results"
	"detectd/internal/services"
)

// Options locates the published files.
type Options struct {
	OutputPath    string
	StagingPath   string
	ThumbnailPath string
	// Thumbnails are skipped when false.
	Thumbnails       bool
	ThumbnailWidth   int
	ThumbnailQuality int
	Logger           *slog.Logger
}

// OptionsFromConfig maps configuration onto publisher options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		OutputPath:       cfg.Paths.Output,
		StagingPath:      cfg.Paths.Staging,
		ThumbnailPath:    cfg.Paths.Thumbnail,
		Thumbnails:       cfg.Thumbnail.Enabled,
		ThumbnailWidth:   cfg.Thumbnail.MaxWidth,
		ThumbnailQuality: cfg.Thumbnail.Quality,
		Logger:           logger,
	}
}

// Publisher makes a job's results visible to the consumer.
type Publisher struct {
	opts   Options
	logger *slog.Logger
}

// New constructs a Publisher.
func New(opts Options) *Publisher {
	if opts.ThumbnailQuality <= 0 || opts.ThumbnailQuality > 100 {
		opts.ThumbnailQuality = 85
	}
	return &Publisher{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "publisher")}
}

// Publish renders log onto the output path by atomic rename, writes the
// thumbnail if one was captured, then removes the consumed source. Only a
// failure to place the output is returned; thumbnail and cleanup problems are
// logged.
func (p *Publisher) Publish(ctx context.Context, log *results.Log, thumbnail frame.Buffer, sourcePath string) error {
	ctx = services.WithStage(ctx, "publish")
	logger := logging.WithContext(ctx, p.logger)

	rendered := log.Render()
	if err := fileutil.WriteFileAtomic(p.opts.OutputPath, p.opts.StagingPath, []byte(rendered), 0o644); err != nil {
		return services.Wrap(services.ErrPublishFailure, "publish", "write output", p.opts.OutputPath, err)
	}
	logger.Info("results published",
		logging.String(logging.FieldEventType, "results_published"),
		logging.String("path", p.opts.OutputPath),
		logging.Int("frames", log.Len()),
		logging.Int("bytes", len(rendered)),
	)

	if p.opts.Thumbnails && !thumbnail.Empty() {
		if err := p.writeThumbnail(thumbnail); err != nil {
			logging.WarnWithContext(logger, "thumbnail write failed", "thumbnail_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "previous thumbnail left in place"),
				logging.String(logging.FieldErrorHint, "check free space in the watch directory"),
			)
		} else {
			logger.Debug("thumbnail written", logging.String("path", p.opts.ThumbnailPath))
		}
	}

	if err := p.cleanup(sourcePath); err != nil {
		logging.WarnWithContext(logger, "input cleanup incomplete", "cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale input may remain until the next job overwrites it"),
		)
	}
	return nil
}

func (p *Publisher) writeThumbnail(buf frame.Buffer) error {
	img := buf.Image()
	if w := p.opts.ThumbnailWidth; w > 0 && img.Bounds().Dx() > w {
		img = imaging.Fit(img, w, img.Bounds().Dy(), imaging.Lanczos)
	}
	tmp := thumbnailTemp(p.opts.ThumbnailPath)
	return fileutil.WriteAtomic(p.opts.ThumbnailPath, tmp, 0o644, func(w io.Writer) error {
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(p.opts.ThumbnailQuality)); err != nil {
			return fmt.Errorf("encode thumbnail: %w", err)
		}
		return nil
	})
}

func (p *Publisher) cleanup(sourcePath string) error {
	var err error
	err = multierr.Append(err, fileutil.RemoveIfExists(sourcePath))
	err = multierr.Append(err, fileutil.RemoveIfExists(p.opts.StagingPath))
	if p.opts.ThumbnailPath != "" {
		err = multierr.Append(err, fileutil.RemoveIfExists(thumbnailTemp(p.opts.ThumbnailPath)))
	}
	return err
}

// Leftovers lists the temp files an interrupted Publish can leave behind.
func (p *Publisher) Leftovers() []string {
	paths := []string{p.opts.StagingPath}
	if p.opts.ThumbnailPath != "" {
		paths = append(paths, thumbnailTemp(p.opts.ThumbnailPath))
	}
	return paths
}

func thumbnailTemp(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
}
