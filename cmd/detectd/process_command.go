package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"detectd/internal/config"
	"detectd/internal/daemon"
	"detectd/internal/daemonrun"
	"detectd/internal/detect"
	"detectd/internal/fileutil"
	"detectd/internal/logging"
	"detectd/internal/media"
	"detectd/internal/sentinel"
	"detectd/internal/staging"
)

const (
	scratchPrefix = "detectd-process-"
	scratchMaxAge = 24 * time.Hour
)

type processOptions struct {
	kind      string
	output    string
	thumbnail string
	noTable   bool
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run detection on one file and print the results",
		Long: "Run one detection job on the given image or video without the trigger protocol.\n" +
			"The file is copied into a scratch directory first and is never removed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runProcess(cmd, cfg, ctx.logLevel(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "Media kind (image or video); guessed from the extension when empty")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Also write the rendered result log to this path")
	cmd.Flags().StringVar(&opts.thumbnail, "thumbnail", "", "Write the job thumbnail to this path")
	cmd.Flags().BoolVar(&opts.noTable, "no-table", false, "Print only the rendered result log")
	return cmd
}

func runProcess(cmd *cobra.Command, cfg *config.Config, logLevel, input string, opts processOptions) error {
	kind, err := resolveKind(input, opts.kind)
	if err != nil {
		return err
	}
	if kind == media.KindVideo && !cfg.Video.Enabled {
		return fmt.Errorf("video jobs are disabled (video.enabled = false)")
	}

	level := logLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	staging.CleanStale(cmd.Context(), os.TempDir(), scratchPrefix, scratchMaxAge, logger)
	workspace, err := os.MkdirTemp("", scratchPrefix)
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(workspace)

	thumbnail := strings.TrimSpace(opts.thumbnail)
	if thumbnail != "" {
		if thumbnail, err = config.ExpandPath(thumbnail); err != nil {
			return fmt.Errorf("resolve thumbnail path: %w", err)
		}
	}
	jobCfg := processConfig(cfg, workspace, thumbnail)
	if err := jobCfg.EnsureDirectories(); err != nil {
		return err
	}

	mediaPath := filepath.Join(workspace, "input"+strings.ToLower(filepath.Ext(input)))
	if err := copyFile(input, mediaPath); err != nil {
		return err
	}

	bar := newFrameBar(cmd.ErrOrStderr())
	pipeline, err := daemonrun.Build(cmd.Context(), jobCfg, logger, daemonrun.BuildOptions{
		Source: sentinel.NewQueue(1),
		OnFrame: func(daemon.Job, detect.FrameResult) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("detector shutdown incomplete", logging.Error(err))
		}
	}()

	report, err := pipeline.Daemon.ProcessJob(cmd.Context(), sentinel.Trigger{
		Path:       mediaPath,
		Kind:       kind,
		ObservedAt: time.Now(),
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err != nil {
		return fmt.Errorf("process %s: %w", input, err)
	}

	if opts.output != "" {
		if err := writeResultLog(opts.output, report.Output); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, report.Output)
	if opts.noTable {
		return nil
	}
	if report.Output != "" {
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, frameTable(pipeline.Orchestrator.Names(), report.Frames))
	fmt.Fprintf(out, "%d frames read, %d sampled, boxes %s, thumbnail %s, %s\n",
		report.FramesRead, len(report.Frames), boxTotals(pipeline.Orchestrator.Names(), report.Boxes),
		yesNo(report.Thumbnail && thumbnail != ""), report.Duration.Round(time.Millisecond))
	return nil
}

func resolveKind(input, flag string) (media.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "":
		return media.KindForPath(input), nil
	case string(media.KindImage):
		return media.KindImage, nil
	case string(media.KindVideo):
		return media.KindVideo, nil
	default:
		return "", fmt.Errorf("--kind must be image or video, got %q", flag)
	}
}

// processConfig points every protocol file at the scratch directory so a
// one-off job never touches a running daemon's files.
func processConfig(cfg *config.Config, workspace, thumbnail string) *config.Config {
	jobCfg := *cfg
	jobCfg.Detectors = slices.Clone(cfg.Detectors)
	jobCfg.Paths = config.Paths{
		WatchDir:  workspace,
		Trigger:   filepath.Join(workspace, "detect.start"),
		Image:     filepath.Join(workspace, "detect.jpg"),
		Video:     filepath.Join(workspace, "detect.mp4"),
		Output:    filepath.Join(workspace, "detect.out"),
		Staging:   filepath.Join(workspace, "detect.tmp"),
		Thumbnail: filepath.Join(workspace, "detect.thumb.jpg"),
		LogDir:    workspace,
	}
	jobCfg.Thumbnail.Enabled = thumbnail != ""
	if thumbnail != "" {
		jobCfg.Paths.Thumbnail = thumbnail
	}
	return &jobCfg
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("input %s is not a regular file", src)
	}
	return fileutil.WriteAtomic(dst, dst+".part", 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func writeResultLog(path, rendered string) error {
	target, err := config.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".tmp")
	if err := fileutil.WriteFileAtomic(target, tmp, []byte(rendered), 0o644); err != nil {
		return fmt.Errorf("write result log: %w", err)
	}
	return nil
}

func newFrameBar(w io.Writer) *progressbar.ProgressBar {
	if !isTerminal(w) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Detecting"),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowIts(),
	)
}

// boxTotals renders per-stage box counts in stage order, e.g. "ped 3, face 1".
func boxTotals(stages []string, totals map[string]int) string {
	parts := make([]string, 0, len(stages))
	for _, name := range stages {
		parts = append(parts, fmt.Sprintf("%s %d", name, totals[name]))
	}
	return strings.Join(parts, ", ")
}

// frameTable lists every sampled frame, including those the result log
// omits for having no detections.
func frameTable(stages []string, frames []detect.FrameResult) string {
	headers := append([]string{"frame"}, stages...)
	headers = append(headers, "failed")
	aligns := make([]columnAlignment, len(headers))
	for i := range aligns[:len(aligns)-1] {
		aligns[i] = alignRight
	}

	rows := make([][]string, 0, len(frames))
	for _, f := range frames {
		row := []string{strconv.Itoa(f.Index)}
		var failed []string
		for _, o := range f.Outcomes {
			switch {
			case o.Failed:
				failed = append(failed, o.Name)
				row = append(row, "0")
			case !o.Ran:
				row = append(row, "-")
			default:
				row = append(row, strconv.Itoa(o.Set.Count()))
			}
		}
		row = append(row, strings.Join(failed, ","))
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}
