package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"detectd/internal/config"
	"detectd/internal/daemon"
	"detectd/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, protocol file and dependency status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatus(cmd, cfg, shouldColorize(out)))
			return nil
		},
	}
}

func renderStatus(cmd *cobra.Command, cfg *config.Config, colorize bool) string {
	var lines []string

	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	lines = append(lines, daemonStatusLine(cfg, colorize))
	lines = append(lines, renderStatusLine("Stages", statusInfo, strings.Join(cfg.DetectorNames(), " -> "), colorize))
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	for _, result := range preflight.RunAll(cmd.Context(), cfg) {
		lines = append(lines, renderCheckLine(result, colorize))
	}
	lines = append(lines, "")

	lines = append(lines, renderSectionHeader("Protocol Files", colorize)...)
	lines = append(lines, protocolTable(cfg))
	return strings.Join(lines, "\n")
}

func daemonStatusLine(cfg *config.Config, colorize bool) string {
	lockPath := cfg.LockPath()
	if _, err := os.Stat(lockPath); errors.Is(err, fs.ErrNotExist) {
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
	held, err := daemon.LockHeld(lockPath)
	if err != nil {
		return renderStatusLine("Daemon", statusWarn, err.Error(), colorize)
	}
	if !held {
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
	message := "Running"
	if pid, ok := readPID(cfg.PIDPath()); ok {
		message = fmt.Sprintf("Running (pid %d)", pid)
	}
	return renderStatusLine("Daemon", statusOK, message, colorize)
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func protocolTable(cfg *config.Config) string {
	entries := []struct {
		role string
		path string
	}{
		{"trigger", cfg.Paths.Trigger},
		{"image", cfg.Paths.Image},
		{"video", cfg.Paths.Video},
		{"output", cfg.Paths.Output},
		{"staging", cfg.Paths.Staging},
		{"thumbnail", cfg.Paths.Thumbnail},
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size, modified := "-", "-"
		info, err := os.Stat(e.path)
		if err == nil {
			size = strconv.FormatInt(info.Size(), 10)
			modified = info.ModTime().Format(time.DateTime)
		}
		rows = append(rows, []string{e.role, e.path, yesNo(err == nil), size, modified})
	}
	return renderTable(
		[]string{"file", "path", "present", "bytes", "modified"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
