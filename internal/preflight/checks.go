package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"detectd/internal/config"
	"detectd/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external programs the configuration needs.
// Both the daemon and the CLI status command use this so the requirement
// list lives in one place.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	var requirements []deps.Requirement
	if cfg.Video.Enabled {
		requirements = append(requirements,
			deps.Requirement{
				Name:        "FFmpeg",
				Command:     cfg.Video.FFmpegBinary,
				Description: "Required for video frame decoding",
			},
			deps.Requirement{
				Name:        "FFprobe",
				Command:     cfg.Video.FFprobeBinary,
				Description: "Required for video resolution checks",
			},
		)
	}
	seen := make(map[string]struct{}, len(cfg.Detectors))
	for _, d := range cfg.Detectors {
		if _, dup := seen[d.Command]; dup {
			continue
		}
		seen[d.Command] = struct{}{}
		requirements = append(requirements, deps.Requirement{
			Name:        "Detector " + d.Name,
			Command:     d.Command,
			Description: "Detection worker",
		})
	}
	return deps.CheckBinaries(requirements)
}
