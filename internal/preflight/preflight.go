package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"detectd/internal/config"
	"detectd/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Video tooling is only checked when video jobs are enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
		if !status.Available {
			result.Detail = status.Detail
		}
		results = append(results, result)
	}
	return results
}

// Err folds failed results into an InitializationFailure, or returns nil when
// everything passed.
func Err(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrInitialization, "preflight", "", "", errors.New(strings.Join(failed, "; ")))
}
