// Package daemon runs the detection job loop.
//
// A Daemon polls its sentinel.Source, and for each trigger loads the media,
// samples frames, runs the detection stages, aggregates the results and
// publishes them. Jobs never overlap and a started job always finishes, even
// when the stop signal arrives mid-job. A flock-based lock in the log
// directory keeps a second instance from consuming the same markers.
//
// Keep per-stage logic in the stage packages: the daemon only sequences them
// and decides what each classified error means for the job.
package daemon
