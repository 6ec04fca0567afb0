// Package daemonrun assembles and runs the detectd process: signal handling,
// logging, preflight checks, the pid file, detector workers and the daemon
// job loop. Build is shared with the one-shot CLI path so both run the same
// pipeline.
package daemonrun
