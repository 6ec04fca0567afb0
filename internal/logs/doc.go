// Package logs reads the daemon's log file for `detectd logs`.
//
// Last returns the trailing lines with bounded memory. Follow streams new
// lines as they are appended, waking on filesystem events when available and
// polling otherwise, and restarts from the top when the rotating writer
// replaces the file.
package logs
