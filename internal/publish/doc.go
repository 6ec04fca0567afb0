// Package publish places a finished job's output where the consumer polls for
// it. The result log is staged next to the output file and renamed into
// place, so the consumer either sees the previous output or the complete new
// one.
package publish
