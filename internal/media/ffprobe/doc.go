// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: per-stream properties, including frame size and rate
//
// Inspect executes ffprobe and returns a parsed Result; Parse decodes output
// captured elsewhere.
package ffprobe
