// Package media decodes job payloads into frame sources.
//
// Images are decoded in process (with EXIF orientation applied) into a single
// frame and the source file is removed once read. Videos are probed with
// ffprobe, rejected when their size differs from the configured resolution,
// and then decoded lazily by an ffmpeg process emitting packed rgba frames.
// Failures carry the services markers ErrNotFound, ErrDecodeFailure and
// ErrResolutionMismatch.
package media
