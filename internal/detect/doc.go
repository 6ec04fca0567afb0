// Package detect runs object detectors over frames.
//
// A Detector turns one frame into a Set of boxes. ProcessDetector is the
// production implementation: it keeps an external worker process alive and
// exchanges length-prefixed msgpack messages with it over stdin and stdout.
//
// The Orchestrator applies an ordered list of stages to each frame. The first
// stage is the primary and always runs; later stages carry a Trigger that
// decides, from the primary's result, whether they run on that frame. Failed
// or timed out invocations are recorded as empty sets so one bad frame never
// aborts a job.
package detect
