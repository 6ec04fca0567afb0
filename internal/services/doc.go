// Package services defines shared utilities consumed by the job pipeline.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and frame indexes for
//     logging.
//   - Structured error markers plus the Wrap helper, and Classify which maps a
//     failure to the daemon's reaction (skip, abandon, continue, fatal).
//
// Use these helpers when wiring new pipeline code so error handling and
// observability stay uniform across components.
package services
