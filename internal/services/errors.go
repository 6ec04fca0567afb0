package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTriggerRace        = errors.New("trigger race")
	ErrNotFound           = errors.New("not found")
	ErrDecodeFailure      = errors.New("decode failure")
	ErrResolutionMismatch = errors.New("resolution mismatch")
	ErrDetectorFailure    = errors.New("detector failure")
	ErrPublishFailure     = errors.New("publish failure")
	ErrInitialization     = errors.New("initialization failure")
	ErrConfiguration      = errors.New("configuration error")
	ErrTimeout            = errors.New("timeout")
)

// Disposition describes what the daemon does with a job after an error.
type Disposition string

const (
	// DispositionSkip drops the trigger without starting a job.
	DispositionSkip Disposition = "skip"
	// DispositionAbandon ends the job without publishing output.
	DispositionAbandon Disposition = "abandon"
	// DispositionContinue records the failure and keeps processing.
	DispositionContinue Disposition = "continue"
	// DispositionFatal stops the daemon.
	DispositionFatal Disposition = "fatal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrDecodeFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the daemon's reaction. Publish and detector
// failures lose at most one result; only setup errors end the process.
func Classify(err error) Disposition {
	switch {
	case err == nil:
		return DispositionContinue
	case errors.Is(err, ErrInitialization), errors.Is(err, ErrConfiguration):
		return DispositionFatal
	case errors.Is(err, ErrTriggerRace):
		return DispositionSkip
	case errors.Is(err, ErrDetectorFailure), errors.Is(err, ErrPublishFailure):
		return DispositionContinue
	default:
		return DispositionAbandon
	}
}

// Kind names the marker carried by err for log fields.
func Kind(err error) string {
	for _, marker := range []error{
		ErrTriggerRace, ErrNotFound, ErrResolutionMismatch, ErrDecodeFailure,
		ErrDetectorFailure, ErrPublishFailure, ErrInitialization, ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	if errors.Is(err, ErrTimeout) {
		return ErrTimeout.Error()
	}
	return "unknown"
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "job failure"
	}
	return strings.Join(parts, ": ")
}
