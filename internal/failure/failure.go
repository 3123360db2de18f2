// Package failure defines the error taxonomy shared by the transcription pipeline.
//
// Every error that leaves a pipeline stage wraps exactly one of the sentinel kinds
// below, so callers can branch with errors.Is without inspecting messages.
package failure

import (
	"errors"
	"fmt"
)

// Sentinel error kinds.
var (
	// ErrInvalidArgument is returned before any work is performed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrIOFailure covers disk and codec failures during extraction or export.
	ErrIOFailure = errors.New("io failure")
	// ErrTransientProvider is a provider failure that is safe to retry.
	ErrTransientProvider = errors.New("transient provider error")
	// ErrFatalProvider is a provider failure that needs caller intervention.
	ErrFatalProvider = errors.New("fatal provider error")
)

// ErrPayloadTooLarge reports an exported artifact above the provider payload
// ceiling. It is only known after export, so it is an IO failure rather than
// an invalid argument.
var ErrPayloadTooLarge = fmt.Errorf("%w: artifact exceeds provider payload limit", ErrIOFailure)

// Stage names a pipeline step for error reporting.
type Stage string

// Pipeline stages.
const (
	StageExtraction    Stage = "extraction"
	StageSegmentation  Stage = "segmentation"
	StageExport        Stage = "export"
	StageTranscription Stage = "transcription"
	StageMerge         Stage = "merge"
	StageOutput        Stage = "output"
)

// StageError attaches the failing stage and section index to an error.
// Index is -1 when the failure is not tied to a single section.
type StageError struct {
	Stage   Stage
	Section string // "chunk" or "slide"
	Index   int
	Err     error
}

func (e *StageError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	}
	section := e.Section
	if section == "" {
		section = "chunk"
	}
	return fmt.Sprintf("%s failed for %s %d: %v", e.Stage, section, e.Index, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// At wraps err as a StageError. A nil err stays nil.
func At(stage Stage, section string, index int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Section: section, Index: index, Err: err}
}

// Invalid builds an ErrInvalidArgument with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IO wraps err as an ErrIOFailure.
func IO(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIOFailure, op, err)
}

// Transient wraps err as a retryable provider error.
func Transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransientProvider, err)
}

// Fatal wraps err as a non-retryable provider error.
func Fatal(err error) error {
	return fmt.Errorf("%w: %v", ErrFatalProvider, err)
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientProvider)
}
