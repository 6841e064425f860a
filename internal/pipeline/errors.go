package pipeline

import (
	"errors"
	"fmt"

	"gallery-server/internal/database"
	"gallery-server/internal/scheduler"
)

// Sentinels re-exported so handlers depend on one package for error
// classification.
var (
	ErrNotFound    = database.ErrNotFound
	ErrInterrupted = scheduler.ErrInterrupted
)

// ValidationError rejects a request before any work happens: unsupported
// type, oversized upload, bad parameters. Maps to HTTP 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// StorageError wraps a filesystem or database failure while persisting
// content. Maps to HTTP 500.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ProcessingError wraps a codec failure. Fatal processing errors mean the
// upload could not be kept at all (the original was removed); non-fatal
// ones leave the original in place with derivatives missing.
type ProcessingError struct {
	Stage string
	Fatal bool
	Err   error
}

func (e *ProcessingError) Error() string {
	kind := "recoverable"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("%s processing error in %s: %v", kind, e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsFatalProcessing reports whether err is a processing failure that
// discarded the upload.
func IsFatalProcessing(err error) bool {
	var pe *ProcessingError
	return errors.As(err, &pe) && pe.Fatal
}
