package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled is returned when a run is stopped through its context.
// Callers treat it as a clean reset, not a failure.
var ErrCancelled = errors.New("cancelled")

// ErrDimensionMismatch is returned when embeddings of different lengths are compared.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DirectoryAccessDeniedError reports a directory the scanner was not allowed to list.
type DirectoryAccessDeniedError struct {
	Path string
	Err  error
}

func (e *DirectoryAccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryAccessDeniedError) Unwrap() error { return e.Err }

// DirectoryIOError reports any other failure to list a directory.
type DirectoryIOError struct {
	Path string
	Err  error
}

func (e *DirectoryIOError) Error() string {
	return fmt.Sprintf("failed to read directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryIOError) Unwrap() error { return e.Err }

// FileReadError reports an image file whose bytes could not be read.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// ExtractorInitError is fatal for the session. Missing names the runtime
// components the extractor expected but could not find.
type ExtractorInitError struct {
	Extractor string
	Missing   []string
	Err       error
}

func (e *ExtractorInitError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to initialize %s extractor", e.Extractor)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing runtime dependencies [%s]", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ExtractorInitError) Unwrap() error { return e.Err }

// ExtractorRuntimeError reports a failed extraction call for a batch.
type ExtractorRuntimeError struct {
	BatchSize int
	Err       error
}

func (e *ExtractorRuntimeError) Error() string {
	return fmt.Sprintf("extraction failed for batch of %d: %v", e.BatchSize, e.Err)
}

func (e *ExtractorRuntimeError) Unwrap() error { return e.Err }
