package merge

import (
	"errors"
	"fmt"
)

// ValidationReason says why an input buffer was rejected.
type ValidationReason string

// MergeReason says why a merge did not produce output.
type MergeReason string

const (
	ReasonMalformed ValidationReason = "malformed"
	ReasonEmpty     ValidationReason = "empty"

	ReasonEmptySession MergeReason = "empty_session"
	ReasonMergeFailure MergeReason = "merge_failure"
)

var (
	// ErrMalformed matches validation errors for buffers that are not a PDF container.
	ErrMalformed = errors.New("malformed PDF")
	// ErrEmpty matches validation errors for PDFs without pages.
	ErrEmpty = errors.New("PDF has no pages")
	// ErrEmptySession matches merge errors raised before any document was added.
	ErrEmptySession = errors.New("no PDF files to merge")
	// ErrMergeFailure matches merge errors raised by the PDF codec.
	ErrMergeFailure = errors.New("merge failed")

	ErrIndexOutOfRange = errors.New("document index out of range")
	ErrInvalidOrder    = errors.New("order must be a permutation of the document indexes")
)

// ValidationError is returned by Add and Inspect when a buffer cannot be
// accepted. The session is never modified when it is returned.
type ValidationError struct {
	Reason ValidationReason
	Name   string
	Err    error
}

func (e *ValidationError) Error() string {
	name := e.Name
	if name == "" {
		name = "document"
	}
	switch e.Reason {
	case ReasonEmpty:
		return fmt.Sprintf("%s: PDF file contains no pages", name)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: invalid PDF file: %v", name, e.Err)
		}
		return fmt.Sprintf("%s: invalid PDF file", name)
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Reason == ReasonMalformed
	case ErrEmpty:
		return e.Reason == ReasonEmpty
	}
	return false
}

// MergeError is returned by Merge. No output is produced alongside it.
type MergeError struct {
	Reason MergeReason
	Detail string
	Err    error
}

func (e *MergeError) Error() string {
	if e.Reason == ReasonEmptySession {
		return ErrEmptySession.Error()
	}
	return "error merging PDFs: " + e.Detail
}

func (e *MergeError) Unwrap() error { return e.Err }

func (e *MergeError) Is(target error) bool {
	switch target {
	case ErrEmptySession:
		return e.Reason == ReasonEmptySession
	case ErrMergeFailure:
		return e.Reason == ReasonMergeFailure
	}
	return false
}
