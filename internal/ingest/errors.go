package ingest

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a file could not be ingested.
type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindEmptyFile         ErrorKind = "empty_file"
	KindNoHeaders         ErrorKind = "no_headers"
	KindReadFailure       ErrorKind = "read_failure"
)

// Sentinels usable with errors.Is against any *IngestError of the same kind.
var (
	ErrUnsupportedFormat = &IngestError{Kind: KindUnsupportedFormat}
	ErrEmptyFile         = &IngestError{Kind: KindEmptyFile}
	ErrNoHeaders         = &IngestError{Kind: KindNoHeaders}
	ErrReadFailure       = &IngestError{Kind: KindReadFailure}
)

// IngestError is returned for every ingestion failure. The wizard state is
// never advanced when one is returned; the user may retry with another file.
type IngestError struct {
	Kind ErrorKind
	File string
	Err  error
}

func (e *IngestError) Error() string {
	msg := e.Message()
	if e.File != "" {
		msg = fmt.Sprintf("%s: %s", e.File, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Message is the user-facing explanation shown next to the upload control.
func (e *IngestError) Message() string {
	switch e.Kind {
	case KindUnsupportedFormat:
		return "unsupported file type (use .xlsx, .csv, .tsv, .txt, .xls, .pkl or .parquet)"
	case KindEmptyFile:
		return "the file is empty"
	case KindNoHeaders:
		return "no valid column headers found; the first row must contain text"
	case KindReadFailure:
		return "failed to read the file, please try again"
	default:
		return "ingest failed"
	}
}

func (e *IngestError) Unwrap() error { return e.Err }

// Is matches on Kind so callers can compare against the package sentinels.
func (e *IngestError) Is(target error) bool {
	var t *IngestError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind ErrorKind, file string, err error) *IngestError {
	return &IngestError{Kind: kind, File: file, Err: err}
}
