// Package apperrors defines the error kinds callers branch on with errors.Is.
package apperrors

import "errors"

var (
	// ErrPrecondition marks a request rejected before any write: missing
	// client, missing file name, empty upload, or an unusable ingest mode.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound marks a referenced row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat marks an input file the table readers cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyTable marks an input with no header or no data rows.
	ErrEmptyTable = errors.New("empty table")
)
