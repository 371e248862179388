package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned when a file name has no known archive suffix.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrPathTraversal is returned when an entry would be written outside the
	// target directory.
	ErrPathTraversal = errors.New("entry escapes target directory")

	// ErrArchiveRead is returned when the archive stream is corrupt, truncated
	// or unreadable.
	ErrArchiveRead = errors.New("archive read failed")

	// ErrIO is returned when creating directories or writing files fails.
	ErrIO = errors.New("extraction i/o failed")

	// ErrLimitExceeded is returned when an extraction limit is exceeded.
	ErrLimitExceeded = errors.New("extraction limit exceeded")
)

// Error records the archive, and the entry when known, of a failed operation.
type Error struct {
	Op      string
	Archive string
	Entry   string
	Err     error
}

func (e *Error) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Archive, e.Err)
	}
	return fmt.Sprintf("%s %s: entry %q: %v", e.Op, e.Archive, e.Entry, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, archive, entry string, kind, cause error) *Error {
	err := kind
	if cause != nil {
		err = fmt.Errorf("%w: %w", kind, cause)
	}
	return &Error{Op: op, Archive: archive, Entry: entry, Err: err}
}
