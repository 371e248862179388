package pathmap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern indicates a malformed wildcard pattern.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrUnresolvedPlaceholder indicates a template token with no value.
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
)

// InvalidPatternError records the pattern, and the segment when known, that
// failed to compile.
type InvalidPatternError struct {
	Pattern string
	Segment string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
	}
	return fmt.Sprintf("invalid pattern %q: segment %q: %v", e.Pattern, e.Segment, e.Err)
}

func (e *InvalidPatternError) Unwrap() error { return e.Err }

// Is reports ErrInvalidPattern so callers need not know the cause.
func (e *InvalidPatternError) Is(target error) bool { return target == ErrInvalidPattern }

// UnresolvedPlaceholderError records a template token that could not be
// substituted.
type UnresolvedPlaceholderError struct {
	Template string
	Token    string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder %q in template %q", e.Token, e.Template)
}

func (e *UnresolvedPlaceholderError) Is(target error) bool {
	return target == ErrUnresolvedPlaceholder
}
