package runtime

import (
	"fmt"

	"github.com/xirelogy/go-sable/internal/token"
)

// Error is a located diagnostic, used for both compile-time and run-time
// failures. The span points into the original source text.
type Error struct {
	Span    token.Span
	Message string
}

func (e *Error) Error() string {
	if e.Span.Start.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Message)
	}
	return e.Message
}

// Errorf constructs a located error.
func Errorf(span token.Span, format string, args ...any) *Error {
	return &Error{Span: span, Message: fmt.Sprintf(format, args...)}
}

// Locate attaches a span to a plain error, leaving already-located errors
// untouched.
func Locate(span token.Span, err error) error {
	if err == nil {
		return nil
	}
	if le, ok := err.(*Error); ok {
		return le
	}
	return &Error{Span: span, Message: err.Error()}
}
