package pal

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Kind classifies bridge failures.
type Kind string

const (
	KindInit      Kind = "init"
	KindExec      Kind = "exec"
	KindNotFound  Kind = "not found"
	KindWrongKind Kind = "wrong kind"
	KindInvalid   Kind = "invalid buffer"
	KindClosed    Kind = "closed"
)

// Error is returned by every bridge operation. Compare against the sentinel
// values with errors.Is.
type Error struct {
	Kind  Kind
	Op    string
	Name  string
	Msg   string
	Cause error
}

var (
	ErrInit      = &Error{Kind: KindInit}
	ErrExec      = &Error{Kind: KindExec}
	ErrNotFound  = &Error{Kind: KindNotFound}
	ErrWrongKind = &Error{Kind: KindWrongKind}
	ErrInvalid   = &Error{Kind: KindInvalid}
	ErrClosed    = &Error{Kind: KindClosed}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := "pal: "
	if e.Op != "" {
		msg += e.Op
		if e.Name != "" {
			msg += fmt.Sprintf(" %q", e.Name)
		}
		msg += ": "
	}
	msg += string(e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	} else if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches sentinel errors (those without an Op) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t.Op != "" {
		return false
	}
	return t.Kind == e.Kind
}

// foreignError converts an error raised while running script code.
func foreignError(op, name string, err error) *Error {
	e := &Error{Kind: KindExec, Op: op, Name: name, Cause: err}
	var ex *goja.Exception
	var syntax *goja.CompilerSyntaxError
	switch {
	case errors.As(err, &ex):
		e.Msg = ex.Error()
	case errors.As(err, &syntax):
		e.Msg = syntax.Error()
	}
	return e
}
