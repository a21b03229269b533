// Package corefiber holds the root-level error taxonomy used by the
// clientchannel and rangereader packages.
//
// Grounded on api.Error/api.ErrorCode in the teacher, narrowed to the
// taxonomy this runtime actually produces: OK, InvalidArgument, Transport,
// Aborted, EOF, Internal.
package corefiber

import "fmt"

// Code classifies a Status. The zero value is CodeOK.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeTransport
	CodeAborted
	CodeEOF
	CodeInternal
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeTransport:
		return "Transport"
	case CodeAborted:
		return "Aborted"
	case CodeEOF:
		return "EOF"
	case CodeInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Status pairs a Code with an optional wrapped cause, and implements error
// so it composes with errors.Is/errors.As and fmt's %w verb.
type Status struct {
	Code    Code
	Message string
	Cause   error
}

// OK is the zero Status, equivalent to "no error".
var OK = Status{Code: CodeOK}

// New constructs a Status with no wrapped cause.
func New(code Code, message string) Status {
	return Status{Code: code, Message: message}
}

// Wrap constructs a Status carrying cause, following the teacher's
// fmt.Errorf("...: %w", err) idiom throughout.
func Wrap(code Code, cause error, message string) Status {
	return Status{Code: code, Message: message, Cause: cause}
}

func (s Status) Error() string {
	if s.Cause == nil {
		return fmt.Sprintf("%s: %s", s.Code, s.Message)
	}
	return fmt.Sprintf("%s: %s: %v", s.Code, s.Message, s.Cause)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (s Status) Unwrap() error { return s.Cause }

// IsOK reports whether s represents success.
func (s Status) IsOK() bool { return s.Code == CodeOK }
