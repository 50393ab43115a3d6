package core

import (
	"errors"
	"fmt"
)

// ErrInvalidInput matches every InputError through errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InputError reports a malformed input and the field that caused it. The
// engine returns it instead of defaulting so that bad data never reaches
// the points ledger.
type InputError struct {
	Field  string
	Value  string
	Reason string
	Badge  BadgeKey
}

func (e *InputError) Error() string {
	msg := "invalid " + e.Field
	if e.Badge != "" {
		msg = fmt.Sprintf("badge %s: %s", e.Badge, msg)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Is lets errors.Is(err, ErrInvalidInput) match any InputError.
func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }
