package control

import (
	"errors"
	"fmt"
)

// Kind classifies a Violation.
type Kind int

const (
	// Unauthorized means the caller is not the guardian.
	Unauthorized Kind = iota + 1
	// Invalid means a parameter failed validation.
	Invalid
)

// Violation is returned for every rejected control call.
type Violation struct {
	Kind    Kind
	Reason  string
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Reason, v.Message)
}

// AsViolation unwraps err to a Violation.
func AsViolation(err error) (*Violation, bool) {
	var v *Violation
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}

func invalid(reason, format string, args ...any) error {
	return &Violation{Kind: Invalid, Reason: reason, Message: fmt.Sprintf(format, args...)}
}
