package backend

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure. The query skill's fallback policy keys
// off these values, so the client must map transport errors faithfully.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindConnection         Kind = "connection_error"
	KindFilterNotSupported Kind = "filter_not_supported"
	KindFieldNotFound      Kind = "field_not_found"
	KindRecordNotFound     Kind = "record_not_found"
	KindPermissionDenied   Kind = "permission_denied"
	KindRateLimit          Kind = "rate_limit"
	KindGeneral            Kind = "general"
)

// Error is the typed failure returned by every client operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a typed backend error.
func NewError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf extracts the failure kind, defaulting to general.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindGeneral
}

// IsFilterNotSupported reports whether the store rejected the filter predicate.
func IsFilterNotSupported(err error) bool { return KindOf(err) == KindFilterNotSupported }

// IsFieldNotFound reports whether the store rejected a field name.
func IsFieldNotFound(err error) bool { return KindOf(err) == KindFieldNotFound }

// IsRecordNotFound reports whether a targeted lookup missed.
func IsRecordNotFound(err error) bool { return KindOf(err) == KindRecordNotFound }
