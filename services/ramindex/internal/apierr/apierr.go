// Package apierr defines the error kinds the index reports to callers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindMalformedTrace    Kind = "malformed_trace"
	KindInvalidRange      Kind = "invalid_range"
	KindIllegalSymbol     Kind = "illegal_symbol"
	KindInvalidConversion Kind = "invalid_conversion"
	KindBadRequest        Kind = "bad_request"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// Sentinels for errors.Is; any *Error of the same kind matches.
var (
	ErrMalformedTrace    = &Error{Kind: KindMalformedTrace}
	ErrInvalidRange      = &Error{Kind: KindInvalidRange}
	ErrIllegalSymbol     = &Error{Kind: KindIllegalSymbol}
	ErrInvalidConversion = &Error{Kind: KindInvalidConversion}
	ErrBadRequest        = &Error{Kind: KindBadRequest}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return string(e.Kind) + ": " + e.Message
	case e.Message == "":
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status the RPC layer responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidRange, KindIllegalSymbol, KindBadRequest:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Message is the caller-facing text: the message alone, without the wrapped cause.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
