// Package apperr defines the business outcomes returned by the order and payment core.
//
// Expected conditions (stock exhaustion, illegal transitions, bad signatures) are returned
// as *Error values carrying a Kind. Anything without a Kind is an unexpected failure.
package apperr

import (
	"errors"
	"fmt"
)

// Kind represents the category of a business failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindInsufficientStock
	KindInvalidTransition
	KindVerificationFailed
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindNotFound:
		return "NOT_FOUND"
	case KindInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case KindInvalidTransition:
		return "INVALID_TRANSITION"
	case KindVerificationFailed:
		return "VERIFICATION_FAILED"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// Error is returned when a request is rejected by business rules.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.ErrNotFound) works
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock, Message: "item no longer available in that quantity"}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition, Message: "invalid transition"}
	ErrVerificationFailed = &Error{Kind: KindVerificationFailed, Message: "payment verification failed"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
)

func InvalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InsufficientStock(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// VerificationFailed always carries the same message so callers learn nothing about
// which part of a signature was wrong.
func VerificationFailed() *Error {
	return &Error{Kind: KindVerificationFailed, Message: ErrVerificationFailed.Message}
}

func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
