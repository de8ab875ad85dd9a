// Package apperr defines the error kinds shared by the checkout engine.
//
// Every failure surfaced by a service is an *Error carrying a Kind. Callers branch with
// errors.Is against the per-kind sentinels (apperr.ErrOutOfStock, ...) or read the kind
// with KindOf. Validation kinds are raised before any write; PersistenceFailure wraps
// storage errors and is never used for a rule violation.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

const (
	NotFound              Kind = "not_found"
	OutOfStock            Kind = "out_of_stock"
	InsufficientStock     Kind = "insufficient_stock"
	StockBelowReserved    Kind = "stock_below_reserved"
	InvalidAddress        Kind = "invalid_address"
	InvalidDeliveryMethod Kind = "invalid_delivery_method"
	CouponInactive        Kind = "coupon_inactive"
	CouponExpired         Kind = "coupon_expired"
	CouponExhausted       Kind = "coupon_exhausted"
	CouponMismatch        Kind = "coupon_mismatch"
	AlreadyTerminal       Kind = "already_terminal"
	InvalidStatus         Kind = "invalid_status"
	InvalidInput          Kind = "invalid_input"
	NoPhoneOnFile         Kind = "no_phone_on_file"
	Conflict              Kind = "conflict"
	PersistenceFailure    Kind = "persistence_failure"
)

// Error is a classified failure with a short human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrOutOfStock) works for
// every out-of-stock error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrNotFound              = &Error{Kind: NotFound}
	ErrOutOfStock            = &Error{Kind: OutOfStock}
	ErrInsufficientStock     = &Error{Kind: InsufficientStock}
	ErrStockBelowReserved    = &Error{Kind: StockBelowReserved}
	ErrInvalidAddress        = &Error{Kind: InvalidAddress}
	ErrInvalidDeliveryMethod = &Error{Kind: InvalidDeliveryMethod}
	ErrCouponInactive        = &Error{Kind: CouponInactive}
	ErrCouponExpired         = &Error{Kind: CouponExpired}
	ErrCouponExhausted       = &Error{Kind: CouponExhausted}
	ErrCouponMismatch        = &Error{Kind: CouponMismatch}
	ErrAlreadyTerminal       = &Error{Kind: AlreadyTerminal}
	ErrInvalidStatus         = &Error{Kind: InvalidStatus}
	ErrInvalidInput          = &Error{Kind: InvalidInput}
	ErrNoPhoneOnFile         = &Error{Kind: NoPhoneOnFile}
	ErrConflict              = &Error{Kind: Conflict}
	ErrPersistenceFailure    = &Error{Kind: PersistenceFailure}
)

// New returns an *Error of kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Persistence wraps a storage error.
func Persistence(err error, op string) error {
	return Wrap(PersistenceFailure, err, "%s", op)
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the short message of a classified error, falling back to err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsValidation reports whether err is a rule violation rather than an infrastructure failure.
func IsValidation(err error) bool {
	switch KindOf(err) {
	case "", PersistenceFailure, Conflict:
		return false
	}
	return true
}
