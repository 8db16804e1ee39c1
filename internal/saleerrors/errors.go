package saleerrors

import (
	"errors"
	"fmt"
)

// Kinds. Every error returned by the quick-sale service wraps exactly one of these.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)

// Repository-level errors
var (
	ErrSaleNotFound = fmt.Errorf("%w: quick sale not found", ErrNotFound)
	ErrBidNotFound  = fmt.Errorf("%w: bid not found", ErrNotFound)
)

// Bid errors
var (
	ErrInvalidAmount    = fmt.Errorf("%w: bid amount must be a decimal number", ErrValidation)
	ErrNonPositive      = fmt.Errorf("%w: bid amount must be greater than zero", ErrValidation)
	ErrTooManyDecimals  = fmt.Errorf("%w: bid amount may have at most two decimal places", ErrValidation)
	ErrAmountTooLarge   = fmt.Errorf("%w: bid amount is too large", ErrValidation)
	ErrBidTooLow        = fmt.Errorf("%w: bid must be higher than the current highest bid", ErrValidation)
	ErrBelowReserve     = fmt.Errorf("%w: bid must be at least the reserve price", ErrValidation)
	ErrOutbid           = fmt.Errorf("%w: another bid was accepted first, please bid higher", ErrConflict)
	ErrSaleNotActive    = fmt.Errorf("%w: quick sale is not active", ErrConflict)
	ErrSaleNotStarted   = fmt.Errorf("%w: quick sale has not started yet", ErrConflict)
	ErrSaleEnded        = fmt.Errorf("%w: quick sale has ended", ErrConflict)
	ErrSaleCancelled    = fmt.Errorf("%w: quick sale was cancelled", ErrConflict)
	ErrAlreadyFinalized = fmt.Errorf("%w: quick sale is already finalized", ErrConflict)
)

// Auth errors
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	ErrMissingToken       = fmt.Errorf("%w: authorization token required", ErrUnauthorized)
	ErrForbidden          = fmt.Errorf("%w: admin role required", ErrUnauthorized)
)

// Validation wraps a field-level message in the validation kind.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict wraps a state-conflict message in the conflict kind.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Message strips the kind prefix so handlers can show the specific reason.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, kind := range []error{ErrValidation, ErrConflict, ErrNotFound, ErrUnauthorized} {
		prefix := kind.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
