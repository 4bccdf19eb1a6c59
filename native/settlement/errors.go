package settlement

import (
	"errors"
	"fmt"
	"math/big"

	nativecommon "rfqdesk/native/common"
)

var (
	// ErrUnauthorized is returned when the caller lacks the capability for
	// an operation or does not own the targeted request.
	ErrUnauthorized = nativecommon.ErrUnauthorized
	// ErrNotWhitelisted indicates the caller is not an eligible account.
	ErrNotWhitelisted = fmt.Errorf("%w: account not whitelisted", nativecommon.ErrUnauthorized)

	ErrDeadlineExpired   = errors.New("settlement: deadline expired")
	ErrDeadlineTooFar    = errors.New("settlement: deadline too far")
	ErrAmountTooSmall    = errors.New("settlement: amount too small")
	ErrInvalidPrice      = errors.New("settlement: price must be non-negative")
	ErrPriceOutOfBand    = errors.New("settlement: price out of band")
	ErrLimitExceeded     = errors.New("settlement: volume limit exceeded")
	ErrRequestNotFound   = errors.New("settlement: request not found")
	ErrOracleUnavailable = errors.New("settlement: reference price unavailable")
	ErrOracleStale       = errors.New("settlement: reference price stale")
	ErrPermitsDisabled   = errors.New("settlement: delegated authorization not configured")
)

// PriceErrorKind identifies which side of a bound a price violated.
type PriceErrorKind string

const (
	PriceTooLow  PriceErrorKind = "low"
	PriceTooHigh PriceErrorKind = "high"
)

// PriceError reports a price outside an allowed range: either the band around
// the reference price at creation, or the requester's bound at acceptance.
// It matches ErrPriceOutOfBand under errors.Is.
type PriceError struct {
	Kind  PriceErrorKind
	Price *big.Int
	Bound *big.Int
}

// Error satisfies the error interface.
func (e *PriceError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case PriceTooLow:
		return fmt.Sprintf("settlement: price %s below %s", e.Price, e.Bound)
	case PriceTooHigh:
		return fmt.Sprintf("settlement: price %s above %s", e.Price, e.Bound)
	default:
		return ErrPriceOutOfBand.Error()
	}
}

// Is lets errors.Is(err, ErrPriceOutOfBand) match every PriceError.
func (e *PriceError) Is(target error) bool {
	return target == ErrPriceOutOfBand
}

// Reason maps an engine error onto a short label for metrics and logs.
func Reason(err error) string {
	var priceErr *PriceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &priceErr):
		return "price_" + string(priceErr.Kind)
	case errors.Is(err, ErrNotWhitelisted):
		return "not_whitelisted"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrDeadlineExpired):
		return "deadline_expired"
	case errors.Is(err, ErrDeadlineTooFar):
		return "deadline_too_far"
	case errors.Is(err, ErrAmountTooSmall):
		return "amount_too_small"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrRequestNotFound):
		return "not_found"
	case errors.Is(err, ErrOracleStale):
		return "oracle_stale"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	default:
		return "error"
	}
}
