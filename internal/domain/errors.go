package domain

import (
	"errors"
	"fmt"
)

// Business rejections. Callers match them with errors.Is; the message is
// what gets reported back to the strategy or API client.
var (
	ErrPortfolioNotFound   = errors.New("portfolio not found")
	ErrPortfolioInactive   = errors.New("portfolio not active")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSignalNotFound      = errors.New("signal not found")
	ErrSignalExecuted      = errors.New("signal already executed")
	ErrSignalExpired       = errors.New("signal expired")
	ErrInvalidSignal       = errors.New("invalid signal")
	ErrPositionNotFound    = errors.New("position not found")
	ErrInvalidExitPrice    = errors.New("invalid exit price")
	ErrInvalidPortfolio    = errors.New("invalid portfolio")
	ErrRestrictedField     = errors.New("restricted field")
	ErrUnknownField        = errors.New("unknown field")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidFilter       = errors.New("invalid filter")
	ErrQuotesUnavailable   = errors.New("quotes unavailable")
)

// InsufficientBalanceError carries the amounts that made a trade fail.
type InsufficientBalanceError struct {
	Required  float64
	Available float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required $%.2f, available $%.2f", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// FieldError names the portfolio field an update tried to touch.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Field) }

func (e *FieldError) Unwrap() error { return e.Err }

// IsRejection reports whether err is a business or validation outcome rather
// than an infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrPortfolioNotFound,
		ErrPortfolioInactive,
		ErrInsufficientBalance,
		ErrSignalNotFound,
		ErrSignalExecuted,
		ErrSignalExpired,
		ErrInvalidSignal,
		ErrPositionNotFound,
		ErrInvalidExitPrice,
		ErrInvalidPortfolio,
		ErrRestrictedField,
		ErrUnknownField,
		ErrInvalidTransition,
		ErrInvalidFilter,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
