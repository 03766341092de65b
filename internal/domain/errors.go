package domain

import (
	"errors"
	"fmt"
)

// Fatal errors abort a calculation before any partial state is
// produced. Recoverable conditions are never Go errors: they travel
// inside results as a *CalcError so callers can render partial-success
// messaging.

var (
	// ErrNonPositiveReserves is returned when a pool reserve is zero or
	// negative. Precondition violation, never recoverable.
	ErrNonPositiveReserves = errors.New("pool reserves must be strictly positive")

	// ErrNegativeAmount is returned for a negative trade amount or a
	// negative share quantity.
	ErrNegativeAmount = errors.New("amount must be non-negative")

	// ErrUnknownOutcome is returned for an outcome other than YES/NO.
	ErrUnknownOutcome = errors.New("unknown outcome")

	// ErrUnknownAnswer is returned when a trade targets an answer id
	// that is not part of the contract.
	ErrUnknownAnswer = errors.New("unknown answer")

	// ErrInvalidLimitProb is returned for a limit price outside the
	// tradable probability bounds.
	ErrInvalidLimitProb = errors.New("limit probability out of bounds")

	// ErrWrongMechanism is returned when an operation is applied to a
	// contract mechanism it does not support.
	ErrWrongMechanism = errors.New("operation not supported by contract mechanism")

	// ErrStaleSnapshot is returned by the commit path when the contract
	// version advanced since the snapshot was taken. Retriable.
	ErrStaleSnapshot = errors.New("contract snapshot is stale")
)

// PreconditionError annotates a fatal input violation with the field
// that carried it.
type PreconditionError struct {
	Field string
	Err   error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition [%s]: %v", e.Field, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// RetriableError marks errors the caller may retry (e.g. a stale
// snapshot under optimistic concurrency).
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable reports whether err is worth retrying.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return errors.Is(err, ErrStaleSnapshot)
}

// CalcErrorKind classifies the recoverable conditions a result can
// carry.
type CalcErrorKind string

const (
	// CalcErrorProbBound: the requested amount would push probability
	// outside [MinProb, MaxProb]; the trade was clamped to the maximum
	// fillable amount.
	CalcErrorProbBound CalcErrorKind = "PROB_BOUND"

	// CalcErrorMakerBalance: one or more resting orders matched for
	// less than their nominal remainder because the owner's balance
	// ran out.
	CalcErrorMakerBalance CalcErrorKind = "MAKER_BALANCE"

	// CalcErrorLoanShortfall: sale proceeds did not cover the
	// outstanding loan; the remainder stays owed.
	CalcErrorLoanShortfall CalcErrorKind = "LOAN_SHORTFALL"
)

// CalcError reports a recoverable condition alongside a usable result.
// RequestedAmount/FilledAmount quantify the shortfall where relevant.
type CalcError struct {
	Kind            CalcErrorKind `json:"kind"`
	RequestedAmount float64       `json:"requested_amount,omitempty"`
	FilledAmount    float64       `json:"filled_amount,omitempty"`
	Detail          string        `json:"detail,omitempty"`
}

func (e *CalcError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}
