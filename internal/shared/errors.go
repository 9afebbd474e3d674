package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any mutation.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock is returned when an outbound movement would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidStateTransition is returned when a document is not in a state that allows the operation.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrAlreadyReversed is returned on a second reversal of the same document.
	ErrAlreadyReversed = fmt.Errorf("%w: document already reversed", ErrInvalidStateTransition)
	// ErrDuplicate indicates the request was already processed.
	ErrDuplicate = errors.New("duplicate request")
)

// TransactionError reports an unexpected failure inside an atomic posting.
// Nothing of the posting is visible when it is returned.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// WrapTransaction classifies err: taxonomy errors pass through untouched,
// anything else becomes a *TransactionError.
func WrapTransaction(op string, err error) error {
	if err == nil {
		return nil
	}
	var txErr *TransactionError
	switch {
	case errors.As(err, &txErr),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrDuplicate):
		return err
	}
	return &TransactionError{Op: op, Err: err}
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
