package payee

import "errors"

// Sentinel kinds for payee list errors.
var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrInvalidAmount  = errors.New("amount is not a number")
	ErrUnknownKind    = errors.New("unknown payee kind")
	ErrNotSelected    = errors.New("payee not selected")
)
