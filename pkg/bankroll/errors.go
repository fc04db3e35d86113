package bankroll

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the bankroll service.
var (
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrAlreadySettled       = errors.New("bet already settled")
	ErrAlreadyInitialized   = errors.New("bankroll already initialized")
	ErrStorageConflict      = errors.New("storage conflict")
	ErrUnknownAccount       = errors.New("unknown account")
	ErrUnknownBet           = errors.New("unknown bet")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidUserID        = fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	ErrInvalidBetID         = fmt.Errorf("%w: invalid bet id", ErrInvalidInput)
	ErrInvalidOdd           = fmt.Errorf("%w: invalid odd", ErrInvalidInput)
	ErrInvalidAmount        = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrInvalidResult        = fmt.Errorf("%w: invalid result", ErrInvalidInput)
	ErrInvalidBetDetails    = fmt.Errorf("%w: invalid bet details", ErrInvalidInput)
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

// LedgerError records where a bankroll failure happened: the layer that
// raised it, the record it touched and the action that failed.
type LedgerError struct {
	Layer  string
	Record string
	Action string
	Err    error
}

func (ledgerError LedgerError) Error() string {
	return fmt.Sprintf("bankroll %s: %s %s: %v", ledgerError.Layer, ledgerError.Action, ledgerError.Record, ledgerError.Err)
}

func (ledgerError LedgerError) Unwrap() error {
	return ledgerError.Err
}

// NewLedgerError annotates err; a nil err stays nil.
func NewLedgerError(layer string, record string, action string, err error) error {
	if err == nil {
		return nil
	}
	return LedgerError{Layer: layer, Record: record, Action: action, Err: err}
}
