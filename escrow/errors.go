package escrow

import (
	"errors"
	"fmt"
)

// ErrNotOnChain is returned by Repair when the effect of an intent cannot be found on chain.
var ErrNotOnChain = errors.New("intent effect not found on chain")

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// PersistenceError is returned when the chain transaction succeeded but the mirror write failed. The chain effect is
// real: TxHash and EscrowID identify it, and the intent stays open for the reconciler.
type PersistenceError struct {
	Op       string
	TxHash   string
	EscrowID string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("escrow %s tx %s succeeded but the mirror write failed: %v", e.Op, e.TxHash, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
