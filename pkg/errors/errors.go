// Package errors carries the relayer's error taxonomy. Every failure that
// crosses a component boundary is one of the typed errors below so callers can
// branch with errors.Is / errors.As instead of string matching.
package errors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
	New    = errors.New
)

// ErrNotFound is returned by the repository when no order exists under the
// requested hash. Surfaced to HTTP callers as a 404.
var ErrNotFound = errors.New("order not found")

// InvalidOrderFieldError reports a malformed order field (negative amount,
// fractional amount, value wider than 256 bits, bad address). Orders carrying
// one are rejected at ingestion and never persisted.
type InvalidOrderFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidOrderFieldError) Error() string {
	return fmt.Sprintf("invalid order field %s: %s", e.Field, e.Reason)
}

// NewInvalidOrderField builds an InvalidOrderFieldError for the given field.
func NewInvalidOrderField(field, reason string) *InvalidOrderFieldError {
	return &InvalidOrderFieldError{Field: field, Reason: reason}
}

// DeserializationError reports a wire payload that failed schema validation:
// a missing required field, a numeric string that is not a non-negative
// integer, or an unparsable address or signature component. It is never
// downgraded to a zero value.
type DeserializationError struct {
	Field  string
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cannot deserialize field %s: %s", e.Field, e.Reason)
}

// NewDeserialization builds a DeserializationError for the given field.
func NewDeserialization(field, reason string) *DeserializationError {
	return &DeserializationError{Field: field, Reason: reason}
}

// SettlementQueryError wraps a transient failure reaching the settlement
// authority. It is retryable and must never be conflated with order
// invalidity.
type SettlementQueryError struct {
	cause error
}

func (e *SettlementQueryError) Error() string {
	return fmt.Sprintf("settlement query failed: %v", e.cause)
}

func (e *SettlementQueryError) Unwrap() error { return e.cause }

// NewSettlementQuery wraps err as a SettlementQueryError.
func NewSettlementQuery(err error) *SettlementQueryError {
	return &SettlementQueryError{cause: err}
}

// InvalidOrderError reports that the settlement authority considers the order
// unfillable (cancelled, expired or exhausted). Terminal: the order is
// rejected or deleted.
type InvalidOrderError struct {
	OrderHash common.Hash
	Reason    string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("order %s is not fillable: %s", e.OrderHash.Hex(), e.Reason)
}

// NewInvalidOrder builds an InvalidOrderError for the given order hash.
func NewInvalidOrder(hash common.Hash, reason string) *InvalidOrderError {
	return &InvalidOrderError{OrderHash: hash, Reason: reason}
}
