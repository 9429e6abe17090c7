// Package transaction defines the financial transaction event evaluated by the
// rule pipeline and the codec used to move it across the internal event channel.
package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rafaeljc/vigil/internal/validation"
)

// Names of the variables every rule expression can reference.
const (
	VarDebitAccount               = "debitAccount"
	VarCreditAccount              = "creditAccount"
	VarCIN                        = "cin"
	VarAmount                     = "amount"
	VarTransactedTimeEpochSeconds = "transactedTimeEpochSeconds"
)

// ErrInvalidEvent wraps every event validation failure.
var ErrInvalidEvent = errors.New("invalid transaction event")

// Event is a single financial transaction. It is validated at the system
// boundary and treated as immutable afterwards.
type Event struct {
	DebitAccount   string          `json:"debitAccount" validate:"notblank"`
	CreditAccount  string          `json:"creditAccount" validate:"notblank"`
	CIN            string          `json:"cin" validate:"notblank"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	TransactedTime time.Time       `json:"transactedTime" validate:"required"`
}

// Validate reports the first missing or blank field, wrapped in ErrInvalidEvent.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: event cannot be null", ErrInvalidEvent)
	}
	if err := validation.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return nil
}

// Variables returns the binding exposed to rule expressions.
//
// The amount is narrowed to float64. Expressions compare against double
// literals, so sub-cent precision on very large amounts can be lost here.
func (e *Event) Variables() map[string]any {
	return map[string]any{
		VarDebitAccount:               e.DebitAccount,
		VarCreditAccount:              e.CreditAccount,
		VarCIN:                        e.CIN,
		VarAmount:                     e.Amount.InexactFloat64(),
		VarTransactedTimeEpochSeconds: e.TransactedTime.Unix(),
	}
}

// Equal reports whether both events carry the same values. Amounts compare
// numerically and times compare as instants.
func (e *Event) Equal(o *Event) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.DebitAccount == o.DebitAccount &&
		e.CreditAccount == o.CreditAccount &&
		e.CIN == o.CIN &&
		e.Amount.Equal(o.Amount) &&
		e.TransactedTime.Equal(o.TransactedTime)
}
