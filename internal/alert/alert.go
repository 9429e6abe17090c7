// Package alert raises a notification for every rule an event matched.
package alert

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rafaeljc/vigil/internal/ruleengine"
	"github.com/rafaeljc/vigil/internal/transaction"
)

// Alert records one matched rule for one event.
type Alert struct {
	ID             string          `json:"id"`
	RuleID         int64           `json:"ruleId"`
	Expression     string          `json:"expression"`
	Description    string          `json:"description,omitempty"`
	CIN            string          `json:"cin"`
	DebitAccount   string          `json:"debitAccount"`
	CreditAccount  string          `json:"creditAccount"`
	Amount         decimal.Decimal `json:"amount"`
	TransactedTime time.Time       `json:"transactedTime"`
	DetectedAt     time.Time       `json:"detectedAt"`
}

// New builds the alert for rule matching e.
func New(rule ruleengine.Rule, e *transaction.Event, detectedAt time.Time) Alert {
	return Alert{
		ID:             uuid.NewString(),
		RuleID:         rule.ID,
		Expression:     rule.Expression,
		Description:    rule.Description,
		CIN:            e.CIN,
		DebitAccount:   e.DebitAccount,
		CreditAccount:  e.CreditAccount,
		Amount:         e.Amount,
		TransactedTime: e.TransactedTime,
		DetectedAt:     detectedAt.UTC(),
	}
}

// Sink delivers alerts.
type Sink interface {
	Publish(ctx context.Context, a Alert) error
	// Name labels the sink in metrics and logs.
	Name() string
}
