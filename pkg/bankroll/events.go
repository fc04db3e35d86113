package bankroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger event types published after a commit.
const (
	EventBetPlaced           = "bet.placed"
	EventBetSettled          = "bet.settled"
	EventBetEdited           = "bet.edited"
	EventBetDeleted          = "bet.deleted"
	EventDeposit             = "bankroll.deposit"
	EventWithdrawal          = "bankroll.withdrawal"
	EventBankrollInitialized = "bankroll.initialized"
	EventBankrollReset       = "bankroll.reset"
)

// LedgerEvent describes a committed ledger mutation.
type LedgerEvent struct {
	Type       string          `json:"type"`
	UserID     string          `json:"userId"`
	BetID      string          `json:"betId,omitempty"`
	Result     string          `json:"result,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventPublisher delivers ledger events to downstream consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event LedgerEvent) error
}
