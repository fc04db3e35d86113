package bankroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UserID identifies a bankroll owner.
type UserID struct {
	value string
}

// BetID identifies a bet record.
type BetID struct {
	value string
}

// Odd is a decimal price strictly greater than one.
type Odd struct {
	value decimal.Decimal
}

// Amount is a strictly positive money value with at most two fractional digits.
type Amount struct {
	value decimal.Decimal
}

// Result defines the bet lifecycle.
type Result string

const (
	ResultPending Result = "pending"
	ResultGreen   Result = "green"
	ResultRed     Result = "red"
	ResultVoid    Result = "void"
)

// resultAliasRefund is the label the legacy clients send for a void bet.
const resultAliasRefund = "reembolso"

// TransactionType enumerates bankroll transaction kinds.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
)

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewBetID validates and normalizes a bet id.
func NewBetID(raw string) (BetID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BetID{}, fmt.Errorf("%w: empty value", ErrInvalidBetID)
	}
	return BetID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BetID) String() string {
	return id.value
}

// NewOdd validates a decimal odd.
func NewOdd(value decimal.Decimal) (Odd, error) {
	if value.LessThanOrEqual(decimal.NewFromInt(1)) {
		return Odd{}, fmt.Errorf("%w: must be greater than one", ErrInvalidOdd)
	}
	if !value.Equal(value.Round(oddScale)) {
		return Odd{}, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidOdd, oddScale)
	}
	return Odd{value: value}, nil
}

// ParseOdd parses a textual odd such as "1.72".
func ParseOdd(raw string) (Odd, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Odd{}, fmt.Errorf("%w: %v", ErrInvalidOdd, err)
	}
	return NewOdd(value)
}

// Decimal returns the odd value.
func (odd Odd) Decimal() decimal.Decimal {
	return odd.value
}

// String returns the canonical decimal text.
func (odd Odd) String() string {
	return odd.value.String()
}

// NewAmount validates a strictly positive money value.
func NewAmount(value decimal.Decimal) (Amount, error) {
	if !value.IsPositive() {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !hasMoneyScale(value) {
		return Amount{}, fmt.Errorf("%w: at most %d fractional digits", ErrInvalidAmount, moneyScale)
	}
	return Amount{value: value}, nil
}

// ParseAmount parses a textual money value such as "20.50".
func ParseAmount(raw string) (Amount, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(value)
}

// Decimal returns the amount value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String returns the amount with two fractional digits.
func (amount Amount) String() string {
	return amount.value.StringFixed(moneyScale)
}

// ParseResult validates a result label. The legacy refund label maps to void.
func ParseResult(raw string) (Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case string(ResultPending), string(ResultGreen), string(ResultRed), string(ResultVoid):
		return Result(normalized), nil
	case resultAliasRefund:
		return ResultVoid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidResult, raw)
	}
}

// IsSettled reports whether the result is terminal.
func (result Result) IsSettled() bool {
	return result == ResultGreen || result == ResultRed || result == ResultVoid
}

// BetDetails carries the descriptive fields of a bet.
type BetDetails struct {
	Game   string
	Market string
	Sport  string
}

// NewBetDetails trims the descriptive fields and requires game and market.
func NewBetDetails(game string, market string, sport string) (BetDetails, error) {
	details := BetDetails{
		Game:   strings.TrimSpace(game),
		Market: strings.TrimSpace(market),
		Sport:  strings.TrimSpace(sport),
	}
	if details.Game == "" {
		return BetDetails{}, fmt.Errorf("%w: empty game", ErrInvalidBetDetails)
	}
	if details.Market == "" {
		return BetDetails{}, fmt.Errorf("%w: empty market", ErrInvalidBetDetails)
	}
	return details, nil
}

// Account is the per-user bankroll aggregate guarded by Version.
type Account struct {
	UserID         UserID
	InitialBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	Version        int64
}

// Bet is a stored wager.
type Bet struct {
	ID        BetID
	UserID    UserID
	Details   BetDetails
	Odd       Odd
	Stake     Amount
	Result    Result
	Profit    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable deposit or withdrawal.
type Transaction struct {
	ID        string
	UserID    UserID
	Type      TransactionType
	Amount    Amount
	CreatedAt time.Time
}

// BetPatch lists the fields an edit may change. Nil fields are left untouched.
type BetPatch struct {
	Game   *string
	Market *string
	Sport  *string
	Odd    *Odd
	Stake  *Amount
	Result *Result
}

// History is the ledger view of one user, newest records first.
type History struct {
	Account      Account
	Bets         []Bet
	Transactions []Transaction
}

// Statistics summarizes a user's betting performance.
type Statistics struct {
	BetCount     int
	SettledCount int
	WinCount     int
	TotalStaked  decimal.Decimal
	TotalProfit  decimal.Decimal
	// WinRate is the percentage of settled bets that were green.
	WinRate decimal.Decimal
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetAccount(ctx context.Context, userID UserID) (Account, error)
	// UpdateAccount writes both balances when the stored version equals account.Version
	// and increments the version. A version mismatch returns ErrStorageConflict.
	UpdateAccount(ctx context.Context, account Account) error
	InsertBet(ctx context.Context, bet Bet) error
	GetBet(ctx context.Context, userID UserID, betID BetID) (Bet, error)
	UpdateBet(ctx context.Context, bet Bet) error
	DeleteBet(ctx context.Context, userID UserID, betID BetID) error
	DeleteBets(ctx context.Context, userID UserID) error
	InsertTransaction(ctx context.Context, transaction Transaction) error
	DeleteTransactions(ctx context.Context, userID UserID) error
	// ListBets returns the newest bets first; limit <= 0 returns all of them.
	ListBets(ctx context.Context, userID UserID, limit int) ([]Bet, error)
	ListTransactions(ctx context.Context, userID UserID, limit int) ([]Transaction, error)
}

func hasMoneyScale(value decimal.Decimal) bool {
	return value.Equal(value.Round(moneyScale))
}
