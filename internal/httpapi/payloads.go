package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/shopspring/decimal"
)

const moneyDigits = 2

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type resetRequest struct {
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

type placeBetRequest struct {
	Game   string          `json:"game"`
	Market string          `json:"market"`
	Sport  string          `json:"sport"`
	Odd    decimal.Decimal `json:"odd"`
	Stake  decimal.Decimal `json:"stake"`
}

type settleBetRequest struct {
	Result string `json:"result"`
}

type editBetRequest struct {
	Game   *string          `json:"game"`
	Market *string          `json:"market"`
	Sport  *string          `json:"sport"`
	Odd    *decimal.Decimal `json:"odd"`
	Stake  *decimal.Decimal `json:"stake"`
	Result *string          `json:"result"`
}

type checkoutRequest struct {
	PlanID    string `json:"planId"`
	TaxID     string `json:"taxId"`
	Cellphone string `json:"cellphone"`
}

type grantsRequest struct {
	Identities  []string   `json:"identities"`
	PlanID      string     `json:"planId"`
	AccessUntil *time.Time `json:"accessUntil"`
}

type accountPayload struct {
	InitialBalance string `json:"initialBalance"`
	CurrentBalance string `json:"currentBalance"`
	Version        int64  `json:"version"`
}

type betPayload struct {
	ID        string    `json:"id"`
	Game      string    `json:"game"`
	Market    string    `json:"market"`
	Sport     string    `json:"sport,omitempty"`
	Odd       string    `json:"odd"`
	Stake     string    `json:"stake"`
	Result    string    `json:"result"`
	Profit    string    `json:"profit"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type transactionPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type statisticsPayload struct {
	BetCount     int    `json:"betCount"`
	SettledCount int    `json:"settledCount"`
	WinCount     int    `json:"winCount"`
	TotalStaked  string `json:"totalStaked"`
	TotalProfit  string `json:"totalProfit"`
	WinRate      string `json:"winRate"`
}

type userPayload struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName,omitempty"`
	Role        string     `json:"role,omitempty"`
	AccessUntil *time.Time `json:"accessUntil,omitempty"`
	Active      bool       `json:"active"`
}

type grantOutcomePayload struct {
	Identity    string     `json:"identity"`
	Target      string     `json:"target,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	AccessUntil *time.Time `json:"accessUntil,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type monthlyRevenuePayload struct {
	Month       string `json:"month"`
	AmountCents int64  `json:"amountCents"`
	Payments    int    `json:"payments"`
}

func newAccountPayload(account bankroll.Account) accountPayload {
	return accountPayload{
		InitialBalance: account.InitialBalance.StringFixed(moneyDigits),
		CurrentBalance: account.CurrentBalance.StringFixed(moneyDigits),
		Version:        account.Version,
	}
}

func newBetPayload(bet bankroll.Bet) betPayload {
	return betPayload{
		ID:        bet.ID.String(),
		Game:      bet.Details.Game,
		Market:    bet.Details.Market,
		Sport:     bet.Details.Sport,
		Odd:       bet.Odd.String(),
		Stake:     bet.Stake.String(),
		Result:    string(bet.Result),
		Profit:    bet.Profit.StringFixed(moneyDigits),
		CreatedAt: bet.CreatedAt.UTC(),
		UpdatedAt: bet.UpdatedAt.UTC(),
	}
}

func newTransactionPayload(transaction bankroll.Transaction) transactionPayload {
	return transactionPayload{
		ID:        transaction.ID,
		Type:      string(transaction.Type),
		Amount:    transaction.Amount.String(),
		CreatedAt: transaction.CreatedAt.UTC(),
	}
}

func newStatisticsPayload(statistics bankroll.Statistics) statisticsPayload {
	return statisticsPayload{
		BetCount:     statistics.BetCount,
		SettledCount: statistics.SettledCount,
		WinCount:     statistics.WinCount,
		TotalStaked:  statistics.TotalStaked.StringFixed(moneyDigits),
		TotalProfit:  statistics.TotalProfit.StringFixed(moneyDigits),
		WinRate:      statistics.WinRate.StringFixed(moneyDigits),
	}
}

func newUserPayload(user access.User, now time.Time) userPayload {
	return userPayload{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		AccessUntil: user.AccessUntil,
		Active:      access.IsActive(user, now),
	}
}

func newGrantOutcomePayload(outcome access.GrantOutcome) grantOutcomePayload {
	if outcome.Err != nil {
		return grantOutcomePayload{Identity: outcome.Identity, Error: outcome.Err.Error()}
	}
	accessUntil := outcome.Result.AccessUntil
	return grantOutcomePayload{
		Identity:    outcome.Identity,
		Target:      string(outcome.Result.Target),
		UserID:      outcome.Result.UserID,
		AccessUntil: &accessUntil,
	}
}
