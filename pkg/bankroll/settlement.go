package bankroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// settlementCredit is the amount a result pays back onto the bankroll after the stake was debited.
func settlementCredit(result Result, stake decimal.Decimal, odd decimal.Decimal) decimal.Decimal {
	switch result {
	case ResultGreen:
		return stake.Mul(odd).Round(moneyScale)
	case ResultVoid:
		return stake
	default:
		return decimal.Zero
	}
}

// betEffect is the net amount a bet in the given state has moved the bankroll by.
func betEffect(result Result, stake decimal.Decimal, odd decimal.Decimal) decimal.Decimal {
	return settlementCredit(result, stake, odd).Sub(stake)
}

func betProfit(result Result, stake decimal.Decimal, odd decimal.Decimal) decimal.Decimal {
	if !result.IsSettled() {
		return decimal.Zero
	}
	return betEffect(result, stake, odd)
}

// Effect returns the net amount the bet currently contributes to the balance.
func (bet Bet) Effect() decimal.Decimal {
	return betEffect(bet.Result, bet.Stake.Decimal(), bet.Odd.Decimal())
}

// Effect returns the signed amount the transaction contributes to the balance.
func (transaction Transaction) Effect() decimal.Decimal {
	if transaction.Type == TransactionWithdrawal {
		return transaction.Amount.Decimal().Neg()
	}
	return transaction.Amount.Decimal()
}

// adjusted returns the account with delta applied, refusing to go below zero.
func (account Account) adjusted(delta decimal.Decimal) (Account, error) {
	next := account.CurrentBalance.Add(delta)
	if next.IsNegative() {
		return Account{}, fmt.Errorf("%w: balance %s cannot cover %s", ErrInsufficientBalance, account.CurrentBalance.StringFixed(moneyScale), delta.Neg().StringFixed(moneyScale))
	}
	account.CurrentBalance = next
	return account, nil
}

// settled returns a copy of bet resolved to result with profit recomputed.
func (bet Bet) settled(result Result) Bet {
	bet.Result = result
	bet.Profit = betProfit(result, bet.Stake.Decimal(), bet.Odd.Decimal())
	return bet
}

// patched applies patch to a copy of bet and recomputes profit for the resulting state.
func (bet Bet) patched(patch BetPatch) (Bet, error) {
	details := bet.Details
	if patch.Game != nil {
		details.Game = *patch.Game
	}
	if patch.Market != nil {
		details.Market = *patch.Market
	}
	if patch.Sport != nil {
		details.Sport = *patch.Sport
	}
	normalized, err := NewBetDetails(details.Game, details.Market, details.Sport)
	if err != nil {
		return Bet{}, err
	}
	bet.Details = normalized
	if patch.Odd != nil {
		bet.Odd = *patch.Odd
	}
	if patch.Stake != nil {
		bet.Stake = *patch.Stake
	}
	result := bet.Result
	if patch.Result != nil {
		result = *patch.Result
	}
	return bet.settled(result), nil
}

// LedgerSum returns initial plus the effects of every bet and transaction.
// For a consistent ledger it equals the account's current balance.
func LedgerSum(initial decimal.Decimal, bets []Bet, transactions []Transaction) decimal.Decimal {
	total := initial
	for _, bet := range bets {
		total = total.Add(bet.Effect())
	}
	for _, transaction := range transactions {
		total = total.Add(transaction.Effect())
	}
	return total
}

func summarize(bets []Bet) Statistics {
	statistics := Statistics{
		TotalStaked: decimal.Zero,
		TotalProfit: decimal.Zero,
		WinRate:     decimal.Zero,
	}
	for _, bet := range bets {
		statistics.BetCount++
		statistics.TotalStaked = statistics.TotalStaked.Add(bet.Stake.Decimal())
		statistics.TotalProfit = statistics.TotalProfit.Add(bet.Profit)
		if !bet.Result.IsSettled() {
			continue
		}
		statistics.SettledCount++
		if bet.Result == ResultGreen {
			statistics.WinCount++
		}
	}
	if statistics.SettledCount > 0 {
		statistics.WinRate = decimal.NewFromInt(int64(statistics.WinCount)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(statistics.SettledCount))).
			Round(2)
	}
	return statistics
}
