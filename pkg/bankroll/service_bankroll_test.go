package bankroll

import (
	"context"
	"errors"
	"testing"
)

func TestDepositAndWithdrawAdjustBalance(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "50")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)

	deposit, err := service.Deposit(context.Background(), userID, mustAmount(test, "25.50"))
	if err != nil {
		test.Fatalf("deposit: %v", err)
	}
	if deposit.Type != TransactionDeposit || deposit.ID == "" || !deposit.CreatedAt.Equal(fixedNow) {
		test.Fatalf("unexpected deposit: %+v", deposit)
	}
	withdrawal, err := service.Withdraw(context.Background(), userID, mustAmount(test, "75.50"))
	if err != nil {
		test.Fatalf("withdraw: %v", err)
	}
	if withdrawal.Type != TransactionWithdrawal {
		test.Fatalf("unexpected withdrawal type %s", withdrawal.Type)
	}
	store.assertBalance(test, defaultUserIDValue, "0")
	if len(store.transactions) != 2 {
		test.Fatalf("expected 2 transactions, got %d", len(store.transactions))
	}
	store.assertInvariant(test, defaultUserIDValue)
}

func TestWithdrawRejectsOverdraw(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "10")
	service := mustNewService(test, store)

	_, err := service.Withdraw(context.Background(), mustUserID(test, defaultUserIDValue), mustAmount(test, "10.01"))
	if !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	store.assertBalance(test, defaultUserIDValue, "10")
	if len(store.transactions) != 0 {
		test.Fatalf("expected no transactions, got %d", len(store.transactions))
	}
}

func TestSetInitialBalanceOnlyOnce(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "0")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)

	account, err := service.SetInitialBalance(context.Background(), userID, mustAmount(test, "300"))
	if err != nil {
		test.Fatalf("set initial: %v", err)
	}
	if !account.InitialBalance.Equal(mustDecimal(test, "300")) || !account.CurrentBalance.Equal(mustDecimal(test, "300")) {
		test.Fatalf("unexpected account: %+v", account)
	}
	if account.Version != 2 {
		test.Fatalf("expected version 2, got %d", account.Version)
	}

	_, err = service.SetInitialBalance(context.Background(), userID, mustAmount(test, "100"))
	if !errors.Is(err, ErrAlreadyInitialized) {
		test.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	store.assertBalance(test, defaultUserIDValue, "300")
}

func TestSetInitialBalanceKeepsEarlierDeposits(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "0")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)
	if _, err := service.Deposit(context.Background(), userID, mustAmount(test, "40")); err != nil {
		test.Fatalf("deposit: %v", err)
	}

	if _, err := service.SetInitialBalance(context.Background(), userID, mustAmount(test, "100")); err != nil {
		test.Fatalf("set initial: %v", err)
	}
	store.assertBalance(test, defaultUserIDValue, "140")
	store.assertInvariant(test, defaultUserIDValue)
}

func TestResetBankrollPurgesHistory(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)
	mustPlaceBet(test, service, userID, "2", "30")
	if _, err := service.Deposit(context.Background(), userID, mustAmount(test, "15")); err != nil {
		test.Fatalf("deposit: %v", err)
	}

	account, err := service.ResetBankroll(context.Background(), userID, mustDecimal(test, "500"))
	if err != nil {
		test.Fatalf("reset: %v", err)
	}
	if !account.InitialBalance.Equal(mustDecimal(test, "500")) || !account.CurrentBalance.Equal(mustDecimal(test, "500")) {
		test.Fatalf("unexpected account after reset: %+v", account)
	}
	if len(store.bets) != 0 || len(store.transactions) != 0 {
		test.Fatalf("expected history purged, got %d bets and %d transactions", len(store.bets), len(store.transactions))
	}
	store.assertInvariant(test, defaultUserIDValue)
}

func TestResetBankrollValidatesAmount(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		amount string
	}{
		{name: "negative", amount: "-1"},
		{name: "too precise", amount: "10.001"},
	}

	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test, defaultUserIDValue, "100")
			service := mustNewService(test, store)
			_, err := service.ResetBankroll(context.Background(), mustUserID(test, defaultUserIDValue), mustDecimal(test, testCase.amount))
			if !errors.Is(err, ErrInvalidAmount) {
				test.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if store.txCount != 0 {
				test.Fatalf("expected no transaction, got %d", store.txCount)
			}
		})
	}
}

func TestHistoryListsNewestFirst(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)
	first := mustPlaceBet(test, service, userID, "2", "10")
	second := mustPlaceBet(test, service, userID, "2", "20")
	if _, err := service.Withdraw(context.Background(), userID, mustAmount(test, "5")); err != nil {
		test.Fatalf("withdraw: %v", err)
	}

	history, err := service.History(context.Background(), userID, 1)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(history.Bets) != 1 || history.Bets[0].ID != second.ID {
		test.Fatalf("expected newest bet %s, got %+v", second.ID, history.Bets)
	}
	if len(history.Transactions) != 1 {
		test.Fatalf("expected one transaction, got %d", len(history.Transactions))
	}
	if !history.Account.CurrentBalance.Equal(mustDecimal(test, "65")) {
		test.Fatalf("expected balance 65, got %s", history.Account.CurrentBalance)
	}

	full, err := service.History(context.Background(), userID, 0)
	if err != nil {
		test.Fatalf("history: %v", err)
	}
	if len(full.Bets) != 2 || full.Bets[1].ID != first.ID {
		test.Fatalf("expected both bets, got %+v", full.Bets)
	}
}

func TestStatisticsSummarizesBets(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	service := mustNewService(test, store)
	userID := mustUserID(test, defaultUserIDValue)
	ctx := context.Background()
	won := mustPlaceBet(test, service, userID, "1.72", "20")
	lost := mustPlaceBet(test, service, userID, "2", "10")
	refunded := mustPlaceBet(test, service, userID, "2", "5")
	mustPlaceBet(test, service, userID, "3", "5")
	for betID, outcome := range map[BetID]Result{won.ID: ResultGreen, lost.ID: ResultRed, refunded.ID: ResultVoid} {
		if _, err := service.SettleBet(ctx, userID, betID, outcome); err != nil {
			test.Fatalf("settle: %v", err)
		}
	}

	statistics, err := service.Statistics(ctx, userID)
	if err != nil {
		test.Fatalf("statistics: %v", err)
	}
	if statistics.BetCount != 4 || statistics.SettledCount != 3 || statistics.WinCount != 1 {
		test.Fatalf("unexpected counts: %+v", statistics)
	}
	if !statistics.TotalStaked.Equal(mustDecimal(test, "40")) {
		test.Fatalf("expected total staked 40, got %s", statistics.TotalStaked)
	}
	if !statistics.TotalProfit.Equal(mustDecimal(test, "4.40")) {
		test.Fatalf("expected total profit 4.40, got %s", statistics.TotalProfit)
	}
	if !statistics.WinRate.Equal(mustDecimal(test, "33.33")) {
		test.Fatalf("expected win rate 33.33, got %s", statistics.WinRate)
	}
}

func TestStatisticsReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	store.listBetsError = errStoreFailure
	service := mustNewService(test, store)

	if _, err := service.Statistics(context.Background(), mustUserID(test, defaultUserIDValue)); !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
	if _, err := service.Statistics(context.Background(), mustUserID(test, "ghost")); !errors.Is(err, ErrUnknownAccount) {
		test.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}
