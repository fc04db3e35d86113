package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/bankroll/internal/store/storetest"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUserID = "google-user-1"
	testEmail  = "player@example.com"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestStoreLedgerFlow(test *testing.T) {
	store, pool := openTestStore(test)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `insert into users(id, email) values ($1, $2)`, testUserID, testEmail)
	require.NoError(test, err)

	service, err := bankroll.NewService(store, func() time.Time { return testNow })
	require.NoError(test, err)
	userID, err := bankroll.NewUserID(testUserID)
	require.NoError(test, err)
	details, err := bankroll.NewBetDetails("Flamengo x Palmeiras", "Over 2.5", "football")
	require.NoError(test, err)

	_, err = service.SetInitialBalance(ctx, userID, mustAmount(test, "100"))
	require.NoError(test, err)
	bet, err := service.PlaceBet(ctx, userID, details, mustOdd(test, "1.72"), mustAmount(test, "20"))
	require.NoError(test, err)
	settled, err := service.SettleBet(ctx, userID, bet.ID, bankroll.ResultGreen)
	require.NoError(test, err)
	require.Equal(test, "14.40", settled.Profit.StringFixed(2))

	_, err = service.Deposit(ctx, userID, mustAmount(test, "10.50"))
	require.NoError(test, err)

	history, err := service.History(ctx, userID, 0)
	require.NoError(test, err)
	require.Len(test, history.Bets, 1)
	require.Len(test, history.Transactions, 1)
	require.True(test, history.Account.CurrentBalance.Equal(decimal.RequireFromString("124.90")))
	require.True(test, bankroll.LedgerSum(history.Account.InitialBalance, history.Bets, history.Transactions).Equal(history.Account.CurrentBalance))

	require.NoError(test, service.DeleteBet(ctx, userID, bet.ID))
	_, err = store.GetBet(ctx, userID, bet.ID)
	require.ErrorIs(test, err, bankroll.ErrUnknownBet)
}

func TestStoreUpdateAccountRejectsStaleVersion(test *testing.T) {
	store, pool := openTestStore(test)
	ctx := context.Background()
	_, err := pool.Exec(ctx, `insert into users(id, email) values ($1, $2)`, testUserID, testEmail)
	require.NoError(test, err)
	userID, err := bankroll.NewUserID(testUserID)
	require.NoError(test, err)

	account, err := store.GetAccount(ctx, userID)
	require.NoError(test, err)
	account.CurrentBalance = decimal.NewFromInt(5)
	require.NoError(test, store.UpdateAccount(ctx, account))
	require.ErrorIs(test, store.UpdateAccount(ctx, account), bankroll.ErrStorageConflict)

	_, err = store.GetAccount(ctx, mustUserID(test, "missing"))
	require.ErrorIs(test, err, bankroll.ErrUnknownAccount)
}

func openTestStore(test *testing.T) (*Store, *pgxpool.Pool) {
	test.Helper()
	databaseURL := storetest.StartPostgres(test)
	require.NoError(test, migrations.Up(databaseURL, zap.NewNop()))
	pool, err := pgxpool.New(context.Background(), databaseURL)
	require.NoError(test, err)
	test.Cleanup(pool.Close)
	return New(pool), pool
}

func mustAmount(test *testing.T, raw string) bankroll.Amount {
	test.Helper()
	value, err := bankroll.ParseAmount(raw)
	require.NoError(test, err)
	return value
}

func mustOdd(test *testing.T, raw string) bankroll.Odd {
	test.Helper()
	value, err := bankroll.ParseOdd(raw)
	require.NoError(test, err)
	return value
}

func mustUserID(test *testing.T, raw string) bankroll.UserID {
	test.Helper()
	value, err := bankroll.NewUserID(raw)
	require.NoError(test, err)
	return value
}
