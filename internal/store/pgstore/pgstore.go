package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	errorLayerStore            = "store"
	errorRecordAccount         = "account"
	errorRecordBet             = "bet"
	errorRecordTransaction     = "transaction"
	errorActionBegin           = "begin"
	errorActionCommit          = "commit"
	errorActionDelete          = "delete"
	errorActionGet             = "get"
	errorActionInsert          = "insert"
	errorActionInvalid         = "invalid"
	errorActionList            = "list"
	errorActionUpdate          = "update"

	sqlSelectAccount = `
		select initial_balance::text, current_balance::text, version
		from users
		where id = $1
	`

	sqlUpdateAccount = `
		update users
		set initial_balance = $3::numeric, current_balance = $4::numeric, version = version + 1, updated_at = now()
		where id = $1 and version = $2
	`

	sqlInsertBet = `
		insert into bets(id, user_id, game, market, sport, odd, stake, result, profit, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9::numeric, $10, $11)
	`

	sqlSelectBet = `
		select id, user_id, game, market, sport, odd::text, stake::text, result, profit::text, created_at, updated_at
		from bets
		where id = $1 and user_id = $2
	`

	sqlUpdateBet = `
		update bets
		set game = $3, market = $4, sport = $5, odd = $6::numeric, stake = $7::numeric,
			result = $8, profit = $9::numeric, updated_at = $10
		where id = $1 and user_id = $2
	`

	sqlDeleteBet = `delete from bets where id = $1 and user_id = $2`

	sqlDeleteBets = `delete from bets where user_id = $1`

	sqlListBets = `
		select id, user_id, game, market, sport, odd::text, stake::text, result, profit::text, created_at, updated_at
		from bets
		where user_id = $1
		order by created_at desc, id desc
		limit nullif($2, 0)
	`

	sqlInsertTransaction = `
		insert into bankroll_transactions(id, user_id, type, amount, created_at)
		values ($1, $2, $3, $4::numeric, $5)
	`

	sqlDeleteTransactions = `delete from bankroll_transactions where user_id = $1`

	sqlListTransactions = `
		select id, user_id, type, amount::text, created_at
		from bankroll_transactions
		where user_id = $1
		order by created_at desc, id desc
		limit nullif($2, 0)
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements bankroll.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	queries
}

// TxStore implements bankroll.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
	queries
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{db: pool}}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore bankroll.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorRecordTransaction, errorActionBegin, err)
	}
	transactionStore := &TxStore{tx: tx, queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if isTransientConflict(err) {
			return wrapStoreError(errorRecordTransaction, errorActionCommit, errors.Join(bankroll.ErrStorageConflict, err))
		}
		return wrapStoreError(errorRecordTransaction, errorActionCommit, err)
	}
	return nil
}

// WithTx on an open transaction runs fn inside a savepoint.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore bankroll.Store) error) error {
	nested, err := store.tx.Begin(ctx)
	if err != nil {
		return wrapStoreError(errorRecordTransaction, errorActionBegin, err)
	}
	if err := fn(ctx, &TxStore{tx: nested, queries: queries{db: nested}}); err != nil {
		_ = nested.Rollback(ctx)
		return err
	}
	if err := nested.Commit(ctx); err != nil {
		return wrapStoreError(errorRecordTransaction, errorActionCommit, err)
	}
	return nil
}

func (q queries) GetAccount(ctx context.Context, userID bankroll.UserID) (bankroll.Account, error) {
	var initialText, currentText string
	var version int64
	err := q.db.QueryRow(ctx, sqlSelectAccount, userID.String()).Scan(&initialText, &currentText, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return bankroll.Account{}, bankroll.ErrUnknownAccount
	}
	if err != nil {
		return bankroll.Account{}, wrapQueryError(errorRecordAccount, errorActionGet, err)
	}
	initial, err := decimal.NewFromString(initialText)
	if err != nil {
		return bankroll.Account{}, wrapStoreError(errorRecordAccount, errorActionInvalid, err)
	}
	current, err := decimal.NewFromString(currentText)
	if err != nil {
		return bankroll.Account{}, wrapStoreError(errorRecordAccount, errorActionInvalid, err)
	}
	return bankroll.Account{UserID: userID, InitialBalance: initial, CurrentBalance: current, Version: version}, nil
}

func (q queries) UpdateAccount(ctx context.Context, account bankroll.Account) error {
	tag, err := q.db.Exec(ctx, sqlUpdateAccount,
		account.UserID.String(),
		account.Version,
		account.InitialBalance.String(),
		account.CurrentBalance.String(),
	)
	if err != nil {
		return wrapQueryError(errorRecordAccount, errorActionUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return bankroll.ErrStorageConflict
	}
	return nil
}

func (q queries) InsertBet(ctx context.Context, bet bankroll.Bet) error {
	_, err := q.db.Exec(ctx, sqlInsertBet,
		bet.ID.String(),
		bet.UserID.String(),
		bet.Details.Game,
		bet.Details.Market,
		bet.Details.Sport,
		bet.Odd.String(),
		bet.Stake.Decimal().String(),
		string(bet.Result),
		bet.Profit.String(),
		bet.CreatedAt.UTC(),
		bet.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapQueryError(errorRecordBet, errorActionInsert, err)
	}
	return nil
}

func (q queries) GetBet(ctx context.Context, userID bankroll.UserID, betID bankroll.BetID) (bankroll.Bet, error) {
	bet, err := scanBet(q.db.QueryRow(ctx, sqlSelectBet, betID.String(), userID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return bankroll.Bet{}, bankroll.ErrUnknownBet
	}
	if err != nil {
		return bankroll.Bet{}, wrapQueryError(errorRecordBet, errorActionGet, err)
	}
	return bet, nil
}

func (q queries) UpdateBet(ctx context.Context, bet bankroll.Bet) error {
	tag, err := q.db.Exec(ctx, sqlUpdateBet,
		bet.ID.String(),
		bet.UserID.String(),
		bet.Details.Game,
		bet.Details.Market,
		bet.Details.Sport,
		bet.Odd.String(),
		bet.Stake.Decimal().String(),
		string(bet.Result),
		bet.Profit.String(),
		bet.UpdatedAt.UTC(),
	)
	if err != nil {
		return wrapQueryError(errorRecordBet, errorActionUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return bankroll.ErrUnknownBet
	}
	return nil
}

func (q queries) DeleteBet(ctx context.Context, userID bankroll.UserID, betID bankroll.BetID) error {
	tag, err := q.db.Exec(ctx, sqlDeleteBet, betID.String(), userID.String())
	if err != nil {
		return wrapQueryError(errorRecordBet, errorActionDelete, err)
	}
	if tag.RowsAffected() == 0 {
		return bankroll.ErrUnknownBet
	}
	return nil
}

func (q queries) DeleteBets(ctx context.Context, userID bankroll.UserID) error {
	if _, err := q.db.Exec(ctx, sqlDeleteBets, userID.String()); err != nil {
		return wrapQueryError(errorRecordBet, errorActionDelete, err)
	}
	return nil
}

func (q queries) InsertTransaction(ctx context.Context, transaction bankroll.Transaction) error {
	_, err := q.db.Exec(ctx, sqlInsertTransaction,
		transaction.ID,
		transaction.UserID.String(),
		string(transaction.Type),
		transaction.Amount.Decimal().String(),
		transaction.CreatedAt.UTC(),
	)
	if err != nil {
		return wrapQueryError(errorRecordTransaction, errorActionInsert, err)
	}
	return nil
}

func (q queries) DeleteTransactions(ctx context.Context, userID bankroll.UserID) error {
	if _, err := q.db.Exec(ctx, sqlDeleteTransactions, userID.String()); err != nil {
		return wrapQueryError(errorRecordTransaction, errorActionDelete, err)
	}
	return nil
}

func (q queries) ListBets(ctx context.Context, userID bankroll.UserID, limit int) ([]bankroll.Bet, error) {
	rows, err := q.db.Query(ctx, sqlListBets, userID.String(), nonNegative(limit))
	if err != nil {
		return nil, wrapQueryError(errorRecordBet, errorActionList, err)
	}
	defer rows.Close()
	bets := make([]bankroll.Bet, 0)
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, wrapStoreError(errorRecordBet, errorActionInvalid, err)
		}
		bets = append(bets, bet)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(errorRecordBet, errorActionList, err)
	}
	return bets, nil
}

func (q queries) ListTransactions(ctx context.Context, userID bankroll.UserID, limit int) ([]bankroll.Transaction, error) {
	rows, err := q.db.Query(ctx, sqlListTransactions, userID.String(), nonNegative(limit))
	if err != nil {
		return nil, wrapQueryError(errorRecordTransaction, errorActionList, err)
	}
	defer rows.Close()
	transactions := make([]bankroll.Transaction, 0)
	for rows.Next() {
		var id, userIDValue, typeValue, amountText string
		var createdAt time.Time
		if err := rows.Scan(&id, &userIDValue, &typeValue, &amountText, &createdAt); err != nil {
			return nil, wrapStoreError(errorRecordTransaction, errorActionInvalid, err)
		}
		transaction, err := newTransaction(id, userIDValue, typeValue, amountText, createdAt)
		if err != nil {
			return nil, wrapStoreError(errorRecordTransaction, errorActionInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(errorRecordTransaction, errorActionList, err)
	}
	return transactions, nil
}

func scanBet(row pgx.Row) (bankroll.Bet, error) {
	var id, userIDValue, game, market, sport, oddText, stakeText, resultValue, profitText string
	var createdAt, updatedAt time.Time
	if err := row.Scan(&id, &userIDValue, &game, &market, &sport, &oddText, &stakeText, &resultValue, &profitText, &createdAt, &updatedAt); err != nil {
		return bankroll.Bet{}, err
	}
	betID, err := bankroll.NewBetID(id)
	if err != nil {
		return bankroll.Bet{}, err
	}
	userID, err := bankroll.NewUserID(userIDValue)
	if err != nil {
		return bankroll.Bet{}, err
	}
	details, err := bankroll.NewBetDetails(game, market, sport)
	if err != nil {
		return bankroll.Bet{}, err
	}
	odd, err := bankroll.ParseOdd(oddText)
	if err != nil {
		return bankroll.Bet{}, err
	}
	stake, err := bankroll.ParseAmount(stakeText)
	if err != nil {
		return bankroll.Bet{}, err
	}
	result, err := bankroll.ParseResult(resultValue)
	if err != nil {
		return bankroll.Bet{}, err
	}
	profit, err := decimal.NewFromString(profitText)
	if err != nil {
		return bankroll.Bet{}, err
	}
	return bankroll.Bet{
		ID:        betID,
		UserID:    userID,
		Details:   details,
		Odd:       odd,
		Stake:     stake,
		Result:    result,
		Profit:    profit,
		CreatedAt: createdAt.UTC(),
		UpdatedAt: updatedAt.UTC(),
	}, nil
}

func newTransaction(id string, userIDValue string, typeValue string, amountText string, createdAt time.Time) (bankroll.Transaction, error) {
	userID, err := bankroll.NewUserID(userIDValue)
	if err != nil {
		return bankroll.Transaction{}, err
	}
	amount, err := bankroll.ParseAmount(amountText)
	if err != nil {
		return bankroll.Transaction{}, err
	}
	transactionType := bankroll.TransactionType(typeValue)
	if transactionType != bankroll.TransactionDeposit && transactionType != bankroll.TransactionWithdrawal {
		return bankroll.Transaction{}, bankroll.ErrInvalidInput
	}
	return bankroll.Transaction{
		ID:        id,
		UserID:    userID,
		Type:      transactionType,
		Amount:    amount,
		CreatedAt: createdAt.UTC(),
	}, nil
}

func nonNegative(limit int) int {
	if limit < 0 {
		return 0
	}
	return limit
}

func wrapStoreError(record string, action string, err error) error {
	return bankroll.NewLedgerError(errorLayerStore, record, action, err)
}

// wrapQueryError marks serialization failures and deadlocks as retryable conflicts.
func wrapQueryError(record string, action string, err error) error {
	if isTransientConflict(err) {
		return wrapStoreError(record, action, errors.Join(bankroll.ErrStorageConflict, err))
	}
	return wrapStoreError(record, action, err)
}

func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	return false
}
