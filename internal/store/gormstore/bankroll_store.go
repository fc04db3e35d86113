package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	"gorm.io/gorm"
)

// BankrollStore implements bankroll.Store using GORM.
type BankrollStore struct {
	db *gorm.DB
}

// WithTx executes fn within a transaction. Lock contention surfaces as
// bankroll.ErrStorageConflict so the service retries it.
func (store *BankrollStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore bankroll.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &BankrollStore{db: transaction})
	})
	if isTransientConflict(err) {
		return wrapStoreError(errorRecordAccount, errorActionUpdate, errors.Join(bankroll.ErrStorageConflict, err))
	}
	return err
}

func (store *BankrollStore) GetAccount(ctx context.Context, userID bankroll.UserID) (bankroll.Account, error) {
	var row User
	err := store.db.WithContext(ctx).
		Select("id", "initial_balance", "current_balance", "version").
		Where("id = ?", userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bankroll.Account{}, bankroll.ErrUnknownAccount
	}
	if err != nil {
		return bankroll.Account{}, wrapStoreError(errorRecordAccount, errorActionGet, err)
	}
	return bankroll.Account{
		UserID:         userID,
		InitialBalance: row.InitialBalance,
		CurrentBalance: row.CurrentBalance,
		Version:        row.Version,
	}, nil
}

func (store *BankrollStore) UpdateAccount(ctx context.Context, account bankroll.Account) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ? AND version = ?", account.UserID.String(), account.Version).
		Updates(map[string]any{
			"initial_balance": account.InitialBalance,
			"current_balance": account.CurrentBalance,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		if isTransientConflict(result.Error) {
			return wrapStoreError(errorRecordAccount, errorActionUpdate, errors.Join(bankroll.ErrStorageConflict, result.Error))
		}
		return wrapStoreError(errorRecordAccount, errorActionUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return bankroll.ErrStorageConflict
	}
	return nil
}

func (store *BankrollStore) InsertBet(ctx context.Context, bet bankroll.Bet) error {
	row := betRow(bet)
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorRecordBet, errorActionInsert, err)
	}
	return nil
}

func (store *BankrollStore) GetBet(ctx context.Context, userID bankroll.UserID, betID bankroll.BetID) (bankroll.Bet, error) {
	var row Bet
	err := store.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", betID.String(), userID.String()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return bankroll.Bet{}, bankroll.ErrUnknownBet
	}
	if err != nil {
		return bankroll.Bet{}, wrapStoreError(errorRecordBet, errorActionGet, err)
	}
	return mapBet(row)
}

func (store *BankrollStore) UpdateBet(ctx context.Context, bet bankroll.Bet) error {
	result := store.db.WithContext(ctx).
		Model(&Bet{}).
		Where("id = ? AND user_id = ?", bet.ID.String(), bet.UserID.String()).
		Updates(map[string]any{
			"game":       bet.Details.Game,
			"market":     bet.Details.Market,
			"sport":      bet.Details.Sport,
			"odd":        bet.Odd.Decimal(),
			"stake":      bet.Stake.Decimal(),
			"result":     string(bet.Result),
			"profit":     bet.Profit,
			"updated_at": bet.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorRecordBet, errorActionUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return bankroll.ErrUnknownBet
	}
	return nil
}

func (store *BankrollStore) DeleteBet(ctx context.Context, userID bankroll.UserID, betID bankroll.BetID) error {
	result := store.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", betID.String(), userID.String()).
		Delete(&Bet{})
	if result.Error != nil {
		return wrapStoreError(errorRecordBet, errorActionDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return bankroll.ErrUnknownBet
	}
	return nil
}

func (store *BankrollStore) DeleteBets(ctx context.Context, userID bankroll.UserID) error {
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&Bet{}).Error; err != nil {
		return wrapStoreError(errorRecordBet, errorActionDelete, err)
	}
	return nil
}

func (store *BankrollStore) InsertTransaction(ctx context.Context, transaction bankroll.Transaction) error {
	row := BankrollTransaction{
		ID:        transaction.ID,
		UserID:    transaction.UserID.String(),
		Type:      string(transaction.Type),
		Amount:    transaction.Amount.Decimal(),
		CreatedAt: transaction.CreatedAt.UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorRecordTransaction, errorActionInsert, err)
	}
	return nil
}

func (store *BankrollStore) DeleteTransactions(ctx context.Context, userID bankroll.UserID) error {
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&BankrollTransaction{}).Error; err != nil {
		return wrapStoreError(errorRecordTransaction, errorActionDelete, err)
	}
	return nil
}

func (store *BankrollStore) ListBets(ctx context.Context, userID bankroll.UserID, limit int) ([]bankroll.Bet, error) {
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []Bet
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorRecordBet, errorActionList, err)
	}
	bets := make([]bankroll.Bet, 0, len(rows))
	for _, row := range rows {
		bet, err := mapBet(row)
		if err != nil {
			return nil, err
		}
		bets = append(bets, bet)
	}
	return bets, nil
}

func (store *BankrollStore) ListTransactions(ctx context.Context, userID bankroll.UserID, limit int) ([]bankroll.Transaction, error) {
	query := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []BankrollTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorRecordTransaction, errorActionList, err)
	}
	transactions := make([]bankroll.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func betRow(bet bankroll.Bet) Bet {
	return Bet{
		ID:        bet.ID.String(),
		UserID:    bet.UserID.String(),
		Game:      bet.Details.Game,
		Market:    bet.Details.Market,
		Sport:     bet.Details.Sport,
		Odd:       bet.Odd.Decimal(),
		Stake:     bet.Stake.Decimal(),
		Result:    string(bet.Result),
		Profit:    bet.Profit,
		CreatedAt: bet.CreatedAt.UTC(),
		UpdatedAt: bet.UpdatedAt.UTC(),
	}
}

func mapBet(row Bet) (bankroll.Bet, error) {
	betID, err := bankroll.NewBetID(row.ID)
	if err != nil {
		return bankroll.Bet{}, err
	}
	userID, err := bankroll.NewUserID(row.UserID)
	if err != nil {
		return bankroll.Bet{}, err
	}
	details, err := bankroll.NewBetDetails(row.Game, row.Market, row.Sport)
	if err != nil {
		return bankroll.Bet{}, err
	}
	odd, err := bankroll.NewOdd(row.Odd)
	if err != nil {
		return bankroll.Bet{}, err
	}
	stake, err := bankroll.NewAmount(row.Stake)
	if err != nil {
		return bankroll.Bet{}, err
	}
	result, err := bankroll.ParseResult(row.Result)
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
		Profit:    row.Profit,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func mapTransaction(row BankrollTransaction) (bankroll.Transaction, error) {
	userID, err := bankroll.NewUserID(row.UserID)
	if err != nil {
		return bankroll.Transaction{}, err
	}
	amount, err := bankroll.NewAmount(row.Amount)
	if err != nil {
		return bankroll.Transaction{}, err
	}
	transactionType := bankroll.TransactionType(row.Type)
	if transactionType != bankroll.TransactionDeposit && transactionType != bankroll.TransactionWithdrawal {
		return bankroll.Transaction{}, wrapStoreError(errorRecordTransaction, errorActionGet, bankroll.ErrInvalidInput)
	}
	return bankroll.Transaction{
		ID:        row.ID,
		UserID:    userID,
		Type:      transactionType,
		Amount:    amount,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}
