package bankroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Deposit records a deposit and credits the bankroll.
func (service *Service) Deposit(ctx context.Context, userID UserID, amount Amount) (Transaction, error) {
	return service.recordTransaction(ctx, userID, TransactionDeposit, amount)
}

// Withdraw records a withdrawal and debits the bankroll; it never overdraws.
func (service *Service) Withdraw(ctx context.Context, userID UserID, amount Amount) (Transaction, error) {
	return service.recordTransaction(ctx, userID, TransactionWithdrawal, amount)
}

func (service *Service) recordTransaction(ctx context.Context, userID UserID, transactionType TransactionType, amount Amount) (Transaction, error) {
	transaction := Transaction{
		ID:     service.newID(),
		UserID: userID,
		Type:   transactionType,
		Amount: amount,
	}
	var balance decimal.Decimal
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		transaction.CreatedAt = service.now()
		updated, err := account.adjusted(transaction.Effect())
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		balance = updated.CurrentBalance
		return nil
	})
	operation, eventType := operationDeposit, EventDeposit
	if transactionType == TransactionWithdrawal {
		operation, eventType = operationWithdraw, EventWithdrawal
	}
	service.finish(ctx, OperationLog{
		Operation: operation,
		UserID:    userID,
		Amount:    amount.Decimal(),
		Balance:   balance,
		Attempts:  attempts,
		Error:     operationError,
	}, eventType, "")
	if operationError != nil {
		return Transaction{}, operationError
	}
	return transaction, nil
}

// SetInitialBalance sets the starting bankroll once; a second call fails with ErrAlreadyInitialized.
func (service *Service) SetInitialBalance(ctx context.Context, userID UserID, amount Amount) (Account, error) {
	var result Account
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		if !account.InitialBalance.IsZero() {
			return fmt.Errorf("%w: initial balance is %s", ErrAlreadyInitialized, account.InitialBalance.StringFixed(moneyScale))
		}
		updated, err := account.adjusted(amount.Decimal())
		if err != nil {
			return err
		}
		updated.InitialBalance = amount.Decimal()
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		updated.Version++
		result = updated
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationSetInitialBalance,
		UserID:    userID,
		Amount:    amount.Decimal(),
		Balance:   result.CurrentBalance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBankrollInitialized, "")
	if operationError != nil {
		return Account{}, operationError
	}
	return result, nil
}

// ResetBankroll purges every bet and transaction of the user and restarts both balances at newInitial.
func (service *Service) ResetBankroll(ctx context.Context, userID UserID, newInitial decimal.Decimal) (Account, error) {
	if newInitial.IsNegative() || !hasMoneyScale(newInitial) {
		return Account{}, fmt.Errorf("%w: reset amount must be a non-negative value with at most %d fractional digits", ErrInvalidAmount, moneyScale)
	}
	var result Account
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteBets(ctx, userID); err != nil {
			return err
		}
		if err := transactionStore.DeleteTransactions(ctx, userID); err != nil {
			return err
		}
		account.InitialBalance = newInitial
		account.CurrentBalance = newInitial
		if err := transactionStore.UpdateAccount(ctx, account); err != nil {
			return err
		}
		account.Version++
		result = account
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationResetBankroll,
		UserID:    userID,
		Amount:    newInitial,
		Balance:   result.CurrentBalance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBankrollReset, "")
	if operationError != nil {
		return Account{}, operationError
	}
	return result, nil
}

// Account returns the stored bankroll of a user.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetAccount(ctx, userID)
}

// History lists the newest bets and transactions of a user.
func (service *Service) History(ctx context.Context, userID UserID, limit int) (History, error) {
	normalizedLimit := normalizeHistoryLimit(limit)
	var history History
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		bets, err := transactionStore.ListBets(ctx, userID, normalizedLimit)
		if err != nil {
			return err
		}
		transactions, err := transactionStore.ListTransactions(ctx, userID, normalizedLimit)
		if err != nil {
			return err
		}
		history = History{Account: account, Bets: bets, Transactions: transactions}
		return nil
	})
	if err != nil {
		return History{}, err
	}
	return history, nil
}

// Statistics summarizes every bet of a user.
func (service *Service) Statistics(ctx context.Context, userID UserID) (Statistics, error) {
	if _, err := service.store.GetAccount(ctx, userID); err != nil {
		return Statistics{}, err
	}
	bets, err := service.store.ListBets(ctx, userID, 0)
	if err != nil {
		return Statistics{}, err
	}
	return summarize(bets), nil
}

func normalizeHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
