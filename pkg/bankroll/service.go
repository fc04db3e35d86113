package bankroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service contains the bet settlement and bankroll logic over a Store.
type Service struct {
	store     Store
	nowFn     func() time.Time
	newID     func() string
	logger    OperationLogger
	publisher EventPublisher
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now, newID: uuid.NewString}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// PlaceBet creates a pending bet and debits its stake.
func (service *Service) PlaceBet(ctx context.Context, userID UserID, details BetDetails, odd Odd, stake Amount) (Bet, error) {
	var placed Bet
	var balance decimal.Decimal
	betID, err := NewBetID(service.newID())
	if err != nil {
		return Bet{}, err
	}
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		now := service.now()
		bet := Bet{
			ID:        betID,
			UserID:    userID,
			Details:   details,
			Odd:       odd,
			Stake:     stake,
			Result:    ResultPending,
			Profit:    decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		updated, err := account.adjusted(bet.Effect())
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		if err := transactionStore.InsertBet(ctx, bet); err != nil {
			return err
		}
		placed = bet
		balance = updated.CurrentBalance
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationPlaceBet,
		UserID:    userID,
		BetID:     betID,
		Amount:    stake.Decimal(),
		Balance:   balance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBetPlaced, string(ResultPending))
	if operationError != nil {
		return Bet{}, operationError
	}
	return placed, nil
}

// SettleBet resolves a pending bet to a terminal result and credits the payout.
func (service *Service) SettleBet(ctx context.Context, userID UserID, betID BetID, outcome Result) (Bet, error) {
	if !outcome.IsSettled() {
		return Bet{}, fmt.Errorf("%w: settlement requires green, red or void", ErrInvalidResult)
	}
	var settled Bet
	var credit decimal.Decimal
	var balance decimal.Decimal
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		bet, err := transactionStore.GetBet(ctx, userID, betID)
		if err != nil {
			return err
		}
		if bet.Result != ResultPending {
			return fmt.Errorf("%w: bet %s is %s", ErrAlreadySettled, betID.String(), bet.Result)
		}
		next := bet.settled(outcome)
		next.UpdatedAt = service.now()
		delta := next.Effect().Sub(bet.Effect())
		updated, err := account.adjusted(delta)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		if err := transactionStore.UpdateBet(ctx, next); err != nil {
			return err
		}
		settled = next
		credit = delta
		balance = updated.CurrentBalance
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationSettleBet,
		UserID:    userID,
		BetID:     betID,
		Amount:    credit,
		Balance:   balance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBetSettled, string(outcome))
	if operationError != nil {
		return Bet{}, operationError
	}
	return settled, nil
}

// EditBet reverses the stored effect of a bet, applies the patch and re-applies the new effect.
func (service *Service) EditBet(ctx context.Context, userID UserID, betID BetID, patch BetPatch) (Bet, error) {
	var edited Bet
	var delta decimal.Decimal
	var balance decimal.Decimal
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		bet, err := transactionStore.GetBet(ctx, userID, betID)
		if err != nil {
			return err
		}
		next, err := bet.patched(patch)
		if err != nil {
			return err
		}
		next.UpdatedAt = service.now()
		change := bet.Effect().Neg().Add(next.Effect())
		updated, err := account.adjusted(change)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		if err := transactionStore.UpdateBet(ctx, next); err != nil {
			return err
		}
		edited = next
		delta = change
		balance = updated.CurrentBalance
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationEditBet,
		UserID:    userID,
		BetID:     betID,
		Amount:    delta,
		Balance:   balance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBetEdited, string(edited.Result))
	if operationError != nil {
		return Bet{}, operationError
	}
	return edited, nil
}

// DeleteBet reverses the stored effect of a bet and removes it.
func (service *Service) DeleteBet(ctx context.Context, userID UserID, betID BetID) error {
	var reversal decimal.Decimal
	var balance decimal.Decimal
	attempts, operationError := service.withRetry(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		bet, err := transactionStore.GetBet(ctx, userID, betID)
		if err != nil {
			return err
		}
		change := bet.Effect().Neg()
		updated, err := account.adjusted(change)
		if err != nil {
			return err
		}
		if err := transactionStore.UpdateAccount(ctx, updated); err != nil {
			return err
		}
		if err := transactionStore.DeleteBet(ctx, userID, betID); err != nil {
			return err
		}
		reversal = change
		balance = updated.CurrentBalance
		return nil
	})
	service.finish(ctx, OperationLog{
		Operation: operationDeleteBet,
		UserID:    userID,
		BetID:     betID,
		Amount:    reversal,
		Balance:   balance,
		Attempts:  attempts,
		Error:     operationError,
	}, EventBetDeleted, "")
	return operationError
}

// withRetry runs fn in a store transaction, retrying with fresh reads on ErrStorageConflict.
func (service *Service) withRetry(ctx context.Context, fn func(ctx context.Context, transactionStore Store) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxTransactionAttempts; attempt++ {
		lastErr = service.store.WithTx(ctx, fn)
		if !errors.Is(lastErr, ErrStorageConflict) {
			return attempt, lastErr
		}
		if attempt == maxTransactionAttempts {
			break
		}
		timer := time.NewTimer(conflictRetryDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return maxTransactionAttempts, NewLedgerError("service", "account", "conflict_retries_exhausted", lastErr)
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

// finish logs the operation and, when it committed, publishes the matching ledger event.
func (service *Service) finish(ctx context.Context, entry OperationLog, eventType string, result string) {
	service.logOperation(ctx, entry)
	if entry.Error != nil || service.publisher == nil {
		return
	}
	event := LedgerEvent{
		Type:       eventType,
		UserID:     entry.UserID.String(),
		BetID:      entry.BetID.String(),
		Result:     result,
		Amount:     entry.Amount,
		Balance:    entry.Balance,
		OccurredAt: service.now(),
	}
	if err := service.publisher.PublishLedgerEvent(ctx, event); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation: operationPublishEvent,
			UserID:    entry.UserID,
			BetID:     entry.BetID,
			Error:     err,
		})
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
