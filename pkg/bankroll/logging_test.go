package bankroll

import (
	"context"
	"errors"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

type recorderPublisher struct {
	events []LedgerEvent
	err    error
}

func (publisher *recorderPublisher) PublishLedgerEvent(_ context.Context, event LedgerEvent) error {
	if publisher.err != nil {
		return publisher.err
	}
	publisher.events = append(publisher.events, event)
	return nil
}

func TestServiceLogsPlaceBetOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	userID := mustUserID(test, defaultUserIDValue)

	bet := mustPlaceBet(test, service, userID, "2", "25")
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationPlaceBet || entry.UserID != userID || entry.BetID != bet.ID {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if !entry.Amount.Equal(mustDecimal(test, "25")) || !entry.Balance.Equal(mustDecimal(test, "75")) {
		test.Fatalf("unexpected amounts in log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK || entry.Attempts != 1 {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	store.insertBetError = errStoreFailure
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))

	_, err := service.PlaceBet(context.Background(), mustUserID(test, defaultUserIDValue), mustDetails(test), mustOdd(test, "2"), mustAmount(test, "10"))
	if !errors.Is(err, errStoreFailure) {
		test.Fatalf("expected store failure, got %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if logger.entries[0].Status != operationStatusError || logger.entries[0].Error == nil {
		test.Fatalf("expected error log entry, got %+v", logger.entries[0])
	}
	store.assertBalance(test, defaultUserIDValue, "100")
}

func TestServicePublishesCommittedEvents(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	publisher := &recorderPublisher{}
	service := mustNewService(test, store, WithEventPublisher(publisher))
	userID := mustUserID(test, defaultUserIDValue)

	bet := mustPlaceBet(test, service, userID, "2", "10")
	if _, err := service.SettleBet(context.Background(), userID, bet.ID, ResultGreen); err != nil {
		test.Fatalf("settle: %v", err)
	}
	if _, err := service.Withdraw(context.Background(), userID, mustAmount(test, "500")); !errors.Is(err, ErrInsufficientBalance) {
		test.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	if len(publisher.events) != 2 {
		test.Fatalf("expected 2 events, got %d", len(publisher.events))
	}
	placed, settled := publisher.events[0], publisher.events[1]
	if placed.Type != EventBetPlaced || placed.BetID != bet.ID.String() || placed.Result != string(ResultPending) {
		test.Fatalf("unexpected placed event: %+v", placed)
	}
	if settled.Type != EventBetSettled || settled.Result != string(ResultGreen) || !settled.Amount.Equal(mustDecimal(test, "20")) || !settled.Balance.Equal(mustDecimal(test, "110")) {
		test.Fatalf("unexpected settled event: %+v", settled)
	}
}

func TestPublishFailureDoesNotFailOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test, defaultUserIDValue, "100")
	publisher := &recorderPublisher{err: errors.New("broker down")}
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithEventPublisher(publisher), WithOperationLogger(logger))

	if _, err := service.Deposit(context.Background(), mustUserID(test, defaultUserIDValue), mustAmount(test, "10")); err != nil {
		test.Fatalf("deposit: %v", err)
	}
	store.assertBalance(test, defaultUserIDValue, "110")
	if len(logger.entries) != 2 {
		test.Fatalf("expected operation and publish log entries, got %d", len(logger.entries))
	}
	if logger.entries[1].Operation != operationPublishEvent || logger.entries[1].Status != operationStatusError {
		test.Fatalf("expected publish failure entry, got %+v", logger.entries[1])
	}
}
