package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/plans"
)

// Status describes how a delivery was handled.
type Status string

const (
	StatusProcessed     Status = "processed"
	StatusDuplicate     Status = "duplicate"
	StatusIgnored       Status = "ignored"
	StatusUnauthorized  Status = "unauthorized"
	StatusMalformed     Status = "malformed"
	StatusUnprocessable Status = "unprocessable"
	StatusFailed        Status = "error"
)

const grantedByPaymentPrefix = "payment:"

// ProcessedEvent is the idempotency marker stored for every accepted event id.
type ProcessedEvent struct {
	ID          string
	EventType   string
	ProcessedAt time.Time
	Payload     []byte
}

// Result reports what a delivery did.
type Result struct {
	EventID     string
	EventType   string
	Status      Status
	UserID      string
	PlanID      string
	AccessUntil time.Time
	AmountCents int64
}

// Store is the persistence contract used by Processor.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	ProcessedEventExists(ctx context.Context, eventID string) (bool, error)
	// InsertProcessedEvent returns ErrDuplicateEvent when the id is already recorded.
	InsertProcessedEvent(ctx context.Context, event ProcessedEvent) error
	InsertSubscriptionPayment(ctx context.Context, payment access.SubscriptionPayment) error
	// AccessStore returns an access store bound to the same transaction.
	AccessStore() access.Store
}

// OutcomeRecorder observes every delivery, including rejected ones.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, result Result, err error)
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithOutcomeRecorder wires a recorder for delivery outcomes.
func WithOutcomeRecorder(recorder OutcomeRecorder) ProcessorOption {
	return func(processor *Processor) {
		processor.recorder = recorder
	}
}

// Processor verifies, deduplicates and applies payment gateway events.
type Processor struct {
	store    Store
	secret   string
	nowFn    func() time.Time
	recorder OutcomeRecorder
}

// NewProcessor wires a Processor. An empty secret is accepted and rejects every delivery.
func NewProcessor(store Store, secret string, now func() time.Time, options ...ProcessorOption) (*Processor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidProcessorConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidProcessorConfig)
	}
	processor := &Processor{store: store, secret: secret, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(processor)
		}
	}
	return processor, nil
}

// Process handles one delivery of rawBody signed with signatureHeader.
// It is safe to call again with the same body after any failure.
func (processor *Processor) Process(ctx context.Context, signatureHeader string, rawBody []byte) (Result, error) {
	result, err := processor.process(ctx, signatureHeader, rawBody)
	if err != nil {
		result.Status = failureStatus(err)
	}
	if processor.recorder != nil {
		processor.recorder.RecordOutcome(ctx, result, err)
	}
	return result, err
}

func (processor *Processor) process(ctx context.Context, signatureHeader string, rawBody []byte) (Result, error) {
	if err := VerifySignature(processor.secret, signatureHeader, rawBody); err != nil {
		return Result{}, err
	}
	envelope, err := ParseEnvelope(rawBody)
	if err != nil {
		return Result{}, err
	}
	now := processor.nowFn().UTC()
	var result Result
	err = processor.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		result = Result{EventID: envelope.ID, EventType: envelope.Event}
		exists, err := transactionStore.ProcessedEventExists(ctx, envelope.ID)
		if err != nil {
			return err
		}
		if exists {
			result.Status = StatusDuplicate
			return nil
		}
		status := StatusIgnored
		if envelope.IsPaymentConfirmed() {
			if err := processor.applyPayment(ctx, transactionStore, envelope, now, &result); err != nil {
				return err
			}
			status = StatusProcessed
		}
		marker := ProcessedEvent{
			ID:          envelope.ID,
			EventType:   envelope.Event,
			ProcessedAt: now,
			Payload:     rawBody,
		}
		if err := transactionStore.InsertProcessedEvent(ctx, marker); err != nil {
			return err
		}
		result.Status = status
		return nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		return Result{EventID: envelope.ID, EventType: envelope.Event, Status: StatusDuplicate}, nil
	}
	if err != nil {
		return Result{EventID: envelope.ID, EventType: envelope.Event}, err
	}
	return result, nil
}

func (processor *Processor) applyPayment(ctx context.Context, transactionStore Store, envelope Envelope, now time.Time, result *Result) error {
	userID := envelope.UserID()
	if userID == "" {
		return fmt.Errorf("%w: missing customer id", ErrUnprocessableEvent)
	}
	identity, err := access.UserIdentity(userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnprocessableEvent, err)
	}
	plan, ok := plans.Lookup(envelope.PlanID())
	if !ok {
		return fmt.Errorf("%w: unknown plan %q", ErrUnprocessableEvent, envelope.PlanID())
	}
	amount := envelope.Billing.Amount
	if !amount.IsInteger() {
		return fmt.Errorf("%w: amount %s is not a whole number of cents", ErrUnprocessableEvent, amount.String())
	}
	amountCents := amount.IntPart()
	if amountCents <= 0 {
		amountCents = plan.PriceCents
	}
	grant, err := access.ApplyGrant(ctx, transactionStore.AccessStore(), identity, plan.AccessUntil(now), grantedByPaymentPrefix+plan.ID, now)
	if errors.Is(err, access.ErrUnknownUser) {
		return fmt.Errorf("%w: user %s is not registered", ErrUnprocessableEvent, userID)
	}
	if err != nil {
		return err
	}
	payment := access.SubscriptionPayment{
		EventID:     envelope.ID,
		UserID:      grant.UserID,
		PlanID:      plan.ID,
		AmountCents: amountCents,
		CreatedAt:   now,
	}
	if err := transactionStore.InsertSubscriptionPayment(ctx, payment); err != nil {
		return err
	}
	result.UserID = grant.UserID
	result.PlanID = plan.ID
	result.AccessUntil = grant.AccessUntil
	result.AmountCents = amountCents
	return nil
}

func failureStatus(err error) Status {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return StatusUnauthorized
	case errors.Is(err, ErrMalformedEvent):
		return StatusMalformed
	case errors.Is(err, ErrUnprocessableEvent):
		return StatusUnprocessable
	default:
		return StatusFailed
	}
}
