package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/MarkoPoloResearchLab/bankroll/pkg/webhook"
	"gorm.io/gorm"
)

// WebhookStore implements webhook.Store using GORM.
type WebhookStore struct {
	db *gorm.DB
}

// WithTx executes fn within a transaction.
func (store *WebhookStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore webhook.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &WebhookStore{db: transaction})
	})
}

func (store *WebhookStore) ProcessedEventExists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&ProcessedWebhook{}).Where("id = ?", eventID).Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorRecordWebhook, errorActionLookup, err)
	}
	return count > 0, nil
}

// InsertProcessedEvent records the idempotency marker. A concurrent delivery
// of the same id loses on the primary key and gets webhook.ErrDuplicateEvent.
func (store *WebhookStore) InsertProcessedEvent(ctx context.Context, event webhook.ProcessedEvent) error {
	row := ProcessedWebhook{
		ID:          event.ID,
		EventType:   event.EventType,
		ProcessedAt: event.ProcessedAt.UTC(),
		Payload:     datatypesJSON(event.Payload),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return webhook.ErrDuplicateEvent
	}
	if err != nil {
		return wrapStoreError(errorRecordWebhook, errorActionInsert, err)
	}
	return nil
}

func (store *WebhookStore) InsertSubscriptionPayment(ctx context.Context, payment access.SubscriptionPayment) error {
	row := Subscription{
		ID:          payment.ID,
		EventID:     payment.EventID,
		UserID:      payment.UserID,
		PlanID:      payment.PlanID,
		AmountCents: payment.AmountCents,
		CreatedAt:   payment.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return webhook.ErrDuplicateEvent
	}
	if err != nil {
		return wrapStoreError(errorRecordSubscription, errorActionInsert, err)
	}
	return nil
}

// AccessStore returns an access store sharing this store's transaction.
func (store *WebhookStore) AccessStore() access.Store {
	return &AccessStore{db: store.db}
}
