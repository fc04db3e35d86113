package gormstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/bankroll"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPayloadJSON         = "{}"
	pgUniqueViolationCode      = "23505"
	pgSerializationFailureCode = "40001"
	pgDeadlockDetectedCode     = "40P01"
	sqliteBusyCode             = 5
	sqliteLockedCode           = 6
	sqliteConstraintCode       = 19
	errorLayerStore            = "store"
	errorRecordAccount         = "account"
	errorRecordDatabase        = "database"
	errorRecordBet             = "bet"
	errorRecordTransaction     = "transaction"
	errorRecordUser            = "user"
	errorRecordPreAuth         = "pre_authorization"
	errorRecordWebhook         = "webhook"
	errorRecordSubscription    = "subscription"
	errorActionCount           = "count"
	errorActionDelete          = "delete"
	errorActionGet             = "get"
	errorActionInsert          = "insert"
	errorActionList            = "list"
	errorActionLookup          = "lookup"
	errorActionUpdate          = "update"
	errorActionUpsert          = "upsert"
	errorActionPing            = "ping"
)

// Store owns the gorm handle and hands out the per-domain stores.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Bankroll returns the bankroll.Store implementation.
func (store *Store) Bankroll() *BankrollStore {
	return &BankrollStore{db: store.db}
}

// Access returns the access.Store implementation.
func (store *Store) Access() *AccessStore {
	return &AccessStore{db: store.db}
}

// Webhooks returns the webhook.Store implementation.
func (store *Store) Webhooks() *WebhookStore {
	return &WebhookStore{db: store.db}
}

// Ping checks that the underlying database answers.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return wrapStoreError(errorRecordDatabase, errorActionPing, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapStoreError(errorRecordDatabase, errorActionPing, err)
	}
	return nil
}

func wrapStoreError(record string, action string, err error) error {
	return bankroll.NewLedgerError(errorLayerStore, record, action, err)
}

func datatypesJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(defaultPayloadJSON))
	}
	return datatypes.JSON(raw)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

// isTransientConflict reports errors a retried transaction can succeed after.
func isTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailureCode || pgErr.Code == pgDeadlockDetectedCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & 0xFF
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}
