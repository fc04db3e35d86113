package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents the users table. It carries the bankroll aggregate and the access grant.
type User struct {
	ID              string          `gorm:"primaryKey"`
	Email           string          `gorm:"not null;uniqueIndex:idx_users_email"`
	DisplayName     string          `gorm:"not null;default:''"`
	Role            string          `gorm:"not null;default:''"`
	InitialBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CurrentBalance  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	Version         int64           `gorm:"not null;default:1"`
	AccessUntil     *time.Time      `gorm:""`
	AccessGrantedBy string          `gorm:"not null;default:''"`
	CreatedAt       time.Time       `gorm:"not null;index:idx_users_created"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Bet mirrors the bets table.
type Bet struct {
	ID        string          `gorm:"primaryKey"`
	UserID    string          `gorm:"not null;index:idx_bets_user_created,priority:1"`
	Game      string          `gorm:"not null"`
	Market    string          `gorm:"not null"`
	Sport     string          `gorm:"not null;default:''"`
	Odd       decimal.Decimal `gorm:"type:numeric(10,3);not null"`
	Stake     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Result    string          `gorm:"not null"`
	Profit    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"not null;index:idx_bets_user_created,priority:2"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Bet) TableName() string { return "bets" }

func (bet *Bet) BeforeCreate(tx *gorm.DB) error {
	if bet.ID == "" {
		bet.ID = uuid.NewString()
	}
	return nil
}

// BankrollTransaction mirrors the bankroll_transactions table.
type BankrollTransaction struct {
	ID        string          `gorm:"primaryKey"`
	UserID    string          `gorm:"not null;index:idx_bankroll_transactions_user_created,priority:1"`
	Type      string          `gorm:"not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"not null;index:idx_bankroll_transactions_user_created,priority:2"`
}

func (BankrollTransaction) TableName() string { return "bankroll_transactions" }

func (transaction *BankrollTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	return nil
}

// PreAuthorizedUser mirrors the pre_authorized_users table.
type PreAuthorizedUser struct {
	Email       string    `gorm:"primaryKey"`
	AccessUntil time.Time `gorm:"not null"`
	GrantedBy   string    `gorm:"not null;default:''"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (PreAuthorizedUser) TableName() string { return "pre_authorized_users" }

// ProcessedWebhook mirrors the processed_webhooks table.
type ProcessedWebhook struct {
	ID          string         `gorm:"primaryKey"`
	EventType   string         `gorm:"not null"`
	ProcessedAt time.Time      `gorm:"not null"`
	Payload     datatypes.JSON `gorm:"not null"`
}

func (ProcessedWebhook) TableName() string { return "processed_webhooks" }

// Subscription mirrors the subscriptions table: one row per confirmed payment.
type Subscription struct {
	ID          string    `gorm:"primaryKey"`
	EventID     string    `gorm:"not null;uniqueIndex:idx_subscriptions_event"`
	UserID      string    `gorm:"not null;index:idx_subscriptions_user"`
	PlanID      string    `gorm:"not null"`
	AmountCents int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;index:idx_subscriptions_created"`
}

func (Subscription) TableName() string { return "subscriptions" }

func (subscription *Subscription) BeforeCreate(tx *gorm.DB) error {
	if subscription.ID == "" {
		subscription.ID = uuid.NewString()
	}
	return nil
}

// Models lists every table the stores use, in dependency order.
func Models() []any {
	return []any{
		&User{},
		&Bet{},
		&BankrollTransaction{},
		&PreAuthorizedUser{},
		&ProcessedWebhook{},
		&Subscription{},
	}
}

// AutoMigrate creates or updates the schema. The postgres deployment uses the
// SQL migrations instead; this path serves sqlite and tests.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
