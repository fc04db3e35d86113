package access

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RoleAdmin marks users allowed to grant access and read revenue.
const RoleAdmin = "admin"

// Email is a lower-cased, trimmed e-mail address.
type Email struct {
	value string
}

// NewEmail validates and normalizes an e-mail address.
func NewEmail(raw string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	at := strings.Index(normalized, "@")
	if at <= 0 || at == len(normalized)-1 || strings.Count(normalized, "@") != 1 {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return Email{value: normalized}, nil
}

// String returns the normalized address.
func (email Email) String() string {
	return email.value
}

// Identity is either a user id or an e-mail address.
type Identity struct {
	userID string
	email  Email
}

// ParseIdentity treats any value containing "@" as an e-mail and everything else as a user id.
func ParseIdentity(raw string) (Identity, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identity{}, fmt.Errorf("%w: empty value", ErrInvalidIdentity)
	}
	if strings.Contains(trimmed, "@") {
		email, err := NewEmail(trimmed)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %w", ErrInvalidIdentity, err)
		}
		return Identity{email: email}, nil
	}
	return Identity{userID: trimmed}, nil
}

// UserIdentity builds an identity for a known user id.
func UserIdentity(userID string) (Identity, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" || strings.Contains(trimmed, "@") {
		return Identity{}, fmt.Errorf("%w: %q is not a user id", ErrInvalidIdentity, userID)
	}
	return Identity{userID: trimmed}, nil
}

// IsEmail reports whether the identity is an e-mail address.
func (identity Identity) IsEmail() bool {
	return identity.email.value != ""
}

// String returns the user id or normalized e-mail.
func (identity Identity) String() string {
	if identity.IsEmail() {
		return identity.email.String()
	}
	return identity.userID
}

// User is a registered account as seen by access control.
type User struct {
	ID              string
	Email           string
	DisplayName     string
	Role            string
	AccessUntil     *time.Time
	AccessGrantedBy string
	CreatedAt       time.Time
}

// IsAdmin reports whether the user carries the admin role.
func (user User) IsAdmin() bool {
	return user.Role == RoleAdmin
}

// NewUser carries the claims of a first sign-in.
type NewUser struct {
	ID          string
	Email       string
	DisplayName string
}

// PreAuthorization is access granted to an e-mail before its account exists.
type PreAuthorization struct {
	Email       Email
	AccessUntil time.Time
	GrantedBy   string
	CreatedAt   time.Time
}

// GrantTarget tells where a grant was written.
type GrantTarget string

const (
	GrantTargetUser             GrantTarget = "user"
	GrantTargetPreAuthorization GrantTarget = "pre_authorization"
)

// GrantResult describes a successful grant.
type GrantResult struct {
	Identity    string
	Target      GrantTarget
	UserID      string
	AccessUntil time.Time
}

// GrantOutcome is the per-identity result of a bulk grant.
type GrantOutcome struct {
	Identity string
	Result   GrantResult
	Err      error
}

// SubscriptionPayment is a revenue record written when a paid plan is applied.
type SubscriptionPayment struct {
	ID          string
	EventID     string
	UserID      string
	PlanID      string
	AmountCents int64
	CreatedAt   time.Time
}

// MonthlyRevenue totals subscription payments of one calendar month (UTC, "2006-01").
type MonthlyRevenue struct {
	Month       string
	AmountCents int64
	Payments    int
}

// RevenueReport feeds the admin dashboard.
type RevenueReport struct {
	Since    time.Time
	Months   []MonthlyRevenue
	NewUsers int64
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetUser(ctx context.Context, userID string) (User, error)
	FindUserByEmail(ctx context.Context, email Email) (User, error)
	CreateUser(ctx context.Context, user User) error
	SetAccessUntil(ctx context.Context, userID string, until time.Time, grantedBy string) error
	SetRole(ctx context.Context, userID string, role string) error
	UpsertPreAuthorization(ctx context.Context, preAuthorization PreAuthorization) error
	GetPreAuthorization(ctx context.Context, email Email) (PreAuthorization, error)
	DeletePreAuthorization(ctx context.Context, email Email) error
	ListSubscriptionPayments(ctx context.Context, since time.Time) ([]SubscriptionPayment, error)
	CountUsersCreatedSince(ctx context.Context, since time.Time) (int64, error)
}
