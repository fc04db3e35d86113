package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/bankroll/pkg/access"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccessStore implements access.Store using GORM.
type AccessStore struct {
	db *gorm.DB
}

// WithTx executes fn within a transaction.
func (store *AccessStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore access.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &AccessStore{db: transaction})
	})
}

func (store *AccessStore) GetUser(ctx context.Context, userID string) (access.User, error) {
	var row User
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.User{}, access.ErrUnknownUser
	}
	if err != nil {
		return access.User{}, wrapStoreError(errorRecordUser, errorActionGet, err)
	}
	return mapUser(row), nil
}

func (store *AccessStore) FindUserByEmail(ctx context.Context, email access.Email) (access.User, error) {
	var row User
	err := store.db.WithContext(ctx).Where("email = ?", email.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.User{}, access.ErrUnknownUser
	}
	if err != nil {
		return access.User{}, wrapStoreError(errorRecordUser, errorActionLookup, err)
	}
	return mapUser(row), nil
}

// CreateUser inserts a user with an empty bankroll.
func (store *AccessStore) CreateUser(ctx context.Context, user access.User) error {
	row := User{
		ID:              user.ID,
		Email:           user.Email,
		DisplayName:     user.DisplayName,
		Role:            user.Role,
		InitialBalance:  decimal.Zero,
		CurrentBalance:  decimal.Zero,
		Version:         1,
		AccessUntil:     utcPointer(user.AccessUntil),
		AccessGrantedBy: user.AccessGrantedBy,
		CreatedAt:       user.CreatedAt.UTC(),
		UpdatedAt:       user.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return access.ErrUserExists
	}
	if err != nil {
		return wrapStoreError(errorRecordUser, errorActionInsert, err)
	}
	return nil
}

func (store *AccessStore) SetAccessUntil(ctx context.Context, userID string, until time.Time, grantedBy string) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"access_until":      until.UTC(),
			"access_granted_by": grantedBy,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorRecordUser, errorActionUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return access.ErrUnknownUser
	}
	return nil
}

func (store *AccessStore) SetRole(ctx context.Context, userID string, role string) error {
	result := store.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"role":       role,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorRecordUser, errorActionUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return access.ErrUnknownUser
	}
	return nil
}

// UpsertPreAuthorization replaces any earlier grant for the same e-mail.
func (store *AccessStore) UpsertPreAuthorization(ctx context.Context, preAuthorization access.PreAuthorization) error {
	row := PreAuthorizedUser{
		Email:       preAuthorization.Email.String(),
		AccessUntil: preAuthorization.AccessUntil.UTC(),
		GrantedBy:   preAuthorization.GrantedBy,
		CreatedAt:   preAuthorization.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"access_until", "granted_by"}),
		}).
		Create(&row).Error
	if err != nil {
		return wrapStoreError(errorRecordPreAuth, errorActionUpsert, err)
	}
	return nil
}

func (store *AccessStore) GetPreAuthorization(ctx context.Context, email access.Email) (access.PreAuthorization, error) {
	var row PreAuthorizedUser
	err := store.db.WithContext(ctx).Where("email = ?", email.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return access.PreAuthorization{}, access.ErrUnknownPreAuthorization
	}
	if err != nil {
		return access.PreAuthorization{}, wrapStoreError(errorRecordPreAuth, errorActionGet, err)
	}
	return access.PreAuthorization{
		Email:       email,
		AccessUntil: row.AccessUntil.UTC(),
		GrantedBy:   row.GrantedBy,
		CreatedAt:   row.CreatedAt.UTC(),
	}, nil
}

func (store *AccessStore) DeletePreAuthorization(ctx context.Context, email access.Email) error {
	result := store.db.WithContext(ctx).Where("email = ?", email.String()).Delete(&PreAuthorizedUser{})
	if result.Error != nil {
		return wrapStoreError(errorRecordPreAuth, errorActionDelete, result.Error)
	}
	if result.RowsAffected == 0 {
		return access.ErrUnknownPreAuthorization
	}
	return nil
}

func (store *AccessStore) ListSubscriptionPayments(ctx context.Context, since time.Time) ([]access.SubscriptionPayment, error) {
	var rows []Subscription
	err := store.db.WithContext(ctx).
		Where("created_at >= ?", since.UTC()).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorRecordSubscription, errorActionList, err)
	}
	payments := make([]access.SubscriptionPayment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, access.SubscriptionPayment{
			ID:          row.ID,
			EventID:     row.EventID,
			UserID:      row.UserID,
			PlanID:      row.PlanID,
			AmountCents: row.AmountCents,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return payments, nil
}

func (store *AccessStore) CountUsersCreatedSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&User{}).Where("created_at >= ?", since.UTC()).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorRecordUser, errorActionCount, err)
	}
	return count, nil
}

func mapUser(row User) access.User {
	return access.User{
		ID:              row.ID,
		Email:           row.Email,
		DisplayName:     row.DisplayName,
		Role:            row.Role,
		AccessUntil:     utcPointer(row.AccessUntil),
		AccessGrantedBy: row.AccessGrantedBy,
		CreatedAt:       row.CreatedAt.UTC(),
	}
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}
