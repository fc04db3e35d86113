package access

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const revenueMonthLayout = "2006-01"

// Service manages access grants for users and pre-authorized e-mails.
type Service struct {
	store Store
	nowFn func() time.Time
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	return &Service{store: store, nowFn: now}, nil
}

// Grant writes accessUntil onto the user the identity resolves to, or stores a
// pre-authorization when the identity is an e-mail without an account.
func (service *Service) Grant(ctx context.Context, identity Identity, until time.Time, grantedBy string) (GrantResult, error) {
	var result GrantResult
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		applied, err := ApplyGrant(ctx, transactionStore, identity, until, grantedBy, service.nowFn().UTC())
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return GrantResult{}, err
	}
	return result, nil
}

// ApplyGrant runs the grant logic against store, which may be bound to an outer transaction.
// Granting again overwrites the previous expiry.
func ApplyGrant(ctx context.Context, store Store, identity Identity, until time.Time, grantedBy string, now time.Time) (GrantResult, error) {
	if identity.String() == "" {
		return GrantResult{}, fmt.Errorf("%w: empty identity", ErrInvalidIdentity)
	}
	if until.IsZero() {
		return GrantResult{}, fmt.Errorf("%w: missing expiry", ErrInvalidGrant)
	}
	until = until.UTC()
	grantedBy = strings.TrimSpace(grantedBy)
	result := GrantResult{Identity: identity.String(), AccessUntil: until}

	if !identity.IsEmail() {
		user, err := store.GetUser(ctx, identity.userID)
		if err != nil {
			return GrantResult{}, err
		}
		if err := store.SetAccessUntil(ctx, user.ID, until, grantedBy); err != nil {
			return GrantResult{}, err
		}
		result.Target = GrantTargetUser
		result.UserID = user.ID
		return result, nil
	}

	user, err := store.FindUserByEmail(ctx, identity.email)
	switch {
	case err == nil:
		if err := store.SetAccessUntil(ctx, user.ID, until, grantedBy); err != nil {
			return GrantResult{}, err
		}
		result.Target = GrantTargetUser
		result.UserID = user.ID
		return result, nil
	case errors.Is(err, ErrUnknownUser):
		preAuthorization := PreAuthorization{
			Email:       identity.email,
			AccessUntil: until,
			GrantedBy:   grantedBy,
			CreatedAt:   now,
		}
		if err := store.UpsertPreAuthorization(ctx, preAuthorization); err != nil {
			return GrantResult{}, err
		}
		result.Target = GrantTargetPreAuthorization
		return result, nil
	default:
		return GrantResult{}, err
	}
}

// BulkGrant grants each identity in its own transaction and reports every outcome.
func (service *Service) BulkGrant(ctx context.Context, rawIdentities []string, until time.Time, grantedBy string) []GrantOutcome {
	outcomes := make([]GrantOutcome, 0, len(rawIdentities))
	for _, raw := range rawIdentities {
		outcome := GrantOutcome{Identity: strings.TrimSpace(raw)}
		identity, err := ParseIdentity(raw)
		if err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Identity = identity.String()
		outcome.Result, outcome.Err = service.Grant(ctx, identity, until, grantedBy)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// ResolveOnSignIn creates the user on first sign-in and moves a pending
// pre-authorization onto it. Signing in again returns the stored user unchanged.
func (service *Service) ResolveOnSignIn(ctx context.Context, newUser NewUser) (User, error) {
	userID := strings.TrimSpace(newUser.ID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: empty user id", ErrInvalidIdentity)
	}
	email, err := NewEmail(newUser.Email)
	if err != nil {
		return User{}, err
	}
	resolved, err := service.resolveOnSignIn(ctx, userID, email, newUser.DisplayName)
	if !errors.Is(err, ErrUserExists) && !errors.Is(err, ErrUnknownPreAuthorization) {
		return resolved, err
	}
	// A concurrent first sign-in for the same id committed before this one.
	existing, lookupErr := service.store.GetUser(ctx, userID)
	switch {
	case lookupErr == nil:
		return existing, nil
	case !errors.Is(lookupErr, ErrUnknownUser):
		return User{}, lookupErr
	case errors.Is(err, ErrUnknownPreAuthorization):
		return service.resolveOnSignIn(ctx, userID, email, newUser.DisplayName)
	default:
		return User{}, err
	}
}

func (service *Service) resolveOnSignIn(ctx context.Context, userID string, email Email, displayName string) (User, error) {
	var resolved User
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.GetUser(ctx, userID)
		if err == nil {
			resolved = existing
			return nil
		}
		if !errors.Is(err, ErrUnknownUser) {
			return err
		}
		user := User{
			ID:          userID,
			Email:       email.String(),
			DisplayName: strings.TrimSpace(displayName),
			CreatedAt:   service.nowFn().UTC(),
		}
		preAuthorization, err := transactionStore.GetPreAuthorization(ctx, email)
		switch {
		case err == nil:
			accessUntil := preAuthorization.AccessUntil.UTC()
			user.AccessUntil = &accessUntil
			user.AccessGrantedBy = preAuthorization.GrantedBy
			if err := transactionStore.DeletePreAuthorization(ctx, email); err != nil {
				return err
			}
		case !errors.Is(err, ErrUnknownPreAuthorization):
			return err
		}
		if err := transactionStore.CreateUser(ctx, user); err != nil {
			return err
		}
		resolved = user
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return resolved, nil
}

// User returns a registered user.
func (service *Service) User(ctx context.Context, userID string) (User, error) {
	return service.store.GetUser(ctx, strings.TrimSpace(userID))
}

// PromoteAdmin gives the admin role to the user registered under email.
func (service *Service) PromoteAdmin(ctx context.Context, rawEmail string) (User, error) {
	email, err := NewEmail(rawEmail)
	if err != nil {
		return User{}, err
	}
	var promoted User
	err = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		user, err := transactionStore.FindUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := transactionStore.SetRole(ctx, user.ID, RoleAdmin); err != nil {
			return err
		}
		user.Role = RoleAdmin
		promoted = user
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return promoted, nil
}

// IsActive reports whether the user's access is still valid now.
func (service *Service) IsActive(user User) bool {
	return IsActive(user, service.nowFn())
}

// IsActive reports whether accessUntil is set and strictly after now.
func IsActive(user User, now time.Time) bool {
	return user.AccessUntil != nil && user.AccessUntil.After(now)
}

// RevenueReport totals subscription payments per month and counts users created since the given time.
func (service *Service) RevenueReport(ctx context.Context, since time.Time) (RevenueReport, error) {
	since = since.UTC()
	payments, err := service.store.ListSubscriptionPayments(ctx, since)
	if err != nil {
		return RevenueReport{}, err
	}
	newUsers, err := service.store.CountUsersCreatedSince(ctx, since)
	if err != nil {
		return RevenueReport{}, err
	}
	byMonth := make(map[string]*MonthlyRevenue)
	for _, payment := range payments {
		month := payment.CreatedAt.UTC().Format(revenueMonthLayout)
		bucket, ok := byMonth[month]
		if !ok {
			bucket = &MonthlyRevenue{Month: month}
			byMonth[month] = bucket
		}
		bucket.AmountCents += payment.AmountCents
		bucket.Payments++
	}
	months := make([]MonthlyRevenue, 0, len(byMonth))
	for _, bucket := range byMonth {
		months = append(months, *bucket)
	}
	sort.Slice(months, func(left, right int) bool {
		return months[left].Month < months[right].Month
	})
	return RevenueReport{Since: since, Months: months, NewUsers: newUsers}, nil
}
