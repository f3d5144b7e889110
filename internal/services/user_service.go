package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/ports"
)

// UserStore is what the user service needs from storage.
type UserStore interface {
	ports.UserReader
	ports.UserWriter
	ports.ExpenseLister
}

// NewUser is the payload for explicit user creation.
type NewUser struct {
	Name       string
	Email      string
	Allowance  decimal.Decimal
	ExternalID string
}

// IdentitySync carries profile data pushed by the identity provider. Name
// wins over FirstName/LastName when set.
type IdentitySync struct {
	ExternalID string
	Name       string
	FirstName  string
	LastName   string
	Email      string
}

type UserService struct {
	store       UserStore
	invalidator Invalidator
	logger      *log.Logger
}

func NewUserService(store UserStore, invalidator Invalidator, logger *log.Logger) *UserService {
	if logger == nil {
		logger = log.Discard()
	}
	return &UserService{
		store:       store,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentUser),
	}
}

// CreateUser stores a new user. When ExternalID matches an existing user
// that user is returned unchanged and created is false.
func (s *UserService) CreateUser(ctx context.Context, in NewUser) (u core.User, created bool, err error) {
	externalID := strings.TrimSpace(in.ExternalID)
	if externalID != "" {
		existing, err := s.store.GetUserByExternalID(ctx, externalID)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, core.ErrNotFound):
			return core.User{}, false, err
		}
	}

	u = core.User{
		ExternalID: externalID,
		Name:       strings.TrimSpace(in.Name),
		Email:      strings.TrimSpace(in.Email),
		Allowance:  in.Allowance,
	}
	if err := u.Validate(); err != nil {
		return core.User{}, false, err
	}

	u, err = s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, false, fmt.Errorf("create user: %w", err)
	}
	s.logger.InfoContext(ctx, "User created", log.FieldUserID, u.ID, log.FieldOperation, log.OpCreate)
	return u, true, nil
}

// SyncIdentity upserts a user keyed by external id. New users start with a
// zero allowance; existing users keep theirs and only get name and email
// refreshed.
func (s *UserService) SyncIdentity(ctx context.Context, in IdentitySync) (core.User, error) {
	externalID := strings.TrimSpace(in.ExternalID)
	email := strings.TrimSpace(in.Email)
	if externalID == "" {
		return core.User{}, core.ErrMissingExternalID
	}
	if email == "" {
		return core.User{}, core.ErrInvalidEmail
	}
	name := syncName(in)

	existing, err := s.store.GetUserByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return core.User{}, err
	}

	if err == nil {
		probe := existing
		probe.Name, probe.Email = name, email
		if err := probe.Validate(); err != nil {
			return core.User{}, err
		}
		u, err := s.store.UpdateIdentity(ctx, existing.ID, name, email)
		if err != nil {
			return core.User{}, fmt.Errorf("sync user: %w", err)
		}
		s.logger.InfoContext(ctx, "User identity refreshed", log.FieldUserID, u.ID, log.FieldOperation, log.OpSync)
		return u, nil
	}

	u := core.User{ExternalID: externalID, Name: name, Email: email, Allowance: decimal.Zero}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	u, err = s.store.CreateUser(ctx, u)
	if err != nil {
		return core.User{}, fmt.Errorf("sync user: %w", err)
	}
	s.logger.InfoContext(ctx, "User created from identity sync", log.FieldUserID, u.ID, log.FieldOperation, log.OpSync)
	return u, nil
}

// syncName falls back to the email local part when the provider sends no
// usable name.
func syncName(in IdentitySync) string {
	if name := strings.TrimSpace(in.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(strings.TrimSpace(in.FirstName) + " " + strings.TrimSpace(in.LastName)); name != "" {
		return name
	}
	local, _, _ := strings.Cut(strings.TrimSpace(in.Email), "@")
	return local
}

func (s *UserService) GetUser(ctx context.Context, id int64) (core.User, error) {
	return s.store.GetUser(ctx, id)
}

// GetUserWithExpenses returns the user and all their expenses, newest first.
func (s *UserService) GetUserWithExpenses(ctx context.Context, id int64) (core.User, []core.Expense, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return core.User{}, nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, id, core.DateRange{})
	if err != nil {
		return core.User{}, nil, err
	}
	return u, expenses, nil
}

func (s *UserService) GetUserByExternalID(ctx context.Context, externalID string) (core.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return core.User{}, core.ErrMissingExternalID
	}
	return s.store.GetUserByExternalID(ctx, externalID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]core.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateAllowance sets the user's daily allowance. Negative values are
// rejected with core.ErrInvalidAllowance.
func (s *UserService) UpdateAllowance(ctx context.Context, id int64, allowance decimal.Decimal) (core.User, error) {
	if err := core.ValidateAllowance(allowance); err != nil {
		return core.User{}, err
	}
	u, err := s.store.UpdateAllowance(ctx, id, allowance)
	if err != nil {
		return core.User{}, err
	}
	s.invalidate(id)
	s.logger.InfoContext(ctx, "Allowance updated",
		log.FieldUserID, id,
		log.FieldAmount, core.FormatAmount(allowance),
		log.FieldOperation, log.OpUpdate,
	)
	return u, nil
}

// DeleteUser removes the user and, through the store, all their expenses.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidate(id)
	s.logger.InfoContext(ctx, "User deleted", log.FieldUserID, id, log.FieldOperation, log.OpDelete)
	return nil
}

func (s *UserService) invalidate(userID int64) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
}
