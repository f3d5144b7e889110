package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/ports"
)

// Publisher announces recorded expenses to downstream consumers.
type Publisher interface {
	PublishExpenseRecorded(ctx context.Context, e core.Expense) error
}

// Invalidator drops derived state for a user after a write.
type Invalidator interface {
	Invalidate(userID int64)
}

// ExpenseStore is what the expense service needs from storage.
type ExpenseStore interface {
	ports.UserReader
	ports.ExpenseWriter
	ports.ExpenseLister
}

// NewExpense is the caller-supplied part of an expense. A zero Date means
// today.
type NewExpense struct {
	Title    string
	Amount   decimal.Decimal
	Category string
	Date     core.Date
}

// ExpenseService orchestrates expense writes across storage, the analytics
// cache and AMQP.
type ExpenseService struct {
	store       ExpenseStore
	publisher   Publisher
	invalidator Invalidator
	logger      *log.StructuredLogger
	base        *log.Logger
	today       func() core.Date
}

func NewExpenseService(store ExpenseStore, publisher Publisher, invalidator Invalidator, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      log.NewStructuredLogger(logger),
		base:        logger.WithComponent(log.ComponentExpense),
		today:       core.Today,
	}
}

// CreateExpense saves an expense for userID and publishes a recorded event.
// Publishing is best effort; the export sweep picks up anything missed.
func (s *ExpenseService) CreateExpense(ctx context.Context, userID int64, in NewExpense) (core.Expense, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return core.Expense{}, err
	}

	e := core.Expense{
		UserID:   userID,
		Title:    strings.TrimSpace(in.Title),
		Amount:   in.Amount,
		Category: strings.TrimSpace(in.Category),
		Date:     in.Date,
	}
	if e.Date.IsEmpty() {
		e.Date = s.today()
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.invalidate(userID)

	s.logger.LogExpenseCreated(ctx, saved.ID, saved.UserID, saved.Title,
		core.FormatAmount(saved.Amount), saved.Category, saved.Date.String())

	if err := s.publish(ctx, saved); err != nil {
		s.logger.LogError(ctx, "Failed to publish expense recorded event", err,
			log.ComponentAMQP, log.OpCreate, log.NewFields().WithExpense(saved.ID, saved.UserID, saved.Title,
				core.FormatAmount(saved.Amount), saved.Category, saved.Date.String()))
	}

	return saved, nil
}

// DeleteExpense removes an expense owned by userID.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)
	s.base.InfoContext(ctx, "Expense deleted",
		log.FieldExpenseID, id,
		log.FieldUserID, userID,
		log.FieldOperation, log.OpDelete,
	)
	return nil
}

// ListExpenses returns userID's expenses in r, newest first. Unknown users
// yield core.ErrNotFound rather than an empty list.
func (s *ExpenseService) ListExpenses(ctx context.Context, userID int64, r core.DateRange) ([]core.Expense, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, userID, r)
}

func (s *ExpenseService) publish(ctx context.Context, e core.Expense) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishExpenseRecorded(ctx, e)
}

func (s *ExpenseService) invalidate(userID int64) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID)
	}
}
