package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/core"
	"spendlog/internal/storage/memory"
)

type recordingPublisher struct {
	published []core.Expense
	err       error
}

func (p *recordingPublisher) PublishExpenseRecorded(_ context.Context, e core.Expense) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, e)
	return nil
}

type recordingInvalidator struct{ users []int64 }

func (i *recordingInvalidator) Invalidate(userID int64) { i.users = append(i.users, userID) }

func newExpenseFixture(t *testing.T) (*ExpenseService, *memory.Store, *recordingPublisher, *recordingInvalidator, core.User) {
	t.Helper()
	store := memory.New()
	u, err := store.CreateUser(context.Background(), core.User{Name: "Ada", Email: "ada@example.com", Allowance: amount("10")})
	require.NoError(t, err)
	pub := &recordingPublisher{}
	inv := &recordingInvalidator{}
	svc := NewExpenseService(store, pub, inv, nil)
	svc.today = func() core.Date { return core.NewDate(2025, 3, 15) }
	return svc, store, pub, inv, u
}

func TestCreateExpense(t *testing.T) {
	svc, _, pub, inv, u := newExpenseFixture(t)

	e, err := svc.CreateExpense(context.Background(), u.ID, NewExpense{
		Title:    "  Lunch ",
		Amount:   amount("12.50"),
		Category: " Food ",
		Date:     core.NewDate(2025, 3, 1),
	})
	require.NoError(t, err)
	assert.NotZero(t, e.ID)
	assert.Equal(t, "Lunch", e.Title)
	assert.Equal(t, "Food", e.Category)
	assert.Equal(t, "2025-03-01", e.Date.String())
	assert.False(t, e.CreatedAt.IsZero())

	require.Len(t, pub.published, 1)
	assert.Equal(t, e.ID, pub.published[0].ID)
	assert.Equal(t, []int64{u.ID}, inv.users)
}

func TestCreateExpenseDefaultsToToday(t *testing.T) {
	svc, _, _, _, u := newExpenseFixture(t)

	e, err := svc.CreateExpense(context.Background(), u.ID, NewExpense{Title: "Bus", Amount: amount("2")})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-15", e.Date.String())
}

func TestCreateExpenseValidation(t *testing.T) {
	svc, store, pub, _, u := newExpenseFixture(t)

	tests := []struct {
		name string
		in   NewExpense
		want error
	}{
		{"empty title", NewExpense{Title: " ", Amount: amount("1")}, core.ErrEmptyTitle},
		{"long category", NewExpense{Title: "x", Category: strings.Repeat("c", 101), Amount: amount("1")}, core.ErrCategoryTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateExpense(context.Background(), u.ID, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	list, err := store.ListExpenses(context.Background(), u.ID, core.DateRange{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, pub.published)
}

func TestCreateExpenseUnknownUser(t *testing.T) {
	svc, _, pub, _, _ := newExpenseFixture(t)

	_, err := svc.CreateExpense(context.Background(), 999, NewExpense{Title: "x", Amount: amount("1")})
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.Empty(t, pub.published)
}

func TestCreateExpensePublishFailureIsNotFatal(t *testing.T) {
	svc, store, pub, _, u := newExpenseFixture(t)
	pub.err = errors.New("circuit breaker is open")

	e, err := svc.CreateExpense(context.Background(), u.ID, NewExpense{Title: "x", Amount: amount("1")})
	require.NoError(t, err)

	got, err := store.GetExpense(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
}

func TestCreateExpenseWithoutPublisher(t *testing.T) {
	store := memory.New()
	u, err := store.CreateUser(context.Background(), core.User{Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)

	svc := NewExpenseService(store, nil, nil, nil)
	_, err = svc.CreateExpense(context.Background(), u.ID, NewExpense{Title: "x", Amount: amount("-3")})
	assert.NoError(t, err)
}

func TestDeleteExpense(t *testing.T) {
	svc, _, _, inv, u := newExpenseFixture(t)
	ctx := context.Background()

	e, err := svc.CreateExpense(ctx, u.ID, NewExpense{Title: "x", Amount: amount("1")})
	require.NoError(t, err)

	assert.True(t, errors.Is(svc.DeleteExpense(ctx, u.ID+1, e.ID), core.ErrNotFound), "other users cannot delete it")
	require.NoError(t, svc.DeleteExpense(ctx, u.ID, e.ID))
	assert.True(t, errors.Is(svc.DeleteExpense(ctx, u.ID, e.ID), core.ErrNotFound))
	assert.Equal(t, []int64{u.ID, u.ID}, inv.users)
}

func TestListExpenses(t *testing.T) {
	svc, _, _, _, u := newExpenseFixture(t)
	ctx := context.Background()

	for _, d := range []core.Date{core.NewDate(2025, 1, 1), core.NewDate(2025, 1, 3), core.NewDate(2025, 1, 2)} {
		_, err := svc.CreateExpense(ctx, u.ID, NewExpense{Title: "x", Amount: amount("1"), Date: d})
		require.NoError(t, err)
	}

	list, err := svc.ListExpenses(ctx, u.ID, core.DateRange{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "2025-01-03", list[0].Date.String())
	assert.Equal(t, "2025-01-01", list[2].Date.String())

	windowed, err := svc.ListExpenses(ctx, u.ID, core.DateRange{From: core.NewDate(2025, 1, 2)})
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	_, err = svc.ListExpenses(ctx, 999, core.DateRange{})
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = svc.ListExpenses(ctx, u.ID, core.DateRange{From: core.NewDate(2025, 2, 1), To: core.NewDate(2025, 1, 1)})
	assert.True(t, errors.Is(err, core.ErrInvalidDateRange))
}
