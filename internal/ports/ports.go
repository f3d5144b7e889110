// Package ports declares the interfaces that services depend on. Storage
// backends and the ledger export sink implement them.
package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

// Ports for outbound adapters.
type (
	UserReader interface {
		// GetUser returns core.ErrNotFound for unknown ids.
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByExternalID(ctx context.Context, externalID string) (core.User, error)
		ListUsers(ctx context.Context) ([]core.User, error)
	}

	UserWriter interface {
		// CreateUser assigns ID and CreatedAt. Duplicate email or external id
		// yields core.ErrDuplicate.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		// UpdateIdentity rewrites name and email of an existing user.
		UpdateIdentity(ctx context.Context, id int64, name, email string) (core.User, error)
		UpdateAllowance(ctx context.Context, id int64, allowance decimal.Decimal) (core.User, error)
		// DeleteUser removes the user and every expense it owns.
		DeleteUser(ctx context.Context, id int64) error
	}

	ExpenseWriter interface {
		// CreateExpense assigns ID and CreatedAt.
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		// DeleteExpense removes an expense owned by userID.
		DeleteExpense(ctx context.Context, userID, id int64) error
	}

	// ExpenseLister returns a user's expenses, newest first (date desc, id desc).
	ExpenseLister interface {
		// ListExpenses filters on the inclusive range; zero bounds are open.
		ListExpenses(ctx context.Context, userID int64, r core.DateRange) ([]core.Expense, error)
	}

	// ExportQueue tracks which expenses still need to reach the ledger sink.
	ExportQueue interface {
		GetExpense(ctx context.Context, id int64) (core.Expense, error)
		ListPendingExport(ctx context.Context, limit int) ([]core.Expense, error)
		// IsExported reports whether the expense already reached the sink.
		IsExported(ctx context.Context, id int64) (bool, error)
		// MarkExported records the sink's row reference for the expense.
		MarkExported(ctx context.Context, id int64, ref string) error
	}

	// LedgerAppender writes one expense to an external ledger.
	LedgerAppender interface {
		AppendExpense(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Store is everything a full backend provides.
type Store interface {
	UserReader
	UserWriter
	ExpenseWriter
	ExpenseLister
	ExportQueue
	Pinger
	Close() error
}
