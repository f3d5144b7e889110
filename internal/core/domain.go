package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UncategorizedLabel is the category reported for expenses recorded without one.
const UncategorizedLabel = "Uncategorized"

const (
	maxTitleLength    = 200
	maxCategoryLength = 100
	maxNameLength     = 200
)

type (
	User struct {
		ID         int64
		ExternalID string // identity-provider subject, empty for locally created users
		Name       string
		Email      string
		Allowance  decimal.Decimal // per calendar day
		CreatedAt  time.Time
	}

	Expense struct {
		ID        int64
		UserID    int64
		Title     string
		Amount    decimal.Decimal
		Category  string // optional
		Date      Date
		CreatedAt time.Time // set once by the store
	}
)

// ValidationError reports a single invalid field. Handlers surface it as a client error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")

	ErrEmptyTitle        = &ValidationError{Field: "title", Message: "must not be empty"}
	ErrTitleTooLong      = &ValidationError{Field: "title", Message: "too long (max 200 characters)"}
	ErrCategoryTooLong   = &ValidationError{Field: "category", Message: "too long (max 100 characters)"}
	ErrInvalidAmount     = &ValidationError{Field: "amount", Message: "must be a decimal number"}
	ErrInvalidAllowance  = &ValidationError{Field: "allowance", Message: "must be a non-negative decimal number"}
	ErrEmptyName         = &ValidationError{Field: "name", Message: "must not be empty"}
	ErrNameTooLong       = &ValidationError{Field: "name", Message: "too long (max 200 characters)"}
	ErrInvalidEmail      = &ValidationError{Field: "email", Message: "must be a valid address"}
	ErrMissingExternalID = &ValidationError{Field: "external_id", Message: "is required"}
	ErrInvalidDate       = &ValidationError{Field: "date", Message: "must be a calendar day in YYYY-MM-DD format"}
	ErrInvalidDateRange  = &ValidationError{Field: "date_from", Message: "must not be after date_to"}
)

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NormalizeCategory maps an absent category to UncategorizedLabel.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return UncategorizedLabel
	}
	return category
}

// ValidateAllowance rejects negative allowances; the engine is undefined for them.
func ValidateAllowance(a decimal.Decimal) error {
	if a.IsNegative() {
		return ErrInvalidAllowance
	}
	return nil
}

func (u User) Validate() error {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(u.Email)); err != nil {
		return ErrInvalidEmail
	}
	return ValidateAllowance(u.Allowance)
}

func (e Expense) Validate() error {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return ErrEmptyTitle
	}
	if len(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	if len(strings.TrimSpace(e.Category)) > maxCategoryLength {
		return ErrCategoryTooLong
	}
	return e.Date.Validate()
}
