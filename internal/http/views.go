package http

import (
	"time"

	"spendlog/internal/core"
	"spendlog/internal/services"
)

// Money leaves the service as decimals and is rendered as JSON numbers.

type userResponse struct {
	ID         int64     `json:"id"`
	ExternalID *string   `json:"external_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Allowance  float64   `json:"allowance"`
	CreatedAt  time.Time `json:"created_at"`
}

type userDetailResponse struct {
	userResponse
	Expenses []expenseResponse `json:"expenses"`
}

type expenseResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Category  *string   `json:"category"`
	Date      core.Date `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

type analyticsResponse struct {
	UserID        int64              `json:"user_id"`
	Name          string             `json:"name"`
	Allowance     float64            `json:"allowance"`
	ExpectedSpend float64            `json:"expected_spend"`
	ActualSpend   float64            `json:"actual_spend"`
	Savings       float64            `json:"savings"`
	DaysCounted   int                `json:"days_counted"`
	OverspendDays int                `json:"overspend_days"`
	ByCategory    map[string]float64 `json:"by_category"`
	AIInsight     *string            `json:"ai_insight,omitempty"`
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func newUserResponse(u core.User) userResponse {
	return userResponse{
		ID:         u.ID,
		ExternalID: optionalString(u.ExternalID),
		Name:       u.Name,
		Email:      u.Email,
		Allowance:  u.Allowance.InexactFloat64(),
		CreatedAt:  u.CreatedAt,
	}
}

func newUserListResponse(users []core.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	return out
}

func newUserDetailResponse(u core.User, expenses []core.Expense) userDetailResponse {
	return userDetailResponse{
		userResponse: newUserResponse(u),
		Expenses:     newExpenseListResponse(expenses),
	}
}

func newExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:        e.ID,
		UserID:    e.UserID,
		Title:     e.Title,
		Amount:    e.Amount.InexactFloat64(),
		Category:  optionalString(e.Category),
		Date:      e.Date,
		CreatedAt: e.CreatedAt,
	}
}

func newExpenseListResponse(expenses []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, newExpenseResponse(e))
	}
	return out
}

func newAnalyticsResponse(rep services.Report) analyticsResponse {
	byCategory := make(map[string]float64, len(rep.Result.Categories))
	for _, c := range rep.Result.Categories {
		byCategory[c.Category] = c.Amount.InexactFloat64()
	}
	resp := analyticsResponse{
		UserID:        rep.User.ID,
		Name:          rep.User.Name,
		Allowance:     rep.User.Allowance.InexactFloat64(),
		ExpectedSpend: rep.Result.ExpectedSpend.InexactFloat64(),
		ActualSpend:   rep.Result.ActualSpend.InexactFloat64(),
		Savings:       rep.Result.Savings.InexactFloat64(),
		DaysCounted:   rep.Result.DaysCounted,
		OverspendDays: rep.Result.OverspendDays,
		ByCategory:    byCategory,
	}
	if rep.Insight != nil {
		text := rep.Insight.Text
		resp.AIInsight = &text
	}
	return resp
}
