package http

import (
	"net/http"

	"spendlog/internal/services"
)

type createExpenseRequest struct {
	Title    string      `json:"title"`
	Amount   jsonDecimal `json:"amount"`
	Category string      `json:"category"`
	Date     string      `json:"date"`
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	var req createExpenseRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	amount, err := req.Amount.amount()
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	date, err := optionalDate(req.Date)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	e, err := s.expenses.CreateExpense(r.Context(), userID, services.NewExpense{
		Title:    sanitizeInput(req.Title),
		Amount:   amount,
		Category: sanitizeInput(req.Category),
		Date:     date,
	})
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).JSON(newExpenseResponse(e)).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	window, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}

	expenses, err := s.expenses.ListExpenses(r.Context(), userID, window)
	if err != nil {
		writeError(w, r, err, detailUserNotFound)
		return
	}
	NewJSONResponse().JSON(newExpenseListResponse(expenses)).Write(w)
}

// handleDeleteExpense removes an expense only when user_id owns it.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err, detailExpenseNotFound)
		return
	}
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, r, err, detailExpenseNotFound)
		return
	}
	if err := s.expenses.DeleteExpense(r.Context(), userID, id); err != nil {
		writeError(w, r, err, detailExpenseNotFound)
		return
	}
	NoContent().Write(w)
}
