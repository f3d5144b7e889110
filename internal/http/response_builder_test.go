package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/core"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		JSON(map[string]int{"id": 3}).
		Write(w)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "value", w.Header().Get("X-Custom"))
	assert.JSONEq(t, `{"id":3}`, w.Body.String())
}

func TestJSONResponseBuilder_NoContent(t *testing.T) {
	w := httptest.NewRecorder()
	NoContent().Write(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Type"))
}

func TestJSONResponseBuilder_UnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().JSON(map[string]any{"f": func() {}}).Write(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, w.Body.String())
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		builder *JSONResponseBuilder
		status  int
	}{
		{BadRequestError("bad"), http.StatusBadRequest},
		{UnprocessableEntityError("bad"), http.StatusUnprocessableEntity},
		{NotFoundError("bad"), http.StatusNotFound},
		{InternalServerError("bad"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		tt.builder.Write(w)
		assert.Equal(t, tt.status, w.Code)
		assert.JSONEq(t, `{"detail":"bad"}`, w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get user 4: %w", core.ErrNotFound), http.StatusNotFound},
		{"duplicate", fmt.Errorf("create user: %w", core.ErrDuplicate), http.StatusConflict},
		{"validation", core.ErrEmptyTitle, http.StatusUnprocessableEntity},
		{"allowance", core.ErrInvalidAllowance, http.StatusUnprocessableEntity},
		{"explicit bad request", badRequest(core.ErrInvalidDateRange), http.StatusBadRequest},
		{"storage", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestWriteErrorHidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/users/", nil)
	writeError(w, r, errors.New("database is locked"), detailUserNotFound)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, w.Body.String())
}

func TestWriteErrorDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/users/9", nil)
	writeError(w, r, core.ErrNotFound, detailUserNotFound)
	assert.JSONEq(t, `{"detail":"User not found"}`, w.Body.String())

	w = httptest.NewRecorder()
	writeError(w, r, core.ErrInvalidAllowance, detailUserNotFound)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"detail":"allowance: must be a non-negative decimal number"}`, w.Body.String())
}
