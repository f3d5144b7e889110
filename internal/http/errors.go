package http

import (
	"errors"
	"net/http"

	"spendlog/internal/core"
	"spendlog/internal/log"
)

const (
	detailUserNotFound    = "User not found"
	detailExpenseNotFound = "Expense not found"
	detailConflict        = "A user with this email or external id already exists"
	detailInternal        = "Internal server error"
)

// requestError pins an explicit status on err. Malformed query parameters
// and bodies use it to answer 400 where plain validation answers 422.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{status: http.StatusBadRequest, err: err}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicate):
		return http.StatusConflict
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// detailFor renders the client-facing message. Server errors never leak
// their cause.
func detailFor(err error, status int, notFound string) string {
	switch status {
	case http.StatusNotFound:
		return notFound
	case http.StatusConflict:
		return detailConflict
	case http.StatusInternalServerError:
		return detailInternal
	case http.StatusRequestEntityTooLarge:
		return "Request body too large"
	}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return log.ErrorTypeNotFound
	case http.StatusConflict:
		return log.ErrorTypeConflict
	default:
		return log.ErrorTypeValidation
	}
}

// writeError answers with {"detail": ...}. notFound is the message used
// when err resolves to core.ErrNotFound.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeInternal,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
		)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldError, err.Error(),
			log.FieldErrorType, errorType(status),
			log.FieldStatusCode, status,
		)
	}
	ErrorResponse(status, detailFor(err, status, notFound)).Write(w)
}
