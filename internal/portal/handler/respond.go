package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra/auth"
)

// errorBody — единый формат ошибки для клиента.
type errorBody struct {
	Error  string       `json:"error"`
	Errors []fieldError `json:"errors,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusOf маппит сентинелы домена в HTTP-коды.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "Insufficient permissions"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyProcessed):
		return http.StatusBadRequest, "Bad request"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeError отдает ошибку домена клиенту. Внутренние ошибки только логируются,
// наружу уходит общий текст.
func writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, msg := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeMessage(w, status, msg)
		return
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		msg = derr.Message
	}
	writeMessage(w, status, msg)
}

// principal достает пользователя, положенного auth middleware.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
	}
	return p, ok
}

// parsePage читает ?page=&limit= с дефолтами 1 и 20.
func parsePage(w http.ResponseWriter, r *http.Request) (domain.PageRequest, bool) {
	q := r.URL.Query()
	page, limit := domain.DefaultPage, domain.DefaultLimit

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "Page must be a positive integer")
			return domain.PageRequest{}, false
		}
		page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > domain.MaxLimit {
			writeMessage(w, http.StatusBadRequest, "Limit must be between 1 and "+strconv.Itoa(domain.MaxLimit))
			return domain.PageRequest{}, false
		}
		limit = n
	}

	req, err := domain.NewPageRequest(page, limit)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return domain.PageRequest{}, false
	}
	return req, true
}
