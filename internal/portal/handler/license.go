package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/portal/service"
)

type LicenseService interface {
	MyLicenses(ctx context.Context, p domain.Principal, status string, page domain.PageRequest) (domain.Page[*domain.License], error)
	All(ctx context.Context, p domain.Principal, q service.LicenseQuery, page domain.PageRequest) (domain.Page[*domain.License], error)
	Revoke(ctx context.Context, p domain.Principal, id string) (*domain.License, error)
	Return(ctx context.Context, p domain.Principal, id string) (*domain.License, error)
	Suspend(ctx context.Context, p domain.Principal, id string) (*domain.License, error)
	Reactivate(ctx context.Context, p domain.Principal, id string) (*domain.License, error)
	Stats(ctx context.Context, p domain.Principal) (*domain.LicenseStats, error)
}

type LicenseHandler struct {
	service LicenseService
	logger  *zap.Logger
}

func NewLicenseHandler(s LicenseService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{service: s, logger: logger.Named("license-handler")}
}

type licenseResponse struct {
	Message string          `json:"message"`
	License *domain.License `json:"license"`
}

// MyLicenses GET /api/licenses/my-licenses?status&page&limit
func (h *LicenseHandler) MyLicenses(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	res, err := h.service.MyLicenses(r.Context(), p, r.URL.Query().Get("status"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// All GET /api/licenses/all?userId&softwareId&status (ADMIN)
func (h *LicenseHandler) All(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	res, err := h.service.All(r.Context(), p, service.LicenseQuery{
		UserID:     q.Get("userId"),
		SoftwareID: q.Get("softwareId"),
		Status:     q.Get("status"),
	}, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LicenseHandler) Stats(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	st, err := h.service.Stats(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type licenseAction func(ctx context.Context, p domain.Principal, id string) (*domain.License, error)

// transition оборачивает переход статуса лицензии в хендлер с единым ответом.
func (h *LicenseHandler) transition(action licenseAction, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := principal(w, r)
		if !ok {
			return
		}
		l, err := action(r.Context(), p, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, licenseResponse{Message: message, License: l})
	}
}

// Revoke PUT /api/licenses/{id}/revoke (ADMIN)
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Revoke, "License revoked successfully")(w, r)
}

// Return PUT /api/licenses/{id}/return: владелец возвращает свою лицензию
func (h *LicenseHandler) Return(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Return, "License returned successfully")(w, r)
}

func (h *LicenseHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Suspend, "License suspended successfully")(w, r)
}

func (h *LicenseHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(h.service.Reactivate, "License reactivated successfully")(w, r)
}
