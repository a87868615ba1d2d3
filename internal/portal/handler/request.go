package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/portal/service"
)

// RequestService Описываем, что нам нужно от сервиса заявок
type RequestService interface {
	Create(ctx context.Context, p domain.Principal, in service.CreateRequestInput) (*service.RequestCreated, error)
	Approve(ctx context.Context, p domain.Principal, id string, comments *string) (*domain.DecisionResult, error)
	Reject(ctx context.Context, p domain.Principal, id string, comments string) (*domain.DecisionResult, error)
	Cancel(ctx context.Context, p domain.Principal, id string) (*domain.Request, error)
	MyRequests(ctx context.Context, p domain.Principal, status string, page domain.PageRequest) (domain.Page[*domain.Request], error)
	Pending(ctx context.Context, p domain.Principal, page domain.PageRequest) (domain.Page[*domain.Request], error)
}

type RequestHandler struct {
	service RequestService
	logger  *zap.Logger
}

func NewRequestHandler(s RequestService, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{service: s, logger: logger.Named("request-handler")}
}

type createRequestRequest struct {
	SoftwareID    string `json:"softwareId" validate:"required"`
	Justification string `json:"justification" validate:"required"`
	Priority      string `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH URGENT"`
}

// Create POST /api/requests
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createRequestRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.Create(r.Context(), p, service.CreateRequestInput{
		SoftwareID:    req.SoftwareID,
		Justification: req.Justification,
		Priority:      req.Priority,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// MyRequests GET /api/requests/my-requests?status&page&limit
func (h *RequestHandler) MyRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	res, err := h.service.MyRequests(r.Context(), p, r.URL.Query().Get("status"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pending GET /api/requests/pending-approvals (ADMIN, MANAGER)
func (h *RequestHandler) Pending(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	res, err := h.service.Pending(r.Context(), p, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type decisionRequest struct {
	Comments *string `json:"comments"`
}

type decisionResponse struct {
	Message string          `json:"message"`
	Request *domain.Request `json:"request"`
	License *domain.License `json:"license,omitempty"`
}

// Approve PUT /api/requests/{id}/approve
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.Approve(r.Context(), p, chi.URLParam(r, "id"), req.Comments)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{
		Message: "Request approved successfully",
		Request: res.Request,
		License: res.License,
	})
}

// Reject PUT /api/requests/{id}/reject, комментарий обязателен
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if !decode(w, r, &req) {
		return
	}
	var comments string
	if req.Comments != nil {
		comments = *req.Comments
	}

	res, err := h.service.Reject(r.Context(), p, chi.URLParam(r, "id"), comments)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Message: "Request rejected", Request: res.Request})
}

// Cancel PUT /api/requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	req, err := h.service.Cancel(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Message: "Request cancelled successfully", Request: req})
}
