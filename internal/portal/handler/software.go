package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
)

type SoftwareService interface {
	List(ctx context.Context, p domain.Principal, f domain.SoftwareFilter, page domain.PageRequest) (domain.Page[*domain.Software], error)
	Get(ctx context.Context, p domain.Principal, id string) (*domain.Software, error)
	Categories(ctx context.Context, p domain.Principal) ([]string, error)
	Create(ctx context.Context, p domain.Principal, sw *domain.Software) (*domain.Software, error)
	Update(ctx context.Context, p domain.Principal, id string, patch domain.SoftwarePatch) (*domain.Software, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
}

type SoftwareHandler struct {
	service SoftwareService
	logger  *zap.Logger
}

func NewSoftwareHandler(s SoftwareService, logger *zap.Logger) *SoftwareHandler {
	return &SoftwareHandler{service: s, logger: logger.Named("software-handler")}
}

// softwareRequest — тело и создания, и частичного обновления.
type softwareRequest struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Category         *string          `json:"category"`
	Vendor           *string          `json:"vendor"`
	CostPerLicense   *decimal.Decimal `json:"costPerLicense"`
	BillingCycle     *string          `json:"billingCycle" validate:"omitempty,oneof=MONTHLY YEARLY ONE_TIME"`
	LogoURL          *string          `json:"logoUrl" validate:"omitempty,url"`
	WebsiteURL       *string          `json:"websiteUrl" validate:"omitempty,url"`
	RequiresApproval *bool            `json:"requiresApproval"`
	AutoProvision    *bool            `json:"autoProvision"`
}

func (req softwareRequest) patch() domain.SoftwarePatch {
	p := domain.SoftwarePatch{
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		Vendor:           req.Vendor,
		CostPerLicense:   req.CostPerLicense,
		LogoURL:          req.LogoURL,
		WebsiteURL:       req.WebsiteURL,
		RequiresApproval: req.RequiresApproval,
		AutoProvision:    req.AutoProvision,
	}
	if req.BillingCycle != nil {
		c := domain.BillingCycle(*req.BillingCycle)
		p.BillingCycle = &c
	}
	return p
}

// List GET /api/software?page&limit&search&category
func (h *SoftwareHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	res, err := h.service.List(r.Context(), p, domain.SoftwareFilter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}, page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SoftwareHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	sw, err := h.service.Get(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

func (h *SoftwareHandler) Categories(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	cats, err := h.service.Categories(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// Create POST /api/software (ADMIN). По умолчанию позиция требует согласования.
func (h *SoftwareHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req softwareRequest
	if !decode(w, r, &req) {
		return
	}

	sw := &domain.Software{RequiresApproval: true}
	req.patch().Apply(sw)

	created, err := h.service.Create(r.Context(), p, sw)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update PUT /api/software/{id} (ADMIN)
func (h *SoftwareHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req softwareRequest
	if !decode(w, r, &req) {
		return
	}

	sw, err := h.service.Update(r.Context(), p, chi.URLParam(r, "id"), req.patch())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sw)
}

// Delete DELETE /api/software/{id} (ADMIN)
func (h *SoftwareHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Software deleted successfully"})
}
