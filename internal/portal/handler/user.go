package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/portal/service"
)

type UserService interface {
	List(ctx context.Context, p domain.Principal) ([]*domain.User, error)
	Create(ctx context.Context, p domain.Principal, in service.CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, p domain.Principal, id string, in service.UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, p domain.Principal, id string) error
	Licenses(ctx context.Context, p domain.Principal, userID string) ([]*domain.License, error)
	AddLicense(ctx context.Context, p domain.Principal, userID, softwareID string) (*domain.License, error)
	RemoveLicense(ctx context.Context, p domain.Principal, userID, licenseID string) (*domain.License, error)
}

type UserHandler struct {
	service UserService
	logger  *zap.Logger
}

func NewUserHandler(s UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{service: s, logger: logger.Named("user-handler")}
}

// List GET /api/users (ADMIN, MANAGER)
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	users, err := h.service.List(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=ADMIN MANAGER USER"`
	ManagerID string `json:"managerId"`
}

// Create POST /api/users (ADMIN)
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req createUserRequest
	if !decode(w, r, &req) {
		return
	}

	u, err := h.service.Create(r.Context(), p, service.CreateUserInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		ManagerID: req.ManagerID,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

type updateUserRequest struct {
	FirstName *string          `json:"firstName"`
	LastName  *string          `json:"lastName"`
	Email     *string          `json:"email" validate:"omitempty,email"`
	Role      *string          `json:"role" validate:"omitempty,oneof=ADMIN MANAGER USER"`
	ManagerID optional[string] `json:"managerId"`
	Password  *string          `json:"password" validate:"omitempty,min=8,max=72"`
}

// Update PUT /api/users/{id}. managerId: null снимает менеджера.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decode(w, r, &req) {
		return
	}

	in := service.UpdateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Role:      req.Role,
		Password:  req.Password,
	}
	if req.ManagerID.Set {
		in.ManagerID = req.ManagerID.Value
		if in.ManagerID == nil {
			empty := ""
			in.ManagerID = &empty
		}
	}

	u, err := h.service.Update(r.Context(), p, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Delete DELETE /api/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "User deleted successfully"})
}

// Licenses GET /api/users/{userId}/licenses
func (h *UserHandler) Licenses(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.service.Licenses(r.Context(), p, chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type addLicenseRequest struct {
	SoftwareID string `json:"softwareId" validate:"required"`
}

// AddLicense POST /api/users/{userId}/licenses: ручная выдача
func (h *UserHandler) AddLicense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req addLicenseRequest
	if !decode(w, r, &req) {
		return
	}
	l, err := h.service.AddLicense(r.Context(), p, chi.URLParam(r, "userId"), req.SoftwareID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

// RemoveLicense DELETE /api/users/{userId}/licenses/{licenseId}
func (h *UserHandler) RemoveLicense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	l, err := h.service.RemoveLicense(r.Context(), p, chi.URLParam(r, "userId"), chi.URLParam(r, "licenseId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
