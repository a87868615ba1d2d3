package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
)

type AuditService interface {
	List(ctx context.Context, p domain.Principal, action string, page domain.PageRequest) (domain.Page[*domain.AuditEntry], error)
}

type AuditHandler struct {
	service AuditService
	logger  *zap.Logger
}

func NewAuditHandler(s AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{service: s, logger: logger.Named("audit-handler")}
}

// List возвращает журнал организации с фильтром по действию
// GET /api/audit?action=license.revoked&page=1
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	page, ok := parsePage(w, r)
	if !ok {
		return
	}
	res, err := h.service.List(r.Context(), p, r.URL.Query().Get("action"), page)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
