package service

import (
	"context"
	"strings"

	"github.com/xela07ax/omnisme/internal/domain"
)

type AuditReader interface {
	ListAudit(ctx context.Context, f domain.AuditFilter, page domain.PageRequest) ([]*domain.AuditEntry, int, error)
}

type AuditService struct {
	repo AuditReader
}

func NewAuditService(repo AuditReader) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, p domain.Principal, action string, page domain.PageRequest) (domain.Page[*domain.AuditEntry], error) {
	items, total, err := s.repo.ListAudit(ctx, domain.AuditFilter{
		OrganizationID: p.OrganizationID,
		Action:         strings.TrimSpace(action),
	}, page)
	if err != nil {
		return domain.Page[*domain.AuditEntry]{}, err
	}
	return domain.NewPage(items, total, page), nil
}
