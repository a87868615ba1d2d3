package service

import (
	"cmp"
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
)

type LicenseRepository interface {
	ListLicenses(ctx context.Context, f domain.LicenseFilter, page domain.PageRequest, withUser bool) ([]*domain.License, int, error)
	GetLicense(ctx context.Context, orgID, id string) (*domain.License, error)
	TransitionLicense(ctx context.Context, orgID, id, userID string, from, to domain.LicenseStatus, notes *string) (*domain.License, error)
	LicenseStats(ctx context.Context, orgID string) (*domain.LicenseStats, error)
}

// LicenseQuery — фильтр админского списка лицензий.
type LicenseQuery struct {
	UserID     string
	SoftwareID string
	Status     string
}

// LicenseService — жизненный цикл выданных лицензий и сводка.
type LicenseService struct {
	repo    LicenseRepository
	stats   StatsStore
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewLicenseService(repo LicenseRepository, stats StatsStore, auditor audit.Auditor, logger *zap.Logger) *LicenseService {
	return &LicenseService{
		repo:    repo,
		stats:   stats,
		auditor: auditor,
		logger:  logger.Named("license-service"),
	}
}

func (s *LicenseService) MyLicenses(ctx context.Context, p domain.Principal, status string, page domain.PageRequest) (domain.Page[*domain.License], error) {
	statuses, err := domain.ParseLicenseStatusFilter(status)
	if err != nil {
		return domain.Page[*domain.License]{}, domain.E(domain.ErrInvalidInput, "Invalid status")
	}
	items, total, err := s.repo.ListLicenses(ctx, domain.LicenseFilter{
		OrganizationID: p.OrganizationID,
		UserID:         p.UserID,
		Statuses:       statuses,
	}, page, false)
	if err != nil {
		return domain.Page[*domain.License]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

func (s *LicenseService) All(ctx context.Context, p domain.Principal, q LicenseQuery, page domain.PageRequest) (domain.Page[*domain.License], error) {
	statuses, err := domain.ParseLicenseStatusFilter(q.Status)
	if err != nil {
		return domain.Page[*domain.License]{}, domain.E(domain.ErrInvalidInput, "Invalid status")
	}
	items, total, err := s.repo.ListLicenses(ctx, domain.LicenseFilter{
		OrganizationID: p.OrganizationID,
		UserID:         q.UserID,
		SoftwareID:     q.SoftwareID,
		Statuses:       statuses,
	}, page, true)
	if err != nil {
		return domain.Page[*domain.License]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

// transition описывает одну операцию над лицензией.
type transition struct {
	from, to   domain.LicenseStatus
	ownerOnly  bool
	notes      *string
	action     domain.AuditAction
	invalidMsg string

	// notFound, если задан, заменяет все отказы (нет лицензии, чужая,
	// не тот статус) на 404 с этим текстом.
	notFound string
}

func (t transition) reject() error {
	if t.notFound != "" {
		return domain.E(domain.ErrNotFound, t.notFound)
	}
	return domain.E(domain.ErrInvalidTransition, t.invalidMsg)
}

func (s *LicenseService) apply(ctx context.Context, p domain.Principal, id string, t transition) (*domain.License, error) {
	current, err := s.repo.GetLicense(ctx, p.OrganizationID, id)
	if err != nil {
		if t.notFound != "" && errors.Is(err, domain.ErrNotFound) {
			return nil, t.reject()
		}
		return nil, err
	}

	owner := ""
	if t.ownerOnly {
		// Чужая лицензия для владельца неотличима от отсутствующей
		if current.UserID != p.UserID {
			return nil, domain.E(domain.ErrNotFound, cmp.Or(t.notFound, "License not found"))
		}
		owner = p.UserID
	}
	if current.Status != t.from || current.CanTransitionTo(t.to) != nil {
		return nil, t.reject()
	}

	updated, err := s.repo.TransitionLicense(ctx, p.OrganizationID, id, owner, t.from, t.to, t.notes)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, t.reject()
		}
		return nil, err
	}
	updated.Software = current.Software

	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, t.action, audit.ResourceLicense, updated.ID,
		map[string]any{"userId": updated.UserID, "softwareId": updated.SoftwareID, "from": string(t.from), "to": string(t.to)}))
	s.logger.Info("license status changed",
		zap.String("license_id", updated.ID),
		zap.String("from", string(t.from)),
		zap.String("to", string(t.to)),
		zap.String("by", p.UserID))
	return updated, nil
}

func (s *LicenseService) Revoke(ctx context.Context, p domain.Principal, id string) (*domain.License, error) {
	return s.apply(ctx, p, id, transition{
		from: domain.LicenseActive, to: domain.LicenseRevoked,
		action: domain.ActionLicenseRevoked, invalidMsg: "License is not active",
	})
}

// Return возвращает собственную активную лицензию пользователя.
func (s *LicenseService) Return(ctx context.Context, p domain.Principal, id string) (*domain.License, error) {
	notes := "Returned by user"
	return s.apply(ctx, p, id, transition{
		from: domain.LicenseActive, to: domain.LicenseRevoked, ownerOnly: true, notes: &notes,
		action: domain.ActionLicenseReturned, notFound: "Active license not found",
	})
}

func (s *LicenseService) Suspend(ctx context.Context, p domain.Principal, id string) (*domain.License, error) {
	return s.apply(ctx, p, id, transition{
		from: domain.LicenseActive, to: domain.LicenseSuspended,
		action: domain.ActionLicenseSuspended, invalidMsg: "License is not active",
	})
}

func (s *LicenseService) Reactivate(ctx context.Context, p domain.Principal, id string) (*domain.License, error) {
	return s.apply(ctx, p, id, transition{
		from: domain.LicenseSuspended, to: domain.LicenseActive,
		action: domain.ActionLicenseReactivated, invalidMsg: "License is not suspended",
	})
}

// Stats отдает сводку из кэша, при промахе считает в Postgres и кладет в кэш.
func (s *LicenseService) Stats(ctx context.Context, p domain.Principal) (*domain.LicenseStats, error) {
	if st, ok := s.stats.Get(ctx, p.OrganizationID); ok {
		return st, nil
	}
	version, cacheable := s.stats.Version(ctx, p.OrganizationID)
	st, err := s.repo.LicenseStats(ctx, p.OrganizationID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.stats.Set(ctx, p.OrganizationID, st, version)
	}
	return st, nil
}
