package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
)

type SoftwareRepository interface {
	ListSoftware(ctx context.Context, orgID, userID string, f domain.SoftwareFilter, page domain.PageRequest) ([]*domain.Software, int, error)
	GetSoftwareForUser(ctx context.Context, orgID, id, userID string) (*domain.Software, error)
	GetSoftware(ctx context.Context, orgID, id string) (*domain.Software, error)
	CreateSoftware(ctx context.Context, sw *domain.Software) error
	UpdateSoftware(ctx context.Context, sw *domain.Software) error
	DeleteSoftware(ctx context.Context, orgID, id string) error
	ListCategories(ctx context.Context, orgID string) ([]string, error)
}

// SoftwareService — каталог ПО организации.
type SoftwareService struct {
	repo    SoftwareRepository
	stats   StatsStore
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewSoftwareService(repo SoftwareRepository, stats StatsStore, auditor audit.Auditor, logger *zap.Logger) *SoftwareService {
	return &SoftwareService{
		repo:    repo,
		stats:   stats,
		auditor: auditor,
		logger:  logger.Named("software-service"),
	}
}

func (s *SoftwareService) List(ctx context.Context, p domain.Principal, f domain.SoftwareFilter, page domain.PageRequest) (domain.Page[*domain.Software], error) {
	f.Search = strings.TrimSpace(f.Search)
	f.Category = strings.TrimSpace(f.Category)

	items, total, err := s.repo.ListSoftware(ctx, p.OrganizationID, p.UserID, f, page)
	if err != nil {
		return domain.Page[*domain.Software]{}, err
	}
	return domain.NewPage(items, total, page), nil
}

func (s *SoftwareService) Get(ctx context.Context, p domain.Principal, id string) (*domain.Software, error) {
	return s.repo.GetSoftwareForUser(ctx, p.OrganizationID, id, p.UserID)
}

func (s *SoftwareService) Categories(ctx context.Context, p domain.Principal) ([]string, error) {
	return s.repo.ListCategories(ctx, p.OrganizationID)
}

func (s *SoftwareService) Create(ctx context.Context, p domain.Principal, sw *domain.Software) (*domain.Software, error) {
	sw.ID = ""
	sw.OrganizationID = p.OrganizationID
	sw.Name = strings.TrimSpace(sw.Name)
	sw.Category = strings.TrimSpace(sw.Category)
	if sw.BillingCycle == "" {
		sw.BillingCycle = domain.BillingMonthly
	}
	if err := validateSoftware(sw); err != nil {
		return nil, err
	}

	if err := s.repo.CreateSoftware(ctx, sw); err != nil {
		s.logger.Error("failed to create software", zap.String("name", sw.Name), zap.Error(err))
		return nil, err
	}

	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionSoftwareCreated, audit.ResourceSoftware, sw.ID,
		map[string]any{"name": sw.Name}))
	return sw, nil
}

// Update применяет частичное обновление поверх текущей версии.
func (s *SoftwareService) Update(ctx context.Context, p domain.Principal, id string, patch domain.SoftwarePatch) (*domain.Software, error) {
	sw, err := s.repo.GetSoftware(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(sw)
	sw.Name = strings.TrimSpace(sw.Name)
	sw.Category = strings.TrimSpace(sw.Category)
	if err := validateSoftware(sw); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateSoftware(ctx, sw); err != nil {
		return nil, err
	}

	// Цена и цикл биллинга входят в расчет сводки
	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionSoftwareUpdated, audit.ResourceSoftware, sw.ID, nil))
	return sw, nil
}

func (s *SoftwareService) Delete(ctx context.Context, p domain.Principal, id string) error {
	if err := s.repo.DeleteSoftware(ctx, p.OrganizationID, id); err != nil {
		return err
	}
	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionSoftwareDeleted, audit.ResourceSoftware, id, nil))
	s.logger.Info("software deleted", zap.String("software_id", id), zap.String("by", p.UserID))
	return nil
}

func validateSoftware(sw *domain.Software) error {
	if sw.Name == "" {
		return domain.E(domain.ErrInvalidInput, "Name is required")
	}
	if sw.Category == "" {
		return domain.E(domain.ErrInvalidInput, "Category is required")
	}
	if sw.CostPerLicense.Valid && sw.CostPerLicense.Decimal.IsNegative() {
		return domain.E(domain.ErrInvalidInput, "Cost per license must be a positive number")
	}
	if _, err := domain.ParseBillingCycle(string(sw.BillingCycle)); err != nil {
		return domain.E(domain.ErrInvalidInput, "Invalid billing cycle")
	}
	return nil
}
