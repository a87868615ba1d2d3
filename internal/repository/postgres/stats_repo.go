package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/xela07ax/omnisme/internal/domain"
)

// LicenseStats собирает сводку по лицензиям организации.
func (s *Store) LicenseStats(ctx context.Context, orgID string) (*domain.LicenseStats, error) {
	st := &domain.LicenseStats{}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'ACTIVE')
		FROM licenses WHERE organization_id = $1`, orgID,
	).Scan(&st.TotalLicenses, &st.ActiveLicenses)
	if err != nil {
		return nil, fmt.Errorf("postgres: count licenses: %w", err)
	}

	// Стоимость и группировку считаем в Go по правилам биллинга
	active, err := s.listLicenses(ctx, s.pool, s.sb.Select(licenseColumns+", "+softwareColumns).
		From("licenses l").
		Join("software s ON s.id = l.software_id").
		Where(sq.Eq{"l.organization_id": orgID, "l.status": domain.LicenseActive}), false)
	if err != nil {
		return nil, err
	}
	st.MonthlyTotalCost = domain.MonthlyTotal(active)
	st.LicensesBySoftware = domain.CountBySoftware(active)

	st.RecentActivity, err = s.listLicenses(ctx, s.pool, s.sb.Select(licenseColumns+", "+softwareColumns+", "+licenseUserColumns).
		From("licenses l").
		Join("software s ON s.id = l.software_id").
		Join("users us ON us.id = l.user_id").
		Where(sq.Eq{"l.organization_id": orgID}).
		OrderBy("l.assigned_at DESC").
		Limit(domain.RecentActivityLimit), true)
	if err != nil {
		return nil, err
	}
	return st, nil
}
