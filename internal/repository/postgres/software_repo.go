package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/omnisme/internal/domain"
)

const softwareColumns = `s.id, s.organization_id, s.name, s.description, s.category, s.vendor,
	s.cost_per_license, s.billing_cycle, s.logo_url, s.website_url, s.requires_approval,
	s.auto_provision, s.created_at, s.updated_at`

func softwareDest(sw *domain.Software) []any {
	return []any{
		&sw.ID, &sw.OrganizationID, &sw.Name, &sw.Description, &sw.Category, &sw.Vendor,
		&sw.CostPerLicense, &sw.BillingCycle, &sw.LogoURL, &sw.WebsiteURL, &sw.RequiresApproval,
		&sw.AutoProvision, &sw.CreatedAt, &sw.UpdatedAt,
	}
}

// catalogQuery — выборка каталога, обогащенная данными о конкретном пользователе.
// activeOnly задает, считать ли в _count.licenses только ACTIVE.
func (s *Store) catalogQuery(userID string, activeOnly bool) sq.SelectBuilder {
	licenseCount := "(SELECT COUNT(*) FROM licenses cl WHERE cl.software_id = s.id)"
	if activeOnly {
		licenseCount = "(SELECT COUNT(*) FROM licenses cl WHERE cl.software_id = s.id AND cl.status = 'ACTIVE')"
	}
	return s.sb.Select(softwareColumns).
		Column(licenseCount).
		Column("(SELECT COUNT(*) FROM requests cr WHERE cr.software_id = s.id AND cr.status = 'PENDING')").
		Column(sq.Expr("EXISTS (SELECT 1 FROM requests pr WHERE pr.software_id = s.id AND pr.user_id = ? AND pr.status = 'PENDING')", userID)).
		Columns("ul.id", "ul.status", "ul.assigned_at", "ul.expires_at", "ul.last_used_at").
		From("software s").
		// Лицензия пользователя: активная в приоритете, иначе самая свежая
		JoinClause(`LEFT JOIN LATERAL (
			SELECT l.id, l.status, l.assigned_at, l.expires_at, l.last_used_at
			FROM licenses l
			WHERE l.software_id = s.id AND l.user_id = ?
			ORDER BY (l.status = 'ACTIVE') DESC, l.assigned_at DESC
			LIMIT 1
		) ul ON TRUE`, userID)
}

func scanCatalogItem(row pgx.Row, userID string) (*domain.Software, error) {
	sw := &domain.Software{Count: &domain.SoftwareCounts{}}
	var (
		licID      *string
		licStatus  *domain.LicenseStatus
		assignedAt *time.Time
		expiresAt  *time.Time
		lastUsedAt *time.Time
	)
	dest := append(softwareDest(sw),
		&sw.Count.Licenses, &sw.Count.Requests, &sw.HasPendingRequest,
		&licID, &licStatus, &assignedAt, &expiresAt, &lastUsedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if licID != nil {
		sw.UserLicense = &domain.License{
			ID:             *licID,
			OrganizationID: sw.OrganizationID,
			UserID:         userID,
			SoftwareID:     sw.ID,
			Status:         *licStatus,
			ExpiresAt:      expiresAt,
			LastUsedAt:     lastUsedAt,
		}
		if assignedAt != nil {
			sw.UserLicense.AssignedAt = *assignedAt
		}
	}
	return sw, nil
}

func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func softwareWhere(orgID string, f domain.SoftwareFilter) sq.And {
	where := sq.And{sq.Eq{"s.organization_id": orgID}}
	if f.Search != "" {
		p := likePattern(f.Search)
		where = append(where, sq.Or{
			sq.ILike{"s.name": p},
			sq.ILike{"s.description": p},
			sq.ILike{"s.vendor": p},
		})
	}
	if f.Category != "" {
		where = append(where, sq.Eq{"s.category": f.Category})
	}
	return where
}

// ListSoftware — страница каталога по имени (A-Z) и общее число совпадений.
func (s *Store) ListSoftware(ctx context.Context, orgID, userID string, f domain.SoftwareFilter, page domain.PageRequest) ([]*domain.Software, int, error) {
	where := softwareWhere(orgID, f)

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("software s").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build software count: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count software: %w", err)
	}

	query, args, err := s.catalogQuery(userID, false).
		Where(where).
		OrderBy("s.name ASC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build software list: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to query software: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Software, 0, page.Limit)
	for rows.Next() {
		sw, err := scanCatalogItem(rows, userID)
		if err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan software: %w", err)
		}
		items = append(items, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterate software: %w", err)
	}
	return items, total, nil
}

// GetSoftwareForUser отдает карточку ПО с лицензией пользователя и счетчиками.
func (s *Store) GetSoftwareForUser(ctx context.Context, orgID, id, userID string) (*domain.Software, error) {
	query, args, err := s.catalogQuery(userID, true).
		Where(sq.Eq{"s.id": id, "s.organization_id": orgID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build software query: %w", err)
	}
	sw, err := scanCatalogItem(s.pool.QueryRow(ctx, query, args...), userID)
	if err != nil {
		return nil, mapErr(err, "Software not found")
	}
	return sw, nil
}

func (s *Store) GetSoftware(ctx context.Context, orgID, id string) (*domain.Software, error) {
	sw := &domain.Software{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+softwareColumns+` FROM software s WHERE s.id = $1 AND s.organization_id = $2`, id, orgID,
	).Scan(softwareDest(sw)...)
	if err != nil {
		return nil, mapErr(err, "Software not found")
	}
	return sw, nil
}

func (s *Store) CreateSoftware(ctx context.Context, sw *domain.Software) error {
	return insertSoftware(ctx, s.pool, sw)
}

func insertSoftware(ctx context.Context, q querier, sw *domain.Software) error {
	if sw.ID == "" {
		sw.ID = uuid.NewString()
	}
	err := q.QueryRow(ctx, `
		INSERT INTO software (id, organization_id, name, description, category, vendor, cost_per_license,
			billing_cycle, logo_url, website_url, requires_approval, auto_provision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		sw.ID, sw.OrganizationID, sw.Name, sw.Description, sw.Category, sw.Vendor, sw.CostPerLicense,
		sw.BillingCycle, sw.LogoURL, sw.WebsiteURL, sw.RequiresApproval, sw.AutoProvision,
	).Scan(&sw.CreatedAt, &sw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert software: %w", err)
	}
	return nil
}

// UpdateSoftware перезаписывает изменяемые поля позиции.
func (s *Store) UpdateSoftware(ctx context.Context, sw *domain.Software) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE software SET name = $3, description = $4, category = $5, vendor = $6, cost_per_license = $7,
			billing_cycle = $8, logo_url = $9, website_url = $10, requires_approval = $11,
			auto_provision = $12, updated_at = NOW()
		WHERE id = $1 AND organization_id = $2
		RETURNING updated_at`,
		sw.ID, sw.OrganizationID, sw.Name, sw.Description, sw.Category, sw.Vendor, sw.CostPerLicense,
		sw.BillingCycle, sw.LogoURL, sw.WebsiteURL, sw.RequiresApproval, sw.AutoProvision,
	).Scan(&sw.UpdatedAt)
	if err != nil {
		return mapErr(err, "Software not found")
	}
	return nil
}

// DeleteSoftware удаляет позицию, на которую не ссылаются лицензии и заявки.
func (s *Store) DeleteSoftware(ctx context.Context, orgID, id string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM software WHERE id = $1 AND organization_id = $2)`, id, orgID,
		).Scan(&exists)
		if err != nil {
			return mapErr(err, "Software not found")
		}
		if !exists {
			return domain.E(domain.ErrNotFound, "Software not found")
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM software s
			WHERE s.id = $1 AND s.organization_id = $2
			  AND NOT EXISTS (SELECT 1 FROM licenses l WHERE l.software_id = s.id)
			  AND NOT EXISTS (SELECT 1 FROM requests r WHERE r.software_id = s.id)`, id, orgID)
		if err != nil {
			return mapErr(err, "Software not found")
		}
		if tag.RowsAffected() == 0 {
			return domain.E(domain.ErrConflict, "Cannot delete software with existing licenses or requests")
		}
		return nil
	})
}

func (s *Store) ListCategories(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT category FROM software WHERE organization_id = $1 ORDER BY category ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query categories: %w", err)
	}
	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan categories: %w", err)
	}
	if categories == nil {
		categories = []string{}
	}
	return categories, nil
}
