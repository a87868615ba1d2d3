package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/omnisme/internal/domain"
)

const licenseColumns = `l.id, l.organization_id, l.user_id, l.software_id, l.status, l.assigned_at,
	l.expires_at, l.last_used_at, l.notes, l.created_at, l.updated_at`

const licenseUserColumns = `us.id, us.email, us.first_name, us.last_name`

func licenseDest(l *domain.License) []any {
	return []any{
		&l.ID, &l.OrganizationID, &l.UserID, &l.SoftwareID, &l.Status, &l.AssignedAt,
		&l.ExpiresAt, &l.LastUsedAt, &l.Notes, &l.CreatedAt, &l.UpdatedAt,
	}
}

// listLicenses выполняет выборку licenseColumns + softwareColumns (+ licenseUserColumns).
func (s *Store) listLicenses(ctx context.Context, q querier, b sq.SelectBuilder, withUser bool) ([]*domain.License, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build license query: %w", err)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*domain.License, 0)
	for rows.Next() {
		l := &domain.License{Software: &domain.Software{}}
		dest := append(licenseDest(l), softwareDest(l.Software)...)
		if withUser {
			l.User = &domain.UserSummary{}
			dest = append(dest, &l.User.ID, &l.User.Email, &l.User.FirstName, &l.User.LastName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan license: %w", err)
		}
		licenses = append(licenses, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate licenses: %w", err)
	}
	return licenses, nil
}

func licenseWhere(f domain.LicenseFilter) sq.And {
	where := sq.And{}
	if f.OrganizationID != "" {
		where = append(where, sq.Eq{"l.organization_id": f.OrganizationID})
	}
	if f.UserID != "" {
		where = append(where, sq.Eq{"l.user_id": f.UserID})
	}
	if f.SoftwareID != "" {
		where = append(where, sq.Eq{"l.software_id": f.SoftwareID})
	}
	if len(f.Statuses) > 0 {
		where = append(where, sq.Eq{"l.status": f.Statuses})
	}
	return where
}

// unmatchable: фильтр по id, который не является UUID, ничего не найдет,
// а Postgres ответил бы на него ошибкой приведения типа.
func unmatchable(f domain.LicenseFilter) bool {
	for _, id := range []string{f.UserID, f.SoftwareID} {
		if id == "" {
			continue
		}
		if _, err := uuid.Parse(id); err != nil {
			return true
		}
	}
	return false
}

// ListLicenses — страница лицензий (новые сверху) с ПО и, для админки, владельцем.
func (s *Store) ListLicenses(ctx context.Context, f domain.LicenseFilter, page domain.PageRequest, withUser bool) ([]*domain.License, int, error) {
	if unmatchable(f) {
		return make([]*domain.License, 0), 0, nil
	}
	where := licenseWhere(f)

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("licenses l").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build license count: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count licenses: %w", err)
	}

	cols := licenseColumns + ", " + softwareColumns
	b := s.sb.Select(cols).From("licenses l").Join("software s ON s.id = l.software_id")
	if withUser {
		b = s.sb.Select(cols + ", " + licenseUserColumns).
			From("licenses l").
			Join("software s ON s.id = l.software_id").
			Join("users us ON us.id = l.user_id")
	}
	b = b.Where(where).
		OrderBy("l.assigned_at DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset()))

	items, err := s.listLicenses(ctx, s.pool, b, withUser)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *Store) ActiveLicensesForUser(ctx context.Context, orgID, userID string) ([]*domain.License, error) {
	return s.listLicenses(ctx, s.pool, s.sb.Select(licenseColumns+", "+softwareColumns).
		From("licenses l").
		Join("software s ON s.id = l.software_id").
		Where(sq.Eq{"l.organization_id": orgID, "l.user_id": userID, "l.status": domain.LicenseActive}).
		OrderBy("l.assigned_at DESC"), false)
}

func (s *Store) GetLicense(ctx context.Context, orgID, id string) (*domain.License, error) {
	l := &domain.License{Software: &domain.Software{}}
	err := s.pool.QueryRow(ctx, `
		SELECT `+licenseColumns+`, `+softwareColumns+`
		FROM licenses l JOIN software s ON s.id = l.software_id
		WHERE l.id = $1 AND l.organization_id = $2`, id, orgID,
	).Scan(append(licenseDest(l), softwareDest(l.Software)...)...)
	if err != nil {
		return nil, mapErr(err, "License not found")
	}
	return l, nil
}

// GrantLicense выдает активную лицензию. Вторая активная на ту же пару упирается в индекс.
func (s *Store) GrantLicense(ctx context.Context, l *domain.License) error {
	return insertLicense(ctx, s.pool, l)
}

func insertLicense(ctx context.Context, q querier, l *domain.License) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Status = domain.LicenseActive
	err := q.QueryRow(ctx, `
		INSERT INTO licenses (id, organization_id, user_id, software_id, status, expires_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING assigned_at, created_at, updated_at`,
		l.ID, l.OrganizationID, l.UserID, l.SoftwareID, l.Status, l.ExpiresAt, l.Notes,
	).Scan(&l.AssignedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, uqLicenseActive) {
			return domain.E(domain.ErrConflict, "User already has an active license for this software")
		}
		return fmt.Errorf("postgres: insert license: %w", err)
	}
	return nil
}

// TransitionLicense атомарно меняет статус с from на to.
// userID (если не пуст) ограничивает владельцем. notes == nil не трогает заметки.
// Гонка с параллельным изменением дает ErrInvalidTransition.
func (s *Store) TransitionLicense(ctx context.Context, orgID, id, userID string, from, to domain.LicenseStatus, notes *string) (*domain.License, error) {
	q := s.sb.Update("licenses l").
		Set("status", to).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"l.id": id, "l.organization_id": orgID, "l.status": from}).
		Suffix("RETURNING " + licenseColumns)
	if userID != "" {
		q = q.Where(sq.Eq{"l.user_id": userID})
	}
	if notes != nil {
		q = q.Set("notes", *notes)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build license transition: %w", err)
	}

	l := &domain.License{}
	err = s.pool.QueryRow(ctx, query, args...).Scan(licenseDest(l)...)
	if err == nil {
		return l, nil
	}
	if isUniqueViolation(err, uqLicenseActive) {
		return nil, domain.E(domain.ErrConflict, "User already has an active license for this software")
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapErr(err, "License not found")
	}
	return nil, domain.ErrInvalidTransition
}

// ExpireLicenses переводит просроченные активные лицензии в EXPIRED.
func (s *Store) ExpireLicenses(ctx context.Context, now time.Time) ([]*domain.License, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE licenses l SET status = 'EXPIRED', updated_at = $1
		WHERE l.status = 'ACTIVE' AND l.expires_at IS NOT NULL AND l.expires_at < $1
		RETURNING `+licenseColumns, now)
	if err != nil {
		return nil, fmt.Errorf("postgres: expire licenses: %w", err)
	}
	defer rows.Close()

	expired := make([]*domain.License, 0)
	for rows.Next() {
		l := &domain.License{}
		if err := rows.Scan(licenseDest(l)...); err != nil {
			return nil, fmt.Errorf("postgres: scan expired license: %w", err)
		}
		expired = append(expired, l)
	}
	return expired, rows.Err()
}
