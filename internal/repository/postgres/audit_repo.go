package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/xela07ax/omnisme/internal/domain"
)

// WriteAuditBatch сохраняет пачку записей одним INSERT.
func (s *Store) WriteAuditBatch(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	q := s.sb.Insert("audit_logs").
		Columns("id", "organization_id", "actor_id", "action", "resource_type", "resource_id", "metadata", "request_id", "created_at")
	for _, e := range entries {
		var reqID *string
		if e.RequestID != "" {
			reqID = &e.RequestID
		}
		q = q.Values(e.ID, e.OrganizationID, e.ActorID, e.Action, e.ResourceType, e.ResourceID, e.Metadata, reqID, e.CreatedAt)
	}
	q = q.Suffix("ON CONFLICT (id) DO NOTHING")

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build audit insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: insert audit batch: %w", err)
	}
	return nil
}

// ListAudit — журнал организации, новые сверху.
func (s *Store) ListAudit(ctx context.Context, f domain.AuditFilter, page domain.PageRequest) ([]*domain.AuditEntry, int, error) {
	where := sq.Eq{"organization_id": f.OrganizationID}
	if f.Action != "" {
		where["action"] = f.Action
	}

	countSQL, countArgs, err := s.sb.Select("COUNT(*)").From("audit_logs").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build audit count: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count audit: %w", err)
	}

	query, args, err := s.sb.Select("id", "organization_id", "actor_id", "action", "resource_type",
		"resource_id", "metadata", "COALESCE(request_id, '')", "created_at").
		From("audit_logs").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build audit query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to query audit: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.AuditEntry, 0, page.Limit)
	for rows.Next() {
		e := &domain.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.Metadata, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterate audit: %w", err)
	}
	return items, total, nil
}
