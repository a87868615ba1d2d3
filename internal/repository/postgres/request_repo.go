package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/omnisme/internal/domain"
)

const requestColumns = `r.id, r.organization_id, r.user_id, r.software_id, r.justification, r.priority,
	r.status, r.created_at, r.updated_at`

func requestDest(r *domain.Request) []any {
	return []any{
		&r.ID, &r.OrganizationID, &r.UserID, &r.SoftwareID, &r.Justification, &r.Priority,
		&r.Status, &r.CreatedAt, &r.UpdatedAt,
	}
}

// CreateRequest сохраняет заявку. Для ПО без согласования в той же транзакции
// пишет авто-одобрение и выдает лицензию; лицензия возвращается вторым значением.
func (s *Store) CreateRequest(ctx context.Context, req *domain.Request, autoApprove bool) (*domain.License, error) {
	var license *domain.License
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var hasActive bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM licenses WHERE user_id = $1 AND software_id = $2 AND status = 'ACTIVE')`,
			req.UserID, req.SoftwareID,
		).Scan(&hasActive)
		if err != nil {
			return fmt.Errorf("postgres: check active license: %w", err)
		}
		if hasActive {
			return domain.E(domain.ErrConflict, "You already have an active license for this software")
		}

		req.ID = uuid.NewString()
		req.Status = domain.RequestPending
		if autoApprove {
			req.Status = domain.RequestApproved
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO requests (id, organization_id, user_id, software_id, justification, priority, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at`,
			req.ID, req.OrganizationID, req.UserID, req.SoftwareID, req.Justification, req.Priority, req.Status,
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, uqRequestPending) {
				return domain.E(domain.ErrConflict, "You already have a pending request for this software")
			}
			return fmt.Errorf("postgres: insert request: %w", err)
		}

		if !autoApprove {
			return nil
		}

		comment := domain.AutoApproveComment
		approval, err := insertApproval(ctx, tx, req.ID, req.UserID, domain.ApprovalApproved, &comment)
		if err != nil {
			return err
		}
		req.Approvals = []*domain.Approval{approval}

		license = &domain.License{
			OrganizationID: req.OrganizationID,
			UserID:         req.UserID,
			SoftwareID:     req.SoftwareID,
		}
		if err := insertLicense(ctx, tx, license); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return domain.E(domain.ErrConflict, "You already have an active license for this software")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return license, nil
}

func insertApproval(ctx context.Context, q querier, requestID, approverID string, status domain.ApprovalStatus, comments *string) (*domain.Approval, error) {
	a := &domain.Approval{
		ID:         uuid.NewString(),
		RequestID:  requestID,
		ApproverID: &approverID,
		Status:     status,
		Comments:   comments,
	}
	err := q.QueryRow(ctx, `
		INSERT INTO approvals (id, request_id, approver_id, status, comments)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		a.ID, a.RequestID, a.ApproverID, a.Status, a.Comments,
	).Scan(&a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: insert approval: %w", err)
	}
	return a, nil
}

// DecideRequest — ядро: перевод PENDING -> APPROVED/REJECTED, запись решения
// и (для APPROVED) выдача лицензии. Всё в одной транзакции.
func (s *Store) DecideRequest(ctx context.Context, d domain.Decision) (*domain.DecisionResult, error) {
	res := &domain.DecisionResult{}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		const notFound = "Request not found or already processed"
		req, err := lockRequest(ctx, tx, d.RequestID, d.OrganizationID)
		if err != nil {
			return mapErr(err, notFound)
		}
		if err := req.CanTransitionTo(d.Status); err != nil {
			if errors.Is(err, domain.ErrAlreadyProcessed) {
				return domain.E(domain.ErrNotFound, notFound)
			}
			return domain.E(domain.ErrInvalidTransition, "Invalid decision status")
		}
		if err := setRequestStatus(ctx, tx, req, d.Status); err != nil {
			return err
		}
		res.Request = req

		res.Approval, err = insertApproval(ctx, tx, req.ID, d.ApproverID, domain.ApprovalStatus(d.Status), d.Comments)
		if err != nil {
			return err
		}

		req.Software = &domain.Software{}
		err = tx.QueryRow(ctx, `SELECT `+softwareColumns+` FROM software s WHERE s.id = $1`, req.SoftwareID).
			Scan(softwareDest(req.Software)...)
		if err != nil {
			return fmt.Errorf("postgres: load request software: %w", err)
		}

		if d.Status != domain.RequestApproved {
			return nil
		}

		res.License, err = grantOrReuseLicense(ctx, tx, req, d.Comments)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// grantOrReuseLicense выдает лицензию по одобренной заявке. Если активная уже есть
// (выдали вручную, пока заявка ждала), возвращается она.
func grantOrReuseLicense(ctx context.Context, tx pgx.Tx, req *domain.Request, notes *string) (*domain.License, error) {
	l := &domain.License{}
	err := tx.QueryRow(ctx, `
		INSERT INTO licenses AS l (id, organization_id, user_id, software_id, status, notes)
		VALUES ($1, $2, $3, $4, 'ACTIVE', $5)
		ON CONFLICT (user_id, software_id) WHERE status = 'ACTIVE' DO NOTHING
		RETURNING `+licenseColumns,
		uuid.NewString(), req.OrganizationID, req.UserID, req.SoftwareID, notes,
	).Scan(licenseDest(l)...)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: insert license: %w", err)
	}

	err = tx.QueryRow(ctx, `
		SELECT `+licenseColumns+` FROM licenses l
		WHERE l.user_id = $1 AND l.software_id = $2 AND l.status = 'ACTIVE'`,
		req.UserID, req.SoftwareID,
	).Scan(licenseDest(l)...)
	if err != nil {
		return nil, fmt.Errorf("postgres: load existing license: %w", err)
	}
	return l, nil
}

func (s *Store) CancelRequest(ctx context.Context, orgID, id, userID string) (*domain.Request, error) {
	const notFound = "Request not found or cannot be cancelled"
	var req *domain.Request
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		req, err = lockRequest(ctx, tx, id, orgID)
		if err != nil {
			return mapErr(err, notFound)
		}
		if req.UserID != userID || req.CanTransitionTo(domain.RequestCancelled) != nil {
			return domain.E(domain.ErrNotFound, notFound)
		}
		return setRequestStatus(ctx, tx, req, domain.RequestCancelled)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// lockRequest читает заявку под FOR UPDATE: параллельное решение по ней
// ждет конца транзакции и увидит уже новый статус.
func lockRequest(ctx context.Context, tx pgx.Tx, id, orgID string) (*domain.Request, error) {
	req := &domain.Request{}
	err := tx.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM requests r
		WHERE r.id = $1 AND r.organization_id = $2
		FOR UPDATE`,
		id, orgID,
	).Scan(requestDest(req)...)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func setRequestStatus(ctx context.Context, tx pgx.Tx, req *domain.Request, status domain.RequestStatus) error {
	err := tx.QueryRow(ctx, `
		UPDATE requests r SET status = $1, updated_at = NOW()
		WHERE r.id = $2
		RETURNING `+requestColumns,
		status, req.ID,
	).Scan(requestDest(req)...)
	if err != nil {
		return fmt.Errorf("postgres: update request status: %w", err)
	}
	return nil
}

// ListUserRequests отдает заявки пользователя (новые сверху) с ПО и решениями.
func (s *Store) ListUserRequests(ctx context.Context, orgID, userID string, status *domain.RequestStatus, page domain.PageRequest) ([]*domain.Request, int, error) {
	where := sq.Eq{"r.organization_id": orgID, "r.user_id": userID}
	if status != nil {
		where["r.status"] = *status
	}

	total, err := s.countRequests(ctx, where)
	if err != nil {
		return nil, 0, err
	}

	query, args, err := s.sb.Select(requestColumns + ", " + softwareColumns).
		From("requests r").
		Join("software s ON s.id = r.software_id").
		Where(where).
		OrderBy("r.created_at DESC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build requests query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to query requests: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Request, 0, page.Limit)
	for rows.Next() {
		r := &domain.Request{Software: &domain.Software{}, Approvals: []*domain.Approval{}}
		if err := rows.Scan(append(requestDest(r), softwareDest(r.Software)...)...); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan request: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterate requests: %w", err)
	}

	if err := s.attachApprovals(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// priorityOrder переносит domain.Priority.Rank в ORDER BY.
func priorityOrder() string {
	var b strings.Builder
	b.WriteString("CASE r.priority")
	for _, p := range domain.Priorities {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", p, p.Rank())
	}
	b.WriteString(" ELSE 0 END DESC")
	return b.String()
}

// ListPendingRequests — очередь на согласование: URGENT первыми, внутри приоритета старые первыми.
func (s *Store) ListPendingRequests(ctx context.Context, orgID string, page domain.PageRequest) ([]*domain.Request, int, error) {
	where := sq.Eq{"r.organization_id": orgID, "r.status": domain.RequestPending}

	total, err := s.countRequests(ctx, where)
	if err != nil {
		return nil, 0, err
	}

	query, args, err := s.sb.Select(requestColumns + ", " + softwareColumns + ", " + userColumns).
		Columns("m.id", "m.email", "m.first_name", "m.last_name").
		From("requests r").
		Join("software s ON s.id = r.software_id").
		Join("users u ON u.id = r.user_id").
		LeftJoin("users m ON m.id = u.manager_id").
		Where(where).
		OrderBy(priorityOrder(), "r.created_at ASC").
		Limit(uint64(page.Limit)).
		Offset(uint64(page.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: build pending query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to query pending requests: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Request, 0, page.Limit)
	for rows.Next() {
		r := &domain.Request{Software: &domain.Software{}, User: &domain.User{}}
		u := r.User
		var mID, mEmail, mFirst, mLast *string
		dest := append(requestDest(r), softwareDest(r.Software)...)
		dest = append(dest,
			&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
			&u.Role, &u.ManagerID, &u.CreatedAt, &u.UpdatedAt,
			&mID, &mEmail, &mFirst, &mLast,
		)
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("postgres: failed to scan pending request: %w", err)
		}
		if mID != nil {
			u.Manager = &domain.UserSummary{ID: *mID, Email: deref(mEmail), FirstName: deref(mFirst), LastName: deref(mLast)}
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("postgres: iterate pending requests: %w", err)
	}
	return items, total, nil
}

func (s *Store) countRequests(ctx context.Context, where sq.Eq) (int, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("requests r").Where(where).ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build request count: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: count requests: %w", err)
	}
	return total, nil
}

// attachApprovals подгружает решения с кратким описанием согласующего одним запросом.
func (s *Store) attachApprovals(ctx context.Context, reqs []*domain.Request) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, 0, len(reqs))
	byID := make(map[string]*domain.Request, len(reqs))
	for _, r := range reqs {
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}

	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.request_id, a.approver_id, a.status, a.comments, a.created_at,
			ap.email, ap.first_name, ap.last_name
		FROM approvals a
		LEFT JOIN users ap ON ap.id = a.approver_id
		WHERE a.request_id::text = ANY($1)
		ORDER BY a.created_at ASC`, ids)
	if err != nil {
		return fmt.Errorf("postgres: failed to query approvals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a := &domain.Approval{}
		var email, first, last *string
		if err := rows.Scan(&a.ID, &a.RequestID, &a.ApproverID, &a.Status, &a.Comments, &a.CreatedAt,
			&email, &first, &last); err != nil {
			return fmt.Errorf("postgres: failed to scan approval: %w", err)
		}
		if a.ApproverID != nil {
			a.Approver = &domain.UserSummary{ID: *a.ApproverID, Email: deref(email), FirstName: deref(first), LastName: deref(last)}
		}
		if r, ok := byID[a.RequestID]; ok {
			r.Approvals = append(r.Approvals, a)
		}
	}
	return rows.Err()
}
