package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xela07ax/omnisme/internal/domain"
)

const userColumns = `u.id, u.organization_id, u.email, u.password_hash, u.first_name, u.last_name,
	u.role, u.manager_id, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
		&u.Role, &u.ManagerID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateOrganizationWithAdmin создает организацию и её первого администратора одной транзакцией.
func (s *Store) CreateOrganizationWithAdmin(ctx context.Context, org *domain.Organization, admin *domain.User) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return createOrgTx(ctx, tx, org, admin)
	})
}

func createOrgTx(ctx context.Context, q querier, org *domain.Organization, admin *domain.User) error {
	org.ID = uuid.NewString()
	err := q.QueryRow(ctx,
		`INSERT INTO organizations (id, name, domain) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		org.ID, org.Name, org.Domain,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert organization: %w", err)
	}

	admin.OrganizationID = org.ID
	admin.Role = domain.RoleAdmin
	return insertUser(ctx, q, admin)
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	return insertUser(ctx, s.pool, u)
}

func insertUser(ctx context.Context, q querier, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := q.QueryRow(ctx,
		`INSERT INTO users (id, organization_id, email, password_hash, first_name, last_name, role, manager_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at, updated_at`,
		u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role, u.ManagerID,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, uqUserEmail) {
			return domain.E(domain.ErrConflict, "User already exists")
		}
		return fmt.Errorf("postgres: insert user: %w", err)
	}
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	o := &domain.Organization{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, domain, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&o.ID, &o.Name, &o.Domain, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "Organization not found")
	}
	return o, nil
}

// GetUser — по id без учета организации (проверка владельца токена).
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "User not found")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users u WHERE u.email = $1`, email))
	if err != nil {
		return nil, mapErr(err, "User not found")
	}
	return u, nil
}

// GetUserInOrg ищет пользователя строго внутри организации.
func (s *Store) GetUserInOrg(ctx context.Context, orgID, id string) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1 AND u.organization_id = $2`, id, orgID))
	if err != nil {
		return nil, mapErr(err, "User not found")
	}
	return u, nil
}

// ListUsers возвращает пользователей организации с менеджером, активными лицензиями и счетчиками.
func (s *Store) ListUsers(ctx context.Context, orgID string) ([]*domain.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`,
			m.id, m.email, m.first_name, m.last_name,
			(SELECT COUNT(*) FROM licenses l WHERE l.user_id = u.id AND l.status = 'ACTIVE'),
			(SELECT COUNT(*) FROM users mu WHERE mu.manager_id = u.id)
		FROM users u
		LEFT JOIN users m ON m.id = u.manager_id
		WHERE u.organization_id = $1
		ORDER BY u.first_name ASC, u.last_name ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query users: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	users := make([]*domain.User, 0)
	byID := make(map[string]*domain.User)
	for rows.Next() {
		u := &domain.User{Count: &domain.UserCounts{}, Licenses: []*domain.License{}}
		var mID, mEmail, mFirst, mLast *string
		err := rows.Scan(
			&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName,
			&u.Role, &u.ManagerID, &u.CreatedAt, &u.UpdatedAt,
			&mID, &mEmail, &mFirst, &mLast,
			&u.Count.Licenses, &u.Count.ManagedUsers,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan user: %w", err)
		}
		if mID != nil {
			u.Manager = &domain.UserSummary{ID: *mID, Email: deref(mEmail), FirstName: deref(mFirst), LastName: deref(mLast)}
		}
		users = append(users, u)
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate users: %w", err)
	}

	active, err := s.listLicenses(ctx, s.pool, s.sb.Select(licenseColumns+", "+softwareColumns).
		From("licenses l").
		Join("software s ON s.id = l.software_id").
		Where(sq.Eq{"l.organization_id": orgID, "l.status": domain.LicenseActive}).
		OrderBy("l.assigned_at DESC"), false)
	if err != nil {
		return nil, err
	}
	for _, l := range active {
		if u, ok := byID[l.UserID]; ok {
			u.Licenses = append(u.Licenses, l)
		}
	}
	return users, nil
}

// GetUserProfile — пользователь с организацией и всеми лицензиями (GET /auth/me).
func (s *Store) GetUserProfile(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Organization, err = s.GetOrganization(ctx, u.OrganizationID); err != nil {
		return nil, err
	}
	u.Licenses, err = s.listLicenses(ctx, s.pool, s.sb.Select(licenseColumns+", "+softwareColumns).
		From("licenses l").
		Join("software s ON s.id = l.software_id").
		Where(sq.Eq{"l.user_id": id}).
		OrderBy("l.assigned_at DESC"), false)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser применяет частичное обновление и возвращает пользователя с менеджером.
func (s *Store) UpdateUser(ctx context.Context, orgID, id string, upd domain.UserUpdate) (*domain.User, error) {
	q := s.sb.Update("users").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id, "organization_id": orgID}).
		Suffix("RETURNING id")

	if upd.FirstName != nil {
		q = q.Set("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		q = q.Set("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		q = q.Set("email", *upd.Email)
	}
	if upd.Role != nil {
		q = q.Set("role", *upd.Role)
	}
	if upd.ManagerID != nil {
		// Пустая строка снимает менеджера
		if *upd.ManagerID == "" {
			q = q.Set("manager_id", nil)
		} else {
			q = q.Set("manager_id", *upd.ManagerID)
		}
	}
	if upd.PasswordHash != nil {
		q = q.Set("password_hash", *upd.PasswordHash)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build user update: %w", err)
	}
	var updatedID string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&updatedID); err != nil {
		if isUniqueViolation(err, uqUserEmail) {
			return nil, domain.E(domain.ErrConflict, "Email already in use")
		}
		return nil, mapErr(err, "User not found")
	}

	u, err := s.GetUserInOrg(ctx, orgID, updatedID)
	if err != nil {
		return nil, err
	}
	if u.ManagerID != nil {
		m, err := s.GetUserInOrg(ctx, orgID, *u.ManagerID)
		if err == nil {
			u.Manager = m.Summary()
		}
	}
	return u, nil
}

// UserDependencies считает, сколько активных лицензий и подчиненных у пользователя.
func (s *Store) UserDependencies(ctx context.Context, id string) (domain.UserCounts, error) {
	var c domain.UserCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM licenses WHERE user_id = $1 AND status = 'ACTIVE'),
			(SELECT COUNT(*) FROM users WHERE manager_id = $1)`, id,
	).Scan(&c.Licenses, &c.ManagedUsers)
	if err != nil {
		return c, fmt.Errorf("postgres: count user dependencies: %w", err)
	}
	return c, nil
}

// DeleteUser удаляет пользователя, если у него нет активных лицензий и подчиненных.
// Проверка и удаление идут одним запросом, чтобы не было гонки с выдачей лицензии.
func (s *Store) DeleteUser(ctx context.Context, orgID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM users u
		WHERE u.id = $1 AND u.organization_id = $2
		  AND NOT EXISTS (SELECT 1 FROM licenses l WHERE l.user_id = u.id AND l.status = 'ACTIVE')
		  AND NOT EXISTS (SELECT 1 FROM users mu WHERE mu.manager_id = u.id)`, id, orgID)
	if err != nil {
		return mapErr(err, "User not found")
	}
	if tag.RowsAffected() == 0 {
		return domain.E(domain.ErrConflict, "User has active licenses or managed users")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
