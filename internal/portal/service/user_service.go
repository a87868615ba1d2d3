package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
)

type UserRepository interface {
	ListUsers(ctx context.Context, orgID string) ([]*domain.User, error)
	GetUserInOrg(ctx context.Context, orgID, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, u *domain.User) error
	UpdateUser(ctx context.Context, orgID, id string, upd domain.UserUpdate) (*domain.User, error)
	UserDependencies(ctx context.Context, id string) (domain.UserCounts, error)
	DeleteUser(ctx context.Context, orgID, id string) error

	ActiveLicensesForUser(ctx context.Context, orgID, userID string) ([]*domain.License, error)
	GetSoftware(ctx context.Context, orgID, id string) (*domain.Software, error)
	GrantLicense(ctx context.Context, l *domain.License) error
	GetLicense(ctx context.Context, orgID, id string) (*domain.License, error)
	TransitionLicense(ctx context.Context, orgID, id, userID string, from, to domain.LicenseStatus, notes *string) (*domain.License, error)
}

type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
	ManagerID string
}

// UpdateUserInput — nil означает "не менять". Пустой ManagerID снимает менеджера.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Role      *string
	ManagerID *string
	Password  *string
}

// UserService — управление пользователями организации и их лицензиями.
type UserService struct {
	repo    UserRepository
	hasher  *Hasher
	stats   StatsStore
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewUserService(repo UserRepository, hasher *Hasher, stats StatsStore, auditor audit.Auditor, logger *zap.Logger) *UserService {
	return &UserService{
		repo:    repo,
		hasher:  hasher,
		stats:   stats,
		auditor: auditor,
		logger:  logger.Named("user-service"),
	}
}

func (s *UserService) List(ctx context.Context, p domain.Principal) ([]*domain.User, error) {
	return s.repo.ListUsers(ctx, p.OrganizationID)
}

// Create добавляет пользователя в организацию вызывающего.
func (s *UserService) Create(ctx context.Context, p domain.Principal, in CreateUserInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, domain.E(domain.ErrConflict, "User already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	role := domain.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		r, err := domain.ParseRole(in.Role)
		if err != nil {
			return nil, domain.E(domain.ErrInvalidInput, "Invalid role")
		}
		role = r
	}
	if role == domain.RoleAdmin && p.Role != domain.RoleAdmin {
		return nil, domain.E(domain.ErrForbidden, "Only administrators can assign the ADMIN role")
	}

	u := &domain.User{
		OrganizationID: p.OrganizationID,
		Email:          email,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Role:           role,
	}
	if in.ManagerID != "" {
		manager, err := s.validManager(ctx, p.OrganizationID, "", in.ManagerID)
		if err != nil {
			return nil, err
		}
		u.ManagerID = &manager.ID
		u.Manager = manager.Summary()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = hash

	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionUserCreated, audit.ResourceUser, u.ID,
		map[string]any{"email": u.Email, "role": string(u.Role)}))
	return u, nil
}

func (s *UserService) Update(ctx context.Context, p domain.Principal, id string, in UpdateUserInput) (*domain.User, error) {
	target, err := s.repo.GetUserInOrg(ctx, p.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	// Менеджер не может править администраторов
	if target.Role == domain.RoleAdmin && p.Role != domain.RoleAdmin {
		return nil, domain.E(domain.ErrForbidden, "Insufficient permissions")
	}

	var upd domain.UserUpdate
	changed := make([]string, 0, 6)

	if in.FirstName != nil {
		if v := strings.TrimSpace(*in.FirstName); v != "" {
			upd.FirstName = &v
			changed = append(changed, "firstName")
		}
	}
	if in.LastName != nil {
		if v := strings.TrimSpace(*in.LastName); v != "" {
			upd.LastName = &v
			changed = append(changed, "lastName")
		}
	}
	if in.Email != nil {
		email := domain.NormalizeEmail(*in.Email)
		if email != "" && email != target.Email {
			if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
				return nil, domain.E(domain.ErrConflict, "Email already in use")
			} else if !errors.Is(err, domain.ErrNotFound) {
				return nil, err
			}
			upd.Email = &email
			changed = append(changed, "email")
		}
	}
	if in.Role != nil {
		role, err := domain.ParseRole(*in.Role)
		if err != nil {
			return nil, domain.E(domain.ErrInvalidInput, "Invalid role")
		}
		if role == domain.RoleAdmin && p.Role != domain.RoleAdmin {
			return nil, domain.E(domain.ErrForbidden, "Only administrators can assign the ADMIN role")
		}
		upd.Role = &role
		changed = append(changed, "role")
	}
	if in.ManagerID != nil {
		managerID := strings.TrimSpace(*in.ManagerID)
		if managerID != "" {
			if _, err := s.validManager(ctx, p.OrganizationID, id, managerID); err != nil {
				return nil, err
			}
		}
		upd.ManagerID = &managerID
		changed = append(changed, "managerId")
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
		changed = append(changed, "password")
	}

	if upd.IsEmpty() {
		return target, nil
	}

	u, err := s.repo.UpdateUser(ctx, p.OrganizationID, id, upd)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionUserUpdated, audit.ResourceUser, u.ID,
		map[string]any{"fields": changed}))
	return u, nil
}

// validManager: менеджер из той же организации с ролью ADMIN/MANAGER и не сам пользователь.
func (s *UserService) validManager(ctx context.Context, orgID, userID, managerID string) (*domain.User, error) {
	invalid := domain.E(domain.ErrInvalidInput, "Invalid manager selected")
	if managerID == userID {
		return nil, invalid
	}
	m, err := s.repo.GetUserInOrg(ctx, orgID, managerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if !m.Role.CanApprove() {
		return nil, invalid
	}
	return m, nil
}

// Delete удаляет пользователя без активных лицензий и подчиненных.
func (s *UserService) Delete(ctx context.Context, p domain.Principal, id string) error {
	if id == p.UserID {
		return domain.E(domain.ErrInvalidInput, "You cannot delete your own account")
	}
	target, err := s.repo.GetUserInOrg(ctx, p.OrganizationID, id)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleAdmin && p.Role != domain.RoleAdmin {
		return domain.E(domain.ErrForbidden, "Insufficient permissions")
	}

	deps, err := s.repo.UserDependencies(ctx, id)
	if err != nil {
		return err
	}
	if deps.Licenses > 0 {
		return domain.E(domain.ErrConflict, "Cannot delete user with active licenses")
	}
	if deps.ManagedUsers > 0 {
		return domain.E(domain.ErrConflict, "Cannot delete user who manages other users")
	}

	if err := s.repo.DeleteUser(ctx, p.OrganizationID, id); err != nil {
		return err
	}

	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionUserDeleted, audit.ResourceUser, id,
		map[string]any{"email": target.Email}))
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("by", p.UserID))
	return nil
}

func (s *UserService) Licenses(ctx context.Context, p domain.Principal, userID string) ([]*domain.License, error) {
	if _, err := s.repo.GetUserInOrg(ctx, p.OrganizationID, userID); err != nil {
		return nil, err
	}
	return s.repo.ActiveLicensesForUser(ctx, p.OrganizationID, userID)
}

// AddLicense выдает лицензию в обход заявки.
func (s *UserService) AddLicense(ctx context.Context, p domain.Principal, userID, softwareID string) (*domain.License, error) {
	if _, err := s.repo.GetUserInOrg(ctx, p.OrganizationID, userID); err != nil {
		return nil, err
	}
	sw, err := s.repo.GetSoftware(ctx, p.OrganizationID, softwareID)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("Manually assigned by %s", p.Email)
	l := &domain.License{
		OrganizationID: p.OrganizationID,
		UserID:         userID,
		SoftwareID:     sw.ID,
		Notes:          &notes,
	}
	if err := s.repo.GrantLicense(ctx, l); err != nil {
		return nil, err
	}
	l.Software = sw

	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionLicenseGranted, audit.ResourceLicense, l.ID,
		map[string]any{"userId": userID, "softwareId": sw.ID, "manual": true}))
	return l, nil
}

// RemoveLicense вручную отзывает активную лицензию пользователя.
func (s *UserService) RemoveLicense(ctx context.Context, p domain.Principal, userID, licenseID string) (*domain.License, error) {
	notFound := domain.E(domain.ErrNotFound, "Active license not found")

	current, err := s.repo.GetLicense(ctx, p.OrganizationID, licenseID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	if current.UserID != userID || current.Status != domain.LicenseActive {
		return nil, notFound
	}

	notes := fmt.Sprintf("Manually deactivated by %s", p.Email)
	l, err := s.repo.TransitionLicense(ctx, p.OrganizationID, licenseID, userID, domain.LicenseActive, domain.LicenseRevoked, &notes)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, notFound
		}
		return nil, err
	}
	l.Software = current.Software

	s.stats.Invalidate(ctx, p.OrganizationID)
	s.auditor.Log(audit.NewEntry(ctx, p, domain.ActionLicenseRevoked, audit.ResourceLicense, l.ID,
		map[string]any{"userId": userID, "softwareId": l.SoftwareID, "manual": true}))
	return l, nil
}
