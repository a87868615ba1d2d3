package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
)

// AuthRepository описывает требования к хранилищу пользователей для входа и регистрации
type AuthRepository interface {
	CreateOrganizationWithAdmin(ctx context.Context, org *domain.Organization, admin *domain.User) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
	GetUserProfile(ctx context.Context, id string) (*domain.User, error)
}

// TokenIssuer выпускает access-токен для пользователя.
type TokenIssuer interface {
	Issue(u *domain.User) (string, error)
}

type AuthService struct {
	repo    AuthRepository
	tokens  TokenIssuer
	hasher  *Hasher
	auditor audit.Auditor
	logger  *zap.Logger
}

func NewAuthService(repo AuthRepository, tokens TokenIssuer, hasher *Hasher, auditor audit.Auditor, logger *zap.Logger) *AuthService {
	return &AuthService{
		repo:    repo,
		tokens:  tokens,
		hasher:  hasher,
		auditor: auditor,
		logger:  logger.Named("auth-service"),
	}
}

// Register создает организацию и её первого пользователя (ADMIN) одной транзакцией.
func (s *AuthService) Register(ctx context.Context, in domain.RegisterInput) (*domain.AuthResult, error) {
	email := domain.NormalizeEmail(in.Email)

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, domain.E(domain.ErrConflict, "User already exists")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	org := &domain.Organization{
		Name:   strings.TrimSpace(in.OrganizationName),
		Domain: domain.DomainFromEmail(email),
	}
	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
	}
	if err := s.repo.CreateOrganizationWithAdmin(ctx, org, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	s.auditor.Log(audit.NewEntry(ctx, principalOf(user), domain.ActionUserRegistered, audit.ResourceUser, user.ID,
		map[string]any{"organization": org.Name}))
	s.logger.Info("organization registered",
		zap.String("organization_id", org.ID),
		zap.String("user_id", user.ID))

	return &domain.AuthResult{
		Message:      "Registration successful",
		Token:        token,
		User:         user,
		Organization: org,
	}, nil
}

// Login проверяет пароль. Любое несовпадение дает одну и ту же ошибку,
// чтобы по ответу нельзя было перебрать существующие адреса.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	invalid := domain.E(domain.ErrInvalidCredentials, "Invalid credentials")

	user, err := s.repo.GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, invalid
		}
		s.logger.Warn("password hash check failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, invalid
	}

	user.Organization, err = s.repo.GetOrganization(ctx, user.OrganizationID)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	return &domain.AuthResult{
		Message: "Login successful",
		Token:   token,
		User:    user,
	}, nil
}

func (s *AuthService) Me(ctx context.Context, p domain.Principal) (*domain.User, error) {
	return s.repo.GetUserProfile(ctx, p.UserID)
}

// GetUser нужен middleware аутентификации: владелец токена должен существовать.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.GetUser(ctx, id)
}

func principalOf(u *domain.User) domain.Principal {
	return domain.Principal{
		UserID:         u.ID,
		Email:          u.Email,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
	}
}
