package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/omnisme/internal/domain"
)

func newAuthService(t *testing.T) (*AuthService, *fakeStore, *recordingAuditor) {
	store := newFakeStore()
	auditor := &recordingAuditor{}
	return NewAuthService(store, fakeIssuer{}, testHasher(), auditor, zaptest.NewLogger(t)), store, auditor
}

func TestRegisterCreatesAdminAndOrganization(t *testing.T) {
	svc, store, auditor := newAuthService(t)

	res, err := svc.Register(context.Background(), domain.RegisterInput{
		Email:            "  Owner@Acme.io ",
		Password:         "s3cret-pass",
		FirstName:        "Olga",
		LastName:         "Owner",
		OrganizationName: "Acme",
	})
	require.NoError(t, err)

	assert.Equal(t, "Registration successful", res.Message)
	assert.Equal(t, "token-"+res.User.ID, res.Token)
	assert.Equal(t, domain.RoleAdmin, res.User.Role)
	assert.Equal(t, "owner@acme.io", res.User.Email)
	require.NotNil(t, res.Organization.Domain)
	assert.Equal(t, "acme.io", *res.Organization.Domain)
	assert.NotEqual(t, "s3cret-pass", store.users[res.User.ID].PasswordHash)
	assert.Equal(t, []domain.AuditAction{domain.ActionUserRegistered}, auditor.actions())
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, store, _ := newAuthService(t)
	org := store.addOrg("Acme")
	store.addUser(org.ID, "taken@acme.io", domain.RoleUser, nil)

	_, err := svc.Register(context.Background(), domain.RegisterInput{
		Email: "taken@acme.io", Password: "password1", FirstName: "A", LastName: "B", OrganizationName: "X",
	})
	requireDomainError(t, err, domain.ErrConflict, "User already exists")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc, _, _ := newAuthService(t)
	_, err := svc.Register(context.Background(), domain.RegisterInput{
		Email: "a@b.io", Password: "short", FirstName: "A", LastName: "B", OrganizationName: "X",
	})
	requireDomainError(t, err, domain.ErrInvalidInput, "Password must be at least 8 characters")
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	svc, store, _ := newAuthService(t)
	_, err := svc.Register(context.Background(), domain.RegisterInput{
		Email: "a@b.io", Password: strings.Repeat("x", 80), FirstName: "A", LastName: "B", OrganizationName: "X",
	})
	requireDomainError(t, err, domain.ErrInvalidInput, "Password must be at most 72 bytes")
	assert.Empty(t, store.users)
}

func TestHasherPasswordBounds(t *testing.T) {
	h := testHasher()

	_, err := h.Hash(strings.Repeat("x", MaxPasswordBytes))
	assert.NoError(t, err)

	// 40 символов кириллицы занимают 80 байт
	_, err = h.Hash(strings.Repeat("ж", 40))
	requireDomainError(t, err, domain.ErrInvalidInput, "Password must be at most 72 bytes")
}

func TestLogin(t *testing.T) {
	svc, store, _ := newAuthService(t)
	ctx := context.Background()

	org := store.addOrg("Acme")
	u := store.addUser(org.ID, "john@acme.io", domain.RoleUser, nil)
	hash, err := testHasher().Hash("correct-horse")
	require.NoError(t, err)
	u.PasswordHash = hash

	t.Run("success", func(t *testing.T) {
		res, err := svc.Login(ctx, "John@Acme.io", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "Login successful", res.Message)
		assert.Equal(t, "token-"+u.ID, res.Token)
		require.NotNil(t, res.User.Organization)
		assert.Equal(t, "Acme", res.User.Organization.Name)
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		_, err := svc.Login(ctx, "john@acme.io", "wrong-horse")
		requireDomainError(t, err, domain.ErrInvalidCredentials, "Invalid credentials")

		_, err = svc.Login(ctx, "nobody@acme.io", "correct-horse")
		requireDomainError(t, err, domain.ErrInvalidCredentials, "Invalid credentials")
	})
}

func TestMeReturnsProfile(t *testing.T) {
	svc, store, _ := newAuthService(t)
	org := store.addOrg("Acme")
	u := store.addUser(org.ID, "me@acme.io", domain.RoleManager, nil)

	me, err := svc.Me(context.Background(), principal(u))
	require.NoError(t, err)
	assert.Equal(t, u.ID, me.ID)
	require.NotNil(t, me.Organization)
	assert.Equal(t, org.ID, me.Organization.ID)
}
