package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleUser    Role = "USER"
)

// ParseRole приводит строку к роли, регистр не важен.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleManager, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
}

// CanApprove сообщает, может ли роль принимать решения по заявкам.
func (r Role) CanApprove() bool {
	return r == RoleAdmin || r == RoleManager
}

// UserSummary — урезанное представление пользователя для вложенных объектов.
type UserSummary struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type UserCounts struct {
	Licenses     int `json:"licenses"`
	ManagedUsers int `json:"managedUsers"`
}

type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"` // Никогда не отправляем на фронт
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           Role      `json:"role"`
	ManagerID      *string   `json:"managerId"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Organization *Organization `json:"organization,omitempty"`
	Manager      *UserSummary  `json:"manager,omitempty"`
	Licenses     []*License    `json:"licenses,omitempty"`
	Count        *UserCounts   `json:"_count,omitempty"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// UserUpdate — частичное обновление. nil означает "не менять".
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Email        *string
	Role         *Role
	ManagerID    *string
	PasswordHash *string
}

func (u UserUpdate) IsEmpty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.Role == nil && u.ManagerID == nil && u.PasswordHash == nil
}

// NormalizeEmail приводит адрес к каноничному виду для уникальности.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
