package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims — полезная нагрузка access-токена портала.
type Claims struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	OrganizationID string `json:"organizationId"`
	Role           Role   `json:"role"`
	jwt.RegisteredClaims
}

// Principal — аутентифицированный пользователь текущего запроса.
type Principal struct {
	UserID         string
	Email          string
	OrganizationID string
	Role           Role
}

type RegisterInput struct {
	Email            string
	Password         string
	FirstName        string
	LastName         string
	OrganizationName string
}

type AuthResult struct {
	Message      string        `json:"message"`
	Token        string        `json:"token"`
	User         *User         `json:"user"`
	Organization *Organization `json:"organization,omitempty"`
}
