package service

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/omnisme/internal/domain"
)

// MinPasswordLength — минимальная длина пароля при регистрации и смене.
const MinPasswordLength = 8

// MaxPasswordBytes — предел bcrypt, считается в байтах, а не в символах.
const MaxPasswordBytes = 72

// Hasher хэширует пароли bcrypt с заданной стоимостью.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", domain.E(domain.ErrInvalidInput, "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordBytes {
		return "", domain.E(domain.ErrInvalidInput, "Password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", domain.E(domain.ErrInvalidInput, "Password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Compare возвращает nil только при совпадении пароля.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return domain.ErrInvalidCredentials
	}
	return err
}
