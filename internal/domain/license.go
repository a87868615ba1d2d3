package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LicenseStatus string

const (
	LicenseActive    LicenseStatus = "ACTIVE"
	LicenseSuspended LicenseStatus = "SUSPENDED"
	LicenseExpired   LicenseStatus = "EXPIRED"
	LicenseRevoked   LicenseStatus = "REVOKED"
)

// legacyInactive — старое значение фильтра из первой версии API: "всё, кроме ACTIVE".
const legacyInactive = "INACTIVE"

// ParseLicenseStatusFilter разбирает фильтр статуса, включая устаревший INACTIVE.
// Пустая строка дает nil (без фильтра).
func ParseLicenseStatusFilter(s string) ([]LicenseStatus, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return nil, nil
	case legacyInactive:
		return []LicenseStatus{LicenseSuspended, LicenseExpired, LicenseRevoked}, nil
	}
	st, err := ParseLicenseStatus(s)
	if err != nil {
		return nil, err
	}
	return []LicenseStatus{st}, nil
}

func ParseLicenseStatus(s string) (LicenseStatus, error) {
	switch st := LicenseStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case LicenseActive, LicenseSuspended, LicenseExpired, LicenseRevoked:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown license status %q", ErrInvalidInput, s)
	}
}

type License struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	UserID         string        `json:"userId"`
	SoftwareID     string        `json:"softwareId"`
	Status         LicenseStatus `json:"status"`
	AssignedAt     time.Time     `json:"assignedAt"`
	ExpiresAt      *time.Time    `json:"expiresAt"`
	LastUsedAt     *time.Time    `json:"lastUsedAt"`
	Notes          *string       `json:"notes"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`

	Software *Software    `json:"software,omitempty"`
	User     *UserSummary `json:"user,omitempty"`
}

// CanTransitionTo проверяет правила жизненного цикла лицензии.
// EXPIRED и REVOKED — терминальные состояния.
func (l *License) CanTransitionTo(next LicenseStatus) error {
	switch l.Status {
	case LicenseActive:
		if next == LicenseActive {
			return ErrInvalidTransition
		}
		return nil
	case LicenseSuspended:
		if next == LicenseSuspended {
			return ErrInvalidTransition
		}
		return nil
	default:
		return ErrInvalidTransition
	}
}

// MonthlyTotal считает ежемесячные расходы по активным лицензиям (с точностью до цента).
func MonthlyTotal(licenses []*License) decimal.Decimal {
	total := decimal.Zero
	for _, l := range licenses {
		if l == nil || l.Status != LicenseActive {
			continue
		}
		total = total.Add(l.Software.MonthlyCost())
	}
	return total.Round(2)
}

type LicenseFilter struct {
	OrganizationID string
	UserID         string
	SoftwareID     string
	Statuses       []LicenseStatus
}
