package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BillingCycle string

const (
	BillingMonthly BillingCycle = "MONTHLY"
	BillingYearly  BillingCycle = "YEARLY"
	BillingOneTime BillingCycle = "ONE_TIME"
)

func ParseBillingCycle(s string) (BillingCycle, error) {
	switch c := BillingCycle(strings.ToUpper(strings.TrimSpace(s))); c {
	case BillingMonthly, BillingYearly, BillingOneTime:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidInput, s)
	}
}

type SoftwareCounts struct {
	Licenses int `json:"licenses"`
	Requests int `json:"requests"`
}

// Software — позиция каталога организации.
type Software struct {
	ID               string              `json:"id"`
	OrganizationID   string              `json:"organizationId"`
	Name             string              `json:"name"`
	Description      *string             `json:"description"`
	Category         string              `json:"category"`
	Vendor           *string             `json:"vendor"`
	CostPerLicense   decimal.NullDecimal `json:"costPerLicense"`
	BillingCycle     BillingCycle        `json:"billingCycle"`
	LogoURL          *string             `json:"logoUrl"`
	WebsiteURL       *string             `json:"websiteUrl"`
	RequiresApproval bool                `json:"requiresApproval"`
	AutoProvision    bool                `json:"autoProvision"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`

	// Заполняются только при выдаче каталога конкретному пользователю
	UserLicense       *License        `json:"userLicense,omitempty"`
	HasPendingRequest bool            `json:"hasPendingRequest"`
	Count             *SoftwareCounts `json:"_count,omitempty"`
}

// MonthlyCost возвращает стоимость одной лицензии в пересчете на месяц.
// Разовая покупка в ежемесячные расходы не входит.
func (s *Software) MonthlyCost() decimal.Decimal {
	if s == nil || !s.CostPerLicense.Valid {
		return decimal.Zero
	}
	cost := s.CostPerLicense.Decimal
	switch s.BillingCycle {
	case BillingYearly:
		return cost.Div(decimal.NewFromInt(12))
	case BillingOneTime:
		return decimal.Zero
	default:
		return cost
	}
}

type SoftwarePatch struct {
	Name             *string
	Description      *string
	Category         *string
	Vendor           *string
	CostPerLicense   *decimal.Decimal
	BillingCycle     *BillingCycle
	LogoURL          *string
	WebsiteURL       *string
	RequiresApproval *bool
	AutoProvision    *bool
}

func (p SoftwarePatch) Apply(s *Software) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = p.Description
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Vendor != nil {
		s.Vendor = p.Vendor
	}
	if p.CostPerLicense != nil {
		s.CostPerLicense = decimal.NewNullDecimal(*p.CostPerLicense)
	}
	if p.BillingCycle != nil {
		s.BillingCycle = *p.BillingCycle
	}
	if p.LogoURL != nil {
		s.LogoURL = p.LogoURL
	}
	if p.WebsiteURL != nil {
		s.WebsiteURL = p.WebsiteURL
	}
	if p.RequiresApproval != nil {
		s.RequiresApproval = *p.RequiresApproval
	}
	if p.AutoProvision != nil {
		s.AutoProvision = *p.AutoProvision
	}
}

type SoftwareFilter struct {
	Search   string
	Category string
}
