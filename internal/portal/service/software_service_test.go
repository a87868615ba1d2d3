package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/omnisme/internal/domain"
)

func TestSoftwareCatalog(t *testing.T) {
	store := newFakeStore()
	stats := newFakeStats()
	auditor := &recordingAuditor{}
	svc := NewSoftwareService(store, stats, auditor, zaptest.NewLogger(t))
	ctx := context.Background()

	org := store.addOrg("Acme")
	admin := store.addUser(org.ID, "admin@acme.io", domain.RoleAdmin, nil)
	member := store.addUser(org.ID, "member@acme.io", domain.RoleUser, nil)

	t.Run("create defaults billing cycle", func(t *testing.T) {
		sw, err := svc.Create(ctx, principal(admin), &domain.Software{
			Name:           "  Linear ",
			Category:       "Project Management",
			CostPerLicense: decimal.NewNullDecimal(decimal.RequireFromString("8")),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, sw.ID)
		assert.Equal(t, "Linear", sw.Name)
		assert.Equal(t, org.ID, sw.OrganizationID)
		assert.Equal(t, domain.BillingMonthly, sw.BillingCycle)
	})

	t.Run("create validates input", func(t *testing.T) {
		cases := []struct {
			name string
			sw   domain.Software
			msg  string
		}{
			{"no name", domain.Software{Category: "Tools"}, "Name is required"},
			{"no category", domain.Software{Name: "X"}, "Category is required"},
			{"negative cost", domain.Software{
				Name: "X", Category: "Tools",
				CostPerLicense: decimal.NewNullDecimal(decimal.NewFromInt(-1)),
			}, "Cost per license must be a positive number"},
			{"bad cycle", domain.Software{Name: "X", Category: "Tools", BillingCycle: "WEEKLY"}, "Invalid billing cycle"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				sw := tc.sw
				_, err := svc.Create(ctx, principal(admin), &sw)
				requireDomainError(t, err, domain.ErrInvalidInput, tc.msg)
			})
		}
	})

	t.Run("list and categories", func(t *testing.T) {
		store.addSoftware(org.ID, "Figma", "15", true)
		page, err := svc.List(ctx, principal(member), domain.SoftwareFilter{}, page1())
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)
		assert.Equal(t, 1, page.TotalPages)

		cats, err := svc.Categories(ctx, principal(member))
		require.NoError(t, err)
		assert.Equal(t, []string{"Project Management", "Tools"}, cats)
	})

	t.Run("update applies patch and drops stats", func(t *testing.T) {
		sw := store.addSoftware(org.ID, "Notion", "10", false)
		yearly := domain.BillingYearly
		cost := decimal.RequireFromString("120")

		got, err := svc.Update(ctx, principal(admin), sw.ID, domain.SoftwarePatch{
			BillingCycle:   &yearly,
			CostPerLicense: &cost,
		})
		require.NoError(t, err)
		assert.Equal(t, "Notion", got.Name)
		assert.Equal(t, "10", got.MonthlyCost().String())
		assert.Contains(t, stats.invalidated, org.ID)

		empty := ""
		_, err = svc.Update(ctx, principal(admin), sw.ID, domain.SoftwarePatch{Name: &empty})
		requireDomainError(t, err, domain.ErrInvalidInput, "Name is required")

		_, err = svc.Update(ctx, principal(admin), "sw-missing", domain.SoftwarePatch{})
		requireDomainError(t, err, domain.ErrNotFound, "Software not found")
	})

	t.Run("delete refuses software in use", func(t *testing.T) {
		sw := store.addSoftware(org.ID, "Slack", "8.75", false)
		l := store.addLicense(org.ID, member.ID, sw.ID, domain.LicenseActive)

		err := svc.Delete(ctx, principal(admin), sw.ID)
		requireDomainError(t, err, domain.ErrConflict, "Cannot delete software with existing licenses or requests")

		delete(store.licenses, l.ID)
		require.NoError(t, svc.Delete(ctx, principal(admin), sw.ID))

		_, err = svc.Get(ctx, principal(member), sw.ID)
		requireDomainError(t, err, domain.ErrNotFound, "Software not found")
	})

	assert.Equal(t, []domain.AuditAction{
		domain.ActionSoftwareCreated,
		domain.ActionSoftwareUpdated,
		domain.ActionSoftwareDeleted,
	}, auditor.actions())
}
