package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xela07ax/omnisme/internal/domain"
)

type seedSoftware struct {
	name, description, category, vendor, cost, logo, website string
	requiresApproval                                         bool
}

var demoCatalog = []seedSoftware{
	{"Slack", "Team communication and collaboration platform", "Communication", "Slack Technologies", "8.75",
		"https://cdn.brandfetch.io/idIaLn9OSF/w/512/h/512/theme/dark/icon.png", "https://slack.com", false},
	{"Microsoft Office 365", "Complete office productivity suite", "Productivity", "Microsoft", "12.50",
		"https://cdn.brandfetch.io/idxAg10C0L/w/512/h/512/theme/dark/icon.png", "https://office.com", true},
	{"Zoom", "Video conferencing and online meetings", "Communication", "Zoom Video Communications", "14.99",
		"https://cdn.brandfetch.io/idPBLxi8Cq/w/512/h/512/theme/dark/icon.png", "https://zoom.us", false},
	{"GitHub", "Code hosting and version control", "Development", "GitHub Inc.", "4.00",
		"https://cdn.brandfetch.io/idZAyF9rlg/w/512/h/512/theme/dark/icon.png", "https://github.com", true},
	{"Figma", "Collaborative design tool", "Design", "Figma Inc.", "15.00",
		"https://cdn.brandfetch.io/idD4hbLgFz/w/512/h/512/theme/dark/icon.png", "https://figma.com", true},
	{"Notion", "All-in-one workspace for notes and collaboration", "Productivity", "Notion Labs", "10.00",
		"https://cdn.brandfetch.io/id8cyHkp5B/w/512/h/512/theme/dark/icon.png", "https://notion.so", false},
	{"Jira", "Project management and issue tracking", "Project Management", "Atlassian", "7.75",
		"https://cdn.brandfetch.io/idnrCPuv87/w/512/h/512/theme/dark/icon.png", "https://www.atlassian.com/software/jira", true},
	{"1Password", "Password manager for teams", "Security", "AgileBits", "8.00",
		"https://cdn.brandfetch.io/id-nqvlPKY/w/512/h/512/theme/dark/icon.png", "https://1password.com", false},
	{"Adobe Creative Cloud", "Complete creative suite including Photoshop, Illustrator, etc.", "Design", "Adobe", "54.99",
		"https://cdn.brandfetch.io/idAX8x3XeD/w/512/h/512/theme/dark/icon.png", "https://adobe.com", true},
	{"Salesforce", "Customer relationship management platform", "Sales", "Salesforce", "75.00",
		"https://cdn.brandfetch.io/idM3k-fbSw/w/512/h/512/theme/dark/icon.png", "https://salesforce.com", true},
	{"Grammarly", "Writing assistant and grammar checker", "Productivity", "Grammarly Inc.", "12.00",
		"https://cdn.brandfetch.io/idROmjEf6x/w/512/h/512/theme/dark/icon.png", "https://grammarly.com", false},
	{"Tableau", "Data visualization and business intelligence", "Analytics", "Tableau Software", "75.00",
		"https://cdn.brandfetch.io/id3sLBBhOr/w/512/h/512/theme/dark/icon.png", "https://tableau.com", true},
}

// SeedSummary — что создал Seed.
type SeedSummary struct {
	Organization *domain.Organization
	Users        int
	Software     int
	Licenses     int
	Requests     int
}

// Seed очищает все таблицы и заливает демо-организацию. Хэши паролей готовит вызывающий.
func (s *Store) Seed(ctx context.Context, adminHash, userHash string) (*SeedSummary, error) {
	sum := &SeedSummary{}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`TRUNCATE audit_logs, approvals, requests, licenses, software, users, organizations CASCADE`); err != nil {
			return fmt.Errorf("postgres: truncate: %w", err)
		}

		demo := "demo.com"
		org := &domain.Organization{Name: "Demo Company", Domain: &demo}
		admin := &domain.User{Email: "admin@demo.com", PasswordHash: adminHash, FirstName: "Admin", LastName: "User"}
		if err := createOrgTx(ctx, tx, org, admin); err != nil {
			return err
		}
		sum.Organization = org

		manager := &domain.User{OrganizationID: org.ID, Email: "manager@demo.com", PasswordHash: userHash,
			FirstName: "Manager", LastName: "User", Role: domain.RoleManager}
		if err := insertUser(ctx, tx, manager); err != nil {
			return err
		}
		john := &domain.User{OrganizationID: org.ID, Email: "john@demo.com", PasswordHash: userHash,
			FirstName: "John", LastName: "Doe", Role: domain.RoleUser, ManagerID: &manager.ID}
		jane := &domain.User{OrganizationID: org.ID, Email: "jane@demo.com", PasswordHash: userHash,
			FirstName: "Jane", LastName: "Smith", Role: domain.RoleUser, ManagerID: &manager.ID}
		for _, u := range []*domain.User{john, jane} {
			if err := insertUser(ctx, tx, u); err != nil {
				return err
			}
		}
		sum.Users = 4

		catalog := make([]*domain.Software, 0, len(demoCatalog))
		for _, item := range demoCatalog {
			sw := &domain.Software{
				OrganizationID:   org.ID,
				Name:             item.name,
				Description:      &item.description,
				Category:         item.category,
				Vendor:           &item.vendor,
				CostPerLicense:   decimal.NewNullDecimal(decimal.RequireFromString(item.cost)),
				BillingCycle:     domain.BillingMonthly,
				LogoURL:          &item.logo,
				WebsiteURL:       &item.website,
				RequiresApproval: item.requiresApproval,
			}
			if err := insertSoftware(ctx, tx, sw); err != nil {
				return err
			}
			catalog = append(catalog, sw)
		}
		sum.Software = len(catalog)

		slack, office, zoom, github, figma := catalog[0], catalog[1], catalog[2], catalog[3], catalog[4]
		grants := []struct {
			user *domain.User
			sw   *domain.Software
		}{
			{admin, slack}, {admin, office}, {john, slack}, {john, zoom}, {jane, slack},
		}
		for _, g := range grants {
			l := &domain.License{OrganizationID: org.ID, UserID: g.user.ID, SoftwareID: g.sw.ID}
			if err := insertLicense(ctx, tx, l); err != nil {
				return err
			}
		}
		sum.Licenses = len(grants)

		pending := []*domain.Request{
			{OrganizationID: org.ID, UserID: john.ID, SoftwareID: github.ID,
				Justification: "Need access to company repositories for development work", Priority: domain.PriorityHigh},
			{OrganizationID: org.ID, UserID: jane.ID, SoftwareID: figma.ID,
				Justification: "Required for designing new marketing materials", Priority: domain.PriorityMedium},
		}
		for _, r := range pending {
			_, err := tx.Exec(ctx, `
				INSERT INTO requests (organization_id, user_id, software_id, justification, priority, status)
				VALUES ($1, $2, $3, $4, $5, 'PENDING')`,
				r.OrganizationID, r.UserID, r.SoftwareID, r.Justification, r.Priority)
			if err != nil {
				return fmt.Errorf("postgres: insert seed request: %w", err)
			}
		}
		sum.Requests = len(pending)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}
