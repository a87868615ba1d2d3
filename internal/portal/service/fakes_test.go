package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/notify"
)

// fakeStore — in-memory реализация репозиториев сервисного слоя.
type fakeStore struct {
	mu sync.Mutex

	seq       int
	orgs      map[string]*domain.Organization
	users     map[string]*domain.User
	software  map[string]*domain.Software
	licenses  map[string]*domain.License
	requests  map[string]*domain.Request
	approvals []*domain.Approval
	audit     []*domain.AuditEntry

	statsCalls int
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:     map[string]*domain.Organization{},
		users:    map[string]*domain.User{},
		software: map[string]*domain.Software{},
		licenses: map[string]*domain.License{},
		requests: map[string]*domain.Request{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// --- наполнение ---

func (f *fakeStore) addOrg(name string) *domain.Organization {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := &domain.Organization{ID: f.nextID("org"), Name: name}
	f.orgs[o.ID] = o
	return o
}

func (f *fakeStore) addUser(orgID, email string, role domain.Role, managerID *string) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &domain.User{
		ID: f.nextID("user"), OrganizationID: orgID, Email: email, Role: role,
		FirstName: "First", LastName: "Last", ManagerID: managerID,
	}
	f.users[u.ID] = u
	return u
}

func (f *fakeStore) addSoftware(orgID, name string, cost string, requiresApproval bool) *domain.Software {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw := &domain.Software{
		ID: f.nextID("sw"), OrganizationID: orgID, Name: name, Category: "Tools",
		CostPerLicense: decimal.NewNullDecimal(decimal.RequireFromString(cost)),
		BillingCycle:   domain.BillingMonthly, RequiresApproval: requiresApproval,
	}
	f.software[sw.ID] = sw
	return sw
}

func (f *fakeStore) addLicense(orgID, userID, softwareID string, status domain.LicenseStatus) *domain.License {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &domain.License{
		ID: f.nextID("lic"), OrganizationID: orgID, UserID: userID, SoftwareID: softwareID,
		Status: status, AssignedAt: time.Now(),
	}
	f.licenses[l.ID] = l
	return l
}

func (f *fakeStore) activeLicense(userID, softwareID string) *domain.License {
	for _, l := range f.licenses {
		if l.UserID == userID && l.SoftwareID == softwareID && l.Status == domain.LicenseActive {
			return l
		}
	}
	return nil
}

// --- auth / users ---

func (f *fakeStore) CreateOrganizationWithAdmin(_ context.Context, org *domain.Organization, admin *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	org.ID = f.nextID("org")
	f.orgs[org.ID] = org
	admin.ID = f.nextID("user")
	admin.OrganizationID = org.ID
	admin.Role = domain.RoleAdmin
	f.users[admin.ID] = admin
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "User not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.E(domain.ErrNotFound, "User not found")
}

func (f *fakeStore) GetUserInOrg(_ context.Context, orgID, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.OrganizationID != orgID {
		return nil, domain.E(domain.ErrNotFound, "User not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetOrganization(_ context.Context, id string) (*domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, domain.E(domain.ErrNotFound, "Organization not found")
	}
	return o, nil
}

func (f *fakeStore) GetUserProfile(ctx context.Context, id string) (*domain.User, error) {
	u, err := f.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Organization, _ = f.GetOrganization(ctx, u.OrganizationID)
	return u, nil
}

func (f *fakeStore) ListUsers(_ context.Context, orgID string) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.User, 0)
	for _, u := range f.users {
		if u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateUser(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = f.nextID("user")
	f.users[u.ID] = u
	return nil
}

func (f *fakeStore) UpdateUser(_ context.Context, orgID, id string, upd domain.UserUpdate) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || u.OrganizationID != orgID {
		return nil, domain.E(domain.ErrNotFound, "User not found")
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.ManagerID != nil {
		if *upd.ManagerID == "" {
			u.ManagerID = nil
		} else {
			m := *upd.ManagerID
			u.ManagerID = &m
		}
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) UserDependencies(_ context.Context, id string) (domain.UserCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c domain.UserCounts
	for _, l := range f.licenses {
		if l.UserID == id && l.Status == domain.LicenseActive {
			c.Licenses++
		}
	}
	for _, u := range f.users {
		if u.ManagerID != nil && *u.ManagerID == id {
			c.ManagedUsers++
		}
	}
	return c, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, orgID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

// --- software ---

func (f *fakeStore) ListSoftware(_ context.Context, orgID, _ string, _ domain.SoftwareFilter, _ domain.PageRequest) ([]*domain.Software, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Software, 0)
	for _, sw := range f.software {
		if sw.OrganizationID == orgID {
			out = append(out, sw)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) GetSoftwareForUser(ctx context.Context, orgID, id, _ string) (*domain.Software, error) {
	return f.GetSoftware(ctx, orgID, id)
}

func (f *fakeStore) GetSoftware(_ context.Context, orgID, id string) (*domain.Software, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw, ok := f.software[id]
	if !ok || sw.OrganizationID != orgID {
		return nil, domain.E(domain.ErrNotFound, "Software not found")
	}
	cp := *sw
	return &cp, nil
}

func (f *fakeStore) CreateSoftware(_ context.Context, sw *domain.Software) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw.ID = f.nextID("sw")
	f.software[sw.ID] = sw
	return nil
}

func (f *fakeStore) UpdateSoftware(_ context.Context, sw *domain.Software) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.software[sw.ID] = sw
	return nil
}

func (f *fakeStore) DeleteSoftware(_ context.Context, orgID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sw, ok := f.software[id]
	if !ok || sw.OrganizationID != orgID {
		return domain.E(domain.ErrNotFound, "Software not found")
	}
	for _, l := range f.licenses {
		if l.SoftwareID == id {
			return domain.E(domain.ErrConflict, "Cannot delete software with existing licenses or requests")
		}
	}
	delete(f.software, id)
	return nil
}

func (f *fakeStore) ListCategories(_ context.Context, orgID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0)
	for _, sw := range f.software {
		if sw.OrganizationID == orgID && !slices.Contains(out, sw.Category) {
			out = append(out, sw.Category)
		}
	}
	slices.Sort(out)
	return out, nil
}

// --- requests ---

func (f *fakeStore) CreateRequest(_ context.Context, req *domain.Request, autoApprove bool) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeLicense(req.UserID, req.SoftwareID) != nil {
		return nil, domain.E(domain.ErrConflict, "You already have an active license for this software")
	}
	for _, r := range f.requests {
		if r.UserID == req.UserID && r.SoftwareID == req.SoftwareID && r.Status == domain.RequestPending {
			return nil, domain.E(domain.ErrConflict, "You already have a pending request for this software")
		}
	}
	req.ID = f.nextID("req")
	req.Status = domain.RequestPending
	if autoApprove {
		req.Status = domain.RequestApproved
	}
	f.requests[req.ID] = req
	if !autoApprove {
		return nil, nil
	}

	approver := req.UserID
	comment := domain.AutoApproveComment
	f.approvals = append(f.approvals, &domain.Approval{
		ID: f.nextID("appr"), RequestID: req.ID, ApproverID: &approver,
		Status: domain.ApprovalApproved, Comments: &comment,
	})
	l := &domain.License{
		ID: f.nextID("lic"), OrganizationID: req.OrganizationID, UserID: req.UserID,
		SoftwareID: req.SoftwareID, Status: domain.LicenseActive, AssignedAt: time.Now(),
	}
	f.licenses[l.ID] = l
	return l, nil
}

func (f *fakeStore) DecideRequest(_ context.Context, d domain.Decision) (*domain.DecisionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[d.RequestID]
	if !ok || req.OrganizationID != d.OrganizationID || req.CanTransitionTo(d.Status) != nil {
		return nil, domain.E(domain.ErrNotFound, "Request not found or already processed")
	}
	req.Status = d.Status
	sw := *f.software[req.SoftwareID]
	req.Software = &sw

	approver := d.ApproverID
	a := &domain.Approval{
		ID: f.nextID("appr"), RequestID: req.ID, ApproverID: &approver,
		Status: domain.ApprovalStatus(d.Status), Comments: d.Comments,
	}
	f.approvals = append(f.approvals, a)

	res := &domain.DecisionResult{Request: req, Approval: a}
	if d.Status != domain.RequestApproved {
		return res, nil
	}
	if existing := f.activeLicense(req.UserID, req.SoftwareID); existing != nil {
		res.License = existing
		return res, nil
	}
	l := &domain.License{
		ID: f.nextID("lic"), OrganizationID: req.OrganizationID, UserID: req.UserID,
		SoftwareID: req.SoftwareID, Status: domain.LicenseActive, Notes: d.Comments, AssignedAt: time.Now(),
	}
	f.licenses[l.ID] = l
	res.License = l
	return res, nil
}

func (f *fakeStore) CancelRequest(_ context.Context, orgID, id, userID string) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok || req.OrganizationID != orgID || req.UserID != userID || req.CanTransitionTo(domain.RequestCancelled) != nil {
		return nil, domain.E(domain.ErrNotFound, "Request not found or cannot be cancelled")
	}
	req.Status = domain.RequestCancelled
	return req, nil
}

func (f *fakeStore) ListUserRequests(_ context.Context, orgID, userID string, status *domain.RequestStatus, _ domain.PageRequest) ([]*domain.Request, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Request, 0)
	for _, r := range f.requests {
		if r.OrganizationID == orgID && r.UserID == userID && (status == nil || r.Status == *status) {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) ListPendingRequests(_ context.Context, orgID string, _ domain.PageRequest) ([]*domain.Request, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Request, 0)
	for _, r := range f.requests {
		if r.OrganizationID == orgID && r.Status == domain.RequestPending {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

// --- licenses ---

func (f *fakeStore) ListLicenses(_ context.Context, flt domain.LicenseFilter, _ domain.PageRequest, _ bool) ([]*domain.License, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.License, 0)
	for _, l := range f.licenses {
		if l.OrganizationID != flt.OrganizationID {
			continue
		}
		if flt.UserID != "" && l.UserID != flt.UserID {
			continue
		}
		if flt.SoftwareID != "" && l.SoftwareID != flt.SoftwareID {
			continue
		}
		if len(flt.Statuses) > 0 && !slices.Contains(flt.Statuses, l.Status) {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (f *fakeStore) ActiveLicensesForUser(_ context.Context, orgID, userID string) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.License, 0)
	for _, l := range f.licenses {
		if l.OrganizationID == orgID && l.UserID == userID && l.Status == domain.LicenseActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) GetLicense(_ context.Context, orgID, id string) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.licenses[id]
	if !ok || l.OrganizationID != orgID {
		return nil, domain.E(domain.ErrNotFound, "License not found")
	}
	cp := *l
	if sw, ok := f.software[l.SoftwareID]; ok {
		cp.Software = sw
	}
	return &cp, nil
}

func (f *fakeStore) GrantLicense(_ context.Context, l *domain.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeLicense(l.UserID, l.SoftwareID) != nil {
		return domain.E(domain.ErrConflict, "User already has an active license for this software")
	}
	l.ID = f.nextID("lic")
	l.Status = domain.LicenseActive
	l.AssignedAt = time.Now()
	f.licenses[l.ID] = l
	return nil
}

func (f *fakeStore) TransitionLicense(_ context.Context, orgID, id, userID string, from, to domain.LicenseStatus, notes *string) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.licenses[id]
	if !ok || l.OrganizationID != orgID {
		return nil, domain.E(domain.ErrNotFound, "License not found")
	}
	if l.Status != from || (userID != "" && l.UserID != userID) {
		return nil, domain.ErrInvalidTransition
	}
	l.Status = to
	if notes != nil {
		l.Notes = notes
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) LicenseStats(_ context.Context, orgID string) (*domain.LicenseStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	st := &domain.LicenseStats{
		LicensesBySoftware: []domain.SoftwareLicenseCount{},
		RecentActivity:     []*domain.License{},
	}
	active := make([]*domain.License, 0)
	for _, l := range f.licenses {
		if l.OrganizationID != orgID {
			continue
		}
		st.TotalLicenses++
		if l.Status == domain.LicenseActive {
			st.ActiveLicenses++
			cp := *l
			cp.Software = f.software[l.SoftwareID]
			active = append(active, &cp)
		}
	}
	st.MonthlyTotalCost = domain.MonthlyTotal(active)
	st.LicensesBySoftware = domain.CountBySoftware(active)
	return st, nil
}

func (f *fakeStore) ExpireLicenses(_ context.Context, now time.Time) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.License, 0)
	for _, l := range f.licenses {
		if l.Status == domain.LicenseActive && l.ExpiresAt != nil && l.ExpiresAt.Before(now) {
			l.Status = domain.LicenseExpired
			out = append(out, l)
		}
	}
	return out, nil
}

// --- audit ---

func (f *fakeStore) ListAudit(_ context.Context, flt domain.AuditFilter, _ domain.PageRequest) ([]*domain.AuditEntry, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.AuditEntry, 0)
	for _, e := range f.audit {
		if e.OrganizationID == flt.OrganizationID && (flt.Action == "" || string(e.Action) == flt.Action) {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

// --- побочные зависимости ---

type recordingAuditor struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *recordingAuditor) Log(e domain.AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
}

func (a *recordingAuditor) actions() []domain.AuditAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.DecisionEvent
}

func (n *recordingNotifier) NotifyDecision(_ context.Context, ev notify.DecisionEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type fakeStats struct {
	mu          sync.Mutex
	cached      map[string]*domain.LicenseStats
	versions    map[string]int64
	invalidated []string
}

func newFakeStats() *fakeStats {
	return &fakeStats{cached: map[string]*domain.LicenseStats{}, versions: map[string]int64{}}
}

func (s *fakeStats) Get(_ context.Context, org string) (*domain.LicenseStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.cached[org]
	return st, ok
}

func (s *fakeStats) Version(_ context.Context, org string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[org], true
}

func (s *fakeStats) Set(_ context.Context, org string, st *domain.LicenseStats, version int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[org] == version {
		s.cached[org] = st
	}
}

func (s *fakeStats) Invalidate(_ context.Context, org string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cached, org)
	s.versions[org]++
	s.invalidated = append(s.invalidated, org)
}

type fakeIssuer struct{}

func (fakeIssuer) Issue(u *domain.User) (string, error) {
	return "token-" + u.ID, nil
}

func principal(u *domain.User) domain.Principal {
	return domain.Principal{UserID: u.ID, Email: u.Email, OrganizationID: u.OrganizationID, Role: u.Role}
}
