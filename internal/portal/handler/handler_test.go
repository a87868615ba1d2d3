package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra/auth"
	"github.com/xela07ax/omnisme/internal/portal/service"
)

var member = domain.Principal{UserID: "u-1", Email: "john@demo.com", OrganizationID: "org-1", Role: domain.RoleUser}

// newRouter монтирует хендлер на шаблон пути, как это делает сервер, и кладет пользователя в контекст.
func newRouter(method, pattern string, h http.HandlerFunc) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithPrincipal(req.Context(), member)))
		})
	})
	r.Method(method, pattern, h)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestWriteErrorMapping(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tests := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.E(domain.ErrNotFound, "Software not found"), http.StatusNotFound, "Software not found"},
		{domain.E(domain.ErrConflict, "User already exists"), http.StatusBadRequest, "User already exists"},
		{domain.E(domain.ErrInvalidCredentials, "Invalid credentials"), http.StatusUnauthorized, "Invalid credentials"},
		{domain.E(domain.ErrForbidden, "Only administrators can assign the ADMIN role"), http.StatusForbidden, "Only administrators can assign the ADMIN role"},
		{domain.ErrInvalidTransition, http.StatusBadRequest, "Bad request"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger, tt.err)
			assert.Equal(t, tt.code, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.msg+`"}`, rec.Body.String())
		})
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		ok    bool
		want  domain.PageRequest
	}{
		{"", true, domain.PageRequest{Page: 1, Limit: 20}},
		{"?page=3&limit=100", true, domain.PageRequest{Page: 3, Limit: 100}},
		{"?page=0", false, domain.PageRequest{}},
		{"?limit=101", false, domain.PageRequest{}},
		{"?limit=abc", false, domain.PageRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			got, ok := parsePage(rec, httptest.NewRequest(http.MethodGet, "/api/software"+tt.query, nil))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if !ok {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			}
		})
	}
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "Cost per license", humanize("costPerLicense"))
	assert.Equal(t, "Email", humanize("email"))
}

// --- auth ---

type stubAuth struct {
	registered domain.RegisterInput
}

func (s *stubAuth) Register(_ context.Context, in domain.RegisterInput) (*domain.AuthResult, error) {
	s.registered = in
	return &domain.AuthResult{Message: "Registration successful", Token: "t", User: &domain.User{ID: "u-1"}}, nil
}

func (s *stubAuth) Login(_ context.Context, email, password string) (*domain.AuthResult, error) {
	if password != "admin123" {
		return nil, domain.E(domain.ErrInvalidCredentials, "Invalid credentials")
	}
	return &domain.AuthResult{Message: "Login successful", Token: "t", User: &domain.User{ID: "u-1", Email: email}}, nil
}

func (s *stubAuth) Me(_ context.Context, p domain.Principal) (*domain.User, error) {
	return &domain.User{ID: p.UserID, Email: p.Email}, nil
}

func TestAuthHandler(t *testing.T) {
	svc := &stubAuth{}
	h := NewAuthHandler(svc, zaptest.NewLogger(t))

	t.Run("register", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/auth/register", h.Register), http.MethodPost, "/api/auth/register",
			`{"email":"a@acme.io","password":"secret123","firstName":"A","lastName":"B","organizationName":"Acme"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "Acme", svc.registered.OrganizationName)
		// Хэш пароля не уходит наружу
		assert.NotContains(t, rec.Body.String(), "passwordHash")
	})

	t.Run("register validation", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/auth/register", h.Register), http.MethodPost, "/api/auth/register",
			`{"email":"not-an-email","password":"short","firstName":"A","lastName":"B"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		body := decodeBody(t, rec)
		assert.Equal(t, "Invalid email address", body["error"])
		errs, ok := body["errors"].([]any)
		require.True(t, ok)
		assert.Len(t, errs, 3)
		assert.Contains(t, rec.Body.String(), "Password must be at least 8 characters")
		assert.Contains(t, rec.Body.String(), "Organization name is required")
	})

	t.Run("register password too long", func(t *testing.T) {
		body := `{"email":"a@acme.io","password":"` + strings.Repeat("p", 73) + `","firstName":"A","lastName":"B","organizationName":"Acme"}`
		rec := do(t, newRouter(http.MethodPost, "/api/auth/register", h.Register), http.MethodPost, "/api/auth/register", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Password must be at most 72 characters", decodeBody(t, rec)["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/auth/login", h.Login), http.MethodPost, "/api/auth/login", `{"email":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid request body"}`, rec.Body.String())
	})

	t.Run("login", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/auth/login", h.Login), http.MethodPost, "/api/auth/login",
			`{"email":"admin@demo.com","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid credentials"}`, rec.Body.String())

		rec = do(t, newRouter(http.MethodPost, "/api/auth/login", h.Login), http.MethodPost, "/api/auth/login",
			`{"email":"admin@demo.com","password":"admin123"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Login successful", decodeBody(t, rec)["message"])
	})

	t.Run("me requires principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = do(t, newRouter(http.MethodGet, "/api/auth/me", h.Me), http.MethodGet, "/api/auth/me", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "john@demo.com", decodeBody(t, rec)["email"])
	})
}

// --- software ---

type stubSoftware struct {
	created *domain.Software
	patch   domain.SoftwarePatch
	filter  domain.SoftwareFilter
	page    domain.PageRequest
}

func (s *stubSoftware) List(_ context.Context, _ domain.Principal, f domain.SoftwareFilter, page domain.PageRequest) (domain.Page[*domain.Software], error) {
	s.filter, s.page = f, page
	return domain.NewPage([]*domain.Software{{ID: "sw-1", Name: "Slack"}}, 1, page), nil
}

func (s *stubSoftware) Get(_ context.Context, _ domain.Principal, id string) (*domain.Software, error) {
	if id != "sw-1" {
		return nil, domain.E(domain.ErrNotFound, "Software not found")
	}
	return &domain.Software{ID: id, Name: "Slack"}, nil
}

func (s *stubSoftware) Categories(context.Context, domain.Principal) ([]string, error) {
	return []string{"Communication", "Design"}, nil
}

func (s *stubSoftware) Create(_ context.Context, _ domain.Principal, sw *domain.Software) (*domain.Software, error) {
	s.created = sw
	sw.ID = "sw-2"
	return sw, nil
}

func (s *stubSoftware) Update(_ context.Context, _ domain.Principal, id string, patch domain.SoftwarePatch) (*domain.Software, error) {
	s.patch = patch
	return &domain.Software{ID: id}, nil
}

func (s *stubSoftware) Delete(_ context.Context, _ domain.Principal, id string) error {
	if id == "sw-1" {
		return domain.E(domain.ErrConflict, "Cannot delete software with existing licenses or requests")
	}
	return nil
}

func TestSoftwareHandler(t *testing.T) {
	svc := &stubSoftware{}
	h := NewSoftwareHandler(svc, zaptest.NewLogger(t))

	t.Run("list passes filter and page", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/software", h.List), http.MethodGet,
			"/api/software?search=sla&category=Communication&page=2&limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, domain.SoftwareFilter{Search: "sla", Category: "Communication"}, svc.filter)
		assert.Equal(t, domain.PageRequest{Page: 2, Limit: 5}, svc.page)

		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["total"])
		assert.EqualValues(t, 5, body["limit"])
	})

	t.Run("get not found", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/software/{id}", h.Get), http.MethodGet, "/api/software/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Software not found"}`, rec.Body.String())
	})

	t.Run("categories", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/software/meta/categories", h.Categories), http.MethodGet, "/api/software/meta/categories", "")
		assert.JSONEq(t, `["Communication","Design"]`, rec.Body.String())
	})

	t.Run("create requires approval by default", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/software", h.Create), http.MethodPost, "/api/software",
			`{"name":"Linear","category":"Project Management","costPerLicense":8.5,"billingCycle":"YEARLY"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, svc.created.RequiresApproval)
		assert.Equal(t, domain.BillingYearly, svc.created.BillingCycle)
		assert.Equal(t, "8.5", svc.created.CostPerLicense.Decimal.String())
	})

	t.Run("create rejects bad url and cycle", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/software", h.Create), http.MethodPost, "/api/software",
			`{"name":"X","category":"Y","billingCycle":"WEEKLY","logoUrl":"nope"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Billing cycle must be one of: MONTHLY, YEARLY, ONE_TIME")
		assert.Contains(t, rec.Body.String(), "Logo url must be a valid URL")
	})

	t.Run("update sends only present fields", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/software/{id}", h.Update), http.MethodPut, "/api/software/sw-1",
			`{"requiresApproval":false}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.patch.RequiresApproval)
		assert.False(t, *svc.patch.RequiresApproval)
		assert.Nil(t, svc.patch.Name)
		assert.Nil(t, svc.patch.BillingCycle)
	})

	t.Run("delete", func(t *testing.T) {
		router := newRouter(http.MethodDelete, "/api/software/{id}", h.Delete)
		rec := do(t, router, http.MethodDelete, "/api/software/sw-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, router, http.MethodDelete, "/api/software/sw-9", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Software deleted successfully"}`, rec.Body.String())
	})
}

// --- requests ---

type stubRequests struct {
	created  service.CreateRequestInput
	comments *string
	rejected string
	status   string
}

func (s *stubRequests) Create(_ context.Context, _ domain.Principal, in service.CreateRequestInput) (*service.RequestCreated, error) {
	s.created = in
	return &service.RequestCreated{
		Request: &domain.Request{ID: "r-1", Status: domain.RequestPending},
		Message: "Request submitted successfully",
	}, nil
}

func (s *stubRequests) Approve(_ context.Context, _ domain.Principal, id string, comments *string) (*domain.DecisionResult, error) {
	s.comments = comments
	if id == "done" {
		return nil, domain.E(domain.ErrNotFound, "Request not found or already processed")
	}
	return &domain.DecisionResult{
		Request: &domain.Request{ID: id, Status: domain.RequestApproved},
		License: &domain.License{ID: "l-1", Status: domain.LicenseActive},
	}, nil
}

func (s *stubRequests) Reject(_ context.Context, _ domain.Principal, id string, comments string) (*domain.DecisionResult, error) {
	s.rejected = comments
	if comments == "" {
		return nil, domain.E(domain.ErrInvalidInput, "Comments are required when rejecting a request")
	}
	return &domain.DecisionResult{Request: &domain.Request{ID: id, Status: domain.RequestRejected}}, nil
}

func (s *stubRequests) Cancel(_ context.Context, _ domain.Principal, id string) (*domain.Request, error) {
	return &domain.Request{ID: id, Status: domain.RequestCancelled}, nil
}

func (s *stubRequests) MyRequests(_ context.Context, _ domain.Principal, status string, page domain.PageRequest) (domain.Page[*domain.Request], error) {
	s.status = status
	return domain.NewPage[*domain.Request](nil, 0, page), nil
}

func (s *stubRequests) Pending(_ context.Context, _ domain.Principal, page domain.PageRequest) (domain.Page[*domain.Request], error) {
	return domain.NewPage[*domain.Request](nil, 0, page), nil
}

func TestRequestHandler(t *testing.T) {
	svc := &stubRequests{}
	h := NewRequestHandler(svc, zaptest.NewLogger(t))

	t.Run("create", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/requests", h.Create), http.MethodPost, "/api/requests",
			`{"softwareId":"sw-1","justification":"Need it for design reviews","priority":"HIGH"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "HIGH", svc.created.Priority)

		body := decodeBody(t, rec)
		assert.Equal(t, "r-1", body["id"])
		assert.Equal(t, "Request submitted successfully", body["message"])
		assert.NotContains(t, body, "license")
	})

	t.Run("create validation", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/requests", h.Create), http.MethodPost, "/api/requests",
			`{"justification":"Need it for design reviews","priority":"SOMEDAY"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Software id is required", decodeBody(t, rec)["error"])
	})

	t.Run("approve with empty body", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/requests/{id}/approve", h.Approve), http.MethodPut, "/api/requests/r-1/approve", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, svc.comments)

		body := decodeBody(t, rec)
		assert.Equal(t, "Request approved successfully", body["message"])
		assert.Equal(t, "APPROVED", body["request"].(map[string]any)["status"])
		assert.Equal(t, "l-1", body["license"].(map[string]any)["id"])
	})

	t.Run("approve already processed", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/requests/{id}/approve", h.Approve), http.MethodPut, "/api/requests/done/approve",
			`{"comments":"ok"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, svc.comments)
		assert.Equal(t, "ok", *svc.comments)
	})

	t.Run("reject", func(t *testing.T) {
		router := newRouter(http.MethodPut, "/api/requests/{id}/reject", h.Reject)
		rec := do(t, router, http.MethodPut, "/api/requests/r-1/reject", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"Comments are required when rejecting a request"}`, rec.Body.String())

		rec = do(t, router, http.MethodPut, "/api/requests/r-1/reject", `{"comments":"Budget freeze"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Budget freeze", svc.rejected)
		body := decodeBody(t, rec)
		assert.Equal(t, "Request rejected", body["message"])
		assert.NotContains(t, body, "license")
	})

	t.Run("cancel", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/requests/{id}/cancel", h.Cancel), http.MethodPut, "/api/requests/r-1/cancel", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Request cancelled successfully", decodeBody(t, rec)["message"])
	})

	t.Run("my requests forwards status", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/requests/my-requests", h.MyRequests), http.MethodGet,
			"/api/requests/my-requests?status=PENDING", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "PENDING", svc.status)
		assert.JSONEq(t, `{"items":[],"total":0,"page":1,"limit":20,"totalPages":0}`, rec.Body.String())
	})
}

// --- licenses ---

type stubLicenses struct {
	query service.LicenseQuery
}

func (s *stubLicenses) MyLicenses(_ context.Context, _ domain.Principal, _ string, page domain.PageRequest) (domain.Page[*domain.License], error) {
	return domain.NewPage[*domain.License](nil, 0, page), nil
}

func (s *stubLicenses) All(_ context.Context, _ domain.Principal, q service.LicenseQuery, page domain.PageRequest) (domain.Page[*domain.License], error) {
	s.query = q
	return domain.NewPage[*domain.License](nil, 0, page), nil
}

func (s *stubLicenses) Revoke(_ context.Context, _ domain.Principal, id string) (*domain.License, error) {
	if id == "gone" {
		return nil, domain.E(domain.ErrInvalidTransition, "License is not active")
	}
	return &domain.License{ID: id, Status: domain.LicenseRevoked}, nil
}

func (s *stubLicenses) Return(_ context.Context, _ domain.Principal, id string) (*domain.License, error) {
	return &domain.License{ID: id, Status: domain.LicenseRevoked}, nil
}

func (s *stubLicenses) Suspend(_ context.Context, _ domain.Principal, id string) (*domain.License, error) {
	return &domain.License{ID: id, Status: domain.LicenseSuspended}, nil
}

func (s *stubLicenses) Reactivate(_ context.Context, _ domain.Principal, id string) (*domain.License, error) {
	return &domain.License{ID: id, Status: domain.LicenseActive}, nil
}

func (s *stubLicenses) Stats(context.Context, domain.Principal) (*domain.LicenseStats, error) {
	return &domain.LicenseStats{TotalLicenses: 5, ActiveLicenses: 4}, nil
}

func TestLicenseHandler(t *testing.T) {
	svc := &stubLicenses{}
	h := NewLicenseHandler(svc, zaptest.NewLogger(t))

	tests := []struct {
		action  string
		handler http.HandlerFunc
		message string
		status  string
	}{
		{"revoke", h.Revoke, "License revoked successfully", "REVOKED"},
		{"return", h.Return, "License returned successfully", "REVOKED"},
		{"suspend", h.Suspend, "License suspended successfully", "SUSPENDED"},
		{"reactivate", h.Reactivate, "License reactivated successfully", "ACTIVE"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			rec := do(t, newRouter(http.MethodPut, "/api/licenses/{id}/"+tt.action, tt.handler),
				http.MethodPut, "/api/licenses/l-1/"+tt.action, "")
			require.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, tt.status, body["license"].(map[string]any)["status"])
		})
	}

	t.Run("revoke inactive", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/licenses/{id}/revoke", h.Revoke), http.MethodPut, "/api/licenses/gone/revoke", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"License is not active"}`, rec.Body.String())
	})

	t.Run("all forwards filters", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/licenses/all", h.All), http.MethodGet,
			"/api/licenses/all?userId=u-2&softwareId=sw-1&status=SUSPENDED", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, service.LicenseQuery{UserID: "u-2", SoftwareID: "sw-1", Status: "SUSPENDED"}, svc.query)
	})

	t.Run("stats", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodGet, "/api/licenses/stats", h.Stats), http.MethodGet, "/api/licenses/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 4, decodeBody(t, rec)["activeLicenses"])
	})
}

// --- users ---

type stubUsers struct {
	update service.UpdateUserInput
	added  string
}

func (s *stubUsers) List(context.Context, domain.Principal) ([]*domain.User, error) {
	return []*domain.User{{ID: "u-1"}}, nil
}

func (s *stubUsers) Create(_ context.Context, _ domain.Principal, in service.CreateUserInput) (*domain.User, error) {
	return &domain.User{ID: "u-9", Email: in.Email}, nil
}

func (s *stubUsers) Update(_ context.Context, _ domain.Principal, id string, in service.UpdateUserInput) (*domain.User, error) {
	s.update = in
	return &domain.User{ID: id}, nil
}

func (s *stubUsers) Delete(_ context.Context, p domain.Principal, id string) error {
	if id == p.UserID {
		return domain.E(domain.ErrInvalidInput, "You cannot delete your own account")
	}
	return nil
}

func (s *stubUsers) Licenses(context.Context, domain.Principal, string) ([]*domain.License, error) {
	return []*domain.License{}, nil
}

func (s *stubUsers) AddLicense(_ context.Context, _ domain.Principal, userID, softwareID string) (*domain.License, error) {
	s.added = softwareID
	return &domain.License{ID: "l-9", UserID: userID, SoftwareID: softwareID}, nil
}

func (s *stubUsers) RemoveLicense(context.Context, domain.Principal, string, string) (*domain.License, error) {
	return nil, domain.E(domain.ErrNotFound, "Active license not found")
}

func TestUserHandler(t *testing.T) {
	svc := &stubUsers{}
	h := NewUserHandler(svc, zaptest.NewLogger(t))

	t.Run("update distinguishes null manager", func(t *testing.T) {
		router := newRouter(http.MethodPut, "/api/users/{id}", h.Update)

		rec := do(t, router, http.MethodPut, "/api/users/u-2", `{"firstName":"Jane"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, svc.update.ManagerID)
		require.NotNil(t, svc.update.FirstName)
		assert.Equal(t, "Jane", *svc.update.FirstName)

		rec = do(t, router, http.MethodPut, "/api/users/u-2", `{"managerId":null}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.update.ManagerID)
		assert.Empty(t, *svc.update.ManagerID)

		rec = do(t, router, http.MethodPut, "/api/users/u-2", `{"managerId":"u-3"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-3", *svc.update.ManagerID)
	})

	t.Run("update validation", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPut, "/api/users/{id}", h.Update), http.MethodPut, "/api/users/u-2",
			`{"role":"ROOT","password":"short"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Role must be one of: ADMIN, MANAGER, USER")
	})

	t.Run("create", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/users", h.Create), http.MethodPost, "/api/users",
			`{"email":"new@demo.com","password":"password1","firstName":"N","lastName":"U"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("delete self", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodDelete, "/api/users/{id}", h.Delete), http.MethodDelete, "/api/users/"+member.UserID, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = do(t, newRouter(http.MethodDelete, "/api/users/{id}", h.Delete), http.MethodDelete, "/api/users/u-5", "")
		assert.JSONEq(t, `{"message":"User deleted successfully"}`, rec.Body.String())
	})

	t.Run("manual license", func(t *testing.T) {
		rec := do(t, newRouter(http.MethodPost, "/api/users/{userId}/licenses", h.AddLicense), http.MethodPost,
			"/api/users/u-2/licenses", `{"softwareId":"sw-1"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "sw-1", svc.added)

		rec = do(t, newRouter(http.MethodDelete, "/api/users/{userId}/licenses/{licenseId}", h.RemoveLicense), http.MethodDelete,
			"/api/users/u-2/licenses/l-1", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"Active license not found"}`, rec.Body.String())
	})
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("test")
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.JSONEq(t, `{"status":"healthy","timestamp":"2026-01-02T03:04:05Z","environment":"test"}`, rec.Body.String())
}
