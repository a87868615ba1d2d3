package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra"
	"github.com/xela07ax/omnisme/internal/infra/auth"
	"github.com/xela07ax/omnisme/internal/portal/handler"
)

// Handlers — обработчики бизнес-доменов портала.
type Handlers struct {
	Auth     *handler.AuthHandler     // /api/auth
	Software *handler.SoftwareHandler // /api/software
	Requests *handler.RequestHandler  // /api/requests
	Licenses *handler.LicenseHandler  // /api/licenses
	Users    *handler.UserHandler     // /api/users
	Audit    *handler.AuditHandler    // /api/audit
	Health   *handler.HealthHandler   // /api/health
}

type PortalServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    infra.ServerConfig

	// Проверка RS256 токенов и владельца токена в БД
	authValidator auth.TokenValidator
	users         auth.UserResolver

	metrics      *infra.Metrics
	gatherer     prometheus.Gatherer
	loginLimiter *infra.IPRateLimiter

	h Handlers
}

// NewPortalServer инициализирует HTTP API портала со всеми зависимостями
func NewPortalServer(
	cfg infra.ServerConfig,
	logger *zap.Logger,
	validator auth.TokenValidator,
	users auth.UserResolver,
	metrics *infra.Metrics,
	gatherer prometheus.Gatherer,
	loginLimiter *infra.IPRateLimiter,
	h Handlers,
) *PortalServer {
	s := &PortalServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("portal-api"),
		cfg:           cfg,
		authValidator: validator,
		users:         users,
		metrics:       metrics,
		gatherer:      gatherer,
		loginLimiter:  loginLimiter,
		h:             h,
	}

	s.routes()
	return s
}

func (s *PortalServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(securityHeaders)
	r.Use(s.metrics.Middleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	authenticate := auth.NewMiddleware(s.authValidator, s.users, s.logger)
	adminOnly := auth.RequireRole(domain.RoleAdmin)
	approvers := auth.RequireRole(domain.RoleAdmin, domain.RoleManager)

	r.Route("/api", func(r chi.Router) {
		// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
		r.Get("/health", s.h.Health.Check)

		r.Route("/auth", func(r chi.Router) {
			// Регистрация и логин ограничены по IP против перебора
			r.With(s.loginLimiter.Middleware).Post("/register", s.h.Auth.Register)
			r.With(s.loginLimiter.Middleware).Post("/login", s.h.Auth.Login)
			r.With(authenticate).Get("/me", s.h.Auth.Me)
		})

		// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Route("/software", func(r chi.Router) {
				r.Get("/", s.h.Software.List)
				r.Get("/meta/categories", s.h.Software.Categories)
				r.Get("/{id}", s.h.Software.Get)

				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Post("/", s.h.Software.Create)
					r.Put("/{id}", s.h.Software.Update)
					r.Delete("/{id}", s.h.Software.Delete)
				})
			})

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", s.h.Requests.Create)
				r.Get("/my-requests", s.h.Requests.MyRequests)
				r.Put("/{id}/cancel", s.h.Requests.Cancel)

				// Human-in-the-loop: решения принимают менеджеры и админы
				r.Group(func(r chi.Router) {
					r.Use(approvers)
					r.Get("/pending-approvals", s.h.Requests.Pending)
					r.Put("/{id}/approve", s.h.Requests.Approve)
					r.Put("/{id}/reject", s.h.Requests.Reject)
				})
			})

			r.Route("/licenses", func(r chi.Router) {
				r.Get("/my-licenses", s.h.Licenses.MyLicenses)
				r.Put("/{id}/return", s.h.Licenses.Return)

				r.Group(func(r chi.Router) {
					r.Use(adminOnly)
					r.Get("/all", s.h.Licenses.All)
					r.Get("/stats", s.h.Licenses.Stats)
					r.Put("/{id}/revoke", s.h.Licenses.Revoke)
					r.Put("/{id}/suspend", s.h.Licenses.Suspend)
					r.Put("/{id}/reactivate", s.h.Licenses.Reactivate)
				})
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(approvers)
				r.Get("/", s.h.Users.List)
				r.With(adminOnly).Post("/", s.h.Users.Create)
				r.Put("/{id}", s.h.Users.Update)
				r.Delete("/{id}", s.h.Users.Delete)
				r.Get("/{userId}/licenses", s.h.Users.Licenses)
				r.Post("/{userId}/licenses", s.h.Users.AddLicense)
				r.Delete("/{userId}/licenses/{licenseId}", s.h.Users.RemoveLicense)
			})

			// Аудит (Observability)
			r.With(adminOnly).Get("/audit", s.h.Audit.List)
		})
	})
}

// accessLog пишет строку на каждый запрос через zap.
func (s *PortalServer) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_ip", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// securityHeaders — базовый набор заголовков для JSON API.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'self'")
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ServeHTTP позволяет использовать PortalServer как стандартный http.Handler
func (s *PortalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
