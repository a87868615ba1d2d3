package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
)

// TokenValidator — проверка входящего токена.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.Claims, error)
}

// UserResolver подтверждает, что владелец токена всё ещё существует.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const principalKey ctxKey = "principal"

// WithPrincipal кладет пользователя в контекст запроса.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext помогает безопасно достать пользователя в хендлерах.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

func NewMiddleware(v TokenValidator, users UserResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, ErrTokenExpired) {
					reason = "expired"
				}
				logger.Debug("auth failure", zap.String("reason", reason), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			user, err := users.GetUser(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "User not found")
					return
				}
				logger.Error("user lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			// Роль и организацию берем из БД: понижение прав действует сразу, без ожидания exp
			p := domain.Principal{
				UserID:         user.ID,
				Email:          user.Email,
				OrganizationID: user.OrganizationID,
				Role:           user.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole пропускает только перечисленные роли.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !slices.Contains(roles, p.Role) {
				writeError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
