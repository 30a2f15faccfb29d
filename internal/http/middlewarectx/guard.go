// Package middlewarectx содержит HTTP middleware проверки доступа.
//
// Проверки выстроены в явную цепочку Guard. Каждая проверка либо пропускает
// запрос дальше, возможно дополнив его контекст, либо сама пишет ответ
// с ошибкой и прерывает цепочку.
package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/vortextv/internal/http/request"
	"github.com/magabrotheeeer/vortextv/internal/http/response"
	"github.com/magabrotheeeer/vortextv/internal/lib/jwt"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/token"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// CallerKey ключ аутентифицированного автора запроса.
	CallerKey Key = "caller"
	// TokenKey ключ предъявленного access-токена.
	TokenKey Key = "access_token"
)

// Причины отказа аутентификации.
const (
	ReasonMissing  = "missing or invalid authorization header"
	ReasonInvalid  = "invalid token"
	ReasonExpired  = "token has expired"
	ReasonRevoked  = "token has been revoked"
	ReasonInactive = "user not found or inactive"
)

// Guard одна проверка цепочки. Возвращает запрос для следующей проверки
// или false, если ответ уже записан.
type Guard func(w http.ResponseWriter, r *http.Request) (*http.Request, bool)

// Chain объединяет проверки в middleware. Проверки выполняются по порядку.
func Chain(guards ...Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, g := range guards {
				var ok bool
				if r, ok = g(w, r); !ok {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// TokenValidator проверяет access-токены.
type TokenValidator interface {
	Validate(ctx context.Context, signed string, class jwt.Class, meta models.RequestMeta) (*token.Identity, error)
}

// AccountReader читает текущее состояние учетной записи.
type AccountReader interface {
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
}

// EntitlementResolver определяет право на платный контент.
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID int64) (*models.Entitlement, error)
}

// WithCaller кладет автора запроса в контекст.
func WithCaller(ctx context.Context, c models.Caller) context.Context {
	return context.WithValue(ctx, CallerKey, c)
}

// CallerFrom достает автора запроса из контекста.
func CallerFrom(ctx context.Context) (models.Caller, bool) {
	c, ok := ctx.Value(CallerKey).(models.Caller)
	return c, ok
}

// TokenFrom access-токен текущего запроса.
func TokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(TokenKey).(string)
	return s
}

func deny(w http.ResponseWriter, r *http.Request, guard string, status int, msg string) (*http.Request, bool) {
	metrics.RecordDenied(guard)
	response.Fail(w, r, status, msg)
	return r, false
}

// Authenticated требует действующий access-токен. Роль и признак активности
// перечитываются из хранилища, поэтому смена роли действует сразу.
func Authenticated(log *slog.Logger, tokens TokenValidator, accounts AccountReader) Guard {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		const op = "middlewarectx.Authenticated"
		log := sl.ForRequest(log, op, r)

		raw, ok := request.BearerToken(r)
		if !ok {
			return deny(w, r, "authenticated", http.StatusUnauthorized, ReasonMissing)
		}

		meta := request.Meta(r)
		id, err := tokens.Validate(r.Context(), raw, jwt.ClassAccess, meta)
		if err != nil {
			log.Info("token rejected", sl.Err(err))
			switch {
			case errors.Is(err, token.ErrExpired):
				return deny(w, r, "authenticated", http.StatusUnauthorized, ReasonExpired)
			case errors.Is(err, token.ErrRevoked):
				return deny(w, r, "authenticated", http.StatusUnauthorized, ReasonRevoked)
			case errors.Is(err, token.ErrInvalid):
				return deny(w, r, "authenticated", http.StatusUnauthorized, ReasonInvalid)
			default:
				log.Error("failed to validate token", sl.Err(err))
				return deny(w, r, "authenticated", http.StatusInternalServerError, "internal error")
			}
		}

		acc, err := accounts.AccountByID(r.Context(), id.AccountID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Error("failed to load account", sl.Err(err))
			return deny(w, r, "authenticated", http.StatusInternalServerError, "internal error")
		}
		if acc == nil || !acc.IsActive {
			return deny(w, r, "authenticated", http.StatusUnauthorized, ReasonInactive)
		}

		ctx := WithCaller(r.Context(), models.Caller{
			ID:       acc.ID,
			Username: acc.Username,
			Role:     acc.Role,
			Meta:     meta,
		})
		ctx = context.WithValue(ctx, TokenKey, raw)
		return r.WithContext(ctx), true
	}
}

// RoleAtLeast пропускает авторов запроса с ролью не ниже minRole.
func RoleAtLeast(minRole models.Role) Guard {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		c, ok := CallerFrom(r.Context())
		if !ok {
			return deny(w, r, "role", http.StatusUnauthorized, ReasonMissing)
		}
		if !c.Role.AtLeast(minRole) {
			return deny(w, r, "role", http.StatusForbidden, string(minRole)+" privileges required")
		}
		return r, true
	}
}

// HasEntitlement требует активную подписку или погашенный код.
// Администраторы проходят без проверки.
func HasEntitlement(log *slog.Logger, resolver EntitlementResolver) Guard {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
		const op = "middlewarectx.HasEntitlement"
		c, ok := CallerFrom(r.Context())
		if !ok {
			return deny(w, r, "entitlement", http.StatusUnauthorized, ReasonMissing)
		}
		if c.Role.AtLeast(models.RoleAdmin) {
			return r, true
		}

		ent, err := resolver.Resolve(r.Context(), c.ID)
		if err != nil {
			sl.ForRequest(log, op, r).Error("failed to resolve entitlement", sl.Err(err))
			return deny(w, r, "entitlement", http.StatusInternalServerError, "internal error")
		}
		if !ent.Entitled() {
			metrics.RecordDenied("entitlement")
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.EntitlementRequired("active subscription or access code required"))
			return r, false
		}
		return r, true
	}
}
