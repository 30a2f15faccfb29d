package vortextv

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/vortextv/internal/config"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/access"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/admin"
	authhandler "github.com/magabrotheeeer/vortextv/internal/http/handlers/auth"
	cataloghandler "github.com/magabrotheeeer/vortextv/internal/http/handlers/catalog"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/health"
	libraryhandler "github.com/magabrotheeeer/vortextv/internal/http/handlers/library"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/subscriptions"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/users"
	"github.com/magabrotheeeer/vortextv/internal/http/middlewarectx"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

// NewRouter собирает все маршруты приложения.
func NewRouter(log *slog.Logger, cfg *config.Config, s *Services) http.Handler {
	r := chi.NewRouter()

	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
		metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	authed := middlewarectx.Chain(middlewarectx.Authenticated(log, s.Tokens, s.Store))
	admins := middlewarectx.Chain(
		middlewarectx.Authenticated(log, s.Tokens, s.Store),
		middlewarectx.RoleAtLeast(models.RoleAdmin),
	)
	superadmins := middlewarectx.Chain(
		middlewarectx.Authenticated(log, s.Tokens, s.Store),
		middlewarectx.RoleAtLeast(models.RoleSuperadmin),
	)
	entitled := middlewarectx.Chain(
		middlewarectx.Authenticated(log, s.Tokens, s.Store),
		middlewarectx.HasEntitlement(log, s.Entitlements),
	)
	catalogLimit := middlewarectx.RateLimitMiddleware(log,
		middlewarectx.NewClientLimiter(cfg.RateLimit.CatalogRPS, cfg.RateLimit.CatalogBurst))
	loginLimit := httprate.LimitByIP(cfg.RateLimit.LoginPerMinute, time.Minute)
	registerLimit := httprate.LimitByIP(cfg.RateLimit.RegisterPerHour, time.Hour)
	forgotLimit := httprate.LimitByIP(cfg.RateLimit.RegisterPerHour, time.Hour)

	authH := authhandler.New(log, s.Auth)
	usersH := users.New(log, s.Accounts)
	subsH := subscriptions.New(log, s.Subscriptions, s.Audit)
	accessH := access.New(log, s.AccessCodes, s.Audit)
	profilesH := libraryhandler.NewProfiles(log, s.Profiles)
	favoritesH := libraryhandler.NewFavorites(log, s.Favorites)
	historyH := libraryhandler.NewHistory(log, s.History)
	catalogH := cataloghandler.New(log, s.Catalog)
	adminH := admin.New(log, s.Accounts, s.Audit)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.New(log, s.Health).ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.With(registerLimit).Post("/register", authH.Register)
			r.With(loginLimit).Post("/login", authH.Login)
			r.Post("/refresh", authH.Refresh)
			r.With(forgotLimit).Post("/forgot-password", authH.ForgotPassword)
			r.Post("/reset-password", authH.ResetPassword)
			r.With(authed).Post("/logout", authH.Logout)
			r.With(authed).Post("/revoke-token", authH.RevokeToken)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(authed).Get("/me", usersH.Me)
			r.With(authed).Get("/{id}", usersH.Get)
			r.With(authed).Put("/{id}", usersH.Update)
			r.With(admins).Get("/", usersH.List)
			r.With(superadmins).Post("/", usersH.Create)
			r.With(superadmins).Delete("/{id}", usersH.Delete)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/plans", subsH.Plans)
			r.Group(func(r chi.Router) {
				r.Use(admins)
				r.Post("/plans", subsH.CreatePlan)
				r.Put("/plans/{id}", subsH.UpdatePlan)
				r.Delete("/plans/{id}", subsH.DeletePlan)
				r.Get("/all", subsH.All)
			})
			r.Group(func(r chi.Router) {
				r.Use(authed)
				r.Get("/check", subsH.Check)
				r.Get("/me", subsH.Me)
				r.Post("/", subsH.Subscribe)
				r.Delete("/me", subsH.Cancel)
			})
		})

		r.Route("/access", func(r chi.Router) {
			r.Use(authed)
			r.Post("/generate", accessH.Generate)
			r.Post("/redeem", accessH.Redeem)
			r.Get("/me", accessH.Me)
			r.Post("/revoke/{id}", accessH.Revoke)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Use(authed)
			r.Get("/", profilesH.List)
			r.Post("/", profilesH.Create)
			r.Get("/{id}", profilesH.Get)
			r.Put("/{id}", profilesH.Update)
			r.Delete("/{id}", profilesH.Delete)
		})

		r.Route("/favorites", func(r chi.Router) {
			r.Use(authed)
			r.Get("/", favoritesH.List)
			r.Post("/", favoritesH.Add)
			r.Get("/check/{type}/{id}", favoritesH.Check)
			r.Delete("/{content_id}", favoritesH.Remove)
		})

		r.Route("/history", func(r chi.Router) {
			r.Use(authed)
			r.Get("/", historyH.List)
			r.Post("/", historyH.Record)
			r.Delete("/clear", historyH.Clear)
			r.Delete("/{id}", historyH.Delete)
		})

		for _, kind := range []string{models.ContentMovie, models.ContentTV} {
			prefix := "/movies"
			if kind == models.ContentTV {
				prefix = "/tv"
			}
			r.Route(prefix, func(r chi.Router) {
				r.Use(catalogLimit)
				r.With(authed).Get("/popular", catalogH.Popular(kind))
				r.With(authed).Get("/trending", catalogH.Trending(kind))
				r.With(authed).Get("/top-rated", catalogH.TopRated(kind))
				r.With(authed).Get("/genres", catalogH.Genres(kind))
				r.With(authed).Get("/discover", catalogH.Discover(kind))
				if kind == models.ContentMovie {
					r.With(authed).Get("/upcoming", catalogH.Upcoming)
				}
				r.With(entitled).Get("/{id}", catalogH.Details(kind))
			})
		}

		r.Route("/search", func(r chi.Router) {
			r.Use(catalogLimit, authed)
			r.Get("/{scope}", catalogH.Search)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(admins).Get("/stats", adminH.Stats)
			r.With(admins).Get("/users", adminH.Users)
			r.With(admins).Get("/audit-logs", adminH.AuditLogs)
			r.With(superadmins).Put("/users/{id}/role", adminH.ChangeRole)
			r.With(superadmins).Put("/users/{id}/password", adminH.SetPassword)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
	return r
}
