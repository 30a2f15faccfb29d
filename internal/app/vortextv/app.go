// Package vortextv собирает HTTP API сервиса: хранилище, кеш, брокер,
// сервисы предметной области и маршруты.
package vortextv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vortextv/internal/cache"
	"github.com/magabrotheeeer/vortextv/internal/config"
	"github.com/magabrotheeeer/vortextv/internal/http/handlers/health"
	"github.com/magabrotheeeer/vortextv/internal/lib/jwt"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/migrations"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
	"github.com/magabrotheeeer/vortextv/internal/services/accesscode"
	"github.com/magabrotheeeer/vortextv/internal/services/account"
	"github.com/magabrotheeeer/vortextv/internal/services/audit"
	"github.com/magabrotheeeer/vortextv/internal/services/auth"
	"github.com/magabrotheeeer/vortextv/internal/services/catalog"
	"github.com/magabrotheeeer/vortextv/internal/services/entitlement"
	"github.com/magabrotheeeer/vortextv/internal/services/library"
	"github.com/magabrotheeeer/vortextv/internal/services/subscription"
	"github.com/magabrotheeeer/vortextv/internal/services/throttle"
	"github.com/magabrotheeeer/vortextv/internal/services/token"
	"github.com/magabrotheeeer/vortextv/internal/storage/repository"
	"github.com/magabrotheeeer/vortextv/internal/tmdb"
)

const shutdownTimeout = 15 * time.Second

// Publisher публикация событий в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Services сервисы предметной области, общие для всех маршрутов.
type Services struct {
	Store         *repository.Storage
	Tokens        *token.Service
	Auth          *auth.Service
	Accounts      *account.Service
	Subscriptions *subscription.Service
	AccessCodes   *accesscode.Service
	Entitlements  *entitlement.Resolver
	Audit         *audit.Logger
	Catalog       *catalog.Service
	Favorites     *library.Favorites
	History       *library.History
	Profiles      *library.Profiles
	Health        map[string]health.Check
}

// NewServices связывает сервисы поверх хранилища и кеша. pub может быть nil,
// тогда письма и события аудита в брокер не отправляются.
func NewServices(log *slog.Logger, cfg *config.Config, store *repository.Storage, c *cache.Cache, pub Publisher, fetcher catalog.Fetcher) *Services {
	maker := jwt.NewJWTMaker(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	tokens := token.New(maker, cache.NewRevocationStore(c), cfg.JWT.AccessTTL, !cfg.JWT.SkipIPCheck)

	var auditPub audit.Publisher
	var authPub auth.Publisher
	if pub != nil {
		auditPub, authPub = pub, pub
	}
	auditLog := audit.New(log, store, auditPub)
	resolver := entitlement.New(store)
	catalogSvc := catalog.New(log, fetcher, c, store, cfg.TMDB.CacheTTL)

	return &Services{
		Store:  store,
		Tokens: tokens,
		Auth: auth.New(log, store, tokens,
			throttle.New(store, cfg.Lockout.MaxAttempts, cfg.Lockout.Duration),
			auditLog, authPub,
			auth.Options{FrontendURL: cfg.FrontendURL}),
		Accounts:      account.New(store, resolver, auditLog),
		Subscriptions: subscription.New(store, c, resolver, log, cfg.RedisConnection.PlansTTL),
		AccessCodes:   accesscode.New(store, cfg.AccessCode.Length, cfg.AccessCode.MaxAttempts),
		Entitlements:  resolver,
		Audit:         auditLog,
		Catalog:       catalogSvc,
		Favorites:     library.NewFavorites(log, store, catalogSvc),
		History:       library.NewHistory(log, store, catalogSvc),
		Profiles:      library.NewProfiles(store),
		Health: map[string]health.Check{
			"postgres": store.DB.PingContext,
			"redis":    c.Ping,
		},
	}
}

// App HTTP API сервиса.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
	amqp   *amqp.Connection
}

// New подключает зависимости, накатывает миграции и создает суперадмина
// при первом запуске.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	app := &App{logger: logger, db: db, cache: cacheRedis}

	var pub Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.AllQueues())
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.amqp = conn
		pub = rabbitmq.NewPublisher(ch, cfg.RabbitMQ.Exchange)
	} else {
		logger.Warn("rabbitmq url is not set, password reset mails are disabled")
	}

	services := NewServices(logger, cfg, db, cacheRedis, pub, tmdb.NewClient(logger, cfg.TMDB))

	created, err := services.Accounts.EnsureSuperadmin(ctx,
		cfg.Bootstrap.SuperadminUsername, cfg.Bootstrap.SuperadminEmail, cfg.Bootstrap.SuperadminPassword)
	switch {
	case errors.Is(err, account.ErrBootstrapDisabled):
		logger.Debug("superadmin bootstrap skipped")
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	case created:
		logger.Info("superadmin created", slog.String("username", cfg.Bootstrap.SuperadminUsername))
	}

	app.server = &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      NewRouter(logger, cfg, services),
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return app, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq connection", sl.Err(err))
		}
	}
	if err := a.cache.Close(); err != nil {
		a.logger.Warn("failed to close redis", sl.Err(err))
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", sl.Err(err))
	}
}
