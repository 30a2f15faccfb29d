// Package main VortexTV API
//
// @title           VortexTV API
// @version         1.0
// @description     API стримингового сервиса: учетные записи, подписки, коды доступа и каталог TMDB
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/magabrotheeeer/vortextv/internal/app/vortextv"
	"github.com/magabrotheeeer/vortextv/internal/config"
)

func main() {
	// .env нужен только локально
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := setupLogger(cfg)

	logger.Info("starting vortextv", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := vortextv.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", slog.Any("err", err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("vortextv stopped gracefully")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsLocal() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
