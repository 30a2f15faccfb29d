// Package sender собирает почтовый воркер: читает очереди брокера и
// отправляет письма через SMTP.
package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vortextv/internal/config"
	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/lib/smtp"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
	senderservice "github.com/magabrotheeeer/vortextv/internal/services/sender"
)

// App почтовый воркер.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.Service
	logger        *slog.Logger
}

// New подключается к брокеру и объявляет очереди.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "sender.New"
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("%s: rabbitmq url is not set", op)
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Retries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := rabbitmq.SetupChannel(conn, cfg.RabbitMQ.Exchange, rabbitmq.AllQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.New(logger, transport),
		logger:        logger,
	}, nil
}

// Run обрабатывает сообщения до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	consumers := map[string]rabbitmq.Handler{
		rabbitmq.QueuePasswordReset: a.senderService.SendPasswordReset,
		rabbitmq.QueueAudit:         a.senderService.LogAuditEvent,
	}
	for queue, handler := range consumers {
		if err := rabbitmq.Consume(ctx, a.logger, a.ch, queue, handler); err != nil {
			a.logger.Error("failed to start consumer", slog.String("queue", queue), sl.Err(err))
			return err
		}
	}

	<-ctx.Done()
	a.logger.Info("sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
