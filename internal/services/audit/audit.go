// Package audit пишет журнал событий безопасности.
//
// Запись в журнал не должна ломать основную операцию: ошибки хранилища
// и брокера только логируются.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/rabbitmq"
)

// Store хранилище журнала.
type Store interface {
	InsertAudit(ctx context.Context, rec models.AuditRecord) error
	ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error)
}

// Publisher дублирует события в брокер.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// Logger журнал аудита.
type Logger struct {
	log   *slog.Logger
	store Store
	pub   Publisher
	now   func() time.Time
}

// New создает журнал. pub может быть nil, тогда события в брокер не уходят.
func New(log *slog.Logger, store Store, pub Publisher) *Logger {
	return &Logger{log: log, store: store, pub: pub, now: time.Now}
}

// Record добавляет запись. userID nil для анонимных действий.
func (l *Logger) Record(ctx context.Context, userID *int64, action, details string, meta models.RequestMeta) {
	const op = "audit.Record"
	rec := models.AuditRecord{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: l.now(),
	}
	// запрос клиента мог уже завершиться, запись все равно нужна
	ctx = context.WithoutCancel(ctx)

	if err := l.store.InsertAudit(ctx, rec); err != nil {
		l.log.Error("failed to write audit record", slog.String("op", op), slog.String("action", action), sl.Err(err))
	}
	if l.pub == nil {
		return
	}
	if err := l.pub.Publish(ctx, rabbitmq.RoutingAudit, rec); err != nil {
		l.log.Warn("failed to publish audit event", slog.String("op", op), slog.String("action", action), sl.Err(err))
	}
}

// RecordFor запись от имени известной учетной записи.
func (l *Logger) RecordFor(ctx context.Context, userID int64, action, details string, meta models.RequestMeta) {
	l.Record(ctx, &userID, action, details, meta)
}

// List возвращает страницу журнала.
func (l *Logger) List(ctx context.Context, filter models.AuditFilter) (*models.AuditList, error) {
	const op = "audit.List"
	filter.Page = filter.Page.Normalize(50, 200)
	logs, total, err := l.store.ListAudit(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if logs == nil {
		logs = []models.AuditRecord{}
	}
	return &models.AuditList{Logs: logs, Pagination: models.NewPagination(filter.Page, total)}, nil
}
