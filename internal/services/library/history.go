package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// historyLimit сколько последних просмотров отдается в списке.
const historyLimit = 100

var (
	ErrHistoryNotFound = errors.New("history item not found")
	ErrInvalidProgress = errors.New("watch_duration must be >= 0 and watch_percentage within 0..100")
)

// HistoryRepository хранилище истории просмотра.
type HistoryRepository interface {
	UpsertHistory(ctx context.Context, e models.HistoryEntry) (*models.HistoryEntry, error)
	History(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error)
	DeleteHistory(ctx context.Context, userID, id int64) error
	ClearHistory(ctx context.Context, userID int64) (int64, error)
}

// History сервис истории просмотра.
type History struct {
	log     *slog.Logger
	repo    HistoryRepository
	catalog Catalog
	now     func() time.Time
}

// NewHistory создает сервис истории.
func NewHistory(log *slog.Logger, repo HistoryRepository, catalog Catalog) *History {
	return &History{log: log, repo: repo, catalog: catalog, now: time.Now}
}

// WithClock подменяет источник времени.
func (s *History) WithClock(now func() time.Time) *History {
	s.now = now
	return s
}

// Progress прогресс просмотра, присылаемый плеером.
type Progress struct {
	ContentID       string
	WatchDuration   int
	WatchPercentage float64
}

// Record добавляет просмотр или обновляет прогресс уже просмотренного.
func (s *History) Record(ctx context.Context, userID int64, p Progress) (*models.HistoryEntry, error) {
	const op = "library.History.Record"
	if p.WatchDuration < 0 || p.WatchPercentage < 0 || p.WatchPercentage > 100 {
		return nil, ErrInvalidProgress
	}
	e, err := s.repo.UpsertHistory(ctx, models.HistoryEntry{
		UserID:          userID,
		ContentID:       p.ContentID,
		WatchedAt:       s.now(),
		WatchDuration:   p.WatchDuration,
		WatchPercentage: p.WatchPercentage,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// List последние просмотры с карточками каталога.
func (s *History) List(ctx context.Context, userID int64) (*models.Library[models.HistoryEntry], error) {
	const op = "library.History.List"
	entries, err := s.repo.History(ctx, userID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &models.Library[models.HistoryEntry]{Movies: []models.HistoryEntry{}, TV: []models.HistoryEntry{}}
	for _, e := range entries {
		kind, id := models.SplitContentKey(e.ContentID)
		e.Details = enrich(ctx, s.log, s.catalog, kind, id)
		if kind == models.ContentTV {
			out.TV = append(out.TV, e)
		} else {
			out.Movies = append(out.Movies, e)
		}
	}
	out.Total = len(entries)
	return out, nil
}

// Delete удаляет запись истории владельца.
func (s *History) Delete(ctx context.Context, userID, id int64) error {
	const op = "library.History.Delete"
	if err := s.repo.DeleteHistory(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrHistoryNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Clear очищает историю пользователя.
func (s *History) Clear(ctx context.Context, userID int64) (int64, error) {
	const op = "library.History.Clear"
	n, err := s.repo.ClearHistory(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
