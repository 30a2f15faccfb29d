// Package library управляет пользовательской библиотекой: избранным,
// историей просмотра и профилями внутри учетной записи.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

var (
	ErrAlreadyFavorite = errors.New("content already in favorites")
	ErrNotFavorite     = errors.New("content not found in favorites")
	ErrUnknownKind     = errors.New("content_type must be movie or tv")
)

// Catalog источник карточек контента для обогащения списков.
type Catalog interface {
	Lookup(ctx context.Context, kind, id string) (json.RawMessage, error)
}

// FavoritesRepository хранилище избранного.
type FavoritesRepository interface {
	AddFavorite(ctx context.Context, fav models.Favorite) (int64, error)
	RemoveFavorite(ctx context.Context, userID int64, contentID string) error
	Favorites(ctx context.Context, userID int64) ([]models.Favorite, error)
	IsFavorite(ctx context.Context, userID int64, contentID string) (bool, error)
}

// Favorites сервис избранного.
type Favorites struct {
	log     *slog.Logger
	repo    FavoritesRepository
	catalog Catalog
	now     func() time.Time
}

// NewFavorites создает сервис избранного.
func NewFavorites(log *slog.Logger, repo FavoritesRepository, catalog Catalog) *Favorites {
	return &Favorites{log: log, repo: repo, catalog: catalog, now: time.Now}
}

func checkKind(kind string) error {
	if kind != models.ContentMovie && kind != models.ContentTV {
		return ErrUnknownKind
	}
	return nil
}

// Add добавляет фильм или сериал в избранное.
func (s *Favorites) Add(ctx context.Context, userID int64, kind, id string) (*models.Favorite, error) {
	const op = "library.Favorites.Add"
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	fav := models.Favorite{
		UserID:    userID,
		ContentID: models.ContentKey(kind, id),
		AddedAt:   s.now(),
	}
	favID, err := s.repo.AddFavorite(ctx, fav)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrAlreadyFavorite
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	fav.ID = favID
	return &fav, nil
}

// Remove удаляет запись по хранимому идентификатору контента.
func (s *Favorites) Remove(ctx context.Context, userID int64, contentID string) error {
	const op = "library.Favorites.Remove"
	if err := s.repo.RemoveFavorite(ctx, userID, contentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFavorite
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Check сообщает, есть ли контент в избранном.
func (s *Favorites) Check(ctx context.Context, userID int64, kind, id string) (bool, error) {
	const op = "library.Favorites.Check"
	if err := checkKind(kind); err != nil {
		return false, err
	}
	ok, err := s.repo.IsFavorite(ctx, userID, models.ContentKey(kind, id))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// List избранное с карточками каталога, разделенное на фильмы и сериалы.
func (s *Favorites) List(ctx context.Context, userID int64) (*models.Library[models.Favorite], error) {
	const op = "library.Favorites.List"
	favs, err := s.repo.Favorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &models.Library[models.Favorite]{Movies: []models.Favorite{}, TV: []models.Favorite{}}
	for _, f := range favs {
		kind, id := models.SplitContentKey(f.ContentID)
		f.Details = enrich(ctx, s.log, s.catalog, kind, id)
		if kind == models.ContentTV {
			out.TV = append(out.TV, f)
		} else {
			out.Movies = append(out.Movies, f)
		}
	}
	out.Total = len(favs)
	return out, nil
}

// enrich подтягивает карточку из каталога. Ошибка каталога не прерывает
// выдачу списка, запись остается без карточки.
func enrich(ctx context.Context, log *slog.Logger, catalog Catalog, kind, id string) any {
	raw, err := catalog.Lookup(ctx, kind, id)
	if err != nil {
		log.Warn("failed to load content details",
			slog.String("kind", kind), slog.String("id", id), sl.Err(err))
		return nil
	}
	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		log.Warn("malformed content details",
			slog.String("kind", kind), slog.String("id", id), sl.Err(err))
		return nil
	}
	if details == nil {
		return nil
	}
	details["media_type"] = kind
	return details
}
