// Package catalog проксирует каталог TMDB: подборки, поиск и карточки фильмов и сериалов.
// Ответы кешируются, открытие карточки отмечается в истории просмотра.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/lib/sl"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
	"github.com/magabrotheeeer/vortextv/internal/models"
)

const detailsAppend = "videos,credits,similar,recommendations"

var (
	ErrUnknownKind   = errors.New("unknown content type")
	ErrQueryRequired = errors.New("search query is required")
	ErrInvalidID     = errors.New("invalid content id")
)

// Search области поиска.
const (
	SearchMulti  = "multi"
	SearchMovies = "movies"
	SearchTV     = "tv-shows"
)

var searchPaths = map[string]string{
	SearchMulti:  "/search/multi",
	SearchMovies: "/search/movie",
	SearchTV:     "/search/tv",
}

// discoverParams фильтры discover, которые пропускаются в TMDB.
var discoverParams = map[string][]string{
	models.ContentMovie: {"sort_by", "with_genres", "year", "primary_release_year", "vote_average.gte", "with_original_language"},
	models.ContentTV:    {"sort_by", "with_genres", "first_air_date_year", "vote_average.gte", "with_original_language"},
}

// Fetcher источник данных каталога.
type Fetcher interface {
	Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error)
}

// Cache кеш ответов.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Library отметки пользователя о просмотре и избранном.
type Library interface {
	TouchHistory(ctx context.Context, userID int64, contentID string, at time.Time) error
	IsFavorite(ctx context.Context, userID int64, contentID string) (bool, error)
}

// Service каталог контента.
type Service struct {
	log     *slog.Logger
	fetcher Fetcher
	cache   Cache
	library Library
	ttl     time.Duration
	now     func() time.Time
}

// New создает сервис каталога. cache может быть nil.
func New(log *slog.Logger, fetcher Fetcher, cache Cache, library Library, ttl time.Duration) *Service {
	return &Service{
		log:     log,
		fetcher: fetcher,
		cache:   cache,
		library: library,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func checkKind(kind string) error {
	if kind != models.ContentMovie && kind != models.ContentTV {
		return ErrUnknownKind
	}
	return nil
}

func pageParams(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": {strconv.Itoa(page)}}
}

// Popular популярные фильмы или сериалы.
func (s *Service) Popular(ctx context.Context, kind string, page int) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.fetch(ctx, "/"+kind+"/popular", pageParams(page))
}

// TopRated фильмы или сериалы с высоким рейтингом.
func (s *Service) TopRated(ctx context.Context, kind string, page int) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.fetch(ctx, "/"+kind+"/top_rated", pageParams(page))
}

// Upcoming ближайшие премьеры фильмов.
func (s *Service) Upcoming(ctx context.Context, page int) (json.RawMessage, error) {
	return s.fetch(ctx, "/movie/upcoming", pageParams(page))
}

// Trending тренды за день или неделю. Неизвестное окно заменяется на week.
func (s *Service) Trending(ctx context.Context, kind, window string) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if window != "day" && window != "week" {
		window = "week"
	}
	return s.fetch(ctx, "/trending/"+kind+"/"+window, nil)
}

// Genres список жанров.
func (s *Service) Genres(ctx context.Context, kind string) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.fetch(ctx, "/genre/"+kind+"/list", nil)
}

// Discover подборка по фильтрам. Неизвестные фильтры отбрасываются.
func (s *Service) Discover(ctx context.Context, kind string, filter url.Values, page int) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	params := pageParams(page)
	for _, name := range discoverParams[kind] {
		if v := filter.Get(name); v != "" {
			params.Set(name, v)
		}
	}
	return s.fetch(ctx, "/discover/"+kind, params)
}

// Search ищет по области scope.
func (s *Service) Search(ctx context.Context, scope, query string, page int) (json.RawMessage, error) {
	path, ok := searchPaths[scope]
	if !ok {
		return nil, ErrUnknownKind
	}
	if query == "" {
		return nil, ErrQueryRequired
	}
	params := pageParams(page)
	params.Set("query", query)
	params.Set("include_adult", "false")
	return s.fetch(ctx, path, params)
}

// Lookup карточка контента без отметки в истории.
func (s *Service) Lookup(ctx context.Context, kind, id string) (json.RawMessage, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return nil, ErrInvalidID
	}
	return s.fetch(ctx, "/"+kind+"/"+id, url.Values{"append_to_response": {detailsAppend}})
}

// Details карточка с трейлерами, актерами и рекомендациями. Открытие
// отмечается в истории просмотра, в ответ добавляется is_favorite.
func (s *Service) Details(ctx context.Context, userID int64, kind, id string) (map[string]any, error) {
	const op = "catalog.Details"
	raw, err := s.Lookup(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := models.ContentKey(kind, id)
	if err := s.library.TouchHistory(ctx, userID, key, s.now()); err != nil {
		s.log.Warn("failed to record history", slog.String("op", op), slog.String("content_id", key), sl.Err(err))
	}
	fav, err := s.library.IsFavorite(ctx, userID, key)
	if err != nil {
		s.log.Warn("failed to check favorite", slog.String("op", op), slog.String("content_id", key), sl.Err(err))
	}
	details["is_favorite"] = fav
	return details, nil
}

func cacheKey(path string, params url.Values) string {
	return "tmdb:" + path + "?" + params.Encode()
}

func (s *Service) fetch(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	const op = "catalog.fetch"
	key := cacheKey(path, params)
	if s.cache != nil {
		var cached json.RawMessage
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.log.Warn("failed to read cache", slog.String("op", op), slog.String("key", key), sl.Err(err))
		}
		if found {
			metrics.RecordUpstream("cache_hit")
			return cached, nil
		}
	}

	body, err := s.fetcher.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, body, s.ttl); err != nil {
			s.log.Warn("failed to write cache", slog.String("op", op), slog.String("key", key), sl.Err(err))
		}
	}
	return body, nil
}
