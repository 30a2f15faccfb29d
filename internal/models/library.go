package models

import "time"

// Типы контента каталога.
const (
	ContentMovie = "movie"
	ContentTV    = "tv"
)

// tvPrefix добавляется к идентификатору сериала при хранении.
const tvPrefix = "tv_"

// ContentKey формирует хранимый идентификатор контента.
func ContentKey(contentType, id string) string {
	if contentType == ContentTV {
		return tvPrefix + id
	}
	return id
}

// SplitContentKey разбирает хранимый идентификатор на тип и TMDB id.
func SplitContentKey(key string) (contentType, id string) {
	if len(key) > len(tvPrefix) && key[:len(tvPrefix)] == tvPrefix {
		return ContentTV, key[len(tvPrefix):]
	}
	return ContentMovie, key
}

// Profile профиль просмотра внутри учетной записи.
type Profile struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	IsKids    bool      `json:"is_kids"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate частичное обновление профиля.
type ProfileUpdate struct {
	Name   *string
	Avatar *string
	IsKids *bool
}

// Favorite избранный фильм или сериал.
type Favorite struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ContentID string    `json:"content_id"`
	AddedAt   time.Time `json:"added_at"`
	Details   any       `json:"details,omitempty"`
}

// HistoryEntry запись истории просмотра.
type HistoryEntry struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ContentID       string    `json:"content_id"`
	WatchedAt       time.Time `json:"watched_at"`
	WatchDuration   int       `json:"watch_duration"`
	WatchPercentage float64   `json:"watch_percentage"`
	Details         any       `json:"details,omitempty"`
}

// Library сводка избранного или истории, разделенная по типам контента.
type Library[T any] struct {
	Movies []T `json:"movies"`
	TV     []T `json:"tv_shows"`
	Total  int `json:"total"`
}
