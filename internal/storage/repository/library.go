package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// AddFavorite добавляет контент в избранное.
func (s *Storage) AddFavorite(ctx context.Context, fav models.Favorite) (int64, error) {
	const op = "storage.AddFavorite"
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO favorites (user_id, content_id, added_at) VALUES ($1, $2, $3) RETURNING id`,
		fav.UserID, fav.ContentID, fav.AddedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return id, nil
}

// RemoveFavorite удаляет контент из избранного.
func (s *Storage) RemoveFavorite(ctx context.Context, userID int64, contentID string) error {
	const op = "storage.RemoveFavorite"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM favorites WHERE user_id = $1 AND content_id = $2`, userID, contentID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// Favorites избранное пользователя, последние добавленные первыми.
func (s *Storage) Favorites(ctx context.Context, userID int64) ([]models.Favorite, error) {
	const op = "storage.Favorites"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, content_id, added_at FROM favorites WHERE user_id = $1 ORDER BY added_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.Favorite
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.ID, &f.UserID, &f.ContentID, &f.AddedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IsFavorite сообщает, есть ли контент в избранном.
func (s *Storage) IsFavorite(ctx context.Context, userID int64, contentID string) (bool, error) {
	const op = "storage.IsFavorite"
	var exists bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND content_id = $2)`,
		userID, contentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// UpsertHistory записывает просмотр. Повторный просмотр обновляет время и прогресс.
func (s *Storage) UpsertHistory(ctx context.Context, e models.HistoryEntry) (*models.HistoryEntry, error) {
	const op = "storage.UpsertHistory"
	query := `INSERT INTO watch_history (user_id, content_id, watched_at, watch_duration, watch_percentage)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id, content_id) DO UPDATE
			  SET watched_at = EXCLUDED.watched_at,
			      watch_duration = EXCLUDED.watch_duration,
			      watch_percentage = EXCLUDED.watch_percentage
			  RETURNING id, user_id, content_id, watched_at, watch_duration, watch_percentage`
	var out models.HistoryEntry
	err := s.DB.QueryRowContext(ctx, query, e.UserID, e.ContentID, e.WatchedAt, e.WatchDuration, e.WatchPercentage).
		Scan(&out.ID, &out.UserID, &out.ContentID, &out.WatchedAt, &out.WatchDuration, &out.WatchPercentage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return &out, nil
}

// TouchHistory отмечает открытие карточки, не сбрасывая накопленный прогресс.
func (s *Storage) TouchHistory(ctx context.Context, userID int64, contentID string, at time.Time) error {
	const op = "storage.TouchHistory"
	query := `INSERT INTO watch_history (user_id, content_id, watched_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_id, content_id) DO UPDATE SET watched_at = EXCLUDED.watched_at`
	if _, err := s.DB.ExecContext(ctx, query, userID, contentID, at); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// History последние просмотры пользователя.
func (s *Storage) History(ctx context.Context, userID int64, limit int) ([]models.HistoryEntry, error) {
	const op = "storage.History"
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, content_id, watched_at, watch_duration, watch_percentage
		 FROM watch_history WHERE user_id = $1
		 ORDER BY watched_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.ContentID, &e.WatchedAt, &e.WatchDuration, &e.WatchPercentage); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// DeleteHistory удаляет запись истории владельца.
func (s *Storage) DeleteHistory(ctx context.Context, userID, id int64) error {
	const op = "storage.DeleteHistory"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watch_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ClearHistory очищает историю и возвращает число удаленных записей.
func (s *Storage) ClearHistory(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.ClearHistory"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watch_history WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

const profileColumns = `id, user_id, name, avatar, is_kids, created_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Avatar, &p.IsKids, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Profiles профили учетной записи в порядке создания.
func (s *Storage) Profiles(ctx context.Context, userID int64) ([]models.Profile, error) {
	const op = "storage.Profiles"
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ProfileByID профиль владельца.
func (s *Storage) ProfileByID(ctx context.Context, userID, id int64) (*models.Profile, error) {
	const op = "storage.ProfileByID"
	p, err := scanProfile(s.DB.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return p, nil
}

// CreateProfile создает профиль, если у учетной записи их меньше limit.
func (s *Storage) CreateProfile(ctx context.Context, p models.Profile, limit int) (int64, error) {
	const op = "storage.CreateProfile"
	query := `INSERT INTO user_profiles (user_id, name, avatar, is_kids, created_at)
			  SELECT $1, $2, $3, $4, $5
			  WHERE (SELECT COUNT(*) FROM user_profiles WHERE user_id = $1) < $6
			  RETURNING id`
	id, err := s.insertWithin(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, p.UserID,
		query, p.UserID, p.Name, p.Avatar, p.IsKids, p.CreatedAt, limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// UpdateProfile частично обновляет профиль владельца.
func (s *Storage) UpdateProfile(ctx context.Context, userID, id int64, upd models.ProfileUpdate) (*models.Profile, error) {
	const op = "storage.UpdateProfile"
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Avatar != nil {
		add("avatar", *upd.Avatar)
	}
	if upd.IsKids != nil {
		add("is_kids", *upd.IsKids)
	}
	if len(sets) == 0 {
		return s.ProfileByID(ctx, userID, id)
	}

	args = append(args, id, userID)
	query := fmt.Sprintf(`UPDATE user_profiles SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), profileColumns)
	p, err := scanProfile(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return p, nil
}

// DeleteProfile удаляет профиль владельца.
func (s *Storage) DeleteProfile(ctx context.Context, userID, id int64) error {
	const op = "storage.DeleteProfile"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}
