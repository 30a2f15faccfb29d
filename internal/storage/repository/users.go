package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/services/throttle"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

const accountColumns = `id, username, email, password_hash, role, is_active,
	failed_login_attempts, last_failed_login, last_login, password_reset_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a                                    models.Account
		lastFailed, lastLogin, passwordReset sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.Role, &a.IsActive,
		&a.FailedLoginAttempts, &lastFailed, &lastLogin, &passwordReset, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.LastFailedLogin = nullTime(lastFailed)
	a.LastLogin = nullTime(lastLogin)
	a.PasswordResetAt = nullTime(passwordReset)
	return &a, nil
}

// CreateAccount сохраняет учетную запись и возвращает ее id.
func (s *Storage) CreateAccount(ctx context.Context, acc models.Account) (int64, error) {
	const op = "storage.CreateAccount"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var id int64
	query := `INSERT INTO users (username, email, password_hash, role, is_active, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id;`
	if err := s.DB.QueryRowContext(ctx, query,
		acc.Username, acc.Email, acc.PasswordHash, acc.Role, acc.IsActive, acc.CreatedAt).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return id, nil
}

// AccountByID возвращает учетную запись по id.
func (s *Storage) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.accountBy(ctx, "storage.AccountByID", "id = $1", id)
}

// AccountByUsername возвращает учетную запись по имени пользователя.
func (s *Storage) AccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.accountBy(ctx, "storage.AccountByUsername", "username = $1", username)
}

// AccountByEmail возвращает учетную запись по почте.
func (s *Storage) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return s.accountBy(ctx, "storage.AccountByEmail", "lower(email) = lower($1)", email)
}

func (s *Storage) accountBy(ctx context.Context, op, where string, arg any) (*models.Account, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	query := `SELECT ` + accountColumns + ` FROM users WHERE ` + where
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return acc, nil
}

// ListAccounts страница учетных записей, search ищет по имени и почте.
func (s *Storage) ListAccounts(ctx context.Context, search string, page models.Page) ([]models.Account, int, error) {
	const op = "storage.ListAccounts"
	if err := checkCtx(ctx, op); err != nil {
		return nil, 0, err
	}

	where := ""
	args := []any{}
	if search = strings.TrimSpace(search); search != "" {
		where = ` WHERE username ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY id LIMIT $%d OFFSET $%d`, accountColumns, where, n+1, n+2)
	rows, err := s.DB.QueryContext(ctx, query, append(args, page.PerPage, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return result, total, nil
}

// UpdateAccount применяет непустые поля upd. Роль меняется только через SetRole.
func (s *Storage) UpdateAccount(ctx context.Context, id int64, upd models.AccountUpdate) (*models.Account, error) {
	const op = "storage.UpdateAccount"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Username != nil {
		add("username", *upd.Username)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if len(sets) == 0 {
		return s.AccountByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), accountColumns)
	acc, err := scanAccount(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return acc, nil
}

// SetRole меняет роль условным UPDATE: понизить активного суперадмина можно,
// только если в системе останется еще хотя бы один активный.
func (s *Storage) SetRole(ctx context.Context, id int64, role models.Role) (bool, error) {
	const op = "storage.SetRole"
	query := `UPDATE users SET role = $2
			  WHERE id = $1
			    AND (role <> 'superadmin'
			         OR NOT is_active
			         OR $2 = 'superadmin'
			         OR (SELECT COUNT(*) FROM users WHERE role = 'superadmin' AND is_active) > 1)`
	ok, err := s.guardSuperadmins(ctx, id, query, id, role)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// SetActive включает или отключает учетную запись. Последнего активного
// суперадмина отключить нельзя.
func (s *Storage) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	const op = "storage.SetActive"
	query := `UPDATE users SET is_active = $2
			  WHERE id = $1
			    AND ($2
			         OR role <> 'superadmin'
			         OR NOT is_active
			         OR (SELECT COUNT(*) FROM users WHERE role = 'superadmin' AND is_active) > 1)`
	ok, err := s.guardSuperadmins(ctx, id, query, id, active)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// guardSuperadmins выполняет условный UPDATE, предварительно заблокировав
// строки суперадминов. Параллельные понижения выстраиваются в очередь, и
// подзапрос следующего видит результат предыдущего.
func (s *Storage) guardSuperadmins(ctx context.Context, id int64, query string, args ...any) (bool, error) {
	if err := checkCtx(ctx, "storage.guardSuperadmins"); err != nil {
		return false, err
	}
	var applied bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var locked int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM (SELECT id FROM users WHERE role = 'superadmin' FOR UPDATE) s`,
		).Scan(&locked); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			applied = true
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return nil
	})
	return applied, err
}

// DeleteAccount удаляет учетную запись вместе со связанными данными.
func (s *Storage) DeleteAccount(ctx context.Context, id int64) error {
	const op = "storage.DeleteAccount"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// CountByRole количество учетных записей с ролью.
func (s *Storage) CountByRole(ctx context.Context, role models.Role) (int, error) {
	const op = "storage.CountByRole"
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// Stats сводка по пользователям, подпискам и кодам.
func (s *Storage) Stats(ctx context.Context, now time.Time) (*models.Stats, error) {
	const op = "storage.Stats"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	st := &models.Stats{UsersByRole: map[models.Role]int{}}
	rows, err := s.DB.QueryContext(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var (
			role models.Role
			n    int
		)
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		st.UsersByRole[role] = n
		st.TotalUsers += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `SELECT
			      (SELECT COUNT(*) FROM users WHERE last_login >= $1),
			      (SELECT COUNT(*) FROM users WHERE created_at >= $2),
			      (SELECT COUNT(*) FROM subscriptions WHERE is_active AND end_date > $3),
			      (SELECT COUNT(*) FROM access_codes),
			      (SELECT COUNT(*) FROM access_codes WHERE used_by IS NOT NULL)`
	if err := s.DB.QueryRowContext(ctx, query, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30), now).Scan(
		&st.ActiveUsersLastWeek, &st.NewUsersLastMonth, &st.ActiveSubscriptions,
		&st.CodesIssued, &st.CodesRedeemed); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// LibraryCounts размеры избранного и истории пользователя.
func (s *Storage) LibraryCounts(ctx context.Context, id int64) (int, int, error) {
	const op = "storage.LibraryCounts"
	var favorites, history int
	query := `SELECT
			      (SELECT COUNT(*) FROM favorites WHERE user_id = $1),
			      (SELECT COUNT(*) FROM watch_history WHERE user_id = $1)`
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(&favorites, &history); err != nil {
		return 0, 0, fmt.Errorf("%s: %w", op, err)
	}
	return favorites, history, nil
}

// LoginAttempts счетчики неудачных входов.
func (s *Storage) LoginAttempts(ctx context.Context, accountID int64) (throttle.Attempts, error) {
	const op = "storage.LoginAttempts"
	var (
		a          throttle.Attempts
		lastFailed sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT failed_login_attempts, last_failed_login FROM users WHERE id = $1`, accountID).
		Scan(&a.Failed, &lastFailed)
	if err != nil {
		return throttle.Attempts{}, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	a.LastFailedAt = nullTime(lastFailed)
	return a, nil
}

// SaveLoginAttempts сохраняет счетчики неудачных входов.
func (s *Storage) SaveLoginAttempts(ctx context.Context, accountID int64, a throttle.Attempts) error {
	const op = "storage.SaveLoginAttempts"
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = $2, last_failed_login = $3 WHERE id = $1`,
		accountID, a.Failed, a.LastFailedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkLoginSuccess сбрасывает счетчики и отмечает время входа.
func (s *Storage) MarkLoginSuccess(ctx context.Context, accountID int64, at time.Time) error {
	const op = "storage.MarkLoginSuccess"
	_, err := s.DB.ExecContext(ctx,
		`UPDATE users SET failed_login_attempts = 0, last_failed_login = NULL, last_login = $2 WHERE id = $1`,
		accountID, at)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SaveResetToken сохраняет хеш токена сброса, заменяя прежний.
func (s *Storage) SaveResetToken(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const op = "storage.SaveResetToken"
	query := `INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (user_id) DO UPDATE
			  SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = NOW()`
	if _, err := s.DB.ExecContext(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return nil
}

// ResetTokenOwner владелец действующего токена сброса.
func (s *Storage) ResetTokenOwner(ctx context.Context, tokenHash string, now time.Time) (int64, error) {
	const op = "storage.ResetTokenOwner"
	var userID int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT user_id FROM password_reset_tokens WHERE token_hash = $1 AND expires_at > $2`,
		tokenHash, now).Scan(&userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return userID, nil
}

// ResetPassword меняет пароль, снимает блокировку и удаляет токен сброса в одной транзакции.
func (s *Storage) ResetPassword(ctx context.Context, userID int64, hash string, at time.Time, ip string) error {
	const op = "storage.ResetPassword"
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users
			 SET password_hash = $2, password_reset_at = $3, last_password_reset_ip = $4,
			     failed_login_attempts = 0, last_failed_login = NULL
			 WHERE id = $1`,
			userID, hash, at, ip)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return storage.ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
