package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
)

const codeColumns = `c.id, c.code, c.created_by, c.subscription_id, c.used_by, COALESCE(ru.username, ''),
	c.used_at, c.is_active, c.expires_at, c.created_at`

const codeFrom = ` FROM access_codes c LEFT JOIN users ru ON ru.id = c.used_by`

func scanCode(row rowScanner, extra ...any) (*models.AccessCode, error) {
	var (
		c      models.AccessCode
		usedBy sql.NullInt64
		usedAt sql.NullTime
	)
	dest := append([]any{&c.ID, &c.Code, &c.CreatedBy, &c.SubscriptionID, &usedBy, &c.UsedByUsername,
		&usedAt, &c.IsActive, &c.ExpiresAt, &c.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.UsedBy = nullInt(usedBy)
	c.UsedAt = nullTime(usedAt)
	return &c, nil
}

func (s *Storage) queryCodes(ctx context.Context, op, query string, args ...any) ([]models.AccessCode, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.AccessCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CodeExists сообщает, занято ли значение кода.
func (s *Storage) CodeExists(ctx context.Context, code string) (bool, error) {
	const op = "storage.CodeExists"
	var exists bool
	if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM access_codes WHERE code = $1)`, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// CreateCode сохраняет выпущенный код, если по подписке выпущено меньше limit
// кодов. Иначе возвращает ErrLimitReached.
func (s *Storage) CreateCode(ctx context.Context, code models.AccessCode, limit int) (int64, error) {
	const op = "storage.CreateCode"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	query := `INSERT INTO access_codes (code, created_by, subscription_id, is_active, expires_at, created_at)
			  SELECT $1, $2, $3, $4, $5, $6
			  WHERE (SELECT COUNT(*) FROM access_codes WHERE created_by = $2 AND subscription_id = $3) < $7
			  RETURNING id`
	id, err := s.insertWithin(ctx, `SELECT id FROM subscriptions WHERE id = $1 FOR UPDATE`, code.SubscriptionID,
		query, code.Code, code.CreatedBy, code.SubscriptionID, code.IsActive, code.ExpiresAt, code.CreatedAt, limit)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// CountIssuedCodes сколько кодов пользователь выпустил по подписке.
func (s *Storage) CountIssuedCodes(ctx context.Context, userID, subscriptionID int64) (int, error) {
	const op = "storage.CountIssuedCodes"
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM access_codes WHERE created_by = $1 AND subscription_id = $2`,
		userID, subscriptionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// CodeByValue код по значению вместе с родительской подпиской, тарифом и владельцем.
func (s *Storage) CodeByValue(ctx context.Context, code string) (*models.AccessCode, error) {
	const op = "storage.CodeByValue"
	return s.codeWithSubscription(ctx, op, `c.code = $1`, code)
}

// RedeemedCode действующий код, погашенный пользователем.
func (s *Storage) RedeemedCode(ctx context.Context, userID int64, now time.Time) (*models.AccessCode, error) {
	const op = "storage.RedeemedCode"
	return s.codeWithSubscription(ctx, op,
		`c.used_by = $1 AND c.is_active AND c.expires_at > $2 AND sub.is_active AND sub.end_date > $2
		 ORDER BY sub.end_date DESC LIMIT 1`, userID, now)
}

func (s *Storage) codeWithSubscription(ctx context.Context, op, where string, args ...any) (*models.AccessCode, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	var (
		sub      models.Subscription
		plan     models.Plan
		features string
	)
	query := `SELECT ` + codeColumns + `,
			      sub.id, sub.user_id, sub.plan_id, sub.start_date, sub.end_date, sub.is_active,
			      sub.payment_status, sub.created_at, ou.username,
			      p.id, p.name, p.price, p.duration_months, p.max_access_codes, p.description, p.features, p.created_at` +
		codeFrom + `
			  JOIN subscriptions sub ON sub.id = c.subscription_id
			  JOIN users ou ON ou.id = sub.user_id
			  JOIN subscription_plans p ON p.id = sub.plan_id
			  WHERE ` + where
	c, err := scanCode(s.DB.QueryRowContext(ctx, query, args...),
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.StartDate, &sub.EndDate, &sub.IsActive,
		&sub.PaymentStatus, &sub.CreatedAt, &sub.Username,
		&plan.ID, &plan.Name, &plan.Price, &plan.DurationMonths, &plan.MaxAccessCodes, &plan.Description,
		&features, &plan.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	plan.Features = splitFeatures(features)
	sub.Plan = &plan
	c.Subscription = &sub
	return c, nil
}

// RedeemCode атомарно гасит код. false означает, что код уже погашен,
// отозван или истек к моменту обновления.
func (s *Storage) RedeemCode(ctx context.Context, codeID, userID int64, at time.Time) (bool, error) {
	const op = "storage.RedeemCode"
	res, err := s.DB.ExecContext(ctx,
		`UPDATE access_codes SET used_by = $2, used_at = $3
		 WHERE id = $1 AND used_at IS NULL AND is_active AND expires_at > $3`,
		codeID, userID, at)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// CodesByCreator коды, выпущенные пользователем, новые первыми.
func (s *Storage) CodesByCreator(ctx context.Context, userID int64) ([]models.AccessCode, error) {
	const op = "storage.CodesByCreator"
	return s.queryCodes(ctx, op, `SELECT `+codeColumns+codeFrom+`
		WHERE c.created_by = $1 ORDER BY c.created_at DESC, c.id DESC`, userID)
}

// CodesBySubscription коды, выпущенные по подписке.
func (s *Storage) CodesBySubscription(ctx context.Context, subscriptionID int64) ([]models.AccessCode, error) {
	const op = "storage.CodesBySubscription"
	return s.queryCodes(ctx, op, `SELECT `+codeColumns+codeFrom+`
		WHERE c.subscription_id = $1 ORDER BY c.created_at DESC, c.id DESC`, subscriptionID)
}

// DeactivateCode отключает код владельца. Чужой или несуществующий код дает ErrNotFound.
func (s *Storage) DeactivateCode(ctx context.Context, codeID, ownerID int64) (*models.AccessCode, error) {
	const op = "storage.DeactivateCode"
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`UPDATE access_codes SET is_active = FALSE WHERE id = $1 AND created_by = $2 RETURNING id`,
		codeID, ownerID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	c, err := scanCode(s.DB.QueryRowContext(ctx, `SELECT `+codeColumns+codeFrom+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return c, nil
}
