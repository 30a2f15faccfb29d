package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/magabrotheeeer/vortextv/internal/models"
	"github.com/magabrotheeeer/vortextv/internal/storage"
)

// featuresSep разделитель списка возможностей тарифа в колонке features.
const featuresSep = ";"

const planColumns = `id, name, price, duration_months, max_access_codes, description, features, created_at`

func scanPlan(row rowScanner) (*models.Plan, error) {
	var (
		p        models.Plan
		features string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.DurationMonths, &p.MaxAccessCodes,
		&p.Description, &features, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Features = splitFeatures(features)
	return &p, nil
}

func splitFeatures(s string) []string {
	out := []string{}
	for _, f := range strings.Split(s, featuresSep) {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ListPlans все тарифы по возрастанию цены.
func (s *Storage) ListPlans(ctx context.Context) ([]models.Plan, error) {
	const op = "storage.ListPlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY price, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
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

// PlanByID тариф по id.
func (s *Storage) PlanByID(ctx context.Context, id int64) (*models.Plan, error) {
	const op = "storage.PlanByID"
	p, err := scanPlan(s.DB.QueryRowContext(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return p, nil
}

// CreatePlan сохраняет тариф и возвращает его id.
func (s *Storage) CreatePlan(ctx context.Context, plan models.Plan) (int64, error) {
	const op = "storage.CreatePlan"
	var id int64
	query := `INSERT INTO subscription_plans (name, price, duration_months, max_access_codes, description, features)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	err := s.DB.QueryRowContext(ctx, query, plan.Name, plan.Price, plan.DurationMonths, plan.MaxAccessCodes,
		plan.Description, strings.Join(plan.Features, featuresSep)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return id, nil
}

// UpdatePlan частично обновляет тариф.
func (s *Storage) UpdatePlan(ctx context.Context, id int64, upd models.PlanUpdate) (*models.Plan, error) {
	const op = "storage.UpdatePlan"
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
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.DurationMonths != nil {
		add("duration_months", *upd.DurationMonths)
	}
	if upd.MaxAccessCodes != nil {
		add("max_access_codes", *upd.MaxAccessCodes)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.Features != nil {
		add("features", strings.Join(upd.Features, featuresSep))
	}
	if len(sets) == 0 {
		return s.PlanByID(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE subscription_plans SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), planColumns)
	p, err := scanPlan(s.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return p, nil
}

// DeletePlan удаляет тариф.
func (s *Storage) DeletePlan(ctx context.Context, id int64) error {
	const op = "storage.DeletePlan"
	res, err := s.DB.ExecContext(ctx, `DELETE FROM subscription_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// CountActiveByPlan количество действующих подписок на тариф.
func (s *Storage) CountActiveByPlan(ctx context.Context, planID int64, now time.Time) (int, error) {
	const op = "storage.CountActiveByPlan"
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1 AND is_active AND end_date > $2`,
		planID, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

const subscriptionSelect = `SELECT s.id, s.user_id, s.plan_id, s.start_date, s.end_date, s.is_active,
		       s.payment_status, s.created_at, u.username,
		       p.id, p.name, p.price, p.duration_months, p.max_access_codes, p.description, p.features, p.created_at
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		JOIN users u ON u.id = s.user_id`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub      models.Subscription
		p        models.Plan
		features string
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.StartDate, &sub.EndDate, &sub.IsActive,
		&sub.PaymentStatus, &sub.CreatedAt, &sub.Username,
		&p.ID, &p.Name, &p.Price, &p.DurationMonths, &p.MaxAccessCodes, &p.Description, &features, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Features = splitFeatures(features)
	sub.Plan = &p
	return &sub, nil
}

// ActiveSubscription последняя действующая подписка пользователя.
func (s *Storage) ActiveSubscription(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	const op = "storage.ActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := subscriptionSelect + `
		WHERE s.user_id = $1 AND s.is_active AND s.end_date > $2
		ORDER BY s.end_date DESC
		LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userID, now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return sub, nil
}

// Subscribe деактивирует прежние подписки пользователя вместе с их кодами
// и создает новую в одной транзакции.
func (s *Storage) Subscribe(ctx context.Context, sub models.Subscription) (int64, error) {
	const op = "storage.Subscribe"
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE access_codes SET is_active = FALSE
			 WHERE subscription_id IN (SELECT id FROM subscriptions WHERE user_id = $1 AND is_active)`,
			sub.UserID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET is_active = FALSE WHERE user_id = $1 AND is_active`, sub.UserID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`INSERT INTO subscriptions (user_id, plan_id, start_date, end_date, is_active, payment_status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			sub.UserID, sub.PlanID, sub.StartDate, sub.EndDate, sub.IsActive, sub.PaymentStatus, sub.CreatedAt).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return id, nil
}

// CancelSubscription деактивирует действующую подписку и все ее коды.
func (s *Storage) CancelSubscription(ctx context.Context, userID int64, now time.Time) (int64, error) {
	const op = "storage.CancelSubscription"
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE subscriptions SET is_active = FALSE
			 WHERE id = (
			     SELECT id FROM subscriptions
			     WHERE user_id = $1 AND is_active AND end_date > $2
			     ORDER BY end_date DESC
			     LIMIT 1
			 )
			 RETURNING id`, userID, now).Scan(&id)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE access_codes SET is_active = FALSE WHERE subscription_id = $1`, id)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}
	return id, nil
}

// ListSubscriptions страница всех подписок, новые первыми.
func (s *Storage) ListSubscriptions(ctx context.Context, page models.Page) ([]models.Subscription, int, error) {
	const op = "storage.ListSubscriptions"
	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	rows, err := s.DB.QueryContext(ctx, subscriptionSelect+`
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1 OFFSET $2`, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var result []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return result, total, nil
}
