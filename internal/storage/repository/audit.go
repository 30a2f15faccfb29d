package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/magabrotheeeer/vortextv/internal/models"
)

// InsertAudit добавляет запись в журнал аудита.
func (s *Storage) InsertAudit(ctx context.Context, rec models.AuditRecord) error {
	const op = "storage.InsertAudit"
	query := `INSERT INTO audit_log (user_id, action, details, ip_address, user_agent, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := s.DB.ExecContext(ctx, query,
		rec.UserID, rec.Action, rec.Details, rec.IPAddress, rec.UserAgent, rec.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListAudit страница журнала, новые записи первыми.
func (s *Storage) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, int, error) {
	const op = "storage.ListAudit"
	select {
	case <-ctx.Done():
		return nil, 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var (
		conds []string
		args  []any
	)
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("a.action = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conds = append(conds, fmt.Sprintf("a.user_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log a`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT a.id, a.user_id, COALESCE(u.username, ''), a.action, a.details,
			      a.ip_address, a.user_agent, a.created_at
			  FROM audit_log a
			  LEFT JOIN users u ON u.id = a.user_id%s
			  ORDER BY a.created_at DESC, a.id DESC
			  LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	rows, err := s.DB.QueryContext(ctx, query, append(args, filter.Page.PerPage, filter.Page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.AuditRecord
	for rows.Next() {
		var (
			r      models.AuditRecord
			userID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &userID, &r.Username, &r.Action, &r.Details,
			&r.IPAddress, &r.UserAgent, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("%s: %w", op, err)
		}
		r.UserID = nullInt(userID)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	return result, total, nil
}
