package store

import (
	"context"
	"database/sql"

	"argus/internal/domain"
)

func (s Store) InsertNotification(ctx context.Context, n domain.Notification) error {
	if n.CreatedAt == "" {
		n.CreatedAt = s.stamp()
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO notifications(id,user_id,kind,mandate_id,title,read_at,created_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Kind, nullable(n.MandateID), nullable(n.Title), nullable(n.ReadAt), n.CreatedAt)
	return err
}

func (s Store) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_id,kind,mandate_id,title,read_at,created_at FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var mandateID, title, readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &mandateID, &title, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if mandateID.Valid {
			n.MandateID = mandateID.String
		}
		if title.Valid {
			n.Title = title.String
		}
		if readAt.Valid {
			n.ReadAt = readAt.String
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s Store) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND read_at IS NULL`, s.stamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
