package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/lifedrop-api/internal/model"
	"github.com/jwalitptl/lifedrop-api/internal/repository"
)

const notificationColumns = `
	id, user_id, type, title, message, priority, category, blood_request_id,
	hospital_id, data, action_required, action_type, action_url, delivery_push,
	delivery_email, delivery_in_app, is_read, read_at, is_sent, sent_at,
	sender_type, sender_id, expires_at, created_at, updated_at`

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.Data == nil {
		n.Data = model.JSONMap{}
	}
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES (
			:id, :user_id, :type, :title, :message, :priority, :category, :blood_request_id,
			:hospital_id, :data, :action_required, :action_type, :action_url, :delivery_push,
			:delivery_email, :delivery_in_app, :is_read, :read_at, :is_sent, :sent_at,
			:sender_type, :sender_id, :expires_at, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return mapError("notification", fmt.Errorf("failed to create notification: %w", err))
	}
	return nil
}

func (r *notificationRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_sent = TRUE, sent_at = $1, updated_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return rowsAffected(res, "notification")
}

func (r *notificationRepository) List(ctx context.Context, f model.NotificationFilter) ([]*model.Notification, int, error) {
	w := &where{}
	w.add("user_id = ?", f.UserID)
	if f.UnreadOnly {
		w.add("is_read = FALSE")
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.ActiveAt != nil {
		w.add("(expires_at IS NULL OR expires_at > ?)", *f.ActiveAt)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(`SELECT COUNT(*) FROM notifications`+w.String()), w.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	p := f.Pagination.Normalize()
	query := `SELECT ` + notificationColumns + ` FROM notifications` + w.String() +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args := append(w.args, p.PageSize, p.Offset())

	var notifications []*model.Notification
	if err := r.db.SelectContext(ctx, &notifications, r.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead is scoped to the owner so one user cannot mark another's
// notification. Marking an already read notification is not an error.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $1), updated_at = $1
		WHERE id = $2 AND user_id = $3`, at, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return rowsAffected(res, "notification")
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = $1, updated_at = $1
		WHERE user_id = $2 AND is_read = FALSE`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *notificationRepository) Stats(ctx context.Context, userID uuid.UUID, at time.Time) (*model.NotificationStats, error) {
	var rows []struct {
		Category model.Category `db:"category"`
		Priority model.Priority `db:"priority"`
		Total    int            `db:"total"`
		Unread   int            `db:"unread"`
	}
	query := `
		SELECT category, priority, COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT is_read) AS unread
		FROM notifications
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		GROUP BY category, priority`
	if err := r.db.SelectContext(ctx, &rows, query, userID, at); err != nil {
		return nil, fmt.Errorf("failed to load notification stats: %w", err)
	}

	stats := &model.NotificationStats{
		ByCategory: make(map[model.Category]int),
		ByPriority: make(map[model.Priority]int),
	}
	for _, row := range rows {
		stats.Total += row.Total
		stats.UnreadCount += row.Unread
		stats.ByCategory[row.Category] += row.Total
		stats.ByPriority[row.Priority] += row.Total
	}
	return stats, nil
}

// DeleteExpired works in batches so a large backlog never holds one long
// delete.
func (r *notificationRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM notifications
		WHERE id IN (
			SELECT id FROM notifications
			WHERE expires_at IS NOT NULL AND expires_at <= $1
			ORDER BY expires_at
			LIMIT $2
		)`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired notifications: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
