package repository

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/flancer/internal/model"
)

type notificationRecord struct {
	ID        uint64 `db:"id"`
	EventID   string `db:"event_id"`
	UserID    uint64 `db:"user_id"`
	Type      string `db:"type"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	Metadata  string `db:"metadata"`
	IsRead    bool   `db:"is_read"`
	CreatedAt int64  `db:"created_at"`
}

// NotificationRepo stores the per-user notification feed.
type NotificationRepo struct{ DB *sqlx.DB }

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo { return &NotificationRepo{DB: db} }

// SaveNotification persists ev. Redelivered events whose id is already
// stored are ignored, so saving is idempotent.
func (r *NotificationRepo) SaveNotification(ctx context.Context, ev model.NotificationEvent) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	created := ev.CreatedAt
	if created.IsZero() {
		created = fromMillis(nowMillis())
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO notifications (event_id, user_id, type, title, message, metadata, is_read, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		ev.ID, ev.UserID, ev.Type, ev.Title, ev.Message, string(meta), false, toMillis(created))
	if err != nil && isDuplicate(err) {
		return nil
	}
	return err
}

// ListByUser returns the newest notifications of userID first.
func (r *NotificationRepo) ListByUser(ctx context.Context, userID uint64, unreadOnly bool, limit, offset int) ([]model.Notification, error) {
	query := "SELECT id, event_id, user_id, type, title, message, metadata, is_read, created_at FROM notifications WHERE user_id=?"
	args := []any{userID}
	if unreadOnly {
		query += " AND is_read=?"
		args = append(args, false)
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var recs []notificationRecord
	if err := r.DB.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}
	out := make([]model.Notification, 0, len(recs))
	for _, rec := range recs {
		n := model.Notification{
			ID:        rec.ID,
			EventID:   rec.EventID,
			UserID:    rec.UserID,
			Type:      rec.Type,
			Title:     rec.Title,
			Message:   rec.Message,
			IsRead:    rec.IsRead,
			CreatedAt: fromMillis(rec.CreatedAt),
		}
		if rec.Metadata != "" {
			_ = json.Unmarshal([]byte(rec.Metadata), &n.Metadata)
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flags one notification of userID as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE notifications SET is_read=? WHERE id=? AND user_id=?", true, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) CountUnread(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n,
		"SELECT COUNT(1) FROM notifications WHERE user_id=? AND is_read=?", userID, false)
	return n, err
}
