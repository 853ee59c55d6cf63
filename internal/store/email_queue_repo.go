package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobuk/opscal/internal/models"
)

// EmailQueueRepo is the notification outbox. The engine only appends; the
// dispatcher drains it.
type EmailQueueRepo struct {
	db *sql.DB
}

func NewEmailQueueRepo(db *sql.DB) *EmailQueueRepo {
	return &EmailQueueRepo{db: db}
}

func (r *EmailQueueRepo) Enqueue(ctx context.Context, item *models.EmailQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.Status = models.EmailPending
	item.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `INSERT INTO email_queue
		(id, type, recipient, subject, content, status, event_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, string(item.Type), item.Recipient, item.Subject, item.Content,
		string(item.Status), nullString(item.EventID), formatTime(item.CreatedAt))
	if err != nil {
		return fmt.Errorf("enqueue %s email to %s: %w", item.Type, item.Recipient, err)
	}
	return nil
}

// Pending returns the oldest pending items, at most limit of them.
func (r *EmailQueueRepo) Pending(ctx context.Context, limit int) ([]*models.EmailQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, `WHERE status = ? ORDER BY created_at, rowid LIMIT ?`, string(models.EmailPending), limit)
}

// ForEvent returns every queued item correlated with the event.
func (r *EmailQueueRepo) ForEvent(ctx context.Context, eventID string) ([]*models.EmailQueueItem, error) {
	return r.list(ctx, `WHERE event_id = ? ORDER BY created_at, rowid`, eventID)
}

func (r *EmailQueueRepo) list(ctx context.Context, clause string, args ...any) ([]*models.EmailQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, type, recipient, subject, content, status, event_id,
		last_error, created_at, sent_at FROM email_queue `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query email queue: %w", err)
	}
	defer rows.Close()

	var items []*models.EmailQueueItem
	for rows.Next() {
		var (
			it              models.EmailQueueItem
			eventID, sentAt sql.NullString
			created         string
		)
		if err := rows.Scan(&it.ID, &it.Type, &it.Recipient, &it.Subject, &it.Content, &it.Status,
			&eventID, &it.LastError, &created, &sentAt); err != nil {
			return nil, fmt.Errorf("scan email queue row: %w", err)
		}
		it.EventID = stringPtr(eventID)
		if it.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if it.SentAt, err = parseNullTime(sentAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *EmailQueueRepo) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_queue SET status = ?, sent_at = ?, last_error = '' WHERE id = ?`,
		string(models.EmailSent), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("mark email %s sent: %w", id, err)
	}
	return nil
}

func (r *EmailQueueRepo) MarkFailed(ctx context.Context, id string, cause error) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_queue SET status = ?, last_error = ? WHERE id = ?`,
		string(models.EmailFailed), cause.Error(), id)
	if err != nil {
		return fmt.Errorf("mark email %s failed: %w", id, err)
	}
	return nil
}
