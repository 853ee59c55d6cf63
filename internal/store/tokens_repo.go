package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobuk/opscal/internal/models"
)

// TokensRepo stores MAYDAY and rebook tokens.
type TokensRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewTokensRepo(db *sql.DB) *TokensRepo {
	return &TokensRepo{db: db, now: time.Now}
}

func (r *TokensRepo) InsertMayday(ctx context.Context, t *models.MaydayToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO mayday_tokens
		(id, event_id, kind, confirmed, confirmed_at, applied, applied_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, string(t.Kind), t.Confirmed, nullTime(t.ConfirmedAt),
		t.Applied, nullTime(t.AppliedAt), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert mayday token for event %s: %w", t.EventID, err)
	}
	return nil
}

const maydayColumns = `id, event_id, kind, confirmed, confirmed_at, applied, applied_at, created_at`

func scanMayday(row rowScanner) (*models.MaydayToken, error) {
	var (
		t                      models.MaydayToken
		confirmedAt, appliedAt sql.NullString
		created                string
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.Kind, &t.Confirmed, &confirmedAt, &t.Applied, &appliedAt, &created); err != nil {
		return nil, err
	}
	var err error
	if t.ConfirmedAt, err = parseNullTime(confirmedAt); err != nil {
		return nil, err
	}
	if t.AppliedAt, err = parseNullTime(appliedAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokensRepo) GetMayday(ctx context.Context, id string) (*models.MaydayToken, error) {
	t, err := scanMayday(r.db.QueryRowContext(ctx, "SELECT "+maydayColumns+" FROM mayday_tokens WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mayday token %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get mayday token %s: %w", id, err)
	}
	return t, nil
}

// LatestMayday returns the newest token for the event, or nil.
func (r *TokensRepo) LatestMayday(ctx context.Context, eventID string) (*models.MaydayToken, error) {
	t, err := scanMayday(r.db.QueryRowContext(ctx, "SELECT "+maydayColumns+
		" FROM mayday_tokens WHERE event_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest mayday token for %s: %w", eventID, err)
	}
	return t, nil
}

func (r *TokensRepo) MarkMaydayConfirmed(ctx context.Context, id string, applied bool) error {
	now := formatTime(r.now())
	query := "UPDATE mayday_tokens SET confirmed = 1, confirmed_at = ?"
	args := []any{now}
	if applied {
		query += ", applied = 1, applied_at = ?"
		args = append(args, now)
	}
	query += " WHERE id = ?"
	args = append(args, id)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("confirm mayday token %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mayday token %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *TokensRepo) InsertRebook(ctx context.Context, t *models.RebookToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO rebook_tokens (id, event_id, used, used_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.Used, nullTime(t.UsedAt), formatTime(t.ExpiresAt), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert rebook token for event %s: %w", t.EventID, err)
	}
	return nil
}

const rebookColumns = `id, event_id, used, used_at, expires_at, created_at`

func scanRebook(row rowScanner) (*models.RebookToken, error) {
	var (
		t                models.RebookToken
		usedAt           sql.NullString
		expires, created string
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.Used, &usedAt, &expires, &created); err != nil {
		return nil, err
	}
	var err error
	if t.UsedAt, err = parseNullTime(usedAt); err != nil {
		return nil, err
	}
	if t.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokensRepo) GetRebook(ctx context.Context, id string) (*models.RebookToken, error) {
	t, err := scanRebook(r.db.QueryRowContext(ctx, "SELECT "+rebookColumns+" FROM rebook_tokens WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rebook token %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rebook token %s: %w", id, err)
	}
	return t, nil
}

// LatestRebook returns the newest rebook token for the event, or nil.
func (r *TokensRepo) LatestRebook(ctx context.Context, eventID string) (*models.RebookToken, error) {
	t, err := scanRebook(r.db.QueryRowContext(ctx, "SELECT "+rebookColumns+
		" FROM rebook_tokens WHERE event_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1", eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest rebook token for %s: %w", eventID, err)
	}
	return t, nil
}

// MarkRebookUsed flips an unused token to used. Using a token twice returns
// ErrConflict.
func (r *TokensRepo) MarkRebookUsed(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE rebook_tokens SET used = 1, used_at = ? WHERE id = ? AND used = 0",
		formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("use rebook token %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetRebook(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("rebook token %s already used: %w", id, ErrConflict)
	}
	return nil
}
