package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bobuk/opscal/internal/models"
)

type WorkRequestsRepo struct {
	db *sql.DB
}

func NewWorkRequestsRepo(db *sql.DB) *WorkRequestsRepo {
	return &WorkRequestsRepo{db: db}
}

type WorkRequestPatch struct {
	Status  *models.WorkRequestStatus
	EventID models.Optional[string]
}

func (r *WorkRequestsRepo) Get(ctx context.Context, id string) (*models.WorkRequest, error) {
	var (
		wr      models.WorkRequest
		eventID sql.NullString
		updated string
	)
	err := r.db.QueryRowContext(ctx, "SELECT id, status, event_id, updated_at FROM work_requests WHERE id = ?", id).
		Scan(&wr.ID, &wr.Status, &eventID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("work request %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get work request %s: %w", id, err)
	}
	wr.EventID = stringPtr(eventID)
	if wr.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("work request %s updated_at: %w", id, err)
	}
	return &wr, nil
}

// Insert is used by the request workflow (outside this engine) and tests.
func (r *WorkRequestsRepo) Insert(ctx context.Context, wr *models.WorkRequest) error {
	wr.UpdatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, "INSERT INTO work_requests (id, status, event_id, updated_at) VALUES (?, ?, ?, ?)",
		wr.ID, string(wr.Status), nullString(wr.EventID), formatTime(wr.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert work request %s: %w", wr.ID, err)
	}
	return nil
}

func (r *WorkRequestsRepo) Update(ctx context.Context, id string, patch WorkRequestPatch) error {
	query := "UPDATE work_requests SET updated_at = ?"
	args := []any{formatTime(time.Now())}
	if patch.Status != nil {
		query += ", status = ?"
		args = append(args, string(*patch.Status))
	}
	if patch.EventID.Set {
		query += ", event_id = ?"
		args = append(args, nullString(patch.EventID.Value))
	}
	query += " WHERE id = ?"
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update work request %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("work request %s: %w", id, ErrNotFound)
	}
	return nil
}
