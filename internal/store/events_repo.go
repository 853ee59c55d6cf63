package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bobuk/opscal/internal/models"
)

const (
	DefaultListLimit = 500
	MaxListLimit     = 5000
)

type EventsRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventsRepo(db *sql.DB) *EventsRepo {
	return &EventsRepo{db: db, now: time.Now}
}

// EventFilter selects events overlapping [From, To). Limit is always
// applied: zero means DefaultListLimit and values above MaxListLimit are
// clamped.
type EventFilter struct {
	From         time.Time
	To           time.Time
	Types        []models.EventType
	Statuses     []models.EventStatus
	SyncStatuses []models.SyncStatus
	// Unsynced selects records that are not synced, plus live records that
	// were never exported.
	Unsynced bool
	// Linked selects records that have a remote copy.
	Linked bool
	Limit  int
}

// EventPatch lists the columns to change. Nil pointers and unset Optionals
// are left alone; a set Optional with a nil Value writes NULL.
type EventPatch struct {
	StartTime  *time.Time
	EndTime    *time.Time
	Status     *models.EventStatus
	SyncStatus *models.SyncStatus
	Details    models.Details

	RemoteID           models.Optional[string]
	VersionTag         models.Optional[string]
	RequestID          models.Optional[string]
	CancellationReason models.Optional[string]
	CancellationNote   models.Optional[string]
	CancelledAt        models.Optional[time.Time]
	PendingStart       models.Optional[time.Time]
	PendingEnd         models.Optional[time.Time]
	RebookedAt         models.Optional[time.Time]

	// IfRevision makes the write conditional on the stored revision.
	IfRevision *int64
}

const eventColumns = `id, remote_id, version_tag, event_type, start_time, end_time, status, sync_status,
	customer_first_name, customer_last_name, customer_email, customer_phone,
	instructor_name, instructor_email, all_day, actual_work_start, actual_work_end,
	blocker_title, notes, request_id, cancellation_reason, cancellation_note, cancelled_at,
	pending_start, pending_end, rebooked_at, revision, created_at, updated_at`

type detailColumns struct {
	firstName, lastName, email, phone string
	instructorName, instructorEmail   string
	allDay                            bool
	workStart, workEnd                string
	blockerTitle, notes               string
}

func flatten(d models.Details) detailColumns {
	var c detailColumns
	switch v := d.(type) {
	case models.Booking:
		c.firstName, c.lastName, c.email, c.phone, c.notes = v.FirstName, v.LastName, v.Email, v.Phone, v.Notes
	case models.FiAssignment:
		c.instructorName, c.instructorEmail, c.allDay = v.InstructorName, v.InstructorEmail, v.AllDay
		c.workStart, c.workEnd = v.ActualWorkStart, v.ActualWorkEnd
	case models.Blocker:
		c.blockerTitle, c.notes = v.Title, v.Notes
	}
	return c
}

func (c detailColumns) details(t models.EventType) (models.Details, error) {
	switch t {
	case models.EventTypeBooking:
		return models.Booking{FirstName: c.firstName, LastName: c.lastName, Email: c.email, Phone: c.phone, Notes: c.notes}, nil
	case models.EventTypeFiAssignment:
		return models.FiAssignment{InstructorName: c.instructorName, InstructorEmail: c.instructorEmail, AllDay: c.allDay,
			ActualWorkStart: c.workStart, ActualWorkEnd: c.workEnd}, nil
	case models.EventTypeBlocker:
		return models.Blocker{Title: c.blockerTitle, Notes: c.notes}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", t)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.CalendarEvent, error) {
	var (
		ev                                           models.CalendarEvent
		remoteID, versionTag, requestID              sql.NullString
		reason, note                                 sql.NullString
		cancelledAt, pendingStart, pendingEnd, rebook sql.NullString
		start, end, created, updated                 string
		c                                            detailColumns
	)
	err := row.Scan(&ev.ID, &remoteID, &versionTag, &ev.Type, &start, &end, &ev.Status, &ev.SyncStatus,
		&c.firstName, &c.lastName, &c.email, &c.phone,
		&c.instructorName, &c.instructorEmail, &c.allDay, &c.workStart, &c.workEnd,
		&c.blockerTitle, &c.notes, &requestID, &reason, &note, &cancelledAt,
		&pendingStart, &pendingEnd, &rebook, &ev.Revision, &created, &updated)
	if err != nil {
		return nil, err
	}

	ev.RemoteID = stringPtr(remoteID)
	ev.VersionTag = stringPtr(versionTag)
	ev.RequestID = stringPtr(requestID)
	ev.CancellationReason = stringPtr(reason)
	ev.CancellationNote = stringPtr(note)

	if ev.Details, err = c.details(ev.Type); err != nil {
		return nil, err
	}
	if ev.StartTime, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("event %s start_time: %w", ev.ID, err)
	}
	if ev.EndTime, err = parseTime(end); err != nil {
		return nil, fmt.Errorf("event %s end_time: %w", ev.ID, err)
	}
	if ev.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("event %s created_at: %w", ev.ID, err)
	}
	if ev.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("event %s updated_at: %w", ev.ID, err)
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{{&ev.CancelledAt, cancelledAt}, {&ev.PendingStart, pendingStart}, {&ev.PendingEnd, pendingEnd}, {&ev.RebookedAt, rebook}} {
		if *f.dst, err = parseNullTime(f.src); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

func (r *EventsRepo) Get(ctx context.Context, id string) (*models.CalendarEvent, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return ev, nil
}

func (r *EventsRepo) FindByRemoteID(ctx context.Context, remoteID string) (*models.CalendarEvent, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE remote_id = ?", remoteID)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event with remote id %s: %w", remoteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event by remote id %s: %w", remoteID, err)
	}
	return ev, nil
}

// GetMany loads the given ids in one query. Missing ids are simply absent
// from the result.
func (r *EventsRepo) GetMany(ctx context.Context, ids []string) ([]*models.CalendarEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT " + eventColumns + " FROM events WHERE id IN (" + placeholders(len(ids)) + ") ORDER BY start_time"
	return r.query(ctx, query, args...)
}

func (r *EventsRepo) List(ctx context.Context, f EventFilter) ([]*models.CalendarEvent, error) {
	var (
		where []string
		args  []any
	)
	if !f.From.IsZero() {
		where = append(where, "end_time > ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(f.To))
	}
	if len(f.Types) > 0 {
		where = append(where, "event_type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.SyncStatuses) > 0 {
		where = append(where, "sync_status IN ("+placeholders(len(f.SyncStatuses))+")")
		for _, s := range f.SyncStatuses {
			args = append(args, string(s))
		}
	}
	if f.Unsynced {
		where = append(where, "(sync_status != ? OR (remote_id IS NULL AND status != ?))")
		args = append(args, string(models.SyncSynced), string(models.StatusCancelled))
	}
	if f.Linked {
		where = append(where, "remote_id IS NOT NULL")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time, id LIMIT ?"
	args = append(args, limit)
	return r.query(ctx, query, args...)
}

func (r *EventsRepo) query(ctx context.Context, query string, args ...any) ([]*models.CalendarEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Insert stores a new event. ID must be set by the caller; CreatedAt,
// UpdatedAt and Revision are filled in.
func (r *EventsRepo) Insert(ctx context.Context, ev *models.CalendarEvent) error {
	if ev.ID == "" {
		return fmt.Errorf("insert event: missing id")
	}
	now := r.now()
	ev.CreatedAt, ev.UpdatedAt, ev.Revision = now, now, 1
	if ev.Details != nil {
		ev.Type = ev.Details.EventType()
	}
	c := flatten(ev.Details)

	_, err := r.db.ExecContext(ctx, "INSERT INTO events ("+eventColumns+") VALUES ("+placeholders(29)+")",
		ev.ID, nullString(ev.RemoteID), nullString(ev.VersionTag), string(ev.Type),
		formatTime(ev.StartTime), formatTime(ev.EndTime), string(ev.Status), string(ev.SyncStatus),
		c.firstName, c.lastName, c.email, c.phone,
		c.instructorName, c.instructorEmail, c.allDay, c.workStart, c.workEnd,
		c.blockerTitle, c.notes, nullString(ev.RequestID), nullString(ev.CancellationReason), nullString(ev.CancellationNote),
		nullTime(ev.CancelledAt), nullTime(ev.PendingStart), nullTime(ev.PendingEnd), nullTime(ev.RebookedAt),
		ev.Revision, formatTime(ev.CreatedAt), formatTime(ev.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// Update applies patch to the event and bumps its revision.
func (r *EventsRepo) Update(ctx context.Context, id string, patch EventPatch) error {
	set := []string{"revision = revision + 1", "updated_at = ?"}
	args := []any{formatTime(r.now())}

	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if patch.StartTime != nil {
		add("start_time", formatTime(*patch.StartTime))
	}
	if patch.EndTime != nil {
		add("end_time", formatTime(*patch.EndTime))
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.SyncStatus != nil {
		add("sync_status", string(*patch.SyncStatus))
	}
	if patch.Details != nil {
		c := flatten(patch.Details)
		add("customer_first_name", c.firstName)
		add("customer_last_name", c.lastName)
		add("customer_email", c.email)
		add("customer_phone", c.phone)
		add("instructor_name", c.instructorName)
		add("instructor_email", c.instructorEmail)
		add("all_day", c.allDay)
		add("actual_work_start", c.workStart)
		add("actual_work_end", c.workEnd)
		add("blocker_title", c.blockerTitle)
		add("notes", c.notes)
	}
	for _, o := range []struct {
		col string
		v   models.Optional[string]
	}{
		{"remote_id", patch.RemoteID},
		{"version_tag", patch.VersionTag},
		{"request_id", patch.RequestID},
		{"cancellation_reason", patch.CancellationReason},
		{"cancellation_note", patch.CancellationNote},
	} {
		if o.v.Set {
			add(o.col, nullString(o.v.Value))
		}
	}
	for _, o := range []struct {
		col string
		v   models.Optional[time.Time]
	}{
		{"cancelled_at", patch.CancelledAt},
		{"pending_start", patch.PendingStart},
		{"pending_end", patch.PendingEnd},
		{"rebooked_at", patch.RebookedAt},
	} {
		if o.v.Set {
			add(o.col, nullTime(o.v.Value))
		}
	}

	query := "UPDATE events SET " + strings.Join(set, ", ") + " WHERE id = ?"
	args = append(args, id)
	if patch.IfRevision != nil {
		query += " AND revision = ?"
		args = append(args, *patch.IfRevision)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("update event %s: %w", id, ErrConflict)
	}
	return nil
}

func (r *EventsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

// PurgeCancelled removes cancelled events that ended before the cutoff,
// together with their tokens. It returns the number of events removed.
func (r *EventsRepo) PurgeCancelled(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff := formatTime(before)
	const victims = `SELECT id FROM events WHERE status = 'cancelled' AND end_time < ?`
	for _, table := range []string{"mayday_tokens", "rebook_tokens"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE event_id IN ("+victims+")", cutoff); err != nil {
			return 0, fmt.Errorf("purge %s: %w", table, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE status = 'cancelled' AND end_time < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge cancelled events: %w", err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
