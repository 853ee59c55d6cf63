package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/store"
)

// EventService creates, updates, cancels and deletes single events, keeping
// the local store and the external calendar consistent.
type EventService struct {
	deps     Deps
	settings Settings
	export   exporter
	effects  SideEffects
	lg       *log.Logger
	now      func() time.Time
}

func NewEventService(deps Deps, settings Settings) *EventService {
	settings = settings.withDefaults()
	lg := deps.logger()
	return &EventService{
		deps:     deps,
		settings: settings,
		export:   newExporter(settings),
		effects:  NewSideEffects(lg),
		lg:       lg,
		now:      deps.clock(),
	}
}

// Create validates the input, creates the remote copy and persists the
// record. If persisting fails the remote copy is deleted again.
func (s *EventService) Create(ctx context.Context, in models.CreateEventInput) (*models.CalendarEvent, error) {
	if err := in.Validate(s.settings.Location); err != nil {
		return nil, err
	}

	ev := &models.CalendarEvent{
		ID:        uuid.NewString(),
		Type:      in.Details.EventType(),
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    in.Status,
		Details:   in.Details,
		RequestID: in.RequestID,
	}

	ref, err := s.deps.Calendar.Create(ctx, s.export.remoteEvent(ev))
	if err != nil {
		return nil, fmt.Errorf("create remote event for %q: %w", ev.Title(), err)
	}
	ev.RemoteID = &ref.RemoteID
	if ref.VersionTag != "" {
		ev.VersionTag = &ref.VersionTag
	}
	ev.SyncStatus = models.SyncSynced

	if err := s.deps.Events.Insert(ctx, ev); err != nil {
		s.effects.Run("compensating delete of remote event "+ref.RemoteID, func() error {
			return s.deps.Calendar.Delete(ctx, ref.RemoteID)
		})
		return nil, fmt.Errorf("persist event %q: %w", ev.Title(), err)
	}
	s.lg.Printf("➕ Created %s event %s: %s", ev.Type, ev.ID, ev.Title())

	if in.SendConfirmation && ev.CustomerEmail() != "" {
		s.effects.Run("booking confirmation for "+ev.ID, func() error {
			return s.enqueue(ctx, ev, models.EmailBookingConfirmation, notify.Data{})
		})
	}
	return ev, nil
}

// Update merges in over the stored record. The remote copy always receives
// the fully merged record; remote failures leave the local write in place.
func (s *EventService) Update(ctx context.Context, id string, in models.UpdateEventInput) (*models.CalendarEvent, error) {
	ev, err := s.deps.Events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := in.Apply(*ev, s.settings.Location)
	if err != nil {
		return nil, err
	}
	if merged.Status == models.StatusCancelled && ev.Status != models.StatusCancelled {
		return nil, &models.ValidationError{Field: "status", Message: "use the cancel operation to cancel an event"}
	}

	patch := store.EventPatch{
		StartTime: &merged.StartTime,
		EndTime:   &merged.EndTime,
		Status:    &merged.Status,
		Details:   merged.Details,
		RequestID: models.Optional[string]{Set: true, Value: merged.RequestID},
	}

	syncStatus := models.SyncPending
	if ev.HasRemote() {
		tag, err := s.deps.Calendar.Update(ctx, *ev.RemoteID, s.export.remoteEvent(&merged))
		switch {
		case err == nil:
			syncStatus = models.SyncSynced
			patch.VersionTag = optionalTag(tag)
		case errors.Is(err, calendar.ErrRemoteNotFound):
			s.lg.Printf("❗️ Remote copy of event %s is gone, it will be exported again: %v", id, err)
			patch.RemoteID = models.Null[string]()
			patch.VersionTag = models.Null[string]()
		default:
			s.lg.Printf("❗️ Failed to update remote copy of event %s: %v", id, err)
			syncStatus = models.SyncError
		}
	}
	patch.SyncStatus = &syncStatus

	if err := s.deps.Events.Update(ctx, id, patch); err != nil {
		return nil, err
	}
	return s.deps.Events.Get(ctx, id)
}

// Delete removes the remote copy (best-effort) and the local record. A
// generated FI assignment withdraws its approved work request.
func (s *EventService) Delete(ctx context.Context, id string) error {
	ev, err := s.deps.Events.Get(ctx, id)
	if err != nil {
		return err
	}
	if ev.HasRemote() {
		if err := s.deps.Calendar.Delete(ctx, *ev.RemoteID); err != nil {
			s.lg.Printf("❗️ Failed to delete remote copy %s of event %s: %v", *ev.RemoteID, id, err)
		}
	}
	if err := s.deps.Events.Delete(ctx, id); err != nil {
		return err
	}
	s.lg.Printf("🗑 Deleted %s event %s: %s", ev.Type, ev.ID, ev.Title())

	if ev.Type == models.EventTypeFiAssignment && ev.RequestID != nil && s.deps.Requests != nil {
		s.effects.Run("withdraw work request "+*ev.RequestID, func() error {
			return s.withdrawRequest(ctx, *ev.RequestID)
		})
	}
	return nil
}

func (s *EventService) withdrawRequest(ctx context.Context, requestID string) error {
	wr, err := s.deps.Requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if wr.Status != models.RequestApproved {
		return nil
	}
	withdrawn := models.RequestWithdrawn
	if err := s.deps.Requests.Update(ctx, requestID, store.WorkRequestPatch{
		Status:  &withdrawn,
		EventID: models.Null[string](),
	}); err != nil {
		return err
	}
	s.lg.Printf("↩️ Work request %s withdrawn", requestID)
	return nil
}

// CancelOptions controls the single-event cancellation.
type CancelOptions struct {
	Reason models.CancellationReason
	Note   string
	// Notify sends the standard cancellation notice.
	Notify bool
	// IfRevision makes the status change conditional on the stored revision.
	IfRevision *int64
}

// Cancel marks the event cancelled, records why and removes the remote copy.
// When the remote delete fails the link is kept and the record stays pending
// so the reconciler retries it.
func (s *EventService) Cancel(ctx context.Context, id string, opts CancelOptions) (*models.CalendarEvent, error) {
	ev, err := s.deps.Events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev.Status == models.StatusCancelled {
		return nil, &models.ValidationError{Field: "status", Message: "event is already cancelled"}
	}
	if opts.Reason == "" {
		opts.Reason = models.ReasonOther
	}

	cancelled, pending := models.StatusCancelled, models.SyncPending
	patch := store.EventPatch{
		Status:             &cancelled,
		SyncStatus:         &pending,
		CancellationReason: models.Some(string(opts.Reason)),
		CancellationNote:   optionalText(opts.Note),
		CancelledAt:        models.Some(s.now()),
		PendingStart:       models.Null[time.Time](),
		PendingEnd:         models.Null[time.Time](),
		IfRevision:         opts.IfRevision,
	}
	if err := s.deps.Events.Update(ctx, id, patch); err != nil {
		return nil, err
	}

	synced := models.SyncSynced
	if !ev.HasRemote() {
		s.effects.Run("mark cancelled event "+id+" synced", func() error {
			return s.deps.Events.Update(ctx, id, store.EventPatch{SyncStatus: &synced})
		})
	} else if err := s.deps.Calendar.Delete(ctx, *ev.RemoteID); err != nil {
		s.lg.Printf("❗️ Failed to delete remote copy of cancelled event %s, will retry on sync: %v", id, err)
	} else {
		s.effects.Run("unlink cancelled event "+id, func() error {
			return s.deps.Events.Update(ctx, id, store.EventPatch{
				SyncStatus: &synced,
				RemoteID:   models.Null[string](),
				VersionTag: models.Null[string](),
			})
		})
	}
	s.lg.Printf("🚫 Cancelled %s event %s: %s", ev.Type, ev.ID, ev.Title())

	if opts.Notify && ev.CustomerEmail() != "" {
		s.effects.Run("cancellation notice for "+id, func() error {
			return s.enqueue(ctx, ev, models.EmailBookingCancelled, notify.Data{
				Reason: models.ReasonText(opts.Reason, opts.Note),
			})
		})
	}
	return s.deps.Events.Get(ctx, id)
}

// EventView is an event with its derived display status.
type EventView struct {
	*models.CalendarEvent
	DisplayStatus models.DisplayStatus
}

// ListWithStatus lists events and projects their display status.
func (s *EventService) ListWithStatus(ctx context.Context, f store.EventFilter) ([]EventView, error) {
	events, err := s.deps.Events.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		view := EventView{CalendarEvent: ev}
		if s.deps.Tokens != nil {
			mayday, err := s.deps.Tokens.LatestMayday(ctx, ev.ID)
			if err != nil {
				return nil, err
			}
			rebook, err := s.deps.Tokens.LatestRebook(ctx, ev.ID)
			if err != nil {
				return nil, err
			}
			view.DisplayStatus = DeriveDisplayStatus(ev, mayday, rebook, now, s.settings.ConfirmWindow)
		} else {
			view.DisplayStatus = DeriveDisplayStatus(ev, nil, nil, now, s.settings.ConfirmWindow)
		}
		views = append(views, view)
	}
	return views, nil
}

// PurgeCancelled deletes cancelled events that ended more than olderThan ago.
func (s *EventService) PurgeCancelled(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.deps.Events.PurgeCancelled(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.lg.Printf("🧹 Purged %d cancelled events", n)
	}
	return n, nil
}

// enqueue renders a customer message for ev and appends it to the outbox.
func (s *EventService) enqueue(ctx context.Context, ev *models.CalendarEvent, kind models.EmailType, data notify.Data) error {
	return enqueueMessage(ctx, s.deps, ev, kind, data)
}

func enqueueMessage(ctx context.Context, deps Deps, ev *models.CalendarEvent, kind models.EmailType, data notify.Data) error {
	if deps.Queue == nil || deps.Renderer == nil {
		return errors.New("notifications are not configured")
	}
	data.CustomerName = ev.CustomerName()
	data.Title = ev.Title()
	if data.Start.IsZero() {
		data.Start, data.End = ev.StartTime, ev.EndTime
	}
	subject, content, err := deps.Renderer.Render(kind, data)
	if err != nil {
		return err
	}
	eventID := ev.ID
	return deps.Queue.Enqueue(ctx, &models.EmailQueueItem{
		Type:      kind,
		Recipient: ev.CustomerEmail(),
		Subject:   subject,
		Content:   content,
		EventID:   &eventID,
	})
}

func optionalTag(tag string) models.Optional[string] {
	if tag == "" {
		return models.Null[string]()
	}
	return models.Some(tag)
}

func optionalText(v string) models.Optional[string] {
	if v == "" {
		return models.Null[string]()
	}
	return models.Some(v)
}
