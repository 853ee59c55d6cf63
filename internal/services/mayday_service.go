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

type ShiftRequest struct {
	EventIDs          []string                  `json:"event_ids"`
	ShiftMinutes      int                       `json:"shift_minutes"`
	Reason            models.CancellationReason `json:"reason"`
	ReasonNote        string                    `json:"reason_note"`
	SendNotifications bool                      `json:"send_notifications"`
	// RequireConfirmation holds the new window as a pending shift until the
	// customer confirms it. Events without a customer email move at once.
	RequireConfirmation bool `json:"require_confirmation"`
}

type ShiftResult struct {
	Success  bool         `json:"success"`
	Shifted  int          `json:"shifted"`
	Notified int          `json:"notified"`
	Error    string       `json:"error,omitempty"`
	Items    []ItemResult `json:"items"`
}

type CancelRequest struct {
	EventIDs          []string                  `json:"event_ids"`
	Reason            models.CancellationReason `json:"reason"`
	ReasonNote        string                    `json:"reason_note"`
	SendNotifications bool                      `json:"send_notifications"`
	OfferRebooking    bool                      `json:"offer_rebooking"`
}

type CancelResult struct {
	Success   bool         `json:"success"`
	Cancelled int          `json:"cancelled"`
	Notified  int          `json:"notified"`
	Error     string       `json:"error,omitempty"`
	Items     []ItemResult `json:"items"`
}

// MaydayService runs the emergency batch operations. Events are processed
// one after another and each succeeds or fails on its own.
type MaydayService struct {
	deps     Deps
	settings Settings
	events   *EventService
	export   exporter
	effects  SideEffects
	lg       *log.Logger
	now      func() time.Time
}

func NewMaydayService(deps Deps, settings Settings, events *EventService) *MaydayService {
	settings = settings.withDefaults()
	lg := deps.logger()
	return &MaydayService{
		deps:     deps,
		settings: settings,
		events:   events,
		export:   newExporter(settings),
		effects:  NewSideEffects(lg),
		lg:       lg,
		now:      deps.clock(),
	}
}

// load fetches the requested events in one query, in request order. Unknown
// ids come back as failed items.
func (s *MaydayService) load(ctx context.Context, ids []string) ([]*models.CalendarEvent, []ItemResult, error) {
	ids = uniqueIDs(ids)
	found, err := s.deps.Events.GetMany(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]*models.CalendarEvent, len(found))
	for _, ev := range found {
		byID[ev.ID] = ev
	}
	events := make([]*models.CalendarEvent, len(ids))
	var missing []ItemResult
	for i, id := range ids {
		events[i] = byID[id]
		if events[i] == nil {
			missing = append(missing, ItemResult{EventID: id, Err: fmt.Errorf("event %s: %w", id, store.ErrNotFound)})
		}
	}
	return events, missing, nil
}

// ShiftEvents moves every event by ShiftMinutes.
func (s *MaydayService) ShiftEvents(ctx context.Context, req ShiftRequest) ShiftResult {
	events, results, err := s.load(ctx, req.EventIDs)
	if err != nil {
		return ShiftResult{Error: fmt.Sprintf("load events: %v", err)}
	}
	for _, ev := range events {
		if ev != nil {
			results = append(results, s.shiftOne(ctx, ev, req))
		}
	}

	sum := fold(results)
	s.lg.Printf("🆘 Shifted %d events by %d minutes, %d customers notified", sum.Succeeded, req.ShiftMinutes, sum.Notified)
	return ShiftResult{
		Success:  sum.Failed == 0,
		Shifted:  sum.Succeeded,
		Notified: sum.Notified,
		Error:    sum.Error,
		Items:    results,
	}
}

func (s *MaydayService) shiftOne(ctx context.Context, ev *models.CalendarEvent, req ShiftRequest) ItemResult {
	res := ItemResult{EventID: ev.ID}
	if ev.Status == models.StatusCancelled {
		res.Err = &models.ValidationError{Field: "status", Message: "cancelled events cannot be shifted"}
		return res
	}

	delta := time.Duration(req.ShiftMinutes) * time.Minute
	oldStart, oldEnd := ev.StartTime, ev.EndTime
	newStart, newEnd := oldStart.Add(delta), oldEnd.Add(delta)
	wantsNotice := req.SendNotifications && ev.CustomerEmail() != ""
	deferred := wantsNotice && req.RequireConfirmation

	rev := ev.Revision
	patch := store.EventPatch{IfRevision: &rev}
	if deferred {
		patch.PendingStart = models.Some(newStart)
		patch.PendingEnd = models.Some(newEnd)
	} else {
		patch.StartTime, patch.EndTime = &newStart, &newEnd
		patch.PendingStart = models.Null[time.Time]()
		patch.PendingEnd = models.Null[time.Time]()
	}
	if err := s.deps.Events.Update(ctx, ev.ID, patch); err != nil {
		res.Err = err
		return res
	}

	if !deferred {
		moved := *ev
		moved.StartTime, moved.EndTime = newStart, newEnd
		s.pushWindow(ctx, &moved)
	}

	if wantsNotice {
		res.Notified = s.effects.Run("shift notification for "+ev.ID, func() error {
			tok := &models.MaydayToken{ID: uuid.NewString(), EventID: ev.ID, Kind: models.MaydayShift, Applied: !deferred}
			if err := s.deps.Tokens.InsertMayday(ctx, tok); err != nil {
				return err
			}
			return enqueueMessage(ctx, s.deps, ev, models.EmailMaydayShift, notify.Data{
				Start:             newStart,
				End:               newEnd,
				OldStart:          oldStart,
				OldEnd:            oldEnd,
				ShiftMinutes:      req.ShiftMinutes,
				Reason:            models.ReasonText(req.Reason, req.ReasonNote),
				ConfirmLink:       s.confirmLink(tok),
				NeedsConfirmation: deferred,
			})
		})
	}
	return res
}

// pushWindow sends the already persisted window of ev to the remote
// calendar. Failures are logged and flag the record for reconciliation.
func (s *MaydayService) pushWindow(ctx context.Context, ev *models.CalendarEvent) {
	if !ev.HasRemote() {
		return
	}
	status := models.SyncSynced
	patch := store.EventPatch{SyncStatus: &status}

	tag, err := s.deps.Calendar.Update(ctx, *ev.RemoteID, s.export.remoteEvent(ev))
	switch {
	case err == nil:
		patch.VersionTag = optionalTag(tag)
	case errors.Is(err, calendar.ErrRemoteNotFound):
		s.lg.Printf("❗️ Remote copy of event %s is gone, it will be exported again", ev.ID)
		status = models.SyncPending
		patch.RemoteID = models.Null[string]()
		patch.VersionTag = models.Null[string]()
	default:
		s.lg.Printf("❗️ Failed to move remote copy of event %s: %v", ev.ID, err)
		status = models.SyncError
	}
	s.effects.Run("record sync state of event "+ev.ID, func() error {
		return s.deps.Events.Update(ctx, ev.ID, patch)
	})
}

// CancelEventsWithNotification cancels every event and optionally notifies
// its customer, offering a rebooking link when asked to.
func (s *MaydayService) CancelEventsWithNotification(ctx context.Context, req CancelRequest) CancelResult {
	events, results, err := s.load(ctx, req.EventIDs)
	if err != nil {
		return CancelResult{Error: fmt.Sprintf("load events: %v", err)}
	}
	for _, ev := range events {
		if ev != nil {
			results = append(results, s.cancelOne(ctx, ev, req))
		}
	}

	sum := fold(results)
	s.lg.Printf("🆘 Cancelled %d events, %d customers notified", sum.Succeeded, sum.Notified)
	return CancelResult{
		Success:   sum.Failed == 0,
		Cancelled: sum.Succeeded,
		Notified:  sum.Notified,
		Error:     sum.Error,
		Items:     results,
	}
}

func (s *MaydayService) cancelOne(ctx context.Context, ev *models.CalendarEvent, req CancelRequest) ItemResult {
	res := ItemResult{EventID: ev.ID}
	rev := ev.Revision
	_, err := s.events.Cancel(ctx, ev.ID, CancelOptions{
		Reason:     req.Reason,
		Note:       req.ReasonNote,
		IfRevision: &rev,
	})
	if err != nil {
		res.Err = err
		return res
	}
	if !req.SendNotifications || ev.CustomerEmail() == "" {
		return res
	}

	res.Notified = s.effects.Run("cancel notification for "+ev.ID, func() error {
		tok := &models.MaydayToken{ID: uuid.NewString(), EventID: ev.ID, Kind: models.MaydayCancel}
		if err := s.deps.Tokens.InsertMayday(ctx, tok); err != nil {
			return err
		}
		data := notify.Data{
			Reason:      models.ReasonText(req.Reason, req.ReasonNote),
			ConfirmLink: s.confirmLink(tok),
		}
		if req.OfferRebooking {
			rb := &models.RebookToken{ID: uuid.NewString(), EventID: ev.ID, ExpiresAt: s.now().Add(s.settings.RebookValidity)}
			if err := s.deps.Tokens.InsertRebook(ctx, rb); err != nil {
				return err
			}
			data.RebookLink = s.rebookLink(rb)
		}
		return enqueueMessage(ctx, s.deps, ev, models.EmailMaydayCancel, data)
	})
	return res
}

func (s *MaydayService) confirmLink(tok *models.MaydayToken) string {
	if s.deps.Links == nil {
		return ""
	}
	link, err := s.deps.Links.ConfirmURL(tok.ID, tok.EventID, s.now().Add(s.settings.RebookValidity))
	if err != nil {
		s.lg.Printf("❗️ %v", err)
		return ""
	}
	return link
}

func (s *MaydayService) rebookLink(tok *models.RebookToken) string {
	if s.deps.Links == nil {
		return ""
	}
	link, err := s.deps.Links.RebookURL(tok.ID, tok.EventID, tok.ExpiresAt)
	if err != nil {
		s.lg.Printf("❗️ %v", err)
		return ""
	}
	return link
}

// ConfirmToken records the customer's confirmation of a MAYDAY notice and
// applies a shift that was waiting for it.
func (s *MaydayService) ConfirmToken(ctx context.Context, tokenID string) (*models.CalendarEvent, error) {
	tok, err := s.deps.Tokens.GetMayday(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	ev, err := s.deps.Events.Get(ctx, tok.EventID)
	if err != nil {
		return nil, err
	}
	if tok.Confirmed {
		return ev, nil
	}

	applyNow := tok.Kind == models.MaydayShift && !tok.Applied && ev.HasPendingShift()
	if applyNow {
		start, end := *ev.PendingStart, *ev.PendingEnd
		rev := ev.Revision
		err := s.deps.Events.Update(ctx, ev.ID, store.EventPatch{
			StartTime:    &start,
			EndTime:      &end,
			PendingStart: models.Null[time.Time](),
			PendingEnd:   models.Null[time.Time](),
			IfRevision:   &rev,
		})
		if err != nil {
			return nil, err
		}
		moved := *ev
		moved.StartTime, moved.EndTime = start, end
		s.pushWindow(ctx, &moved)
		s.lg.Printf("✅ Customer confirmed shift of event %s", ev.ID)
	}
	if err := s.deps.Tokens.MarkMaydayConfirmed(ctx, tok.ID, applyNow); err != nil {
		return nil, err
	}
	return s.deps.Events.Get(ctx, ev.ID)
}

// UseRebookToken marks a rebook token used and stamps the cancelled event as
// rebooked.
func (s *MaydayService) UseRebookToken(ctx context.Context, tokenID string) (*models.CalendarEvent, error) {
	tok, err := s.deps.Tokens.GetRebook(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !tok.Used && now.After(tok.ExpiresAt) {
		return nil, &models.ValidationError{Field: "token", Message: "rebooking link has expired"}
	}
	if err := s.deps.Tokens.MarkRebookUsed(ctx, tok.ID); err != nil {
		return nil, err
	}
	if err := s.deps.Events.Update(ctx, tok.EventID, store.EventPatch{RebookedAt: models.Some(now)}); err != nil {
		return nil, err
	}
	s.lg.Printf("🔁 Event %s rebooked by customer", tok.EventID)
	return s.deps.Events.Get(ctx, tok.EventID)
}
