package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/store"
)

// SyncResult summarises one reconciliation pass.
type SyncResult struct {
	Success  bool     `json:"success"`
	Imported int      `json:"imported"`
	Exported int      `json:"exported"`
	Updated  int      `json:"updated"`
	Errors   []string `json:"errors"`
}

// SyncService reconciles the local store with the external calendar.
type SyncService struct {
	deps     Deps
	settings Settings
	export   exporter
	lg       *log.Logger
	now      func() time.Time
}

func NewSyncService(deps Deps, settings Settings) *SyncService {
	settings = settings.withDefaults()
	return &SyncService{
		deps:     deps,
		settings: settings,
		export:   newExporter(settings),
		lg:       deps.logger(),
		now:      deps.clock(),
	}
}

type outcome int

const (
	unchanged outcome = iota
	imported
	exported
	updated
)

func (r *SyncResult) count(o outcome) {
	switch o {
	case imported:
		r.Imported++
	case exported:
		r.Exported++
	case updated:
		r.Updated++
	}
}

// FullSync pulls remote changes in the sync window, then pushes every local
// record the remote has not seen yet. Items fail independently.
func (s *SyncService) FullSync(ctx context.Context) SyncResult {
	res := SyncResult{Errors: []string{}}
	now := s.now()
	from := now.AddDate(0, 0, -s.settings.SyncPastDays)
	to := now.AddDate(0, 0, s.settings.SyncFutureDays)

	s.lg.Printf("📥 Fetching remote events from %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	remote, err := s.deps.Calendar.List(ctx, from, to, s.settings.SyncLimit)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list remote events: %v", err))
	}
	for _, re := range remote {
		o, err := s.pull(ctx, re)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("remote event %s: %v", re.RemoteID, err))
			continue
		}
		res.count(o)
	}

	local, err := s.deps.Events.List(ctx, store.EventFilter{Unsynced: true, Limit: s.settings.SyncLimit})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("list unsynced events: %v", err))
	}
	for _, ev := range local {
		o, err := s.push(ctx, ev)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %s: %v", ev.ID, err))
			s.markError(ctx, ev)
			continue
		}
		res.count(o)
	}

	res.Success = len(res.Errors) == 0
	s.lg.Printf("✅ Sync finished: %d imported, %d exported, %d updated, %d errors",
		res.Imported, res.Exported, res.Updated, len(res.Errors))
	return res
}

// pull applies one remote event to the local store.
func (s *SyncService) pull(ctx context.Context, re calendar.RemoteEvent) (outcome, error) {
	local, err := s.deps.Events.FindByRemoteID(ctx, re.RemoteID)
	if errors.Is(err, store.ErrNotFound) {
		if re.Cancelled() || !re.Start.Before(re.End) {
			return unchanged, nil
		}
		return imported, s.importRemote(ctx, re)
	}
	if err != nil {
		return unchanged, err
	}
	if local.VersionTag != nil && *local.VersionTag == re.VersionTag {
		return unchanged, nil
	}

	synced := models.SyncSynced
	rev := local.Revision
	patch := store.EventPatch{
		SyncStatus: &synced,
		VersionTag: optionalTag(re.VersionTag),
		IfRevision: &rev,
	}

	switch {
	case re.Cancelled() && local.Status == models.StatusCancelled:
		// A pending remote delete already happened on the other side.
		patch.RemoteID = models.Null[string]()
		patch.VersionTag = models.Null[string]()
	case re.Cancelled():
		cancelled := models.StatusCancelled
		patch.Status = &cancelled
		patch.CancelledAt = models.Some(s.now())
		patch.CancellationReason = models.Some(string(models.ReasonOther))
		patch.CancellationNote = models.Some("cancelled in the external calendar")
	case local.Status == models.StatusCancelled:
		// The remote copy outlived a failed delete and was edited. The local
		// cancellation stands; the push step deletes the copy again.
		pending := models.SyncPending
		patch.SyncStatus = &pending
		if err := s.deps.Events.Update(ctx, local.ID, patch); err != nil {
			return unchanged, err
		}
		s.lg.Printf("❗️ Event %s is cancelled but remote %s changed, deleting it again", local.ID, re.RemoteID)
		return unchanged, nil
	default:
		start, end := re.Start, re.End
		switch d := local.Details.(type) {
		case models.FiAssignment:
			// The remote slot is a placeholder; only its date is meaningful.
			start, end = s.export.moveToDay(local.StartTime, local.EndTime, re.Start)
		case models.Blocker:
			if title := strings.TrimSpace(re.Summary); title != "" {
				d.Title = title
			}
			d.Notes = re.Description
			patch.Details = d
		}
		patch.StartTime, patch.EndTime = &start, &end
		if status := models.EventStatus(re.Status); status == models.StatusTentative || status == models.StatusConfirmed {
			patch.Status = &status
		}
	}

	if err := s.deps.Events.Update(ctx, local.ID, patch); err != nil {
		return unchanged, err
	}
	s.lg.Printf("🔄 Updated event %s from remote %s", local.ID, re.RemoteID)
	return updated, nil
}

func (s *SyncService) importRemote(ctx context.Context, re calendar.RemoteEvent) error {
	title := strings.TrimSpace(re.Summary)
	if title == "" {
		title = "(busy)"
	}
	status := models.StatusConfirmed
	if re.Status == string(models.StatusTentative) {
		status = models.StatusTentative
	}
	remoteID := re.RemoteID
	ev := &models.CalendarEvent{
		ID:         uuid.NewString(),
		RemoteID:   &remoteID,
		Type:       models.EventTypeBlocker,
		StartTime:  re.Start,
		EndTime:    re.End,
		Status:     status,
		SyncStatus: models.SyncSynced,
		Details:    models.Blocker{Title: title, Notes: re.Description},
	}
	if re.VersionTag != "" {
		tag := re.VersionTag
		ev.VersionTag = &tag
	}
	if err := s.deps.Events.Insert(ctx, ev); err != nil {
		return err
	}
	s.lg.Printf("📥 Imported remote event %s as blocker %q", re.RemoteID, title)
	return nil
}

// push exports one local record.
func (s *SyncService) push(ctx context.Context, ev *models.CalendarEvent) (outcome, error) {
	synced := models.SyncSynced
	rev := ev.Revision

	if ev.Status == models.StatusCancelled {
		patch := store.EventPatch{SyncStatus: &synced, IfRevision: &rev}
		o := unchanged
		if ev.HasRemote() {
			if err := s.deps.Calendar.Delete(ctx, *ev.RemoteID); err != nil {
				return unchanged, err
			}
			patch.RemoteID = models.Null[string]()
			patch.VersionTag = models.Null[string]()
			o = exported
		}
		return o, s.deps.Events.Update(ctx, ev.ID, patch)
	}

	remoteEvent := s.export.remoteEvent(ev)
	if ev.HasRemote() {
		tag, err := s.deps.Calendar.Update(ctx, *ev.RemoteID, remoteEvent)
		if err == nil {
			return exported, s.deps.Events.Update(ctx, ev.ID, store.EventPatch{
				SyncStatus: &synced,
				VersionTag: optionalTag(tag),
				IfRevision: &rev,
			})
		}
		if !errors.Is(err, calendar.ErrRemoteNotFound) {
			return unchanged, err
		}
		s.lg.Printf("❗️ Remote copy of event %s is gone, creating it again", ev.ID)
	}

	ref, err := s.deps.Calendar.Create(ctx, remoteEvent)
	if err != nil {
		return unchanged, err
	}
	err = s.deps.Events.Update(ctx, ev.ID, store.EventPatch{
		SyncStatus: &synced,
		RemoteID:   models.Some(ref.RemoteID),
		VersionTag: optionalTag(ref.VersionTag),
		IfRevision: &rev,
	})
	if err != nil {
		if delErr := s.deps.Calendar.Delete(ctx, ref.RemoteID); delErr != nil {
			s.lg.Printf("❗️ Failed to remove orphaned remote event %s: %v", ref.RemoteID, delErr)
		}
		return unchanged, err
	}
	s.lg.Printf("➕ Exported event %s as %s", ev.ID, ref.RemoteID)
	return exported, nil
}

func (s *SyncService) markError(ctx context.Context, ev *models.CalendarEvent) {
	if ev.SyncStatus == models.SyncError {
		return
	}
	status := models.SyncError
	if err := s.deps.Events.Update(ctx, ev.ID, store.EventPatch{SyncStatus: &status}); err != nil {
		s.lg.Printf("❗️ Failed to flag event %s: %v", ev.ID, err)
	}
}

// UnlinkResult summarises an Unlink pass.
type UnlinkResult struct {
	Removed int      `json:"removed"`
	Errors  []string `json:"errors"`
}

// Unlink deletes every exported remote copy and detaches the local records.
// Live records become pending so a later sync exports them again.
func (s *SyncService) Unlink(ctx context.Context) (UnlinkResult, error) {
	var res UnlinkResult
	linked, err := s.deps.Events.List(ctx, store.EventFilter{Linked: true, Limit: store.MaxListLimit})
	if err != nil {
		return res, err
	}
	for _, ev := range linked {
		if err := s.deps.Calendar.Delete(ctx, *ev.RemoteID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %s: %v", ev.ID, err))
			continue
		}
		status := models.SyncPending
		if ev.Status == models.StatusCancelled {
			status = models.SyncSynced
		}
		err := s.deps.Events.Update(ctx, ev.ID, store.EventPatch{
			SyncStatus: &status,
			RemoteID:   models.Null[string](),
			VersionTag: models.Null[string](),
		})
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("event %s: %v", ev.ID, err))
			continue
		}
		res.Removed++
		s.lg.Printf("🗑 Removed remote copy %s of event %s", *ev.RemoteID, ev.ID)
	}
	return res, nil
}
