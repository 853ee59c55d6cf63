package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/store"
)

func strp(s string) *string { return &s }

func TestCreateThenGet(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "ada@example.com")

	got := env.get(t, ev.ID)
	if !got.StartTime.Before(got.EndTime) {
		t.Errorf("start %v not before end %v", got.StartTime, got.EndTime)
	}
	b, ok := got.Details.(models.Booking)
	if !ok || b.FirstName != "Ada" || b.LastName != "Test" {
		t.Errorf("details = %#v", got.Details)
	}
	if got.SyncStatus != models.SyncSynced || got.RemoteID == nil || got.VersionTag == nil {
		t.Errorf("not linked: %+v", got)
	}
	remote := env.cal.events[*got.RemoteID]
	if remote.Summary != "Booking: Ada Test" || !remote.Start.Equal(at(10, 10, 0)) {
		t.Errorf("remote = %+v", remote)
	}
}

func TestCreateValidationMakesNoRemoteCall(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name  string
		in    models.CreateEventInput
		field string
	}{
		{"fi without instructor", models.CreateEventInput{StartTime: at(10, 8, 0), EndTime: at(10, 16, 0),
			Details: models.FiAssignment{}}, "instructor_name"},
		{"blocker without title", models.CreateEventInput{StartTime: at(10, 8, 0), EndTime: at(10, 9, 0),
			Details: models.Blocker{}}, "title"},
		{"booking without last name", models.CreateEventInput{StartTime: at(10, 8, 0), EndTime: at(10, 9, 0),
			Details: models.Booking{FirstName: "A"}}, "last_name"},
		{"end before start", models.CreateEventInput{StartTime: at(10, 9, 0), EndTime: at(10, 8, 0),
			Details: models.Blocker{Title: "x"}}, "end_time"},
		{"booking over two days", models.CreateEventInput{StartTime: at(10, 22, 0), EndTime: at(11, 1, 0),
			Details: models.Booking{FirstName: "A", LastName: "B"}}, "end_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Create(context.Background(), tt.in)
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
	if len(env.cal.calls) != 0 {
		t.Errorf("remote calls made: %v", env.cal.calls)
	}
}

func TestCreateRemoteFailureLeavesNoRecord(t *testing.T) {
	env := newTestEnv(t)
	env.cal.failCreate["Booking: Ada Test"] = calendar.ErrRemoteUnavailable

	_, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(10, 10, 0), EndTime: at(10, 11, 0),
		Details: models.Booking{FirstName: "Ada", LastName: "Test"},
	})
	if !errors.Is(err, calendar.ErrRemoteUnavailable) {
		t.Fatalf("err = %v", err)
	}
	all, _ := env.events.List(context.Background(), store.EventFilter{})
	if len(all) != 0 {
		t.Errorf("orphan records: %d", len(all))
	}
}

func TestCreatePersistFailureDeletesRemoteCopy(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Events = failingInsertStore{env.events}
	env.rebuild()

	_, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(10, 10, 0), EndTime: at(10, 11, 0),
		Details: models.Blocker{Title: "Maintenance"},
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want the persist error", err)
	}
	if !env.cal.called("delete:r1") {
		t.Errorf("no compensating delete, calls = %v", env.cal.calls)
	}
	if len(env.cal.events) != 0 {
		t.Errorf("remote copy left behind")
	}
}

func TestCreatePersistFailureReturnsErrorEvenIfRollbackFails(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Events = failingInsertStore{env.events}
	env.cal.failDelete["r1"] = calendar.ErrRemoteUnavailable
	env.rebuild()

	_, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(10, 10, 0), EndTime: at(10, 11, 0),
		Details: models.Blocker{Title: "Maintenance"},
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want the persist error", err)
	}
}

func TestCreateFiAssignmentExportsPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(12, 6, 30), EndTime: at(12, 15, 0),
		Details: models.FiAssignment{InstructorName: "Grace"},
	})
	if err != nil {
		t.Fatal(err)
	}
	remote := env.cal.events[*ev.RemoteID]
	if !remote.Start.Equal(at(12, 8, 0)) || !remote.End.Equal(at(12, 9, 0)) {
		t.Errorf("exported %v..%v, want the 08:00-09:00 placeholder", remote.Start, remote.End)
	}
	if remote.Summary != "FI: Grace" {
		t.Errorf("summary = %q", remote.Summary)
	}
	fi := env.get(t, ev.ID).Details.(models.FiAssignment)
	if fi.ActualWorkStart != "06:30" || fi.ActualWorkEnd != "15:00" {
		t.Errorf("work hours = %s-%s", fi.ActualWorkStart, fi.ActualWorkEnd)
	}
}

func TestCreateJudgesTimesInBusinessZone(t *testing.T) {
	env := newTestEnv(t)
	berlin := time.FixedZone("CEST", 2*60*60)
	svc := NewEventService(env.deps, Settings{Location: berlin})

	// 08:00-16:00 local, sent as UTC.
	fi, err := svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(12, 6, 0), EndTime: at(12, 14, 0),
		Details: models.FiAssignment{InstructorName: "Grace"},
	})
	if err != nil {
		t.Fatal(err)
	}
	d := env.get(t, fi.ID).Details.(models.FiAssignment)
	if d.ActualWorkStart != "08:00" || d.ActualWorkEnd != "16:00" {
		t.Errorf("work hours = %s-%s", d.ActualWorkStart, d.ActualWorkEnd)
	}

	// 23:30-00:30 local, sent as UTC.
	_, err = svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(12, 21, 30), EndTime: at(12, 22, 30),
		Details: models.Booking{FirstName: "Ada", LastName: "Test"},
	})
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "end_time" {
		t.Fatalf("expected end_time validation error, got %v", err)
	}
}

func TestCreateAllDayFiAssignment(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(12, 0, 0), EndTime: at(13, 0, 0),
		Details: models.FiAssignment{InstructorName: "Grace", AllDay: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	remote := env.cal.events[*ev.RemoteID]
	if !remote.AllDay || !remote.Start.Equal(at(12, 0, 0)) || !remote.End.Equal(at(13, 0, 0)) {
		t.Errorf("remote = %+v", remote)
	}
}

func TestCreateSendsConfirmation(t *testing.T) {
	env := newTestEnv(t)
	ev, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(10, 10, 0), EndTime: at(10, 11, 0),
		Details:          models.Booking{FirstName: "Ada", LastName: "Test", Email: "ada@example.com"},
		SendConfirmation: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	items, _ := env.queue.ForEvent(context.Background(), ev.ID)
	if len(items) != 1 || items[0].Type != models.EmailBookingConfirmation || items[0].Recipient != "ada@example.com" {
		t.Fatalf("queue = %+v", items)
	}
}

func TestCreateSucceedsWhenQueueIsMissing(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Queue = nil
	env.rebuild()
	_, err := env.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: at(10, 10, 0), EndTime: at(10, 11, 0),
		Details:          models.Booking{FirstName: "Ada", LastName: "Test", Email: "ada@example.com"},
		SendConfirmation: true,
	})
	if err != nil {
		t.Fatalf("notification failure leaked into create: %v", err)
	}
}

func TestUpdateSendsMergedRecord(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "ada@example.com")
	oldTag := *ev.VersionTag

	got, err := env.svc.Update(context.Background(), ev.ID, models.UpdateEventInput{Phone: models.Some("555-1234")})
	if err != nil {
		t.Fatal(err)
	}
	remote := env.cal.events[*ev.RemoteID]
	if remote.Summary != "Booking: Ada Test" || !strings.Contains(remote.Description, "555-1234") {
		t.Errorf("remote = %+v", remote)
	}
	if !strings.Contains(remote.Description, "ada@example.com") {
		t.Errorf("remote lost the email: %q", remote.Description)
	}
	if got.SyncStatus != models.SyncSynced || *got.VersionTag == oldTag {
		t.Errorf("sync = %s tag = %s", got.SyncStatus, *got.VersionTag)
	}
}

func TestUpdateWithoutRemoteMarksPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ev := &models.CalendarEvent{ID: "local", StartTime: at(10, 9, 0), EndTime: at(10, 10, 0),
		Status: models.StatusConfirmed, SyncStatus: models.SyncSynced, Details: models.Blocker{Title: "Old"}}
	if err := env.events.Insert(ctx, ev); err != nil {
		t.Fatal(err)
	}
	got, err := env.svc.Update(ctx, "local", models.UpdateEventInput{Title: models.Some("New")})
	if err != nil {
		t.Fatal(err)
	}
	if got.SyncStatus != models.SyncPending || got.Title() != "New" {
		t.Errorf("got %s %q", got.SyncStatus, got.Title())
	}
	if len(env.cal.calls) != 0 {
		t.Errorf("remote calls = %v", env.cal.calls)
	}
}

func TestUpdateRemoteFailureKeepsLocalChange(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "")
	env.cal.failUpdate[*ev.RemoteID] = calendar.ErrRemoteUnavailable

	got, err := env.svc.Update(context.Background(), ev.ID, models.UpdateEventInput{
		StartTime: models.Some(at(10, 12, 0)),
		EndTime:   models.Some(at(10, 13, 0)),
	})
	if err != nil {
		t.Fatalf("remote failure surfaced: %v", err)
	}
	if !got.StartTime.Equal(at(10, 12, 0)) || got.SyncStatus != models.SyncError {
		t.Errorf("got start %v sync %s", got.StartTime, got.SyncStatus)
	}
}

func TestUpdateRemoteGoneUnlinks(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "")
	delete(env.cal.events, *ev.RemoteID)

	got, err := env.svc.Update(context.Background(), ev.ID, models.UpdateEventInput{Notes: models.Some("window seat")})
	if err != nil {
		t.Fatal(err)
	}
	if got.RemoteID != nil || got.SyncStatus != models.SyncPending {
		t.Errorf("got remote %v sync %s", got.RemoteID, got.SyncStatus)
	}
}

func TestUpdateRejectsInvalidMerge(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "")
	calls := len(env.cal.calls)

	_, err := env.svc.Update(context.Background(), ev.ID, models.UpdateEventInput{EndTime: models.Some(at(10, 9, 0))})
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v", err)
	}
	if len(env.cal.calls) != calls {
		t.Errorf("remote called on invalid update")
	}
}

func TestDeleteReverseSyncsWorkRequest(t *testing.T) {
	tests := []struct {
		status      models.WorkRequestStatus
		wantStatus  models.WorkRequestStatus
		wantEventID bool
	}{
		{models.RequestApproved, models.RequestWithdrawn, false},
		{models.RequestRejected, models.RequestRejected, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			ev, err := env.svc.Create(ctx, models.CreateEventInput{
				StartTime: at(12, 8, 0), EndTime: at(12, 16, 0),
				RequestID: strp("R"),
				Details:   models.FiAssignment{InstructorName: "Grace"},
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := env.requests.Insert(ctx, &models.WorkRequest{ID: "R", Status: tt.status, EventID: &ev.ID}); err != nil {
				t.Fatal(err)
			}

			if err := env.svc.Delete(ctx, ev.ID); err != nil {
				t.Fatal(err)
			}
			wr, _ := env.requests.Get(ctx, "R")
			if wr.Status != tt.wantStatus || (wr.EventID != nil) != tt.wantEventID {
				t.Errorf("request = %+v", wr)
			}
			if _, err := env.events.Get(ctx, ev.ID); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("event still stored: %v", err)
			}
		})
	}
}

func TestDeleteSurvivesRemoteAndReverseSyncFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ev, err := env.svc.Create(ctx, models.CreateEventInput{
		StartTime: at(12, 8, 0), EndTime: at(12, 16, 0),
		RequestID: strp("missing-request"),
		Details:   models.FiAssignment{InstructorName: "Grace"},
	})
	if err != nil {
		t.Fatal(err)
	}
	env.cal.failDelete[*ev.RemoteID] = calendar.ErrRemoteUnavailable

	if err := env.svc.Delete(ctx, ev.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := env.events.Get(ctx, ev.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("event still stored: %v", err)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "ada@example.com")

	got, err := env.svc.Cancel(context.Background(), ev.ID, CancelOptions{Reason: models.ReasonStaffIllness, Notify: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled || got.CancelledAt == nil || *got.CancellationReason != "staff_illness" {
		t.Errorf("got %+v", got)
	}
	if got.RemoteID != nil || got.SyncStatus != models.SyncSynced {
		t.Errorf("remote link = %v sync = %s", got.RemoteID, got.SyncStatus)
	}
	items, _ := env.queue.ForEvent(context.Background(), ev.ID)
	if len(items) != 1 || items[0].Type != models.EmailBookingCancelled {
		t.Errorf("queue = %+v", items)
	}

	if _, err := env.svc.Cancel(context.Background(), ev.ID, CancelOptions{}); err == nil {
		t.Error("cancelling twice succeeded")
	}
}

func TestCancelRemoteFailureKeepsLinkForRetry(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "")
	env.cal.failDelete[*ev.RemoteID] = calendar.ErrRemoteUnavailable

	got, err := env.svc.Cancel(context.Background(), ev.ID, CancelOptions{Reason: models.ReasonTechnicalIssue})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled || got.RemoteID == nil || got.SyncStatus != models.SyncPending {
		t.Errorf("got status %s remote %v sync %s", got.Status, got.RemoteID, got.SyncStatus)
	}
}

func TestListWithStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ev := env.createBooking(t, "Ada", at(10, 10, 0), at(10, 11, 0), "ada@example.com")
	res := env.mayday.CancelEventsWithNotification(ctx, CancelRequest{
		EventIDs: []string{ev.ID}, SendNotifications: true, OfferRebooking: true,
	})
	if !res.Success {
		t.Fatal(res.Error)
	}

	views, err := env.svc.ListWithStatus(ctx, store.EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].DisplayStatus != models.DisplayAwaitingRebooking {
		t.Fatalf("views = %+v", views)
	}
}

func TestPurgeCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ev := env.createBooking(t, "Ada", at(1, 10, 0), at(1, 11, 0), "")
	if _, err := env.svc.Cancel(ctx, ev.ID, CancelOptions{}); err != nil {
		t.Fatal(err)
	}
	n, err := env.svc.PurgeCancelled(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("purged %d, %v", n, err)
	}
}
