package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"testing"
	"time"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/store"
)

// fakeCalendar is an in-memory remote calendar with a call log.
type fakeCalendar struct {
	events map[string]calendar.RemoteEvent
	calls  []string
	seq    int

	failCreate map[string]error // by summary
	failUpdate map[string]error // by remote id
	failDelete map[string]error // by remote id
	failList   error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{
		events:     map[string]calendar.RemoteEvent{},
		failCreate: map[string]error{},
		failUpdate: map[string]error{},
		failDelete: map[string]error{},
	}
}

func (f *fakeCalendar) Create(ctx context.Context, ev calendar.RemoteEvent) (calendar.Ref, error) {
	f.calls = append(f.calls, "create:"+ev.Summary)
	if err := f.failCreate[ev.Summary]; err != nil {
		return calendar.Ref{}, err
	}
	f.seq++
	ev.RemoteID = fmt.Sprintf("r%d", f.seq)
	ev.VersionTag = fmt.Sprintf("etag-%d", f.seq)
	f.events[ev.RemoteID] = ev
	return calendar.Ref{RemoteID: ev.RemoteID, VersionTag: ev.VersionTag}, nil
}

func (f *fakeCalendar) Update(ctx context.Context, remoteID string, ev calendar.RemoteEvent) (string, error) {
	f.calls = append(f.calls, "update:"+remoteID)
	if err := f.failUpdate[remoteID]; err != nil {
		return "", err
	}
	if _, ok := f.events[remoteID]; !ok {
		return "", fmt.Errorf("update %s: %w", remoteID, calendar.ErrRemoteNotFound)
	}
	f.seq++
	ev.RemoteID = remoteID
	ev.VersionTag = fmt.Sprintf("etag-%d", f.seq)
	f.events[remoteID] = ev
	return ev.VersionTag, nil
}

func (f *fakeCalendar) Delete(ctx context.Context, remoteID string) error {
	f.calls = append(f.calls, "delete:"+remoteID)
	if err := f.failDelete[remoteID]; err != nil {
		return err
	}
	delete(f.events, remoteID)
	return nil
}

func (f *fakeCalendar) List(ctx context.Context, from, to time.Time, limit int) ([]calendar.RemoteEvent, error) {
	f.calls = append(f.calls, "list")
	if f.failList != nil {
		return nil, f.failList
	}
	var out []calendar.RemoteEvent
	for _, ev := range f.events {
		if ev.End.After(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out, nil
}

// put stores an event as if someone edited the remote calendar directly.
func (f *fakeCalendar) put(ev calendar.RemoteEvent) {
	f.seq++
	if ev.RemoteID == "" {
		ev.RemoteID = fmt.Sprintf("ext%d", f.seq)
	}
	ev.VersionTag = fmt.Sprintf("etag-%d", f.seq)
	f.events[ev.RemoteID] = ev
}

func (f *fakeCalendar) called(call string) bool {
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

var testNow = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func at(day, hour, min int) time.Time {
	return time.Date(2024, 5, day, hour, min, 0, 0, time.UTC)
}

type testEnv struct {
	events   *store.EventsRepo
	requests *store.WorkRequestsRepo
	queue    *store.EmailQueueRepo
	tokens   *store.TokensRepo
	cal      *fakeCalendar
	deps     Deps
	settings Settings

	svc    *EventService
	sync   *SyncService
	mayday *MaydayService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	renderer, err := notify.NewTemplateRenderer(time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	links, err := notify.NewLinks("https://ops.example.com", "test-secret")
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		events:   store.NewEventsRepo(db),
		requests: store.NewWorkRequestsRepo(db),
		queue:    store.NewEmailQueueRepo(db),
		tokens:   store.NewTokensRepo(db),
		cal:      newFakeCalendar(),
		settings: Settings{Location: time.UTC},
	}
	env.deps = Deps{
		Events:   env.events,
		Requests: env.requests,
		Queue:    env.queue,
		Tokens:   env.tokens,
		Calendar: env.cal,
		Renderer: renderer,
		Links:    links,
		Logger:   log.New(io.Discard, "", 0),
		Now:      func() time.Time { return testNow },
	}
	env.rebuild()
	return env
}

// rebuild recreates the services after deps were swapped.
func (e *testEnv) rebuild() {
	e.svc = NewEventService(e.deps, e.settings)
	e.sync = NewSyncService(e.deps, e.settings)
	e.mayday = NewMaydayService(e.deps, e.settings, e.svc)
}

func (e *testEnv) createBooking(t *testing.T, first string, start, end time.Time, email string) *models.CalendarEvent {
	t.Helper()
	ev, err := e.svc.Create(context.Background(), models.CreateEventInput{
		StartTime: start,
		EndTime:   end,
		Details:   models.Booking{FirstName: first, LastName: "Test", Email: email},
	})
	if err != nil {
		t.Fatalf("create booking %s: %v", first, err)
	}
	return ev
}

func (e *testEnv) get(t *testing.T, id string) *models.CalendarEvent {
	t.Helper()
	ev, err := e.events.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return ev
}

// failingInsertStore fails every Insert.
type failingInsertStore struct {
	*store.EventsRepo
}

func (failingInsertStore) Insert(ctx context.Context, ev *models.CalendarEvent) error {
	return fmt.Errorf("disk full")
}

// racingStore lets another writer touch the first event right after the
// batch loaded it.
type racingStore struct {
	*store.EventsRepo
}

func (r racingStore) GetMany(ctx context.Context, ids []string) ([]*models.CalendarEvent, error) {
	events, err := r.EventsRepo.GetMany(ctx, ids)
	if err != nil || len(ids) == 0 {
		return events, err
	}
	tentative := models.StatusTentative
	if err := r.EventsRepo.Update(ctx, ids[0], store.EventPatch{Status: &tentative}); err != nil {
		return nil, err
	}
	return events, nil
}
