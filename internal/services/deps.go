package services

import (
	"context"
	"log"
	"time"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/config"
	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/notify"
	"github.com/bobuk/opscal/internal/store"
)

type EventStore interface {
	Get(ctx context.Context, id string) (*models.CalendarEvent, error)
	GetMany(ctx context.Context, ids []string) ([]*models.CalendarEvent, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*models.CalendarEvent, error)
	List(ctx context.Context, f store.EventFilter) ([]*models.CalendarEvent, error)
	Insert(ctx context.Context, ev *models.CalendarEvent) error
	Update(ctx context.Context, id string, patch store.EventPatch) error
	Delete(ctx context.Context, id string) error
	PurgeCancelled(ctx context.Context, before time.Time) (int64, error)
}

type WorkRequestStore interface {
	Get(ctx context.Context, id string) (*models.WorkRequest, error)
	Update(ctx context.Context, id string, patch store.WorkRequestPatch) error
}

// NotificationQueue is the append-only outbox.
type NotificationQueue interface {
	Enqueue(ctx context.Context, item *models.EmailQueueItem) error
}

type TokenStore interface {
	InsertMayday(ctx context.Context, t *models.MaydayToken) error
	GetMayday(ctx context.Context, id string) (*models.MaydayToken, error)
	LatestMayday(ctx context.Context, eventID string) (*models.MaydayToken, error)
	MarkMaydayConfirmed(ctx context.Context, id string, applied bool) error
	InsertRebook(ctx context.Context, t *models.RebookToken) error
	GetRebook(ctx context.Context, id string) (*models.RebookToken, error)
	LatestRebook(ctx context.Context, eventID string) (*models.RebookToken, error)
	MarkRebookUsed(ctx context.Context, id string) error
}

// Deps are the collaborators shared by every service. Links is optional;
// without it customer messages carry no links.
type Deps struct {
	Events   EventStore
	Requests WorkRequestStore
	Queue    NotificationQueue
	Tokens   TokenStore
	Calendar calendar.Client
	Renderer notify.Renderer
	Links    *notify.Links
	Logger   *log.Logger
	Now      func() time.Time
}

func (d Deps) logger() *log.Logger {
	if d.Logger == nil {
		return log.Default()
	}
	return d.Logger
}

func (d Deps) clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}

// Settings are the tunables the services read from configuration.
type Settings struct {
	Location         *time.Location
	PlaceholderStart string
	PlaceholderEnd   string
	SyncPastDays     int
	SyncFutureDays   int
	SyncLimit        int
	ConfirmWindow    time.Duration
	RebookValidity   time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Location:         cfg.Location(),
		PlaceholderStart: cfg.Calendar.PlaceholderStart,
		PlaceholderEnd:   cfg.Calendar.PlaceholderEnd,
		SyncPastDays:     cfg.Sync.PastDays,
		SyncFutureDays:   cfg.Sync.FutureDays,
		SyncLimit:        cfg.Sync.Limit,
		ConfirmWindow:    time.Duration(cfg.Mayday.ConfirmWindowHours) * time.Hour,
		RebookValidity:   time.Duration(cfg.Mayday.RebookValidityDays) * 24 * time.Hour,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Location == nil {
		s.Location = time.Local
	}
	if s.PlaceholderStart == "" {
		s.PlaceholderStart = "08:00"
	}
	if s.PlaceholderEnd == "" {
		s.PlaceholderEnd = "09:00"
	}
	if s.SyncPastDays <= 0 {
		s.SyncPastDays = 30
	}
	if s.SyncFutureDays <= 0 {
		s.SyncFutureDays = 90
	}
	if s.SyncLimit <= 0 {
		s.SyncLimit = 2500
	}
	if s.ConfirmWindow <= 0 {
		s.ConfirmWindow = 24 * time.Hour
	}
	if s.RebookValidity <= 0 {
		s.RebookValidity = 14 * 24 * time.Hour
	}
	return s
}
