package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRemoteUnavailable = errors.New("remote calendar unavailable")
	ErrRemoteRejected    = errors.New("remote calendar rejected the request")
	ErrRemoteNotFound    = errors.New("remote event not found")
)

// Client is the external calendar as seen by the engine. One Client is bound
// to one calendar.
type Client interface {
	Create(ctx context.Context, event RemoteEvent) (Ref, error)
	Update(ctx context.Context, remoteID string, event RemoteEvent) (string, error)
	// Delete is idempotent: deleting a missing event returns nil.
	Delete(ctx context.Context, remoteID string) error
	List(ctx context.Context, from, to time.Time, limit int) ([]RemoteEvent, error)
}

// Ref identifies a stored remote event and its current version tag.
type Ref struct {
	RemoteID   string
	VersionTag string
}

type RemoteEvent struct {
	RemoteID    string
	VersionTag  string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Status      string // confirmed, tentative or cancelled
}

func (e RemoteEvent) Cancelled() bool {
	return e.Status == "cancelled"
}
