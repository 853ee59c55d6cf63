package httpapi

import (
	"time"

	"github.com/bobuk/opscal/internal/models"
	"github.com/bobuk/opscal/internal/services"
)

type eventDTO struct {
	ID            string               `json:"id"`
	RemoteID      *string              `json:"remote_id"`
	VersionTag    *string              `json:"version_tag,omitempty"`
	EventType     models.EventType     `json:"event_type"`
	Title         string               `json:"title"`
	StartTime     time.Time            `json:"start_time"`
	EndTime       time.Time            `json:"end_time"`
	Status        models.EventStatus   `json:"status"`
	SyncStatus    models.SyncStatus    `json:"sync_status"`
	DisplayStatus models.DisplayStatus `json:"display_status,omitempty"`
	RequestID     *string              `json:"request_id,omitempty"`

	Booking      *models.Booking      `json:"booking,omitempty"`
	FiAssignment *models.FiAssignment `json:"fi_assignment,omitempty"`
	Blocker      *models.Blocker      `json:"blocker,omitempty"`

	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancellationNote   *string    `json:"cancellation_note,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	PendingStart       *time.Time `json:"pending_start_time,omitempty"`
	PendingEnd         *time.Time `json:"pending_end_time,omitempty"`
	RebookedAt         *time.Time `json:"rebooked_at,omitempty"`

	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newEventDTO(ev *models.CalendarEvent) eventDTO {
	out := eventDTO{
		ID:                 ev.ID,
		RemoteID:           ev.RemoteID,
		VersionTag:         ev.VersionTag,
		EventType:          ev.Type,
		Title:              ev.Title(),
		StartTime:          ev.StartTime,
		EndTime:            ev.EndTime,
		Status:             ev.Status,
		SyncStatus:         ev.SyncStatus,
		RequestID:          ev.RequestID,
		CancellationReason: ev.CancellationReason,
		CancellationNote:   ev.CancellationNote,
		CancelledAt:        ev.CancelledAt,
		PendingStart:       ev.PendingStart,
		PendingEnd:         ev.PendingEnd,
		RebookedAt:         ev.RebookedAt,
		Revision:           ev.Revision,
		CreatedAt:          ev.CreatedAt,
		UpdatedAt:          ev.UpdatedAt,
	}
	switch d := ev.Details.(type) {
	case models.Booking:
		out.Booking = &d
	case models.FiAssignment:
		out.FiAssignment = &d
	case models.Blocker:
		out.Blocker = &d
	}
	return out
}

func newEventViewDTO(v services.EventView) eventDTO {
	out := newEventDTO(v.CalendarEvent)
	out.DisplayStatus = v.DisplayStatus
	return out
}
