package models

import (
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventTypeBooking      EventType = "booking"
	EventTypeFiAssignment EventType = "fi_assignment"
	EventTypeBlocker      EventType = "blocker"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeBooking, EventTypeFiAssignment, EventTypeBlocker:
		return true
	}
	return false
}

type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

func (s EventStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusTentative, StatusCancelled:
		return true
	}
	return false
}

// SyncStatus reflects whether the local record matches the external calendar.
type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending"
	SyncError   SyncStatus = "error"
)

// CalendarEvent is the authoritative internal record of a calendar entry.
type CalendarEvent struct {
	ID         string
	RemoteID   *string
	VersionTag *string
	Type       EventType
	StartTime  time.Time
	EndTime    time.Time
	Status     EventStatus
	SyncStatus SyncStatus
	Details    Details
	RequestID  *string

	CancellationReason *string
	CancellationNote   *string
	CancelledAt        *time.Time

	// Proposed shift waiting for the customer to confirm it.
	PendingStart *time.Time
	PendingEnd   *time.Time
	RebookedAt   *time.Time

	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Title is the display title derived from the type-specific details.
func (e *CalendarEvent) Title() string {
	if e.Details == nil {
		return string(e.Type)
	}
	return e.Details.title()
}

// CustomerEmail returns the address notifications go to, or "" when the
// event has no customer.
func (e *CalendarEvent) CustomerEmail() string {
	if b, ok := e.Details.(Booking); ok {
		return strings.TrimSpace(b.Email)
	}
	return ""
}

// CustomerName returns the booking customer's full name, if any.
func (e *CalendarEvent) CustomerName() string {
	if b, ok := e.Details.(Booking); ok {
		return strings.TrimSpace(b.FirstName + " " + b.LastName)
	}
	return ""
}

func (e *CalendarEvent) HasRemote() bool {
	return e.RemoteID != nil && *e.RemoteID != ""
}

func (e *CalendarEvent) HasPendingShift() bool {
	return e.PendingStart != nil && e.PendingEnd != nil
}

// Details is the per-type payload of an event. Only the types in this
// package implement it.
type Details interface {
	EventType() EventType
	title() string
	validate() error
}

type Booking struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (Booking) EventType() EventType { return EventTypeBooking }

func (b Booking) title() string {
	return fmt.Sprintf("Booking: %s %s", strings.TrimSpace(b.FirstName), strings.TrimSpace(b.LastName))
}

func (b Booking) validate() error {
	if strings.TrimSpace(b.FirstName) == "" {
		return &ValidationError{Field: "first_name", Message: "first name is required for bookings"}
	}
	if strings.TrimSpace(b.LastName) == "" {
		return &ValidationError{Field: "last_name", Message: "last name is required for bookings"}
	}
	return nil
}

// FiAssignment is an instructor duty. ActualWorkStart and ActualWorkEnd are
// "15:04" times of day; the exported calendar slot does not carry them.
type FiAssignment struct {
	InstructorName  string `json:"instructor_name"`
	InstructorEmail string `json:"instructor_email,omitempty"`
	AllDay          bool   `json:"all_day,omitempty"`
	ActualWorkStart string `json:"actual_work_start,omitempty"`
	ActualWorkEnd   string `json:"actual_work_end,omitempty"`
}

func (FiAssignment) EventType() EventType { return EventTypeFiAssignment }

func (f FiAssignment) title() string {
	return "FI: " + strings.TrimSpace(f.InstructorName)
}

func (f FiAssignment) validate() error {
	if strings.TrimSpace(f.InstructorName) == "" {
		return &ValidationError{Field: "instructor_name", Message: "instructor name is required for FI assignments"}
	}
	for _, wt := range []struct{ field, value string }{
		{"actual_work_start", f.ActualWorkStart},
		{"actual_work_end", f.ActualWorkEnd},
	} {
		if wt.value == "" {
			continue
		}
		if _, err := time.Parse(ClockLayout, wt.value); err != nil {
			return &ValidationError{Field: wt.field, Message: fmt.Sprintf("%q is not a HH:MM time", wt.value)}
		}
	}
	return nil
}

type Blocker struct {
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
}

func (Blocker) EventType() EventType { return EventTypeBlocker }

func (b Blocker) title() string { return strings.TrimSpace(b.Title) }

func (b Blocker) validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required for blockers"}
	}
	return nil
}

// ClockLayout is the time-of-day format used for actual work hours and the
// placeholder export window.
const ClockLayout = "15:04"
