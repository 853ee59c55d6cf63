package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ValidationError is returned before any external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Optional distinguishes an absent JSON field (Set == false) from an
// explicit null (Set == true, Value == nil).
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

func Null[T any]() Optional[T] { return Optional[T]{Set: true} }

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// CreateEventInput is the event_type-discriminated payload for a new event.
type CreateEventInput struct {
	StartTime        time.Time
	EndTime          time.Time
	Status           EventStatus
	RequestID        *string
	Details          Details
	SendConfirmation bool
}

type createEventWire struct {
	EventType        EventType     `json:"event_type"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Status           EventStatus   `json:"status"`
	RequestID        *string       `json:"request_id"`
	SendConfirmation bool          `json:"send_confirmation"`
	Booking          *Booking      `json:"booking"`
	FiAssignment     *FiAssignment `json:"fi_assignment"`
	Blocker          *Blocker      `json:"blocker"`
}

func (in *CreateEventInput) UnmarshalJSON(b []byte) error {
	var w createEventWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	in.StartTime = w.StartTime
	in.EndTime = w.EndTime
	in.Status = w.Status
	in.RequestID = w.RequestID
	in.SendConfirmation = w.SendConfirmation

	switch w.EventType {
	case EventTypeBooking:
		if w.Booking == nil {
			return &ValidationError{Field: "booking", Message: "booking payload is required"}
		}
		in.Details = *w.Booking
	case EventTypeFiAssignment:
		if w.FiAssignment == nil {
			return &ValidationError{Field: "fi_assignment", Message: "fi_assignment payload is required"}
		}
		in.Details = *w.FiAssignment
	case EventTypeBlocker:
		if w.Blocker == nil {
			return &ValidationError{Field: "blocker", Message: "blocker payload is required"}
		}
		in.Details = *w.Blocker
	default:
		return &ValidationError{Field: "event_type", Message: fmt.Sprintf("unknown event type %q", w.EventType)}
	}
	return nil
}

// Validate checks the input and fills defaults. Calendar days and derived
// work hours are taken in loc, the business time zone. It never talks to
// anything outside the process.
func (in *CreateEventInput) Validate(loc *time.Location) error {
	if in.Details == nil {
		return &ValidationError{Field: "event_type", Message: "event details are required"}
	}
	if in.Status == "" {
		in.Status = StatusConfirmed
	}
	if !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.Status == StatusCancelled {
		return &ValidationError{Field: "status", Message: "events cannot be created cancelled"}
	}
	if f, ok := in.Details.(FiAssignment); ok {
		in.Details = fillWorkHours(f, in.StartTime, in.EndTime, loc, false)
	}
	return ValidateSchedule(in.Details, in.StartTime, in.EndTime, loc)
}

// ValidateSchedule applies the per-type field rules and the time rules. The
// same-day rule for bookings is checked in loc.
func ValidateSchedule(d Details, start, end time.Time, loc *time.Location) error {
	if err := d.validate(); err != nil {
		return err
	}
	if start.IsZero() || end.IsZero() {
		return &ValidationError{Field: "start_time", Message: "start and end time are required"}
	}
	if !start.Before(end) {
		return &ValidationError{Field: "end_time", Message: "start time must be before end time"}
	}
	if d.EventType() == EventTypeBooking && !SameDay(start, end, loc) {
		return &ValidationError{Field: "end_time", Message: "bookings must start and end on the same day"}
	}
	return nil
}

// SameDay reports whether a and b fall on the same calendar day in loc. A nil
// loc uses a's own zone.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = a.Location()
	}
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// fillWorkHours derives the actual worked hours from the event window as
// wall clock times in loc. With force the existing values are replaced.
func fillWorkHours(f FiAssignment, start, end time.Time, loc *time.Location, force bool) FiAssignment {
	if f.AllDay {
		return f
	}
	if force || f.ActualWorkStart == "" {
		if !start.IsZero() {
			f.ActualWorkStart = inZone(start, loc).Format(ClockLayout)
		}
	}
	if force || f.ActualWorkEnd == "" {
		if !end.IsZero() {
			f.ActualWorkEnd = inZone(end, loc).Format(ClockLayout)
		}
	}
	return f
}

func inZone(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}

// UpdateEventInput is a partial update. Absent fields keep their value,
// explicit null or "" clears optional ones. The event type cannot change.
type UpdateEventInput struct {
	StartTime Optional[time.Time]   `json:"start_time"`
	EndTime   Optional[time.Time]   `json:"end_time"`
	Status    Optional[EventStatus] `json:"status"`
	RequestID Optional[string]      `json:"request_id"`

	FirstName Optional[string] `json:"first_name"`
	LastName  Optional[string] `json:"last_name"`
	Email     Optional[string] `json:"email"`
	Phone     Optional[string] `json:"phone"`
	Notes     Optional[string] `json:"notes"`

	InstructorName  Optional[string] `json:"instructor_name"`
	InstructorEmail Optional[string] `json:"instructor_email"`
	AllDay          Optional[bool]   `json:"all_day"`
	ActualWorkStart Optional[string] `json:"actual_work_start"`
	ActualWorkEnd   Optional[string] `json:"actual_work_end"`

	Title Optional[string] `json:"title"`
}

// Apply merges the update over ev and returns the merged, validated record,
// judging days and work hours in loc. ev itself is not modified.
func (in UpdateEventInput) Apply(ev CalendarEvent, loc *time.Location) (CalendarEvent, error) {
	out := ev
	if in.StartTime.Set {
		if in.StartTime.Value == nil {
			return ev, &ValidationError{Field: "start_time", Message: "start time cannot be cleared"}
		}
		out.StartTime = *in.StartTime.Value
	}
	if in.EndTime.Set {
		if in.EndTime.Value == nil {
			return ev, &ValidationError{Field: "end_time", Message: "end time cannot be cleared"}
		}
		out.EndTime = *in.EndTime.Value
	}
	if in.Status.Set {
		if in.Status.Value == nil || !in.Status.Value.Valid() {
			return ev, &ValidationError{Field: "status", Message: "a valid status is required"}
		}
		out.Status = *in.Status.Value
	}
	if in.RequestID.Set {
		out.RequestID = clearable(in.RequestID)
	}

	switch d := ev.Details.(type) {
	case Booking:
		mergeString(&d.FirstName, in.FirstName)
		mergeString(&d.LastName, in.LastName)
		mergeString(&d.Email, in.Email)
		mergeString(&d.Phone, in.Phone)
		mergeString(&d.Notes, in.Notes)
		out.Details = d
	case FiAssignment:
		mergeString(&d.InstructorName, in.InstructorName)
		mergeString(&d.InstructorEmail, in.InstructorEmail)
		if in.AllDay.Set {
			d.AllDay = in.AllDay.Value != nil && *in.AllDay.Value
		}
		mergeString(&d.ActualWorkStart, in.ActualWorkStart)
		mergeString(&d.ActualWorkEnd, in.ActualWorkEnd)
		timesMoved := in.StartTime.Set || in.EndTime.Set
		if timesMoved && !in.ActualWorkStart.Set && !in.ActualWorkEnd.Set {
			d = fillWorkHours(d, out.StartTime, out.EndTime, loc, true)
		} else {
			d = fillWorkHours(d, out.StartTime, out.EndTime, loc, false)
		}
		out.Details = d
	case Blocker:
		mergeString(&d.Title, in.Title)
		mergeString(&d.Notes, in.Notes)
		out.Details = d
	default:
		return ev, &ValidationError{Field: "event_type", Message: "event has no details"}
	}

	if err := ValidateSchedule(out.Details, out.StartTime, out.EndTime, loc); err != nil {
		return ev, err
	}
	return out, nil
}

func mergeString(dst *string, o Optional[string]) {
	if !o.Set {
		return
	}
	if o.Value == nil {
		*dst = ""
		return
	}
	*dst = strings.TrimSpace(*o.Value)
}

func clearable(o Optional[string]) *string {
	if o.Value == nil || strings.TrimSpace(*o.Value) == "" {
		return nil
	}
	v := strings.TrimSpace(*o.Value)
	return &v
}
