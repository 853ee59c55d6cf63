package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestCreateEventInputDecodesVariant(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantType EventType
		wantErr  bool
	}{
		{
			name:     "booking",
			body:     `{"event_type":"booking","start_time":"2025-03-01T10:00:00Z","end_time":"2025-03-01T11:00:00Z","booking":{"first_name":"Ada","last_name":"Lovelace"}}`,
			wantType: EventTypeBooking,
		},
		{
			name:     "fi assignment",
			body:     `{"event_type":"fi_assignment","start_time":"2025-03-01T07:00:00Z","end_time":"2025-03-01T15:00:00Z","fi_assignment":{"instructor_name":"Kim"}}`,
			wantType: EventTypeFiAssignment,
		},
		{
			name:     "blocker",
			body:     `{"event_type":"blocker","start_time":"2025-03-01T07:00:00Z","end_time":"2025-03-01T15:00:00Z","blocker":{"title":"Maintenance"}}`,
			wantType: EventTypeBlocker,
		},
		{
			name:    "payload missing",
			body:    `{"event_type":"booking","start_time":"2025-03-01T10:00:00Z","end_time":"2025-03-01T11:00:00Z"}`,
			wantErr: true,
		},
		{
			name:    "unknown type",
			body:    `{"event_type":"party"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in CreateEventInput
			err := json.Unmarshal([]byte(tt.body), &in)
			if tt.wantErr {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if in.Details.EventType() != tt.wantType {
				t.Errorf("expected %s, got %s", tt.wantType, in.Details.EventType())
			}
		})
	}
}

func TestCreateEventInputValidate(t *testing.T) {
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		in        CreateEventInput
		wantField string
	}{
		{
			name: "valid booking",
			in:   CreateEventInput{StartTime: day, EndTime: day.Add(time.Hour), Details: Booking{FirstName: "Ada", LastName: "Lovelace"}},
		},
		{
			name:      "booking without last name",
			in:        CreateEventInput{StartTime: day, EndTime: day.Add(time.Hour), Details: Booking{FirstName: "Ada"}},
			wantField: "last_name",
		},
		{
			name:      "fi assignment without instructor",
			in:        CreateEventInput{StartTime: day, EndTime: day.Add(time.Hour), Details: FiAssignment{}},
			wantField: "instructor_name",
		},
		{
			name:      "blocker without title",
			in:        CreateEventInput{StartTime: day, EndTime: day.Add(time.Hour), Details: Blocker{Title: "  "}},
			wantField: "title",
		},
		{
			name:      "end before start",
			in:        CreateEventInput{StartTime: day, EndTime: day, Details: Blocker{Title: "x"}},
			wantField: "end_time",
		},
		{
			name:      "booking over midnight",
			in:        CreateEventInput{StartTime: day, EndTime: day.Add(20 * time.Hour), Details: Booking{FirstName: "A", LastName: "B"}},
			wantField: "end_time",
		},
		{
			name: "blocker over midnight",
			in:   CreateEventInput{StartTime: day, EndTime: day.Add(20 * time.Hour), Details: Blocker{Title: "Hangar closed"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate(time.UTC)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, ve.Field)
			}
		})
	}
}

func TestCreateEventInputFillsWorkHours(t *testing.T) {
	start := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)
	in := CreateEventInput{StartTime: start, EndTime: start.Add(8 * time.Hour), Details: FiAssignment{InstructorName: "Kim"}}
	if err := in.Validate(time.UTC); err != nil {
		t.Fatalf("validate: %v", err)
	}
	fi := in.Details.(FiAssignment)
	if fi.ActualWorkStart != "07:30" || fi.ActualWorkEnd != "15:30" {
		t.Errorf("unexpected work hours %s-%s", fi.ActualWorkStart, fi.ActualWorkEnd)
	}
	if in.Status != StatusConfirmed {
		t.Errorf("expected default status confirmed, got %s", in.Status)
	}
}

func TestUpdateEventInputApply(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	req := "req-1"
	ev := CalendarEvent{
		ID:        "ev-1",
		Type:      EventTypeBooking,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    StatusConfirmed,
		RequestID: &req,
		Details:   Booking{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "123"},
	}

	var in UpdateEventInput
	body := `{"first_name":"Augusta","phone":null,"request_id":""}`
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := in.Apply(ev, time.UTC)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	b := out.Details.(Booking)
	if b.FirstName != "Augusta" || b.LastName != "Lovelace" {
		t.Errorf("unexpected name %q %q", b.FirstName, b.LastName)
	}
	if b.Phone != "" {
		t.Errorf("expected phone cleared, got %q", b.Phone)
	}
	if b.Email != "ada@example.com" {
		t.Errorf("expected email kept, got %q", b.Email)
	}
	if out.RequestID != nil {
		t.Errorf("expected request id cleared")
	}
	if out.Title() != "Booking: Augusta Lovelace" {
		t.Errorf("unexpected title %q", out.Title())
	}
	if ev.Details.(Booking).FirstName != "Ada" {
		t.Errorf("original record was modified")
	}
}

func TestUpdateEventInputRejectsClearingRequiredFields(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := CalendarEvent{Type: EventTypeBlocker, StartTime: start, EndTime: start.Add(time.Hour), Details: Blocker{Title: "Fuel truck"}}

	if _, err := (UpdateEventInput{Title: Null[string]()}).Apply(ev, time.UTC); err == nil {
		t.Fatal("expected error clearing blocker title")
	}
	if _, err := (UpdateEventInput{EndTime: Null[time.Time]()}).Apply(ev, time.UTC); err == nil {
		t.Fatal("expected error clearing end time")
	}
	if _, err := (UpdateEventInput{EndTime: Some(start)}).Apply(ev, time.UTC); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestUpdateEventInputRederivesWorkHours(t *testing.T) {
	start := time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)
	ev := CalendarEvent{
		Type:      EventTypeFiAssignment,
		StartTime: start,
		EndTime:   start.Add(8 * time.Hour),
		Details:   FiAssignment{InstructorName: "Kim", ActualWorkStart: "07:00", ActualWorkEnd: "15:00"},
	}
	out, err := (UpdateEventInput{StartTime: Some(start.Add(2 * time.Hour))}).Apply(ev, time.UTC)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	fi := out.Details.(FiAssignment)
	if fi.ActualWorkStart != "09:00" || fi.ActualWorkEnd != "15:00" {
		t.Errorf("unexpected work hours %s-%s", fi.ActualWorkStart, fi.ActualWorkEnd)
	}
}

func TestScheduleUsesBusinessZone(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	// 23:30-00:30 and 01:00-02:00 local on 1 June 2025.
	lateStart := time.Date(2025, 6, 1, 23, 30, 0, 0, berlin)
	earlyStart := time.Date(2025, 6, 2, 1, 0, 0, 0, berlin)

	tests := []struct {
		name      string
		start     time.Time
		end       time.Time
		wantField string
	}{
		{
			name:      "over local midnight sent as UTC",
			start:     lateStart.UTC(),
			end:       lateStart.Add(time.Hour).UTC(),
			wantField: "end_time",
		},
		{
			name:      "over local midnight sent with offset",
			start:     lateStart,
			end:       lateStart.Add(time.Hour),
			wantField: "end_time",
		},
		{
			name:  "over UTC midnight only",
			start: earlyStart.UTC(),
			end:   earlyStart.Add(time.Hour).UTC(),
		},
		{
			name:  "over UTC midnight sent with offset",
			start: earlyStart,
			end:   earlyStart.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreateEventInput{StartTime: tt.start, EndTime: tt.end, Details: Booking{FirstName: "Ada", LastName: "Lovelace"}}
			err := in.Validate(berlin)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, ve.Field)
			}
		})
	}
}

func TestWorkHoursUseBusinessZone(t *testing.T) {
	berlin := time.FixedZone("CEST", 2*60*60)
	start := time.Date(2025, 6, 2, 8, 0, 0, 0, berlin)

	tests := []struct {
		name  string
		start time.Time
	}{
		{name: "sent as UTC", start: start.UTC()},
		{name: "sent with offset", start: start},
		{name: "sent with other offset", start: start.In(time.FixedZone("EDT", -4*60*60))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := CreateEventInput{StartTime: tt.start, EndTime: tt.start.Add(8 * time.Hour), Details: FiAssignment{InstructorName: "Kim"}}
			if err := in.Validate(berlin); err != nil {
				t.Fatalf("validate: %v", err)
			}
			fi := in.Details.(FiAssignment)
			if fi.ActualWorkStart != "08:00" || fi.ActualWorkEnd != "16:00" {
				t.Errorf("unexpected work hours %s-%s", fi.ActualWorkStart, fi.ActualWorkEnd)
			}

			ev := CalendarEvent{Type: EventTypeFiAssignment, StartTime: tt.start, EndTime: tt.start.Add(8 * time.Hour), Details: fi}
			out, err := (UpdateEventInput{StartTime: Some(tt.start.Add(time.Hour))}).Apply(ev, berlin)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			fi = out.Details.(FiAssignment)
			if fi.ActualWorkStart != "09:00" || fi.ActualWorkEnd != "16:00" {
				t.Errorf("unexpected work hours after update %s-%s", fi.ActualWorkStart, fi.ActualWorkEnd)
			}
		})
	}
}

func TestFiAssignmentReportsFirstInvalidWorkTime(t *testing.T) {
	f := FiAssignment{InstructorName: "Kim", ActualWorkStart: "8am", ActualWorkEnd: "late"}
	for i := 0; i < 20; i++ {
		var ve *ValidationError
		if err := f.validate(); !errors.As(err, &ve) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if ve.Field != "actual_work_start" {
			t.Fatalf("expected field actual_work_start, got %s", ve.Field)
		}
	}
}
