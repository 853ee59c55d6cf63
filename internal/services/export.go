package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/bobuk/opscal/internal/calendar"
	"github.com/bobuk/opscal/internal/models"
)

// exporter turns local records into what the external calendar gets to see.
type exporter struct {
	loc              *time.Location
	placeholderStart time.Duration
	placeholderEnd   time.Duration
}

func newExporter(s Settings) exporter {
	return exporter{
		loc:              s.Location,
		placeholderStart: clockOffset(s.PlaceholderStart, 8*time.Hour),
		placeholderEnd:   clockOffset(s.PlaceholderEnd, 9*time.Hour),
	}
}

func clockOffset(v string, fallback time.Duration) time.Duration {
	t, err := time.Parse(models.ClockLayout, v)
	if err != nil {
		return fallback
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

func (x exporter) midnight(t time.Time) time.Time {
	t = t.In(x.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, x.loc)
}

// window is the slot exported for ev. Non-all-day FI assignments get the
// placeholder slot on their start date; all-day ones cover whole days.
func (x exporter) window(ev *models.CalendarEvent) (start, end time.Time, allDay bool) {
	fi, ok := ev.Details.(models.FiAssignment)
	if !ok {
		return ev.StartTime, ev.EndTime, false
	}
	day := x.midnight(ev.StartTime)
	if fi.AllDay {
		last := x.midnight(ev.EndTime)
		if ev.EndTime.After(last) || !last.After(day) {
			last = last.AddDate(0, 0, 1)
		}
		return day, last, true
	}
	return x.at(day, x.placeholderStart), x.at(day, x.placeholderEnd), false
}

// at adds a time of day to a local midnight without drifting across DST.
func (x exporter) at(day time.Time, offset time.Duration) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, x.loc)
}

func (x exporter) remoteEvent(ev *models.CalendarEvent) calendar.RemoteEvent {
	start, end, allDay := x.window(ev)
	return calendar.RemoteEvent{
		Summary:     ev.Title(),
		Description: describe(ev),
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Status:      string(ev.Status),
	}
}

func describe(ev *models.CalendarEvent) string {
	var lines []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	switch d := ev.Details.(type) {
	case models.Booking:
		add("Email", d.Email)
		add("Phone", d.Phone)
		add("Notes", d.Notes)
	case models.FiAssignment:
		add("Instructor", d.InstructorEmail)
		if !d.AllDay && d.ActualWorkStart != "" && d.ActualWorkEnd != "" {
			add("Working hours", fmt.Sprintf("%s-%s", d.ActualWorkStart, d.ActualWorkEnd))
		}
	case models.Blocker:
		add("Notes", d.Notes)
	}
	return strings.Join(lines, "\n")
}

// moveToDay shifts ev's window by whole days so it starts on the local date
// of day, keeping the time of day.
func (x exporter) moveToDay(start, end, day time.Time) (time.Time, time.Time) {
	from := x.midnight(start)
	to := x.midnight(day)
	days := civilDays(to) - civilDays(from)
	return start.In(x.loc).AddDate(0, 0, days), end.In(x.loc).AddDate(0, 0, days)
}

func civilDays(t time.Time) int {
	return int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
