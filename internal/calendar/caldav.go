package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const productID = "-//opscal//calendar sync//EN"

type CalDAVClient struct {
	client  *caldav.Client
	calPath string
	loc     *time.Location
}

func NewCalDAVClient(ctx context.Context, httpClient *http.Client, serverURL, username, password, calendarURL string, loc *time.Location) (*CalDAVClient, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CalDAV server URL: %w", err)
	}
	calURL, err := url.Parse(calendarURL)
	if err != nil {
		return nil, fmt.Errorf("invalid calendar URL: %w", err)
	}

	var hc webdav.HTTPClient = httpClient
	if httpClient == nil {
		hc = http.DefaultClient
	}
	if username != "" && password != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, username, password)
	}

	c, err := caldav.NewClient(hc, baseURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	// Test connection
	if _, err := c.FindCalendars(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to connect to CalDAV server: %w: %w", ErrRemoteUnavailable, err)
	}

	if loc == nil {
		loc = time.Local
	}
	return &CalDAVClient{
		client:  c,
		calPath: strings.TrimRight(calURL.Path, "/"),
		loc:     loc,
	}, nil
}

func (c *CalDAVClient) objectPath(uid string) string {
	return c.calPath + "/" + uid + ".ics"
}

func (c *CalDAVClient) Create(ctx context.Context, event RemoteEvent) (Ref, error) {
	uid := "opscal-" + uuid.NewString()
	tag, err := c.put(ctx, uid, event)
	if err != nil {
		return Ref{}, fmt.Errorf("failed to create event: %w", err)
	}
	return Ref{RemoteID: uid, VersionTag: tag}, nil
}

func (c *CalDAVClient) Update(ctx context.Context, remoteID string, event RemoteEvent) (string, error) {
	// PUT on CalDAV creates missing objects, so check first to report
	// external deletions the same way the Google client does.
	if _, err := c.client.GetCalendarObject(ctx, c.objectPath(remoteID)); err != nil {
		return "", fmt.Errorf("failed to update event: %w", davError(err))
	}
	tag, err := c.put(ctx, remoteID, event)
	if err != nil {
		return "", fmt.Errorf("failed to update event: %w", err)
	}
	return tag, nil
}

func (c *CalDAVClient) put(ctx context.Context, uid string, event RemoteEvent) (string, error) {
	icalEvent := ical.NewEvent()
	icalEvent.Props.SetText(ical.PropUID, uid)
	icalEvent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	icalEvent.Props.SetText(ical.PropSummary, event.Summary)
	if event.Description != "" {
		icalEvent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.AllDay {
		icalEvent.Props.SetDate(ical.PropDateTimeStart, event.Start.In(c.loc))
		icalEvent.Props.SetDate(ical.PropDateTimeEnd, event.End.In(c.loc))
	} else {
		icalEvent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		icalEvent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
	}
	status := "CONFIRMED"
	if event.Status != "" {
		status = strings.ToUpper(event.Status)
	}
	icalEvent.Props.SetText(ical.PropStatus, status)

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, icalEvent.Component)

	obj, err := c.client.PutCalendarObject(ctx, c.objectPath(uid), cal)
	if err != nil {
		return "", davError(err)
	}
	if obj.ETag != "" {
		return obj.ETag, nil
	}

	// Some servers omit the ETag on PUT; read it back.
	stored, err := c.client.GetCalendarObject(ctx, c.objectPath(uid))
	if err != nil {
		return "", davError(err)
	}
	return stored.ETag, nil
}

func (c *CalDAVClient) Delete(ctx context.Context, remoteID string) error {
	err := c.client.RemoveAll(ctx, c.objectPath(remoteID))
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete event: %w", davError(err))
	}
	return nil
}

func (c *CalDAVClient) List(ctx context.Context, from, to time.Time, limit int) ([]RemoteEvent, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: from,
				End:   to,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", davError(err))
	}

	var result []RemoteEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, comp := range obj.Data.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			result = append(result, c.fromComponent(comp, obj.ETag))
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}
	}
	return result, nil
}

func (c *CalDAVClient) fromComponent(comp *ical.Component, etag string) RemoteEvent {
	status := getTextProp(comp.Props, ical.PropStatus)
	if status == "" {
		status = "confirmed"
	}
	start, _ := comp.Props.DateTime(ical.PropDateTimeStart, c.loc)
	end, _ := comp.Props.DateTime(ical.PropDateTimeEnd, c.loc)
	allDay := false
	if p := comp.Props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		allDay = true
	}
	return RemoteEvent{
		RemoteID:    getTextProp(comp.Props, ical.PropUID),
		VersionTag:  etag,
		Summary:     getTextProp(comp.Props, ical.PropSummary),
		Description: getTextProp(comp.Props, ical.PropDescription),
		Start:       start,
		End:         end,
		AllDay:      allDay,
		Status:      strings.ToLower(status),
	}
}

func getTextProp(props ical.Props, name string) string {
	prop := props.Get(name)
	if prop == nil {
		return ""
	}
	return prop.Value
}

// statusCode reads the status go-webdav puts at the start of its HTTP errors
// ("404 Not Found: <body>"). The body text is never inspected. Transport
// failures yield 0.
func statusCode(err error) int {
	code, _, _ := strings.Cut(err.Error(), " ")
	if len(code) != 3 {
		return 0
	}
	n, convErr := strconv.Atoi(code)
	if convErr != nil || n < 100 {
		return 0
	}
	return n
}

func isNotFound(err error) bool {
	code := statusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

func davError(err error) error {
	code := statusCode(err)
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return fmt.Errorf("%w: %w", ErrRemoteNotFound, err)
	case code == 0 || code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	case code >= 400:
		return fmt.Errorf("%w: %w", ErrRemoteRejected, err)
	default:
		return fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
}
