package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const dateLayout = "2006-01-02"

type GoogleClient struct {
	service    *gcal.Service
	calendarID string
	loc        *time.Location
}

func NewGoogleClient(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &GoogleClient{
		service:    service,
		calendarID: calendarID,
		loc:        loc,
	}, nil
}

func (g *GoogleClient) Create(ctx context.Context, event RemoteEvent) (Ref, error) {
	created, err := g.service.Events.Insert(g.calendarID, g.toGoogle(event)).Context(ctx).Do()
	if err != nil {
		return Ref{}, classify("create event", err)
	}
	return Ref{RemoteID: created.Id, VersionTag: created.Etag}, nil
}

func (g *GoogleClient) Update(ctx context.Context, remoteID string, event RemoteEvent) (string, error) {
	updated, err := g.service.Events.Update(g.calendarID, remoteID, g.toGoogle(event)).Context(ctx).Do()
	if err != nil {
		return "", classify("update event", err)
	}
	return updated.Etag, nil
}

func (g *GoogleClient) Delete(ctx context.Context, remoteID string) error {
	err := g.service.Events.Delete(g.calendarID, remoteID).Context(ctx).Do()
	if err != nil {
		err = classify("delete event", err)
		if errors.Is(err, ErrRemoteNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// List returns single (expanded) events in [from, to), including cancelled
// ones so callers can see remote deletions.
func (g *GoogleClient) List(ctx context.Context, from, to time.Time, limit int) ([]RemoteEvent, error) {
	var result []RemoteEvent
	pageToken := ""
	for {
		call := g.service.Events.List(g.calendarID).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			ShowDeleted(true).
			OrderBy("startTime").
			Context(ctx)
		if limit > 0 && limit-len(result) < 2500 {
			call = call.MaxResults(int64(limit - len(result)))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		events, err := call.Do()
		if err != nil {
			return nil, classify("list events", err)
		}
		for _, item := range events.Items {
			result = append(result, g.fromGoogle(item))
			if limit > 0 && len(result) >= limit {
				return result, nil
			}
		}
		if events.NextPageToken == "" {
			return result, nil
		}
		pageToken = events.NextPageToken
	}
}

func (g *GoogleClient) toGoogle(event RemoteEvent) *gcal.Event {
	googleEvent := &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
	}
	if event.AllDay {
		googleEvent.Start = &gcal.EventDateTime{Date: event.Start.In(g.loc).Format(dateLayout)}
		googleEvent.End = &gcal.EventDateTime{Date: event.End.In(g.loc).Format(dateLayout)}
	} else {
		googleEvent.Start = &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)}
		googleEvent.End = &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)}
	}
	if event.Status != "" {
		googleEvent.Status = event.Status
	}
	return googleEvent
}

func (g *GoogleClient) fromGoogle(item *gcal.Event) RemoteEvent {
	ev := RemoteEvent{
		RemoteID:    item.Id,
		VersionTag:  item.Etag,
		Summary:     item.Summary,
		Description: item.Description,
		Status:      item.Status,
	}
	if item.Start != nil {
		ev.Start, ev.AllDay = g.parseDateTime(item.Start)
	}
	if item.End != nil {
		ev.End, _ = g.parseDateTime(item.End)
	}
	return ev
}

func (g *GoogleClient) parseDateTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ := time.ParseInLocation(dateLayout, dt.Date, g.loc)
	return t, true
}

func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone:
			return fmt.Errorf("failed to %s: %w: %w", op, ErrRemoteNotFound, err)
		case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
			return fmt.Errorf("failed to %s: %w: %w", op, ErrRemoteUnavailable, err)
		default:
			return fmt.Errorf("failed to %s: %w: %w", op, ErrRemoteRejected, err)
		}
	}
	return fmt.Errorf("failed to %s: %w: %w", op, ErrRemoteUnavailable, err)
}
