package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"
)

const primaryCalendar = "primary"

// EventInput describes an event to create.
type EventInput struct {
	Summary     string
	Start       time.Time
	End         time.Time
	Attendees   []string
	Description string
}

// Event is a created or listed calendar event.
type Event struct {
	ID       string
	Summary  string
	Start    string
	End      string
	Link     string
	MeetLink string
}

// ParseEventArgs reads "summary|start|end|attendees|description". Start
// defaults to now and end to one hour after start; times are RFC 3339.
func ParseEventArgs(args []string, now time.Time) (EventInput, error) {
	in := EventInput{
		Summary:     Arg(args, 0, "Quick Meeting"),
		Start:       now.UTC(),
		Description: Arg(args, 4, "Automatically created event."),
	}
	if s := Arg(args, 1, ""); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return in, fmt.Errorf("start time %q: %w", s, err)
		}
		in.Start = t
	}
	in.End = in.Start.Add(time.Hour)
	if s := Arg(args, 2, ""); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return in, fmt.Errorf("end time %q: %w", s, err)
		}
		in.End = t
	}
	for _, a := range strings.Split(Arg(args, 3, ""), ",") {
		if a = strings.TrimSpace(a); a != "" {
			in.Attendees = append(in.Attendees, a)
		}
	}
	return in, nil
}

// CreateEvent inserts an event on the primary calendar and requests a Meet
// link for it.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Start:       &calendar.EventDateTime{DateTime: in.Start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         &calendar.EventDateTime{DateTime: in.End.Format(time.RFC3339), TimeZone: "UTC"},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             "desk-meet-" + strconv.FormatInt(time.Now().UnixNano(), 10),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}
	for _, a := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := c.calendar.Events.Insert(primaryCalendar, ev).ConferenceDataVersion(1).Context(ctx).Do()
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	c.log.WithField("event_id", created.Id).Info("event created")
	return toEvent(created), nil
}

// Events lists up to max upcoming events starting from from.
func (c *Client) Events(ctx context.Context, max int64, from time.Time) ([]Event, error) {
	if max <= 0 {
		max = 5
	}
	res, err := c.calendar.Events.List(primaryCalendar).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(max).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, toEvent(item))
	}
	return events, nil
}

// DeleteEvent removes the event id from the primary calendar.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: event id", ErrMissingArgument)
	}
	if err := c.calendar.Events.Delete(primaryCalendar, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func toEvent(e *calendar.Event) Event {
	out := Event{ID: e.Id, Summary: e.Summary, Link: e.HtmlLink}
	if e.Start != nil {
		out.Start = firstNonEmpty(e.Start.DateTime, e.Start.Date)
	}
	if e.End != nil {
		out.End = firstNonEmpty(e.End.DateTime, e.End.Date)
	}
	out.MeetLink = e.HangoutLink
	if e.ConferenceData != nil {
		for _, ep := range e.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.MeetLink = ep.Uri
				break
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
