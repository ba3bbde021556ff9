// Package calendar fetches the user's Google Calendar events as
// normalized records. It is a collaborator of the planner, not part of
// the sync core: it consumes a bearer token and a date range and yields a
// lazy, finite, non-restartable sequence of events.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Event is one normalized calendar entry. All-day events carry midnight
// Start/End in the calendar's local date with AllDay set.
type Event struct {
	ID       string
	Title    string
	Location string
	Start    time.Time
	End      time.Time
	AllDay   bool
}

// Client wraps the Calendar API for the planner's event queries.
type Client struct {
	svc    *gcal.Service
	logger *slog.Logger
}

// New builds a client authenticated with the given bearer token. Extra
// options come after the token source, so tests can override the
// endpoint and HTTP client.
func New(ctx context.Context, accessToken string, logger *slog.Logger, opts ...option.ClientOption) (*Client, error) {
	all := append([]option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}, opts...)

	svc, err := gcal.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("calendar: creating service: %w", err)
	}

	return &Client{svc: svc, logger: logger}, nil
}

// Events returns an iterator over the primary calendar's events between
// from and to, in start order, with recurring events expanded. Pages are
// fetched lazily as the iterator advances; the sequence cannot be
// restarted.
func (c *Client) Events(ctx context.Context, from, to time.Time) *Iterator {
	return &Iterator{
		ctx:    ctx,
		client: c,
		from:   from,
		to:     to,
	}
}

// Iterator walks a single event query. Next returns (nil, nil) once the
// sequence is exhausted.
type Iterator struct {
	ctx    context.Context
	client *Client
	from   time.Time
	to     time.Time

	buf       []*gcal.Event
	pageToken string
	done      bool
}

// Next returns the next event, fetching the next page when the buffered
// one runs out.
func (it *Iterator) Next() (*Event, error) {
	for len(it.buf) == 0 {
		if it.done {
			return nil, nil
		}
		if err := it.fetchPage(); err != nil {
			it.done = true
			return nil, err
		}
	}

	raw := it.buf[0]
	it.buf = it.buf[1:]

	ev, err := normalizeEvent(raw)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (it *Iterator) fetchPage() error {
	call := it.client.svc.Events.List("primary").
		TimeMin(it.from.Format(time.RFC3339)).
		TimeMax(it.to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(it.ctx)
	if it.pageToken != "" {
		call = call.PageToken(it.pageToken)
	}

	page, err := call.Do()
	if err != nil {
		return fmt.Errorf("calendar: listing events: %w", err)
	}

	it.buf = page.Items
	it.pageToken = page.NextPageToken
	if it.pageToken == "" {
		it.done = true
	}

	it.client.logger.Debug("calendar page fetched",
		slog.Int("events", len(page.Items)),
		slog.Bool("more", !it.done),
	)
	return nil
}

// normalizeEvent flattens the API's dual timed/all-day representation.
func normalizeEvent(raw *gcal.Event) (*Event, error) {
	ev := &Event{
		ID:       raw.Id,
		Title:    raw.Summary,
		Location: raw.Location,
	}

	var err error
	ev.Start, ev.AllDay, err = parseEventTime(raw.Start)
	if err != nil {
		return nil, fmt.Errorf("calendar: event %s start: %w", raw.Id, err)
	}
	ev.End, _, err = parseEventTime(raw.End)
	if err != nil {
		return nil, fmt.Errorf("calendar: event %s end: %w", raw.Id, err)
	}

	return ev, nil
}

func parseEventTime(edt *gcal.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, nil
	}
	if edt.DateTime != "" {
		ts, err := time.Parse(time.RFC3339, edt.DateTime)
		return ts, false, err
	}
	if edt.Date != "" {
		ts, err := time.Parse("2006-01-02", edt.Date)
		return ts, true, err
	}
	return time.Time{}, false, nil
}
