package libgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Event is a calendar event.
type Event struct {
	ID             string            `json:"id,omitempty"`
	Subject        string            `json:"subject,omitempty"`
	Start          *DateTimeTimeZone `json:"start,omitempty"`
	End            *DateTimeTimeZone `json:"end,omitempty"`
	IsAllDay       bool              `json:"isAllDay,omitempty"`
	Location       *Location         `json:"location,omitempty"`
	Organizer      *Recipient        `json:"organizer,omitempty"`
	Attendees      []*Attendee       `json:"attendees,omitempty"`
	ResponseStatus *ResponseStatus   `json:"responseStatus,omitempty"`
	Body           *ItemBody         `json:"body,omitempty"`
	OnlineMeeting  *OnlineMeeting    `json:"onlineMeeting,omitempty"`
	WebLink        string            `json:"webLink,omitempty"`
}

// DateTimeTimeZone is a date/time with timezone as Graph returns it.
type DateTimeTimeZone struct {
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Location is an event location.
type Location struct {
	DisplayName string `json:"displayName,omitempty"`
}

// Attendee is a meeting attendee.
type Attendee struct {
	EmailAddress *EmailAddress   `json:"emailAddress,omitempty"`
	Status       *ResponseStatus `json:"status,omitempty"`
	Type         string          `json:"type,omitempty"`
}

// ResponseStatus is a response to a meeting invitation.
type ResponseStatus struct {
	Response string `json:"response,omitempty"`
	Time     string `json:"time,omitempty"`
}

// OnlineMeeting holds online meeting join details.
type OnlineMeeting struct {
	JoinURL string `json:"joinUrl,omitempty"`
}

// Calendar is a user calendar.
type Calendar struct {
	ID    string        `json:"id,omitempty"`
	Name  string        `json:"name,omitempty"`
	Owner *EmailAddress `json:"owner,omitempty"`
}

// CalendarViewOptions selects the time window and calendar for
// CalendarView. Start and end are required, ISO 8601.
type CalendarViewOptions struct {
	StartDateTime string
	EndDateTime   string
	CalendarID    string // empty = default calendar
	Top           int    // page size hint; 0 = server default
}

type eventPage struct {
	Value    []*Event `json:"value"`
	NextLink string   `json:"@odata.nextLink,omitempty"`
}

type calendarPage struct {
	Value []*Calendar `json:"value"`
}

// maxPages caps automatic next-link following so a runaway window cannot
// loop forever.
const maxPages = 50

// CalendarView retrieves the expanded event occurrences in a time window,
// following paging links until the window is exhausted.
func (c *Client) CalendarView(ctx context.Context, opts *CalendarViewOptions) ([]*Event, error) {
	if opts == nil || opts.StartDateTime == "" || opts.EndDateTime == "" {
		return nil, fmt.Errorf("startDateTime and endDateTime are required")
	}

	path := "/me/calendarView"
	if opts.CalendarID != "" {
		path = fmt.Sprintf("/me/calendars/%s/calendarView", url.PathEscape(opts.CalendarID))
	}

	params := url.Values{}
	params.Set("startDateTime", opts.StartDateTime)
	params.Set("endDateTime", opts.EndDateTime)
	params.Set("$orderby", "start/dateTime")
	if opts.Top > 0 {
		params.Set("$top", fmt.Sprintf("%d", opts.Top))
	}

	var events []*Event
	next := path + "?" + params.Encode()
	for page := 0; next != "" && page < maxPages; page++ {
		data, err := c.Get(ctx, next)
		if err != nil {
			return nil, err
		}

		var ep eventPage
		if err := json.Unmarshal(data, &ep); err != nil {
			return nil, fmt.Errorf("failed to unmarshal events: %w", err)
		}

		events = append(events, ep.Value...)
		next = ep.NextLink
	}

	return events, nil
}

// ListCalendars retrieves the user's calendars.
func (c *Client) ListCalendars(ctx context.Context) ([]*Calendar, error) {
	data, err := c.Get(ctx, "/me/calendars")
	if err != nil {
		return nil, err
	}

	var cp calendarPage
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal calendars: %w", err)
	}

	return cp.Value, nil
}

// GetEvent retrieves a single event by id, optionally from a specific
// calendar.
func (c *Client) GetEvent(ctx context.Context, eventID, calendarID string) (*Event, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event ID is required")
	}

	path := fmt.Sprintf("/me/events/%s", url.PathEscape(eventID))
	if calendarID != "" {
		path = fmt.Sprintf("/me/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	}

	data, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
