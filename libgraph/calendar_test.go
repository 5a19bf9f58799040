package libgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCalendarView(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendarView" {
			t.Errorf("Expected path /me/calendarView, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("startDateTime") != "2026-08-31T00:00:00Z" {
			t.Errorf("Unexpected startDateTime: %s", q.Get("startDateTime"))
		}
		if q.Get("endDateTime") != "2026-09-01T00:00:00Z" {
			t.Errorf("Unexpected endDateTime: %s", q.Get("endDateTime"))
		}
		if q.Get("$orderby") != "start/dateTime" {
			t.Errorf("Unexpected $orderby: %s", q.Get("$orderby"))
		}
		if q.Get("$top") != "10" {
			t.Errorf("Unexpected $top: %s", q.Get("$top"))
		}

		json.NewEncoder(w).Encode(eventPage{
			Value: []*Event{
				{ID: "event-1", Subject: "Standup", Start: &DateTimeTimeZone{DateTime: "2026-08-31T09:00:00", TimeZone: "UTC"}},
				{ID: "event-2", Subject: "Review"},
			},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	events, err := client.CalendarView(context.Background(), &CalendarViewOptions{
		StartDateTime: "2026-08-31T00:00:00Z",
		EndDateTime:   "2026-09-01T00:00:00Z",
		Top:           10,
	})
	if err != nil {
		t.Fatalf("CalendarView failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Subject != "Standup" {
		t.Errorf("Expected subject Standup, got %s", events[0].Subject)
	}
	if events[0].Start.TimeZone != "UTC" {
		t.Errorf("Expected timezone UTC, got %s", events[0].Start.TimeZone)
	}
}

func TestCalendarViewFollowsPaging(t *testing.T) {
	var server *httptest.Server
	requests := 0
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		switch r.URL.Path {
		case "/me/calendarView":
			json.NewEncoder(w).Encode(eventPage{
				Value:    []*Event{{ID: "event-1"}},
				NextLink: server.URL + "/me/calendarView/page2",
			})
		case "/me/calendarView/page2":
			json.NewEncoder(w).Encode(eventPage{
				Value: []*Event{{ID: "event-2"}, {ID: "event-3"}},
			})
		default:
			t.Errorf("Unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server)
	events, err := client.CalendarView(context.Background(), &CalendarViewOptions{
		StartDateTime: "2026-08-31T00:00:00Z",
		EndDateTime:   "2026-09-07T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CalendarView failed: %v", err)
	}
	if requests != 2 {
		t.Errorf("Expected 2 requests, got %d", requests)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events across pages, got %d", len(events))
	}
	if events[2].ID != "event-3" {
		t.Errorf("Expected event-3 last, got %s", events[2].ID)
	}
}

func TestCalendarViewWithCalendarID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendars/cal-1/calendarView" {
			t.Errorf("Expected calendar-scoped path, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(eventPage{})
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.CalendarView(context.Background(), &CalendarViewOptions{
		StartDateTime: "2026-08-31T00:00:00Z",
		EndDateTime:   "2026-09-01T00:00:00Z",
		CalendarID:    "cal-1",
	})
	if err != nil {
		t.Fatalf("CalendarView failed: %v", err)
	}
}

func TestCalendarViewRequiresWindow(t *testing.T) {
	client := NewClient("test-token")
	cases := []*CalendarViewOptions{
		nil,
		{EndDateTime: "2026-09-01T00:00:00Z"},
		{StartDateTime: "2026-08-31T00:00:00Z"},
	}
	for i, opts := range cases {
		if _, err := client.CalendarView(context.Background(), opts); err == nil {
			t.Errorf("Case %d: expected error for missing window", i)
		}
	}
}

func TestListCalendars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendars" {
			t.Errorf("Expected path /me/calendars, got %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"value": [{"id": "cal-1", "name": "Calendar"}, {"id": "cal-2", "name": "Work"}]}`)
	}))
	defer server.Close()

	client := newTestClient(server)
	calendars, err := client.ListCalendars(context.Background())
	if err != nil {
		t.Fatalf("ListCalendars failed: %v", err)
	}
	if len(calendars) != 2 {
		t.Fatalf("Expected 2 calendars, got %d", len(calendars))
	}
	if calendars[1].Name != "Work" {
		t.Errorf("Expected name Work, got %s", calendars[1].Name)
	}
}

func TestGetEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/events/event-1" {
			t.Errorf("Expected path /me/events/event-1, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(&Event{
			ID:      "event-1",
			Subject: "Planning",
			Body:    &ItemBody{ContentType: "html", Content: "<p>agenda</p>"},
		})
	}))
	defer server.Close()

	client := newTestClient(server)
	event, err := client.GetEvent(context.Background(), "event-1", "")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if event.Subject != "Planning" {
		t.Errorf("Expected subject Planning, got %s", event.Subject)
	}
	if event.Body.ContentType != "html" {
		t.Errorf("Expected html body, got %s", event.Body.ContentType)
	}
}

func TestGetEventWithCalendarID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me/calendars/cal-1/events/event-1" {
			t.Errorf("Expected calendar-scoped path, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(&Event{ID: "event-1"})
	}))
	defer server.Close()

	client := newTestClient(server)
	if _, err := client.GetEvent(context.Background(), "event-1", "cal-1"); err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
}

func TestGetEventRequiresID(t *testing.T) {
	client := NewClient("test-token")
	if _, err := client.GetEvent(context.Background(), "", ""); err == nil {
		t.Error("Expected error for empty event ID")
	}
}
