package libgraph

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(server *httptest.Server) *Client {
	client := NewClient("test-token")
	client.SetBaseURL(server.URL)
	return client
}

func TestGetAttachesBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Expected Authorization header with Bearer token, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	data, err := client.Get(context.Background(), "/me")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !strings.Contains(string(data), "ok") {
		t.Errorf("Unexpected body: %s", data)
	}
}

func TestGetAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": "ErrorAccessDenied"}}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Get(context.Background(), "/me/messages")
	if err == nil {
		t.Fatal("Expected error for 403 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", apiErr.StatusCode)
	}
	if !strings.Contains(apiErr.Error(), "403") {
		t.Errorf("Error message should include status code: %s", apiErr.Error())
	}
	if !strings.Contains(apiErr.Error(), "ErrorAccessDenied") {
		t.Errorf("Error message should include response body: %s", apiErr.Error())
	}
}

func TestGetAPIErrorTruncatesBody(t *testing.T) {
	long := strings.Repeat("x", 2000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.Get(context.Background(), "/me")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if len(apiErr.Body) > maxErrorBody+3 {
		t.Errorf("Expected body truncated to %d bytes, got %d", maxErrorBody, len(apiErr.Body))
	}
	if !strings.HasSuffix(apiErr.Body, "...") {
		t.Errorf("Truncated body should end with ellipsis: %q", apiErr.Body[len(apiErr.Body)-10:])
	}
}

func TestGetAbsoluteURL(t *testing.T) {
	// Paging next-links are absolute URLs and must be used as-is.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/next/page" {
			t.Errorf("Expected path /next/page, got %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	if _, err := client.Get(context.Background(), server.URL+"/next/page"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
}
