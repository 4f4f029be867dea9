package common

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestClient(srv *httptest.Server, attempts int) *Client {
	retry := fastRetry(attempts)
	return NewClient(ClientConfig{
		Provider:   "acme",
		HTTPClient: srv.Client(),
		UserAgent:  "test-agent",
		Retry:      &retry,
	})
}

func TestClientGetJSONSetsUserAgent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected user agent %q", got)
		}
		if got := r.Header.Get("X-Key"); got != "secret" {
			t.Errorf("missing custom header, got %q", got)
		}
		_, _ = io.WriteString(w, `{"name":"lm317"}`)
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	header := http.Header{}
	header.Set("X-Key", "secret")
	if err := newTestClient(srv, 1).GetJSON(context.Background(), srv.URL, header, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "lm317" {
		t.Fatalf("unexpected decoded name %q", out.Name)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != `{"q":"bc547"}` {
			t.Errorf("request body not replayed: %q", body)
		}
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newTestClient(srv, 3).PostJSON(context.Background(), srv.URL, nil, map[string]string{"q": "bc547"}, &out)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if !out.OK || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, calls=%d", calls.Load())
	}
}

func TestClientReturnsHTTPErrorWithoutRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, strings.Repeat("x", 2000), http.StatusUnauthorized)
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(srv, 3).GetJSON(context.Background(), srv.URL, nil, &out)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusUnauthorized || httpErr.Provider != "acme" {
		t.Fatalf("unexpected error fields: %+v", httpErr)
	}
	if len(httpErr.Body) > errorBodyLimit {
		t.Fatalf("error body not truncated: %d bytes", len(httpErr.Body))
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestClientDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>`)
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(srv, 1).PostForm(context.Background(), srv.URL, nil, "a=b", &out)
	if err == nil || !strings.Contains(err.Error(), "acme decode response") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
