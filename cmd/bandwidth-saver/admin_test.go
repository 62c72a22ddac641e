package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/img-pro/bandwidth-saver-sub002/event"
	"github.com/img-pro/bandwidth-saver-sub002/journal"
	"github.com/img-pro/bandwidth-saver-sub002/watch"
)

func newTestRouter(t *testing.T, passwordHash string) http.Handler {
	t.Helper()

	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })

	if err := j.Record(context.Background(), event.Event{
		ID:     "ev-1",
		PageID: "page-1",
		Type:   event.TypeEdgeFailure,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	w := watch.New(&watch.Config{}, nil)
	return newAdminRouter(w, j, passwordHash)
}

func TestAdminHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestAdminEvents(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(t, ""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var events []event.Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events: got %d, want 1", len(events))
	}
	if events[0].ID != "ev-1" {
		t.Errorf("event ID: got %q, want %q", events[0].ID, "ev-1")
	}
}

func TestAdminBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	srv := httptest.NewServer(newTestRouter(t, string(hash)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with credentials: got %d, want %d", resp.StatusCode, http.StatusOK)
	}

	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Health stays open without credentials.
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
