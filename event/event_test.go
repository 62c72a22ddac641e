package event

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMarshalRoundtrip(t *testing.T) {
	e := &Event{
		ID:        "0194f1f0-0000-7000-8000-000000000001",
		PageID:    "page-1",
		PageURL:   "https://shop.example/products",
		ImageID:   "7",
		Type:      TypeEdgeFailure,
		EdgeURL:   "https://edge.tld/origin.tld/a.jpg",
		OriginURL: "https://origin.tld/a.jpg",
		Seq:       42,
		Timestamp: 1708700000000,
	}

	data, err := MarshalEvent(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatal(err)
	}

	if got.ID != e.ID {
		t.Errorf("ID: got %q, want %q", got.ID, e.ID)
	}
	if got.Type != e.Type {
		t.Errorf("Type: got %q, want %q", got.Type, e.Type)
	}
	if got.Seq != e.Seq {
		t.Errorf("Seq: got %d, want %d", got.Seq, e.Seq)
	}
}

func TestStdoutSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)

	if err := s.Send(context.Background(), Event{ID: "a", Type: TypeAttach}); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(context.Background(), Event{ID: "b", Type: TypeCacheWarmed}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2", len(lines))
	}
	if !strings.Contains(lines[1], "cache_warmed") {
		t.Errorf("second line missing type: %q", lines[1])
	}
}

func TestRouterFanOutContinuesPastErrors(t *testing.T) {
	failed := errors.New("sink down")
	var delivered int

	bad := NewCallback(func(context.Context, Event) error { return failed })
	good := NewCallback(func(context.Context, Event) error {
		delivered++
		return nil
	})

	r := NewRouter(nil, bad, good)
	err := r.Send(context.Background(), Event{ID: "x"})

	if !errors.Is(err, failed) {
		t.Errorf("Send: got %v, want first sink error", err)
	}
	if delivered != 1 {
		t.Errorf("delivered: got %d, want 1 (good sink must still run)", delivered)
	}
}

func TestWebhookRetriesThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(2))
	if err := wh.Send(context.Background(), Event{ID: "x", Type: TypeImageFailed}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: got %d, want 2", calls)
	}
}

func TestWebhookExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, WithWebhookRetries(0))
	if err := wh.Send(context.Background(), Event{ID: "x"}); err == nil {
		t.Fatal("Send: expected error after exhausted retries")
	}
}
