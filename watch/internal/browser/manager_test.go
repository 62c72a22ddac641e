package browser

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-rod/rod"
)

func quietManager() *Manager {
	return NewManager(Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestRecycleCallbacksCanUseManager(t *testing.T) {
	// Page agents detach and reattach from inside the recycle callbacks,
	// and reattaching reads Browser(). The callbacks therefore run with
	// the manager lock released.
	m := quietManager()
	fresh := &rod.Browser{}
	m.launch = func() (*rod.Browser, error) { return fresh, nil }

	var before, after bool
	m.SetRecycleCallback(&RecycleCallback{
		BeforeRecycle: func() {
			m.Browser() // must not block
			before = true
		},
		AfterRecycle: func(b *rod.Browser) {
			if got := m.Browser(); got != b {
				t.Errorf("Browser() during AfterRecycle: got %p, want the fresh handle %p", got, b)
			}
			after = true
		},
	})

	done := make(chan error, 1)
	go func() { done <- m.Recycle() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("recycle: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recycle blocked: callback deadlocked against the manager lock")
	}

	if !before || !after {
		t.Errorf("callbacks: before=%v after=%v, want both invoked", before, after)
	}
	if m.Browser() != fresh {
		t.Errorf("Browser(): got %p, want the relaunched handle", m.Browser())
	}
}

func TestRecycleAfterCloseRefused(t *testing.T) {
	m := quietManager()
	m.launch = func() (*rod.Browser, error) { return &rod.Browser{}, nil }
	m.Close()

	if err := m.Recycle(); err == nil {
		t.Error("recycle on a closed manager: got nil error, want refusal")
	}
}
