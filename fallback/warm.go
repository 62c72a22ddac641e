package fallback

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Warmer fires advisory GET requests at the edge worker so the next real
// visitor gets a cache hit. Warming is an optimisation, never a
// correctness requirement: responses are discarded, failures are logged at
// debug level and otherwise ignored, and there is no retry.
type Warmer struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// WarmerOption configures a Warmer.
type WarmerOption func(*Warmer)

// WithWarmClient sets a custom HTTP client.
func WithWarmClient(c *http.Client) WarmerOption {
	return func(w *Warmer) { w.client = c }
}

// WithWarmTimeout bounds a single warming request. Default: 30s.
func WithWarmTimeout(d time.Duration) WarmerOption {
	return func(w *Warmer) { w.timeout = d }
}

// WithWarmLogger sets a custom logger.
func WithWarmLogger(l *slog.Logger) WarmerOption {
	return func(w *Warmer) { w.logger = l }
}

// NewWarmer creates a Warmer.
func NewWarmer(opts ...WarmerOption) *Warmer {
	w := &Warmer{
		client:  &http.Client{Timeout: 30 * time.Second},
		timeout: 30 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Warm fires a background GET against url and returns immediately. The
// request deliberately runs on its own context, not the page's: a closed
// tab must not cancel an in-flight warm.
func (w *Warmer) Warm(url string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			w.logger.Debug("warm: new request", "url", url, "error", err)
			return
		}
		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Debug("warm: request failed", "url", url, "error", err)
			return
		}
		// Drain so the connection can be reused; the body itself is noise.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		w.logger.Debug("warm: done", "url", url, "status", resp.StatusCode)
	}()
}
