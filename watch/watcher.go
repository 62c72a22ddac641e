// Package watch attaches the delivery-resilience engine to live pages.
//
// A Watcher drives Chrome headless as a disposable component. For each
// configured page it runs an agent: an attach pass wires every marked
// image, an injected MutationObserver announces AJAX-inserted images, a
// bounded polling sweep catches lazy images whose cached failures never
// fire an error event, and every failure is routed into the fallback
// state machine. Emitted lifecycle events go to sinks (stdout, webhook,
// journal) for consumers to process.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/img-pro/bandwidth-saver-sub002/event"
	"github.com/img-pro/bandwidth-saver-sub002/fallback"
	"github.com/img-pro/bandwidth-saver-sub002/watch/internal/browser"
)

// Watcher is the top-level orchestrator. It manages the browser, the
// per-page agents, and the event sinks. Create one per daemon.
type Watcher struct {
	cfg    *Config
	mgr    *browser.Manager
	router *event.Router
	warmer *fallback.Warmer
	agents map[string]*agent
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a Watcher from configuration.
func New(cfg *Config, logger *slog.Logger, sinks ...event.Sink) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.ApplyDefaults()

	var warmer *fallback.Warmer
	if !cfg.Warm.Disabled {
		warmer = fallback.NewWarmer(
			fallback.WithWarmTimeout(cfg.Warm.Timeout),
			fallback.WithWarmLogger(logger),
		)
	}

	return &Watcher{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:       cfg.Browser.Remote,
			RecycleInterval: cfg.Browser.RecycleInterval,
			Logger:          logger,
		}),
		router: event.NewRouter(logger, sinks...),
		warmer: warmer,
		agents: make(map[string]*agent),
		logger: logger,
	}
}

// Start launches the browser and attaches to all configured pages.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("watch: start browser: %w", err)
	}

	w.mgr.SetRecycleCallback(&browser.RecycleCallback{
		BeforeRecycle: w.detachAll,
		AfterRecycle:  func(*rod.Browser) { w.reattachAll(ctx) },
	})

	for _, page := range w.cfg.Pages {
		if err := w.WatchPage(ctx, page); err != nil {
			w.logger.Error("watch: failed to attach page",
				"url", page.URL, "error", err)
		}
	}
	return nil
}

// WatchPage attaches the engine to a single page.
func (w *Watcher) WatchPage(ctx context.Context, pageCfg PageConfig) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watchPageLocked(ctx, pageCfg)
}

func (w *Watcher) watchPageLocked(ctx context.Context, pageCfg PageConfig) error {
	tab, err := browser.OpenTab(ctx, w.mgr, pageCfg.URL, pageCfg.ID, w.cfg.Browser.NavigateTimeout)
	if err != nil {
		return fmt.Errorf("watch: open tab: %w", err)
	}

	a := newAgent(ctx, tab, w.cfg, w.router, w.warmer, w.logger)
	if err := a.start(); err != nil {
		a.stop()
		return err
	}

	w.agents[pageCfg.ID] = a
	return nil
}

// Stop gracefully shuts down all agents, the sinks, and the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, a := range w.agents {
		a.stop()
		w.logger.Info("watch: stopped agent", "id", id)
	}
	w.agents = make(map[string]*agent)

	w.router.Close()
	w.mgr.Close()
}

// PageStatus summarises one attached page for the operator surface.
type PageStatus struct {
	PageID  string `json:"page_id"`
	PageURL string `json:"page_url"`
	Images  uint64 `json:"images"`   // marked images wired so far
	Sweep   bool   `json:"sweeping"` // reconciler currently running
}

// Status reports all attached pages.
func (w *Watcher) Status() []PageStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]PageStatus, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, PageStatus{
			PageID:  a.tab.PageID,
			PageURL: a.tab.PageURL,
			Images:  a.attached.Load(),
			Sweep:   a.sweeper.Running(),
		})
	}
	return out
}

func (w *Watcher) detachAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range w.agents {
		a.stop()
	}
}

func (w *Watcher) reattachAll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.agents = make(map[string]*agent)
	for _, page := range w.cfg.Pages {
		if err := w.watchPageLocked(ctx, page); err != nil {
			w.logger.Error("watch: reattach failed", "url", page.URL, "error", err)
		}
	}
}
