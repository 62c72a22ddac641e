// Package reconcile detects lazily-loaded images that failed silently.
//
// A browser that cached a failed edge response can report a lazy image as
// complete with a natural width of zero without ever firing the error
// event; the failure came from the HTTP cache, not from a fresh fetch.
// No DOM event exists for this condition, so the only reliable detection
// is a polling sweep. The sweep is bounded: it self-terminates when no
// unresolved candidates remain or after a hard round ceiling, so a
// permanently stuck image never keeps a timer alive for the life of the
// page.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/img-pro/bandwidth-saver-sub002/fallback"
)

// Candidate is one lazy managed image with its observed load state.
type Candidate struct {
	Element      fallback.Element
	Complete     bool
	NaturalWidth int
}

// Scanner lists the lazy managed images still worth sweeping: marked,
// lazy-loading, and not yet in a fallback or terminal stage. Scanners only
// read element state; all writes go through the fallback machine.
type Scanner interface {
	Scan(ctx context.Context) ([]Candidate, error)
}

// Handler receives an element the sweep classified as silently failed.
type Handler func(ctx context.Context, el fallback.Element)

// Defaults, overridable per Sweeper.
const (
	DefaultInterval  = 2 * time.Second
	DefaultMaxRounds = 10
)

// Sweeper runs the bounded polling sweep. Start while running is a no-op;
// Kick resets the round counter and restarts the sweep if it had stopped.
type Sweeper struct {
	scanner   Scanner
	handler   Handler
	interval  time.Duration
	maxRounds int
	logger    *slog.Logger
	onDone    func(rounds, flagged int)

	mu      sync.Mutex
	running bool
	rounds  int
	flagged int
	stop    chan struct{}
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval sets the sweep interval. Default: 2s.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) { s.interval = d }
}

// WithMaxRounds sets the hard round ceiling. Default: 10.
func WithMaxRounds(n int) Option {
	return func(s *Sweeper) { s.maxRounds = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithDoneFunc sets a callback invoked when a sweep terminates, with the
// number of rounds run and images flagged.
func WithDoneFunc(fn func(rounds, flagged int)) Option {
	return func(s *Sweeper) { s.onDone = fn }
}

// NewSweeper creates a Sweeper routing silent failures into handler.
func NewSweeper(scanner Scanner, handler Handler, opts ...Option) *Sweeper {
	s := &Sweeper{
		scanner:   scanner,
		handler:   handler,
		interval:  DefaultInterval,
		maxRounds: DefaultMaxRounds,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start begins the sweep. Idempotent: starting a running sweep changes
// nothing.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked(ctx)
}

// Kick resets the round counter for freshly appeared lazy candidates and
// restarts the sweep if it had already stopped.
func (s *Sweeper) Kick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = 0
	s.startLocked(ctx)
}

// Running reports whether a sweep is in progress.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) startLocked(ctx context.Context) {
	if s.running {
		return
	}
	s.running = true
	s.rounds = 0
	s.flagged = 0
	s.stop = make(chan struct{})
	go s.loop(ctx, s.stop)
}

func (s *Sweeper) loop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finish("context cancelled")
			return
		case <-stop:
			return
		case <-ticker.C:
			if s.sweep(ctx) {
				return
			}
		}
	}
}

// sweep runs one round. Returns true when the sweep terminated.
func (s *Sweeper) sweep(ctx context.Context) bool {
	cands, err := s.scanner.Scan(ctx)
	if err != nil {
		s.logger.Warn("reconcile: scan failed", "error", err)
		// A failed scan consumes a round but never counts as "all
		// resolved": the next tick retries, and the round ceiling bounds
		// a permanently broken page.
		s.mu.Lock()
		s.rounds++
		rounds := s.rounds
		s.mu.Unlock()
		if rounds >= s.maxRounds {
			s.finish("round ceiling reached")
			return true
		}
		return false
	}

	unresolved := 0
	for _, c := range cands {
		switch {
		case c.Complete && c.NaturalWidth == 0:
			// Complete but nothing decoded: the cached-failure class.
			s.mu.Lock()
			s.flagged++
			s.mu.Unlock()
			if s.handler != nil {
				s.handler(ctx, c.Element)
			}
		case !c.Complete:
			unresolved++
		}
	}

	s.mu.Lock()
	s.rounds++
	rounds := s.rounds
	s.mu.Unlock()

	if unresolved == 0 {
		s.finish("all candidates resolved")
		return true
	}
	if rounds >= s.maxRounds {
		s.finish("round ceiling reached")
		return true
	}
	return false
}

func (s *Sweeper) finish(reason string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	rounds, flagged := s.rounds, s.flagged
	close(s.stop)
	s.mu.Unlock()

	s.logger.Debug("reconcile: sweep done",
		"reason", reason, "rounds", rounds, "flagged", flagged)
	if s.onDone != nil {
		s.onDone(rounds, flagged)
	}
}
