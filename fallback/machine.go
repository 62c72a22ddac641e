package fallback

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/img-pro/bandwidth-saver-sub002/edgeurl"
	"github.com/img-pro/bandwidth-saver-sub002/event"
)

// Machine is the per-page fallback state machine. It is the single writer
// of element state; every transition checks the current stage first, so
// redundant triggers (inline handler, script listener, reconciler sweep)
// collapse into one transition and the rest are no-ops. Transitions are
// serialized under one mutex: the stage check and the writes it guards
// must be atomic, or two triggers racing through the element round-trip
// would both observe the old stage and both transition.
//
// Nothing here returns an error to the page: URL-parsing failures degrade
// to "use the URL unchanged", element I/O failures are logged and dropped.
type Machine struct {
	pageID  string
	pageURL string
	warmer  *Warmer
	sink    event.Sink
	rearm   RearmFunc
	logger  *slog.Logger
	seq     atomic.Uint64

	mu sync.Mutex // serializes every stage transition
}

// RearmFunc attaches one-shot load/error handlers for the element's
// current load. The Machine calls it right after swapping the source to
// origin, so the outcome of that new load, and only that load, is
// reported back through HandleSuccess or HandleOriginFailure.
type RearmFunc func(ctx context.Context, el Element) error

// Config for creating a Machine.
type Config struct {
	PageID  string
	PageURL string
	Warmer  *Warmer   // nil disables warming
	Sink    event.Sink // nil drops events
	Rearm   RearmFunc // nil skips handler re-attachment
	Logger  *slog.Logger
}

// NewMachine creates a Machine for one page.
func NewMachine(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = event.NewCallback(nil)
	}
	return &Machine{
		pageID:  cfg.PageID,
		pageURL: cfg.PageURL,
		warmer:  cfg.Warmer,
		sink:    cfg.Sink,
		rearm:   cfg.Rearm,
		logger:  cfg.Logger,
	}
}

// HandleAttach records that handlers were wired to a managed image. No
// state changes: attach bookkeeping belongs to the watcher.
func (m *Machine) HandleAttach(ctx context.Context, el Element) {
	m.emit(ctx, event.TypeAttach, el, "", el.Src())
}

// NoteSweepDone records that a reconciler sweep terminated.
func (m *Machine) NoteSweepDone(ctx context.Context, rounds, flagged int) {
	m.logger.Debug("fallback: sweep done",
		"page", m.pageID, "rounds", rounds, "flagged", flagged)
	m.emitBare(ctx, event.TypeSweepDone)
}

// HandleFailure routes an edge load failure into the state machine. This
// is the entry point every trigger source shares, and it is safe to call
// redundantly: only the Edge stage transitions. An element already at the
// Origin or Failed stage is left untouched; whichever observer of the
// same failure arrived first has already done the work.
func (m *Machine) HandleFailure(ctx context.Context, el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if StageOf(el) != StageEdge {
		return
	}

	src := el.Src()
	origin := edgeurl.Decode(src, edgeurl.MinSegments)

	// A responsive source set would keep re-resolving to edge URLs, so it
	// goes before the swap.
	el.RemoveAttr("srcset")
	el.RemoveAttr("sizes")

	el.SetAttr(AttrFallbackAt, strconv.FormatInt(time.Now().UnixMilli(), 10))

	if err := el.SetAttr(AttrStage, string(StageOrigin)); err != nil {
		m.logger.Warn("fallback: set stage origin", "error", err)
		return
	}
	if err := el.SetAttr("src", origin); err != nil {
		m.logger.Warn("fallback: swap src", "url", origin, "error", err)
		return
	}

	if m.rearm != nil {
		if err := m.rearm(ctx, el); err != nil {
			m.logger.Warn("fallback: rearm handlers", "error", err)
		}
	}

	m.logger.Info("fallback: edge failure, swapped to origin",
		"page", m.pageID, "edge", src, "origin", origin)
	m.emit(ctx, event.TypeEdgeFailure, el, src, origin)
}

// HandleSuccess reports a load success for the origin source. The element
// gains the loaded class, and when a worker domain is present a one-shot
// background warming request is fired. Duplicate reports are no-ops.
func (m *Machine) HandleSuccess(ctx context.Context, el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if StageOf(el) != StageOrigin {
		return
	}
	if _, done := el.Attr(AttrRecovered); done {
		return
	}
	el.SetAttr(AttrRecovered, "1")

	if err := el.AddClass(ClassLoaded); err != nil {
		m.logger.Debug("fallback: add loaded class", "error", err)
	}
	origin := el.Src()
	m.logger.Info("fallback: origin recovered", "page", m.pageID, "origin", origin)
	m.emit(ctx, event.TypeOriginRecovered, el, "", origin)

	worker, ok := el.Attr(AttrWorker)
	if !ok || worker == "" || m.warmer == nil {
		return
	}
	warmURL := edgeurl.Encode(origin, worker)
	m.warmer.Warm(warmURL)
	m.emit(ctx, event.TypeCacheWarmed, el, warmURL, origin)
}

// HandleOriginFailure reports that the origin load failed too. Terminal:
// the loaded class is removed and no further source is attempted, leaving
// the browser's broken-image rendering. Only the Origin stage transitions;
// anything else is a duplicate report and a no-op.
func (m *Machine) HandleOriginFailure(ctx context.Context, el Element) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if StageOf(el) != StageOrigin {
		return
	}

	el.RemoveClass(ClassLoaded)
	if err := el.SetAttr(AttrStage, string(StageFailed)); err != nil {
		m.logger.Warn("fallback: set stage failed", "error", err)
		return
	}
	m.logger.Warn("fallback: origin failed too, giving up",
		"page", m.pageID, "origin", el.Src())
	m.emit(ctx, event.TypeImageFailed, el, "", el.Src())
}

func (m *Machine) emit(ctx context.Context, typ event.Type, el Element, edgeURL, originURL string) {
	imageID, _ := el.Attr(AttrImageID)
	m.send(ctx, typ, imageID, edgeURL, originURL)
}

func (m *Machine) emitBare(ctx context.Context, typ event.Type) {
	m.send(ctx, typ, "", "", "")
}

func (m *Machine) send(ctx context.Context, typ event.Type, imageID, edgeURL, originURL string) {
	e := event.Event{
		ID:        uuid.NewString(),
		PageID:    m.pageID,
		PageURL:   m.pageURL,
		ImageID:   imageID,
		Type:      typ,
		EdgeURL:   edgeURL,
		OriginURL: originURL,
		Seq:       m.seq.Add(1),
		Timestamp: time.Now().UnixMilli(),
	}
	if err := m.sink.Send(ctx, e); err != nil {
		m.logger.Warn("fallback: send event failed", "type", typ, "error", err)
	}
}
