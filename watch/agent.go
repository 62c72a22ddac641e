package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/img-pro/bandwidth-saver-sub002/event"
	"github.com/img-pro/bandwidth-saver-sub002/fallback"
	"github.com/img-pro/bandwidth-saver-sub002/reconcile"
	"github.com/img-pro/bandwidth-saver-sub002/watch/internal/browser"
)

// agent runs the delivery engine for a single page: the initial attach
// pass, the binding listener fed by the injected script, the fallback
// state machine, and the lazy-load sweeper.
type agent struct {
	tab     *browser.Tab
	machine *fallback.Machine
	sweeper *reconcile.Sweeper
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	nextID   atomic.Uint64
	attached atomic.Uint64
}

func newAgent(ctx context.Context, tab *browser.Tab, cfg *Config, sink event.Sink, warmer *fallback.Warmer, logger *slog.Logger) *agent {
	actx, cancel := context.WithCancel(ctx)
	a := &agent{
		tab:    tab,
		logger: logger,
		ctx:    actx,
		cancel: cancel,
	}

	a.machine = fallback.NewMachine(fallback.Config{
		PageID:  tab.PageID,
		PageURL: tab.PageURL,
		Warmer:  warmer,
		Sink:    sink,
		Rearm:   a.rearmOrigin,
		Logger:  logger,
	})

	a.sweeper = reconcile.NewSweeper(
		&pageScanner{a: a},
		func(ctx context.Context, el fallback.Element) {
			a.machine.HandleFailure(ctx, el)
		},
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithMaxRounds(cfg.Reconcile.MaxRounds),
		reconcile.WithLogger(logger),
		reconcile.WithDoneFunc(func(rounds, flagged int) {
			a.machine.NoteSweepDone(a.ctx, rounds, flagged)
		}),
	)

	return a
}

// start wires the page. The injected observer and the sweeper are both
// best-effort: if either fails to come up, the attach pass alone is the
// safe baseline and has already run.
func (a *agent) start() error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(a.tab.Page); err != nil {
		a.logger.Warn("agent: add binding failed (may already exist)", "error", err)
	}
	go a.listenBinding()

	lazy, err := a.attachPass(a.ctx)
	if err != nil {
		return fmt.Errorf("agent: attach pass: %w", err)
	}

	if _, err := a.tab.Page.Eval(watcherJS); err != nil {
		a.logger.Warn("agent: inject observer failed, dynamic content unwatched",
			"url", a.tab.PageURL, "error", err)
	}

	if lazy > 0 {
		a.sweeper.Start(a.ctx)
	}

	a.logger.Info("agent: watching page",
		"url", a.tab.PageURL, "id", a.tab.PageID, "images", a.attached.Load(), "lazy", lazy)
	return nil
}

func (a *agent) stop() {
	a.cancel()
	a.tab.Close()
}

// attachPass wires every marked image not yet wired: assigns its ID, arms
// one-shot load/error reporting, and classifies images that are already
// complete (served instantly from the HTTP cache) since their events will
// never fire. Revisits are cheap: wired elements never match the query.
func (a *agent) attachPass(ctx context.Context) (lazyFound int, err error) {
	page := a.tab.Page.Context(ctx)
	sel := "img[" + fallback.AttrMarker + "]:not([" + fallback.AttrWired + "])"
	els, err := page.Sleeper(rod.NotFoundSleeper).Elements(sel)
	if err != nil {
		return 0, err
	}

	for _, el := range els {
		id := strconv.FormatUint(a.nextID.Add(1), 10)
		pe := &pageElement{el: el}

		pe.SetAttr(fallback.AttrImageID, id)
		pe.SetAttr(fallback.AttrWired, "1")

		if _, err := el.Eval(armInitialJS, id); err != nil {
			a.logger.Warn("agent: arm listeners", "image", id, "error", err)
			continue
		}
		a.attached.Add(1)
		a.machine.HandleAttach(ctx, pe)

		if v, _ := pe.Attr("loading"); v == "lazy" {
			lazyFound++
		}

		res, err := el.Eval(loadStateJS)
		if err != nil {
			continue
		}
		if res.Value.Get("complete").Bool() {
			if res.Value.Get("naturalWidth").Int() == 0 {
				a.machine.HandleFailure(ctx, pe)
			} else {
				a.machine.HandleSuccess(ctx, pe)
			}
		}
	}
	return lazyFound, nil
}

// rearmOrigin is the machine's RearmFunc: one-shot handlers for the
// origin load the machine just started.
func (a *agent) rearmOrigin(_ context.Context, el fallback.Element) error {
	pe, ok := el.(*pageElement)
	if !ok {
		return nil
	}
	id, _ := pe.Attr(fallback.AttrImageID)
	_, err := pe.el.Eval(armOriginJS, id)
	return err
}

type report struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Count int    `json:"count"`
	Lazy  bool   `json:"lazy"`
}

// listenBinding receives reports from the page via Runtime.bindingCalled.
func (a *agent) listenBinding() {
	page := a.tab.Page
	page.Context(a.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var reports []report
		if err := json.Unmarshal([]byte(e.Payload), &reports); err != nil {
			a.logger.Warn("agent: parse binding payload", "error", err)
			return
		}
		for _, r := range reports {
			a.dispatch(r)
		}
	})()
}

func (a *agent) dispatch(r report) {
	ctx := a.ctx

	if r.Op == "inserted" {
		lazy, err := a.attachPass(ctx)
		if err != nil {
			a.logger.Warn("agent: attach pass after insertion", "error", err)
		}
		if r.Lazy || lazy > 0 {
			a.sweeper.Kick(ctx)
		}
		return
	}

	el, err := a.elementByID(r.ID)
	if err != nil {
		// The element left the DOM; its state left with it.
		a.logger.Debug("agent: reported element gone", "image", r.ID)
		return
	}
	pe := &pageElement{el: el}

	switch r.Op {
	case "error":
		a.machine.HandleFailure(ctx, pe)
	case "load", "origin-load":
		a.machine.HandleSuccess(ctx, pe)
	case "origin-error":
		a.machine.HandleOriginFailure(ctx, pe)
	default:
		a.logger.Debug("agent: unknown report op", "op", r.Op)
	}
}

func (a *agent) elementByID(id string) (*rod.Element, error) {
	sel := fmt.Sprintf(`img[%s="%s"]`, fallback.AttrImageID, id)
	return a.tab.Page.Context(a.ctx).Sleeper(rod.NotFoundSleeper).Element(sel)
}

// pageScanner feeds the sweeper with the page's lazy edge-stage images.
type pageScanner struct {
	a *agent
}

func (s *pageScanner) Scan(ctx context.Context) ([]reconcile.Candidate, error) {
	res, err := s.a.tab.Page.Context(ctx).Eval(scanJS)
	if err != nil {
		return nil, err
	}

	var out []reconcile.Candidate
	for _, item := range res.Value.Arr() {
		el, err := s.a.elementByID(item.Get("id").Str())
		if err != nil {
			continue
		}
		out = append(out, reconcile.Candidate{
			Element:      &pageElement{el: el},
			Complete:     item.Get("complete").Bool(),
			NaturalWidth: item.Get("naturalWidth").Int(),
		})
	}
	return out, nil
}
