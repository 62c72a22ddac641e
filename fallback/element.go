// Package fallback owns the lifecycle of a single managed image's source
// through edge failure and origin recovery.
//
// State lives on the element itself, in data attributes, never in an
// external registry: when the element leaves the document its state goes
// with it, and there is nothing to clean up. The Machine is the single
// writer of that state. The reconciler and the watcher only read it to
// decide whether to call in.
package fallback

// Marker attributes produced by the server-side rewriter.
const (
	AttrMarker = "data-bsr-cdn"    // identifies the image as CDN-managed
	AttrWorker = "data-bsr-worker" // edge/worker host for cache warming
)

// State attributes owned by this package.
const (
	AttrStage      = "data-bsr-stage"       // "" | "origin" | "failed"
	AttrWired      = "data-bsr-wired"       // handlers attached (attach-pass guard)
	AttrFallbackAt = "data-bsr-fallback-at" // epoch ms, diagnostic only
	AttrRecovered  = "data-bsr-recovered"   // origin success already processed
	AttrImageID    = "data-bsr-id"          // per-page attach identifier
)

// ClassLoaded is added once the origin source has loaded, so themes can
// style recovered images.
const ClassLoaded = "bsr-loaded"

// Stage is the source stage of a managed image.
type Stage string

const (
	StageEdge   Stage = ""       // initial: src points at the edge URL
	StageOrigin Stage = "origin" // src swapped to the origin URL
	StageFailed Stage = "failed" // terminal: origin failed too
)

// Element is the handle to a managed <img>. The watch package implements it
// over a live CDP element; tests implement it in memory.
//
// Implementations must tolerate redundant calls: the Machine may touch the
// same element from several racing triggers.
type Element interface {
	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)
	SetAttr(name, value string) error
	RemoveAttr(name string) error

	AddClass(name string) error
	RemoveClass(name string) error

	// Src is the element's current source: currentSrc when the browser
	// resolved a responsive candidate, otherwise the src attribute.
	Src() string
}

// StageOf reads the current source stage. An absent or unknown attribute
// means the image is still at the edge stage.
func StageOf(el Element) Stage {
	v, ok := el.Attr(AttrStage)
	if !ok {
		return StageEdge
	}
	switch Stage(v) {
	case StageOrigin, StageFailed:
		return Stage(v)
	default:
		return StageEdge
	}
}
