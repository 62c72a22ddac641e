// Package event defines the structured events emitted by the delivery
// engine. These are the public API contract: any consumer (the journal,
// webhooks, custom pipelines) imports this package to receive and process
// image lifecycle reports.
package event

// Type is the kind of lifecycle event observed for a managed image.
type Type string

const (
	TypeAttach          Type = "attach"           // handlers wired to a marked image
	TypeEdgeFailure     Type = "edge_failure"     // edge fetch failed, source swapped to origin
	TypeOriginRecovered Type = "origin_recovered" // origin load succeeded after an edge failure
	TypeImageFailed     Type = "image_failed"     // origin also failed, terminal state
	TypeCacheWarmed     Type = "cache_warmed"     // background warming request fired
	TypeSweepDone       Type = "sweep_done"       // reconciler sweep terminated
)

// Event is a single image lifecycle report.
type Event struct {
	ID        string `json:"id"`                   // UUID
	PageID    string `json:"page_id"`              // stable identifier provided by caller
	PageURL   string `json:"page_url"`
	ImageID   string `json:"image_id,omitempty"`   // per-page attach identifier
	Type      Type   `json:"type"`
	EdgeURL   string `json:"edge_url,omitempty"`   // rewritten URL at failure time
	OriginURL string `json:"origin_url,omitempty"` // decoded origin URL
	Seq       uint64 `json:"seq"`                  // monotonically increasing per page
	Timestamp int64  `json:"timestamp"`            // epoch milliseconds
}
