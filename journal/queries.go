package journal

import (
	"context"
	"fmt"

	"github.com/img-pro/bandwidth-saver-sub002/event"
)

// Record stores one event. Duplicate IDs are ignored: the fan-out router
// may retry a partially failed send.
func (j *Journal) Record(ctx context.Context, e event.Event) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events
			(id, page_id, page_url, image_id, type, edge_url, origin_url, seq, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PageID, e.PageURL, e.ImageID, string(e.Type),
		e.EdgeURL, e.OriginURL, e.Seq, e.Timestamp)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Recent returns the latest n events, newest first.
func (j *Journal) Recent(ctx context.Context, n int) ([]event.Event, error) {
	if n <= 0 {
		n = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, page_id, page_url, image_id, type, edge_url, origin_url, seq, ts
		FROM events ORDER BY ts DESC, seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var e event.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.PageID, &e.PageURL, &e.ImageID, &typ,
			&e.EdgeURL, &e.OriginURL, &e.Seq, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Type = event.Type(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FailureCount is one origin URL with its edge-failure tally.
type FailureCount struct {
	OriginURL string `json:"origin_url"`
	Count     int64  `json:"count"`
	LastSeen  int64  `json:"last_seen"` // epoch milliseconds
}

// TopEdgeFailures returns the origin URLs that keep missing at the edge,
// most frequent first. These are the prime re-warming candidates.
func (j *Journal) TopEdgeFailures(ctx context.Context, n int) ([]FailureCount, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT origin_url, COUNT(*), MAX(ts)
		FROM events
		WHERE type = ? AND origin_url != ''
		GROUP BY origin_url
		ORDER BY COUNT(*) DESC, MAX(ts) DESC
		LIMIT ?`, string(event.TypeEdgeFailure), n)
	if err != nil {
		return nil, fmt.Errorf("journal: top failures: %w", err)
	}
	defer rows.Close()

	var out []FailureCount
	for rows.Next() {
		var fc FailureCount
		if err := rows.Scan(&fc.OriginURL, &fc.Count, &fc.LastSeen); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

// Stats returns event counts grouped by type.
func (j *Journal) Stats(ctx context.Context) (map[event.Type]int64, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM events GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("journal: stats: %w", err)
	}
	defer rows.Close()

	out := make(map[event.Type]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out[event.Type(typ)] = n
	}
	return out, rows.Err()
}

// Sink adapts the journal to the event.Sink interface so it plugs into the
// fan-out router like any other backend.
func (j *Journal) Sink() event.Sink {
	return event.NewCallback(j.Record)
}
