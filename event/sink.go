package event

import "context"

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, in-process callback, SQLite).
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Func is called for each event (in-process, zero serialisation).
type Func func(ctx context.Context, e Event) error

// Callback delivers events via Go function calls. When the journal and the
// watcher live in the same binary, events travel as in-memory calls with
// zero serialisation overhead.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. A nil fn drops every event.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, e Event) error {
	if c.fn != nil {
		return c.fn(ctx, e)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
