package events

import (
	"context"
	"sync"

	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

// Sink receives structured trace lines for the current run.
type Sink interface {
	Record(ctx context.Context, kind enums.ProcessingEventKind, message string, fields map[string]any)
}

type discard struct{}

func (discard) Record(context.Context, enums.ProcessingEventKind, string, map[string]any) {}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

// OrDiscard returns s, or Discard when s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Entry is one recorded line held by a Collector.
type Entry struct {
	Kind    enums.ProcessingEventKind
	Message string
	Fields  map[string]any
}

// Collector keeps recorded lines in memory.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *Collector) Record(_ context.Context, kind enums.ProcessingEventKind, message string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, Entry{Kind: kind, Message: message, Fields: fields})
}

// Entries returns a copy of everything recorded so far.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Kinds returns the recorded kinds in order.
func (c *Collector) Kinds() []enums.ProcessingEventKind {
	entries := c.Entries()
	out := make([]enums.ProcessingEventKind, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

// Has reports whether kind was recorded at least once.
func (c *Collector) Has(kind enums.ProcessingEventKind) bool {
	for _, k := range c.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
