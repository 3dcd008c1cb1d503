package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

// Appender is the write side of the event store.
type Appender interface {
	Append(ctx context.Context, event *models.ProcessingEvent) error
}

// Trace is the Sink for one processing run. Each line is persisted as it is
// recorded and mirrored to the structured log; persistence failures are
// logged and swallowed.
type Trace struct {
	store   Appender
	logg    *logger.Logger
	clock   clock.Clock
	runID   uuid.UUID
	orderID string
	source  enums.TriggerSource
	started time.Time

	mu  sync.Mutex
	seq int
}

func NewTrace(store Appender, logg *logger.Logger, clk clock.Clock, orderID string, source enums.TriggerSource) *Trace {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Trace{
		store:   store,
		logg:    logg,
		clock:   clk,
		runID:   uuid.New(),
		orderID: orderID,
		source:  source,
		started: clk.Now(),
	}
}

func (t *Trace) RunID() uuid.UUID { return t.runID }

// Elapsed is the time since the run started.
func (t *Trace) Elapsed() time.Duration {
	return t.clock.Now().Sub(t.started)
}

func (t *Trace) Record(ctx context.Context, kind enums.ProcessingEventKind, message string, fields map[string]any) {
	t.mu.Lock()
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	elapsed := t.Elapsed()
	if t.logg != nil {
		logCtx := t.logg.WithFields(ctx, map[string]any{
			"event_kind": string(kind),
			"sequence":   seq,
			"elapsed_ms": elapsed.Milliseconds(),
		})
		if len(fields) > 0 {
			logCtx = t.logg.WithField(logCtx, "context", fields)
		}
		t.logg.Info(logCtx, message)
	}

	if t.store == nil {
		return
	}
	var payload json.RawMessage
	if len(fields) > 0 {
		raw, err := json.Marshal(fields)
		if err != nil && t.logg != nil {
			t.logg.Warn(ctx, "processing event context not serializable")
		}
		if err == nil {
			payload = raw
		}
	}
	event := &models.ProcessingEvent{
		RunID:     t.runID,
		OrderID:   t.orderID,
		Source:    t.source,
		Sequence:  seq,
		Kind:      kind,
		Message:   message,
		Context:   payload,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if err := t.store.Append(context.WithoutCancel(ctx), event); err != nil && t.logg != nil {
		t.logg.Error(ctx, "failed to append processing event", err)
	}
}
