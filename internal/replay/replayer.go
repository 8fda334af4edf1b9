// Package replay cyclically re-scores a bounded transaction sequence,
// emitting one compact scoring event per tick.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
)

// Replayer owns an ordered transaction sequence and a cursor. Each tick
// scores the transaction under the cursor and advances it, wrapping past
// the end. The loop is cooperative: cancellation stops emission before the
// next tick, never mid-event.
type Replayer struct {
	model    *classifier.Model
	bus      domain.EventBus
	interval time.Duration
	logger   *slog.Logger
	ticks    prometheus.Counter

	mu       sync.Mutex
	sequence []*domain.Transaction
	cursor   int

	subsMu sync.Mutex
	subs   map[chan domain.ReplayEvent]struct{}
}

// NewReplayer builds a replayer over the given sequence. The classifier is
// mandatory: replay refuses to start without a loaded model. The bus may
// be nil; local subscribers still receive events.
func NewReplayer(model *classifier.Model, bus domain.EventBus, interval time.Duration, logger *slog.Logger) (*Replayer, error) {
	if model == nil {
		return nil, fmt.Errorf("replayer requires a loaded classifier")
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{
		model:    model,
		bus:      bus,
		interval: interval,
		logger:   logger,
		subs:     make(map[chan domain.ReplayEvent]struct{}),
	}, nil
}

// InstrumentTicks attaches a counter incremented once per emitted event.
// Call before Run; a nil counter leaves the loop uninstrumented.
func (r *Replayer) InstrumentTicks(c prometheus.Counter) {
	r.ticks = c
}

// SetSequence replaces the replay sequence and resets the cursor.
func (r *Replayer) SetSequence(txs []*domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequence = txs
	r.cursor = 0
}

// Cursor returns the current cursor position.
func (r *Replayer) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

// Len returns the sequence length.
func (r *Replayer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sequence)
}

// Subscribe returns a channel of replay events and a cancel func. Slow
// subscribers drop events instead of stalling the tick loop.
func (r *Replayer) Subscribe() (<-chan domain.ReplayEvent, func()) {
	ch := make(chan domain.ReplayEvent, 16)
	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	cancel := func() {
		r.subsMu.Lock()
		if _, ok := r.subs[ch]; ok {
			delete(r.subs, ch)
			close(ch)
		}
		r.subsMu.Unlock()
	}
	return ch, cancel
}

// Tick scores the transaction under the cursor, emits the event, and
// advances the cursor with wraparound. Returns false when the sequence is
// empty or the transaction could not be scored; the cursor still advances
// so one bad row cannot wedge the stream.
func (r *Replayer) Tick(ctx context.Context) (domain.ReplayEvent, bool) {
	r.mu.Lock()
	if len(r.sequence) == 0 {
		r.mu.Unlock()
		return domain.ReplayEvent{}, false
	}
	tx := r.sequence[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.sequence)
	r.mu.Unlock()

	results, err := r.model.ScoreTransactions([]*domain.Transaction{tx})
	if err != nil {
		r.logger.Warn("replay scoring failed", "transaction", tx.ID, "error", err)
		return domain.ReplayEvent{}, false
	}

	event := domain.ReplayEvent{
		TransactionID: tx.ID,
		Score:         results[0].Score,
		Label:         results[0].Label,
		Amount:        tx.Amount,
		Type:          tx.Type,
		Timestamp:     tx.Timestamp,
	}

	r.emit(ctx, event)
	if r.ticks != nil {
		r.ticks.Inc()
	}
	return event, true
}

func (r *Replayer) emit(ctx context.Context, event domain.ReplayEvent) {
	r.subsMu.Lock()
	for ch := range r.subs {
		select {
		case ch <- event:
		default:
		}
	}
	r.subsMu.Unlock()

	if r.bus != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := r.bus.Publish(ctx, domain.TopicReplayTick, payload); err != nil {
			r.logger.Warn("publishing replay tick failed", "error", err)
		}
	}
}

// Run drives the tick loop until the context is cancelled. Pacing uses a
// ticker, not a busy-wait; cancellation is checked every tick.
func (r *Replayer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("stream replay started", "interval", r.interval, "sequence_length", r.Len())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stream replay stopped")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}
