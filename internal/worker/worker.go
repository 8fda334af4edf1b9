// Package worker provides async validation of ingested transactions from
// the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/validator"
)

// Worker consumes ingested transactions from the bus and drives each one
// through the validation pipeline. It exists so callers can fire a
// transaction at the ingest topic and collect the verdict from the verdict
// topic without blocking on the HTTP surface.
type Worker struct {
	bus          domain.EventBus
	orchestrator *validator.Orchestrator
	logger       *slog.Logger

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, orchestrator *validator.Orchestrator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		orchestrator: orchestrator,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start subscribes to the ingest topic and begins processing.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("validation worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// handleMessage validates one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.logger.Error("failed to parse ingested transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	result, err := w.orchestrator.Validate(ctx, &tx)
	if err != nil {
		// Structural errors are caller-input problems: log and drop, they
		// can never produce a verdict.
		var mfe *domain.MissingFieldError
		var nfe *domain.ProfileNotFoundError
		if errors.As(err, &mfe) || errors.As(err, &nfe) {
			w.logger.Warn("discarding invalid transaction",
				"tx_id", tx.ID,
				"error", err,
			)
			return nil
		}
		w.logger.Error("validation failed",
			"tx_id", tx.ID,
			"error", err,
		)
		return err
	}

	w.logger.Info("transaction validated",
		"tx_id", tx.ID,
		"validation_id", result.ID,
		"suspicious", result.Suspicious(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("validation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
