// Package validator orchestrates the full verdict pipeline for incoming
// transactions: field check, profile load, heuristic screen, classifier
// score, advisory confirmation, persistence and event publication.
package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/screen"
)

// Orchestrator drives one transaction through the linear pipeline
// Received -> HeuristicScreened -> Scored -> AdvisoryConfirmed -> Finalized.
// Independent transactions may be validated concurrently; each holds only
// its own customer's profile lock and no lock is held across the advisory
// network call.
type Orchestrator struct {
	model    *classifier.Model
	profiles *profile.Aggregator
	stage    *advisory.Stage
	engine   *screen.Engine

	repo domain.Repository
	bus  domain.EventBus

	maxWorkers int
	logger     *slog.Logger
}

// Options carries optional collaborators. Repo, bus and engine may each be
// nil; the pipeline then skips persistence, publication or supplemental
// rules respectively.
type Options struct {
	Engine     *screen.Engine
	Repo       domain.Repository
	Bus        domain.EventBus
	MaxWorkers int
	Logger     *slog.Logger
}

// NewOrchestrator builds the pipeline. The classifier, profile aggregator
// and advisory stage are mandatory; the orchestrator refuses to start
// without a loaded model.
func NewOrchestrator(model *classifier.Model, profiles *profile.Aggregator, stage *advisory.Stage, opts Options) (*Orchestrator, error) {
	if model == nil {
		return nil, fmt.Errorf("orchestrator requires a loaded classifier")
	}
	if profiles == nil || stage == nil {
		return nil, fmt.Errorf("orchestrator requires a profile aggregator and advisory stage")
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Orchestrator{
		model:      model,
		profiles:   profiles,
		stage:      stage,
		engine:     opts.Engine,
		repo:       opts.Repo,
		bus:        opts.Bus,
		maxWorkers: opts.MaxWorkers,
		logger:     opts.Logger,
	}, nil
}

// Validate runs one transaction through the full pipeline. The two
// structural errors (missing fields, unknown customer) surface to the
// caller with no result; every other degradation still terminates in a
// verdict.
func (o *Orchestrator) Validate(ctx context.Context, tx *domain.Transaction) (*domain.ValidationResult, error) {
	if missing := tx.MissingFields(); len(missing) > 0 {
		return nil, &domain.MissingFieldError{Fields: missing}
	}

	report, err := o.profiles.Report(tx.CustomerID)
	if err != nil {
		return nil, err
	}

	heuristic := screen.Screen(tx)
	if !heuristic.Suspicious && o.engine != nil {
		heuristic = o.engine.Evaluate(ctx, tx)
	}

	// Scoring degrades rather than aborting: a malformed timestamp loses
	// the model signal but the advisory stage still runs on the heuristic.
	var score *domain.ScoreResult
	results, err := o.model.ScoreTransactions([]*domain.Transaction{tx})
	if err != nil {
		var pe *domain.ParseError
		if !errors.As(err, &pe) {
			o.logger.Error("scoring failed", "transaction", tx.ID, "error", err)
		} else {
			o.logger.Warn("skipping score for unparseable transaction", "transaction", tx.ID, "field", pe.Field)
		}
	} else {
		score = &results[0]
	}

	verdict := o.stage.Confirm(ctx, tx, report, heuristic, score)

	result := &domain.ValidationResult{
		ID:          uuid.New().String(),
		Transaction: *tx,
		Heuristic:   heuristic,
		Score:       score,
		Advisory:    verdict,
		Timestamp:   time.Now().UTC(),
	}

	o.persist(ctx, result)
	o.publish(ctx, result)

	return result, nil
}

// persist stores the result and appends to the customer's analysis
// history. Storage failures are logged, never escalated: the verdict
// already exists and the caller gets it regardless.
func (o *Orchestrator) persist(ctx context.Context, result *domain.ValidationResult) {
	if o.repo == nil {
		return
	}
	if err := o.repo.SaveValidation(ctx, result); err != nil {
		o.logger.Error("saving validation failed", "validation", result.ID, "error", err)
	}
	record := &domain.AnalysisRecord{
		CustomerID: result.Transaction.CustomerID,
		Timestamp:  result.Timestamp,
		Verdict:    result.Advisory,
	}
	if err := o.repo.AppendAnalysis(ctx, record); err != nil {
		o.logger.Error("appending analysis failed", "customer", record.CustomerID, "error", err)
	}
}

func (o *Orchestrator) publish(ctx context.Context, result *domain.ValidationResult) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.Error("marshaling verdict failed", "validation", result.ID, "error", err)
		return
	}
	if err := o.bus.Publish(ctx, domain.TopicVerdict, payload); err != nil {
		o.logger.Error("publishing verdict failed", "validation", result.ID, "error", err)
	}
	if result.Suspicious() {
		if err := o.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			o.logger.Error("publishing alert failed", "validation", result.ID, "error", err)
		}
	}
}

// BatchItem is the outcome of one transaction in a batch validation.
type BatchItem struct {
	Result *domain.ValidationResult `json:"result,omitempty"`
	Err    error                    `json:"-"`
	Error  string                   `json:"error,omitempty"`
}

// ValidateBatch validates transactions concurrently through a bounded
// worker pool. Output order matches input order; per-transaction errors
// are reported in place, never aborting the rest of the batch.
func (o *Orchestrator) ValidateBatch(ctx context.Context, txs []*domain.Transaction) []BatchItem {
	items := make([]BatchItem, len(txs))
	sem := make(chan struct{}, o.maxWorkers)
	var wg sync.WaitGroup

	for i, tx := range txs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, tx *domain.Transaction) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := o.Validate(ctx, tx)
			items[i] = BatchItem{Result: result, Err: err}
			if err != nil {
				items[i].Error = err.Error()
			}
		}(i, tx)
	}

	wg.Wait()
	return items
}

// Ingest records a transaction into the profile aggregator and persists
// it. Used by the ingest collaborator before validation runs.
func (o *Orchestrator) Ingest(ctx context.Context, tx *domain.Transaction) error {
	if missing := tx.MissingFields(); len(missing) > 0 {
		return &domain.MissingFieldError{Fields: missing}
	}
	o.profiles.Ingest(tx)
	if o.repo != nil {
		if err := o.repo.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("saving transaction: %w", err)
		}
	}
	if o.bus != nil {
		payload, err := json.Marshal(tx)
		if err == nil {
			_ = o.bus.Publish(ctx, domain.TopicTransactionIngested, payload)
		}
	}
	return nil
}
