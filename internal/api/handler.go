package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/observability"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/replay"
	"github.com/opensource-finance/harrier/internal/screen"
	"github.com/opensource-finance/harrier/internal/validator"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	model        *classifier.Model
	profiles     *profile.Aggregator
	orchestrator *validator.Orchestrator
	stage        *advisory.Stage
	engine       *screen.Engine
	replayer     *replay.Replayer
	metrics      *observability.Metrics
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, model *classifier.Model, profiles *profile.Aggregator, orchestrator *validator.Orchestrator, stage *advisory.Stage, engine *screen.Engine, replayer *replay.Replayer, metrics *observability.Metrics, version string) *Handler {
	return &Handler{
		repo:         repo,
		cache:        cache,
		bus:          bus,
		model:        model,
		profiles:     profiles,
		orchestrator: orchestrator,
		stage:        stage,
		engine:       engine,
		replayer:     replayer,
		metrics:      metrics,
		version:      version,
	}
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	Score     float64 `json:"score"`
	Label     int     `json:"label"`
	Model     string  `json:"model"`
	Heuristic struct {
		Suspicious bool   `json:"suspicious"`
		Reason     string `json:"reason,omitempty"`
	} `json:"heuristic"`
}

// Score handles POST /score requests: classifier plus heuristic screen for a
// single transaction, no advisory call and no persistence.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if missing := tx.MissingFields(); len(missing) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "missing required fields",
			"missingFields": missing,
		})
		return
	}

	scores, err := h.model.ScoreTransactions([]*domain.Transaction{&tx})
	if err != nil {
		var parseErr *domain.ParseError
		if errors.As(err, &parseErr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": parseErr.Error(),
			})
			return
		}
		slog.Error("scoring failed", "txId", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "scoring failed",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.ScoresTotal.Inc()
		h.metrics.ScoreDistribution.Observe(scores[0].Score)
	}

	verdict := screen.Screen(&tx)
	if !verdict.Suspicious && h.engine != nil {
		verdict = h.engine.Evaluate(r.Context(), &tx)
	}

	resp := ScoreResponse{
		Score: scores[0].Score,
		Label: scores[0].Label,
		Model: h.model.Version(),
	}
	resp.Heuristic.Suspicious = verdict.Suspicious
	resp.Heuristic.Reason = verdict.Reason

	writeJSON(w, http.StatusOK, resp)
}

// ScoreBatchRequest is the request body for POST /score/batch.
type ScoreBatchRequest struct {
	Transactions []*domain.Transaction `json:"transactions"`
}

// ScoreBatch scores a batch of transactions in one pass. Results are
// positional: results[i] belongs to transactions[i].
func (h *Handler) ScoreBatch(w http.ResponseWriter, r *http.Request) {
	var req ScoreBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions must not be empty",
		})
		return
	}

	for i, tx := range req.Transactions {
		if missing := tx.MissingFields(); len(missing) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":         "missing required fields",
				"row":           i,
				"missingFields": missing,
			})
			return
		}
	}

	scores, err := h.model.ScoreTransactions(req.Transactions)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.metrics != nil {
		for _, s := range scores {
			h.metrics.ScoresTotal.Inc()
			h.metrics.ScoreDistribution.Observe(s.Score)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": scores,
		"count":   len(scores),
		"model":   h.model.Version(),
	})
}

// Validate runs the full verdict pipeline for one transaction.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.orchestrator.Validate(r.Context(), &tx)
	if err != nil {
		var missingErr *domain.MissingFieldError
		if errors.As(err, &missingErr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":         "missing required fields",
				"missingFields": missingErr.Fields,
			})
			return
		}
		var profileErr *domain.ProfileNotFoundError
		if errors.As(err, &profileErr) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no profile for customer " + profileErr.CustomerID,
			})
			return
		}
		slog.Error("validation failed", "txId", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "validation failed",
		})
		return
	}

	if h.metrics != nil {
		outcome := "clean"
		if result.Suspicious() {
			outcome = "suspicious"
		}
		h.metrics.ValidationsTotal.WithLabelValues(outcome).Inc()
		h.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
		h.metrics.AdvisoryCallsTotal.WithLabelValues(advisoryOutcome(result.Advisory)).Inc()
	}

	writeJSON(w, http.StatusOK, result)
}

// ValidateBatch handles POST /validate/batch: transactions run through the
// full pipeline concurrently, results come back in input order, and a
// failed transaction reports its error in place without failing the batch.
func (h *Handler) ValidateBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ScoreBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Transactions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transactions array is empty",
		})
		return
	}

	items := h.orchestrator.ValidateBatch(r.Context(), req.Transactions)

	if h.metrics != nil {
		for _, item := range items {
			if item.Result == nil {
				continue
			}
			outcome := "clean"
			if item.Result.Suspicious() {
				outcome = "suspicious"
			}
			h.metrics.ValidationsTotal.WithLabelValues(outcome).Inc()
			h.metrics.AdvisoryCallsTotal.WithLabelValues(advisoryOutcome(item.Result.Advisory)).Inc()
		}
		h.metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": items,
		"count":   len(items),
	})
}

// IngestTransaction handles POST /transactions: the transaction is folded
// into its customer's profile and persisted, but not validated.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	if err := h.orchestrator.Ingest(r.Context(), &tx); err != nil {
		var missingErr *domain.MissingFieldError
		if errors.As(err, &missingErr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":         "missing required fields",
				"missingFields": missingErr.Fields,
			})
			return
		}
		slog.Error("ingest failed", "txId", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "ingest failed",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": tx.ID,
		"status":        "ingested",
	})
}

// GetProfile returns the derived behavioral report for a customer.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	report, err := h.profiles.Report(customerID)
	if err != nil {
		// Fall back to the persisted report when the in-memory aggregator
		// has not seen this customer since startup.
		if h.repo != nil {
			if stored, repoErr := h.repo.GetProfileReport(r.Context(), customerID); repoErr == nil {
				writeJSON(w, http.StatusOK, stored)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no profile for customer " + customerID,
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveProfileReport(r.Context(), report); err != nil {
			slog.Error("failed to save profile report", "customerId", customerID, "error", err)
		}
	}
	if h.cache != nil {
		if err := h.cache.SetProfileReport(r.Context(), customerID, report, 5*time.Minute); err != nil {
			slog.Error("failed to cache profile report", "customerId", customerID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, report)
}

// AnalyzeProfile runs the advisory mule-account analysis for a customer and
// appends the verdict to the customer's analysis history.
func (h *Handler) AnalyzeProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}

	report, err := h.profiles.Report(customerID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no profile for customer " + customerID,
		})
		return
	}

	var history []*domain.AnalysisRecord
	if h.repo != nil {
		history, _ = h.repo.ListAnalyses(ctx, customerID)
	}

	verdict := h.stage.AnalyzeProfile(ctx, report, history)

	if h.metrics != nil {
		h.metrics.AdvisoryCallsTotal.WithLabelValues(advisoryOutcome(verdict)).Inc()
	}

	record := &domain.AnalysisRecord{
		CustomerID: customerID,
		Timestamp:  time.Now().UTC(),
		Verdict:    verdict,
	}
	if h.repo != nil {
		if err := h.repo.AppendAnalysis(ctx, record); err != nil {
			slog.Error("failed to append analysis", "customerId", customerID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customerId": customerID,
		"verdict":    verdict,
		"timestamp":  record.Timestamp,
	})
}

// GetAnalyses lists a customer's analysis history in chronological order.
func (h *Handler) GetAnalyses(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	records, err := h.repo.ListAnalyses(r.Context(), customerID)
	if err != nil {
		slog.Error("failed to list analyses", "customerId", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list analyses",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customerId": customerID,
		"analyses":   records,
		"count":      len(records),
	})
}

// ListCustomerTransactions lists a customer's stored transactions, most
// recent first. An optional RFC 3339 "since" query parameter restricts
// the listing to transactions recorded at or after that instant.
func (h *Handler) ListCustomerTransactions(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customer id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC 3339 timestamp",
			})
			return
		}
		since = parsed
	}

	txs, err := h.repo.ListTransactionsByCustomer(r.Context(), customerID, since)
	if err != nil {
		slog.Error("failed to list transactions", "customerId", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list transactions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"customerId":   customerID,
		"transactions": txs,
		"count":        len(txs),
	})
}

// GetValidation retrieves a stored validation result by ID.
func (h *Handler) GetValidation(w http.ResponseWriter, r *http.Request) {
	resultID := chi.URLParam(r, "id")
	if resultID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "validation id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetValidation(r.Context(), resultID)
	if err != nil {
		slog.Error("failed to get validation", "id", resultID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "validation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "transaction id is required",
		})
		return
	}
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// CreateRuleRequest is the request body for creating a supplemental screen rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Reason      string `json:"reason"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule persists a supplemental screen rule. Rules apply after
// verification; call POST /rules/reload to pick up changes.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ScreenRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Reason:      req.Reason,
		Enabled:     req.Enabled,
	}

	// Reject bad expressions before they hit the database. Load on a
	// throwaway engine so a compile failure cannot clear live rules.
	scratch, err := screen.NewEngine(nil, slog.Default())
	if err == nil {
		err = scratch.Load([]domain.ScreenRule{*rule})
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveScreenRule(ctx, rule); err != nil {
			slog.Error("failed to save screen rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("screen rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /rules/reload to apply changes.",
	})
}

// ListRules returns the supplemental rules currently loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "rule engine not available",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  h.engine.LoadedRules(),
		"count":  h.engine.RuleCount(),
		"source": "database",
	})
}

// ReloadRules reloads supplemental screen rules from the database into the
// engine. The whole batch is rejected if any rule fails to compile.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil || h.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	stored, err := h.repo.ListScreenRules(ctx)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	rules := make([]domain.ScreenRule, 0, len(stored))
	for _, rule := range stored {
		rules = append(rules, *rule)
	}

	if err := h.engine.Load(rules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(rules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(rules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
		"model":   h.model.Version(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func advisoryOutcome(v domain.AdvisoryVerdict) string {
	switch v.Suspicious {
	case domain.AdvisoryError:
		return "error"
	case domain.AdvisoryYes:
		return "suspicious"
	default:
		return "clean"
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
