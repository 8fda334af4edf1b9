package domain

import (
	"time"
)

// ScoreResult is the classifier's verdict for one transaction.
type ScoreResult struct {
	// Score is the probability of fraud scaled to 0-100.
	Score float64 `json:"score"`

	// Label is the binary prediction: 1 = fraud, 0 = normal.
	Label int `json:"label"`
}

// HeuristicVerdict is the output of the deterministic pre-screen.
// Stateless, recomputed per transaction.
type HeuristicVerdict struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason"`
}

// Advisory verdict field values. Suspicious is a tri-state string rather
// than a bool so transport failures are never mistaken for a clean verdict.
const (
	AdvisoryYes   = "Yes"
	AdvisoryNo    = "No"
	AdvisoryError = "Error"

	ConfidenceLow    = "Low"
	ConfidenceMedium = "Medium"
	ConfidenceHigh   = "High"
	ConfidenceNA     = "N/A"

	ActionCompliance   = "Send to compliance team"
	ActionManualReview = "Send to compliance team for manual review"
	ActionProceed      = "Proceed normally"
)

// AdvisoryVerdict is the structured result of the advisory confirmation
// stage. The same schema is produced whether the oracle's response parsed
// cleanly or the verdict was synthesized locally; downstream consumers
// cannot tell the two apart.
type AdvisoryVerdict struct {
	Suspicious     string `json:"suspicious"` // "Yes", "No", or "Error"
	Details        string `json:"details"`
	Confidence     string `json:"confidence"` // "Low", "Medium", "High", or "N/A"
	Recommendation string `json:"recommendation"`
}

// ValidationResult is the pipeline's terminal output for one transaction.
// Immutable once produced.
type ValidationResult struct {
	ID          string           `json:"id"`
	Transaction Transaction      `json:"transaction"`
	Heuristic   HeuristicVerdict `json:"heuristic"`
	Score       *ScoreResult     `json:"score,omitempty"`
	Advisory    AdvisoryVerdict  `json:"advisory"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Suspicious reports whether any stage of the pipeline flagged the
// transaction. An advisory Error verdict counts: it routes to manual review.
func (r *ValidationResult) Suspicious() bool {
	return r.Heuristic.Suspicious ||
		r.Advisory.Suspicious == AdvisoryYes ||
		r.Advisory.Suspicious == AdvisoryError ||
		(r.Score != nil && r.Score.Label == 1)
}

// ReplayEvent is the compact result emitted once per stream-replay tick.
type ReplayEvent struct {
	TransactionID string  `json:"transactionId"`
	Score         float64 `json:"score"`
	Label         int     `json:"label"`
	Amount        float64 `json:"amount"`
	Type          string  `json:"type"`
	Timestamp     string  `json:"timestamp"`
}

// AnalysisRecord is one entry in a customer's append-only analysis history.
type AnalysisRecord struct {
	CustomerID string          `json:"customerId"`
	Timestamp  time.Time       `json:"timestamp"`
	Verdict    AdvisoryVerdict `json:"verdict"`
}
