package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Stage runs advisory confirmation: build prompt, call the oracle once,
// parse leniently, fall back deterministically. At most one oracle call
// per invocation; no retries.
type Stage struct {
	oracle Oracle
	logger *slog.Logger
}

// NewStage builds the confirmation stage around an oracle.
func NewStage(oracle Oracle, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{oracle: oracle, logger: logger}
}

// Confirm produces the advisory verdict for one screened transaction.
// Transport failures produce the explicit Error verdict; an unparseable
// oracle reply produces the deterministic local fallback. score may be nil
// when the classifier stage was skipped.
func (s *Stage) Confirm(ctx context.Context, tx *domain.Transaction, report *domain.ProfileReport, heuristic domain.HeuristicVerdict, score *domain.ScoreResult) domain.AdvisoryVerdict {
	prompt := buildPrompt(tx, report, heuristic, score)

	raw, err := s.oracle.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("advisory oracle call failed", "transaction", tx.ID, "error", err)
		return domain.AdvisoryVerdict{
			Suspicious:     domain.AdvisoryError,
			Details:        "Advisory oracle unreachable",
			Confidence:     domain.ConfidenceNA,
			Recommendation: domain.ActionManualReview,
		}
	}

	if v, ok := parseVerdict(raw); ok {
		return v
	}
	s.logger.Warn("advisory response unparseable, using fallback", "transaction", tx.ID)
	return fallback(heuristic)
}

// fallback synthesizes the verdict from the heuristic result alone. It is
// fully deterministic so a flaky oracle never injects randomness.
func fallback(heuristic domain.HeuristicVerdict) domain.AdvisoryVerdict {
	if heuristic.Suspicious {
		return domain.AdvisoryVerdict{
			Suspicious:     domain.AdvisoryYes,
			Details:        fmt.Sprintf("Confirms heuristic finding: %s", heuristic.Reason),
			Confidence:     domain.ConfidenceMedium,
			Recommendation: domain.ActionCompliance,
		}
	}
	return domain.AdvisoryVerdict{
		Suspicious:     domain.AdvisoryNo,
		Details:        "No suspicious indicators found",
		Confidence:     domain.ConfidenceHigh,
		Recommendation: domain.ActionProceed,
	}
}

func buildPrompt(tx *domain.Transaction, report *domain.ProfileReport, heuristic domain.HeuristicVerdict, score *domain.ScoreResult) string {
	var b strings.Builder
	b.WriteString("You are a financial fraud analyst. Review this transaction and reply with a single JSON object ")
	b.WriteString(`{"suspicious": "Yes"|"No", "details": string, "confidence": "Low"|"Medium"|"High", "recommendation": string}.`)
	b.WriteString("\n\nTransaction:\n")
	fmt.Fprintf(&b, "- ID: %s\n- Amount: %.2f\n- Type: %s\n- Recipient bank: %s\n- Recipient country: %s\n- Description: %s\n- Cash: %v\n",
		tx.ID, tx.Amount, tx.Type, tx.RecipientBank, tx.RecipientCountry, tx.Description, tx.Cash)

	if report != nil {
		b.WriteString("\nCustomer profile:\n")
		fmt.Fprintf(&b, "- Profile type: %s\n- Avg monthly spend: %.2f\n- Avg monthly income: %.2f\n- Risk indicator: %s\n- Behavioral pattern: %s\n",
			report.ProfileType, report.AvgMonthlySpend, report.AvgMonthlyIncome, report.RiskIndicator, report.BehavioralPattern)
	}

	b.WriteString("\nAutomated findings:\n")
	if heuristic.Suspicious {
		fmt.Fprintf(&b, "- Heuristic screen: SUSPICIOUS (%s)\n", heuristic.Reason)
	} else {
		b.WriteString("- Heuristic screen: clean\n")
	}
	if score != nil {
		fmt.Fprintf(&b, "- Model risk score: %.1f/100 (label %d)\n", score.Score, score.Label)
	}
	return b.String()
}

// rawVerdict accepts the field aliases the oracle is known to emit.
type rawVerdict struct {
	Suspicious     string `json:"suspicious"`
	MuleDetected   string `json:"mule_characteristics_detected"`
	Details        string `json:"details"`
	Confidence     string `json:"confidence"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation"`
	SendCompliance string `json:"send_to_compliance_team"`
}

// parseVerdict extracts the first JSON object from the oracle's reply,
// tolerating surrounding prose and markdown fences. Field semantics are
// never guessed: a reply missing the suspicion field fails the parse.
func parseVerdict(raw string) (domain.AdvisoryVerdict, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.AdvisoryVerdict{}, false
	}

	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rv); err != nil {
		return domain.AdvisoryVerdict{}, false
	}

	v := domain.AdvisoryVerdict{
		Suspicious:     firstNonEmpty(rv.Suspicious, rv.MuleDetected),
		Details:        rv.Details,
		Confidence:     firstNonEmpty(rv.Confidence, rv.Severity),
		Recommendation: firstNonEmpty(rv.Recommendation, rv.SendCompliance),
	}
	if v.Suspicious == "" {
		return domain.AdvisoryVerdict{}, false
	}
	if v.Confidence == "" {
		v.Confidence = domain.ConfidenceMedium
	}
	if v.Recommendation == "" {
		v.Recommendation = domain.ActionCompliance
	}
	return v, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// AnalyzeProfile asks the oracle whether a customer's aggregate behavior
// shows money-mule characteristics. Prior analysis verdicts, if any, are
// included in the prompt. Same lenient parse and fallback rules as
// Confirm, keyed off whether the profile itself looks risky.
func (s *Stage) AnalyzeProfile(ctx context.Context, report *domain.ProfileReport, history []*domain.AnalysisRecord) domain.AdvisoryVerdict {
	var b strings.Builder
	b.WriteString("You are a financial crime analyst. Assess this customer profile for money-mule characteristics ")
	b.WriteString(`and reply with a single JSON object {"mule_characteristics_detected": "Yes"|"No", "details": string, "severity": "Low"|"Medium"|"High", "send_to_compliance_team": string}.`)
	b.WriteString("\n\nProfile:\n")
	fmt.Fprintf(&b, "- Customer: %s\n- Profile type: %s\n- Avg monthly spend: %.2f\n- Avg monthly income: %.2f\n- Income sources: %v\n- Cash usage: %.1f%%\n- Risk indicator: %s\n- Behavioral pattern: %s\n",
		report.CustomerID, report.ProfileType, report.AvgMonthlySpend, report.AvgMonthlyIncome,
		report.IncomeSources, report.CashUsagePct, report.RiskIndicator, report.BehavioralPattern)
	if len(history) > 0 {
		fmt.Fprintf(&b, "\nPrior analyses (%d):\n", len(history))
		for _, rec := range history {
			fmt.Fprintf(&b, "- %s: %s (%s)\n", rec.Timestamp.Format("2006-01-02"), rec.Verdict.Suspicious, rec.Verdict.Confidence)
		}
	}

	raw, err := s.oracle.Generate(ctx, b.String())
	if err != nil {
		s.logger.Warn("profile analysis call failed", "customer", report.CustomerID, "error", err)
		return domain.AdvisoryVerdict{
			Suspicious:     domain.AdvisoryError,
			Details:        "Advisory oracle unreachable",
			Confidence:     domain.ConfidenceNA,
			Recommendation: domain.ActionManualReview,
		}
	}
	if v, ok := parseVerdict(raw); ok {
		return v
	}
	return fallback(domain.HeuristicVerdict{
		Suspicious: report.RiskIndicator == domain.RiskMedium,
		Reason:     "elevated spending profile",
	})
}
