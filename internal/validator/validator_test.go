package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/profile"
)

type stubOracle struct {
	reply string
	err   error
}

func (s *stubOracle) Generate(context.Context, string) (string, error) {
	return s.reply, s.err
}

const artifactJSON = `{
	"version": "test-1",
	"features": ["amount","transaction_type","account_number","recipient_bank","recipient_country","description","cash","transaction_day","transaction_hour","account_age_years"],
	"weights": [4, 0.1, 0, 0.2, 0.1, 0.3, 2, 0, 0, -0.5],
	"bias": -3,
	"threshold": 0.5,
	"vocabulary": {
		"version": "1",
		"transactionTypes": ["Withdrawal", "Transfer", "Cash Depos"],
		"recipientBanks": ["ICICI Bank", "Bank of America"],
		"recipientCountries": ["India"],
		"descriptions": ["Rent Payment", "Payment"]
	},
	"bounds": {
		"min": [0,0,0,0,0,0,0,0,0,0],
		"max": [200000,2,1000000,1,1,1,1,1,1,1]
	}
}`

func loadTestModel(t *testing.T) *classifier.Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(artifactJSON), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	m, err := classifier.Load(path)
	if err != nil {
		t.Fatalf("load model: %v", err)
	}
	return m
}

func validTx() *domain.Transaction {
	return &domain.Transaction{
		ID:               "TX1",
		AccountNumber:    "ACC-1",
		Timestamp:        "2024-03-15 14:30:00",
		Amount:           1000,
		Type:             "Transfer",
		RecipientAccount: "987654",
		RecipientBank:    "ICICI Bank",
		RecipientCountry: "India",
		Description:      "Rent Payment",
		CustomerID:       "CUST-1",
		AccountCreated:   "2023-03-15 00:00:00",
	}
}

func newTestOrchestrator(t *testing.T, oracle advisory.Oracle) *Orchestrator {
	t.Helper()
	profiles := profile.NewAggregator(domain.DefaultProfileConfig())
	profiles.Ingest(validTx())

	stage := advisory.NewStage(oracle, nil)
	o, err := NewOrchestrator(loadTestModel(t), profiles, stage, Options{MaxWorkers: 4})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	return o
}

func TestValidateProducesVerdict(t *testing.T) {
	o := newTestOrchestrator(t, &stubOracle{
		reply: `{"suspicious": "No", "details": "normal rent payment", "confidence": "High", "recommendation": "Proceed normally"}`,
	})

	result, err := o.Validate(context.Background(), validTx())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.ID == "" {
		t.Error("result has no id")
	}
	if result.Score == nil {
		t.Fatal("expected a score for a well-formed transaction")
	}
	if result.Heuristic.Suspicious {
		t.Errorf("clean transaction screened suspicious: %+v", result.Heuristic)
	}
	if result.Advisory.Suspicious != domain.AdvisoryNo {
		t.Errorf("advisory = %+v, want No", result.Advisory)
	}
	if result.Suspicious() {
		t.Error("clean pipeline marked suspicious")
	}
}

func TestValidateMissingFieldAbortsWithoutResult(t *testing.T) {
	o := newTestOrchestrator(t, &stubOracle{reply: "{}"})

	tx := validTx()
	tx.RecipientBank = ""

	result, err := o.Validate(context.Background(), tx)
	if result != nil {
		t.Errorf("expected no result, got %+v", result)
	}
	var mfe *domain.MissingFieldError
	if !errors.As(err, &mfe) {
		t.Fatalf("err = %v, want MissingFieldError", err)
	}
	if len(mfe.Fields) != 1 || mfe.Fields[0] != "Recipient Bank" {
		t.Errorf("fields = %v, want exactly [Recipient Bank]", mfe.Fields)
	}
}

func TestValidateUnknownCustomer(t *testing.T) {
	o := newTestOrchestrator(t, &stubOracle{reply: "{}"})

	tx := validTx()
	tx.CustomerID = "CUST-UNKNOWN"

	_, err := o.Validate(context.Background(), tx)
	var nf *domain.ProfileNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want ProfileNotFoundError", err)
	}
}

func TestValidateSuspiciousPath(t *testing.T) {
	// Oracle is down: heuristic finding must still route to manual review.
	o := newTestOrchestrator(t, &stubOracle{err: errors.New("connection refused")})

	profilesTx := validTx()
	tx := validTx()
	tx.ID = "TX-SUSP"
	tx.Amount = 150000
	tx.Cash = true
	tx.CustomerID = profilesTx.CustomerID

	result, err := o.Validate(context.Background(), tx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !result.Heuristic.Suspicious || result.Heuristic.Reason != "high cash amount" {
		t.Errorf("heuristic = %+v, want high cash amount", result.Heuristic)
	}
	if result.Advisory.Suspicious != domain.AdvisoryError {
		t.Errorf("advisory = %q, want Error for transport failure", result.Advisory.Suspicious)
	}
	if result.Advisory.Recommendation != domain.ActionManualReview {
		t.Errorf("recommendation = %q, want manual review", result.Advisory.Recommendation)
	}
	if !result.Suspicious() {
		t.Error("error verdict must count as suspicious")
	}
}

func TestValidateDegradesOnBadTimestamp(t *testing.T) {
	o := newTestOrchestrator(t, &stubOracle{reply: "not json"})

	tx := validTx()
	tx.Timestamp = "15/03/2024"

	result, err := o.Validate(context.Background(), tx)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.Score != nil {
		t.Errorf("expected no score for unparseable timestamp, got %+v", result.Score)
	}
	// Fallback still runs on the heuristic alone
	if result.Advisory.Suspicious != domain.AdvisoryNo {
		t.Errorf("advisory = %+v, want clean fallback", result.Advisory)
	}
}

func TestValidateBatchPreservesOrder(t *testing.T) {
	o := newTestOrchestrator(t, &stubOracle{reply: "not json"})

	good := validTx()
	bad := validTx()
	bad.ID = "TX-BAD"
	bad.Description = ""

	items := o.ValidateBatch(context.Background(), []*domain.Transaction{good, bad})
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0].Err != nil || items[0].Result == nil {
		t.Errorf("item 0 = %+v, want success", items[0])
	}
	if items[1].Err == nil || items[1].Result != nil {
		t.Errorf("item 1 = %+v, want missing-field failure", items[1])
	}
}
