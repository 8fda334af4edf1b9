package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/harrier/internal/advisory"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/profile"
	"github.com/opensource-finance/harrier/internal/replay"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/screen"
	"github.com/opensource-finance/harrier/internal/validator"
)

const artifactJSON = `{
  "version": "test-1",
  "features": ["amount","transaction_day","transaction_hour","transaction_type","recipient_bank","recipient_country","cash","description","account_number","account_age_years"],
  "weights": [4.0, 0.1, 0.0, 0.2, 0.1, 0.3, 2.0, 0.0, 0.0, -0.5],
  "bias": -3.0,
  "threshold": 0.5,
  "vocabulary": {
    "version": "test-1",
    "transactionTypes": ["Withdrawal", "Transfer", "Cash Depos"],
    "recipientBanks": ["ICICI Bank", "Bank of America"],
    "recipientCountries": ["India"],
    "descriptions": ["Rent Payment", "Payment"]
  },
  "bounds": {
    "min": [0,0,0,-1,-1,-1,0,-1,0,0],
    "max": [200000,1,1,2,1,0,1,1,1000000000,100]
  }
}`

// stubOracle answers every prompt with a fixed body.
type stubOracle struct {
	response string
	err      error
}

func (s *stubOracle) Generate(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func loadTestModel(t *testing.T) *classifier.Model {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(artifactJSON), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}
	model, err := classifier.Load(path)
	if err != nil {
		t.Fatalf("loading model: %v", err)
	}
	return model
}

func validTransaction() domain.Transaction {
	return domain.Transaction{
		ID:               "tx-001",
		AccountNumber:    "12345678",
		Timestamp:        "2024-03-05 14:30:00",
		Amount:           1200,
		Type:             "Transfer",
		RecipientBank:    "ICICI Bank",
		RecipientCountry: "India",
		Description:      "Rent Payment",
		CustomerID:       "cust-001",
		AccountCreated:   "2020-01-01 00:00:00",
	}
}

func createTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	model := loadTestModel(t)

	profiles := profile.NewAggregator(domain.DefaultProfileConfig())
	seed := validTransaction()
	profiles.Ingest(&seed)

	oracle := &stubOracle{response: `{"suspicious": "No", "confidence": "High", "details": "Routine payment.", "recommendation": "Proceed normally"}`}
	stage := advisory.NewStage(oracle, nil)

	engine, err := screen.NewEngine(nil, nil)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	orchestrator, err := validator.NewOrchestrator(model, profiles, stage, validator.Options{Engine: engine})
	if err != nil {
		t.Fatalf("creating orchestrator: %v", err)
	}

	replayer, err := replay.NewReplayer(model, nil, 0, nil)
	if err != nil {
		t.Fatalf("creating replayer: %v", err)
	}

	return NewServer(cfg, nil, nil, nil, model, profiles, orchestrator, stage, engine, replayer, nil, "test-v1")
}

// createTestServerWithRepo mirrors createTestServer but backs the server
// and orchestrator with a throwaway sqlite repository.
func createTestServerWithRepo(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("creating repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	model := loadTestModel(t)

	profiles := profile.NewAggregator(domain.DefaultProfileConfig())
	seed := validTransaction()
	profiles.Ingest(&seed)

	oracle := &stubOracle{response: `{"suspicious": "No", "confidence": "High", "details": "Routine payment.", "recommendation": "Proceed normally"}`}
	stage := advisory.NewStage(oracle, nil)

	engine, err := screen.NewEngine(nil, nil)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}

	orchestrator, err := validator.NewOrchestrator(model, profiles, stage, validator.Options{Engine: engine, Repo: repo})
	if err != nil {
		t.Fatalf("creating orchestrator: %v", err)
	}

	replayer, err := replay.NewReplayer(model, nil, 0, nil)
	if err != nil {
		t.Fatalf("creating replayer: %v", err)
	}

	return NewServer(cfg, repo, nil, nil, model, profiles, orchestrator, stage, engine, replayer, nil, "test-v1")
}

func TestScoreEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("SuccessfulScore", func(t *testing.T) {
		body, _ := json.Marshal(validTransaction())
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Score < 0 || resp.Score > 100 {
			t.Errorf("score out of range: %f", resp.Score)
		}
		if resp.Model != "test-1" {
			t.Errorf("expected model test-1, got %s", resp.Model)
		}
		if resp.Heuristic.Suspicious {
			t.Errorf("unexpected heuristic flag: %s", resp.Heuristic.Reason)
		}
	})

	t.Run("HeuristicFlag", func(t *testing.T) {
		tx := validTransaction()
		tx.Cash = true
		tx.Amount = 75000
		body, _ := json.Marshal(tx)
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp ScoreResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !resp.Heuristic.Suspicious {
			t.Error("expected heuristic flag for high cash amount")
		}
		if resp.Heuristic.Reason != screen.ReasonHighCash {
			t.Errorf("unexpected reason: %s", resp.Heuristic.Reason)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		tx := validTransaction()
		tx.RecipientBank = ""
		body, _ := json.Marshal(tx)
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		var resp struct {
			MissingFields []string `json:"missingFields"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(resp.MissingFields) != 1 || resp.MissingFields[0] != "Recipient Bank" {
			t.Errorf("unexpected missing fields: %v", resp.MissingFields)
		}
	})

	t.Run("MalformedTimestamp", func(t *testing.T) {
		tx := validTransaction()
		tx.Timestamp = "not-a-date"
		body, _ := json.Marshal(tx)
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score", bytes.NewBufferString("not-json"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestScoreBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("PositionalResults", func(t *testing.T) {
		a := validTransaction()
		b := validTransaction()
		b.ID = "tx-002"
		b.Amount = 150000
		b.Cash = true
		body, _ := json.Marshal(ScoreBatchRequest{Transactions: []*domain.Transaction{&a, &b}})
		req := httptest.NewRequest(http.MethodPost, "/score/batch", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Results []domain.ScoreResult `json:"results"`
			Count   int                  `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 || len(resp.Results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(resp.Results))
		}
		if resp.Results[1].Score <= resp.Results[0].Score {
			t.Error("expected the large cash transaction to score higher")
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/score/batch", bytes.NewBufferString(`{"transactions":[]}`))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestValidateEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("CleanVerdict", func(t *testing.T) {
		body, _ := json.Marshal(validTransaction())
		req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result domain.ValidationResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.ID == "" {
			t.Error("expected result id")
		}
		if result.Suspicious() {
			t.Errorf("expected clean verdict, got %+v", result)
		}
		if result.Advisory.Suspicious != domain.AdvisoryNo {
			t.Errorf("unexpected advisory verdict: %s", result.Advisory.Suspicious)
		}
	})

	t.Run("UnknownCustomer", func(t *testing.T) {
		tx := validTransaction()
		tx.CustomerID = "cust-unknown"
		body, _ := json.Marshal(tx)
		req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString("{}"))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestValidateBatchEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("MixedBatch", func(t *testing.T) {
		good := validTransaction()
		bad := validTransaction()
		bad.ID = "tx-002"
		bad.CustomerID = "cust-unknown"
		body, _ := json.Marshal(map[string]interface{}{
			"transactions": []domain.Transaction{good, bad},
		})
		req := httptest.NewRequest(http.MethodPost, "/validate/batch", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Results []struct {
				Result *domain.ValidationResult `json:"result"`
				Error  string                   `json:"error"`
			} `json:"results"`
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 || len(resp.Results) != 2 {
			t.Fatalf("expected 2 positional results, got %+v", resp)
		}
		if resp.Results[0].Result == nil || resp.Results[0].Error != "" {
			t.Errorf("valid transaction result = %+v", resp.Results[0])
		}
		if resp.Results[0].Result.Suspicious() {
			t.Errorf("expected clean verdict, got %+v", resp.Results[0].Result)
		}
		if resp.Results[1].Result != nil || resp.Results[1].Error == "" {
			t.Errorf("unknown customer should fail in place, got %+v", resp.Results[1])
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/validate/batch", bytes.NewBufferString(`{"transactions":[]}`))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestListCustomerTransactions(t *testing.T) {
	server := createTestServerWithRepo(t)

	first := validTransaction()
	second := validTransaction()
	second.ID = "tx-002"
	second.Amount = 2500
	for _, tx := range []domain.Transaction{first, second} {
		body, _ := json.Marshal(tx)
		req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusAccepted {
			t.Fatalf("ingest %s: expected 202, got %d: %s", tx.ID, rr.Code, rr.Body.String())
		}
	}

	t.Run("ListAll", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/cust-001/transactions", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Transactions []domain.Transaction `json:"transactions"`
			Count        int                  `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 {
			t.Fatalf("expected 2 transactions, got %d", resp.Count)
		}
	})

	t.Run("SinceFiltersOut", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/cust-001/transactions?since=2099-01-01T00:00:00Z", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 0 {
			t.Errorf("future since returned %d transactions", resp.Count)
		}
	})

	t.Run("BadSince", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/cust-001/transactions?since=yesterday", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NoRepository", func(t *testing.T) {
		bare := createTestServer(t)
		req := httptest.NewRequest(http.MethodGet, "/profiles/cust-001/transactions", nil)
		rr := httptest.NewRecorder()
		bare.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestProfileEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("GetProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/cust-001", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var report domain.ProfileReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if report.CustomerID != "cust-001" {
			t.Errorf("unexpected customer id: %s", report.CustomerID)
		}
		if report.TransactionCount != 1 {
			t.Errorf("expected 1 transaction, got %d", report.TransactionCount)
		}
	})

	t.Run("UnknownProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/nobody", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("AnalyzeProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/profiles/cust-001/analyze", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Verdict domain.AdvisoryVerdict `json:"verdict"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Verdict.Suspicious != domain.AdvisoryNo {
			t.Errorf("unexpected verdict: %+v", resp.Verdict)
		}
	})
}

func TestIngestEndpoint(t *testing.T) {
	server := createTestServer(t)

	tx := validTransaction()
	tx.ID = ""
	tx.CustomerID = "cust-new"
	body, _ := json.Marshal(tx)
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["transactionId"] == "" {
		t.Error("expected a generated transaction id")
	}

	// The ingested transaction must be visible in the customer's profile.
	req = httptest.NewRequest(http.MethodGet, "/profiles/cust-new", nil)
	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200 after ingest, got %d", rr.Code)
	}
}

func TestRuleEndpoints(t *testing.T) {
	server := createTestServer(t)

	t.Run("RejectBadExpression", func(t *testing.T) {
		body, _ := json.Marshal(CreateRuleRequest{
			ID:         "rule-bad",
			Name:       "Broken",
			Expression: "amount +",
			Reason:     "n/a",
			Enabled:    true,
		})
		req := httptest.NewRequest(http.MethodPost, "/rules", bytes.NewBuffer(body))
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ListRules", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/rules", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 0 {
			t.Errorf("expected no loaded rules, got %d", resp.Count)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
	if resp["version"] != "test-v1" {
		t.Errorf("expected version test-v1, got %s", resp["version"])
	}
}

func TestMiddleware(t *testing.T) {
	server := createTestServer(t)

	t.Run("RequestIDPropagation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "my-request-id")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if got := rr.Header().Get(RequestIDHeader); got != "my-request-id" {
			t.Errorf("expected request id echo, got %q", got)
		}
	})

	t.Run("CORSPreflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/score", nil)
		req.Header.Set("Origin", "http://example.com")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
			t.Errorf("unexpected allow-origin: %q", got)
		}
	})
}
