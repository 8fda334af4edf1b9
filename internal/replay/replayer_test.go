package replay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
)

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

func sequence(n int) []*domain.Transaction {
	txs := make([]*domain.Transaction, n)
	for i := range txs {
		txs[i] = &domain.Transaction{
			ID:             fmt.Sprintf("TX-%d", i),
			AccountNumber:  "ACC-1",
			Timestamp:      "2024-03-15 14:30:00",
			Amount:         float64(1000 * (i + 1)),
			Type:           "Transfer",
			CustomerID:     "CUST-1",
			AccountCreated: "2023-03-15 00:00:00",
		}
	}
	return txs
}

func TestTickEmitsAndAdvances(t *testing.T) {
	r, err := NewReplayer(loadTestModel(t), nil, time.Second, nil)
	if err != nil {
		t.Fatalf("new replayer: %v", err)
	}
	r.SetSequence(sequence(3))

	events, cancel := r.Subscribe()
	defer cancel()

	event, ok := r.Tick(context.Background())
	if !ok {
		t.Fatal("tick failed")
	}
	if event.TransactionID != "TX-0" || event.Amount != 1000 {
		t.Errorf("event = %+v, want TX-0", event)
	}
	if r.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", r.Cursor())
	}

	select {
	case got := <-events:
		if got.TransactionID != "TX-0" {
			t.Errorf("subscriber got %+v", got)
		}
	default:
		t.Error("subscriber received nothing")
	}
}

func TestCursorWrapsCyclically(t *testing.T) {
	r, err := NewReplayer(loadTestModel(t), nil, time.Second, nil)
	if err != nil {
		t.Fatalf("new replayer: %v", err)
	}
	r.SetSequence(sequence(3))

	const ticks = 7
	for i := 0; i < ticks; i++ {
		if _, ok := r.Tick(context.Background()); !ok {
			t.Fatalf("tick %d failed", i)
		}
	}
	if got, want := r.Cursor(), ticks%3; got != want {
		t.Errorf("cursor after %d ticks = %d, want %d", ticks, got, want)
	}
}

func TestTickCounterTracksEmissions(t *testing.T) {
	r, err := NewReplayer(loadTestModel(t), nil, time.Second, nil)
	if err != nil {
		t.Fatalf("new replayer: %v", err)
	}
	ticks := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_replay_ticks_total"})
	r.InstrumentTicks(ticks)
	r.SetSequence(sequence(2))

	for i := 0; i < 3; i++ {
		if _, ok := r.Tick(context.Background()); !ok {
			t.Fatalf("tick %d failed", i)
		}
	}
	if got := testutil.ToFloat64(ticks); got != 3 {
		t.Errorf("tick counter = %v, want 3", got)
	}

	// An empty sequence emits nothing and must not count.
	r.SetSequence(nil)
	r.Tick(context.Background())
	if got := testutil.ToFloat64(ticks); got != 3 {
		t.Errorf("tick counter after empty tick = %v, want 3", got)
	}
}

func TestTickEmptySequence(t *testing.T) {
	r, err := NewReplayer(loadTestModel(t), nil, time.Second, nil)
	if err != nil {
		t.Fatalf("new replayer: %v", err)
	}
	if _, ok := r.Tick(context.Background()); ok {
		t.Error("tick on empty sequence should report false")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r, err := NewReplayer(loadTestModel(t), nil, 5*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new replayer: %v", err)
	}
	r.SetSequence(sequence(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Stopped cleanly
	case <-time.After(time.Second):
		t.Fatal("replay loop did not stop after cancellation")
	}

	if r.Cursor() < 0 || r.Cursor() >= 2 {
		t.Errorf("cursor %d outside sequence bounds", r.Cursor())
	}
}

func TestRequiresModel(t *testing.T) {
	if _, err := NewReplayer(nil, nil, time.Second, nil); err == nil {
		t.Error("expected error for nil classifier")
	}
}
