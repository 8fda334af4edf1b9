package screen

import (
	"context"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func tx(mut func(*domain.Transaction)) *domain.Transaction {
	t := &domain.Transaction{
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
	if mut != nil {
		mut(t)
	}
	return t
}

func TestScreenHighCash(t *testing.T) {
	v := Screen(tx(func(t *domain.Transaction) {
		t.Cash = true
		t.Amount = 50001
	}))
	if !v.Suspicious || v.Reason != ReasonHighCash {
		t.Errorf("verdict = %+v, want high cash", v)
	}
}

func TestScreenCashBoundaryPasses(t *testing.T) {
	v := Screen(tx(func(t *domain.Transaction) {
		t.Cash = true
		t.Amount = 50000
	}))
	if v.Suspicious {
		t.Errorf("verdict = %+v, want clean at exact boundary", v)
	}
}

func TestScreenVagueLargeAmount(t *testing.T) {
	for _, desc := range []string{"Consulting Fees", "Quick transfer", "CASH pickup"} {
		v := Screen(tx(func(t *domain.Transaction) {
			t.Amount = 150000
			t.Description = desc
		}))
		if !v.Suspicious || v.Reason != ReasonVagueLarge {
			t.Errorf("desc %q: verdict = %+v, want vague large amount", desc, v)
		}
	}

	v := Screen(tx(func(t *domain.Transaction) {
		t.Amount = 150000
		t.Description = "Invoice 4411"
	}))
	if v.Suspicious {
		t.Errorf("specific description flagged: %+v", v)
	}
}

func TestScreenUnknownBank(t *testing.T) {
	v := Screen(tx(func(t *domain.Transaction) {
		t.RecipientBank = domain.UnknownBank
	}))
	if !v.Suspicious || v.Reason != ReasonUnknownBank {
		t.Errorf("verdict = %+v, want unknown bank", v)
	}
}

func TestScreenFirstMatchWins(t *testing.T) {
	v := Screen(tx(func(t *domain.Transaction) {
		t.Cash = true
		t.Amount = 150000
		t.Description = "cash transfer"
		t.RecipientBank = domain.UnknownBank
	}))
	if v.Reason != ReasonHighCash {
		t.Errorf("reason = %q, want first rule %q", v.Reason, ReasonHighCash)
	}
}

func TestScreenClean(t *testing.T) {
	if v := Screen(tx(nil)); v.Suspicious {
		t.Errorf("clean transaction flagged: %+v", v)
	}
}

func TestEngineEvaluate(t *testing.T) {
	eng, err := NewEngine(func(context.Context, string) (int, error) { return 7, nil }, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	rules := []domain.ScreenRule{
		{ID: "r1", Expression: `velocity_count > 5 && amount > 500.0`, Reason: "rapid activity", Enabled: true},
		{ID: "r2", Expression: `recipient_country == "India"`, Reason: "never reached", Enabled: true},
		{ID: "r3", Expression: `cash`, Reason: "disabled rule", Enabled: false},
	}
	if err := eng.Load(rules); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := eng.RuleCount(); got != 2 {
		t.Errorf("rule count = %d, want 2", got)
	}

	v := eng.Evaluate(context.Background(), tx(nil))
	if !v.Suspicious || v.Reason != "rapid activity" {
		t.Errorf("verdict = %+v, want first matching rule", v)
	}
}

func TestEngineLoadRejectsBadRules(t *testing.T) {
	eng, err := NewEngine(nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	bad := []domain.ScreenRule{
		{ID: "broken", Expression: `amount >`, Reason: "x", Enabled: true},
	}
	if err := eng.Load(bad); err == nil {
		t.Error("expected compile error")
	}
	notBool := []domain.ScreenRule{
		{ID: "notbool", Expression: `amount + 1.0`, Reason: "x", Enabled: true},
	}
	if err := eng.Load(notBool); err == nil {
		t.Error("expected type error for non-bool expression")
	}
}

func TestEngineNoRulesIsClean(t *testing.T) {
	eng, err := NewEngine(nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if v := eng.Evaluate(context.Background(), tx(nil)); v.Suspicious {
		t.Errorf("empty engine flagged: %+v", v)
	}
}
