// Package profile maintains per-customer financial behavior aggregates and
// derives spending reports from them.
package profile

import (
	"sort"
	"strings"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// debit transaction types reduce the customer's balance; credit types
// increase it. Types outside both sets contribute nothing to the profile.
var (
	debitTypes  = map[string]bool{"Withdrawal": true, "Transfer": true, "Payment": true, "Debit": true}
	creditTypes = map[string]bool{"Deposit": true, "Cash Depos": true, "Salary": true, "Credit": true}
)

// Aggregator ingests transactions and answers report queries. Ingestion
// for different customers proceeds concurrently; per-customer state is
// guarded by its own lock.
type Aggregator struct {
	cfg domain.ProfileConfig

	mu       sync.RWMutex
	profiles map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	profile *domain.CustomerProfile
}

// NewAggregator builds an aggregator with the given thresholds.
func NewAggregator(cfg domain.ProfileConfig) *Aggregator {
	if cfg.ObservationPeriods <= 0 {
		cfg = domain.DefaultProfileConfig()
	}
	return &Aggregator{cfg: cfg, profiles: make(map[string]*entry)}
}

func (a *Aggregator) entryFor(customerID string) *entry {
	a.mu.RLock()
	e, ok := a.profiles[customerID]
	a.mu.RUnlock()
	if ok {
		return e
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok = a.profiles[customerID]; ok {
		return e
	}
	e = &entry{profile: domain.NewCustomerProfile(customerID)}
	a.profiles[customerID] = e
	return e
}

// Ingest folds one transaction into its customer's profile. Transactions
// without a customer ID are ignored.
func (a *Aggregator) Ingest(tx *domain.Transaction) {
	if tx.CustomerID == "" {
		return
	}
	e := a.entryFor(tx.CustomerID)
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.profile
	p.Amounts = append(p.Amounts, tx.Amount)

	switch {
	case debitTypes[tx.Type]:
		p.TotalSpent += tx.Amount
		if tx.Description != "" {
			p.Categories[tx.Description] = struct{}{}
		}
		if tx.Cash {
			p.CashUsage += tx.Amount
		}
	case creditTypes[tx.Type]:
		p.TotalIncome += tx.Amount
		if tx.Description != "" {
			p.IncomeSources[tx.Description] = struct{}{}
		}
	}

	if recurring(tx.Description) {
		p.RecurringPayments = append(p.RecurringPayments, tx.Amount)
	}
}

// recurring matches descriptions that indicate a repeating obligation.
func recurring(desc string) bool {
	lower := strings.ToLower(desc)
	return strings.Contains(lower, "rent") || strings.Contains(lower, "fees")
}

// CustomerCount returns the number of customers with profile state.
func (a *Aggregator) CustomerCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.profiles)
}

// Report derives the spending report for a customer. Returns
// ProfileNotFoundError when no transactions were ever ingested for them.
func (a *Aggregator) Report(customerID string) (*domain.ProfileReport, error) {
	a.mu.RLock()
	e, ok := a.profiles[customerID]
	a.mu.RUnlock()
	if !ok {
		return nil, &domain.ProfileNotFoundError{CustomerID: customerID}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return a.derive(e.profile), nil
}

func (a *Aggregator) derive(p *domain.CustomerProfile) *domain.ProfileReport {
	periods := float64(a.cfg.ObservationPeriods)
	r := &domain.ProfileReport{
		CustomerID:       p.CustomerID,
		AvgMonthlySpend:  p.TotalSpent / periods,
		AvgMonthlyIncome: p.TotalIncome / periods,
		SpendCategories:  sortedKeys(p.Categories),
		IncomeSources:    sortedKeys(p.IncomeSources),
		RecurringTotal:   sum(p.RecurringPayments),
		TransactionCount: len(p.Amounts),
	}
	if p.TotalSpent > 0 {
		r.CashUsagePct = p.CashUsage / p.TotalSpent * 100
	}

	if r.AvgMonthlyIncome < a.cfg.StudentIncomeThreshold {
		r.ProfileType = domain.ProfileStudent
	} else {
		r.ProfileType = domain.ProfileProfessional
	}
	if r.AvgMonthlySpend < a.cfg.RiskSpendThreshold {
		r.RiskIndicator = domain.RiskLow
	} else {
		r.RiskIndicator = domain.RiskMedium
	}
	if r.AvgMonthlySpend < a.cfg.BehaviorSpendThreshold {
		r.BehavioralPattern = domain.PatternFrequentSmall
	} else {
		r.BehavioralPattern = domain.PatternOccasionalLarge
	}
	return r
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sum(xs []float64) float64 {
	var total float64
	for _, x := range xs {
		total += x
	}
	return total
}
