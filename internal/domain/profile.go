package domain

// CustomerProfile is the cumulative behavioral aggregate for one customer.
// Created on first transaction seen, updated transaction-by-transaction,
// never deleted within a run. Callers must not mutate it concurrently; the
// profile aggregator serializes updates per customer.
type CustomerProfile struct {
	CustomerID        string              `json:"customerId"`
	TotalSpent        float64             `json:"totalSpent"`
	TotalIncome       float64             `json:"totalIncome"`
	Categories        map[string]struct{} `json:"-"`
	IncomeSources     map[string]struct{} `json:"-"`
	CashUsage         float64             `json:"cashUsage"`
	RecurringPayments []float64           `json:"recurringPayments"`
	Amounts           []float64           `json:"amounts"`
}

// NewCustomerProfile creates an empty profile for a customer.
func NewCustomerProfile(customerID string) *CustomerProfile {
	return &CustomerProfile{
		CustomerID:    customerID,
		Categories:    make(map[string]struct{}),
		IncomeSources: make(map[string]struct{}),
	}
}

// Profile report labels.
const (
	ProfileStudent      = "Student"
	ProfileProfessional = "Professional"

	RiskLow    = "Low"
	RiskMedium = "Medium"

	PatternFrequentSmall   = "Frequent small transactions"
	PatternOccasionalLarge = "Occasional large transactions"
)

// ProfileReport is the derived behavioral summary for one customer. It is a
// pure function of the profile aggregate and the profile thresholds,
// recomputed on demand and never stored independently of the aggregate.
type ProfileReport struct {
	CustomerID        string   `json:"customerId"`
	ProfileType       string   `json:"profileType"` // "Student" or "Professional"
	AvgMonthlySpend   float64  `json:"avgMonthlySpend"`
	AvgMonthlyIncome  float64  `json:"avgMonthlyIncome"`
	SpendCategories   []string `json:"spendCategories"`
	IncomeSources     []string `json:"incomeSources"`
	CashUsagePct      float64  `json:"cashUsagePct"`
	RecurringTotal    float64  `json:"recurringTotal"`
	RiskIndicator     string   `json:"riskIndicator"`     // "Low" or "Medium"
	BehavioralPattern string   `json:"behavioralPattern"` // spend-driven label
	TransactionCount  int      `json:"transactionCount"`
}

// ProfileConfig holds the tunable thresholds for profile derivation.
// Frozen after initialization.
type ProfileConfig struct {
	// ObservationPeriods is the assumed observation-window length the
	// cumulative totals are divided by to get monthly averages.
	ObservationPeriods int `json:"observationPeriods"`

	// StudentIncomeThreshold splits Student from Professional by average
	// monthly income.
	StudentIncomeThreshold float64 `json:"studentIncomeThreshold"`

	// RiskSpendThreshold splits Low from Medium risk by average monthly spend.
	RiskSpendThreshold float64 `json:"riskSpendThreshold"`

	// BehaviorSpendThreshold splits frequent-small from occasional-large
	// behavioral labels by average monthly spend.
	BehaviorSpendThreshold float64 `json:"behaviorSpendThreshold"`
}

// DefaultProfileConfig returns the thresholds the shipped model was
// calibrated against.
func DefaultProfileConfig() ProfileConfig {
	return ProfileConfig{
		ObservationPeriods:     6,
		StudentIncomeThreshold: 10000,
		RiskSpendThreshold:     20000,
		BehaviorSpendThreshold: 15000,
	}
}
