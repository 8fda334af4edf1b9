package domain

// TimeLayout is the wire format for transaction timestamps.
// Matches the format the training data was exported with.
const TimeLayout = "2006-01-02 15:04:05"

// Transaction represents a single financial transaction to be validated.
// It is treated as immutable once constructed: the boundary collaborator
// (ingest endpoint or batch loader) builds it, the pipeline only reads it.
//
// Timestamps are carried as raw strings in TimeLayout form. Parsing happens
// in the feature encoder so a malformed timestamp fails that one encode call
// rather than the ingest path.
type Transaction struct {
	ID               string  `json:"id"`
	AccountNumber    string  `json:"accountNumber"`
	Timestamp        string  `json:"timestamp"`
	Amount           float64 `json:"amount"`
	Type             string  `json:"type"` // "Debit", "Credit", "Withdrawal", "Transfer", ...
	RecipientAccount string  `json:"recipientAccount"`
	RecipientBank    string  `json:"recipientBank"`
	RecipientCountry string  `json:"recipientCountry"`
	Description      string  `json:"description"`
	Cash             bool    `json:"cash"`
	CustomerID       string  `json:"customerId"`
	AccountCreated   string  `json:"accountCreated"`
}

// UnknownBank is the sentinel value the ingest collaborator writes when a
// recipient bank could not be resolved.
const UnknownBank = "Unknown Bank"

// MissingFields returns the human-readable names of required fields that are
// absent from the transaction, in a fixed order. An empty result means the
// transaction is structurally valid.
func (t *Transaction) MissingFields() []string {
	var missing []string

	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	check("Transaction ID", t.ID)
	check("Account Number", t.AccountNumber)
	check("Date/Time", t.Timestamp)
	if t.Amount < 0 {
		missing = append(missing, "Amount")
	}
	check("Transaction Type", t.Type)
	check("Recipient Bank", t.RecipientBank)
	check("Recipient Country", t.RecipientCountry)
	check("Description", t.Description)
	check("Customer ID", t.CustomerID)
	check("Account Creation Date", t.AccountCreated)

	return missing
}

// FeatureCount is the fixed width of an encoded feature vector.
const FeatureCount = 10

// FeatureVector is the fixed-order numeric encoding of a transaction used as
// classifier input. Index order is frozen at training time.
type FeatureVector [FeatureCount]float64

// Feature vector indices.
const (
	FeatAmount = iota
	FeatType
	FeatRecipientAccount
	FeatRecipientBank
	FeatRecipientCountry
	FeatDescription
	FeatCash
	FeatDay
	FeatHour
	FeatAccountAge
)

// OOVSentinel is the reserved encoding for categorical values that were not
// seen at training time.
const OOVSentinel = -1.0
