// Package features provides deterministic transaction-to-vector encoding.
//
// The encoder is constructed from an immutable, versioned vocabulary frozen
// at training time. There is no process-wide encoder state: two encoders
// built from the same vocabulary produce identical vectors.
package features

import (
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Vocabulary holds the training-time-frozen categorical lookup tables.
// Values map to their table index; values unseen at training time map to
// the out-of-vocabulary sentinel (-1).
type Vocabulary struct {
	Version            string   `json:"version"`
	TransactionTypes   []string `json:"transactionTypes"`
	RecipientBanks     []string `json:"recipientBanks"`
	RecipientCountries []string `json:"recipientCountries"`
	Descriptions       []string `json:"descriptions"`
}

// Bounds holds training-time per-feature min/max used for fixed
// normalization.
type Bounds struct {
	Min [domain.FeatureCount]float64 `json:"min"`
	Max [domain.FeatureCount]float64 `json:"max"`
}

// Encoder turns raw transactions into fixed-length feature vectors.
type Encoder struct {
	vocab Vocabulary

	types     map[string]int
	banks     map[string]int
	countries map[string]int
	descs     map[string]int

	// bounds are the frozen normalization bounds; nil means only the
	// legacy batch-relative mode is available.
	bounds *Bounds
}

// NewEncoder builds an encoder from a frozen vocabulary. Bounds may be nil;
// fixed normalization is then unavailable.
func NewEncoder(vocab Vocabulary, bounds *Bounds) *Encoder {
	return &Encoder{
		vocab:     vocab,
		types:     index(vocab.TransactionTypes),
		banks:     index(vocab.RecipientBanks),
		countries: index(vocab.RecipientCountries),
		descs:     index(vocab.Descriptions),
		bounds:    bounds,
	}
}

func index(values []string) map[string]int {
	m := make(map[string]int, len(values))
	for i, v := range values {
		m[v] = i
	}
	return m
}

// Vocabulary returns the encoder's frozen vocabulary.
func (e *Encoder) Vocabulary() Vocabulary { return e.vocab }

// HasBounds reports whether fixed normalization is available.
func (e *Encoder) HasBounds() bool { return e.bounds != nil }

// Encode produces the raw (un-normalized) feature vector for one
// transaction. Categorical values unseen at training time encode as the
// out-of-vocabulary sentinel; a non-numeric recipient account encodes as 0.
// Only malformed timestamps fail the call.
func (e *Encoder) Encode(tx *domain.Transaction) (domain.FeatureVector, error) {
	var v domain.FeatureVector

	v[domain.FeatAmount] = tx.Amount
	v[domain.FeatType] = lookup(e.types, tx.Type)
	v[domain.FeatRecipientAccount] = accountNumber(tx.RecipientAccount)
	v[domain.FeatRecipientBank] = lookup(e.banks, tx.RecipientBank)
	v[domain.FeatRecipientCountry] = lookup(e.countries, tx.RecipientCountry)
	v[domain.FeatDescription] = lookup(e.descs, tx.Description)
	if tx.Cash {
		v[domain.FeatCash] = 1
	}

	ts, err := time.Parse(domain.TimeLayout, tx.Timestamp)
	if err != nil {
		return v, &domain.ParseError{Field: "Date/Time", Value: tx.Timestamp, Err: err}
	}
	created, err := time.Parse(domain.TimeLayout, tx.AccountCreated)
	if err != nil {
		return v, &domain.ParseError{Field: "Account Creation Date", Value: tx.AccountCreated, Err: err}
	}

	v[domain.FeatDay] = float64(ts.Day()) / 31.0
	v[domain.FeatHour] = float64(ts.Hour()) / 24.0

	// Account age clamps at zero: a transaction timestamped before account
	// creation must not produce a negative feature.
	days := ts.Sub(created).Hours() / 24.0
	if days < 0 {
		days = 0
	}
	v[domain.FeatAccountAge] = float64(int(days)) / 365.0

	return v, nil
}

// EncodeBatch produces one raw row per transaction. Rows are identical to
// the corresponding single Encode calls; there is no cross-row coupling
// before normalization.
func (e *Encoder) EncodeBatch(txs []*domain.Transaction) ([][]float64, error) {
	rows := make([][]float64, len(txs))
	for i, tx := range txs {
		v, err := e.Encode(tx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows[i] = v[:]
	}
	return rows, nil
}

// NormalizeFixed rescales rows in place using the training-time-frozen
// bounds. This is the supported production contract: values are comparable
// across calls. Returns an error if the encoder was built without bounds.
func (e *Encoder) NormalizeFixed(rows [][]float64) error {
	if e.bounds == nil {
		return fmt.Errorf("encoder has no frozen normalization bounds")
	}
	for _, row := range rows {
		for j := range row {
			span := e.bounds.Max[j] - e.bounds.Min[j]
			if span == 0 {
				row[j] = 0
				continue
			}
			row[j] = (row[j] - e.bounds.Min[j]) / span
		}
	}
	return nil
}

// NormalizeBatch applies a min-max rescale per column across the batch.
//
// Deprecated: batch-relative scaling means values are only comparable
// within one call; a single-row batch degenerates to all zeros. Kept for
// parity with the training pipeline's legacy behavior. Use NormalizeFixed.
func (e *Encoder) NormalizeBatch(rows [][]float64) {
	if len(rows) == 0 {
		return
	}
	for j := 0; j < domain.FeatureCount; j++ {
		lo, hi := rows[0][j], rows[0][j]
		for _, row := range rows {
			if row[j] < lo {
				lo = row[j]
			}
			if row[j] > hi {
				hi = row[j]
			}
		}
		span := hi - lo
		for _, row := range rows {
			if span == 0 {
				row[j] = 0
			} else {
				row[j] = (row[j] - lo) / span
			}
		}
	}
}

func lookup(table map[string]int, value string) float64 {
	if i, ok := table[value]; ok {
		return float64(i)
	}
	return domain.OOVSentinel
}

// accountNumber degrades non-numeric recipient accounts ("N/A", empty) to 0
// to keep the encoder total over production traffic.
func accountNumber(raw string) float64 {
	if raw == "" || raw == "N/A" {
		return 0
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return n
}
