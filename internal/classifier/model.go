// Package classifier scores encoded transactions with a model artifact
// exported at training time. The artifact is an opaque, versioned JSON
// document bundling the coefficients, decision threshold, vocabulary and
// normalization bounds; serving never retrains or mutates it.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/features"
)

// artifact is the on-disk model document.
type artifact struct {
	Version    string              `json:"version"`
	Features   []string            `json:"features"`
	Weights    []float64           `json:"weights"`
	Bias       float64             `json:"bias"`
	Threshold  float64             `json:"threshold"`
	Vocabulary features.Vocabulary `json:"vocabulary"`
	Bounds     *features.Bounds    `json:"bounds"`
}

// featureIndex maps artifact feature names to serving vector indices.
// Artifacts list weights and bounds in whatever order the training
// pipeline emitted them; loading realigns everything to the serving
// order and rejects artifacts that do not cover it exactly.
var featureIndex = map[string]int{
	"amount":            domain.FeatAmount,
	"transaction_type":  domain.FeatType,
	"account_number":    domain.FeatRecipientAccount,
	"recipient_bank":    domain.FeatRecipientBank,
	"recipient_country": domain.FeatRecipientCountry,
	"description":       domain.FeatDescription,
	"cash":              domain.FeatCash,
	"transaction_day":   domain.FeatDay,
	"transaction_hour":  domain.FeatHour,
	"account_age_years": domain.FeatAccountAge,
}

// Model is a loaded, immutable scoring artifact. Safe for concurrent use.
type Model struct {
	version   string
	weights   []float64
	bias      float64
	threshold float64
	encoder   *features.Encoder
}

// Load reads and validates a model artifact from path.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ModelLoadError{Path: path, Err: err}
	}
	var a artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, &domain.ModelLoadError{Path: path, Err: err}
	}
	return fromArtifact(path, &a)
}

func fromArtifact(path string, a *artifact) (*Model, error) {
	if len(a.Features) != domain.FeatureCount {
		return nil, &domain.ModelLoadError{
			Path: path,
			Err:  fmt.Errorf("artifact lists %d features, serving expects %d", len(a.Features), domain.FeatureCount),
		}
	}
	if len(a.Weights) != domain.FeatureCount {
		return nil, &domain.ModelLoadError{
			Path: path,
			Err:  fmt.Errorf("artifact has %d weights, serving expects %d", len(a.Weights), domain.FeatureCount),
		}
	}
	if a.Threshold <= 0 || a.Threshold >= 1 {
		return nil, &domain.ModelLoadError{
			Path: path,
			Err:  fmt.Errorf("decision threshold %v outside (0, 1)", a.Threshold),
		}
	}

	weights := make([]float64, domain.FeatureCount)
	var bounds *features.Bounds
	if a.Bounds != nil {
		bounds = &features.Bounds{}
	}
	seen := make(map[int]bool, domain.FeatureCount)
	for i, name := range a.Features {
		j, ok := featureIndex[name]
		if !ok {
			return nil, &domain.ModelLoadError{
				Path: path,
				Err:  fmt.Errorf("artifact feature %q is not served", name),
			}
		}
		if seen[j] {
			return nil, &domain.ModelLoadError{
				Path: path,
				Err:  fmt.Errorf("artifact feature %q listed twice", name),
			}
		}
		seen[j] = true
		weights[j] = a.Weights[i]
		if bounds != nil {
			bounds.Min[j] = a.Bounds.Min[i]
			bounds.Max[j] = a.Bounds.Max[i]
		}
	}

	return &Model{
		version:   a.Version,
		weights:   weights,
		bias:      a.Bias,
		threshold: a.Threshold,
		encoder:   features.NewEncoder(a.Vocabulary, bounds),
	}, nil
}

// Version returns the artifact version string.
func (m *Model) Version() string { return m.version }

// Encoder returns the encoder frozen into the artifact.
func (m *Model) Encoder() *features.Encoder { return m.encoder }

// Score evaluates one normalized feature row and returns a 0-100 risk
// score with the thresholded binary label.
func (m *Model) Score(row []float64) domain.ScoreResult {
	z := m.bias
	for i, w := range m.weights {
		z += w * row[i]
	}
	p := 1.0 / (1.0 + math.Exp(-z))
	label := 0
	if p >= m.threshold {
		label = 1
	}
	return domain.ScoreResult{Score: p * 100.0, Label: label}
}

// ScoreBatch evaluates rows independently; row order is preserved.
func (m *Model) ScoreBatch(rows [][]float64) []domain.ScoreResult {
	out := make([]domain.ScoreResult, len(rows))
	for i, row := range rows {
		out[i] = m.Score(row)
	}
	return out
}

// ScoreTransactions runs the full serving path for a batch: encode each
// transaction, normalize with the artifact's frozen bounds, score.
func (m *Model) ScoreTransactions(txs []*domain.Transaction) ([]domain.ScoreResult, error) {
	rows, err := m.encoder.EncodeBatch(txs)
	if err != nil {
		return nil, err
	}
	if m.encoder.HasBounds() {
		if err := m.encoder.NormalizeFixed(rows); err != nil {
			return nil, err
		}
	} else {
		m.encoder.NormalizeBatch(rows)
	}
	return m.ScoreBatch(rows), nil
}
