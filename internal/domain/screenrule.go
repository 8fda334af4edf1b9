package domain

// ScreenRule is an operator-defined supplemental pre-screen rule. The three
// built-in heuristics always run first in their fixed priority order;
// supplemental rules run after them, still first-match-wins.
type ScreenRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is a CEL expression returning bool. Available variables:
	// amount, tx_type, description, recipient_bank, recipient_country,
	// cash, velocity_count.
	Expression string `json:"expression"`

	// Reason is the human-readable reason attached to the verdict when the
	// rule matches.
	Reason string `json:"reason"`

	Enabled bool `json:"enabled"`
}
