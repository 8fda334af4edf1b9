// Package screen applies deterministic first-match heuristics to a
// transaction before any model or advisory stage runs. The built-in checks
// are a fixed, ordered policy; operator-defined rules evaluated by Engine
// run only after every built-in has passed.
package screen

import (
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Thresholds are code constants, not config: the screen output feeds the
// advisory prompt verbatim and the wording and boundaries are part of the
// verdict contract.
const (
	cashAmountLimit  = 50000
	largeAmountLimit = 100000

	ReasonHighCash    = "high cash amount"
	ReasonVagueLarge  = "large amount with vague description"
	ReasonUnknownBank = "unknown recipient bank"
)

var vagueKeywords = []string{"transfer", "consulting", "cash"}

// Screen runs the built-in checks in fixed order and returns the first
// matching verdict. Boundary values do not trigger: 50000 cash passes,
// 50000.01 does not.
func Screen(tx *domain.Transaction) domain.HeuristicVerdict {
	if tx.Cash && tx.Amount > cashAmountLimit {
		return domain.HeuristicVerdict{Suspicious: true, Reason: ReasonHighCash}
	}
	if tx.Amount > largeAmountLimit && vagueDescription(tx.Description) {
		return domain.HeuristicVerdict{Suspicious: true, Reason: ReasonVagueLarge}
	}
	if tx.RecipientBank == domain.UnknownBank {
		return domain.HeuristicVerdict{Suspicious: true, Reason: ReasonUnknownBank}
	}
	return domain.HeuristicVerdict{}
}

func vagueDescription(desc string) bool {
	lower := strings.ToLower(desc)
	for _, kw := range vagueKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
