package screen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/harrier/internal/domain"
)

// VelocityFunc reports the number of transactions observed for an account
// inside the configured window. Engines without a velocity source use a
// zero func.
type VelocityFunc func(ctx context.Context, accountNumber string) (int, error)

// Engine evaluates operator-defined CEL rules after the built-in screen
// passes clean. Rules are compiled once at load; evaluation is read-only
// and safe for concurrent use.
type Engine struct {
	env      *cel.Env
	velocity VelocityFunc
	logger   *slog.Logger

	mu    sync.RWMutex
	rules []compiledRule
}

type compiledRule struct {
	rule    domain.ScreenRule
	program cel.Program
}

// NewEngine builds a rule engine with the transaction variable set. The
// velocity func may be nil.
func NewEngine(velocity VelocityFunc, logger *slog.Logger) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("description", cel.StringType),
		cel.Variable("recipient_bank", cel.StringType),
		cel.Variable("recipient_country", cel.StringType),
		cel.Variable("cash", cel.BoolType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("creating rule environment: %w", err)
	}
	if velocity == nil {
		velocity = func(context.Context, string) (int, error) { return 0, nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{env: env, velocity: velocity, logger: logger}, nil
}

// Load compiles and installs the given rules, replacing any previous set.
// A rule that fails to compile rejects the whole load so a partial policy
// is never active.
func (e *Engine) Load(rules []domain.ScreenRule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		ast, issues := e.env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("compiling rule %s: %w", r.ID, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return fmt.Errorf("rule %s: expression must produce bool, got %s", r.ID, ast.OutputType())
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return fmt.Errorf("building rule %s: %w", r.ID, err)
		}
		compiled = append(compiled, compiledRule{rule: r, program: prg})
	}

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	e.logger.Info("screen rules loaded", "count", len(compiled))
	return nil
}

// LoadedRules returns a copy of the active rules in evaluation order.
func (e *Engine) LoadedRules() []domain.ScreenRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.ScreenRule, 0, len(e.rules))
	for _, c := range e.rules {
		out = append(out, c.rule)
	}
	return out
}

// RuleCount returns the number of active compiled rules.
func (e *Engine) RuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Evaluate runs the compiled rules in load order and returns the first
// match. A rule that errors at runtime is skipped with a warning rather
// than failing the screen.
func (e *Engine) Evaluate(ctx context.Context, tx *domain.Transaction) domain.HeuristicVerdict {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()
	if len(rules) == 0 {
		return domain.HeuristicVerdict{}
	}

	count, err := e.velocity(ctx, tx.AccountNumber)
	if err != nil {
		e.logger.Warn("velocity lookup failed, using zero", "account", tx.AccountNumber, "error", err)
		count = 0
	}

	vars := map[string]any{
		"amount":            tx.Amount,
		"tx_type":           tx.Type,
		"description":       tx.Description,
		"recipient_bank":    tx.RecipientBank,
		"recipient_country": tx.RecipientCountry,
		"cash":              tx.Cash,
		"velocity_count":    int64(count),
	}

	for _, cr := range rules {
		out, _, err := cr.program.Eval(vars)
		if err != nil {
			e.logger.Warn("rule evaluation failed", "rule", cr.rule.ID, "error", err)
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return domain.HeuristicVerdict{Suspicious: true, Reason: cr.rule.Reason}
		}
	}
	return domain.HeuristicVerdict{}
}
