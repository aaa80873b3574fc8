package guard

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator evaluates publish guard expressions using CEL. A guard is an
// org-configurable predicate over the candidate revision that must hold
// before promotion (for example requiring a change description on
// published revisions).
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewEvaluator creates a new guard evaluator with expression caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Allow evaluates expr against the candidate record and acting user.
// An empty expression always allows.
func (e *Evaluator) Allow(expr string, record map[string]interface{}, actor string) (bool, error) {
	if expr == "" {
		return true, nil
	}

	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"record": record,
		"actor":  actor,
	})
	if err != nil {
		return false, fmt.Errorf("guard evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.DynType),
		cel.Variable("actor", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("guard compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create guard program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}
