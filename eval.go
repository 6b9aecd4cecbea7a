package miasm

import "fmt"

// Evaluator evaluates expressions to constants by binding symbolic leaves
// (ids, locations, memory accesses) to concrete values and simplifying.
type Evaluator struct {
	simp    *Simplifier
	mapping map[Expr]Expr
}

// NewEvaluator returns an evaluator over the given bindings. Binding keys
// are compared structurally. A nil simplifier uses the base rule set.
// A binding whose value size differs from its key panics with
// ErrSizeMismatch.
func NewEvaluator(simp *Simplifier, bindings map[Expr]*IntExpr) *Evaluator {
	if simp == nil {
		simp = NewSimplifier()
	}
	mapping := make(map[Expr]Expr, len(bindings))
	for key, value := range bindings {
		if a, b := ExprSize(key), value.Size; a != b {
			invalid(ErrSizeMismatch, "binding for %s has size %d, want %d", key, b, a)
		}
		mapping[key] = value
	}
	return &Evaluator{simp: simp, mapping: mapping}
}

// Evaluate substitutes the bindings into expr and simplifies. Returns an
// error naming the first unbound leaf if the result is not a constant.
func (ev *Evaluator) Evaluate(expr Expr) (*IntExpr, error) {
	out := ev.simp.Simplify(ReplaceExpr(expr, ev.mapping))
	if v, ok := out.(*IntExpr); ok {
		return v, nil
	}

	var unbound Expr
	Walk(out, func(e Expr) bool {
		if unbound != nil {
			return false
		}
		switch e.(type) {
		case *IdExpr, *LocExpr, *MemExpr:
			unbound = e
			return false
		}
		return true
	})
	if unbound != nil {
		return nil, fmt.Errorf("expression not fully bound: %s", unbound)
	}
	return nil, fmt.Errorf("expression did not reduce to a constant: %s", out)
}
