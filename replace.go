package miasm

// ReplaceExpr returns a new tree in which every sub-expression structurally
// equal to a mapping key is replaced by its mapped value. Keys are compared
// structurally; substitution recurses into every composite kind but is not
// re-applied inside substituted values. The empty mapping is the identity
// transform. A value whose size differs from its key's size panics with
// ErrSizeMismatch, since it would break an enclosing node's size invariant.
// No simplification is performed.
func ReplaceExpr(expr Expr, mapping map[Expr]Expr) Expr {
	if len(mapping) == 0 {
		return expr
	}

	index := make(map[uint64][]Expr, len(mapping))
	for key, value := range mapping {
		if a, b := ExprSize(key), ExprSize(value); a != b {
			invalid(ErrSizeMismatch, "replacement for %s has size %d, want %d", key, b, a)
		}
		h := ExprHash(key)
		index[h] = append(index[h], key)
	}

	return replaceExpr(expr, mapping, index)
}

func replaceExpr(expr Expr, mapping map[Expr]Expr, index map[uint64][]Expr) Expr {
	if key, ok := lookupKey(expr, index); ok {
		return mapping[key]
	}

	children := ExprChildren(expr)
	if len(children) == 0 {
		return expr
	}

	replaced := make([]Expr, len(children))
	var changed bool
	for i, child := range children {
		replaced[i] = replaceExpr(child, mapping, index)
		if replaced[i] != child {
			changed = true
		}
	}
	if !changed {
		return expr
	}
	return exprWithChildren(expr, replaced)
}

func lookupKey(expr Expr, index map[uint64][]Expr) (Expr, bool) {
	for _, key := range index[ExprHash(expr)] {
		if CompareExpr(key, expr) == 0 {
			return key, true
		}
	}
	return nil, false
}
