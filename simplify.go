package miasm

import (
	"math/big"
	"sort"
)

// Rule is a pure rewrite over a node whose children are already fully
// simplified. A rule returns its input to signal no change, or a
// replacement node of the same size.
type Rule func(Expr) Expr

// Ruleset maps each expression kind to an ordered list of rewrite rules.
type Ruleset map[Kind][]Rule

// Merge returns a new ruleset with extra's rules appended after rs's rules
// for each kind. Neither input is modified.
func (rs Ruleset) Merge(extra Ruleset) Ruleset {
	merged := make(Ruleset, len(rs))
	for kind, rules := range rs {
		merged[kind] = append([]Rule(nil), rules...)
	}
	for kind, rules := range extra {
		merged[kind] = append(merged[kind], rules...)
	}
	return merged
}

// BaseRules returns the default rule registry.
func BaseRules() Ruleset {
	return Ruleset{
		KindOp: {
			simpFlattenOp,
			simpSortOpArgs,
			simpFoldConstOp,
			simpAggregateConstOp,
			simpIdentityOp,
			simpCollectAddTerms,
			simpXorPairs,
			simpDedupeBitwise,
			simpDoubleNeg,
			simpTrivialCompare,
			simpUnwrapSingletonOp,
		},
		KindSlice: {
			simpSliceOfInt,
			simpSliceOfSlice,
			simpFullSlice,
			simpSliceOfCompose,
		},
		KindCompose: {
			simpFlattenCompose,
			simpMergeComposeArgs,
			simpUnwrapSingletonCompose,
		},
		KindCond: {
			simpCondConst,
			simpCondSameBranches,
		},
	}
}

// SignedComparePasses returns optional rules that recognize the borrow
// chain (a + -b)[n-1:n] as the signed comparison a <s b and collapse 1-bit
// constant-branch conditionals. The msb rewrite ignores overflow, so these
// are not part of the base set.
func SignedComparePasses() Ruleset {
	return Ruleset{
		KindSlice: {simpMSBSubToSlt},
		KindCond:  {simpCondBoolCollapse},
	}
}

// maxRuleSweeps caps rule sweeps per node to guard against a misbehaving
// custom rule that never converges.
const maxRuleSweeps = 128

// Simplifier rewrites expression trees to a deterministic normal form.
// It is stateless across calls apart from its caller-owned rule registry,
// so a single instance may be shared by concurrent simplifications.
type Simplifier struct {
	rules Ruleset
}

// NewSimplifier returns a simplifier with the base rule set.
func NewSimplifier() *Simplifier {
	return &Simplifier{rules: BaseRules()}
}

// NewSimplifierWithRules returns a simplifier with an explicit registry.
func NewSimplifierWithRules(rules Ruleset) *Simplifier {
	return &Simplifier{rules: rules}
}

// EnablePasses appends an extra per-kind rule list to the active registry.
// Base rules keep their position; extra rules run after them.
func (s *Simplifier) EnablePasses(extra Ruleset) {
	s.rules = s.rules.Merge(extra)
}

// Simplify rewrites expr bottom-up to a fixed point under the active rule
// set. Given the same input and rule set the output is identical every
// time. The per-invocation memo is discarded on return.
func (s *Simplifier) Simplify(expr Expr) Expr {
	memo := make(map[uint64][]memoPair)
	return s.simplify(expr, memo)
}

// Simplify rewrites expr with a default base-rule simplifier.
func Simplify(expr Expr) Expr {
	return NewSimplifier().Simplify(expr)
}

type memoPair struct {
	in  Expr
	out Expr
}

func memoGet(memo map[uint64][]memoPair, expr Expr) (Expr, bool) {
	for _, pair := range memo[ExprHash(expr)] {
		if CompareExpr(pair.in, expr) == 0 {
			return pair.out, true
		}
	}
	return nil, false
}

func memoPut(memo map[uint64][]memoPair, expr, out Expr) {
	h := ExprHash(expr)
	memo[h] = append(memo[h], memoPair{in: expr, out: out})
}

func (s *Simplifier) simplify(expr Expr, memo map[uint64][]memoPair) Expr {
	if out, ok := memoGet(memo, expr); ok {
		return out
	}
	out := s.applyRules(s.simplifyChildren(expr, memo), memo)
	memoPut(memo, expr, out)
	return out
}

func (s *Simplifier) simplifyChildren(expr Expr, memo map[uint64][]memoPair) Expr {
	children := ExprChildren(expr)
	if len(children) == 0 {
		return expr
	}
	simplified := make([]Expr, len(children))
	var changed bool
	for i, child := range children {
		simplified[i] = s.simplify(child, memo)
		if simplified[i] != child {
			changed = true
		}
	}
	if !changed {
		return expr
	}
	return exprWithChildren(expr, simplified)
}

// applyRules runs the registered rules for the node's kind in registration
// order, feeding each change into the next rule. A change restarts the
// sweep for the (possibly new) kind; a full sweep without change is the
// fixed point.
func (s *Simplifier) applyRules(expr Expr, memo map[uint64][]memoPair) Expr {
	for sweep := 0; sweep < maxRuleSweeps; sweep++ {
		start := expr
		kind := ExprKind(expr)
		for _, rule := range s.rules[kind] {
			next := rule(expr)
			if next == expr || ExprEqual(next, expr) {
				continue
			}
			if a, b := ExprSize(next), ExprSize(expr); a != b {
				invalid(ErrRuleContract, "rule rewrote %d-bit %s to %d-bit %s", b, expr, a, next)
			}
			// A replacement may embed freshly built composite children;
			// run them through the memoized bottom-up pass before
			// continuing.
			expr = s.simplifyChildren(next, memo)
			if ExprKind(expr) != kind {
				break
			}
		}
		if ExprEqual(expr, start) {
			return expr
		}
	}
	return expr
}

// Op rules.

// simpFlattenOp flattens nested same-operator arguments of a declared
// associative operator into one n-ary node.
func simpFlattenOp(expr Expr) Expr {
	op := expr.(*OpExpr)
	if !IsAssociativeOp(op.Op) {
		return expr
	}
	var nested bool
	for _, arg := range op.Args {
		if IsOpExpr(arg, op.Op) {
			nested = true
			break
		}
	}
	if !nested {
		return expr
	}
	flat := make([]Expr, 0, len(op.Args))
	for _, arg := range op.Args {
		if inner, ok := arg.(*OpExpr); ok && inner.Op == op.Op {
			flat = append(flat, inner.Args...)
		} else {
			flat = append(flat, arg)
		}
	}
	return NewOpExpr(op.Op, flat...)
}

// simpSortOpArgs puts the operands of a commutative operator into the
// canonical CompareExpr order, so a+b and b+a normalize identically.
func simpSortOpArgs(expr Expr) Expr {
	op := expr.(*OpExpr)
	if !IsAssociativeOp(op.Op) {
		return expr
	}
	if sort.SliceIsSorted(op.Args, func(i, j int) bool {
		return CompareExpr(op.Args[i], op.Args[j]) < 0
	}) {
		return expr
	}
	sorted := append([]Expr(nil), op.Args...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareExpr(sorted[i], sorted[j]) < 0
	})
	return NewOpExpr(op.Op, sorted...)
}

// simpFoldConstOp evaluates an operation whose operands are all constants.
// Unknown operators and division by a zero constant are left unchanged.
func simpFoldConstOp(expr Expr) Expr {
	op := expr.(*OpExpr)
	ints := make([]*IntExpr, len(op.Args))
	for i, arg := range op.Args {
		v, ok := arg.(*IntExpr)
		if !ok {
			return expr
		}
		ints[i] = v
	}

	switch op.Op {
	case "+", "*", "&", "|", "^":
		acc := ints[0]
		for _, v := range ints[1:] {
			switch op.Op {
			case "+":
				acc = acc.Add(v)
			case "*":
				acc = acc.Mul(v)
			case "&":
				acc = acc.And(v)
			case "|":
				acc = acc.Or(v)
			case "^":
				acc = acc.Xor(v)
			}
		}
		return acc
	case "-":
		return ints[0].Neg()
	case "parity":
		return ints[0].Parity()
	}

	if len(ints) != 2 {
		return expr
	}
	a, b := ints[0], ints[1]
	switch op.Op {
	case "<<":
		return a.Shl(b)
	case ">>":
		return a.LShr(b)
	case "a>>":
		return a.AShr(b)
	case "/":
		if b.IsZero() {
			return expr
		}
		return a.UDiv(b)
	case "%":
		if b.IsZero() {
			return expr
		}
		return a.URem(b)
	case "sdiv":
		if b.IsZero() {
			return expr
		}
		return a.SDiv(b)
	case "smod":
		if b.IsZero() {
			return expr
		}
		return a.SRem(b)
	case "==":
		return a.Eq(b)
	case "<u":
		return a.Ult(b)
	case "<=u":
		return a.Ule(b)
	case "<s":
		return a.Slt(b)
	case "<=s":
		return a.Sle(b)
	}
	return expr
}

// simpAggregateConstOp combines the constant operands of an associative
// operator into a single constant.
func simpAggregateConstOp(expr Expr) Expr {
	op := expr.(*OpExpr)
	if !IsAssociativeOp(op.Op) {
		return expr
	}
	var consts []*IntExpr
	rest := make([]Expr, 0, len(op.Args))
	for _, arg := range op.Args {
		if v, ok := arg.(*IntExpr); ok {
			consts = append(consts, v)
		} else {
			rest = append(rest, arg)
		}
	}
	if len(consts) < 2 || len(rest) == 0 {
		return expr
	}

	acc := consts[0]
	for _, v := range consts[1:] {
		switch op.Op {
		case "+":
			acc = acc.Add(v)
		case "*":
			acc = acc.Mul(v)
		case "&":
			acc = acc.And(v)
		case "|":
			acc = acc.Or(v)
		case "^":
			acc = acc.Xor(v)
		}
	}
	args := append([]Expr{acc}, rest...)
	return NewOpExpr(op.Op, args...)
}

// simpIdentityOp removes identity elements and applies absorbing elements:
// x+0, x^0, x|0, x*1, x&mask drop the constant; x*0, x&0 become zero;
// x|mask becomes mask; shifts by zero drop the shift.
func simpIdentityOp(expr Expr) Expr {
	op := expr.(*OpExpr)

	switch op.Op {
	case "<<", ">>", "a>>":
		if len(op.Args) == 2 {
			if v, ok := op.Args[1].(*IntExpr); ok && v.IsZero() {
				return op.Args[0]
			}
		}
		return expr
	}
	if !IsAssociativeOp(op.Op) || len(op.Args) < 2 {
		return expr
	}

	size := ExprSize(op)
	kept := make([]Expr, 0, len(op.Args))
	for _, arg := range op.Args {
		v, ok := arg.(*IntExpr)
		if !ok {
			kept = append(kept, arg)
			continue
		}
		switch op.Op {
		case "+", "^", "|":
			if v.IsZero() {
				continue
			}
		case "*":
			if v.IsOne() {
				continue
			}
			if v.IsZero() {
				return NewIntExpr(0, size)
			}
		case "&":
			if v.IsMask() {
				continue
			}
			if v.IsZero() {
				return NewIntExpr(0, size)
			}
		}
		if op.Op == "|" && v.IsMask() {
			return newIntExprBig(bigMask(size), size)
		}
		kept = append(kept, arg)
	}
	if len(kept) == len(op.Args) {
		return expr
	}
	switch len(kept) {
	case 0:
		// All operands were the identity element.
		switch op.Op {
		case "*":
			return NewIntExpr(1, size)
		case "&":
			return newIntExprBig(bigMask(size), size)
		}
		return NewIntExpr(0, size)
	case 1:
		return kept[0]
	}
	return NewOpExpr(op.Op, kept...)
}

// addTerm is one collected operand of an n-ary addition: coeff * base, with
// coeff accumulated as a signed integer.
type addTerm struct {
	base  Expr
	coeff *big.Int
}

// simpCollectAddTerms cancels additive inverses and folds repeated terms
// into multiplications: x + y + -y becomes x, x+x+x+x becomes 0x4 * x.
// Existing coefficient terms (0x2 * x) merge into the count.
func simpCollectAddTerms(expr Expr) Expr {
	op := expr.(*OpExpr)
	if op.Op != "+" || len(op.Args) < 2 {
		return expr
	}
	size := ExprSize(op)

	constSum := NewIntExpr(0, size)
	var terms []*addTerm
	accumulate := func(base Expr, coeff *big.Int) {
		for _, t := range terms {
			if ExprEqual(t.base, base) {
				t.coeff.Add(t.coeff, coeff)
				return
			}
		}
		terms = append(terms, &addTerm{base: base, coeff: coeff})
	}

	for _, arg := range op.Args {
		switch arg := arg.(type) {
		case *IntExpr:
			constSum = constSum.Add(arg)
		case *OpExpr:
			if arg.Op == "-" && len(arg.Args) == 1 {
				accumulate(arg.Args[0], big.NewInt(-1))
				continue
			}
			if arg.Op == "*" && len(arg.Args) == 2 {
				if c, ok := arg.Args[0].(*IntExpr); ok {
					accumulate(arg.Args[1], new(big.Int).Set(c.Value))
					continue
				}
			}
			accumulate(arg, big.NewInt(1))
		default:
			accumulate(arg, big.NewInt(1))
		}
	}

	modulus := bigModulus(size)
	rebuilt := make([]Expr, 0, len(terms)+1)
	if !constSum.IsZero() {
		rebuilt = append(rebuilt, constSum)
	}
	for _, t := range terms {
		c := new(big.Int).Mod(t.coeff, modulus)
		switch {
		case c.Sign() == 0:
			// canceled
		case c.Cmp(bigOne) == 0:
			rebuilt = append(rebuilt, t.base)
		case new(big.Int).Add(c, bigOne).Cmp(modulus) == 0:
			rebuilt = append(rebuilt, NewNegExpr(t.base))
		default:
			rebuilt = append(rebuilt, NewOpExpr("*", newIntExprBig(c, size), t.base))
		}
	}

	switch len(rebuilt) {
	case 0:
		return NewIntExpr(0, size)
	case 1:
		return rebuilt[0]
	}
	next := NewOpExpr("+", rebuilt...)
	if ExprEqual(next, expr) {
		return expr
	}
	return next
}

// simpXorPairs cancels repeated XOR operands pairwise: x ^ x drops out.
func simpXorPairs(expr Expr) Expr {
	op := expr.(*OpExpr)
	if op.Op != "^" || len(op.Args) < 2 {
		return expr
	}

	kept := make([]Expr, 0, len(op.Args))
	for _, arg := range op.Args {
		canceled := false
		for i, prev := range kept {
			if ExprEqual(prev, arg) {
				kept = append(kept[:i], kept[i+1:]...)
				canceled = true
				break
			}
		}
		if !canceled {
			kept = append(kept, arg)
		}
	}
	switch len(kept) {
	case len(op.Args):
		return expr
	case 0:
		return NewIntExpr(0, ExprSize(op))
	case 1:
		return kept[0]
	}
	return NewOpExpr("^", kept...)
}

// simpDedupeBitwise drops duplicate operands of the idempotent operators
// & and |.
func simpDedupeBitwise(expr Expr) Expr {
	op := expr.(*OpExpr)
	if (op.Op != "&" && op.Op != "|") || len(op.Args) < 2 {
		return expr
	}
	kept := make([]Expr, 0, len(op.Args))
	for _, arg := range op.Args {
		dup := false
		for _, prev := range kept {
			if ExprEqual(prev, arg) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, arg)
		}
	}
	if len(kept) == len(op.Args) {
		return expr
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return NewOpExpr(op.Op, kept...)
}

// simpDoubleNeg cancels double negation.
func simpDoubleNeg(expr Expr) Expr {
	op := expr.(*OpExpr)
	if op.Op != "-" || len(op.Args) != 1 {
		return expr
	}
	if inner, ok := op.Args[0].(*OpExpr); ok && inner.Op == "-" && len(inner.Args) == 1 {
		return inner.Args[0]
	}
	return expr
}

// simpTrivialCompare folds comparisons of an expression against itself.
func simpTrivialCompare(expr Expr) Expr {
	op := expr.(*OpExpr)
	if len(op.Args) != 2 || !ExprEqual(op.Args[0], op.Args[1]) {
		return expr
	}
	switch op.Op {
	case "==", "<=u", "<=s":
		return NewBoolIntExpr(true)
	case "<u", "<s":
		return NewBoolIntExpr(false)
	}
	return expr
}

// simpUnwrapSingletonOp unwraps an associative operator left with a single
// operand.
func simpUnwrapSingletonOp(expr Expr) Expr {
	op := expr.(*OpExpr)
	if IsAssociativeOp(op.Op) && len(op.Args) == 1 {
		return op.Args[0]
	}
	return expr
}

// Slice rules.

// simpSliceOfInt extracts the bit range of a constant.
func simpSliceOfInt(expr Expr) Expr {
	sl := expr.(*SliceExpr)
	if v, ok := sl.Arg.(*IntExpr); ok {
		return v.Extract(sl.Start, sl.Stop)
	}
	return expr
}

// simpSliceOfSlice composes nested slices into one with adjusted bounds.
func simpSliceOfSlice(expr Expr) Expr {
	sl := expr.(*SliceExpr)
	if inner, ok := sl.Arg.(*SliceExpr); ok {
		return NewSliceExpr(inner.Arg, inner.Start+sl.Start, inner.Start+sl.Stop)
	}
	return expr
}

// simpFullSlice unwraps a slice covering its whole argument.
func simpFullSlice(expr Expr) Expr {
	sl := expr.(*SliceExpr)
	if sl.Start == 0 && sl.Stop == ExprSize(sl.Arg) {
		return sl.Arg
	}
	return expr
}

// simpSliceOfCompose distributes a slice over the compose arguments it
// covers.
func simpSliceOfCompose(expr Expr) Expr {
	sl := expr.(*SliceExpr)
	comp, ok := sl.Arg.(*ComposeExpr)
	if !ok {
		return expr
	}

	var pieces []Expr
	var off uint
	for _, arg := range comp.Args {
		sz := ExprSize(arg)
		lo, hi := off, off+sz
		off = hi
		if hi <= sl.Start || lo >= sl.Stop {
			continue
		}
		start, stop := uint(0), sz
		if sl.Start > lo {
			start = sl.Start - lo
		}
		if sl.Stop < hi {
			stop = sl.Stop - lo
		}
		if start == 0 && stop == sz {
			pieces = append(pieces, arg)
		} else {
			pieces = append(pieces, NewSliceExpr(arg, start, stop))
		}
	}
	if len(pieces) == 1 {
		return pieces[0]
	}
	return NewComposeExpr(pieces...)
}

// simpMSBSubToSlt rewrites the borrow-chain msb (a + -b)[n-1:n] to the
// signed comparison a <s b. Part of SignedComparePasses.
func simpMSBSubToSlt(expr Expr) Expr {
	sl := expr.(*SliceExpr)
	sum, ok := sl.Arg.(*OpExpr)
	if !ok || sum.Op != "+" || len(sum.Args) != 2 {
		return expr
	}
	if sl.Stop != ExprSize(sum) || sl.Start != sl.Stop-1 {
		return expr
	}

	var pos, neg Expr
	for _, arg := range sum.Args {
		if inner, ok := arg.(*OpExpr); ok && inner.Op == "-" && len(inner.Args) == 1 {
			if neg != nil {
				return expr
			}
			neg = inner.Args[0]
		} else {
			if pos != nil {
				return expr
			}
			pos = arg
		}
	}
	if pos == nil || neg == nil {
		return expr
	}
	return NewOpExpr("<s", pos, neg)
}

// Compose rules.

// simpFlattenCompose flattens nested composes.
func simpFlattenCompose(expr Expr) Expr {
	comp := expr.(*ComposeExpr)
	var nested bool
	for _, arg := range comp.Args {
		if IsComposeExpr(arg) {
			nested = true
			break
		}
	}
	if !nested {
		return expr
	}
	flat := make([]Expr, 0, len(comp.Args))
	for _, arg := range comp.Args {
		if inner, ok := arg.(*ComposeExpr); ok {
			flat = append(flat, inner.Args...)
		} else {
			flat = append(flat, arg)
		}
	}
	return NewComposeExpr(flat...)
}

// simpMergeComposeArgs merges adjacent constants and contiguous slices of
// the same base expression.
func simpMergeComposeArgs(expr Expr) Expr {
	comp := expr.(*ComposeExpr)
	if len(comp.Args) < 2 {
		return expr
	}

	merged := make([]Expr, 0, len(comp.Args))
	merged = append(merged, comp.Args[0])
	var changed bool
	for _, arg := range comp.Args[1:] {
		last := merged[len(merged)-1]

		if lo, ok := last.(*IntExpr); ok {
			if hi, ok := arg.(*IntExpr); ok {
				merged[len(merged)-1] = lo.Compose(hi)
				changed = true
				continue
			}
		}
		if lo, ok := last.(*SliceExpr); ok {
			if hi, ok := arg.(*SliceExpr); ok && lo.Stop == hi.Start && ExprEqual(lo.Arg, hi.Arg) {
				merged[len(merged)-1] = NewSliceExpr(lo.Arg, lo.Start, hi.Stop)
				changed = true
				continue
			}
		}
		merged = append(merged, arg)
	}
	if !changed {
		return expr
	}
	return NewComposeExpr(merged...)
}

// simpUnwrapSingletonCompose removes a compose wrapping a single argument.
func simpUnwrapSingletonCompose(expr Expr) Expr {
	comp := expr.(*ComposeExpr)
	if len(comp.Args) == 1 {
		return comp.Args[0]
	}
	return expr
}

// Cond rules.

// simpCondConst folds a conditional with a constant condition.
func simpCondConst(expr Expr) Expr {
	cond := expr.(*CondExpr)
	if v, ok := cond.Cond.(*IntExpr); ok {
		if v.IsZero() {
			return cond.Src2
		}
		return cond.Src1
	}
	return expr
}

// simpCondSameBranches folds a conditional whose branches are equal.
func simpCondSameBranches(expr Expr) Expr {
	cond := expr.(*CondExpr)
	if ExprEqual(cond.Src1, cond.Src2) {
		return cond.Src1
	}
	return expr
}

// simpCondBoolCollapse rewrites c?(0x1,0x0) to c for a 1-bit condition.
// Part of SignedComparePasses.
func simpCondBoolCollapse(expr Expr) Expr {
	cond := expr.(*CondExpr)
	if ExprSize(cond.Cond) != SizeBool || ExprSize(cond) != SizeBool {
		return expr
	}
	src1, ok1 := cond.Src1.(*IntExpr)
	src2, ok2 := cond.Src2.(*IntExpr)
	if ok1 && ok2 && src1.IsOne() && src2.IsZero() {
		return cond.Cond
	}
	return expr
}
