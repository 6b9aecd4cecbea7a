package miasm

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
)

// Expr represents a symbolic expression node. All nodes are immutable once
// constructed and carry a bit size; equality is structural.
type Expr interface {
	fmt.Stringer
	expr()
}

func (*IntExpr) expr()     {}
func (*IdExpr) expr()      {}
func (*LocExpr) expr()     {}
func (*MemExpr) expr()     {}
func (*SliceExpr) expr()   {}
func (*ComposeExpr) expr() {}
func (*OpExpr) expr()      {}
func (*CondExpr) expr()    {}

// Kind identifies the concrete type of an expression node.
type Kind int

// Expression kinds, in comparison-rank order.
const (
	KindInt Kind = iota + 1
	KindId
	KindLoc
	KindMem
	KindSlice
	KindCompose
	KindOp
	KindCond
)

var kindNames = [...]string{
	KindInt:     "Int",
	KindId:      "Id",
	KindLoc:     "Loc",
	KindMem:     "Mem",
	KindSlice:   "Slice",
	KindCompose: "Compose",
	KindOp:      "Op",
	KindCond:    "Cond",
}

// String returns the name of the kind.
func (k Kind) String() string {
	if k >= KindInt && k <= KindCond {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind<%d>", int(k))
}

// ExprKind returns the kind of the expression.
func ExprKind(expr Expr) Kind {
	switch expr.(type) {
	case *IntExpr:
		return KindInt
	case *IdExpr:
		return KindId
	case *LocExpr:
		return KindLoc
	case *MemExpr:
		return KindMem
	case *SliceExpr:
		return KindSlice
	case *ComposeExpr:
		return KindCompose
	case *OpExpr:
		return KindOp
	case *CondExpr:
		return KindCond
	default:
		panic("unreachable")
	}
}

// ExprSize returns the bit size of the expression.
func ExprSize(expr Expr) uint {
	switch expr := expr.(type) {
	case *IntExpr:
		return expr.Size
	case *IdExpr:
		return expr.Size
	case *LocExpr:
		return expr.Size
	case *MemExpr:
		return expr.Size
	case *SliceExpr:
		return expr.Stop - expr.Start
	case *ComposeExpr:
		var sz uint
		for _, arg := range expr.Args {
			sz += ExprSize(arg)
		}
		return sz
	case *OpExpr:
		if opSizeRule(expr.Op) != sizeRuleDefault {
			return SizeBool
		}
		return ExprSize(expr.Args[0])
	case *CondExpr:
		return ExprSize(expr.Src1)
	default:
		panic("unreachable")
	}
}

// ExprMask returns the all-ones constant for the expression's size.
func ExprMask(expr Expr) *IntExpr {
	size := ExprSize(expr)
	return newIntExprBig(bigMask(size), size)
}

// ZeroExtendExpr returns expr extended to size bits with zero high bits.
func ZeroExtendExpr(expr Expr, size uint) Expr {
	sz := ExprSize(expr)
	assert(size >= sz, "zero extend to smaller size: %d < %d", size, sz)
	if size == sz {
		return expr
	}
	return NewComposeExpr(expr, NewIntExpr(0, size-sz))
}

// SignExtendExpr returns expr extended to size bits by repeating its most
// significant bit.
func SignExtendExpr(expr Expr, size uint) Expr {
	sz := ExprSize(expr)
	assert(size >= sz, "sign extend to smaller size: %d < %d", size, sz)
	if size == sz {
		return expr
	}
	msb := MSBExpr(expr)
	args := make([]Expr, 1, size-sz+1)
	args[0] = expr
	for i := uint(0); i < size-sz; i++ {
		args = append(args, msb)
	}
	return NewComposeExpr(args...)
}

// MSBExpr returns the most significant bit of the expression.
func MSBExpr(expr Expr) Expr {
	size := ExprSize(expr)
	return NewSliceExpr(expr, size-1, size)
}

// Operator size rules. The operator namespace is open: unknown symbols use
// the default same-size rule so user-defined operators need no table change.
type sizeRule int

const (
	sizeRuleDefault  sizeRule = iota // operands share one size, result is that size
	sizeRuleCompare                  // two operands of one size, result is 1 bit
	sizeRuleBoolTest                 // one operand of any size, result is 1 bit
)

var opSizeRules = map[string]sizeRule{
	"==":     sizeRuleCompare,
	"<u":     sizeRuleCompare,
	"<s":     sizeRuleCompare,
	"<=u":    sizeRuleCompare,
	"<=s":    sizeRuleCompare,
	"parity": sizeRuleBoolTest,
}

func opSizeRule(op string) sizeRule {
	return opSizeRules[op]
}

// associativeOps are the declared n-ary associative (and commutative)
// operators. Construction helpers build them n-ary, never as nested pairs.
var associativeOps = map[string]bool{
	"+": true,
	"*": true,
	"^": true,
	"&": true,
	"|": true,
}

// IsAssociativeOp returns true if op is a declared associative operator.
func IsAssociativeOp(op string) bool {
	return associativeOps[op]
}

// IntExpr represents a constant stored as its size-bit unsigned residue.
// Value is reduced mod 2^Size at construction and must not be mutated.
type IntExpr struct {
	Value *big.Int
	Size  uint

	hash uint64
}

// NewIntExpr returns a constant expression for value mod 2^size.
func NewIntExpr(value uint64, size uint) *IntExpr {
	return NewBigIntExpr(new(big.Int).SetUint64(value), size)
}

// NewBigIntExpr returns a constant expression for value mod 2^size.
// The value is copied; negative values wrap to their unsigned residue.
func NewBigIntExpr(value *big.Int, size uint) *IntExpr {
	assert(size > 0, "int size must be positive")
	v := new(big.Int).Mod(value, bigModulus(size))
	return newIntExprBig(v, size)
}

// newIntExprBig adopts v, which must already be the size-bit residue.
func newIntExprBig(v *big.Int, size uint) *IntExpr {
	e := &IntExpr{Value: v, Size: size}
	e.hash = hashExpr(e)
	return e
}

// NewBoolIntExpr returns the 1-bit constant for a boolean.
func NewBoolIntExpr(value bool) *IntExpr {
	if value {
		return NewIntExpr(1, SizeBool)
	}
	return NewIntExpr(0, SizeBool)
}

// String returns the canonical print form: uppercase hexadecimal with a 0x
// prefix and no leading zeros.
func (e *IntExpr) String() string {
	return "0x" + strings.ToUpper(e.Value.Text(16))
}

// Uint64 returns the low 64 bits of the value.
func (e *IntExpr) Uint64() uint64 {
	return new(big.Int).And(e.Value, bigMask(64)).Uint64()
}

// IsZero returns true if the value is zero.
func (e *IntExpr) IsZero() bool { return e.Value.Sign() == 0 }

// IsOne returns true if the value is one.
func (e *IntExpr) IsOne() bool { return e.Value.Cmp(bigOne) == 0 }

// IsMask returns true if all size bits of the value are one.
func (e *IntExpr) IsMask() bool { return e.Value.Cmp(bigMask(e.Size)) == 0 }

// Signed returns the two's complement signed interpretation of the value.
func (e *IntExpr) Signed() *big.Int {
	if e.Value.Bit(int(e.Size-1)) == 0 {
		return new(big.Int).Set(e.Value)
	}
	return new(big.Int).Sub(e.Value, bigModulus(e.Size))
}

// Add returns the sum of e and other.
func (e *IntExpr) Add(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "add: size mismatch: %d != %d", e.Size, other.Size)
	return NewBigIntExpr(new(big.Int).Add(e.Value, other.Value), e.Size)
}

// Mul returns the product of e and other.
func (e *IntExpr) Mul(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "mul: size mismatch: %d != %d", e.Size, other.Size)
	return NewBigIntExpr(new(big.Int).Mul(e.Value, other.Value), e.Size)
}

// Neg returns the additive inverse of e.
func (e *IntExpr) Neg() *IntExpr {
	return NewBigIntExpr(new(big.Int).Neg(e.Value), e.Size)
}

// And returns the bitwise AND of e and other.
func (e *IntExpr) And(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "and: size mismatch: %d != %d", e.Size, other.Size)
	return NewBigIntExpr(new(big.Int).And(e.Value, other.Value), e.Size)
}

// Or returns the bitwise OR of e and other.
func (e *IntExpr) Or(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "or: size mismatch: %d != %d", e.Size, other.Size)
	return NewBigIntExpr(new(big.Int).Or(e.Value, other.Value), e.Size)
}

// Xor returns the bitwise XOR of e and other.
func (e *IntExpr) Xor(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "xor: size mismatch: %d != %d", e.Size, other.Size)
	return NewBigIntExpr(new(big.Int).Xor(e.Value, other.Value), e.Size)
}

// Shl returns e shifted left by other bits. Shifts of at least the size
// produce zero.
func (e *IntExpr) Shl(other *IntExpr) *IntExpr {
	n, ok := shiftAmount(other, e.Size)
	if !ok {
		return NewIntExpr(0, e.Size)
	}
	return NewBigIntExpr(new(big.Int).Lsh(e.Value, n), e.Size)
}

// LShr returns e logically shifted right by other bits.
func (e *IntExpr) LShr(other *IntExpr) *IntExpr {
	n, ok := shiftAmount(other, e.Size)
	if !ok {
		return NewIntExpr(0, e.Size)
	}
	return NewBigIntExpr(new(big.Int).Rsh(e.Value, n), e.Size)
}

// AShr returns e arithmetically shifted right by other bits.
func (e *IntExpr) AShr(other *IntExpr) *IntExpr {
	n, ok := shiftAmount(other, e.Size)
	if !ok {
		n = uint(e.Size)
	}
	return NewBigIntExpr(new(big.Int).Rsh(e.Signed(), n), e.Size)
}

// UDiv returns the unsigned quotient of e and other, which must be nonzero.
func (e *IntExpr) UDiv(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "udiv: size mismatch: %d != %d", e.Size, other.Size)
	assert(!other.IsZero(), "udiv: division by zero")
	return NewBigIntExpr(new(big.Int).Div(e.Value, other.Value), e.Size)
}

// URem returns the unsigned remainder of e divided by other.
func (e *IntExpr) URem(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "urem: size mismatch: %d != %d", e.Size, other.Size)
	assert(!other.IsZero(), "urem: division by zero")
	return NewBigIntExpr(new(big.Int).Mod(e.Value, other.Value), e.Size)
}

// SDiv returns the signed quotient of e and other, truncated toward zero.
func (e *IntExpr) SDiv(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "sdiv: size mismatch: %d != %d", e.Size, other.Size)
	assert(!other.IsZero(), "sdiv: division by zero")
	q := new(big.Int).Quo(e.Signed(), other.Signed())
	return NewBigIntExpr(q, e.Size)
}

// SRem returns the signed remainder of e divided by other.
func (e *IntExpr) SRem(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "srem: size mismatch: %d != %d", e.Size, other.Size)
	assert(!other.IsZero(), "srem: division by zero")
	r := new(big.Int).Rem(e.Signed(), other.Signed())
	return NewBigIntExpr(r, e.Size)
}

// Eq returns the 1-bit equality of e and other.
func (e *IntExpr) Eq(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "eq: size mismatch: %d != %d", e.Size, other.Size)
	return NewBoolIntExpr(e.Value.Cmp(other.Value) == 0)
}

// Ult returns the 1-bit unsigned less-than comparison of e and other.
func (e *IntExpr) Ult(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "ult: size mismatch: %d != %d", e.Size, other.Size)
	return NewBoolIntExpr(e.Value.Cmp(other.Value) < 0)
}

// Ule returns the 1-bit unsigned less-than-or-equal comparison.
func (e *IntExpr) Ule(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "ule: size mismatch: %d != %d", e.Size, other.Size)
	return NewBoolIntExpr(e.Value.Cmp(other.Value) <= 0)
}

// Slt returns the 1-bit signed less-than comparison.
func (e *IntExpr) Slt(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "slt: size mismatch: %d != %d", e.Size, other.Size)
	return NewBoolIntExpr(e.Signed().Cmp(other.Signed()) < 0)
}

// Sle returns the 1-bit signed less-than-or-equal comparison.
func (e *IntExpr) Sle(other *IntExpr) *IntExpr {
	assert(e.Size == other.Size, "sle: size mismatch: %d != %d", e.Size, other.Size)
	return NewBoolIntExpr(e.Signed().Cmp(other.Signed()) <= 0)
}

// Parity returns the 1-bit XOR of all bits of e.
func (e *IntExpr) Parity() *IntExpr {
	var ones int
	for i := 0; i < int(e.Size); i++ {
		if e.Value.Bit(i) == 1 {
			ones++
		}
	}
	return NewBoolIntExpr(ones%2 == 1)
}

// Extract returns bits [start, stop) of e as a constant of size stop-start.
func (e *IntExpr) Extract(start, stop uint) *IntExpr {
	assert(start < stop && stop <= e.Size, "extract out of bounds: [%d:%d) of %d", start, stop, e.Size)
	v := new(big.Int).Rsh(e.Value, start)
	v.And(v, bigMask(stop-start))
	return newIntExprBig(v, stop-start)
}

// Compose returns the concatenation of e in the low bits and high above it.
func (e *IntExpr) Compose(high *IntExpr) *IntExpr {
	v := new(big.Int).Lsh(high.Value, e.Size)
	v.Or(v, e.Value)
	return newIntExprBig(v, e.Size+high.Size)
}

// shiftAmount converts a shift operand to a bit count. ok is false when the
// amount is at least size bits.
func shiftAmount(amount *IntExpr, size uint) (uint, bool) {
	if amount.Value.Cmp(new(big.Int).SetUint64(uint64(size))) >= 0 {
		return 0, false
	}
	return uint(amount.Value.Uint64()), true
}

var bigOne = big.NewInt(1)

// bigModulus returns 2^size.
func bigModulus(size uint) *big.Int {
	return new(big.Int).Lsh(bigOne, size)
}

// bigMask returns 2^size - 1.
func bigMask(size uint) *big.Int {
	m := bigModulus(size)
	return m.Sub(m, bigOne)
}

// IdExpr represents a named symbolic identifier. Identity is (name, size):
// two ids with the same name but different sizes are distinct.
type IdExpr struct {
	Name string
	Size uint

	hash uint64
}

// NewIdExpr returns a new identifier expression.
func NewIdExpr(name string, size uint) *IdExpr {
	assert(name != "", "id name must not be empty")
	assert(size > 0, "id size must be positive")
	e := &IdExpr{Name: name, Size: size}
	e.hash = hashExpr(e)
	return e
}

// String returns the identifier name.
func (e *IdExpr) String() string { return e.Name }

// LocKey is an opaque handle for a symbolic program location. Keys are
// allocated by a LocationDB; the expression core only orders and hashes them.
type LocKey uint64

// LocExpr represents a symbolic program location of a given size.
type LocExpr struct {
	Key  LocKey
	Size uint

	hash uint64
}

// NewLocExpr returns a new location expression.
func NewLocExpr(key LocKey, size uint) *LocExpr {
	assert(size > 0, "loc size must be positive")
	e := &LocExpr{Key: key, Size: size}
	e.hash = hashExpr(e)
	return e
}

// String returns the default form for a location without registry metadata.
func (e *LocExpr) String() string {
	return fmt.Sprintf("loc_key_%d", uint64(e.Key))
}

// MemExpr represents a memory access of Size bits at a pointer expression.
// The access size is independent of the pointer's own size.
type MemExpr struct {
	Ptr  Expr
	Size uint

	hash uint64
}

// NewMemExpr returns a new memory access expression.
func NewMemExpr(ptr Expr, size uint) *MemExpr {
	assert(ptr != nil, "mem pointer must not be nil")
	assert(size > 0, "mem access size must be positive")
	e := &MemExpr{Ptr: ptr, Size: size}
	e.hash = hashExpr(e)
	return e
}

// String returns the canonical print form @{size}[{ptr}].
func (e *MemExpr) String() string {
	return fmt.Sprintf("@%d[%s]", e.Size, renderChild(e.Ptr, ""))
}

// SliceExpr represents bits [Start, Stop) of its argument.
type SliceExpr struct {
	Arg   Expr
	Start uint
	Stop  uint

	hash uint64
}

// NewSliceExpr returns a new slice expression for bits [start, stop) of arg.
func NewSliceExpr(arg Expr, start, stop uint) *SliceExpr {
	if sz := ExprSize(arg); start >= stop || stop > sz {
		invalid(ErrInvalidSlice, "slice [%d:%d) of %d-bit expression", start, stop, sz)
	}
	e := &SliceExpr{Arg: arg, Start: start, Stop: stop}
	e.hash = hashExpr(e)
	return e
}

// String returns the canonical print form {arg}[{start}:{stop}].
func (e *SliceExpr) String() string {
	return fmt.Sprintf("%s[%d:%d]", renderChild(e.Arg, ""), e.Start, e.Stop)
}

// ComposeExpr represents the bit concatenation of its arguments; argument i
// occupies the bits starting at the sum of the preceding argument sizes.
type ComposeExpr struct {
	Args []Expr

	hash uint64
}

// NewComposeExpr returns a new compose expression.
func NewComposeExpr(args ...Expr) *ComposeExpr {
	if len(args) == 0 {
		invalid(ErrInvalidCompose, "compose of zero arguments")
	}
	e := &ComposeExpr{Args: args}
	e.hash = hashExpr(e)
	return e
}

// Offsets returns the starting bit offset of each argument.
func (e *ComposeExpr) Offsets() []uint {
	offsets := make([]uint, len(e.Args))
	var off uint
	for i, arg := range e.Args {
		offsets[i] = off
		off += ExprSize(arg)
	}
	return offsets
}

// String returns the canonical print form {arg0 offset0 size0, ...}.
func (e *ComposeExpr) String() string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var off uint
	for i, arg := range e.Args {
		if i > 0 {
			buf.WriteString(", ")
		}
		sz := ExprSize(arg)
		fmt.Fprintf(&buf, "%s %d %d", renderChild(arg, ""), off, sz)
		off += sz
	}
	buf.WriteByte('}')
	return buf.String()
}

// OpExpr represents an n-ary operation. The operator symbol namespace is
// open; size rules are consulted at construction.
type OpExpr struct {
	Op   string
	Args []Expr

	hash uint64
}

// NewOpExpr returns a new operation expression. Operand sizes are checked
// against the operator's size rule; violations panic with ErrSizeMismatch.
func NewOpExpr(op string, args ...Expr) *OpExpr {
	assert(op != "", "op symbol must not be empty")
	assert(len(args) >= 1, "op %q requires at least one argument", op)

	switch opSizeRule(op) {
	case sizeRuleCompare:
		if len(args) != 2 {
			invalid(ErrSizeMismatch, "op %q requires exactly two operands, got %d", op, len(args))
		}
		if a, b := ExprSize(args[0]), ExprSize(args[1]); a != b {
			invalid(ErrSizeMismatch, "op %q operand sizes %d and %d", op, a, b)
		}
	case sizeRuleBoolTest:
		if len(args) != 1 {
			invalid(ErrSizeMismatch, "op %q requires exactly one operand, got %d", op, len(args))
		}
	default:
		if op == "-" && len(args) != 1 {
			invalid(ErrSizeMismatch, "unary - requires exactly one operand, got %d", len(args))
		}
		size := ExprSize(args[0])
		for _, arg := range args[1:] {
			if sz := ExprSize(arg); sz != size {
				invalid(ErrSizeMismatch, "op %q operand sizes %d and %d", op, size, sz)
			}
		}
	}

	e := &OpExpr{Op: op, Args: args}
	e.hash = hashExpr(e)
	return e
}

// NewAddExpr returns the n-ary sum of args.
func NewAddExpr(args ...Expr) *OpExpr {
	return NewOpExpr("+", args...)
}

// NewNegExpr returns the additive inverse of arg.
func NewNegExpr(arg Expr) *OpExpr {
	return NewOpExpr("-", arg)
}

// NewSubExpr returns a - b, normalized at construction to a + (-b).
// There is no binary subtraction node.
func NewSubExpr(a, b Expr) *OpExpr {
	return NewOpExpr("+", a, NewNegExpr(b))
}

// String returns the canonical infix print form. Sub-expressions are
// parenthesized when their own top-level symbol differs from the enclosing
// one.
func (e *OpExpr) String() string {
	if e.Op == "-" && len(e.Args) == 1 {
		return "-" + renderChild(e.Args[0], "-")
	}
	parts := make([]string, len(e.Args))
	for i, arg := range e.Args {
		parts[i] = renderChild(arg, e.Op)
	}
	return strings.Join(parts, " "+e.Op+" ")
}

// renderChild prints a child expression within an enclosing context.
// parent is the enclosing operator symbol, or empty for non-operator
// contexts, which always parenthesize operator children.
func renderChild(e Expr, parent string) string {
	if op, ok := e.(*OpExpr); ok && op.Op != parent {
		return "(" + op.String() + ")"
	}
	return e.String()
}

// CondExpr represents a ternary choice: Src1 if Cond is nonzero, Src2
// otherwise. The condition size is unconstrained relative to the result.
type CondExpr struct {
	Cond Expr
	Src1 Expr
	Src2 Expr

	hash uint64
}

// NewCondExpr returns a new conditional expression.
func NewCondExpr(cond, src1, src2 Expr) *CondExpr {
	if a, b := ExprSize(src1), ExprSize(src2); a != b {
		invalid(ErrSizeMismatch, "cond branch sizes %d and %d", a, b)
	}
	e := &CondExpr{Cond: cond, Src1: src1, Src2: src2}
	e.hash = hashExpr(e)
	return e
}

// String returns the canonical print form {cond}?({src1},{src2}).
func (e *CondExpr) String() string {
	return fmt.Sprintf("%s?(%s,%s)", renderChild(e.Cond, ""),
		renderChild(e.Src1, ""), renderChild(e.Src2, ""))
}

// Assign represents the statement dst = src. It is deliberately not an
// Expr: an assignment can never appear in argument position.
type Assign struct {
	Dst Expr
	Src Expr
}

// NewAssign returns a new assignment statement.
func NewAssign(dst, src Expr) Assign {
	if a, b := ExprSize(dst), ExprSize(src); a != b {
		invalid(ErrSizeMismatch, "assign sizes %d and %d", a, b)
	}
	return Assign{Dst: dst, Src: src}
}

// String returns the print form {dst} = {src}.
func (a Assign) String() string {
	return fmt.Sprintf("%s = %s", renderChild(a.Dst, ""), renderChild(a.Src, ""))
}

// Kind predicates.

// IsIntExpr returns true if expr is a constant.
func IsIntExpr(expr Expr) bool {
	_, ok := expr.(*IntExpr)
	return ok
}

// IsIdExpr returns true if expr is an identifier.
func IsIdExpr(expr Expr) bool {
	_, ok := expr.(*IdExpr)
	return ok
}

// IsLocExpr returns true if expr is a location.
func IsLocExpr(expr Expr) bool {
	_, ok := expr.(*LocExpr)
	return ok
}

// IsMemExpr returns true if expr is a memory access.
func IsMemExpr(expr Expr) bool {
	_, ok := expr.(*MemExpr)
	return ok
}

// IsSliceExpr returns true if expr is a slice.
func IsSliceExpr(expr Expr) bool {
	_, ok := expr.(*SliceExpr)
	return ok
}

// IsComposeExpr returns true if expr is a compose.
func IsComposeExpr(expr Expr) bool {
	_, ok := expr.(*ComposeExpr)
	return ok
}

// IsCondExpr returns true if expr is a conditional.
func IsCondExpr(expr Expr) bool {
	_, ok := expr.(*CondExpr)
	return ok
}

// IsOpExpr returns true if expr is an operation. If symbols are given, the
// operator must additionally match one of them.
func IsOpExpr(expr Expr, symbols ...string) bool {
	op, ok := expr.(*OpExpr)
	if !ok {
		return false
	}
	if len(symbols) == 0 {
		return true
	}
	for _, sym := range symbols {
		if op.Op == sym {
			return true
		}
	}
	return false
}

// CompareExpr returns an integer comparing two expressions structurally.
// The result is 0 if a==b, -1 if a < b, and +1 if a > b. The order is total
// and deterministic; it also defines the canonical operand order for
// commutative operators.
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	}
	if a == b {
		return 0
	}

	if ak, bk := ExprKind(a), ExprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}

	switch a := a.(type) {
	case *IntExpr:
		return compareIntExpr(a, b.(*IntExpr))
	case *IdExpr:
		return compareIdExpr(a, b.(*IdExpr))
	case *LocExpr:
		return compareLocExpr(a, b.(*LocExpr))
	case *MemExpr:
		return compareMemExpr(a, b.(*MemExpr))
	case *SliceExpr:
		return compareSliceExpr(a, b.(*SliceExpr))
	case *ComposeExpr:
		return compareExprLists(a.Args, b.(*ComposeExpr).Args)
	case *OpExpr:
		return compareOpExpr(a, b.(*OpExpr))
	case *CondExpr:
		return compareCondExpr(a, b.(*CondExpr))
	default:
		panic("unreachable")
	}
}

// ExprEqual returns true if a and b are structurally equal.
func ExprEqual(a, b Expr) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if ExprHash(a) != ExprHash(b) {
		return false
	}
	return CompareExpr(a, b) == 0
}

func compareIntExpr(a, b *IntExpr) int {
	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}
	return a.Value.Cmp(b.Value)
}

func compareIdExpr(a, b *IdExpr) int {
	if a.Name < b.Name {
		return -1
	} else if a.Name > b.Name {
		return 1
	}
	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}
	return 0
}

func compareLocExpr(a, b *LocExpr) int {
	if a.Key < b.Key {
		return -1
	} else if a.Key > b.Key {
		return 1
	}
	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}
	return 0
}

func compareMemExpr(a, b *MemExpr) int {
	if a.Size < b.Size {
		return -1
	} else if a.Size > b.Size {
		return 1
	}
	return CompareExpr(a.Ptr, b.Ptr)
}

func compareSliceExpr(a, b *SliceExpr) int {
	if a.Start < b.Start {
		return -1
	} else if a.Start > b.Start {
		return 1
	}
	if a.Stop < b.Stop {
		return -1
	} else if a.Stop > b.Stop {
		return 1
	}
	return CompareExpr(a.Arg, b.Arg)
}

func compareOpExpr(a, b *OpExpr) int {
	if a.Op < b.Op {
		return -1
	} else if a.Op > b.Op {
		return 1
	}
	return compareExprLists(a.Args, b.Args)
}

func compareCondExpr(a, b *CondExpr) int {
	if cmp := CompareExpr(a.Cond, b.Cond); cmp != 0 {
		return cmp
	}
	if cmp := CompareExpr(a.Src1, b.Src1); cmp != 0 {
		return cmp
	}
	return CompareExpr(a.Src2, b.Src2)
}

func compareExprLists(a, b []Expr) int {
	if len(a) < len(b) {
		return -1
	} else if len(a) > len(b) {
		return 1
	}
	for i := range a {
		if cmp := CompareExpr(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// ExprChildren returns the direct children of expr in argument order.
// Together with ExprKind and ExprSize this is the visitor export surface
// for external translators.
func ExprChildren(expr Expr) []Expr {
	switch expr := expr.(type) {
	case *IntExpr, *IdExpr, *LocExpr:
		return nil
	case *MemExpr:
		return []Expr{expr.Ptr}
	case *SliceExpr:
		return []Expr{expr.Arg}
	case *ComposeExpr:
		return expr.Args
	case *OpExpr:
		return expr.Args
	case *CondExpr:
		return []Expr{expr.Cond, expr.Src1, expr.Src2}
	default:
		panic("unreachable")
	}
}

// exprWithChildren rebuilds expr with replacement children, re-running
// construction-time validation. Leaves are returned unchanged.
func exprWithChildren(expr Expr, children []Expr) Expr {
	switch expr := expr.(type) {
	case *IntExpr, *IdExpr, *LocExpr:
		return expr
	case *MemExpr:
		return NewMemExpr(children[0], expr.Size)
	case *SliceExpr:
		return NewSliceExpr(children[0], expr.Start, expr.Stop)
	case *ComposeExpr:
		return NewComposeExpr(children...)
	case *OpExpr:
		return NewOpExpr(expr.Op, children...)
	case *CondExpr:
		return NewCondExpr(children[0], children[1], children[2])
	default:
		panic("unreachable")
	}
}

// Walk traverses the expression tree in pre-order, calling fn for each
// node. If fn returns false the node's children are skipped.
func Walk(expr Expr, fn func(Expr) bool) {
	if !fn(expr) {
		return
	}
	for _, child := range ExprChildren(expr) {
		Walk(child, fn)
	}
}
