// Package llvm lowers expression trees to LLVM IR using llir/llvm. Each
// translated expression becomes a function whose parameters are the free
// ids and locations of the tree, sorted by name, and whose return value is
// the computed expression.
package llvm

import (
	"fmt"
	"sort"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/H0K5/miasm"
)

// Translator accumulates translated functions into one LLVM module.
type Translator struct {
	m     *ir.Module
	ctpop map[uint]*ir.Func
}

// NewTranslator returns a translator with an empty module.
func NewTranslator() *Translator {
	return &Translator{
		m:     ir.NewModule(),
		ctpop: make(map[uint]*ir.Func),
	}
}

// Module returns the accumulated module.
func (t *Translator) Module() *ir.Module { return t.m }

// AddFunc translates expr into a function that computes it. The free ids
// and locations of expr become integer parameters in name order.
func (t *Translator) AddFunc(name string, expr miasm.Expr) (*ir.Func, error) {
	leaves, err := freeLeaves(expr)
	if err != nil {
		return nil, err
	}

	params := make([]*ir.Param, len(leaves))
	for i, leaf := range leaves {
		params[i] = ir.NewParam(leaf.name, types.NewInt(uint64(leaf.size)))
	}
	fn := t.m.NewFunc(name, types.NewInt(uint64(miasm.ExprSize(expr))), params...)

	b := &builder{
		t:      t,
		block:  fn.NewBlock(""),
		params: make(map[string]value.Value, len(params)),
	}
	for _, param := range params {
		b.params[param.Name()] = param
	}

	v, err := b.emit(expr)
	if err != nil {
		return nil, err
	}
	b.block.NewRet(v)
	return fn, nil
}

// AddAssignFunc translates a block of assignments into a void function.
// Source-side free ids become integer parameters; id and location
// destinations become pointer parameters that receive a store; memory
// destinations store through the translated pointer expression.
func (t *Translator) AddAssignFunc(name string, assigns []miasm.Assign) (*ir.Func, error) {
	var srcs []miasm.Expr
	for _, a := range assigns {
		srcs = append(srcs, a.Src)
		if mem, ok := a.Dst.(*miasm.MemExpr); ok {
			srcs = append(srcs, mem.Ptr)
		}
	}
	leaves, err := freeLeaves(srcs...)
	if err != nil {
		return nil, err
	}

	params := make([]*ir.Param, 0, len(leaves)+len(assigns))
	for _, leaf := range leaves {
		params = append(params, ir.NewParam(leaf.name, types.NewInt(uint64(leaf.size))))
	}
	outs := make(map[string]*ir.Param)
	for _, a := range assigns {
		switch dst := a.Dst.(type) {
		case *miasm.IdExpr, *miasm.LocExpr:
			n := dst.String()
			if _, ok := outs[n]; ok {
				continue
			}
			p := ir.NewParam(n+"_out", types.NewPointer(types.NewInt(uint64(miasm.ExprSize(dst)))))
			outs[n] = p
			params = append(params, p)
		case *miasm.MemExpr:
		default:
			return nil, fmt.Errorf("llvm: invalid assignment destination: %s", a.Dst)
		}
	}

	fn := t.m.NewFunc(name, types.Void, params...)
	b := &builder{
		t:      t,
		block:  fn.NewBlock(""),
		params: make(map[string]value.Value, len(leaves)),
	}
	for _, leaf := range leaves {
		for _, param := range params {
			if param.Name() == leaf.name {
				b.params[leaf.name] = param
			}
		}
	}

	for _, a := range assigns {
		src, err := b.emit(a.Src)
		if err != nil {
			return nil, err
		}
		switch dst := a.Dst.(type) {
		case *miasm.IdExpr, *miasm.LocExpr:
			b.block.NewStore(src, outs[dst.String()])
		case *miasm.MemExpr:
			ptr, err := b.emitMemPtr(dst)
			if err != nil {
				return nil, err
			}
			b.block.NewStore(src, ptr)
		}
	}
	b.block.NewRet(nil)
	return fn, nil
}

// TranslateExpr translates a single expression into a fresh one-function
// module.
func TranslateExpr(name string, expr miasm.Expr) (*ir.Module, error) {
	t := NewTranslator()
	if _, err := t.AddFunc(name, expr); err != nil {
		return nil, err
	}
	return t.Module(), nil
}

// leaf is one free id or location of a translated tree.
type leaf struct {
	name string
	size uint
}

// freeLeaves collects the free ids and locations of the given trees,
// sorted by name. Two leaves sharing a name must agree on size.
func freeLeaves(exprs ...miasm.Expr) ([]leaf, error) {
	seen := make(map[string]uint)
	var names []string
	var walkErr error
	for _, expr := range exprs {
		miasm.Walk(expr, func(e miasm.Expr) bool {
			var name string
			switch e.(type) {
			case *miasm.IdExpr, *miasm.LocExpr:
				name = e.String()
			default:
				return true
			}
			size := miasm.ExprSize(e)
			if prev, ok := seen[name]; ok {
				if prev != size && walkErr == nil {
					walkErr = fmt.Errorf("llvm: conflicting sizes for %s: %d and %d", name, prev, size)
				}
				return true
			}
			seen[name] = size
			names = append(names, name)
			return true
		})
	}
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(names)
	leaves := make([]leaf, len(names))
	for i, name := range names {
		leaves[i] = leaf{name: name, size: seen[name]}
	}
	return leaves, nil
}

// builder emits instructions for one function body.
type builder struct {
	t      *Translator
	block  *ir.Block
	params map[string]value.Value
}

// emit returns the instruction sequence computing expr.
func (b *builder) emit(expr miasm.Expr) (value.Value, error) {
	switch expr := expr.(type) {
	case *miasm.IntExpr:
		return b.emitInt(expr)
	case *miasm.IdExpr:
		return b.emitParam(expr.Name)
	case *miasm.LocExpr:
		return b.emitParam(expr.String())
	case *miasm.MemExpr:
		return b.emitMem(expr)
	case *miasm.SliceExpr:
		return b.emitSlice(expr)
	case *miasm.ComposeExpr:
		return b.emitCompose(expr)
	case *miasm.OpExpr:
		return b.emitOp(expr)
	case *miasm.CondExpr:
		return b.emitCond(expr)
	default:
		return nil, fmt.Errorf("llvm: invalid expression type: %T", expr)
	}
}

func (b *builder) emitInt(expr *miasm.IntExpr) (value.Value, error) {
	v, err := constant.NewIntFromString(types.NewInt(uint64(expr.Size)), expr.Value.Text(10))
	if err != nil {
		return nil, fmt.Errorf("llvm: constant %s: %w", expr, err)
	}
	return v, nil
}

func (b *builder) emitParam(name string) (value.Value, error) {
	v, ok := b.params[name]
	if !ok {
		return nil, fmt.Errorf("llvm: unbound parameter: %s", name)
	}
	return v, nil
}

func (b *builder) emitMem(expr *miasm.MemExpr) (value.Value, error) {
	ptr, err := b.emitMemPtr(expr)
	if err != nil {
		return nil, err
	}
	return b.block.NewLoad(types.NewInt(uint64(expr.Size)), ptr), nil
}

// emitMemPtr lowers the pointer operand to an inttoptr of the access type.
func (b *builder) emitMemPtr(expr *miasm.MemExpr) (value.Value, error) {
	addr, err := b.emit(expr.Ptr)
	if err != nil {
		return nil, err
	}
	return b.block.NewIntToPtr(addr, types.NewPointer(types.NewInt(uint64(expr.Size)))), nil
}

// emitSlice shifts the start bit down and truncates to the slice width.
func (b *builder) emitSlice(expr *miasm.SliceExpr) (value.Value, error) {
	arg, err := b.emit(expr.Arg)
	if err != nil {
		return nil, err
	}
	if expr.Start > 0 {
		shift := constant.NewInt(types.NewInt(uint64(miasm.ExprSize(expr.Arg))), int64(expr.Start))
		arg = b.block.NewLShr(arg, shift)
	}
	if width := expr.Stop - expr.Start; width < miasm.ExprSize(expr.Arg) {
		return b.block.NewTrunc(arg, types.NewInt(uint64(width))), nil
	}
	return arg, nil
}

// emitCompose zero-extends each argument to the full width, shifts it to
// its bit offset, and ors the pieces together.
func (b *builder) emitCompose(expr *miasm.ComposeExpr) (value.Value, error) {
	total := types.NewInt(uint64(miasm.ExprSize(expr)))
	offsets := expr.Offsets()

	var acc value.Value
	for i, arg := range expr.Args {
		v, err := b.emit(arg)
		if err != nil {
			return nil, err
		}
		piece := value.Value(v)
		if miasm.ExprSize(arg) < miasm.ExprSize(expr) {
			piece = b.block.NewZExt(piece, total)
		}
		if offsets[i] > 0 {
			piece = b.block.NewShl(piece, constant.NewInt(total, int64(offsets[i])))
		}
		if acc == nil {
			acc = piece
		} else {
			acc = b.block.NewOr(acc, piece)
		}
	}
	return acc, nil
}

func (b *builder) emitOp(expr *miasm.OpExpr) (value.Value, error) {
	args := make([]value.Value, len(expr.Args))
	for i, arg := range expr.Args {
		v, err := b.emit(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	if expr.Op == "-" {
		size := types.NewInt(uint64(miasm.ExprSize(expr)))
		return b.block.NewSub(constant.NewInt(size, 0), args[0]), nil
	}
	if expr.Op == "parity" {
		return b.emitParity(args[0], miasm.ExprSize(expr.Args[0]))
	}

	switch expr.Op {
	case "+", "*", "&", "|", "^":
		acc := args[0]
		for _, arg := range args[1:] {
			switch expr.Op {
			case "+":
				acc = b.block.NewAdd(acc, arg)
			case "*":
				acc = b.block.NewMul(acc, arg)
			case "&":
				acc = b.block.NewAnd(acc, arg)
			case "|":
				acc = b.block.NewOr(acc, arg)
			case "^":
				acc = b.block.NewXor(acc, arg)
			}
		}
		return acc, nil
	case "<<":
		return b.block.NewShl(args[0], args[1]), nil
	case ">>":
		return b.block.NewLShr(args[0], args[1]), nil
	case "a>>":
		return b.block.NewAShr(args[0], args[1]), nil
	case "/":
		return b.block.NewUDiv(args[0], args[1]), nil
	case "%":
		return b.block.NewURem(args[0], args[1]), nil
	case "sdiv":
		return b.block.NewSDiv(args[0], args[1]), nil
	case "smod":
		return b.block.NewSRem(args[0], args[1]), nil
	case "==":
		return b.block.NewICmp(enum.IPredEQ, args[0], args[1]), nil
	case "<u":
		return b.block.NewICmp(enum.IPredULT, args[0], args[1]), nil
	case "<=u":
		return b.block.NewICmp(enum.IPredULE, args[0], args[1]), nil
	case "<s":
		return b.block.NewICmp(enum.IPredSLT, args[0], args[1]), nil
	case "<=s":
		return b.block.NewICmp(enum.IPredSLE, args[0], args[1]), nil
	default:
		return nil, fmt.Errorf("llvm: unsupported operator: %q", expr.Op)
	}
}

// emitParity counts the set bits with llvm.ctpop and truncates to i1.
func (b *builder) emitParity(arg value.Value, size uint) (value.Value, error) {
	if size == 1 {
		return arg, nil
	}
	fn, ok := b.t.ctpop[size]
	if !ok {
		typ := types.NewInt(uint64(size))
		fn = b.t.m.NewFunc(fmt.Sprintf("llvm.ctpop.i%d", size), typ, ir.NewParam("", typ))
		b.t.ctpop[size] = fn
	}
	count := b.block.NewCall(fn, arg)
	return b.block.NewTrunc(count, types.I1), nil
}

// emitCond selects between the branches on cond != 0.
func (b *builder) emitCond(expr *miasm.CondExpr) (value.Value, error) {
	cond, err := b.emit(expr.Cond)
	if err != nil {
		return nil, err
	}
	src1, err := b.emit(expr.Src1)
	if err != nil {
		return nil, err
	}
	src2, err := b.emit(expr.Src2)
	if err != nil {
		return nil, err
	}
	zero := constant.NewInt(types.NewInt(uint64(miasm.ExprSize(expr.Cond))), 0)
	test := b.block.NewICmp(enum.IPredNE, cond, zero)
	return b.block.NewSelect(test, src1, src2), nil
}
