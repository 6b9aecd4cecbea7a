package miasm

import (
	"encoding/binary"
	"hash/fnv"
	"sync"
)

// Domain tags keep hashes of different kinds apart even when their payloads
// coincide.
const (
	hashTagInt = iota + 1
	hashTagId
	hashTagLoc
	hashTagMem
	hashTagSlice
	hashTagCompose
	hashTagOp
	hashTagCond
)

// ExprHash returns the structural hash of the expression: a function of
// kind, size, per-kind payload, and children hashes. Constructors cache the
// hash at construction; nodes assembled as struct literals are hashed on
// the fly.
func ExprHash(expr Expr) uint64 {
	if h := cachedHash(expr); h != 0 {
		return h
	}
	return hashExpr(expr)
}

func cachedHash(expr Expr) uint64 {
	switch expr := expr.(type) {
	case *IntExpr:
		return expr.hash
	case *IdExpr:
		return expr.hash
	case *LocExpr:
		return expr.hash
	case *MemExpr:
		return expr.hash
	case *SliceExpr:
		return expr.hash
	case *ComposeExpr:
		return expr.hash
	case *OpExpr:
		return expr.hash
	case *CondExpr:
		return expr.hash
	default:
		panic("unreachable")
	}
}

func hashExpr(expr Expr) uint64 {
	h := fnv.New64a()
	var buf [8]byte

	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeTag := func(tag byte) {
		h.Write([]byte{tag})
	}

	switch expr := expr.(type) {
	case *IntExpr:
		writeTag(hashTagInt)
		writeUint(uint64(expr.Size))
		h.Write(expr.Value.Bytes())
	case *IdExpr:
		writeTag(hashTagId)
		writeUint(uint64(expr.Size))
		h.Write([]byte(expr.Name))
	case *LocExpr:
		writeTag(hashTagLoc)
		writeUint(uint64(expr.Size))
		writeUint(uint64(expr.Key))
	case *MemExpr:
		writeTag(hashTagMem)
		writeUint(uint64(expr.Size))
		writeUint(ExprHash(expr.Ptr))
	case *SliceExpr:
		writeTag(hashTagSlice)
		writeUint(uint64(expr.Start))
		writeUint(uint64(expr.Stop))
		writeUint(ExprHash(expr.Arg))
	case *ComposeExpr:
		writeTag(hashTagCompose)
		for _, arg := range expr.Args {
			writeUint(ExprHash(arg))
		}
	case *OpExpr:
		writeTag(hashTagOp)
		h.Write([]byte(expr.Op))
		writeTag(0)
		for _, arg := range expr.Args {
			writeUint(ExprHash(arg))
		}
	case *CondExpr:
		writeTag(hashTagCond)
		writeUint(ExprHash(expr.Cond))
		writeUint(ExprHash(expr.Src1))
		writeUint(ExprHash(expr.Src2))
	default:
		panic("unreachable")
	}

	sum := h.Sum64()
	if sum == 0 {
		sum = 1 // zero marks an uncomputed cache slot
	}
	return sum
}

// Interner deduplicates structurally equal expressions to a single shared
// instance. Interning is an identity/memory optimization only; it never
// changes observable semantics. The zero value is ready to use and safe for
// concurrent callers.
type Interner struct {
	mu      sync.Mutex
	buckets map[uint64][]Expr
}

// NewInterner returns a new empty interning table.
func NewInterner() *Interner {
	return &Interner{buckets: make(map[uint64][]Expr)}
}

// Intern returns the canonical instance for expr, deduplicating the whole
// tree bottom-up. The first instance of each distinct subexpression becomes
// canonical.
func (in *Interner) Intern(expr Expr) Expr {
	children := ExprChildren(expr)
	if len(children) > 0 {
		interned := make([]Expr, len(children))
		var changed bool
		for i, child := range children {
			interned[i] = in.Intern(child)
			if interned[i] != child {
				changed = true
			}
		}
		if changed {
			expr = exprWithChildren(expr, interned)
		}
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.buckets == nil {
		in.buckets = make(map[uint64][]Expr)
	}
	h := ExprHash(expr)
	for _, other := range in.buckets[h] {
		if CompareExpr(other, expr) == 0 {
			return other
		}
	}
	in.buckets[h] = append(in.buckets[h], expr)
	return expr
}

// Len returns the number of distinct interned expressions.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	var n int
	for _, bucket := range in.buckets {
		n += len(bucket)
	}
	return n
}
