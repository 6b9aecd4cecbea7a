package miasm_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/H0K5/miasm"
)

func TestSimplify_ConstantFold(t *testing.T) {
	t.Run("AddWraps", func(t *testing.T) {
		expr := miasm.NewOpExpr("+", miasm.NewIntExpr(16, 32), miasm.NewIntExpr(0xFFFFFFFF, 32))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(0xF, 32)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("NaryAggregate", func(t *testing.T) {
		a := miasm.NewIdExpr("a", 32)
		expr := miasm.NewOpExpr("+", miasm.NewIntExpr(1, 32), a, miasm.NewIntExpr(2, 32))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewOpExpr("+", miasm.NewIntExpr(3, 32), a)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Compare", func(t *testing.T) {
		expr := miasm.NewOpExpr("<u", miasm.NewIntExpr(3, 8), miasm.NewIntExpr(5, 8))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(1, 1)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("DivByZeroUntouched", func(t *testing.T) {
		expr := miasm.NewOpExpr("/", miasm.NewIntExpr(1, 8), miasm.NewIntExpr(0, 8))
		if out := miasm.Simplify(expr); out != miasm.Expr(expr) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_AddTerms(t *testing.T) {
	a := miasm.NewIdExpr("a", 32)

	t.Run("CancelSub", func(t *testing.T) {
		expr := miasm.NewOpExpr("+", a, a, miasm.NewNegExpr(a))
		if out := miasm.Simplify(expr); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("FoldRepeats", func(t *testing.T) {
		expr := miasm.NewOpExpr("+", a, a, a, a)
		out := miasm.Simplify(expr)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewOpExpr("*", miasm.NewIntExpr(4, 32), a)),
			out,
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
		if s := out.String(); s != "0x4 * a" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("MergeCoefficient", func(t *testing.T) {
		expr := miasm.NewOpExpr("+", miasm.NewOpExpr("*", miasm.NewIntExpr(2, 32), a), a)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewOpExpr("*", miasm.NewIntExpr(3, 32), a)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("AllCanceled", func(t *testing.T) {
		expr := miasm.NewOpExpr("+", a, miasm.NewNegExpr(a))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(0, 32)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestSimplify_Commutative(t *testing.T) {
	a, b := miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32)
	x := miasm.Simplify(miasm.NewOpExpr("+", a, b))
	y := miasm.Simplify(miasm.NewOpExpr("+", b, a))
	if !miasm.ExprEqual(x, y) {
		t.Fatalf("not canonical: %s vs %s", x, y)
	}
}

func TestSimplify_Idempotent(t *testing.T) {
	a, b := miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32)
	expr := miasm.NewOpExpr("+",
		miasm.NewOpExpr("+", b, a),
		miasm.NewSliceExpr(miasm.NewComposeExpr(miasm.NewIdExpr("c", 16), miasm.NewIdExpr("d", 16)), 0, 32),
	)
	once := miasm.Simplify(expr)
	twice := miasm.Simplify(once)
	if !miasm.ExprEqual(once, twice) {
		t.Fatalf("not a fixed point: %s vs %s", once, twice)
	}
}

func TestSimplify_Identity(t *testing.T) {
	a := miasm.NewIdExpr("a", 32)

	for _, tt := range []struct {
		name string
		expr miasm.Expr
		want miasm.Expr
	}{
		{"AddZero", miasm.NewOpExpr("+", a, miasm.NewIntExpr(0, 32)), a},
		{"MulOne", miasm.NewOpExpr("*", a, miasm.NewIntExpr(1, 32)), a},
		{"MulZero", miasm.NewOpExpr("*", a, miasm.NewIntExpr(0, 32)), miasm.NewIntExpr(0, 32)},
		{"AndZero", miasm.NewOpExpr("&", a, miasm.NewIntExpr(0, 32)), miasm.NewIntExpr(0, 32)},
		{"AndMask", miasm.NewOpExpr("&", a, miasm.NewIntExpr(0xFFFFFFFF, 32)), a},
		{"OrZero", miasm.NewOpExpr("|", a, miasm.NewIntExpr(0, 32)), a},
		{"OrMask", miasm.NewOpExpr("|", a, miasm.NewIntExpr(0xFFFFFFFF, 32)), miasm.NewIntExpr(0xFFFFFFFF, 32)},
		{"XorZero", miasm.NewOpExpr("^", a, miasm.NewIntExpr(0, 32)), a},
		{"ShlZero", miasm.NewOpExpr("<<", a, miasm.NewIntExpr(0, 32)), a},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, miasm.Simplify(tt.expr), exprCmpOpts); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestSimplify_Bitwise(t *testing.T) {
	a, b := miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32)

	t.Run("XorSelf", func(t *testing.T) {
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(0, 32)),
			miasm.Simplify(miasm.NewOpExpr("^", a, a)),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("AndSelf", func(t *testing.T) {
		if out := miasm.Simplify(miasm.NewOpExpr("&", a, a)); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("OrDedupe", func(t *testing.T) {
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewOpExpr("|", a, b)),
			miasm.Simplify(miasm.NewOpExpr("|", a, b, a)),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("DoubleNeg", func(t *testing.T) {
		if out := miasm.Simplify(miasm.NewNegExpr(miasm.NewNegExpr(a))); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_TrivialCompare(t *testing.T) {
	a := miasm.NewIdExpr("a", 32)
	t.Run("EqSelf", func(t *testing.T) {
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(1, 1)),
			miasm.Simplify(miasm.NewOpExpr("==", a, a)),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("UltSelf", func(t *testing.T) {
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(0, 1)),
			miasm.Simplify(miasm.NewOpExpr("<u", a, a)),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestSimplify_Slice(t *testing.T) {
	a := miasm.NewIdExpr("a", 32)

	t.Run("OfInt", func(t *testing.T) {
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(1, 1)),
			miasm.Simplify(miasm.NewSliceExpr(miasm.NewIntExpr(16, 32), 4, 5)),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("OfSlice", func(t *testing.T) {
		expr := miasm.NewSliceExpr(miasm.NewSliceExpr(a, 8, 24), 4, 12)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewSliceExpr(a, 12, 20)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Full", func(t *testing.T) {
		if out := miasm.Simplify(miasm.NewSliceExpr(a, 0, 32)); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("OfCompose", func(t *testing.T) {
		lo, hi := miasm.NewIdExpr("lo", 8), miasm.NewIdExpr("hi", 8)
		expr := miasm.NewSliceExpr(miasm.NewComposeExpr(lo, hi), 4, 12)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewComposeExpr(
				miasm.NewSliceExpr(lo, 4, 8),
				miasm.NewSliceExpr(hi, 0, 4),
			)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("OfComposeAligned", func(t *testing.T) {
		lo, hi := miasm.NewIdExpr("lo", 8), miasm.NewIdExpr("hi", 8)
		expr := miasm.NewSliceExpr(miasm.NewComposeExpr(lo, hi), 8, 16)
		if out := miasm.Simplify(expr); out != miasm.Expr(hi) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_Compose(t *testing.T) {
	t.Run("MergeInts", func(t *testing.T) {
		expr := miasm.NewComposeExpr(miasm.NewIntExpr(0xAA, 8), miasm.NewIntExpr(0xBB, 8))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(0xBBAA, 16)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ZeroExtendOfInt", func(t *testing.T) {
		expr := miasm.ZeroExtendExpr(miasm.NewIntExpr(5, 8), 32)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewIntExpr(5, 32)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Flatten", func(t *testing.T) {
		a, b, c := miasm.NewIdExpr("a", 8), miasm.NewIdExpr("b", 8), miasm.NewIdExpr("c", 8)
		expr := miasm.NewComposeExpr(miasm.NewComposeExpr(a, b), c)
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewComposeExpr(a, b, c)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("MergeContiguousSlices", func(t *testing.T) {
		a := miasm.NewIdExpr("a", 32)
		expr := miasm.NewComposeExpr(miasm.NewSliceExpr(a, 0, 8), miasm.NewSliceExpr(a, 8, 16))
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewSliceExpr(a, 0, 16)),
			miasm.Simplify(expr),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Rebuild", func(t *testing.T) {
		// A full reslice of a compose folds back to the composed value.
		a := miasm.NewIdExpr("a", 32)
		expr := miasm.NewComposeExpr(miasm.NewSliceExpr(a, 0, 16), miasm.NewSliceExpr(a, 16, 32))
		if out := miasm.Simplify(expr); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_Cond(t *testing.T) {
	a, b := miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32)

	t.Run("ConstTrue", func(t *testing.T) {
		expr := miasm.NewCondExpr(miasm.NewIntExpr(3, 8), a, b)
		if out := miasm.Simplify(expr); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("ConstFalse", func(t *testing.T) {
		expr := miasm.NewCondExpr(miasm.NewIntExpr(0, 8), a, b)
		if out := miasm.Simplify(expr); out != miasm.Expr(b) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("SameBranches", func(t *testing.T) {
		expr := miasm.NewCondExpr(miasm.NewIdExpr("z", 1), a, a)
		if out := miasm.Simplify(expr); out != miasm.Expr(a) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_SignedComparePasses(t *testing.T) {
	a, b := miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32)
	msbSub := miasm.MSBExpr(miasm.NewSubExpr(a, b))

	t.Run("Disabled", func(t *testing.T) {
		out := miasm.Simplify(msbSub)
		if miasm.IsOpExpr(out, "<s") {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
	t.Run("MSBSubToSlt", func(t *testing.T) {
		s := miasm.NewSimplifier()
		s.EnablePasses(miasm.SignedComparePasses())
		if diff := cmp.Diff(
			miasm.Expr(miasm.NewOpExpr("<s", a, b)),
			s.Simplify(msbSub),
			exprCmpOpts,
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("CondBoolCollapse", func(t *testing.T) {
		z := miasm.NewIdExpr("z", 1)
		expr := miasm.NewCondExpr(z, miasm.NewIntExpr(1, 1), miasm.NewIntExpr(0, 1))
		s := miasm.NewSimplifier()
		s.EnablePasses(miasm.SignedComparePasses())
		if out := s.Simplify(expr); out != miasm.Expr(z) {
			t.Fatalf("unexpected expr: %s", out)
		}
	})
}

func TestSimplify_UnknownOpUntouched(t *testing.T) {
	expr := miasm.NewOpExpr("myext", miasm.NewIdExpr("a", 32), miasm.NewIdExpr("b", 32))
	if out := miasm.Simplify(expr); out != miasm.Expr(expr) {
		t.Fatalf("unexpected expr: %s", out)
	}
}

func TestSimplify_RuleContract(t *testing.T) {
	rules := miasm.BaseRules().Merge(miasm.Ruleset{
		miasm.KindId: []miasm.Rule{
			func(miasm.Expr) miasm.Expr { return miasm.NewIntExpr(0, 64) },
		},
	})
	s := miasm.NewSimplifierWithRules(rules)
	expectInvalid(t, miasm.ErrRuleContract, func() {
		s.Simplify(miasm.NewIdExpr("a", 32))
	})
}

func TestSimplify_NestedRewrite(t *testing.T) {
	// Simplification of inner nodes feeds the rules of the enclosing one.
	a := miasm.NewIdExpr("a", 32)
	expr := miasm.NewOpExpr("+",
		miasm.NewOpExpr("+", a, miasm.NewIntExpr(0, 32)),
		miasm.NewNegExpr(miasm.NewNegExpr(a)),
	)
	if diff := cmp.Diff(
		miasm.Expr(miasm.NewOpExpr("*", miasm.NewIntExpr(2, 32), a)),
		miasm.Simplify(expr),
		exprCmpOpts,
	); diff != "" {
		t.Fatal(diff)
	}
}
