package miasm_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/H0K5/miasm"
)

func TestExprRepr(t *testing.T) {
	a := miasm.NewIdExpr("a", 32)

	for _, tt := range []struct {
		name string
		expr miasm.Expr
		want string
	}{
		{"Int", miasm.NewIntExpr(0xF, 32), `Int(0xF, 32)`},
		{"Id", a, `Id("a", 32)`},
		{"Loc", miasm.NewLocExpr(3, 32), `Loc(3, 32)`},
		{"Mem", miasm.NewMemExpr(a, 8), `Mem(Id("a", 32), 8)`},
		{"Slice", miasm.NewSliceExpr(a, 0, 8), `Slice(Id("a", 32), 0, 8)`},
		{"Compose", miasm.NewComposeExpr(miasm.NewIdExpr("a", 8), miasm.NewIdExpr("b", 8)), `Compose(Id("a", 8), Id("b", 8))`},
		{"Op", miasm.NewOpExpr("+", a, miasm.NewIntExpr(1, 32)), `Op("+", Id("a", 32), Int(0x1, 32))`},
		{"Cond", miasm.NewCondExpr(miasm.NewIdExpr("z", 1), a, a), `Cond(Id("z", 1), Id("a", 32), Id("a", 32))`},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if s := miasm.ExprRepr(tt.expr); s != tt.want {
				t.Fatalf("unexpected repr: %s", s)
			}
		})
	}
}

func TestParseExpr(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		a := miasm.NewIdExpr("a", 32)
		exprs := []miasm.Expr{
			miasm.NewIntExpr(0xDEADBEEF, 64),
			miasm.NewOpExpr("+", a, miasm.NewOpExpr("*", a, miasm.NewIntExpr(4, 32))),
			miasm.NewMemExpr(miasm.NewOpExpr("+", a, miasm.NewIntExpr(0x10, 32)), 8),
			miasm.NewCondExpr(
				miasm.NewOpExpr("==", a, miasm.NewIntExpr(0, 32)),
				miasm.NewSliceExpr(a, 0, 8),
				miasm.NewSliceExpr(a, 8, 16),
			),
			miasm.NewComposeExpr(miasm.NewLocExpr(7, 16), miasm.NewIdExpr("hi", 16)),
			miasm.NewOpExpr("parity", a),
		}
		for _, expr := range exprs {
			t.Run(expr.String(), func(t *testing.T) {
				parsed, err := miasm.ParseExpr(miasm.ExprRepr(expr))
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(expr, parsed, exprCmpOpts); diff != "" {
					t.Fatal(diff)
				}
				if miasm.ExprHash(parsed) != miasm.ExprHash(expr) {
					t.Fatal("hash mismatch after round trip")
				}
			})
		}
	})

	t.Run("Whitespace", func(t *testing.T) {
		parsed, err := miasm.ParseExpr("Op( \"+\",\n\tId(\"a\", 32),\n\tInt(0x1, 32) )")
		if err != nil {
			t.Fatal(err)
		}
		want := miasm.NewOpExpr("+", miasm.NewIdExpr("a", 32), miasm.NewIntExpr(1, 32))
		if diff := cmp.Diff(miasm.Expr(want), parsed, exprCmpOpts); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		for _, tt := range []struct {
			name  string
			input string
			want  string
		}{
			{"UnknownKind", `Bogus(1, 2)`, "unknown kind"},
			{"Trailing", `Id("a", 32) extra`, "trailing input"},
			{"MissingParen", `Id("a", 32`, `expected ")"`},
			{"BadString", `Id(a, 32)`, "expected string"},
			{"SizeMismatch", `Op("+", Id("a", 32), Id("b", 16))`, "sizes"},
			{"BadSlice", `Slice(Id("a", 32), 8, 8)`, "slice"},
		} {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := miasm.ParseExpr(tt.input); err == nil {
					t.Fatal("expected error")
				} else if !strings.Contains(err.Error(), tt.want) {
					t.Fatalf("unexpected error: %v", err)
				}
			})
		}
	})
}

func TestAssignRepr(t *testing.T) {
	a := miasm.NewAssign(miasm.NewIdExpr("a", 32), miasm.NewIntExpr(0x10, 32))
	if s := miasm.AssignRepr(a); s != `Assign(Id("a", 32), Int(0x10, 32))` {
		t.Fatalf("unexpected repr: %s", s)
	}
}

func TestParseAssign(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		want := miasm.NewAssign(
			miasm.NewMemExpr(miasm.NewIdExpr("p", 64), 32),
			miasm.NewOpExpr("+", miasm.NewIdExpr("a", 32), miasm.NewIntExpr(1, 32)),
		)
		got, err := miasm.ParseAssign(miasm.AssignRepr(want))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got, exprCmpOpts); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("SizeMismatch", func(t *testing.T) {
		if _, err := miasm.ParseAssign(`Assign(Id("a", 32), Id("b", 16))`); err == nil {
			t.Fatal("expected error")
		}
	})
}
