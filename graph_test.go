package miasm_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"

	"github.com/H0K5/miasm"
)

// testGraph builds the graph for a + (a * b), which shares the node for a.
//
//	0: a + (a * b)
//	1: a
//	2: a * b
//	3: b
func testGraph() *miasm.Graph {
	a := miasm.NewIdExpr("a", 32)
	b := miasm.NewIdExpr("b", 32)
	return miasm.NewGraph(miasm.NewOpExpr("+", a, miasm.NewOpExpr("*", a, b)))
}

func TestGraph(t *testing.T) {
	g := testGraph()

	t.Run("Len", func(t *testing.T) {
		if n := g.Len(); n != 4 {
			t.Fatalf("unexpected len: %d", n)
		}
	})
	t.Run("NodeID", func(t *testing.T) {
		id, ok := g.NodeID(miasm.NewIdExpr("a", 32))
		if !ok || id != 1 {
			t.Fatalf("unexpected id: %d (%v)", id, ok)
		}
		if _, ok := g.NodeID(miasm.NewIdExpr("c", 32)); ok {
			t.Fatal("expected no id")
		}
	})
	t.Run("Successors", func(t *testing.T) {
		if diff := cmp.Diff([]int{1, 2}, g.Successors(0)); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff([]int{1, 3}, g.Successors(2)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("Predecessors", func(t *testing.T) {
		if diff := cmp.Diff([]int{0, 2}, g.Predecessors(1)); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("DuplicateArgEdges", func(t *testing.T) {
		// a + a keeps one edge per argument position.
		a := miasm.NewIdExpr("a", 32)
		g := miasm.NewGraph(miasm.NewOpExpr("+", a, a))
		if diff := cmp.Diff([]int{1, 1}, g.Successors(0)); diff != "" {
			t.Fatal(diff)
		}
		if diff := cmp.Diff([]int{0}, g.Predecessors(1)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestGraph_Reachable(t *testing.T) {
	g := testGraph()
	set := g.Reachable(2)
	var ids []int
	ids = set.AppendTo(ids)
	if diff := cmp.Diff([]int{1, 2, 3}, ids); diff != "" {
		t.Fatal(diff)
	}
}

func TestGraph_Dominators(t *testing.T) {
	g := testGraph()
	// a is reachable both directly and through the product, so only the
	// root dominates it; b is only reachable through the product.
	if diff := cmp.Diff([]int{0, 0, 0, 2}, g.Dominators()); diff != "" {
		t.Fatal(diff)
	}
}

func TestGraph_WriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := testGraph().WriteText(&buf); err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "graph_text", buf.Bytes())
}

func TestGraph_WriteDot(t *testing.T) {
	var buf bytes.Buffer
	if err := testGraph().WriteDot(&buf); err != nil {
		t.Fatal(err)
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, "graph_dot", buf.Bytes())
}
