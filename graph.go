package miasm

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/tools/container/intsets"
)

// Graph is a read-only DAG over the distinct sub-expressions reachable
// from a root. Node uniqueness is structural, not object identity; edges
// point from each node to its direct children in argument order. Node ids
// are assigned in DFS pre-order, so the same root always yields the same
// node and edge set.
type Graph struct {
	nodes []Expr
	succs [][]int
	preds [][]int
	index map[uint64][]int
}

// NewGraph builds the expression graph rooted at expr. The root is node 0.
func NewGraph(expr Expr) *Graph {
	g := &Graph{index: make(map[uint64][]int)}
	g.visit(expr)
	return g
}

func (g *Graph) visit(expr Expr) int {
	if id, ok := g.NodeID(expr); ok {
		return id
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, expr)
	g.succs = append(g.succs, nil)
	g.preds = append(g.preds, nil)
	g.index[ExprHash(expr)] = append(g.index[ExprHash(expr)], id)

	for _, child := range ExprChildren(expr) {
		childID := g.visit(child)
		g.succs[id] = append(g.succs[id], childID)
		if !containsInt(g.preds[childID], id) {
			g.preds[childID] = append(g.preds[childID], id)
		}
	}
	return id
}

// Len returns the number of distinct sub-expressions.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns the expression at id.
func (g *Graph) Node(id int) Expr { return g.nodes[id] }

// NodeID returns the id of the node structurally equal to expr.
func (g *Graph) NodeID(expr Expr) (int, bool) {
	for _, id := range g.index[ExprHash(expr)] {
		if CompareExpr(g.nodes[id], expr) == 0 {
			return id, true
		}
	}
	return 0, false
}

// Successors returns the children of id in argument order. A child used in
// several argument positions appears once per position.
func (g *Graph) Successors(id int) []int { return g.succs[id] }

// Predecessors returns the nodes with an edge to id, in id order of first
// discovery.
func (g *Graph) Predecessors(id int) []int { return g.preds[id] }

// Reachable returns the set of node ids reachable from id, including id.
func (g *Graph) Reachable(id int) *intsets.Sparse {
	var set intsets.Sparse
	g.reach(id, &set)
	return &set
}

func (g *Graph) reach(id int, set *intsets.Sparse) {
	if !set.Insert(id) {
		return
	}
	for _, succ := range g.succs[id] {
		g.reach(succ, set)
	}
}

// Dominators returns the immediate dominator of every node with respect to
// the root. The root's immediate dominator is itself.
func (g *Graph) Dominators() []int {
	n := len(g.nodes)
	doms := make([]*intsets.Sparse, n)

	var all intsets.Sparse
	for i := 0; i < n; i++ {
		all.Insert(i)
	}
	for i := 0; i < n; i++ {
		doms[i] = new(intsets.Sparse)
		if i == 0 {
			doms[i].Insert(0)
		} else {
			doms[i].Copy(&all)
		}
	}

	for changed := true; changed; {
		changed = false
		for i := 1; i < n; i++ {
			var next intsets.Sparse
			for j, pred := range g.preds[i] {
				if j == 0 {
					next.Copy(doms[pred])
				} else {
					next.IntersectionWith(doms[pred])
				}
			}
			next.Insert(i)
			if !next.Equals(doms[i]) {
				doms[i].Copy(&next)
				changed = true
			}
		}
	}

	idom := make([]int, n)
	for i := 1; i < n; i++ {
		// The immediate dominator is the strict dominator with the
		// largest dominator set.
		best, bestLen := 0, -1
		var members []int
		members = doms[i].AppendTo(members)
		for _, d := range members {
			if d == i {
				continue
			}
			if l := doms[d].Len(); l > bestLen {
				best, bestLen = d, l
			}
		}
		idom[i] = best
	}
	return idom
}

// WriteText writes the deterministic node/edge description: one "node id
// label" line per node followed by one "edge from to" line per edge.
func (g *Graph) WriteText(w io.Writer) error {
	for id, expr := range g.nodes {
		if _, err := fmt.Fprintf(w, "node %d %s\n", id, expr); err != nil {
			return err
		}
	}
	for id := range g.nodes {
		for _, succ := range g.succs[id] {
			if _, err := fmt.Fprintf(w, "edge %d %d\n", id, succ); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteDot writes the graph in Graphviz dot form.
func (g *Graph) WriteDot(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "digraph expr {"); err != nil {
		return err
	}
	for id, expr := range g.nodes {
		label := strings.ReplaceAll(expr.String(), `"`, `\"`)
		if _, err := fmt.Fprintf(w, "\tn%d [label=\"%s\"];\n", id, label); err != nil {
			return err
		}
	}
	for id := range g.nodes {
		for _, succ := range g.succs[id] {
			if _, err := fmt.Fprintf(w, "\tn%d -> n%d;\n", id, succ); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func containsInt(a []int, v int) bool {
	for _, x := range a {
		if x == v {
			return true
		}
	}
	return false
}
