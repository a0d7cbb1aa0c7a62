package ir

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/tools/container/intsets"
)

// Graph is a read-only DAG view of an expression. Each distinct subexpression
// is one node; edges go from a node to its distinct immediate children.
type Graph struct {
	nodes []Expr
	index *ExprMap[int]
	succ  [][]int
	pred  [][]int

	once sync.Once
	post []int
	doms []intsets.Sparse
}

// NewGraph returns the graph of root.
func NewGraph(root Expr) *Graph {
	g := &Graph{index: NewExprMap[int]()}
	g.add(root)
	return g
}

// add inserts expr and its subexpressions, returning the index of expr.
func (g *Graph) add(expr Expr) int {
	if i, ok := g.index.Get(expr); ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, expr)
	g.index.Set(expr, i)
	g.succ = append(g.succ, nil)
	g.pred = append(g.pred, nil)

	for _, child := range Children(expr) {
		j := g.add(child)
		if !containsInt(g.succ[i], j) {
			g.succ[i] = append(g.succ[i], j)
			g.pred[j] = append(g.pred[j], i)
		}
	}
	return i
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Root returns the expression the graph was built from.
func (g *Graph) Root() Expr { return g.nodes[0] }

// Nodes returns every node in discovery order, root first.
func (g *Graph) Nodes() []Expr { return append([]Expr(nil), g.nodes...) }

// Has returns true if expr is a node of the graph.
func (g *Graph) Has(expr Expr) bool {
	_, ok := g.index.Get(expr)
	return ok
}

// Successors returns the distinct immediate children of expr.
func (g *Graph) Successors(expr Expr) []Expr {
	i, ok := g.index.Get(expr)
	if !ok {
		return nil
	}
	return g.exprs(g.succ[i])
}

// Predecessors returns the distinct nodes having expr as an immediate child.
func (g *Graph) Predecessors(expr Expr) []Expr {
	i, ok := g.index.Get(expr)
	if !ok {
		return nil
	}
	return g.exprs(g.pred[i])
}

// Postorder returns the nodes with every child before its parents.
func (g *Graph) Postorder() []Expr {
	g.once.Do(g.computeDominators)
	return g.exprs(g.post)
}

// Dominators returns the nodes lying on every path from the root to expr,
// expr included, from the root down.
func (g *Graph) Dominators(expr Expr) []Expr {
	i, ok := g.index.Get(expr)
	if !ok {
		return nil
	}
	g.once.Do(g.computeDominators)

	a := g.doms[i].AppendTo(nil)
	// Dominators form a chain; a larger set is dominated by more nodes.
	sort.Slice(a, func(x, y int) bool { return g.doms[a[x]].Len() < g.doms[a[y]].Len() })
	return g.exprs(a)
}

// ImmediateDominator returns the closest strict dominator of expr. Returns
// false for the root and for expressions outside the graph.
func (g *Graph) ImmediateDominator(expr Expr) (Expr, bool) {
	doms := g.Dominators(expr)
	if len(doms) < 2 {
		return nil, false
	}
	return doms[len(doms)-2], true
}

// computeDominators runs the iterative dataflow algorithm over reverse
// postorder: dom(n) = {n} ∪ ⋂ dom(p) for every predecessor p of n.
func (g *Graph) computeDominators() {
	seen := make([]bool, len(g.nodes))
	var visit func(int)
	visit = func(i int) {
		seen[i] = true
		for _, j := range g.succ[i] {
			if !seen[j] {
				visit(j)
			}
		}
		g.post = append(g.post, i)
	}
	visit(0)

	g.doms = make([]intsets.Sparse, len(g.nodes))
	g.doms[0].Insert(0)
	for i := 1; i < len(g.nodes); i++ {
		for j := range g.nodes {
			g.doms[i].Insert(j)
		}
	}

	for changed := true; changed; {
		changed = false
		for k := len(g.post) - 1; k >= 0; k-- {
			i := g.post[k]
			if i == 0 {
				continue
			}
			var set intsets.Sparse
			for n, p := range g.pred[i] {
				if n == 0 {
					set.Copy(&g.doms[p])
				} else {
					set.IntersectionWith(&g.doms[p])
				}
			}
			set.Insert(i)
			if !set.Equals(&g.doms[i]) {
				g.doms[i].Copy(&set)
				changed = true
			}
		}
	}
}

// WriteDot writes the graph in Graphviz DOT format.
func (g *Graph) WriteDot(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("digraph {\n")
	for i, expr := range g.nodes {
		fmt.Fprintf(&buf, "\tn%d [label=%s];\n", i, strconv.Quote(dotLabel(expr)))
	}
	for i := range g.nodes {
		for _, j := range g.succ[i] {
			fmt.Fprintf(&buf, "\tn%d -> n%d;\n", i, j)
		}
	}
	buf.WriteString("}\n")
	_, err := buf.WriteTo(w)
	return err
}

// Dot returns the graph in Graphviz DOT format.
func (g *Graph) Dot() string {
	var buf bytes.Buffer
	_ = g.WriteDot(&buf)
	return buf.String()
}

// dotLabel describes a node without its children, which appear as edges.
func dotLabel(expr Expr) string {
	switch expr := expr.(type) {
	case *IntExpr, *IdExpr, *LocExpr:
		return expr.String()
	case *MemExpr:
		return fmt.Sprintf("mem %d", expr.size)
	case *OpExpr:
		return string(expr.op)
	case *SliceExpr:
		return fmt.Sprintf("slice %d:%d", expr.start, expr.stop)
	default:
		return ExprKind(expr).String()
	}
}

func (g *Graph) exprs(a []int) []Expr {
	other := make([]Expr, len(a))
	for k, i := range a {
		other[k] = g.nodes[i]
	}
	return other
}

func containsInt(a []int, v int) bool {
	for _, x := range a {
		if x == v {
			return true
		}
	}
	return false
}
