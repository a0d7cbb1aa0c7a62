package ir_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lowlevel01/ir"
	"github.com/stretchr/testify/require"
)

func TestGraph(t *testing.T) {
	a, b := id("a", 32), id("b", 32)
	sum := op(ir.OpAdd, a, b)
	// (cond (== a+b 0) (~ a+b) a): a+b is shared, a is reached along three paths.
	root := cond(op(ir.OpEq, sum, num(0, 32)), op(ir.OpNot, sum), a)
	g := ir.NewGraph(root)

	t.Run("Nodes", func(t *testing.T) {
		require.Equal(t, 7, g.Len())
		requireExpr(t, root, g.Root())

		var seen ir.ExprMap[bool]
		for _, n := range g.Nodes() {
			_, dup := seen.Get(n)
			require.False(t, dup, "duplicate node %s", n)
			seen.Set(n, true)
		}
	})

	t.Run("Edges", func(t *testing.T) {
		if diff := cmp.Diff([]ir.Expr{a, b}, g.Successors(sum)); diff != "" {
			t.Fatal(diff)
		}
		require.Len(t, g.Predecessors(sum), 2)
		require.Len(t, g.Predecessors(a), 2)
		require.Empty(t, g.Predecessors(root))

		// Repeated children produce a single edge.
		dup := ir.NewGraph(op(ir.OpAdd, a, a))
		require.Equal(t, 2, dup.Len())
		require.Len(t, dup.Successors(dup.Root()), 1)
	})

	t.Run("Postorder", func(t *testing.T) {
		post := g.Postorder()
		require.Len(t, post, g.Len())
		requireExpr(t, root, post[len(post)-1])

		pos := ir.NewExprMap[int]()
		for i, n := range post {
			pos.Set(n, i)
		}
		for _, n := range g.Nodes() {
			i, _ := pos.Get(n)
			for _, child := range g.Successors(n) {
				j, _ := pos.Get(child)
				require.Less(t, j, i, "%s before %s", child, n)
			}
		}
	})

	t.Run("Dominators", func(t *testing.T) {
		// a+b is reached through == and ~, so only the root dominates it.
		doms := g.Dominators(sum)
		if diff := cmp.Diff([]ir.Expr{root, sum}, doms); diff != "" {
			t.Fatal(diff)
		}
		idom, ok := g.ImmediateDominator(sum)
		require.True(t, ok)
		requireExpr(t, root, idom)

		idom, ok = g.ImmediateDominator(b)
		require.True(t, ok)
		requireExpr(t, sum, idom)

		zero := num(0, 32)
		idom, ok = g.ImmediateDominator(zero)
		require.True(t, ok)
		requireExpr(t, op(ir.OpEq, sum, zero), idom)

		_, ok = g.ImmediateDominator(root)
		require.False(t, ok)
		require.Nil(t, g.Dominators(id("missing", 8)))
	})

	t.Run("Dot", func(t *testing.T) {
		small := ir.NewGraph(op(ir.OpNot, a))
		want := "digraph {\n" +
			"\tn0 [label=\"~\"];\n" +
			"\tn1 [label=\"(id a 32)\"];\n" +
			"\tn0 -> n1;\n" +
			"}\n"
		if diff := cmp.Diff(want, small.Dot()); diff != "" {
			t.Fatal(diff)
		}
	})
}
