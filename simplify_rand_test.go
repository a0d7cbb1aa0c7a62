package ir_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lowlevel01/ir"
)

// exprGen builds random closed expressions over a few variables.
type exprGen struct {
	rand  *rand.Rand
	names []string
}

var (
	randAssocOps  = []ir.Op{ir.OpAdd, ir.OpMul, ir.OpAnd, ir.OpOr, ir.OpXor}
	randBinaryOps = []ir.Op{ir.OpShl, ir.OpLShr, ir.OpAShr, ir.OpRotl, ir.OpRotr}
	randUnaryOps  = []ir.Op{ir.OpNeg, ir.OpNot, ir.OpCntLeadZeros, ir.OpCntTrailZeros}
	randCmpOps    = []ir.Op{ir.OpEq, ir.OpNe, ir.OpUlt, ir.OpUle, ir.OpUgt, ir.OpUge, ir.OpSlt, ir.OpSle, ir.OpSgt, ir.OpSge}
)

// Expr returns a random expression of size bits and at most depth levels.
func (g *exprGen) Expr(depth int, size uint) ir.Expr {
	if depth == 0 || g.rand.Intn(5) == 0 {
		return g.leaf(size)
	}
	depth--

	switch g.rand.Intn(8) {
	case 0, 1:
		args := make([]ir.Expr, 2+g.rand.Intn(2))
		for i := range args {
			args[i] = g.Expr(depth, size)
		}
		return op(randAssocOps[g.rand.Intn(len(randAssocOps))], args...)
	case 2:
		return op(randBinaryOps[g.rand.Intn(len(randBinaryOps))], g.Expr(depth, size), g.Expr(depth, size))
	case 3:
		return op(randUnaryOps[g.rand.Intn(len(randUnaryOps))], g.Expr(depth, size))
	case 4:
		if size == 1 {
			n := uint(4 << g.rand.Intn(2))
			if g.rand.Intn(4) == 0 {
				return op(ir.OpParity, g.Expr(depth, n))
			}
			return op(randCmpOps[g.rand.Intn(len(randCmpOps))], g.Expr(depth, n), g.Expr(depth, n))
		}
		return op(randUnaryOps[g.rand.Intn(len(randUnaryOps))], g.Expr(depth, size))
	case 5:
		return cond(g.Expr(depth, 1), g.Expr(depth, size), g.Expr(depth, size))
	case 6:
		n := size + uint(g.rand.Intn(5))
		start := uint(g.rand.Intn(int(n-size) + 1))
		return slice(g.Expr(depth, n), start, start+size)
	default:
		if size == 1 {
			return g.leaf(size)
		}
		lo := 1 + uint(g.rand.Intn(int(size)-1))
		return compose(g.Expr(depth, lo), g.Expr(depth, size-lo))
	}
}

func (g *exprGen) leaf(size uint) ir.Expr {
	if g.rand.Intn(3) == 0 {
		return num(g.rand.Int63(), size)
	}
	return id(g.names[g.rand.Intn(len(g.names))], size)
}

// bind assigns a random value to every variable of e not yet in m.
func (g *exprGen) bind(m *ir.ExprMap[ir.Expr], e ir.Expr) {
	ir.Inspect(e, func(e ir.Expr) bool {
		if _, ok := m.Get(e); ir.IsId(e) && !ok {
			m.Set(e, num(g.rand.Int63(), e.Size()))
		}
		return true
	})
}

// eval returns the literal e takes under bindings.
func eval(tb testing.TB, e ir.Expr, bindings *ir.ExprMap[ir.Expr]) ir.Expr {
	tb.Helper()
	v, err := ir.NewSimplifier().SimplifyWith(e, bindings)
	require.NoError(tb, err)
	require.True(tb, ir.IsInt(v), "not a literal: %s", v)
	return v
}

// Simplification keeps the value of random expressions and reaches a fixed
// point.
func TestSimplify_Random(t *testing.T) {
	n := 4000
	if testing.Short() {
		n = 400
	}

	for _, passes := range [][]string{nil, {ir.CmpPassName}} {
		name := "default"
		if len(passes) > 0 {
			name += "+" + passes[0]
		}
		t.Run(name, func(t *testing.T) {
			g := &exprGen{rand: rand.New(rand.NewSource(1)), names: []string{"a", "b", "c"}}
			for i := 0; i < n; i++ {
				size := []uint{1, 4, 8}[g.rand.Intn(3)]
				e := g.Expr(4, size)

				got := simplify(t, e, passes...)
				require.Equal(t, e.Size(), got.Size(), "size of %s", e)
				requireExpr(t, got, simplify(t, got, passes...))

				for j := 0; j < 4; j++ {
					m := ir.NewExprMap[ir.Expr]()
					g.bind(m, e)
					want, have := eval(t, e, m), eval(t, got, m)
					if !have.Equal(want) {
						t.Fatalf("value changed:\nexpr:       %s\nsimplified: %s\nbindings:   %s\nwant %s, got %s", e, got, bindingString(m), want, have)
					}
				}
			}
		})
	}
}

func bindingString(m *ir.ExprMap[ir.Expr]) string {
	var s string
	m.Each(func(k, v ir.Expr) {
		s += k.String() + "=" + v.String() + " "
	})
	return s
}
