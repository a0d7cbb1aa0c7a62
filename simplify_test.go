package ir_test

import (
	"context"
	"errors"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
	"github.com/lowlevel01/ir"
	"github.com/stretchr/testify/require"
)

// simplify returns e simplified with the named passes enabled.
func simplify(tb testing.TB, e ir.Expr, passes ...string) ir.Expr {
	tb.Helper()
	other, err := ir.Simplify(e, passes...)
	require.NoError(tb, err, "simplify %s", e)
	return other
}

func requireExpr(tb testing.TB, want, got ir.Expr) {
	tb.Helper()
	if !got.Equal(want) {
		tb.Fatalf("unexpected expression:\nwant: %s\ngot:  %s\n%s", want, got, spew.Sdump(got))
	}
}

func TestSimplify_Default(t *testing.T) {
	a, b, c := id("a", 32), id("b", 32), id("c", 1)
	x, y := id("x", 8), id("y", 8)
	zero, ones := num(0, 32), num(-1, 32)

	for _, tt := range []struct {
		name string
		expr ir.Expr
		want ir.Expr
	}{
		{"FoldWrap", op(ir.OpAdd, num(0x10, 8), num(-1, 8)), num(0xf, 8)},
		{"AddZero", op(ir.OpAdd, a, zero), a},
		{"MulOne", op(ir.OpMul, a, num(1, 32)), a},
		{"MulZero", op(ir.OpMul, a, zero), zero},
		{"AndOnes", op(ir.OpAnd, a, ones), a},
		{"AndZero", op(ir.OpAnd, a, zero), zero},
		{"OrZero", op(ir.OpOr, a, zero), a},
		{"OrOnes", op(ir.OpOr, a, ones), ones},
		{"XorZero", op(ir.OpXor, a, zero), a},
		{"XorSelf", op(ir.OpXor, a, a), zero},
		{"XorSelfOdd", op(ir.OpXor, a, b, a), b},
		{"AndSelf", op(ir.OpAnd, a, a), a},
		{"OrSelf", op(ir.OpOr, a, a), a},
		{"SubSelf", op(ir.OpAdd, a, op(ir.OpNeg, a)), zero},
		{"AddSubSelf", op(ir.OpAdd, op(ir.OpAdd, a, a), op(ir.OpNeg, a)), a},
		{"DoubleNeg", op(ir.OpNeg, op(ir.OpNeg, a)), a},
		{"DoubleNot", op(ir.OpNot, op(ir.OpNot, a)), a},
		{"EqSelf", op(ir.OpEq, a, a), num(1, 1)},
		{"NeSelf", op(ir.OpNe, a, a), num(0, 1)},
		{"UleSelf", op(ir.OpUle, a, a), num(1, 1)},
		{"SltSelf", op(ir.OpSlt, a, a), num(0, 1)},
		{"MergeConstants", op(ir.OpAdd, a, num(1, 32), num(2, 32)), op(ir.OpAdd, a, num(3, 32))},
		{"MergeConstantsMul", op(ir.OpMul, x, num(3, 8), num(5, 8)), op(ir.OpMul, x, num(15, 8))},
		{"MergeConstantsAnd", op(ir.OpAnd, x, num(3, 8), num(5, 8)), op(ir.OpAnd, x, num(1, 8))},
		{"MergeConstantsOr", op(ir.OpOr, x, num(3, 8), num(5, 8)), op(ir.OpOr, x, num(7, 8))},
		{"MergeConstantsXor", op(ir.OpXor, x, num(3, 8), num(5, 8)), op(ir.OpXor, x, num(6, 8))},
		{"MergeConstantsMiddle", op(ir.OpAdd, num(3, 8), x, num(5, 8), y), op(ir.OpAdd, x, y, num(8, 8))},
		{"Flatten", op(ir.OpAdd, a, op(ir.OpAdd, b, num(1, 32))), op(ir.OpAdd, a, b, num(1, 32))},
		{"CanonicalOrder", op(ir.OpAdd, num(1, 32), b, a), op(ir.OpAdd, a, b, num(1, 32))},
		{"CanonicalEq", op(ir.OpEq, num(1, 32), a), op(ir.OpEq, a, num(1, 32))},

		{"CondTrue", cond(num(1, 1), a, b), a},
		{"CondFalse", cond(num(0, 1), a, b), b},
		{"CondSameBranches", cond(c, a, a), a},
		{"CondBit", cond(c, num(1, 1), num(0, 1)), c},

		{"SliceFull", slice(a, 0, 32), a},
		{"SliceSlice", slice(slice(a, 8, 24), 4, 8), slice(a, 12, 16)},
		{"SliceInt", slice(num(0x12345678, 32), 8, 16), num(0x56, 8)},
		{"SliceComposeLow", slice(compose(id("p", 16), id("q", 16)), 0, 16), id("p", 16)},
		{"SliceComposeHigh", slice(compose(id("p", 16), id("q", 16)), 16, 32), id("q", 16)},
		{"SliceComposeSpan", slice(compose(id("p", 16), id("q", 16)), 8, 24),
			compose(slice(id("p", 16), 8, 16), slice(id("q", 16), 0, 8))},

		{"ComposeInts", compose(num(0x34, 8), num(0x12, 8)), num(0x1234, 16)},
		{"ComposeSlices", compose(slice(a, 0, 16), slice(a, 16, 32)), a},
		{"ComposeNested", compose(compose(x, y), id("z", 16)), compose(x, y, id("z", 16))},
		{"ComposeAdjacentInts", compose(x, num(1, 8), num(2, 8)), compose(x, num(0x201, 16))},

		{"UDiv", op(ir.OpUDiv, num(7, 8), num(2, 8)), num(3, 8)},
		{"UDivZero", op(ir.OpUDiv, num(7, 8), num(0, 8)), op(ir.OpUDiv, num(7, 8), num(0, 8))},
		{"SDiv", op(ir.OpSDiv, num(-7, 8), num(2, 8)), num(-3, 8)},
		{"SMod", op(ir.OpSMod, num(-7, 8), num(2, 8)), num(-1, 8)},
		{"UMod", op(ir.OpUMod, num(7, 8), num(4, 8)), num(3, 8)},
		{"Shl", op(ir.OpShl, num(0x81, 8), num(1, 8)), num(0x02, 8)},
		{"ShlOut", op(ir.OpShl, num(0x81, 8), num(9, 8)), num(0, 8)},
		{"LShr", op(ir.OpLShr, num(0x80, 8), num(4, 8)), num(0x08, 8)},
		{"AShr", op(ir.OpAShr, num(0x80, 8), num(4, 8)), num(0xf8, 8)},
		{"Rotl", op(ir.OpRotl, num(0x81, 8), num(1, 8)), num(0x03, 8)},
		{"Rotr", op(ir.OpRotr, num(0x81, 8), num(1, 8)), num(0xc0, 8)},
		{"Neg", op(ir.OpNeg, num(1, 8)), num(0xff, 8)},
		{"Not", op(ir.OpNot, num(0x0f, 8)), num(0xf0, 8)},
		{"CntTrailZeros", op(ir.OpCntTrailZeros, num(8, 8)), num(3, 8)},
		{"CntLeadZeros", op(ir.OpCntLeadZeros, num(8, 8)), num(4, 8)},
		{"ParityEven", op(ir.OpParity, num(0x103, 16)), num(1, 1)},
		{"ParityOdd", op(ir.OpParity, num(1, 8)), num(0, 1)},
		{"Slt", op(ir.OpSlt, num(-1, 8), num(1, 8)), num(1, 1)},
		{"Ult", op(ir.OpUlt, num(-1, 8), num(1, 8)), num(0, 1)},
		{"UnknownOp", op("bswap", num(1, 32)), op("bswap", num(1, 32))},

		{"Nested", mem(op(ir.OpAdd, a, op(ir.OpMul, num(2, 32), num(4, 32))), 8), mem(op(ir.OpAdd, a, num(8, 32)), 8)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := simplify(t, tt.expr)
			requireExpr(t, tt.want, got)
			require.Equal(t, tt.expr.Size(), got.Size())

			// A simplified expression is a fixed point.
			requireExpr(t, got, simplify(t, got))
		})
	}
}

func TestSimplify_Assign(t *testing.T) {
	a := id("a", 32)
	e := ir.Must(ir.NewAssign(a, op(ir.OpAdd, a, num(0, 32))))
	requireExpr(t, ir.Must(ir.NewAssign(a, a)), simplify(t, e))
}

func TestSimplify_Cmp(t *testing.T) {
	a, b := id("a", 8), id("b", 8)
	r := op(ir.OpAdd, a, op(ir.OpNeg, b))

	signedLess := func(a, b, r ir.Expr) ir.Expr {
		return ir.Must(ir.MostSignificantBit(op(ir.OpXor, r, op(ir.OpAnd, op(ir.OpXor, a, b), op(ir.OpXor, r, a)))))
	}
	unsignedLess := func(a, b, r ir.Expr) ir.Expr {
		return ir.Must(ir.MostSignificantBit(op(ir.OpXor, op(ir.OpXor, a, b, r), op(ir.OpAnd, op(ir.OpXor, a, r), op(ir.OpXor, a, b)))))
	}

	t.Run("SignedLess", func(t *testing.T) {
		requireExpr(t, op(ir.OpSlt, a, b), simplify(t, signedLess(a, b, r), "cmp"))
	})
	t.Run("UnsignedLess", func(t *testing.T) {
		requireExpr(t, op(ir.OpUlt, a, b), simplify(t, unsignedLess(a, b, r), "cmp"))
	})
	t.Run("SignedLessConst", func(t *testing.T) {
		k := num(5, 8)
		got := simplify(t, signedLess(a, k, op(ir.OpAdd, a, op(ir.OpNeg, k))), "cmp")
		requireExpr(t, op(ir.OpSlt, a, k), got)
	})
	t.Run("SubZero", func(t *testing.T) {
		requireExpr(t, op(ir.OpEq, a, b), simplify(t, op(ir.OpEq, r, num(0, 8)), "cmp"))
	})
	t.Run("CondSub", func(t *testing.T) {
		requireExpr(t, op(ir.OpEq, a, b), simplify(t, cond(r, num(0, 1), num(1, 1)), "cmp"))
	})
	t.Run("Disabled", func(t *testing.T) {
		e := simplify(t, signedLess(a, b, r))
		require.False(t, ir.IsOp(e, ir.OpSlt), "got %s", e)
	})
	t.Run("SignOfSub", func(t *testing.T) {
		e := ir.Must(ir.MostSignificantBit(r))
		requireExpr(t, e, simplify(t, e, "cmp"))
		requireExpr(t, op(ir.OpSlt, a, b), simplify(t, e, "cmp_nooverflow"))
	})

	// The idioms compute the comparisons they are rewritten into.
	t.Run("Exhaustive8Bit", func(t *testing.T) {
		slt, ult := signedLess(a, b, r), unsignedLess(a, b, r)
		requireExpr(t, op(ir.OpSlt, a, b), simplify(t, slt, "cmp"))
		requireExpr(t, op(ir.OpUlt, a, b), simplify(t, ult, "cmp"))

		s := ir.NewSimplifier()
		m := ir.NewExprMap[ir.Expr]()
		for i := 0; i < 256; i++ {
			for j := 0; j < 256; j++ {
				m.Set(a, num(int64(i), 8))
				m.Set(b, num(int64(j), 8))
				for _, tt := range []struct {
					expr ir.Expr
					want bool
				}{
					{slt, int8(i) < int8(j)},
					{ult, i < j},
				} {
					got, err := s.SimplifyWith(tt.expr, m)
					require.NoError(t, err)
					if !got.Equal(newBit(tt.want)) {
						t.Fatalf("a=%d b=%d: %s: got %s", i, j, tt.expr, got)
					}
				}
			}
		}
	})
}

func newBit(v bool) ir.Expr {
	if v {
		return num(1, 1)
	}
	return num(0, 1)
}

func TestSimplifier_Passes(t *testing.T) {
	s := ir.NewStandardSimplifier()
	if diff := cmp.Diff([]string{"default", "cmp", "cmp_nooverflow"}, s.Passes()); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"default"}, s.ActivePasses())

	require.NoError(t, s.EnablePass("cmp"))
	require.Equal(t, []string{"default", "cmp"}, s.ActivePasses())

	err := s.EnablePass("nope")
	var e *ir.UnknownPassError
	require.True(t, errors.As(err, &e), "err: %v", err)
	require.Equal(t, "nope", e.Name)

	_, err = ir.Simplify(id("a", 8), "nope")
	require.True(t, errors.As(err, &e), "err: %v", err)
}

func TestSimplifier_NonTermination(t *testing.T) {
	swap := &ir.Pass{Name: "swap", Rules: []ir.Rule{{
		Name: "swap",
		Fn: func(e ir.Expr) (ir.Expr, bool) {
			if e, ok := e.(*ir.IdExpr); ok {
				switch e.Name() {
				case "a":
					return id("b", e.Size()), true
				case "b":
					return id("a", e.Size()), true
				}
			}
			return nil, false
		},
	}}}

	s := ir.NewSimplifier(swap)
	s.MaxIterations = 50
	require.NoError(t, s.EnablePass("swap"))

	_, err := s.Simplify(op(ir.OpNot, id("a", 8)))
	var e *ir.NonTerminationError
	require.True(t, errors.As(err, &e), "err: %v", err)
	require.Equal(t, 50, e.Iterations)
}

func TestSimplifier_ErrRuleSize(t *testing.T) {
	widen := &ir.Pass{Name: "widen", Rules: []ir.Rule{{
		Name: "widen",
		Fn: func(e ir.Expr) (ir.Expr, bool) {
			if e.Size() == 8 && ir.IsId(e) {
				return id("wide", 16), true
			}
			return nil, false
		},
	}}}
	s := ir.NewSimplifier(widen)
	require.NoError(t, s.EnablePass("widen"))
	_, err := s.Simplify(id("a", 8))
	requireSizeMismatch(t, err)
}

func TestSimplifier_SimplifyWith(t *testing.T) {
	a, b := id("a", 32), id("b", 32)
	m := ir.NewExprMap[ir.Expr]()
	m.Set(a, num(3, 32))
	m.Set(b, num(5, 32))

	got, err := ir.NewSimplifier().SimplifyWith(op(ir.OpAdd, a, op(ir.OpMul, b, num(2, 32))), m)
	require.NoError(t, err)
	requireExpr(t, num(13, 32), got)
}

func TestSimplifier_SimplifyAll(t *testing.T) {
	a := id("a", 32)
	var exprs, want []ir.Expr
	for i := int64(0); i < 20; i++ {
		exprs = append(exprs, op(ir.OpAdd, a, num(i, 32), num(1, 32), op(ir.OpNeg, a)))
		want = append(want, num(i+1, 32))
	}

	got, err := ir.NewStandardSimplifier().SimplifyAll(context.Background(), exprs, 4)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		requireExpr(t, want[i], got[i])
	}

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := ir.NewSimplifier().SimplifyAll(ctx, exprs, 1)
		require.ErrorIs(t, err, context.Canceled)
	})
}
