package ir

import (
	"math/big"
)

// Names of the comparison passes.
const (
	CmpPassName           = "cmp"
	CmpNoOverflowPassName = "cmp_nooverflow"
)

// CmpPass returns the pass recognizing the flag computations emitted by
// lifters for signed and unsigned comparisons, and rewriting them into
// comparison operators.
//
// The idioms it matches, with r = a-b and msb the top bit:
//
//	a <s b  ==  msb(r ^ ((a ^ b) & (r ^ a)))
//	a <u b  ==  msb((a ^ b ^ r) ^ ((a ^ r) & (a ^ b)))
//	a == b  ==  (r == 0), and 1-bit (r ? 0 : 1)
func CmpPass() *Pass {
	return &Pass{
		Name: CmpPassName,
		Rules: []Rule{
			{Name: "cmp_signed_less", Fn: matchSignedLess},
			{Name: "cmp_unsigned_less", Fn: matchUnsignedLess},
			{Name: "cmp_sub_zero", Fn: matchSubZero},
			{Name: "cmp_cond_sub", Fn: matchCondSub},
		},
	}
}

// CmpNoOverflowPass returns the pass that reads the sign of a difference as
// a signed comparison: msb(a-b) => a <s b. This only holds when the
// subtraction cannot overflow, which the caller must guarantee.
func CmpNoOverflowPass() *Pass {
	return &Pass{
		Name: CmpNoOverflowPassName,
		Rules: []Rule{
			{Name: "cmp_sign_of_sub", Fn: matchSignOfSub},
		},
	}
}

// normalize returns expr simplified with the default pass alone. Candidate
// idioms are normalized this way so that they match input simplified with
// the same canonical ordering and flattening.
func normalize(expr Expr) (Expr, bool) {
	other, err := NewSimplifier().Simplify(expr)
	if err != nil {
		return nil, false
	}
	return other, true
}

// subOperands returns the candidate (a, b) pairs for which r is a-b.
// Both orders of (+ x (- y)) are tried, as is (+ x k) for a literal k.
func subOperands(r Expr) [][2]Expr {
	e, ok := r.(*OpExpr)
	if !ok || e.op != OpAdd || len(e.args) != 2 {
		return nil
	}

	var pairs [][2]Expr
	for i := 0; i < 2; i++ {
		x, y := e.args[i], e.args[1-i]
		if IsOp(y, OpNeg) {
			pairs = append(pairs, [2]Expr{x, y.(*OpExpr).args[0]})
		} else if k, ok := y.(*IntExpr); ok && !IsInt(x) {
			pairs = append(pairs, [2]Expr{x, newInt(new(big.Int).Neg(k.value), k.size)})
		}
	}
	return pairs
}

func sub(a, b Expr) Expr {
	return Must(NewOp(OpAdd, a, Must(NewOp(OpNeg, b))))
}

func xor(args ...Expr) Expr { return Must(NewOp(OpXor, args...)) }
func and(args ...Expr) Expr { return Must(NewOp(OpAnd, args...)) }

// msbOf returns the source of expr if expr is its most significant bit.
func msbOf(expr Expr) (Expr, bool) {
	e, ok := expr.(*SliceExpr)
	if !ok || e.stop != e.src.Size() || e.start != e.stop-1 {
		return nil, false
	}
	return e.src, true
}

// matchMsbIdiom matches msb(x) where x equals build(a, b, a-b) for some
// difference a-b found among the arguments of x.
func matchMsbIdiom(expr Expr, op Op, build func(a, b, r Expr) Expr) (Expr, bool) {
	x, ok := msbOf(expr)
	if !ok || !IsOp(x, OpXor) {
		return nil, false
	}

	// The difference appears as an argument of x or of one of its arguments.
	var candidates []Expr
	for _, arg := range x.(*OpExpr).args {
		candidates = append(candidates, arg)
		if arg, ok := arg.(*OpExpr); ok {
			candidates = append(candidates, arg.args...)
		}
	}

	for _, r := range candidates {
		for _, ab := range subOperands(r) {
			a, b := ab[0], ab[1]
			want, ok := normalize(build(a, b, sub(a, b)))
			if ok && want.Equal(x) {
				return Must(NewOp(op, a, b)), true
			}
		}
	}
	return nil, false
}

func matchSignedLess(expr Expr) (Expr, bool) {
	return matchMsbIdiom(expr, OpSlt, func(a, b, r Expr) Expr {
		return xor(r, and(xor(a, b), xor(r, a)))
	})
}

func matchUnsignedLess(expr Expr) (Expr, bool) {
	return matchMsbIdiom(expr, OpUlt, func(a, b, r Expr) Expr {
		return xor(xor(a, b, r), and(xor(a, r), xor(a, b)))
	})
}

// matchSubZero rewrites (== (a-b) 0) into (== a b).
func matchSubZero(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || (e.op != OpEq && e.op != OpNe) {
		return nil, false
	}
	for i := 0; i < 2; i++ {
		if lit, ok := e.args[1-i].(*IntExpr); ok && lit.IsZero() {
			if pairs := subOperands(e.args[i]); len(pairs) > 0 {
				return Must(NewOp(e.op, pairs[0][0], pairs[0][1])), true
			}
		}
	}
	return nil, false
}

// matchCondSub rewrites the single-bit (cond a-b 0 1) into (== a b), and
// (cond a-b 1 0) into (!= a b).
func matchCondSub(expr Expr) (Expr, bool) {
	e, ok := expr.(*CondExpr)
	if !ok || e.Size() != Size1 {
		return nil, false
	}
	pairs := subOperands(e.cond)
	if len(pairs) == 0 {
		return nil, false
	}
	a, b := pairs[0][0], pairs[0][1]
	switch {
	case IsIntValue(e.src1, 0) && IsIntValue(e.src2, 1):
		return Must(NewOp(OpEq, a, b)), true
	case IsIntValue(e.src1, 1) && IsIntValue(e.src2, 0):
		return Must(NewOp(OpNe, a, b)), true
	}
	return nil, false
}

// matchSignOfSub rewrites msb(a-b) into (<s a b).
func matchSignOfSub(expr Expr) (Expr, bool) {
	r, ok := msbOf(expr)
	if !ok {
		return nil, false
	}
	pairs := subOperands(r)
	if len(pairs) == 0 {
		return nil, false
	}
	return Must(NewOp(OpSlt, pairs[0][0], pairs[0][1])), true
}
