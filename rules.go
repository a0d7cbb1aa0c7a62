package ir

import (
	"math/big"
	"sort"
)

// DefaultPass returns the always-active pass: constant folding, algebraic
// identities and slice/compose collapsing.
func DefaultPass() *Pass {
	return &Pass{
		Name: DefaultPassName,
		Rules: []Rule{
			{Name: "fold", Fn: foldConstants},
			{Name: "flatten", Fn: flattenAssoc},
			{Name: "merge_constants", Fn: mergeConstants},
			{Name: "neutral", Fn: dropNeutral},
			{Name: "absorb", Fn: absorb},
			{Name: "idempotent", Fn: dropDuplicates},
			{Name: "xor_self", Fn: cancelXor},
			{Name: "add_inverse", Fn: cancelAddInverse},
			{Name: "single_arg", Fn: unwrapSingle},
			{Name: "canonical_order", Fn: canonicalOrder},
			{Name: "double_negation", Fn: doubleNegation},
			{Name: "compare_self", Fn: compareSelf},
			{Name: "cond", Fn: simplifyCond},
			{Name: "slice_full", Fn: sliceFull},
			{Name: "slice_int", Fn: sliceInt},
			{Name: "slice_slice", Fn: sliceSlice},
			{Name: "slice_compose", Fn: sliceCompose},
			{Name: "compose_ints", Fn: composeInts},
			{Name: "compose_flatten", Fn: composeFlatten},
			{Name: "compose_merge", Fn: composeMerge},
		},
	}
}

// assocOp returns expr as an associative operator node.
func assocOp(expr Expr) (*OpExpr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || !e.op.IsAssociative() {
		return nil, false
	}
	return e, true
}

// newAssoc rebuilds an associative node over args, collapsing empty and
// single-argument forms.
func newAssoc(op Op, size uint, args []Expr) Expr {
	switch len(args) {
	case 0:
		n, ok := op.neutral(size)
		assert(ok, "no neutral element for %s", op)
		return newInt(n, size)
	case 1:
		return args[0]
	default:
		return Must(NewOp(op, args...))
	}
}

// foldConstants evaluates operators whose arguments are all literals.
func foldConstants(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok {
		return nil, false
	}
	args := make([]*IntExpr, len(e.args))
	for i, arg := range e.args {
		if args[i], ok = arg.(*IntExpr); !ok {
			return nil, false
		}
	}
	v, ok := evalOp(e.op, args)
	if !ok {
		return nil, false
	}
	return v, true
}

// flattenAssoc splices nested nodes of the same associative operator:
// (+ a (+ b c)) => (+ a b c).
func flattenAssoc(expr Expr) (Expr, bool) {
	e, ok := assocOp(expr)
	if !ok {
		return nil, false
	}
	var args []Expr
	var changed bool
	for _, arg := range e.args {
		if IsOp(arg, e.op) {
			args = append(args, arg.(*OpExpr).args...)
			changed = true
		} else {
			args = append(args, arg)
		}
	}
	if !changed {
		return nil, false
	}
	return Must(NewOp(e.op, args...)), true
}

// mergeConstants folds every literal argument of an associative operator
// into a single trailing literal.
func mergeConstants(expr Expr) (Expr, bool) {
	e, ok := assocOp(expr)
	if !ok {
		return nil, false
	}
	var ints []*IntExpr
	var rest []Expr
	for _, arg := range e.args {
		if lit, ok := arg.(*IntExpr); ok {
			ints = append(ints, lit)
		} else {
			rest = append(rest, arg)
		}
	}
	if len(ints) < 2 {
		return nil, false
	}
	v, _ := evalOp(e.op, ints)
	return newAssoc(e.op, e.size, append(rest, v)), true
}

// dropNeutral removes neutral literals: a+0, a*1, a&ones, a|0, a^0.
func dropNeutral(expr Expr) (Expr, bool) {
	e, ok := assocOp(expr)
	if !ok {
		return nil, false
	}
	n, _ := e.op.neutral(e.size)
	var args []Expr
	for _, arg := range e.args {
		if lit, ok := arg.(*IntExpr); ok && lit.value.Cmp(n) == 0 {
			continue
		}
		args = append(args, arg)
	}
	if len(args) == len(e.args) {
		return nil, false
	}
	return newAssoc(e.op, e.size, args), true
}

// absorb collapses a&0, a*0 to zero and a|ones to ones.
func absorb(expr Expr) (Expr, bool) {
	e, ok := assocOp(expr)
	if !ok {
		return nil, false
	}
	for _, arg := range e.args {
		lit, ok := arg.(*IntExpr)
		if !ok {
			continue
		}
		switch {
		case (e.op == OpAnd || e.op == OpMul) && lit.IsZero():
			return lit, true
		case e.op == OpOr && lit.IsAllOnes():
			return lit, true
		}
	}
	return nil, false
}

// dropDuplicates removes repeated arguments of idempotent operators:
// a&a => a, a|a => a.
func dropDuplicates(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || (e.op != OpAnd && e.op != OpOr) {
		return nil, false
	}
	var seen ExprMap[struct{}]
	var args []Expr
	for _, arg := range e.args {
		if _, ok := seen.Get(arg); ok {
			continue
		}
		seen.Set(arg, struct{}{})
		args = append(args, arg)
	}
	if len(args) == len(e.args) {
		return nil, false
	}
	return newAssoc(e.op, e.size, args), true
}

// cancelXor removes pairs of equal arguments: a^a => 0.
func cancelXor(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || e.op != OpXor {
		return nil, false
	}
	var counts ExprMap[int]
	for _, arg := range e.args {
		n, _ := counts.Get(arg)
		counts.Set(arg, n+1)
	}
	if counts.Len() == len(e.args) {
		return nil, false
	}
	var args []Expr
	counts.Each(func(arg Expr, n int) {
		if n%2 == 1 {
			args = append(args, arg)
		}
	})
	return newAssoc(e.op, e.size, args), true
}

// cancelAddInverse removes pairs of a value and its negation: a+(-a) => 0.
func cancelAddInverse(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || e.op != OpAdd {
		return nil, false
	}
	args := e.Args()
	removed := make([]bool, len(args))
	var changed bool
	for i, arg := range args {
		if removed[i] || !IsOp(arg, OpNeg) {
			continue
		}
		inner := arg.(*OpExpr).args[0]
		for j, other := range args {
			if j != i && !removed[j] && other.Equal(inner) {
				removed[i], removed[j], changed = true, true, true
				break
			}
		}
	}
	if !changed {
		return nil, false
	}
	var kept []Expr
	for i, arg := range args {
		if !removed[i] {
			kept = append(kept, arg)
		}
	}
	return newAssoc(e.op, e.size, kept), true
}

// unwrapSingle returns the argument of a single-argument associative node.
func unwrapSingle(expr Expr) (Expr, bool) {
	if e, ok := assocOp(expr); ok && len(e.args) == 1 {
		return e.args[0], true
	}
	return nil, false
}

// canonicalOrder sorts the arguments of commutative operators, literals last.
func canonicalOrder(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || !e.op.IsCommutative() {
		return nil, false
	}
	less := func(a, b Expr) bool {
		if ai, bi := IsInt(a), IsInt(b); ai != bi {
			return bi
		}
		return CompareExpr(a, b) < 0
	}
	if sort.SliceIsSorted(e.args, func(i, j int) bool { return less(e.args[i], e.args[j]) }) {
		return nil, false
	}
	args := e.Args()
	sort.SliceStable(args, func(i, j int) bool { return less(args[i], args[j]) })
	return Must(NewOp(e.op, args...)), true
}

// doubleNegation removes involutions: -(-a) => a, ~(~a) => a.
func doubleNegation(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || (e.op != OpNeg && e.op != OpNot) {
		return nil, false
	}
	if inner, ok := e.args[0].(*OpExpr); ok && inner.op == e.op {
		return inner.args[0], true
	}
	return nil, false
}

// compareSelf evaluates comparisons of an expression with itself.
func compareSelf(expr Expr) (Expr, bool) {
	e, ok := expr.(*OpExpr)
	if !ok || !e.op.IsCompare() || !e.args[0].Equal(e.args[1]) {
		return nil, false
	}
	switch e.op {
	case OpEq, OpUle, OpUge, OpSle, OpSge:
		return newBool(true), true
	default:
		return newBool(false), true
	}
}

// simplifyCond resolves conditionals with a literal condition or equal
// branches, and c?1:0 over a single-bit c.
func simplifyCond(expr Expr) (Expr, bool) {
	e, ok := expr.(*CondExpr)
	if !ok {
		return nil, false
	}
	if c, ok := e.cond.(*IntExpr); ok {
		if c.IsZero() {
			return e.src2, true
		}
		return e.src1, true
	}
	if e.src1.Equal(e.src2) {
		return e.src1, true
	}
	if e.cond.Size() == Size1 && e.Size() == Size1 && IsIntValue(e.src1, 1) && IsIntValue(e.src2, 0) {
		return e.cond, true
	}
	return nil, false
}

// sliceFull removes slices covering their whole source.
func sliceFull(expr Expr) (Expr, bool) {
	if e, ok := expr.(*SliceExpr); ok && e.start == 0 && e.stop == e.src.Size() {
		return e.src, true
	}
	return nil, false
}

// sliceInt evaluates slices of literals.
func sliceInt(expr Expr) (Expr, bool) {
	e, ok := expr.(*SliceExpr)
	if !ok {
		return nil, false
	}
	lit, ok := e.src.(*IntExpr)
	if !ok {
		return nil, false
	}
	return newInt(new(big.Int).Rsh(lit.value, e.start), e.Size()), true
}

// sliceSlice merges nested slices.
func sliceSlice(expr Expr) (Expr, bool) {
	e, ok := expr.(*SliceExpr)
	if !ok {
		return nil, false
	}
	inner, ok := e.src.(*SliceExpr)
	if !ok {
		return nil, false
	}
	return Must(NewSlice(inner.src, inner.start+e.start, inner.start+e.stop)), true
}

// sliceCompose slices the covered parts of a composition directly, without
// building the composed value.
func sliceCompose(expr Expr) (Expr, bool) {
	e, ok := expr.(*SliceExpr)
	if !ok {
		return nil, false
	}
	c, ok := e.src.(*ComposeExpr)
	if !ok {
		return nil, false
	}

	var picked []Expr
	for _, p := range c.parts {
		if p.Stop() <= e.start || p.Start >= e.stop {
			continue
		}
		lo, hi := maxUint(e.start, p.Start)-p.Start, minUint(e.stop, p.Stop())-p.Start
		if lo == 0 && hi == p.Expr.Size() {
			picked = append(picked, p.Expr)
		} else {
			picked = append(picked, Must(NewSlice(p.Expr, lo, hi)))
		}
	}
	if len(picked) == 1 {
		return picked[0], true
	}
	return Must(NewCompose(picked...)), true
}

// composeInts evaluates compositions of literals.
func composeInts(expr Expr) (Expr, bool) {
	e, ok := expr.(*ComposeExpr)
	if !ok {
		return nil, false
	}
	v := new(big.Int)
	for _, p := range e.parts {
		lit, ok := p.Expr.(*IntExpr)
		if !ok {
			return nil, false
		}
		v.Or(v, new(big.Int).Lsh(lit.value, p.Start))
	}
	return newInt(v, e.size), true
}

// composeFlatten splices nested compositions.
func composeFlatten(expr Expr) (Expr, bool) {
	e, ok := expr.(*ComposeExpr)
	if !ok {
		return nil, false
	}
	var args []Expr
	var changed bool
	for _, p := range e.parts {
		if inner, ok := p.Expr.(*ComposeExpr); ok {
			args = append(args, inner.Args()...)
			changed = true
		} else {
			args = append(args, p.Expr)
		}
	}
	if !changed {
		return nil, false
	}
	return Must(NewCompose(args...)), true
}

// composeMerge joins adjacent literals and contiguous slices of the same source.
func composeMerge(expr Expr) (Expr, bool) {
	e, ok := expr.(*ComposeExpr)
	if !ok {
		return nil, false
	}
	args := []Expr{e.parts[0].Expr}
	var changed bool
	for _, p := range e.parts[1:] {
		last := args[len(args)-1]
		if merged, ok := mergeAdjacent(last, p.Expr); ok {
			args[len(args)-1] = merged
			changed = true
			continue
		}
		args = append(args, p.Expr)
	}
	if !changed {
		return nil, false
	} else if len(args) == 1 {
		return args[0], true
	}
	return Must(NewCompose(args...)), true
}

// mergeAdjacent joins lo and the part directly above it, hi.
func mergeAdjacent(lo, hi Expr) (Expr, bool) {
	switch lo := lo.(type) {
	case *IntExpr:
		if hi, ok := hi.(*IntExpr); ok {
			v := new(big.Int).Lsh(hi.value, lo.size)
			return newInt(v.Or(v, lo.value), lo.size+hi.size), true
		}
	case *SliceExpr:
		if hi, ok := hi.(*SliceExpr); ok && lo.stop == hi.start && lo.src.Equal(hi.src) {
			return Must(NewSlice(lo.src, lo.start, hi.stop)), true
		}
	}
	return nil, false
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}

func maxUint(a, b uint) uint {
	if a > b {
		return a
	}
	return b
}
