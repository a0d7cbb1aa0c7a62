package ir

// Children returns the immediate subexpressions of expr, in order.
func Children(expr Expr) []Expr {
	switch expr := expr.(type) {
	case *AssignExpr:
		return []Expr{expr.dst, expr.src}
	case *IntExpr, *IdExpr, *LocExpr:
		return nil
	case *CondExpr:
		return []Expr{expr.cond, expr.src1, expr.src2}
	case *MemExpr:
		return []Expr{expr.ptr}
	case *OpExpr:
		return expr.Args()
	case *SliceExpr:
		return []Expr{expr.src}
	case *ComposeExpr:
		return expr.Args()
	default:
		panic("unreachable")
	}
}

// WithChildren returns expr rebuilt over new children. Returns expr itself if
// every child is unchanged. The children must satisfy the size rules of expr.
func WithChildren(expr Expr, children []Expr) (Expr, error) {
	prev := Children(expr)
	assert(len(prev) == len(children), "%s: expected %d children, got %d", ExprKind(expr), len(prev), len(children))

	changed := false
	for i := range prev {
		if prev[i] != children[i] {
			changed = true
			break
		}
	}
	if !changed {
		return expr, nil
	}

	switch expr := expr.(type) {
	case *AssignExpr:
		return NewAssign(children[0], children[1])
	case *CondExpr:
		return NewCond(children[0], children[1], children[2])
	case *MemExpr:
		return NewMem(children[0], expr.size)
	case *OpExpr:
		return NewOp(expr.op, children...)
	case *SliceExpr:
		return NewSlice(children[0], expr.start, expr.stop)
	case *ComposeExpr:
		return NewCompose(children...)
	default:
		panic("unreachable")
	}
}

// Visitor represents a visitor that can be passed to Walk().
type Visitor interface {
	// Executed for every visited node. Return nil to skip the children of expr.
	Visit(expr Expr) Visitor
}

// Walk traverses expr in depth-first order, parents before children.
func Walk(v Visitor, expr Expr) {
	if v = v.Visit(expr); v == nil {
		return
	}
	for _, child := range Children(expr) {
		Walk(v, child)
	}
}

type visitorFunc func(Expr) bool

func (fn visitorFunc) Visit(expr Expr) Visitor {
	if fn(expr) {
		return fn
	}
	return nil
}

// Inspect traverses expr calling fn on every node. Children are skipped when
// fn returns false.
func Inspect(expr Expr, fn func(Expr) bool) {
	Walk(visitorFunc(fn), expr)
}

// Rewrite rebuilds expr bottom-up, replacing every node by fn(node) once its
// children have been rewritten.
func Rewrite(expr Expr, fn func(Expr) (Expr, error)) (Expr, error) {
	children := Children(expr)
	if len(children) > 0 {
		other := make([]Expr, len(children))
		for i, child := range children {
			var err error
			if other[i], err = Rewrite(child, fn); err != nil {
				return nil, err
			}
		}

		var err error
		if expr, err = WithChildren(expr, other); err != nil {
			return nil, err
		}
	}
	return fn(expr)
}

// Substitute replaces every subtree of expr equal to a key of m by its value.
//
// Matching is outermost first: once a subtree is replaced, neither the
// replacement nor the original subtree is visited again.
func Substitute(expr Expr, m *ExprMap[Expr]) (Expr, error) {
	if other, ok := m.Get(expr); ok {
		if other.Size() != expr.Size() {
			return nil, sizeErrorf("substitute", "replacing %d bits of %s with %d bits of %s", expr.Size(), expr, other.Size(), other)
		}
		return other, nil
	}

	children := Children(expr)
	if len(children) == 0 {
		return expr, nil
	}
	other := make([]Expr, len(children))
	for i, child := range children {
		var err error
		if other[i], err = Substitute(child, m); err != nil {
			return nil, err
		}
	}
	return WithChildren(expr, other)
}

// Contains returns true if sub occurs anywhere in expr.
func Contains(expr, sub Expr) bool {
	var found bool
	Inspect(expr, func(e Expr) bool {
		if found || e.Equal(sub) {
			found = true
			return false
		}
		return true
	})
	return found
}
