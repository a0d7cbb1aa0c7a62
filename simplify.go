package ir

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/tlog"
)

// DefaultMaxIterations is the default bound on rewrites of a single node.
const DefaultMaxIterations = 1000

// DefaultPassName is the name of the pass that is always active.
const DefaultPassName = "default"

// Rule rewrites a single node. It returns false when it does not apply.
// A rule must preserve the size of the node it rewrites.
type Rule struct {
	Name string
	Fn   func(Expr) (Expr, bool)
}

// Pass is a named, ordered group of rules.
type Pass struct {
	Name  string
	Rules []Rule
}

// Simplifier rewrites expressions to a fixed point of its active rules.
//
// The default pass is always active. Other registered passes start disabled
// and must be turned on with EnablePass. Configuration must not change while
// a Simplify call is running; concurrent calls on a configured simplifier
// are safe.
type Simplifier struct {
	// Bound on rule applications to a single node, and on full traversals
	// of the tree. Zero means DefaultMaxIterations.
	MaxIterations int

	passes  []*Pass
	enabled []bool
}

// NewSimplifier returns a simplifier with the default pass active and the
// given passes registered but disabled.
func NewSimplifier(passes ...*Pass) *Simplifier {
	s := &Simplifier{}
	s.register(DefaultPass())
	s.enabled[0] = true
	for _, p := range passes {
		s.register(p)
	}
	return s
}

// NewStandardSimplifier returns a simplifier with every built-in pass registered.
func NewStandardSimplifier() *Simplifier {
	return NewSimplifier(CmpPass(), CmpNoOverflowPass())
}

func (s *Simplifier) register(p *Pass) {
	for _, other := range s.passes {
		assert(other.Name != p.Name, "duplicate simplifier pass: %q", p.Name)
	}
	s.passes = append(s.passes, p)
	s.enabled = append(s.enabled, false)
}

// EnablePass activates a registered pass.
func (s *Simplifier) EnablePass(name string) error {
	for i, p := range s.passes {
		if p.Name == name {
			s.enabled[i] = true
			return nil
		}
	}
	return &UnknownPassError{Name: name}
}

// Passes returns the names of every registered pass, in registration order.
func (s *Simplifier) Passes() []string {
	a := make([]string, len(s.passes))
	for i, p := range s.passes {
		a[i] = p.Name
	}
	return a
}

// ActivePasses returns the names of the enabled passes.
func (s *Simplifier) ActivePasses() []string {
	var a []string
	for i, p := range s.passes {
		if s.enabled[i] {
			a = append(a, p.Name)
		}
	}
	return a
}

func (s *Simplifier) maxIterations() int {
	if s.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return s.MaxIterations
}

// rules returns the active rules in application order.
func (s *Simplifier) rules() []Rule {
	var a []Rule
	for i, p := range s.passes {
		if s.enabled[i] {
			a = append(a, p.Rules...)
		}
	}
	return a
}

// Simplify returns the fixed point of the active rules over expr.
//
// Children are simplified before their parent; each node is rewritten until
// no rule applies. Traversals repeat until one leaves the tree unchanged.
func (s *Simplifier) Simplify(expr Expr) (Expr, error) {
	rules := s.rules()
	for i := 0; ; i++ {
		if i >= s.maxIterations() {
			return nil, &NonTerminationError{Expr: expr, Iterations: i}
		}
		other, err := s.simplifyNode(expr, rules, NewExprMap[Expr]())
		if err != nil {
			return nil, err
		} else if other.Equal(expr) {
			return other, nil
		}
		expr = other
	}
}

// SimplifyWith substitutes bindings into expr before simplifying it. Binding
// variables to literals evaluates the expression as far as the rules allow.
func (s *Simplifier) SimplifyWith(expr Expr, bindings *ExprMap[Expr]) (Expr, error) {
	other, err := Substitute(expr, bindings)
	if err != nil {
		return nil, err
	}
	return s.Simplify(other)
}

// SimplifyAll simplifies independent expressions concurrently, running at
// most jobs at once. A non-positive jobs means no limit.
func (s *Simplifier) SimplifyAll(ctx context.Context, exprs []Expr, jobs int) ([]Expr, error) {
	results := make([]Expr, len(exprs))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, expr := range exprs {
		i, expr := i, expr
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			other, err := s.Simplify(expr)
			if err != nil {
				return fmt.Errorf("expression %d: %w", i, err)
			}
			results[i] = other
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Simplifier) simplifyNode(expr Expr, rules []Rule, memo *ExprMap[Expr]) (Expr, error) {
	if other, ok := memo.Get(expr); ok {
		return other, nil
	}

	out := expr
	if children := Children(expr); len(children) > 0 {
		other := make([]Expr, len(children))
		for i, child := range children {
			var err error
			if other[i], err = s.simplifyNode(child, rules, memo); err != nil {
				return nil, err
			}
		}

		var err error
		if out, err = WithChildren(expr, other); err != nil {
			return nil, err
		}
	}

	out, err := s.rewrite(out, rules)
	if err != nil {
		return nil, err
	}
	memo.Set(expr, out)
	return out, nil
}

// rewrite applies rules to expr until none matches.
func (s *Simplifier) rewrite(expr Expr, rules []Rule) (Expr, error) {
	for i := 0; ; i++ {
		other, rule, ok := applyFirst(expr, rules)
		if !ok {
			return expr, nil
		} else if i >= s.maxIterations() {
			return nil, &NonTerminationError{Expr: expr, Iterations: i}
		} else if other.Size() != expr.Size() {
			return nil, sizeErrorf("rule "+rule, "rewrote %d bits %s into %d bits %s", expr.Size(), expr, other.Size(), other)
		}

		if tlog.If("simplify") {
			tlog.Printw("rewrite", "rule", rule, "from", expr.String(), "to", other.String())
		}
		expr = other
	}
}

// applyFirst returns the result of the first rule that changes expr.
func applyFirst(expr Expr, rules []Rule) (Expr, string, bool) {
	if IsAssign(expr) {
		return nil, "", false
	}
	for _, r := range rules {
		if other, ok := r.Fn(expr); ok && other != nil && !other.Equal(expr) {
			return other, r.Name, true
		}
	}
	return nil, "", false
}

// Simplify returns expr simplified with the default pass and the named
// built-in passes.
func Simplify(expr Expr, passes ...string) (Expr, error) {
	s := NewStandardSimplifier()
	for _, name := range passes {
		if err := s.EnablePass(name); err != nil {
			return nil, err
		}
	}
	return s.Simplify(expr)
}
