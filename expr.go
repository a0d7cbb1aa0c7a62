package ir

import (
	"math/big"
	"sort"
)

// Expr represents a size-typed expression. Expressions are immutable once
// built and compare by structure, never by identity.
type Expr interface {
	expr()

	// Size returns the size of the value, in bits.
	Size() uint

	// Equal returns true if other is structurally equal to the expression.
	Equal(other Expr) bool

	String() string

	hash() uint64
}

func (*AssignExpr) expr()  {}
func (*IntExpr) expr()     {}
func (*IdExpr) expr()      {}
func (*LocExpr) expr()     {}
func (*CondExpr) expr()    {}
func (*MemExpr) expr()     {}
func (*OpExpr) expr()      {}
func (*SliceExpr) expr()   {}
func (*ComposeExpr) expr() {}

// Kind identifies the variant of an expression.
type Kind int

// Expression kinds.
const (
	KindAssign = Kind(iota + 1)
	KindInt
	KindId
	KindLoc
	KindCond
	KindMem
	KindOp
	KindSlice
	KindCompose
)

var kinds = [...]string{
	KindAssign:  "assign",
	KindInt:     "int",
	KindId:      "id",
	KindLoc:     "loc",
	KindCond:    "cond",
	KindMem:     "mem",
	KindOp:      "op",
	KindSlice:   "slice",
	KindCompose: "compose",
}

// String returns the keyword of the kind.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kinds) {
		return kinds[k]
	}
	return "kind?"
}

// ExprKind returns the kind of expr.
func ExprKind(expr Expr) Kind {
	switch expr.(type) {
	case *AssignExpr:
		return KindAssign
	case *IntExpr:
		return KindInt
	case *IdExpr:
		return KindId
	case *LocExpr:
		return KindLoc
	case *CondExpr:
		return KindCond
	case *MemExpr:
		return KindMem
	case *OpExpr:
		return KindOp
	case *SliceExpr:
		return KindSlice
	case *ComposeExpr:
		return KindCompose
	default:
		panic("unreachable")
	}
}

// Must returns e or panics if err is not nil.
func Must[E Expr](e E, err error) E {
	if err != nil {
		panic(err)
	}
	return e
}

// checkOperand rejects operands that cannot appear inside another node.
func checkOperand(node string, e Expr) error {
	if e == nil {
		return sizeErrorf(node, "nil operand")
	} else if _, ok := e.(*AssignExpr); ok {
		return sizeErrorf(node, "assignment used as a value: %s", e)
	}
	return nil
}

// AssignExpr represents the effect of writing Src into Dst.
type AssignExpr struct {
	dst, src Expr
	h        uint64
}

// NewAssign returns an assignment of src to dst. Both sides must share a size.
func NewAssign(dst, src Expr) (*AssignExpr, error) {
	if err := checkOperand("assign", dst); err != nil {
		return nil, err
	} else if err := checkOperand("assign", src); err != nil {
		return nil, err
	} else if dst.Size() != src.Size() {
		return nil, sizeErrorf("assign", "destination is %d bits, source is %d bits", dst.Size(), src.Size())
	}
	e := &AssignExpr{dst: dst, src: src}
	e.h = newHasher(KindAssign, dst.Size()).expr(dst).expr(src).sum()
	return e, nil
}

// Dst returns the destination of the assignment.
func (e *AssignExpr) Dst() Expr { return e.dst }

// Src returns the assigned value.
func (e *AssignExpr) Src() Expr { return e.src }

// Size returns the size of both sides of the assignment.
func (e *AssignExpr) Size() uint { return e.dst.Size() }

// IntExpr represents an integer literal, stored modulo 2^size.
type IntExpr struct {
	value *big.Int
	size  uint
	h     uint64
}

// NewInt returns a size-bit literal. Negative values wrap around.
func NewInt(value int64, size uint) (*IntExpr, error) {
	return NewIntFromBig(big.NewInt(value), size)
}

// NewUint returns a size-bit literal from an unsigned value.
func NewUint(value uint64, size uint) (*IntExpr, error) {
	return NewIntFromBig(new(big.Int).SetUint64(value), size)
}

// NewIntFromBig returns a size-bit literal. The value is reduced modulo 2^size.
func NewIntFromBig(value *big.Int, size uint) (*IntExpr, error) {
	if size == 0 {
		return nil, sizeErrorf("int", "zero size")
	} else if value == nil {
		return nil, sizeErrorf("int", "nil value")
	}
	return newInt(value, size), nil
}

// newInt builds a literal from a value owned by the caller.
func newInt(value *big.Int, size uint) *IntExpr {
	v := new(big.Int).And(value, bitmask(size))
	e := &IntExpr{value: v, size: size}
	e.h = newHasher(KindInt, size).bytes(v.Bytes()).sum()
	return e
}

// Value returns a copy of the unsigned value of the literal.
func (e *IntExpr) Value() *big.Int { return new(big.Int).Set(e.value) }

// SignedValue returns the value of the literal read as two's complement.
func (e *IntExpr) SignedValue() *big.Int { return signed(e.value, e.size) }

// Uint64 returns the low 64 bits of the value.
func (e *IntExpr) Uint64() uint64 { return e.value.Uint64() }

// Size returns the size of the literal.
func (e *IntExpr) Size() uint { return e.size }

// IsZero returns true if all bits are zero.
func (e *IntExpr) IsZero() bool { return e.value.Sign() == 0 }

// IsOne returns true if the value is one.
func (e *IntExpr) IsOne() bool { return e.value.IsInt64() && e.value.Int64() == 1 }

// IsAllOnes returns true if all bits in the value are one.
func (e *IntExpr) IsAllOnes() bool { return e.value.Cmp(bitmask(e.size)) == 0 }

// IdExpr represents a named symbolic value, such as a register.
type IdExpr struct {
	name string
	size uint
	h    uint64
}

// NewId returns a size-bit identifier.
func NewId(name string, size uint) (*IdExpr, error) {
	if size == 0 {
		return nil, sizeErrorf("id", "zero size for %q", name)
	} else if !isName(name) {
		return nil, &InvalidNameError{Node: "id", Name: name}
	}
	e := &IdExpr{name: name, size: size}
	e.h = newHasher(KindId, size).string(name).sum()
	return e, nil
}

// Name returns the identifier name.
func (e *IdExpr) Name() string { return e.name }

// Size returns the size of the identifier.
func (e *IdExpr) Size() uint { return e.size }

// LocExpr represents the address of a location. Locations are sizeless so the
// size is chosen by whoever builds the node.
type LocExpr struct {
	key  LocKey
	size uint
	h    uint64
}

// NewLoc returns a size-bit reference to key.
func NewLoc(key LocKey, size uint) (*LocExpr, error) {
	if size == 0 {
		return nil, sizeErrorf("loc", "zero size for %s", key)
	}
	e := &LocExpr{key: key, size: size}
	e.h = newHasher(KindLoc, size).uint64(uint64(key)).sum()
	return e, nil
}

// Key returns the referenced location key.
func (e *LocExpr) Key() LocKey { return e.key }

// Size returns the size of the reference.
func (e *LocExpr) Size() uint { return e.size }

// CondExpr represents "Cond ? Src1 : Src2". Any non-zero condition selects Src1.
type CondExpr struct {
	cond, src1, src2 Expr
	h                uint64
}

// NewCond returns a conditional. Both branches must share a size.
func NewCond(cond, src1, src2 Expr) (*CondExpr, error) {
	for _, arg := range []Expr{cond, src1, src2} {
		if err := checkOperand("cond", arg); err != nil {
			return nil, err
		}
	}
	if src1.Size() != src2.Size() {
		return nil, sizeErrorf("cond", "branch sizes differ: %d != %d", src1.Size(), src2.Size())
	}
	e := &CondExpr{cond: cond, src1: src1, src2: src2}
	e.h = newHasher(KindCond, src1.Size()).expr(cond).expr(src1).expr(src2).sum()
	return e, nil
}

// Cond returns the condition.
func (e *CondExpr) Cond() Expr { return e.cond }

// Src1 returns the value selected when the condition is non-zero.
func (e *CondExpr) Src1() Expr { return e.src1 }

// Src2 returns the value selected when the condition is zero.
func (e *CondExpr) Src2() Expr { return e.src2 }

// Size returns the size of the branches.
func (e *CondExpr) Size() uint { return e.src1.Size() }

// MemExpr represents a size-bit memory access at Ptr.
type MemExpr struct {
	ptr  Expr
	size uint
	h    uint64
}

// NewMem returns a memory access. The address size is unconstrained.
func NewMem(ptr Expr, size uint) (*MemExpr, error) {
	if err := checkOperand("mem", ptr); err != nil {
		return nil, err
	} else if size == 0 {
		return nil, sizeErrorf("mem", "zero access size")
	}
	e := &MemExpr{ptr: ptr, size: size}
	e.h = newHasher(KindMem, size).expr(ptr).sum()
	return e, nil
}

// Ptr returns the address expression.
func (e *MemExpr) Ptr() Expr { return e.ptr }

// Size returns the access size.
func (e *MemExpr) Size() uint { return e.size }

// OpExpr represents an operator applied to one or more arguments.
type OpExpr struct {
	op   Op
	args []Expr
	size uint
	h    uint64
}

// NewOp returns op applied to args. See Op for the size rules.
func NewOp(op Op, args ...Expr) (*OpExpr, error) {
	node := "op " + string(op)
	if !isName(string(op)) {
		return nil, &InvalidNameError{Node: "op", Name: string(op)}
	} else if len(args) == 0 {
		return nil, sizeErrorf(node, "no arguments")
	}
	for _, arg := range args {
		if err := checkOperand(node, arg); err != nil {
			return nil, err
		}
	}

	size := args[0].Size()
	switch op.arity() {
	case arityUnary:
		if len(args) != 1 {
			return nil, sizeErrorf(node, "takes one argument, got %d", len(args))
		}
	case arityBinary:
		if len(args) != 2 {
			return nil, sizeErrorf(node, "takes two arguments, got %d", len(args))
		}
	}
	for _, arg := range args[1:] {
		if arg.Size() != size {
			return nil, sizeErrorf(node, "argument sizes differ: %d != %d", size, arg.Size())
		}
	}
	if op.IsCompare() || op.IsParity() {
		size = Size1
	}

	e := &OpExpr{op: op, args: append([]Expr(nil), args...), size: size}
	h := newHasher(KindOp, size).string(string(op))
	for _, arg := range e.args {
		h.expr(arg)
	}
	e.h = h.sum()
	return e, nil
}

// Op returns the operator.
func (e *OpExpr) Op() Op { return e.op }

// Args returns a copy of the arguments.
func (e *OpExpr) Args() []Expr { return append([]Expr(nil), e.args...) }

// Arg returns the i-th argument.
func (e *OpExpr) Arg(i int) Expr { return e.args[i] }

// NumArgs returns the number of arguments.
func (e *OpExpr) NumArgs() int { return len(e.args) }

// Size returns the size of the result.
func (e *OpExpr) Size() uint { return e.size }

// SliceExpr represents bits [Start, Stop) of Src.
type SliceExpr struct {
	src         Expr
	start, stop uint
	h           uint64
}

// NewSlice returns bits [start, stop) of src.
func NewSlice(src Expr, start, stop uint) (*SliceExpr, error) {
	if err := checkOperand("slice", src); err != nil {
		return nil, err
	} else if start >= stop {
		return nil, sizeErrorf("slice", "empty range [%d:%d]", start, stop)
	} else if stop > src.Size() {
		return nil, sizeErrorf("slice", "range [%d:%d] out of bounds for %d bits", start, stop, src.Size())
	}
	e := &SliceExpr{src: src, start: start, stop: stop}
	e.h = newHasher(KindSlice, stop-start).uint64(uint64(start)).expr(src).sum()
	return e, nil
}

// Src returns the sliced expression.
func (e *SliceExpr) Src() Expr { return e.src }

// Start returns the first bit of the slice.
func (e *SliceExpr) Start() uint { return e.start }

// Stop returns the bit following the slice.
func (e *SliceExpr) Stop() uint { return e.stop }

// Size returns the size of the slice.
func (e *SliceExpr) Size() uint { return e.stop - e.start }

// ComposePart is an argument of a composition placed at bit offset Start.
type ComposePart struct {
	Expr  Expr
	Start uint
}

// Stop returns the bit following the part.
func (p ComposePart) Stop() uint { return p.Start + p.Expr.Size() }

// ComposeExpr represents the concatenation of its parts, least significant first.
type ComposeExpr struct {
	parts []ComposePart
	size  uint
	h     uint64
}

// NewCompose concatenates args, the first argument holding the low bits.
func NewCompose(args ...Expr) (*ComposeExpr, error) {
	parts := make([]ComposePart, len(args))
	var offset uint
	for i, arg := range args {
		if err := checkOperand("compose", arg); err != nil {
			return nil, err
		}
		parts[i] = ComposePart{Expr: arg, Start: offset}
		offset += arg.Size()
	}
	return NewComposeAt(parts...)
}

// NewComposeAt concatenates parts at explicit offsets. The parts must tile the
// result without gap or overlap; they may be given in any order.
func NewComposeAt(parts ...ComposePart) (*ComposeExpr, error) {
	if len(parts) < 2 {
		return nil, sizeErrorf("compose", "needs at least two arguments, got %d", len(parts))
	}
	for _, p := range parts {
		if err := checkOperand("compose", p.Expr); err != nil {
			return nil, err
		}
	}

	sorted := append([]ComposePart(nil), parts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var offset uint
	for _, p := range sorted {
		if p.Start > offset {
			return nil, sizeErrorf("compose", "gap at bits [%d:%d]", offset, p.Start)
		} else if p.Start < offset {
			return nil, sizeErrorf("compose", "argument at bit %d overlaps bits below %d", p.Start, offset)
		}
		offset = p.Stop()
	}

	e := &ComposeExpr{parts: sorted, size: offset}
	h := newHasher(KindCompose, offset)
	for _, p := range sorted {
		h.expr(p.Expr)
	}
	e.h = h.sum()
	return e, nil
}

// Parts returns a copy of the parts, ordered by offset.
func (e *ComposeExpr) Parts() []ComposePart { return append([]ComposePart(nil), e.parts...) }

// Args returns the part expressions, least significant first.
func (e *ComposeExpr) Args() []Expr {
	a := make([]Expr, len(e.parts))
	for i, p := range e.parts {
		a[i] = p.Expr
	}
	return a
}

// Size returns the sum of the part sizes.
func (e *ComposeExpr) Size() uint { return e.size }

// IsAssign returns true if expr is an assignment.
func IsAssign(expr Expr) bool { _, ok := expr.(*AssignExpr); return ok }

// IsInt returns true if expr is an integer literal.
func IsInt(expr Expr) bool { _, ok := expr.(*IntExpr); return ok }

// IsIntValue returns true if expr is an integer literal equal to value
// modulo 2^size.
func IsIntValue(expr Expr, value int64) bool {
	e, ok := expr.(*IntExpr)
	if !ok {
		return false
	}
	return e.value.Cmp(new(big.Int).And(big.NewInt(value), bitmask(e.size))) == 0
}

// IsId returns true if expr is an identifier.
func IsId(expr Expr) bool { _, ok := expr.(*IdExpr); return ok }

// IsLoc returns true if expr is a location reference.
func IsLoc(expr Expr) bool { _, ok := expr.(*LocExpr); return ok }

// IsCond returns true if expr is a conditional.
func IsCond(expr Expr) bool { _, ok := expr.(*CondExpr); return ok }

// IsMem returns true if expr is a memory access.
func IsMem(expr Expr) bool { _, ok := expr.(*MemExpr); return ok }

// IsOp returns true if expr is an operator node. If ops are given, the
// operator must also be one of them.
func IsOp(expr Expr, ops ...Op) bool {
	e, ok := expr.(*OpExpr)
	if !ok {
		return false
	} else if len(ops) == 0 {
		return true
	}
	for _, op := range ops {
		if e.op == op {
			return true
		}
	}
	return false
}

// IsSlice returns true if expr is a slice.
func IsSlice(expr Expr) bool { _, ok := expr.(*SliceExpr); return ok }

// IsCompose returns true if expr is a composition.
func IsCompose(expr Expr) bool { _, ok := expr.(*ComposeExpr); return ok }

// MaskOf returns the all-ones literal of the size of expr.
func MaskOf(expr Expr) *IntExpr {
	return newInt(bitmask(expr.Size()), expr.Size())
}

// MostSignificantBit returns the top bit of expr.
func MostSignificantBit(expr Expr) (Expr, error) {
	if err := checkOperand("most significant bit", expr); err != nil {
		return nil, err
	}
	e, err := NewSlice(expr, expr.Size()-1, expr.Size())
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ZeroExtend returns expr widened to size bits with zero high bits.
func ZeroExtend(expr Expr, size uint) (Expr, error) {
	if err := checkExtend("zero extend", expr, size); err != nil {
		return nil, err
	} else if size == expr.Size() {
		return expr, nil
	}
	return NewCompose(expr, newInt(new(big.Int), size-expr.Size()))
}

// SignExtend returns expr widened to size bits, replicating its sign bit.
func SignExtend(expr Expr, size uint) (Expr, error) {
	if err := checkExtend("sign extend", expr, size); err != nil {
		return nil, err
	} else if size == expr.Size() {
		return expr, nil
	}
	n := size - expr.Size()
	msb, err := MostSignificantBit(expr)
	if err != nil {
		return nil, err
	}
	high, err := NewCond(msb, newInt(bitmask(n), n), newInt(new(big.Int), n))
	if err != nil {
		return nil, err
	}
	return NewCompose(expr, high)
}

func checkExtend(node string, expr Expr, size uint) error {
	if err := checkOperand(node, expr); err != nil {
		return err
	} else if size < expr.Size() {
		return sizeErrorf(node, "cannot narrow %d bits to %d", expr.Size(), size)
	}
	return nil
}

// bitmask returns 2^size - 1.
func bitmask(size uint) *big.Int {
	m := new(big.Int).Lsh(big.NewInt(1), size)
	return m.Sub(m, big.NewInt(1))
}

// signed returns v, a size-bit value, read as two's complement.
func signed(v *big.Int, size uint) *big.Int {
	other := new(big.Int).Set(v)
	if v.Bit(int(size-1)) == 1 {
		other.Sub(other, new(big.Int).Lsh(big.NewInt(1), size))
	}
	return other
}
