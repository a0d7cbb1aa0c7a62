package ir

import (
	"encoding/binary"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hasher accumulates the structural hash of a node.
type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher(kind Kind, size uint) *hasher {
	h := &hasher{d: xxhash.New()}
	return h.uint64(uint64(kind)).uint64(uint64(size))
}

func (h *hasher) uint64(v uint64) *hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
	return h
}

func (h *hasher) bytes(b []byte) *hasher {
	h.uint64(uint64(len(b)))
	h.d.Write(b)
	return h
}

func (h *hasher) string(s string) *hasher {
	h.uint64(uint64(len(s)))
	h.d.WriteString(s)
	return h
}

func (h *hasher) expr(e Expr) *hasher {
	return h.uint64(e.hash())
}

func (h *hasher) sum() uint64 { return h.d.Sum64() }

func (e *AssignExpr) hash() uint64  { return e.h }
func (e *IntExpr) hash() uint64     { return e.h }
func (e *IdExpr) hash() uint64      { return e.h }
func (e *LocExpr) hash() uint64     { return e.h }
func (e *CondExpr) hash() uint64    { return e.h }
func (e *MemExpr) hash() uint64     { return e.h }
func (e *OpExpr) hash() uint64      { return e.h }
func (e *SliceExpr) hash() uint64   { return e.h }
func (e *ComposeExpr) hash() uint64 { return e.h }

// Equal returns true if other is structurally equal to e.
func (e *AssignExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *IntExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *IdExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *LocExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *CondExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *MemExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *OpExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *SliceExpr) Equal(other Expr) bool { return equalExpr(e, other) }

// Equal returns true if other is structurally equal to e.
func (e *ComposeExpr) Equal(other Expr) bool { return equalExpr(e, other) }

func equalExpr(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	} else if a.hash() != b.hash() {
		return false
	}
	return CompareExpr(a, b) == 0
}

// CompareExpr returns an integer comparing two expressions.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func CompareExpr(a, b Expr) int {
	if a == nil && b != nil {
		return -1
	} else if a != nil && b == nil {
		return 1
	} else if a == nil && b == nil {
		return 0
	} else if a == b {
		return 0
	}

	if ak, bk := ExprKind(a), ExprKind(b); ak < bk {
		return -1
	} else if ak > bk {
		return 1
	}
	if cmp := compareUint(a.Size(), b.Size()); cmp != 0 {
		return cmp
	}

	switch a := a.(type) {
	case *AssignExpr:
		return compareExprs([]Expr{a.dst, a.src}, []Expr{b.(*AssignExpr).dst, b.(*AssignExpr).src})
	case *IntExpr:
		return a.value.Cmp(b.(*IntExpr).value)
	case *IdExpr:
		return strings.Compare(a.name, b.(*IdExpr).name)
	case *LocExpr:
		return compareUint(uint(a.key), uint(b.(*LocExpr).key))
	case *CondExpr:
		b := b.(*CondExpr)
		return compareExprs([]Expr{a.cond, a.src1, a.src2}, []Expr{b.cond, b.src1, b.src2})
	case *MemExpr:
		return CompareExpr(a.ptr, b.(*MemExpr).ptr)
	case *OpExpr:
		b := b.(*OpExpr)
		if cmp := strings.Compare(string(a.op), string(b.op)); cmp != 0 {
			return cmp
		}
		return compareExprs(a.args, b.args)
	case *SliceExpr:
		b := b.(*SliceExpr)
		if cmp := compareUint(a.start, b.start); cmp != 0 {
			return cmp
		}
		return CompareExpr(a.src, b.src)
	case *ComposeExpr:
		return compareExprs(a.Args(), b.(*ComposeExpr).Args())
	default:
		panic("unreachable")
	}
}

func compareExprs(a, b []Expr) int {
	if cmp := compareUint(uint(len(a)), uint(len(b))); cmp != 0 {
		return cmp
	}
	for i := range a {
		if cmp := CompareExpr(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	return 0
}

func compareUint(a, b uint) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
