package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode"
)

// LocNamer renders location keys. Implemented by LocationDB and LocSnapshot.
type LocNamer interface {
	PrettyStr(key LocKey) string
}

// FormatExpr returns the text form of expr with location keys rendered by
// namer. A nil namer prints raw key indices, which ParseExpr reads back.
func FormatExpr(expr Expr, namer LocNamer) string {
	var buf bytes.Buffer
	formatExpr(&buf, expr, namer)
	return buf.String()
}

func formatExpr(buf *bytes.Buffer, expr Expr, namer LocNamer) {
	switch expr := expr.(type) {
	case *AssignExpr:
		buf.WriteString("(assign ")
		formatExpr(buf, expr.dst, namer)
		buf.WriteByte(' ')
		formatExpr(buf, expr.src, namer)
		buf.WriteByte(')')
	case *IntExpr:
		fmt.Fprintf(buf, "(int 0x%s %d)", expr.value.Text(16), expr.size)
	case *IdExpr:
		fmt.Fprintf(buf, "(id %s %d)", expr.name, expr.size)
	case *LocExpr:
		fmt.Fprintf(buf, "(loc %s %d)", locAtom(expr.key, namer), expr.size)
	case *CondExpr:
		buf.WriteString("(cond ")
		formatExpr(buf, expr.cond, namer)
		buf.WriteByte(' ')
		formatExpr(buf, expr.src1, namer)
		buf.WriteByte(' ')
		formatExpr(buf, expr.src2, namer)
		buf.WriteByte(')')
	case *MemExpr:
		buf.WriteString("(mem ")
		formatExpr(buf, expr.ptr, namer)
		fmt.Fprintf(buf, " %d)", expr.size)
	case *OpExpr:
		fmt.Fprintf(buf, "(%s", expr.op)
		for _, arg := range expr.args {
			buf.WriteByte(' ')
			formatExpr(buf, arg, namer)
		}
		buf.WriteByte(')')
	case *SliceExpr:
		buf.WriteString("(slice ")
		formatExpr(buf, expr.src, namer)
		fmt.Fprintf(buf, " %d %d)", expr.start, expr.stop)
	case *ComposeExpr:
		buf.WriteString("(compose")
		for _, p := range expr.parts {
			buf.WriteByte(' ')
			formatExpr(buf, p.Expr, namer)
		}
		buf.WriteByte(')')
	default:
		panic("unreachable")
	}
}

// locAtom returns the display name of key when the parser resolves it back
// to key, and the raw index otherwise.
func locAtom(key LocKey, namer LocNamer) string {
	raw := strconv.FormatUint(uint64(key), 10)
	if namer == nil {
		return raw
	}
	s := namer.PrettyStr(key)
	if !isName(s) {
		return raw
	} else if _, err := strconv.ParseUint(s, 10, 32); err == nil {
		return raw
	}
	if r, ok := namer.(interface {
		NameLocation(name string) (LocKey, bool)
	}); ok {
		if owner, ok := r.NameLocation(s); ok && owner != key {
			return raw
		}
	}
	return s
}

// isName returns true if s reads back as a single atom.
func isName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '(' || c == ')' || unicode.IsSpace(rune(c)) {
			return false
		}
	}
	return true
}

// String returns the string representation of the expression.
func (e *AssignExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *IntExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *IdExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *LocExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *CondExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *MemExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *OpExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *SliceExpr) String() string { return FormatExpr(e, nil) }

// String returns the string representation of the expression.
func (e *ComposeExpr) String() string { return FormatExpr(e, nil) }
