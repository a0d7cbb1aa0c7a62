package ir

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode"
)

// ParseError is returned when text cannot be read as an expression.
type ParseError struct {
	Pos int // byte offset in the input
	Msg string
	Err error // construction error, if any
}

// Error returns the error message.
func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at offset %d: %s: %s", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// Unwrap returns the underlying construction error.
func (e *ParseError) Unwrap() error { return e.Err }

// Parser reads the text form produced by Expr.String() and FormatExpr.
type Parser struct {
	// Resolves location names and loc_0xOFFSET forms in (loc NAME SIZE).
	// Optional; numeric and loc_key_N keys are always accepted.
	Locations *LocationDB
}

// ParseExpr parses a single expression.
func ParseExpr(src string) (Expr, error) {
	return (&Parser{}).Parse(src)
}

// Parse parses a single expression. Trailing input is an error.
func (p *Parser) Parse(src string) (Expr, error) {
	s := &scanner{src: src}
	expr, err := p.parseExpr(s)
	if err != nil {
		return nil, err
	}
	if tok, pos := s.next(); tok != "" {
		return nil, &ParseError{Pos: pos, Msg: fmt.Sprintf("unexpected %q after expression", tok)}
	}
	return expr, nil
}

func (p *Parser) parseExpr(s *scanner) (Expr, error) {
	tok, pos := s.next()
	if tok != "(" {
		return nil, s.errorf(pos, "expected '(', got %q", tok)
	}
	head, hpos := s.next()
	if head == "" || head == "(" || head == ")" {
		return nil, s.errorf(hpos, "expected expression keyword, got %q", head)
	}

	var expr Expr
	var err error
	switch head {
	case "assign":
		var args []Expr
		if args, err = p.parseExprs(s, 2); err == nil {
			expr, err = NewAssign(args[0], args[1])
		}
	case "int":
		var value *big.Int
		var size uint
		if value, err = s.bigInt(); err == nil {
			if size, err = s.uint(); err == nil {
				expr, err = NewIntFromBig(value, size)
			}
		}
	case "id":
		name, npos := s.next()
		if !isAtom(name) {
			return nil, s.errorf(npos, "expected identifier name, got %q", name)
		}
		var size uint
		if size, err = s.uint(); err == nil {
			expr, err = NewId(name, size)
		}
	case "loc":
		var key LocKey
		var size uint
		if key, err = p.locKey(s); err == nil {
			if size, err = s.uint(); err == nil {
				expr, err = NewLoc(key, size)
			}
		}
	case "cond":
		var args []Expr
		if args, err = p.parseExprs(s, 3); err == nil {
			expr, err = NewCond(args[0], args[1], args[2])
		}
	case "mem":
		var ptr Expr
		var size uint
		if ptr, err = p.parseExpr(s); err == nil {
			if size, err = s.uint(); err == nil {
				expr, err = NewMem(ptr, size)
			}
		}
	case "slice":
		var src Expr
		var start, stop uint
		if src, err = p.parseExpr(s); err == nil {
			if start, err = s.uint(); err == nil {
				if stop, err = s.uint(); err == nil {
					expr, err = NewSlice(src, start, stop)
				}
			}
		}
	case "compose":
		var args []Expr
		if args, err = p.parseExprs(s, -1); err == nil {
			expr, err = NewCompose(args...)
		}
	default:
		var args []Expr
		if args, err = p.parseExprs(s, -1); err == nil {
			expr, err = NewOp(Op(head), args...)
		}
	}
	if err != nil {
		if _, ok := err.(*ParseError); ok {
			return nil, err
		}
		return nil, &ParseError{Pos: pos, Msg: "invalid " + head, Err: err}
	}

	if tok, pos := s.next(); tok != ")" {
		return nil, s.errorf(pos, "expected ')', got %q", tok)
	}
	return expr, nil
}

// parseExprs reads n expressions, or every expression up to ')' if n < 0.
func (p *Parser) parseExprs(s *scanner, n int) ([]Expr, error) {
	var a []Expr
	for n < 0 || len(a) < n {
		if n < 0 {
			if tok, _ := s.peek(); tok != "(" {
				break
			}
		}
		expr, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		a = append(a, expr)
	}
	return a, nil
}

func (p *Parser) locKey(s *scanner) (LocKey, error) {
	tok, pos := s.next()
	if !isAtom(tok) {
		return 0, s.errorf(pos, "expected location, got %q", tok)
	}
	if i, err := strconv.ParseUint(tok, 10, 32); err == nil {
		return LocKey(i), nil
	}
	if p.Locations != nil {
		if key, ok := p.Locations.NameLocation(tok); ok {
			return key, nil
		}
	}
	if n, ok := strings.CutPrefix(tok, "loc_key_"); ok {
		if i, err := strconv.ParseUint(n, 10, 32); err == nil {
			return LocKey(i), nil
		}
	}
	if h, ok := strings.CutPrefix(tok, "loc_0x"); ok && p.Locations != nil {
		if offset, err := strconv.ParseUint(h, 16, 64); err == nil {
			if key, ok := p.Locations.OffsetLocation(offset); ok {
				return key, nil
			}
		}
	}
	return 0, s.errorf(pos, "unknown location %q", tok)
}

type scanner struct {
	src string
	pos int
}

// next returns the next token and its offset, or "" at end of input.
func (s *scanner) next() (string, int) {
	tok, pos, end := s.scan()
	s.pos = end
	return tok, pos
}

func (s *scanner) peek() (string, int) {
	tok, pos, _ := s.scan()
	return tok, pos
}

func (s *scanner) scan() (tok string, pos, end int) {
	i := s.pos
	for i < len(s.src) && unicode.IsSpace(rune(s.src[i])) {
		i++
	}
	if i == len(s.src) {
		return "", i, i
	}
	if c := s.src[i]; c == '(' || c == ')' {
		return s.src[i : i+1], i, i + 1
	}
	j := i
	for j < len(s.src) && !unicode.IsSpace(rune(s.src[j])) && s.src[j] != '(' && s.src[j] != ')' {
		j++
	}
	return s.src[i:j], i, j
}

func (s *scanner) uint() (uint, error) {
	tok, pos := s.next()
	v, err := strconv.ParseUint(tok, 0, 32)
	if err != nil {
		return 0, s.errorf(pos, "expected size, got %q", tok)
	}
	return uint(v), nil
}

func (s *scanner) bigInt() (*big.Int, error) {
	tok, pos := s.next()
	v, ok := new(big.Int).SetString(strings.ReplaceAll(tok, "_", ""), 0)
	if !ok {
		return nil, s.errorf(pos, "expected integer, got %q", tok)
	}
	return v, nil
}

func (s *scanner) errorf(pos int, format string, args ...interface{}) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func isAtom(tok string) bool {
	return tok != "" && tok != "(" && tok != ")"
}
