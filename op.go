package ir

import (
	"math/big"
	"math/bits"
)

// Op is an operator tag.
//
// Operators outside the built-in set follow the default rule: all arguments
// share a size, which is also the size of the result.
type Op string

// Associative and commutative operators, taking any number of arguments.
const (
	OpAdd = Op("+")
	OpMul = Op("*")
	OpAnd = Op("&")
	OpOr  = Op("|")
	OpXor = Op("^")
)

// Binary operators.
const (
	OpUDiv = Op("udiv")
	OpUMod = Op("umod")
	OpSDiv = Op("sdiv")
	OpSMod = Op("smod")
	OpShl  = Op("<<")
	OpLShr = Op(">>")
	OpAShr = Op("a>>")
	OpRotl = Op("<<<")
	OpRotr = Op(">>>")
)

// Unary operators.
const (
	OpNeg           = Op("-")
	OpNot           = Op("~")
	OpCntTrailZeros = Op("cnttrailzeros")
	OpCntLeadZeros  = Op("cntleadzeros")
)

// Comparison operators. The result is a single bit.
const (
	OpEq  = Op("==")
	OpNe  = Op("!=")
	OpUlt = Op("<u")
	OpUle = Op("<=u")
	OpUgt = Op(">u")
	OpUge = Op(">=u")
	OpSlt = Op("<s")
	OpSle = Op("<=s")
	OpSgt = Op(">s")
	OpSge = Op(">=s")
)

// OpParity is set when the low byte of its argument has an even number of
// set bits. The result is a single bit.
const OpParity = Op("parity")

type arity int

const (
	arityAny = arity(iota)
	arityUnary
	arityBinary
)

type opInfo struct {
	arity   arity
	assoc   bool // associative and commutative
	compare bool
	parity  bool
}

var ops = map[Op]opInfo{
	OpAdd: {assoc: true},
	OpMul: {assoc: true},
	OpAnd: {assoc: true},
	OpOr:  {assoc: true},
	OpXor: {assoc: true},

	OpUDiv: {arity: arityBinary},
	OpUMod: {arity: arityBinary},
	OpSDiv: {arity: arityBinary},
	OpSMod: {arity: arityBinary},
	OpShl:  {arity: arityBinary},
	OpLShr: {arity: arityBinary},
	OpAShr: {arity: arityBinary},
	OpRotl: {arity: arityBinary},
	OpRotr: {arity: arityBinary},

	OpNeg:           {arity: arityUnary},
	OpNot:           {arity: arityUnary},
	OpCntTrailZeros: {arity: arityUnary},
	OpCntLeadZeros:  {arity: arityUnary},

	OpEq:  {arity: arityBinary, compare: true},
	OpNe:  {arity: arityBinary, compare: true},
	OpUlt: {arity: arityBinary, compare: true},
	OpUle: {arity: arityBinary, compare: true},
	OpUgt: {arity: arityBinary, compare: true},
	OpUge: {arity: arityBinary, compare: true},
	OpSlt: {arity: arityBinary, compare: true},
	OpSle: {arity: arityBinary, compare: true},
	OpSgt: {arity: arityBinary, compare: true},
	OpSge: {arity: arityBinary, compare: true},

	OpParity: {arity: arityUnary, parity: true},
}

// IsBuiltin returns true if op belongs to the built-in operator set.
func (op Op) IsBuiltin() bool {
	_, ok := ops[op]
	return ok
}

// IsAssociative returns true if op is associative and commutative.
func (op Op) IsAssociative() bool { return ops[op].assoc }

// IsCommutative returns true if the argument order of op is irrelevant.
func (op Op) IsCommutative() bool {
	return op.IsAssociative() || op == OpEq || op == OpNe
}

// IsCompare returns true if op is a comparison operator.
func (op Op) IsCompare() bool { return ops[op].compare }

// IsParity returns true if op belongs to the parity class.
func (op Op) IsParity() bool { return ops[op].parity }

func (op Op) arity() arity { return ops[op].arity }

// neutral returns the neutral element of an associative operator.
func (op Op) neutral(size uint) (*big.Int, bool) {
	switch op {
	case OpAdd, OpOr, OpXor:
		return new(big.Int), true
	case OpMul:
		return big.NewInt(1), true
	case OpAnd:
		return bitmask(size), true
	default:
		return nil, false
	}
}

// evalOp computes op over literal arguments. The result is masked to the size
// of the node. Returns false for unknown operators and division by zero.
func evalOp(op Op, args []*IntExpr) (*IntExpr, bool) {
	size := args[0].size
	x := args[0].value

	if op.IsAssociative() {
		v := new(big.Int).Set(x)
		for _, arg := range args[1:] {
			switch op {
			case OpAdd:
				v.Add(v, arg.value)
			case OpMul:
				v.Mul(v, arg.value)
				v.And(v, bitmask(size))
			case OpAnd:
				v.And(v, arg.value)
			case OpOr:
				v.Or(v, arg.value)
			case OpXor:
				v.Xor(v, arg.value)
			}
		}
		return newInt(v, size), true
	}

	switch op {
	case OpNeg:
		return newInt(new(big.Int).Neg(x), size), true
	case OpNot:
		return newInt(new(big.Int).Xor(x, bitmask(size)), size), true
	case OpCntTrailZeros:
		if x.Sign() == 0 {
			return newInt(new(big.Int).SetUint64(uint64(size)), size), true
		}
		return newInt(new(big.Int).SetUint64(uint64(x.TrailingZeroBits())), size), true
	case OpCntLeadZeros:
		return newInt(big.NewInt(int64(size)-int64(x.BitLen())), size), true
	case OpParity:
		return newBool(bits.OnesCount8(uint8(x.Uint64()))%2 == 0), true
	}

	if len(args) != 2 {
		return nil, false
	}
	y := args[1].value

	switch op {
	case OpUDiv, OpUMod, OpSDiv, OpSMod:
		if y.Sign() == 0 {
			return nil, false
		}
	}

	switch op {
	case OpUDiv:
		return newInt(new(big.Int).Quo(x, y), size), true
	case OpUMod:
		return newInt(new(big.Int).Rem(x, y), size), true
	case OpSDiv:
		return newInt(new(big.Int).Quo(signed(x, size), signed(y, size)), size), true
	case OpSMod:
		return newInt(new(big.Int).Rem(signed(x, size), signed(y, size)), size), true
	case OpShl:
		return newInt(new(big.Int).Lsh(x, shiftCount(y, size)), size), true
	case OpLShr:
		return newInt(new(big.Int).Rsh(x, shiftCount(y, size)), size), true
	case OpAShr:
		return newInt(new(big.Int).Rsh(signed(x, size), shiftCount(y, size)), size), true
	case OpRotl, OpRotr:
		n := uint(new(big.Int).Rem(y, new(big.Int).SetUint64(uint64(size))).Uint64())
		if op == OpRotr {
			n = (size - n) % size
		}
		v := new(big.Int).Lsh(x, n)
		v.Or(v, new(big.Int).Rsh(x, size-n))
		return newInt(v, size), true
	case OpEq:
		return newBool(x.Cmp(y) == 0), true
	case OpNe:
		return newBool(x.Cmp(y) != 0), true
	case OpUlt:
		return newBool(x.Cmp(y) < 0), true
	case OpUle:
		return newBool(x.Cmp(y) <= 0), true
	case OpUgt:
		return newBool(x.Cmp(y) > 0), true
	case OpUge:
		return newBool(x.Cmp(y) >= 0), true
	case OpSlt:
		return newBool(signed(x, size).Cmp(signed(y, size)) < 0), true
	case OpSle:
		return newBool(signed(x, size).Cmp(signed(y, size)) <= 0), true
	case OpSgt:
		return newBool(signed(x, size).Cmp(signed(y, size)) > 0), true
	case OpSge:
		return newBool(signed(x, size).Cmp(signed(y, size)) >= 0), true
	}
	return nil, false
}

// shiftCount clamps a shift amount to size; larger counts shift every bit out.
func shiftCount(y *big.Int, size uint) uint {
	if !y.IsUint64() || y.Uint64() > uint64(size) {
		return size
	}
	return uint(y.Uint64())
}

// newBool returns a single-bit literal.
func newBool(v bool) *IntExpr {
	if v {
		return newInt(big.NewInt(1), Size1)
	}
	return newInt(new(big.Int), Size1)
}
