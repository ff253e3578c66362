package ir

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
)

// Float represents a non-integral (or out of int64 range) finite number.
// Construct it with Number so integral values stay Int: canonical JSON
// renders Float(2) and Int(2) identically, and decoding must round-trip.
type Float float64

func (Float) irValue() {}

// two63 is 2^63, the first float64 above the int64 range.
const two63 = float64(1 << 63)

// Number normalizes f: integral values inside the int64 range become Int,
// everything else Float. NaN and infinities are rejected.
func Number(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("number is not finite: %v", f)
	}
	if f == math.Trunc(f) && f >= -two63 && f < two63 {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}

// IsNumber reports whether v is an Int or a Float.
func IsNumber(v Value) bool {
	switch v.(type) {
	case Int, Float:
		return true
	}
	return false
}

func toFloat(v Value) float64 {
	switch n := v.(type) {
	case Int:
		return float64(n)
	case Float:
		return float64(n)
	}
	return 0
}

// Add returns a+b. Int operands stay Int unless the sum overflows int64,
// in which case the result is promoted to a float.
func Add(a, b Value) (Value, error) {
	if !IsNumber(a) || !IsNumber(b) {
		return nil, fmt.Errorf("cannot add %T and %T", a, b)
	}
	ai, aok := a.(Int)
	bi, bok := b.(Int)
	if aok && bok {
		s := ai + bi
		if (s > ai) == (bi > 0) {
			return s, nil
		}
	}
	return Number(toFloat(a) + toFloat(b))
}

// Mul returns a*b with the same promotion rule as Add.
func Mul(a, b Value) (Value, error) {
	if !IsNumber(a) || !IsNumber(b) {
		return nil, fmt.Errorf("cannot multiply %T and %T", a, b)
	}
	ai, aok := a.(Int)
	bi, bok := b.(Int)
	if aok && bok {
		if ai == 0 || bi == 0 {
			return Int(0), nil
		}
		p := ai * bi
		if p/bi == ai && !(ai == -1 && bi == math.MinInt64) && !(bi == -1 && ai == math.MinInt64) {
			return p, nil
		}
	}
	return Number(toFloat(a) * toFloat(b))
}

// CompareNumbers orders two numeric values. Int pairs compare exactly.
func CompareNumbers(a, b Value) int {
	ai, aok := a.(Int)
	bi, bok := b.(Int)
	if aok && bok {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(toFloat(a), toFloat(b))
}

// numbersEqual compares across Int and Float without losing precision on
// large ints.
func numbersEqual(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return floatEqualsInt(float64(bv), av)
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return floatEqualsInt(float64(av), bv)
		case Float:
			return av == bv
		}
	}
	return false
}

func floatEqualsInt(f float64, i Int) bool {
	return f == math.Trunc(f) && f >= -two63 && f < two63 && int64(f) == int64(i)
}

// formatFloat renders f the way RFC 8785 (ECMAScript Number#toString) does:
// shortest round-trip digits, plain notation in [1e-6, 1e21), exponent
// notation otherwise without leading exponent zeros.
func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	format := byte('e')
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		format = 'f'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'e' {
		// Go writes 1e-07; ECMAScript writes 1e-7.
		for i := 0; i < len(s); i++ {
			if s[i] == 'e' && i+2 < len(s) && s[i+2] == '0' {
				s = s[:i+2] + s[i+3:]
				break
			}
		}
	}
	return s
}
