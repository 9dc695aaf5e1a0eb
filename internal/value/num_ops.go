package value

import (
	"fmt"
	"math"
)

// Promote lifts two operands to a common numeric type following the lattice
// Bool < Int < Float. Pointer cells are dereferenced first; nil operands are
// rejected. The result is always (Int, Int) or (Float, Float).
func Promote(x, y Value) (Value, Value, error) {
	x, y = Deref(x), Deref(y)
	if x.Kind == KindNil || y.Kind == KindNil {
		return Value{}, Value{}, fmt.Errorf("Numerical operations cannot operate on nil values")
	}
	if !isNumeric(x) || !isNumeric(y) {
		return Value{}, Value{}, fmt.Errorf("Numerical promotion not supported for %s and %s", TypeName(x), TypeName(y))
	}
	if x.Kind == KindFloat || y.Kind == KindFloat {
		return Float(asFloat(x)), Float(asFloat(y)), nil
	}
	return Int(asInt(x)), Int(asInt(y)), nil
}

func asInt(v Value) int64 {
	if v.Kind == KindBool {
		if v.B {
			return 1
		}
		return 0
	}
	return v.I
}

func asFloat(v Value) float64 {
	switch v.Kind {
	case KindBool:
		if v.B {
			return 1
		}
		return 0
	case KindInt:
		return float64(v.I)
	default:
		return v.F
	}
}

func Add(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		return Int(a.I + b.I), nil
	}
	return Float(a.F + b.F), nil
}

func Sub(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		return Int(a.I - b.I), nil
	}
	return Float(a.F - b.F), nil
}

func Mult(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		return Int(a.I * b.I), nil
	}
	return Float(a.F * b.F), nil
}

func Div(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		if b.I == 0 {
			return Value{}, fmt.Errorf("Division by zero.")
		}
		return Int(a.I / b.I), nil
	}
	if b.F == 0 {
		return Value{}, fmt.Errorf("Division by zero.")
	}
	return Float(a.F / b.F), nil
}

// Modulo uses Euclidean semantics: the result is always in [0, |y|).
func Modulo(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		if b.I == 0 {
			return Value{}, fmt.Errorf("Modulo by zero.")
		}
		r := a.I % b.I
		if r < 0 {
			if b.I < 0 {
				r -= b.I
			} else {
				r += b.I
			}
		}
		return Int(r), nil
	}
	if b.F == 0 {
		return Value{}, fmt.Errorf("Modulo by zero.")
	}
	r := math.Mod(a.F, b.F)
	if r < 0 {
		r += math.Abs(b.F)
	}
	return Float(r), nil
}

// Power keeps integer results for non-negative integer exponents and
// promotes to float otherwise.
func Power(x, y Value) (Value, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		return Value{}, err
	}
	if a.Kind == KindInt {
		if b.I >= 0 {
			return Int(intPow(a.I, b.I)), nil
		}
		return Float(math.Pow(float64(a.I), float64(b.I))), nil
	}
	return Float(math.Pow(a.F, b.F)), nil
}

func intPow(base, exp int64) int64 {
	var result int64 = 1
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

func Negate(x Value) (Value, error) {
	x = Deref(x)
	switch x.Kind {
	case KindNil:
		return Value{}, fmt.Errorf("Cannot negate nil")
	case KindBool:
		return Int(-asInt(x)), nil
	case KindInt:
		return Int(-x.I), nil
	case KindFloat:
		return Float(-x.F), nil
	default:
		return Value{}, fmt.Errorf("Cannot negate a %s", TypeName(x))
	}
}

func Not(x Value) (Value, error) {
	return Bool(!Truthy(x)), nil
}

// Compare returns -1, 0 or 1 for numerically promoted operands, or an error
// when either side is not comparable.
func Compare(x, y Value) (int, error) {
	a, b, err := Promote(x, y)
	if err != nil {
		xs, ys := Deref(x), Deref(y)
		if xs.Kind == KindString && ys.Kind == KindString {
			switch {
			case xs.Str < ys.Str:
				return -1, nil
			case xs.Str > ys.Str:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, err
	}
	if a.Kind == KindInt {
		switch {
		case a.I < b.I:
			return -1, nil
		case a.I > b.I:
			return 1, nil
		default:
			return 0, nil
		}
	}
	switch {
	case a.F < b.F:
		return -1, nil
	case a.F > b.F:
		return 1, nil
	default:
		return 0, nil
	}
}
