package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the runtime value variants.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindFunction
	KindPointer
)

// Value is the tagged runtime value shared by both back-ends.
// Lists, cells and functions are heap objects shared by reference.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	Str  string
	List *List
	Fn   Function
	Cell *Cell
}

// List is a shared mutable ordered sequence. Two values holding the same
// *List observe each other's mutations.
type List struct {
	Items []Value
}

// Cell is a one-slot mutable box. Locals captured by closures live in cells
// so that all closures sharing the variable see assignments.
type Cell struct {
	V Value
}

// Function is implemented by compiled closures, interpreted closures and
// native built-ins. Callables are invoked identically regardless of which.
type Function interface {
	FnName() string
	FnArity() int
}

// Native is a host-provided callable, exposed to scripts as an ordinary
// function value.
type Native struct {
	Name  string
	Arity int
	Call  func(args []Value) (Value, error)
}

func (n *Native) FnName() string { return n.Name }
func (n *Native) FnArity() int   { return n.Arity }

func Nil() Value            { return Value{Kind: KindNil} }
func Bool(b bool) Value     { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value     { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }

func NewList(items []Value) Value {
	return Value{Kind: KindList, List: &List{Items: items}}
}

func ListOf(l *List) Value { return Value{Kind: KindList, List: l} }

func FunctionVal(fn Function) Value {
	return Value{Kind: KindFunction, Fn: fn}
}

// NewCell allocates an empty pointer cell holding nil.
func NewCell() Value {
	return Value{Kind: KindPointer, Cell: &Cell{V: Nil()}}
}

func PointerTo(c *Cell) Value { return Value{Kind: KindPointer, Cell: c} }

// Deref unwraps pointer cells recursively. Pointers are an implementation
// detail and never reach user-visible operations.
func Deref(v Value) Value {
	for v.Kind == KindPointer {
		v = v.Cell.V
	}
	return v
}

// Truthy reports the boolean interpretation of a value.
func Truthy(v Value) bool {
	v = Deref(v)
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.B
	case KindInt:
		return v.I != 0
	case KindFloat:
		return v.F != 0
	case KindString:
		return v.Str != ""
	case KindList:
		return len(v.List.Items) > 0
	default:
		return true
	}
}

// Equal compares across all variants: same-variant componentwise, numeric
// cross-variant equality through promotion, nil equal only to nil.
func Equal(a, b Value) bool {
	a, b = Deref(a), Deref(b)
	if isNumeric(a) && isNumeric(b) {
		x, y, err := Promote(a, b)
		if err != nil {
			return false
		}
		if x.Kind == KindInt {
			return x.I == y.I
		}
		return x.F == y.F
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindString:
		return a.Str == b.Str
	case KindList:
		if a.List == b.List {
			return true
		}
		if len(a.List.Items) != len(b.List.Items) {
			return false
		}
		for i := range a.List.Items {
			if !Equal(a.List.Items[i], b.List.Items[i]) {
				return false
			}
		}
		return true
	case KindFunction:
		return a.Fn == b.Fn
	default:
		return false
	}
}

func isNumeric(v Value) bool {
	switch v.Kind {
	case KindBool, KindInt, KindFloat:
		return true
	default:
		return false
	}
}

// TypeName reports the dynamic type name for a value.
func TypeName(v Value) string {
	switch Deref(v).Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Stringify renders a value the way print shows it.
func Stringify(v Value) string {
	v = Deref(v)
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return strconv.FormatFloat(v.F, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, el := range v.List.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(Stringify(el))
		}
		sb.WriteByte(']')
		return sb.String()
	case KindFunction:
		name := v.Fn.FnName()
		if name == "" {
			return "<fn>"
		}
		return fmt.Sprintf("<fn %s>", name)
	default:
		return "<unknown>"
	}
}
