package runtime

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xirelogy/go-sable/internal/value"
)

// Spec describes a built-in function. Built-ins are ordinary function
// values: scripts call them exactly like closures, and they can be passed
// around, stored in lists and shadowed by declarations.
type Spec struct {
	Name  string
	Arity int
	Call  func(args []value.Value) (value.Value, error)
}

// Builtins returns the standard built-in set. print writes to out.
func Builtins(out io.Writer) []Spec {
	return []Spec{
		{Name: "print", Arity: 1, Call: func(args []value.Value) (value.Value, error) {
			fmt.Fprintln(out, value.Stringify(args[0]))
			return value.Nil(), nil
		}},
		{Name: "push", Arity: 2, Call: builtinPush},
		{Name: "pop", Arity: 1, Call: builtinPop},
		{Name: "len", Arity: 1, Call: builtinLen},
		{Name: "zeros", Arity: 1, Call: builtinZeros},
		{Name: "str", Arity: 1, Call: func(args []value.Value) (value.Value, error) {
			return value.String(value.Stringify(args[0])), nil
		}},
		{Name: "int", Arity: 1, Call: builtinInt},
		{Name: "float", Arity: 1, Call: builtinFloat},
		{Name: "typeof", Arity: 1, Call: func(args []value.Value) (value.Value, error) {
			return value.String(value.TypeName(args[0])), nil
		}},
	}
}

// Functions converts specs into callable function values.
func Functions(specs []Spec) map[string]value.Value {
	out := make(map[string]value.Value, len(specs))
	for _, spec := range specs {
		call := spec.Call
		out[spec.Name] = value.FunctionVal(&value.Native{
			Name:  spec.Name,
			Arity: spec.Arity,
			Call:  call,
		})
	}
	return out
}

func builtinPush(args []value.Value) (value.Value, error) {
	xs := value.Deref(args[0])
	if xs.Kind != value.KindList {
		return value.Value{}, fmt.Errorf("Cannot push to a %s", value.TypeName(xs))
	}
	xs.List.Items = append(xs.List.Items, value.Deref(args[1]))
	return xs, nil
}

func builtinPop(args []value.Value) (value.Value, error) {
	xs := value.Deref(args[0])
	if xs.Kind != value.KindList {
		return value.Value{}, fmt.Errorf("Cannot pop from a %s", value.TypeName(xs))
	}
	n := len(xs.List.Items)
	if n == 0 {
		return value.Value{}, fmt.Errorf("Cannot pop from an empty list")
	}
	last := xs.List.Items[n-1]
	xs.List.Items = xs.List.Items[:n-1]
	return last, nil
}

func builtinLen(args []value.Value) (value.Value, error) {
	v := value.Deref(args[0])
	switch v.Kind {
	case value.KindList:
		return value.Int(int64(len(v.List.Items))), nil
	case value.KindString:
		return value.Int(int64(len(v.Str))), nil
	default:
		return value.Value{}, fmt.Errorf("Cannot take the length of a %s", value.TypeName(v))
	}
}

func builtinZeros(args []value.Value) (value.Value, error) {
	n := value.Deref(args[0])
	if n.Kind != value.KindInt {
		return value.Value{}, fmt.Errorf("zeros expects an int, got a %s", value.TypeName(n))
	}
	if n.I < 0 {
		return value.Value{}, fmt.Errorf("zeros expects a non-negative length")
	}
	items := make([]value.Value, n.I)
	for i := range items {
		items[i] = value.Int(0)
	}
	return value.NewList(items), nil
}

func builtinInt(args []value.Value) (value.Value, error) {
	v := value.Deref(args[0])
	switch v.Kind {
	case value.KindInt:
		return v, nil
	case value.KindFloat:
		return value.Int(int64(v.F)), nil
	case value.KindBool:
		if v.B {
			return value.Int(1), nil
		}
		return value.Int(0), nil
	case value.KindString:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("Cannot convert %q to an int", v.Str)
		}
		return value.Int(i), nil
	default:
		return value.Value{}, fmt.Errorf("Cannot convert a %s to an int", value.TypeName(v))
	}
}

func builtinFloat(args []value.Value) (value.Value, error) {
	v := value.Deref(args[0])
	switch v.Kind {
	case value.KindFloat:
		return v, nil
	case value.KindInt:
		return value.Float(float64(v.I)), nil
	case value.KindBool:
		if v.B {
			return value.Float(1), nil
		}
		return value.Float(0), nil
	case value.KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return value.Value{}, fmt.Errorf("Cannot convert %q to a float", v.Str)
		}
		return value.Float(f), nil
	default:
		return value.Value{}, fmt.Errorf("Cannot convert a %s to a float", value.TypeName(v))
	}
}
