package value

import "fmt"

// toIndex coerces a value to an int64 index. Bools promote as usual.
func toIndex(v Value) (int64, error) {
	v = Deref(v)
	switch v.Kind {
	case KindBool:
		return asInt(v), nil
	case KindInt:
		return v.I, nil
	default:
		return 0, fmt.Errorf("Cannot index with a %s", TypeName(v))
	}
}

// wrapIndex applies Python-style negative index wrapping and bounds checks.
func wrapIndex(i int64, length int) (int, error) {
	orig := i
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, fmt.Errorf("Index %d out of range for length %d", orig, length)
	}
	return int(i), nil
}

// ReadAtIndex reads list[i] or string[i] with negative wrap.
func ReadAtIndex(base, at Value) (Value, error) {
	base = Deref(base)
	i, err := toIndex(at)
	if err != nil {
		return Value{}, err
	}
	switch base.Kind {
	case KindList:
		idx, err := wrapIndex(i, len(base.List.Items))
		if err != nil {
			return Value{}, err
		}
		return base.List.Items[idx], nil
	case KindString:
		idx, err := wrapIndex(i, len(base.Str))
		if err != nil {
			return Value{}, err
		}
		return String(base.Str[idx : idx+1]), nil
	default:
		return Value{}, fmt.Errorf("Cannot index into a %s", TypeName(base))
	}
}

// AssignAtIndex writes list[i] = v with negative wrap. Strings are immutable.
func AssignAtIndex(base, at, v Value) error {
	base = Deref(base)
	if base.Kind != KindList {
		return fmt.Errorf("Cannot assign into a %s", TypeName(base))
	}
	i, err := toIndex(at)
	if err != nil {
		return err
	}
	idx, err := wrapIndex(i, len(base.List.Items))
	if err != nil {
		return err
	}
	base.List.Items[idx] = Deref(v)
	return nil
}

// sliceParts normalizes (start, stop, step) against a sequence length using
// Python slicing rules. Nil components take their defaults.
func sliceParts(start, stop, step Value, length int) (int, int, int, error) {
	st := int64(1)
	if Deref(step).Kind != KindNil {
		var err error
		st, err = toIndex(step)
		if err != nil {
			return 0, 0, 0, err
		}
		if st == 0 {
			return 0, 0, 0, fmt.Errorf("Slice step cannot be zero")
		}
	}
	lo, hi := int64(0), int64(length)
	if st < 0 {
		lo, hi = int64(length-1), int64(-1)
	}
	if Deref(start).Kind != KindNil {
		i, err := toIndex(start)
		if err != nil {
			return 0, 0, 0, err
		}
		lo = clampIndex(i, length, st < 0)
	}
	if Deref(stop).Kind != KindNil {
		i, err := toIndex(stop)
		if err != nil {
			return 0, 0, 0, err
		}
		hi = clampIndex(i, length, st < 0)
	}
	return int(lo), int(hi), int(st), nil
}

func clampIndex(i int64, length int, reverse bool) int64 {
	if i < 0 {
		i += int64(length)
		if i < 0 {
			if reverse {
				return -1
			}
			return 0
		}
	}
	if i > int64(length) {
		return int64(length)
	}
	if reverse && i == int64(length) {
		return int64(length) - 1
	}
	return i
}

// ReadAtSlice reads list[a:b:c] or string[a:b:c] into a fresh value.
func ReadAtSlice(base, start, stop, step Value) (Value, error) {
	base = Deref(base)
	switch base.Kind {
	case KindList:
		lo, hi, st, err := sliceParts(start, stop, step, len(base.List.Items))
		if err != nil {
			return Value{}, err
		}
		out := []Value{}
		if st > 0 {
			for i := lo; i < hi; i += st {
				out = append(out, base.List.Items[i])
			}
		} else {
			for i := lo; i > hi; i += st {
				out = append(out, base.List.Items[i])
			}
		}
		return NewList(out), nil
	case KindString:
		lo, hi, st, err := sliceParts(start, stop, step, len(base.Str))
		if err != nil {
			return Value{}, err
		}
		var out []byte
		if st > 0 {
			for i := lo; i < hi; i += st {
				out = append(out, base.Str[i])
			}
		} else {
			for i := lo; i > hi; i += st {
				out = append(out, base.Str[i])
			}
		}
		return String(string(out)), nil
	default:
		return Value{}, fmt.Errorf("Cannot slice a %s", TypeName(base))
	}
}

// ListFromSlice materializes [start:stop:step] as a list of ints.
// Start defaults to 0 and step to 1; stop is required.
func ListFromSlice(start, stop, step Value) (Value, error) {
	lo := int64(0)
	if Deref(start).Kind != KindNil {
		var err error
		lo, err = toIndex(start)
		if err != nil {
			return Value{}, err
		}
	}
	if Deref(stop).Kind == KindNil {
		return Value{}, fmt.Errorf("Cannot create a list from an unbounded slice")
	}
	hi, err := toIndex(stop)
	if err != nil {
		return Value{}, err
	}
	st := int64(1)
	if Deref(step).Kind != KindNil {
		st, err = toIndex(step)
		if err != nil {
			return Value{}, err
		}
		if st == 0 {
			return Value{}, fmt.Errorf("Slice step cannot be zero")
		}
	}
	out := []Value{}
	if st > 0 {
		for i := lo; i < hi; i += st {
			out = append(out, Int(i))
		}
	} else {
		for i := lo; i > hi; i += st {
			out = append(out, Int(i))
		}
	}
	return NewList(out), nil
}
