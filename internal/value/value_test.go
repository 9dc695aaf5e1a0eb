package value

import (
	"strings"
	"testing"
)

func TestPromoteLattice(t *testing.T) {
	tests := []struct {
		name string
		x, y Value
		want Kind
	}{
		{"int int", Int(1), Int(2), KindInt},
		{"bool int", Bool(true), Int(2), KindInt},
		{"bool bool", Bool(true), Bool(false), KindInt},
		{"int float", Int(1), Float(2.5), KindFloat},
		{"bool float", Bool(false), Float(2.5), KindFloat},
		{"float float", Float(1), Float(2), KindFloat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b, err := Promote(tt.x, tt.y)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Kind != tt.want || b.Kind != tt.want {
				t.Fatalf("promoted to %s/%s, want %v", TypeName(a), TypeName(b), tt.want)
			}
		})
	}
}

func TestPromoteRejectsNonNumeric(t *testing.T) {
	if _, _, err := Promote(Int(1), Nil()); err == nil {
		t.Fatalf("expected error for nil operand")
	}
	_, _, err := Promote(String("a"), Int(1))
	if err == nil || !strings.Contains(err.Error(), "promotion not supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPointerTransparency(t *testing.T) {
	cell := NewCell()
	cell.Cell.V = Int(20)
	inner := NewCell()
	inner.Cell.V = cell

	sum, err := Add(inner, Int(22))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Kind != KindInt || sum.I != 42 {
		t.Fatalf("got %s", Stringify(sum))
	}
	if !Equal(cell, Int(20)) {
		t.Fatalf("cell should compare through to its contents")
	}
	if !Truthy(cell) {
		t.Fatalf("cell truthiness should follow its contents")
	}
}

func TestEuclideanModulo(t *testing.T) {
	tests := []struct {
		x, y, want int64
	}{
		{7, 5, 2},
		{-7, 5, 3},
		{7, -5, 2},
		{-7, -5, 3},
		{0, 5, 0},
	}
	for _, tt := range tests {
		got, err := Modulo(Int(tt.x), Int(tt.y))
		if err != nil {
			t.Fatalf("%d mod %d: %v", tt.x, tt.y, err)
		}
		if got.I != tt.want {
			t.Fatalf("%d mod %d = %d, want %d", tt.x, tt.y, got.I, tt.want)
		}
	}

	got, err := Modulo(Float(-7.5), Int(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != KindFloat || got.F != 2.5 {
		t.Fatalf("got %s", Stringify(got))
	}
}

func TestDivAndModByZero(t *testing.T) {
	if _, err := Div(Int(1), Int(0)); err == nil || err.Error() != "Division by zero." {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Div(Float(1), Float(0)); err == nil || err.Error() != "Division by zero." {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Modulo(Int(1), Int(0)); err == nil || err.Error() != "Modulo by zero." {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPowerStaysIntegral(t *testing.T) {
	got, err := Power(Int(2), Int(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != KindInt || got.I != 1024 {
		t.Fatalf("got %s", Stringify(got))
	}

	got, err = Power(Int(2), Int(-1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != KindFloat || got.F != 0.5 {
		t.Fatalf("got %s", Stringify(got))
	}

	got, err = Power(Float(9), Float(0.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != KindFloat || got.F != 3 {
		t.Fatalf("got %s", Stringify(got))
	}
}

func TestEquality(t *testing.T) {
	if !Equal(Int(1), Float(1)) {
		t.Fatalf("1 == 1.0 should hold")
	}
	if !Equal(Bool(true), Int(1)) {
		t.Fatalf("true == 1 should hold")
	}
	if Equal(Int(0), Nil()) {
		t.Fatalf("0 == nil should not hold")
	}
	if !Equal(Nil(), Nil()) {
		t.Fatalf("nil == nil should hold")
	}
	if !Equal(NewList([]Value{Int(1), NewList([]Value{Int(2)})}),
		NewList([]Value{Int(1), NewList([]Value{Int(2)})})) {
		t.Fatalf("lists should compare element-wise")
	}
	if Equal(NewList([]Value{Int(1)}), NewList([]Value{Int(1), Int(2)})) {
		t.Fatalf("lists of different lengths should differ")
	}
	if !Equal(String("ab"), String("ab")) {
		t.Fatalf("strings should compare by content")
	}
}

func TestStringify(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Nil(), "nil"},
		{Bool(true), "true"},
		{Int(-3), "-3"},
		{Float(3.5), "3.5"},
		{Float(2), "2"},
		{String("hi"), "hi"},
		{NewList([]Value{Int(1), String("a"), Nil()}), `[1, a, nil]`},
		{NewList(nil), "[]"},
	}
	for _, tt := range tests {
		if got := Stringify(tt.v); got != tt.want {
			t.Fatalf("Stringify(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestIndexing(t *testing.T) {
	xs := NewList([]Value{Int(10), Int(20), Int(30)})

	got, err := ReadAtIndex(xs, Int(-1))
	if err != nil || got.I != 30 {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := ReadAtIndex(xs, Int(3)); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := ReadAtIndex(xs, Int(-4)); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := ReadAtIndex(xs, Float(1)); err == nil {
		t.Fatalf("float indexes should be rejected")
	}

	got, err = ReadAtIndex(String("abc"), Int(1))
	if err != nil || got.Str != "b" {
		t.Fatalf("got %v, %v", got, err)
	}

	if err := AssignAtIndex(xs, Int(-3), Int(99)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if xs.List.Items[0].I != 99 {
		t.Fatalf("assignment missed: %s", Stringify(xs))
	}
	if err := AssignAtIndex(String("abc"), Int(0), Int(1)); err == nil {
		t.Fatalf("strings are immutable")
	}
}

func TestSlicing(t *testing.T) {
	xs := NewList([]Value{Int(1), Int(2), Int(3), Int(4), Int(5)})

	tests := []struct {
		name              string
		start, stop, step Value
		want              string
	}{
		{"middle", Int(1), Int(4), Nil(), "[2, 3, 4]"},
		{"open start", Nil(), Int(2), Nil(), "[1, 2]"},
		{"open stop", Int(3), Nil(), Nil(), "[4, 5]"},
		{"step", Nil(), Nil(), Int(2), "[1, 3, 5]"},
		{"reverse", Nil(), Nil(), Int(-1), "[5, 4, 3, 2, 1]"},
		{"negative bounds", Int(-3), Int(-1), Nil(), "[3, 4]"},
		{"clamped", Int(-99), Int(99), Nil(), "[1, 2, 3, 4, 5]"},
		{"empty", Int(3), Int(1), Nil(), "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAtSlice(xs, tt.start, tt.stop, tt.step)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if Stringify(got) != tt.want {
				t.Fatalf("got %s, want %s", Stringify(got), tt.want)
			}
		})
	}

	if _, err := ReadAtSlice(xs, Nil(), Nil(), Int(0)); err == nil {
		t.Fatalf("zero step should be rejected")
	}

	got, err := ReadAtSlice(String("hello"), Nil(), Nil(), Int(-1))
	if err != nil || got.Str != "olleh" {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestSliceDoesNotAliasSource(t *testing.T) {
	xs := NewList([]Value{Int(1), Int(2), Int(3)})
	cp, err := ReadAtSlice(xs, Nil(), Nil(), Nil())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cp.List.Items[0] = Int(99)
	if xs.List.Items[0].I != 1 {
		t.Fatalf("slice shares backing store with source")
	}
}

func TestListFromSlice(t *testing.T) {
	got, err := ListFromSlice(Int(1), Int(5), Nil())
	if err != nil || Stringify(got) != "[1, 2, 3, 4]" {
		t.Fatalf("got %v, %v", got, err)
	}
	got, err = ListFromSlice(Nil(), Int(3), Nil())
	if err != nil || Stringify(got) != "[0, 1, 2]" {
		t.Fatalf("got %v, %v", got, err)
	}
	got, err = ListFromSlice(Int(5), Int(0), Int(-2))
	if err != nil || Stringify(got) != "[5, 3, 1]" {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := ListFromSlice(Int(0), Nil(), Nil()); err == nil {
		t.Fatalf("unbounded ranges should be rejected")
	}
}

func TestNegate(t *testing.T) {
	got, err := Negate(Int(3))
	if err != nil || got.I != -3 {
		t.Fatalf("got %v, %v", got, err)
	}
	got, err = Negate(Bool(true))
	if err != nil || got.Kind != KindInt || got.I != -1 {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := Negate(String("x")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCompare(t *testing.T) {
	if c, err := Compare(Int(1), Float(1.5)); err != nil || c != -1 {
		t.Fatalf("got %d, %v", c, err)
	}
	if c, err := Compare(String("b"), String("a")); err != nil || c != 1 {
		t.Fatalf("got %d, %v", c, err)
	}
	if _, err := Compare(String("a"), Int(1)); err == nil {
		t.Fatalf("expected error for mixed comparison")
	}
}
