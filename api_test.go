package sable

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

type testCustomMarshaler struct{ V string }
type testCustomUnmarshaler struct{ V string }

var _ Marshaler = testCustomMarshaler{}
var _ Unmarshaler = (*testCustomUnmarshaler)(nil)

func (c testCustomMarshaler) MarshalSable() (Value, error) {
	return NewValue([]any{c.V})
}

func (c *testCustomUnmarshaler) UnmarshalSable(v Value) error {
	items, ok := v.List()
	if !ok || len(items) != 1 {
		return fmt.Errorf("expected one-element list")
	}
	s, ok := items[0].String()
	if !ok {
		return fmt.Errorf("expected string element")
	}
	c.V = s
	return nil
}

func newTestEngine(b Backend) (*Engine, *bytes.Buffer) {
	e := New()
	e.SetBackend(b)
	var out bytes.Buffer
	e.SetStdout(&out)
	return e, &out
}

func backends(t *testing.T, f func(t *testing.T, b Backend)) {
	t.Helper()
	t.Run("vm", func(t *testing.T) { f(t, BackendVM) })
	t.Run("tree", func(t *testing.T) { f(t, BackendTree) })
}

func TestEngineRunSource(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		e, out := newTestEngine(b)
		v, err := e.RunSource(`
fn fib(n) {
  if (n < 3) 1 else fib(n - 1) + fib(n - 2)
}
print(fib(10));
fib(10)
`)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "55\n" {
			t.Fatalf("unexpected output: %q", out.String())
		}
		if n, ok := v.Int(); !ok || n != 55 {
			t.Fatalf("unexpected value: %s", v.Display())
		}
	})
}

func TestEngineSessionPersists(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		e, out := newTestEngine(b)
		if _, err := e.RunSource(`let n = 1;`); err != nil {
			t.Fatalf("first run: %v", err)
		}
		if _, err := e.RunSource(`n = n + 41; print(n);`); err != nil {
			t.Fatalf("second run: %v", err)
		}
		if out.String() != "42\n" {
			t.Fatalf("unexpected output: %q", out.String())
		}
		v, ok := e.Global("n")
		if !ok {
			t.Fatalf("expected global n")
		}
		if n, _ := v.Int(); n != 42 {
			t.Fatalf("unexpected global: %s", v.Display())
		}
	})
}

func TestEngineDefineGlobal(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		e, out := newTestEngine(b)
		if err := e.DefineGlobal("answer", 42); err != nil {
			t.Fatalf("define: %v", err)
		}
		if err := e.DefineGlobal("greeting", "hey"); err != nil {
			t.Fatalf("define: %v", err)
		}
		if _, err := e.RunSource(`print(answer); print(greeting);`); err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "42\nhey\n" {
			t.Fatalf("unexpected output: %q", out.String())
		}
	})
}

func TestEngineHostFunction(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		e, out := newTestEngine(b)
		err := e.DefineGlobal("add", func(a, b int64) int64 { return a + b })
		if err != nil {
			t.Fatalf("define: %v", err)
		}
		err = e.DefineGlobal("shout", func(s string) (string, error) {
			if s == "" {
				return "", fmt.Errorf("empty input")
			}
			return strings.ToUpper(s), nil
		})
		if err != nil {
			t.Fatalf("define: %v", err)
		}
		if _, err := e.RunSource(`print(add(2, 3)); print(shout("hi"));`); err != nil {
			t.Fatalf("run: %v", err)
		}
		if out.String() != "5\nHI\n" {
			t.Fatalf("unexpected output: %q", out.String())
		}

		// host errors surface as located script errors
		_, err = e.RunSource(`shout("");`)
		if err == nil || !strings.Contains(err.Error(), "empty input") {
			t.Fatalf("expected host error, got %v", err)
		}
		if _, ok := err.(*ScriptError); !ok {
			t.Fatalf("expected ScriptError, got %T", err)
		}
	})
}

func TestEngineParseAndCompileErrors(t *testing.T) {
	e, _ := newTestEngine(BackendVM)

	_, err := e.RunSource(`let x = ;`)
	se, ok := err.(*SourceErrors)
	if !ok {
		t.Fatalf("expected SourceErrors, got %v", err)
	}
	if se.Stage != "parse" || len(se.Errors) == 0 {
		t.Fatalf("unexpected parse errors: %v", se)
	}

	_, err = e.RunSource(`missing + 1;`)
	se, ok = err.(*SourceErrors)
	if !ok {
		t.Fatalf("expected SourceErrors, got %v", err)
	}
	if se.Stage != "compile" {
		t.Fatalf("unexpected stage %q", se.Stage)
	}
	if !strings.Contains(se.Error(), "Var 'missing' is not declared") {
		t.Fatalf("unexpected message: %v", se)
	}
}

func TestEngineRuntimeErrorLocation(t *testing.T) {
	backends(t, func(t *testing.T, b Backend) {
		e, _ := newTestEngine(b)
		_, err := e.RunSource("let a = 1;\nlet b = 0;\na / b;")
		se, ok := err.(*ScriptError)
		if !ok {
			t.Fatalf("expected ScriptError, got %v", err)
		}
		if se.Message != "Division by zero." || se.Line != 3 {
			t.Fatalf("unexpected error: %v", se)
		}
	})
}

func TestEngineBackendsAgree(t *testing.T) {
	src := `
let acc = [];
fn collatz(n) {
  let steps = 0;
  while (n != 1) {
    if (n mod 2 == 0) {
      n = n / 2;
    } else {
      n = 3 * n + 1;
    }
    steps = steps + 1;
  }
  steps
}
for n in [1:11] {
  push(acc, collatz(n));
}
print(acc);
`
	vmEngine, vmOut := newTestEngine(BackendVM)
	if _, err := vmEngine.RunSource(src); err != nil {
		t.Fatalf("vm run: %v", err)
	}
	treeEngine, treeOut := newTestEngine(BackendTree)
	if _, err := treeEngine.RunSource(src); err != nil {
		t.Fatalf("tree run: %v", err)
	}
	if vmOut.String() != treeOut.String() {
		t.Fatalf("backends disagree:\nvm:   %q\ntree: %q", vmOut.String(), treeOut.String())
	}
	if vmOut.String() != "[0, 1, 7, 2, 5, 8, 16, 3, 19, 6]\n" {
		t.Fatalf("unexpected output: %q", vmOut.String())
	}
}

func TestDisassemble(t *testing.T) {
	dump, err := Disassemble(`fn add(a, b) { a + b } print(add(1, 2));`)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if !strings.Contains(dump, "func <script>") {
		t.Fatalf("missing script section:\n%s", dump)
	}
	if !strings.Contains(dump, "func add (params=2") {
		t.Fatalf("missing function section:\n%s", dump)
	}
	if !strings.Contains(dump, "OP_ADD") {
		t.Fatalf("missing opcode:\n%s", dump)
	}
}

func TestValueMarshaling(t *testing.T) {
	v := MustValue([]int{1, 2, 3})
	items, ok := v.List()
	if !ok || len(items) != 3 {
		t.Fatalf("unexpected list: %s", v.Display())
	}
	if n, _ := items[2].Int(); n != 3 {
		t.Fatalf("unexpected element: %s", items[2].Display())
	}

	if v := MustValue(2.5); v.Display() != "2.5" {
		t.Fatalf("unexpected float: %s", v.Display())
	}
	if !MustValue(nil).IsNil() {
		t.Fatalf("expected nil value")
	}

	type tiny uint8
	if n, ok := MustValue(tiny(7)).Int(); !ok || n != 7 {
		t.Fatalf("named integer types should marshal as ints")
	}

	x := 9
	if n, ok := MustValue(&x).Int(); !ok || n != 9 {
		t.Fatalf("pointers should marshal through")
	}

	if _, err := NewValue(map[string]int{"a": 1}); err == nil {
		t.Fatalf("maps have no script representation")
	}

	custom := MustValue(testCustomMarshaler{V: "hello"})
	if custom.Display() != "[hello]" {
		t.Fatalf("unexpected custom marshal: %s", custom.Display())
	}
}

func TestUnmarshal(t *testing.T) {
	var n int
	if err := Unmarshal(MustValue(41), &n); err != nil || n != 41 {
		t.Fatalf("unmarshal int: %v, %d", err, n)
	}

	var f float64
	if err := Unmarshal(MustValue(7), &f); err != nil || f != 7 {
		t.Fatalf("ints should widen into float targets: %v, %g", err, f)
	}

	var xs []int64
	if err := Unmarshal(MustValue([]any{int64(1), int64(2)}), &xs); err != nil {
		t.Fatalf("unmarshal slice: %v", err)
	}
	if !reflect.DeepEqual(xs, []int64{1, 2}) {
		t.Fatalf("unexpected slice: %v", xs)
	}

	var raw any
	if err := Unmarshal(MustValue("hi"), &raw); err != nil || raw != "hi" {
		t.Fatalf("unmarshal interface: %v, %#v", err, raw)
	}

	var cu testCustomUnmarshaler
	if err := Unmarshal(MustValue(testCustomMarshaler{V: "pong"}), &cu); err != nil {
		t.Fatalf("unmarshal custom: %v", err)
	}
	if cu.V != "pong" {
		t.Fatalf("unexpected custom value: %q", cu.V)
	}

	if err := Unmarshal(MustValue("no"), &n); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestFuncRejectsBadShapes(t *testing.T) {
	if _, err := Func("bad", 3); err == nil {
		t.Fatalf("non-functions should be rejected")
	}
	if _, err := Func("bad", func(xs ...int) {}); err == nil {
		t.Fatalf("variadic functions should be rejected")
	}
	if _, err := Func("bad", func() (int, int) { return 0, 0 }); err == nil {
		t.Fatalf("second result must be error")
	}
	if _, err := Func("ok", func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseBackend(t *testing.T) {
	if b, err := ParseBackend("vm"); err != nil || b != BackendVM {
		t.Fatalf("unexpected: %v, %v", b, err)
	}
	if b, err := ParseBackend("ast"); err != nil || b != BackendTree {
		t.Fatalf("unexpected: %v, %v", b, err)
	}
	if _, err := ParseBackend("jit"); err == nil {
		t.Fatalf("expected error")
	}
}
