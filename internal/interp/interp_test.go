package interp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/lexer"
	"github.com/xirelogy/go-sable/internal/parser"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/value"
)

func parse(t *testing.T, src string) ast.Stmts {
	t.Helper()
	p := parser.New(lexer.New(src))
	tree := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	return tree
}

func evalScript(t *testing.T, src string) (value.Value, string, error) {
	t.Helper()
	var out bytes.Buffer
	in := New(runtime.Functions(runtime.Builtins(&out)))
	v, err := in.Run(parse(t, src))
	return v, out.String(), err
}

func mustEval(t *testing.T, src string) (value.Value, string) {
	t.Helper()
	v, out, err := evalScript(t, src)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return v, out
}

func TestEvalFib(t *testing.T) {
	src := `
fn fib(n) {
  if (n < 3) 1 else fib(n - 1) + fib(n - 2)
}

let xs = [];
let i = 1;
while (i <= 20) {
  push(xs, fib(i));
  i = i + 1;
}
print(xs);
`
	_, out := mustEval(t, src)
	want := "[1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377, 610, 987, 1597, 2584, 4181, 6765]\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalArithmetic(t *testing.T) {
	_, out := mustEval(t, `
print(1 + 2);
print(7 / 2.0);
print(7 mod 5);
print(2 ** 10);
print(-2 ** 2);
`)
	if out != "3\n3.5\n2\n1024\n-4\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalClosureCounter(t *testing.T) {
	_, out := mustEval(t, `
fn make() {
  let c = 0;
  fn inc() {
    c = c + 1;
    c
  }
  inc
}

let a = make();
let b = make();
print(a());
print(a());
print(b());
`)
	// counters are independent
	if out != "1\n2\n1\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalOutputValue(t *testing.T) {
	v, _ := mustEval(t, `let a = 40; a + 2`)
	if v.Kind != value.KindInt || v.I != 42 {
		t.Fatalf("unexpected value: %s", value.Stringify(v))
	}

	v, _ = mustEval(t, `let a = 40; a + 2;`)
	if v.Kind != value.KindNil {
		t.Fatalf("expected nil for semicolon-terminated script, got %s", value.Stringify(v))
	}
}

func TestEvalShadowing(t *testing.T) {
	_, out := mustEval(t, `
let x = 1;
{
  let x = 2;
  print(x);
}
print(x);
let y = {
  let x = x + 10;
  x
};
print(y);
`)
	if out != "2\n1\n11\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalForLoops(t *testing.T) {
	_, out := mustEval(t, `
let total = 0;
for x in [1:6] {
  total = total + x;
}
print(total);
for ch in "ab" {
  print(ch);
}
`)
	if out != "15\na\nb\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalLoopClosuresSeeTheirIteration(t *testing.T) {
	_, out := mustEval(t, `
let fns = [];
for i in [1:4] {
  push(fns, fn() { i });
}
print(fns[0]());
print(fns[2]());
`)
	if out != "1\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalBreakContinue(t *testing.T) {
	_, out := mustEval(t, `
let total = 0;
for i in [1:100] {
  if (i mod 2 == 0) continue;
  if (i > 6) break;
  total = total + i;
}
print(total);
`)
	if out != "9\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalBreakLeavesInnermostLoop(t *testing.T) {
	_, out := mustEval(t, `
let rounds = 0;
let i = 0;
while (i < 3) {
  i = i + 1;
  let j = 0;
  while (true) {
    j = j + 1;
    if (j == 2) break;
  }
  rounds = rounds + j;
}
print(rounds);
print(i);
`)
	if out != "6\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalEarlyReturn(t *testing.T) {
	_, out := mustEval(t, `
fn find(xs, w) {
  for i in [0:len(xs)] {
    if (xs[i] == w) return i;
  }
  -1
}
print(find([5, 7, 9], 7));
print(find([5, 7, 9], 8));
`)
	if out != "1\n-1\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalSlices(t *testing.T) {
	_, out := mustEval(t, `
let xs = [1, 2, 3, 4, 5];
print(xs[1:4]);
print(xs[::-1]);
print(xs[-2]);
xs[0] = 9;
print(xs);
`)
	if out != "[2, 3, 4]\n[5, 4, 3, 2, 1]\n4\n[9, 2, 3, 4, 5]\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalLogical(t *testing.T) {
	_, out := mustEval(t, `
fn boom() {
  print("boom");
  true
}
print(false and boom());
print(true or boom());
print(0 or 5);
print(2 and 3);
`)
	if out != "false\ntrue\n5\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalLateBinding(t *testing.T) {
	_, out := mustEval(t, `
fn f() { g() + 1 }
fn g() { 41 }
print(f());
`)
	if out != "42\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestEvalGlobalsPersistAcrossRuns(t *testing.T) {
	var out bytes.Buffer
	in := New(runtime.Functions(runtime.Builtins(&out)))

	if _, err := in.Run(parse(t, `let n = 1;`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := in.Run(parse(t, `n = n + 41; print(n);`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "42\n" {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	if v, ok := in.Global("n"); !ok || v.I != 42 {
		t.Fatalf("unexpected global: %v, %v", v, ok)
	}
}

func TestEvalUndeclaredVar(t *testing.T) {
	_, _, err := evalScript(t, `missing + 1;`)
	if err == nil || !strings.Contains(err.Error(), "Var 'missing' is not declared") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	src := `let a = 1;
let b = 0;
a / b;`
	_, _, err := evalScript(t, src)
	re, ok := err.(*runtime.Error)
	if !ok {
		t.Fatalf("expected located error, got %v", err)
	}
	if re.Message != "Division by zero." {
		t.Fatalf("unexpected message: %q", re.Message)
	}
	if re.Span.Start.Line != 3 {
		t.Fatalf("expected error on line 3, got %d", re.Span.Start.Line)
	}
}

func TestEvalControlSignalsOutsideContext(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{`break;`, "Cannot break outside of a loop"},
		{`continue;`, "Cannot continue outside of a loop"},
		{`return 1;`, "Cannot return outside of a function"},
		{`fn f() { break; } f();`, "Cannot break outside of a loop"},
	}
	for _, tt := range tests {
		_, _, err := evalScript(t, tt.src)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("%s: unexpected error: %v", tt.src, err)
		}
	}
}

func TestEvalArityAndCallErrors(t *testing.T) {
	_, _, err := evalScript(t, `fn f(a) { a } f(1, 2);`)
	if err == nil || !strings.Contains(err.Error(), "expected 1 arguments but got 2") {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _, err = evalScript(t, `let x = 3; x();`)
	if err == nil || !strings.Contains(err.Error(), "Cannot call a int") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvalStackOverflow(t *testing.T) {
	_, _, err := evalScript(t, `
fn loop(n) { loop(n + 1) }
loop(0);
`)
	if err == nil || !strings.Contains(err.Error(), "Stack overflow.") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvalListMutationDuringIteration(t *testing.T) {
	_, out := mustEval(t, `
let xs = [1, 2, 3];
let seen = 0;
for x in xs {
  seen = seen + 1;
  if (x == 1) pop(xs);
}
print(seen);
`)
	// the trailing element disappears before the loop reaches it
	if out != "2\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
