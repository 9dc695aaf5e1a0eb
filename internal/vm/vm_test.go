package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xirelogy/go-sable/internal/analysis"
	"github.com/xirelogy/go-sable/internal/compiler"
	"github.com/xirelogy/go-sable/internal/lexer"
	"github.com/xirelogy/go-sable/internal/parser"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/value"
)

// runScript compiles and executes src, returning the script value and
// everything print wrote.
func runScript(t *testing.T, src string) (value.Value, string, error) {
	t.Helper()
	p := parser.New(lexer.New(src))
	tree := p.ParseProgram()
	if len(p.Errors()) != 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}

	var out bytes.Buffer
	specs := runtime.Builtins(&out)
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}

	prog, errs := compiler.Compile(tree, analysis.Analyze(tree), names)
	if len(errs) != 0 {
		t.Fatalf("compile errors: %v", errs)
	}

	m := New(prog.GlobalNames, runtime.Functions(specs))
	v, err := m.Run(prog.Script)
	return v, out.String(), err
}

func mustRun(t *testing.T, src string) (value.Value, string) {
	t.Helper()
	v, out, err := runScript(t, src)
	if err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return v, out
}

func TestRunFib(t *testing.T) {
	src := `
fn fib(n) {
  if (n < 3) 1 else fib(n - 1) + fib(n - 2)
}

print(fib(1));

let xs = [];
let i = 1;
while (i <= 20) {
  push(xs, fib(i));
  i = i + 1;
}
print(xs);
print(fib(20));
`
	_, out := mustRun(t, src)
	want := "1\n" +
		"[1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377, 610, 987, 1597, 2584, 4181, 6765]\n" +
		"6765\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunCachedFib(t *testing.T) {
	src := `
let cache = zeros(24);

fn fib(n) {
  if (n < 3) 1 else fib(n - 1) + fib(n - 2)
}

fn memfib(n) {
  if (cache[n - 1] != 0) {
    cache[n - 1]
  } else {
    let v = if (n < 3) 1 else memfib(n - 1) + memfib(n - 2);
    cache[n - 1] = v;
    v
  }
}

memfib(18);
cache[21] = fib(22);
cache[22] = memfib(1);
cache[23] = memfib(5);
print(cache);
`
	_, out := mustRun(t, src)
	want := "[1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377, 610, 987, 1597, 2584, 0, 0, 0, 17711, 1, 5]\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunArithmetic(t *testing.T) {
	src := `
print(1 + 2);
print(7 / 2.0);
print(7 mod 5);
print(2 ** 10);
`
	_, out := mustRun(t, src)
	if out != "3\n3.5\n2\n1024\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunClosureCounter(t *testing.T) {
	src := `
fn make() {
  let c = 0;
  fn inc() {
    c = c + 1;
    c
  }
  inc
}

let inc = make();
print(inc());
print(inc());
print(inc());
`
	_, out := mustRun(t, src)
	if out != "1\n2\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunScriptOutputValue(t *testing.T) {
	v, _ := mustRun(t, `
let a = 40;
a + 2`)
	if v.Kind != value.KindInt || v.I != 42 {
		t.Fatalf("unexpected script value: %s", value.Stringify(v))
	}
}

func TestRunForLoop(t *testing.T) {
	src := `
let total = 0;
for x in [1:6] {
  total = total + x;
}
print(total);
for ch in "abc" {
  print(ch);
}
`
	_, out := mustRun(t, src)
	if out != "15\na\nb\nc\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunBreakContinue(t *testing.T) {
	src := `
let total = 0;
let i = 0;
while (i < 10) {
  i = i + 1;
  if (i mod 2 == 0) continue;
  if (i > 6) break;
  total = total + i;
}
print(total);
print(i);
`
	_, out := mustRun(t, src)
	// odd values 1+3+5, stopping at 7
	if out != "9\n7\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunBreakLeavesInnermostLoop(t *testing.T) {
	src := `
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
`
	_, out := mustRun(t, src)
	// break exits the inner while only, so the outer loop runs all 3 rounds
	if out != "6\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunLoopClosuresSeeTheirIteration(t *testing.T) {
	src := `
let fns = [];
for i in [1:4] {
  push(fns, fn() { i });
}
print(fns[0]());
print(fns[2]());
`
	_, out := mustRun(t, src)
	if out != "1\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunSlices(t *testing.T) {
	src := `
let xs = [1, 2, 3, 4, 5];
print(xs[1:4]);
print(xs[::-1]);
print(xs[-2]);
print("hello"[1:3]);
xs[0] = 9;
print(xs);
`
	_, out := mustRun(t, src)
	want := "[2, 3, 4]\n[5, 4, 3, 2, 1]\n4\nel\n[9, 2, 3, 4, 5]\n"
	if out != want {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunListsShareIdentity(t *testing.T) {
	src := `
let a = [1, 2];
let b = a;
push(b, 3);
print(a);
print(a == [1, 2, 3]);
`
	_, out := mustRun(t, src)
	if out != "[1, 2, 3]\ntrue\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunLogicalShortCircuit(t *testing.T) {
	src := `
fn boom() {
  print("boom");
  true
}
print(false and boom());
print(true or boom());
print(0 or 5);
print(2 and 3);
`
	_, out := mustRun(t, src)
	if out != "false\ntrue\n5\n3\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunLateBinding(t *testing.T) {
	src := `
fn f() { g() + 1 }
fn g() { 41 }
print(f());
`
	_, out := mustRun(t, src)
	if out != "42\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunBuiltinsAreValues(t *testing.T) {
	src := `
let show = print;
show(len("four"));
print(typeof(show));
`
	_, out := mustRun(t, src)
	if out != "4\nfunction\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunDivisionByZero(t *testing.T) {
	src := `let a = 1;
let b = 0;
a / b;`
	_, _, err := runScript(t, src)
	if err == nil {
		t.Fatalf("expected runtime error")
	}
	re, ok := err.(*runtime.Error)
	if !ok {
		t.Fatalf("expected located error, got %T", err)
	}
	if re.Message != "Division by zero." {
		t.Fatalf("unexpected message: %q", re.Message)
	}
	if re.Span.Start.Line != 3 {
		t.Fatalf("expected error on line 3, got %d", re.Span.Start.Line)
	}
}

func TestRunArityMismatch(t *testing.T) {
	_, _, err := runScript(t, `
fn f(a) { a }
f(1, 2);
`)
	if err == nil || !strings.Contains(err.Error(), "expected 1 arguments but got 2") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunCallNonFunction(t *testing.T) {
	_, _, err := runScript(t, `
let x = 3;
x();
`)
	if err == nil || !strings.Contains(err.Error(), "Cannot call a int") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunIndexOutOfRange(t *testing.T) {
	_, _, err := runScript(t, `
let xs = [1, 2];
xs[5];
`)
	if err == nil || !strings.Contains(err.Error(), "Index 5 out of range for length 2") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunStackOverflow(t *testing.T) {
	_, _, err := runScript(t, `
fn loop(n) { loop(n + 1) }
loop(0);
`)
	if err == nil || !strings.Contains(err.Error(), "Stack overflow.") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunBlockValues(t *testing.T) {
	src := `
let x = {
  let a = 2;
  let b = 3;
  a * b
};
print(x);
let y = { 1; 2; };
print(y);
`
	_, out := mustRun(t, src)
	if out != "6\nnil\n" {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunIfWithoutElse(t *testing.T) {
	v, _ := mustRun(t, `if (false) 1`)
	if v.Kind != value.KindNil {
		t.Fatalf("expected nil, got %s", value.Stringify(v))
	}
}
