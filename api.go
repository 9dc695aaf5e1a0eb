// Package sable embeds the sable scripting language. An Engine compiles
// and runs scripts on either the bytecode virtual machine or the
// tree-walking evaluator; both share the same value model, built-ins and
// observable semantics.
package sable

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/xirelogy/go-sable/internal/analysis"
	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/bytecode"
	"github.com/xirelogy/go-sable/internal/compiler"
	"github.com/xirelogy/go-sable/internal/interp"
	"github.com/xirelogy/go-sable/internal/lexer"
	"github.com/xirelogy/go-sable/internal/parser"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/value"
	"github.com/xirelogy/go-sable/internal/vm"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Version is the release version reported by the CLI.
const Version = "0.1.0"

// Backend selects the execution strategy.
type Backend int

const (
	// BackendVM compiles to bytecode and runs on the stack machine.
	BackendVM Backend = iota
	// BackendTree evaluates the syntax tree directly.
	BackendTree
)

// ParseBackend resolves a backend by its command-line name.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "vm":
		return BackendVM, nil
	case "ast", "tree":
		return BackendTree, nil
	default:
		return 0, fmt.Errorf("unknown backend %q (want vm or ast)", name)
	}
}

// ScriptError is a source-located failure: a runtime error, or a single
// compile diagnostic.
type ScriptError struct {
	Line    int
	Column  int
	Message string
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

// SourceErrors aggregates the diagnostics of a failed parse or compile.
type SourceErrors struct {
	Stage  string // "parse" or "compile"
	Errors []*ScriptError
}

func (e *SourceErrors) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, se := range e.Errors {
		msgs[i] = se.Error()
	}
	return fmt.Sprintf("%s: %s", e.Stage, strings.Join(msgs, "; "))
}

func convertError(err error) error {
	if err == nil {
		return nil
	}
	if re, ok := err.(*runtime.Error); ok {
		return &ScriptError{
			Line:    re.Span.Start.Line,
			Column:  re.Span.Start.Column,
			Message: re.Message,
		}
	}
	return err
}

func compileErrors(errs []*runtime.Error) error {
	out := make([]*ScriptError, len(errs))
	for i, re := range errs {
		out[i] = &ScriptError{
			Line:    re.Span.Start.Line,
			Column:  re.Span.Start.Column,
			Message: re.Message,
		}
	}
	return &SourceErrors{Stage: "compile", Errors: out}
}

func parseErrors(msgs []string) error {
	out := make([]*ScriptError, len(msgs))
	for i, m := range msgs {
		out[i] = &ScriptError{Message: m}
	}
	return &SourceErrors{Stage: "parse", Errors: out}
}

// Engine runs scripts against a persistent global scope: declarations
// from one run are visible to the next, which is what the REPL builds on.
type Engine struct {
	backend Backend
	stdout  io.Writer
	stderr  io.Writer

	defined      map[string]value.Value
	definedOrder []string

	session      map[string]value.Value
	sessionOrder []string

	loaded *ast.Stmts

	tree *interp.Interp
}

// New creates an engine on the bytecode backend writing to the process
// streams.
func New() *Engine {
	return &Engine{
		backend: BackendVM,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		defined: map[string]value.Value{},
		session: map[string]value.Value{},
	}
}

// SetBackend switches the execution strategy. Accumulated globals carry
// over only on the backend they were created on.
func (e *Engine) SetBackend(b Backend) {
	e.backend = b
}

// SetStdout redirects built-in output such as print.
func (e *Engine) SetStdout(w io.Writer) {
	e.stdout = w
	e.tree = nil
}

// SetStderr redirects diagnostics printed by the CLI helpers.
func (e *Engine) SetStderr(w io.Writer) {
	e.stderr = w
}

// Stderr exposes the configured diagnostic stream.
func (e *Engine) Stderr() io.Writer {
	return e.stderr
}

// DefineGlobal marshals a Go value and binds it as a global visible to
// every subsequent run. Plain Go functions become callable script values.
func (e *Engine) DefineGlobal(name string, val any) error {
	v, err := NewValue(val)
	if err != nil {
		return err
	}
	if _, ok := e.defined[name]; !ok {
		e.definedOrder = append(e.definedOrder, name)
	}
	e.defined[name] = v.v
	if e.tree != nil {
		e.tree.Define(name, v.v)
	}
	return nil
}

// Global reads a global after a run, host-defined or script-declared.
func (e *Engine) Global(name string) (Value, bool) {
	if e.backend == BackendTree && e.tree != nil {
		v, ok := e.tree.Global(name)
		return Value{v: v}, ok
	}
	if v, ok := e.session[name]; ok {
		return Value{v: v}, true
	}
	if v, ok := e.defined[name]; ok {
		return Value{v: v}, true
	}
	return Value{}, false
}

// LoadFile parses a script from a filesystem path and stages it for Run.
func (e *Engine) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return e.LoadSource(string(data))
}

// LoadSource parses source text and stages it for Run. Parse errors are
// reported without executing anything.
func (e *Engine) LoadSource(src string) error {
	prog, err := parseSource(src)
	if err != nil {
		return err
	}
	e.loaded = &prog
	return nil
}

// Run executes the staged program.
func (e *Engine) Run() (Value, error) {
	if e.loaded == nil {
		return Value{}, errors.New("no program loaded")
	}
	if e.backend == BackendTree {
		return e.runTree(*e.loaded)
	}
	return e.runVM(*e.loaded)
}

// RunFile loads and runs a script from a filesystem path.
func (e *Engine) RunFile(path string) (Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Value{}, err
	}
	return e.RunSource(string(data))
}

// RunSource parses and runs source text, returning the script's output
// value (nil unless the final statement lacks a semicolon).
func (e *Engine) RunSource(src string) (Value, error) {
	prog, err := parseSource(src)
	if err != nil {
		return Value{}, err
	}
	if e.backend == BackendTree {
		return e.runTree(prog)
	}
	return e.runVM(prog)
}

// Check parses source text without running it.
func Check(src string) error {
	_, err := parseSource(src)
	return err
}

// IsIncomplete reports whether a parse failure looks like truncated input
// rather than a real syntax error, which is how the REPL decides to keep
// reading lines.
func IsIncomplete(err error) bool {
	se, ok := err.(*SourceErrors)
	if !ok || se.Stage != "parse" {
		return false
	}
	for _, e := range se.Errors {
		if strings.Contains(e.Message, "EOF") || strings.Contains(e.Message, "to close block") {
			return true
		}
	}
	return false
}

func parseSource(src string) (ast.Stmts, error) {
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return ast.Stmts{}, parseErrors(errs)
	}
	return prog, nil
}

func (e *Engine) runVM(prog ast.Stmts) (Value, error) {
	specs := runtime.Builtins(e.stdout)
	seed := runtime.Functions(specs)
	builtin := map[string]bool{}

	names := make([]string, 0, len(specs)+len(e.definedOrder)+len(e.sessionOrder))
	for _, s := range specs {
		names = append(names, s.Name)
		builtin[s.Name] = true
	}
	for _, n := range e.definedOrder {
		if !builtin[n] {
			names = append(names, n)
		}
		seed[n] = e.defined[n]
	}
	for _, n := range e.sessionOrder {
		if _, ok := e.defined[n]; !ok && !builtin[n] {
			names = append(names, n)
		}
		seed[n] = e.session[n]
	}

	compiled, errs := compiler.Compile(prog, analysis.Analyze(prog), names)
	if len(errs) > 0 {
		return Value{}, compileErrors(errs)
	}

	m := vm.New(compiled.GlobalNames, seed)
	out, err := m.Run(compiled.Script)
	if err != nil {
		return Value{}, convertError(err)
	}

	// script declarations survive into the next run
	for _, n := range compiled.GlobalNames {
		if builtin[n] {
			continue
		}
		v, ok := m.Global(n)
		if !ok {
			continue
		}
		if _, seen := e.session[n]; !seen {
			e.sessionOrder = append(e.sessionOrder, n)
		}
		e.session[n] = v
	}
	return Value{v: out}, nil
}

func (e *Engine) runTree(prog ast.Stmts) (Value, error) {
	if e.tree == nil {
		seed := runtime.Functions(runtime.Builtins(e.stdout))
		for _, n := range e.definedOrder {
			seed[n] = e.defined[n]
		}
		e.tree = interp.New(seed)
	}
	out, err := e.tree.Run(prog)
	if err != nil {
		return Value{}, convertError(err)
	}
	return Value{v: out}, nil
}

// Disassemble compiles source text and renders the bytecode of the
// script and every function it defines.
func Disassemble(src string) (string, error) {
	prog, err := parseSource(src)
	if err != nil {
		return "", err
	}
	specs := runtime.Builtins(io.Discard)
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	compiled, errs := compiler.Compile(prog, analysis.Analyze(prog), names)
	if len(errs) > 0 {
		return "", compileErrors(errs)
	}
	var sb strings.Builder
	d := bytecode.NewDisassembler(&sb)
	if err := d.DisassemblePrototype("<script>", compiled.Script); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Value is a script value handed across the host boundary.
type Value struct {
	v value.Value
}

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool {
	return value.Deref(v.v).Kind == value.KindNil
}

// Bool returns the boolean value when the kind matches.
func (v Value) Bool() (bool, bool) {
	d := value.Deref(v.v)
	if d.Kind != value.KindBool {
		return false, false
	}
	return d.B, true
}

// Int returns the integer value when the kind matches.
func (v Value) Int() (int64, bool) {
	d := value.Deref(v.v)
	if d.Kind != value.KindInt {
		return 0, false
	}
	return d.I, true
}

// Float returns the float value when the kind matches.
func (v Value) Float() (float64, bool) {
	d := value.Deref(v.v)
	if d.Kind != value.KindFloat {
		return 0, false
	}
	return d.F, true
}

// String returns the string value when the kind matches.
func (v Value) String() (string, bool) {
	d := value.Deref(v.v)
	if d.Kind != value.KindString {
		return "", false
	}
	return d.Str, true
}

// List unwraps a list into host values when the kind matches.
func (v Value) List() ([]Value, bool) {
	d := value.Deref(v.v)
	if d.Kind != value.KindList {
		return nil, false
	}
	out := make([]Value, len(d.List.Items))
	for i, el := range d.List.Items {
		out[i] = Value{v: el}
	}
	return out, true
}

// TypeName reports the script-visible type name.
func (v Value) TypeName() string {
	return value.TypeName(v.v)
}

// Display renders the value the way print shows it.
func (v Value) Display() string {
	return value.Stringify(v.v)
}

// Raw converts to a plain Go representation. Functions are not
// convertible.
func (v Value) Raw() (any, error) {
	return rawGo(v.v)
}

// MustRaw is Raw or panic, for tests and examples.
func (v Value) MustRaw() any {
	out, err := rawGo(v.v)
	if err != nil {
		panic(err)
	}
	return out
}

func rawGo(v value.Value) (any, error) {
	v = value.Deref(v)
	switch v.Kind {
	case value.KindNil:
		return nil, nil
	case value.KindBool:
		return v.B, nil
	case value.KindInt:
		return v.I, nil
	case value.KindFloat:
		return v.F, nil
	case value.KindString:
		return v.Str, nil
	case value.KindList:
		out := make([]any, len(v.List.Items))
		for i, el := range v.List.Items {
			raw, err := rawGo(el)
			if err != nil {
				return nil, err
			}
			out[i] = raw
		}
		return out, nil
	case value.KindFunction:
		return nil, errors.New("Raw() not supported on function values")
	default:
		return nil, fmt.Errorf("unsupported value kind %v", v.Kind)
	}
}

// Marshaler allows custom control over Go to script conversion.
type Marshaler interface {
	MarshalSable() (Value, error)
}

// Unmarshaler allows custom control over script to Go conversion.
type Unmarshaler interface {
	UnmarshalSable(Value) error
}

// NewValue marshals a Go value into a script value. Numbers keep their
// integer or floating nature, slices and arrays become lists, and plain
// Go functions become callable script values.
func NewValue(val any) (Value, error) {
	v, err := marshalGo(val)
	if err != nil {
		return Value{}, err
	}
	return Value{v: v}, nil
}

// MustValue marshals or panics, for tests and examples.
func MustValue(val any) Value {
	v, err := NewValue(val)
	if err != nil {
		panic(err)
	}
	return v
}

func marshalGo(val any) (value.Value, error) {
	if m, ok := val.(Marshaler); ok {
		custom, err := m.MarshalSable()
		if err != nil {
			return value.Value{}, err
		}
		return custom.v, nil
	}
	switch v := val.(type) {
	case Value:
		return v.v, nil
	case nil:
		return value.Nil(), nil
	case bool:
		return value.Bool(v), nil
	case int:
		return value.Int(int64(v)), nil
	case int64:
		return value.Int(v), nil
	case float64:
		return value.Float(v), nil
	case string:
		return value.String(v), nil
	case []any:
		out := make([]value.Value, len(v))
		for i, el := range v {
			mv, err := marshalGo(el)
			if err != nil {
				return value.Value{}, err
			}
			out[i] = mv
		}
		return value.NewList(out), nil
	}

	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return value.Nil(), nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return value.Nil(), nil
		}
		return marshalGo(rv.Elem().Interface())
	case reflect.Bool:
		return value.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return value.Int(int64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return value.Float(rv.Float()), nil
	case reflect.String:
		return value.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		out := make([]value.Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			mv, err := marshalGo(rv.Index(i).Interface())
			if err != nil {
				return value.Value{}, err
			}
			out[i] = mv
		}
		return value.NewList(out), nil
	case reflect.Func:
		native, err := funcFromGo("", val)
		if err != nil {
			return value.Value{}, err
		}
		return value.FunctionVal(native), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported value type %T", val)
	}
}

// Func marshals a plain Go function into a named script callable.
// Supported shapes are func(...) T, func(...) (T, error), func(...) error
// and func(...); T is anything NewValue accepts.
func Func(name string, fn any) (Value, error) {
	native, err := funcFromGo(name, fn)
	if err != nil {
		return Value{}, err
	}
	return Value{v: value.FunctionVal(native)}, nil
}

// MustFunc is Func or panic, for tests and examples.
func MustFunc(name string, fn any) Value {
	v, err := Func(name, fn)
	if err != nil {
		panic(err)
	}
	return v
}

func funcFromGo(name string, fn any) (*value.Native, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	rv := reflect.ValueOf(fn)
	rt := rv.Type()
	if rt.Kind() != reflect.Func {
		return nil, fmt.Errorf("value of %q is not a function", name)
	}
	if rt.IsVariadic() {
		return nil, fmt.Errorf("function %q must not be variadic", name)
	}
	if rt.NumOut() > 2 {
		return nil, fmt.Errorf("function %q has too many return values (max 2)", name)
	}
	retValIndex := -1
	retErrIndex := -1
	switch rt.NumOut() {
	case 1:
		if rt.Out(0) == errorType {
			retErrIndex = 0
		} else {
			retValIndex = 0
		}
	case 2:
		if rt.Out(1) != errorType {
			return nil, fmt.Errorf("function %q second return value must be error", name)
		}
		retValIndex = 0
		retErrIndex = 1
	}

	call := func(args []value.Value) (value.Value, error) {
		inputs := make([]reflect.Value, rt.NumIn())
		for i := 0; i < rt.NumIn(); i++ {
			val, err := convertArg(args[i], rt.In(i))
			if err != nil {
				return value.Value{}, fmt.Errorf("argument %d: %w", i, err)
			}
			inputs[i] = val
		}
		results := rv.Call(inputs)
		if retErrIndex >= 0 && !results[retErrIndex].IsNil() {
			return value.Value{}, results[retErrIndex].Interface().(error)
		}
		if retValIndex >= 0 {
			return marshalGo(results[retValIndex].Interface())
		}
		return value.Nil(), nil
	}

	return &value.Native{
		Name:  name,
		Arity: rt.NumIn(),
		Call:  call,
	}, nil
}

func convertArg(src value.Value, targetType reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(targetType)
	if err := assignValue(src, ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// Unmarshal assigns a script value into a Go target using reflection.
// Supports primitives, slices, arrays and Unmarshaler.
func Unmarshal(val Value, target any) error {
	if target == nil {
		return errors.New("nil target")
	}
	if u, ok := target.(Unmarshaler); ok {
		return u.UnmarshalSable(val)
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("target must be non-nil pointer")
	}
	return assignValue(val.v, rv.Elem())
}

func assignValue(src value.Value, dst reflect.Value) error {
	if !dst.CanSet() {
		return errors.New("cannot set target")
	}
	src = value.Deref(src)
	switch dst.Kind() {
	case reflect.Interface:
		raw, err := rawGo(src)
		if err != nil {
			return err
		}
		if raw == nil {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		dst.Set(reflect.ValueOf(raw))
		return nil
	case reflect.Bool:
		if src.Kind != value.KindBool {
			return fmt.Errorf("want bool, got %s", value.TypeName(src))
		}
		dst.SetBool(src.B)
		return nil
	case reflect.String:
		if src.Kind != value.KindString {
			return fmt.Errorf("want string, got %s", value.TypeName(src))
		}
		dst.SetString(src.Str)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if src.Kind != value.KindInt {
			return fmt.Errorf("want int, got %s", value.TypeName(src))
		}
		dst.SetInt(src.I)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if src.Kind != value.KindInt {
			return fmt.Errorf("want int, got %s", value.TypeName(src))
		}
		if src.I < 0 {
			return fmt.Errorf("negative value %d for unsigned target", src.I)
		}
		dst.SetUint(uint64(src.I))
		return nil
	case reflect.Float32, reflect.Float64:
		switch src.Kind {
		case value.KindFloat:
			dst.SetFloat(src.F)
		case value.KindInt:
			dst.SetFloat(float64(src.I))
		default:
			return fmt.Errorf("want number, got %s", value.TypeName(src))
		}
		return nil
	case reflect.Slice:
		if src.Kind != value.KindList {
			return fmt.Errorf("want list, got %s", value.TypeName(src))
		}
		l := len(src.List.Items)
		dst.Set(reflect.MakeSlice(dst.Type(), l, l))
		for i := 0; i < l; i++ {
			if err := assignValue(src.List.Items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Array:
		if src.Kind != value.KindList {
			return fmt.Errorf("want list, got %s", value.TypeName(src))
		}
		if len(src.List.Items) != dst.Len() {
			return fmt.Errorf("array length mismatch: have %d want %d", len(src.List.Items), dst.Len())
		}
		for i := 0; i < dst.Len(); i++ {
			if err := assignValue(src.List.Items[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported unmarshal target kind %s", dst.Kind())
	}
}
