// Package interp is the tree-walking back-end. It evaluates the syntax
// tree directly against environment chains, sharing the value model and
// built-ins with the bytecode virtual machine.
package interp

import (
	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/token"
	"github.com/xirelogy/go-sable/internal/value"
)

const maxCallDepth = 1024

// closure pairs a function literal with the environment it was created in.
type closure struct {
	def *ast.FunctionDef
	env *Environment
}

func (c *closure) FnName() string { return c.def.Name }
func (c *closure) FnArity() int   { return len(c.def.Params) }

// Control-flow signals travel as errors until a loop or call absorbs them.
type breakSignal struct{ span token.Span }

type continueSignal struct{ span token.Span }

type returnSignal struct {
	span token.Span
	v    value.Value
}

func (breakSignal) Error() string    { return "break" }
func (continueSignal) Error() string { return "continue" }
func (returnSignal) Error() string   { return "return" }

// Interp evaluates programs. One Interp holds one global environment, so
// successive Run calls see earlier declarations.
type Interp struct {
	globals *Environment
	depth   int
}

// New creates an interpreter whose global scope is seeded with the given
// function values.
func New(seed map[string]value.Value) *Interp {
	globals := NewEnvironment(nil)
	for name, v := range seed {
		globals.Define(name, v)
	}
	return &Interp{globals: globals}
}

// Global reads a global binding, for host inspection after a run.
func (in *Interp) Global(name string) (value.Value, bool) {
	return in.globals.Read(name)
}

// Define binds a global, for host-provided values.
func (in *Interp) Define(name string, v value.Value) {
	in.globals.Define(name, v)
}

// Run evaluates a program and returns its output value, which is nil
// unless the final statement lacks a semicolon.
func (in *Interp) Run(prog ast.Stmts) (value.Value, error) {
	v, err := in.evalStmts(in.globals, prog)
	if err != nil {
		return value.Value{}, escape(err)
	}
	return v, nil
}

// escape converts a control signal that reached the top level into the
// diagnostic the user should see.
func escape(err error) error {
	switch s := err.(type) {
	case breakSignal:
		return runtime.Errorf(s.span, "Cannot break outside of a loop")
	case continueSignal:
		return runtime.Errorf(s.span, "Cannot continue outside of a loop")
	case returnSignal:
		return runtime.Errorf(s.span, "Cannot return outside of a function")
	}
	return err
}

func (in *Interp) evalStmts(env *Environment, stmts ast.Stmts) (value.Value, error) {
	last := value.Nil()
	for i, s := range stmts.Stmts {
		switch n := s.Node.(type) {
		case *ast.Decl:
			if err := in.evalDecl(env, n, s.Span); err != nil {
				return value.Value{}, err
			}
			last = value.Nil()
		case *ast.ExprStmt:
			v, err := in.evalExpr(env, n.Expr)
			if err != nil {
				return value.Value{}, err
			}
			if i == len(stmts.Stmts)-1 {
				last = v
			}
		case *ast.Invalid:
			return value.Value{}, runtime.Errorf(s.Span, "invalid statement")
		}
	}
	if !stmts.Output {
		return value.Nil(), nil
	}
	return last, nil
}

func (in *Interp) evalDecl(env *Environment, decl *ast.Decl, span token.Span) error {
	switch t := decl.Target.(type) {
	case *ast.VarLV:
		if decl.Expr == nil {
			env.Define(t.Name, value.Nil())
			return nil
		}
		// A function initializer sees its own name, so recursion resolves
		// to the binding being declared. Other initializers are evaluated
		// before the name exists, so `let x = x;` reads the outer x.
		if _, isFn := decl.Expr.Node.(*ast.FunctionDef); isFn {
			env.Define(t.Name, value.Nil())
			v, err := in.evalExpr(env, decl.Expr)
			if err != nil {
				return err
			}
			env.Assign(t.Name, v)
			return nil
		}
		v, err := in.evalExpr(env, decl.Expr)
		if err != nil {
			return err
		}
		env.Define(t.Name, v)
		return nil
	case *ast.TupleLV:
		return runtime.Errorf(span, "Tuple declarations are not supported")
	case *ast.IndexLV:
		return runtime.Errorf(span, "Cannot declare into an index")
	default:
		return runtime.Errorf(span, "Constant patterns are not supported")
	}
}

func (in *Interp) evalExpr(env *Environment, e *ast.ExprNode) (value.Value, error) {
	switch n := e.Node.(type) {
	case *ast.IntLit:
		return value.Int(n.V), nil
	case *ast.FloatLit:
		return value.Float(n.V), nil
	case *ast.BoolLit:
		return value.Bool(n.V), nil
	case *ast.StringLit:
		return value.String(n.V), nil
	case *ast.NilLit:
		return value.Nil(), nil

	case *ast.Var:
		v, ok := env.Read(n.Name)
		if !ok {
			return value.Value{}, runtime.Errorf(e.Span, "Var '%s' is not declared", n.Name)
		}
		return v, nil

	case *ast.Unary:
		return in.evalUnary(env, n, e.Span)
	case *ast.Binary:
		return in.evalBinary(env, n, e.Span)
	case *ast.Logical:
		return in.evalLogical(env, n)
	case *ast.Assign:
		return in.evalAssign(env, n, e.Span)
	case *ast.Call:
		return in.evalCall(env, n, e.Span)
	case *ast.IndexInto:
		return in.evalIndex(env, n.Base, n.Index, e.Span)
	case *ast.ListExpr:
		return in.evalList(env, n, e.Span)
	case *ast.FunctionDef:
		return value.FunctionVal(&closure{def: n, env: env}), nil

	case *ast.Block:
		return in.evalStmts(NewEnvironment(env), n.Stmts)
	case *ast.If:
		pred, err := in.evalExpr(env, n.Pred)
		if err != nil {
			return value.Value{}, err
		}
		if value.Truthy(pred) {
			return in.evalExpr(env, n.Then)
		}
		if n.Else == nil {
			return value.Nil(), nil
		}
		return in.evalExpr(env, n.Else)
	case *ast.While:
		return in.evalWhile(env, n)
	case *ast.For:
		return in.evalFor(env, n, e.Span)

	case *ast.Break:
		return value.Value{}, breakSignal{e.Span}
	case *ast.Continue:
		return value.Value{}, continueSignal{e.Span}
	case *ast.Return:
		v := value.Nil()
		if n.Expr != nil {
			var err error
			v, err = in.evalExpr(env, n.Expr)
			if err != nil {
				return value.Value{}, err
			}
		}
		return value.Value{}, returnSignal{e.Span, v}

	case *ast.Tuple:
		return value.Value{}, runtime.Errorf(e.Span, "Tuple expressions are not supported")
	case *ast.Match:
		return value.Value{}, runtime.Errorf(e.Span, "Match expressions are not supported")
	default:
		return value.Value{}, runtime.Errorf(e.Span, "invalid expression")
	}
}

func (in *Interp) evalUnary(env *Environment, n *ast.Unary, span token.Span) (value.Value, error) {
	x, err := in.evalExpr(env, n.X)
	if err != nil {
		return value.Value{}, err
	}
	var v value.Value
	switch n.Op {
	case ast.OpNot:
		v, err = value.Not(x)
	default:
		v, err = value.Negate(x)
	}
	if err != nil {
		return value.Value{}, runtime.Locate(span, err)
	}
	return v, nil
}

func (in *Interp) evalBinary(env *Environment, n *ast.Binary, span token.Span) (value.Value, error) {
	x, err := in.evalExpr(env, n.X)
	if err != nil {
		return value.Value{}, err
	}
	y, err := in.evalExpr(env, n.Y)
	if err != nil {
		return value.Value{}, err
	}

	var v value.Value
	switch n.Op {
	case ast.OpAdd:
		v, err = value.Add(x, y)
	case ast.OpSub:
		v, err = value.Sub(x, y)
	case ast.OpMult:
		v, err = value.Mult(x, y)
	case ast.OpDiv:
		v, err = value.Div(x, y)
	case ast.OpMod:
		v, err = value.Modulo(x, y)
	case ast.OpPow:
		v, err = value.Power(x, y)
	case ast.OpEq:
		return value.Bool(value.Equal(x, y)), nil
	case ast.OpNeq:
		return value.Bool(!value.Equal(x, y)), nil
	case ast.OpLt, ast.OpLeq, ast.OpGt, ast.OpGeq:
		c, err := value.Compare(x, y)
		if err != nil {
			return value.Value{}, runtime.Locate(span, err)
		}
		switch n.Op {
		case ast.OpLt:
			return value.Bool(c < 0), nil
		case ast.OpLeq:
			return value.Bool(c <= 0), nil
		case ast.OpGt:
			return value.Bool(c > 0), nil
		default:
			return value.Bool(c >= 0), nil
		}
	default:
		return value.Value{}, runtime.Errorf(span, "Append is not supported")
	}
	if err != nil {
		return value.Value{}, runtime.Locate(span, err)
	}
	return v, nil
}

// evalLogical short-circuits and yields the deciding operand itself
// rather than a boolean.
func (in *Interp) evalLogical(env *Environment, n *ast.Logical) (value.Value, error) {
	x, err := in.evalExpr(env, n.X)
	if err != nil {
		return value.Value{}, err
	}
	if n.Op == ast.OpAnd {
		if !value.Truthy(x) {
			return x, nil
		}
	} else {
		if value.Truthy(x) {
			return x, nil
		}
	}
	return in.evalExpr(env, n.Y)
}

func (in *Interp) evalAssign(env *Environment, n *ast.Assign, span token.Span) (value.Value, error) {
	v, err := in.evalExpr(env, n.Expr)
	if err != nil {
		return value.Value{}, err
	}
	switch t := n.Target.(type) {
	case *ast.VarLV:
		if !env.Assign(t.Name, v) {
			return value.Value{}, runtime.Errorf(span, "Var '%s' is not declared", t.Name)
		}
		return v, nil
	case *ast.IndexLV:
		if t.Index.Slice != nil {
			return value.Value{}, runtime.Errorf(span, "Slice assignment is not supported")
		}
		base, err := in.evalExpr(env, t.Base)
		if err != nil {
			return value.Value{}, err
		}
		at, err := in.evalExpr(env, t.Index.At)
		if err != nil {
			return value.Value{}, err
		}
		if err := value.AssignAtIndex(base, at, v); err != nil {
			return value.Value{}, runtime.Locate(span, err)
		}
		return v, nil
	case *ast.TupleLV:
		return value.Value{}, runtime.Errorf(span, "Tuple assignment is not supported")
	default:
		return value.Value{}, runtime.Errorf(span, "Constant patterns are not supported")
	}
}

func (in *Interp) evalCall(env *Environment, n *ast.Call, span token.Span) (value.Value, error) {
	callee, err := in.evalExpr(env, n.Callee)
	if err != nil {
		return value.Value{}, err
	}
	callee = value.Deref(callee)
	if callee.Kind != value.KindFunction {
		return value.Value{}, runtime.Errorf(span, "Cannot call a %s", value.TypeName(callee))
	}

	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := in.evalExpr(env, a)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}

	switch fn := callee.Fn.(type) {
	case *value.Native:
		if len(args) != fn.Arity {
			return value.Value{}, runtime.Errorf(span, "Function '%s' expected %d arguments but got %d",
				fn.Name, fn.Arity, len(args))
		}
		v, err := fn.Call(args)
		if err != nil {
			return value.Value{}, runtime.Locate(span, err)
		}
		return v, nil
	case *closure:
		if len(args) != len(fn.def.Params) {
			return value.Value{}, runtime.Errorf(span, "Function '%s' expected %d arguments but got %d",
				fn.def.Name, len(fn.def.Params), len(args))
		}
		return in.callClosure(fn, args, span)
	default:
		return value.Value{}, runtime.Errorf(span, "Cannot call a foreign function")
	}
}

func (in *Interp) callClosure(fn *closure, args []value.Value, span token.Span) (value.Value, error) {
	if in.depth >= maxCallDepth {
		return value.Value{}, runtime.Errorf(span, "Stack overflow.")
	}
	in.depth++
	defer func() { in.depth-- }()

	frame := NewEnvironment(fn.env)
	for i, p := range fn.def.Params {
		frame.Define(p, args[i])
	}
	v, err := in.evalExpr(frame, fn.def.Body)
	if err != nil {
		if ret, ok := err.(returnSignal); ok {
			return ret.v, nil
		}
		// break and continue cannot cross a call boundary
		return value.Value{}, escape(err)
	}
	return v, nil
}

func (in *Interp) evalIndex(env *Environment, base *ast.ExprNode, idx ast.Index, span token.Span) (value.Value, error) {
	b, err := in.evalExpr(env, base)
	if err != nil {
		return value.Value{}, err
	}
	if idx.At != nil {
		at, err := in.evalExpr(env, idx.At)
		if err != nil {
			return value.Value{}, err
		}
		v, err := value.ReadAtIndex(b, at)
		if err != nil {
			return value.Value{}, runtime.Locate(span, err)
		}
		return v, nil
	}
	start, stop, step, err := in.evalSliceParts(env, idx.Slice)
	if err != nil {
		return value.Value{}, err
	}
	v, err := value.ReadAtSlice(b, start, stop, step)
	if err != nil {
		return value.Value{}, runtime.Locate(span, err)
	}
	return v, nil
}

func (in *Interp) evalSliceParts(env *Environment, s *ast.SliceIdx) (value.Value, value.Value, value.Value, error) {
	part := func(e *ast.ExprNode) (value.Value, error) {
		if e == nil {
			return value.Nil(), nil
		}
		return in.evalExpr(env, e)
	}
	start, err := part(s.Start)
	if err != nil {
		return value.Value{}, value.Value{}, value.Value{}, err
	}
	stop, err := part(s.Stop)
	if err != nil {
		return value.Value{}, value.Value{}, value.Value{}, err
	}
	step, err := part(s.Step)
	if err != nil {
		return value.Value{}, value.Value{}, value.Value{}, err
	}
	return start, stop, step, nil
}

func (in *Interp) evalList(env *Environment, n *ast.ListExpr, span token.Span) (value.Value, error) {
	if n.Range != nil {
		start, stop, step, err := in.evalSliceParts(env, n.Range)
		if err != nil {
			return value.Value{}, err
		}
		v, err := value.ListFromSlice(start, stop, step)
		if err != nil {
			return value.Value{}, runtime.Locate(span, err)
		}
		return v, nil
	}
	items := make([]value.Value, len(n.Elems))
	for i, el := range n.Elems {
		v, err := in.evalExpr(env, el)
		if err != nil {
			return value.Value{}, err
		}
		items[i] = value.Deref(v)
	}
	return value.NewList(items), nil
}

// evalWhile runs the loop; loops always evaluate to nil.
func (in *Interp) evalWhile(env *Environment, n *ast.While) (value.Value, error) {
	for {
		pred, err := in.evalExpr(env, n.Pred)
		if err != nil {
			return value.Value{}, err
		}
		if !value.Truthy(pred) {
			return value.Nil(), nil
		}
		if _, err := in.evalExpr(env, n.Body); err != nil {
			switch err.(type) {
			case breakSignal:
				return value.Nil(), nil
			case continueSignal:
				continue
			}
			return value.Value{}, err
		}
	}
}

func (in *Interp) evalFor(env *Environment, n *ast.For, span token.Span) (value.Value, error) {
	target, ok := n.Target.(*ast.VarLV)
	if !ok {
		return value.Value{}, runtime.Errorf(span, "for binding must be a name")
	}
	coll, err := in.evalExpr(env, n.Coll)
	if err != nil {
		return value.Value{}, err
	}
	coll = value.Deref(coll)

	// length is re-read each step, so list mutation in the body is observed
	var length func() int
	var elem func(i int) value.Value
	switch coll.Kind {
	case value.KindList:
		length = func() int { return len(coll.List.Items) }
		elem = func(i int) value.Value { return coll.List.Items[i] }
	case value.KindString:
		length = func() int { return len(coll.Str) }
		elem = func(i int) value.Value { return value.String(coll.Str[i : i+1]) }
	default:
		return value.Value{}, runtime.Errorf(span, "Cannot iterate over a %s", value.TypeName(coll))
	}

	// each iteration gets a fresh binding, so closures made in the body
	// keep the element they saw
	for i := 0; i < length(); i++ {
		iter := NewEnvironment(env)
		iter.Define(target.Name, elem(i))
		if _, err := in.evalExpr(iter, n.Body); err != nil {
			switch err.(type) {
			case breakSignal:
				return value.Nil(), nil
			case continueSignal:
				continue
			}
			return value.Value{}, err
		}
	}
	return value.Nil(), nil
}
