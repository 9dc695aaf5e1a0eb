package compiler

import (
	"github.com/xirelogy/go-sable/internal/analysis"
	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/bytecode"
	"github.com/xirelogy/go-sable/internal/runtime"
	"github.com/xirelogy/go-sable/internal/token"
)

// Program is the compiled form of a script: the script body as a
// parameterless prototype plus the global slot layout. Built-ins occupy
// the first slots in registration order; script globals follow in
// declaration order.
type Program struct {
	Script      *bytecode.Prototype
	GlobalNames []string
}

// Compile lowers a program to bytecode in a single pass over the tree.
// Top-level declarations are collected up front, so functions may refer
// to globals declared later in the script. All errors are accumulated;
// a program with errors is never returned for execution.
func Compile(prog ast.Stmts, info *analysis.Info, builtins []string) (*Program, []*runtime.Error) {
	c := &compiler{
		info:        info,
		globalSlots: map[string]uint16{},
	}
	for _, name := range builtins {
		c.declareGlobal(name)
	}
	c.collectGlobals(prog)

	script := &funcCompiler{
		c:     c,
		chunk: bytecode.NewChunk(),
		info:  info.Script,
	}
	script.compileStmts(prog)
	if !prog.Output {
		script.emit(bytecode.OP_NIL, endSpan(prog))
	}
	script.emit(bytecode.OP_RETURN, endSpan(prog))

	if len(c.errors) > 0 {
		return nil, c.errors
	}
	return &Program{
		Script: &bytecode.Prototype{
			Name:      "<script>",
			NumLocals: script.maxLocals,
			Chunk:     script.chunk,
		},
		GlobalNames: c.globalNames,
	}, nil
}

type compiler struct {
	info        *analysis.Info
	globalSlots map[string]uint16
	globalNames []string
	errors      []*runtime.Error
}

func (c *compiler) errorf(span token.Span, format string, args ...any) {
	c.errors = append(c.errors, runtime.Errorf(span, format, args...))
}

func (c *compiler) declareGlobal(name string) uint16 {
	if slot, ok := c.globalSlots[name]; ok {
		return slot
	}
	slot := uint16(len(c.globalNames))
	c.globalSlots[name] = slot
	c.globalNames = append(c.globalNames, name)
	return slot
}

// collectGlobals pre-declares every top-level binding so references
// resolve regardless of declaration order.
func (c *compiler) collectGlobals(prog ast.Stmts) {
	for _, s := range prog.Stmts {
		decl, ok := s.Node.(*ast.Decl)
		if !ok {
			continue
		}
		c.collectLValue(decl.Target)
	}
}

func (c *compiler) collectLValue(lv ast.LValue) {
	switch t := lv.(type) {
	case *ast.VarLV:
		c.declareGlobal(t.Name)
	case *ast.TupleLV:
		for _, el := range t.Elems {
			c.collectLValue(el)
		}
	}
}

// funcCompiler emits the body of one function. The script body compiles
// through a funcCompiler with fn == nil; its depth-zero declarations are
// globals rather than locals.
type funcCompiler struct {
	c          *compiler
	enclosing  *funcCompiler
	chunk      *bytecode.Chunk
	fn         *ast.FunctionDef
	info       *analysis.FuncInfo
	locals     []local
	scopeDepth int
	maxLocals  int
	loops      []*loopCtx
}

func (fc *funcCompiler) emit(op byte, span token.Span) {
	fc.chunk.PushOp(op, span)
}

func (fc *funcCompiler) atScriptTop() bool {
	return fc.fn == nil && fc.scopeDepth == 0
}

func (fc *funcCompiler) captured(name string) bool {
	return fc.info.Captured[name]
}

// compileStmts emits a statement sequence. When the sequence has an
// output, the final expression's value is left on the stack; otherwise
// the stack is left level and the caller supplies a value if it needs one.
func (fc *funcCompiler) compileStmts(stmts ast.Stmts) {
	for i, s := range stmts.Stmts {
		last := i == len(stmts.Stmts)-1
		switch n := s.Node.(type) {
		case *ast.Decl:
			fc.compileDecl(n, s.Span)
		case *ast.ExprStmt:
			fc.compileExpr(n.Expr)
			if !(last && stmts.Output) {
				fc.emit(bytecode.OP_DISCARD, s.Span)
			}
		case *ast.Invalid:
			fc.c.errorf(s.Span, "invalid statement")
		}
	}
}

func (fc *funcCompiler) compileDecl(decl *ast.Decl, span token.Span) {
	switch t := decl.Target.(type) {
	case *ast.VarLV:
		if fc.atScriptTop() {
			fc.compileGlobalDecl(t.Name, decl.Expr, span)
		} else {
			fc.compileLocalDecl(t.Name, decl.Expr, span)
		}
	case *ast.TupleLV:
		fc.c.errorf(span, "Tuple declarations are not supported")
	case *ast.IndexLV:
		fc.c.errorf(span, "Cannot declare into an index")
	case *ast.ConstantLV:
		fc.c.errorf(span, "Constant patterns are not supported")
	}
}

func (fc *funcCompiler) compileGlobalDecl(name string, init *ast.ExprNode, span token.Span) {
	slot := fc.c.declareGlobal(name)
	if init != nil {
		fc.compileExpr(init)
	} else {
		fc.emit(bytecode.OP_NIL, span)
	}
	fc.emit(bytecode.OP_ASSIGN_GLOBAL, span)
	fc.chunk.PushU16(slot)
	fc.emit(bytecode.OP_DISCARD, span)
}

func (fc *funcCompiler) compileLocalDecl(name string, init *ast.ExprNode, span token.Span) {
	isPtr := fc.captured(name)

	// A function initializer sees its own name, so recursion resolves to
	// the slot being declared. Other initializers are evaluated before the
	// name exists, so `let x = x;` reads the outer x.
	if init != nil {
		if _, isFn := init.Node.(*ast.FunctionDef); isFn {
			slot, ok := fc.addLocal(name, isPtr)
			if !ok {
				fc.c.errorf(span, "Too many local variables")
				return
			}
			if isPtr {
				fc.emitPointerInit(slot, span)
			}
			fc.compileExpr(init)
			fc.emitLocalStore(slot, isPtr, span)
			fc.emit(bytecode.OP_DISCARD, span)
			return
		}
		fc.compileExpr(init)
	} else {
		fc.emit(bytecode.OP_NIL, span)
	}

	slot, ok := fc.addLocal(name, isPtr)
	if !ok {
		fc.c.errorf(span, "Too many local variables")
		return
	}
	if isPtr {
		fc.emitPointerInit(slot, span)
	}
	fc.emitLocalStore(slot, isPtr, span)
	fc.emit(bytecode.OP_DISCARD, span)
}

// emitPointerInit places a fresh empty cell in the local slot, leaving
// the stack as it was.
func (fc *funcCompiler) emitPointerInit(slot uint8, span token.Span) {
	fc.emit(bytecode.OP_EMPTY_POINTER, span)
	fc.emit(bytecode.OP_ASSIGN_LOCAL, span)
	fc.chunk.PushU8(slot)
	fc.emit(bytecode.OP_DISCARD, span)
}

// emitLocalStore writes the stack top into the slot, through the cell for
// captured locals, keeping the value on the stack.
func (fc *funcCompiler) emitLocalStore(slot uint8, isPtr bool, span token.Span) {
	if isPtr {
		fc.emit(bytecode.OP_ASSIGN_POINTER, span)
	} else {
		fc.emit(bytecode.OP_ASSIGN_LOCAL, span)
	}
	fc.chunk.PushU8(slot)
}

// compileFunction lowers a function literal to a prototype and emits the
// closure construction in the enclosing function.
func (fc *funcCompiler) compileFunction(fn *ast.FunctionDef, span token.Span) {
	info := fc.c.info.Funcs[fn]
	if info == nil {
		info = &analysis.FuncInfo{Captured: map[string]bool{}}
	}
	sub := &funcCompiler{
		c:         fc.c,
		enclosing: fc,
		chunk:     bytecode.NewChunk(),
		fn:        fn,
		info:      info,
	}

	if len(fn.Params) > 255 {
		fc.c.errorf(span, "Too many parameters")
		return
	}
	for _, p := range fn.Params {
		sub.addLocal(p, info.Captured[p])
	}
	// Captured parameters arrive as plain values and are re-homed into
	// cells before the body runs.
	for i, p := range fn.Params {
		if !info.Captured[p] {
			continue
		}
		slot := uint8(i)
		sub.emit(bytecode.OP_READ_LOCAL, span)
		sub.chunk.PushU8(slot)
		sub.emitPointerInit(slot, span)
		sub.emit(bytecode.OP_ASSIGN_POINTER, span)
		sub.chunk.PushU8(slot)
		sub.emit(bytecode.OP_DISCARD, span)
	}

	sub.compileExpr(fn.Body)
	sub.emit(bytecode.OP_RETURN, fn.Body.Span)

	proto := &bytecode.Prototype{
		Name:        fn.Name,
		NumParams:   len(fn.Params),
		NumLocals:   sub.maxLocals,
		NumUpvalues: len(info.Upvalues),
		Chunk:       sub.chunk,
	}
	idx := fc.chunk.AddProto(proto)
	fc.emit(bytecode.OP_CLOSURE, span)
	fc.chunk.PushU16(idx)
	for _, name := range info.Upvalues {
		isLocal, slot := fc.resolveUpvalueSource(name, span)
		if isLocal {
			fc.chunk.PushU8(1)
		} else {
			fc.chunk.PushU8(0)
		}
		fc.chunk.PushU8(slot)
	}
}

// resolveUpvalueSource locates where the enclosing function keeps a
// captured name: in one of its own (cell-holding) local slots, or in its
// own upvalue list.
func (fc *funcCompiler) resolveUpvalueSource(name string, span token.Span) (bool, uint8) {
	if slot, _, ok := fc.resolveLocal(name); ok {
		return true, slot
	}
	if idx := fc.info.UpvalueIndex(name); idx >= 0 {
		return false, uint8(idx)
	}
	fc.c.errorf(span, "Var '%s' is not declared", name)
	return true, 0
}

func endSpan(prog ast.Stmts) token.Span {
	if n := len(prog.Stmts); n > 0 {
		last := prog.Stmts[n-1].Span
		return token.Span{Start: last.End, End: last.End}
	}
	return token.Span{}
}
