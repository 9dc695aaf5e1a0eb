package compiler

import (
	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/bytecode"
	"github.com/xirelogy/go-sable/internal/token"
	"github.com/xirelogy/go-sable/internal/value"
)

var binOpcodes = map[ast.BinOp]byte{
	ast.OpAdd:  bytecode.OP_ADD,
	ast.OpSub:  bytecode.OP_SUB,
	ast.OpMult: bytecode.OP_MULT,
	ast.OpDiv:  bytecode.OP_DIV,
	ast.OpMod:  bytecode.OP_MODULO,
	ast.OpPow:  bytecode.OP_POWER,
	ast.OpEq:   bytecode.OP_EQ,
	ast.OpNeq:  bytecode.OP_NEQ,
	ast.OpLt:   bytecode.OP_LT,
	ast.OpLeq:  bytecode.OP_LTE,
	ast.OpGt:   bytecode.OP_GT,
	ast.OpGeq:  bytecode.OP_GTE,
}

// compileExpr emits code leaving exactly one value on the stack.
func (fc *funcCompiler) compileExpr(e *ast.ExprNode) {
	if e == nil {
		fc.emit(bytecode.OP_NIL, token.Span{})
		return
	}
	span := e.Span

	switch n := e.Node.(type) {
	case *ast.IntLit:
		fc.chunk.PushConst(value.Int(n.V), span)
	case *ast.FloatLit:
		fc.chunk.PushConst(value.Float(n.V), span)
	case *ast.StringLit:
		fc.chunk.PushConst(value.String(n.V), span)
	case *ast.BoolLit:
		if n.V {
			fc.emit(bytecode.OP_TRUE, span)
		} else {
			fc.emit(bytecode.OP_FALSE, span)
		}
	case *ast.NilLit:
		fc.emit(bytecode.OP_NIL, span)

	case *ast.Var:
		fc.compileVarRead(n.Name, span)

	case *ast.Unary:
		fc.compileExpr(n.X)
		if n.Op == ast.OpNeg {
			fc.emit(bytecode.OP_NEGATE, span)
		} else {
			fc.emit(bytecode.OP_NOT, span)
		}

	case *ast.Binary:
		op, ok := binOpcodes[n.Op]
		if !ok {
			fc.c.errorf(span, "Append is not supported")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		fc.compileExpr(n.X)
		fc.compileExpr(n.Y)
		fc.emit(op, span)

	case *ast.Logical:
		fc.compileLogical(n, span)

	case *ast.Assign:
		fc.compileAssign(n, span)

	case *ast.Call:
		fc.compileExpr(n.Callee)
		if len(n.Args) > 255 {
			fc.c.errorf(span, "Too many arguments")
			return
		}
		for _, arg := range n.Args {
			fc.compileExpr(arg)
		}
		fc.emit(bytecode.OP_CALL, span)
		fc.chunk.PushU8(uint8(len(n.Args)))

	case *ast.IndexInto:
		fc.compileExpr(n.Base)
		if n.Index.At != nil {
			fc.compileExpr(n.Index.At)
			fc.emit(bytecode.OP_READ_INDEX, span)
		} else {
			fc.compileSliceParts(n.Index.Slice, span)
			fc.emit(bytecode.OP_READ_SLICE, span)
		}

	case *ast.ListExpr:
		if n.Range != nil {
			fc.compileSliceParts(n.Range, span)
			fc.emit(bytecode.OP_LIST_FROM_SLICE, span)
			return
		}
		if len(n.Elems) > 255 {
			fc.c.errorf(span, "List literals are limited to 255 elements")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		for _, el := range n.Elems {
			fc.compileExpr(el)
		}
		fc.emit(bytecode.OP_LIST_FROM_VALUES, span)
		fc.chunk.PushU8(uint8(len(n.Elems)))

	case *ast.Block:
		fc.beginScope()
		fc.compileStmts(n.Stmts)
		if !n.Stmts.Output {
			fc.emit(bytecode.OP_NIL, span)
		}
		fc.endScope()

	case *ast.If:
		fc.compileIf(n, span)

	case *ast.While:
		fc.compileWhile(n, span)

	case *ast.For:
		fc.compileFor(n, span)

	case *ast.Break:
		loop := fc.currentLoop()
		if loop == nil {
			fc.c.errorf(span, "Cannot break outside of a loop")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		loop.breakJumps = append(loop.breakJumps, fc.chunk.EmitJump(bytecode.OP_JUMP, span))

	case *ast.Continue:
		loop := fc.currentLoop()
		if loop == nil {
			fc.c.errorf(span, "Cannot continue outside of a loop")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		fc.chunk.EmitLoop(loop.continueTarget, span)

	case *ast.Return:
		if fc.fn == nil {
			fc.c.errorf(span, "Cannot return outside of a function")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		if n.Expr != nil {
			fc.compileExpr(n.Expr)
		} else {
			fc.emit(bytecode.OP_NIL, span)
		}
		fc.emit(bytecode.OP_RETURN, span)

	case *ast.FunctionDef:
		fc.compileFunction(n, span)

	case *ast.Tuple:
		fc.c.errorf(span, "Tuple expressions are not supported")
		fc.emit(bytecode.OP_NIL, span)

	case *ast.Match:
		fc.c.errorf(span, "Match expressions are not supported")
		fc.emit(bytecode.OP_NIL, span)
	}
}

func (fc *funcCompiler) compileVarRead(name string, span token.Span) {
	if slot, isPtr, ok := fc.resolveLocal(name); ok {
		if isPtr {
			fc.emit(bytecode.OP_READ_POINTER, span)
		} else {
			fc.emit(bytecode.OP_READ_LOCAL, span)
		}
		fc.chunk.PushU8(slot)
		return
	}
	if idx := fc.info.UpvalueIndex(name); idx >= 0 {
		fc.emit(bytecode.OP_READ_UPVALUE, span)
		fc.chunk.PushU8(uint8(idx))
		return
	}
	if slot, ok := fc.c.globalSlots[name]; ok {
		fc.emit(bytecode.OP_READ_GLOBAL, span)
		fc.chunk.PushU16(slot)
		return
	}
	fc.c.errorf(span, "Var '%s' is not declared", name)
	fc.emit(bytecode.OP_NIL, span)
}

// compileVarWrite stores the stack top into the named binding, keeping
// the value on the stack.
func (fc *funcCompiler) compileVarWrite(name string, span token.Span) {
	if slot, isPtr, ok := fc.resolveLocal(name); ok {
		fc.emitLocalStore(slot, isPtr, span)
		return
	}
	if idx := fc.info.UpvalueIndex(name); idx >= 0 {
		fc.emit(bytecode.OP_ASSIGN_UPVALUE, span)
		fc.chunk.PushU8(uint8(idx))
		return
	}
	if slot, ok := fc.c.globalSlots[name]; ok {
		fc.emit(bytecode.OP_ASSIGN_GLOBAL, span)
		fc.chunk.PushU16(slot)
		return
	}
	fc.c.errorf(span, "Var '%s' is not declared", name)
}

func (fc *funcCompiler) compileAssign(n *ast.Assign, span token.Span) {
	switch t := n.Target.(type) {
	case *ast.VarLV:
		fc.compileExpr(n.Expr)
		fc.compileVarWrite(t.Name, span)
	case *ast.IndexLV:
		if t.Index.Slice != nil {
			fc.c.errorf(span, "Slice assignment is not supported")
			fc.emit(bytecode.OP_NIL, span)
			return
		}
		fc.compileExpr(t.Base)
		fc.compileExpr(t.Index.At)
		fc.compileExpr(n.Expr)
		fc.emit(bytecode.OP_ASSIGN_INDEX, span)
	case *ast.TupleLV:
		fc.c.errorf(span, "Tuple assignment is not supported")
		fc.emit(bytecode.OP_NIL, span)
	case *ast.ConstantLV:
		fc.c.errorf(span, "Constant patterns are not supported")
		fc.emit(bytecode.OP_NIL, span)
	}
}

// compileLogical short-circuits: the left value is kept as the result
// when it already decides the outcome.
func (fc *funcCompiler) compileLogical(n *ast.Logical, span token.Span) {
	fc.compileExpr(n.X)
	if n.Op == ast.OpAnd {
		short := fc.chunk.EmitJump(bytecode.OP_JUMP_IF_FALSE_KEEP, span)
		fc.emit(bytecode.OP_DISCARD, span)
		fc.compileExpr(n.Y)
		fc.chunk.PatchJump(short)
		return
	}
	elseJump := fc.chunk.EmitJump(bytecode.OP_JUMP_IF_FALSE_KEEP, span)
	short := fc.chunk.EmitJump(bytecode.OP_JUMP, span)
	fc.chunk.PatchJump(elseJump)
	fc.emit(bytecode.OP_DISCARD, span)
	fc.compileExpr(n.Y)
	fc.chunk.PatchJump(short)
}

func (fc *funcCompiler) compileIf(n *ast.If, span token.Span) {
	fc.compileExpr(n.Pred)
	elseJump := fc.chunk.EmitJump(bytecode.OP_JUMP_IF_FALSE, span)
	fc.compileExpr(n.Then)
	endJump := fc.chunk.EmitJump(bytecode.OP_JUMP, span)
	fc.chunk.PatchJump(elseJump)
	if n.Else != nil {
		fc.compileExpr(n.Else)
	} else {
		fc.emit(bytecode.OP_NIL, span)
	}
	fc.chunk.PatchJump(endJump)
}

// compileWhile emits a loop whose value is always nil, whether it ends
// normally or through break.
func (fc *funcCompiler) compileWhile(n *ast.While, span token.Span) {
	loopStart := len(fc.chunk.Code)
	loop := fc.pushLoop(loopStart)

	fc.compileExpr(n.Pred)
	exitJump := fc.chunk.EmitJump(bytecode.OP_JUMP_IF_FALSE, span)
	fc.compileExpr(n.Body)
	fc.emit(bytecode.OP_DISCARD, span)
	fc.chunk.EmitLoop(loopStart, span)

	fc.chunk.PatchJump(exitJump)
	for _, pos := range loop.breakJumps {
		fc.chunk.PatchJump(pos)
	}
	fc.popLoop()
	fc.emit(bytecode.OP_NIL, span)
}

// compileFor iterates a list or string. The iteration state (collection
// and position) lives on the value stack across the body.
func (fc *funcCompiler) compileFor(n *ast.For, span token.Span) {
	fc.compileExpr(n.Coll)
	fc.emit(bytecode.OP_ITER_PREP, span)

	fc.beginScope()
	name := ""
	if v, ok := n.Target.(*ast.VarLV); ok {
		name = v.Name
	} else {
		fc.c.errorf(span, "for binding must be a name")
	}
	isPtr := fc.captured(name)
	slot, ok := fc.addLocal(name, isPtr)
	if !ok {
		fc.c.errorf(span, "Too many local variables")
		return
	}

	next := len(fc.chunk.Code)
	loop := fc.pushLoop(next)
	fc.emit(bytecode.OP_ITER_NEXT, span)
	exitPos := len(fc.chunk.Code)
	fc.chunk.PushU16(0)

	// Captured bindings get a fresh cell each iteration, so closures made
	// in the body see the value of their own round.
	if isPtr {
		fc.emitPointerInit(slot, span)
	}
	fc.emitLocalStore(slot, isPtr, span)
	fc.emit(bytecode.OP_DISCARD, span)

	fc.compileExpr(n.Body)
	fc.emit(bytecode.OP_DISCARD, span)
	fc.chunk.EmitLoop(next, span)

	fc.chunk.PatchJump(exitPos)
	for _, pos := range loop.breakJumps {
		fc.chunk.PatchJump(pos)
	}
	fc.popLoop()
	fc.endScope()

	fc.emit(bytecode.OP_DISCARD, span) // iteration position
	fc.emit(bytecode.OP_DISCARD, span) // collection
	fc.emit(bytecode.OP_NIL, span)
}

// compileSliceParts pushes start, stop and step, emitting nil for the
// components the source omits.
func (fc *funcCompiler) compileSliceParts(sl *ast.SliceIdx, span token.Span) {
	for _, part := range []*ast.ExprNode{sl.Start, sl.Stop, sl.Step} {
		if part != nil {
			fc.compileExpr(part)
		} else {
			fc.emit(bytecode.OP_NIL, span)
		}
	}
}
