package analysis

import (
	"github.com/xirelogy/go-sable/internal/ast"
)

// FuncInfo is the closure summary for one function body.
//
// Upvalues lists, in first-use order, the names the body reaches from
// enclosing function scopes. Captured holds the names of this function's
// own locals that some inner function reaches; those locals are stored in
// heap cells instead of plain stack slots. Capture is tracked per name,
// so shadowed locals sharing a name may be boxed together; cells are
// transparent, so this only costs an indirection.
type FuncInfo struct {
	Upvalues []string
	Captured map[string]bool
}

// Info is the result of analyzing a whole program.
//
// Script describes the top-level code, which runs in a frame of its own:
// names declared inside nested top-level blocks are script locals and can
// be captured just like function locals. Names declared at the outermost
// level are globals and are never captured.
type Info struct {
	Script *FuncInfo
	Funcs  map[*ast.FunctionDef]*FuncInfo
}

// UpvalueIndex returns the position of name in the upvalue list, or -1.
func (fi *FuncInfo) UpvalueIndex(name string) int {
	for i, n := range fi.Upvalues {
		if n == name {
			return i
		}
	}
	return -1
}

// Analyze walks the program and computes capture information for every
// function literal.
func Analyze(prog ast.Stmts) *Info {
	a := &analyzer{
		info: &Info{
			Script: newFuncInfo(),
			Funcs:  map[*ast.FunctionDef]*FuncInfo{},
		},
	}
	a.stack = []*funcCtx{{
		info:   a.info.Script,
		script: true,
		scopes: []map[string]bool{{}},
	}}
	a.walkStmts(prog)
	return a.info
}

func newFuncInfo() *FuncInfo {
	return &FuncInfo{Captured: map[string]bool{}}
}

type funcCtx struct {
	info   *FuncInfo
	script bool
	scopes []map[string]bool
}

type analyzer struct {
	stack []*funcCtx
	info  *Info
}

func (a *analyzer) current() *funcCtx {
	return a.stack[len(a.stack)-1]
}

func (a *analyzer) declare(name string) {
	ctx := a.current()
	ctx.scopes[len(ctx.scopes)-1][name] = true
}

// resolve records capture bookkeeping for a name reference. A name found
// in an enclosing function marks that function's local as captured and
// threads the name through the upvalue list of every function in between.
func (a *analyzer) resolve(name string) {
	ctx := a.current()
	for i := len(ctx.scopes) - 1; i >= 0; i-- {
		if ctx.scopes[i][name] {
			return // plain local (or global at script depth 0)
		}
	}

	for j := len(a.stack) - 2; j >= 0; j-- {
		outer := a.stack[j]
		for i := len(outer.scopes) - 1; i >= 0; i-- {
			if !outer.scopes[i][name] {
				continue
			}
			if outer.script && i == 0 {
				return // global, reachable from anywhere
			}
			outer.info.Captured[name] = true
			for k := j + 1; k < len(a.stack); k++ {
				addUpvalue(a.stack[k].info, name)
			}
			return
		}
	}
	// Unknown names are late-bound globals; the compiler decides whether
	// they exist.
}

func addUpvalue(fi *FuncInfo, name string) {
	if fi.UpvalueIndex(name) < 0 {
		fi.Upvalues = append(fi.Upvalues, name)
	}
}

func (a *analyzer) walkStmts(stmts ast.Stmts) {
	for _, s := range stmts.Stmts {
		a.walkStmt(s)
	}
}

func (a *analyzer) walkStmt(s ast.StmtNode) {
	switch n := s.Node.(type) {
	case *ast.Decl:
		if n.Expr != nil {
			if _, isFn := n.Expr.Node.(*ast.FunctionDef); isFn {
				// the name is visible inside the body, for recursion
				a.declareLValue(n.Target)
				a.walkExpr(n.Expr)
				return
			}
			a.walkExpr(n.Expr)
		}
		a.declareLValue(n.Target)
	case *ast.ExprStmt:
		a.walkExpr(n.Expr)
	case *ast.Invalid:
	}
}

func (a *analyzer) declareLValue(lv ast.LValue) {
	switch t := lv.(type) {
	case *ast.VarLV:
		a.declare(t.Name)
	case *ast.TupleLV:
		for _, el := range t.Elems {
			a.declareLValue(el)
		}
	case *ast.IndexLV:
		a.walkExpr(t.Base)
		a.walkIndex(t.Index)
	case *ast.ConstantLV:
	}
}

func (a *analyzer) walkLValue(lv ast.LValue) {
	switch t := lv.(type) {
	case *ast.VarLV:
		a.resolve(t.Name)
	case *ast.TupleLV:
		for _, el := range t.Elems {
			a.walkLValue(el)
		}
	case *ast.IndexLV:
		a.walkExpr(t.Base)
		a.walkIndex(t.Index)
	case *ast.ConstantLV:
	}
}

func (a *analyzer) walkIndex(idx ast.Index) {
	if idx.At != nil {
		a.walkExpr(idx.At)
	}
	if idx.Slice != nil {
		a.walkSlice(idx.Slice)
	}
}

func (a *analyzer) walkSlice(sl *ast.SliceIdx) {
	if sl.Start != nil {
		a.walkExpr(sl.Start)
	}
	if sl.Stop != nil {
		a.walkExpr(sl.Stop)
	}
	if sl.Step != nil {
		a.walkExpr(sl.Step)
	}
}

func (a *analyzer) walkExpr(e *ast.ExprNode) {
	if e == nil {
		return
	}
	switch n := e.Node.(type) {
	case *ast.Var:
		a.resolve(n.Name)
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.NilLit,
		*ast.Break, *ast.Continue:
	case *ast.Return:
		a.walkExpr(n.Expr)
	case *ast.Unary:
		a.walkExpr(n.X)
	case *ast.Binary:
		a.walkExpr(n.X)
		a.walkExpr(n.Y)
	case *ast.Logical:
		a.walkExpr(n.X)
		a.walkExpr(n.Y)
	case *ast.Assign:
		a.walkExpr(n.Expr)
		a.walkLValue(n.Target)
	case *ast.Call:
		a.walkExpr(n.Callee)
		for _, arg := range n.Args {
			a.walkExpr(arg)
		}
	case *ast.IndexInto:
		a.walkExpr(n.Base)
		a.walkIndex(n.Index)
	case *ast.ListExpr:
		for _, el := range n.Elems {
			a.walkExpr(el)
		}
		if n.Range != nil {
			a.walkSlice(n.Range)
		}
	case *ast.Tuple:
		for _, el := range n.Elems {
			a.walkExpr(el)
		}
	case *ast.Block:
		a.pushScope()
		a.walkStmts(n.Stmts)
		a.popScope()
	case *ast.If:
		a.walkExpr(n.Pred)
		a.walkExpr(n.Then)
		a.walkExpr(n.Else)
	case *ast.While:
		a.walkExpr(n.Pred)
		a.walkExpr(n.Body)
	case *ast.For:
		a.walkExpr(n.Coll)
		a.pushScope()
		a.declareLValue(n.Target)
		a.walkExpr(n.Body)
		a.popScope()
	case *ast.FunctionDef:
		a.walkFunction(n)
	case *ast.Match:
		a.walkExpr(n.Subject)
	}
}

func (a *analyzer) walkFunction(fn *ast.FunctionDef) {
	fi := newFuncInfo()
	a.info.Funcs[fn] = fi

	ctx := &funcCtx{info: fi, scopes: []map[string]bool{{}}}
	for _, p := range fn.Params {
		ctx.scopes[0][p] = true
	}
	a.stack = append(a.stack, ctx)
	a.walkExpr(fn.Body)
	a.stack = a.stack[:len(a.stack)-1]
}

func (a *analyzer) pushScope() {
	ctx := a.current()
	ctx.scopes = append(ctx.scopes, map[string]bool{})
}

func (a *analyzer) popScope() {
	ctx := a.current()
	ctx.scopes = ctx.scopes[:len(ctx.scopes)-1]
}
