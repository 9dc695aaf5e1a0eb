package ast

import (
	"github.com/xirelogy/go-sable/internal/token"
)

// Stmts is a sequence of statements. Output reports whether the final
// statement's value is the value of the whole sequence (no trailing
// semicolon), which is how blocks yield values.
type Stmts struct {
	Stmts  []StmtNode
	Output bool
}

// StmtNode is a located statement.
type StmtNode struct {
	Node Stmt
	Span token.Span
}

// ExprNode is a located expression.
type ExprNode struct {
	Node Expr
	Span token.Span
}

// Stmt is the statement sum type.
type Stmt interface{ stmtNode() }

// Decl declares an lvalue, optionally with an initializer.
type Decl struct {
	Target LValue
	Expr   *ExprNode // nil for bare `let x;`
}

// ExprStmt evaluates an expression for its value or effect.
type ExprStmt struct {
	Expr *ExprNode
}

// Invalid marks a statement the parser could not produce.
type Invalid struct{}

func (*Decl) stmtNode()     {}
func (*ExprStmt) stmtNode() {}
func (*Invalid) stmtNode()  {}

// BinOp enumerates binary operators.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMult
	OpDiv
	OpMod
	OpPow
	OpEq
	OpNeq
	OpLt
	OpLeq
	OpGt
	OpGeq
	OpAppend
)

// UnOp enumerates unary operators.
type UnOp int

const (
	OpNot UnOp = iota
	OpNeg
)

// LogicalOp enumerates short-circuiting operators.
type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
)

// Expr is the expression sum type.
type Expr interface{ exprNode() }

type Call struct {
	Callee *ExprNode
	Args   []*ExprNode
}

type IndexInto struct {
	Base  *ExprNode
	Index Index
}

type Binary struct {
	X  *ExprNode
	Op BinOp
	Y  *ExprNode
}

type Unary struct {
	Op UnOp
	X  *ExprNode
}

type Logical struct {
	X  *ExprNode
	Op LogicalOp
	Y  *ExprNode
}

type Assign struct {
	Target LValue
	Expr   *ExprNode
}

type Var struct {
	Name string
}

type IntLit struct{ V int64 }

type FloatLit struct{ V float64 }

type BoolLit struct{ V bool }

type StringLit struct{ V string }

type NilLit struct{}

// Block is an expression: its value is the trailing expression when
// Stmts.Output is set, nil otherwise.
type Block struct {
	Stmts Stmts
}

type If struct {
	Pred *ExprNode
	Then *ExprNode
	Else *ExprNode // nil when absent
}

type While struct {
	Pred *ExprNode
	Body *ExprNode
}

type For struct {
	Target LValue
	Coll   *ExprNode
	Body   *ExprNode
}

type Break struct{}

type Continue struct{}

type Return struct {
	Expr *ExprNode // nil returns nil
}

// ListExpr is a list literal: either explicit elements or a range slice.
type ListExpr struct {
	Elems []*ExprNode // nil when Range is set
	Range *SliceIdx
}

// FunctionDef is a function literal. Name is empty for anonymous functions;
// `fn name(...)` statements are desugared to a declaration by the parser.
type FunctionDef struct {
	Name   string
	Params []string
	Body   *ExprNode
}

// Tuple is parsed in lvalue positions only; the compiler rejects it.
type Tuple struct {
	Elems []*ExprNode
}

// Match is reserved; the compiler and interpreter reject it.
type Match struct {
	Subject *ExprNode
}

func (*Call) exprNode()        {}
func (*IndexInto) exprNode()   {}
func (*Binary) exprNode()      {}
func (*Unary) exprNode()       {}
func (*Logical) exprNode()     {}
func (*Assign) exprNode()      {}
func (*Var) exprNode()         {}
func (*IntLit) exprNode()      {}
func (*FloatLit) exprNode()    {}
func (*BoolLit) exprNode()     {}
func (*StringLit) exprNode()   {}
func (*NilLit) exprNode()      {}
func (*Block) exprNode()       {}
func (*If) exprNode()          {}
func (*While) exprNode()       {}
func (*For) exprNode()         {}
func (*Break) exprNode()       {}
func (*Continue) exprNode()    {}
func (*Return) exprNode()      {}
func (*ListExpr) exprNode()    {}
func (*FunctionDef) exprNode() {}
func (*Tuple) exprNode()       {}
func (*Match) exprNode()       {}

// LValue is the assignment-target sum type.
type LValue interface{ lvalueNode() }

type VarLV struct {
	Name string
}

type IndexLV struct {
	Base  *ExprNode
	Index Index
}

type TupleLV struct {
	Elems []LValue
}

// ConstantLV appears in destructuring patterns; only the global pre-pass
// traverses it.
type ConstantLV struct{}

func (*VarLV) lvalueNode()      {}
func (*IndexLV) lvalueNode()    {}
func (*TupleLV) lvalueNode()    {}
func (*ConstantLV) lvalueNode() {}

// Index selects either a single element or a slice.
type Index struct {
	At    *ExprNode // set for xs[i]
	Slice *SliceIdx // set for xs[a:b:c]
}

// SliceIdx holds the three optional slice components.
type SliceIdx struct {
	Start *ExprNode
	Stop  *ExprNode
	Step  *ExprNode
}
