package parser

import (
	"fmt"
	"strconv"

	"github.com/xirelogy/go-sable/internal/ast"
	"github.com/xirelogy/go-sable/internal/lexer"
	"github.com/xirelogy/go-sable/internal/token"
)

// Parser turns a token stream into located syntax trees. Expressions are
// parsed with curToken resting on the last token of the finished node.
type Parser struct {
	l         *lexer.Lexer
	curToken  token.Token
	peekToken token.Token
	errors    []string
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []string{},
	}
	// Read two tokens, so curToken and peekToken are set
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// ParseProgram parses the whole input as a statement sequence. A trailing
// expression without a semicolon becomes the program's output value.
func (p *Parser) ParseProgram() ast.Stmts {
	return p.parseStmtsUntil(token.EOF)
}

func (p *Parser) parseStmtsUntil(end token.Type) ast.Stmts {
	out := ast.Stmts{}

	for {
		if p.curToken.Type == token.Semicolon {
			p.nextToken()
			continue
		}
		if p.curToken.Type == end || p.curToken.Type == token.EOF {
			break
		}

		stmt, isExpr, blockish := p.parseStatement()
		out.Stmts = append(out.Stmts, stmt)
		out.Output = false

		if isExpr {
			switch {
			case p.peekToken.Type == token.Semicolon:
				p.nextToken() // onto ';'
			case p.peekToken.Type == end:
				out.Output = true
			case blockish:
				// block-shaped expressions stand alone without ';'
			default:
				p.errorf(p.peekToken.Pos, "expected ';' after expression, got %s", p.peekToken.Type)
			}
		}
		p.nextToken()
	}
	return out
}

// parseStatement returns the statement along with whether it was a bare
// expression and whether that expression is block-shaped.
func (p *Parser) parseStatement() (ast.StmtNode, bool, bool) {
	switch {
	case p.curToken.Type == token.Let:
		return p.parseLet(), false, false
	case p.curToken.Type == token.Fn && p.peekToken.Type == token.Ident:
		return p.parseFnDecl(), false, false
	default:
		start := p.curToken.Pos
		expr := p.parseExpression(lowest)
		if expr == nil {
			p.nextToken()
			return ast.StmtNode{Node: &ast.Invalid{}, Span: token.Span{Start: start, End: p.curToken.End}}, false, false
		}
		stmt := ast.StmtNode{Node: &ast.ExprStmt{Expr: expr}, Span: expr.Span}
		return stmt, true, blockShaped(expr)
	}
}

func blockShaped(e *ast.ExprNode) bool {
	switch e.Node.(type) {
	case *ast.Block, *ast.If, *ast.While, *ast.For:
		return true
	default:
		return false
	}
}

// parseLet parses `let name;` and `let name = expr;`, consuming the
// trailing semicolon.
func (p *Parser) parseLet() ast.StmtNode {
	start := p.curToken.Pos
	if !p.expectPeek(token.Ident) {
		return ast.StmtNode{Node: &ast.Invalid{}, Span: p.curToken.Span()}
	}
	p.nextToken()
	target := &ast.VarLV{Name: p.curToken.Literal}

	var init *ast.ExprNode
	if p.peekToken.Type == token.Assign {
		p.nextToken() // onto '='
		p.nextToken() // expression start
		init = p.parseExpression(lowest)
	}
	if !p.expectPeek(token.Semicolon) {
		return ast.StmtNode{Node: &ast.Decl{Target: target, Expr: init}, Span: token.Span{Start: start, End: p.curToken.End}}
	}
	p.nextToken() // onto ';'
	return ast.StmtNode{
		Node: &ast.Decl{Target: target, Expr: init},
		Span: token.Span{Start: start, End: p.curToken.End},
	}
}

// parseFnDecl desugars `fn name(params) { body }` into a declaration of
// name bound to a function literal. The name is visible inside the body,
// which is what makes recursion work.
func (p *Parser) parseFnDecl() ast.StmtNode {
	start := p.curToken.Pos
	p.nextToken() // onto the name
	name := p.curToken.Literal

	fn := p.parseFunctionRest(start, name)
	if fn == nil {
		return ast.StmtNode{Node: &ast.Invalid{}, Span: token.Span{Start: start, End: p.curToken.End}}
	}
	return ast.StmtNode{
		Node: &ast.Decl{Target: &ast.VarLV{Name: name}, Expr: fn},
		Span: fn.Span,
	}
}

// parseFunctionRest parses `(params) { body }` with curToken on the token
// before '('.
func (p *Parser) parseFunctionRest(start token.Position, name string) *ast.ExprNode {
	if !p.expectPeek(token.LParen) {
		return nil
	}
	p.nextToken() // onto '('
	p.nextToken() // first param or ')'
	params := p.parseParamList()
	if p.curToken.Type != token.RParen {
		if !p.expectPeek(token.RParen) {
			return nil
		}
		p.nextToken() // onto ')'
	}
	if !p.expectPeek(token.LBrace) {
		return nil
	}
	p.nextToken() // onto '{'
	body := p.parseBlockExpr()
	return &ast.ExprNode{
		Node: &ast.FunctionDef{Name: name, Params: params, Body: body},
		Span: token.Span{Start: start, End: body.Span.End},
	}
}

func (p *Parser) parseParamList() []string {
	params := []string{}
	if p.curToken.Type == token.RParen {
		return params
	}
	if p.curToken.Type != token.Ident {
		p.errorf(p.curToken.Pos, "expected parameter name, got %s", p.curToken.Type)
		return params
	}
	params = append(params, p.curToken.Literal)
	for p.peekToken.Type == token.Comma {
		p.nextToken()
		p.nextToken()
		if p.curToken.Type != token.Ident {
			p.errorf(p.curToken.Pos, "expected parameter name, got %s", p.curToken.Type)
			return params
		}
		params = append(params, p.curToken.Literal)
	}
	return params
}

func (p *Parser) parseExpression(precedence int) *ast.ExprNode {
	var left *ast.ExprNode
	start := p.curToken.Pos

	switch p.curToken.Type {
	case token.Ident:
		left = p.node(&ast.Var{Name: p.curToken.Literal}, start)
	case token.Int:
		v, err := strconv.ParseInt(p.curToken.Literal, 10, 64)
		if err != nil {
			p.errorf(p.curToken.Pos, "invalid integer literal %q", p.curToken.Literal)
			return nil
		}
		left = p.node(&ast.IntLit{V: v}, start)
	case token.Float:
		v, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			p.errorf(p.curToken.Pos, "invalid float literal %q", p.curToken.Literal)
			return nil
		}
		left = p.node(&ast.FloatLit{V: v}, start)
	case token.String:
		left = p.node(&ast.StringLit{V: p.curToken.Literal}, start)
	case token.True:
		left = p.node(&ast.BoolLit{V: true}, start)
	case token.False:
		left = p.node(&ast.BoolLit{V: false}, start)
	case token.Nil:
		left = p.node(&ast.NilLit{}, start)
	case token.Bang:
		left = p.parsePrefix(ast.OpNot, start)
	case token.Minus:
		left = p.parsePrefix(ast.OpNeg, start)
	case token.LParen:
		p.nextToken()
		inner := p.parseExpression(lowest)
		if inner == nil {
			return nil
		}
		if !p.expectPeek(token.RParen) {
			return nil
		}
		p.nextToken() // onto ')'
		left = &ast.ExprNode{Node: inner.Node, Span: token.Span{Start: start, End: p.curToken.End}}
	case token.LBracket:
		left = p.parseListLiteral()
	case token.LBrace:
		left = p.parseBlockExpr()
	case token.If:
		left = p.parseIfExpr()
	case token.While:
		left = p.parseWhileExpr()
	case token.For:
		left = p.parseForExpr()
	case token.Fn:
		name := ""
		if p.peekToken.Type == token.Ident {
			p.nextToken()
			name = p.curToken.Literal
		}
		left = p.parseFunctionRest(start, name)
	case token.Break:
		left = p.node(&ast.Break{}, start)
	case token.Continue:
		left = p.node(&ast.Continue{}, start)
	case token.Return:
		left = p.parseReturnExpr()
	default:
		p.errorf(p.curToken.Pos, "unexpected token %s", p.curToken.Type)
		return nil
	}

	if left == nil {
		return nil
	}

	for precedence < p.peekPrecedence() {
		op := p.peekToken.Type
		p.nextToken()
		switch op {
		case token.Assign:
			left = p.parseAssignExpr(left)
		case token.Or:
			left = p.parseLogicalExpr(left, ast.OpOr)
		case token.And:
			left = p.parseLogicalExpr(left, ast.OpAnd)
		case token.Plus, token.Minus, token.Star, token.Slash, token.Mod, token.Power,
			token.Equal, token.NotEqual,
			token.Less, token.LessEqual, token.Greater, token.GreaterEqual:
			left = p.parseInfixExpr(left)
		case token.LParen:
			left = p.parseCallExpr(left)
		case token.LBracket:
			left = p.parseIndexExpr(left)
		default:
			return left
		}
		if left == nil {
			return nil
		}
	}

	return left
}

func (p *Parser) node(e ast.Expr, start token.Position) *ast.ExprNode {
	return &ast.ExprNode{Node: e, Span: token.Span{Start: start, End: p.curToken.End}}
}

func (p *Parser) parsePrefix(op ast.UnOp, start token.Position) *ast.ExprNode {
	p.nextToken()
	operand := p.parseExpression(prefixPrecedence)
	if operand == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.Unary{Op: op, X: operand},
		Span: token.Span{Start: start, End: operand.Span.End},
	}
}

func (p *Parser) parseInfixExpr(left *ast.ExprNode) *ast.ExprNode {
	op, ok := binOps[p.curToken.Type]
	if !ok {
		p.errorf(p.curToken.Pos, "unknown operator %s", p.curToken.Type)
		return nil
	}
	precedence := p.curPrecedence()
	if p.curToken.Type == token.Power {
		precedence-- // right associative
	}
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.Binary{X: left, Op: op, Y: right},
		Span: token.Span{Start: left.Span.Start, End: right.Span.End},
	}
}

func (p *Parser) parseLogicalExpr(left *ast.ExprNode, op ast.LogicalOp) *ast.ExprNode {
	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	if right == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.Logical{X: left, Op: op, Y: right},
		Span: token.Span{Start: left.Span.Start, End: right.Span.End},
	}
}

func (p *Parser) parseAssignExpr(left *ast.ExprNode) *ast.ExprNode {
	target := exprToLValue(left)
	if target == nil {
		p.errorf(p.curToken.Pos, "invalid assignment target")
		return nil
	}
	p.nextToken()
	value := p.parseExpression(assignPrecedence - 1)
	if value == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.Assign{Target: target, Expr: value},
		Span: token.Span{Start: left.Span.Start, End: value.Span.End},
	}
}

func exprToLValue(e *ast.ExprNode) ast.LValue {
	switch n := e.Node.(type) {
	case *ast.Var:
		return &ast.VarLV{Name: n.Name}
	case *ast.IndexInto:
		return &ast.IndexLV{Base: n.Base, Index: n.Index}
	case *ast.Tuple:
		elems := make([]ast.LValue, 0, len(n.Elems))
		for _, el := range n.Elems {
			lv := exprToLValue(el)
			if lv == nil {
				return nil
			}
			elems = append(elems, lv)
		}
		return &ast.TupleLV{Elems: elems}
	default:
		return nil
	}
}

func (p *Parser) parseCallExpr(callee *ast.ExprNode) *ast.ExprNode {
	p.nextToken() // first argument or ')'
	args := p.parseExpressionList(token.RParen)
	return &ast.ExprNode{
		Node: &ast.Call{Callee: callee, Args: args},
		Span: token.Span{Start: callee.Span.Start, End: p.curToken.End},
	}
}

func (p *Parser) parseExpressionList(end token.Type) []*ast.ExprNode {
	list := []*ast.ExprNode{}
	if p.curToken.Type == end {
		return list
	}
	for {
		exp := p.parseExpression(lowest)
		if exp == nil {
			return list
		}
		list = append(list, exp)
		if p.peekToken.Type == token.Comma {
			p.nextToken() // onto ','
			p.nextToken() // next expression start
			if p.curToken.Type == end {
				break // trailing comma
			}
			continue
		}
		if p.peekToken.Type == end {
			p.nextToken() // onto end
		} else {
			p.errorf(p.peekToken.Pos, "expected ',' or %s, got %s", end, p.peekToken.Type)
		}
		break
	}
	return list
}

// parseIndexExpr parses xs[i] and xs[a:b:c] with curToken on '['.
func (p *Parser) parseIndexExpr(left *ast.ExprNode) *ast.ExprNode {
	p.nextToken()
	if p.curToken.Type == token.RBracket {
		p.errorf(p.curToken.Pos, "expected index expression")
		return nil
	}

	var idx ast.Index
	if p.curToken.Type == token.Colon {
		slice := p.parseSliceRest(nil)
		if slice == nil {
			return nil
		}
		idx = ast.Index{Slice: slice}
	} else {
		first := p.parseExpression(lowest)
		if first == nil {
			return nil
		}
		if p.peekToken.Type == token.Colon {
			p.nextToken() // onto ':'
			slice := p.parseSliceRest(first)
			if slice == nil {
				return nil
			}
			idx = ast.Index{Slice: slice}
		} else {
			if !p.expectPeek(token.RBracket) {
				return nil
			}
			p.nextToken() // onto ']'
			idx = ast.Index{At: first}
		}
	}
	return &ast.ExprNode{
		Node: &ast.IndexInto{Base: left, Index: idx},
		Span: token.Span{Start: left.Span.Start, End: p.curToken.End},
	}
}

// parseSliceRest parses the remainder of a slice after the first ':'
// (curToken on it): optional stop, optional ':' step, then ']'.
// It leaves curToken on the ']'.
func (p *Parser) parseSliceRest(start *ast.ExprNode) *ast.SliceIdx {
	slice := &ast.SliceIdx{Start: start}

	if p.peekToken.Type != token.Colon && p.peekToken.Type != token.RBracket {
		p.nextToken()
		slice.Stop = p.parseExpression(lowest)
		if slice.Stop == nil {
			return nil
		}
	}
	if p.peekToken.Type == token.Colon {
		p.nextToken() // onto second ':'
		if p.peekToken.Type != token.RBracket {
			p.nextToken()
			slice.Step = p.parseExpression(lowest)
			if slice.Step == nil {
				return nil
			}
		}
	}
	if !p.expectPeek(token.RBracket) {
		return nil
	}
	p.nextToken() // onto ']'
	return slice
}

// parseListLiteral parses [a, b, c] and range forms like [1:10:2] with
// curToken on '['.
func (p *Parser) parseListLiteral() *ast.ExprNode {
	start := p.curToken.Pos

	if p.peekToken.Type == token.RBracket {
		p.nextToken() // onto ']'
		return p.node(&ast.ListExpr{Elems: []*ast.ExprNode{}}, start)
	}

	p.nextToken()
	if p.curToken.Type == token.Colon {
		slice := p.parseSliceRest(nil)
		if slice == nil {
			return nil
		}
		return p.node(&ast.ListExpr{Range: slice}, start)
	}

	first := p.parseExpression(lowest)
	if first == nil {
		return nil
	}
	if p.peekToken.Type == token.Colon {
		p.nextToken() // onto ':'
		slice := p.parseSliceRest(first)
		if slice == nil {
			return nil
		}
		return p.node(&ast.ListExpr{Range: slice}, start)
	}

	elems := []*ast.ExprNode{first}
	for p.peekToken.Type == token.Comma {
		p.nextToken() // onto ','
		p.nextToken() // next element start
		if p.curToken.Type == token.RBracket {
			return p.node(&ast.ListExpr{Elems: elems}, start)
		}
		el := p.parseExpression(lowest)
		if el == nil {
			return nil
		}
		elems = append(elems, el)
	}
	if !p.expectPeek(token.RBracket) {
		return nil
	}
	p.nextToken() // onto ']'
	return p.node(&ast.ListExpr{Elems: elems}, start)
}

// parseBlockExpr parses { stmts } with curToken on '{'. A trailing
// expression without ';' becomes the block's value.
func (p *Parser) parseBlockExpr() *ast.ExprNode {
	start := p.curToken.Pos
	p.nextToken()
	stmts := p.parseStmtsUntil(token.RBrace)
	if p.curToken.Type != token.RBrace {
		p.errorf(p.curToken.Pos, "expected '}' to close block")
	}
	return p.node(&ast.Block{Stmts: stmts}, start)
}

func (p *Parser) parseIfExpr() *ast.ExprNode {
	start := p.curToken.Pos
	if !p.expectPeek(token.LParen) {
		return nil
	}
	p.nextToken() // onto '('
	p.nextToken() // predicate start
	pred := p.parseExpression(lowest)
	if pred == nil {
		return nil
	}
	if !p.expectPeek(token.RParen) {
		return nil
	}
	p.nextToken() // onto ')'
	p.nextToken() // then-branch start
	then := p.parseExpression(lowest)
	if then == nil {
		return nil
	}

	var alt *ast.ExprNode
	if p.peekToken.Type == token.Else {
		p.nextToken() // onto 'else'
		p.nextToken() // else-branch start
		alt = p.parseExpression(lowest)
		if alt == nil {
			return nil
		}
	}

	end := then.Span.End
	if alt != nil {
		end = alt.Span.End
	}
	return &ast.ExprNode{
		Node: &ast.If{Pred: pred, Then: then, Else: alt},
		Span: token.Span{Start: start, End: end},
	}
}

func (p *Parser) parseWhileExpr() *ast.ExprNode {
	start := p.curToken.Pos
	if !p.expectPeek(token.LParen) {
		return nil
	}
	p.nextToken() // onto '('
	p.nextToken() // predicate start
	pred := p.parseExpression(lowest)
	if pred == nil {
		return nil
	}
	if !p.expectPeek(token.RParen) {
		return nil
	}
	p.nextToken() // onto ')'
	p.nextToken() // body start
	body := p.parseExpression(lowest)
	if body == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.While{Pred: pred, Body: body},
		Span: token.Span{Start: start, End: body.Span.End},
	}
}

func (p *Parser) parseForExpr() *ast.ExprNode {
	start := p.curToken.Pos
	if !p.expectPeek(token.Ident) {
		return nil
	}
	p.nextToken() // onto binding name
	target := &ast.VarLV{Name: p.curToken.Literal}
	if !p.expectPeek(token.In) {
		return nil
	}
	p.nextToken() // onto 'in'
	p.nextToken() // collection start
	coll := p.parseExpression(lowest)
	if coll == nil {
		return nil
	}
	p.nextToken() // body start
	body := p.parseExpression(lowest)
	if body == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.For{Target: target, Coll: coll, Body: body},
		Span: token.Span{Start: start, End: body.Span.End},
	}
}

func (p *Parser) parseReturnExpr() *ast.ExprNode {
	start := p.curToken.Pos
	if p.returnIsBare(p.peekToken.Type) {
		return p.node(&ast.Return{}, start)
	}
	p.nextToken()
	value := p.parseExpression(lowest)
	if value == nil {
		return nil
	}
	return &ast.ExprNode{
		Node: &ast.Return{Expr: value},
		Span: token.Span{Start: start, End: value.Span.End},
	}
}

func (p *Parser) returnIsBare(t token.Type) bool {
	switch t {
	case token.Semicolon, token.RBrace, token.RParen, token.RBracket, token.Comma, token.EOF:
		return true
	default:
		return false
	}
}

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekToken.Type == t {
		return true
	}
	p.errorf(p.peekToken.Pos, "expected next token to be %s, got %s", t, p.peekToken.Type)
	return false
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return lowest
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return lowest
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Sprintf("%d:%d: %s", pos.Line, pos.Column, msg))
}

const (
	lowest = iota + 1
	assignPrecedence
	orPrecedence
	andPrecedence
	equalPrecedence
	lessGreaterPrecedence
	sumPrecedence
	productPrecedence
	prefixPrecedence
	powerPrecedence
	callPrecedence
)

var precedences = map[token.Type]int{
	token.Assign:       assignPrecedence,
	token.Or:           orPrecedence,
	token.And:          andPrecedence,
	token.Equal:        equalPrecedence,
	token.NotEqual:     equalPrecedence,
	token.Less:         lessGreaterPrecedence,
	token.LessEqual:    lessGreaterPrecedence,
	token.Greater:      lessGreaterPrecedence,
	token.GreaterEqual: lessGreaterPrecedence,
	token.Plus:         sumPrecedence,
	token.Minus:        sumPrecedence,
	token.Star:         productPrecedence,
	token.Slash:        productPrecedence,
	token.Mod:          productPrecedence,
	token.Power:        powerPrecedence,
	token.LParen:       callPrecedence,
	token.LBracket:     callPrecedence,
}

var binOps = map[token.Type]ast.BinOp{
	token.Plus:         ast.OpAdd,
	token.Minus:        ast.OpSub,
	token.Star:         ast.OpMult,
	token.Slash:        ast.OpDiv,
	token.Mod:          ast.OpMod,
	token.Power:        ast.OpPow,
	token.Equal:        ast.OpEq,
	token.NotEqual:     ast.OpNeq,
	token.Less:         ast.OpLt,
	token.LessEqual:    ast.OpLeq,
	token.Greater:      ast.OpGt,
	token.GreaterEqual: ast.OpGeq,
}
