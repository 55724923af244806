package parser

import (
	"fmt"

	"glitchscript/internal/lang/lexer"
	"glitchscript/internal/protocol"
)

// eventArity is the closed set of recognized event handler names and their
// parameter counts (spec §4.1 "event names and arities must match a closed
// set, but unknown names are accepted with a warning"). Every entry is a
// fixed parameter count.
var eventArity = map[string]int{
	"state_entry":          0,
	"state_exit":           0,
	"touch_start":          1,
	"touch":                1,
	"touch_end":            1,
	"collision_start":      1,
	"collision":            1,
	"collision_end":        1,
	"land_collision":       1,
	"land_collision_start": 1,
	"land_collision_end":   1,
	"sensor":               1,
	"no_sensor":            0,
	"listen":               4,
	"link_message":         4,
	"timer":                0,
	"http_response":        4,
	"http_request":         3,
	"dataserver":           2,
	"dialog_response":      3,
	"run_time_permissions": 1,
	"money":                2,
	"attach":               1,
	"detach":               0,
	"on_rez":               1,
	"changed":              1,
	"moving_start":         0,
	"moving_end":           0,
	"at_target":            3,
	"not_at_target":        0,
	"object_rez":           1,
}

// Parser is a recursive-descent, precedence-climbing parser. It can run in
// fail-fast mode (returns on the first error) or diagnostic-collecting mode
// (keeps parsing top-level declarations, recording each failure and
// resuming at the next one), spec §4.1 "recoverable per top-level
// declaration".
type Parser struct {
	tokens      []lexer.Token
	pos         int
	file        string
	CollectMode bool
	Diagnostics protocol.Diagnostics
}

func New(tokens []lexer.Token, file string) *Parser {
	return &Parser{tokens: tokens, file: file}
}

func (p *Parser) cur() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= len(p.tokens) || idx < 0 {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[idx]
}

func (p *Parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) at(t lexer.TokenType) bool {
	return p.cur().Type == t
}

func (p *Parser) loc() (int, int) {
	c := p.cur()
	return c.Loc.Line, c.Loc.Column
}

func (p *Parser) expect(t lexer.TokenType) (lexer.Token, error) {
	if p.cur().Type != t {
		c := p.cur()
		return c, fmt.Errorf("%s: unexpected token %q", c.Loc, c.Value)
	}
	return p.advance(), nil
}

func (p *Parser) mark() int { return p.pos }
func (p *Parser) reset(m int) { p.pos = m }

// Parse parses the full token stream into a Program.
func (p *Parser) Parse() (*Program, error) {
	prog := &Program{}
	hasDefault := false

	for !p.at(lexer.EOF) {
		switch {
		case p.at(lexer.KwState) || p.at(lexer.KwDefault):
			st, err := p.parseState()
			if err != nil {
				if !p.CollectMode {
					return nil, err
				}
				line, col := p.loc()
				p.Diagnostics.Err("parse", err.Error(), protocol.Location{File: p.file, Line: line, Column: col})
				p.skipToNextTopLevel()
				continue
			}
			if st.Value == "default" {
				hasDefault = true
			}
			prog.States = append(prog.States, st)
		case p.isTypeKeyword() && p.isFunctionDecl():
			fn, err := p.parseFunctionDecl()
			if err != nil {
				if !p.CollectMode {
					return nil, err
				}
				line, col := p.loc()
				p.Diagnostics.Err("parse", err.Error(), protocol.Location{File: p.file, Line: line, Column: col})
				p.skipToNextTopLevel()
				continue
			}
			prog.Funcs = append(prog.Funcs, fn)
		case p.isTypeKeyword() || p.at(lexer.Identifier):
			gv, err := p.parseGlobalVarDecl()
			if err != nil {
				if !p.CollectMode {
					return nil, err
				}
				line, col := p.loc()
				p.Diagnostics.Err("parse", err.Error(), protocol.Location{File: p.file, Line: line, Column: col})
				p.skipToNextTopLevel()
				continue
			}
			prog.Globals = append(prog.Globals, gv)
		default:
			line, col := p.loc()
			err := fmt.Errorf("unexpected top-level token %q", p.cur().Value)
			if !p.CollectMode {
				return nil, err
			}
			p.Diagnostics.Err("parse", err.Error(), protocol.Location{File: p.file, Line: line, Column: col})
			p.advance()
		}
	}

	if !hasDefault {
		line, col := p.loc()
		p.Diagnostics.Warn("parse", "script has no default state", protocol.Location{File: p.file, Line: line, Column: col})
	}

	return prog, nil
}

func (p *Parser) skipToNextTopLevel() {
	for !p.at(lexer.EOF) {
		if p.at(lexer.Semicolon) {
			p.advance()
			return
		}
		if p.at(lexer.KwState) || p.at(lexer.KwDefault) {
			return
		}
		p.advance()
	}
}

func (p *Parser) isTypeKeyword() bool {
	_, ok := KeywordToSourceType(p.cur().Type)
	return ok
}

// isFunctionDecl performs a lookahead past `type identifier (` to tell a
// user function declaration apart from a global variable declaration.
func (p *Parser) isFunctionDecl() bool {
	return p.peekAt(1).Type == lexer.Identifier && p.peekAt(2).Type == lexer.LParen
}

func (p *Parser) parseState() (*Node, error) {
	line, col := p.loc()
	node := &Node{Type: NodeState, Line: line, Column: col}

	if p.at(lexer.KwDefault) {
		p.advance()
		node.Value = "default"
	} else {
		if _, err := p.expect(lexer.KwState); err != nil {
			return nil, err
		}
		name, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		node.Value = name.Value
	}

	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		eh, err := p.parseEventHandler()
		if err != nil {
			return nil, err
		}
		node.Append(eh)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseEventHandler() (*Node, error) {
	line, col := p.loc()
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	node := &Node{Type: NodeEventHandler, Value: name.Value, Line: line, Column: col}

	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}

	if arity, known := eventArity[name.Value]; known {
		if arity >= 0 && len(params) != arity {
			p.Diagnostics.Warn("parse",
				fmt.Sprintf("event %q expects %d parameter(s), got %d", name.Value, arity, len(params)),
				protocol.Location{File: p.file, Line: line, Column: col})
		}
	} else {
		p.Diagnostics.Warn("parse",
			fmt.Sprintf("unknown event handler %q treated as extension event", name.Value),
			protocol.Location{File: p.file, Line: line, Column: col})
	}

	node.Children = append(node.Children, params...)
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node.Append(body)
	return node, nil
}

func (p *Parser) parseParamList() ([]*Node, error) {
	var params []*Node
	for !p.at(lexer.RParen) {
		if len(params) > 0 {
			if _, err := p.expect(lexer.Comma); err != nil {
				return nil, err
			}
		}
		typTok := p.cur()
		declType, ok := KeywordToSourceType(typTok.Type)
		if !ok {
			return nil, fmt.Errorf("%s: expected parameter type, got %q", typTok.Loc, typTok.Value)
		}
		p.advance()
		name, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		params = append(params, &Node{Type: NodeVarDecl, Value: name.Value, DeclType: declType, Line: name.Loc.Line, Column: name.Loc.Column})
	}
	return params, nil
}

func (p *Parser) parseFunctionDecl() (*Node, error) {
	line, col := p.loc()
	declType, _ := KeywordToSourceType(p.cur().Type)
	p.advance()
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	node := &Node{Type: NodeFunctionDecl, Value: name.Value, DeclType: declType, Line: line, Column: col}
	node.Children = append(node.Children, params...)
	node.Append(body)
	return node, nil
}

func (p *Parser) parseGlobalVarDecl() (*Node, error) {
	line, col := p.loc()
	declType, ok := KeywordToSourceType(p.cur().Type)
	if !ok {
		declType = TypeUnknown
	} else {
		p.advance()
	}
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	node := &Node{Type: NodeGlobalVarDecl, Value: name.Value, DeclType: declType, Line: line, Column: col}
	if p.at(lexer.Assign) {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Append(expr)
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseBlock() (*Node, error) {
	line, col := p.loc()
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	block := &Node{Type: NodeBlock, Line: line, Column: col}
	for !p.at(lexer.RBrace) && !p.at(lexer.EOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Append(stmt)
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return block, nil
}

func (p *Parser) parseStatement() (*Node, error) {
	switch p.cur().Type {
	case lexer.Semicolon:
		line, col := p.loc()
		p.advance()
		return &Node{Type: NodeEmptyStmt, Line: line, Column: col}, nil
	case lexer.LBrace:
		return p.parseBlock()
	case lexer.KwIf:
		return p.parseIf()
	case lexer.KwFor:
		return p.parseFor()
	case lexer.KwWhile:
		return p.parseWhile()
	case lexer.KwDo:
		return p.parseDoWhile()
	case lexer.KwReturn:
		return p.parseReturn()
	case lexer.KwJump:
		return p.parseJump()
	case lexer.At:
		return p.parseLabel()
	case lexer.KwState:
		return p.parseStateChangeStmt()
	default:
		if p.isTypeKeyword() && !p.looksLikeCast() {
			return p.parseLocalVarDecl()
		}
		return p.parseExprStatement()
	}
}

// looksLikeCast reports whether a type keyword at statement position starts
// a cast. It always returns false: a type keyword at statement position is
// never itself a cast, and `(type)expr` casts (spec §4.1) are recognized in
// parseUnary without calling this.
func (p *Parser) looksLikeCast() bool { return false }

func (p *Parser) parseLocalVarDecl() (*Node, error) {
	line, col := p.loc()
	declType, _ := KeywordToSourceType(p.cur().Type)
	p.advance()
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	node := &Node{Type: NodeVarDecl, Value: name.Value, DeclType: declType, Line: line, Column: col}
	if p.at(lexer.Assign) {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Append(expr)
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseExprStatement() (*Node, error) {
	line, col := p.loc()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &Node{Type: NodeExprStmt, Line: line, Column: col, Children: []*Node{expr}}, nil
}

func (p *Parser) parseIf() (*Node, error) {
	line, col := p.loc()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	node := &Node{Type: NodeIf, Line: line, Column: col, Children: []*Node{cond, then}}
	if p.at(lexer.KwElse) {
		p.advance()
		elseStmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		node.Append(elseStmt)
	}
	return node, nil
}

func (p *Parser) parseFor() (*Node, error) {
	line, col := p.loc()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	var initNode *Node
	if !p.at(lexer.Semicolon) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		initNode = e
	} else {
		initNode = &Node{Type: NodeEmptyStmt}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	var condNode *Node
	if !p.at(lexer.Semicolon) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		condNode = e
	} else {
		condNode = &Node{Type: NodeEmptyStmt}
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	var stepNode *Node
	if !p.at(lexer.RParen) {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stepNode = e
	} else {
		stepNode = &Node{Type: NodeEmptyStmt}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &Node{Type: NodeFor, Line: line, Column: col, Children: []*Node{initNode, condNode, stepNode, body}}, nil
}

func (p *Parser) parseWhile() (*Node, error) {
	line, col := p.loc()
	p.advance()
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &Node{Type: NodeWhile, Line: line, Column: col, Children: []*Node{cond, body}}, nil
}

func (p *Parser) parseDoWhile() (*Node, error) {
	line, col := p.loc()
	p.advance()
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KwWhile); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &Node{Type: NodeDoWhile, Line: line, Column: col, Children: []*Node{cond, body}}, nil
}

func (p *Parser) parseReturn() (*Node, error) {
	line, col := p.loc()
	p.advance()
	node := &Node{Type: NodeReturn, Line: line, Column: col}
	if !p.at(lexer.Semicolon) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Append(expr)
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseJump() (*Node, error) {
	line, col := p.loc()
	p.advance()
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	p.Diagnostics.Warn("parse",
		fmt.Sprintf("jump %q has no structured equivalent; it is lowered to a host call that throws at run time (spec §9)", name.Value),
		protocol.Location{File: p.file, Line: line, Column: col})
	return &Node{Type: NodeJump, Value: name.Value, Line: line, Column: col}, nil
}

func (p *Parser) parseLabel() (*Node, error) {
	line, col := p.loc()
	p.advance() // @
	name, err := p.expect(lexer.Identifier)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &Node{Type: NodeLabel, Value: name.Value, Line: line, Column: col}, nil
}

func (p *Parser) parseStateChangeStmt() (*Node, error) {
	line, col := p.loc()
	p.advance()
	var target string
	if p.at(lexer.KwDefault) {
		p.advance()
		target = "default"
	} else {
		name, err := p.expect(lexer.Identifier)
		if err != nil {
			return nil, err
		}
		target = name.Value
	}
	if _, err := p.expect(lexer.Semicolon); err != nil {
		return nil, err
	}
	return &Node{Type: NodeStateChange, Value: target, Line: line, Column: col}, nil
}

// --- Expressions ---
//
// Precedence, loosest to tightest: assignment (right-assoc) > logical
// (&&/|| share ONE level, source-language quirk that must be preserved,
// spec §4.1) > equality > relational > shift > additive > multiplicative >
// unary > postfix > primary.

func (p *Parser) parseExpression() (*Node, error) {
	return p.parseAssignment()
}

var compoundAssignOps = map[lexer.TokenType]string{
	lexer.PlusAssign:    "+",
	lexer.MinusAssign:   "-",
	lexer.StarAssign:    "*",
	lexer.SlashAssign:   "/",
	lexer.PercentAssign: "%",
	lexer.ShlAssign:     "<<",
	lexer.ShrAssign:     ">>",
	lexer.AndAssign:     "&",
	lexer.OrAssign:      "|",
	lexer.XorAssign:     "^",
}

func (p *Parser) parseAssignment() (*Node, error) {
	left, err := p.parseLogical()
	if err != nil {
		return nil, err
	}
	if p.at(lexer.Assign) {
		line, col := p.loc()
		p.advance()
		right, err := p.parseAssignment() // right-associative
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeAssignExpr, Line: line, Column: col, Children: []*Node{left, right}}, nil
	}
	if op, ok := compoundAssignOps[p.cur().Type]; ok {
		line, col := p.loc()
		p.advance()
		right, err := p.parseAssignment()
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeCompoundAssignExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}, nil
	}
	return left, nil
}

// parseLogical handles && and || at a single shared precedence level,
// left-to-right, matching the source language's quirk (spec §4.1).
func (p *Parser) parseLogical() (*Node, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.LogAnd) || p.at(lexer.LogOr) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseEquality() (*Node, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Eq) || p.at(lexer.Neq) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseRelational() (*Node, error) {
	left, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Lt) || p.at(lexer.Le) || p.at(lexer.Gt) || p.at(lexer.Ge) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseShift() (*Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Shl) || p.at(lexer.Shr) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseAdditive() (*Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Plus) || p.at(lexer.Minus) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Star) || p.at(lexer.Slash) || p.at(lexer.Percent) ||
		p.at(lexer.Amp) || p.at(lexer.Pipe) || p.at(lexer.Caret) {
		op := p.cur().Value
		line, col := p.loc()
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Node{Type: NodeBinaryExpr, Value: op, Line: line, Column: col, Children: []*Node{left, right}}
	}
	return left, nil
}

// parseUnary handles prefix -, !, ~, ++, --, and detects `(type)expr` casts
// via the two-token lookahead (spec §4.1): LParen, type-keyword, RParen.
func (p *Parser) parseUnary() (*Node, error) {
	line, col := p.loc()
	switch p.cur().Type {
	case lexer.Minus, lexer.Not, lexer.Tilde:
		op := p.cur().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeUnaryExpr, Value: op, Line: line, Column: col, Children: []*Node{operand}}, nil
	case lexer.Inc, lexer.Dec:
		op := p.cur().Value
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Node{Type: NodeIncDecExpr, Value: "pre" + op, Line: line, Column: col, Children: []*Node{operand}}, nil
	case lexer.LParen:
		if declType, ok := KeywordToSourceType(p.peekAt(1).Type); ok && p.peekAt(2).Type == lexer.RParen {
			p.advance() // (
			p.advance() // type
			p.advance() // )
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &Node{Type: NodeCastExpr, DeclType: declType, Line: line, Column: col, Children: []*Node{operand}}, nil
		}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (*Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case lexer.Inc, lexer.Dec:
			op := p.cur().Value
			line, col := p.loc()
			p.advance()
			expr = &Node{Type: NodeIncDecExpr, Value: "post" + op, Line: line, Column: col, Children: []*Node{expr}}
		case lexer.LBracket:
			line, col := p.loc()
			p.advance()
			idx, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.RBracket); err != nil {
				return nil, err
			}
			expr = &Node{Type: NodeListAccess, Line: line, Column: col, Children: []*Node{expr, idx}}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (*Node, error) {
	tok := p.cur()
	switch tok.Type {
	case lexer.Integer:
		p.advance()
		return &Node{Type: NodeIntLiteral, Value: tok.Value, Line: tok.Loc.Line, Column: tok.Loc.Column}, nil
	case lexer.Float:
		p.advance()
		return &Node{Type: NodeFloatLiteral, Value: tok.Value, Line: tok.Loc.Line, Column: tok.Loc.Column}, nil
	case lexer.String:
		p.advance()
		return &Node{Type: NodeStringLiteral, Value: tok.Value, Line: tok.Loc.Line, Column: tok.Loc.Column}, nil
	case lexer.Identifier:
		return p.parseIdentifierOrCall()
	case lexer.LParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.LBracket:
		return p.parseListLiteral()
	case lexer.Lt:
		return p.parseAngleLiteralOrComparisonOperand()
	}
	return nil, fmt.Errorf("%s: unexpected token %q in expression", tok.Loc, tok.Value)
}

func (p *Parser) parseIdentifierOrCall() (*Node, error) {
	tok := p.advance()
	if p.at(lexer.LParen) {
		p.advance()
		var args []*Node
		for !p.at(lexer.RParen) {
			if len(args) > 0 {
				if _, err := p.expect(lexer.Comma); err != nil {
					return nil, err
				}
			}
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		node := &Node{Type: NodeCallExpr, Value: tok.Value, Line: tok.Loc.Line, Column: tok.Loc.Column}
		node.Children = args
		return node, nil
	}
	return &Node{Type: NodeIdentifier, Value: tok.Value, Line: tok.Loc.Line, Column: tok.Loc.Column}, nil
}

func (p *Parser) parseListLiteral() (*Node, error) {
	line, col := p.loc()
	p.advance() // [
	node := &Node{Type: NodeListLiteral, Line: line, Column: col}
	for !p.at(lexer.RBracket) {
		if len(node.Children) > 0 {
			if _, err := p.expect(lexer.Comma); err != nil {
				return nil, err
			}
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		node.Append(e)
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	return node, nil
}

// parseAngleLiteralOrComparisonOperand implements the speculative
// vector/quaternion literal parse (spec §4.1): when `<` begins a primary
// expression, try 3 or 4 shift-level expressions separated by commas and
// terminated by `>`; on failure, rewind and re-parse `<` as a comparison
// (by returning a bare identifier-less error so the relational-level caller
// falls back to treating it as an operator, handled by trying the literal
// first and rewinding the token position on any failure).
func (p *Parser) parseAngleLiteralOrComparisonOperand() (*Node, error) {
	start := p.mark()
	line, col := p.loc()
	p.advance() // <

	var parts []*Node
	ok := func() bool {
		for {
			e, err := p.parseShift()
			if err != nil {
				return false
			}
			parts = append(parts, e)
			if p.at(lexer.Comma) {
				p.advance()
				continue
			}
			break
		}
		if len(parts) != 3 && len(parts) != 4 {
			return false
		}
		if !p.at(lexer.Gt) {
			return false
		}
		p.advance() // >
		return true
	}()

	if !ok {
		p.reset(start)
		return nil, fmt.Errorf("%s: not a vector/quaternion literal", lexer.Location{Line: line, Column: col})
	}

	kind := NodeVectorLiteral
	if len(parts) == 4 {
		kind = NodeRotationLiteral
	}
	node := &Node{Type: kind, Line: line, Column: col}
	node.Children = parts
	return node, nil
}
