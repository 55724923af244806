// Package parser turns a token stream into a typed AST (spec §4.1).
package parser

import "glitchscript/internal/lang/lexer"

// NodeType identifies the shape of an AST node.
type NodeType int

const (
	NodeProgram NodeType = iota
	NodeGlobalVarDecl
	NodeFunctionDecl
	NodeState
	NodeEventHandler
	NodeBlock
	NodeVarDecl
	NodeExprStmt
	NodeEmptyStmt
	NodeIf
	NodeFor
	NodeWhile
	NodeDoWhile
	NodeReturn
	NodeJump
	NodeLabel
	NodeStateChange

	NodeBinaryExpr
	NodeUnaryExpr
	NodeAssignExpr
	NodeCompoundAssignExpr
	NodeIncDecExpr
	NodeCallExpr
	NodeIdentifier
	NodeIntLiteral
	NodeFloatLiteral
	NodeStringLiteral
	NodeVectorLiteral
	NodeRotationLiteral
	NodeListLiteral
	NodeListAccess
	NodeCastExpr
)

// SourceType is the source language's static type (spec §4.3).
type SourceType int

const (
	TypeUnknown SourceType = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeKey
	TypeVector
	TypeRotation
	TypeList
	TypeVoid
)

func (t SourceType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeKey:
		return "key"
	case TypeVector:
		return "vector"
	case TypeRotation:
		return "rotation"
	case TypeList:
		return "list"
	case TypeVoid:
		return "void"
	default:
		return "unknown"
	}
}

// KeywordToSourceType maps a type-keyword token to a SourceType.
func KeywordToSourceType(t lexer.TokenType) (SourceType, bool) {
	switch t {
	case lexer.KwInteger:
		return TypeInteger, true
	case lexer.KwFloat:
		return TypeFloat, true
	case lexer.KwString:
		return TypeString, true
	case lexer.KwKey:
		return TypeKey, true
	case lexer.KwVector:
		return TypeVector, true
	case lexer.KwRotation:
		return TypeRotation, true
	case lexer.KwList:
		return TypeList, true
	default:
		return TypeUnknown, false
	}
}

// Node is a single AST node. Rather than one struct per node kind (which
// would fan out into dozens of tiny types for a tree this shallow), Node
// carries the union of fields any node kind needs, Type discriminates which
// are meaningful, mirroring the flat-node style of the teacher's own
// recursive-descent AST (internal/scripting/parser/parser.go NodeType/ASTNode).
type Node struct {
	Type     NodeType
	Value    string     // identifier/operator/label text, literal text
	DeclType SourceType // declared type for var decls / params / casts
	Line     int
	Column   int
	Children []*Node
}

func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Program is the root AST node produced by Parse.
type Program struct {
	Globals  []*Node // NodeGlobalVarDecl
	Funcs    []*Node // NodeFunctionDecl
	States   []*Node // NodeState (a missing "default" state is only warned about)
}
