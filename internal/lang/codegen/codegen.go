// Package codegen lowers a parsed program into the emitted intermediate
// (spec §4.4): a two-pass generator. Pass 1 walks the whole program to
// decide which user functions must become async (because they call an
// async built-in, directly or transitively) and which event handlers read
// the detected-agent array. Pass 2 walks the program again, now armed with
// those decisions, and emits the ir.Program.
package codegen

import (
	"fmt"
	"strings"

	"glitchscript/internal/lang/ir"
	"glitchscript/internal/lang/parser"
	"glitchscript/internal/lang/resolver"
	"glitchscript/internal/lang/typetrack"
	"glitchscript/internal/protocol"
)

// Generator holds the state threaded through both passes. A fresh Generator
// is needed per source file, mirroring the teacher's own per-file
// compilation unit (internal/scripting/manager/manager.go).
type Generator struct {
	res    *resolver.Resolver
	diags  *protocol.Diagnostics
	file   string

	funcsByName  map[string]*parser.Node
	asyncFuncs   map[string]bool
	usesDetected map[string]bool // event handler key ("state/event") -> reads detected[]
	globalTypes  map[string]parser.SourceType
}

func New(diags *protocol.Diagnostics, file string) *Generator {
	return &Generator{
		res:          resolver.New(),
		diags:        diags,
		file:         file,
		funcsByName:  map[string]*parser.Node{},
		asyncFuncs:   map[string]bool{},
		usesDetected: map[string]bool{},
		globalTypes:  map[string]parser.SourceType{},
	}
}

// newScope builds a tracker seeded with the global scope, so sibling
// functions and event handlers don't share one mutable scope stack.
func (g *Generator) newScope() *typetrack.Tracker {
	t := typetrack.New()
	for name, typ := range g.globalTypes {
		t.Declare(name, typ)
	}
	return t
}

// Generate runs both passes and returns the emitted program.
func (g *Generator) Generate(prog *parser.Program, className string) *ir.Program {
	g.pass1(prog)

	for _, global := range prog.Globals {
		g.globalTypes[global.Value] = global.DeclType
	}

	class := ir.New(ir.KClassDecl)
	class.Name = className

	class.Children = append(class.Children, g.genConstructor(prog.Globals))

	for _, fn := range prog.Funcs {
		class.Children = append(class.Children, g.genFunction(fn))
	}

	class.Children = append(class.Children, g.genStatesGetter(prog.States))

	return &ir.Program{Class: class}
}

// pass1 computes the async-propagation fixpoint and the detected-array scan
// (spec §4.4 Pass 1a/1b).
func (g *Generator) pass1(prog *parser.Program) {
	for _, fn := range prog.Funcs {
		g.funcsByName[fn.Value] = fn
	}

	for changed := true; changed; {
		changed = false
		for name, fn := range g.funcsByName {
			if g.asyncFuncs[name] {
				continue
			}
			if g.bodyCallsAsync(fn) {
				g.asyncFuncs[name] = true
				changed = true
			}
		}
	}

	for _, state := range prog.States {
		for _, eh := range state.Children {
			key := state.Value + "/" + eh.Value
			if g.bodyUsesDetected(eh) {
				g.usesDetected[key] = true
			}
		}
	}
}

func (g *Generator) bodyCallsAsync(n *parser.Node) bool {
	found := false
	walk(n, func(c *parser.Node) {
		if found || c.Type != parser.NodeCallExpr {
			return
		}
		if resolver.IsAsyncBuiltin(c.Value) || g.asyncFuncs[c.Value] {
			found = true
		}
	})
	return found
}

func (g *Generator) bodyUsesDetected(n *parser.Node) bool {
	found := false
	walk(n, func(c *parser.Node) {
		if found || c.Type != parser.NodeCallExpr {
			return
		}
		if g.res.Resolve(c.Value).Kind == resolver.KindDetected {
			found = true
		}
	})
	return found
}

// walk visits n and every descendant, depth-first.
func walk(n *parser.Node, visit func(*parser.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		walk(c, visit)
	}
}

// genConstructor emits `constructor() { super(); this.<global> = <init>; }`
// (spec §4.4: one field per global).
func (g *Generator) genConstructor(globals []*parser.Node) *ir.Node {
	tracker := g.newScope()
	ctor := ir.New(ir.KMethodDecl)
	ctor.Name = "constructor"
	ctor.Children = append(ctor.Children, ir.Raw("super();"))
	for _, global := range globals {
		var initExpr *ir.Node
		if len(global.Children) > 0 {
			initExpr = g.genExpr(global.Children[0], tracker)
		} else {
			initExpr = defaultValue(global.DeclType)
		}
		assign := ir.New(ir.KExprStmt, ir.New(ir.KAssignExpr, &ir.Node{Kind: ir.KMember, Name: global.Value, Children: []*ir.Node{ir.Ident("this")}}, initExpr))
		ctor.Children = append(ctor.Children, assign)
	}
	return ctor
}

func defaultValue(t parser.SourceType) *ir.Node {
	switch t {
	case parser.TypeInteger, parser.TypeFloat:
		return ir.Lit("0")
	case parser.TypeString, parser.TypeKey:
		return ir.Lit(`""`)
	case parser.TypeVector:
		return &ir.Node{Kind: ir.KCallExpr, Name: "__host.vector", Children: []*ir.Node{ir.Lit("0"), ir.Lit("0"), ir.Lit("0")}}
	case parser.TypeRotation:
		return &ir.Node{Kind: ir.KCallExpr, Name: "__host.rotation", Children: []*ir.Node{ir.Lit("0"), ir.Lit("0"), ir.Lit("0"), ir.Lit("1")}}
	case parser.TypeList:
		return ir.New(ir.KArrayLiteral)
	default:
		return ir.Lit("undefined")
	}
}

// genFunction lowers a global user function to a class method, marked
// async if Pass 1 decided it must be (spec §4.4 Pass 1a, §5).
func (g *Generator) genFunction(fn *parser.Node) *ir.Node {
	tracker := g.newScope()

	m := ir.New(ir.KMethodDecl)
	m.Name = fn.Value
	m.IsAsync = g.asyncFuncs[fn.Value]

	n := len(fn.Children)
	params := fn.Children[:n-1]
	body := fn.Children[n-1]

	for _, p := range params {
		m.Params = append(m.Params, p.Value)
		tracker.Declare(p.Value, p.DeclType)
	}

	for _, stmt := range body.Children {
		m.Children = append(m.Children, g.genStmt(stmt, tracker))
	}
	return m
}

// genStatesGetter emits `get states() { return { <state>: { <event>: ... } }; }`
func (g *Generator) genStatesGetter(states []*parser.Node) *ir.Node {
	m := ir.New(ir.KMethodDecl)
	m.Name = "get states"

	statesObj := ir.New(ir.KObjectLiteral)
	for _, state := range states {
		stateObj := ir.New(ir.KObjectLiteral)
		for _, eh := range state.Children {
			fnExpr := g.genEventHandler(state.Value, eh)
			stateObj.Children = append(stateObj.Children, &ir.Node{Name: eh.Value, Children: []*ir.Node{fnExpr}})
		}
		statesObj.Children = append(statesObj.Children, &ir.Node{Name: state.Value, Children: []*ir.Node{stateObj}})
	}

	m.Children = append(m.Children, ir.New(ir.KReturn, statesObj))
	return m
}

// genEventHandler lowers one event handler to an async function expression,
// kept as a structural ir.FuncExpr node so the sandbox can instrument its
// body.
func (g *Generator) genEventHandler(stateName string, eh *parser.Node) *ir.Node {
	tracker := g.newScope()

	n := len(eh.Children)
	params := eh.Children[:n-1]
	body := eh.Children[n-1]

	key := stateName + "/" + eh.Value
	// Event handlers are unconditionally async (spec §4.4 Pass 1a): the
	// runtime may await one directly, regardless of whether its own body
	// happens to call an async built-in.
	isAsync := true

	var paramNames []string
	for _, p := range params {
		paramNames = append(paramNames, p.Value)
		tracker.Declare(p.Value, p.DeclType)
	}
	if g.usesDetected[key] {
		paramNames = append(paramNames, "detected")
	}

	var stmts []*ir.Node
	for _, stmt := range body.Children {
		stmts = append(stmts, g.genStmt(stmt, tracker))
	}
	return ir.FuncExpr(isAsync, paramNames, stmts)
}

func (g *Generator) warnUnmapped(name string, loc protocol.Location) {
	g.diags.Warn("codegen", fmt.Sprintf("unmapped built-in %q emitted as TODO stub", name), loc)
}

func (g *Generator) loc(n *parser.Node) protocol.Location {
	return protocol.Location{File: g.file, Line: n.Line, Column: n.Column}
}

// genStmt lowers one statement node. Loop/if bodies are passed through as
// whatever statement shape the parser produced (a single statement or a
// block); the serializer's writeBody wraps a bare statement for the target
// syntax, so codegen never has to force one.
func (g *Generator) genStmt(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	switch n.Type {
	case parser.NodeBlock:
		block := ir.New(ir.KBlock)
		for _, stmt := range n.Children {
			block.Children = append(block.Children, g.genStmt(stmt, tracker))
		}
		return block

	case parser.NodeEmptyStmt:
		return ir.Raw("")

	case parser.NodeVarDecl:
		tracker.Declare(n.Value, n.DeclType)
		v := ir.New(ir.KVarDecl)
		v.Name = n.Value
		if len(n.Children) > 0 {
			v.Children = append(v.Children, g.genExpr(n.Children[0], tracker))
		}
		return v

	case parser.NodeExprStmt:
		return ir.New(ir.KExprStmt, g.genExpr(n.Children[0], tracker))

	case parser.NodeIf:
		cond := g.genExpr(n.Children[0], tracker)
		then := g.genStmt(n.Children[1], tracker)
		if len(n.Children) > 2 {
			els := g.genStmt(n.Children[2], tracker)
			return ir.New(ir.KIf, cond, then, els)
		}
		return ir.New(ir.KIf, cond, then)

	case parser.NodeFor:
		init := g.genForClause(n.Children[0], tracker)
		cond := g.genForClause(n.Children[1], tracker)
		step := g.genForClause(n.Children[2], tracker)
		body := g.genStmt(n.Children[3], tracker)
		return ir.New(ir.KFor, init, cond, step, body)

	case parser.NodeWhile:
		return ir.New(ir.KWhile, g.genExpr(n.Children[0], tracker), g.genStmt(n.Children[1], tracker))

	case parser.NodeDoWhile:
		cond := g.genExpr(n.Children[0], tracker)
		// Children order mirrors the KDoWhile serializer: [cond, body].
		return ir.New(ir.KDoWhile, cond, g.genStmt(n.Children[1], tracker))

	case parser.NodeReturn:
		if len(n.Children) > 0 {
			return ir.New(ir.KReturn, g.genExpr(n.Children[0], tracker))
		}
		return ir.New(ir.KReturn)

	case parser.NodeJump:
		g.diags.Warn("codegen", fmt.Sprintf("jump to label %q has no structured-control equivalent, lowered to a host call", n.Value), g.loc(n))
		return ir.Raw(fmt.Sprintf("__host.jump(%q);", n.Value))

	case parser.NodeLabel:
		return ir.Raw(fmt.Sprintf("// label: %s", n.Value))

	case parser.NodeStateChange:
		return ir.Raw(fmt.Sprintf("return __host.changeState(%q);", n.Value))

	default:
		return ir.New(ir.KExprStmt, g.genExpr(n, tracker))
	}
}

// genForClause lowers a for-loop clause, which the parser always produces
// as either an expression or NodeEmptyStmt (spec §4.1 parseFor).
func (g *Generator) genForClause(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	if n.Type == parser.NodeEmptyStmt {
		return ir.New(ir.KEmpty)
	}
	return g.genExpr(n, tracker)
}

// genExpr lowers one expression node, applying built-in call resolution and
// vector/quaternion operator-overload lowering (spec §4.2, §4.3).
func (g *Generator) genExpr(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	switch n.Type {
	case parser.NodeIntLiteral, parser.NodeFloatLiteral:
		return ir.Lit(n.Value)

	case parser.NodeStringLiteral:
		return ir.Lit(fmt.Sprintf("%q", n.Value))

	case parser.NodeIdentifier:
		return ir.Ident(n.Value)

	case parser.NodeVectorLiteral:
		call := &ir.Node{Kind: ir.KCallExpr, Name: "__host.vector"}
		for _, c := range n.Children {
			call.Children = append(call.Children, g.genExpr(c, tracker))
		}
		return call

	case parser.NodeRotationLiteral:
		call := &ir.Node{Kind: ir.KCallExpr, Name: "__host.rotation"}
		for _, c := range n.Children {
			call.Children = append(call.Children, g.genExpr(c, tracker))
		}
		return call

	case parser.NodeListLiteral:
		arr := ir.New(ir.KArrayLiteral)
		for _, c := range n.Children {
			arr.Children = append(arr.Children, g.genExpr(c, tracker))
		}
		return arr

	case parser.NodeListAccess:
		base := g.genExpr(n.Children[0], tracker)
		idx := g.genExpr(n.Children[1], tracker)
		return &ir.Node{Kind: ir.KIndex, Children: []*ir.Node{base, idx}}

	case parser.NodeCastExpr:
		operand := g.genExpr(n.Children[0], tracker)
		return &ir.Node{Kind: ir.KCallExpr, Name: "__host.cast_" + n.DeclType.String(), Children: []*ir.Node{operand}}

	case parser.NodeCallExpr:
		return g.genCall(n, tracker)

	case parser.NodeAssignExpr:
		left := g.genExpr(n.Children[0], tracker)
		right := g.genExpr(n.Children[1], tracker)
		return ir.New(ir.KAssignExpr, left, right)

	case parser.NodeCompoundAssignExpr:
		return g.genCompoundAssign(n, tracker)

	case parser.NodeIncDecExpr:
		return g.genIncDec(n, tracker)

	case parser.NodeUnaryExpr:
		return g.genUnary(n, tracker)

	case parser.NodeBinaryExpr:
		return g.genBinary(n, tracker)

	default:
		return ir.Raw(fmt.Sprintf("/* unhandled node %d */ undefined", n.Type))
	}
}

// genCall lowers a call expression: a user function call becomes a (possibly
// awaited) method call on `this`, and a built-in call goes through the
// resolver's three-layer lookup (spec §4.2).
func (g *Generator) genCall(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	if _, ok := g.funcsByName[n.Value]; ok {
		call := &ir.Node{Kind: ir.KCallExpr, Name: "this." + n.Value}
		for _, a := range n.Children {
			call.Children = append(call.Children, g.genExpr(a, tracker))
		}
		if g.asyncFuncs[n.Value] {
			return ir.New(ir.KAwaitExpr, call)
		}
		return call
	}

	res := g.res.Resolve(n.Value)
	if res.Kind == resolver.KindUnmapped {
		g.warnUnmapped(n.Value, g.loc(n))
	}
	if res.Partial {
		g.diags.Warn("codegen", fmt.Sprintf("built-in %q has partial/approximate semantics", n.Value), g.loc(n))
	}

	var args []string
	for _, a := range n.Children {
		args = append(args, ir.ExprText(g.genExpr(a, tracker)))
	}
	// res.Template already spells "await" for built-ins that need it
	// (resolver.go). Property/detected-field templates carry no %s verb at
	// all (zero-arg accessors), so Sprintf only runs when one is present.
	if !strings.Contains(res.Template, "%s") {
		return ir.Raw(res.Template)
	}
	return ir.Raw(fmt.Sprintf(res.Template, strings.Join(args, ", ")))
}

// genCompoundAssign lowers `target op= value`, dispatching to the overload
// method (`target = target.add(value)`) for vector/quaternion targets
// (spec §4.3) and to the plain compound operator otherwise.
func (g *Generator) genCompoundAssign(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	target := n.Children[0]
	targetType := g.exprType(target, tracker)
	targetExpr := g.genExpr(target, tracker)
	valueExpr := g.genExpr(n.Children[1], tracker)

	if method := typetrack.CompoundAssignMethod(n.Value, targetType); method != "" {
		text := fmt.Sprintf("%s = %s.%s(%s)", ir.ExprText(targetExpr), ir.ExprText(targetExpr), method, ir.ExprText(valueExpr))
		return ir.Raw(text)
	}
	text := fmt.Sprintf("%s %s= %s", ir.ExprText(targetExpr), n.Value, ir.ExprText(valueExpr))
	return ir.Raw(text)
}

// genIncDec lowers pre/post ++/-- (parser encodes the direction in Value as
// "pre++", "post--", etc).
func (g *Generator) genIncDec(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	operand := ir.ExprText(g.genExpr(n.Children[0], tracker))
	op := n.Value[len(n.Value)-2:]
	if n.Value[:3] == "pre" {
		return ir.Raw(op + operand)
	}
	return ir.Raw(operand + op)
}

// genUnary lowers a unary operator, dispatching `-` on a vector/quaternion
// operand to its `.negate()` method (spec §4.3).
func (g *Generator) genUnary(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	operandType := g.exprType(n.Children[0], tracker)
	operand := g.genExpr(n.Children[0], tracker)
	if n.Value == "-" && typetrack.UnaryNegateIsMethod(operandType) {
		return ir.Raw(fmt.Sprintf("%s.negate()", ir.ExprText(operand)))
	}
	u := ir.New(ir.KUnaryExpr, operand)
	u.Value = n.Value
	return u
}

// genBinary lowers a binary operator, dispatching to the overload method
// table for vector/quaternion operands (spec §4.3) and to the raw operator
// otherwise.
func (g *Generator) genBinary(n *parser.Node, tracker *typetrack.Tracker) *ir.Node {
	leftType := g.exprType(n.Children[0], tracker)
	rightType := g.exprType(n.Children[1], tracker)
	left := g.genExpr(n.Children[0], tracker)
	right := g.genExpr(n.Children[1], tracker)

	switch typetrack.ResolveBinaryOp(n.Value, leftType, rightType) {
	case typetrack.OpVectorAdd:
		return ir.Raw(fmt.Sprintf("%s.add(%s)", ir.ExprText(left), ir.ExprText(right)))
	case typetrack.OpVectorSub:
		return ir.Raw(fmt.Sprintf("%s.sub(%s)", ir.ExprText(left), ir.ExprText(right)))
	case typetrack.OpVectorScaleLeft:
		return ir.Raw(fmt.Sprintf("%s.scale(%s)", ir.ExprText(left), ir.ExprText(right)))
	case typetrack.OpVectorScaleRight:
		return ir.Raw(fmt.Sprintf("%s.scale(%s)", ir.ExprText(right), ir.ExprText(left)))
	case typetrack.OpVectorScaleInverse:
		return ir.Raw(fmt.Sprintf("%s.scale(1 / %s)", ir.ExprText(left), ir.ExprText(right)))
	case typetrack.OpQuatMultiply:
		return ir.Raw(fmt.Sprintf("%s.multiply(%s)", ir.ExprText(left), ir.ExprText(right)))
	case typetrack.OpVectorRotateBy:
		return ir.Raw(fmt.Sprintf("%s.rotateBy(%s)", ir.ExprText(left), ir.ExprText(right)))
	default:
		b := ir.New(ir.KBinaryExpr, left, right)
		b.Value = n.Value
		return b
	}
}

// exprType infers a source-language static type well enough to decide
// operator overloads (spec §4.3). Calls and other nodes the tracker can't
// pin down resolve to TypeUnknown, which ResolveBinaryOp treats as "not a
// vector/quaternion operand", an accepted approximation since a full
// built-in return-type table is out of scope (see DESIGN.md).
func (g *Generator) exprType(n *parser.Node, tracker *typetrack.Tracker) parser.SourceType {
	switch n.Type {
	case parser.NodeIdentifier:
		if t, ok := tracker.Lookup(n.Value); ok {
			return t
		}
		return parser.TypeUnknown
	case parser.NodeIntLiteral:
		return parser.TypeInteger
	case parser.NodeFloatLiteral:
		return parser.TypeFloat
	case parser.NodeStringLiteral:
		return parser.TypeString
	case parser.NodeVectorLiteral:
		return parser.TypeVector
	case parser.NodeRotationLiteral:
		return parser.TypeRotation
	case parser.NodeListLiteral:
		return parser.TypeList
	case parser.NodeCastExpr:
		return n.DeclType
	case parser.NodeBinaryExpr:
		left := g.exprType(n.Children[0], tracker)
		right := g.exprType(n.Children[1], tracker)
		switch typetrack.ResolveBinaryOp(n.Value, left, right) {
		case typetrack.OpVectorAdd, typetrack.OpVectorSub, typetrack.OpVectorScaleLeft, typetrack.OpVectorScaleRight, typetrack.OpVectorScaleInverse, typetrack.OpVectorRotateBy:
			return parser.TypeVector
		case typetrack.OpQuatMultiply:
			return parser.TypeRotation
		}
		return parser.TypeUnknown
	default:
		return parser.TypeUnknown
	}
}
