package ir

import (
	"fmt"
	"strings"
)

// Serialize renders a Program to target-language source text. It is
// deliberately simple string-concatenation, the IR already captures every
// structural decision, so serialization has no control-flow logic of its
// own (spec R3: the emitter never produces syntactically invalid code,
// because the IR can't represent an invalid shape in the first place).
func Serialize(p *Program) string {
	var b strings.Builder
	for _, stmt := range p.Preamble {
		writeStmt(&b, stmt, 0)
	}
	writeStmt(&b, p.Class, 0)
	return b.String()
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}

func writeStmt(b *strings.Builder, n *Node, depth int) {
	if n == nil {
		return
	}
	switch n.Kind {
	case KImportStripped:
		indent(b, depth)
		fmt.Fprintf(b, "// import stripped: %s\n", n.Value)
	case KExportAssign:
		indent(b, depth)
		fmt.Fprintf(b, "__exports.%s = %s;\n", n.Name, n.Value)
	case KClassDecl:
		indent(b, depth)
		fmt.Fprintf(b, "class %s extends __RuntimeBase {\n", n.Name)
		for _, member := range n.Children {
			writeStmt(b, member, depth+1)
		}
		indent(b, depth)
		b.WriteString("}\n")
	case KMethodDecl:
		indent(b, depth)
		if n.IsAsync {
			b.WriteString("async ")
		}
		fmt.Fprintf(b, "%s(%s) {\n", n.Name, strings.Join(n.Params, ", "))
		for _, stmt := range n.Children {
			writeStmt(b, stmt, depth+1)
		}
		indent(b, depth)
		b.WriteString("}\n")
	case KVarDecl:
		indent(b, depth)
		if len(n.Children) > 0 {
			fmt.Fprintf(b, "let %s = %s;\n", n.Name, writeExpr(n.Children[0]))
		} else {
			fmt.Fprintf(b, "let %s;\n", n.Name)
		}
	case KExprStmt:
		indent(b, depth)
		fmt.Fprintf(b, "%s;\n", writeExpr(n.Children[0]))
	case KBlock:
		indent(b, depth)
		b.WriteString("{\n")
		for _, stmt := range n.Children {
			writeStmt(b, stmt, depth+1)
		}
		indent(b, depth)
		b.WriteString("}\n")
	case KIf:
		indent(b, depth)
		fmt.Fprintf(b, "if (%s) {\n", writeExpr(n.Children[0]))
		writeBody(b, n.Children[1], depth+1)
		indent(b, depth)
		if len(n.Children) > 2 {
			b.WriteString("} else {\n")
			writeBody(b, n.Children[2], depth+1)
			indent(b, depth)
		}
		b.WriteString("}\n")
	case KFor:
		indent(b, depth)
		fmt.Fprintf(b, "for (%s; %s; %s) {\n", writeExpr(n.Children[0]), writeExpr(n.Children[1]), writeExpr(n.Children[2]))
		writeBody(b, n.Children[3], depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case KWhile:
		indent(b, depth)
		fmt.Fprintf(b, "while (%s) {\n", writeExpr(n.Children[0]))
		writeBody(b, n.Children[1], depth+1)
		indent(b, depth)
		b.WriteString("}\n")
	case KDoWhile:
		indent(b, depth)
		b.WriteString("do {\n")
		writeBody(b, n.Children[1], depth+1)
		indent(b, depth)
		fmt.Fprintf(b, "} while (%s);\n", writeExpr(n.Children[0]))
	case KReturn:
		indent(b, depth)
		if len(n.Children) > 0 {
			fmt.Fprintf(b, "return %s;\n", writeExpr(n.Children[0]))
		} else {
			b.WriteString("return;\n")
		}
	case KBreak:
		indent(b, depth)
		b.WriteString("break;\n")
	case KThrow:
		indent(b, depth)
		fmt.Fprintf(b, "throw %s;\n", writeExpr(n.Children[0]))
	case KRaw:
		indent(b, depth)
		fmt.Fprintf(b, "%s\n", n.Value)
	default:
		indent(b, depth)
		fmt.Fprintf(b, "%s;\n", writeExpr(n))
	}
}

// writeBody writes a statement as a loop/if body, wrapping a single
// statement in a block if it isn't already one (spec §4.5 step 2, which
// relies on every loop body being a block so __checkLoop() can be injected
// as its first statement).
func writeBody(b *strings.Builder, n *Node, depth int) {
	if n.Kind == KBlock {
		for _, stmt := range n.Children {
			writeStmt(b, stmt, depth)
		}
		return
	}
	writeStmt(b, n, depth)
}

func writeExpr(n *Node) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KIdentifier:
		return n.Name
	case KLiteral:
		return n.Value
	case KRaw:
		return n.Value
	case KMember:
		return fmt.Sprintf("%s.%s", writeExpr(n.Children[0]), n.Name)
	case KIndex:
		return fmt.Sprintf("%s[%s]", writeExpr(n.Children[0]), writeExpr(n.Children[1]))
	case KCallExpr:
		args := make([]string, len(n.Children))
		for i, c := range n.Children {
			args[i] = writeExpr(c)
		}
		return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ", "))
	case KAwaitExpr:
		return fmt.Sprintf("await %s", writeExpr(n.Children[0]))
	case KBinaryExpr:
		return fmt.Sprintf("(%s %s %s)", writeExpr(n.Children[0]), n.Value, writeExpr(n.Children[1]))
	case KUnaryExpr:
		return fmt.Sprintf("(%s%s)", n.Value, writeExpr(n.Children[0]))
	case KAssignExpr:
		return fmt.Sprintf("%s = %s", writeExpr(n.Children[0]), writeExpr(n.Children[1]))
	case KArrayLiteral:
		items := make([]string, len(n.Children))
		for i, c := range n.Children {
			items[i] = writeExpr(c)
		}
		return fmt.Sprintf("[%s]", strings.Join(items, ", "))
	case KObjectLiteral:
		items := make([]string, len(n.Children))
		for i, c := range n.Children {
			items[i] = fmt.Sprintf("%s: %s", c.Name, writeExpr(c.Children[0]))
		}
		return fmt.Sprintf("{%s}", strings.Join(items, ", "))
	case KFuncExpr:
		return funcExprText(n.IsAsync, n.Params, n.Children)
	case KEmpty:
		return ""
	}
	return ""
}

func funcExprText(isAsync bool, params []string, body []*Node) string {
	var b strings.Builder
	if isAsync {
		b.WriteString("async ")
	}
	fmt.Fprintf(&b, "function(%s) {\n", strings.Join(params, ", "))
	for _, stmt := range body {
		writeStmt(&b, stmt, 1)
	}
	b.WriteString("}")
	return b.String()
}

// KEmpty marks a missing for-loop clause (`for (;;)`).
const KEmpty Kind = -1

// ExprText renders a single expression node to text, for callers building a
// KRaw node out of a sub-expression (compound assignment and increment
// lowering, codegen.go).
func ExprText(n *Node) string { return writeExpr(n) }

