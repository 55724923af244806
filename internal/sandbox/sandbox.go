// Package sandbox hardens the emitted intermediate before it's handed to an
// isolated execution slot (spec §4.5): loop and recursion bounds, a global
// blocklist scan, and module-to-script lowering. It mutates the ir.Program
// in place, the one consumer of internal/lang/ir built specifically to walk
// and rewrite that tree rather than just render it.
package sandbox

import (
	"fmt"
	"strings"

	"glitchscript/internal/lang/ir"
	"glitchscript/internal/protocol"
)

const (
	defaultLoopBound      = 1_000_000
	defaultRecursionBound = 256
)

// blockedIdentifiers is the static half of the global blocklist (spec §4.5
// step 4); the isolated realm's minimal endowments are the runtime half.
var blockedIdentifiers = map[string]bool{
	"global":          true,
	"globalThis":      true,
	"window":          true,
	"self":            true,
	"document":        true,
	"process":         true,
	"require":         true,
	"module":          true,
	"eval":            true,
	"Function":        true,
	"GeneratorFunction": true,
	"AsyncFunction":   true,
	"Reflect":         true,
	"Proxy":           true,
	"WebAssembly":     true,
	"Worker":          true,
	"SharedWorker":    true,
	"importScripts":   true,
	"XMLHttpRequest":  true,
	"fetch":           true,
	"WebSocket":       true,
}

// Transformer carries the configurable bounds (spec §4.5 steps 2/3, wired
// through internal/config in the daemon).
type Transformer struct {
	diags          *protocol.Diagnostics
	file           string
	loopBound      int
	recursionBound int
}

// LoopBound and RecursionBound are the values a worker host endowment should
// install alongside the transformed source (internal/worker), keeping the
// bound enforced at runtime in sync with what this pass was configured with.
func (t *Transformer) LoopBound() int      { return t.loopBound }
func (t *Transformer) RecursionBound() int { return t.recursionBound }

func New(diags *protocol.Diagnostics, file string, loopBound, recursionBound int) *Transformer {
	if loopBound <= 0 {
		loopBound = defaultLoopBound
	}
	if recursionBound <= 0 {
		recursionBound = defaultRecursionBound
	}
	return &Transformer{diags: diags, file: file, loopBound: loopBound, recursionBound: recursionBound}
}

// Transform runs the full pipeline and returns the rendered source. Warnings
// land on the Transformer's diagnostics list (step order: loop guard,
// recursion guard, blocklist scan, module lowering, serialize).
func (t *Transformer) Transform(prog *ir.Program) string {
	t.instrumentLoops(prog.Class)
	t.instrumentRecursion(prog.Class)
	t.scanBlocklist(prog.Class)
	t.lowerModule(prog)
	return ir.Serialize(prog)
}

// walk visits n and every descendant, depth-first, regardless of kind: the
// emitted intermediate's Children field carries the whole tree shape, so one
// generic walker covers statements, expressions, and object-literal values.
func walk(n *ir.Node, visit func(*ir.Node)) {
	if n == nil {
		return
	}
	visit(n)
	for _, c := range n.Children {
		walk(c, visit)
	}
}

// loopBodyIndex returns which child holds a loop's body.
func loopBodyIndex(k ir.Kind) int {
	switch k {
	case ir.KFor:
		return 3
	case ir.KForIn:
		return 2
	default: // KWhile, KDoWhile
		return 1
	}
}

// instrumentLoops injects a `__checkLoop()` call as the first statement of
// every loop body, wrapping single-statement bodies in a block (spec §4.5
// step 2).
func (t *Transformer) instrumentLoops(root *ir.Node) {
	walk(root, func(n *ir.Node) {
		if !ir.IsLoopKind(n.Kind) {
			return
		}
		idx := loopBodyIndex(n.Kind)
		if idx >= len(n.Children) {
			return
		}
		n.Children[idx] = prependCheckLoop(n.Children[idx])
	})
}

// prependCheckLoop injects a bare, no-arg __checkLoop() call: the bound
// itself is configured once by the worker host when it installs the
// endowment (internal/worker), not baked into generated text, so a config
// change doesn't require re-transpiling every loaded script.
func prependCheckLoop(body *ir.Node) *ir.Node {
	check := ir.Raw("__checkLoop();")
	if body.Kind == ir.KBlock {
		body.Children = append([]*ir.Node{check}, body.Children...)
		return body
	}
	return ir.New(ir.KBlock, check, body)
}

// instrumentRecursion wraps every named method (excluding the constructor
// and the states accessor, which aren't script call frames) and every event
// handler function expression in `__enterCall`/`__exitCall` bookkeeping
// (spec §4.5 step 3).
func (t *Transformer) instrumentRecursion(root *ir.Node) {
	walk(root, func(n *ir.Node) {
		switch n.Kind {
		case ir.KMethodDecl:
			if n.Name == "constructor" || n.Name == "get states" {
				return
			}
			n.Children = wrapCallFrame(n.Children, n.Name)
		case ir.KFuncExpr:
			n.Children = wrapCallFrame(n.Children, "<event handler>")
		}
	})
}

func wrapCallFrame(body []*ir.Node, label string) []*ir.Node {
	out := make([]*ir.Node, 0, len(body)+3)
	out = append(out, ir.Raw(fmt.Sprintf("__enterCall(%q);", label)), ir.Raw("try {"))
	out = append(out, body...)
	out = append(out, ir.Raw(fmt.Sprintf("} finally { __exitCall(%q); }", label)))
	return out
}

// scanBlocklist raises a diagnostic per reference to a blocked global,
// static backup to the runtime's minimal endowments (spec §4.5 step 4).
func (t *Transformer) scanBlocklist(root *ir.Node) {
	walk(root, func(n *ir.Node) {
		name := identifierName(n)
		if name == "" || !blockedIdentifiers[name] {
			return
		}
		t.diags.Warn("sandbox", fmt.Sprintf("identifier %q is blocked", name), protocol.Location{File: t.file})
	})
}

func identifierName(n *ir.Node) string {
	switch n.Kind {
	case ir.KIdentifier:
		return n.Name
	case ir.KMember:
		if len(n.Children) > 0 && n.Children[0].Kind == ir.KIdentifier {
			return n.Children[0].Name
		}
	}
	return ""
}

// lowerModule strips import statements from the preamble (the isolated
// realm evaluates as a script, so endowments stand in for them) and rewrites
// the entry class into a `__exports.default` assignment (spec §4.5 step 5).
func (t *Transformer) lowerModule(prog *ir.Program) {
	for i, stmt := range prog.Preamble {
		if stmt.Kind != ir.KRaw || !strings.HasPrefix(stmt.Value, "import ") {
			continue
		}
		spec := moduleSpecifier(stmt.Value)
		t.diags.Warn("sandbox", fmt.Sprintf("import stripped: %s", spec), protocol.Location{File: t.file})
		prog.Preamble[i] = &ir.Node{Kind: ir.KImportStripped, Value: spec}
	}
	if prog.Class != nil {
		prog.Preamble = append(prog.Preamble, &ir.Node{Kind: ir.KExportAssign, Name: "default", Value: prog.Class.Name})
	}
}

func moduleSpecifier(importStmt string) string {
	first := strings.IndexByte(importStmt, '"')
	if first < 0 {
		return importStmt
	}
	last := strings.LastIndexByte(importStmt, '"')
	if last <= first {
		return importStmt
	}
	return importStmt[first+1 : last]
}
