// Package typetrack resolves arithmetic operator overloads for
// vector/quaternion operands during code generation (spec §4.3).
package typetrack

import "glitchscript/internal/lang/parser"

// scope is one lexical level: parameters + locals declared so far.
type scope map[string]parser.SourceType

// Tracker maintains a stack of lexical scopes, globals at the bottom.
type Tracker struct {
	stack []scope
}

func New() *Tracker {
	t := &Tracker{}
	t.Push() // globals
	return t
}

func (t *Tracker) Push() {
	t.stack = append(t.stack, scope{})
}

func (t *Tracker) Pop() {
	if len(t.stack) > 1 {
		t.stack = t.stack[:len(t.stack)-1]
	}
}

// Declare records identifier's type in the current (innermost) scope.
func (t *Tracker) Declare(identifier string, typ parser.SourceType) {
	t.stack[len(t.stack)-1][identifier] = typ
}

// Lookup walks the scope stack innermost-first.
func (t *Tracker) Lookup(identifier string) (parser.SourceType, bool) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if typ, ok := t.stack[i][identifier]; ok {
			return typ, true
		}
	}
	return parser.TypeUnknown, false
}

// OverloadOp is the operator-overload decision for a binary expression.
type OverloadOp int

const (
	OpRaw OverloadOp = iota // emit the operator as-is
	OpVectorAdd
	OpVectorSub
	OpVectorScaleLeft  // L.scale(R), vector * scalar
	OpVectorScaleRight // R.scale(L), scalar * vector (commutative dispatch)
	OpVectorScaleInverse // L.scale(1/R), vector / scalar, synthetic inverse
	OpQuatMultiply     // L.multiply(R), non-commutative, operand order preserved
	OpVectorRotateBy   // L.rotateBy(R), vector * quaternion
)

// ResolveBinaryOp decides how to lower `left op right` per spec §4.3's
// operator table. Returns OpRaw when neither operand is vector/rotation
// typed, so the caller emits the bare operator.
func ResolveBinaryOp(op string, left, right parser.SourceType) OverloadOp {
	switch op {
	case "+":
		if left == parser.TypeVector && right == parser.TypeVector {
			return OpVectorAdd
		}
	case "-":
		if left == parser.TypeVector && right == parser.TypeVector {
			return OpVectorSub
		}
	case "*":
		switch {
		case left == parser.TypeVector && isScalar(right):
			return OpVectorScaleLeft
		case isScalar(left) && right == parser.TypeVector:
			return OpVectorScaleRight
		case left == parser.TypeRotation && right == parser.TypeRotation:
			return OpQuatMultiply
		case left == parser.TypeVector && right == parser.TypeRotation:
			return OpVectorRotateBy
		}
	case "/":
		if left == parser.TypeVector && isScalar(right) {
			return OpVectorScaleInverse
		}
	}
	return OpRaw
}

func isScalar(t parser.SourceType) bool {
	return t == parser.TypeInteger || t == parser.TypeFloat
}

// UnaryNegateIsMethod reports whether unary `-v` should lower to `v.negate()`.
func UnaryNegateIsMethod(operandType parser.SourceType) bool {
	return operandType == parser.TypeVector || operandType == parser.TypeRotation
}

// CompoundAssignMethod returns the method name a compound assignment on an
// overloaded type expands to (`t = t.method(v)`, spec §4.3), or "" if the
// compound assignment should use the raw operator.
func CompoundAssignMethod(op string, targetType parser.SourceType) string {
	if targetType != parser.TypeVector && targetType != parser.TypeRotation {
		return ""
	}
	switch op {
	case "+":
		return "add"
	case "-":
		return "sub"
	case "*":
		if targetType == parser.TypeRotation {
			return "multiply"
		}
		return "scale"
	}
	return ""
}
