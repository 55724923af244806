package codegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/lang/ir"
	"glitchscript/internal/lang/lexer"
	"glitchscript/internal/lang/parser"
	"glitchscript/internal/protocol"
)

func generate(t *testing.T, source string) string {
	t.Helper()
	tokens, err := lexer.TokenizeAll(strings.NewReader(source), "test.lsl")
	require.NoError(t, err)

	p := parser.New(tokens, "test.lsl")
	prog, err := p.Parse()
	require.NoError(t, err)
	require.Empty(t, p.Diagnostics)

	var diags protocol.Diagnostics
	irProg := New(&diags, "test.lsl").Generate(prog, "Script")
	require.False(t, diags.HasErrors())
	return ir.Serialize(irProg)
}

// Event handlers are unconditionally async (spec §4.4 Pass 1a), even when
// their body never calls an async built-in.
func TestEventHandlersAreAlwaysAsyncRegardlessOfBody(t *testing.T) {
	t.Parallel()
	js := generate(t, `
default {
    touch_start(integer n) {
        say("touched");
    }
}
`)
	require.Contains(t, js, "touch_start: async function")
}

func TestEventHandlersStayAsyncWhenBodyCallsAsyncBuiltin(t *testing.T) {
	t.Parallel()
	js := generate(t, `
default {
    touch_start(integer n) {
        sleep(1.0);
    }
}
`)
	require.Contains(t, js, "touch_start: async function")
}

func TestPlainFunctionStaysSyncWithoutAsyncCalls(t *testing.T) {
	t.Parallel()
	js := generate(t, `
integer add(integer a, integer b) {
    return a + b;
}
default {
    state_entry() {
        add(1, 2);
    }
}
`)
	require.NotContains(t, js, "async add(")
}
