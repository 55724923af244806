package worker

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

func TestSubstringOpMatchesPlainRangeWhenStartBeforeEnd(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ell", substringOp("hello", 1, 3))
}

func TestSubstringOpNegativeIndicesCountFromEnd(t *testing.T) {
	t.Parallel()
	// "hello"[-3..-1] == "hello"[2..4] == "llo"
	require.Equal(t, "llo", substringOp("hello", -3, -1))
}

func TestSubstringOpWrapsWhenStartAfterEnd(t *testing.T) {
	t.Parallel()
	// start(3) > end(1): suffix from 3 ("lo") + prefix up to 1 inclusive ("he")
	require.Equal(t, "lohe", substringOp("hello", 3, 1))
}

func TestDeleteSubStringOpRemovesInclusiveRange(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ho", deleteSubStringOp("hello", 1, 3))
}

func TestDeleteSubStringOpNegativeIndices(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ho", deleteSubStringOp("hello", -4, -2))
}

func TestDeleteSubStringOpKeepsMiddleWhenStartAfterEnd(t *testing.T) {
	t.Parallel()
	// start(3) > end(1): delete the outer range (0..1 and 3..4), keep the middle "l"
	require.Equal(t, "l", deleteSubStringOp("hello", 3, 1))
}

func TestEventArgsOrdersByFixedTemplateNotMapIteration(t *testing.T) {
	t.Parallel()
	vm := goja.New()

	ev := protocol.NewEvent(protocol.EventListen, map[string]any{
		"message": "hi", "id": "u1", "channel": 0, "name": "Bob",
	})
	args := eventArgs(vm, ev)
	require.Len(t, args, 4)
	require.Equal(t, int64(0), args[0].Export())
	require.Equal(t, "Bob", args[1].Export())
	require.Equal(t, "u1", args[2].Export())
	require.Equal(t, "hi", args[3].Export())
}

func TestEventArgsForTouchPutsAgentBeforeFace(t *testing.T) {
	t.Parallel()
	vm := goja.New()

	ev := protocol.NewEvent(protocol.EventTouchStart, map[string]any{
		"face": 2, "agent": map[string]any{"id": "a", "name": "Alice"},
	})
	args := eventArgs(vm, ev)
	require.Len(t, args, 3)
	agent, ok := args[0].Export().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "a", agent["id"])
	require.Equal(t, int64(2), args[1].Export())
}
