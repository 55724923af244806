package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

func TestRouteLoopSoundLowersToPlaySoundWithLoopTrue(t *testing.T) {
	t.Parallel()
	r := New(func(string) string { return "c1" })

	env := r.Route("s1", "loopSound", []any{"a.ogg", 0.5})

	require.Equal(t, "s1", env.ScriptID)
	require.Equal(t, "c1", env.ContainerID)
	require.Equal(t, protocol.CmdPlaySound, env.Command.Type)
	require.Equal(t, "a.ogg", env.Command.Args["sound"])
	require.Equal(t, 0.5, env.Command.Args["volume"])
	require.Equal(t, true, env.Command.Args["loop"])
}

func TestRoutePlaySoundDefaultsLoopFalse(t *testing.T) {
	t.Parallel()
	r := New(func(string) string { return "c1" })

	env := r.Route("s1", "playSound", []any{"a.ogg", 1.0})

	require.Equal(t, protocol.CmdPlaySound, env.Command.Type)
	require.Equal(t, false, env.Command.Args["loop"])
}

func TestRouteCallIDIsStrictlyMonotonic(t *testing.T) {
	t.Parallel()
	r := New(func(string) string { return "c1" })

	first := r.Route("s1", "say", []any{0, "hi"})
	second := r.Route("s1", "say", []any{0, "again"})
	third := r.Route("s2", "shout", []any{0, "hey"})

	require.Less(t, first.CallID, second.CallID)
	require.Less(t, second.CallID, third.CallID)
}

func TestRouteSetDampingBindsNamedArgs(t *testing.T) {
	t.Parallel()
	r := New(func(string) string { return "c1" })

	env := r.Route("s1", "setDamping", []any{0.1, 0.2})

	require.Equal(t, protocol.CmdSetDamping, env.Command.Type)
	require.Equal(t, 0.1, env.Command.Args["linear"])
	require.Equal(t, 0.2, env.Command.Args["angular"])
}

func TestRouteTrulyUnknownMethodUsesOwnNameAndIndexedArgs(t *testing.T) {
	t.Parallel()
	r := New(func(string) string { return "c1" })

	env := r.Route("s1", "someFutureCommand", []any{"x", "y"})

	require.Equal(t, protocol.CommandType("someFutureCommand"), env.Command.Type)
	require.Equal(t, "x", env.Command.Args["arg0"])
	require.Equal(t, "y", env.Command.Args["arg1"])
}

func TestRouteLooksUpContainerPerCall(t *testing.T) {
	t.Parallel()
	calls := 0
	r := New(func(scriptID string) string {
		calls++
		return "container-" + scriptID
	})

	env := r.Route("s1", "die", nil)
	require.Equal(t, "container-s1", env.ContainerID)
	require.Equal(t, 1, calls)
}
