package manager

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/linkbus"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/protocol"
	"glitchscript/internal/worker"
)

const touchScript = `
default {
    touch_start(integer n) {
        say("touched");
    }
}
`

const timerScript = `
default {
    state_entry() {
        setTimerEvent(0.01);
    }
    timer() {
        say("tick");
    }
}
`

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := New(db,
		WithWorkerOptions(worker.WithSlotCount(1)),
		WithLinkBusOptions(linkbus.WithBound(8)),
	)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func TestLoadScriptPlacesAndDispatches(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	var mu sync.Mutex
	var said []string
	m.SetApiResolver(func(envelope protocol.CommandEnvelope, respond func(any, error)) {
		if envelope.Command.Type == protocol.CmdSay {
			mu.Lock()
			said = append(said, envelope.ScriptID)
			mu.Unlock()
		}
		respond(nil, nil)
	})

	scriptID, diags, err := m.LoadScript(touchScript, LoadOptions{ContainerID: "c1", Name: "door"})
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.NotEmpty(t, scriptID)

	m.dispatcher.Dispatch(protocol.EventEnvelope{
		TargetObjectID: "c1",
		Event:          protocol.NewEvent(protocol.EventTouchStart, nil),
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(said) == 1 && said[0] == scriptID
	}, time.Second, 5*time.Millisecond)
}

func TestSetTimerEventIsInterceptedNotForwarded(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	var mu sync.Mutex
	var calls []string
	m.SetApiResolver(func(envelope protocol.CommandEnvelope, respond func(any, error)) {
		mu.Lock()
		calls = append(calls, string(envelope.Command.Type))
		mu.Unlock()
		respond(nil, nil)
	})

	_, diags, err := m.LoadScript(timerScript, LoadOptions{ContainerID: "c1"})
	require.NoError(t, err)
	require.False(t, diags.HasErrors())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range calls {
			if c == "say" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, c := range calls {
		require.NotEqual(t, "setTimerEvent", c)
	}
}

func TestTerminateScriptIsIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.SetApiResolver(func(protocol.CommandEnvelope, func(any, error)) {})

	scriptID, _, err := m.LoadScript(touchScript, LoadOptions{ContainerID: "c1"})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		m.TerminateScript(scriptID)
		m.TerminateScript(scriptID)
	})
}

func TestResetScriptReplacesScriptID(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.SetApiResolver(func(protocol.CommandEnvelope, func(any, error)) {})

	scriptID, _, err := m.LoadScript(touchScript, LoadOptions{ContainerID: "c1", Name: "door"})
	require.NoError(t, err)

	newID, diags, err := m.ResetScript(scriptID)
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.NotEqual(t, scriptID, newID)
	require.False(t, m.isPlaced(scriptID))
	require.True(t, m.isPlaced(newID))
}

func TestLoadScriptWithParseErrorReturnsNoScriptID(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	scriptID, diags, err := m.LoadScript("default { touch_start(integer n) { say(", LoadOptions{ContainerID: "c1"})
	require.Error(t, err)
	require.Empty(t, scriptID)
	require.True(t, diags.HasErrors())
}

func TestCompileReturnsJSWithoutPlacingOrRegistering(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	jsSource, diags, err := m.Compile(touchScript, "preview-1", "door")
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.NotEmpty(t, jsSource)
	require.False(t, m.isPlaced("preview-1"))
}

func TestCompileSurfacesParseErrorsWithoutPanicking(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)

	_, diags, err := m.Compile("default { touch_start(integer n) { say(", "preview-2", "")
	require.Error(t, err)
	require.True(t, diags.HasErrors())
}

func TestClassNameDerivesFromScriptName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "Script", className(""))
	require.Equal(t, "FrontDoor", className("front door"))
	require.Equal(t, "Door2", className("door-2"))
}
