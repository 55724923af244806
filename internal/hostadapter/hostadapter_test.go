package hostadapter

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/linkbus"
	"glitchscript/internal/manager"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/protocol"
	"glitchscript/internal/worker"
)

const doorScript = `
default {
    touch_start(integer n) {
        say("touched");
    }
}
`

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mgr := manager.New(db,
		manager.WithWorkerOptions(worker.WithSlotCount(1)),
		manager.WithLinkBusOptions(linkbus.WithBound(8)),
	)
	mgr.Start()
	t.Cleanup(mgr.Stop)

	return New(mgr, db)
}

func TestLoadScriptDelegatesToManager(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t)
	a.OnScriptCommand(func(protocol.CommandEnvelope) (any, error) { return nil, nil })

	scriptID, diags, err := a.LoadScript(doorScript, manager.LoadOptions{ContainerID: "c1"})
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.NotEmpty(t, scriptID)

	status, ok := a.GetScriptStatus(scriptID)
	require.True(t, ok)
	require.Equal(t, "c1", status.ContainerID)
	require.Equal(t, manager.ScriptRunning, status.State)
}

func TestLoadBundleResolvesAndLoadsEveryScript(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t)
	a.OnScriptCommand(func(protocol.CommandEnvelope) (any, error) { return nil, nil })

	manifestJSON := `{
		"format_version": "1.0",
		"scene_name": "courtyard",
		"region": "alpha",
		"objects": [
			{"id": "c1", "name": "door", "link_number": 0, "inventory": [
				{"name": "door-script", "type": "script", "asset_uuid": "u1"}
			]}
		],
		"assets": {
			"u1": {"type": "script", "path": "scripts/door.lsl.json"}
		}
	}`
	sources := map[string]string{
		"scripts/door.lsl.json": doorScript,
	}

	ids, diags, err := a.LoadBundle(strings.NewReader(manifestJSON), sources)
	require.NoError(t, err)
	require.False(t, diags.HasErrors())
	require.Len(t, ids, 1)

	status, ok := a.GetScriptStatus(ids[0])
	require.True(t, ok)
	require.Equal(t, "c1", status.ContainerID)
}

func TestLoadBundleWithMissingAssetPathReturnsError(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t)

	manifestJSON := `{
		"format_version": "1.0",
		"scene_name": "courtyard",
		"region": "alpha",
		"objects": [
			{"id": "c1", "name": "door", "link_number": 0, "inventory": [
				{"name": "door-script", "type": "script", "asset_uuid": "u1"}
			]}
		],
		"assets": {
			"u1": {"type": "script", "path": "scripts/door.lsl.json"}
		}
	}`

	_, _, err := a.LoadBundle(strings.NewReader(manifestJSON), map[string]string{})
	require.Error(t, err)
}

func TestOnScriptCommandReceivesRoutedEnvelope(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t)

	var mu sync.Mutex
	var gotType protocol.CommandType
	var gotContainer string
	done := make(chan struct{}, 1)
	a.OnScriptCommand(func(envelope protocol.CommandEnvelope) (any, error) {
		mu.Lock()
		gotType = envelope.Command.Type
		gotContainer = envelope.ContainerID
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil, nil
	})

	scriptID, _, err := a.LoadScript(doorScript, manager.LoadOptions{ContainerID: "c1"})
	require.NoError(t, err)

	a.DispatchWorldEvent(protocol.EventEnvelope{
		TargetScriptID: scriptID,
		Event:          protocol.NewEvent(protocol.EventTouchStart, nil),
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for routed command")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, protocol.CmdSay, gotType)
	require.Equal(t, "c1", gotContainer)
}

func TestRemoveObjectTerminatesEveryScriptInContainer(t *testing.T) {
	t.Parallel()
	a := newTestAdapter(t)
	a.OnScriptCommand(func(protocol.CommandEnvelope) (any, error) { return nil, nil })

	id1, _, err := a.LoadScript(doorScript, manager.LoadOptions{ContainerID: "c1", LinkNumber: 0})
	require.NoError(t, err)
	id2, _, err := a.LoadScript(doorScript, manager.LoadOptions{ContainerID: "c1", LinkNumber: 1})
	require.NoError(t, err)

	removed := a.RemoveObject("c1")
	require.ElementsMatch(t, []string{id1, id2}, removed)

	_, ok := a.GetScriptStatus(id1)
	require.False(t, ok)
	_, ok = a.GetScriptStatus(id2)
	require.False(t, ok)
}
