package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"glitchscript/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadScriptRoundTrips(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	now := time.Unix(1000, 0).UTC()

	rec := ScriptRecord{
		ScriptID: "s1", ContainerID: "c1", LinkNumber: 2, Name: "door",
		Source: "class Door {}", Status: "ready", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.SaveScript(rec))

	got, err := s.LoadScript("s1")
	require.NoError(t, err)
	require.Equal(t, "c1", got.ContainerID)
	require.Equal(t, 2, got.LinkNumber)
	require.Equal(t, "class Door {}", got.Source)
	require.Equal(t, "ready", got.Status)
}

func TestSaveScriptUpsertsOnConflict(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	now := time.Unix(1000, 0).UTC()
	later := time.Unix(2000, 0).UTC()

	require.NoError(t, s.SaveScript(ScriptRecord{ScriptID: "s1", ContainerID: "c1", Source: "v1", Status: "ready", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.SaveScript(ScriptRecord{ScriptID: "s1", ContainerID: "c1", Source: "v2", Status: "error", CreatedAt: now, UpdatedAt: later}))

	got, err := s.LoadScript("s1")
	require.NoError(t, err)
	require.Equal(t, "v2", got.Source)
	require.Equal(t, "error", got.Status)
}

func TestLoadScriptUnknownIDErrors(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	_, err := s.LoadScript("ghost")
	require.Error(t, err)
}

func TestDeleteScriptRemovesRecord(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.SaveScript(ScriptRecord{ScriptID: "s1", ContainerID: "c1", Source: "v1", Status: "ready", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.DeleteScript("s1"))
	_, err := s.LoadScript("s1")
	require.Error(t, err)
}

func TestRecordDiagnosticsPersistsEachEntry(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	now := time.Now().UTC()
	require.NoError(t, s.SaveScript(ScriptRecord{ScriptID: "s1", ContainerID: "c1", Source: "v1", Status: "ready", CreatedAt: now, UpdatedAt: now}))

	var diags protocol.Diagnostics
	diags.Warn("resolve", "unmapped built-in: foo", protocol.Location{File: "s1.c", Line: 4})
	diags.Err("sandbox", "blocked global: eval", protocol.Location{File: "s1.c", Line: 9})

	require.NoError(t, s.RecordDiagnostics("s1", diags, now))

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM diagnostics WHERE script_id = ?`, "s1")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 2, count)
}

func TestRecordBundleLoadPersists(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	require.NoError(t, s.RecordBundleLoad("courtyard", "alpha", 3, time.Now().UTC()))

	var count, scripts int
	row := s.db.QueryRow(`SELECT COUNT(*), script_count FROM bundle_loads WHERE scene_name = ?`, "courtyard")
	require.NoError(t, row.Scan(&count, &scripts))
	require.Equal(t, 1, count)
	require.Equal(t, 3, scripts)
}

func TestRecordDeadLetterPersists(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	msg := protocol.LinkMessage{SenderScriptID: "s1", SenderLink: 0, Num: 5, Str: "hi", ID: "x"}
	require.NoError(t, s.RecordDeadLetter("c1", "s2", msg, time.Now().UTC()))

	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM link_dead_letters WHERE recipient_id = ?`, "s2")
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}
