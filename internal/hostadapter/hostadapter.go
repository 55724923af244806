// Package hostadapter wraps the script manager, command router, and bundle
// reader into the single facade a host application talks to (spec §4.11):
// `loadScript`, `loadBundle`, `dispatchWorldEvent`, `onScriptCommand`,
// `removeObject`, `getScriptStatus`. "The adapter is purely glue; the
// interesting semantics live in 4.1-4.9" — this package does no
// transpiling, routing, or dispatch of its own, it only sequences calls
// into internal/manager and internal/bundle.
package hostadapter

import (
	"fmt"
	"io"
	"time"

	glog "glitchscript/internal/log"
	"glitchscript/internal/bundle"
	"glitchscript/internal/manager"
	"glitchscript/internal/manager/store"
	"glitchscript/internal/protocol"
)

// CommandHandler is the host's single registered command handler (spec
// §4.11 "(a) the host registers exactly one command handler"). It may do
// blocking host-side work; Adapter runs it off the manager's own goroutine
// so a slow host handler never stalls dispatch to other scripts.
type CommandHandler func(envelope protocol.CommandEnvelope) (result any, err error)

// Adapter is the host-facing facade over a *manager.Manager.
type Adapter struct {
	mgr   *manager.Manager
	store *store.Store
}

// New wraps an already-constructed manager. db may be the
// same *store.Store passed to manager.New, or nil if bundle-load telemetry
// shouldn't be persisted.
func New(mgr *manager.Manager, db *store.Store) *Adapter {
	return &Adapter{mgr: mgr, store: db}
}

// OnScriptCommand installs the host's single command handler (spec §4.11).
// Calling it again replaces the previous handler.
func (a *Adapter) OnScriptCommand(handler CommandHandler) {
	a.mgr.SetApiResolver(func(envelope protocol.CommandEnvelope, respond func(any, error)) {
		go func() {
			result, err := handler(envelope)
			respond(result, err)
		}()
	})
}

// LoadScript transpiles and places a single script (spec §4.11 `loadScript`).
func (a *Adapter) LoadScript(source string, opts manager.LoadOptions) (string, protocol.Diagnostics, error) {
	return a.mgr.LoadScript(source, opts)
}

// LoadBundle parses a bundle manifest, resolves every script asset against
// sources, and loads each one (spec §4.11 `loadBundle`, §6 bundle format
// boundary: "parse manifest -> transpile each script -> sandbox-transform
// -> place on worker"). A placement that fails to load doesn't abort the
// rest of the bundle: its diagnostics are tagged with the object/script name
// and folded into the aggregate return, and the caller can tell how many
// scripts actually made it onto a worker slot by the length of the returned
// id list.
func (a *Adapter) LoadBundle(manifestJSON io.Reader, sources map[string]string) ([]string, protocol.Diagnostics, error) {
	m, err := bundle.ParseManifest(manifestJSON)
	if err != nil {
		return nil, nil, err
	}
	placements, err := m.Resolve(sources)
	if err != nil {
		return nil, nil, err
	}

	var (
		scriptIDs []string
		diags     protocol.Diagnostics
	)
	for _, p := range placements {
		id, pd, loadErr := a.mgr.LoadScript(p.Source, manager.LoadOptions{
			ContainerID: p.ContainerID,
			LinkNumber:  p.LinkNumber,
			Name:        p.Name,
		})
		diags = append(diags, pd...)
		if loadErr != nil {
			diags.Err("bundle", fmt.Sprintf("object %s script %q: %v", p.ContainerID, p.Name, loadErr), protocol.Location{File: p.Name})
			continue
		}
		scriptIDs = append(scriptIDs, id)
	}

	if a.store != nil {
		if err := a.store.RecordBundleLoad(m.SceneName, m.Region, len(scriptIDs), time.Now()); err != nil {
			glog.Error("hostadapter: failed to record bundle load", "scene", m.SceneName, "error", err)
		}
	}

	return scriptIDs, diags, nil
}

// DispatchWorldEvent injects a host-originated event (spec §4.11
// `dispatchWorldEvent`).
func (a *Adapter) DispatchWorldEvent(envelope protocol.EventEnvelope) {
	a.mgr.DispatchWorldEvent(envelope)
}

// RemoveObject terminates every script belonging to containerID (spec
// §4.11 `removeObject`).
func (a *Adapter) RemoveObject(containerID string) []string {
	return a.mgr.RemoveObject(containerID)
}

// GetScriptStatus reports a script's current snapshot (spec §4.11
// `getScriptStatus`).
func (a *Adapter) GetScriptStatus(scriptID string) (manager.ScriptStatus, bool) {
	return a.mgr.GetScriptStatus(scriptID)
}
