// Package bundle parses the disk bundle manifest at the boundary spec.md
// names as a collaborator, not core functionality (spec §1, §6): "manifest
// JSON with fields {format_version, scene_name, region, objects, assets,
// statistics}; objects contain an inventory array of {name, type,
// asset_uuid}; assets map uuid -> {type, path}". This package only reads
// that shape and resolves it into the flat list of (container, link,
// source) tuples internal/hostadapter feeds into internal/manager.LoadScript
// one at a time; it has no opinion on anything the manifest says about
// non-script assets.
package bundle

import (
	"encoding/json"
	"fmt"
	"io"
)

// InventoryTypeScript is the inventory item type an object's script lives
// under (spec §6).
const InventoryTypeScript = "script"

// Asset is one entry of the manifest's uuid-keyed asset table.
type Asset struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// InventoryItem is one entry of an object's inventory array.
type InventoryItem struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	AssetUUID string `json:"asset_uuid"`
}

// Object is one manifest object: a container plus its inventory.
type Object struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	LinkNumber int             `json:"link_number"`
	Inventory  []InventoryItem `json:"inventory"`
}

// Manifest is the bundle's top-level JSON document (spec §6).
type Manifest struct {
	FormatVersion string         `json:"format_version"`
	SceneName     string         `json:"scene_name"`
	Region        string         `json:"region"`
	Objects       []Object       `json:"objects"`
	Assets        map[string]Asset `json:"assets"`
	Statistics    map[string]any `json:"statistics,omitempty"`
}

// ParseManifest decodes a bundle manifest document.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("bundle: decode manifest: %w", err)
	}
	return &m, nil
}

// wrappedSource is the JSON envelope a bundle's script asset files are
// wrapped in on disk (spec §6 "in practice wrapped as JSON with a `source`
// field; the loader unwraps").
type wrappedSource struct {
	Source string `json:"source"`
}

// UnwrapSource extracts the script text from one asset-path source blob. A
// blob that isn't `{"source": "..."}` JSON is treated as already being
// plain script text, so callers feeding raw .lsl-style text through tests
// don't need to wrap it first.
func UnwrapSource(raw string) string {
	var w wrappedSource
	if err := json.Unmarshal([]byte(raw), &w); err == nil && w.Source != "" {
		return w.Source
	}
	return raw
}

// ScriptPlacement is one script asset resolved against its owning object,
// ready to hand to internal/manager.LoadScript.
type ScriptPlacement struct {
	ContainerID string
	LinkNumber  int
	Name        string
	Source      string
}

// Resolve walks every object's inventory, picks out script items, and
// unwraps each one's source text via its asset path in sources (a
// caller-supplied asset-path -> raw file contents map, spec §6 "(c) ... a
// mapping of asset-path -> source text to loadBundle"). An inventory script
// item whose asset uuid isn't in Assets, or whose asset path isn't in
// sources, is an error: Resolve stops at the first such item and returns
// no placements, with an error naming the missing uuid or path.
func (m *Manifest) Resolve(sources map[string]string) ([]ScriptPlacement, error) {
	var out []ScriptPlacement
	for _, obj := range m.Objects {
		for _, item := range obj.Inventory {
			if item.Type != InventoryTypeScript {
				continue
			}
			asset, ok := m.Assets[item.AssetUUID]
			if !ok {
				return nil, fmt.Errorf("bundle: object %s: script %q: asset uuid %s not in manifest", obj.ID, item.Name, item.AssetUUID)
			}
			raw, ok := sources[asset.Path]
			if !ok {
				return nil, fmt.Errorf("bundle: object %s: script %q: asset path %s has no source text", obj.ID, item.Name, asset.Path)
			}
			out = append(out, ScriptPlacement{
				ContainerID: obj.ID,
				LinkNumber:  obj.LinkNumber,
				Name:        item.Name,
				Source:      UnwrapSource(raw),
			})
		}
	}
	return out, nil
}
