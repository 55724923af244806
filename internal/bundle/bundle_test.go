package bundle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "format_version": "1.0",
  "scene_name": "courtyard",
  "region": "alpha",
  "objects": [
    {
      "id": "c1",
      "name": "door",
      "link_number": 0,
      "inventory": [
        {"name": "door-script", "type": "script", "asset_uuid": "u1"},
        {"name": "door-texture", "type": "texture", "asset_uuid": "u2"}
      ]
    },
    {
      "id": "c1",
      "name": "door-hinge",
      "link_number": 1,
      "inventory": [
        {"name": "hinge-script", "type": "script", "asset_uuid": "u3"}
      ]
    }
  ],
  "assets": {
    "u1": {"type": "script", "path": "scripts/door.lsl.json"},
    "u2": {"type": "texture", "path": "textures/door.png"},
    "u3": {"type": "script", "path": "scripts/hinge.lsl.json"}
  }
}`

func TestParseManifestDecodesObjectsAndAssets(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)
	require.Equal(t, "courtyard", m.SceneName)
	require.Len(t, m.Objects, 2)
	require.Len(t, m.Assets, 3)
}

func TestUnwrapSourceExtractsFieldAndPassesThroughPlainText(t *testing.T) {
	t.Parallel()
	require.Equal(t, `default { state_entry() { say("hi"); } }`, UnwrapSource(`{"source": "default { state_entry() { say(\"hi\"); } }"}`))
	require.Equal(t, "plain script text", UnwrapSource("plain script text"))
}

func TestResolveSkipsNonScriptInventoryAndUnwrapsEachScript(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	sources := map[string]string{
		"scripts/door.lsl.json":  `{"source": "default { state_entry() {} }"}`,
		"scripts/hinge.lsl.json": `{"source": "default { touch_start(integer n) {} }"}`,
	}

	placements, err := m.Resolve(sources)
	require.NoError(t, err)
	require.Len(t, placements, 2)

	require.Equal(t, "c1", placements[0].ContainerID)
	require.Equal(t, 0, placements[0].LinkNumber)
	require.Equal(t, "door-script", placements[0].Name)
	require.Equal(t, "default { state_entry() {} }", placements[0].Source)

	require.Equal(t, 1, placements[1].LinkNumber)
	require.Equal(t, "hinge-script", placements[1].Name)
}

func TestResolveErrorsOnMissingAssetPath(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	_, err = m.Resolve(map[string]string{"scripts/door.lsl.json": `{"source": "x"}`})
	require.Error(t, err)
}

func TestResolveErrorsOnUnknownAssetUUID(t *testing.T) {
	t.Parallel()
	broken := strings.Replace(sampleManifest, `"asset_uuid": "u1"`, `"asset_uuid": "missing"`, 1)
	m, err := ParseManifest(strings.NewReader(broken))
	require.NoError(t, err)

	_, err = m.Resolve(map[string]string{
		"scripts/door.lsl.json":  `{"source": "x"}`,
		"scripts/hinge.lsl.json": `{"source": "y"}`,
	})
	require.Error(t, err)
}
