package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// runCommand is a light version of dagu-org-dagu's testRunCommand helper:
// attach a fresh root, capture stdout, run, and return it.
func runCommand(t *testing.T, cmd *cobra.Command, args []string) string {
	t.Helper()
	root := &cobra.Command{Use: "glitchscriptd"}
	root.AddCommand(cmd)
	root.SetArgs(args)

	var out bytes.Buffer
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	version = "9.9.9"
	out := runCommand(t, versionCmd(), []string{"version"})
	require.Contains(t, out, "9.9.9")
}

func TestValidateCommandReportsOKForCleanScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "door.lsl")
	require.NoError(t, os.WriteFile(path, []byte(`
default {
    touch_start(integer n) {
        say("touched");
    }
}
`), 0o644))

	out := runCommand(t, validateCmd(), []string{"validate", path})
	require.Contains(t, out, "ok")
}

func TestValidateCommandReportsErrorForBrokenScript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.lsl")
	require.NoError(t, os.WriteFile(path, []byte(`default { touch_start(integer n) { say( } }`), 0o644))

	root := &cobra.Command{Use: "glitchscriptd"}
	root.AddCommand(validateCmd())
	root.SetArgs([]string{"validate", path})
	var out bytes.Buffer
	root.SetOut(&out)
	require.Error(t, root.Execute())
}
