package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"glitchscript/internal/config"
	"glitchscript/internal/manager"
)

// validateCmd runs a script through the transpile pipeline and prints
// diagnostics without starting a worker pool or store (spec §4.1-4.5,
// internal/manager.Compile). Exit status is non-zero iff any diagnostic is
// an error.
func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <script-file>",
		Short: "Transpile a script and report diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0])
		},
	}
}

func runValidate(cmd *cobra.Command, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("glitchscriptd: read %s: %w", path, err)
	}

	cfg, err := config.Load(newViper())
	if err != nil {
		return fmt.Errorf("glitchscriptd: load config: %w", err)
	}
	mgr := manager.New(nil, manager.WithTranspileBounds(cfg.LoopBound, cfg.RecursionBound))

	_, diags, compileErr := mgr.Compile(string(source), path, path)
	out := cmd.OutOrStdout()
	for _, d := range diags {
		fmt.Fprintln(out, d.Error())
	}
	if compileErr != nil {
		return fmt.Errorf("glitchscriptd: %s failed to validate: %w", path, compileErr)
	}
	fmt.Fprintf(out, "%s: ok (%d diagnostics)\n", path, len(diags))
	return nil
}
