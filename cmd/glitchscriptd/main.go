// Command glitchscriptd hosts the script manager as a daemon. Grounded on
// dagu-org-dagu's cmd/main.go root-command shape: a persistent --config flag
// bound into viper, subcommands added to one root *cobra.Command, a single
// os.Exit(1) on failure.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	glog "glitchscript/internal/log"
)

var (
	cfgFile string
	version = "0.0.0"
)

func main() {
	root := &cobra.Command{
		Use:   "glitchscriptd",
		Short: "Hosted script engine daemon",
		Long:  "glitchscriptd transpiles and runs sandboxed legacy scripts against a host application.",
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: none, env and built-in defaults apply)")

	root.AddCommand(serveCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(bundleLoadCmd())
	root.AddCommand(consoleCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		glog.Error("glitchscriptd: command failed", "error", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

// newViper builds a viper.Viper pointed at cfgFile, if one was given, per
// internal/config.Load's contract (a missing file is not an error).
func newViper() *viper.Viper {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	return v
}
