// cmd/greenlight/main.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/config"
)

var (
	cfgPath string
	verbose bool

	// exitCode is set by subcommands so deferred cleanup still runs
	// before the process exits.
	exitCode int
)

func main() {
	root := &cobra.Command{
		Use:           "greenlight",
		Short:         "Blue-green switch orchestrator for per-team Jenkins instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config",
		config.GetEnvOrDefault("GREENLIGHT_CONFIG", "/etc/greenlight/config.yaml"),
		"path to the configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSwitchCmd(),
		newStatusCmd(),
		newRollbackCmd(),
		newTeamsCmd(),
		newValidateCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		_, _ = os.Stderr.WriteString("greenlight: " + err.Error() + "\n")
		os.Exit(3)
	}
	os.Exit(exitCode)
}
