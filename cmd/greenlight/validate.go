// cmd/greenlight/validate.go
package main

import (
	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [team]",
		Short: "Validate the configuration file, or one team's entry, without touching anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			config.LoadFromEnv(cfg)

			if len(args) == 1 {
				team, ok := cfg.FindTeam(args[0])
				if !ok {
					return errUnknownTeam(args[0])
				}
				if err := config.ValidateTeam(team); err != nil {
					return err
				}
				cmd.Printf("%s: OK\n", team.Name)
				return nil
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Printf("%s: OK (%d teams)\n", cfgPath, len(cfg.Teams))
			return nil
		},
	}
}
