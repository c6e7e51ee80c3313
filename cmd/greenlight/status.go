// cmd/greenlight/status.go
package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
	"github.com/FairForge/greenlight/internal/orchestrator"
)

func newStatusCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status [team]",
		Short: "Show active environment, proxy state and health for teams",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			teams := a.cfg.Teams
			if len(args) == 1 {
				team, err := a.team(args[0])
				if err != nil {
					return err
				}
				teams = []config.Team{team}
			}

			statuses := make([]*orchestrator.TeamStatus, 0, len(teams))
			for _, team := range teams {
				status, err := a.orch.Status(cmd.Context(), team)
				if err != nil {
					return err
				}
				statuses = append(statuses, status)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			for _, s := range statuses {
				printStatus(cmd, s)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit status as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, s *orchestrator.TeamStatus) {
	cmd.Printf("%s: active=%s previous=%s", s.Team, s.State.ActiveEnvironment, s.State.PreviousEnvironment)
	if !s.State.LastSwitchTimestamp.IsZero() {
		cmd.Printf(" last_switch=%s", s.State.LastSwitchTimestamp.Format("2006-01-02T15:04:05Z"))
	}
	if !s.Consistent {
		cmd.Printf(" INCONSISTENT(proxy: blue=%v green=%v)", s.Backends[environment.Blue], s.Backends[environment.Green])
	}
	if s.ActiveHealth != nil {
		cmd.Printf(" health=%s", s.ActiveHealth.Status)
	}
	if s.LockHolder != nil {
		cmd.Printf(" locked_by=%s", s.LockHolder.Operator)
	}
	cmd.Println()
}
