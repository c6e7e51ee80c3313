// cmd/greenlight/switch.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/environment"
	"github.com/FairForge/greenlight/internal/orchestrator"
)

const timeRound = 100 * time.Millisecond

func newSwitchCmd() *cobra.Command {
	var (
		operator          string
		reclaimStale      bool
		skipPreValidation bool
		jsonOut           bool
	)

	cmd := &cobra.Command{
		Use:   "switch <team> <blue|green>",
		Short: "Switch a team's live traffic to the given environment",
		Long: `Switch validates the target environment, points the load balancer at
it, re-validates through live traffic and commits. Any failure after the
cutover rolls traffic back to the previous environment.

Exit codes: 0 committed, 1 aborted before cutover, 2 rolled back,
3 rollback failed (manual intervention required).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := environment.Parse(args[1])
			if err != nil {
				return err
			}

			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			team, err := a.team(args[0])
			if err != nil {
				return err
			}

			result := a.orch.Switch(cmd.Context(), team, target, orchestrator.Options{
				Operator:          operator,
				ReclaimStale:      reclaimStale,
				SkipPreValidation: skipPreValidation,
			})

			printResult(cmd, result, jsonOut)
			exitCode = result.ExitCode()
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", os.Getenv("USER"), "operator recorded in locks and the audit trail")
	cmd.Flags().BoolVar(&reclaimStale, "reclaim-stale", false, "take over a lock past the staleness threshold")
	cmd.Flags().BoolVar(&skipPreValidation, "skip-pre-validation", false, "bypass pre-switch health validation (break-glass)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the result as JSON")

	return cmd
}

func printResult(cmd *cobra.Command, result *orchestrator.Result, jsonOut bool) {
	if jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	switch result.State {
	case orchestrator.StateCommitted:
		if result.Detail == "already active" {
			cmd.Printf("%s: %s already active\n", result.Team, result.ToEnv)
			return
		}
		cmd.Printf("%s: switched %s -> %s in %s\n", result.Team, result.FromEnv, result.ToEnv, result.Duration.Round(timeRound))
	case orchestrator.StateAborted:
		cmd.Printf("%s: aborted (%s): %s\n", result.Team, result.ErrorKind, result.Detail)
	case orchestrator.StateRolledBack:
		cmd.Printf("%s: rolled back to %s (%s): %s\n", result.Team, result.FromEnv, result.ErrorKind, result.Detail)
	default:
		cmd.Printf("%s: FATAL: %s\n", result.Team, result.Detail)
		fmt.Fprintln(cmd.ErrOrStderr(), "manual intervention required; inspect HAProxy and the state directory")
	}
}
