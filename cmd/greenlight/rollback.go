// cmd/greenlight/rollback.go
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/orchestrator"
)

func newRollbackCmd() *cobra.Command {
	var (
		operator string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "rollback <team>",
		Short: "Revert a team to its previous environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			team, err := a.team(args[0])
			if err != nil {
				return err
			}

			result := a.orch.ManualRollback(cmd.Context(), team, orchestrator.Options{Operator: operator})
			printResult(cmd, result, jsonOut)

			// For an explicit rollback, landing in RolledBack is success.
			if result.State == orchestrator.StateRolledBack {
				exitCode = 0
			} else {
				exitCode = result.ExitCode()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&operator, "operator", os.Getenv("USER"), "operator recorded in locks and the audit trail")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the result as JSON")

	return cmd
}
