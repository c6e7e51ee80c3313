// cmd/greenlight/teams.go
package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FairForge/greenlight/internal/config"
)

func newTeamsCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List configured teams and their ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.close()

			type teamRow struct {
				config.Team
				ActiveEnvironment string `json:"active_environment"`
			}

			rows := make([]teamRow, 0, len(a.cfg.Teams))
			for _, t := range a.cfg.Teams {
				row := teamRow{Team: t, ActiveEnvironment: "unknown"}
				if st, err := a.store.GetOrInit(t.Name); err == nil {
					row.ActiveEnvironment = st.ActiveEnvironment.String()
				}
				rows = append(rows, row)
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "TEAM\tHOST\tACTIVE\tBLUE\tGREEN\tBLUE-GREEN")
			for _, r := range rows {
				enabled := "enabled"
				if !r.BlueGreenEnabled {
					enabled = "disabled"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.Name, r.Host, r.ActiveEnvironment, r.BluePort, r.GreenPort, enabled)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the team list as JSON")

	return cmd
}
