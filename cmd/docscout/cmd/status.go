package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show repository sync state and index counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, cleanup, err := buildService(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			statuses, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no repositories configured")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REPOSITORY\tSTATE\tDOCS\tCHUNKS\tLAST SYNC\tERROR")
			for _, st := range statuses {
				lastSync := "-"
				if !st.LastSync.IsZero() {
					lastSync = st.LastSync.Format("2006-01-02 15:04:05")
				}
				errMsg := "-"
				if st.LastError != "" {
					errMsg = st.LastError
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					st.Name, st.State, st.Documents, st.Chunks, lastSync, errMsg)
			}
			return w.Flush()
		},
	}
}
