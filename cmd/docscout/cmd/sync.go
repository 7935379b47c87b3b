package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/errors"
)

func newSyncCmd() *cobra.Command {
	var repository string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync documentation repositories and rebuild the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, cleanup, err := buildService(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			if repository != "" {
				if err := svc.SyncRepository(cmd.Context(), repository); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n", repository)
				return nil
			}

			failures := svc.SyncAll(cmd.Context())
			for _, rc := range svc.Config().Repositories() {
				if err, failed := failures[rc.Name]; failed {
					fmt.Fprintf(cmd.OutOrStdout(), "failed %s: %v\n", rc.Name, err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "synced %s\n", rc.Name)
				}
			}
			if len(failures) > 0 {
				return errors.Newf(errors.KindTransient, "%d of %d repositories failed to sync",
					len(failures), len(svc.Config().Repositories()))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "r", "", "Sync only the named repository")
	return cmd
}
