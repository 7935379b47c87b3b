package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docscout/docscout/internal/index"
)

func newSearchCmd() *cobra.Command {
	var repos []string
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed documentation from the command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := buildService(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer cleanup()

			query := strings.Join(args, " ")
			var filter *index.Filter
			if len(repos) > 0 {
				filter = &index.Filter{Repositories: repos}
			}
			hits, err := svc.Search(cmd.Context(), query, filter, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(hits) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for i, h := range hits {
				fmt.Fprintf(out, "%2d. [%.2f] %s:%s", i+1, h.Score, h.Chunk.Repository, h.Chunk.FilePath)
				if h.Chunk.Section != "" {
					fmt.Fprintf(out, " # %s", h.Chunk.Section)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n", snippet(h.Chunk.Content, 160))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&repos, "repos", nil, "Limit results to these repositories")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}

// snippet returns the first line of content, truncated to max runes.
func snippet(content string, max int) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		content = content[:i]
	}
	runes := []rune(content)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return content
}
