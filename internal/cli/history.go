package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/repoagent/repoagent/internal"
	"github.com/repoagent/repoagent/internal/history"
	"github.com/spf13/cobra"
)

func formatResult(r history.Record) string {
	switch {
	case r.Aborted:
		return "aborted"
	case r.Succeeded():
		return "ok"
	default:
		return fmt.Sprintf("exit %d", r.ExitCode)
	}
}

// formatHistoryTable formats records as a tabular string.
func formatHistoryTable(records []history.Record) string {
	if len(records) == 0 {
		return "No history found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-36s %-20s %-16s %-9s %s\n", "ID", "FINISHED", "LABEL", "RESULT", "DURATION")
	for _, r := range records {
		fmt.Fprintf(&b, "%-36s %-20s %-16s %-9s %s\n",
			r.ID, r.FinishedAt.Local().Format(time.DateTime), r.Label, formatResult(r),
			r.Duration().Round(time.Millisecond))
		if r.Error != "" {
			fmt.Fprintf(&b, "    %s\n", strings.ReplaceAll(r.Error, "\n", "\n    "))
		}
	}
	return b.String()
}

func newHistoryCmd() *cobra.Command {
	var repository string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the commands journaled for a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := internal.History(cmd.Context(), repository, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), formatHistoryTable(records))
			return nil
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "R", ".", "repository root")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records to show")

	return cmd
}
