package cli

import (
	"github.com/repoagent/repoagent/internal"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch configured repositories and serve health and metrics",
		Long:  "Open every configured repository, keep it monitored until interrupted,\njournal finished commands and expose /health and /metrics over HTTP.",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			internal.Serve()
		},
	}
}
