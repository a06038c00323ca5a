package cli

import (
	"fmt"
	"strings"

	"github.com/repoagent/repoagent/internal"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/spf13/cobra"
)

// splitSequence splits args at ";" separators into command lines.
func splitSequence(args []string) ([]cmdcore.CommandLine, error) {
	var cmds []cmdcore.CommandLine

	start := 0
	for i := 0; i <= len(args); i++ {
		if i < len(args) && args[i] != ";" {
			continue
		}
		if i == start {
			return nil, fmt.Errorf("empty command in %q", strings.Join(args, " "))
		}
		cmds = append(cmds, cmdcore.CommandLine(args[start:i]).Clone())
		start = i + 1
	}

	return cmds, nil
}

func newExecCmd() *cobra.Command {
	var repository string
	var label string

	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND [ARGS...] [';' COMMAND [ARGS...]]...",
		Short: "Run commands against a repository",
		Long: "Run one command, or a sequence separated by ';', as a single session against\n" +
			"the repository and stream its output. The exit status is the session's.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmds, err := splitSequence(args)
			if err != nil {
				return err
			}

			code, err := internal.Exec(cmd.Context(), internal.ExecRequest{
				Repository: repository,
				Label:      label,
				Commands:   cmds,
			}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("exec: %w", err)
			}

			if code != cmdcore.ExitSuccess {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&repository, "repository", "R", ".", "repository root or any path inside it")
	cmd.Flags().StringVar(&label, "label", "", "session label (defaults to the first command name)")

	return cmd
}
