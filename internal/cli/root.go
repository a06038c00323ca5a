package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/repoagent/repoagent/internal"
	"github.com/spf13/cobra"
)

// ExitError carries a command's exit status out of cobra.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command returned code %d", e.Code)
}

// NewRootCmd creates the root repoagent command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "repoagent",
		Short:         "Repository command execution and change notification service",
		Long:          "repoagent runs version-control commands against shared repository sessions\nand reports when repositories change on disk.",
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("repoagent {{.Version}}\n")

	cmd.AddCommand(
		newServeCmd(),
		newExecCmd(),
		newHistoryCmd(),
	)

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code < 0 || exitErr.Code > 255 {
			return 255
		}
		return exitErr.Code
	}

	fmt.Fprintf(os.Stderr, "repoagent: %v\n", err)
	return 1
}
