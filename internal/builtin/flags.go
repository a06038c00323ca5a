package builtin

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/pflag"
)

// globalFlags are the repository-targeting flags a repository agent
// prepends to every command line. Git has no hidden content, so --hidden
// is accepted and ignored.
type globalFlags struct {
	repository string
	chdir      string
	gitDir     string
	workTree   string
	hidden     bool
}

func parseGlobal(args []string) (globalFlags, []string, error) {
	var g globalFlags

	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)
	fs.StringVarP(&g.repository, "repository", "R", "", "repository root directory or overlay target")
	fs.StringVarP(&g.chdir, "chdir", "C", "", "run as if started in this directory")
	fs.StringVar(&g.gitDir, "git-dir", "", "path to the repository metadata directory")
	fs.StringVar(&g.workTree, "work-tree", "", "path to the working tree")
	fs.BoolVar(&g.hidden, "hidden", false, "include hidden content")

	if err := fs.Parse(args); err != nil {
		return g, nil, fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}

	return g, fs.Args(), nil
}

// target resolves the repository path the flags point at, relative to dir.
func (g globalFlags) target(dir string) string {
	switch {
	case g.gitDir != "":
		return resolve(dir, g.gitDir)
	case g.repository != "":
		return resolve(dir, g.repository)
	case g.chdir != "":
		return resolve(dir, g.chdir)
	case g.workTree != "":
		return resolve(dir, g.workTree)
	default:
		return dir
	}
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}
