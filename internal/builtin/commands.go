package builtin

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/git"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const exitFailure = 255

type command func(ctx context.Context, env *env, args []string) error

// env is what a builtin command sees: the target repository and the
// invocation to report through.
type env struct {
	repoPath string
	inv      *cmdcore.Invocation
}

// Commands runs version-control commands in-process on top of go-git.
type Commands struct {
	git    *git.Service
	logger *zap.Logger

	table map[string]command
}

func New(gitSvc *git.Service, logger *zap.Logger) *Commands {
	c := &Commands{
		git:    gitSvc,
		logger: logger,
	}

	c.table = map[string]command{
		"status":   c.status,
		"branches": c.branches,
		"tags":     c.tags,
		"tip":      c.tip,
		"log":      c.log,
		"cat":      c.cat,
		"pull":     c.pull,
		"clone":    c.clone,
	}

	return c
}

// Names lists the available commands.
func (c *Commands) Names() []string {
	names := lo.Keys(c.table)
	slices.Sort(names)
	return names
}

// Run parses global flags, dispatches to the named command and maps
// failures to an error line and a non-zero exit code.
func (c *Commands) Run(ctx context.Context, inv *cmdcore.Invocation) int {
	global, rest, err := parseGlobal(inv.Args)
	if err != nil {
		inv.Errorf("abort: %v\n", err)
		return exitFailure
	}

	if len(rest) == 0 {
		inv.Errorf("abort: no command given (available: %s)\n", strings.Join(c.Names(), ", "))
		return exitFailure
	}

	name, args := rest[0], rest[1:]
	cmd, ok := c.table[name]
	if !ok {
		inv.Errorf("abort: unknown command '%s'\n", name)
		return exitFailure
	}

	e := &env{
		repoPath: global.target(inv.Dir),
		inv:      inv,
	}

	c.logger.Debug("running builtin command",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.String("repository", e.repoPath),
		zap.Bool("hidden", global.hidden))

	if err := cmd(ctx, e, args); err != nil {
		if ctx.Err() != nil {
			inv.Errorf("interrupted!\n")
			return cmdcore.ExitAborted
		}
		inv.Errorf("abort: %v\n", err)
		return exitFailure
	}

	return cmdcore.ExitSuccess
}

func (c *Commands) status(ctx context.Context, e *env, args []string) error {
	if err := noArgs("status", args); err != nil {
		return err
	}

	entries, err := c.git.Status(ctx, e.repoPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		e.inv.Printf("%c %s\n", entry.Code, entry.Path)
	}
	return nil
}

func (c *Commands) branches(ctx context.Context, e *env, args []string) error {
	if err := noArgs("branches", args); err != nil {
		return err
	}

	branches, err := c.git.Branches(ctx, e.repoPath)
	if err != nil {
		return err
	}

	for _, b := range branches {
		marker := " "
		if b.Current {
			marker = "*"
		}
		e.inv.Printf("%s %-30s %s\n", marker, b.Name, shortHash(b.Hash))
	}
	return nil
}

func (c *Commands) tags(ctx context.Context, e *env, args []string) error {
	if err := noArgs("tags", args); err != nil {
		return err
	}

	tags, err := c.git.Tags(ctx, e.repoPath)
	if err != nil {
		return err
	}

	for _, t := range tags {
		e.inv.Printf("%-30s %s\n", t.Name, shortHash(t.Hash))
	}
	return nil
}

func (c *Commands) tip(ctx context.Context, e *env, args []string) error {
	if err := noArgs("tip", args); err != nil {
		return err
	}

	commit, err := c.git.Tip(ctx, e.repoPath)
	if err != nil {
		return err
	}

	printCommit(e.inv, commit)
	return nil
}

func (c *Commands) log(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.IntP("limit", "l", 0, "limit number of changes displayed")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: log takes no positional arguments", ErrInvalidArguments)
	}
	if *limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidArguments)
	}

	var total *int64
	if *limit > 0 {
		total = lo.ToPtr(int64(*limit))
	}

	var pos int64
	err := c.git.Log(ctx, e.repoPath, *limit, func(commit git.CommitInfo) {
		printCommit(e.inv, commit)
		pos++
		e.inv.Progress(cmdcore.Progress{
			Topic: "log",
			Pos:   lo.ToPtr(pos),
			Item:  shortHash(commit.Hash),
			Unit:  "changesets",
			Total: total,
		})
	})
	e.inv.Progress(cmdcore.Progress{Topic: "log"})

	return err
}

func (c *Commands) cat(ctx context.Context, e *env, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: cat takes exactly one file", ErrInvalidArguments)
	}

	content, err := c.git.Cat(ctx, e.repoPath, args[0])
	if err != nil {
		return err
	}

	e.inv.Printf("%s", content)
	return nil
}

func (c *Commands) pull(ctx context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: pull takes at most one branch", ErrInvalidArguments)
	}

	branch := ""
	if len(args) == 1 {
		branch = args[0]
	}

	return c.git.Pull(ctx, e.repoPath, branch, &progressWriter{inv: e.inv})
}

func (c *Commands) clone(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("clone", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	branch := fs.StringP("branch", "b", "", "clone only the specified branch")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: clone takes a source and a destination", ErrInvalidArguments)
	}

	req := git.CloneRequest{
		URL:       fs.Arg(0),
		Branch:    *branch,
		Directory: resolve(e.inv.Dir, fs.Arg(1)),
	}

	return c.git.Clone(ctx, req, &progressWriter{inv: e.inv})
}

func printCommit(inv *cmdcore.Invocation, c git.CommitInfo) {
	inv.Printf("changeset:   %s\n", c.Hash)
	inv.Printf("user:        %s\n", c.Author)
	inv.Printf("date:        %s\n", c.Date.Format("Mon Jan 02 15:04:05 2006 -0700"))
	inv.Printf("summary:     %s\n\n", c.Summary)
}

func noArgs(name string, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments", ErrInvalidArguments, name)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// progressWriter forwards transport progress text as unlabeled output.
type progressWriter struct {
	inv *cmdcore.Invocation
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.inv.Write(string(p), "")
	return len(p), nil
}

var _ cmdcore.Handler = (*Commands)(nil)
