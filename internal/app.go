package internal

import (
	"context"
	"fmt"
	"io"

	"github.com/capcom6/go-infra-fx/validator"
	"github.com/go-core-fx/fiberfx"
	"github.com/go-core-fx/healthfx"
	"github.com/go-core-fx/logger"
	"github.com/repoagent/repoagent/internal/builtin"
	"github.com/repoagent/repoagent/internal/cmdcore"
	"github.com/repoagent/repoagent/internal/config"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/repoagent/repoagent/internal/git"
	"github.com/repoagent/repoagent/internal/history"
	"github.com/repoagent/repoagent/internal/manager"
	"github.com/repoagent/repoagent/internal/metrics"
	"github.com/repoagent/repoagent/internal/repo"
	"github.com/repoagent/repoagent/internal/server"
	"github.com/repoagent/repoagent/pkg/badgerfx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Version is set at build time.
var Version = "0.0.1"

// core builds the repository service graph. Observers are started before the
// manager opens repositories and stopped after it closes them.
func core(observers ...fx.Option) fx.Option {
	return fx.Options(
		// CORE MODULES
		logger.Module(),
		logger.WithFxDefaultLogger(),
		validator.Module,
		config.Module(),
		eventloop.Module(),
		badgerfx.Module(),
		//
		// COMMAND EXECUTION
		git.Module(),
		builtin.Module(),
		cmdcore.Module(),
		//
		// REPOSITORY SERVICES
		history.Module(),
		history.RecorderModule(),
		fx.Options(observers...),
		manager.Module(),
	)
}

// Serve runs the repository service until interrupted.
func Serve() {
	fx.New(
		core(metrics.Module()),
		healthfx.Module(),
		fiberfx.Module(),
		server.Module(),
		fx.Provide(func() healthfx.Version { return healthfx.Version{Version: Version, ReleaseID: 1} }),
		//
		// LIFECYCLE MANAGEMENT
		fx.Invoke(func(lc fx.Lifecycle, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					logger.Info("repoagent starting up", zap.String("version", Version))
					return nil
				},
				OnStop: func(_ context.Context) error {
					logger.Info("repoagent shutting down gracefully")
					return nil
				},
			})
		}),
	).Run()
}

// ExecRequest is one command line to run against a repository.
type ExecRequest struct {
	Repository string
	Label      string
	Commands   []cmdcore.CommandLine
}

// Exec runs req to completion and streams its output. It returns the
// session's exit code.
func Exec(ctx context.Context, req ExecRequest, stdout, stderr io.Writer) (int, error) {
	var m *manager.Manager

	app := fx.New(core(), fx.Populate(&m))
	if err := app.Start(ctx); err != nil {
		return cmdcore.ExitAborted, fmt.Errorf("failed to start: %w", err)
	}
	defer func() { _ = app.Stop(context.WithoutCancel(ctx)) }()

	root, err := repo.FindRoot(req.Repository)
	if err != nil {
		return cmdcore.ExitAborted, err
	}

	agent, err := m.OpenRepoAgent(root)
	if err != nil {
		return cmdcore.ExitAborted, err
	}
	defer func() { _ = m.ReleaseRepoAgent(root) }()

	outConn := agent.OutputReceived().Connect(func(o cmdcore.Output) {
		switch {
		case o.HasLabel(cmdcore.LabelControl):
		case o.HasLabel(cmdcore.LabelError), o.HasLabel(cmdcore.LabelWarning):
			_, _ = io.WriteString(stderr, o.Text)
		default:
			_, _ = io.WriteString(stdout, o.Text)
		}
	})
	defer outConn.Disconnect()

	var sess *cmdcore.Session
	started := make(chan struct{})
	done := make(chan int, 1)
	finConn := agent.CommandFinished().Connect(func(s *cmdcore.Session) {
		// Deliveries may race the assignment below.
		<-started
		if s == sess {
			done <- s.ExitCode()
		}
	})
	defer finConn.Disconnect()

	sess = agent.RunCommandSequenceLabeled(req.Label, req.Commands)
	close(started)

	select {
	case code := <-done:
		return code, nil
	case <-ctx.Done():
		sess.Abort()
		return <-done, nil
	}
}

// History lists journal entries of the repository containing path, newest
// first.
func History(ctx context.Context, path string, limit int) ([]history.Record, error) {
	var svc *history.Service

	app := fx.New(
		logger.Module(),
		logger.WithFxDefaultLogger(),
		validator.Module,
		config.Module(),
		badgerfx.Module(),
		history.Module(),
		fx.Populate(&svc),
	)
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start: %w", err)
	}
	defer func() { _ = app.Stop(context.WithoutCancel(ctx)) }()

	return svc.List(ctx, path, limit)
}
