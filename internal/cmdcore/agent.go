package cmdcore

import (
	"github.com/repoagent/repoagent/internal/eventloop"
	"go.uber.org/zap"
)

// Agent is a per-repository FIFO of sessions. Only the session at the
// front of the queue is ever running.
type Agent struct {
	loop     *eventloop.Loop
	launcher Launcher
	dir      string
	logger   *zap.Logger

	sessions *sessionQueue

	busyChanged     *eventloop.Signal[bool]
	commandStarted  *eventloop.Signal[*Session]
	commandFinished *eventloop.Signal[*Session]
	output          *eventloop.Signal[Output]
	progress        *eventloop.Signal[Progress]
}

// NewAgent creates an agent whose workers run in dir.
func NewAgent(loop *eventloop.Loop, launcher Launcher, dir string, logger *zap.Logger) *Agent {
	return &Agent{
		loop:     loop,
		launcher: launcher,
		dir:      dir,
		logger:   logger,

		sessions: newSessionQueue(),

		busyChanged:     eventloop.NewSignal[bool](loop),
		commandStarted:  eventloop.NewSignal[*Session](loop),
		commandFinished: eventloop.NewSignal[*Session](loop),
		output:          eventloop.NewSignal[Output](loop),
		progress:        eventloop.NewSignal[Progress](loop),
	}
}

func (a *Agent) BusyChanged() *eventloop.Signal[bool] { return a.busyChanged }

func (a *Agent) CommandStarted() *eventloop.Signal[*Session] { return a.commandStarted }

func (a *Agent) CommandFinished() *eventloop.Signal[*Session] { return a.commandFinished }

func (a *Agent) OutputReceived() *eventloop.Signal[Output] { return a.output }

func (a *Agent) ProgressReceived() *eventloop.Signal[Progress] { return a.progress }

// RunCommand queues a single command line and returns its session without
// waiting for it to start.
func (a *Agent) RunCommand(cmd CommandLine) *Session {
	return a.RunCommandSequenceLabeled("", []CommandLine{cmd})
}

// RunCommandSequence queues command lines that run as one session.
func (a *Agent) RunCommandSequence(cmds []CommandLine) *Session {
	return a.RunCommandSequenceLabeled("", cmds)
}

func (a *Agent) RunCommandSequenceLabeled(label string, cmds []CommandLine) *Session {
	sess := NewSession(a.loop, func() Worker { return a.launcher.Worker(a.dir) }, label, cmds, a.logger)

	conns := []eventloop.Connection{
		sess.Started().Connect(func(s *Session) { a.commandStarted.Emit(s) }),
		eventloop.Relay(sess.OutputReceived(), a.output, func(o Output) Output { return o }),
		eventloop.Relay(sess.ProgressReceived(), a.progress, func(p Progress) Progress { return p }),
	}
	conns = append(conns, sess.Finished().Connect(func(int) {
		for _, c := range conns {
			c.Disconnect()
		}
		a.onSessionFinished(sess)
	}))

	// busy transitions are emitted under the queue lock
	a.sessions.push(sess, func() {
		a.logger.Debug("agent became busy", zap.String("dir", a.dir))
		a.busyChanged.Emit(true)
		a.loop.Post(a.runFront)
	})

	return sess
}

// AbortCommands aborts the running session and every waiting one. It
// returns without waiting: waiting sessions finish with ExitAborted only
// when they reach the front, so completion stays in queue order.
func (a *Agent) AbortCommands() {
	sessions := a.sessions.snapshot()
	if len(sessions) > 0 {
		a.logger.Info("aborting commands", zap.String("dir", a.dir), zap.Int("sessions", len(sessions)))
	}

	for _, s := range sessions {
		s.Abort()
	}
}

// IsBusy reports whether any session is running or waiting.
func (a *Agent) IsBusy() bool {
	return a.sessions.len() > 0
}

// Dir is the working directory of the agent's workers.
func (a *Agent) Dir() string {
	return a.dir
}

func (a *Agent) runFront() {
	front := a.sessions.front()
	if front == nil {
		return
	}

	if len(front.commands) == 0 {
		front.finishEmpty()
		return
	}

	front.Run()
}

func (a *Agent) onSessionFinished(sess *Session) {
	ok := a.sessions.popFront(sess, func(more bool) {
		a.commandFinished.Emit(sess)

		if more {
			a.loop.Post(a.runFront)
			return
		}

		a.logger.Debug("agent became idle", zap.String("dir", a.dir))
		a.busyChanged.Emit(false)
	})
	if !ok {
		a.logger.Error("finished session is not at queue front", zap.Stringer("session", sess.ID()))
	}
}
