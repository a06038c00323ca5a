package cmdcore

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/repoagent/repoagent/internal/eventloop"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const terminatedByUser = "Terminated by user"

// Session drives workers through an ordered list of command lines. The
// first non-zero exit code stops the sequence.
type Session struct {
	id        uuid.UUID
	label     string
	commands  []CommandLine
	newWorker func() Worker
	loop      *eventloop.Loop
	logger    *zap.Logger

	mu             sync.Mutex
	queue          []CommandLine
	worker         Worker
	errorLines     []string
	warningLines   []string
	exitCode       int
	abortRequested bool
	startedAt      time.Time
	finishedAt     time.Time

	started  *eventloop.Signal[*Session]
	output   *eventloop.Signal[Output]
	progress *eventloop.Signal[Progress]
	finished *eventloop.Signal[int]
}

// NewSession creates a session that will start workers from newWorker.
func NewSession(
	loop *eventloop.Loop,
	newWorker func() Worker,
	label string,
	commands []CommandLine,
	logger *zap.Logger,
) *Session {
	cmds := lo.Map(commands, func(c CommandLine, _ int) CommandLine { return c.Clone() })
	if label == "" && len(cmds) > 0 && len(cmds[0]) > 0 {
		label = cmds[0][0]
	}

	id := uuid.New()

	return &Session{
		id:        id,
		label:     label,
		commands:  cmds,
		newWorker: newWorker,
		loop:      loop,
		logger:    logger.With(zap.String("session", id.String())),

		queue:    cmds,
		exitCode: ExitIncomplete,

		started:  eventloop.NewSignal[*Session](loop),
		output:   eventloop.NewSignal[Output](loop),
		progress: eventloop.NewSignal[Progress](loop),
		finished: eventloop.NewSignal[int](loop),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Label() string { return s.label }

// CommandLines returns the command lines the session was created with.
func (s *Session) CommandLines() []CommandLine {
	return lo.Map(s.commands, func(c CommandLine, _ int) CommandLine { return c.Clone() })
}

func (s *Session) Started() *eventloop.Signal[*Session] { return s.started }

func (s *Session) OutputReceived() *eventloop.Signal[Output] { return s.output }

func (s *Session) ProgressReceived() *eventloop.Signal[Progress] { return s.progress }

// Finished is emitted once with the final exit code.
func (s *Session) Finished() *eventloop.Signal[int] { return s.finished }

// Run starts the first command line. It is a no-op when the session is
// running or has nothing left to run. A session aborted before Run
// finishes immediately with ExitAborted.
func (s *Session) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker != nil || len(s.queue) == 0 {
		return
	}

	s.startedAt = time.Now()

	if s.abortRequested {
		s.logger.Info("session aborted before start", zap.String("label", s.label))
		s.queue = nil
		s.finishLocked(ExitAborted)
		return
	}

	s.logger.Info("session started", zap.String("label", s.label), zap.Int("commands", len(s.queue)))
	s.started.Emit(s)
	s.startNextLocked()
}

// finishEmpty completes a session created without command lines. Such a
// session never starts a worker, so it succeeds as soon as it reaches the
// front of its queue unless it was aborted while waiting.
func (s *Session) finishEmpty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.commands) > 0 || !s.finishedAt.IsZero() {
		return
	}

	s.startedAt = time.Now()
	s.finishLocked(lo.Ternary(s.abortRequested, ExitAborted, ExitSuccess))
}

// Abort interrupts the running command and drops the rest of the queue.
// Before Run it only marks the session so Run finishes it without starting
// anything. It is a no-op once the session has finished.
func (s *Session) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isFinishedLocked() {
		return
	}

	s.abortRequested = true
	if s.worker == nil {
		return
	}

	s.logger.Info("aborting session", zap.String("label", s.label))
	s.queue = nil
	s.worker.Abort()
}

func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.worker != nil
}

func (s *Session) IsFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isFinishedLocked()
}

// IsAborted reports whether the session finished after an abort request.
func (s *Session) IsAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isFinishedLocked() && s.abortRequested
}

func (s *Session) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.exitCode
}

// ErrorString returns the collected error output, or a fixed message when
// the session was aborted.
func (s *Session) ErrorString() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isFinishedLocked() && s.abortRequested {
		return terminatedByUser
	}

	return strings.TrimRight(strings.Join(s.errorLines, ""), " \t\r\n")
}

func (s *Session) WarningString() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return strings.TrimRight(strings.Join(s.warningLines, ""), " \t\r\n")
}

// StartedAt and FinishedAt are zero until the corresponding transition.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.startedAt
}

func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finishedAt
}

func (s *Session) isFinishedLocked() bool {
	if len(s.commands) == 0 {
		return !s.finishedAt.IsZero()
	}
	return len(s.queue) == 0 && s.worker == nil
}

func (s *Session) startNextLocked() {
	cmd := s.queue[0]
	s.queue = s.queue[1:]

	w := s.newWorker()
	s.worker = w

	s.logger.Debug("starting command", zap.Stringer("command", cmd))
	w.Start(cmd, &workerSink{session: s, worker: w})
}

func (s *Session) finishLocked(code int) {
	s.exitCode = code
	s.finishedAt = time.Now()
	s.logger.Info("session finished",
		zap.String("label", s.label),
		zap.Int("code", code),
		zap.Bool("aborted", s.abortRequested))
	s.finished.Emit(code)
}

func (s *Session) onOutput(w Worker, o Output) {
	s.mu.Lock()
	if s.worker != w {
		s.mu.Unlock()
		return
	}
	if o.HasLabel(LabelError) {
		s.errorLines = append(s.errorLines, o.Text)
	}
	if o.HasLabel(LabelWarning) {
		s.warningLines = append(s.warningLines, o.Text)
	}
	s.mu.Unlock()

	s.output.Emit(o)
}

func (s *Session) onProgress(w Worker, p Progress) {
	s.mu.Lock()
	current := s.worker == w
	s.mu.Unlock()

	if current {
		s.progress.Emit(p)
	}
}

func (s *Session) onWorkerFinished(w Worker, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.worker != w {
		return
	}
	s.worker = nil

	s.output.Emit(Output{Text: controlMessage(code, s.abortRequested), Label: LabelControl})

	if code != ExitSuccess || len(s.queue) == 0 {
		s.queue = nil
		s.finishLocked(code)
		return
	}

	s.startNextLocked()
}

func controlMessage(code int, aborted bool) string {
	now := time.Now().Format(time.ANSIC)
	switch {
	case code == ExitSuccess:
		return fmt.Sprintf("[command completed successfully %s]\n", now)
	case aborted:
		return fmt.Sprintf("[command terminated by user %s]\n", now)
	default:
		return fmt.Sprintf("[command returned code %d %s]\n", code, now)
	}
}

// workerSink moves worker events onto the event loop.
type workerSink struct {
	session *Session
	worker  Worker
}

func (k *workerSink) Output(o Output) {
	k.session.loop.Post(func() { k.session.onOutput(k.worker, o) })
}

func (k *workerSink) Progress(p Progress) {
	k.session.loop.Post(func() { k.session.onProgress(k.worker, p) })
}

func (k *workerSink) Finished(exitCode int) {
	k.session.loop.Post(func() { k.session.onWorkerFinished(k.worker, exitCode) })
}
