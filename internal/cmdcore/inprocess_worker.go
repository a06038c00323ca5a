package cmdcore

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// exitPanic is reported when an in-process command panics.
const exitPanic = 255

// Invocation is what an in-process command sees of its run.
type Invocation struct {
	Dir  string
	Args CommandLine

	sink Sink
}

// NewInvocation binds a command line run in dir to sink.
func NewInvocation(dir string, args CommandLine, sink Sink) *Invocation {
	return &Invocation{Dir: dir, Args: args.Clone(), sink: sink}
}

// Write emits one output chunk.
func (inv *Invocation) Write(text, label string) {
	inv.sink.Output(Output{Text: text, Label: label})
}

// Printf emits formatted, unlabeled output.
func (inv *Invocation) Printf(format string, args ...any) {
	inv.Write(fmt.Sprintf(format, args...), "")
}

// Errorf emits formatted, error-labeled output.
func (inv *Invocation) Errorf(format string, args ...any) {
	inv.Write(fmt.Sprintf(format, args...), LabelError)
}

// Warnf emits formatted, warning-labeled output.
func (inv *Invocation) Warnf(format string, args ...any) {
	inv.Write(fmt.Sprintf(format, args...), LabelWarning)
}

// Progress emits a progress event.
func (inv *Invocation) Progress(p Progress) {
	inv.sink.Progress(p)
}

// Handler executes in-process command lines. Implementations must return
// promptly once ctx is cancelled; ctx checks are their abort points.
type Handler interface {
	Run(ctx context.Context, inv *Invocation) int
}

type HandlerFunc func(ctx context.Context, inv *Invocation) int

func (f HandlerFunc) Run(ctx context.Context, inv *Invocation) int {
	return f(ctx, inv)
}

// InProcessLauncher runs command lines on goroutines of this process.
type InProcessLauncher struct {
	handler Handler
	logger  *zap.Logger
}

func NewInProcessLauncher(handler Handler, logger *zap.Logger) *InProcessLauncher {
	return &InProcessLauncher{
		handler: handler,
		logger:  logger,
	}
}

// Worker implements Launcher.
func (l *InProcessLauncher) Worker(dir string) Worker {
	return &InProcessWorker{
		handler: l.handler,
		dir:     dir,
		logger:  l.logger,
	}
}

// InProcessWorker executes one command line on a dedicated goroutine.
// Abort cancels the context handed to the command.
type InProcessWorker struct {
	handler Handler
	dir     string
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

// Start implements Worker.
func (w *InProcessWorker) Start(cmdline CommandLine, sink Sink) {
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.cancel = cancel
	if w.aborted {
		cancel()
	}
	w.mu.Unlock()

	inv := NewInvocation(w.dir, cmdline, sink)

	go func() {
		defer cancel()
		sink.Finished(w.run(ctx, inv))
	}()
}

func (w *InProcessWorker) run(ctx context.Context, inv *Invocation) (code int) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("in-process command panicked",
				zap.Strings("args", inv.Args),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			inv.Errorf("** unknown exception encountered: %v\n", r)
			code = exitPanic
		}
	}()

	if ctx.Err() != nil {
		return ExitAborted
	}

	code = w.handler.Run(ctx, inv)
	if ctx.Err() != nil {
		return ExitAborted
	}

	return code
}

// Abort implements Worker.
func (w *InProcessWorker) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.aborted = true
	if w.cancel != nil {
		w.cancel()
	}
}

var _ Launcher = (*InProcessLauncher)(nil)
var _ Worker = (*InProcessWorker)(nil)
