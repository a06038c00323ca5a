package cmdcore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ProcessLauncher runs command lines as child processes of a configured
// executable.
type ProcessLauncher struct {
	executable string
	env        []string
	logger     *zap.Logger
}

func NewProcessLauncher(executable string, env []string, logger *zap.Logger) *ProcessLauncher {
	return &ProcessLauncher{
		executable: executable,
		env:        env,
		logger:     logger,
	}
}

// Worker implements Launcher.
func (l *ProcessLauncher) Worker(dir string) Worker {
	return &ProcessWorker{
		executable: l.executable,
		env:        l.env,
		dir:        dir,
		logger:     l.logger,
	}
}

// ProcessWorker executes one command line in a child process.
type ProcessWorker struct {
	executable string
	env        []string
	dir        string
	logger     *zap.Logger

	mu      sync.Mutex
	process *os.Process
	exited  bool
	aborted bool
}

// Start implements Worker.
func (w *ProcessWorker) Start(cmdline CommandLine, sink Sink) {
	//nolint:gosec // the executable is configured by the operator
	cmd := exec.Command(w.executable, cmdline...)
	cmd.Dir = w.dir
	cmd.Env = append(os.Environ(), w.env...)
	setProcessGroup(cmd)

	w.mu.Lock()
	if w.aborted {
		w.mu.Unlock()
		sink.Finished(ExitAborted)
		return
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.mu.Unlock()
		w.failStart(sink, err)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		w.mu.Unlock()
		w.failStart(sink, err)
		return
	}

	if startErr := cmd.Start(); startErr != nil {
		w.mu.Unlock()
		w.failStart(sink, startErr)
		return
	}
	w.process = cmd.Process
	w.mu.Unlock()

	w.logger.Debug("process started",
		zap.String("executable", w.executable),
		zap.Strings("args", cmdline),
		zap.Int("pid", cmd.Process.Pid))

	go w.wait(cmd, stdout, stderr, sink)
}

func (w *ProcessWorker) failStart(sink Sink, err error) {
	w.logger.Error("failed to start process", zap.String("executable", w.executable), zap.Error(err))
	sink.Output(Output{Text: fmt.Sprintf("failed to start command: %v\n", err), Label: LabelError})
	sink.Finished(ExitAborted)
}

func (w *ProcessWorker) wait(cmd *exec.Cmd, stdout, stderr io.Reader, sink Sink) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLines(stdout, sink, func(string) string { return "" })
	}()
	go func() {
		defer wg.Done()
		readLines(stderr, sink, classifyStderr)
	}()
	wg.Wait()

	err := cmd.Wait()

	w.mu.Lock()
	w.exited = true
	w.mu.Unlock()

	code := exitCode(err)
	w.logger.Debug("process exited", zap.Int("pid", cmd.Process.Pid), zap.Int("code", code))
	sink.Finished(code)
}

// Abort implements Worker. On POSIX the process group is interrupted, on
// Windows the process is terminated.
func (w *ProcessWorker) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.aborted = true
	if w.process == nil || w.exited {
		return
	}

	if err := interruptProcess(w.process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		w.logger.Warn("failed to interrupt process", zap.Int("pid", w.process.Pid), zap.Error(err))
	}
}

func readLines(r io.Reader, sink Sink, label func(string) string) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			sink.Output(Output{Text: line, Label: label(line)})
		}
		if err != nil {
			return
		}
	}
}

func classifyStderr(line string) string {
	if strings.HasPrefix(line, "warning:") || strings.HasPrefix(line, "*** warning:") {
		return LabelWarning
	}
	return LabelError
}

func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// -1 when terminated by a signal
		return exitErr.ExitCode()
	}

	return ExitAborted
}

var _ Launcher = (*ProcessLauncher)(nil)
var _ Worker = (*ProcessWorker)(nil)
