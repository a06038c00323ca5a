package cmdcore

import (
	"math"
	"slices"
	"strings"
)

// CommandLine is one argument vector for the external tool. Argument 0
// conventionally names the sub-operation.
type CommandLine []string

// Clone returns a copy that is safe to keep after submission.
func (c CommandLine) Clone() CommandLine {
	return slices.Clone(c)
}

// String renders the command line for logs.
func (c CommandLine) String() string {
	return strings.Join(c, " ")
}

const (
	LabelError   = "ui.error"
	LabelWarning = "ui.warning"
	LabelControl = "control"
)

const (
	ExitSuccess = 0
	// ExitAborted is reported for user aborts and for workers that could not start.
	ExitAborted = -1
	// ExitIncomplete is the exit code of a session that has not finished.
	ExitIncomplete = math.MinInt32
)

// Output is one chunk of command output. Label is a space separated set of
// classification tokens.
type Output struct {
	Text  string
	Label string
}

// HasLabel reports whether token is one of the output's labels.
func (o Output) HasLabel(token string) bool {
	return slices.Contains(strings.Fields(o.Label), token)
}

// Progress reports advancement of a long running topic. Nil Pos together
// with nil Total closes the topic.
type Progress struct {
	Topic string
	Pos   *int64
	Item  string
	Unit  string
	Total *int64
}

// Closed reports whether the event signals topic completion.
func (p Progress) Closed() bool {
	return p.Pos == nil && p.Total == nil
}

// Sink receives the events of exactly one worker run. Implementations must
// be safe to call from any goroutine.
type Sink interface {
	Output(o Output)
	Progress(p Progress)
	Finished(exitCode int)
}

// Worker runs exactly one command line. Start is called at most once; Abort
// may be called at any time, any number of times.
type Worker interface {
	Start(cmd CommandLine, sink Sink)
	Abort()
}

// Launcher creates workers bound to a working directory.
type Launcher interface {
	Worker(dir string) Worker
}
