// Package procexec is the process supervisor (spec §4.4): it spawns
// external commands, fans stdout/stderr into a log sink and a log file,
// and terminates the whole process group on cancellation. It mirrors the
// shape of the teacher's go/exec package (a Command struct plus a
// pluggable run function) but adds the line-level fan-out, log file, and
// cancellation contract the build engines require.
package procexec

import (
	"context"

	"github.com/spf13/afero"
)

// OutputSink receives one line at a time, tagged by which stream it came
// from ("stdout" or "stderr"). Implementations must not block for long;
// the supervisor's consumer goroutines call this synchronously per line.
type OutputSink interface {
	Line(stream, text string)
}

// OutputSinkFunc adapts a function to OutputSink.
type OutputSinkFunc func(stream, text string)

func (f OutputSinkFunc) Line(stream, text string) { f(stream, text) }

// Request describes one child process invocation.
type Request struct {
	Program string
	Args    []string
	Dir     string
	// Env, if non-nil, replaces the process environment entirely (the
	// caller is responsible for inheriting PATH etc. if desired).
	Env []string
	// Sink receives every stdout/stderr line tagged by stream.
	Sink OutputSink
	// Cancel, if non-nil, requests termination of the running child when
	// a value (or close) is observed.
	Cancel <-chan struct{}
	// LogFile, if non-empty, is truncate-created on Fs and receives every
	// line (stderr lines prefixed "ERR: "), independent of Sink.
	LogFile string
	Fs      afero.Fs
	// StdinFeeder, if non-nil, is drained for lines to write to the
	// child's stdin (a newline is appended if missing); the feeder ends
	// when the caller closes the channel.
	StdinFeeder <-chan string
}

// Result is what Execute returns once the child has exited (or been
// cancelled).
type Result struct {
	Success     bool
	ExitCode    int
	StdoutLines []string
	StderrLines []string
}

// Supervisor is the pluggable contract: a real OS-process implementation
// and a scripted mock both satisfy it identically.
type Supervisor interface {
	Execute(ctx context.Context, req *Request) (*Result, error)
}
