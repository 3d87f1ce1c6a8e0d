package procexec

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scripted describes one canned response for the Mock supervisor.
type Scripted struct {
	Success     bool
	ExitCode    int
	StdoutLines []string
	StderrLines []string
	Delay       time.Duration
}

// Mock is a deterministic Supervisor that replays a pre-scripted sequence
// of results, one per call to Execute, in order. It ignores cancellation
// by design (spec §4.4: "the mock ignores cancellation by design") and
// exists so engine tests never depend on a real toolchain or kernel tree.
type Mock struct {
	mu      sync.Mutex
	scripts []Scripted
	calls   []Request
}

// NewMock returns a Mock that will answer successive Execute calls with
// the given scripts, in order.
func NewMock(scripts ...Scripted) *Mock {
	return &Mock{scripts: scripts}
}

// Calls returns every Request passed to Execute so far, for assertions.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) Execute(_ context.Context, req *Request) (*Result, error) {
	m.mu.Lock()
	if len(m.scripts) == 0 {
		m.mu.Unlock()
		return nil, fmt.Errorf("procexec: mock has no more scripted responses")
	}
	s := m.scripts[0]
	m.scripts = m.scripts[1:]
	m.calls = append(m.calls, *req)
	m.mu.Unlock()

	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	for _, l := range s.StdoutLines {
		if req.Sink != nil {
			req.Sink.Line("stdout", l)
		}
	}
	for _, l := range s.StderrLines {
		if req.Sink != nil {
			req.Sink.Line("stderr", l)
		}
	}

	return &Result{
		Success:     s.Success,
		ExitCode:    s.ExitCode,
		StdoutLines: s.StdoutLines,
		StderrLines: s.StderrLines,
	}, nil
}
