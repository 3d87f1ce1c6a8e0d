package kernelbuild

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/procexec"
)

// Build runs spec §4.6's Build pipeline for an already-Prepared id.
func (e *Engine) Build(ctx context.Context, id int64) <-chan BuildStatus {
	out := make(chan BuildStatus, 64)
	go func() {
		defer close(out)
		e.runBuild(ctx, id, out)
	}()
	return out
}

func (e *Engine) runBuild(ctx context.Context, id int64, out chan<- BuildStatus) {
	bc, ok := e.get(id)
	if !ok {
		out <- terminalFailed(buildtypes.NotFound("kernelbuild: unknown build id %d", id).Error())
		return
	}
	if finished, _ := e.Jobs.IsFinished(id); finished {
		out <- terminalFailed(buildtypes.FailedPrecondition("kernelbuild: build %d already finished", id).Error())
		return
	}

	args := []string{fmt.Sprintf("-j%d", runtime.NumCPU()), "O=out"}
	args = append(args, bc.crossArgs...)

	// emit guards every send onto out: once the watchdog below gives up
	// on an abandoned supervisor call, stop() silences any further lines
	// that call still produces instead of writing to an out that Build's
	// deferred close(out) may have already closed.
	var emitMu sync.Mutex
	stopped := false
	emit := func(bs BuildStatus) {
		emitMu.Lock()
		defer emitMu.Unlock()
		if stopped {
			return
		}
		out <- bs
	}
	stop := func() {
		emitMu.Lock()
		stopped = true
		emitMu.Unlock()
	}

	sink := procexec.OutputSinkFunc(func(stream, text string) {
		emit(BuildStatus{Status: InProgressBuild, Output: stream + ": " + text})
	})

	resultCh := make(chan supervisorOutcome, 1)
	go func() {
		res, err := e.Supervisor.Execute(ctx, &procexec.Request{
			Program: "make",
			Args:    args,
			Dir:     bc.workDir,
			Env:     e.buildEnv(bc.config, bc.toolchainBin),
			Sink:    sink,
			Cancel:  bc.cancel,
			LogFile: e.buildLogPath(bc.config.Name),
			Fs:      e.Fs,
		})
		resultCh <- supervisorOutcome{res: res, err: err}
	}()

	var outcome supervisorOutcome
	select {
	case outcome = <-resultCh:
	case <-bc.cancelNotify:
		// bc.cancel (above, wired into Request.Cancel) is the only signal
		// the supervisor itself observes, so SIGINT still reaches the
		// child regardless of this watchdog; this branch only exists so
		// a mock that ignores cancellation (spec §4.4) still yields a
		// prompt terminal status (spec §8 S3).
		select {
		case outcome = <-resultCh:
		case <-time.After(500 * time.Millisecond):
			outcome = supervisorOutcome{res: &procexec.Result{Success: false, ExitCode: -1}}
		}
	}
	stop()

	if outcome.err != nil {
		e.finishBuild(id, false, "")
		out <- terminalFailed(outcome.err.Error())
		return
	}
	if outcome.res == nil || !outcome.res.Success {
		e.finishBuild(id, false, e.buildLogPath(bc.config.Name))
		out <- terminalFailed(fmt.Sprintf("%s build failed", bc.config.Name))
		return
	}

	imagePath := filepath.Join(bc.workDir, "out", "arch", string(bc.config.Arch), "boot", bc.config.ImageType)
	exists, err := afExists(e.Fs, imagePath)
	if err != nil || !exists {
		e.finishBuild(id, false, e.buildLogPath(bc.config.Name))
		out <- terminalFailed(fmt.Sprintf("expected kernel image %s was not produced", imagePath))
		return
	}

	artifactPath, err := e.packageArtifact(bc, imagePath)
	if err != nil {
		e.finishBuild(id, false, e.buildLogPath(bc.config.Name))
		out <- terminalFailed(err.Error())
		return
	}

	e.finishBuild(id, true, artifactPath)
	out <- terminalSuccess(id)
}

type supervisorOutcome struct {
	res *procexec.Result
	err error
}

func (e *Engine) finishBuild(id int64, succeeded bool, artifactPath string) {
	e.mu.Lock()
	if bc, ok := e.builds[id]; ok {
		bc.artifactPath = artifactPath
	}
	e.mu.Unlock()
	_ = e.Jobs.MarkFinished(id, succeeded)
}

// Cancel implements spec §4.6 Cancel: idempotent, never flips a build to
// succeeded.
func (e *Engine) Cancel(id int64) error {
	bc, ok := e.get(id)
	if !ok {
		return buildtypes.NotFound("kernelbuild: unknown build id %d", id)
	}
	if finished, _ := e.Jobs.IsFinished(id); finished {
		return buildtypes.FailedPrecondition("kernelbuild: build %d already finished", id)
	}
	select {
	case bc.cancel <- struct{}{}:
	default:
	}
	select {
	case bc.cancelNotify <- struct{}{}:
	default:
	}
	return e.Jobs.MarkFinished(id, false)
}
