package kernelbuild

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"go.buildorch.dev/go/buildlog"
	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/procexec"
)

// Prepare runs spec §4.6's Prepare pipeline and returns a stream that
// ends with a terminal Success (carrying the allocated build id) or
// Failed entry.
func (e *Engine) Prepare(ctx context.Context, req PrepareRequest) <-chan BuildStatus {
	out := make(chan BuildStatus, 64)
	go func() {
		defer close(out)
		e.runPrepare(ctx, req, out)
	}()
	return out
}

func (e *Engine) runPrepare(ctx context.Context, req PrepareRequest, out chan<- BuildStatus) {
	cfg, ok := e.Configs.Get(req.ConfigName)
	if !ok {
		out <- terminalFailed(fmt.Sprintf("ConfigNotFound: %s", req.ConfigName))
		return
	}
	if !deviceAllowed(cfg.Defconfig.Devices, req.DeviceName) {
		out <- terminalFailed(fmt.Sprintf("UnknownDevice: %s", req.DeviceName))
		return
	}
	for _, name := range req.ConfigFragments {
		if _, ok := cfg.FragmentByName(name); !ok {
			out <- terminalFailed(fmt.Sprintf("Unknown fragment: %s", name))
			return
		}
	}

	tc, err := e.Catalog.Select(cfg.Arch, cfg.Toolchains.Clang)
	if err != nil {
		out <- terminalFailed(err.Error())
		return
	}

	out <- BuildStatus{Status: InProgressDownload, Output: fmt.Sprintf("provisioning toolchain %s", tc.Name)}
	version, err := e.Provisioner.Provision(ctx, tc, func(msg string) {
		out <- BuildStatus{Status: InProgressDownload, Output: msg}
	})
	if err != nil {
		out <- terminalFailed(err.Error())
		return
	}
	buildlog.Infof("kernelbuild: toolchain %s ready: %s", tc.Name, version)

	workDir := e.workDir(cfg.Name)
	if err := e.Reconciler.Reconcile(cfg, workDir, req.GithubToken, func(msg string) {
		out <- BuildStatus{Status: InProgressConfigure, Output: msg}
	}); err != nil {
		out <- terminalFailed(err.Error())
		return
	}

	toolchainBin := filepath.Join(e.Provisioner.InstallDir(tc), "bin")
	defconfig := renderScheme(cfg.Defconfig.Scheme, req.DeviceName)

	args := []string{fmt.Sprintf("-j%d", runtime.NumCPU()), "O=out", defconfig}
	for _, name := range req.ConfigFragments {
		frag, _ := cfg.FragmentByName(name)
		args = append(args, renderScheme(frag.Scheme, req.DeviceName))
	}
	crossArgs := append(append([]string{}, tc.BuildArgs(cfg.Arch)...), cfg.BuildArgs()...)
	args = append(args, crossArgs...)

	if err := e.Fs.MkdirAll(filepath.Join(workDir, "out"), 0o755); err != nil {
		out <- terminalFailed(fmt.Sprintf("creating out/: %s", err))
		return
	}

	sink := procexec.OutputSinkFunc(func(stream, text string) {
		out <- BuildStatus{Status: InProgressConfigure, Output: stream + ": " + text}
	})
	res, err := e.Supervisor.Execute(ctx, &procexec.Request{
		Program: "make",
		Args:    args,
		Dir:     workDir,
		Env:     e.buildEnv(cfg, toolchainBin),
		Sink:    sink,
		LogFile: e.prepareLogPath(cfg.Name),
		Fs:      e.Fs,
	})
	if err != nil {
		out <- terminalFailed(err.Error())
		return
	}
	if !res.Success {
		out <- terminalFailed(fmt.Sprintf("%s defconfig failed with exit code %d", cfg.Name, res.ExitCode))
		return
	}

	id := e.Jobs.Allocate()
	e.store(&buildContext{
		id:           id,
		config:       cfg,
		device:       req.DeviceName,
		fragments:    req.ConfigFragments,
		workDir:      workDir,
		toolchainDir: e.Provisioner.InstallDir(tc),
		toolchainBin: toolchainBin,
		crossArgs:    crossArgs,
		cancel:       make(chan struct{}, 1),
		cancelNotify: make(chan struct{}, 1),
	})
	out <- terminalSuccess(id)
}

func (e *Engine) buildEnv(cfg configstore.KernelConfig, toolchainBin string) []string {
	env := []string{
		"PATH=" + toolchainBin + ":/usr/bin:/bin",
		"KBUILD_BUILD_USER=builder",
		"KBUILD_BUILD_HOST=buildorch",
	}
	for _, v := range cfg.Env {
		env = append(env, v.Name+"="+v.Value)
	}
	return env
}
