package rombuild

import (
	"context"
	"encoding/xml"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"

	"go.buildorch.dev/go/buildlog"
	"go.buildorch.dev/go/buildstream"
	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/gitrepo"
	"go.buildorch.dev/go/procexec"
)

// StartBuild implements spec §4.7's entry point: resolve the request,
// reject immediately if a build is already active, otherwise allocate a
// build id and run the pipeline in the background.
func (e *Engine) StartBuild(ctx context.Context, req BuildRequest) StartBuildResult {
	cancel, ok := e.tryAcquire()
	if !ok {
		return StartBuildResult{Accepted: false, StatusMessage: "A build is already running."}
	}

	res, err := resolveConfig(e.Store, req)
	if err != nil {
		e.release()
		return StartBuildResult{Accepted: false, StatusMessage: err.Error()}
	}

	id := e.Jobs.Allocate()
	e.bindActiveID(id)
	stream := buildstream.New[LogEntry]()
	entry := &BuildEntry{ID: id, UploadMethod: req.UploadMethod}

	e.mu.Lock()
	e.entries[id] = entry
	e.streams[id] = stream
	e.mu.Unlock()

	go e.runBuild(ctx, id, req, res, stream, entry, cancel)

	return StartBuildResult{BuildID: id, Accepted: true, StatusMessage: "accepted"}
}

func (e *Engine) runBuild(ctx context.Context, id string, req BuildRequest, res resolved, stream *buildstream.Broadcaster[LogEntry], entry *BuildEntry, cancel <-chan struct{}) {
	defer e.release()

	workDir := e.workDir()
	logPath := filepath.Join(e.TempDir, "output-rombuild-"+id+".log")

	if err := e.Fs.MkdirAll(workDir, 0o755); err != nil {
		entry.Success = false
		entry.ErrorMessage = err.Error()
		_ = e.Jobs.MarkFinished(id, false)
		stream.Publish(LogEntry{Output: err.Error(), Level: LevelError, IsFinished: true})
		stream.Close()
		return
	}

	fail := func(stepErr error) {
		msg := e.harvestError(logPath, stepErr)
		entry.Success = false
		entry.ErrorMessage = msg
		_ = e.Jobs.MarkFinished(id, false)
		stream.Publish(LogEntry{Output: msg, Level: LevelError, IsFinished: true})
		stream.Close()
	}

	info := func(format string, a ...interface{}) {
		msg := fmt.Sprintf(format, a...)
		buildlog.Infof("rombuild[%s]: %s", id, msg)
		stream.Publish(LogEntry{Output: msg, Level: LevelInfo})
	}

	link, makeTarget, matcher := res.buildTarget()

	var env []string
	if req.GithubToken != "" {
		askpass, err := writeAskpass(e.Fs, workDir)
		if err != nil {
			fail(fmt.Errorf("git-askpass: %w", err))
			return
		}
		env = append(env, "GIT_ASKPASS="+askpass, "TOKEN="+req.GithubToken)
	}

	settings := e.GetSettings()
	repoOnPath := false
	if settings.DoRepoSync {
		info("bootstrapping repo-managed source tree")
		if _, err := exec.LookPath("repo"); err != nil {
			fail(fmt.Errorf("repo bootstrap: %q not found on PATH", "repo"))
			return
		}
		repoOnPath = true

		if err := e.ensureRepoManifests(ctx, workDir, link, res.branch.ManifestBranch, env, logPath); err != nil {
			fail(fmt.Errorf("repo init: %w", err))
			return
		}

		if err := e.reconcileLocalManifest(ctx, workDir, res, req, env); err != nil {
			fail(fmt.Errorf("local manifest: %w", err))
			return
		}

		e.scanSubmodules(ctx, workDir, repoOnPath, req.ParallelJobs, env, info)

		args := []string{"sync", "-c", "--force-sync", "--no-clone-bundle", "--no-tags", fmt.Sprintf("-j%d", jobsOrDefault(req.ParallelJobs))}
		if req.ForceCheckout {
			args = append(args, "--force-remove-dirty")
		}
		if _, err := e.Supervisor.Execute(ctx, &procexec.Request{
			Program: "repo",
			Args:    args,
			Dir:     workDir,
			Env:     env,
			Sink:    logSink(info),
			LogFile: logPath,
			Fs:      e.Fs,
		}); err != nil {
			fail(fmt.Errorf("repo sync: %w", err))
			return
		}
	}

	raiseFileDescriptorLimit(info)

	vendor := detectVendor(e.Fs, workDir)
	release := detectRelease(e.Fs, workDir, vendor)
	entry.Vendor = vendor
	entry.Release = release
	info("detected vendor=%s release=%q", vendor, release)

	if settings.DoCleanBuild {
		info("clean build requested: removing out/")
		_ = e.Fs.RemoveAll(filepath.Join(workDir, "out"))
	}

	lines := buildCommandLines(settings, vendor, res.branch.Device, release, req.BuildVariant, makeTarget, jobsOrDefault(req.ParallelJobs))
	feeder := make(chan string, len(lines))
	for _, l := range lines {
		feeder <- l
	}
	close(feeder)

	buildResult, err := e.Supervisor.Execute(ctx, &procexec.Request{
		Program:     "sh",
		Dir:         workDir,
		Env:         env,
		Sink:        logSink(info),
		LogFile:     logPath,
		Fs:          e.Fs,
		StdinFeeder: feeder,
		Cancel:      cancel,
	})
	if err != nil {
		fail(fmt.Errorf("build command: %w", err))
		return
	}
	if !buildResult.Success {
		fail(fmt.Errorf("build command exited with code %d", buildResult.ExitCode))
		return
	}

	productDir := filepath.Join(workDir, "out", "target", "product", res.branch.Device)
	names, err := afero.ReadDir(e.Fs, productDir)
	if err != nil {
		fail(fmt.Errorf("artifact location: %w", err))
		return
	}
	var fileNames []string
	for _, n := range names {
		fileNames = append(fileNames, n.Name())
	}
	artifactName, ok := matcher.Match(fileNames)
	if !ok {
		fail(fmt.Errorf("artifact location: no file under %s matched %s %q", productDir, matcher.Kind, matcher.Value))
		return
	}
	artifactPath := filepath.Join(productDir, artifactName)
	entry.ArtifactPath = artifactPath
	info("artifact located at %s", artifactPath)

	entry.Success = true
	_ = e.Jobs.MarkFinished(id, true)
	stream.Publish(LogEntry{Output: "build succeeded", Level: LevelInfo, IsFinished: true})
	stream.Close()
}

// buildTarget resolves the (link, make_target, artifact matcher) triple
// from whichever of rom/recovery this build's config matched.
func (r resolved) buildTarget() (link, makeTarget string, matcher configstore.ArtifactMatcher) {
	if r.kind == configRecovery {
		return r.recovery.Link, r.recovery.MakeTarget, r.recovery.ArtifactMatcher
	}
	return r.rom.Link, r.rom.MakeTarget, r.rom.ArtifactMatcher
}

func jobsOrDefault(j int) int {
	if j > 0 {
		return j
	}
	return runtime.NumCPU()
}

func logSink(info func(format string, a ...interface{})) procexec.OutputSink {
	return procexec.OutputSinkFunc(func(stream, text string) {
		info("%s: %s", stream, text)
	})
}

// ensureRepoManifests implements spec §4.7 step 6b.
func (e *Engine) ensureRepoManifests(ctx context.Context, workDir, link, branch string, env []string, logPath string) error {
	manifestsDir := filepath.Join(workDir, ".repo", "manifests.git")
	needsInit := true
	if gw, err := gitrepo.Open(manifestsDir, "origin", "", nil); err == nil {
		remoteURL, rerr := gw.GetRemoteURL()
		if rerr == nil && remoteURL == link {
			if same, cerr := gw.CmpHeadWithRemoteBranch(branch); cerr == nil && same {
				needsInit = false
			}
		}
	}
	if !needsInit {
		return nil
	}

	feeder := make(chan string, 1)
	feeder <- "y\n"
	close(feeder)

	res, err := e.Supervisor.Execute(ctx, &procexec.Request{
		Program:     "repo",
		Args:        []string{"init", "-u", link, "-b", branch, "--git-lfs", "--depth=1"},
		Dir:         workDir,
		Env:         env,
		LogFile:     logPath,
		Fs:          e.Fs,
		StdinFeeder: feeder,
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("repo init exited with code %d", res.ExitCode)
	}
	return nil
}

// reconcileLocalManifest implements spec §4.7 step 6c.
func (e *Engine) reconcileLocalManifest(ctx context.Context, workDir string, res resolved, req BuildRequest, env []string) error {
	localManifests := filepath.Join(workDir, ".repo", "local_manifests")
	if req.ForceCheckout {
		_ = e.Fs.RemoveAll(localManifests)
	}
	if err := e.Fs.MkdirAll(localManifests, 0o755); err != nil {
		return err
	}

	if res.kind == configRecovery {
		return afero.WriteFile(e.Fs, filepath.Join(localManifests, "rombuilder-rs.xml"), []byte(res.localXML), 0o644)
	}

	return e.Reconciler.Reconcile(res.manifest.URL, res.manifest.Branch, localManifests, req.GithubToken, nil)
}

type manifestXML struct {
	Projects []manifestProjectXML `xml:"project"`
}

type manifestProjectXML struct {
	Name              string `xml:"name,attr"`
	RecurseSubmodules string `xml:"recurse-submodules,attr"`
}

// scanSubmodules implements spec §4.7 step 6d and SUPPLEMENTED FEATURE
// #5: it reuses the up-front PATH check from step 6a instead of
// reprobing PATH per submodule, and logs (without failing the build) on
// any single submodule's failure.
func (e *Engine) scanSubmodules(ctx context.Context, workDir string, repoOnPath bool, jobs int, env []string, info func(string, ...interface{})) {
	if !repoOnPath {
		info("submodule scan: repo not on PATH, skipping")
		return
	}
	localManifests := filepath.Join(workDir, ".repo", "local_manifests")
	xmls, err := afero.Glob(e.Fs, filepath.Join(localManifests, "*.xml"))
	if err != nil {
		info("submodule scan: listing local_manifests: %s", err)
		return
	}

	for _, x := range xmls {
		raw, err := afero.ReadFile(e.Fs, x)
		if err != nil {
			info("submodule scan: reading %s: %s", x, err)
			continue
		}
		var m manifestXML
		if err := xml.Unmarshal(raw, &m); err != nil {
			info("submodule scan: parsing %s: %s", x, err)
			continue
		}
		for _, p := range m.Projects {
			if p.RecurseSubmodules != "true" {
				continue
			}
			if _, err := e.Supervisor.Execute(ctx, &procexec.Request{
				Program: "repo",
				Args:    []string{"sync", "-c", "--force-sync", "--no-clone-bundle", "--no-tags", fmt.Sprintf("-j%d", jobsOrDefault(jobs)), p.Name},
				Dir:     workDir,
				Env:     env,
				Fs:      e.Fs,
			}); err != nil {
				info("submodule %s: sync failed: %s", p.Name, err)
				continue
			}
			gw, err := gitrepo.Open(filepath.Join(workDir, p.Name), "origin", "", nil)
			if err != nil {
				info("submodule %s: open failed: %s", p.Name, err)
				continue
			}
			if err := gw.UpdateModules(); err != nil {
				info("submodule %s: update failed: %s", p.Name, err)
			}
		}
	}
}

// buildCommandLines implements spec §4.7 step 11.
func buildCommandLines(settings Settings, vendor, codename, release string, variant BuildVariant, target string, jobs int) []string {
	lines := []string{
		"set -e",
		"source build/envsetup.sh",
	}
	if !settings.UseCcache {
		lines = append(lines, "unset USE_CCACHE; unset CCACHE_EXEC;")
	} else {
		lines = append(lines, "true")
	}
	if release != "" {
		lines = append(lines, fmt.Sprintf("lunch %s_%s-%s-%s", vendor, codename, release, variant))
	} else {
		lines = append(lines, fmt.Sprintf("llunch %s_%s-%s", vendor, codename, variant))
	}
	lines = append(lines, fmt.Sprintf("m %s -j%d", target, jobs))
	lines = append(lines, "exit 0")
	return lines
}

func (e *Engine) harvestError(logPath string, stepErr error) string {
	if raw, err := afero.ReadFile(e.Fs, logPath); err == nil && len(raw) > 0 {
		return stepErr.Error() + "\n" + string(raw)
	}
	return stepErr.Error()
}

// raiseFileDescriptorLimit implements spec §4.7 step 7 on a best-effort
// basis; platforms without RLIMIT_NOFILE support are a silent no-op.
func raiseFileDescriptorLimit(info func(string, ...interface{})) {
	if err := raiseNoFile(65536); err != nil {
		info("ulimit: could not raise RLIMIT_NOFILE: %s", err)
	}
}
