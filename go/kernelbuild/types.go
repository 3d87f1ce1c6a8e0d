// Package kernelbuild implements the Kernel Build Engine (spec §4.6):
// Prepare resolves a config into a provisioned, defconfig'd source tree
// and allocates a build id; Build runs the real compile and packages an
// artifact; Cancel and GetArtifact round out the id's lifecycle.
package kernelbuild

import (
	"time"

	"go.buildorch.dev/go/configstore"
)

// StatusKind is one BuildStatus.Status value (spec §6).
type StatusKind string

const (
	Pending             StatusKind = "Pending"
	InProgressDownload  StatusKind = "InProgressDownload"
	InProgressConfigure StatusKind = "InProgressConfigure"
	InProgressBuild     StatusKind = "InProgressBuild"
	StatusSuccess       StatusKind = "Success"
	StatusFailed        StatusKind = "Failed"
)

// BuildStatus is one entry on a Prepare/Build log stream. BuildID is
// only set on a terminal Success entry, of either Prepare or Build.
type BuildStatus struct {
	Status  StatusKind
	Output  string
	BuildID *int64
}

func terminalSuccess(id int64) BuildStatus {
	return BuildStatus{Status: StatusSuccess, BuildID: &id}
}

func terminalFailed(msg string) BuildStatus {
	return BuildStatus{Status: StatusFailed, Output: msg}
}

// PrepareRequest is the input to Engine.Prepare (spec §4.6).
type PrepareRequest struct {
	ConfigName      string
	DeviceName      string
	ConfigFragments []string
	GithubToken     string
}

// buildContext is the state recorded once Prepare succeeds, consulted
// by Build, Cancel, and GetArtifact.
type buildContext struct {
	id           int64
	config       configstore.KernelConfig
	device       string
	fragments    []string
	workDir      string
	toolchainDir string
	toolchainBin string
	crossArgs    []string

	// cancel is delivered only to the Process Supervisor (as
	// procexec.Request.Cancel), so SIGINT always reaches the child
	// process group regardless of what else observes a Cancel call.
	cancel chan struct{}
	// cancelNotify is a separate signal observed directly by runBuild's
	// mock-promptness watchdog; it is never wired into a Request.Cancel
	// field, so it never competes with cancel for the same send.
	cancelNotify chan struct{}

	artifactPath string
	startedAt    time.Time
}
