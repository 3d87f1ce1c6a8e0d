// Package rombuild implements the ROM Build Engine (spec §4.7): a
// single-active-build pipeline that resolves a (config, rom, device)
// triple against the Config Registry's manifest tables, bootstraps a
// repo-managed source tree, runs the Android build, and schedules the
// resulting artifact for retrieval.
package rombuild

import "go.buildorch.dev/go/configstore"

// BuildVariant is one of the three Android build variants (glossary).
type BuildVariant string

const (
	VariantUser      BuildVariant = "user"
	VariantUserdebug BuildVariant = "userdebug"
	VariantEng       BuildVariant = "eng"
)

// UploadMethod selects how a finished build's artifact is made
// available (spec §4.7 step 13, §4.9).
type UploadMethod string

const (
	UploadNone      UploadMethod = "none"
	UploadLocalFile UploadMethod = "local_file"
	UploadGofile    UploadMethod = "gofile"
	UploadStream    UploadMethod = "stream"
)

// Settings holds the mutable, process-wide ROM build settings (spec
// §6). All state is in-memory; there is no persistence across restarts.
type Settings struct {
	DoRepoSync    bool
	DoCleanBuild  bool
	UseCcache     bool
	UseRbeService bool
	RbeAPIToken   string
	DoUpload      bool
}

// SettingsUpdate is the partial form accepted by SetSettings: a nil
// field leaves the corresponding Settings field unchanged.
type SettingsUpdate struct {
	DoRepoSync    *bool
	DoCleanBuild  *bool
	UseCcache     *bool
	UseRbeService *bool
	RbeAPIToken   *string
	DoUpload      *bool
}

// Apply merges u into s, changing only the fields u sets.
func (u SettingsUpdate) Apply(s *Settings) {
	if u.DoRepoSync != nil {
		s.DoRepoSync = *u.DoRepoSync
	}
	if u.DoCleanBuild != nil {
		s.DoCleanBuild = *u.DoCleanBuild
	}
	if u.UseCcache != nil {
		s.UseCcache = *u.UseCcache
	}
	if u.UseRbeService != nil {
		s.UseRbeService = *u.UseRbeService
	}
	if u.RbeAPIToken != nil {
		s.RbeAPIToken = *u.RbeAPIToken
	}
	if u.DoUpload != nil {
		s.DoUpload = *u.DoUpload
	}
}

// BuildRequest is the input to StartBuild (spec §6).
type BuildRequest struct {
	ConfigName        string
	RomName           string
	RomAndroidVersion string
	TargetDevice      string
	BuildVariant      BuildVariant
	ParallelJobs      int
	GithubToken       string
	ForceCheckout     bool
	UploadMethod      UploadMethod
}

// StartBuildResult is StartBuild's immediate (non-streaming) reply.
type StartBuildResult struct {
	BuildID       string
	Accepted      bool
	StatusMessage string
}

// LogLevel is a BuildLogEntry's severity.
type LogLevel string

const (
	LevelInfo  LogLevel = "Info"
	LevelError LogLevel = "Error"
)

// LogEntry is one frame on a build's StreamLogs subscription (spec §6).
type LogEntry struct {
	Output     string
	Level      LogLevel
	IsFinished bool
}

// BuildEntry is the per-build bookkeeping for one ROM build. Vendor and
// Release are filled in once detection runs; Success, ErrorMessage and
// ArtifactPath are set when the build ends (spec §4.7 step 14 / on
// failure).
type BuildEntry struct {
	ID           string
	Success      bool
	ErrorMessage string
	ArtifactPath string
	UploadMethod UploadMethod
	Vendor       string
	Release      string
}

// resolved is the outcome of config/device/branch resolution (spec §4.7
// steps 1-4), carrying everything the rest of the pipeline needs.
type resolved struct {
	kind     configType
	rom      configstore.ROMEntry
	recovery configstore.RecoveryEntry
	branch   configstore.Branch
	manifest configstore.Repo
	localXML string // synthesized recovery local-manifest XML, empty for standard
}

// configType is the sum type replacing the source's hand-rolled
// Standard|Recovery tag (spec §9 design note).
type configType int

const (
	configStandard configType = iota
	configRecovery
)
