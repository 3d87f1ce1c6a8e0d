package rombuild

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"go.buildorch.dev/go/buildstream"
	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/jobregistry"
	"go.buildorch.dev/go/procexec"
)

// DirectoryType selects which tree CleanDirectory/DirectoryExists act on
// (spec §6): the whole build directory, or just its out/ subtree.
type DirectoryType int

const (
	RomDirectory DirectoryType = iota
	BuildDirectory
)

// Engine owns the registries and collaborators needed to drive
// StartBuild, StreamLogs, and GetBuildEntry for ROM builds (spec §4.7).
// Unlike the kernel engine, only one build may be active at a time.
type Engine struct {
	Store      *configstore.ROMConfigStore
	Jobs       *jobregistry.ROMRegistry
	Supervisor procexec.Supervisor
	Reconciler SourceReconciler
	Fs         afero.Fs
	TempDir    string
	OutputRoot string

	settingsMu sync.Mutex
	settings   Settings

	mu            sync.Mutex
	active        bool
	activeBuildID string
	cancel        chan struct{}
	entries       map[string]*BuildEntry
	streams       map[string]*buildstream.Broadcaster[LogEntry]
}

// New wires an Engine from its collaborators, defaulting to the
// production Git-backed SourceReconciler and the zero-value Settings
// (spec §6: ccache and rbe default to disabled, upload defaults to off).
func New(store *configstore.ROMConfigStore, sup procexec.Supervisor, fs afero.Fs, tempDir, outputRoot string, jobs *jobregistry.ROMRegistry) *Engine {
	return &Engine{
		Store:      store,
		Jobs:       jobs,
		Supervisor: sup,
		Reconciler: GitReconciler{},
		Fs:         fs,
		TempDir:    tempDir,
		OutputRoot: outputRoot,
		entries:    map[string]*BuildEntry{},
		streams:    map[string]*buildstream.Broadcaster[LogEntry]{},
	}
}

// GetSettings returns a snapshot of the current ROM build settings.
func (e *Engine) GetSettings() Settings {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	return e.settings
}

// SetSettings merges a partial update into the settings (spec §6:
// unspecified fields keep their prior value).
func (e *Engine) SetSettings(u SettingsUpdate) Settings {
	e.settingsMu.Lock()
	defer e.settingsMu.Unlock()
	u.Apply(&e.settings)
	return e.settings
}

// GetBuildEntry returns the terminal or in-flight bookkeeping for id.
func (e *Engine) GetBuildEntry(id string) (BuildEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.entries[id]
	if !ok {
		return BuildEntry{}, false
	}
	return *entry, true
}

// StreamLogs attaches a new subscriber to id's log broadcast. A client
// disconnecting from this stream never cancels the underlying build
// (spec §5).
func (e *Engine) StreamLogs(id string) (<-chan LogEntry, func(), bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.streams[id]
	if !ok {
		return nil, nil, false
	}
	ch, unsub := b.Subscribe()
	return ch, unsub, true
}

// tryAcquire claims the single build slot, returning the cancel channel
// the caller must wire into the build's Process Supervisor requests.
func (e *Engine) tryAcquire() (chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return nil, false
	}
	e.active = true
	e.cancel = make(chan struct{})
	return e.cancel, true
}

// bindActiveID records which build id now owns the claimed slot, once
// resolution succeeds and an id has been allocated.
func (e *Engine) bindActiveID(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activeBuildID = id
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	e.activeBuildID = ""
	e.cancel = nil
}

// workDir is the single fixed build directory the ROM engine operates
// in; unlike the kernel engine, the original source keeps one build_dir
// per process rather than one per config.
func (e *Engine) workDir() string {
	return e.OutputRoot
}

// CleanDirectory recursively removes the selected tree (spec §6).
func (e *Engine) CleanDirectory(kind DirectoryType) error {
	return e.Fs.RemoveAll(e.pathFor(kind))
}

// DirectoryExists reports whether the selected tree is present.
func (e *Engine) DirectoryExists(kind DirectoryType) (bool, error) {
	return afero.DirExists(e.Fs, e.pathFor(kind))
}

func (e *Engine) pathFor(kind DirectoryType) string {
	if kind == BuildDirectory {
		return filepath.Join(e.workDir(), "out")
	}
	return e.workDir()
}

// CancelBuild implements spec §6's CancelBuild surface: it signals the
// active build's cancel channel, which the running shell session's
// Process Supervisor request watches, then marks the build finished as
// a failure.
func (e *Engine) CancelBuild(id string) error {
	finished, err := e.Jobs.IsFinished(id)
	if err != nil {
		return err
	}
	if finished {
		return buildtypes.FailedPrecondition("rombuild: build %s already finished", id)
	}

	e.mu.Lock()
	if e.active && e.activeBuildID == id && e.cancel != nil {
		close(e.cancel)
		e.cancel = nil
	}
	e.mu.Unlock()

	return e.Jobs.MarkFinished(id, false)
}

// GetStatus returns id's terminal bookkeeping.
func (e *Engine) GetStatus(id string) (jobregistry.Status, error) {
	return e.Jobs.Status(id)
}
