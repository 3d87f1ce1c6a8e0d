package kernelbuild

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"go.buildorch.dev/go/configstore"
	"go.buildorch.dev/go/jobregistry"
	"go.buildorch.dev/go/procexec"
	"go.buildorch.dev/go/toolchain"
)

// Engine owns the registries and collaborators needed to drive Prepare,
// Build, Cancel, and GetArtifact for kernel builds (spec §4.6).
type Engine struct {
	Configs     *configstore.KernelRegistry
	Catalog     toolchain.Catalog
	Provisioner *toolchain.Provisioner
	Supervisor  procexec.Supervisor
	Reconciler  SourceReconciler
	Fs          afero.Fs
	TempDir     string
	OutputRoot  string
	Jobs        *jobregistry.KernelRegistry

	mu     sync.Mutex
	builds map[int64]*buildContext
}

// New wires an Engine from its collaborators, defaulting to the
// production Git-backed SourceReconciler.
func New(configs *configstore.KernelRegistry, catalog toolchain.Catalog, prov *toolchain.Provisioner, sup procexec.Supervisor, fs afero.Fs, tempDir, outputRoot string, jobs *jobregistry.KernelRegistry) *Engine {
	return &Engine{
		Configs:     configs,
		Catalog:     catalog,
		Provisioner: prov,
		Supervisor:  sup,
		Reconciler:  GitReconciler{},
		Fs:          fs,
		TempDir:     tempDir,
		OutputRoot:  outputRoot,
		Jobs:        jobs,
		builds:      map[int64]*buildContext{},
	}
}

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// sanitize produces a filesystem-safe directory component from a config
// name (spec §4.6 step 6: "work_dir = output_root / sanitize(config.name)").
func sanitize(name string) string {
	return sanitizeRe.ReplaceAllString(name, "_")
}

func (e *Engine) workDir(configName string) string {
	return filepath.Join(e.OutputRoot, sanitize(configName))
}

func (e *Engine) prepareLogPath(configName string) string {
	return filepath.Join(e.TempDir, "output-prepare-"+configName+".log")
}

func (e *Engine) buildLogPath(configName string) string {
	return filepath.Join(e.TempDir, "output-build-"+configName+".log")
}

func (e *Engine) get(id int64) (*buildContext, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bc, ok := e.builds[id]
	return bc, ok
}

func (e *Engine) store(bc *buildContext) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.builds[bc.id] = bc
}

// renderScheme substitutes "{device}" with device in a scheme template;
// both defconfig and fragment schemes go through it.
func renderScheme(scheme, device string) string {
	return strings.ReplaceAll(scheme, "{device}", device)
}

func deviceAllowed(devices []string, device string) bool {
	for _, d := range devices {
		if d == device {
			return true
		}
	}
	return false
}

func afExists(fs afero.Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}
