// Package configstore is the Config Registry (spec §4.5): in-memory
// stores of kernel configs, ROM/recovery manifests, device targets, and
// the toolchain catalog, mutated under one exclusive lock per
// collection.
package configstore

import (
	"encoding/json"
	"iter"
	"sync"

	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/toolchain"
)

// Repo is a (url, branch) pair, reused for kernel source repos and ROM
// local-manifest repos.
type Repo struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
}

// AnyKernelOverlay names the flash-installable overlay tree a built
// kernel image is dropped into before zipping (spec §3, glossary).
type AnyKernelOverlay struct {
	Enabled  bool   `json:"enabled"`
	Location string `json:"location"`
}

// Defconfig names the defconfig scheme template and the devices it
// supports; "{device}" in Scheme is always substituted with the
// request's device_name.
type Defconfig struct {
	Scheme  string   `json:"scheme"`
	Devices []string `json:"devices"`
}

// Fragment is one overlay make target layered onto the base defconfig.
type Fragment struct {
	Name           string   `json:"name"`
	Scheme         string   `json:"scheme"`
	Depends        []string `json:"depends,omitempty"`
	Description    string   `json:"description,omitempty"`
	DefaultEnabled bool     `json:"default_enabled"`
}

// EnvVar is one (name, value) environment entry.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ToolchainSelector is a kernel config's compiler preferences (spec §3).
type ToolchainSelector struct {
	Clang        bool `json:"clang"`
	LLVMIAS      bool `json:"llvm_ias"`
	LLVMBinutils bool `json:"llvm_binutils"`
}

// KernelConfig is one named, registered build target (spec §3).
type KernelConfig struct {
	Name       string            `json:"name"`
	Repo       Repo              `json:"repo"`
	Arch       toolchain.Arch    `json:"arch"`
	ImageType  string            `json:"type"`
	Toolchains ToolchainSelector `json:"toolchains"`
	AnyKernel  *AnyKernelOverlay `json:"anykernel,omitempty"`
	Defconfig  Defconfig         `json:"defconfig"`
	Fragments  []Fragment        `json:"fragments,omitempty"`
	Env        []EnvVar          `json:"env,omitempty"`
}

// SupportsArch reports whether the config builds for the given target
// architecture (its own arch, or Any).
func (c KernelConfig) SupportsArch(target toolchain.Arch) bool {
	return c.Arch.Equal(target)
}

// FragmentByName looks up a declared fragment by name.
func (c KernelConfig) FragmentByName(name string) (Fragment, bool) {
	for _, f := range c.Fragments {
		if f.Name == name {
			return f, true
		}
	}
	return Fragment{}, false
}

// BuildArgs returns the config-driven make arguments (spec §4.6 step 7):
// ARCH=..., then LLVM/LLVM_IAS or discrete clang tool overrides per the
// toolchain selector.
func (c KernelConfig) BuildArgs() []string {
	var args []string
	switch c.Arch {
	case toolchain.ARM:
		args = append(args, "ARCH=arm")
	case toolchain.ARM64:
		args = append(args, "ARCH=arm64")
	case toolchain.X86:
		args = append(args, "ARCH=x86")
	case toolchain.X86_64:
		args = append(args, "ARCH=x86_64")
	}

	if c.Toolchains.Clang {
		switch {
		case c.Toolchains.LLVMIAS:
			args = append(args, "LLVM=1", "LLVM_IAS=1")
		case c.Toolchains.LLVMBinutils:
			args = append(args,
				"CC=clang", "LD=ld.lld", "AR=llvm-ar", "NM=llvm-nm",
				"OBJCOPY=llvm-objcopy", "OBJDUMP=llvm-objdump", "STRIP=llvm-strip")
		default:
			args = append(args, "CC=clang")
		}
	}
	return args
}

// KernelRegistry is the in-memory, mutable store of KernelConfigs (spec
// §4.5). A single mutex guards the whole collection; duplicate names are
// permitted on Add, with first-match-wins
// lookup semantics documented on Get.
type KernelRegistry struct {
	mu      sync.Mutex
	entries []kernelEntry
}

type kernelEntry struct {
	name   string
	raw    json.RawMessage
	parsed KernelConfig
}

// NewKernelRegistry returns an empty registry.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{}
}

// AddConfig validates and appends a config. Duplicate names are allowed;
// Get and the build engines always resolve the first list-ordered match.
func (r *KernelRegistry) AddConfig(raw json.RawMessage) error {
	cfg, err := parseKernelConfig(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, kernelEntry{name: cfg.Name, raw: raw, parsed: cfg})
	return nil
}

// UpdateConfig replaces the first entry with a matching name.
func (r *KernelRegistry) UpdateConfig(raw json.RawMessage) error {
	cfg, err := parseKernelConfig(raw)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.name == cfg.Name {
			r.entries[i] = kernelEntry{name: cfg.Name, raw: raw, parsed: cfg}
			return nil
		}
	}
	return buildtypes.NotFound("configstore: kernel config %q not found", cfg.Name)
}

// DeleteConfig removes every entry with the given name.
func (r *KernelRegistry) DeleteConfig(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	removed := false
	for _, e := range r.entries {
		if e.name == name {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	if !removed {
		return buildtypes.NotFound("configstore: kernel config %q not found", name)
	}
	return nil
}

// ListConfigs returns a lazy sequence of (name, json) pairs, a snapshot
// taken at call time.
func (r *KernelRegistry) ListConfigs() iter.Seq2[string, string] {
	r.mu.Lock()
	snapshot := make([]kernelEntry, len(r.entries))
	copy(snapshot, r.entries)
	r.mu.Unlock()

	return func(yield func(string, string) bool) {
		for _, e := range snapshot {
			if !yield(e.name, string(e.raw)) {
				return
			}
		}
	}
}

// Get returns the first list-ordered config matching name.
func (r *KernelRegistry) Get(name string) (KernelConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.name == name {
			return e.parsed, true
		}
	}
	return KernelConfig{}, false
}

func parseKernelConfig(raw json.RawMessage) (KernelConfig, error) {
	var cfg KernelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return KernelConfig{}, buildtypes.InvalidArgument("configstore: invalid kernel config JSON: %s", err)
	}
	if cfg.Name == "" {
		return KernelConfig{}, buildtypes.InvalidArgument("configstore: kernel config missing name")
	}
	return cfg, nil
}
