// Package toolchain implements the Toolchain Provisioner (spec §4.3):
// resolving a catalog entry for (compiler family, architecture), and
// detect-then-install semantics for both git and tarball sources.
package toolchain

import (
	"fmt"
)

// Arch is a target architecture. Any is a wildcard that equals every
// other Arch (spec §3, §8: "Any == X for every X").
type Arch string

const (
	Any    Arch = "any"
	ARM    Arch = "arm"
	ARM64  Arch = "arm64"
	X86    Arch = "x86"
	X86_64 Arch = "x86_64"
)

// Equal implements the wildcard-aware architecture equality used
// throughout config and toolchain matching.
func (a Arch) Equal(b Arch) bool {
	return a == Any || b == Any || a == b
}

// Compiler identifies the compiler family of a Toolchain.
type Compiler string

const (
	GCC   Compiler = "gcc"
	Clang Compiler = "clang"
)

// Source identifies where a Toolchain's files come from.
type Source string

const (
	SourceGit     Source = "git"
	SourceTarball Source = "tarball"
)

// Toolchain is one entry in the builder catalog (spec §3).
type Toolchain struct {
	Compiler Compiler `json:"compiler"`
	Version  float64  `json:"compiler_version"`
	Triple   string   `json:"compiler_triple,omitempty"`
	Name     string   `json:"name"`
	Arch     Arch     `json:"arch"`
	Source   Source   `json:"type"`
	URL      string   `json:"url"`
	Branch   string   `json:"branch,omitempty"`
}

// ExeName returns the binary name probed to detect an install, matching
// the original's exe_name(): GCC toolchains probe
// "<triple>-gcc" (bare "gcc" if no triple); Clang toolchains always probe
// the literal "clang" regardless of triple.
func (t Toolchain) ExeName() string {
	switch t.Compiler {
	case GCC:
		if t.Triple == "" {
			return "gcc"
		}
		return t.Triple + "-gcc"
	case Clang:
		return "clang"
	default:
		return string(t.Compiler)
	}
}

// crossCompileDefault is the per-arch CROSS_COMPILE= prefix used when a
// Toolchain carries no explicit triple (spec §4.3).
func crossCompileDefault(arch Arch) string {
	switch arch {
	case ARM:
		return "arm-linux-gnueabi-"
	case ARM64:
		return "aarch64-linux-gnu-"
	case X86, X86_64:
		return "x86_64-linux-gnu-"
	default:
		return ""
	}
}

// BuildArgs returns the make argument(s) needed to select this toolchain
// for the given target architecture.
func (t Toolchain) BuildArgs(arch Arch) []string {
	if t.Triple != "" {
		return []string{fmt.Sprintf("CROSS_COMPILE=%s-", t.Triple)}
	}
	if def := crossCompileDefault(arch); def != "" {
		return []string{fmt.Sprintf("CROSS_COMPILE=%s", def)}
	}
	return nil
}

// Catalog is the builder-wide list of available toolchains (spec §3:
// BuilderConfig).
type Catalog struct {
	Toolchains []Toolchain `json:"toolchains"`
}

// NoSuitableToolchainError is returned by Select when no catalog entry
// matches.
type NoSuitableToolchainError struct {
	Arch       Arch
	WantsClang bool
}

func (e *NoSuitableToolchainError) Error() string {
	return fmt.Sprintf("toolchain: no suitable toolchain for arch=%s wants_clang=%t", e.Arch, e.WantsClang)
}

// Select implements spec §4.3's resolution rule: if the config forbids
// clang, the first matching gcc<=4.9 entry for arch; otherwise the first
// matching clang entry for arch.
func (c Catalog) Select(arch Arch, wantsClang bool) (Toolchain, error) {
	if !wantsClang {
		for _, t := range c.Toolchains {
			if t.Compiler == GCC && t.Version <= 4.9 && t.Arch.Equal(arch) {
				return t, nil
			}
		}
		return Toolchain{}, &NoSuitableToolchainError{Arch: arch, WantsClang: false}
	}
	for _, t := range c.Toolchains {
		if t.Compiler == Clang && t.Arch.Equal(arch) {
			return t, nil
		}
	}
	return Toolchain{}, &NoSuitableToolchainError{Arch: arch, WantsClang: true}
}
