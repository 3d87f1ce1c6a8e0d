package configstore

import (
	"encoding/json"
	"fmt"
	"regexp"

	"go.buildorch.dev/go/buildtypes"
)

// ArtifactMatcherKind selects how a finished ROM build's flashable is
// located under out/target/product/<codename>/ (spec §4.7 step 12,
// glossary: "Artifact matcher").
type ArtifactMatcherKind string

const (
	MatchZipPrefix ArtifactMatcherKind = "zip_prefix"
	MatchExact     ArtifactMatcherKind = "exact"
)

// ArtifactMatcher is the tagged-union matcher rule (spec §9 design note:
// prefer a sum type over a hand-rolled tag). Value is the prefix for
// MatchZipPrefix, or the exact file name for MatchExact.
type ArtifactMatcher struct {
	Kind  ArtifactMatcherKind `json:"type"`
	Value string              `json:"value"`
}

// Match finds the single candidate matching this rule among a directory
// listing of file names.
func (m ArtifactMatcher) Match(names []string) (string, bool) {
	switch m.Kind {
	case MatchZipPrefix:
		for _, n := range names {
			if len(n) >= len(m.Value) && n[:len(m.Value)] == m.Value && hasZipSuffix(n) {
				return n, true
			}
		}
	case MatchExact:
		for _, n := range names {
			if n == m.Value {
				return n, true
			}
		}
	}
	return "", false
}

func hasZipSuffix(name string) bool {
	return len(name) >= 4 && name[len(name)-4:] == ".zip"
}

// Branch is one manifest branch entry: the (ROM, Android version,
// device) triple it applies to, and the repo-manifest branch to use.
type Branch struct {
	TargetROM      string `json:"target_rom"`
	AndroidVersion string `json:"android_version"`
	Device         string `json:"device"`
	UseRegex       bool   `json:"use_regex"`
	ManifestBranch string `json:"branch"`
}

// Matches reports whether this branch entry applies to (romName,
// androidVersion, device). UseRegex uses Device as a partial-match
// regex against device (spec §9 open question: the source uses partial
// match via is_match, not full match; this spec follows the source).
func (b Branch) Matches(romName, androidVersion, device string) (bool, error) {
	if b.TargetROM != romName || b.AndroidVersion != androidVersion {
		return false, nil
	}
	if b.Device == device {
		return true, nil
	}
	if !b.UseRegex {
		return false, nil
	}
	re, err := regexp.Compile(b.Device)
	if err != nil {
		return false, fmt.Errorf("configstore: invalid device regex %q: %w", b.Device, err)
	}
	return re.MatchString(device), nil
}

// ROMEntry describes one buildable ROM target (spec §3: rom_name ->
// {link, make-target, artifact-matcher, branches}).
type ROMEntry struct {
	Name            string          `json:"name"`
	Link            string          `json:"link"`
	MakeTarget      string          `json:"make_target"`
	ArtifactMatcher ArtifactMatcher `json:"artifact_matcher"`
	Branches        []Branch        `json:"branches"`
}

// CloneMapping is one <project> entry synthesized into a recovery's
// inline local manifest (spec §4.7 step 6c).
type CloneMapping struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Remote string `json:"remote"`
}

// RecoveryBranch pairs an Android version with the manifest git branch
// to check out for it (the recovery-ROM equivalent of the per-version
// entries inside ROMEntry.Branches).
type RecoveryBranch struct {
	AndroidVersion string `json:"android_version"`
	ManifestBranch string `json:"branch"`
}

// RecoveryEntry is the recovery-ROM equivalent of ROMEntry: instead of a
// local-manifest repo, it carries inline clone mappings used to
// synthesize one local manifest XML (spec §3, §4.7 step 6c).
type RecoveryEntry struct {
	Name            string           `json:"name"`
	Link            string           `json:"link"`
	MakeTarget      string           `json:"make_target"`
	ArtifactMatcher ArtifactMatcher  `json:"artifact_matcher"`
	Branches        []RecoveryBranch `json:"branches"`
	CloneMappings   []CloneMapping   `json:"clone_mappings"`
}

// Target is one device the service knows how to build for.
type Target struct {
	Codename string `json:"codename"`
}

// ManifestEntry is one standard config's local-manifest repo plus the
// branches it exposes (spec §6: manifest/*.json).
type ManifestEntry struct {
	Name          string   `json:"name"`
	LocalManifest Repo     `json:"local_manifest"`
	Branches      []Branch `json:"branches"`
}

// RecoveryManifestEntry is the recovery equivalent of ManifestEntry
// (spec §6: manifest/recovery/*.json): no local-manifest repo, since its
// manifest is synthesized inline from clone mappings.
type RecoveryManifestEntry struct {
	Name            string   `json:"name"`
	AndroidVersions []string `json:"android_versions"`
}

// ROMConfigStore holds the five read-only-after-load ROM tables (spec
// §3): ROMs, recovery ROMs, device targets, per-ROM manifest entries,
// and per-recovery manifest entries.
type ROMConfigStore struct {
	ROMs              map[string]ROMEntry
	RecoveryROMs      map[string]RecoveryEntry
	Targets           map[string]Target
	ManifestEntries   map[string]ManifestEntry
	RecoveryManifests map[string]RecoveryManifestEntry
}

// NewROMConfigStore returns an empty store, ready to be populated by Load.
func NewROMConfigStore() *ROMConfigStore {
	return &ROMConfigStore{
		ROMs:              map[string]ROMEntry{},
		RecoveryROMs:      map[string]RecoveryEntry{},
		Targets:           map[string]Target{},
		ManifestEntries:   map[string]ManifestEntry{},
		RecoveryManifests: map[string]RecoveryManifestEntry{},
	}
}

func unmarshalNamed[T any](raw []byte, name string) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, buildtypes.InvalidArgument("configstore: invalid %s JSON: %s", name, err)
	}
	return v, nil
}
