package configstore

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"go.buildorch.dev/go/buildlog"
	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/toolchain"
)

// LoadKernelConfigs reads every *.json file directly under dir into a
// KernelRegistry, except the reserved builder_config.json (spec §6). A
// file that fails to parse is logged and skipped (spec §7: "that file is
// skipped; the service continues if at least one usable config
// remains").
func LoadKernelConfigs(fs afero.Fs, dir string) (*KernelRegistry, error) {
	reg := NewKernelRegistry()
	files, err := jsonFilesIn(fs, dir)
	if err != nil {
		return nil, err
	}

	loaded := 0
	for _, path := range files {
		if filepath.Base(path) == "builder_config.json" {
			continue
		}
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			buildlog.Errorf("configstore: reading %s: %s", path, err)
			continue
		}
		if err := reg.AddConfig(raw); err != nil {
			buildlog.Errorf("configstore: skipping %s: %s", path, err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return nil, buildtypes.Internal("configstore: no usable kernel configs found under %s", dir)
	}
	return reg, nil
}

// LoadBuilderConfig reads the reserved builder_config.json toolchain
// catalog from dir.
func LoadBuilderConfig(fs afero.Fs, dir string) (toolchain.Catalog, error) {
	path := filepath.Join(dir, "builder_config.json")
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return toolchain.Catalog{}, buildtypes.Internal("configstore: reading %s: %s", path, err)
	}
	var cat toolchain.Catalog
	if err := json.Unmarshal(raw, &cat); err != nil {
		return toolchain.Catalog{}, buildtypes.Internal("configstore: invalid builder_config.json: %s", err)
	}
	return cat, nil
}

// LoadROMConfigStore reads targets.json, roms.json, recoveries.json, and
// the manifest/ and manifest/recovery/ directories under dir (spec §6).
func LoadROMConfigStore(fs afero.Fs, dir string) (*ROMConfigStore, error) {
	store := NewROMConfigStore()

	if err := loadJSONMap(fs, filepath.Join(dir, "targets.json"), func(raw []byte) error {
		var targets []Target
		if err := json.Unmarshal(raw, &targets); err != nil {
			return err
		}
		for _, t := range targets {
			store.Targets[t.Codename] = t
		}
		return nil
	}); err != nil {
		return nil, buildtypes.Internal("configstore: %s", err)
	}

	if err := loadJSONMap(fs, filepath.Join(dir, "roms.json"), func(raw []byte) error {
		var roms []ROMEntry
		if err := json.Unmarshal(raw, &roms); err != nil {
			return err
		}
		for _, r := range roms {
			store.ROMs[r.Name] = r
		}
		return nil
	}); err != nil {
		return nil, buildtypes.Internal("configstore: %s", err)
	}

	if err := loadJSONMap(fs, filepath.Join(dir, "recoveries.json"), func(raw []byte) error {
		var recoveries []RecoveryEntry
		if err := json.Unmarshal(raw, &recoveries); err != nil {
			return err
		}
		for _, r := range recoveries {
			store.RecoveryROMs[r.Name] = r
		}
		return nil
	}); err != nil {
		return nil, buildtypes.Internal("configstore: %s", err)
	}

	manifestFiles, err := jsonFilesIn(fs, filepath.Join(dir, "manifest"))
	if err == nil {
		for _, path := range manifestFiles {
			raw, err := afero.ReadFile(fs, path)
			if err != nil {
				buildlog.Errorf("configstore: reading %s: %s", path, err)
				continue
			}
			entry, err := unmarshalNamed[ManifestEntry](raw, "manifest entry")
			if err != nil {
				buildlog.Errorf("configstore: skipping %s: %s", path, err)
				continue
			}
			store.ManifestEntries[entry.Name] = entry
		}
	}

	recoveryManifestFiles, err := jsonFilesIn(fs, filepath.Join(dir, "manifest", "recovery"))
	if err == nil {
		for _, path := range recoveryManifestFiles {
			raw, err := afero.ReadFile(fs, path)
			if err != nil {
				buildlog.Errorf("configstore: reading %s: %s", path, err)
				continue
			}
			entry, err := unmarshalNamed[RecoveryManifestEntry](raw, "recovery manifest entry")
			if err != nil {
				buildlog.Errorf("configstore: skipping %s: %s", path, err)
				continue
			}
			store.RecoveryManifests[entry.Name] = entry
		}
	}

	return store, nil
}

func loadJSONMap(fs afero.Fs, path string, apply func([]byte) error) error {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return err
	}
	return apply(raw)
}

func jsonFilesIn(fs afero.Fs, dir string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
