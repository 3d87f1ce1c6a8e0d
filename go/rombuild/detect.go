package rombuild

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// detectVendor implements spec §4.7 step 8: the first matching
// vendor/*/config/BoardConfigSoong.mk names the vendor, defaulting to
// "lineage" when none is found.
func detectVendor(fs afero.Fs, workDir string) string {
	matches, err := afero.Glob(fs, filepath.Join(workDir, "vendor", "*", "config", "BoardConfigSoong.mk"))
	if err != nil || len(matches) == 0 {
		return "lineage"
	}
	vendorDir := filepath.Base(filepath.Dir(filepath.Dir(matches[0])))
	return vendorDir
}

// detectRelease implements spec §4.7 step 9: probe, in order, under
// build/release/ and vendor/<vendor>/build/release/, stopping at the
// first producing match. An empty string means unset.
func detectRelease(fs afero.Fs, workDir, vendor string) string {
	roots := []string{
		filepath.Join(workDir, "build", "release"),
		filepath.Join(workDir, "vendor", vendor, "build", "release"),
	}
	for _, root := range roots {
		if release := detectReleaseUnder(fs, root); release != "" {
			return release
		}
	}
	return ""
}

func detectReleaseUnder(fs afero.Fs, root string) string {
	if ok, _ := afero.Exists(fs, filepath.Join(root, "release_config_map.textproto")); ok {
		return "aosp_current"
	}
	if matches, _ := afero.Glob(fs, filepath.Join(root, "build_config", "*.scl")); len(matches) > 0 {
		return strings.TrimSuffix(filepath.Base(matches[0]), ".scl")
	}
	if matches, _ := afero.Glob(fs, filepath.Join(root, "release_configs", "*.textproto")); len(matches) > 0 {
		for _, m := range matches {
			base := strings.TrimSuffix(filepath.Base(m), ".textproto")
			if base == "root" || base == "trunk" {
				continue
			}
			return base
		}
	}
	return ""
}
