package rombuild

import (
	"go.buildorch.dev/go/buildtypes"
	"go.buildorch.dev/go/configstore"
)

// resolveConfig implements spec §4.7 steps 1-4: find exactly one config
// (standard manifest or recovery manifest) by name, exactly one device
// target, and a unique branch within it.
func resolveConfig(store *configstore.ROMConfigStore, req BuildRequest) (resolved, error) {
	manifest, isStandard := store.ManifestEntries[req.ConfigName]
	recoveryManifest, isRecovery := store.RecoveryManifests[req.ConfigName]
	switch {
	case isStandard && isRecovery:
		return resolved{}, buildtypes.InvalidArgument("rombuild: config %q matches both a standard and a recovery manifest", req.ConfigName)
	case isStandard:
		return resolveStandard(store, req, manifest)
	case isRecovery:
		return resolveRecovery(store, req, recoveryManifest)
	default:
		return resolved{}, buildtypes.InvalidArgument("rombuild: unknown config %q", req.ConfigName)
	}
}

func resolveDevice(store *configstore.ROMConfigStore, codename string) (configstore.Target, error) {
	t, ok := store.Targets[codename]
	if !ok {
		return configstore.Target{}, buildtypes.InvalidArgument("rombuild: unknown device %q", codename)
	}
	return t, nil
}

func resolveStandard(store *configstore.ROMConfigStore, req BuildRequest, manifest configstore.ManifestEntry) (resolved, error) {
	if _, err := resolveDevice(store, req.TargetDevice); err != nil {
		return resolved{}, err
	}
	rom, ok := store.ROMs[req.RomName]
	if !ok {
		return resolved{}, buildtypes.InvalidArgument("rombuild: unknown ROM %q", req.RomName)
	}

	// Gate: a manifest-branch entry matching (rom, android_version,
	// device) must exist and be unique, even though its ManifestBranch
	// field is not itself what repo init checks out (see below).
	count := 0
	for _, b := range manifest.Branches {
		ok, err := b.Matches(req.RomName, req.RomAndroidVersion, req.TargetDevice)
		if err != nil {
			return resolved{}, buildtypes.InvalidArgument("rombuild: %s", err)
		}
		if ok {
			count++
		}
	}
	if count != 1 {
		return resolved{}, buildtypes.InvalidArgument("rombuild: %d branch candidates for rom=%s version=%s device=%s (want exactly 1)", count, req.RomName, req.RomAndroidVersion, req.TargetDevice)
	}

	// The actual manifest git branch to check out comes from the ROM
	// entry's own per-version branch table, keyed by android_version.
	romBranch, err := uniqueROMBranch(rom.Branches, req.RomAndroidVersion)
	if err != nil {
		return resolved{}, err
	}
	romBranch.TargetROM = req.RomName
	romBranch.Device = req.TargetDevice

	return resolved{
		kind:     configStandard,
		rom:      rom,
		branch:   romBranch,
		manifest: manifest.LocalManifest,
	}, nil
}

func uniqueROMBranch(branches []configstore.Branch, androidVersion string) (configstore.Branch, error) {
	var match configstore.Branch
	count := 0
	for _, b := range branches {
		if b.AndroidVersion == androidVersion {
			match = b
			count++
		}
	}
	if count != 1 {
		return configstore.Branch{}, buildtypes.InvalidArgument("rombuild: %d ROM branch candidates for android_version=%s (want exactly 1)", count, androidVersion)
	}
	return match, nil
}

func resolveRecovery(store *configstore.ROMConfigStore, req BuildRequest, manifestEntry configstore.RecoveryManifestEntry) (resolved, error) {
	if _, err := resolveDevice(store, req.TargetDevice); err != nil {
		return resolved{}, err
	}
	recovery, ok := store.RecoveryROMs[req.RomName]
	if !ok {
		return resolved{}, buildtypes.InvalidArgument("rombuild: unknown recovery ROM %q", req.RomName)
	}

	count := 0
	var matchedBranch string
	for _, b := range recovery.Branches {
		if b.AndroidVersion == req.RomAndroidVersion {
			matchedBranch = b.ManifestBranch
			count++
		}
	}
	if count != 1 {
		return resolved{}, buildtypes.InvalidArgument("rombuild: %d android_version candidates for recovery rom=%s version=%s (want exactly 1)", count, req.RomName, req.RomAndroidVersion)
	}
	_ = manifestEntry

	synthesized := configstore.Branch{
		TargetROM:      req.RomName,
		AndroidVersion: req.RomAndroidVersion,
		Device:         req.TargetDevice,
		ManifestBranch: matchedBranch,
	}

	return resolved{
		kind:     configRecovery,
		recovery: recovery,
		branch:   synthesized,
		localXML: synthesizeLocalManifest(recovery.CloneMappings),
	}, nil
}

// synthesizeLocalManifest builds the <manifest> XML for a recovery
// config's clone mappings (spec §4.7 step 6c): one "cppbot_github"
// remote plus one <project> per mapping.
func synthesizeLocalManifest(mappings []configstore.CloneMapping) string {
	xml := `<?xml version="1.0" encoding="UTF-8"?>` + "\n<manifest>\n" +
		`  <remote name="cppbot_github" fetch="https://github.com/" />` + "\n"
	for _, m := range mappings {
		xml += `  <project name="` + m.Name + `" path="` + m.Path + `" remote="` + firstNonEmpty(m.Remote, "cppbot_github") + `" recurse-submodules="true" />` + "\n"
	}
	xml += "</manifest>\n"
	return xml
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
