package rombuild

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.buildorch.dev/go/configstore"
)

func storeWithStandard() *configstore.ROMConfigStore {
	store := configstore.NewROMConfigStore()
	store.Targets["dev"] = configstore.Target{Codename: "dev"}
	store.ROMs["lineage"] = configstore.ROMEntry{
		Name:            "lineage",
		Link:            "https://github.com/LineageOS/android.git",
		MakeTarget:      "bacon",
		ArtifactMatcher: configstore.ArtifactMatcher{Kind: configstore.MatchZipPrefix, Value: "lineage-"},
		Branches: []configstore.Branch{
			{AndroidVersion: "21", ManifestBranch: "lineage-21.0"},
		},
	}
	store.ManifestEntries["lineage-dev"] = configstore.ManifestEntry{
		Name:          "lineage-dev",
		LocalManifest: configstore.Repo{URL: "https://example.com/local.git", Branch: "main"},
		Branches: []configstore.Branch{
			{TargetROM: "lineage", AndroidVersion: "21", Device: "dev"},
		},
	}
	return store
}

func TestResolveStandardHappyPath(t *testing.T) {
	store := storeWithStandard()
	req := BuildRequest{ConfigName: "lineage-dev", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "dev"}

	res, err := resolveConfig(store, req)
	require.NoError(t, err)
	require.Equal(t, configStandard, res.kind)
	require.Equal(t, "lineage-21.0", res.branch.ManifestBranch)
	require.Equal(t, "dev", res.branch.Device)
}

func TestResolveUnknownConfigFails(t *testing.T) {
	store := storeWithStandard()
	_, err := resolveConfig(store, BuildRequest{ConfigName: "bogus", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "dev"})
	require.Error(t, err)
}

func TestResolveAmbiguousConfigFails(t *testing.T) {
	store := storeWithStandard()
	store.RecoveryManifests["lineage-dev"] = configstore.RecoveryManifestEntry{Name: "lineage-dev"}
	_, err := resolveConfig(store, BuildRequest{ConfigName: "lineage-dev", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "dev"})
	require.Error(t, err)
}

func TestResolveUnknownDeviceFails(t *testing.T) {
	store := storeWithStandard()
	_, err := resolveConfig(store, BuildRequest{ConfigName: "lineage-dev", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "other"})
	require.Error(t, err)
}

func TestResolveNonUniqueBranchFails(t *testing.T) {
	store := storeWithStandard()
	entry := store.ManifestEntries["lineage-dev"]
	entry.Branches = append(entry.Branches, configstore.Branch{TargetROM: "lineage", AndroidVersion: "21", Device: "dev"})
	store.ManifestEntries["lineage-dev"] = entry

	_, err := resolveConfig(store, BuildRequest{ConfigName: "lineage-dev", RomName: "lineage", RomAndroidVersion: "21", TargetDevice: "dev"})
	require.Error(t, err)
}

func TestResolveRecoveryHappyPath(t *testing.T) {
	store := configstore.NewROMConfigStore()
	store.Targets["dev"] = configstore.Target{Codename: "dev"}
	store.RecoveryROMs["twrp"] = configstore.RecoveryEntry{
		Name:            "twrp",
		Link:            "https://github.com/minimal/twrp.git",
		MakeTarget:      "recoveryimage",
		ArtifactMatcher: configstore.ArtifactMatcher{Kind: configstore.MatchExact, Value: "recovery.img"},
		Branches:        []configstore.RecoveryBranch{{AndroidVersion: "12", ManifestBranch: "twrp-12"}},
		CloneMappings: []configstore.CloneMapping{
			{Name: "device/dev", Path: "device/oem/dev"},
		},
	}
	store.RecoveryManifests["twrp-dev"] = configstore.RecoveryManifestEntry{Name: "twrp-dev"}

	res, err := resolveConfig(store, BuildRequest{ConfigName: "twrp-dev", RomName: "twrp", RomAndroidVersion: "12", TargetDevice: "dev"})
	require.NoError(t, err)
	require.Equal(t, configRecovery, res.kind)
	require.Equal(t, "twrp-12", res.branch.ManifestBranch)
	require.Contains(t, res.localXML, "device/dev")
	require.Contains(t, res.localXML, "cppbot_github")
}

func TestResolveRecoveryNonUniqueVersionFails(t *testing.T) {
	store := configstore.NewROMConfigStore()
	store.Targets["dev"] = configstore.Target{Codename: "dev"}
	store.RecoveryROMs["twrp"] = configstore.RecoveryEntry{
		Name: "twrp",
		Branches: []configstore.RecoveryBranch{
			{AndroidVersion: "12", ManifestBranch: "twrp-12"},
			{AndroidVersion: "12", ManifestBranch: "twrp-12-alt"},
		},
	}
	store.RecoveryManifests["twrp-dev"] = configstore.RecoveryManifestEntry{Name: "twrp-dev"}

	_, err := resolveConfig(store, BuildRequest{ConfigName: "twrp-dev", RomName: "twrp", RomAndroidVersion: "12", TargetDevice: "dev"})
	require.Error(t, err)
}
