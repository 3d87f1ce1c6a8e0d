package configstore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestLoadKernelConfigsSkipsBuilderConfigAndBadFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/k1.json", []byte(sampleKernelConfig), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/cfg/builder_config.json", []byte(`{"toolchains":[]}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/cfg/broken.json", []byte(`not json`), 0o644))

	reg, err := LoadKernelConfigs(fs, "/cfg")
	require.NoError(t, err)
	_, ok := reg.Get("k1")
	require.True(t, ok)
}

func TestLoadKernelConfigsFailsWhenNoneUsable(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/broken.json", []byte(`not json`), 0o644))
	_, err := LoadKernelConfigs(fs, "/cfg")
	require.Error(t, err)
}

func TestLoadBuilderConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg/builder_config.json", []byte(`{"toolchains":[{"name":"clang1","compiler":"clang","arch":"any","type":"git","url":"https://x"}]}`), 0o644))
	cat, err := LoadBuilderConfig(fs, "/cfg")
	require.NoError(t, err)
	require.Len(t, cat.Toolchains, 1)
	require.Equal(t, "clang1", cat.Toolchains[0].Name)
}

func TestLoadROMConfigStore(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/rom/targets.json", []byte(`[{"codename":"dev"}]`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/rom/roms.json", []byte(`[{"name":"lineage","link":"https://x","make_target":"bacon","artifact_matcher":{"type":"zip_prefix","value":"lineage-"},"branches":[]}]`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/rom/recoveries.json", []byte(`[]`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/rom/manifest/lineage21.json", []byte(`{"name":"lineage21","local_manifest":{"url":"https://x","branch":"main"},"branches":[]}`), 0o644))

	store, err := LoadROMConfigStore(fs, "/rom")
	require.NoError(t, err)
	require.Contains(t, store.Targets, "dev")
	require.Contains(t, store.ROMs, "lineage")
	require.Contains(t, store.ManifestEntries, "lineage21")
}
