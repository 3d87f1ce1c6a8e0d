package configstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.buildorch.dev/go/toolchain"
)

const sampleKernelConfig = `{
	"name": "k1",
	"repo": {"url": "https://example.com/k1.git", "branch": "main"},
	"arch": "arm64",
	"type": "Image.gz-dtb",
	"toolchains": {"clang": true, "llvm_ias": true},
	"defconfig": {"scheme": "{device}_defconfig", "devices": ["dev"]},
	"fragments": [{"name": "lto", "scheme": "lto.config", "default_enabled": false}]
}`

func TestAddListGetRoundTrip(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))

	cfg, ok := reg.Get("k1")
	require.True(t, ok)
	require.Equal(t, toolchain.ARM64, cfg.Arch)
	require.True(t, cfg.SupportsArch(toolchain.ARM64))
	require.False(t, cfg.SupportsArch(toolchain.ARM))

	names := map[string]bool{}
	for name, raw := range reg.ListConfigs() {
		names[name] = true
		require.Contains(t, raw, "k1")
	}
	require.True(t, names["k1"])
}

func TestAddConfigAllowsDuplicateNamesFirstMatchWins(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))
	second := `{"name":"k1","repo":{"url":"https://example.com/other.git","branch":"main"},"arch":"arm","type":"zImage","toolchains":{},"defconfig":{"scheme":"x","devices":["d"]}}`
	require.NoError(t, reg.AddConfig([]byte(second)))

	cfg, ok := reg.Get("k1")
	require.True(t, ok)
	require.Equal(t, "https://example.com/k1.git", cfg.Repo.URL, "first list-ordered match wins")
}

func TestUpdateConfigNotFound(t *testing.T) {
	reg := NewKernelRegistry()
	err := reg.UpdateConfig([]byte(sampleKernelConfig))
	require.Error(t, err)
}

func TestUpdateConfigReplacesFirstMatch(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))
	updated := `{"name":"k1","repo":{"url":"https://example.com/new.git","branch":"main"},"arch":"arm64","type":"Image.gz-dtb","toolchains":{"clang":true},"defconfig":{"scheme":"{device}_defconfig","devices":["dev"]}}`
	require.NoError(t, reg.UpdateConfig([]byte(updated)))

	cfg, ok := reg.Get("k1")
	require.True(t, ok)
	require.Equal(t, "https://example.com/new.git", cfg.Repo.URL)
}

func TestDeleteConfigRemovesAllMatches(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))
	require.NoError(t, reg.DeleteConfig("k1"))
	_, ok := reg.Get("k1")
	require.False(t, ok)

	err := reg.DeleteConfig("k1")
	require.Error(t, err)
}

func TestBuildArgsLLVMIAS(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))
	cfg, _ := reg.Get("k1")
	require.Equal(t, []string{"ARCH=arm64", "LLVM=1", "LLVM_IAS=1"}, cfg.BuildArgs())
}

func TestFragmentLookup(t *testing.T) {
	reg := NewKernelRegistry()
	require.NoError(t, reg.AddConfig([]byte(sampleKernelConfig)))
	cfg, _ := reg.Get("k1")
	_, ok := cfg.FragmentByName("lto")
	require.True(t, ok)
	_, ok = cfg.FragmentByName("bogus")
	require.False(t, ok)
}
