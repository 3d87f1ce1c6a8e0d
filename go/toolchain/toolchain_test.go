package toolchain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func catalog() Catalog {
	return Catalog{Toolchains: []Toolchain{
		{Compiler: GCC, Version: 4.9, Arch: ARM, Name: "gcc-arm"},
		{Compiler: Clang, Version: 17, Arch: ARM64, Name: "clang-arm64"},
		{Compiler: Clang, Version: 17, Arch: Any, Name: "clang-any"},
	}}
}

func TestSelectClangTakesFirstMatchingEntry(t *testing.T) {
	tc, err := catalog().Select(ARM64, true)
	require.NoError(t, err)
	require.Equal(t, "clang-arm64", tc.Name)
}

func TestSelectGCCRejectsTooNewVersion(t *testing.T) {
	c := Catalog{Toolchains: []Toolchain{{Compiler: GCC, Version: 12, Arch: ARM, Name: "gcc-12"}}}
	_, err := c.Select(ARM, false)
	require.Error(t, err)
	var nst *NoSuitableToolchainError
	require.ErrorAs(t, err, &nst)
}

func TestSelectNoMatchReturnsTypedError(t *testing.T) {
	_, err := catalog().Select(X86, false)
	require.Error(t, err)
	var nst *NoSuitableToolchainError
	require.ErrorAs(t, err, &nst)
}

func TestArchEqualAnyWildcard(t *testing.T) {
	require.True(t, Any.Equal(ARM))
	require.True(t, ARM.Equal(Any))
	require.True(t, ARM.Equal(ARM))
	require.False(t, ARM.Equal(ARM64))
}

func TestExeNameGCCWithAndWithoutTriple(t *testing.T) {
	require.Equal(t, "gcc", Toolchain{Compiler: GCC}.ExeName())
	require.Equal(t, "arm-linux-androideabi-gcc", Toolchain{Compiler: GCC, Triple: "arm-linux-androideabi"}.ExeName())
}

func TestExeNameClangIgnoresTriple(t *testing.T) {
	require.Equal(t, "clang", Toolchain{Compiler: Clang, Triple: "anything"}.ExeName())
}

func TestBuildArgsUsesTripleOverDefault(t *testing.T) {
	tc := Toolchain{Triple: "aarch64-linux-android"}
	require.Equal(t, []string{"CROSS_COMPILE=aarch64-linux-android-"}, tc.BuildArgs(ARM64))
}

func TestBuildArgsFallsBackToPerArchDefault(t *testing.T) {
	tc := Toolchain{}
	require.Equal(t, []string{"CROSS_COMPILE=aarch64-linux-gnu-"}, tc.BuildArgs(ARM64))
	require.Equal(t, []string{"CROSS_COMPILE=arm-linux-gnueabi-"}, tc.BuildArgs(ARM))
	require.Equal(t, []string{"CROSS_COMPILE=x86_64-linux-gnu-"}, tc.BuildArgs(X86))
}
