package jobregistry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKernelRegistryAllocateIsMonotonic(t *testing.T) {
	reg := NewKernelRegistry()
	a := reg.Allocate()
	b := reg.Allocate()
	require.Equal(t, int64(1), a)
	require.Equal(t, int64(2), b)
	require.True(t, reg.IsValid(a))
	require.True(t, reg.IsValid(b))
}

func TestKernelRegistryUnknownIDIsNotFound(t *testing.T) {
	reg := NewKernelRegistry()
	require.False(t, reg.IsValid(99))
	_, err := reg.IsFinished(99)
	require.Error(t, err)
	require.Error(t, reg.MarkFinished(99, true))
}

func TestKernelRegistryMarkFinishedIsIdempotent(t *testing.T) {
	reg := NewKernelRegistry()
	id := reg.Allocate()

	finished, err := reg.IsFinished(id)
	require.NoError(t, err)
	require.False(t, finished)

	require.NoError(t, reg.MarkFinished(id, true))
	st, err := reg.Status(id)
	require.NoError(t, err)
	require.True(t, st.Finished)
	require.True(t, st.Succeeded)

	// Second call must not flip Succeeded back to false.
	require.NoError(t, reg.MarkFinished(id, false))
	st, err = reg.Status(id)
	require.NoError(t, err)
	require.True(t, st.Succeeded)
}

func TestROMRegistryAllocateMintsBuildPrefixedUUID(t *testing.T) {
	reg := NewROMRegistry()
	id := reg.Allocate()
	require.Regexp(t, `^build-[0-9a-f-]{36}$`, id)
	require.True(t, reg.IsValid(id))
}

func TestROMRegistryMarkFinished(t *testing.T) {
	reg := NewROMRegistry()
	id := reg.Allocate()

	require.NoError(t, reg.MarkFinished(id, false))
	st, err := reg.Status(id)
	require.NoError(t, err)
	require.True(t, st.Finished)
	require.False(t, st.Succeeded)
}

func TestROMRegistryUnknownIDIsNotFound(t *testing.T) {
	reg := NewROMRegistry()
	_, err := reg.IsFinished("build-does-not-exist")
	require.Error(t, err)
}
