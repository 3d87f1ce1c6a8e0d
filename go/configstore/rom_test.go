package configstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArtifactMatcherZipPrefix(t *testing.T) {
	m := ArtifactMatcher{Kind: MatchZipPrefix, Value: "lineage-"}
	name, ok := m.Match([]string{"boot.img", "lineage-21.0-dev.zip", "lineage-recovery.img"})
	require.True(t, ok)
	require.Equal(t, "lineage-21.0-dev.zip", name)
}

func TestArtifactMatcherExact(t *testing.T) {
	m := ArtifactMatcher{Kind: MatchExact, Value: "update.zip"}
	_, ok := m.Match([]string{"other.zip"})
	require.False(t, ok)
	name, ok := m.Match([]string{"update.zip"})
	require.True(t, ok)
	require.Equal(t, "update.zip", name)
}

func TestBranchMatchesExactDevice(t *testing.T) {
	b := Branch{TargetROM: "lineage", AndroidVersion: "14", Device: "dev"}
	ok, err := b.Matches("lineage", "14", "dev")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Matches("lineage", "14", "other")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBranchMatchesRegexIsPartial(t *testing.T) {
	b := Branch{TargetROM: "lineage", AndroidVersion: "14", Device: "dev.*", UseRegex: true}
	ok, err := b.Matches("lineage", "14", "dev2-variant")
	require.NoError(t, err)
	require.True(t, ok, "spec follows source: partial match, not full anchor")
}

func TestBranchWrongROMOrVersionNeverMatches(t *testing.T) {
	b := Branch{TargetROM: "lineage", AndroidVersion: "14", Device: "dev"}
	ok, err := b.Matches("other", "14", "dev")
	require.NoError(t, err)
	require.False(t, ok)
}
