package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFirstCallPasses(t *testing.T) {
	l := New(time.Hour)
	require.True(t, l.Check())
}

func TestBlocksImmediateSecondCall(t *testing.T) {
	l := New(time.Hour)
	require.True(t, l.Check())
	require.False(t, l.Check())
}

func TestAllowsAfterInterval(t *testing.T) {
	l := New(20 * time.Millisecond)
	require.True(t, l.Check())
	time.Sleep(25 * time.Millisecond)
	require.True(t, l.Check())
}

func TestMultipleBlockedAttempts(t *testing.T) {
	l := New(time.Hour)
	require.True(t, l.Check())
	require.False(t, l.Check())
	require.False(t, l.Check())
	require.False(t, l.Check())
}
