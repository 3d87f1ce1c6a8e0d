package buildstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesPublishedValues(t *testing.T) {
	b := New[string]()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.Publish("a")
	b.Publish("b")

	require.Equal(t, "a", <-ch)
	require.Equal(t, "b", <-ch)
}

func TestSlowConsumerDropsOldestRatherThanBlocking(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	defer unsub()

	for i := 0; i < bufferSize+10; i++ {
		b.Publish(i)
	}

	// The producer must never have blocked; the buffer now holds the most
	// recent bufferSize values, with the earliest ones dropped.
	last := -1
	for len(ch) > 0 {
		last = <-ch
	}
	require.Equal(t, bufferSize+9, last)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New[int]()
	ch, unsub := b.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestMultipleSubscribersEachGetEveryValue(t *testing.T) {
	b := New[int]()
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.Publish(42)

	require.Equal(t, 42, <-ch1)
	require.Equal(t, 42, <-ch2)
}
