package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRollBoundariesAreInclusive(t *testing.T) {
	require.False(t, BySize(1000).ShouldRoll(999, 0, 1))
	require.True(t, BySize(1000).ShouldRoll(1000, 0, 1))

	require.False(t, ByTime(time.Second).ShouldRoll(0, time.Second-1, 1))
	require.True(t, ByTime(time.Second).ShouldRoll(0, time.Second, 1))

	require.False(t, ByCount(10).ShouldRoll(0, 0, 9))
	require.True(t, ByCount(10).ShouldRoll(0, 0, 10))
}

func TestCombinedIsLogicalOr(t *testing.T) {
	c := Combined{BySize(1000), ByCount(10)}
	require.False(t, c.ShouldRoll(500, 0, 5))
	require.True(t, c.ShouldRoll(1000, 0, 5))
	require.True(t, c.ShouldRoll(500, 0, 10))
	require.False(t, Combined{}.ShouldRoll(1<<40, time.Hour, 1<<40))
	require.Equal(t, "any(size(1000),count(10))", c.String())
}

func TestFlushModes(t *testing.T) {
	require.False(t, FlushAsync{}.ShouldFlush(1<<30, time.Hour))
	require.True(t, FlushSync{}.ShouldFlush(1, 0))

	b := FlushBatch{Bytes: 4096, Interval: 10 * time.Millisecond}
	require.False(t, b.ShouldFlush(100, time.Millisecond))
	require.True(t, b.ShouldFlush(4096, 0))
	require.True(t, b.ShouldFlush(1, 10*time.Millisecond))
	require.False(t, b.ShouldFlush(0, time.Hour), "nothing pending")

	bytesOnly := FlushBatch{Bytes: 10}
	require.False(t, bytesOnly.ShouldFlush(9, time.Hour))
}
