package queue

import (
	"fmt"
	"strings"
	"time"
)

// RollStrategy decides when the active segment is sealed and a new one
// started. It is consulted before each write with the active segment's
// current size, the time since it was created and its message count, and
// only when the segment already holds at least one frame.
type RollStrategy interface {
	ShouldRoll(sizeBytes uint64, elapsed time.Duration, count uint64) bool
	String() string
}

// BySize rolls once the segment reaches the given number of bytes.
type BySize uint64

func (s BySize) ShouldRoll(size uint64, _ time.Duration, _ uint64) bool { return size >= uint64(s) }
func (s BySize) String() string                                         { return fmt.Sprintf("size(%d)", uint64(s)) }

// ByTime rolls once the segment has been open for the given duration.
type ByTime time.Duration

func (t ByTime) ShouldRoll(_ uint64, elapsed time.Duration, _ uint64) bool {
	return elapsed >= time.Duration(t)
}
func (t ByTime) String() string { return fmt.Sprintf("time(%s)", time.Duration(t)) }

// ByCount rolls once the segment holds the given number of messages.
type ByCount uint64

func (c ByCount) ShouldRoll(_ uint64, _ time.Duration, count uint64) bool { return count >= uint64(c) }
func (c ByCount) String() string                                          { return fmt.Sprintf("count(%d)", uint64(c)) }

// Combined rolls when any of its strategies would. An empty Combined never
// rolls.
type Combined []RollStrategy

func (c Combined) ShouldRoll(size uint64, elapsed time.Duration, count uint64) bool {
	for _, s := range c {
		if s.ShouldRoll(size, elapsed, count) {
			return true
		}
	}
	return false
}

func (c Combined) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = s.String()
	}
	return "any(" + strings.Join(parts, ",") + ")"
}

// FlushMode decides when the writer issues a durability barrier. pending is
// the number of bytes written since the last barrier.
type FlushMode interface {
	ShouldFlush(pending uint64, sinceLast time.Duration) bool
	String() string
}

// FlushAsync never forces a barrier; the OS decides. Data is still synced on
// roll and on Close.
type FlushAsync struct{}

func (FlushAsync) ShouldFlush(uint64, time.Duration) bool { return false }
func (FlushAsync) String() string                         { return "async" }

// FlushSync syncs after every write.
type FlushSync struct{}

func (FlushSync) ShouldFlush(pending uint64, _ time.Duration) bool { return pending > 0 }
func (FlushSync) String() string                                   { return "sync" }

// FlushBatch syncs when Bytes are pending or Interval has passed since the
// last barrier. A zero field disables that trigger.
type FlushBatch struct {
	Bytes    uint64
	Interval time.Duration
}

func (b FlushBatch) ShouldFlush(pending uint64, sinceLast time.Duration) bool {
	if pending == 0 {
		return false
	}
	if b.Bytes > 0 && pending >= b.Bytes {
		return true
	}
	return b.Interval > 0 && sinceLast >= b.Interval
}

func (b FlushBatch) String() string {
	return fmt.Sprintf("batch(%d bytes, %s)", b.Bytes, b.Interval)
}
