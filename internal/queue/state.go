package queue

import (
	"sort"
	"sync"
	"sync/atomic"
)

// committed is the reader-visible view of the log. The writer publishes to
// it after every request and every segment transition; tailers and
// accessors only read it.
type committed struct {
	mu       sync.RWMutex
	segments []SegmentInfo
	notifyCh chan struct{}
	next     atomic.Uint64

	failOnce sync.Once
	failedCh chan struct{}
	failErr  error
	closedCh chan struct{}
}

func newCommitted(m *Manifest) *committed {
	c := &committed{
		segments: append([]SegmentInfo(nil), m.Segments...),
		notifyCh: make(chan struct{}),
		failedCh: make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	c.next.Store(m.NextSequence())
	return c
}

// publish records the latest state of the segment starting at
// info.BaseSequence and wakes blocked waiters.
func (c *committed) publish(info SegmentInfo, next uint64) {
	c.mu.Lock()
	if n := len(c.segments); n > 0 && c.segments[n-1].BaseSequence == info.BaseSequence {
		c.segments[n-1] = info
	} else {
		c.segments = append(c.segments, info)
	}
	c.next.Store(next)
	close(c.notifyCh)
	c.notifyCh = make(chan struct{})
	c.mu.Unlock()
}

func (c *committed) snapshot() []SegmentInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]SegmentInfo(nil), c.segments...)
}

// segmentFor returns the segment that holds seq, or the segment that will
// receive it when seq is the next sequence to be written.
func (c *committed) segmentFor(seq uint64) (SegmentInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.segments), func(i int) bool { return c.segments[i].BaseSequence > seq }) - 1
	if i < 0 {
		return SegmentInfo{}, false
	}
	s := c.segments[i]
	if s.Contains(seq) || (!s.Sealed && seq == s.NextSequence()) {
		return s, true
	}
	return SegmentInfo{}, false
}

// segment returns the current view of the segment starting at base.
func (c *committed) segment(base uint64) (SegmentInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := sort.Search(len(c.segments), func(i int) bool { return c.segments[i].BaseSequence >= base })
	if i < len(c.segments) && c.segments[i].BaseSequence == base {
		return c.segments[i], true
	}
	return SegmentInfo{}, false
}

func (c *committed) waitCh() chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notifyCh
}

func (c *committed) fail(err error) {
	c.failOnce.Do(func() {
		c.mu.Lock()
		c.failErr = err
		c.mu.Unlock()
		close(c.failedCh)
	})
}

func (c *committed) err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failErr
}

func (c *committed) close() { close(c.closedCh) }
