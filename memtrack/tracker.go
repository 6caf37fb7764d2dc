package memtrack

import (
	"sync/atomic"
	"time"
)

// Trace is the record returned by every tracked allocation or free.
type Trace struct {
	Size      int64
	Allocated int64
	QueryID   string
	Time      time.Time
}

// Tracker accounts bytes allocated and freed during query execution. It
// never fails an allocation, accounting is diagnostic only.
type Tracker struct {
	allocated atomic.Int64
	peak      atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) AllocNoThrow(size int64) Trace {

	total := t.allocated.Add(size)

	for {
		peak := t.peak.Load()
		if total <= peak || t.peak.CompareAndSwap(peak, total) {
			break
		}
	}

	return Trace{
		Size:      size,
		Allocated: total,
		Time:      time.Now(),
	}
}

func (t *Tracker) Free(size int64) Trace {

	total := t.allocated.Add(-size)

	return Trace{
		Size:      -size,
		Allocated: total,
		Time:      time.Now(),
	}
}

func (t *Tracker) Allocated() int64 {
	return t.allocated.Load()
}

func (t *Tracker) Peak() int64 {
	return t.peak.Load()
}
