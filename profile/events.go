package profile

import "sync/atomic"

// Event is one named internal execution counter.
type Event int

const (
	SelectedRows Event = iota
	SelectedBytes
	InsertedRows
	InsertedBytes
	BlocksProduced
	FilteredRows
	SleepMicroseconds
	CompressedReadBytes
	DecompressedBytes
	MemoryAllocatedBytes
	MemoryFreedBytes

	eventsCount
)

func (e Event) String() string {
	switch e {
	case SelectedRows:
		return "SelectedRows"
	case SelectedBytes:
		return "SelectedBytes"
	case InsertedRows:
		return "InsertedRows"
	case InsertedBytes:
		return "InsertedBytes"
	case BlocksProduced:
		return "BlocksProduced"
	case FilteredRows:
		return "FilteredRows"
	case SleepMicroseconds:
		return "SleepMicroseconds"
	case CompressedReadBytes:
		return "CompressedReadBytes"
	case DecompressedBytes:
		return "DecompressedBytes"
	case MemoryAllocatedBytes:
		return "MemoryAllocatedBytes"
	case MemoryFreedBytes:
		return "MemoryFreedBytes"
	default:
		return ""
	}
}

// Counters is a set of event counters owned by one pipeline worker and
// sampled from the driving goroutine.
type Counters struct {
	vals [eventsCount]atomic.Int64
}

func (c *Counters) Increment(e Event, v int64) {
	c.vals[e].Add(v)
}

func (c *Counters) Snapshot() CountersSnapshot {

	var out CountersSnapshot
	for i := range c.vals {
		out[i] = c.vals[i].Load()
	}

	return out
}

// CountersSnapshot is a point-in-time copy of all counters of one thread.
type CountersSnapshot [eventsCount]int64

func (s CountersSnapshot) Sub(prev CountersSnapshot) CountersSnapshot {

	var out CountersSnapshot
	for i := range s {
		out[i] = s[i] - prev[i]
	}

	return out
}
