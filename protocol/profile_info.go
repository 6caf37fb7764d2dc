package protocol

import "time"

// ProfileInfo summarizes final per-query counters, emitted once right
// before end-of-stream.
type ProfileInfo struct {
	Rows   uint64
	Blocks uint64
	Bytes  uint64

	AppliedLimit              bool
	RowsBeforeLimit           uint64
	CalculatedRowsBeforeLimit bool
}

func (pi *ProfileInfo) Update(rows int, bytes int) {
	pi.Rows += uint64(rows)
	pi.Bytes += uint64(bytes)
	pi.Blocks++
}

// ProfileEventEntry is one per-thread counter delta inside a
// ProfileEvents packet.
type ProfileEventEntry struct {
	ThreadID uint64
	Name     string
	Value    int64
	Time     time.Time
}
