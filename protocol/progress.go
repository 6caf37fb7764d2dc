package protocol

import "sync/atomic"

// ProgressValues is a plain snapshot of progress counters, used both for
// callback deliveries and Progress packet payloads. Packet payloads carry
// the delta since the previous emission, not the cumulative value.
type ProgressValues struct {
	ReadRows  uint64
	ReadBytes uint64

	TotalRowsToRead uint64

	WrittenRows  uint64
	WrittenBytes uint64

	ElapsedNs uint64
}

func (pv ProgressValues) Empty() bool {
	return pv.ReadRows == 0 &&
		pv.ReadBytes == 0 &&
		pv.TotalRowsToRead == 0 &&
		pv.WrittenRows == 0 &&
		pv.WrittenBytes == 0
}

func (pv *ProgressValues) Add(other ProgressValues) {
	pv.ReadRows += other.ReadRows
	pv.ReadBytes += other.ReadBytes
	pv.TotalRowsToRead += other.TotalRowsToRead
	pv.WrittenRows += other.WrittenRows
	pv.WrittenBytes += other.WrittenBytes
	pv.ElapsedNs += other.ElapsedNs
}

// Progress accumulates counters written by pipeline workers and drained by
// the single driving goroutine. Counters are monotone, emission fetches
// the delta accumulated since the previous fetch.
type Progress struct {
	readRows  atomic.Uint64
	readBytes atomic.Uint64

	totalRowsToRead atomic.Uint64

	writtenRows  atomic.Uint64
	writtenBytes atomic.Uint64

	elapsedNs atomic.Uint64
}

func (p *Progress) Increment(v ProgressValues) {
	p.readRows.Add(v.ReadRows)
	p.readBytes.Add(v.ReadBytes)
	p.totalRowsToRead.Add(v.TotalRowsToRead)
	p.writtenRows.Add(v.WrittenRows)
	p.writtenBytes.Add(v.WrittenBytes)
	p.elapsedNs.Add(v.ElapsedNs)
}

// FetchAndReset returns the counters accumulated since the previous call
// and zeroes them.
func (p *Progress) FetchAndReset() ProgressValues {
	return ProgressValues{
		ReadRows:        p.readRows.Swap(0),
		ReadBytes:       p.readBytes.Swap(0),
		TotalRowsToRead: p.totalRowsToRead.Swap(0),
		WrittenRows:     p.writtenRows.Swap(0),
		WrittenBytes:    p.writtenBytes.Swap(0),
		ElapsedNs:       p.elapsedNs.Swap(0),
	}
}

func (p *Progress) Peek() ProgressValues {
	return ProgressValues{
		ReadRows:        p.readRows.Load(),
		ReadBytes:       p.readBytes.Load(),
		TotalRowsToRead: p.totalRowsToRead.Load(),
		WrittenRows:     p.writtenRows.Load(),
		WrittenBytes:    p.writtenBytes.Load(),
		ElapsedNs:       p.elapsedNs.Load(),
	}
}
