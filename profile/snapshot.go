package profile

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/dot5enko/local-query-driver/protocol"
)

var nextThreadId atomic.Uint64

// AllocateThreadId hands out process-unique logical thread identities for
// pipeline workers.
func AllocateThreadId() uint64 {
	return nextThreadId.Add(1)
}

// ThreadSnapshots is the thread-id-keyed view of counters, used both as
// the connection-lifetime baseline and as each fresh sample.
type ThreadSnapshots map[uint64]CountersSnapshot

// Registry tracks live worker counters for one pipeline. A worker that
// retires between collections contributes its last known counters exactly
// once, then its key disappears.
type Registry struct {
	mu      sync.Mutex
	live    map[uint64]*Counters
	retired map[uint64]CountersSnapshot
}

func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[uint64]*Counters),
		retired: make(map[uint64]CountersSnapshot),
	}
}

func (r *Registry) Register(threadId uint64) *Counters {

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Counters{}
	r.live[threadId] = c

	return c
}

func (r *Registry) Retire(threadId uint64) {

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.live[threadId]
	if !ok {
		return
	}

	r.retired[threadId] = c.Snapshot()
	delete(r.live, threadId)
}

// Collect samples every live worker and drains retired ones.
func (r *Registry) Collect() ThreadSnapshots {

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(ThreadSnapshots, len(r.live)+len(r.retired))

	for id, c := range r.live {
		out[id] = c.Snapshot()
	}
	for id, snap := range r.retired {
		out[id] = snap
	}

	maps.Clear(r.retired)

	return out
}

// DiffSnapshots computes per-thread counter deltas of cur against prev and
// advances prev to cur in place. Threads absent from cur are dropped from
// the baseline, their final values were contributed by the collection
// that still carried them.
func DiffSnapshots(prev ThreadSnapshots, cur ThreadSnapshots, now time.Time) []protocol.ProfileEventEntry {

	var entries []protocol.ProfileEventEntry

	ids := maps.Keys(cur)
	slices.Sort(ids)

	for _, id := range ids {

		delta := cur[id].Sub(prev[id])

		for ev := Event(0); ev < eventsCount; ev++ {
			if delta[ev] == 0 {
				continue
			}
			entries = append(entries, protocol.ProfileEventEntry{
				ThreadID: id,
				Name:     ev.String(),
				Value:    delta[ev],
				Time:     now,
			})
		}

		prev[id] = cur[id]
	}

	for _, id := range maps.Keys(prev) {
		if _, alive := cur[id]; !alive {
			delete(prev, id)
		}
	}

	return entries
}
