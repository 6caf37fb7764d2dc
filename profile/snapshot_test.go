package profile

import (
	"testing"
	"time"
)

func TestCountersSnapshotDiff(t *testing.T) {

	c := &Counters{}
	c.Increment(SelectedRows, 100)
	c.Increment(SelectedBytes, 800)

	first := c.Snapshot()

	c.Increment(SelectedRows, 50)

	second := c.Snapshot()
	delta := second.Sub(first)

	if delta[SelectedRows] != 50 {
		t.Errorf("Expected 50 but got %d", delta[SelectedRows])
	}
	if delta[SelectedBytes] != 0 {
		t.Errorf("Expected 0 but got %d", delta[SelectedBytes])
	}
}

func TestRegistryRetiredCountersSurviveOneCollect(t *testing.T) {

	r := NewRegistry()

	id := AllocateThreadId()
	counters := r.Register(id)
	counters.Increment(SelectedRows, 7)

	r.Retire(id)

	collected := r.Collect()
	if collected[id][SelectedRows] != 7 {
		t.Errorf("Expected the retired thread to report 7 but got %d", collected[id][SelectedRows])
	}

	// a retired thread is reported once, then dropped
	collected = r.Collect()
	if _, ok := collected[id]; ok {
		t.Errorf("Expected the retired thread to be gone on the second collect")
	}
}

func TestDiffSnapshotsEmitsOnlyChanges(t *testing.T) {

	idleId := AllocateThreadId()
	busyId := AllocateThreadId()

	prev := ThreadSnapshots{
		idleId: {},
		busyId: {},
	}

	var busy CountersSnapshot
	busy[SelectedRows] = 10

	cur := ThreadSnapshots{
		idleId: {},
		busyId: busy,
	}

	entries := DiffSnapshots(prev, cur, time.Now())

	for _, entry := range entries {
		if entry.ThreadID == idleId {
			t.Errorf("Expected no entries for an idle thread")
		}
	}

	found := false
	for _, entry := range entries {
		if entry.ThreadID == busyId && entry.Name == SelectedRows.String() && entry.Value == 10 {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a SelectedRows entry for the busy thread, got %v", entries)
	}

	// prev was advanced to cur, the same diff again is empty
	if entries = DiffSnapshots(prev, cur, time.Now()); len(entries) != 0 {
		t.Errorf("Expected no entries on an unchanged diff but got %d", len(entries))
	}
}
