package memtrack

import (
	"sync"
	"sync/atomic"
)

// currentScope is the ambient query scope, readable from anywhere in the
// process while a query runs. One scope is active at a time per driver.
var currentScope atomic.Pointer[QueryScope]

// Current returns the ambient scope, nil when no query is in flight.
func Current() *QueryScope {
	return currentScope.Load()
}

// QueryScope pins the identity of the running query and routes its
// allocations through the tracker. It is released exactly once on
// whichever path concludes the query.
type QueryScope struct {
	queryID string
	tracker *Tracker

	inScope atomic.Int64
	release sync.Once
}

func (t *Tracker) NewQueryScope(queryID string) *QueryScope {

	s := &QueryScope{
		queryID: queryID,
		tracker: t,
	}

	currentScope.Store(s)
	return s
}

func (s *QueryScope) QueryID() string {
	return s.queryID
}

func (s *QueryScope) Alloc(size int64) Trace {

	s.inScope.Add(size)

	trace := s.tracker.AllocNoThrow(size)
	trace.QueryID = s.queryID

	return trace
}

func (s *QueryScope) Free(size int64) Trace {

	s.inScope.Add(-size)

	trace := s.tracker.Free(size)
	trace.QueryID = s.queryID

	return trace
}

// Release returns any bytes still accounted to the scope and clears the
// ambient pointer. Safe to call on every teardown path.
func (s *QueryScope) Release() {

	s.release.Do(func() {

		leftover := s.inScope.Swap(0)
		if leftover > 0 {
			s.tracker.Free(leftover)
		}

		currentScope.CompareAndSwap(s, nil)
	})
}
