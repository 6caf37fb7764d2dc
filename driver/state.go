package driver

import (
	"sync/atomic"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/memtrack"
	"github.com/dot5enko/local-query-driver/pipeline"
	"github.com/dot5enko/local-query-driver/protocol"
	"github.com/dot5enko/local-query-driver/session"
)

type executorKind int

const (
	execNone executorKind = iota
	execPull
	execPush
	execAsyncPush
)

// executorVariant is a tagged union over the three executor flavors, so
// an invalid "two populated" state cannot be constructed.
type executorVariant struct {
	kind executorKind

	pull      *pipeline.PullingExecutor
	push      *pipeline.PushingExecutor
	asyncPush *pipeline.AsyncPushingExecutor
}

func pullVariant(e *pipeline.PullingExecutor) executorVariant {
	return executorVariant{kind: execPull, pull: e}
}

func pushVariant(e *pipeline.PushingExecutor) executorVariant {
	return executorVariant{kind: execPush, push: e}
}

func asyncPushVariant(e *pipeline.AsyncPushingExecutor) executorVariant {
	return executorVariant{kind: execAsyncPush, asyncPush: e}
}

func (v *executorVariant) cancel() {
	switch v.kind {
	case execPull:
		v.pull.Cancel()
	case execPush:
		v.push.Cancel()
	case execAsyncPush:
		v.asyncPush.Cancel()
	}
}

// queryState describes one in-flight query. It is owned and mutated by
// the single driving goroutine, cancelled is the only field written from
// other goroutines.
type queryState struct {
	queryID string
	stage   protocol.Stage
	query   string

	// execution context captured at sendQuery time, the pipeline itself
	// is built lazily so external tables sent before the first poll are
	// visible to it
	sess             session.Session
	asyncPump        bool
	progressCallback func(protocol.ProgressValues)

	built bool
	pipe  *pipeline.Pipeline
	exec  executorVariant

	logQueue chan protocol.LogEntry

	// once set, dominates all other packet production until drained
	exception *protocol.Exception

	pendingBlock         *block.Block
	pendingColumns       *block.Block
	pendingProfileEvents []protocol.ProfileEventEntry
	pendingLogs          []protocol.LogEntry

	cancelled atomic.Bool
	finished  bool
	drained   bool

	sentTotals        bool
	sentExtremes      bool
	sentProgress      bool
	sentProfileInfo   bool
	sentProfileEvents bool

	progress    protocol.Progress
	profileInfo protocol.ProfileInfo

	afterSendProgress      Stopwatch
	afterSendProfileEvents Stopwatch

	scope *memtrack.QueryScope
}

func (st *queryState) acceptsData() bool {

	if st.drained || st.finished {
		return false
	}

	return st.exec.kind == execPush || st.exec.kind == execAsyncPush
}
