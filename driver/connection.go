package driver

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/engine"
	"github.com/dot5enko/local-query-driver/pipeline"
	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
	"github.com/dot5enko/local-query-driver/session"
)

var (
	ErrQueryInFlight    = errors.New("another query is already in flight")
	ErrNoActiveQuery    = errors.New("no query is active")
	ErrNotAcceptingData = errors.New("active query does not accept data blocks")
	ErrScalarShape      = errors.New("scalar block must hold exactly one row")
)

// Options is connection-scoped configuration, fixed for the connection's
// lifetime.
type Options struct {
	SendProgress      bool
	SendProfileEvents bool
	ServerDisplayName string

	ProgressInterval      time.Duration
	ProfileEventsInterval time.Duration

	// dump every produced packet to stderr
	DebugPackets bool
}

func DefaultOptions() Options {
	return Options{
		SendProgress:          true,
		SendProfileEvents:     true,
		ProgressInterval:      100 * time.Millisecond,
		ProfileEventsInterval: 100 * time.Millisecond,
	}
}

// QuerySettings are per-query overrides passed to SendQuery, nil means
// session defaults.
type QuerySettings struct {
	session.Settings

	// pump insert blocks through a background consumer
	AsyncInsertPump bool
}

// Throttler limits transfer bandwidth on networked connections. The
// local connection has no transport, the setter exists for contract
// symmetry.
type Throttler interface {
	Add(amount uint64)
}

// ParallelReadResponse is the distributed parallel-read coordination
// payload. A purely local engine accepts and ignores it.
type ParallelReadResponse struct {
	Description string
}

// ExternalTableData is one named temporary table shipped alongside a
// query.
type ExternalTableData struct {
	Name  string
	Block *block.Block
}

// LocalConnection drives queries through the in-process engine and
// exposes results as protocol packets, with no serialization and no
// transport. One query is active at a time.
type LocalConnection struct {
	engine *engine.Engine
	sess   *session.Session

	opts Options

	state      *queryState
	nextPacket *uint64

	logQueue chan protocol.LogEntry

	// previously sent profile counters keyed by thread identity, lives
	// across queries of this connection
	lastSentSnapshots profile.ThreadSnapshots
}

func New(eng *engine.Engine, sess *session.Session, opts Options) *LocalConnection {

	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 100 * time.Millisecond
	}
	if opts.ProfileEventsInterval <= 0 {
		opts.ProfileEventsInterval = 100 * time.Millisecond
	}

	if opts.ServerDisplayName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		opts.ServerDisplayName = hostname
	}

	return &LocalConnection{
		engine:            eng,
		sess:              sess,
		opts:              opts,
		lastSentSnapshots: make(profile.ThreadSnapshots),
	}
}

func (c *LocalConnection) SetDefaultDatabase(name string) {
	c.sess.SetDefaultDatabase(name)
}

// SetLogsQueue subscribes the caller to asynchronous text logs of
// subsequent queries.
func (c *LocalConnection) SetLogsQueue(ch chan protocol.LogEntry) {
	c.logQueue = ch
}

// SendQuery resolves the query into an execution pipeline and wires the
// matching executor. Fails without touching the active state when a
// query is already in flight.
func (c *LocalConnection) SendQuery(
	query string,
	params map[string]string,
	queryID string,
	stage protocol.Stage,
	settings *QuerySettings,
	externalRoles []string,
	progressCallback func(protocol.ProgressValues),
) error {

	if c.state != nil && !c.state.finished {
		return fmt.Errorf("%w : '%s'", ErrQueryInFlight, c.state.queryID)
	}

	if queryID == "" {
		uid, _ := uuid.NewV7()
		queryID = uid.String()
	}

	text := substituteParams(query, params)

	sess := *c.sess
	if len(externalRoles) > 0 {
		sess.ExternalRoles = append(append([]string(nil), sess.ExternalRoles...), externalRoles...)
	}
	if settings != nil {
		sess.Settings = settings.Settings
	}

	st := &queryState{
		queryID:                queryID,
		stage:                  stage,
		query:                  text,
		sess:                   sess,
		asyncPump:              settings != nil && settings.AsyncInsertPump,
		progressCallback:       progressCallback,
		logQueue:               c.logQueue,
		afterSendProgress:      NewStopwatch(),
		afterSendProfileEvents: NewStopwatch(),
		scope:                  c.engine.Tracker().NewQueryScope(queryID),
	}
	c.state = st
	c.nextPacket = nil

	slog.Debug("query accepted", "query_id", queryID, "stage", stage.String())

	return nil
}

// ensureBuilt realizes the pipeline on first use. Deferring this past
// sendQuery keeps external tables shipped through sendData visible to
// the query that reads them.
func (c *LocalConnection) ensureBuilt() {

	st := c.state
	if st == nil || st.built {
		return
	}
	st.built = true

	pipe, err := c.engine.Build(st.queryID, st.query, &st.sess, st.stage)
	if err != nil {
		// surfaced as an Exception packet on the next receive
		st.exception = protocol.NewException(exceptionCode(err), err)
		return
	}

	st.pipe = pipe
	st.pendingColumns = pipe.Header()

	if st.logQueue != nil {
		pipe.AttachLogQueue(st.queryID, st.logQueue)
	}

	pipe.SetProgressCallback(func(v protocol.ProgressValues) {
		st.progress.Increment(v)
		if st.progressCallback != nil {
			st.progressCallback(v)
		}
	})

	if pipe.Pushing() {
		if st.asyncPump {
			ex, err := pipeline.NewAsyncPushingExecutor(pipe)
			if err != nil {
				st.exception = protocol.NewException(protocol.CodeLogicalError, err)
				return
			}
			st.exec = asyncPushVariant(ex)
		} else {
			ex, err := pipeline.NewPushingExecutor(pipe)
			if err != nil {
				st.exception = protocol.NewException(protocol.CodeLogicalError, err)
				return
			}
			st.exec = pushVariant(ex)
		}
		return
	}

	collectExtremes := st.sess.Settings.Extremes && pipe.Pulling()
	st.exec = pullVariant(pipeline.NewPullingExecutor(pipe, collectExtremes))
}

func substituteParams(query string, params map[string]string) string {

	if len(params) == 0 {
		return query
	}

	for name, value := range params {
		query = strings.ReplaceAll(query, "{"+name+"}", value)
	}

	return query
}

func exceptionCode(err error) int32 {
	switch {
	case errors.Is(err, engine.ErrSyntax):
		return protocol.CodeSyntaxError
	case errors.Is(err, engine.ErrUnknownTable):
		return protocol.CodeUnknownTable
	case errors.Is(err, block.ErrNoSuchColumn):
		return protocol.CodeUnknownIdentifier
	case errors.Is(err, block.ErrColumnTypeMismatch):
		return protocol.CodeTypeMismatch
	default:
		return protocol.CodeLogicalError
	}
}

// SendCancel marks the active query cancelled. The driving goroutine
// observes the flag at its next poll. Idempotent, safe from any
// goroutine.
func (c *LocalConnection) SendCancel() {

	st := c.state
	if st == nil {
		return
	}

	st.cancelled.Store(true)
}

// SendData appends one block of input rows. With a name set the block
// goes to the named external (or scalar) table, otherwise it feeds the
// active insert. An empty unnamed block finishes the insert.
func (c *LocalConnection) SendData(b *block.Block, name string, scalar bool) error {

	st := c.state
	if st == nil {
		return ErrNoActiveQuery
	}

	if name != "" {
		// scalars are single-row temporary tables sharing the external
		// name space
		if scalar && (b == nil || b.Rows() != 1) {
			return fmt.Errorf("%w : '%s'", ErrScalarShape, name)
		}
		return c.engine.AppendExternalTable(st.queryID, name, b)
	}

	c.ensureBuilt()

	if !st.acceptsData() {
		return ErrNotAcceptingData
	}

	if b == nil || b.Rows() == 0 {
		return c.finishInsert(st)
	}

	switch st.exec.kind {
	case execPush:
		return st.exec.push.Push(b)
	case execAsyncPush:
		return st.exec.asyncPush.Push(b)
	default:
		return ErrNotAcceptingData
	}
}

func (c *LocalConnection) finishInsert(st *queryState) error {

	var err error

	switch st.exec.kind {
	case execPush:
		err = st.exec.push.Finish()
	case execAsyncPush:
		err = st.exec.asyncPush.Finish()
	}

	if err != nil {
		st.exception = protocol.NewException(protocol.CodeLogicalError, err)
	}

	st.drained = true
	return nil
}

// IsSendDataNeeded reports whether the active query is still waiting for
// input blocks.
func (c *LocalConnection) IsSendDataNeeded() bool {
	c.ensureBuilt()
	return c.state != nil && c.state.acceptsData()
}

// SendExternalTablesData registers multiple named temporary tables at
// once.
func (c *LocalConnection) SendExternalTablesData(tables []ExternalTableData) error {

	st := c.state
	if st == nil {
		return ErrNoActiveQuery
	}

	for _, t := range tables {
		if err := c.engine.AppendExternalTable(st.queryID, t.Name, t.Block); err != nil {
			return err
		}
	}

	return nil
}

// SendMergeTreeReadTaskResponse exists for symmetry with the networked
// connection. A single local engine has no parallel-read coordinator.
func (c *LocalConnection) SendMergeTreeReadTaskResponse(ParallelReadResponse) {}

// HasReadPendingData reports whether a polled block is buffered and not
// yet delivered.
func (c *LocalConnection) HasReadPendingData() bool {
	return c.state != nil && c.state.pendingBlock != nil
}

// ColumnsDescription returns the header of the active query's result,
// nil when none.
func (c *LocalConnection) ColumnsDescription() *block.Block {
	c.ensureBuilt()
	if c.state == nil {
		return nil
	}
	return c.state.pendingColumns
}

func (c *LocalConnection) ServerVersion() (name string, major, minor, patch, revision uint64) {
	return protocol.ServerName,
		protocol.ServerVersionMajor,
		protocol.ServerVersionMinor,
		protocol.ServerVersionPatch,
		protocol.ServerRevision
}

func (c *LocalConnection) ServerRevision() uint64 {
	return protocol.ServerRevision
}

func (c *LocalConnection) ServerTimezone() string {
	zone, _ := time.Now().Zone()
	return zone
}

func (c *LocalConnection) ServerDisplayName() string {
	return c.opts.ServerDisplayName
}

// Connectivity stubs. There is no transport, the connection is
// definitionally established.

func (c *LocalConnection) ForceConnected() {}

func (c *LocalConnection) IsConnected() bool {
	return true
}

func (c *LocalConnection) CheckConnected() bool {
	return true
}

func (c *LocalConnection) Disconnect() {}

func (c *LocalConnection) SetThrottler(Throttler) {}
