package driver

import (
	"log/slog"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
)

// at most this many log entries per Log packet, so logs never block data
// indefinitely
const logBatchSize = 16

// Poll advances execution and reports whether a packet is ready within
// the timeout. Not-ready on timeout is retryable, no progress is lost.
func (c *LocalConnection) Poll(timeout time.Duration) (bool, error) {

	if c.state == nil {
		return false, ErrNoActiveQuery
	}

	if c.nextPacket != nil {
		return true, nil
	}

	c.ensureBuilt()

	typ, ready := c.pollImpl(timeout)
	if ready {
		c.nextPacket = &typ
	}

	return ready, nil
}

// CheckPacket peeks the next packet kind without consuming it.
func (c *LocalConnection) CheckPacket(timeout time.Duration) (uint64, bool, error) {

	ready, err := c.Poll(timeout)
	if err != nil {
		return 0, false, err
	}

	if !ready {
		return 0, false, nil
	}

	return *c.nextPacket, true, nil
}

// ReceivePacket consumes and returns the next packet, blocking in
// bounded poll slices until one is ready.
func (c *LocalConnection) ReceivePacket() (protocol.Packet, error) {

	if c.state == nil {
		return protocol.Packet{}, ErrNoActiveQuery
	}

	for c.nextPacket == nil {
		ready, err := c.Poll(100 * time.Millisecond)
		if err != nil {
			return protocol.Packet{}, err
		}
		if !ready {
			// push-mode states report not-ready instantly, do not spin
			time.Sleep(time.Millisecond)
		}
	}

	typ := *c.nextPacket
	c.nextPacket = nil

	packet := c.buildPacket(typ)

	if c.opts.DebugPackets {
		spew.Dump(packet)
	}

	if typ == protocol.ServerException || typ == protocol.ServerEndOfStream {
		c.finishQuery()
	}

	return packet, nil
}

// ReceivePacketType consumes the next packet and returns only its kind.
func (c *LocalConnection) ReceivePacketType() (uint64, error) {

	packet, err := c.ReceivePacket()
	if err != nil {
		return 0, err
	}

	return packet.Type, nil
}

// pollImpl runs the packet emission policy against the current state:
// exception, logs, throttled progress and profile events, data, then the
// draining one-shots.
func (c *LocalConnection) pollImpl(timeout time.Duration) (uint64, bool) {

	st := c.state

	if st.exception != nil {
		return protocol.ServerException, true
	}

	if ready := c.drainLogs(st); ready {
		return protocol.ServerLog, true
	}

	if !st.drained {

		if st.cancelled.Load() {
			st.exec.cancel()
			st.pendingBlock = nil
			st.drained = true

			if st.pipe != nil {
				st.pipe.Log(0, protocol.LogInformation, "driver", "query was cancelled")
			}
			slog.Info("query cancelled", "query_id", st.queryID)

		} else {

			switch st.exec.kind {

			case execPull:
				if typ, ready := c.pollExecuting(st, timeout); ready {
					return typ, true
				}
				if !st.drained {
					// executor timeout, retryable
					return 0, false
				}

			case execPush, execAsyncPush:
				// waiting for the caller to feed or finish the insert
				return 0, false
			}
		}
	}

	// execution may have queued logs right up to its end, they go out
	// before any draining packet
	if ready := c.drainLogs(st); ready {
		return protocol.ServerLog, true
	}

	return c.pollDraining(st)
}

// pollExecuting interleaves throttled telemetry with block pulls.
func (c *LocalConnection) pollExecuting(st *queryState, timeout time.Duration) (uint64, bool) {

	if c.opts.SendProgress &&
		!st.progress.Peek().Empty() &&
		st.afterSendProgress.CompareAndRestart(c.opts.ProgressInterval) {
		return protocol.ServerProgress, true
	}

	if c.opts.SendProfileEvents &&
		st.afterSendProfileEvents.CompareAndRestart(c.opts.ProfileEventsInterval) {
		if c.collectProfileEvents(st) {
			return protocol.ServerProfileEvents, true
		}
	}

	if st.pendingBlock != nil {
		return protocol.ServerData, true
	}

	if timeout <= 0 {
		timeout = time.Millisecond
	}

	b, more, err := st.exec.pull.Pull(timeout)
	if err != nil {
		st.exception = protocol.NewException(protocol.CodeLogicalError, err)
		return protocol.ServerException, true
	}

	if b != nil {
		if b.Rows() == 0 {
			// header-only block, nothing to deliver
			return 0, false
		}
		st.pendingBlock = b
		st.profileInfo.Update(b.Rows(), b.ByteSize())
		return protocol.ServerData, true
	}

	if more {
		return 0, false
	}

	st.drained = true
	return 0, false
}

// pollDraining emits the remaining one-shot packets in fixed order, each
// gated by its sent flag.
func (c *LocalConnection) pollDraining(st *queryState) (uint64, bool) {

	if c.opts.SendProgress && (!st.progress.Peek().Empty() || !st.sentProgress) {
		return protocol.ServerProgress, true
	}

	if c.opts.SendProfileEvents && !st.sentProfileEvents {
		// final snapshot goes out exactly once even when nothing moved
		c.collectProfileEvents(st)
		return protocol.ServerProfileEvents, true
	}

	if st.exec.kind == execPull {

		if !st.sentTotals && st.pipe != nil && st.pipe.Totals() != nil {
			return protocol.ServerTotals, true
		}

		if !st.sentExtremes && st.exec.pull.Extremes() != nil {
			return protocol.ServerExtremes, true
		}

		if !st.sentProfileInfo && c.opts.SendProgress && st.pipe != nil && st.pipe.Pulling() {
			return protocol.ServerProfileInfo, true
		}
	}

	return protocol.ServerEndOfStream, true
}

// collectProfileEvents diffs current worker counters against the
// connection-lifetime baseline. Reports whether anything changed.
func (c *LocalConnection) collectProfileEvents(st *queryState) bool {

	if st.pipe == nil {
		return false
	}

	entries := profile.DiffSnapshots(c.lastSentSnapshots, st.pipe.Registry().Collect(), time.Now())
	if len(entries) == 0 {
		return false
	}

	st.pendingProfileEvents = append(st.pendingProfileEvents, entries...)
	return true
}

// drainLogs moves up to a batch of buffered log entries into the pending
// slot.
func (c *LocalConnection) drainLogs(st *queryState) bool {

	if st.logQueue == nil || len(st.pendingLogs) > 0 {
		return len(st.pendingLogs) > 0
	}

	for len(st.pendingLogs) < logBatchSize {
		select {
		case entry := <-st.logQueue:
			st.pendingLogs = append(st.pendingLogs, entry)
		default:
			return len(st.pendingLogs) > 0
		}
	}

	return true
}

// buildPacket materializes the chosen packet and flips the matching sent
// flags.
func (c *LocalConnection) buildPacket(typ uint64) protocol.Packet {

	st := c.state
	packet := protocol.Packet{Type: typ}

	switch typ {

	case protocol.ServerException:
		packet.Exception = st.exception

	case protocol.ServerLog:
		packet.Logs = st.pendingLogs
		st.pendingLogs = nil

	case protocol.ServerProgress:
		delta := st.progress.FetchAndReset()
		packet.Progress = &delta
		st.sentProgress = true

	case protocol.ServerProfileEvents:
		packet.ProfileEvents = st.pendingProfileEvents
		st.pendingProfileEvents = nil
		st.sentProfileEvents = true

	case protocol.ServerData:
		packet.Block = st.pendingBlock
		st.pendingBlock = nil

	case protocol.ServerTotals:
		packet.Block = st.pipe.Totals()
		st.sentTotals = true

	case protocol.ServerExtremes:
		packet.Block = st.exec.pull.Extremes()
		st.sentExtremes = true

	case protocol.ServerProfileInfo:
		info := st.profileInfo
		packet.ProfileInfo = &info
		st.sentProfileInfo = true
	}

	return packet
}

// finishQuery tears the state down exactly once: executors, external
// tables, the ambient scope token.
func (c *LocalConnection) finishQuery() {

	st := c.state
	if st == nil {
		return
	}

	st.finished = true

	if st.exec.kind == execPull && st.exception != nil {
		st.exec.pull.Cancel()
	}
	if st.exec.kind == execAsyncPush {
		st.exec.asyncPush.Cancel()
	}

	c.engine.DropExternalTables(st.queryID)
	st.scope.Release()

	slog.Debug("query finished", "query_id", st.queryID)

	c.state = nil
	c.nextPacket = nil
}
