package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
)

var ErrNotPushing = errors.New("pipeline has no sink")

// PushingExecutor feeds a write-oriented pipeline from the driving
// goroutine, one block at a time.
type PushingExecutor struct {
	p        *Pipeline
	finished bool

	counters *profile.Counters
	threadId uint64
}

func NewPushingExecutor(p *Pipeline) (*PushingExecutor, error) {

	if p.sink == nil {
		return nil, ErrNotPushing
	}

	threadId := profile.AllocateThreadId()

	return &PushingExecutor{
		p:        p,
		threadId: threadId,
		counters: p.Registry().Register(threadId),
	}, nil
}

func (e *PushingExecutor) Push(b *block.Block) error {

	if e.finished {
		return ErrExecutorFinished
	}

	if err := e.p.ctx.Err(); err != nil {
		return err
	}

	if err := e.p.sink.Consume(b); err != nil {
		return fmt.Errorf("sink rejected block : %s", err.Error())
	}

	rows := b.Rows()
	bytes := b.ByteSize()

	e.counters.Increment(profile.InsertedRows, int64(rows))
	e.counters.Increment(profile.InsertedBytes, int64(bytes))

	e.p.ReportProgress(protocol.ProgressValues{
		WrittenRows:  uint64(rows),
		WrittenBytes: uint64(bytes),
	})

	return nil
}

func (e *PushingExecutor) Finish() error {

	if e.finished {
		return nil
	}

	e.finished = true
	e.p.Registry().Retire(e.threadId)

	return e.p.sink.Finish()
}

func (e *PushingExecutor) Cancel() {
	e.finished = true
	e.p.Registry().Retire(e.threadId)
	e.p.Cancel()
}

// AsyncPushingExecutor decouples the caller from the sink with a bounded
// channel and a single background consumer.
type AsyncPushingExecutor struct {
	p *Pipeline

	in   chan *block.Block
	done chan struct{}

	mu       sync.Mutex
	err      error
	finished bool
}

func NewAsyncPushingExecutor(p *Pipeline) (*AsyncPushingExecutor, error) {

	if p.sink == nil {
		return nil, ErrNotPushing
	}

	e := &AsyncPushingExecutor{
		p:    p,
		in:   make(chan *block.Block, 8),
		done: make(chan struct{}),
	}

	go e.run()

	return e, nil
}

func (e *AsyncPushingExecutor) run() {

	defer close(e.done)

	threadId := profile.AllocateThreadId()
	counters := e.p.Registry().Register(threadId)
	defer e.p.Registry().Retire(threadId)

	for {
		select {
		case b, ok := <-e.in:
			if !ok {
				return
			}

			if err := e.p.sink.Consume(b); err != nil {
				e.setErr(err)
				return
			}

			counters.Increment(profile.InsertedRows, int64(b.Rows()))
			counters.Increment(profile.InsertedBytes, int64(b.ByteSize()))

			e.p.ReportProgress(protocol.ProgressValues{
				WrittenRows:  uint64(b.Rows()),
				WrittenBytes: uint64(b.ByteSize()),
			})

		case <-e.p.ctx.Done():
			return
		}
	}
}

func (e *AsyncPushingExecutor) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *AsyncPushingExecutor) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *AsyncPushingExecutor) Push(b *block.Block) error {

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrExecutorFinished
	}
	e.mu.Unlock()

	select {
	case e.in <- b:
		return nil
	case <-e.done:
		if err := e.Err(); err != nil {
			return err
		}
		return ErrExecutorFinished
	case <-e.p.ctx.Done():
		return e.p.ctx.Err()
	}
}

func (e *AsyncPushingExecutor) Finish() error {

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		<-e.done
		return e.Err()
	}
	e.finished = true
	e.mu.Unlock()

	close(e.in)
	<-e.done

	if err := e.Err(); err != nil {
		return err
	}

	return e.p.sink.Finish()
}

func (e *AsyncPushingExecutor) Cancel() {

	e.mu.Lock()
	alreadyFinished := e.finished
	e.finished = true
	e.mu.Unlock()

	e.p.Cancel()
	<-e.done

	if !alreadyFinished {
		close(e.in)
	}
}
