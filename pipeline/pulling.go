package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
)

var ErrExecutorFinished = errors.New("executor already finished")

// PullingExecutor drives a read-oriented (or completed) pipeline from a
// single caller goroutine. Internally every source partition is pumped by
// its own worker, Pull only selects on the shared output channel so the
// caller blocks for at most the given timeout.
type PullingExecutor struct {
	p *Pipeline

	out  chan *block.Block
	grp  *errgroup.Group
	done chan struct{}

	startOnce sync.Once
	werr      error

	collectExtremes bool
	extremes        *extremesCollector

	exhausted bool
}

func NewPullingExecutor(p *Pipeline, collectExtremes bool) *PullingExecutor {

	e := &PullingExecutor{
		p:               p,
		out:             make(chan *block.Block, 1),
		done:            make(chan struct{}),
		collectExtremes: collectExtremes,
	}

	if collectExtremes && p.Header() != nil {
		e.extremes = newExtremesCollector(p.Header())
	}

	return e
}

func (e *PullingExecutor) start() {

	e.startOnce.Do(func() {

		grp, gctx := errgroup.WithContext(e.p.Context())
		e.grp = grp

		for _, src := range e.p.sources {
			src := src
			grp.Go(func() error {
				return e.pumpSource(gctx, src)
			})
		}

		go func() {
			e.werr = grp.Wait()
			close(e.done)
		}()
	})
}

func (e *PullingExecutor) pumpSource(ctx context.Context, src Source) error {

	threadId := profile.AllocateThreadId()
	counters := e.p.Registry().Register(threadId)
	defer e.p.Registry().Retire(threadId)

	for {
		b, err := src.Read(ctx, counters)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			e.p.Log(threadId, protocol.LogError, src.Name(), err.Error())
			return err
		}

		if b == nil {
			return nil
		}

		counters.Increment(profile.BlocksProduced, 1)

		if e.p.sink != nil {
			// completed pipeline, blocks never leave the executor
			if err := e.p.sink.Consume(b); err != nil {
				return err
			}
			continue
		}

		select {
		case e.out <- b:
		case <-ctx.Done():
			return nil
		}
	}
}

// Pull waits up to timeout for the next block. It returns (nil, true,
// nil) on timeout, meaning retryable, (block, true, nil) on data, and
// (nil, false, err) once the pipeline is exhausted or failed. A zero
// timeout blocks until something happens.
func (e *PullingExecutor) Pull(timeout time.Duration) (*block.Block, bool, error) {

	if e.exhausted {
		return nil, false, e.werr
	}

	e.start()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timeoutCh = t.C
	}

	select {
	case b := <-e.out:
		if e.extremes != nil {
			e.extremes.update(b)
		}
		return b, true, nil

	case <-e.done:
		// workers are gone, drain what they managed to buffer
		select {
		case b := <-e.out:
			if e.extremes != nil {
				e.extremes.update(b)
			}
			return b, true, nil
		default:
		}

		e.exhausted = true

		if e.p.sink != nil && e.werr == nil {
			e.werr = e.p.sink.Finish()
		}

		return nil, false, e.werr

	case <-timeoutCh:
		return nil, true, nil
	}
}

// Cancel asks the workers to stop and waits for them to retire.
func (e *PullingExecutor) Cancel() {

	e.p.Cancel()
	e.start()

	// drain so pumping workers blocked on the output channel can observe
	// cancellation
	for {
		select {
		case <-e.out:
		case <-e.done:
			e.exhausted = true
			return
		}
	}
}

// Extremes returns the collected min/max block, nil when disabled or no
// rows were seen.
func (e *PullingExecutor) Extremes() *block.Block {

	if e.extremes == nil {
		return nil
	}

	return e.extremes.block()
}
