package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/profile"
	"github.com/dot5enko/local-query-driver/protocol"
)

// Source produces blocks for one partition of a query. Read returns nil
// when the partition is exhausted and must honor ctx cancellation.
type Source interface {
	Name() string
	Read(ctx context.Context, counters *profile.Counters) (*block.Block, error)
}

// Sink consumes blocks of a write-oriented pipeline. Finish commits
// whatever was consumed.
type Sink interface {
	Consume(b *block.Block) error
	Finish() error
}

// Pipeline is the realized, executable form of a planned query. A pull
// pipeline carries sources, a push pipeline carries a sink, a completed
// pipeline (insert-select style) carries both and produces no output.
type Pipeline struct {
	header  *block.Block
	sources []Source
	sink    Sink

	ctx    context.Context
	cancel context.CancelFunc

	registry *profile.Registry

	mu       sync.Mutex
	totals   *block.Block
	progress func(protocol.ProgressValues)
	logQueue chan<- protocol.LogEntry
	queryID  string
}

func New(header *block.Block) *Pipeline {

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		header:   header,
		ctx:      ctx,
		cancel:   cancel,
		registry: profile.NewRegistry(),
	}
}

func (p *Pipeline) Header() *block.Block {
	return p.header
}

func (p *Pipeline) AddSource(s Source) {
	p.sources = append(p.sources, s)
}

func (p *Pipeline) SetSink(s Sink) {
	p.sink = s
}

func (p *Pipeline) Pulling() bool {
	return len(p.sources) > 0 && p.sink == nil
}

func (p *Pipeline) Pushing() bool {
	return p.sink != nil && len(p.sources) == 0
}

// Completed pipelines pump their own sources into their own sink and
// surface no data blocks.
func (p *Pipeline) Completed() bool {
	return p.sink != nil && len(p.sources) > 0
}

func (p *Pipeline) Registry() *profile.Registry {
	return p.registry
}

func (p *Pipeline) Context() context.Context {
	return p.ctx
}

// Cancel requests cooperative teardown of every source.
func (p *Pipeline) Cancel() {
	p.cancel()
}

func (p *Pipeline) SetTotals(b *block.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totals = b
}

func (p *Pipeline) Totals() *block.Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

func (p *Pipeline) SetProgressCallback(fn func(protocol.ProgressValues)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = fn
}

// ReportProgress is invoked by sources, possibly from several workers.
func (p *Pipeline) ReportProgress(v protocol.ProgressValues) {

	p.mu.Lock()
	fn := p.progress
	p.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

func (p *Pipeline) AttachLogQueue(queryID string, ch chan<- protocol.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logQueue = ch
	p.queryID = queryID
}

// Log routes a text-log record to the attached queue, dropping on
// overflow so producers never block.
func (p *Pipeline) Log(threadId uint64, priority protocol.LogPriority, source, text string) {

	p.mu.Lock()
	ch := p.logQueue
	queryID := p.queryID
	p.mu.Unlock()

	if ch == nil {
		return
	}

	entry := protocol.LogEntry{
		Time:     time.Now(),
		QueryID:  queryID,
		ThreadID: threadId,
		Priority: priority,
		Source:   source,
		Text:     text,
	}

	select {
	case ch <- entry:
	default:
	}
}
