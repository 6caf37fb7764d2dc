package engine

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/memtrack"
)

// tableSink buffers incoming blocks and compresses them into parts on the
// shared worker pool. Parts become visible to readers only at Finish.
type tableSink struct {
	table   *Table
	tracker *memtrack.Tracker
	pool    *ants.Pool

	wg sync.WaitGroup

	mu    sync.Mutex
	parts []*part
	err   error
}

func newTableSink(table *Table, tracker *memtrack.Tracker, pool *ants.Pool) *tableSink {
	return &tableSink{
		table:   table,
		tracker: tracker,
		pool:    pool,
	}
}

func (s *tableSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *tableSink) Consume(b *block.Block) error {

	if b == nil || b.Rows() == 0 {
		return nil
	}

	header := s.table.Header()
	if len(b.Columns) != len(header.Columns) {
		return fmt.Errorf("block has %d columns, table '%s' has %d",
			len(b.Columns), s.table.Name, len(header.Columns))
	}
	for i := range b.Columns {
		if b.Columns[i].Type != header.Columns[i].Type {
			return fmt.Errorf("column %d type %s does not match table type %s",
				i, b.Columns[i].Type.String(), header.Columns[i].Type.String())
		}
	}

	s.wg.Add(1)

	job := func() {
		defer s.wg.Done()

		p, err := buildPart(b)
		if err != nil {
			s.setErr(err)
			return
		}

		s.mu.Lock()
		s.parts = append(s.parts, p)
		s.mu.Unlock()
	}

	if err := s.pool.Submit(job); err != nil {
		// pool saturated or released, compress inline
		job()
	}

	return nil
}

func (s *tableSink) Finish() error {

	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	for _, p := range s.parts {
		s.table.appendPart(p)
		// parts outlive the query, account them on the engine tracker
		s.tracker.AllocNoThrow(int64(p.compressedBytes))
	}
	s.parts = nil

	return nil
}
