package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dot5enko/local-query-driver/block"
)

var (
	ErrUnknownTable      = errors.New("unknown table")
	ErrTableAlreadyThere = errors.New("table already exists")
)

// Table is an in-memory columnar table made of immutable compressed
// parts.
type Table struct {
	Database string
	Name     string

	header *block.Block

	mu    sync.RWMutex
	parts []*part
	rows  int
}

func NewTable(database, name string, header *block.Block) *Table {
	return &Table{
		Database: database,
		Name:     name,
		header:   header,
	}
}

func (t *Table) Header() *block.Block {
	return t.header
}

func (t *Table) appendPart(p *part) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.parts = append(t.parts, p)
	t.rows += p.rows
}

func (t *Table) Rows() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows
}

func (t *Table) snapshotParts() []*part {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*part(nil), t.parts...)
}

// catalog keeps permanent tables plus per-query external (temporary)
// tables. External tables shadow permanent ones during their query.
type catalog struct {
	mu     sync.RWMutex
	tables map[string]*Table

	externals map[string]map[string]*Table
}

func newCatalog() *catalog {
	return &catalog{
		tables:    make(map[string]*Table),
		externals: make(map[string]map[string]*Table),
	}
}

func tableKey(database, name string) string {
	return database + "." + name
}

func (c *catalog) create(t *Table) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	key := tableKey(t.Database, t.Name)
	if _, ok := c.tables[key]; ok {
		return fmt.Errorf("%w : '%s'", ErrTableAlreadyThere, key)
	}

	c.tables[key] = t
	return nil
}

func (c *catalog) drop(database, name string) error {

	c.mu.Lock()
	defer c.mu.Unlock()

	key := tableKey(database, name)
	if _, ok := c.tables[key]; !ok {
		return fmt.Errorf("%w : '%s'", ErrUnknownTable, key)
	}

	delete(c.tables, key)
	return nil
}

// resolve finds a table visible to the given query: externals first, then
// the permanent catalog.
func (c *catalog) resolve(queryID, database, name string) (*Table, error) {

	c.mu.RLock()
	defer c.mu.RUnlock()

	if perQuery, ok := c.externals[queryID]; ok {
		if t, ok := perQuery[name]; ok {
			return t, nil
		}
	}

	if t, ok := c.tables[tableKey(database, name)]; ok {
		return t, nil
	}

	return nil, fmt.Errorf("%w : '%s.%s'", ErrUnknownTable, database, name)
}

func (c *catalog) registerExternal(queryID string, t *Table) {

	c.mu.Lock()
	defer c.mu.Unlock()

	perQuery, ok := c.externals[queryID]
	if !ok {
		perQuery = make(map[string]*Table)
		c.externals[queryID] = perQuery
	}

	perQuery[t.Name] = t
}

func (c *catalog) dropExternals(queryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.externals, queryID)
}
