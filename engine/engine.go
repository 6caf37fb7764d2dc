package engine

import (
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/dot5enko/local-query-driver/block"
	"github.com/dot5enko/local-query-driver/memtrack"
	"github.com/dot5enko/local-query-driver/pipeline"
	"github.com/dot5enko/local-query-driver/protocol"
	"github.com/dot5enko/local-query-driver/session"
)

type Config struct {
	PlanCacheSize   int
	CompressWorkers int
}

func DefaultConfig() Config {
	return Config{
		PlanCacheSize:   256,
		CompressWorkers: 4,
	}
}

// Engine is the pipeline collaborator: it resolves query text into a
// realized pipeline over an in-memory columnar catalog.
type Engine struct {
	config Config

	catalog *catalog
	tracker *memtrack.Tracker
	plans   *lru.Cache[string, *queryPlan]
	pool    *ants.Pool
}

func New(config Config) (*Engine, error) {

	if config.PlanCacheSize <= 0 {
		config.PlanCacheSize = 256
	}
	if config.CompressWorkers <= 0 {
		config.CompressWorkers = 4
	}

	plans, err := lru.New[string, *queryPlan](config.PlanCacheSize)
	if err != nil {
		return nil, fmt.Errorf("plan cache : %s", err.Error())
	}

	pool, err := ants.NewPool(config.CompressWorkers)
	if err != nil {
		return nil, fmt.Errorf("compress pool : %s", err.Error())
	}

	return &Engine{
		config:  config,
		catalog: newCatalog(),
		tracker: memtrack.NewTracker(),
		plans:   plans,
		pool:    pool,
	}, nil
}

func (e *Engine) Close() {
	e.pool.Release()
}

func (e *Engine) Tracker() *memtrack.Tracker {
	return e.tracker
}

func (e *Engine) plan(database, query string) (*queryPlan, error) {

	key := database + "\x00" + query

	if cached, ok := e.plans.Get(key); ok {
		return cached, nil
	}

	plan, err := parseQuery(query)
	if err != nil {
		return nil, err
	}

	e.plans.Add(key, plan)
	return plan, nil
}

// Build resolves query text into a pipeline executed under the given
// session. queryID scopes external table visibility.
func (e *Engine) Build(queryID, query string, sess *session.Session, stage protocol.Stage) (*pipeline.Pipeline, error) {

	plan, err := e.plan(sess.DefaultDatabase, query)
	if err != nil {
		return nil, err
	}

	settings := sess.Settings
	if settings.MaxBlockSize <= 0 {
		settings.MaxBlockSize = session.DefaultSettings().MaxBlockSize
	}
	if settings.MaxThreads <= 0 {
		settings.MaxThreads = 1
	}

	switch plan.kind {

	case kindCreateTable:
		if err := e.catalog.create(NewTable(sess.DefaultDatabase, plan.table, plan.createHeader)); err != nil {
			return nil, err
		}
		slog.Info("table created", "database", sess.DefaultDatabase, "table", plan.table)
		return pipeline.New(nil), nil

	case kindDropTable:
		if err := e.catalog.drop(sess.DefaultDatabase, plan.table); err != nil {
			return nil, err
		}
		return pipeline.New(nil), nil

	case kindInsertData:
		return e.buildInsertData(queryID, plan, sess)

	case kindInsertValues:
		return e.buildInsertValues(queryID, plan, sess)

	case kindSelectValues:
		return buildSelectValues(plan)

	case kindSleep:
		p := pipeline.New(nil)
		p.AddSource(&sleepSource{seconds: plan.sleepSeconds})
		return p, nil

	case kindScan, kindAggregate:
		return e.buildSelect(queryID, plan, sess, settings, stage)

	default:
		return nil, fmt.Errorf("%w : unhandled statement kind", ErrSyntax)
	}
}

func (e *Engine) buildInsertData(queryID string, plan *queryPlan, sess *session.Session) (*pipeline.Pipeline, error) {

	table, err := e.catalog.resolve(queryID, sess.DefaultDatabase, plan.table)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(table.Header().Header())
	p.SetSink(newTableSink(table, e.tracker, e.pool))

	return p, nil
}

func (e *Engine) buildInsertValues(queryID string, plan *queryPlan, sess *session.Session) (*pipeline.Pipeline, error) {

	table, err := e.catalog.resolve(queryID, sess.DefaultDatabase, plan.table)
	if err != nil {
		return nil, err
	}

	b, err := blockFromRows(table.Header(), plan.insertRows)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(table.Header().Header())
	p.AddSource(&valuesSource{name: "values", b: b})
	p.SetSink(newTableSink(table, e.tracker, e.pool))

	return p, nil
}

func buildSelectValues(plan *queryPlan) (*pipeline.Pipeline, error) {

	cols := make([]block.Column, len(plan.literals))

	for i, lit := range plan.literals {

		var typ block.FieldType
		var data block.ColumnData

		switch typed := lit.(type) {
		case uint64:
			typ = block.Uint64FieldType
			data = &block.NumericColumnData[uint64]{Values: []uint64{typed}}
		case int64:
			typ = block.Int64FieldType
			data = &block.NumericColumnData[int64]{Values: []int64{typed}}
		case float64:
			typ = block.Float64FieldType
			data = &block.NumericColumnData[float64]{Values: []float64{typed}}
		case string:
			typ = block.StringFieldType
			data = &block.StringColumnData{Values: []string{typed}}
		default:
			return nil, fmt.Errorf("%w : unsupported literal %v", ErrSyntax, lit)
		}

		cols[i] = block.Column{Name: plan.literalNames[i], Type: typ, Data: data}
	}

	b := block.New(cols...)

	p := pipeline.New(b.Header())
	p.AddSource(&valuesSource{name: "values", b: b})

	return p, nil
}

func aggregateHeader(fn, column string) *block.Block {

	if fn == "sum" {
		return block.NewOfTypes(
			[]string{fmt.Sprintf("sum(%s)", column)},
			[]block.FieldType{block.Float64FieldType},
		)
	}

	return block.NewOfTypes([]string{"count()"}, []block.FieldType{block.Uint64FieldType})
}

func (e *Engine) buildSelect(queryID string, plan *queryPlan, sess *session.Session, settings session.Settings, stage protocol.Stage) (*pipeline.Pipeline, error) {

	if plan.src.isNumbers {
		return buildNumbersSelect(plan, settings, stage)
	}

	table, err := e.catalog.resolve(queryID, sess.DefaultDatabase, plan.src.table)
	if err != nil {
		return nil, err
	}

	header, err := projectBlock(table.Header(), plan.columns)
	if err != nil {
		return nil, err
	}

	if plan.kind == kindAggregate {
		header = aggregateHeader(plan.aggFunc, plan.aggColumn)
	}

	p := pipeline.New(header.Header())

	// header-only stage, no sources get wired
	if stage == protocol.StageFetchColumns {
		return p, nil
	}

	parts := table.snapshotParts()

	if plan.kind == kindAggregate {
		child := &scanSource{
			table:  table,
			parts:  parts,
			filter: plan.filter,
			limit:  plan.limit,
			pipe:   p,
		}
		p.AddSource(&aggregateSource{
			child:      child,
			fn:         plan.aggFunc,
			column:     plan.aggColumn,
			withTotals: plan.withTotals,
			pipe:       p,
		})
		return p, nil
	}

	// a limit forces a single ordered scan, otherwise parts are spread
	// over the session's worker budget
	workers := settings.MaxThreads
	if plan.limit >= 0 || len(parts) < workers {
		workers = 1
	}
	if plan.limit >= 0 {
		p.AddSource(&scanSource{
			table:   table,
			parts:   parts,
			columns: plan.columns,
			filter:  plan.filter,
			limit:   plan.limit,
			pipe:    p,
		})
		return p, nil
	}

	for w := 0; w < workers; w++ {

		var own []*part
		for i := w; i < len(parts); i += workers {
			own = append(own, parts[i])
		}
		if len(own) == 0 {
			continue
		}

		p.AddSource(&scanSource{
			table:   table,
			parts:   own,
			columns: plan.columns,
			filter:  plan.filter,
			limit:   -1,
			pipe:    p,
		})
	}

	return p, nil
}

func buildNumbersSelect(plan *queryPlan, settings session.Settings, stage protocol.Stage) (*pipeline.Pipeline, error) {

	if len(plan.columns) == 1 && plan.columns[0] != "number" {
		return nil, fmt.Errorf("%w : numbers() has no column '%s'", ErrUnknownTable, plan.columns[0])
	}

	header := block.NewOfTypes([]string{"number"}, []block.FieldType{block.Uint64FieldType})
	if plan.kind == kindAggregate {
		header = aggregateHeader(plan.aggFunc, "number")
	}

	p := pipeline.New(header)

	if stage == protocol.StageFetchColumns {
		return p, nil
	}

	total := plan.src.numbers
	blockSize := uint64(settings.MaxBlockSize)

	if plan.kind == kindAggregate {
		child := &numbersSource{
			from:        0,
			to:          total,
			blockSize:   blockSize,
			reportTotal: total,
			filter:      plan.filter,
			limit:       -1,
			pipe:        p,
		}
		p.AddSource(&aggregateSource{
			child:      child,
			fn:         plan.aggFunc,
			column:     "number",
			withTotals: plan.withTotals,
			pipe:       p,
		})
		return p, nil
	}

	// a filter forces a single ordered generator, the limit then counts
	// surviving rows
	if plan.filter != nil {
		p.AddSource(&numbersSource{
			from:        0,
			to:          total,
			blockSize:   blockSize,
			reportTotal: total,
			filter:      plan.filter,
			limit:       plan.limit,
			pipe:        p,
		})
		return p, nil
	}

	if plan.limit >= 0 && uint64(plan.limit) < total {
		total = uint64(plan.limit)
	}

	workers := uint64(settings.MaxThreads)
	if workers == 0 || workers > total {
		workers = 1
	}

	chunk := (total + workers - 1) / workers

	for w := uint64(0); w < workers; w++ {

		from := w * chunk
		to := from + chunk
		if to > total {
			to = total
		}
		if from >= to {
			continue
		}

		reportTotal := uint64(0)
		if w == 0 {
			reportTotal = total
		}

		p.AddSource(&numbersSource{
			from:        from,
			to:          to,
			blockSize:   blockSize,
			reportTotal: reportTotal,
			limit:       -1,
			pipe:        p,
		})
	}

	return p, nil
}

// blockFromRows coerces parsed literals to the table's column types.
func blockFromRows(header *block.Block, rows [][]any) (*block.Block, error) {

	out := header.Header()

	for _, row := range rows {

		if len(row) != len(out.Columns) {
			return nil, fmt.Errorf("row has %d values, table has %d columns", len(row), len(out.Columns))
		}

		coerced := make([]any, len(row))
		for i, v := range row {
			cv, err := coerceValue(v, out.Columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("column '%s' : %s", out.Columns[i].Name, err.Error())
			}
			coerced[i] = cv
		}

		if err := out.AppendRow(coerced...); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func coerceValue(v any, typ block.FieldType) (any, error) {

	if typ == block.StringFieldType {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	}

	var f float64
	switch typed := v.(type) {
	case uint64:
		f = float64(typed)
	case int64:
		f = float64(typed)
	case float64:
		f = typed
	default:
		return nil, fmt.Errorf("expected numeric value, got %T", v)
	}

	switch typ {
	case block.Uint64FieldType:
		return uint64(f), nil
	case block.Uint32FieldType:
		return uint32(f), nil
	case block.Uint16FieldType:
		return uint16(f), nil
	case block.Uint8FieldType:
		return uint8(f), nil
	case block.Int64FieldType:
		return int64(f), nil
	case block.Int32FieldType:
		return int32(f), nil
	case block.Int16FieldType:
		return int16(f), nil
	case block.Int8FieldType:
		return int8(f), nil
	case block.Float64FieldType:
		return f, nil
	case block.Float32FieldType:
		return float32(f), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", typ.String())
	}
}

// RegisterExternalTable makes a named temporary table visible to one
// query only. Data is compressed into parts immediately.
func (e *Engine) RegisterExternalTable(queryID, name string, b *block.Block) error {

	table := NewTable("", name, b.Header())

	if b.Rows() > 0 {
		p, err := buildPart(b)
		if err != nil {
			return fmt.Errorf("external table '%s' : %s", name, err.Error())
		}
		table.appendPart(p)
	}

	e.catalog.registerExternal(queryID, table)
	return nil
}

// AppendExternalTable adds rows to an already registered external table,
// creating it on first use.
func (e *Engine) AppendExternalTable(queryID, name string, b *block.Block) error {

	existing, err := e.catalog.resolve(queryID, "", name)
	if err != nil {
		return e.RegisterExternalTable(queryID, name, b)
	}

	if b.Rows() == 0 {
		return nil
	}

	p, err := buildPart(b)
	if err != nil {
		return fmt.Errorf("external table '%s' : %s", name, err.Error())
	}

	existing.appendPart(p)
	return nil
}

// DropExternalTables releases every temporary table of a finished query.
func (e *Engine) DropExternalTables(queryID string) {
	e.catalog.dropExternals(queryID)
}
