package engine

import (
	"errors"
	"testing"

	"github.com/dot5enko/local-query-driver/block"
)

func TestParseCreateTable(t *testing.T) {

	plan, err := parseQuery("CREATE TABLE metrics (id UInt64, name String, score Float64)")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindCreateTable {
		t.Errorf("Expected create kind but got %d", plan.kind)
	}
	if plan.table != "metrics" {
		t.Errorf("Expected metrics but got %s", plan.table)
	}
	if len(plan.createHeader.Columns) != 3 {
		t.Fatalf("Expected 3 columns but got %d", len(plan.createHeader.Columns))
	}
	if plan.createHeader.Columns[1].Type != block.StringFieldType {
		t.Errorf("Expected String but got %s", plan.createHeader.Columns[1].Type.String())
	}
}

func TestParseInsertValues(t *testing.T) {

	plan, err := parseQuery("INSERT INTO t VALUES (1, 'a,b'), (2, 'c')")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindInsertValues {
		t.Errorf("Expected insert kind but got %d", plan.kind)
	}
	if len(plan.insertRows) != 2 {
		t.Fatalf("Expected 2 rows but got %d", len(plan.insertRows))
	}
	if plan.insertRows[0][1] != "a,b" {
		t.Errorf("Expected 'a,b' but got %v", plan.insertRows[0][1])
	}
	if plan.insertRows[1][0] != uint64(2) {
		t.Errorf("Expected 2 but got %v", plan.insertRows[1][0])
	}
}

func TestParseInsertWithoutValues(t *testing.T) {

	plan, err := parseQuery("INSERT INTO t")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindInsertData {
		t.Errorf("Expected pending-data insert but got %d", plan.kind)
	}
}

func TestParseSelectClauses(t *testing.T) {

	plan, err := parseQuery("SELECT id, value FROM metrics WHERE value >= 3.5 LIMIT 10")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.src.table != "metrics" {
		t.Errorf("Expected metrics but got %s", plan.src.table)
	}
	if len(plan.columns) != 2 {
		t.Errorf("Expected 2 columns but got %d", len(plan.columns))
	}
	if plan.filter == nil {
		t.Fatalf("Expected a filter")
	}
	if plan.filter.op != CondGe || plan.filter.value != 3.5 {
		t.Errorf("Expected >= 3.5 but got %s %v", plan.filter.op.String(), plan.filter.value)
	}
	if plan.limit != 10 {
		t.Errorf("Expected limit 10 but got %d", plan.limit)
	}
}

func TestParseNumbersAggregate(t *testing.T) {

	plan, err := parseQuery("SELECT sum(number) FROM numbers(100) WITH TOTALS")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindAggregate {
		t.Errorf("Expected aggregate kind but got %d", plan.kind)
	}
	if !plan.src.isNumbers || plan.src.numbers != 100 {
		t.Errorf("Expected numbers(100) but got %+v", plan.src)
	}
	if plan.aggFunc != "sum" || plan.aggColumn != "number" {
		t.Errorf("Expected sum(number) but got %s(%s)", plan.aggFunc, plan.aggColumn)
	}
	if !plan.withTotals {
		t.Errorf("Expected withTotals")
	}
}

func TestParseSleep(t *testing.T) {

	plan, err := parseQuery("SELECT sleep(1.5)")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindSleep {
		t.Errorf("Expected sleep kind but got %d", plan.kind)
	}
	if plan.sleepSeconds != 1.5 {
		t.Errorf("Expected 1.5 but got %v", plan.sleepSeconds)
	}
}

func TestParseTrailingSemicolon(t *testing.T) {

	plan, err := parseQuery("DROP TABLE t;")
	if err != nil {
		t.Fatalf("parse : %s", err.Error())
	}

	if plan.kind != kindDropTable || plan.table != "t" {
		t.Errorf("Expected drop of t but got %+v", plan)
	}
}

func TestParseRejectsGarbage(t *testing.T) {

	for _, query := range []string{
		"FROBNICATE all the things",
		"CREATE TABLE t (id NotAType)",
		"SELECT * FROM metrics WHERE",
		"INSERT INTO t VALUES (1",
	} {
		if _, err := parseQuery(query); !errors.Is(err, ErrSyntax) {
			t.Errorf("Expected a syntax error for '%s' but got %v", query, err)
		}
	}
}
