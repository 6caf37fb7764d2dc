package engine

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dot5enko/local-query-driver/block"
)

var ErrSyntax = errors.New("syntax error")

type queryKind int

const (
	kindSelectValues queryKind = iota
	kindSleep
	kindScan
	kindAggregate
	kindInsertValues
	kindInsertData
	kindCreateTable
	kindDropTable
)

// sourceRef is the FROM part of a select: either a named table or the
// numbers(N) generator.
type sourceRef struct {
	table     string
	numbers   uint64
	isNumbers bool
}

// queryPlan is the parsed, immutable descriptor of a query. Plans are
// shared through the plan cache, a pipeline is built per execution.
type queryPlan struct {
	kind queryKind

	// literal projection
	literalNames []string
	literals     []any

	sleepSeconds float64

	src     sourceRef
	columns []string
	filter  *condition
	limit   int64

	aggFunc    string
	aggColumn  string
	withTotals bool

	table        string
	createHeader *block.Block
	insertRows   [][]any
}

var (
	createTableRe = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(\w+)\s*\((.+)\)$`)
	dropTableRe   = regexp.MustCompile(`(?is)^DROP\s+TABLE\s+(\w+)$`)
	insertRe      = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+(\w+)\s*(?:VALUES\s*(.+))?$`)
	selectRe      = regexp.MustCompile(`(?is)^SELECT\s+(.+?)(?:\s+FROM\s+(.+))?$`)
	numbersRe     = regexp.MustCompile(`(?i)^numbers\s*\(\s*(\d+)\s*\)$`)
	sleepRe       = regexp.MustCompile(`(?i)^sleep\s*\(\s*([0-9.]+)\s*\)$`)
	sumRe         = regexp.MustCompile(`(?i)^sum\s*\(\s*(\w+)\s*\)$`)
	whereRe       = regexp.MustCompile(`(?is)\s+WHERE\s+(\w+)\s*(=|!=|>=|<=|>|<)\s*([0-9.\-]+)`)
	limitRe       = regexp.MustCompile(`(?is)\s+LIMIT\s+(\d+)\s*$`)
	totalsRe      = regexp.MustCompile(`(?is)\s+WITH\s+TOTALS\s*$`)
)

func parseQuery(query string) (*queryPlan, error) {

	text := strings.TrimSpace(query)
	text = strings.TrimSuffix(text, ";")
	text = strings.TrimSpace(text)

	if m := createTableRe.FindStringSubmatch(text); m != nil {
		return parseCreateTable(m[1], m[2])
	}

	if m := dropTableRe.FindStringSubmatch(text); m != nil {
		return &queryPlan{kind: kindDropTable, table: m[1], limit: -1}, nil
	}

	if m := insertRe.FindStringSubmatch(text); m != nil {
		return parseInsert(m[1], m[2])
	}

	if m := selectRe.FindStringSubmatch(text); m != nil {
		return parseSelect(m[1], m[2])
	}

	return nil, fmt.Errorf("%w : unrecognized statement '%s'", ErrSyntax, firstWord(text))
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseCreateTable(name, columnsPart string) (*queryPlan, error) {

	var names []string
	var types []block.FieldType

	for _, def := range strings.Split(columnsPart, ",") {

		fields := strings.Fields(strings.TrimSpace(def))
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w : bad column definition '%s'", ErrSyntax, def)
		}

		typ, ok := block.ParseFieldType(fields[1])
		if !ok {
			return nil, fmt.Errorf("%w : unknown type '%s'", ErrSyntax, fields[1])
		}

		names = append(names, fields[0])
		types = append(types, typ)
	}

	return &queryPlan{
		kind:         kindCreateTable,
		table:        name,
		createHeader: block.NewOfTypes(names, types),
		limit:        -1,
	}, nil
}

func parseInsert(table, valuesPart string) (*queryPlan, error) {

	plan := &queryPlan{
		table: table,
		limit: -1,
	}

	valuesPart = strings.TrimSpace(valuesPart)
	if valuesPart == "" {
		// data arrives later through sendData
		plan.kind = kindInsertData
		return plan, nil
	}

	plan.kind = kindInsertValues

	rows, err := parseTuples(valuesPart)
	if err != nil {
		return nil, err
	}
	plan.insertRows = rows

	return plan, nil
}

// parseTuples splits "(a, b), (c, d)" into rows of literals.
func parseTuples(text string) ([][]any, error) {

	var rows [][]any

	rest := strings.TrimSpace(text)
	for rest != "" {

		if rest[0] != '(' {
			return nil, fmt.Errorf("%w : expected '(' in values near '%s'", ErrSyntax, rest)
		}

		closing := findClosing(rest)
		if closing < 0 {
			return nil, fmt.Errorf("%w : unbalanced parentheses in values", ErrSyntax)
		}

		var row []any
		for _, item := range splitTopLevel(rest[1:closing]) {
			lit, err := parseLiteral(strings.TrimSpace(item))
			if err != nil {
				return nil, err
			}
			row = append(row, lit)
		}
		rows = append(rows, row)

		rest = strings.TrimSpace(rest[closing+1:])
		rest = strings.TrimPrefix(rest, ",")
		rest = strings.TrimSpace(rest)
	}

	return rows, nil
}

func findClosing(s string) int {

	inString := false
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inString = !inString
		case ')':
			if !inString {
				return i
			}
		}
	}

	return -1
}

func splitTopLevel(s string) []string {

	var out []string
	inString := false
	start := 0

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inString = !inString
		case ',':
			if !inString {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}

	return append(out, s[start:])
}

func parseLiteral(item string) (any, error) {

	if len(item) >= 2 && item[0] == '\'' && item[len(item)-1] == '\'' {
		return item[1 : len(item)-1], nil
	}

	if strings.ContainsAny(item, ".eE") {
		f, err := strconv.ParseFloat(item, 64)
		if err != nil {
			return nil, fmt.Errorf("%w : bad literal '%s'", ErrSyntax, item)
		}
		return f, nil
	}

	if strings.HasPrefix(item, "-") {
		i, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w : bad literal '%s'", ErrSyntax, item)
		}
		return i, nil
	}

	u, err := strconv.ParseUint(item, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w : bad literal '%s'", ErrSyntax, item)
	}

	return u, nil
}

func parseSelect(listPart, fromPart string) (*queryPlan, error) {

	listPart = strings.TrimSpace(listPart)
	fromPart = strings.TrimSpace(fromPart)

	if fromPart == "" {
		return parseSelectNoFrom(listPart)
	}

	plan := &queryPlan{
		kind:  kindScan,
		limit: -1,
	}

	if m := totalsRe.FindStringIndex(fromPart); m != nil {
		plan.withTotals = true
		fromPart = strings.TrimSpace(fromPart[:m[0]])
	}

	if m := limitRe.FindStringSubmatch(fromPart); m != nil {
		n, _ := strconv.ParseInt(m[1], 10, 64)
		plan.limit = n
		fromPart = strings.TrimSpace(limitRe.ReplaceAllString(fromPart, ""))
	}

	if m := whereRe.FindStringSubmatch(fromPart); m != nil {

		op, err := parseCondOp(m[2])
		if err != nil {
			return nil, err
		}

		value, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%w : bad comparison value '%s'", ErrSyntax, m[3])
		}

		plan.filter = &condition{column: m[1], op: op, value: value}
		fromPart = strings.TrimSpace(whereRe.ReplaceAllString(fromPart, ""))
	}

	if m := numbersRe.FindStringSubmatch(fromPart); m != nil {
		n, _ := strconv.ParseUint(m[1], 10, 64)
		plan.src = sourceRef{isNumbers: true, numbers: n}
	} else {
		if !isIdent(fromPart) {
			return nil, fmt.Errorf("%w : bad FROM clause '%s'", ErrSyntax, fromPart)
		}
		plan.src = sourceRef{table: fromPart}
	}

	// projection: *, columns, or a single aggregate
	if listPart == "*" {
		return plan, nil
	}

	if strings.EqualFold(listPart, "count()") {
		plan.kind = kindAggregate
		plan.aggFunc = "count"
		return plan, nil
	}

	if m := sumRe.FindStringSubmatch(listPart); m != nil {
		plan.kind = kindAggregate
		plan.aggFunc = "sum"
		plan.aggColumn = m[1]
		return plan, nil
	}

	for _, col := range strings.Split(listPart, ",") {
		col = strings.TrimSpace(col)
		if !isIdent(col) {
			return nil, fmt.Errorf("%w : bad select column '%s'", ErrSyntax, col)
		}
		plan.columns = append(plan.columns, col)
	}

	return plan, nil
}

func parseSelectNoFrom(listPart string) (*queryPlan, error) {

	if m := sleepRe.FindStringSubmatch(listPart); m != nil {

		seconds, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w : bad sleep duration '%s'", ErrSyntax, m[1])
		}

		return &queryPlan{kind: kindSleep, sleepSeconds: seconds, limit: -1}, nil
	}

	plan := &queryPlan{kind: kindSelectValues, limit: -1}

	for _, item := range splitTopLevel(listPart) {

		item = strings.TrimSpace(item)

		lit, err := parseLiteral(item)
		if err != nil {
			return nil, err
		}

		plan.literalNames = append(plan.literalNames, item)
		plan.literals = append(plan.literals, lit)
	}

	return plan, nil
}

func parseCondOp(text string) (CondOp, error) {
	switch text {
	case "=":
		return CondEq, nil
	case "!=":
		return CondNe, nil
	case ">":
		return CondGt, nil
	case "<":
		return CondLt, nil
	case ">=":
		return CondGe, nil
	case "<=":
		return CondLe, nil
	default:
		return 0, fmt.Errorf("%w : unknown operator '%s'", ErrSyntax, text)
	}
}

var identRe = regexp.MustCompile(`^\w+$`)

func isIdent(s string) bool {
	return identRe.MatchString(s)
}
