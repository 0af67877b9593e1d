package tabular

import (
	"fmt"
	"strings"

	"github.com/dspears/tabular/internal/sqlbuild"
)

// FilterKind enumerates the closed set of supported filter variants.
// Unknown kinds fail when the query is built, not at execution.
type FilterKind int

const (
	FilterEquals FilterKind = iota + 1
	FilterNotEquals
	FilterContains
	FilterIn
	FilterBetween
	FilterIsNull
)

// Filter is one predicate on a single column. Use the constructors; a
// zero Filter is invalid.
type Filter struct {
	Kind   FilterKind
	Column string
	Value  any   // Equals, NotEquals, Contains
	Values []any // In
	Low    any   // Between
	High   any   // Between
}

// Equals matches rows where column = value.
func Equals(column string, value any) Filter {
	return Filter{Kind: FilterEquals, Column: column, Value: value}
}

// NotEquals matches rows where column <> value.
func NotEquals(column string, value any) Filter {
	return Filter{Kind: FilterNotEquals, Column: column, Value: value}
}

// Contains matches rows where column contains value, case-insensitively.
func Contains(column string, value string) Filter {
	return Filter{Kind: FilterContains, Column: column, Value: value}
}

// In matches rows where column equals any of values.
func In(column string, values ...any) Filter {
	return Filter{Kind: FilterIn, Column: column, Values: values}
}

// Between matches rows where low <= column <= high.
func Between(column string, low, high any) Filter {
	return Filter{Kind: FilterBetween, Column: column, Low: low, High: high}
}

// IsNull matches rows where column is NULL.
func IsNull(column string) Filter {
	return Filter{Kind: FilterIsNull, Column: column}
}

func (f Filter) validate() error {
	if f.Column == "" {
		return fmt.Errorf("%w: empty column", ErrInvalidFilter)
	}
	switch f.Kind {
	case FilterEquals, FilterNotEquals, FilterContains, FilterIsNull:
		return nil
	case FilterIn:
		if len(f.Values) == 0 {
			return fmt.Errorf("%w: IN filter on %q has no values", ErrInvalidFilter, f.Column)
		}
		return nil
	case FilterBetween:
		if f.Low == nil || f.High == nil {
			return fmt.Errorf("%w: BETWEEN filter on %q needs both bounds", ErrInvalidFilter, f.Column)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d on %q", ErrInvalidFilter, f.Kind, f.Column)
	}
}

// render appends the filter's condition and bindings to wb.
func (f Filter) render(wb *sqlbuild.WhereBuilder) error {
	if err := f.validate(); err != nil {
		return err
	}
	col := sqlbuild.QuoteIdentifier(f.Column)
	switch f.Kind {
	case FilterEquals:
		wb.AddCond(col + " = " + wb.Bind(f.Value))
	case FilterNotEquals:
		wb.AddCond(col + " <> " + wb.Bind(f.Value))
	case FilterContains:
		wb.AddCond(col + "::text ILIKE " + wb.Bind("%"+escapeLike(valueString(f.Value))+"%"))
	case FilterIn:
		wb.AddCond(col + " = ANY(" + wb.Bind(f.Values) + ")")
	case FilterBetween:
		wb.AddCond(col + " BETWEEN " + wb.Bind(f.Low) + " AND " + wb.Bind(f.High))
	case FilterIsNull:
		wb.AddCond(col + " IS NULL")
	}
	return nil
}

// escapeLike escapes LIKE metacharacters in a user-supplied search term.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

type whereMode int

const (
	whereNone whereMode = iota
	wherePredicate
	whereEqualityMap
	whereFilterList
)

// Query is an immutable specification for one read. Build it with NewQuery
// and the chained setters, then hand it to Table.Select or Table.First.
// Each setter returns a new value, so a Query can never leak state between
// calls: two executions with the same value run the same statement, and a
// fresh NewQuery carries nothing over.
type Query struct {
	columns []string

	mode     whereMode
	pred     string
	predArgs []any
	eq       Row
	filters  []Filter

	orderBy  string
	limit    int
	offset   int
	hasLimit bool

	rawSQL  string
	rawArgs []any
}

// NewQuery returns the default specification: all columns, no predicate,
// no ordering, no limit.
func NewQuery() Query {
	return Query{}
}

// Columns sets the projection list. Default is all columns.
func (q Query) Columns(cols ...string) Query {
	q.columns = append([]string(nil), cols...)
	return q
}

// Where sets a literal predicate with positional bindings ($1-based).
// It overrides any previously set predicate, map, or filter list; the
// three forms share one slot.
func (q Query) Where(predicate string, args ...any) Query {
	q.mode = wherePredicate
	q.pred = predicate
	q.predArgs = append([]any(nil), args...)
	q.eq = nil
	q.filters = nil
	return q
}

// WhereMap sets an AND-joined equality predicate from a field map.
func (q Query) WhereMap(m Row) Query {
	q.mode = whereEqualityMap
	q.eq = m.Clone()
	q.pred = ""
	q.predArgs = nil
	q.filters = nil
	return q
}

// WhereFilters sets the predicate from a list of typed filters.
func (q Query) WhereFilters(filters ...Filter) Query {
	q.mode = whereFilterList
	q.filters = append([]Filter(nil), filters...)
	q.pred = ""
	q.predArgs = nil
	q.eq = nil
	return q
}

// OrderBy sets the ORDER BY clause, e.g. "\"name\" DESC". The clause is
// structural SQL, not a bind target; never pass untrusted input.
func (q Query) OrderBy(clause string) Query {
	q.orderBy = clause
	return q
}

// Limit sets LIMIT/OFFSET for the read.
func (q Query) Limit(offset, count int) Query {
	q.offset = offset
	q.limit = count
	q.hasLimit = true
	return q
}

// Raw overrides statement building entirely: the next execution runs this
// literal statement with the given bindings.
func (q Query) Raw(sql string, args ...any) Query {
	q.rawSQL = sql
	q.rawArgs = append([]any(nil), args...)
	return q
}

// buildSelect renders the query against a table. Returns the statement and
// its arguments.
func (q Query) buildSelect(table string) (string, []any, error) {
	if q.rawSQL != "" {
		return q.rawSQL, q.rawArgs, nil
	}

	projection := "*"
	if len(q.columns) > 0 {
		projection = strings.Join(sqlbuild.QuoteAll(q.columns), ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(projection)
	sb.WriteString(" FROM ")
	sb.WriteString(sqlbuild.QuoteIdentifier(table))

	var args []any
	nextArg := 1

	switch q.mode {
	case whereNone:
	case wherePredicate:
		sb.WriteString(" WHERE ")
		sb.WriteString(q.pred)
		args = append(args, q.predArgs...)
		nextArg = len(q.predArgs) + 1
	case whereEqualityMap:
		wb := sqlbuild.NewWhereBuilder()
		for _, col := range q.eq.Columns() {
			wb.AddEq(col, q.eq[col])
		}
		clause, wbArgs := wb.Build()
		sb.WriteString(clause)
		args = append(args, wbArgs...)
		nextArg = wb.NextArgIndex()
	case whereFilterList:
		wb := sqlbuild.NewWhereBuilder()
		for _, f := range q.filters {
			if err := f.render(wb); err != nil {
				return "", nil, err
			}
		}
		clause, wbArgs := wb.Build()
		sb.WriteString(clause)
		args = append(args, wbArgs...)
		nextArg = wb.NextArgIndex()
	}

	if q.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(q.orderBy)
	}

	if q.hasLimit {
		fmt.Fprintf(&sb, " LIMIT $%d OFFSET $%d", nextArg, nextArg+1)
		args = append(args, q.limit, q.offset)
	}

	return sb.String(), args, nil
}
