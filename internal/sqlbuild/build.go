// Package sqlbuild assembles parameterized SQL fragments. Every caller-
// controlled value is bound through a $n placeholder; identifiers are
// double-quoted. Nothing here executes SQL.
package sqlbuild

import (
	"fmt"
	"strings"
)

// QuoteIdentifier quotes a SQL identifier to prevent injection.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteAll quotes each identifier in the slice.
func QuoteAll(names []string) []string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	return quoted
}

// Placeholders returns n placeholders starting at index start:
// Placeholders(2, 3) -> ["$2", "$3", "$4"].
func Placeholders(start, n int) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fmt.Sprintf("$%d", start+i)
	}
	return out
}

// WhereBuilder accumulates AND-joined conditions with positional bindings.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

// NewWhereBuilder creates an empty builder. The first bound argument is $1.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// Bind appends a bound argument and returns its placeholder.
func (wb *WhereBuilder) Bind(value any) string {
	ph := fmt.Sprintf("$%d", wb.argIndex)
	wb.args = append(wb.args, value)
	wb.argIndex++
	return ph
}

// AddCond appends an already-rendered condition. The condition must only
// reference placeholders obtained from Bind.
func (wb *WhereBuilder) AddCond(cond string) {
	wb.conditions = append(wb.conditions, cond)
}

// AddEq appends an equality condition on a column with a bound value.
func (wb *WhereBuilder) AddEq(column string, value any) {
	wb.AddCond(QuoteIdentifier(column) + " = " + wb.Bind(value))
}

// Build returns the WHERE clause (with a leading " WHERE ") and its
// arguments. An empty builder yields "" and nil.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

// Conditions returns the bare AND-joined condition list without the WHERE
// keyword, for embedding in subqueries.
func (wb *WhereBuilder) Conditions() string {
	return strings.Join(wb.conditions, " AND ")
}

// Args returns the bound arguments collected so far.
func (wb *WhereBuilder) Args() []any {
	return wb.args
}

// NextArgIndex returns the index the next bound argument would get. Useful
// when appending LIMIT/OFFSET placeholders after Build.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}
