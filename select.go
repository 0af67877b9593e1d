package tabular

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/dspears/tabular/internal/sqlbuild"
)

// Select runs the query and returns the matching rows in statement order.
// If a relation is configured, each returned row additionally carries the
// matching child rows attached under the relation's sub-key.
func (t *Table) Select(ctx context.Context, q Query) ([]Row, error) {
	stmt, args, err := q.buildSelect(t.name)
	if err != nil {
		return nil, err
	}

	LoggerFromContext(ctx).Debug("select", "table", t.name, "sql", stmt)

	rows, err := t.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.name, err)
	}

	if t.relation != nil {
		for _, row := range result {
			if err := t.attachRelated(ctx, row); err != nil {
				return nil, err
			}
		}
	}

	return result, nil
}

// First runs the query and returns the first matching row, or (nil, nil)
// when nothing matches. A LIMIT 1 is applied when the query has neither a
// limit nor a raw override.
func (t *Table) First(ctx context.Context, q Query) (Row, error) {
	if q.rawSQL == "" && !q.hasLimit {
		q = q.Limit(0, 1)
	}
	rows, err := t.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// attachRelated fetches the configured child rows for one parent row.
func (t *Table) attachRelated(ctx context.Context, parent Row) error {
	rel := t.relation

	childKeys := make(Row, len(rel.JoinOn))
	for parentCol, childCol := range rel.JoinOn {
		v, ok := parent[parentCol]
		if !ok {
			return missingKeyError(parentCol)
		}
		childKeys[childCol] = v
	}

	q := NewQuery().WhereMap(childKeys)
	if len(rel.Columns) > 0 {
		q = q.Columns(rel.Columns...)
	}
	stmt, args, err := q.buildSelect(rel.Table)
	if err != nil {
		return err
	}

	rows, err := t.db.Query(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("query related %s: %w", rel.Table, err)
	}
	children, err := scanRows(rows)
	if err != nil {
		return fmt.Errorf("scan related %s: %w", rel.Table, err)
	}

	parent[rel.attachKey()] = children
	return nil
}

// ValueCount pairs a distinct column value with its occurrence count.
type ValueCount struct {
	Value string
	Count int64
}

// DistinctValues returns the distinct values of a column in sorted order.
// When ignoreSpaces is set, values identical after stripping internal
// spaces are deduplicated, keeping the first-seen spelling.
func (t *Table) DistinctValues(ctx context.Context, column string, ignoreSpaces bool) ([]string, error) {
	col := sqlbuild.QuoteIdentifier(column)
	stmt := fmt.Sprintf("SELECT DISTINCT %s FROM %s ORDER BY %s",
		col, sqlbuild.QuoteIdentifier(t.name), col)

	rows, err := t.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("distinct %s.%s: %w", t.name, column, err)
	}
	defer rows.Close()

	var values []string
	seen := make(map[string]bool)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read distinct value: %w", err)
		}
		v := valueString(vals[0])
		if ignoreSpaces {
			stripped := strings.ReplaceAll(v, " ", "")
			if seen[stripped] {
				continue
			}
			seen[stripped] = true
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return values, nil
}

// DistinctValueCounts returns each distinct value of a column with its
// occurrence count, in sorted value order. No space-insensitive
// deduplication is applied; counts are per exact value.
func (t *Table) DistinctValueCounts(ctx context.Context, column string) ([]ValueCount, error) {
	col := sqlbuild.QuoteIdentifier(column)
	stmt := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s ORDER BY %s",
		col, sqlbuild.QuoteIdentifier(t.name), col, col)

	rows, err := t.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("distinct counts %s.%s: %w", t.name, column, err)
	}
	defer rows.Close()

	var counts []ValueCount
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read distinct count: %w", err)
		}
		counts = append(counts, ValueCount{Value: valueString(vals[0]), Count: toInt64(vals[1])})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}

// scanRows drains a result set into field maps keyed by column name.
func scanRows(rows pgx.Rows) ([]Row, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	result := make([]Row, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
