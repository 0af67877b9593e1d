package tabular

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dspears/tabular/internal/sqlbuild"
)

// InsertOption adjusts a single Insert call.
type InsertOption func(*insertConfig)

type insertConfig struct {
	table         string
	changeRequest string
}

// Into redirects the insert to another table of the same shape.
func Into(table string) InsertOption {
	return func(c *insertConfig) { c.table = table }
}

// WithChangeRequest tags the resulting ledger row with a caller-supplied
// correlation id.
func WithChangeRequest(id string) InsertOption {
	return func(c *insertConfig) { c.changeRequest = id }
}

// Insert writes one row containing every field present in the map. When
// update logging is enabled the actor from ctx and the current time are
// stamped into updated_by/updated_on. Returns the generated key value when
// the table has a single key column the row did not supply, else 0. In
// dry-run mode the statement is logged and nothing executes.
//
// When history is enabled, one Insert ledger row is written after a
// successful insert.
func (t *Table) Insert(ctx context.Context, row Row, opts ...InsertOption) (int64, error) {
	cfg := insertConfig{table: t.name}
	for _, opt := range opts {
		opt(&cfg)
	}

	row = t.stampAudit(ctx, row)

	returnKey := ""
	if len(t.keyColumns) == 1 {
		if _, ok := row[t.keyColumns[0]]; !ok {
			returnKey = t.keyColumns[0]
		}
	}

	id, err := t.insertRow(ctx, cfg.table, row, returnKey)
	if err != nil {
		return 0, err
	}
	if returnKey != "" {
		row[returnKey] = id
	}

	if err := t.RecordChange(ctx, ChangeInsert, cfg.changeRequest, t.keyColumns, row, nil, nil); err != nil {
		return id, err
	}
	return id, nil
}

// insertRow builds and runs one parameterized INSERT. It never touches the
// ledger; Insert and the shadow-delete copy both go through it. When
// returnKey is non-empty the generated value of that column is returned.
func (t *Table) insertRow(ctx context.Context, table string, row Row, returnKey string) (int64, error) {
	cols := row.Columns()
	if len(cols) == 0 {
		return 0, fmt.Errorf("insert into %s: empty row", table)
	}

	args := make([]any, 0, len(cols))
	for _, col := range cols {
		args = append(args, row[col])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		sqlbuild.QuoteIdentifier(table),
		strings.Join(sqlbuild.QuoteAll(cols), ", "),
		strings.Join(sqlbuild.Placeholders(1, len(cols)), ", "),
	)
	if returnKey != "" {
		stmt += " RETURNING " + sqlbuild.QuoteIdentifier(returnKey)
	}

	logger := LoggerFromContext(ctx)
	if !t.execute {
		logger.Info("dry run, insert suppressed", "table", table, "sql", stmt)
		return 0, nil
	}
	logger.Debug("insert", "table", table, "sql", stmt)

	if returnKey == "" {
		if _, err := t.db.Exec(ctx, stmt, args...); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		return 0, nil
	}

	rows, err := t.db.Query(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", table, err)
		}
		return 0, fmt.Errorf("insert into %s: no generated key returned", table)
	}
	values, err := rows.Values()
	if err != nil {
		return 0, fmt.Errorf("read generated key: %w", err)
	}
	return toInt64(values[0]), nil
}

// UpdateSpec describes one Update call.
type UpdateSpec struct {
	// KeyColumns picks the WHERE columns. Default: the table's keys.
	KeyColumns []string

	// Columns restricts which row fields are written. Default: every field
	// of the row.
	Columns []string

	// KeyValues supplies key values that take precedence over the row.
	KeyValues Row

	// AllRows lifts the single-row restriction. By default the update is
	// limited to one matching row.
	AllRows bool
}

// Update builds and runs one parameterized UPDATE and returns the affected
// row count. Key values are resolved from spec.KeyValues first, then the
// row; a key present in neither fails with ErrMissingKey.
//
// Update writes no ledger entry. Audited updates go through
// ReconcileBatch, which ledgers per changed field after applying.
func (t *Table) Update(ctx context.Context, row Row, spec UpdateSpec) (int64, error) {
	keyCols := t.resolveKeyColumns(spec.KeyColumns)
	keys, err := resolveKeyValues(keyCols, spec.KeyValues, row)
	if err != nil {
		return 0, err
	}

	row = t.stampAudit(ctx, row)

	cols := spec.Columns
	if len(cols) == 0 {
		// Every row field, key columns included: with WHERE keys resolved
		// from spec.KeyValues, a row carrying a new key value renames it.
		cols = row.Columns()
	} else if t.logUpdates {
		cols = append(append([]string(nil), cols...), ColumnUpdatedBy, ColumnUpdatedOn)
	}

	wb := sqlbuild.NewWhereBuilder()
	var setParts []string
	for _, col := range cols {
		v, ok := row[col]
		if !ok {
			continue
		}
		setParts = append(setParts, sqlbuild.QuoteIdentifier(col)+" = "+wb.Bind(v))
	}
	if len(setParts) == 0 {
		return 0, fmt.Errorf("update %s: no columns to update", t.name)
	}

	var keyConds []string
	for _, col := range keyCols {
		keyConds = append(keyConds, sqlbuild.QuoteIdentifier(col)+" = "+wb.Bind(keys[col]))
	}
	where := strings.Join(keyConds, " AND ")

	table := sqlbuild.QuoteIdentifier(t.name)
	var stmt string
	if spec.AllRows {
		stmt = fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(setParts, ", "), where)
	} else {
		// Postgres has no UPDATE ... LIMIT; restrict through ctid.
		stmt = fmt.Sprintf("UPDATE %s SET %s WHERE ctid IN (SELECT ctid FROM %s WHERE %s LIMIT 1)",
			table, strings.Join(setParts, ", "), table, where)
	}

	logger := LoggerFromContext(ctx)
	if !t.execute {
		logger.Info("dry run, update suppressed", "table", t.name, "sql", stmt)
		return 0, nil
	}
	logger.Debug("update", "table", t.name, "sql", stmt)

	tag, err := t.db.Exec(ctx, stmt, wb.Args()...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", t.name, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes at most one row identified by the key columns. The
// persisted row is first copied into the shadow-delete table; if it cannot
// be re-read the call fails with ErrRowVanished, signalling a concurrent
// modification. After the physical delete one Delete ledger row is written
// using the shadow copy's key values.
//
// The copy, delete, and ledger steps run in program order with no
// atomicity across them.
func (t *Table) Delete(ctx context.Context, row Row, keyCols []string) (int64, error) {
	kc := t.resolveKeyColumns(keyCols)
	keys, err := resolveKeyValues(kc, nil, row)
	if err != nil {
		return 0, err
	}

	existing, err := t.readByKeys(ctx, keys, 1)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 0, fmt.Errorf("%w: %s %v", ErrRowVanished, t.name, keys)
	}

	if _, err := t.insertRow(ctx, t.deletedTable, existing[0], ""); err != nil {
		return 0, err
	}

	wb := sqlbuild.NewWhereBuilder()
	var keyConds []string
	for _, col := range kc {
		keyConds = append(keyConds, sqlbuild.QuoteIdentifier(col)+" = "+wb.Bind(keys[col]))
	}
	table := sqlbuild.QuoteIdentifier(t.name)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE ctid IN (SELECT ctid FROM %s WHERE %s LIMIT 1)",
		table, table, strings.Join(keyConds, " AND "))

	logger := LoggerFromContext(ctx)
	if !t.execute {
		logger.Info("dry run, delete suppressed", "table", t.name, "sql", stmt)
		return 0, nil
	}
	logger.Debug("delete", "table", t.name, "sql", stmt)

	tag, err := t.db.Exec(ctx, stmt, wb.Args()...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", t.name, err)
	}

	if err := t.RecordChange(ctx, ChangeDelete, "", kc, existing[0], nil, nil); err != nil {
		return tag.RowsAffected(), err
	}
	return tag.RowsAffected(), nil
}

// FindByKey reads the single row identified by the key columns. Zero
// matches return (nil, nil); more than one match fails with
// ErrMultipleRows, enforcing the caller's assumption that the key is
// unique.
func (t *Table) FindByKey(ctx context.Context, row Row, keyCols []string) (Row, error) {
	kc := t.resolveKeyColumns(keyCols)
	keys, err := resolveKeyValues(kc, nil, row)
	if err != nil {
		return nil, err
	}

	// Fetch two so a second match is observable.
	rows, err := t.readByKeys(ctx, keys, 2)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %s %v", ErrMultipleRows, t.name, keys)
	}
}

// readByKeys runs a plain keyed SELECT without relation loading.
func (t *Table) readByKeys(ctx context.Context, keys Row, limit int) ([]Row, error) {
	q := NewQuery().WhereMap(keys)
	if limit > 0 {
		q = q.Limit(0, limit)
	}
	stmt, args, err := q.buildSelect(t.name)
	if err != nil {
		return nil, err
	}
	rows, err := t.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	result, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.name, err)
	}
	return result, nil
}

// stampAudit clones the row and, when update logging is on, fills the
// audit columns from the operation context and clock.
func (t *Table) stampAudit(ctx context.Context, row Row) Row {
	out := row.Clone()
	if t.logUpdates {
		out[ColumnUpdatedBy] = ActorFromContext(ctx)
		out[ColumnUpdatedOn] = time.Now().UTC()
	}
	return out
}

func toInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint32:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}
