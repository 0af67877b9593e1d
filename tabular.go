// Package tabular is a small data-access toolkit for building
// spreadsheet-style CRUD applications on PostgreSQL. A Table wraps one SQL
// table with parameterized statement building, an append-only change
// ledger, and a diff/reconcile protocol for applying bulk edits.
//
// The package deliberately stays below transactions and concurrency
// control: every operation is a sequence of independent, auto-committed
// statements on whatever Querier it was given. Callers own retry, timeout,
// and partial-failure policy.
package tabular

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jinzhu/inflection"
)

// Querier is the statement surface a Table needs. *pgx.Conn, *pgxpool.Pool,
// and pgx.Tx all satisfy it, as does the single-connection conn.Provider.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TxBeginner is implemented by Queriers that can open transactions. Table
// lock support requires it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DefaultKeyColumn is the key column assumed when none is configured.
const DefaultKeyColumn = "id"

// Audit columns stamped on writes when update logging is enabled, and
// appended by GenerateCreateStatement unconditionally.
const (
	ColumnUpdatedBy = "updated_by"
	ColumnUpdatedOn = "updated_on"
)

// Relation configures the single supported has-many eager load: for every
// row read from the parent table, matching child rows are fetched and
// attached under AttachKey.
type Relation struct {
	// Table is the child table name.
	Table string

	// JoinOn maps parent column names to child column names. Parent row
	// values are bound against the child columns.
	JoinOn map[string]string

	// AttachKey is the sub-key the child rows are attached under. Defaults
	// to the pluralized child table name.
	AttachKey string

	// Columns restricts the child projection. Default is all columns.
	Columns []string
}

func (r *Relation) attachKey() string {
	if r.AttachKey != "" {
		return r.AttachKey
	}
	return inflection.Plural(r.Table)
}

// Table is a handle on one logical SQL table plus its history and
// shadow-delete companions. Construct with NewTable; the zero value is not
// usable. A Table holds no per-query state: reads take an immutable Query
// value, so nothing persists between calls.
type Table struct {
	db Querier

	name         string
	historyTable string
	deletedTable string
	keyColumns   []string

	execute    bool // false = dry-run: build and log SQL, never mutate
	history    bool
	logUpdates bool

	relation *Relation

	lockTx pgx.Tx // non-nil while Lock is held
}

// Option configures a Table at construction.
type Option func(*Table)

// WithKeyColumns sets the ordered key column list. Default is ["id"].
func WithKeyColumns(cols ...string) Option {
	return func(t *Table) { t.keyColumns = append([]string(nil), cols...) }
}

// WithHistoryTable overrides the history table name. Default is the
// primary name with a "_history" suffix.
func WithHistoryTable(name string) Option {
	return func(t *Table) { t.historyTable = name }
}

// WithDeletedTable overrides the shadow-delete table name. Default is the
// primary name with a "_deleted" suffix.
func WithDeletedTable(name string) Option {
	return func(t *Table) { t.deletedTable = name }
}

// WithHistory enables or disables ledger writes. Default off.
func WithHistory(enabled bool) Option {
	return func(t *Table) { t.history = enabled }
}

// WithLogUpdates enables stamping updated_by/updated_on on writes, with
// the actor taken from the operation context. Default off.
func WithLogUpdates(enabled bool) Option {
	return func(t *Table) { t.logUpdates = enabled }
}

// WithDryRun makes every mutation build and log its statement without
// executing it. Reads still execute.
func WithDryRun() Option {
	return func(t *Table) { t.execute = false }
}

// WithRelation configures the has-many eager load applied on reads.
func WithRelation(rel Relation) Option {
	return func(t *Table) { t.relation = &rel }
}

// NewTable creates a handle for the named table on db.
func NewTable(db Querier, name string, opts ...Option) *Table {
	t := &Table{
		db:      db,
		name:    name,
		execute: true,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.historyTable == "" {
		t.historyTable = name + "_history"
	}
	if t.deletedTable == "" {
		t.deletedTable = name + "_deleted"
	}
	if len(t.keyColumns) == 0 {
		t.keyColumns = []string{DefaultKeyColumn}
	}
	return t
}

// Name returns the primary table name.
func (t *Table) Name() string { return t.name }

// HistoryTable returns the history table name.
func (t *Table) HistoryTable() string { return t.historyTable }

// KeyColumns returns the configured key columns.
func (t *Table) KeyColumns() []string {
	return append([]string(nil), t.keyColumns...)
}

// resolveKeyColumns picks the key columns for one operation: the explicit
// parameter if given, else the configured keys.
func (t *Table) resolveKeyColumns(explicit []string) []string {
	if len(explicit) > 0 {
		return explicit
	}
	return t.keyColumns
}

// resolveKeyValues builds the key-value map for an operation. Each key
// column is resolved from overrides first, then from the row; a column
// present in neither fails with ErrMissingKey.
func resolveKeyValues(keyCols []string, overrides, row Row) (Row, error) {
	keys := make(Row, len(keyCols))
	for _, col := range keyCols {
		if v, ok := overrides[col]; ok {
			keys[col] = v
			continue
		}
		if v, ok := row[col]; ok {
			keys[col] = v
			continue
		}
		return nil, missingKeyError(col)
	}
	return keys, nil
}
