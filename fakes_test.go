package tabular

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// call records one statement issued against the fake store.
type call struct {
	sql  string
	args []any
}

// result scripts the response to one statement. Results are consumed in
// the order statements arrive.
type result struct {
	fields []string
	rows   [][]any
	tag    pgconn.CommandTag
	err    error
}

func rowsResult(fields []string, rows ...[]any) result {
	return result{fields: fields, rows: rows}
}

func tagResult(tag string) result {
	return result{tag: pgconn.NewCommandTag(tag)}
}

func errResult(err error) result {
	return result{err: err}
}

// fakeQuerier satisfies Querier with scripted results, recording every
// statement and its bindings for assertion. An unscripted statement fails
// the call, so tests also catch operations issuing more SQL than expected.
type fakeQuerier struct {
	calls   []call
	results []result
}

func (f *fakeQuerier) pop() (result, error) {
	if len(f.results) == 0 {
		return result{}, fmt.Errorf("unscripted statement (call %d)", len(f.calls))
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	r, err := f.pop()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return r.tag, r.err
}

func (f *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{sql: sql, args: args})
	r, err := f.pop()
	if err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return &fakeRows{fields: r.fields, rows: r.rows}, nil
}

// fakeRows implements pgx.Rows over scripted values.
type fakeRows struct {
	fields []string
	rows   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Close()     { r.closed = true }
func (r *fakeRows) Err() error { return nil }

func (r *fakeRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.rows)))
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.fields))
	for i, name := range r.fields {
		fds[i] = pgconn.FieldDescription{Name: name}
	}
	return fds
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return fmt.Errorf("fakeRows: Scan not supported")
}

func (r *fakeRows) Values() ([]any, error) {
	return r.rows[r.idx-1], nil
}

func (r *fakeRows) RawValues() [][]byte { return nil }
func (r *fakeRows) Conn() *pgx.Conn    { return nil }

// fakeTx implements pgx.Tx for table-lock tests. Only Exec, Commit, and
// Rollback carry behavior.
type fakeTx struct {
	stmts      []string
	execErr    error
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return tx, nil }
func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.committed = true
	return nil
}
func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	return nil
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.stmts = append(tx.stmts, sql)
	return pgconn.CommandTag{}, tx.execErr
}

func (tx *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, fmt.Errorf("fakeTx: Query not supported")
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (tx *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, fmt.Errorf("fakeTx: CopyFrom not supported")
}

func (tx *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (tx *fakeTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (tx *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, fmt.Errorf("fakeTx: Prepare not supported")
}

func (tx *fakeTx) Conn() *pgx.Conn { return nil }

// fakeLockDB adds transaction support to fakeQuerier.
type fakeLockDB struct {
	fakeQuerier
	tx       fakeTx
	beginErr error
}

func (f *fakeLockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &f.tx, nil
}
