package tabular

import (
	"context"
	"fmt"
	"strings"

	"github.com/dspears/tabular/internal/sqlbuild"
)

// LockMode selects the strength of a table lock.
type LockMode int

const (
	// LockRead blocks writers but allows concurrent readers.
	LockRead LockMode = iota + 1
	// LockWrite blocks all other access.
	LockWrite
)

func (m LockMode) sql() string {
	if m == LockWrite {
		return "ACCESS EXCLUSIVE"
	}
	return "SHARE"
}

// Lock acquires a table-level lock covering the primary table, the history
// table when history is enabled, and any extra tables named. Postgres
// scopes LOCK TABLE to a transaction, so the lock opens one and holds it
// until Unlock commits. Locking while already locked is a no-op.
//
// With a single-connection provider, statements issued through the same
// Table while the lock is held run inside the lock's transaction.
func (t *Table) Lock(ctx context.Context, mode LockMode, extraTables ...string) error {
	if t.lockTx != nil {
		return nil
	}

	beginner, ok := t.db.(TxBeginner)
	if !ok {
		return fmt.Errorf("lock %s: querier cannot begin transactions", t.name)
	}

	tables := []string{t.name}
	if t.history {
		tables = append(tables, t.historyTable)
	}
	tables = append(tables, extraTables...)

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("lock %s: begin: %w", t.name, err)
	}

	stmt := fmt.Sprintf("LOCK TABLE %s IN %s MODE",
		strings.Join(sqlbuild.QuoteAll(tables), ", "), mode.sql())
	if _, err := tx.Exec(ctx, stmt); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("lock %s: %w", t.name, err)
	}

	t.lockTx = tx
	return nil
}

// Unlock releases a held lock by committing its transaction. It is a
// no-op when no lock is held.
func (t *Table) Unlock(ctx context.Context) error {
	if t.lockTx == nil {
		return nil
	}
	tx := t.lockTx
	t.lockTx = nil
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("unlock %s: %w", t.name, err)
	}
	return nil
}

// Locked reports whether a table lock is currently held.
func (t *Table) Locked() bool {
	return t.lockTx != nil
}
