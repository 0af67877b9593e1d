package tabular

import (
	"context"
	"fmt"
)

// ChangeType classifies a ledgered mutation.
type ChangeType string

const (
	ChangeInsert ChangeType = "Insert"
	ChangeUpdate ChangeType = "Update"
	ChangeDelete ChangeType = "Delete"
)

// History table columns, the implicit contract with the ledger's target.
// The history table additionally carries the primary table's key columns
// and the audit columns.
const (
	ColumnChangeRequest = "change_request"
	ColumnChangeType    = "change_type"
	ColumnFieldName     = "field_name"
	ColumnOldValue      = "old_value"
	ColumnNewValue      = "new_value"
)

// RecordChange appends rows to the history table. Insert and Delete write
// exactly one row carrying the correlation id, change type, and the key
// values resolved from newRow. Update writes one row per entry in
// changedCols, each additionally carrying the field name with its old
// value (from oldRow) and new value (from newRow).
//
// RecordChange is a no-op when history is disabled on the table. Any other
// change type fails with ErrInvalidChangeType. Writes reuse the insert
// path against the history table and inherit its failure semantics.
func (t *Table) RecordChange(ctx context.Context, ct ChangeType, changeRequest string, keyCols []string, newRow, oldRow Row, changedCols []string) error {
	if !t.history {
		return nil
	}

	kc := t.resolveKeyColumns(keyCols)
	keys, err := resolveKeyValues(kc, nil, newRow)
	if err != nil {
		return fmt.Errorf("ledger %s: %w", t.historyTable, err)
	}

	base := Row{
		ColumnChangeRequest: changeRequest,
		ColumnChangeType:    string(ct),
	}
	for col, v := range keys {
		base[col] = v
	}

	switch ct {
	case ChangeInsert, ChangeDelete:
		ledgerRow := t.stampAudit(ctx, base)
		if _, err := t.insertRow(ctx, t.historyTable, ledgerRow, ""); err != nil {
			return err
		}
		return nil

	case ChangeUpdate:
		for _, col := range changedCols {
			ledgerRow := base.Clone()
			ledgerRow[ColumnFieldName] = col
			ledgerRow[ColumnOldValue] = oldRow.String(col)
			ledgerRow[ColumnNewValue] = newRow.String(col)
			ledgerRow = t.stampAudit(ctx, ledgerRow)
			if _, err := t.insertRow(ctx, t.historyTable, ledgerRow, ""); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrInvalidChangeType, ct)
	}
}
