package tabular

import (
	"context"
	"fmt"
	"sort"
)

// DiffKind classifies the comparison between a candidate row and its
// persisted state.
type DiffKind int

const (
	// DiffInsert: no persisted row exists and insert-on-missing is enabled.
	DiffInsert DiffKind = iota + 1
	// DiffUpdate: a persisted row exists with at least one differing field.
	DiffUpdate
	// DiffNoChange: a persisted row exists and no field differs.
	DiffNoChange
	// DiffNotFound: no persisted row and insert-on-missing is disabled.
	DiffNotFound
)

func (k DiffKind) String() string {
	switch k {
	case DiffInsert:
		return "Insert"
	case DiffUpdate:
		return "Update"
	case DiffNoChange:
		return "NoChange"
	case DiffNotFound:
		return "NotFound"
	default:
		return fmt.Sprintf("DiffKind(%d)", int(k))
	}
}

// DiffResult is the ephemeral outcome of one comparison, consumed by the
// reconciliation apply step.
type DiffResult struct {
	Kind DiffKind

	// Key holds the resolved key values the comparison was made under.
	Key Row

	// Old is the persisted field map, nil when no row existed.
	Old Row

	// New is the reconciled map: the old fields overlaid with every changed
	// candidate value. For inserts it is the candidate itself.
	New Row

	// Changed lists the differing field names in sorted order. Empty for
	// anything but DiffUpdate.
	Changed []string
}

// Diff compares a candidate row against its persisted state under the
// given key columns. Key values resolve from keyOverrides first, then the
// candidate. Fields absent from the candidate are treated as unchanged.
func (t *Table) Diff(ctx context.Context, candidate Row, keyCols []string, keyOverrides Row, insertIfMissing bool) (DiffResult, error) {
	kc := t.resolveKeyColumns(keyCols)
	keys, err := resolveKeyValues(kc, keyOverrides, candidate)
	if err != nil {
		return DiffResult{}, err
	}

	persisted, err := t.readByKeys(ctx, keys, 1)
	if err != nil {
		return DiffResult{}, err
	}

	if len(persisted) == 0 {
		kind := DiffNotFound
		if insertIfMissing {
			kind = DiffInsert
		}
		return DiffResult{Kind: kind, Key: keys, New: candidate.Clone()}, nil
	}

	old := persisted[0]
	reconciled := old.Clone()
	var changed []string
	for field, oldVal := range old {
		newVal, ok := candidate[field]
		if !ok {
			continue
		}
		if !valuesEqual(oldVal, newVal) {
			changed = append(changed, field)
			reconciled[field] = newVal
		}
	}
	sort.Strings(changed)

	kind := DiffNoChange
	if len(changed) > 0 {
		kind = DiffUpdate
	}
	return DiffResult{Kind: kind, Key: keys, Old: old, New: reconciled, Changed: changed}, nil
}

// DiffInput is one before/after field-map pair representing a candidate
// edit to reconcile against persisted state.
type DiffInput struct {
	Old Row `json:"old"`
	New Row `json:"new"`
}

// ReconcileOptions adjusts a ReconcileBatch call.
type ReconcileOptions struct {
	// ColumnMask, when set, restricts the new side of every pair to the
	// named columns before comparison.
	ColumnMask []string

	// HistoryKey names the key columns to ledger under when they differ
	// from the update key. The row is re-read after a successful update to
	// resolve them.
	HistoryKey []string

	// ChangeRequest is the correlation id stamped on every ledger row the
	// batch produces.
	ChangeRequest string
}

// ReconcileBatch applies a sequence of before/after pairs. Per pair, the
// changed set is every masked new-side field whose trimmed value differs
// from the old side. Pairs with no changed fields are skipped. Otherwise
// the changed fields are updated using the old side's key values; a
// zero-affected update is disambiguated by a re-read: a missing row
// becomes an insert, a present row was a true no-op. Updates that touch a
// row ledger one Update entry per changed field.
//
// Returns the count of pairs that had at least one changed field, not the
// count of rows written. Pairs whose old side is missing a key value are
// skipped with a log entry; an error while applying aborts the batch,
// leaving earlier pairs durably applied. The disambiguating re-read
// assumes no concurrent writer touches the row between the failed update
// and the re-read; under real concurrency that is a known gap, consistent
// with this layer having no transaction boundary.
func (t *Table) ReconcileBatch(ctx context.Context, inputs []DiffInput, keyCols []string, opts ReconcileOptions) (int, error) {
	kc := t.resolveKeyColumns(keyCols)
	logger := LoggerFromContext(ctx)

	applied := 0
	for i, input := range inputs {
		newSide := input.New
		if len(opts.ColumnMask) > 0 {
			masked := make(Row, len(opts.ColumnMask))
			for _, col := range opts.ColumnMask {
				if v, ok := newSide[col]; ok {
					masked[col] = v
				}
			}
			newSide = masked
		}

		var changed []string
		for _, field := range newSide.Columns() {
			if !valuesEqualTrimmed(input.Old[field], newSide[field]) {
				changed = append(changed, field)
			}
		}
		if len(changed) == 0 {
			logger.Debug("reconcile: no changes", "table", t.name, "pair", i)
			continue
		}

		keys, err := resolveKeyValues(kc, nil, input.Old)
		if err != nil {
			logger.Warn("reconcile: pair missing key, skipped", "table", t.name, "pair", i, "error", err)
			continue
		}

		affected, err := t.Update(ctx, newSide, UpdateSpec{
			KeyColumns: kc,
			Columns:    changed,
			KeyValues:  keys,
		})
		if err != nil {
			return applied, err
		}

		if affected == 0 {
			// Ambiguous: absent row or identical row. One re-read decides.
			current, err := t.readByKeys(ctx, keys, 1)
			if err != nil {
				return applied, err
			}
			if len(current) == 0 {
				if _, err := t.Insert(ctx, input.New, WithChangeRequest(opts.ChangeRequest)); err != nil {
					return applied, err
				}
				logger.Info("reconcile: inserted missing row", "table", t.name, "pair", i)
			}
			// Present and identical: true no-op, nothing further.
			applied++
			continue
		}

		ledgerKeyCols := kc
		ledgerRow := mergeRows(input.Old, newSide, keys)
		if len(opts.HistoryKey) > 0 {
			current, err := t.readByKeys(ctx, keys, 1)
			if err != nil {
				return applied, err
			}
			if len(current) == 1 {
				ledgerKeyCols = opts.HistoryKey
				ledgerRow = mergeRows(current[0], ledgerRow, nil)
			}
		}
		if err := t.RecordChange(ctx, ChangeUpdate, opts.ChangeRequest, ledgerKeyCols, ledgerRow, input.Old, changed); err != nil {
			return applied, err
		}
		applied++
	}

	return applied, nil
}

// mergeRows overlays base with overlay and extra, in that order.
func mergeRows(base, overlay, extra Row) Row {
	out := base.Clone()
	for k, v := range overlay {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
