package tabular

import (
	"fmt"
	"sort"
	"strings"
)

// Row is a field map: column name to scalar value. It is used uniformly for
// input rows, returned rows, and ledger records. Values read back from the
// database keep the driver's native Go types; values written are passed
// through as bound parameters.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Columns returns the row's column names in sorted order. Statement builders
// iterate rows through this so generated SQL is deterministic.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// String returns the row value under col rendered as a string. NULL renders
// as the empty string.
func (r Row) String(col string) string {
	return valueString(r[col])
}

// valueString renders a scalar the way it is compared and ledgered: nil is
// empty, byte slices decode as text, everything else goes through fmt.
func valueString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// valuesEqual reports whether two scalars render to the same string.
func valuesEqual(a, b any) bool {
	return valueString(a) == valueString(b)
}

// valuesEqualTrimmed is valuesEqual with surrounding whitespace ignored.
// Reconciliation uses this so spreadsheet edits that only touch padding do
// not count as changes.
func valuesEqualTrimmed(a, b any) bool {
	return strings.TrimSpace(valueString(a)) == strings.TrimSpace(valueString(b))
}
