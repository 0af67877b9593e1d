package tabular

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSelect_ScansRowsByColumnName(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"id", "name"},
			[]any{int64(1), "Ada"},
			[]any{int64(2), "Grace"},
		),
	}}
	table := NewTable(f, "contacts")

	rows, err := table.Select(context.Background(), NewQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []Row{
		{"id": int64(1), "name": "Ada"},
		{"id": int64(2), "name": "Grace"},
	}
	if diff := cmp.Diff(expected, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if len(f.calls) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(f.calls))
	}
	if f.calls[0].sql != `SELECT * FROM "contacts"` {
		t.Errorf("unexpected statement %q", f.calls[0].sql)
	}
}

func TestSelect_QueryError(t *testing.T) {
	dbErr := errors.New("connection refused")
	f := &fakeQuerier{results: []result{errResult(dbErr)}}
	table := NewTable(f, "contacts")

	_, err := table.Select(context.Background(), NewQuery())
	if !errors.Is(err, dbErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestFirst_AppliesLimitOne(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"id"}, []any{int64(1)}),
	}}
	table := NewTable(f, "contacts")

	row, err := table.First(context.Background(), NewQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["id"] != int64(1) {
		t.Errorf("expected first row, got %v", row)
	}

	expected := `SELECT * FROM "contacts" LIMIT $1 OFFSET $2`
	if f.calls[0].sql != expected {
		t.Errorf("expected %q, got %q", expected, f.calls[0].sql)
	}
	if diff := cmp.Diff([]any{1, 0}, f.calls[0].args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestFirst_EmptyResultIsNilNil(t *testing.T) {
	f := &fakeQuerier{results: []result{rowsResult([]string{"id"})}}
	table := NewTable(f, "contacts")

	row, err := table.First(context.Background(), NewQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil row for empty result, got %v", row)
	}
}

func TestFirst_KeepsExplicitLimit(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"id"}, []any{int64(1)}, []any{int64(2)}),
	}}
	table := NewTable(f, "contacts")

	if _, err := table.First(context.Background(), NewQuery().Limit(0, 2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]any{2, 0}, f.calls[0].args); diff != "" {
		t.Errorf("explicit limit was overridden (-want +got):\n%s", diff)
	}
}

func TestSelect_AttachesRelatedRows(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"id", "name"}, []any{int64(1), "Ada"}),
		rowsResult([]string{"id", "contact_id", "total"},
			[]any{int64(10), int64(1), "99.50"},
			[]any{int64(11), int64(1), "12.00"},
		),
	}}
	table := NewTable(f, "contacts", WithRelation(Relation{
		Table:  "order",
		JoinOn: map[string]string{"id": "contact_id"},
	}))

	rows, err := table.Select(context.Background(), NewQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 parent row, got %d", len(rows))
	}

	// Child rows attach under the pluralized table name.
	children, ok := rows[0]["orders"].([]Row)
	if !ok {
		t.Fatalf("expected child rows under \"orders\", got %T", rows[0]["orders"])
	}
	if len(children) != 2 {
		t.Errorf("expected 2 child rows, got %d", len(children))
	}

	if len(f.calls) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(f.calls))
	}
	childStmt := `SELECT * FROM "order" WHERE "contact_id" = $1`
	if f.calls[1].sql != childStmt {
		t.Errorf("expected %q, got %q", childStmt, f.calls[1].sql)
	}
	if diff := cmp.Diff([]any{int64(1)}, f.calls[1].args); diff != "" {
		t.Errorf("child args mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect_RelationColumnsAndAttachKey(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"id"}, []any{int64(1)}),
		rowsResult([]string{"total"}, []any{"99.50"}),
	}}
	table := NewTable(f, "contacts", WithRelation(Relation{
		Table:     "orders",
		JoinOn:    map[string]string{"id": "contact_id"},
		AttachKey: "recent_orders",
		Columns:   []string{"total"},
	}))

	rows, err := table.Select(context.Background(), NewQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := rows[0]["recent_orders"]; !ok {
		t.Errorf("expected children under custom attach key, row: %v", rows[0])
	}

	childStmt := `SELECT "total" FROM "orders" WHERE "contact_id" = $1`
	if f.calls[1].sql != childStmt {
		t.Errorf("expected %q, got %q", childStmt, f.calls[1].sql)
	}
}

func TestSelect_RelationMissingJoinColumn(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"name"}, []any{"Ada"}),
	}}
	table := NewTable(f, "contacts", WithRelation(Relation{
		Table:  "orders",
		JoinOn: map[string]string{"id": "contact_id"},
	}))

	_, err := table.Select(context.Background(), NewQuery())
	if !errors.Is(err, ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
}

// ============================================================================
// Distinct values
// ============================================================================

func TestDistinctValues_SpaceInsensitiveDedup(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"city"},
			[]any{"New York"},
			[]any{"NewYork"},
			[]any{"Oslo"},
		),
	}}
	table := NewTable(f, "contacts")

	values, err := table.DistinctValues(context.Background(), "city", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The first-seen spelling wins.
	if diff := cmp.Diff([]string{"New York", "Oslo"}, values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if !strings.HasPrefix(f.calls[0].sql, `SELECT DISTINCT "city" FROM "contacts"`) {
		t.Errorf("unexpected statement %q", f.calls[0].sql)
	}
}

func TestDistinctValues_ExactKeepsBothSpellings(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"city"}, []any{"New York"}, []any{"NewYork"}),
	}}
	table := NewTable(f, "contacts")

	values, err := table.DistinctValues(context.Background(), "city", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(values) != 2 {
		t.Errorf("expected both spellings, got %v", values)
	}
}

func TestDistinctValueCounts(t *testing.T) {
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"city", "count"},
			[]any{"Oslo", int64(3)},
			[]any{"Paris", int64(1)},
		),
	}}
	table := NewTable(f, "contacts")

	counts, err := table.DistinctValueCounts(context.Background(), "city")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []ValueCount{{Value: "Oslo", Count: 3}, {Value: "Paris", Count: 1}}
	if diff := cmp.Diff(expected, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}

	expectedStmt := `SELECT "city", COUNT(*) FROM "contacts" GROUP BY "city" ORDER BY "city"`
	if f.calls[0].sql != expectedStmt {
		t.Errorf("expected %q, got %q", expectedStmt, f.calls[0].sql)
	}
}

func TestDistinctValueCounts_NonInt64Aggregate(t *testing.T) {
	// Some drivers hand aggregates back as other numeric widths.
	f := &fakeQuerier{results: []result{
		rowsResult([]string{"city", "count"},
			[]any{"Oslo", int32(3)},
			[]any{"Paris", float64(2)},
		),
	}}
	table := NewTable(f, "contacts")

	counts, err := table.DistinctValueCounts(context.Background(), "city")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []ValueCount{{Value: "Oslo", Count: 3}, {Value: "Paris", Count: 2}}
	if diff := cmp.Diff(expected, counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
}
