package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dspears/tabular/internal/config"
)

// recordingDB satisfies tabular.Querier with scripted results, recording
// every statement issued through it.
type recordingDB struct {
	stmts   []string
	results []scripted
}

type scripted struct {
	fields []string
	rows   [][]any
	tag    pgconn.CommandTag
	err    error
}

func (db *recordingDB) pop() (scripted, error) {
	if len(db.results) == 0 {
		return scripted{}, fmt.Errorf("unscripted statement (call %d)", len(db.stmts))
	}
	s := db.results[0]
	db.results = db.results[1:]
	return s, nil
}

func (db *recordingDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.stmts = append(db.stmts, sql)
	s, err := db.pop()
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return s.tag, s.err
}

func (db *recordingDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	db.stmts = append(db.stmts, sql)
	s, err := db.pop()
	if err != nil {
		return nil, err
	}
	if s.err != nil {
		return nil, s.err
	}
	return &scriptedRows{fields: s.fields, rows: s.rows}, nil
}

type scriptedRows struct {
	fields []string
	rows   [][]any
	idx    int
}

func (r *scriptedRows) Close()     {}
func (r *scriptedRows) Err() error { return nil }

func (r *scriptedRows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.rows)))
}

func (r *scriptedRows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.fields))
	for i, name := range r.fields {
		fds[i] = pgconn.FieldDescription{Name: name}
	}
	return fds
}

func (r *scriptedRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *scriptedRows) Scan(dest ...any) error {
	return fmt.Errorf("scriptedRows: Scan not supported")
}

func (r *scriptedRows) Values() ([]any, error) { return r.rows[r.idx-1], nil }
func (r *scriptedRows) RawValues() [][]byte    { return nil }
func (r *scriptedRows) Conn() *pgx.Conn        { return nil }

func newTestServer(db *recordingDB) *Server {
	cfg := &config.Config{}
	cfg.Server.RequestTimeout = time.Minute
	cfg.Tables.Served = []string{"contacts"}
	cfg.History.DefaultActor = "tester"
	return NewServer(db, cfg)
}

// describeContacts scripts the catalog read behind order validation.
func describeContacts() scripted {
	return scripted{
		fields: []string{"column_name", "ordinal_position", "column_default", "is_nullable", "data_type", "character_maximum_length"},
		rows: [][]any{
			{"id", int64(1), nil, "NO", "bigint", nil},
			{"name", int64(2), nil, "YES", "text", nil},
		},
	}
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestQueryRows_RoundTrip(t *testing.T) {
	db := &recordingDB{results: []scripted{
		{fields: []string{"id", "name"}, rows: [][]any{{int64(1), "Ada"}}},
	}}
	s := newTestServer(db)

	w := get(t, s, "/api/tables/contacts/rows")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Rows  []map[string]any `json:"rows"`
		Count int              `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 1 || len(body.Rows) != 1 {
		t.Fatalf("expected 1 row, got %+v", body)
	}
	if body.Rows[0]["name"] != "Ada" {
		t.Errorf("expected Ada, got %v", body.Rows[0])
	}
}

func TestQueryRows_OrderUsesQuotedKnownColumn(t *testing.T) {
	db := &recordingDB{results: []scripted{
		describeContacts(),
		{fields: []string{"id", "name"}, rows: [][]any{{int64(1), "Ada"}}},
	}}
	s := newTestServer(db)

	w := get(t, s, "/api/tables/contacts/rows?order=name+desc")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	if len(db.stmts) != 2 {
		t.Fatalf("expected describe + select, got %d statements", len(db.stmts))
	}
	if !strings.Contains(db.stmts[1], `ORDER BY "name" DESC`) {
		t.Errorf("expected quoted order clause, got %q", db.stmts[1])
	}
}

func TestQueryRows_RejectsOrderInjection(t *testing.T) {
	db := &recordingDB{results: []scripted{describeContacts()}}
	s := newTestServer(db)

	q := url.Values{"order": {"name; DROP TABLE contacts --"}}
	w := get(t, s, "/api/tables/contacts/rows?"+q.Encode())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Nothing of the request text may reach the store.
	for _, stmt := range db.stmts {
		if strings.Contains(stmt, "DROP") {
			t.Errorf("request text reached the store: %q", stmt)
		}
	}
}

func TestQueryRows_RejectsUnknownOrderColumn(t *testing.T) {
	db := &recordingDB{results: []scripted{describeContacts()}}
	s := newTestServer(db)

	w := get(t, s, "/api/tables/contacts/rows?order=secret")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if len(db.stmts) != 1 {
		t.Errorf("expected only the describe statement, got %d", len(db.stmts))
	}
}

func TestQueryRows_RejectsBadOrderDirection(t *testing.T) {
	db := &recordingDB{results: []scripted{describeContacts()}}
	s := newTestServer(db)

	w := get(t, s, "/api/tables/contacts/rows?order=name+sideways")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestQueryRows_UnknownTable(t *testing.T) {
	db := &recordingDB{}
	s := newTestServer(db)

	w := get(t, s, "/api/tables/nope/rows")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if len(db.stmts) != 0 {
		t.Errorf("expected no statements, got %d", len(db.stmts))
	}
}
