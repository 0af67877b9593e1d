package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dspears/tabular"
	"github.com/dspears/tabular/internal/sqlbuild"
)

// reservedParams are query-string keys with structural meaning on the rows
// endpoint; everything else is treated as an equality filter.
var reservedParams = map[string]bool{
	"order":  true,
	"limit":  true,
	"offset": true,
}

// handleListTables returns the tables the API serves.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"tables": s.cfg.Tables.Served})
}

// handleQueryRows reads rows. Query params: order, limit, offset, plus any
// column=value pair as an equality filter.
func (s *Server) handleQueryRows(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	q := tabular.NewQuery()

	var filters []tabular.Filter
	for key, vals := range r.URL.Query() {
		if reservedParams[key] || len(vals) == 0 {
			continue
		}
		filters = append(filters, tabular.Equals(key, vals[0]))
	}
	if len(filters) > 0 {
		q = q.WhereFilters(filters...)
	}

	if order := r.URL.Query().Get("order"); order != "" {
		cols, err := t.DescribeColumns(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		clause, ok := orderClause(cols, order)
		if !ok {
			writeError(w, r, http.StatusBadRequest, errBadOrder)
			return
		}
		q = q.OrderBy(clause)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, r, http.StatusBadRequest, errBadLimit)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		q = q.Limit(offset, limit)
	}

	rows, err := t.Select(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"rows": rows, "count": len(rows)})
}

// orderClause renders a caller-supplied sort expression. Accepted forms
// are "column" and "column asc|desc"; the column must exist on the table
// and comes out quoted, so no request text reaches the statement verbatim.
func orderClause(cols map[string]tabular.ColumnMeta, raw string) (string, bool) {
	parts := strings.Fields(raw)
	if len(parts) == 0 || len(parts) > 2 {
		return "", false
	}
	if _, ok := cols[parts[0]]; !ok {
		return "", false
	}
	clause := sqlbuild.QuoteIdentifier(parts[0])
	if len(parts) == 2 {
		switch strings.ToUpper(parts[1]) {
		case "ASC":
			clause += " ASC"
		case "DESC":
			clause += " DESC"
		default:
			return "", false
		}
	}
	return clause, true
}

// handleInsertRow inserts one row.
func (s *Server) handleInsertRow(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	var req struct {
		Row           tabular.Row `json:"row"`
		ChangeRequest string      `json:"changeRequest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Row) == 0 {
		writeError(w, r, http.StatusBadRequest, errBadBody)
		return
	}

	cri := req.ChangeRequest
	if cri == "" {
		cri = uuid.New().String()
	}

	id, err := t.Insert(r.Context(), req.Row, tabular.WithChangeRequest(cri))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"id": id, "changeRequest": cri})
}

// handleUpdateCell updates a single column on the row identified by keys.
func (s *Server) handleUpdateCell(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	var req struct {
		Keys   tabular.Row `json:"keys"`
		Column string      `json:"column"`
		Value  any         `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 || req.Column == "" {
		writeError(w, r, http.StatusBadRequest, errBadBody)
		return
	}

	updated, err := t.Update(r.Context(), tabular.Row{req.Column: req.Value}, tabular.UpdateSpec{
		KeyColumns: req.Keys.Columns(),
		Columns:    []string{req.Column},
		KeyValues:  req.Keys,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"updated": updated})
}

// handleDeleteRow shadow-copies and deletes the row identified by keys.
func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	var req struct {
		Keys tabular.Row `json:"keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) == 0 {
		writeError(w, r, http.StatusBadRequest, errBadBody)
		return
	}

	deleted, err := t.Delete(r.Context(), req.Keys, req.Keys.Columns())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"deleted": deleted})
}

// handleReconcile applies a batch of before/after pairs.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	var req struct {
		Changes       []tabular.DiffInput `json:"changes"`
		KeyColumns    []string            `json:"keyColumns"`
		ColumnMask    []string            `json:"columnMask"`
		ChangeRequest string              `json:"changeRequest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Changes) == 0 {
		writeError(w, r, http.StatusBadRequest, errBadBody)
		return
	}

	cri := req.ChangeRequest
	if cri == "" {
		cri = uuid.New().String()
	}

	applied, err := t.ReconcileBatch(r.Context(), req.Changes, req.KeyColumns, tabular.ReconcileOptions{
		ColumnMask:    req.ColumnMask,
		ChangeRequest: cri,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"applied": applied, "changeRequest": cri})
}

// handleHistory reads the ledger for a table, optionally filtered by
// change request id.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	history := tabular.NewTable(s.db, t.HistoryTable())
	q := tabular.NewQuery()
	if cri := r.URL.Query().Get("change_request"); cri != "" {
		q = q.WhereFilters(tabular.Equals("change_request", cri))
	}
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}
	q = q.Limit(0, limit)

	rows, err := history.Select(r.Context(), q)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"entries": rows, "count": len(rows)})
}

// handleColumns returns catalog metadata for the table.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}

	cols, err := t.DescribeColumns(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"columns": cols})
}

// handleDistinct returns the distinct values of a column. ?counts=true
// returns per-value occurrence counts; ?exact=true disables the
// space-insensitive deduplication.
func (s *Server) handleDistinct(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, r, http.StatusNotFound, errUnknownTable)
		return
	}
	column := chi.URLParam(r, "column")

	if r.URL.Query().Get("counts") == "true" {
		counts, err := t.DistinctValueCounts(r.Context(), column)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, map[string]any{"values": counts})
		return
	}

	ignoreSpaces := r.URL.Query().Get("exact") != "true"
	values, err := t.DistinctValues(r.Context(), column, ignoreSpaces)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"values": values})
}
