package tabular

import (
	"context"
	"fmt"
	"strings"

	"github.com/dspears/tabular/internal/sqlbuild"
)

// ColumnDef describes one column for CREATE TABLE generation.
type ColumnDef struct {
	Name     string
	Type     string // SQL type, e.g. "text", "numeric(12,2)"
	Nullable bool
	Default  string // raw SQL default expression, empty for none
}

// CreateTableOptions adjusts GenerateCreateStatement.
type CreateTableOptions struct {
	IfNotExists bool
	Unlogged    bool
}

// GenerateCreateStatement builds a CREATE TABLE statement from column
// metadata. When key is empty or names only the default key column, an
// auto-generated integer identity primary key is emitted; otherwise the
// named columns form a composite primary key. The audit columns
// updated_by/updated_on are appended unconditionally.
//
// The statement is returned, not executed.
func (t *Table) GenerateCreateStatement(cols []ColumnDef, key []string, opts CreateTableOptions) string {
	identityKey := len(key) == 0 || (len(key) == 1 && key[0] == DefaultKeyColumn)

	var defs []string
	if identityKey {
		defs = append(defs, sqlbuild.QuoteIdentifier(DefaultKeyColumn)+" BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY")
	}

	for _, col := range cols {
		if identityKey && col.Name == DefaultKeyColumn {
			continue
		}
		def := sqlbuild.QuoteIdentifier(col.Name) + " " + col.Type
		if !col.Nullable {
			def += " NOT NULL"
		}
		if col.Default != "" {
			def += " DEFAULT " + col.Default
		}
		defs = append(defs, def)
	}

	defs = append(defs,
		sqlbuild.QuoteIdentifier(ColumnUpdatedBy)+" TEXT",
		sqlbuild.QuoteIdentifier(ColumnUpdatedOn)+" TIMESTAMPTZ",
	)

	if !identityKey {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(sqlbuild.QuoteAll(key), ", ")+")")
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if opts.Unlogged {
		sb.WriteString("UNLOGGED ")
	}
	sb.WriteString("TABLE ")
	if opts.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(sqlbuild.QuoteIdentifier(t.name))
	sb.WriteString(" (\n  ")
	sb.WriteString(strings.Join(defs, ",\n  "))
	sb.WriteString("\n)")
	return sb.String()
}

// ColumnMeta is one column's catalog metadata.
type ColumnMeta struct {
	Name          string
	Position      int
	Default       string
	Nullable      bool
	DataType      string
	CharMaxLength int
}

// DescribeColumns introspects the live schema and returns a mapping from
// column name to its metadata.
func (t *Table) DescribeColumns(ctx context.Context) (map[string]ColumnMeta, error) {
	const stmt = `SELECT column_name, ordinal_position, column_default, is_nullable, data_type, character_maximum_length
		FROM information_schema.columns
		WHERE table_name = $1
		ORDER BY ordinal_position`

	rows, err := t.db.Query(ctx, stmt, t.name)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", t.name, err)
	}
	defer rows.Close()

	result := make(map[string]ColumnMeta)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read column metadata: %w", err)
		}
		meta := ColumnMeta{
			Name:     valueString(values[0]),
			Position: int(toInt64(values[1])),
			Default:  valueString(values[2]),
			Nullable: strings.EqualFold(valueString(values[3]), "YES"),
			DataType: valueString(values[4]),
		}
		if values[5] != nil {
			meta.CharMaxLength = int(toInt64(values[5]))
		}
		result[meta.Name] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return result, nil
}
