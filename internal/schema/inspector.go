package schema

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/askdb/askdb/internal/errors"
)

// Inspector reads table, column, and foreign key metadata out of a live
// DuckDB database and turns it into description documents.
type Inspector struct {
	db           *sql.DB
	sampleValues int
}

// NewInspector creates an inspector over an open database handle
func NewInspector(db *sql.DB, sampleValues int) *Inspector {
	if sampleValues < 0 {
		sampleValues = 0
	}

	return &Inspector{db: db, sampleValues: sampleValues}
}

// GenerateDocuments introspects every user table and renders its documents.
// Output order is deterministic: tables alphabetically, then table document,
// column documents in column order, relationship documents.
func (i *Inspector) GenerateDocuments(ctx context.Context) ([]Document, error) {
	tables, err := i.listTables(ctx)
	if err != nil {
		return nil, err
	}

	var docs []Document

	for _, name := range tables {
		table, err := i.inspectTable(ctx, name)
		if err != nil {
			return nil, err
		}

		docs = append(docs, table.Documents()...)
	}

	return docs, nil
}

// listTables returns user table names in alphabetical order
func (i *Inspector) listTables(ctx context.Context) ([]string, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to list tables")
	}

	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to scan table name")
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to iterate tables")
	}

	return tables, nil
}

// inspectTable gathers columns, sample values, and foreign keys for one table
func (i *Inspector) inspectTable(ctx context.Context, name string) (Table, error) {
	columns, err := i.tableColumns(ctx, name)
	if err != nil {
		return Table{}, err
	}

	foreignKeys, err := i.foreignKeys(ctx, name)
	if err != nil {
		return Table{}, err
	}

	return Table{Name: name, Columns: columns, ForeignKeys: foreignKeys}, nil
}

func (i *Inspector) tableColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := i.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to describe table %s", table)
	}

	defer rows.Close()

	var columns []Column

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    bool
			defaultVal sql.NullString
			primaryKey bool
		)

		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &primaryKey); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to scan column of %s", table)
		}

		columns = append(columns, Column{
			Name:       name,
			Type:       colType,
			NotNull:    notNull,
			Default:    defaultVal.String,
			PrimaryKey: primaryKey,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to iterate columns of %s", table)
	}

	// Sample values are collected after the pragma cursor is closed so the
	// two queries never interleave on one connection.
	for idx := range columns {
		samples, err := i.columnSamples(ctx, table, columns[idx].Name)
		if err != nil {
			// Missing sample values only degrade description quality
			continue
		}

		columns[idx].Samples = samples
	}

	return columns, nil
}

// columnSamples fetches a few distinct non-NULL values to ground the
// description in real data.
func (i *Inspector) columnSamples(ctx context.Context, table, column string) ([]string, error) {
	if i.sampleValues == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		quoteIdent(column), quoteIdent(table), quoteIdent(column), i.sampleValues,
	)

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}

	defer rows.Close()

	var samples []string

	for rows.Next() {
		var value any
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}

		if value == nil {
			continue
		}

		switch v := value.(type) {
		case []byte:
			samples = append(samples, string(v))
		default:
			samples = append(samples, fmt.Sprintf("%v", v))
		}
	}

	return samples, rows.Err()
}

// fkConstraintRe matches DuckDB's rendered foreign key constraint text,
// e.g. FOREIGN KEY (artist_id) REFERENCES artists(id)
var fkConstraintRe = regexp.MustCompile(`FOREIGN KEY\s*\((\w+)\)\s*REFERENCES\s+(\w+)\s*\((\w+)\)`)

func (i *Inspector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT constraint_text
		FROM duckdb_constraints()
		WHERE table_name = ? AND constraint_type = 'FOREIGN KEY'`, table)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to read constraints of %s", table)
	}

	defer rows.Close()

	var keys []ForeignKey

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to scan constraint of %s", table)
		}

		matches := fkConstraintRe.FindStringSubmatch(text)
		if len(matches) != 4 {
			continue
		}

		keys = append(keys, ForeignKey{
			FromColumn: matches[1],
			RefTable:   matches[2],
			RefColumn:  matches[3],
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrTypeDatabase, "failed to iterate constraints of %s", table)
	}

	sort.Slice(keys, func(a, b int) bool {
		if keys[a].RefTable != keys[b].RefTable {
			return keys[a].RefTable < keys[b].RefTable
		}

		return keys[a].FromColumn < keys[b].FromColumn
	})

	return keys, nil
}

// quoteIdent double-quotes an identifier for interpolation into
// introspection queries that cannot be parameterized.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
