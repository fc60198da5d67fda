package schema

import (
	"fmt"
	"strings"
)

// DocType identifies what part of the schema a document describes
type DocType string

const (
	DocTypeTable        DocType = "table"
	DocTypeColumn       DocType = "column"
	DocTypeRelationship DocType = "relationship"
)

const maxSampleLen = 50

// Document is a natural-language description of one schema element. The text
// is what gets embedded; the identity fields let the guard map a retrieved
// document back to concrete tables and columns.
type Document struct {
	ID        string  `json:"id"`
	Type      DocType `json:"doc_type"`
	Table     string  `json:"table"`
	Column    string  `json:"column,omitempty"`
	RefTable  string  `json:"ref_table,omitempty"`
	RefColumn string  `json:"ref_column,omitempty"`
	Text      string  `json:"text"`
}

// Column holds introspected metadata for a single column
type Column struct {
	Name       string
	Type       string
	NotNull    bool
	Default    string
	PrimaryKey bool
	Samples    []string
}

// ForeignKey holds one referencing relationship between two tables
type ForeignKey struct {
	FromColumn string
	RefTable   string
	RefColumn  string
}

// Table holds the introspected shape of one table
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Documents renders a table into its description documents: one table
// document, one document per column, one per foreign key.
func (t Table) Documents() []Document {
	docs := make([]Document, 0, 1+len(t.Columns)+len(t.ForeignKeys))

	docs = append(docs, t.tableDocument())

	for _, col := range t.Columns {
		docs = append(docs, t.columnDocument(col))
	}

	for _, fk := range t.ForeignKeys {
		docs = append(docs, t.relationshipDocument(fk))
	}

	return docs
}

func (t Table) tableDocument() Document {
	var pkCols []string

	columnLines := make([]string, 0, len(t.Columns))

	for _, col := range t.Columns {
		if col.PrimaryKey {
			pkCols = append(pkCols, col.Name)
		}

		var flags []string
		if col.PrimaryKey {
			flags = append(flags, "PRIMARY KEY")
		}

		if col.NotNull {
			flags = append(flags, "NOT NULL")
		}

		flagStr := ""
		if len(flags) > 0 {
			flagStr = fmt.Sprintf(" [%s]", strings.Join(flags, " "))
		}

		colType := col.Type
		if colType == "" {
			colType = "UNKNOWN"
		}

		sampleStr := ""
		if len(col.Samples) > 0 {
			sampleStr = fmt.Sprintf(" (ex: %s)", strings.Join(truncateAll(col.Samples), ", "))
		}

		columnLines = append(columnLines, fmt.Sprintf(" - %s (%s)%s%s", col.Name, colType, flagStr, sampleStr))
	}

	fkLines := make([]string, 0, len(t.ForeignKeys))
	for _, fk := range t.ForeignKeys {
		fkLines = append(fkLines, fmt.Sprintf(" - %s.%s references %s.%s",
			t.Name, fk.FromColumn, fk.RefTable, fk.RefColumn))
	}

	pkText := "None"
	if len(pkCols) > 0 {
		pkText = strings.Join(pkCols, ", ")
	}

	fkText := " - None"
	if len(fkLines) > 0 {
		fkText = strings.Join(fkLines, "\n")
	}

	text := fmt.Sprintf(
		"Table: %s\nPrimary key: %s\nColumns:\n%s\nForeign key(s):\n%s",
		t.Name, pkText, strings.Join(columnLines, "\n"), fkText,
	)

	return Document{
		ID:    fmt.Sprintf("table:%s", t.Name),
		Type:  DocTypeTable,
		Table: t.Name,
		Text:  text,
	}
}

func (t Table) columnDocument(col Column) Document {
	colType := col.Type
	if colType == "" {
		colType = "UNKNOWN"
	}

	nullable := "yes"
	if col.NotNull {
		nullable = "no"
	}

	primaryKey := "no"
	if col.PrimaryKey {
		primaryKey = "yes"
	}

	defaultValue := col.Default
	if defaultValue == "" {
		defaultValue = "None"
	}

	sampleText := "None"
	if len(col.Samples) > 0 {
		sampleText = strings.Join(col.Samples, ", ")
	}

	text := fmt.Sprintf(
		"Column: %s.%s\nData type: %s\nNullable: %s\nPrimary key: %s\nDefault: %s\nSample values: %s\n",
		t.Name, col.Name, colType, nullable, primaryKey, defaultValue, sampleText,
	)

	return Document{
		ID:     fmt.Sprintf("column:%s.%s", t.Name, col.Name),
		Type:   DocTypeColumn,
		Table:  t.Name,
		Column: col.Name,
		Text:   text,
	}
}

func (t Table) relationshipDocument(fk ForeignKey) Document {
	text := fmt.Sprintf(
		"Relationship: %s.%s references %s.%s\nJoin hint: JOIN %s ON %s.%s = %s.%s",
		t.Name, fk.FromColumn, fk.RefTable, fk.RefColumn,
		fk.RefTable, t.Name, fk.FromColumn, fk.RefTable, fk.RefColumn,
	)

	return Document{
		ID:        fmt.Sprintf("rel:%s.%s->%s.%s", t.Name, fk.FromColumn, fk.RefTable, fk.RefColumn),
		Type:      DocTypeRelationship,
		Table:     t.Name,
		Column:    fk.FromColumn,
		RefTable:  fk.RefTable,
		RefColumn: fk.RefColumn,
		Text:      text,
	}
}

func truncateAll(samples []string) []string {
	out := make([]string, len(samples))
	for i, s := range samples {
		if len(s) > maxSampleLen {
			s = s[:maxSampleLen]
		}

		out[i] = s
	}

	return out
}
