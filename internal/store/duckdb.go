package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/askdb/askdb/internal/errors"
	"github.com/askdb/askdb/internal/schema"
)

// DuckDBStore implements the Store interface using DuckDB. Reads are served
// from an in-memory snapshot held behind an atomic pointer; ReplaceAll writes
// through the database in one transaction and then swaps the snapshot, so
// concurrent readers always see a complete corpus.
type DuckDBStore struct {
	db       *sql.DB
	path     string
	snapshot atomic.Pointer[[]StoredDocument]
}

// NewDuckDBStore opens (creating if needed) the description store at dbPath
func NewDuckDBStore(dbPath string) (*DuckDBStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to create store directory")
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to open store database")
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to ping store database").
			WithSuggestion("Check that the store path is writable and not locked by another process")
	}

	return &DuckDBStore{db: db, path: dbPath}, nil
}

// newDuckDBStore wraps an already-open handle, used by tests
func newDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// Initialize creates the store schema using migrations
func (s *DuckDBStore) Initialize(ctx context.Context) error {
	return NewMigrationManager(s.db).MigrateUp(ctx)
}

// GetAll returns every stored document in insertion order. The first call
// after opening loads the snapshot from disk; subsequent calls are lock-free.
func (s *DuckDBStore) GetAll(ctx context.Context) ([]StoredDocument, error) {
	if snap := s.snapshot.Load(); snap != nil {
		return *snap, nil
	}

	docs, err := s.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	s.snapshot.Store(&docs)

	return docs, nil
}

// ReplaceAll swaps the whole corpus: delete plus insert in one transaction,
// then a snapshot swap on commit. RowID and Position are assigned here. The
// batch must share a single embedding model version; retrieval compares
// query and document vectors, which is only meaningful in one space.
func (s *DuckDBStore) ReplaceAll(ctx context.Context, docs []StoredDocument) error {
	for _, doc := range docs {
		if doc.ModelVersion != docs[0].ModelVersion {
			return errors.Newf(errors.ErrTypeEmbeddingSpace,
				"document %s was embedded with %s but the batch started with %s",
				doc.Doc.ID, doc.ModelVersion, docs[0].ModelVersion)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_documents"); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to clear stored documents")
	}

	insertSQL := `
	INSERT INTO schema_documents (
		id, doc_id, doc_type, table_name, column_name, ref_table, ref_column,
		doc_text, embedding, model_version, position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stored := make([]StoredDocument, len(docs))

	for i, doc := range docs {
		doc.RowID = uuid.New().String()
		doc.Position = i

		embeddingJSON, err := json.Marshal(doc.Embedding)
		if err != nil {
			return errors.Wrapf(err, errors.ErrTypeStore, "failed to encode embedding for %s", doc.Doc.ID)
		}

		_, err = tx.ExecContext(ctx, insertSQL,
			doc.RowID, doc.Doc.ID, string(doc.Doc.Type), doc.Doc.Table,
			doc.Doc.Column, doc.Doc.RefTable, doc.Doc.RefColumn,
			doc.Doc.Text, string(embeddingJSON), doc.ModelVersion, doc.Position)
		if err != nil {
			return errors.Wrapf(err, errors.ErrTypeStore, "failed to insert document %s", doc.Doc.ID)
		}

		stored[i] = doc
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to commit document replacement")
	}

	s.snapshot.Store(&stored)

	return nil
}

// Stats reports corpus counts and rebuild metadata straight from the database
func (s *DuckDBStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByType: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx,
		"SELECT doc_type, COUNT(*) FROM schema_documents GROUP BY doc_type ORDER BY doc_type")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to count stored documents")
	}

	defer rows.Close()

	for rows.Next() {
		var (
			docType string
			count   int
		)

		if err := rows.Scan(&docType, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan document counts")
		}

		stats.ByType[docType] = count
		stats.TotalDocuments += count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to iterate document counts")
	}

	if stats.TotalDocuments == 0 {
		return stats, nil
	}

	var (
		modelVersion string
		lastRebuilt  time.Time
	)

	err = s.db.QueryRowContext(ctx,
		"SELECT model_version, MAX(created_at) FROM schema_documents GROUP BY model_version LIMIT 1").
		Scan(&modelVersion, &lastRebuilt)
	if err != nil && err != sql.ErrNoRows {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to read store metadata")
	}

	stats.ModelVersion = modelVersion
	stats.LastRebuilt = lastRebuilt

	return stats, nil
}

// Close closes the underlying database handle
func (s *DuckDBStore) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// loadAll reads the full corpus from disk in position order
func (s *DuckDBStore) loadAll(ctx context.Context) ([]StoredDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, doc_id, doc_type, table_name, column_name, ref_table, ref_column,
		       doc_text, embedding, model_version, position
		FROM schema_documents
		ORDER BY position`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to load stored documents").
			WithSuggestion("Run 'askdb index' to build the description store")
	}

	defer rows.Close()

	var docs []StoredDocument

	for rows.Next() {
		var (
			doc           StoredDocument
			docType       string
			column        sql.NullString
			refTable      sql.NullString
			refColumn     sql.NullString
			embeddingJSON string
		)

		err := rows.Scan(&doc.RowID, &doc.Doc.ID, &docType, &doc.Doc.Table,
			&column, &refTable, &refColumn, &doc.Doc.Text,
			&embeddingJSON, &doc.ModelVersion, &doc.Position)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan stored document")
		}

		doc.Doc.Type = schema.DocType(docType)
		doc.Doc.Column = column.String
		doc.Doc.RefTable = refTable.String
		doc.Doc.RefColumn = refColumn.String

		if err := json.Unmarshal([]byte(embeddingJSON), &doc.Embedding); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeStore, "failed to decode embedding for %s", doc.Doc.ID)
		}

		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to iterate stored documents")
	}

	return docs, nil
}
