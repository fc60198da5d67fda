package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/askdb/askdb/internal/errors"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationManager handles schema migrations for the description store
type MigrationManager struct {
	db *sql.DB
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Initial schema document store",
			Up: `
				CREATE TABLE IF NOT EXISTS schema_documents (
					id VARCHAR PRIMARY KEY,
					doc_id VARCHAR NOT NULL,
					doc_type VARCHAR NOT NULL,
					table_name VARCHAR NOT NULL,
					column_name VARCHAR,
					ref_table VARCHAR,
					ref_column VARCHAR,
					doc_text TEXT NOT NULL,
					embedding VARCHAR NOT NULL,
					model_version VARCHAR NOT NULL,
					position INTEGER NOT NULL,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_schema_documents_doc_id ON schema_documents(doc_id);
				CREATE INDEX IF NOT EXISTS idx_schema_documents_type ON schema_documents(doc_type);
				CREATE INDEX IF NOT EXISTS idx_schema_documents_table ON schema_documents(table_name);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_schema_documents_table;
				DROP INDEX IF EXISTS idx_schema_documents_type;
				DROP INDEX IF EXISTS idx_schema_documents_doc_id;
				DROP TABLE IF EXISTS schema_documents;
			`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	_, err := m.db.ExecContext(ctx, createTableSQL)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to create migration table")
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to query applied migrations")
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeStore, "failed to scan migration version")
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// ApplyMigration applies a single migration inside a transaction
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStore, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return errors.Wrapf(err, errors.ErrTypeStore, "failed to execute migration %d", migration.Version)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		migration.Version, migration.Description)
	if err != nil {
		return errors.Wrapf(err, errors.ErrTypeStore, "failed to record migration %d", migration.Version)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations in version order
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	applied := make(map[int]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	migrations := m.GetMigrations()
	sort.Slice(migrations, func(a, b int) bool {
		return migrations[a].Version < migrations[b].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return err
		}
	}

	return nil
}
