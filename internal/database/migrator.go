package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

// Migration is one NNN_name.sql file. Version is the NNN prefix.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Migration
	Applied bool
}

// Migrator applies the postgres schema files. SQLite builds its schema in
// NewDB, so every migration reports as pending there and Run is a no-op.
type Migrator struct {
	db     *sql.DB
	dbType string
}

func NewMigrator(db *sql.DB, dbType string) *Migrator {
	return &Migrator{db: db, dbType: dbType}
}

func (m *Migrator) tracked() bool {
	return m.dbType == TypePostgres
}

// migrationVersion splits "001_init.sql" into "001". Files without a
// version prefix or a .sql suffix are not migrations.
func migrationVersion(filename string) (string, bool) {
	if !strings.HasSuffix(filename, ".sql") {
		return "", false
	}
	version, rest, found := strings.Cut(filename, "_")
	if !found || version == "" || rest == ".sql" {
		return "", false
	}
	return version, true
}

// LoadMigrations reads the migration files in dir, ordered by version.
func (m *Migrator) LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, ok := migrationVersion(entry.Name())
		if !ok {
			if strings.HasSuffix(entry.Name(), ".sql") {
				log.Printf("[MIGRATE] Ignoring %s: no version prefix", entry.Name())
			}
			continue
		}
		body, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: entry.Name(), SQL: string(body)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Migrator) appliedVersions() (map[string]bool, error) {
	applied := map[string]bool{}
	if !m.tracked() {
		return applied, nil
	}

	if _, err := m.db.Exec(migrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Status pairs every migration on disk with whether it has been applied.
func (m *Migrator) Status(dir string) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions()
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, len(migrations))
	for i, mig := range migrations {
		out[i] = MigrationStatus{Migration: mig, Applied: applied[mig.Version]}
	}
	return out, nil
}

// Pending is the subset of statuses not yet applied, in order.
func Pending(statuses []MigrationStatus) []Migration {
	var out []Migration
	for _, s := range statuses {
		if !s.Applied {
			out = append(out, s.Migration)
		}
	}
	return out
}

// apply runs the migration body and records its version atomically.
func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", mig.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("execute %s: %w", mig.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", mig.Version); err != nil {
		return fmt.Errorf("record %s: %w", mig.Name, err)
	}
	return tx.Commit()
}

// Run applies every pending migration in dir, stopping at the first failure.
func (m *Migrator) Run(dir string) error {
	if !m.tracked() {
		log.Printf("[MIGRATE] %s schema is built at startup, nothing to run", m.dbType)
		return nil
	}

	statuses, err := m.Status(dir)
	if err != nil {
		return err
	}

	pending := Pending(statuses)
	for _, mig := range pending {
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Printf("[MIGRATE] Applied %s", mig.Name)
	}
	log.Printf("[MIGRATE] %d of %d migrations applied this run", len(pending), len(statuses))
	return nil
}
