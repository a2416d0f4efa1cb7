package storage

import (
	"database/sql"
	"fmt"
	"runtime"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// NewSQLiteStore opens the database with separate read and write pools.
func NewSQLiteStore(path string, maxReadConns int) (*SQLiteStore, error) {
	if maxReadConns <= 0 {
		maxReadConns = runtime.NumCPU()
	}

	// Write connection: single connection, WAL mode
	writeDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	// Read pool: multiple connections
	readDB, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON&mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)

	if err := runMigrations(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{readDB: readDB, writeDB: writeDB}, nil
}

func runMigrations(db *sql.DB) error {
	var hasSchemaTbl int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&hasSchemaTbl); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if hasSchemaTbl == 0 {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		return nil
	}

	var currentVersion int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration v%d begin: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("UPDATE schema_version SET version = ?", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d version update: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration v%d commit: %w", m.version, err)
		}
		currentVersion = m.version
	}

	if currentVersion < schemaVersion {
		return fmt.Errorf("database schema v%d is below v%d after migration", currentVersion, schemaVersion)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	s.readDB.Close()
	s.writeDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.writeDB.Close()
}

// --- Helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

type scanner interface {
	Scan(dest ...any) error
}
