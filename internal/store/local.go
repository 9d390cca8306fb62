package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ravnltd/muninn/internal/logging"
)

// LocalAdapter implements the Adapter capability set over an embedded SQLite
// database. All access serializes through a single connection guarded by a
// mutex; writers queue behind the write-ahead log.
type LocalAdapter struct {
	db           *sql.DB
	mu           sync.RWMutex
	path         string
	migrationLog string
	vectorExt    bool
}

// NewLocalAdapter builds an adapter for the database at path. Init must be
// called before use; Open does both.
func NewLocalAdapter(path, migrationLog string) *LocalAdapter {
	return &LocalAdapter{path: path, migrationLog: migrationLog}
}

// Init opens the database, applies reliability pragmas, refuses a corrupt
// file, installs the schema, runs migrations forward and repairs any
// mis-created FTS tables.
func (a *LocalAdapter) Init() error {
	log := logging.Get(logging.CategoryStore)
	log.Debug("opening local store at %s", a.path)

	if a.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", a.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the cooperative single-writer model honest and
	// makes :memory: databases behave.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	a.db = db

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed: %s: %v", pragma, err)
		}
	}

	if err := a.checkIntegrityOnOpen(); err != nil {
		db.Close()
		a.db = nil
		return err
	}

	if _, err := db.Exec(baseSchema); err != nil {
		db.Close()
		a.db = nil
		return fmt.Errorf("failed to install schema: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		a.db = nil
		return fmt.Errorf("failed to install indexes: %w", err)
	}
	// Repair before ensure: a mis-created FTS table must be dropped and
	// rebuilt, not papered over by CREATE IF NOT EXISTS.
	if err := a.repairFTS(); err != nil {
		log.Warn("FTS repair had issues: %v", err)
	}
	if err := a.ensureFTS(); err != nil {
		db.Close()
		a.db = nil
		return fmt.Errorf("failed to install FTS tables: %w", err)
	}

	if err := a.runMigrations(); err != nil {
		db.Close()
		a.db = nil
		return err
	}

	a.detectVecExtension()

	log.Info("local store ready at %s (schema v%d)", a.path, CurrentSchemaVersion)
	return nil
}

// checkIntegrityOnOpen runs PRAGMA integrity_check before touching the schema.
// A database that fails here is never written to.
func (a *LocalAdapter) checkIntegrityOnOpen() error {
	var result string
	if err := a.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity_check query failed: %v", ErrIntegrity, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrIntegrity, result)
	}
	return nil
}

// ensureFTS creates each FTS5 virtual table plus its mirror triggers.
func (a *LocalAdapter) ensureFTS() error {
	for _, spec := range ftsSpecs {
		if err := a.createFTS(spec); err != nil {
			return err
		}
	}
	return nil
}

func (a *LocalAdapter) createFTS(spec ftsSpec) error {
	cols := strings.Join(spec.Columns, ", ")
	ddl := fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s)", spec.Table, cols)
	if _, err := a.db.Exec(ddl); err != nil {
		return fmt.Errorf("create %s: %w", spec.Table, err)
	}
	return a.createFTSTriggers(spec)
}

func (a *LocalAdapter) createFTSTriggers(spec ftsSpec) error {
	cols := strings.Join(spec.Columns, ", ")
	newCols := "new." + strings.Join(spec.Columns, ", new.")

	stmts := []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ai AFTER INSERT ON %s BEGIN
			INSERT INTO %s(rowid, %s) VALUES (new.id, %s);
		END`, spec.Table, spec.Backing, spec.Table, cols, newCols),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_au AFTER UPDATE ON %s BEGIN
			DELETE FROM %s WHERE rowid = old.id;
			INSERT INTO %s(rowid, %s) VALUES (new.id, %s);
		END`, spec.Table, spec.Backing, spec.Table, spec.Table, cols, newCols),
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s_ad AFTER DELETE ON %s BEGIN
			DELETE FROM %s WHERE rowid = old.id;
		END`, spec.Table, spec.Backing, spec.Table),
	}
	for _, s := range stmts {
		if _, err := a.db.Exec(s); err != nil {
			return fmt.Errorf("trigger for %s: %w", spec.Table, err)
		}
	}
	return nil
}

// repairFTS rebuilds any FTS table whose column set no longer matches its
// spec. A virtual table cannot be altered in place, so repair is
// DROP -> CREATE -> backfill from the backing table -> recreate triggers.
func (a *LocalAdapter) repairFTS() error {
	log := logging.Get(logging.CategoryStore)
	for _, spec := range ftsSpecs {
		if !a.tableExists(spec.Table) {
			continue
		}
		have := a.tableColumns(spec.Table)
		if columnSetMatches(have, spec.Columns) {
			continue
		}
		log.Warn("FTS table %s has columns %v, want %v; rebuilding", spec.Table, have, spec.Columns)

		drops := []string{
			"DROP TRIGGER IF EXISTS " + spec.Table + "_ai",
			"DROP TRIGGER IF EXISTS " + spec.Table + "_au",
			"DROP TRIGGER IF EXISTS " + spec.Table + "_ad",
			"DROP TABLE IF EXISTS " + spec.Table,
		}
		for _, s := range drops {
			if _, err := a.db.Exec(s); err != nil {
				return fmt.Errorf("rebuild %s: %w", spec.Table, err)
			}
		}
		if err := a.createFTS(spec); err != nil {
			return err
		}

		cols := strings.Join(spec.Columns, ", ")
		backfill := fmt.Sprintf("INSERT INTO %s(rowid, %s) SELECT id, %s FROM %s", spec.Table, cols, cols, spec.Backing)
		if _, err := a.db.Exec(backfill); err != nil {
			return fmt.Errorf("backfill %s: %w", spec.Table, err)
		}
		log.Info("rebuilt FTS table %s", spec.Table)
	}
	return nil
}

// tableColumns lists a table's columns via PRAGMA table_info. Empty when the
// table does not exist.
func (a *LocalAdapter) tableColumns(table string) []string {
	rows, err := a.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil
		}
		cols = append(cols, name)
	}
	return cols
}

func columnSetMatches(have, want []string) bool {
	if len(have) != len(want) {
		return false
	}
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}

// tableExists checks sqlite_master for a table or virtual table.
func (a *LocalAdapter) tableExists(name string) bool {
	var n int
	err := a.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?", name).Scan(&n)
	return err == nil && n > 0
}

// ---------------------------------------------------------------------------
// Capability set
// ---------------------------------------------------------------------------

// Exec runs one or more statements without results.
func (a *LocalAdapter) Exec(sqlText string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.Exec(sqlText); err != nil {
		return fmt.Errorf("store exec: %w", err)
	}
	return nil
}

// Run executes a single mutating statement with bound parameters.
func (a *LocalAdapter) Run(sqlText string, params ...any) (RunResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.db.Exec(sqlText, params...)
	if err != nil {
		return RunResult{}, fmt.Errorf("store run: %w", err)
	}
	id, _ := res.LastInsertId()
	n, _ := res.RowsAffected()
	return RunResult{LastInsertID: id, Changes: n}, nil
}

// Get returns the first row or nil.
func (a *LocalAdapter) Get(sqlText string, params ...any) (Row, error) {
	rows, err := a.All(sqlText, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// All returns every matching row.
func (a *LocalAdapter) All(sqlText string, params ...any) ([]Row, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows, err := a.db.Query(sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("store query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// Close releases the database handle.
func (a *LocalAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// Raw exposes the underlying handle for engine-specific work (vacuum, vector
// index maintenance). Local mode only.
func (a *LocalAdapter) Raw() (*sql.DB, error) {
	if a.db == nil {
		return nil, fmt.Errorf("store is closed")
	}
	return a.db, nil
}

// HasVectorIndex reports whether the sqlite-vec extension was detected.
func (a *LocalAdapter) HasVectorIndex() bool {
	return a.vectorExt
}
