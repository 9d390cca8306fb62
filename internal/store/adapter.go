// Package store implements muninn's persistence layer: a single adapter
// capability set with a local SQLite implementation and a remote HTTP
// implementation, plus schema management, migrations and integrity checks.
package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunResult reports the effect of a mutating statement.
type RunResult struct {
	LastInsertID int64
	Changes      int64
}

// Row is the dynamic escape hatch between the adapter wire format and the
// typed row records in rows.go. Typed records decode from it immediately;
// nothing above the store layer holds a Row.
type Row map[string]any

// Adapter is the store capability set. Both the local and the remote
// implementation satisfy it; Raw is the one operation the remote side cannot
// serve.
type Adapter interface {
	// Init prepares the backend: pragmas, schema, migrations, integrity.
	Init() error
	// Exec runs one or more statements without results.
	Exec(sqlText string) error
	// Run executes a single mutating statement with bound parameters.
	Run(sqlText string, params ...any) (RunResult, error)
	// Get returns the first row or nil when no row matched.
	Get(sqlText string, params ...any) (Row, error)
	// All returns every matching row.
	All(sqlText string, params ...any) ([]Row, error)
	// Close releases the backend.
	Close() error
	// Raw exposes the underlying *sql.DB in local mode. Remote adapters
	// return ErrUnavailable.
	Raw() (*sql.DB, error)
}

// Options configures adapter construction.
type Options struct {
	// Path is the database file for the local adapter. ":memory:" is allowed.
	Path string
	// PrimaryURL and APIToken configure the remote adapter.
	PrimaryURL string
	APIToken   string
	// MigrationLog is the append-only JSONL file recording schema transitions.
	// Empty disables the log (tests).
	MigrationLog string
}

// Open builds an adapter for the given mode ("local" or "http") and runs Init.
func Open(mode string, opts Options) (Adapter, error) {
	var a Adapter
	switch mode {
	case "local", "":
		a = NewLocalAdapter(opts.Path, opts.MigrationLog)
	case "http":
		a = NewRemoteAdapter(opts.PrimaryURL, opts.APIToken)
	default:
		return nil, fmt.Errorf("unknown store mode %q", mode)
	}
	if err := a.Init(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Row accessors
// ---------------------------------------------------------------------------

// Str returns a column as string, tolerating []byte and nil.
func (r Row) Str(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Int returns a column as int64, tolerating float and text representations.
func (r Row) Int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float returns a column as float64.
func (r Row) Float(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		f, _ := strconv.ParseFloat(string(v), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Bool returns a column as bool. SQLite stores booleans as 0/1.
func (r Row) Bool(col string) bool {
	return r.Int(col) != 0
}

// Time parses a column as an ISO-8601 / SQLite timestamp. Zero time on failure.
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	default:
		s := r.Str(col)
		if s == "" {
			return time.Time{}
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
		return time.Time{}
	}
}

// Null reports whether the column is NULL or absent.
func (r Row) Null(col string) bool {
	v, ok := r[col]
	return !ok || v == nil
}

// scanRows converts a *sql.Rows result set into []Row.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				// Copy: the driver reuses the buffer between rows.
				r[c] = string(b)
			} else {
				r[c] = vals[i]
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// nowUTC returns the canonical timestamp format stored in every table.
func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// joinList renders a comma list the way tool_calls.files_involved stores it.
func joinList(items []string) string {
	return strings.Join(items, ",")
}

// splitList parses a comma list, dropping empty segments.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
