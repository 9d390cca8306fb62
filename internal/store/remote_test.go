package store

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBindSQL(t *testing.T) {
	cases := []struct {
		sql    string
		params []any
		want   string
	}{
		{"SELECT * FROM files WHERE id = ?", []any{int64(7)}, "SELECT * FROM files WHERE id = 7"},
		{"INSERT INTO t (a) VALUES (?)", []any{"it's"}, "INSERT INTO t (a) VALUES ('it''s')"},
		{"UPDATE t SET a = ? WHERE b = ?", []any{true, nil}, "UPDATE t SET a = 1 WHERE b = NULL"},
		{"SELECT '?' , ?", []any{2.5}, "SELECT '?' , 2.5"},
	}
	for _, c := range cases {
		got, err := bindSQL(c.sql, c.params)
		if err != nil {
			t.Fatalf("bindSQL(%q) failed: %v", c.sql, err)
		}
		if got != c.want {
			t.Errorf("bindSQL(%q) = %q, want %q", c.sql, got, c.want)
		}
	}

	if _, err := bindSQL("SELECT ?", nil); err != nil {
		t.Errorf("no-params statement should pass through: %v", err)
	}
	if _, err := bindSQL("SELECT ?, ?", []any{1}); err == nil {
		t.Error("expected placeholder/parameter count mismatch error")
	}
}

func TestRemoteAdapterRoundTrip(t *testing.T) {
	var lastBody statementsRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/statements" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token-secret-token-secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&lastBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := statementsResponse{Results: []statementResult{{
			Columns:       []string{"id", "path"},
			Rows:          [][]any{{float64(1), "main.go"}, {float64(2), "store.go"}},
			LastInsertRow: 2,
			Changes:       1,
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	a := NewRemoteAdapter(server.URL, "secret-token-secret-token-secret")
	if err := a.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	rows, err := a.All("SELECT id, path FROM files WHERE project_id = ?", int64(3))
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Int("id") != 1 || rows[1].Str("path") != "store.go" {
		t.Errorf("unexpected rows: %v", rows)
	}
	if !strings.Contains(lastBody.Statements[0], "project_id = 3") {
		t.Errorf("parameters not bound client-side: %q", lastBody.Statements[0])
	}

	res, err := a.Run("INSERT INTO files (path) VALUES (?)", "x.go")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.LastInsertID != 2 || res.Changes != 1 {
		t.Errorf("unexpected run result: %+v", res)
	}

	if _, err := a.Raw(); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Raw should be unavailable remotely, got %v", err)
	}
}

func TestRemoteAdapterUnreachable(t *testing.T) {
	a := NewRemoteAdapter("http://127.0.0.1:1", "")
	err := a.Init()
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
