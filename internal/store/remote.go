package store

import (
	"bytes"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ravnltd/muninn/internal/logging"
)

// RemoteAdapter implements the Adapter capability set against a shared primary
// over HTTP. Each call becomes a POST of {"statements": ["<sql>", ...]} to the
// primary's statements endpoint; parameters are bound client-side because the
// wire format carries plain SQL text.
type RemoteAdapter struct {
	baseURL string
	token   string
	client  *http.Client
}

// statementsRequest is the wire request body.
type statementsRequest struct {
	Statements []string `json:"statements"`
}

// statementResult is one result set in the wire response.
type statementResult struct {
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	LastInsertRow int64    `json:"last_insert_rowid"`
	Changes       int64    `json:"changes"`
}

// statementsResponse is the wire response body.
type statementsResponse struct {
	Results []statementResult `json:"results"`
	Error   string            `json:"error,omitempty"`
}

// NewRemoteAdapter builds an adapter for the primary at baseURL. The token is
// sent as a bearer credential when non-empty.
func NewRemoteAdapter(baseURL, token string) *RemoteAdapter {
	return &RemoteAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Init verifies the primary is reachable. Schema management happens on the
// primary; the client only needs connectivity.
func (a *RemoteAdapter) Init() error {
	_, err := a.post([]string{"SELECT 1"})
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryRemote).Info("remote primary reachable at %s", a.baseURL)
	return nil
}

// Exec runs statements without results.
func (a *RemoteAdapter) Exec(sqlText string) error {
	_, err := a.post([]string{sqlText})
	return err
}

// Run executes a mutating statement with bound parameters.
func (a *RemoteAdapter) Run(sqlText string, params ...any) (RunResult, error) {
	bound, err := bindSQL(sqlText, params)
	if err != nil {
		return RunResult{}, err
	}
	resp, err := a.post([]string{bound})
	if err != nil {
		return RunResult{}, err
	}
	if len(resp.Results) == 0 {
		return RunResult{}, nil
	}
	r := resp.Results[0]
	return RunResult{LastInsertID: r.LastInsertRow, Changes: r.Changes}, nil
}

// Get returns the first row or nil.
func (a *RemoteAdapter) Get(sqlText string, params ...any) (Row, error) {
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
func (a *RemoteAdapter) All(sqlText string, params ...any) ([]Row, error) {
	bound, err := bindSQL(sqlText, params)
	if err != nil {
		return nil, err
	}
	resp, err := a.post([]string{bound})
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	res := resp.Results[0]
	out := make([]Row, 0, len(res.Rows))
	for _, vals := range res.Rows {
		r := make(Row, len(res.Columns))
		for i, c := range res.Columns {
			if i < len(vals) {
				r[c] = vals[i]
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// Close is a no-op for the HTTP adapter.
func (a *RemoteAdapter) Close() error { return nil }

// Raw is unavailable in remote mode: there is no engine handle to hand out.
func (a *RemoteAdapter) Raw() (*sql.DB, error) {
	return nil, fmt.Errorf("%w: raw engine access requires local mode", ErrUnavailable)
}

// post ships statements to the primary and decodes the response.
func (a *RemoteAdapter) post(statements []string) (*statementsResponse, error) {
	body, err := json.Marshal(statementsRequest{Statements: statements})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, a.baseURL+"/v1/statements", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnreachable, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("primary returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}

	var resp statementsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("invalid response from primary: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("primary error: %s", resp.Error)
	}
	return &resp, nil
}

// bindSQL substitutes ? placeholders with SQL literals. The statements wire
// format carries plain SQL, so binding happens before shipping. Only the
// placeholder forms the store layer itself emits are supported.
func bindSQL(sqlText string, params []any) (string, error) {
	if len(params) == 0 {
		return sqlText, nil
	}
	var b strings.Builder
	b.Grow(len(sqlText) + 16*len(params))
	idx := 0
	inString := false
	for i := 0; i < len(sqlText); i++ {
		ch := sqlText[i]
		if ch == '\'' {
			inString = !inString
		}
		if ch == '?' && !inString {
			if idx >= len(params) {
				return "", fmt.Errorf("statement has more placeholders than parameters")
			}
			lit, err := sqlLiteral(params[idx])
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			idx++
			continue
		}
		b.WriteByte(ch)
	}
	if idx != len(params) {
		return "", fmt.Errorf("statement has %d placeholders, got %d parameters", idx, len(params))
	}
	return b.String(), nil
}

// sqlLiteral renders a single bound value as a SQL literal.
func sqlLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case time.Time:
		return "'" + x.UTC().Format(time.RFC3339) + "'", nil
	default:
		return "", fmt.Errorf("unsupported parameter type %T", v)
	}
}
