// Package httpapi serves the shared-mode statements protocol: the remote
// store adapter POSTs plain SQL statements here and the primary executes them
// against its local database. Writes are gated by bearer-token auth with an
// optional localhost bypass.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ravnltd/muninn/internal/config"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
	"github.com/ravnltd/muninn/internal/validate"
)

// statementsRequest mirrors the remote adapter's wire request.
type statementsRequest struct {
	Statements []string `json:"statements" binding:"required"`
}

type statementResult struct {
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
	LastInsertRow int64    `json:"last_insert_rowid"`
	Changes       int64    `json:"changes"`
}

type statementsResponse struct {
	Results []statementResult `json:"results"`
	Error   string            `json:"error,omitempty"`
}

// Server hosts the primary endpoints over one local adapter.
type Server struct {
	adapter *store.LocalAdapter
	cfg     *config.Config
}

// NewServer builds the primary server.
func NewServer(adapter *store.LocalAdapter, cfg *config.Config) *Server {
	return &Server{adapter: adapter, cfg: cfg}
}

// Handler assembles the gin engine.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/v1/health", s.handleHealth)
	r.POST("/v1/statements", s.requireWriteAccess, s.handleStatements)
	return r
}

// handleHealth reports the integrity summary without auth.
func (s *Server) handleHealth(c *gin.Context) {
	report, err := s.adapter.CheckIntegrity()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	status := http.StatusOK
	if !report.Ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// requireWriteAccess enforces the token, allowing the localhost bypass only
// when both detection signals agree (host form and forwarding headers).
func (s *Server) requireWriteAccess(c *gin.Context) {
	log := logging.Get(logging.CategoryHTTP)

	offered := validate.BearerToken(c.GetHeader("Authorization"))
	if s.cfg.APIToken != "" && validate.TokenEqual(s.cfg.APIToken, offered) {
		c.Next()
		return
	}

	if s.cfg.LocalhostBypass {
		if validate.IsLocalhostRequest(c.Request.Host, c.GetHeader("X-Forwarded-For"), s.cfg.TrustedProxy) {
			c.Next()
			return
		}
	}

	log.Warn("rejected write from %s (host=%s)", c.ClientIP(), c.Request.Host)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// handleStatements executes the batch in order and returns one result set per
// statement. The first failing statement aborts the batch.
func (s *Server) handleStatements(c *gin.Context) {
	var req statementsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, statementsResponse{Error: err.Error()})
		return
	}
	if len(req.Statements) == 0 {
		c.JSON(http.StatusBadRequest, statementsResponse{Error: "no statements"})
		return
	}

	resp := statementsResponse{Results: make([]statementResult, 0, len(req.Statements))}
	for _, stmt := range req.Statements {
		result, err := s.execute(stmt)
		if err != nil {
			logging.Get(logging.CategoryHTTP).Warn("statement failed: %v", err)
			c.JSON(http.StatusOK, statementsResponse{Error: err.Error()})
			return
		}
		resp.Results = append(resp.Results, result)
	}
	c.JSON(http.StatusOK, resp)
}

// execute runs one statement, routing reads through the query path so result
// sets come back in row form.
func (s *Server) execute(stmt string) (statementResult, error) {
	if isQuery(stmt) {
		rows, err := s.adapter.All(stmt)
		if err != nil {
			return statementResult{}, err
		}
		return toResult(rows), nil
	}
	run, err := s.adapter.Run(stmt)
	if err != nil {
		return statementResult{}, err
	}
	return statementResult{
		Columns:       []string{},
		Rows:          [][]any{},
		LastInsertRow: run.LastInsertID,
		Changes:       run.Changes,
	}, nil
}

func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH") || strings.HasPrefix(head, "PRAGMA")
}

// toResult flattens dynamic rows into the wire shape with a stable column
// order taken from the first row.
func toResult(rows []store.Row) statementResult {
	out := statementResult{Columns: []string{}, Rows: [][]any{}}
	if len(rows) == 0 {
		return out
	}
	for col := range rows[0] {
		out.Columns = append(out.Columns, col)
	}
	// Deterministic order for the wire.
	sortStrings(out.Columns)
	for _, r := range rows {
		vals := make([]any, len(out.Columns))
		for i, col := range out.Columns {
			vals[i] = r[col]
		}
		out.Rows = append(out.Rows, vals)
	}
	return out
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
