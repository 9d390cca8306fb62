// Package tools exposes muninn's verb set over the MCP tool protocol. The
// protocol framing is mcp-go's; handlers validate inputs, call the router or
// store, and shape responses.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ravnltd/muninn/internal/collect"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/outcome"
	"github.com/ravnltd/muninn/internal/router"
	"github.com/ravnltd/muninn/internal/store"
	"github.com/ravnltd/muninn/internal/validate"
)

// Service implements the verb set for one project.
type Service struct {
	store     *store.Store
	router    *router.Router
	pipeline  *outcome.Pipeline
	distiller *outcome.Distiller
	project   store.ProjectRow

	// global, when attached, receives learnings marked global so every
	// project on this machine can surface them.
	global        *store.Store
	globalProject store.ProjectRow

	mu            sync.Mutex
	activeSession int64
	pendingOps    map[string]string // operation id -> guarded command
}

// AttachGlobal binds the cross-project store used for global learnings.
func (sv *Service) AttachGlobal(g *store.Store) error {
	project, err := g.EnsureProject("global")
	if err != nil {
		return err
	}
	sv.global = g
	sv.globalProject = project
	return nil
}

// NewService wires the verb set over an initialized store.
func NewService(s *store.Store, projectPath string) (*Service, error) {
	project, err := s.EnsureProject(projectPath)
	if err != nil {
		return nil, err
	}
	return &Service{
		store:      s,
		router:     router.New(s),
		pipeline:   outcome.NewPipeline(s),
		distiller:  outcome.NewDistiller(s),
		project:    project,
		pendingOps: make(map[string]string),
	}, nil
}

// Project returns the bound project row.
func (sv *Service) Project() store.ProjectRow { return sv.project }

// recordCall observes a tool invocation for the learning loop. No active
// session means nothing to attribute the call to.
func (sv *Service) recordCall(tool, summary string, files []string, success bool) {
	sv.mu.Lock()
	sid := sv.activeSession
	sv.mu.Unlock()
	if sid == 0 {
		return
	}
	if _, err := sv.store.InsertToolCall(sv.project.ID, sid, tool, summary, files, success); err != nil {
		logging.Suppress("tools.record", err)
	}
}

// recordInjections tracks what a context result surfaced so the feedback pass
// can score it later.
func (sv *Service) recordInjections(result *collect.Result) {
	sv.mu.Lock()
	sid := sv.activeSession
	sv.mu.Unlock()
	if sid == 0 {
		return
	}
	for _, it := range result.Context {
		if it.SourceID == 0 {
			continue
		}
		if err := sv.store.InsertInjection(sv.project.ID, sid, it.Type, it.SourceID, it.Relevance); err != nil {
			logging.Suppress("tools.injections", err)
		}
	}
}

// Query answers a free-text query across the knowledge stores.
func (sv *Service) Query(req *validate.QueryRequest) (*collect.Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	result, err := sv.router.RouteContext(sv.project, collect.Request{Intent: router.IntentRead, Query: req.Text})
	if err != nil {
		return nil, err
	}
	sv.recordCall("muninn_query", req.Text, nil, true)
	sv.recordInjections(result)
	return result, nil
}

// Check returns pre-edit context for a file set.
func (sv *Service) Check(req *validate.CheckRequest) (*collect.Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	result, err := sv.router.RouteContext(sv.project, collect.Request{Intent: router.IntentEdit, Files: req.Files})
	if err != nil {
		return nil, err
	}
	sv.recordCall("muninn_check", "", req.Files, true)
	sv.recordInjections(result)
	return result, nil
}

// FileAdd registers or updates a file.
func (sv *Service) FileAdd(req *validate.FileAddRequest) (store.FileRow, error) {
	if err := validate.Struct(req); err != nil {
		return store.FileRow{}, err
	}
	f, err := sv.store.UpsertFile(sv.project.ID, req.Path, req.Purpose, req.Fragility)
	if err != nil {
		return store.FileRow{}, err
	}
	sv.recordCall("muninn_file_add", req.Purpose, []string{req.Path}, true)
	return f, nil
}

// DecisionAdd records a decision.
func (sv *Service) DecisionAdd(req *validate.DecisionAddRequest) (int64, error) {
	if err := validate.Struct(req); err != nil {
		return 0, err
	}
	id, err := sv.store.InsertDecision(sv.project.ID, req.Title, req.Decision, req.Reasoning, req.Affects)
	if err != nil {
		return 0, err
	}
	sv.recordCall("muninn_decision_add", req.Title, req.Affects, true)
	return id, nil
}

// LearnAdd records a learning.
func (sv *Service) LearnAdd(req *validate.LearnAddRequest) (int64, error) {
	if err := validate.Struct(req); err != nil {
		return 0, err
	}
	category := req.Category
	if category == "" {
		category = "pattern"
	}
	context := req.Context
	if len(req.Files) > 0 {
		context = strings.TrimSpace(context + " " + strings.Join(req.Files, " "))
	}
	target, targetProject := sv.store, sv.project
	if req.Global && sv.global != nil {
		target, targetProject = sv.global, sv.globalProject
	}
	id, err := target.InsertLearning(targetProject.ID, req.Title, req.Content, category, context, 1.0, req.Foundational, req.ReviewAfter)
	if err != nil {
		return 0, err
	}
	sv.recordCall("muninn_learn_add", req.Title, req.Files, true)
	return id, nil
}

// Issue handles the add/resolve union.
func (sv *Service) Issue(req *validate.IssueRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}
	switch req.Action {
	case "add":
		severity := req.Severity
		if severity == 0 {
			severity = 5
		}
		issueType := req.Type
		if issueType == "" {
			issueType = "bug"
		}
		id, err := sv.store.InsertIssue(sv.project.ID, req.Title, req.Description, issueType, severity, req.Workaround)
		if err != nil {
			return 0, err
		}
		sv.recordCall("muninn_issue", req.Title, nil, true)
		return id, nil
	case "resolve":
		if err := sv.store.ResolveIssue(sv.project.ID, req.ID, req.Resolution); err != nil {
			return 0, err
		}
		sv.recordCall("muninn_issue", "resolve", nil, true)
		return req.ID, nil
	default:
		return 0, fmt.Errorf("unknown action %q", req.Action)
	}
}

// Session handles the start/end union.
func (sv *Service) Session(ctx context.Context, req *validate.SessionRequest) (outcome.EndResult, error) {
	if err := req.Validate(); err != nil {
		return outcome.EndResult{}, err
	}
	switch req.Action {
	case "start":
		sid, err := sv.store.StartSession(sv.project.ID, req.Goal)
		if err != nil {
			return outcome.EndResult{}, err
		}
		sv.mu.Lock()
		sv.activeSession = sid
		sv.mu.Unlock()
		return outcome.EndResult{SessionID: sid}, nil
	case "end":
		success := outcome.ExplicitUnset
		if req.Success != nil {
			success = *req.Success
		}
		res, err := sv.pipeline.RunSessionEnd(ctx, sv.project.ID, req.ID, req.Outcome, success)
		if err != nil {
			return outcome.EndResult{}, err
		}
		sv.mu.Lock()
		if sv.activeSession == req.ID {
			sv.activeSession = 0
		}
		sv.mu.Unlock()
		return res, nil
	default:
		return outcome.EndResult{}, fmt.Errorf("unknown action %q", req.Action)
	}
}

// Predict returns likely-relevant context for an upcoming task.
func (sv *Service) Predict(req *validate.PredictRequest) (*collect.Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	result, err := sv.router.RouteContext(sv.project, collect.Request{
		Intent: router.IntentPlan,
		Task:   req.Task,
		Files:  req.Files,
	})
	if err != nil {
		return nil, err
	}
	var suggested []string
	for _, it := range result.ItemsOfType("file") {
		suggested = append(suggested, it.Path)
	}
	sv.recordCall("muninn_predict", req.Task, suggested, true)
	sv.recordInjections(result)
	return result, nil
}

// Suggest proposes files for a task.
func (sv *Service) Suggest(req *validate.SuggestRequest) (*collect.Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	result, err := sv.router.RouteContext(sv.project, collect.Request{Intent: router.IntentExplore, Task: req.Task})
	if err != nil {
		return nil, err
	}
	var suggested []string
	for _, it := range result.ItemsOfType("file") {
		suggested = append(suggested, it.Path)
	}
	sv.recordCall("muninn_suggest", req.Task, suggested, true)
	sv.recordInjections(result)
	return result, nil
}

// Enrich wraps another tool's input with remembered context and matching
// strategies.
func (sv *Service) Enrich(req *validate.EnrichRequest) (*collect.Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	result, err := sv.router.RouteContext(sv.project, collect.Request{Intent: router.IntentExplore, Query: req.Input})
	if err != nil {
		return nil, err
	}
	if strategies, err := sv.distiller.MatchStrategies(sv.project.ID, req.Input, 3); err == nil {
		for _, st := range strategies {
			result.AddItem(collect.Item{
				Type:      "strategy",
				Title:     st.Name,
				Content:   st.Description,
				SourceID:  st.ID,
				Relevance: st.SuccessRate,
			})
		}
	} else {
		logging.Suppress("tools.strategies", err)
	}
	sv.recordCall("muninn_enrich", req.Tool, nil, true)
	sv.recordInjections(result)
	return result, nil
}

// guardedCommand reports whether a passthrough statement mutates state in a
// way that needs explicit approval.
func guardedCommand(command string) bool {
	head := strings.ToUpper(strings.TrimSpace(command))
	for _, prefix := range []string{"DELETE", "DROP", "UPDATE", "ALTER", "VACUUM"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

// Passthrough forwards a raw statement to the adapter. Destructive commands
// are parked and answered with an operation id; Approve executes them.
func (sv *Service) Passthrough(req *validate.PassthroughRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", err
	}
	if guardedCommand(req.Command) {
		opID := uuid.NewString()
		sv.mu.Lock()
		sv.pendingOps[opID] = req.Command
		sv.mu.Unlock()
		return fmt.Sprintf("operation requires approval: %s", opID), nil
	}
	if err := sv.store.Adapter().Exec(req.Command); err != nil {
		return "", err
	}
	sv.recordCall("muninn_passthrough", "", nil, true)
	return "ok", nil
}

// Approve executes a previously parked operation.
func (sv *Service) Approve(req *validate.ApproveRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", err
	}
	sv.mu.Lock()
	command, ok := sv.pendingOps[req.OperationID]
	if ok {
		delete(sv.pendingOps, req.OperationID)
	}
	sv.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: operation %s", store.ErrNotFound, req.OperationID)
	}
	if err := sv.store.Adapter().Exec(command); err != nil {
		return "", err
	}
	sv.recordCall("muninn_approve", req.OperationID, nil, true)
	return "ok", nil
}
