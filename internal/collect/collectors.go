package collect

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ravnltd/muninn/internal/fragility"
	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

// Request is the inbound context request a router dispatches to collectors.
type Request struct {
	Intent string   `json:"intent"`
	Query  string   `json:"query,omitempty"`
	Task   string   `json:"task,omitempty"`
	Files  []string `json:"files,omitempty"`
	Cwd    string   `json:"cwd,omitempty"`
}

// Context is the shared state one request's collectors operate on.
type Context struct {
	Store     *store.Store
	ProjectID int64
	Request   Request
	Result    *Result
}

// Collector appends its candidates to the shared result. Collectors are pure
// readers; they never mutate the store.
type Collector func(*Context) error

// fragileThreshold is the score at which a file earns a warning line.
const fragileThreshold = 7

// CollectFileInfo surfaces per-file context for every requested file,
// including fragility warnings for risky ones.
func CollectFileInfo(c *Context) error {
	c.Result.AddSource("files")
	for _, path := range c.Request.Files {
		f, err := c.Store.GetFile(c.ProjectID, path)
		if err != nil {
			// Unknown files still appear so the agent knows nothing is known.
			c.Result.AddFile(FileContext{Path: path})
			continue
		}
		fc := FileContext{
			Path:      f.Path,
			Purpose:   f.Purpose,
			Fragility: f.Fragility,
			Known:     true,
		}
		if f.FragilitySignals != "" {
			var signals fragility.Signals
			if err := json.Unmarshal([]byte(f.FragilitySignals), &signals); err == nil {
				fc.Explanation = signals.Explain()
			}
		}
		if tests, err := c.Store.TestsFor(c.ProjectID, f.Path); err == nil {
			fc.TestFiles = tests
		}
		c.Result.AddFile(fc)

		if f.Fragility >= fragileThreshold {
			warning := fmt.Sprintf("%s is fragile (%d/10)", f.Path, f.Fragility)
			if fc.Explanation != "" {
				warning += ": " + fc.Explanation
			}
			c.Result.AddWarning(warning)
		}
	}
	return nil
}

// CollectTestHistory surfaces recent test outcomes for sessions touching the
// requested files.
func CollectTestHistory(c *Context) error {
	appended := false
	for _, path := range c.Request.Files {
		results, err := c.Store.TestHistoryForFile(c.ProjectID, path, 5)
		if err != nil {
			logging.Suppress("collect.testHistory", err)
			continue
		}
		for _, tr := range results {
			if tr.Failed == 0 {
				continue
			}
			appended = true
			c.Result.AddItem(Item{
				Type:      "test_history",
				Title:     fmt.Sprintf("recent failures near %s", filepath.Base(path)),
				Content:   fmt.Sprintf("%d passed, %d failed (%s)", tr.Passed, tr.Failed, tr.Status),
				Path:      path,
				SourceID:  tr.ID,
				Relevance: 0.7,
			})
		}
	}
	if appended {
		c.Result.AddSource("testHistory")
	}
	return nil
}

// CollectCochangers surfaces files that historically change together with the
// requested ones.
func CollectCochangers(c *Context) error {
	appended := false
	for i := range c.Result.Files {
		fc := &c.Result.Files[i]
		if !fc.Known {
			continue
		}
		cochangers, err := c.Store.Cochangers(c.ProjectID, fc.Path, 5)
		if err != nil {
			logging.Suppress("collect.cochangers", err)
			continue
		}
		if len(cochangers) == 0 {
			continue
		}
		fc.Cochangers = cochangers
		appended = true
		c.Result.AddItem(Item{
			Type:      "cochanger",
			Title:     fmt.Sprintf("files that change with %s", filepath.Base(fc.Path)),
			Content:   strings.Join(cochangers, ", "),
			Path:      fc.Path,
			Relevance: 0.6,
		})
	}
	if appended {
		c.Result.AddSource("cochangers")
	}
	return nil
}

// CollectContradictions surfaces active decisions that were later revised or
// reverted: the recorded direction no longer holds.
func CollectContradictions(c *Context) error {
	decisions, err := c.Store.Contradictions(c.ProjectID, c.Request.Files, 5)
	if err != nil {
		logging.Suppress("collect.contradictions", err)
		return nil
	}
	for _, d := range decisions {
		c.Result.AddSource("decisions")
		c.Result.AddWarning(fmt.Sprintf("decision %q was later %s: %s", d.Title, d.OutcomeStatus, d.OutcomeNotes))
		it := decisionItem(d, 0.9)
		it.Type = "contradiction"
		c.Result.AddItem(it)
	}
	return nil
}

// CollectFailedDecisions surfaces prior approaches that failed.
func CollectFailedDecisions(c *Context) error {
	decisions, err := c.Store.FailedDecisions(c.ProjectID, c.Request.Files, 5)
	if err != nil {
		logging.Suppress("collect.failedDecisions", err)
		return nil
	}
	for _, d := range decisions {
		c.Result.AddSource("decisions")
		c.Result.AddItem(decisionItem(d, 0.85))
	}
	return nil
}

// CollectFileDecisions surfaces active decisions affecting the requested
// files. Registers unconditionally: decisions are a core kind for file-scoped
// intents.
func CollectFileDecisions(c *Context) error {
	c.Result.AddSource("decisions")
	decisions, err := c.Store.DecisionsForFiles(c.ProjectID, c.Request.Files, 5)
	if err != nil {
		logging.Suppress("collect.fileDecisions", err)
		return nil
	}
	for _, d := range decisions {
		if alreadyCollected(c.Result, "decision", d.ID) {
			continue
		}
		c.Result.AddItem(decisionItem(d, 0.8))
	}
	return nil
}

// CollectFileLearnings surfaces learnings whose context mentions the
// requested files. Registers unconditionally like decisions.
func CollectFileLearnings(c *Context) error {
	c.Result.AddSource("learnings")
	learnings, err := c.Store.LearningsForFiles(c.ProjectID, c.Request.Files, 5)
	if err != nil {
		logging.Suppress("collect.fileLearnings", err)
		return nil
	}
	for _, l := range learnings {
		c.Result.AddItem(learningItem(l))
	}
	return nil
}

// CollectFileIssues surfaces open issues mentioning the requested files.
func CollectFileIssues(c *Context) error {
	if len(c.Request.Files) == 0 {
		return nil
	}
	seen := make(map[int64]bool)
	for _, f := range c.Request.Files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		issues, err := c.Store.SearchIssues(c.ProjectID, EscapeFTS(name), true, 5)
		if err != nil {
			logging.Suppress("collect.fileIssues", err)
			continue
		}
		for _, is := range issues {
			if seen[is.ID] {
				continue
			}
			seen[is.ID] = true
			c.Result.AddSource("issues")
			c.Result.AddItem(issueItem(is))
		}
	}
	return nil
}

// CollectOpenIssues surfaces the project's open issues, most severe first.
func CollectOpenIssues(c *Context) error {
	issues, err := c.Store.OpenIssues(c.ProjectID, 5)
	if err != nil {
		logging.Suppress("collect.openIssues", err)
		return nil
	}
	for _, is := range issues {
		c.Result.AddSource("issues")
		if is.Severity >= 8 {
			c.Result.AddWarning(fmt.Sprintf("open issue (severity %d): %s", is.Severity, is.Title))
		}
		c.Result.AddItem(issueItem(is))
	}
	return nil
}

// CollectQueryResults runs the free-text query over every FTS-indexed kind.
func CollectQueryResults(c *Context) error {
	if strings.TrimSpace(c.Request.Query) == "" {
		return nil
	}
	c.Result.AddSource("query")
	match := EscapeFTS(c.Request.Query)

	if decisions, err := c.Store.SearchDecisions(c.ProjectID, match, 5); err == nil {
		for _, d := range decisions {
			c.Result.AddItem(decisionItem(d, 0.75))
		}
	} else {
		logging.Suppress("collect.query.decisions", err)
	}
	if learnings, err := c.Store.SearchLearnings(c.ProjectID, match, 5); err == nil {
		for _, l := range learnings {
			c.Result.AddItem(learningItem(l))
		}
	} else {
		logging.Suppress("collect.query.learnings", err)
	}
	if issues, err := c.Store.SearchIssues(c.ProjectID, match, false, 5); err == nil {
		for _, is := range issues {
			c.Result.AddItem(issueItem(is))
		}
	} else {
		logging.Suppress("collect.query.issues", err)
	}
	if files, err := c.Store.SearchFiles(c.ProjectID, match, 5); err == nil {
		for _, f := range files {
			c.Result.AddItem(Item{
				Type:      "file",
				Title:     f.Path,
				Content:   f.Purpose,
				Path:      f.Path,
				SourceID:  f.ID,
				Relevance: 0.7,
			})
		}
	} else {
		logging.Suppress("collect.query.files", err)
	}
	return nil
}

// CollectSuggestedFiles proposes files relevant to the task description.
func CollectSuggestedFiles(c *Context) error {
	task := c.Request.Task
	if task == "" {
		task = c.Request.Query
	}
	if strings.TrimSpace(task) == "" {
		return nil
	}
	files, err := c.Store.SearchFiles(c.ProjectID, EscapeFTS(task), 8)
	if err != nil {
		logging.Suppress("collect.suggestedFiles", err)
		return nil
	}
	for _, f := range files {
		c.Result.AddSource("suggestedFiles")
		c.Result.AddItem(Item{
			Type:      "file",
			Title:     f.Path,
			Content:   f.Purpose,
			Path:      f.Path,
			SourceID:  f.ID,
			Relevance: 0.65,
		})
	}
	return nil
}

// CollectErrorFixes surfaces fixes previously applied to matching errors.
func CollectErrorFixes(c *Context) error {
	c.Result.AddSource("errorFixes")
	query := c.Request.Query
	if query == "" {
		query = c.Request.Task
	}
	if strings.TrimSpace(query) == "" {
		return nil
	}
	fixes, err := c.Store.SearchErrorFixes(c.ProjectID, EscapeFTS(query), 5)
	if err != nil {
		logging.Suppress("collect.errorFixes", err)
		return nil
	}
	for _, fix := range fixes {
		c.Result.AddItem(Item{
			Type:      "error_fix",
			Title:     firstLine(fix.ErrorText),
			Content:   fix.FixText,
			SourceID:  fix.ID,
			Relevance: 0.9,
		})
	}
	return nil
}

// CollectRecentErrors surfaces the latest observed errors.
func CollectRecentErrors(c *Context) error {
	errs, err := c.Store.RecentErrors(c.ProjectID, 5)
	if err != nil {
		logging.Suppress("collect.recentErrors", err)
		return nil
	}
	for _, e := range errs {
		c.Result.AddSource("recentErrors")
		c.Result.AddItem(Item{
			Type:      "error_fix",
			Title:     "recent error" + pathSuffix(e.FilePath),
			Content:   firstLine(e.ErrorText),
			Path:      e.FilePath,
			SourceID:  e.ID,
			Relevance: 0.8,
		})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Item constructors
// ---------------------------------------------------------------------------

func decisionItem(d store.DecisionRow, relevance float64) Item {
	content := d.Decision
	if d.OutcomeStatus != "pending" {
		content += fmt.Sprintf(" [outcome: %s]", d.OutcomeStatus)
	}
	return Item{
		Type:      "decision",
		Title:     d.Title,
		Content:   content,
		SourceID:  d.ID,
		Relevance: relevance,
	}
}

func learningItem(l store.LearningRow) Item {
	// Confidence maps into relevance so reinforcement shapes surfacing order.
	return Item{
		Type:      "learning",
		Title:     l.Title,
		Content:   l.Content,
		SourceID:  l.ID,
		Relevance: l.Confidence / 10.0,
	}
}

func issueItem(is store.IssueRow) Item {
	content := is.Description
	if is.Workaround != "" {
		content += " [workaround: " + is.Workaround + "]"
	}
	return Item{
		Type:      "issue",
		Title:     is.Title,
		Content:   content,
		SourceID:  is.ID,
		Relevance: float64(is.Severity) / 10.0,
	}
}

func alreadyCollected(r *Result, kind string, id int64) bool {
	for _, it := range r.Context {
		if it.Type == kind && it.SourceID == id {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func pathSuffix(p string) string {
	if p == "" {
		return ""
	}
	return " in " + p
}
