package outcome

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ravnltd/muninn/internal/store"
)

// Reasoning-trace extraction: reconstruct how the session investigated from
// its tool-call sequence.

const (
	minTraceCalls    = 3
	signatureCalls   = 5
	signatureMax     = 5
	deadEndMax       = 5
	hypothesisMax    = 5
	breakthroughSpan = 3
)

// strategyPattern names a tool-sequence shape. Patterns run in order against
// the joined tool-name sequence; every match becomes a tag.
type strategyPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

var strategyCatalog = []strategyPattern{
	{"search-first", regexp.MustCompile(`^muninn_(query|suggest|predict)`)},
	{"check-before-edit", regexp.MustCompile(`muninn_check.*(edit|write|patch)`)},
	{"test-driven", regexp.MustCompile(`test.*(edit|write|patch).*test`)},
	{"incremental-edits", regexp.MustCompile(`(edit|write|patch).*(test|check).*(edit|write|patch)`)},
	{"error-chase", regexp.MustCompile(`(error|debug).*(edit|write|patch)`)},
	{"record-decisions", regexp.MustCompile(`muninn_decision_add`)},
	{"capture-learnings", regexp.MustCompile(`muninn_learn_add`)},
}

// ExtractTrace builds a reasoning trace from a session's calls. Nil when the
// session is too short to say anything.
func ExtractTrace(session store.SessionRow, calls []store.ToolCallRow, success int) *store.TraceRow {
	if len(calls) < minTraceCalls {
		return nil
	}

	toolSeq := make([]string, len(calls))
	for i, c := range calls {
		toolSeq[i] = c.ToolName
	}

	trace := &store.TraceRow{
		SessionID:        session.ID,
		ProblemSignature: problemSignature(calls),
		DeadEnds:         deadEnds(calls),
		HypothesisChain:  hypothesisChain(calls),
		StrategyTags:     strategyTags(strings.Join(toolSeq, " ")),
		ToolSequence:     toolSeq,
		Success:          success == SuccessFull,
	}
	if success != SuccessFailed {
		trace.Breakthrough = breakthrough(calls)
	}
	if last, first := calls[len(calls)-1].CreatedAt, calls[0].CreatedAt; !first.IsZero() && !last.IsZero() {
		trace.DurationMs = last.Sub(first).Milliseconds()
	}
	return trace
}

// problemSignature distills a keyword bag from the first few calls.
func problemSignature(calls []store.ToolCallRow) []string {
	n := len(calls)
	if n > signatureCalls {
		n = signatureCalls
	}
	seen := make(map[string]bool)
	var out []string
	add := func(word string) {
		word = strings.ToLower(word)
		if len(out) >= signatureMax || seen[word] || word == "" {
			return
		}
		seen[word] = true
		out = append(out, word)
	}

	for _, c := range calls[:n] {
		for _, word := range strings.Fields(c.InputSummary) {
			if len(word) > 3 && isAlphabetic(word) {
				add(word)
			}
		}
		for _, f := range c.FilesInvolved {
			add(filepath.Base(f))
		}
	}
	return out
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// deadEnds finds backtracks: a file revisited after at least two intervening
// calls means the path in between did not pan out.
func deadEnds(calls []store.ToolCallRow) []string {
	lastSeen := make(map[string]int)
	seen := make(map[string]bool)
	var out []string

	for i, c := range calls {
		if len(c.FilesInvolved) == 0 {
			continue
		}
		file := c.FilesInvolved[0]
		if prev, ok := lastSeen[file]; ok && i-prev-1 >= 2 {
			var middle []string
			for _, mid := range calls[prev+1 : i] {
				middle = append(middle, mid.ToolName)
			}
			entry := fmt.Sprintf("Backtrack to %s after: %s", filepath.Base(file), strings.Join(middle, " -> "))
			if !seen[entry] && len(out) < deadEndMax {
				seen[entry] = true
				out = append(out, entry)
			}
		}
		lastSeen[file] = i
	}
	return out
}

// hypothesisChain renders domain shifts: the parent directory of the first
// file, or the normalized tool name when the call touched nothing.
func hypothesisChain(calls []store.ToolCallRow) []string {
	var out []string
	prev := ""
	for _, c := range calls {
		domain := callDomain(c)
		if prev != "" && domain != prev && len(out) < hypothesisMax {
			out = append(out, fmt.Sprintf("Shifted from %s to %s", prev, domain))
		}
		prev = domain
	}
	return out
}

func callDomain(c store.ToolCallRow) string {
	if len(c.FilesInvolved) > 0 {
		dir := filepath.Dir(c.FilesInvolved[0])
		if dir != "." && dir != "/" {
			return dir
		}
	}
	return strings.TrimPrefix(c.ToolName, "muninn_")
}

// breakthrough renders the window of calls ending at the last knowledge
// write: the moment the session had something worth recording.
func breakthrough(calls []store.ToolCallRow) string {
	for i := len(calls) - 1; i >= 0; i-- {
		name := calls[i].ToolName
		if name != "muninn_file_add" && name != "muninn_decision_add" {
			continue
		}
		start := i - breakthroughSpan + 1
		if start < 0 {
			start = 0
		}
		var names, files []string
		for _, c := range calls[start : i+1] {
			names = append(names, c.ToolName)
			for _, f := range c.FilesInvolved {
				files = append(files, filepath.Base(f))
			}
		}
		out := strings.Join(names, " -> ")
		if len(files) > 0 {
			out += " (" + strings.Join(files, ", ") + ")"
		}
		return out
	}
	return ""
}

// strategyTags matches the joined tool sequence against the catalog.
func strategyTags(joined string) []string {
	var out []string
	for _, sp := range strategyCatalog {
		if sp.Pattern.MatchString(joined) {
			out = append(out, sp.Name)
		}
	}
	return out
}
