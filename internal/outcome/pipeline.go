package outcome

import (
	"context"
	"fmt"
	"time"

	"github.com/ravnltd/muninn/internal/logging"
	"github.com/ravnltd/muninn/internal/store"
)

func timeNow() time.Time { return time.Now().UTC() }

// Pipeline runs the session-end passes. Each pass swallows and counts its own
// adapter errors; cancellation is checked at the boundaries between passes.
type Pipeline struct {
	store *store.Store
}

// NewPipeline builds a pipeline over the given store.
func NewPipeline(s *store.Store) *Pipeline {
	return &Pipeline{store: s}
}

// EndResult summarizes a processed session.
type EndResult struct {
	SessionID int64   `json:"session_id"`
	Score     float64 `json:"score"`
	Success   int     `json:"success"`
	Outcome   string  `json:"outcome"`
	Inferred  bool    `json:"inferred"`
}

// ExplicitUnset marks the client-supplied success as absent.
const ExplicitUnset = -1

// RunSessionEnd closes a session and runs the learning passes. An explicit
// client-supplied success (0, 1 or 2) overrides inference. Re-running on an
// already-processed session changes nothing and returns the stored result.
func (p *Pipeline) RunSessionEnd(ctx context.Context, projectID, sessionID int64, clientOutcome string, clientSuccess int) (EndResult, error) {
	log := logging.Get(logging.CategoryOutcome)

	session, err := p.store.GetSession(sessionID)
	if err != nil {
		return EndResult{}, err
	}

	if session.Ended {
		// The trace row doubles as the processed marker; its presence means
		// every pass already ran for this session.
		if traces, err := p.store.RecentTraces(projectID, distillTraceWindow); err == nil {
			for _, t := range traces {
				if t.SessionID == sessionID {
					return EndResult{
						SessionID: sessionID,
						Score:     float64(session.Success) / 2,
						Success:   session.Success,
						Outcome:   session.Outcome,
					}, nil
				}
			}
		}
	}

	var score float64
	var success int
	inferred := false
	outcome := clientOutcome

	if session.Ended {
		success = session.Success
		score = float64(success) / 2
		if outcome == "" {
			outcome = session.Outcome
		}
	} else {
		sig := gatherSignals(ctx, p.store, projectID, sessionWithNow(session))
		score = InferScore(sig)
		success = SuccessLevel(score)
		inferred = true
		if clientSuccess != ExplicitUnset {
			success = clientSuccess
			inferred = false
		}
		if outcome == "" {
			outcome = outcomeLabel(success)
		}

		touched, err := p.store.FilesTouched(sessionID)
		if err != nil {
			logging.Suppress("pipeline.touched", err)
		}
		if err := p.store.EndSession(sessionID, outcome, success, touched); err != nil {
			return EndResult{}, fmt.Errorf("failed to end session: %w", err)
		}
		session, err = p.store.GetSession(sessionID)
		if err != nil {
			return EndResult{}, err
		}
	}

	// Learning passes. Each is independent; a missing table in one must not
	// starve the others.
	if err := ctx.Err(); err != nil {
		return EndResult{}, err
	}
	applyInjectionFeedback(p.store, projectID, session)

	if err := ctx.Err(); err != nil {
		return EndResult{}, err
	}
	calibrateRetrieval(p.store, projectID, session)

	if err := ctx.Err(); err != nil {
		return EndResult{}, err
	}
	reinforceLearnings(p.store, session, success)

	if err := ctx.Err(); err != nil {
		return EndResult{}, err
	}
	calls, err := p.store.ToolCalls(sessionID)
	if err != nil {
		logging.Suppress("pipeline.calls", err)
	}
	trace := ExtractTrace(session, calls, success)
	if trace == nil {
		// Too short to learn from; an empty trace still marks the session as
		// processed so the pipeline stays idempotent.
		trace = &store.TraceRow{SessionID: sessionID, Success: success == SuccessFull}
	}
	if _, err := p.store.InsertTrace(projectID, *trace); err != nil {
		logging.Suppress("pipeline.trace", err)
	}

	if err := ctx.Err(); err != nil {
		return EndResult{}, err
	}
	recordABSession(p.store, projectID, sessionID, score)

	log.Info("session %d ended: outcome=%s success=%d score=%.3f", sessionID, outcome, success, score)
	return EndResult{
		SessionID: sessionID,
		Score:     score,
		Success:   success,
		Outcome:   outcome,
		Inferred:  inferred,
	}, nil
}

// sessionWithNow substitutes the current moment for the missing ended_at so
// windowed signal queries have an upper bound.
func sessionWithNow(s store.SessionRow) store.SessionRow {
	if s.EndedAt.IsZero() {
		s.EndedAt = timeNow()
	}
	return s
}

func outcomeLabel(success int) string {
	switch success {
	case SuccessFull:
		return "success"
	case SuccessPartial:
		return "partial"
	default:
		return "failed"
	}
}
