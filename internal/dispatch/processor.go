// Package dispatch turns one received utterance into one observable outcome.
// Every frame the server hands over ends up as exactly one of: handled,
// unrecognized, or failed. Nothing is swallowed; every result is logged,
// audited, and published.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/voxgate/internal/audit"
	"github.com/mattjoyce/voxgate/internal/events"
	"github.com/mattjoyce/voxgate/internal/grammar"
	"github.com/mattjoyce/voxgate/internal/log"
)

// Outcome classifies the result of processing one utterance.
type Outcome string

const (
	// OutcomeHandled means a pattern matched and its handler returned nil.
	OutcomeHandled Outcome = "handled"
	// OutcomeUnrecognized means no registered pattern matched the utterance.
	OutcomeUnrecognized Outcome = "unrecognized"
	// OutcomeFailed means a pattern matched but its handler returned an
	// error or panicked.
	OutcomeFailed Outcome = "failed"
)

// Result reports what happened to one utterance.
type Result struct {
	Outcome   Outcome
	Command   string // matched pattern source, empty when unrecognized
	Err       error  // handler error, nil unless failed
	Duration  time.Duration
	Utterance string
}

// Stats are monotonic outcome counters for the life of the process.
type Stats struct {
	Handled      atomic.Int64
	Unrecognized atomic.Int64
	Failed       atomic.Int64
}

// Processor parses utterances against the assembled grammar and runs their
// handlers. It is safe for concurrent use.
type Processor struct {
	grammar *grammar.Grammar
	audit   *audit.Log
	hub     *events.Hub
	logger  *slog.Logger
	stats   Stats
}

// NewProcessor wires a processor. audit and hub may be nil; outcomes are then
// only logged.
func NewProcessor(g *grammar.Grammar, auditLog *audit.Log, hub *events.Hub) *Processor {
	return &Processor{
		grammar: g,
		audit:   auditLog,
		hub:     hub,
		logger:  log.WithComponent("dispatch"),
	}
}

// Stats exposes the outcome counters.
func (p *Processor) Stats() *Stats { return &p.stats }

// Process handles one utterance from the named connection and reports the
// outcome. An error result never means the connection should die; frame
// failures are the server's concern, handler failures end here.
func (p *Processor) Process(ctx context.Context, connID, utterance string) Result {
	started := time.Now()
	res := p.run(ctx, utterance)
	res.Duration = time.Since(started)
	res.Utterance = utterance

	p.record(ctx, connID, started, res)
	return res
}

func (p *Processor) run(ctx context.Context, utterance string) (res Result) {
	cmd, err := p.grammar.Parse(utterance)
	if err != nil {
		if errors.Is(err, grammar.ErrNoMatch) {
			return Result{Outcome: OutcomeUnrecognized}
		}
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	handler, ok := p.grammar.Handler(cmd.Name)
	if !ok {
		// Combine guarantees a handler per pattern; reaching this is a bug.
		return Result{Outcome: OutcomeFailed, Command: cmd.Name, Err: fmt.Errorf("no handler for pattern %q", cmd.Name)}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Outcome: OutcomeFailed,
				Command: cmd.Name,
				Err:     fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()),
			}
		}
	}()

	if err := handler(ctx, cmd.Args); err != nil {
		return Result{Outcome: OutcomeFailed, Command: cmd.Name, Err: err}
	}
	return Result{Outcome: OutcomeHandled, Command: cmd.Name}
}

func (p *Processor) record(ctx context.Context, connID string, started time.Time, res Result) {
	attrs := []any{
		"conn", connID,
		"utterance", res.Utterance,
		"outcome", string(res.Outcome),
		"duration_ms", res.Duration.Milliseconds(),
	}
	if res.Command != "" {
		attrs = append(attrs, "command", res.Command)
	}

	switch res.Outcome {
	case OutcomeHandled:
		p.stats.Handled.Add(1)
		p.logger.Info("command handled", attrs...)
	case OutcomeUnrecognized:
		p.stats.Unrecognized.Add(1)
		p.logger.Warn("utterance not recognized", attrs...)
	case OutcomeFailed:
		p.stats.Failed.Add(1)
		p.logger.Error("command failed", append(attrs, "error", res.Err)...)
	}

	if p.hub != nil {
		p.hub.Publish(events.TypeCommandResult, map[string]any{
			"conn_id":     connID,
			"utterance":   res.Utterance,
			"command":     res.Command,
			"outcome":     string(res.Outcome),
			"error":       errString(res.Err),
			"duration_ms": res.Duration.Milliseconds(),
		})
	}

	if p.audit != nil {
		// The audit row must land even when the connection scope is
		// already canceled.
		ctx := context.WithoutCancel(ctx)
		entry := audit.Entry{
			ConnID:      connID,
			Utterance:   res.Utterance,
			Command:     res.Command,
			Outcome:     string(res.Outcome),
			Error:       errString(res.Err),
			ReceivedAt:  started,
			CompletedAt: started.Add(res.Duration),
		}
		if _, err := p.audit.Record(ctx, entry); err != nil {
			p.logger.Error("audit write failed", "conn", connID, "error", err)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
