// Package workflow implements the session coordinators. A workflow is a fixed
// sequence of named steps over actors and activities; each step's result is
// journaled atomically, so re-running a workflow id replays recorded results
// instead of re-executing side effects. Idempotency is structural: the same
// code path serves first execution and replay, and the journal's
// insert-if-absent is the only dedup point. Failed steps are never journaled,
// so a retry re-executes exactly the steps that have no recorded result.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Journal durably records step results keyed by (workflowID, step).
type Journal interface {
	// Lookup returns the recorded result for the step, if any.
	Lookup(ctx context.Context, workflowID, step string) ([]byte, bool, error)
	// Record stores the result unless one already exists. It returns the
	// bytes that ended up stored and whether this call inserted them.
	Record(ctx context.Context, workflowID, step string, result []byte) ([]byte, bool, error)
}

// Runner executes journaled steps for workflow instances.
type Runner struct {
	journal Journal
	log     *zap.Logger
}

func NewRunner(journal Journal, log *zap.Logger) *Runner {
	return &Runner{journal: journal, log: log}
}

// Step runs fn unless the journal already holds a result for (workflowID,
// name), in which case the recorded result is returned and fn is skipped.
// fn's error is returned without being journaled.
func Step[T any](ctx context.Context, r *Runner, workflowID, name string, fn func(context.Context) (T, error)) (T, error) {
	return StepIf(ctx, r, workflowID, name, fn, func(T) bool { return true })
}

// StepIf is Step with a keep predicate: results for which keep returns false
// are returned to the caller but not journaled, so a later run of the same
// workflow id re-executes the step. Use it for rejections that carry no side
// effects, where replaying the rejection would pin a transient condition.
func StepIf[T any](ctx context.Context, r *Runner, workflowID, name string, fn func(context.Context) (T, error), keep func(T) bool) (T, error) {
	var zero T

	recorded, found, err := r.journal.Lookup(ctx, workflowID, name)
	if err != nil {
		return zero, fmt.Errorf("journal lookup %s/%s: %w", workflowID, name, err)
	}
	if found {
		var out T
		if err := json.Unmarshal(recorded, &out); err != nil {
			return zero, fmt.Errorf("journal decode %s/%s: %w", workflowID, name, err)
		}
		return out, nil
	}

	out, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if !keep(out) {
		return out, nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return zero, fmt.Errorf("journal encode %s/%s: %w", workflowID, name, err)
	}
	stored, inserted, err := r.journal.Record(ctx, workflowID, name, data)
	if err != nil {
		return zero, fmt.Errorf("journal record %s/%s: %w", workflowID, name, err)
	}
	if !inserted {
		// A concurrent run of the same workflow id won the insert; its
		// result is authoritative.
		r.log.Debug("journal step raced, using recorded result",
			zap.String("workflowId", workflowID), zap.String("step", name))
		var out T
		if err := json.Unmarshal(stored, &out); err != nil {
			return zero, fmt.Errorf("journal decode %s/%s: %w", workflowID, name, err)
		}
		return out, nil
	}
	return out, nil
}
