package search

import (
	"context"

	"componentsearch/searchservice/internal/domain"
)

const (
	PhaseBootstrap = "bootstrap"
	PhaseUpdate    = "update"
	PhaseDone      = "done"
)

// StreamUpdate is one ranked snapshot of a streaming search.
type StreamUpdate struct {
	Phase    string
	Provider string
	Result   domain.OrchestrationResult
}

// Stream runs the same search as Orchestrate and emits a snapshot before any
// provider settles, one after each provider settles and a final one equal to
// the returned result. emit is never called concurrently.
func (o *Orchestrator) Stream(ctx context.Context, query string, cfg domain.ProviderConfig, emit func(StreamUpdate)) domain.OrchestrationResult {
	if emit == nil {
		return o.Orchestrate(ctx, query, cfg)
	}
	result := o.run(ctx, query, cfg, func(state runState, index int, settled []Settled, done []bool) {
		snapshot, _ := o.assemble(state, settled, done)
		update := StreamUpdate{Phase: PhaseUpdate, Result: snapshot}
		if index < 0 {
			update.Phase = PhaseBootstrap
			if state.manualStatus != nil {
				update.Provider = manualProvider
			}
		} else {
			update.Provider = settled[index].Provider
		}
		emit(update)
	})
	emit(StreamUpdate{Phase: PhaseDone, Result: result})
	return result
}
