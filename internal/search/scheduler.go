package search

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"componentsearch/searchservice/internal/domain"
)

const defaultConcurrency = 4

// Task is one scheduled provider invocation.
type Task struct {
	Provider string
	Run      func(ctx context.Context) domain.ProviderOutcome
}

// Settled pairs a task's provider with its outcome.
type Settled struct {
	Provider string
	Outcome  domain.ProviderOutcome
}

// Schedule runs tasks with at most limit in flight. Tasks start in submission
// order and the result keeps submission order whatever the completion order.
// Every task settles: a failing task never cancels its siblings. onSettle, if
// set, is called once per task as it settles, possibly concurrently.
func Schedule(ctx context.Context, tasks []Task, limit int, onSettle func(index int, settled Settled)) []Settled {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	results := make([]Settled, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup
	for i, task := range tasks {
		results[i].Provider = task.Provider
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i].Outcome = domain.ProviderOutcome{
				Status:  domain.OutcomeError,
				Message: "search cancelled before start: " + context.Cause(ctx).Error(),
			}
			if onSettle != nil {
				onSettle(i, results[i])
			}
			continue
		}
		wg.Add(1)
		go func(index int, current Task) {
			defer wg.Done()
			defer sem.Release(1)
			results[index].Outcome = current.Run(ctx)
			if onSettle != nil {
				onSettle(index, results[index])
			}
		}(i, task)
	}
	wg.Wait()
	return results
}
