// internal/fetchpool/pool.go

// Package fetchpool runs independent fetch tasks under a fixed
// concurrency ceiling with a minimum interval between dispatches, to
// stay inside upstream API quotas. Tasks fail independently: one bad
// address or mint never poisons the rest of the batch.
package fetchpool

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one independent unit of fetch work.
type Task func(ctx context.Context) error

type Pool struct {
	workers  int
	interval time.Duration
}

func New(workers int, interval time.Duration) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, interval: interval}
}

// Run executes all tasks and returns their errors indexed by task. The
// returned slice always has len(tasks) entries; a nil entry means the
// task succeeded. Run itself only fails when the context is canceled
// before all tasks were dispatched.
func (p *Pool) Run(ctx context.Context, tasks []Task) ([]error, error) {
	results := make([]error, len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	var ticker *time.Ticker
	if p.interval > 0 {
		ticker = time.NewTicker(p.interval)
		defer ticker.Stop()
	}

	for i, task := range tasks {
		// The interval spaces dispatches apart; the first one goes out
		// immediately.
		if ticker != nil && i > 0 {
			select {
			case <-gCtx.Done():
				return results, gCtx.Err()
			case <-ticker.C:
			}
		}

		i, task := i, task
		g.Go(func() error {
			// Task failures land in the result slot so siblings keep going.
			results[i] = task(gCtx)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}
