// Package worker runs text units through a processing function with
// bounded concurrency. Rate limiting lives with the caller: only network
// calls should consume limiter tokens, and the pool cannot tell a cache
// hit from a live request.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

// Outcome is the terminal state of one unit. Exactly one of Result and
// Err is set.
type Outcome struct {
	Unit   model.TextUnit
	Result *model.UnitResult
	Err    error
}

// ProcessFunc handles a single unit.
type ProcessFunc func(ctx context.Context, unit model.TextUnit) (*model.UnitResult, error)

// Pool fans units out to a fixed number of workers.
type Pool struct {
	workers int

	// OnDone, if set, is called after each unit completes. Called from
	// worker goroutines; must be safe for concurrent use.
	OnDone func(done, total int, outcome Outcome)
}

// NewPool creates a pool with the given worker count.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run processes all units and returns one outcome per unit, in input
// order. A cancelled context stops dispatching; units already in flight
// finish, undispatched units report the context error.
func (p *Pool) Run(ctx context.Context, units []model.TextUnit, fn ProcessFunc) []Outcome {
	outcomes := make([]Outcome, len(units))
	indexes := make(chan int)

	var done atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				unit := units[i]
				result, err := fn(ctx, unit)
				outcomes[i] = Outcome{Unit: unit, Result: result, Err: err}
				if p.OnDone != nil {
					p.OnDone(int(done.Add(1)), len(units), outcomes[i])
				}
			}
		}()
	}

	for i := range units {
		select {
		case <-ctx.Done():
			outcomes[i] = Outcome{Unit: units[i], Err: ctx.Err()}
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	return outcomes
}
