package worker

import (
	"context"
	"sync"
)

// Dispatcher fans queue work out to a pool of workers.
type Dispatcher struct {
	workers []*Worker
}

// NewDispatcher creates a Dispatcher over the given workers.
func NewDispatcher(workers []*Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// Run starts all workers and blocks until the context finishes and every
// worker drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}
