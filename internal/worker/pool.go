package worker

import (
	"context"
	"sync"
)

// Pool runs the analysis jobs of one batch on a bounded number of workers
type Pool struct {
	workers int
}

// NewPool creates a pool with the given number of workers; values below one mean one
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes jobs and returns their results indexed like jobs. Once ctx
// ends no further job is started; the slots of jobs that never started are nil.
func (p *Pool) Run(ctx context.Context, jobs []*AnalysisJob) []*BatchResult {
	results := make([]*BatchResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	queue := make(chan int)
	var wg sync.WaitGroup

	for range min(p.workers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if ctx.Err() != nil {
					continue
				}
				results[i] = jobs[i].Execute(ctx)
			}
		}()
	}

feed:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()

	return results
}
