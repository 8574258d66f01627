// Package runner bounds how many evaluations run at once. Tensor models
// hold large buffers, so the cap keeps peak memory proportional to the
// worker count rather than the benchmark grid.
package runner

import (
	"context"
	"sync"
)

type Job func(context.Context) error

// RunPool executes jobs with at most maxWorkers concurrently, passing ctx
// through to each job. Once ctx is cancelled no further jobs start; jobs
// already running observe the cancellation themselves. Returns every error
// the jobs produced, in no particular order.
func RunPool(ctx context.Context, maxWorkers int, jobs []Job) []error {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, maxWorkers)

	for _, job := range jobs {
		sem <- struct{}{}
		if err := ctx.Err(); err != nil {
			<-sem
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := j(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(job)
	}
	wg.Wait()
	return errs
}
