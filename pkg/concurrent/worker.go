package concurrent

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type JobFunc[T, G any] func(ctx context.Context, job T) (G, error)

// WorkerPool fans a slice of jobs out to a fixed number of goroutines
// and collects one result per job. The first job error cancels the
// remaining work.
type WorkerPool[T, G any] struct {
	workers int
	jobFunc JobFunc[T, G]
}

func NewWorkerPool[T, G any](workers int, jobFunc JobFunc[T, G]) *WorkerPool[T, G] {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool[T, G]{workers: workers, jobFunc: jobFunc}
}

// Process runs every job and returns the results in job order.
func (wp *WorkerPool[T, G]) Process(ctx context.Context, jobs []T) ([]G, error) {
	results := make([]G, len(jobs))

	type indexed struct {
		idx int
		job T
	}
	jobC := make(chan indexed)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobC)
		for i, job := range jobs {
			select {
			case jobC <- indexed{idx: i, job: job}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < wp.workers; w++ {
		g.Go(func() error {
			for item := range jobC {
				res, err := wp.jobFunc(ctx, item.job)
				if err != nil {
					return err
				}
				results[item.idx] = res
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
