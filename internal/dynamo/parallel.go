package dynamo

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool is a fixed-size worker pool. The size is set once at construction and
// every For call blocks until all of its jobs have drained.
type Pool struct {
	workers  int
	minChunk int
}

// NewPool creates a pool with the given worker count. Zero selects
// runtime.NumCPU(); negative counts are a configuration error.
func NewPool(workers int) (*Pool, error) {
	if workers < 0 {
		return nil, Configf("worker count must be positive, got %d", workers)
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers, minChunk: 16}, nil
}

func (p *Pool) Workers() int { return p.workers }

// SetMinChunk sets the smallest range handed to a single job.
func (p *Pool) SetMinChunk(n int) {
	if n < 1 {
		n = 1
	}
	p.minChunk = n
}

// For executes fn in parallel over [0, n) in contiguous chunks.
// Each index is visited by exactly one job.
func (p *Pool) For(n int, fn func(start, end int)) {
	_ = p.ForErr(n, func(start, end int) error {
		fn(start, end)
		return nil
	})
}

// ForErr is For with error propagation. The first error is returned after
// every job has finished.
func (p *Pool) ForErr(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	workers := p.workers
	if n/p.minChunk < workers {
		workers = n / p.minChunk
	}
	if workers <= 1 {
		return fn(0, n)
	}

	chunkSize := (n + workers - 1) / workers

	var g errgroup.Group
	g.SetLimit(p.workers)
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := min(start+chunkSize, n)
		if start >= end {
			break
		}
		g.Go(func() error { return fn(start, end) })
	}
	return g.Wait()
}
