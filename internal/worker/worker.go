// Package worker provides the two parallelism primitives used for bulk
// processing: effective worker count resolution and a bounded row pool with
// per-row failure isolation. The two parallelism axes (row-level within one
// file, file-level across files) are never nested; when files run in
// parallel, per-file row processing is forced to a single worker.
package worker

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"casewise/internal/logging"
)

// EffectiveWorkers resolves the row-level worker count. When top-level units
// (files) are already running in parallel, row processing is forced to a
// single worker to avoid oversubscription. Otherwise a non-positive request
// means all available cores.
func EffectiveWorkers(requested int, fileParallel bool) int {
	if fileParallel {
		return 1
	}
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}

// Process runs fn for each index in [0, n) with at most workers goroutines.
// Row failures never abort the batch: each row's error (or recovered panic)
// lands in the returned slice at its index, nil on success. A canceled
// context marks all unstarted rows with the context error.
func Process(ctx context.Context, n, workers int, fn func(i int) error) []error {
	if workers < 1 {
		workers = 1
	}
	errs := make([]error, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}
		i := i
		g.Go(func() error {
			errs[i] = runRow(i, fn)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		logging.Workers("processed %d rows with %d workers, %d failed", n, workers, failed)
	}
	return errs
}

func runRow(i int, fn func(i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("row %d panicked: %v", i, r)
		}
	}()
	return fn(i)
}
