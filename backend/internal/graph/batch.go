package graph

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBatch calls fn once for every index in [0, n) with at most limit calls in
// flight. Callers write results into index slots so input order survives
// out-of-order completion. The first error cancels items that have not started;
// items already applied stay applied.
func RunBatch(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	started := 0
	for i := 0; i < n && gctx.Err() == nil; i++ {
		started++
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if started < n {
		return ctx.Err()
	}
	return nil
}

// Applied returns the slots marked done, in index order. Batch writes use it
// to report the items that reached the store when the batch fails part way.
func Applied[T any](slots []T, done []bool) []T {
	applied := make([]T, 0, len(slots))
	for i, v := range slots {
		if done[i] {
			applied = append(applied, v)
		}
	}
	return applied
}
