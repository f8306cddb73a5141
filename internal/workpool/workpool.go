// Package workpool runs bounded fan-out over a slice of work items.
package workpool

import (
	"context"
	"sync"
)

// Run feeds items to at most threads workers. Once ctx is done no further
// items are handed out; items already picked up run to completion with a
// context that keeps ctx's values but not its cancellation, so every task
// is bounded only by its own timeout.
func Run[T any](
	ctx context.Context,
	items []T,
	threads int,
	fn func(context.Context, T),
) {
	if len(items) == 0 {
		return
	}
	taskCtx := context.WithoutCancel(ctx)

	if threads < 1 || len(items) == 1 {
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			fn(taskCtx, item)
		}
		return
	}

	if threads > len(items) {
		threads = len(items)
	}

	ch := make(chan T)
	var wg sync.WaitGroup

	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range ch {
				fn(taskCtx, item)
			}
		}()
	}

feed:
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case ch <- item:
		}
	}
	close(ch)
	wg.Wait()
}

// Collect is Run for tasks that produce output. Results are gathered in
// completion order; ok=false drops the result.
func Collect[T, R any](
	ctx context.Context,
	items []T,
	threads int,
	fn func(context.Context, T) (R, bool),
) []R {
	var (
		mu  sync.Mutex
		out []R
	)
	Run(ctx, items, threads, func(ctx context.Context, item T) {
		res, ok := fn(ctx, item)
		if !ok {
			return
		}
		mu.Lock()
		out = append(out, res)
		mu.Unlock()
	})
	return out
}
