package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// fanOut runs fn for every item with at most limit in flight. An item's error
// or panic is counted and never cancels or skips its siblings.
func fanOut[T any](ctx context.Context, limit int, items []T, fn func(context.Context, T) error) (successful, failed int) {
	var ok, bad atomic.Int64

	var g errgroup.Group
	g.SetLimit(limit)
	for _, item := range items {
		g.Go(func() error {
			if err := runItem(ctx, item, fn); err != nil {
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(ok.Load()), int(bad.Load())
}

func runItem[T any](ctx context.Context, item T, fn func(context.Context, T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("jobs.fanOut: item panicked", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
