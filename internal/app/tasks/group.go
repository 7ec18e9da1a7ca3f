package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultTimeout = 15 * time.Second

// Group runs detached side effects such as push and email delivery. A task
// outlives the request that started it, is bounded by Timeout, and reports
// failures only to the logger.
type Group struct {
	Logger  *slog.Logger
	Timeout time.Duration

	wg sync.WaitGroup
}

// Go starts fn in the background. The parent's values are kept but its
// cancellation is not.
func (g *Group) Go(parent context.Context, name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	if parent == nil {
		parent = context.Background()
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil && g.Logger != nil {
				g.Logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.timeout())
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			if g.Logger != nil {
				g.Logger.Warn("background task failed", "task", name, "duration", time.Since(start), "error", err)
			}
			return
		}
		if g.Logger != nil {
			g.Logger.Debug("background task done", "task", name, "duration", time.Since(start))
		}
	}()
}

// Wait blocks until all tasks finish or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Group) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return defaultTimeout
}
