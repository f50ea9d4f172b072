// Package loop runs a task repeatedly until it breaks or the context is done.
//
// Example: drain a queue until it is closed.
//
//	done, err := loop.Start(ctx, 0, func(ctx context.Context, n int) (int, loop.Next) {
//		select {
//		case <-ctx.Done():
//			return n, loop.Break(ctx.Err())
//		case job, ok := <-queue:
//			if !ok {
//				return n, loop.Break(nil)
//			}
//			job.Do(ctx)
//			return n + 1, loop.Continue(0)
//		}
//	})
package loop

import (
	"context"
	"fmt"
	"time"
)

// Next tells Start what to do after a task returns.
//
// Zero value is Continue(0).
type Next struct {
	err      error
	quit     bool
	interval time.Duration
}

func (n Next) String() string {
	if n.err != nil {
		return fmt.Sprintf("[break] with error: %v", n.err)
	}
	if n.quit {
		return "[break] without error"
	}
	return fmt.Sprintf("[continue] interval: %s", n.interval)
}

// Continue runs the task again after interval.
func Continue(interval time.Duration) Next {
	return Next{interval: interval}
}

// Break stops the loop. err can be nil.
func Break(err error) Next {
	return Next{quit: true, err: err}
}

// Task receives the value it has returned last time, or the initial value.
type Task[T any] func(context.Context, T) (T, Next)

// Start calls task in loop, passing the value it returned the previous time.
//
// Args
//
// - ctx: when it is done, the loop stops with ctx.Err().
// Interval waits are interrupted, but running tasks are not.
//
// - init: value passed to the first call of task.
//
// - task
//
// - options
//
// Returns
//
// - T: the last value. It is returned even when error is not nil.
//
// - error: error passed to Break, or ctx.Err().
func Start[T any](ctx context.Context, init T, task Task[T], options ...LoopOption) (T, error) {
	if err := ctx.Err(); err != nil {
		return init, err
	}

	value := init
	for {
		lc := &loopConfig{ctx: ctx}
		for _, opt := range options {
			lc = opt(lc)
		}

		v, n := call(lc, task, value)
		if n.err != nil {
			return v, n.err
		}
		if n.quit {
			return v, nil
		}
		value = v

		timer := time.NewTimer(n.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return value, ctx.Err()
		case <-timer.C:
		}
	}
}

type loopConfig struct {
	ctx      context.Context
	deferred func()
}

func call[T any](lc *loopConfig, task Task[T], value T) (T, Next) {
	if lc.deferred != nil {
		defer lc.deferred()
	}
	return task(lc.ctx, value)
}

type LoopOption func(*loopConfig) *loopConfig

// WithTimeout sets timeout on the context passed to each call of the task.
func WithTimeout(d time.Duration) LoopOption {
	return func(lc *loopConfig) *loopConfig {
		ctx, cancel := context.WithTimeout(lc.ctx, d)
		return &loopConfig{
			ctx: ctx,
			deferred: func() {
				if lc.deferred != nil {
					defer lc.deferred()
				}
				cancel()
			},
		}
	}
}
