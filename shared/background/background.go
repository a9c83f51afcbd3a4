// Package background runs work that must outlive the request that started
// it, such as cache invalidation and event publishing.
package background

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Runner interface {
	// Go schedules fn. The context passed to fn keeps the caller's values
	// but is never cancelled with it.
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
	// Wait blocks until scheduled work drains or ctx is done.
	Wait(ctx context.Context) error
}

type asyncRunner struct {
	wg sync.WaitGroup
}

func New() Runner {
	return &asyncRunner{}
}

func (r *asyncRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	c := context.WithoutCancel(ctx)

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		run(c, name, fn)
	}()
}

func (r *asyncRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type inlineRunner struct{}

// Inline returns a Runner that executes work on the calling goroutine.
func Inline() Runner {
	return inlineRunner{}
}

func (inlineRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	run(context.WithoutCancel(ctx), name, fn)
}

func (inlineRunner) Wait(_ context.Context) error {
	return nil
}

func run(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("task", name).Interface("panic", rec).Msg("background task panicked")
		}
	}()

	start := time.Now()

	if err := fn(ctx); err != nil {
		log.Error().Err(err).Str("task", name).Dur("elapsed", time.Since(start)).Msg("background task failed")

		return
	}

	log.Debug().Str("task", name).Dur("elapsed", time.Since(start)).Msg("background task finished")
}
