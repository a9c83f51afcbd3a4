package background_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mlaku/shared/background"
)

func TestAsyncRunner_OutlivesCallerContext(t *testing.T) {
	runner := background.New()

	ctx, cancel := context.WithCancel(context.Background())

	var cancelled atomic.Bool

	release := make(chan struct{})

	runner.Go(ctx, "sample", func(c context.Context) error {
		<-release
		cancelled.Store(c.Err() != nil)

		return nil
	})

	cancel()
	close(release)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()

	require.NoError(t, runner.Wait(waitCtx))
	assert.False(t, cancelled.Load())
}

func TestAsyncRunner_WaitHonoursDeadline(t *testing.T) {
	runner := background.New()
	block := make(chan struct{})
	defer close(block)

	runner.Go(context.Background(), "blocked", func(context.Context) error {
		<-block

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, runner.Wait(ctx), context.DeadlineExceeded)
}

func TestInlineRunner(t *testing.T) {
	runner := background.Inline()
	calls := 0

	runner.Go(context.Background(), "count", func(context.Context) error {
		calls++

		return errors.New("logged, not returned")
	})

	runner.Go(context.Background(), "panics", func(context.Context) error {
		panic("recovered")
	})

	assert.Equal(t, 1, calls)
	assert.NoError(t, runner.Wait(context.Background()))
}
