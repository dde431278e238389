package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTask(t *testing.T) {
	ran := false
	a := Task(func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, a.Do(context.Background()))
	assert.True(t, ran)

	boom := errors.New("boom")
	a = Task(func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, a.Do(context.Background()), boom)
}

func TestWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(time.Minute).Do(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	start := time.Now()
	require.NoError(t, Wait(5*time.Millisecond).Do(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)

	require.NoError(t, Wait(0).Do(ctx), "zero wait never blocks")
}

func TestBreakIf(t *testing.T) {
	hit := false
	a := BreakIf(func(ctx context.Context) bool { return hit })

	require.NoError(t, a.Do(context.Background()))

	hit = true
	assert.ErrorIs(t, a.Do(context.Background()), ErrBreak)
}
