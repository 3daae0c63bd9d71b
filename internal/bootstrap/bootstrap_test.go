package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestApp_Run(t *testing.T) {
	t.Run("hooks run after run returns", func(t *testing.T) {
		app := New()
		closed := false
		app.AddCloser("store", closerFunc(func() error {
			closed = true
			return nil
		}))

		err := app.Run(context.Background(), func(ctx context.Context) error {
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, closed)
	})

	t.Run("run error is returned with hook errors", func(t *testing.T) {
		app := New()
		runErr := errors.New("listen failed")
		hookErr := errors.New("close failed")
		app.AddShutdownHook("store", func(ctx context.Context) error { return hookErr })

		err := app.Run(context.Background(), func(ctx context.Context) error {
			return runErr
		})
		assert.ErrorIs(t, err, runErr)
		assert.ErrorIs(t, err, hookErr)
	})

	t.Run("hooks run last registered first on cancel", func(t *testing.T) {
		app := New()
		var (
			mu    sync.Mutex
			order []string
		)
		for _, name := range []string{"store", "metrics", "server"} {
			app.AddShutdownHook(name, func(ctx context.Context) error {
				mu.Lock()
				defer mu.Unlock()
				order = append(order, name)
				return nil
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		err := app.Run(ctx, func(ctx context.Context) error {
			cancel()
			<-ctx.Done()
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"server", "metrics", "store"}, order)
	})

	t.Run("hooks get a bounded context", func(t *testing.T) {
		app := New(WithShutdownTimeout(50 * time.Millisecond))
		app.AddShutdownHook("server", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

		err := app.Run(context.Background(), func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
