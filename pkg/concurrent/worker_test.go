package concurrent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool(t *testing.T) {
	t.Run("results keep job order", func(t *testing.T) {
		pool := NewWorkerPool(4, func(_ context.Context, job int) (int, error) {
			return job * job, nil
		})
		jobs := []int{1, 2, 3, 4, 5, 6, 7, 8}
		results, err := pool.Process(context.Background(), jobs)
		require.NoError(t, err)
		assert.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64}, results)
	})

	t.Run("first error cancels the pool", func(t *testing.T) {
		sentinel := errors.New("bad job")
		pool := NewWorkerPool(2, func(_ context.Context, job int) (int, error) {
			if job == 3 {
				return 0, sentinel
			}
			return job, nil
		})
		_, err := pool.Process(context.Background(), []int{1, 2, 3, 4, 5})
		assert.ErrorIs(t, err, sentinel)
	})

	t.Run("empty job slice", func(t *testing.T) {
		pool := NewWorkerPool(2, func(_ context.Context, job int) (int, error) {
			return job, nil
		})
		results, err := pool.Process(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
