package compute

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_Default(t *testing.T) {
	t.Parallel()
	p := FromContext(context.Background())
	assert.Greater(t, p.Workers, 0)
	assert.Equal(t, 256, p.ChunkRows)
}

func TestWithPool_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := WithPool(context.Background(), Pool{Workers: 3, ChunkRows: 7})
	assert.Equal(t, Pool{Workers: 3, ChunkRows: 7}, FromContext(ctx))
}

func TestRows_CoversEveryRowOnce(t *testing.T) {
	t.Parallel()
	ctx := WithPool(context.Background(), Pool{Workers: 4, ChunkRows: 3})

	var mu sync.Mutex
	seen := make([]int, 10)
	err := Rows(ctx, 10, func(r0, r1 int) error {
		mu.Lock()
		defer mu.Unlock()
		for r := r0; r < r1; r++ {
			seen[r]++
		}
		return nil
	})
	require.NoError(t, err)
	for r, n := range seen {
		assert.Equal(t, 1, n, "row %d", r)
	}
}

func TestRows_PropagatesError(t *testing.T) {
	t.Parallel()
	ctx := WithPool(context.Background(), Pool{Workers: 1, ChunkRows: 1})
	boom := errors.New("boom")
	err := Rows(ctx, 5, func(r0, r1 int) error {
		if r0 == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestRows_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Rows(ctx, 4, func(r0, r1 int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRows_EmptyHeight(t *testing.T) {
	t.Parallel()
	called := false
	err := Rows(context.Background(), 0, func(r0, r1 int) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestEach(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	sum := 0
	err := Each(context.Background(), 5, func(i int) error {
		mu.Lock()
		sum += i
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sum)
}

func TestEach_NestedRowsRunWithOneWorker(t *testing.T) {
	t.Parallel()
	ctx := WithPool(context.Background(), Pool{Workers: 1, ChunkRows: 2})
	var mu sync.Mutex
	rows := make([]int, 3)
	err := Each(ctx, 3, func(i int) error {
		return Rows(ctx, 5, func(r0, r1 int) error {
			mu.Lock()
			rows[i] += r1 - r0
			mu.Unlock()
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 5}, rows)
}
