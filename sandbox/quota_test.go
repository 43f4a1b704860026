package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestQuotaAlloc(t *testing.T) {
	q := NewQuota(100, zaptest.NewLogger(t))

	called := false
	require.NoError(t, q.Alloc(60, func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, int64(40), q.Remaining())
	assert.Equal(t, int64(60), q.Used())
	assert.Equal(t, int64(100), q.Limit())
}

func TestQuotaRefusal(t *testing.T) {
	q := NewQuota(100, zaptest.NewLogger(t))
	require.NoError(t, q.Alloc(90, nil))

	called := false
	err := q.Alloc(11, func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.False(t, called, "refused allocation must not reach the allocator")
	assert.Equal(t, int64(10), q.Remaining())

	// Exactly the remaining budget still fits.
	require.NoError(t, q.Alloc(10, nil))
	assert.Equal(t, int64(0), q.Remaining())
}

func TestQuotaFreeCreditsExactly(t *testing.T) {
	q := NewQuota(100, nil)
	require.NoError(t, q.Alloc(30, nil))
	require.NoError(t, q.Alloc(20, nil))

	q.Free(20)
	assert.Equal(t, int64(70), q.Remaining())
	q.Free(30)
	assert.Equal(t, int64(100), q.Remaining())
}

func TestQuotaRealloc(t *testing.T) {
	q := NewQuota(100, nil)
	require.NoError(t, q.Alloc(40, nil))

	t.Run("Grow", func(t *testing.T) {
		require.NoError(t, q.Realloc(40, 50, nil))
		assert.Equal(t, int64(50), q.Remaining())
	})

	t.Run("Shrink", func(t *testing.T) {
		require.NoError(t, q.Realloc(50, 10, nil))
		assert.Equal(t, int64(90), q.Remaining())
	})

	t.Run("GrowBeyondBudget", func(t *testing.T) {
		err := q.Realloc(10, 101, nil)
		require.ErrorIs(t, err, ErrQuotaExceeded)
		assert.Equal(t, int64(90), q.Remaining())
	})

	t.Run("AllocatorFailure", func(t *testing.T) {
		boom := errors.New("boom")
		err := q.Realloc(10, 20, func() error { return boom })
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int64(90), q.Remaining())
	})

	t.Run("Free", func(t *testing.T) {
		freed := false
		require.NoError(t, q.Realloc(10, 0, func() error {
			freed = true
			return nil
		}))
		assert.True(t, freed)
		assert.Equal(t, int64(100), q.Remaining())
	})
}

func TestQuotaOverdraw(t *testing.T) {
	q := NewQuota(100, zaptest.NewLogger(t))
	require.NoError(t, q.Alloc(90, nil))

	called := false
	require.NoError(t, q.Overdraw(0, 30, func() error {
		called = true
		return nil
	}))
	assert.True(t, called, "overdraw never refuses")
	assert.Equal(t, int64(-20), q.Remaining())

	err := q.Alloc(1, nil)
	require.ErrorIs(t, err, ErrQuotaExceeded, "an overdrawn quota refuses further growth")

	require.NoError(t, q.Realloc(30, 0, nil))
	assert.Equal(t, int64(10), q.Remaining())

	boom := errors.New("boom")
	require.ErrorIs(t, q.Overdraw(0, 5, func() error { return boom }), boom)
	assert.Equal(t, int64(10), q.Remaining())
}
