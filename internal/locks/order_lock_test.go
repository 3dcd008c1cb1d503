package locks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:locks_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OrderLock{}))
	return conn
}

func newLock(t *testing.T, conn *gorm.DB, clk *stepClock) *OrderLock {
	t.Helper()
	lock, err := NewOrderLock(conn, clk)
	require.NoError(t, err)
	return lock
}

func TestAcquireRejectsLiveLock(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	first := newLock(t, conn, clk)
	second := newLock(t, conn, clk)
	ctx := context.Background()

	_, ok, err := first.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = first.Acquire(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok, "re-acquire right after acquire must fail")

	clk.advance(StaleAfter - time.Second)
	_, ok, err = second.Acquire(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, ok, "lock inside the staleness window is live")

	_, ok, err = second.Acquire(ctx, "order-2")
	require.NoError(t, err)
	assert.True(t, ok, "locks are per order")
}

func TestAcquireTakesOverStaleLock(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	first := newLock(t, conn, clk)
	second := newLock(t, conn, clk)
	ctx := context.Background()

	firstOwner, ok, err := first.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	clk.advance(StaleAfter + time.Second)
	secondOwner, ok, err := second.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	// The original holder no longer owns the row.
	require.NoError(t, first.Release(ctx, "order-1", firstOwner))
	held, err := second.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, second.Release(ctx, "order-1", secondOwner))
	held, err = second.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestReleaseAllowsImmediateReacquire(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	lock := newLock(t, conn, clk)
	ctx := context.Background()

	owner, ok, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(ctx, "order-1", owner))

	_, ok, err = lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleReleaseOnSameInstanceKeepsNewHolder(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	lock := newLock(t, conn, clk)
	ctx := context.Background()

	stale, ok, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	clk.advance(StaleAfter + time.Second)
	fresh, ok, err := lock.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, stale, fresh)

	// A slow first run finishing late must not free the second run's lock.
	require.NoError(t, lock.Release(ctx, "order-1", stale))
	held, err := lock.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.True(t, held)

	var row models.OrderLock
	require.NoError(t, conn.First(&row, "order_id = ?", "order-1").Error)
	assert.Equal(t, fresh, row.Owner)

	require.NoError(t, lock.Release(ctx, "order-1", fresh))
	held, err = lock.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDoReleasesOnError(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	lock := newLock(t, conn, clk)
	ctx := context.Background()
	boom := errors.New("boom")

	calls := 0
	acquired, err := lock.Do(ctx, "order-1", func(context.Context) error {
		calls++
		held, herr := lock.Held(ctx, "order-1")
		require.NoError(t, herr)
		assert.True(t, held)
		return boom
	})
	assert.True(t, acquired)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	held, err := lock.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDoReleasesOnPanic(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	lock := newLock(t, conn, clk)
	ctx := context.Background()

	assert.Panics(t, func() {
		_, _ = lock.Do(ctx, "order-1", func(context.Context) error {
			panic("storefront exploded")
		})
	})

	held, err := lock.Held(ctx, "order-1")
	require.NoError(t, err)
	assert.False(t, held)
}

func TestDoSkipsWhenHeld(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	holder := newLock(t, conn, clk)
	other := newLock(t, conn, clk)
	ctx := context.Background()

	_, ok, err := holder.Acquire(ctx, "order-1")
	require.NoError(t, err)
	require.True(t, ok)

	called := false
	acquired, err := other.Do(ctx, "order-1", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, called)
}

func TestSweepStale(t *testing.T) {
	conn := newTestDB(t)
	clk := &stepClock{now: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)}
	lock := newLock(t, conn, clk)
	ctx := context.Background()

	_, _, err := lock.Acquire(ctx, "order-old")
	require.NoError(t, err)
	clk.advance(StaleAfter + time.Minute)
	_, _, err = lock.Acquire(ctx, "order-new")
	require.NoError(t, err)

	swept, err := lock.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), swept)

	var remaining []models.OrderLock
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "order-new", remaining[0].OrderID)
}

func TestAcquireRequiresOrderID(t *testing.T) {
	conn := newTestDB(t)
	lock := newLock(t, conn, &stepClock{now: time.Now().UTC()})
	_, _, err := lock.Acquire(context.Background(), " ")
	assert.Error(t, err)
}
