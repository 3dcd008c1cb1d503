package locks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/db/models"
)

// StaleAfter is how long an order lock is honored without a release.
const StaleAfter = 5 * time.Minute

var errOrderIDRequired = errors.New("order id is required")

// OrderLock is a per-order advisory mutex stored as one row per order.
// Acquire never blocks: contention is reported as false.
type OrderLock struct {
	db    *gorm.DB
	clock clock.Clock
}

// NewOrderLock builds an order lock backed by the order_locks table.
func NewOrderLock(conn *gorm.DB, clk clock.Clock) (*OrderLock, error) {
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &OrderLock{db: conn, clock: clk}, nil
}

// Acquire upserts the lock row when none exists or the existing one is older
// than StaleAfter. Each successful acquire is tagged with a fresh owner token,
// which the caller passes back to Release.
func (l *OrderLock) Acquire(ctx context.Context, orderID string) (owner string, ok bool, err error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", false, errOrderIDRequired
	}
	owner = uuid.NewString()
	now := l.clock.Now()
	res := l.db.WithContext(ctx).Exec(`
INSERT INTO order_locks (order_id, owner, acquired_at)
VALUES (?, ?, ?)
ON CONFLICT (order_id) DO UPDATE
SET owner = excluded.owner, acquired_at = excluded.acquired_at
WHERE order_locks.acquired_at < ?`,
		orderID, owner, now, now.Add(-StaleAfter),
	)
	if res.Error != nil {
		return "", false, fmt.Errorf("acquire order lock: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}
	return owner, true, nil
}

// Release deletes the lock row if owner still holds it. A row taken over
// after going stale belongs to the newer holder and is left alone.
func (l *OrderLock) Release(ctx context.Context, orderID, owner string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errOrderIDRequired
	}
	if err := l.db.WithContext(ctx).
		Where("order_id = ? AND owner = ?", orderID, owner).
		Delete(&models.OrderLock{}).Error; err != nil {
		return fmt.Errorf("release order lock: %w", err)
	}
	return nil
}

// Do runs fn while holding the lock for orderID. The lock is released on
// every exit path, including panics and a canceled ctx. acquired is false
// when another run holds the lock; fn is not called in that case.
func (l *OrderLock) Do(ctx context.Context, orderID string, fn func(context.Context) error) (acquired bool, err error) {
	owner, ok, err := l.Acquire(ctx, orderID)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		relErr := l.Release(context.WithoutCancel(ctx), orderID, owner)
		if err == nil {
			err = relErr
		}
	}()
	return true, fn(ctx)
}

// SweepStale deletes lock rows older than the staleness window.
func (l *OrderLock) SweepStale(ctx context.Context) (int64, error) {
	cutoff := l.clock.Now().Add(-StaleAfter)
	res := l.db.WithContext(ctx).
		Where("acquired_at < ?", cutoff).
		Delete(&models.OrderLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep stale order locks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Held reports whether a live lock exists for any of the given orders.
func (l *OrderLock) Held(ctx context.Context, orderIDs ...string) (bool, error) {
	if len(orderIDs) == 0 {
		return false, nil
	}
	var count int64
	if err := l.db.WithContext(ctx).
		Model(&models.OrderLock{}).
		Where("order_id IN ? AND acquired_at >= ?", orderIDs, l.clock.Now().Add(-StaleAfter)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check order locks: %w", err)
	}
	return count > 0, nil
}
