package models

import "time"

// OrderLock marks an order as being processed.
type OrderLock struct {
	OrderID    string    `gorm:"column:order_id;primaryKey"`
	Owner      string    `gorm:"column:owner;not null"`
	AcquiredAt time.Time `gorm:"column:acquired_at;not null"`
}

func (OrderLock) TableName() string { return "order_locks" }
