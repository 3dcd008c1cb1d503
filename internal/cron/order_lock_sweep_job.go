package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

type lockSweeper interface {
	SweepStale(ctx context.Context) (int64, error)
}

type OrderLockSweepJobParams struct {
	Logger *logger.Logger
	Locks  lockSweeper
}

// NewOrderLockSweepJob removes order locks left behind by crashed workers.
func NewOrderLockSweepJob(params OrderLockSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("order locks required")
	}
	return &orderLockSweepJob{logg: params.Logger, locks: params.Locks}, nil
}

type orderLockSweepJob struct {
	logg  *logger.Logger
	locks lockSweeper
}

func (j *orderLockSweepJob) Name() string { return "order-lock-sweep" }

func (j *orderLockSweepJob) Run(ctx context.Context) error {
	swept, err := j.locks.SweepStale(ctx)
	if err != nil {
		return fmt.Errorf("order lock sweep: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "locks_swept", swept), "order lock sweep complete")
	return nil
}
