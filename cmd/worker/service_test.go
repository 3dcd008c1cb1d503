package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

type okDep struct{ err error }

func (d okDep) Ping(context.Context) error { return d.err }

type blockingConsumer struct{ started chan struct{} }

func (c *blockingConsumer) Run(ctx context.Context) error {
	close(c.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{}

func (failingConsumer) Run(context.Context) error { return errors.New("subscription deleted") }

type noopProcessor struct{}

func (noopProcessor) ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error) {
	return processing.Result{OrderID: trigger.OrderID, Outcome: processing.OutcomeCompleted}, nil
}

func newTestService(t *testing.T, c runner, db dependency) (*Service, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{App: config.AppConfig{Env: "dev", Port: "0"}},
		Logger:    logger.New(logger.Options{ServiceName: "worker-test", Output: &bytes.Buffer{}}),
		DB:        db,
		Redis:     okDep{},
		PubSub:    okDep{},
		Consumer:  c,
		Processor: noopProcessor{},
		Gatherer:  prometheus.NewRegistry(),
		Listener:  ln,
	})
	require.NoError(t, err)
	return svc, "http://" + ln.Addr().String()
}

func TestServiceServesOpsUntilCanceled(t *testing.T) {
	c := &blockingConsumer{started: make(chan struct{})}
	svc, base := newTestService(t, c, okDep{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	<-c.started

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(base + "/health/live")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestServiceReturnsConsumerFailure(t *testing.T) {
	svc, _ := newTestService(t, failingConsumer{}, okDep{})
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription deleted")
}

func TestServiceFailsReadiness(t *testing.T) {
	svc, _ := newTestService(t, failingConsumer{}, okDep{err: errors.New("db down")})
	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database ping failed")
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}
