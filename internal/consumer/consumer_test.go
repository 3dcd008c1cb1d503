package consumer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

type stubProcessor struct {
	triggers []processing.Trigger
	err      error
}

func (s *stubProcessor) ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error) {
	s.triggers = append(s.triggers, trigger)
	result := processing.Result{RunID: uuid.New(), OrderID: trigger.OrderID, Outcome: processing.OutcomeCompleted}
	if s.err != nil {
		result.Outcome = processing.OutcomeFailed
	}
	return result, s.err
}

type memoryStore struct {
	values map[string]string
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	return m.values[key], nil
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.setErr != nil {
		return false, m.setErr
	}
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func newTestConsumer(t *testing.T, proc processor, store *memoryStore) (*Consumer, *bytes.Buffer) {
	t.Helper()
	guard, err := NewIdempotencyGuard(store, time.Hour, DeliveryScope)
	require.NoError(t, err)
	var buf bytes.Buffer
	return &Consumer{
		processor: proc,
		guard:     guard,
		validate:  validator.New(),
		logg:      logger.New(logger.Options{ServiceName: "consumer-test", Output: &buf}),
	}, &buf
}

func TestProcessRunsOrderAndMarksDelivery(t *testing.T) {
	proc := &stubProcessor{}
	store := newMemoryStore()
	c, _ := newTestConsumer(t, proc, store)

	result := c.process(context.Background(), delivery{
		id:         "msg-1",
		data:       []byte(`{"order_id":" 1001 ","topic":"orders/updated"}`),
		attributes: map[string]string{DeliveryIDAttribute: "hook-9"},
	})

	assert.Equal(t, processResult{ack: true}, result)
	require.Len(t, proc.triggers, 1)
	assert.Equal(t, "1001", proc.triggers[0].OrderID)
	assert.Equal(t, enums.TriggerSourceWebhook, proc.triggers[0].Source)
	assert.Equal(t, "hook-9", proc.triggers[0].DeliveryID)
	assert.Contains(t, store.values, "idempotency:order-events:hook-9")
}

func TestProcessAcksDuplicateDelivery(t *testing.T) {
	proc := &stubProcessor{}
	store := newMemoryStore()
	c, _ := newTestConsumer(t, proc, store)
	d := delivery{id: "msg-1", data: []byte(`{"order_id":"1001"}`)}

	assert.Equal(t, processResult{ack: true}, c.process(context.Background(), d))
	assert.Equal(t, processResult{ack: true}, c.process(context.Background(), d))
	assert.Len(t, proc.triggers, 1)
}

func TestProcessAcksPoisonMessages(t *testing.T) {
	cases := map[string]string{
		"not json":           `{order`,
		"missing order id":   `{"topic":"orders/create"}`,
		"force without user": `{"order_id":"1001","force_repick":true}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			proc := &stubProcessor{}
			c, _ := newTestConsumer(t, proc, newMemoryStore())
			result := c.process(context.Background(), delivery{id: "msg", data: []byte(body)})
			assert.Equal(t, processResult{ack: true}, result)
			assert.Empty(t, proc.triggers)
		})
	}
}

func TestProcessForceRepickUsesOperatorSource(t *testing.T) {
	proc := &stubProcessor{}
	c, _ := newTestConsumer(t, proc, newMemoryStore())

	c.process(context.Background(), delivery{id: "msg", data: []byte(`{"order_id":"7","force_repick":true,"operator":"dana"}`)})

	require.Len(t, proc.triggers, 1)
	assert.True(t, proc.triggers[0].ForceRepick)
	assert.Equal(t, "dana", proc.triggers[0].Operator)
	assert.Equal(t, enums.TriggerSourceOperator, proc.triggers[0].Source)
}

func TestProcessRetryableFailureNacksAndClearsKey(t *testing.T) {
	proc := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeDependency, "storefront down")}
	store := newMemoryStore()
	c, buf := newTestConsumer(t, proc, store)

	result := c.process(context.Background(), delivery{id: "msg-2", data: []byte(`{"order_id":"1001"}`)})

	assert.Equal(t, processResult{nack: true}, result)
	assert.Empty(t, store.values)
	assert.Contains(t, buf.String(), "order processing failed")
}

func TestProcessPermanentFailureAcks(t *testing.T) {
	proc := &stubProcessor{err: pkgerrors.New(pkgerrors.CodeValidation, "bad order")}
	store := newMemoryStore()
	c, _ := newTestConsumer(t, proc, store)

	result := c.process(context.Background(), delivery{id: "msg-3", data: []byte(`{"order_id":"1001"}`)})

	assert.Equal(t, processResult{ack: true}, result)
	assert.Empty(t, store.values)
}

func TestProcessNacksWhenGuardUnavailable(t *testing.T) {
	proc := &stubProcessor{}
	store := newMemoryStore()
	store.setErr = errors.New("redis down")
	c, _ := newTestConsumer(t, proc, store)

	result := c.process(context.Background(), delivery{id: "msg-4", data: []byte(`{"order_id":"1001"}`)})

	assert.Equal(t, processResult{nack: true}, result)
	assert.Empty(t, proc.triggers)
}

func TestNewIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, DeliveryScope)
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), -time.Second, DeliveryScope)
	assert.Error(t, err)
	_, err = NewIdempotencyGuard(newMemoryStore(), time.Hour, "")
	assert.Error(t, err)
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(nil, nil, nil, nil)
	assert.Error(t, err)
}
