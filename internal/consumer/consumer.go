package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
)

// DeliveryIDAttribute carries the storefront webhook delivery id.
const DeliveryIDAttribute = "delivery_id"

// OrderEvent is the message body published for every storefront order
// webhook the edge accepted.
type OrderEvent struct {
	OrderID     string `json:"order_id" validate:"required,max=255"`
	Topic       string `json:"topic" validate:"omitempty,max=64"`
	ForceRepick bool   `json:"force_repick"`
	Operator    string `json:"operator" validate:"required_if=ForceRepick true,max=255"`
}

type processor interface {
	ProcessOrder(ctx context.Context, trigger processing.Trigger) (processing.Result, error)
}

type deliveryGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Delete(ctx context.Context, deliveryID string) error
}

// Consumer turns order events into processing runs.
type Consumer struct {
	processor    processor
	subscription *pubsub.Subscriber
	guard        deliveryGuard
	validate     *validator.Validate
	logg         *logger.Logger
}

// NewConsumer builds an order event consumer.
func NewConsumer(proc processor, subscription *pubsub.Subscriber, guard deliveryGuard, logg *logger.Logger) (*Consumer, error) {
	if proc == nil {
		return nil, fmt.Errorf("order processor required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("order events subscription required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		processor:    proc,
		subscription: subscription,
		guard:        guard,
		validate:     validator.New(),
		logg:         logg,
	}, nil
}

// Run starts the receive loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, delivery{id: msg.ID, data: msg.Data, attributes: msg.Attributes})
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type delivery struct {
	id         string
	data       []byte
	attributes map[string]string
}

func (d delivery) deliveryID() string {
	if id := strings.TrimSpace(d.attributes[DeliveryIDAttribute]); id != "" {
		return id
	}
	return d.id
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, d delivery) processResult {
	deliveryID := d.deliveryID()
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id":  d.id,
		"delivery_id": deliveryID,
	})

	var event OrderEvent
	if err := json.Unmarshal(d.data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode order event", err)
		return processResult{ack: true}
	}
	event.OrderID = strings.TrimSpace(event.OrderID)
	if err := c.validate.Struct(event); err != nil {
		c.logg.Error(logCtx, "invalid order event", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validate order event"))
		return processResult{ack: true}
	}
	logCtx = c.logg.WithOrderID(logCtx, event.OrderID)
	if event.Topic != "" {
		logCtx = c.logg.WithField(logCtx, "topic", event.Topic)
	}

	if deliveryID != "" {
		already, err := c.guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			c.logg.Error(logCtx, "idempotency check failed", err)
			return processResult{nack: true}
		}
		if already {
			c.logg.Info(logCtx, "delivery already processed")
			return processResult{ack: true}
		}
	}

	source := enums.TriggerSourceWebhook
	if event.ForceRepick {
		source = enums.TriggerSourceOperator
	}
	result, err := c.processor.ProcessOrder(ctx, processing.Trigger{
		OrderID:     event.OrderID,
		Source:      source,
		ForceRepick: event.ForceRepick,
		Operator:    event.Operator,
		DeliveryID:  deliveryID,
	})
	if err != nil {
		c.logg.Error(c.logg.WithRunID(logCtx, result.RunID.String()), "order processing failed", err)
		if deliveryID != "" {
			if delErr := c.guard.Delete(ctx, deliveryID); delErr != nil {
				c.logg.Error(logCtx, "failed to clear delivery key", delErr)
			}
		}
		if pkgerrors.IsRetryable(err) {
			return processResult{nack: true}
		}
		return processResult{ack: true}
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"run_id":  result.RunID.String(),
		"outcome": string(result.Outcome),
	}), "order event processed")
	return processResult{ack: true}
}
