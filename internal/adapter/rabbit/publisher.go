package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Temutjin2k/hust-run/internal/domain/models"
	"github.com/Temutjin2k/hust-run/internal/domain/types"
	wrap "github.com/Temutjin2k/hust-run/pkg/logger/wrapper"
	"github.com/Temutjin2k/hust-run/pkg/metrics"
)

const (
	ExchangeRunTopic = "run_topic"

	publishTimeout = 5 * time.Second
)

// Client is the part of pkg/rabbit the publisher needs.
type Client interface {
	DeclareExchange(ctx context.Context, name, kind string) error
	Publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error
}

// EventPublisher sends session lifecycle events to the run_topic exchange
// with routing key run.status.<session_id>.
type EventPublisher struct {
	client Client
}

func NewEventPublisher(ctx context.Context, client Client) (*EventPublisher, error) {
	if err := client.DeclareExchange(ctx, ExchangeRunTopic, amqp.ExchangeTopic); err != nil {
		return nil, fmt.Errorf("NewEventPublisher: %w", err)
	}
	return &EventPublisher{client: client}, nil
}

func RoutingKey(sessionID string) string {
	return "run.status." + sessionID
}

// Publish sends one lifecycle event.
func (p *EventPublisher) Publish(ctx context.Context, ev models.SessionEvent) error {
	const op = "EventPublisher.Publish"
	ctx = wrap.WithSessionID(wrap.WithAction(ctx, types.ActionPublishSessionEvent), ev.SessionID)

	body, err := json.Marshal(ev)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to marshal event: %w", op, err))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.client.Publish(ctx, ExchangeRunTopic, RoutingKey(ev.SessionID), amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Type:          ev.Type.String(),
		Body:          body,
		Timestamp:     ev.Timestamp,
		CorrelationId: wrap.FromContext(ctx).RequestID,
	})
	metrics.RecordRabbitMQPublish(ExchangeRunTopic, err)
	if err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: failed to publish: %w", op, err))
	}
	return nil
}
