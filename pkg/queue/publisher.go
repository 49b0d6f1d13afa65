package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"citizen-reporting-system/pkg/models"
)

const publishTimeout = 5 * time.Second

// Publisher is the part of *amqp.Channel that PublishEvent needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// EventMessage builds the persistent JSON message carrying ev.
func EventMessage(ev models.Event) (amqp.Publishing, error) {
	if err := ev.Validate(); err != nil {
		return amqp.Publishing{}, err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}, nil
}

// PublishEvent sends ev to the reports exchange under its topic's routing key.
func PublishEvent(ch Publisher, ev models.Event) error {
	msg, err := EventMessage(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, ReportsExchange, ev.Topic(), false, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Topic(), err)
	}
	return nil
}
