package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"citizen-reporting-system/pkg/models"
)

// ReportsExchange carries every report event, routed by topic.
const ReportsExchange = "reports"

func ConnectRabbitMQ(uri string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return conn, ch, nil
}

// DeclareReportTopics declares the reports exchange and a queue private to
// this connection, bound to the four report topics. Every service instance
// gets its own copy of each event.
func DeclareReportTopics(ch *amqp.Channel) (string, error) {
	err := ch.ExchangeDeclare(ReportsExchange, "topic", true, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range models.Topics {
		if err := ch.QueueBind(q.Name, key, ReportsExchange, false, nil); err != nil {
			return "", fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return q.Name, nil
}

// ConsumeMessages starts an exclusive auto-ack consumer on queueName.
func ConsumeMessages(ch *amqp.Channel, queueName string) (<-chan amqp.Delivery, error) {
	msgs, err := ch.Consume(queueName, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}
