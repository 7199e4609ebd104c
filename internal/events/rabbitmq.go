package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange scheduling events are exported to.
const DefaultExchange = "truckpe.scheduling"

// RabbitPublisher forwards domain events to a RabbitMQ topic exchange as JSON.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	ch       *amqp091.Channel
	exchange string
	mu       sync.Mutex
}

// ConnectRabbit dials the broker, retrying while it is still starting up.
func ConnectRabbit(url, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	var conn *amqp091.Connection
	var err error
	for i := 0; i < 10; i++ {
		conn, err = amqp091.Dial(url)
		if err == nil {
			break
		}
		log.Printf("⚠️  RabbitMQ not ready, retrying... (%d/10)", i+1)
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	log.Printf("✅ RabbitMQ connected, exporting events to %s", exchange)
	return &RabbitPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Handle is a bus Handler that publishes e with its type as routing key.
func (p *RabbitPublisher) Handle(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.OccurredAt,
		Body:         body,
	})
}

// Close shuts the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		log.Printf("❌ Failed to close RabbitMQ channel: %v", err)
	}
	return p.conn.Close()
}
