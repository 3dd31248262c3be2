// Package events publishes auth and billing events to RabbitMQ. Publishing is best
// effort: failures are logged and never propagate to the request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event types, also used as routing keys.
const (
	SessionIssued        = "session.issued"
	SessionRefreshed     = "session.refreshed"
	SessionRevoked       = "session.revoked"
	SessionTokenMismatch = "session.token_mismatch"
	SessionResumed       = "session.resumed"
	SubscriptionChanged  = "subscription.changed"
)

// Event is the JSON body of a published message.
type Event struct {
	Type       string         `json:"type"`
	AccountID  int64          `json:"account_id,omitempty"`
	UserID     int64          `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher emits events.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) {}

// AMQPPublisher publishes persistent JSON messages to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("opening amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, exchange: exchange, ch: ch}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(e)
	if err != nil {
		slog.Error("failed to marshal event", "type", e.Type, "error", err)
		return
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         e.Type,
		Body:         body,
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, e.Type, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		slog.Warn("failed to publish event", "type", e.Type, "error", err)
	}
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}
