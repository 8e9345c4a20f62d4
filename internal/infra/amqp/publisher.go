// Package amqp announces finished quiz sessions on a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trivia-service/internal/domain"

	"github.com/streadway/amqp"
)

// RoutingKeyCompleted is the routing key of session completion events.
const RoutingKeyCompleted = "quiz.completed"

type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type event struct {
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurredAt"`
	Payload    domain.SessionSummary `json:"payload"`
}

// Publisher implements recorder.Publisher.
type Publisher struct {
	conn     *amqp.Connection
	exchange string

	mu      sync.Mutex
	channel channel
}

// Dial connects and declares a durable topic exchange.
func Dial(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, exchange: exchange, channel: ch}, nil
}

func (p *Publisher) PublishCompleted(ctx context.Context, summary domain.SessionSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event{Type: RoutingKeyCompleted, OccurredAt: time.Now().UTC(), Payload: summary})
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.Publish(p.exchange, RoutingKeyCompleted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    summary.SessionID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
