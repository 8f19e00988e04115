// Package events publishes adjustment events to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

const (
	ExchangeName = "inventory_adjustments"
	ExchangeType = "topic"
)

// Channel is the part of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends every adjustment event as a JSON message.
type Publisher struct {
	ch Channel
}

// NewPublisher wraps ch.
func NewPublisher(ch Channel) *Publisher { return &Publisher{ch: ch} }

// Name identifies the publisher as a dispatcher sink.
func (p *Publisher) Name() string { return "amqp" }

// RoutingKey is adjustment.<kind>.<code>; dots in the code become
// underscores so they do not split topic words.
func RoutingKey(ev model.AdjustmentEvent) string {
	code := strings.ReplaceAll(ev.Entry.ProductCode, ".", "_")
	if code == "" {
		code = "unknown"
	}
	return fmt.Sprintf("adjustment.%s.%s", ev.Kind, code)
}

// Handle publishes ev.
func (p *Publisher) Handle(ctx context.Context, ev model.AdjustmentEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("could not marshal adjustment event: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey(ev),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s-%d", ev.SessionID, ev.Sequence),
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Kind),
			Body:         body,
		},
	)
}

// SetupConn dials url with a few retries and declares the exchange.
func SetupConn(url string, attempts int, wait time.Duration) (*amqp.Connection, *amqp.Channel, error) {
	if attempts < 1 {
		attempts = 1
	}
	var conn *amqp.Connection
	var err error
	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		obs.Logger.Warn("amqp_connect_failed", "attempt", i+1, "error", err)
		if i+1 < attempts {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return conn, ch, nil
}
