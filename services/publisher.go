package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventPublisher fans feed events out to subscribers other than the hub.
type EventPublisher interface {
	Publish(ctx context.Context, event string, data interface{}) error
	Close() error
}

type eventFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// AMQPPublisher publishes {event,data} frames to a fanout exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event string, data interface{}) error {
	body, err := json.Marshal(eventFrame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn.IsClosed() {
		return errors.New("amqp connection is closed")
	}
	return p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now().UTC(),
		Type:        event,
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
