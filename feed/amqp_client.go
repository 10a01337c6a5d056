package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/kitchen-display/models"
)

const DefaultExchange = "kitchen.events"

// AMQPSubscriber receives feed events from a RabbitMQ fanout exchange. Each
// subscriber binds its own exclusive queue so every display sees every event.
type AMQPSubscriber struct {
	URL        string
	Exchange   string
	Log        logrus.FieldLogger
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func NewAMQPSubscriber(url, exchange string, log logrus.FieldLogger) *AMQPSubscriber {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AMQPSubscriber{
		URL:        url,
		Exchange:   exchange,
		Log:        log.WithFields(logrus.Fields{"source": "amqp", "exchange": exchange}),
		MinBackoff: defaultMinBackoff,
		MaxBackoff: defaultMaxBackoff,
	}
}

func (s *AMQPSubscriber) Subscribe(ctx context.Context, onEvent func(models.FeedEvent), onState func(bool, error)) error {
	backoff := s.MinBackoff
	for {
		conn, deliveries, err := s.connect()
		if err != nil {
			onState(false, err)
			s.Log.WithError(err).WithField("retry_in", backoff).Warn("amqp connect failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, s.MaxBackoff)
			continue
		}

		backoff = s.MinBackoff
		onState(true, nil)
		s.Log.Info("amqp subscribed")

		err = s.consume(ctx, conn, deliveries, onEvent)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onState(false, err)
		s.Log.WithError(err).Warn("amqp subscription lost")
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (s *AMQPSubscriber) connect() (*amqp.Connection, <-chan amqp.Delivery, error) {
	conn, err := amqp.Dial(s.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.Exchange, "fanout", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", s.Exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.Exchange, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}
	return conn, deliveries, nil
}

func (s *AMQPSubscriber) consume(ctx context.Context, conn *amqp.Connection, deliveries <-chan amqp.Delivery, onEvent func(models.FeedEvent)) error {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("amqp connection closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			ev, err := DecodeEvent(d.Body)
			if err != nil {
				s.Log.WithError(err).Warn("dropping undecodable delivery")
				continue
			}
			onEvent(ev)
		}
	}
}
