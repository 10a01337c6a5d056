// Package feed adapts the order feed server's HTTP, websocket and RabbitMQ
// surfaces to the kds engine's Snapshotter, Commander and PushSource.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/kitchen-display/models"
)

var ErrUnknownEvent = errors.New("unknown feed event")

// wireMessage is the {event,data} frame written by the feed hub and the
// AMQP publisher.
type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeEvent parses one push frame. Payload validation (ids, statuses) is
// left to the store so anomalies are counted in one place.
func DecodeEvent(raw []byte) (models.FeedEvent, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.FeedEvent{}, fmt.Errorf("decode frame: %w", err)
	}

	switch msg.Event {
	case models.EventNewOrder:
		var o models.Order
		if err := json.Unmarshal(msg.Data, &o); err != nil {
			return models.FeedEvent{}, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return models.NewOrderEvent(o), nil
	case models.EventOrderStatusChanged:
		var sc models.StatusChange
		if err := json.Unmarshal(msg.Data, &sc); err != nil {
			return models.FeedEvent{}, fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return models.StatusChangedEvent(sc.ID, sc.Status), nil
	case models.EventRefreshHint:
		return models.RefreshHintEvent(), nil
	}
	return models.FeedEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
}

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		return max
	}
	return cur
}

// sleepCtx waits d or until ctx is done. It reports whether the wait completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
