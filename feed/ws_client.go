package feed

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/kitchen-display/models"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 5 * time.Second
)

// WSClient subscribes to the feed hub over a websocket and keeps the link
// up with exponential backoff.
type WSClient struct {
	URL        string // ws://host/ws/chef
	Token      string
	Dialer     *websocket.Dialer
	Log        logrus.FieldLogger
	MinBackoff time.Duration
	MaxBackoff time.Duration
	PingPeriod time.Duration
	PongWait   time.Duration
}

func NewWSClient(rawURL, token string, log logrus.FieldLogger) *WSClient {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSClient{
		URL:        rawURL,
		Token:      token,
		Dialer:     websocket.DefaultDialer,
		Log:        log.WithField("source", "websocket"),
		MinBackoff: defaultMinBackoff,
		MaxBackoff: defaultMaxBackoff,
		PingPeriod: pingPeriod,
		PongWait:   pongWait,
	}
}

// Subscribe blocks until ctx is done, redialing whenever the link drops.
func (c *WSClient) Subscribe(ctx context.Context, onEvent func(models.FeedEvent), onState func(bool, error)) error {
	target, err := c.dialURL()
	if err != nil {
		return err
	}

	backoff := c.MinBackoff
	for {
		conn, resp, err := c.Dialer.DialContext(ctx, target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				c.Log.WithField("status", resp.StatusCode).Error("websocket handshake rejected")
			}
			onState(false, err)
			c.Log.WithError(err).WithField("retry_in", backoff).Warn("websocket dial failed")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, c.MaxBackoff)
			continue
		}

		backoff = c.MinBackoff
		onState(true, nil)
		c.Log.Info("websocket connected")

		err = c.serve(ctx, conn, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onState(false, err)
		c.Log.WithError(err).Warn("websocket disconnected")
		if !sleepCtx(ctx, backoff) {
			return ctx.Err()
		}
	}
}

func (c *WSClient) dialURL() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", err
	}
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// serve reads frames until the connection fails or ctx is done.
func (c *WSClient) serve(ctx context.Context, conn *websocket.Conn, onEvent func(models.FeedEvent)) error {
	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	conn.SetReadDeadline(time.Now().Add(c.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.PongWait))
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.PingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("feed closed the connection")
			}
			return err
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			c.Log.WithError(err).Warn("dropping undecodable frame")
			continue
		}
		onEvent(ev)
	}
}
