package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/repository"
	"github.com/kiwari-pos/terminal/internal/ws"
	log "github.com/sirupsen/logrus"
)

const maxBackoff = 30 * time.Second

// Subscribe follows the branch's order event feed until ctx is done,
// reconnecting with backoff. fn runs on the reading goroutine.
func (c *Client) Subscribe(ctx context.Context, branchID uuid.UUID, fn func(events.Event)) error {
	backoff := time.Second
	for {
		connected, err := c.subscribeOnce(ctx, branchID, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = time.Second
		}
		log.WithError(err).WithField("retry_in", backoff).Warn("order feed disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) feedURL(branchID uuid.UUID, token string) string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/branches/" + branchID.String() + "/orders?token=" + url.QueryEscape(token)
}

func (c *Client) subscribeOnce(ctx context.Context, branchID uuid.UUID, fn func(events.Event)) (bool, error) {
	if c.token == nil {
		return false, repository.ErrUnauthorized
	}
	token, err := c.token()
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.feedURL(branchID, token), nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		// The server batches queued events one per line.
		for _, line := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var msg ws.Event
			if err := json.Unmarshal(line, &msg); err != nil {
				log.WithError(err).Debug("order feed: skipping malformed message")
				continue
			}
			var ev events.Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				ev = events.Event{}
			}
			ev.Type = msg.Type
			fn(ev)
		}
	}
}
