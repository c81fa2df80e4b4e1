package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"lis-trader/internal/models"
)

// Channel carrying marketplace listing events.
const skinsChannel = "public:obtained-skins"

// Per-account channel carrying purchase status updates.
const purchaseChannelPrefix = "private:purchase-skins#"

const (
	backoffMin = time.Second
	backoffMax = 30 * time.Second
)

// TokenSource supplies the short-lived websocket auth token. Implemented by
// lis.Client.
type TokenSource interface {
	GetWSToken(ctx context.Context) (string, error)
}

// Handler receives each normalized price event.
type Handler func(models.PriceEvent)

// Consumer maintains a websocket subscription to the marketplace feed,
// reconnecting with exponential backoff. The feed server speaks the
// Centrifugo client protocol: an authenticated connect, a channel subscribe,
// then publication pushes and empty-frame pings.
type Consumer struct {
	url     string
	userID  string
	tokens  TokenSource
	handler Handler
}

func NewConsumer(url string, tokens TokenSource, handler Handler) *Consumer {
	return &Consumer{url: url, tokens: tokens, handler: handler}
}

// WithUserID additionally subscribes the account's private purchase channel.
func (c *Consumer) WithUserID(userID string) *Consumer {
	c.userID = userID
	return c
}

func (c *Consumer) purchaseChannel() string {
	if c.userID == "" || c.userID == "0" {
		return ""
	}
	return purchaseChannelPrefix + c.userID
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	backoff := backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("feed disconnected", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

type wireCommand struct {
	ID        int             `json:"id"`
	Connect   json.RawMessage `json:"connect,omitempty"`
	Subscribe json.RawMessage `json:"subscribe,omitempty"`
}

type wireReply struct {
	ID    int `json:"id,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Push *struct {
		Channel string `json:"channel"`
		Pub     *struct {
			Data json.RawMessage `json:"data"`
		} `json:"pub"`
	} `json:"push,omitempty"`
}

func (c *Consumer) session(ctx context.Context) error {
	token, err := c.tokens.GetWSToken(ctx)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when ctx ends so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	connect, _ := json.Marshal(map[string]string{"token": token})
	if err := conn.WriteJSON(wireCommand{ID: 1, Connect: connect}); err != nil {
		return err
	}
	subscribe, _ := json.Marshal(map[string]string{"channel": skinsChannel})
	if err := conn.WriteJSON(wireCommand{ID: 2, Subscribe: subscribe}); err != nil {
		return err
	}
	if ch := c.purchaseChannel(); ch != "" {
		private, _ := json.Marshal(map[string]string{"channel": ch})
		if err := conn.WriteJSON(wireCommand{ID: 3, Subscribe: private}); err != nil {
			return err
		}
	}
	slog.Info("feed connected", "channel", skinsChannel)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		// Empty frame is a server ping; answer in kind.
		if len(raw) == 0 || string(raw) == "{}" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte("{}")); err != nil {
				return err
			}
			continue
		}
		c.dispatch(raw)
	}
}

func (c *Consumer) dispatch(raw []byte) {
	var reply wireReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		slog.Debug("feed frame parse failed", "err", err)
		return
	}
	if reply.Error != nil {
		slog.Warn("feed protocol error", "code", reply.Error.Code, "msg", reply.Error.Message)
		return
	}
	if reply.Push == nil || reply.Push.Pub == nil {
		return
	}
	if ch := c.purchaseChannel(); ch != "" && reply.Push.Channel == ch {
		ev, ok := parseEvent(reply.Push.Pub.Data)
		if !ok {
			return
		}
		slog.Info("purchase update", "id", ev.ID, "event", ev.Event)
		return
	}
	ev, ok := parseEvent(reply.Push.Pub.Data)
	if !ok {
		return
	}
	if c.handler != nil {
		c.handler(ev)
	}
}

type wireSkin struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	UnlockAt  string      `json:"unlock_at"`
	CreatedAt string      `json:"created_at"`
	Event     string      `json:"event"`
}

func parseEvent(data json.RawMessage) (models.PriceEvent, bool) {
	var w wireSkin
	if err := json.Unmarshal(data, &w); err != nil {
		slog.Debug("feed event parse failed", "err", err)
		return models.PriceEvent{}, false
	}
	price, _ := w.Price.Float64()
	ev := models.PriceEvent{
		ID:    w.ID,
		Name:  w.Name,
		Price: price,
		Event: w.Event,
	}
	if t, err := time.Parse(time.RFC3339, w.UnlockAt); err == nil {
		ev.UnlockAt = &t
	}
	if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		ev.CreatedAt = &t
	}
	return ev, true
}
