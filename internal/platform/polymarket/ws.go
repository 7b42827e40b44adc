package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/domain"
	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/retry"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// heartbeatInterval is the cadence of the text PING probe.
	heartbeatInterval = 10 * time.Second

	// readTimeout forces a reconnect when no inbound traffic (data or PONG)
	// arrives within this window.
	readTimeout = 3 * heartbeatInterval

	// reconnectBase and reconnectCap bound the reconnect backoff. The delay
	// resets to base on any successfully-processed message.
	reconnectBase = 1 * time.Second
	reconnectCap  = 60 * time.Second
)

// intent is a pending subscription change queued for the writer loop.
type intent struct {
	op     string // "subscribe" or "unsubscribe"
	assets []string
}

// Client owns the persistent CLOB market-channel connection. It reconnects
// with exponential backoff, re-issues a full subscription from the current
// token set on every (re)connect, and pushes inbound events to a bounded
// channel, dropping with a warning on overflow so the socket read never
// blocks on a slow consumer.
type Client struct {
	wsURL   string
	tokens  func() []string // current subscription set provider
	logger  *slog.Logger
	session string

	intents chan intent
	out     chan RawEvent
	dropped atomic.Uint64
}

// NewClient creates a connection manager for the given market-channel URL.
// tokens must return the full current subscription set; it is consulted on
// every (re)connect so a reconnect can never restore a stale pre-disconnect
// set. buffer sizes the outbound event channel.
func NewClient(wsURL string, tokens func() []string, buffer int, logger *slog.Logger) *Client {
	if buffer < 1 {
		buffer = 1024
	}
	return &Client{
		wsURL:   wsURL,
		tokens:  tokens,
		logger:  logger.With(slog.String("component", "clob_ws")),
		session: uuid.NewString(),
		intents: make(chan intent, 64),
		out:     make(chan RawEvent, buffer),
	}
}

// Events returns the inbound event channel. It is closed when Run returns.
func (c *Client) Events() <-chan RawEvent {
	return c.out
}

// Session returns the per-connection-manager session ID used in feed trade
// dedupe keys.
func (c *Client) Session() string {
	return c.session
}

// Dropped returns the number of events discarded due to consumer overflow.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Subscribe queues an incremental subscription for the given asset IDs.
func (c *Client) Subscribe(assetIDs []string) {
	if len(assetIDs) > 0 {
		c.intents <- intent{op: "subscribe", assets: assetIDs}
	}
}

// Unsubscribe queues an incremental unsubscription for the given asset IDs.
func (c *Client) Unsubscribe(assetIDs []string) {
	if len(assetIDs) > 0 {
		c.intents <- intent{op: "unsubscribe", assets: assetIDs}
	}
}

// Run connects and serves the connection until ctx is cancelled, recycling
// the connection on any read/write failure.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.out)

	backoff := retry.NewBackoff(reconnectBase, reconnectCap)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.serveConn(ctx, backoff)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoff.Next()
		c.logger.WarnContext(ctx, "connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// serveConn dials, issues the full subscription, and pumps messages until
// the connection fails or ctx is cancelled.
func (c *Client) serveConn(ctx context.Context, backoff *retry.Backoff) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	// Drain intents queued while disconnected; the full subscription below
	// already reflects them via the token set.
	for {
		select {
		case <-c.intents:
			continue
		default:
		}
		break
	}

	assets := c.tokens()
	sub := wsSubscribe{AssetIDs: assets, Type: "market", CustomFeatureEnabled: true}
	if err := c.writeJSON(conn, sub); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	c.logger.InfoContext(ctx, "connected and subscribed",
		slog.Int("assets", len(assets)),
	)

	// Writer loop: serializes heartbeats and incremental subscription
	// changes onto the single connection writer.
	writerCtx, cancelWriter := context.WithCancel(ctx)
	defer cancelWriter()
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- c.writeLoop(writerCtx, conn)
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			cancelWriter()
			<-writerDone
			return fmt.Errorf("polymarket/ws: %w: %v", domain.ErrWSDisconnect, err)
		}

		if c.handleFrame(ctx, msg) {
			backoff.Reset()
		}

		select {
		case err := <-writerDone:
			return fmt.Errorf("polymarket/ws: write: %w", err)
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// writeLoop sends the periodic heartbeat and any queued subscription
// changes. It returns on the first write error or context cancellation.
func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return ctx.Err()

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				return err
			}

		case in := <-c.intents:
			op := wsOperation{AssetIDs: in.assets, Operation: in.op}
			if err := c.writeJSON(conn, op); err != nil {
				return err
			}
			c.logger.DebugContext(ctx, "subscription updated",
				slog.String("operation", in.op),
				slog.Int("assets", len(in.assets)),
			)
		}
	}
}

// handleFrame parses one inbound frame and pushes its events to the out
// channel. It reports whether the frame carried anything processable.
func (c *Client) handleFrame(ctx context.Context, msg []byte) bool {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return false
	}

	// Heartbeat replies are plain text.
	if bytes.Equal(trimmed, []byte("PONG")) || bytes.Equal(trimmed, []byte("PING")) {
		return true
	}

	// Frames are JSON arrays of events; a lone object also occurs.
	var items []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			c.logger.WarnContext(ctx, "unparseable frame dropped",
				slog.String("error", err.Error()),
			)
			return false
		}
	} else {
		items = []json.RawMessage{trimmed}
	}

	now := time.Now().UnixMilli()
	processed := false
	for _, item := range items {
		var env eventEnvelope
		if err := json.Unmarshal(item, &env); err != nil || env.EventType == "" {
			continue
		}
		processed = true

		ev := RawEvent{
			Type:      env.EventType,
			AssetID:   env.AssetID,
			Data:      item,
			ReceiveTs: now,
		}
		select {
		case c.out <- ev:
		default:
			// Bounded buffering: a slow consumer must not block the socket
			// read. Sustained overflow is a warning, not fatal.
			n := c.dropped.Add(1)
			if n%1000 == 1 {
				c.logger.WarnContext(ctx, "event buffer full, dropping",
					slog.Uint64("dropped_total", n),
				)
			}
		}
	}
	return processed
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
