package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RusaUB/finorax/internal/domain/repository"
	"github.com/RusaUB/finorax/pkg/logger"

	"github.com/gorilla/websocket"
)

// Config holds WebSocket price feed settings.
type Config struct {
	WebSocketURL   string
	APIKey         string
	Assets         []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client streams trade ticks over WebSocket and persists them through a
// PriceSink so round scoring can look prices up later.
type Client struct {
	cfg  Config
	sink repository.PriceSink
	log  *logger.Logger

	conn      *websocket.Conn
	connected bool
}

func New(cfg Config, sink repository.PriceSink, log *logger.Logger) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, sink: sink, log: log}
}

func (c *Client) connect(ctx context.Context) error {
	u := c.cfg.WebSocketURL
	if c.cfg.APIKey != "" {
		u = fmt.Sprintf("%s?token=%s", u, c.cfg.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("pricefeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.log.Info("pricefeed connected", logger.String("url", c.cfg.WebSocketURL))
	return nil
}

func (c *Client) subscribe() error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("pricefeed not connected")
	}
	for _, a := range c.cfg.Assets {
		msg := map[string]string{"type": "subscribe", "symbol": a}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", a, err)
		}
		c.log.Debug("pricefeed subscribed", logger.String("asset", a))
	}
	return nil
}

type tick struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string `json:"type"`
	Data []tick `json:"data"`
}

// Run connects, subscribes and pumps ticks into the sink until ctx is done.
// Connection failures trigger reconnects after the configured delay.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connect(ctx); err != nil {
			c.log.Warn("pricefeed connect failed", logger.Error(err))
			if !c.wait(ctx) {
				return
			}
			continue
		}
		if err := c.subscribe(); err != nil {
			c.log.Warn("pricefeed subscribe failed", logger.Error(err))
			_ = c.Close()
			if !c.wait(ctx) {
				return
			}
			continue
		}

		err := c.pump(ctx)
		_ = c.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.Warn("pricefeed stream broken", logger.Error(err))
		}
		if !c.wait(ctx) {
			return
		}
	}
}

func (c *Client) pump(ctx context.Context) error {
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go c.pingLoop(pingCtx)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, b, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("pricefeed read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			// ignore non-trade frames
			continue
		}
		if f.Type != "trade" {
			continue
		}

		for _, d := range f.Data {
			ts := time.UnixMilli(d.T).UTC()
			if err := c.sink.StorePrice(ctx, d.S, ts, d.P); err != nil {
				c.log.Warn("pricefeed store failed",
					logger.String("asset", d.S),
					logger.Error(err),
				)
			}
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.conn != nil {
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

func (c *Client) wait(ctx context.Context) bool {
	t := time.NewTimer(c.cfg.ReconnectDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates connection status.
func (c *Client) IsConnected() bool { return c.connected }
