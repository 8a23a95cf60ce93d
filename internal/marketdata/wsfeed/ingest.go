// Package wsfeed ingests ticks from a plain-JSON WebSocket feed, as an
// alternative to the Redis tick streams.
//
// Each text frame carries one model.Tick:
//
//	{"pair":"BTC-USDT","price":"42000.5","volume":"0.3","ts":"2024-01-01T00:00:00Z"}
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

// Config holds the feed endpoint and reconnect policy.
type Config struct {
	URL string // e.g. "ws://localhost:9001/ws"

	ReconnectDelay    time.Duration // default 2s
	MaxReconnectDelay time.Duration // default 30s
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to the feed and pushes valid ticks into a channel.
type Ingest struct {
	cfg Config

	OnReconnect func()
	OnInvalid   func(err error) // malformed or invalid frame
	OnDrop      func()          // output channel full
}

// New validates the URL and returns an Ingest.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsfeed: unsupported scheme %q", u.Scheme)
	}
	return &Ingest{cfg: cfg}, nil
}

// Start streams ticks into tickCh, reconnecting with exponential backoff.
// It blocks until ctx is cancelled.
func (ing *Ingest) Start(ctx context.Context, tickCh chan<- model.Tick) error {
	delay := ing.cfg.ReconnectDelay

	for {
		if ctx.Err() != nil {
			return nil
		}

		connected, err := ing.runOnce(ctx, tickCh)
		if err == nil {
			return nil
		}
		if connected {
			delay = ing.cfg.ReconnectDelay
		}

		log.Printf("[wsfeed] disconnected (%v), reconnecting in %s", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce reads until disconnect. A nil error means ctx was cancelled.
func (ing *Ingest) runOnce(ctx context.Context, tickCh chan<- model.Tick) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	log.Printf("[wsfeed] connected to %s", ing.cfg.URL)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		tick, err := decode(raw)
		if err != nil {
			if ing.OnInvalid != nil {
				ing.OnInvalid(err)
			} else {
				log.Printf("[wsfeed] %v", err)
			}
			continue
		}

		select {
		case tickCh <- tick:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop()
			} else {
				log.Println("[wsfeed] tick channel full, dropping tick")
			}
		}
	}
}

func decode(raw []byte) (model.Tick, error) {
	var t model.Tick
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("parse tick: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}
