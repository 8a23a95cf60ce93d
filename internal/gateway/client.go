package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu    sync.RWMutex
	pairs map[string]bool // nil receives every pair
}

// clientMsg is the only inbound message shape.
type clientMsg struct {
	Type  string   `json:"type"` // SUBSCRIBE, UNSUBSCRIBE, ping
	Pairs []string `json:"pairs,omitempty"`
	Ping  int64    `json:"ping,omitempty"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{conn: conn, send: make(chan []byte, clientSendBuf), hub: h}
}

// channelPair returns the pair suffix of "signal:{pair}" or "ind:{name}:{pair}".
func channelPair(channel string) string {
	if i := strings.LastIndexByte(channel, ':'); i >= 0 {
		return channel[i+1:]
	}
	return ""
}

func (c *Client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pairs == nil || c.pairs[channelPair(channel)]
}

func (c *Client) setPairs(pairs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(pairs) == 0 {
		c.pairs = nil
		return
	}
	c.pairs = make(map[string]bool, len(pairs))
	for _, p := range pairs {
		c.pairs[p] = true
	}
}

func (c *Client) sendInitialState(after time.Time) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	for channel, e := range c.hub.latest {
		if !after.IsZero() && !e.TS.After(after) {
			continue
		}
		if !c.wants(channel) {
			continue
		}
		env := buildEnvelope(channel, e.Data, e.TS, c.hub.seq, e.Seq, true)
		select {
		case c.send <- env:
		default:
		}
	}
}

func (c *Client) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// writePump coalesces queued messages into one frame, newline separated.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			for i, n := 0, len(c.send); i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMsg
		if json.Unmarshal(raw, &msg) != nil {
			c.reply(map[string]string{"type": "error", "error": "invalid message"})
			continue
		}

		switch strings.ToUpper(msg.Type) {
		case "SUBSCRIBE":
			c.setPairs(msg.Pairs)
			c.reply(map[string]interface{}{"type": "subscribed", "pairs": msg.Pairs})
		case "UNSUBSCRIBE":
			c.setPairs(nil)
			c.reply(map[string]interface{}{"type": "subscribed", "pairs": []string{}})
		case "PING":
			c.reply(map[string]interface{}{"type": "pong", "ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
		default:
			c.reply(map[string]string{"type": "error", "error": "unknown type " + msg.Type})
		}
	}
}
