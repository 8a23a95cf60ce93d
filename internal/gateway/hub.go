// Package gateway pushes signals and indicator values to dashboard clients
// over WebSocket.
//
// Every message is an envelope {"channel","data","ts","seq","channel_seq"}.
// Channels are the Redis stream keys of the payload ("signal:BTC-USDT",
// "ind:SMA_9:BTC-USDT"), so a client can switch between the Redis streams
// and this feed without remapping. channel_seq is per channel and gap free;
// a client that sees a jump fetches the missing range from /api/missed.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"signal-systemv1/internal/model"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuf  = 256
	replayCapacity = 500
)

// Hub tracks connected clients and the latest envelope per channel.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	// Latency measures payload timestamp to broadcast.
	Latency *LatencyTracker

	// OnClients, when set, is called with the client count after each
	// connect or disconnect.
	OnClients func(n int)

	log *slog.Logger
	now func() time.Time
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		log:         logger.With("component", "gateway"),
		now:         time.Now,
	}
}

// PublishSignal broadcasts ev on its signal channel. It implements
// model.SignalSink and never fails.
func (h *Hub) PublishSignal(_ context.Context, ev model.SignalEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Broadcast(ev.StreamKey(), data, ev.TS)
	return nil
}

// PublishIndicators broadcasts every ready result on its own channel.
func (h *Hub) PublishIndicators(results []model.IndicatorResult) {
	for i := range results {
		r := &results[i]
		if !r.Ready {
			continue
		}
		data, err := json.Marshal(r)
		if err != nil {
			continue
		}
		h.Broadcast(r.StreamKey(), data, r.TS)
	}
}

// Register adopts an upgraded connection. lastTS, when set, limits the
// initial state to channels updated after it.
func (h *Hub) Register(conn *websocket.Conn, lastTS time.Time) *Client {
	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}

	c.sendInitialState(lastTS)
	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient unregisters c and closes its send queue. Safe to call twice.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Latest returns the latest payload of every channel.
func (h *Hub) Latest() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// Missed returns the buffered envelopes of channel with channel_seq in
// [from, to].
func (h *Hub) Missed(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	rb := h.replayBufs[channel]
	h.mu.RUnlock()
	if rb == nil {
		return nil
	}
	return rb.Range(from, to)
}

// OldestSeq returns the oldest channel_seq still buffered for channel, or 0.
func (h *Hub) OldestSeq(channel string) int64 {
	h.mu.RLock()
	rb := h.replayBufs[channel]
	h.mu.RUnlock()
	if rb == nil {
		return 0
	}
	return rb.Oldest()
}

// ChannelSeq returns the last channel_seq issued on channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.conn.Close()
	}
}
