package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, code int, msg string) {
	WriteJSON(w, code, map[string]string{"error": msg})
}

// RegisterRoutes mounts the dashboard endpoints on mux:
//
//	/ws                 WebSocket feed, ?last_ts=RFC3339 limits the initial state
//	/api/latest         latest payload per channel
//	/api/missed         ?channel=&from=&to= buffered envelopes for gap backfill
//	/api/latency        p50/p95/p99 payload-to-broadcast latency in ms
func (h *Hub) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.serveWS)

	mux.HandleFunc("/api/latest", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, h.Latest())
	})

	mux.HandleFunc("/api/missed", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			WriteError(w, http.StatusBadRequest, "channel, from and to are required")
			return
		}
		msgs := h.Missed(channel, from, to)
		out := make([]json.RawMessage, len(msgs))
		for i, m := range msgs {
			out[i] = m
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"channel":  channel,
			"current":  h.ChannelSeq(channel),
			"oldest":   h.OldestSeq(channel),
			"messages": out,
		})
	})

	mux.HandleFunc("/api/latency", func(w http.ResponseWriter, r *http.Request) {
		p50, p95, p99 := h.Latency.Percentiles()
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"p50_ms":  p50,
			"p95_ms":  p95,
			"p99_ms":  p99,
			"samples": h.Latency.Count(),
		})
	})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "err", err)
		return
	}
	var after time.Time
	if s := r.URL.Query().Get("last_ts"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			after = t
		}
	}
	h.Register(conn, after)
}
