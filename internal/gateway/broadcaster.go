package gateway

import (
	"strconv"
	"time"
)

// buildEnvelope renders the envelope by hand; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}

// Broadcast records data as the latest value of channel and sends the
// envelope to every client subscribed to it. srcTS, when set, feeds the
// latency tracker.
func (h *Hub) Broadcast(channel string, data []byte, srcTS time.Time) {
	now := h.now().UTC()
	if !srcTS.IsZero() && h.Latency != nil {
		if ms := float64(now.Sub(srcTS).Microseconds()) / 1000.0; ms >= 0 {
			h.Latency.Record(ms)
		}
	}

	h.mu.Lock()
	h.seq++
	h.channelSeqs[channel]++
	seq, channelSeq := h.seq, h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	rb := h.replayBufs[channel]
	if rb == nil {
		rb = NewReplayBuffer(replayCapacity)
		h.replayBufs[channel] = rb
	}
	h.mu.Unlock()

	env := buildEnvelope(channel, data, now, seq, channelSeq, false)
	rb.Push(channelSeq, env)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- env:
		default:
		}
	}
}
