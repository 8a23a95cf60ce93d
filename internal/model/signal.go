package model

import "time"

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// SignalEvent is an emitted crossover signal, ready for downstream order
// placement. The engine never acts on it.
type SignalEvent struct {
	ID     string    `json:"id"`
	Pair   string    `json:"pair"`
	Action string    `json:"action"` // BUY or SELL
	Kind   string    `json:"kind"`   // indicator kind of the crossing lines
	Price  float64   `json:"price"`
	Fast   float64   `json:"fast"`
	Slow   float64   `json:"slow"`
	Reason string    `json:"reason,omitempty"`
	TS     time.Time `json:"ts"` // tick timestamp that produced the signal
}

// StreamKey returns the Redis stream key: "signal:{pair}".
func (s *SignalEvent) StreamKey() string { return "signal:" + s.Pair }

// IndicatorResult is the value of one named indicator for a pair after a tick.
type IndicatorResult struct {
	Name  string    `json:"name"` // e.g. "SMA_20", "RSI_14"
	Pair  string    `json:"pair"`
	Value float64   `json:"value"`
	Ready bool      `json:"ready"`
	TS    time.Time `json:"ts"`
}

// StreamKey returns the Redis stream key: "ind:{name}:{pair}".
func (r *IndicatorResult) StreamKey() string { return "ind:" + r.Name + ":" + r.Pair }
