package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one market observation for a trading pair. Prices and volume are
// decimals on the wire and only become float64 at the indicator boundary.
// High, Low and Close are optional; zero means "use Price".
type Tick struct {
	Pair   string          `json:"pair"`
	Price  decimal.Decimal `json:"price"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
	TS     time.Time       `json:"ts"` // UTC
}

var (
	ErrTickNoPair  = errors.New("tick: pair is required")
	ErrTickBadPx   = errors.New("tick: price must be positive")
	ErrTickBadVol  = errors.New("tick: volume must not be negative")
	ErrTickNoStamp = errors.New("tick: timestamp is required")
)

// Validate rejects ticks the pipeline cannot use.
func (t Tick) Validate() error {
	switch {
	case t.Pair == "":
		return ErrTickNoPair
	case !t.Price.IsPositive():
		return ErrTickBadPx
	case t.Volume.IsNegative():
		return ErrTickBadVol
	case t.TS.IsZero():
		return ErrTickNoStamp
	}
	return nil
}

// Bar returns high, low, close as float64, falling back to Price for any
// leg that was not supplied.
func (t Tick) Bar() (high, low, closePx float64) {
	px := t.Price.InexactFloat64()
	high, low, closePx = px, px, px
	if !t.High.IsZero() {
		high = t.High.InexactFloat64()
	}
	if !t.Low.IsZero() {
		low = t.Low.InexactFloat64()
	}
	if !t.Close.IsZero() {
		closePx = t.Close.InexactFloat64()
	}
	return high, low, closePx
}

// StreamKey returns the Redis stream key: "tick:{pair}".
func (t Tick) StreamKey() string { return TickStreamPrefix + t.Pair }

// TickStreamPrefix prefixes per-pair tick streams.
const TickStreamPrefix = "tick:"
