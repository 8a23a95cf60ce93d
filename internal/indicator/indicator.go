// Package indicator computes streaming technical indicators.
//
// Every indicator runs through the same two-stage pipeline: raw samples are
// reduced over a sampling window, and the scalars that come out of it are
// smoothed over a processing window. The Kind picked at construction selects
// the reductions. EMA is the one recursive kind and carries an accumulator
// instead of a sampling window.
//
// Engines are not safe for concurrent use. Each one belongs to a single
// caller that feeds it ticks in arrival order.
package indicator

import (
	"strconv"
	"strings"

	"signal-systemv1/internal/ringbuf"
)

// Kind names an indicator. The set is closed.
type Kind string

const (
	SMA           Kind = "SMA"
	EMA           Kind = "EMA"
	WMA           Kind = "WMA"
	RSI           Kind = "RSI"
	VWAP          Kind = "VWAP"
	Volume        Kind = "VOLUME"
	VolumeAverage Kind = "VOLUME_AVERAGE"
)

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{SMA, EMA, WMA, RSI, VWAP, Volume, VolumeAverage}
}

// ParseKind resolves a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := kindTraits[k]; !ok {
		return "", &ConfigError{Field: "Kind", Reason: "unknown indicator kind " + strconv.Quote(s)}
	}
	return k, nil
}

func (k Kind) String() string { return string(k) }

// Valid reports whether k is one of Kinds().
func (k Kind) Valid() bool {
	_, ok := kindTraits[k]
	return ok
}

// Sample is one market observation. Scalar kinds read Price; VWAP reads
// High, Low, Close and Volume; the volume kinds read Volume.
type Sample struct {
	Price  float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// PriceSample builds a Sample carrying only a price.
func PriceSample(p float64) Sample { return Sample{Price: p} }

// TypicalPrice returns (high+low+close)/3, or Price when no bar is attached.
func (s Sample) TypicalPrice() float64 {
	if s.High == 0 && s.Low == 0 && s.Close == 0 {
		return s.Price
	}
	return (s.High + s.Low + s.Close) / 3
}

// reducer collapses a full window to one value. weights is nil for
// unweighted stages. ok=false means the window has no defined value.
type reducer func(values, weights *ringbuf.Series) (v float64, ok bool)

type kindTrait struct {
	project    func(Sample) (value, weight float64)
	sampling   reducer // nil when recursive
	processing reducer
	recursive  bool
	weighted   bool

	// extraWindow widens the sampling window beyond sampling_length. RSI
	// needs period+1 prices to produce period differences.
	extraWindow int

	// singleStage kinds require processing_length == 1.
	singleStage bool
}

var kindTraits = map[Kind]kindTrait{
	SMA:           {project: priceOf, sampling: mean, processing: mean},
	WMA:           {project: priceOf, sampling: weightedMean, processing: mean},
	EMA:           {project: priceOf, processing: last, recursive: true, singleStage: true},
	RSI:           {project: priceOf, sampling: relativeStrength, processing: last, extraWindow: 1, singleStage: true},
	VWAP:          {project: typicalWeighted, sampling: volumeWeightedPrice, processing: last, weighted: true, singleStage: true},
	Volume:        {project: volumeOf, sampling: last, processing: last, singleStage: true},
	VolumeAverage: {project: volumeOf, sampling: windowAverage, processing: mean},
}

func priceOf(s Sample) (float64, float64)         { return s.Price, 0 }
func volumeOf(s Sample) (float64, float64)        { return s.Volume, 0 }
func typicalWeighted(s Sample) (float64, float64) { return s.TypicalPrice(), s.Volume }

func last(values, _ *ringbuf.Series) (float64, bool) { return values.Last() }
