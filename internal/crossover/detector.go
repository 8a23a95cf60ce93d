// Package crossover turns a fast and a slow indicator into Buy/Sell signals.
//
// A Detector latches the last emitted action, so a crossing fires once and
// repeated ticks on the same side of the cross stay silent until the lines
// cross back. An exact tie is not a cross.
package crossover

import (
	"fmt"

	"signal-systemv1/internal/indicator"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
)

// Detector owns a fast and a slow engine plus the latched last action.
// It is not safe for concurrent use.
type Detector struct {
	fast *indicator.Engine
	slow *indicator.Engine

	lastAction Signal
	enabled    bool
}

// New builds a detector over two engines the detector takes ownership of.
func New(fast, slow *indicator.Engine, enabled bool) (*Detector, error) {
	if fast == nil || slow == nil {
		return nil, &indicator.ConfigError{Field: "Engine", Reason: "fast and slow engines are required"}
	}
	if fast == slow {
		return nil, &indicator.ConfigError{Field: "Engine", Reason: "fast and slow must be distinct engines"}
	}
	return &Detector{fast: fast, slow: slow, enabled: enabled}, nil
}

// Config is the per-pair detector configuration.
type Config struct {
	Kind             indicator.Kind `validate:"required"`
	FastPeriod       int            `validate:"gte=1"`
	SlowPeriod       int            `validate:"gte=1"`
	ProcessingLength int            `validate:"gte=1"`
	Enabled          bool
}

var validate = validator.New()

// FastConfig returns the fast engine configuration.
func (c Config) FastConfig() indicator.Config {
	return indicator.Config{Kind: c.Kind, SamplingLength: c.FastPeriod, ProcessingLength: c.ProcessingLength}
}

// SlowConfig returns the slow engine configuration.
func (c Config) SlowConfig() indicator.Config {
	return indicator.Config{Kind: c.Kind, SamplingLength: c.SlowPeriod, ProcessingLength: c.ProcessingLength}
}

// NewFromConfig builds both engines of the same kind and wraps them.
func NewFromConfig(cfg Config) (*Detector, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, &indicator.ConfigError{Field: "Detector", Reason: "invalid detector config", Cause: err}
	}
	fast, err := indicator.New(cfg.FastConfig())
	if err != nil {
		return nil, fmt.Errorf("fast: %w", err)
	}
	slow, err := indicator.New(cfg.SlowConfig())
	if err != nil {
		return nil, fmt.Errorf("slow: %w", err)
	}
	return New(fast, slow, cfg.Enabled)
}

// Update feeds a price to both engines and returns the resulting signal.
func (d *Detector) Update(price float64) Signal {
	return d.UpdateSample(indicator.PriceSample(price))
}

// UpdateSample is Update for kinds that read more than the price.
// Both engines advance even while the detector is disabled.
func (d *Detector) UpdateSample(s indicator.Sample) Signal {
	f := d.fast.Update(s)
	sl := d.slow.Update(s)
	if f.IsNone() || sl.IsNone() {
		return None
	}
	return d.Evaluate(f.Unwrap(), sl.Unwrap())
}

// Evaluate applies the crossing rule to a pair of indicator values without
// touching the engines.
func (d *Detector) Evaluate(fast, slow float64) Signal {
	if !d.enabled {
		return None
	}
	switch {
	case fast > slow && d.lastAction != Buy:
		d.lastAction = Buy
		return Buy
	case slow > fast && d.lastAction != Sell:
		d.lastAction = Sell
		return Sell
	}
	return None
}

// SetEnabled toggles emission. Engine state and the latch are kept.
func (d *Detector) SetEnabled(on bool) { d.enabled = on }

func (d *Detector) Enabled() bool { return d.enabled }

// LastAction is the latched side, None before the first signal.
func (d *Detector) LastAction() Signal { return d.lastAction }

func (d *Detector) FastValue() optional.Option[float64] { return d.fast.Current() }

func (d *Detector) SlowValue() optional.Option[float64] { return d.slow.Current() }

func (d *Detector) Fast() *indicator.Engine { return d.fast }

func (d *Detector) Slow() *indicator.Engine { return d.slow }

// Reset clears both engines and the latch.
func (d *Detector) Reset() {
	d.fast.Reset()
	d.slow.Reset()
	d.lastAction = None
}
