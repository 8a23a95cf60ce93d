package indicator

import (
	"github.com/moznion/go-optional"
)

// Engine binds a Kind to its sampling and processing stages and remembers
// the last value the pipeline produced.
type Engine struct {
	cfg   Config
	trait kindTrait

	sampling   *stage // nil for recursive kinds
	processing *stage
	ema        emaState

	current float64
	ready   bool
}

// New validates cfg and builds an engine. Errors are *ConfigError.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	trait := kindTraits[cfg.Kind]

	e := &Engine{cfg: cfg, trait: trait}
	var err error
	if trait.recursive {
		e.ema = newEMAState(cfg.SamplingLength)
	} else {
		e.sampling, err = newStage(cfg.SamplingLength+trait.extraWindow, trait.weighted, trait.sampling)
		if err != nil {
			return nil, &ConfigError{Field: "SamplingLength", Reason: "cannot allocate window", Cause: err}
		}
	}
	e.processing, err = newStage(cfg.ProcessingLength, false, trait.processing)
	if err != nil {
		return nil, &ConfigError{Field: "ProcessingLength", Reason: "cannot allocate window", Cause: err}
	}
	return e, nil
}

// Update feeds one sample through the pipeline and returns the current
// value. The value is sticky: once produced it is returned until a later
// window completes or Reset is called. None means still warming up.
func (e *Engine) Update(s Sample) optional.Option[float64] {
	v, w := e.trait.project(s)

	var scalar optional.Option[float64]
	if e.trait.recursive {
		scalar = optional.Some(e.ema.update(v))
	} else {
		scalar = e.sampling.push(v, w)
	}

	if scalar.IsSome() {
		if out := e.processing.push(scalar.Unwrap(), 0); out.IsSome() {
			e.current = out.Unwrap()
			e.ready = true
		}
	}
	return e.Current()
}

// UpdatePrice is Update with a price-only sample.
func (e *Engine) UpdatePrice(p float64) optional.Option[float64] {
	return e.Update(PriceSample(p))
}

// Current returns the last produced value without advancing the engine.
func (e *Engine) Current() optional.Option[float64] {
	if !e.ready {
		return optional.None[float64]()
	}
	return optional.Some(e.current)
}

// Ready reports whether the engine has produced a value.
func (e *Engine) Ready() bool { return e.ready }

// Reset clears both windows, the EMA accumulator and the current value.
func (e *Engine) Reset() {
	if e.sampling != nil {
		e.sampling.clear()
	}
	e.processing.clear()
	e.ema.reset()
	e.current = 0
	e.ready = false
}

// Name returns e.g. "SMA_20", or "VOLUME_AVERAGE_20_5" with a processing window.
func (e *Engine) Name() string { return e.cfg.name() }

func (e *Engine) Kind() Kind { return e.cfg.Kind }

func (e *Engine) Config() Config { return e.cfg }

// Warmup returns how many samples the engine needs before its first value,
// assuming every sampling window yields one.
func (e *Engine) Warmup() int {
	if e.trait.recursive {
		return e.cfg.ProcessingLength
	}
	return e.cfg.SamplingLength + e.trait.extraWindow + e.cfg.ProcessingLength - 1
}
