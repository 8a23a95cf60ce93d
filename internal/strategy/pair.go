package strategy

import (
	"fmt"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/crossover"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
)

// pair owns every engine of one trading pair. Only Engine touches it, and
// always under Engine.mu.
type pair struct {
	cfg      config.PairConfig
	detector *crossover.Detector
	rsi      *indicator.Engine // nil without an RSI filter
	extras   []*indicator.Engine

	lastTS     time.Time
	lastPrice  float64
	ticks      uint64
	signals    uint64
	suppressed uint64
	lastSignal *model.SignalEvent
}

func newPair(cfg config.PairConfig) (*pair, error) {
	det, err := crossover.NewFromConfig(cfg.Detector())
	if err != nil {
		return nil, fmt.Errorf("pair %s: %w", cfg.Name, err)
	}
	p := &pair{cfg: cfg, detector: det}

	if f := cfg.RSIFilter; f != nil {
		p.rsi, err = indicator.New(indicator.Config{Kind: indicator.RSI, SamplingLength: f.Period, ProcessingLength: 1})
		if err != nil {
			return nil, fmt.Errorf("pair %s rsi filter: %w", cfg.Name, err)
		}
	}
	for _, ic := range cfg.Indicators {
		e, err := indicator.New(ic)
		if err != nil {
			return nil, fmt.Errorf("pair %s indicator: %w", cfg.Name, err)
		}
		p.extras = append(p.extras, e)
	}
	return p, nil
}

func sampleOf(t model.Tick) indicator.Sample {
	h, l, c := t.Bar()
	return indicator.Sample{
		Price:  t.Price.InexactFloat64(),
		High:   h,
		Low:    l,
		Close:  c,
		Volume: t.Volume.InexactFloat64(),
	}
}

// process advances every engine with t and applies the RSI veto to any
// crossing. A vetoed crossing stays latched in the detector.
func (p *pair) process(t model.Tick) Outcome {
	s := sampleOf(t)
	if p.rsi != nil {
		p.rsi.Update(s)
	}
	sig := p.detector.UpdateSample(s)
	for _, e := range p.extras {
		e.Update(s)
	}
	p.ticks++
	p.lastTS = t.TS
	p.lastPrice = s.Price

	out := Outcome{Pair: p.cfg.Name}
	if sig == crossover.None {
		return out
	}

	if reason := p.veto(sig); reason != "" {
		p.suppressed++
		out.Suppressed = reason
		out.Action = sig.String()
		return out
	}

	ev := model.SignalEvent{
		ID:     uuid.NewString(),
		Pair:   p.cfg.Name,
		Action: sig.String(),
		Kind:   p.cfg.MAType,
		Price:  s.Price,
		Fast:   p.detector.FastValue().TakeOr(0),
		Slow:   p.detector.SlowValue().TakeOr(0),
		Reason: p.reason(sig),
		TS:     t.TS,
	}
	p.signals++
	p.lastSignal = &ev
	out.Signal = ev
	out.Emitted = true
	out.Action = ev.Action
	return out
}

// veto returns a non-empty reason when the RSI filter blocks sig.
func (p *pair) veto(sig crossover.Signal) string {
	if p.rsi == nil || !p.rsi.Ready() {
		return ""
	}
	f := p.cfg.RSIFilter
	rsi := p.rsi.Current().Unwrap()
	switch {
	case sig == crossover.Buy && rsi >= f.Overbought:
		return fmt.Sprintf("overbought: RSI %.1f >= %.1f", rsi, f.Overbought)
	case sig == crossover.Sell && rsi <= f.Oversold:
		return fmt.Sprintf("oversold: RSI %.1f <= %.1f", rsi, f.Oversold)
	}
	return ""
}

func (p *pair) reason(sig crossover.Signal) string {
	fast, slow := p.detector.Fast().Name(), p.detector.Slow().Name()
	if sig == crossover.Buy {
		return fast + " crossed above " + slow
	}
	return fast + " crossed below " + slow
}

// engines lists every engine in publication order.
func (p *pair) engines() []*indicator.Engine {
	all := make([]*indicator.Engine, 0, 3+len(p.extras))
	all = append(all, p.detector.Fast(), p.detector.Slow())
	if p.rsi != nil {
		all = append(all, p.rsi)
	}
	return append(all, p.extras...)
}

func (p *pair) indicators() []model.IndicatorResult {
	engines := p.engines()
	out := make([]model.IndicatorResult, 0, len(engines))
	for _, e := range engines {
		out = append(out, model.IndicatorResult{
			Name:  e.Name(),
			Pair:  p.cfg.Name,
			Value: e.Current().TakeOr(0),
			Ready: e.Ready(),
			TS:    p.lastTS,
		})
	}
	return out
}

// PairStatus is a read-only view of one pair for status reporting.
type PairStatus struct {
	Name       string                  `json:"name"`
	Kind       string                  `json:"kind"`
	Enabled    bool                    `json:"enabled"`
	LastAction string                  `json:"last_action"`
	Fast       *float64                `json:"fast"`
	Slow       *float64                `json:"slow"`
	RSI        *float64                `json:"rsi,omitempty"`
	LastPrice  float64                 `json:"last_price"`
	LastTS     time.Time               `json:"last_ts"`
	Ticks      uint64                  `json:"ticks"`
	Signals    uint64                  `json:"signals"`
	Suppressed uint64                  `json:"suppressed"`
	Warmup     int                     `json:"warmup"`
	LastSignal *model.SignalEvent      `json:"last_signal,omitempty"`
	Indicators []model.IndicatorResult `json:"indicators"`
}

func (p *pair) status() PairStatus {
	st := PairStatus{
		Name:       p.cfg.Name,
		Kind:       p.cfg.MAType,
		Enabled:    p.detector.Enabled(),
		LastAction: p.detector.LastAction().String(),
		Fast:       ptr(p.detector.FastValue()),
		Slow:       ptr(p.detector.SlowValue()),
		LastPrice:  p.lastPrice,
		LastTS:     p.lastTS,
		Ticks:      p.ticks,
		Signals:    p.signals,
		Suppressed: p.suppressed,
		Warmup:     p.warmup(),
		Indicators: p.indicators(),
	}
	if p.rsi != nil {
		st.RSI = ptr(p.rsi.Current())
	}
	if p.lastSignal != nil {
		ev := *p.lastSignal
		st.LastSignal = &ev
	}
	return st
}

// warmup is the number of ticks the slowest engine of the pair needs
// before its first value.
func (p *pair) warmup() int {
	n := max(p.detector.Fast().Warmup(), p.detector.Slow().Warmup())
	if p.rsi != nil {
		n = max(n, p.rsi.Warmup())
	}
	for _, e := range p.extras {
		n = max(n, e.Warmup())
	}
	return n
}

func ptr(o optional.Option[float64]) *float64 {
	if o.IsNone() {
		return nil
	}
	v := o.Unwrap()
	return &v
}
