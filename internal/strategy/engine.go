// Package strategy hosts one crossover detector per trading pair.
//
// The Engine routes ticks to the owning pair, applies the optional RSI
// filter, and turns crossings into model.SignalEvent values for downstream
// sinks. Ticks not newer than the pair's last one are rejected. Access is serialized
// with a mutex so control calls (enable/disable, status, reload) are safe
// while Run is consuming ticks.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/model"
)

var (
	// ErrUnknownPair is returned for ticks or control calls naming an
	// unconfigured pair.
	ErrUnknownPair = errors.New("strategy: unknown pair")

	// ErrStaleTick is returned for a tick not newer than the pair's last
	// one, typically a stream redelivery.
	ErrStaleTick = errors.New("strategy: stale tick")
)

// Outcome is the result of evaluating one tick.
type Outcome struct {
	Pair    string
	Signal  model.SignalEvent
	Emitted bool

	// Action and Suppressed are set when a crossing was vetoed by the RSI filter.
	Action     string
	Suppressed string
}

// Options configures an Engine. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// OnSuppressed is called, under the engine lock, for each vetoed crossing.
	OnSuppressed func(pair, action, reason string)
}

// Engine manages the per-pair detectors.
type Engine struct {
	mu    sync.Mutex
	pairs map[string]*pair
	cfgs  []config.PairConfig
	opts  Options
	log   *slog.Logger
}

// NewEngine builds a cold engine for pairs.
func NewEngine(pairs []config.PairConfig, opts Options) (*Engine, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		pairs: make(map[string]*pair, len(pairs)),
		opts:  opts,
		log:   opts.Logger.With("component", "strategy"),
	}
	for _, cfg := range pairs {
		if _, dup := e.pairs[cfg.Name]; dup {
			return nil, fmt.Errorf("pair %s: duplicate", cfg.Name)
		}
		p, err := newPair(cfg)
		if err != nil {
			return nil, err
		}
		e.pairs[cfg.Name] = p
	}
	e.cfgs = append(e.cfgs, pairs...)
	return e, nil
}

// Evaluate routes one tick to its pair.
func (e *Engine) Evaluate(t model.Tick) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Outcome{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pairs[t.Pair]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownPair, t.Pair)
	}
	if !t.TS.After(p.lastTS) {
		return Outcome{}, fmt.Errorf("%w: %s at %s", ErrStaleTick, t.Pair, t.TS.Format(time.RFC3339Nano))
	}
	out := p.process(t)
	switch {
	case out.Emitted:
		e.log.Info("signal",
			"pair", out.Pair, "action", out.Signal.Action, "price", out.Signal.Price,
			"fast", out.Signal.Fast, "slow", out.Signal.Slow, "id", out.Signal.ID)
	case out.Suppressed != "":
		e.log.Info("signal suppressed", "pair", out.Pair, "action", out.Action, "reason", out.Suppressed)
		if e.opts.OnSuppressed != nil {
			e.opts.OnSuppressed(out.Pair, out.Action, out.Suppressed)
		}
	}
	return out, nil
}

// Process is Evaluate reduced to the emitted signal. Invalid ticks and
// unknown pairs yield no signal.
func (e *Engine) Process(t model.Tick) (model.SignalEvent, bool) {
	out, err := e.Evaluate(t)
	if err != nil {
		return model.SignalEvent{}, false
	}
	return out.Signal, out.Emitted
}

// Run consumes ticks and sends emitted signals to out until ctx is done or
// in is closed.
func (e *Engine) Run(ctx context.Context, in <-chan model.Tick, out chan<- model.SignalEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-in:
			if !ok {
				return
			}
			ev, emitted := e.Process(t)
			if !emitted {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Warmup feeds historical ticks without reporting signals. Detector latches
// still move, so the first live signal is a genuine new crossing.
func (e *Engine) Warmup(ticks []model.Tick) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	type counters struct {
		signals, suppressed uint64
		last                *model.SignalEvent
	}
	before := make(map[string]counters, len(e.pairs))
	for name, p := range e.pairs {
		before[name] = counters{p.signals, p.suppressed, p.lastSignal}
	}

	n := 0
	for _, t := range ticks {
		p, ok := e.pairs[t.Pair]
		if !ok || t.Validate() != nil || !t.TS.After(p.lastTS) {
			continue
		}
		p.process(t)
		n++
	}
	// Warm-up signals are history, not activity.
	for name, p := range e.pairs {
		c := before[name]
		p.signals, p.suppressed, p.lastSignal = c.signals, c.suppressed, c.last
	}
	return n
}

// SetEnabled toggles signal emission for a pair without touching its state.
func (e *Engine) SetEnabled(name string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pairs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPair, name)
	}
	p.detector.SetEnabled(on)
	e.log.Info("pair toggled", "pair", name, "enabled", on)
	return nil
}

// Status returns a snapshot view of one pair.
func (e *Engine) Status(name string) (PairStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pairs[name]
	if !ok {
		return PairStatus{}, fmt.Errorf("%w: %s", ErrUnknownPair, name)
	}
	return p.status(), nil
}

// Statuses returns every pair's status sorted by name.
func (e *Engine) Statuses() []PairStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PairStatus, 0, len(e.pairs))
	for _, p := range e.pairs {
		out = append(out, p.status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Indicators returns the current indicator values of a pair.
func (e *Engine) Indicators(name string) []model.IndicatorResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.pairs[name]; ok {
		return p.indicators()
	}
	return nil
}

// Pairs returns the configured pair names, sorted.
func (e *Engine) Pairs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return sortedKeys(e.pairs)
}

// Configs returns the pair configurations the engine currently runs.
func (e *Engine) Configs() []config.PairConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]config.PairConfig(nil), e.cfgs...)
}

// Reload applies a new pair set. Pairs whose engines are unchanged keep
// their warmed state and take the new Enabled flag, changed pairs restart
// cold, and removed pairs are discarded. On error the engine is left unchanged.
func (e *Engine) Reload(pairs []config.PairConfig) error {
	if err := config.ValidatePairs(pairs); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*pair, len(pairs))
	kept, cold := 0, 0
	for _, cfg := range pairs {
		if old, ok := e.pairs[cfg.Name]; ok && samePair(old.cfg, cfg) {
			old.cfg = cfg
			old.detector.SetEnabled(cfg.Enabled)
			next[cfg.Name] = old
			kept++
			continue
		}
		p, err := newPair(cfg)
		if err != nil {
			return err
		}
		next[cfg.Name] = p
		cold++
	}
	removed := 0
	for name := range e.pairs {
		if _, ok := next[name]; !ok {
			removed++
		}
	}

	e.pairs = next
	e.cfgs = append([]config.PairConfig(nil), pairs...)
	e.log.Info("pairs reloaded", "kept", kept, "cold", cold, "removed", removed)
	return nil
}

// samePair compares everything except Enabled.
func samePair(a, b config.PairConfig) bool {
	if a.Name != b.Name || a.Detector().FastConfig() != b.Detector().FastConfig() ||
		a.Detector().SlowConfig() != b.Detector().SlowConfig() {
		return false
	}
	if (a.RSIFilter == nil) != (b.RSIFilter == nil) {
		return false
	}
	if a.RSIFilter != nil && *a.RSIFilter != *b.RSIFilter {
		return false
	}
	if len(a.Indicators) != len(b.Indicators) {
		return false
	}
	for i := range a.Indicators {
		if a.Indicators[i] != b.Indicators[i] {
			return false
		}
	}
	return true
}
