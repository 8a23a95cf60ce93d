package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/crossover"
	"signal-systemv1/internal/indicator"
)

// SnapshotVersion is bumped on incompatible layout changes.
const SnapshotVersion = 1

// EngineSnapshot holds the full state of the strategy engine.
type EngineSnapshot struct {
	Version int            `json:"version"`
	TakenAt time.Time      `json:"taken_at"`
	Pairs   []PairSnapshot `json:"pairs"`
}

// PairSnapshot holds one pair's engines and counters.
type PairSnapshot struct {
	Name       string                  `json:"name"`
	Detector   crossover.State         `json:"detector"`
	RSI        *indicator.EngineState  `json:"rsi,omitempty"`
	Indicators []indicator.EngineState `json:"indicators,omitempty"`
	LastTS     time.Time               `json:"last_ts"`
	LastPrice  float64                 `json:"last_price"`
	Ticks      uint64                  `json:"ticks"`
	Signals    uint64                  `json:"signals"`
	Suppressed uint64                  `json:"suppressed"`
}

// Snapshot captures every pair.
func (e *Engine) Snapshot() *EngineSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &EngineSnapshot{Version: SnapshotVersion, TakenAt: time.Now().UTC()}
	for _, name := range sortedKeys(e.pairs) {
		p := e.pairs[name]
		ps := PairSnapshot{
			Name:       name,
			Detector:   p.detector.State(),
			LastTS:     p.lastTS,
			LastPrice:  p.lastPrice,
			Ticks:      p.ticks,
			Signals:    p.signals,
			Suppressed: p.suppressed,
		}
		if p.rsi != nil {
			st := p.rsi.State()
			ps.RSI = &st
		}
		for _, x := range p.extras {
			ps.Indicators = append(ps.Indicators, x.State())
		}
		snap.Pairs = append(snap.Pairs, ps)
	}
	return snap
}

// MarshalSnapshot encodes the current state for a model.SnapshotStore.
func (e *Engine) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// UnmarshalSnapshot decodes a stored snapshot and checks its version.
func UnmarshalSnapshot(data []byte) (*EngineSnapshot, error) {
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}
	return &snap, nil
}

// RestoreEngine builds an engine for pairs and loads whatever the snapshot
// still fits. It tolerates config changes: pairs are matched by name and
// engines by configuration. Anything that does not match starts cold and
// removed pairs are skipped. The pairs file decides Enabled.
func RestoreEngine(pairs []config.PairConfig, snap *EngineSnapshot, opts Options) (*Engine, error) {
	e, err := NewEngine(pairs, opts)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return e, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ps := range snap.Pairs {
		p, ok := e.pairs[ps.Name]
		if !ok {
			e.log.Info("snapshot pair no longer configured", "pair", ps.Name)
			continue
		}
		if err := p.detector.Restore(ps.Detector, false); err != nil {
			e.log.Warn("detector cold start", "pair", ps.Name, "err", err)
			continue
		}
		p.lastTS, p.lastPrice = ps.LastTS, ps.LastPrice
		p.ticks, p.signals, p.suppressed = ps.Ticks, ps.Signals, ps.Suppressed

		restored, cold := 0, 0
		if p.rsi != nil {
			if ps.RSI != nil && p.rsi.Restore(*ps.RSI) == nil {
				restored++
			} else {
				cold++
			}
		}

		byCfg := make(map[indicator.Config]indicator.EngineState, len(ps.Indicators))
		for _, st := range ps.Indicators {
			byCfg[st.Config()] = st
		}
		for _, x := range p.extras {
			st, found := byCfg[x.Config()]
			if found && x.Restore(st) == nil {
				restored++
				continue
			}
			cold++
		}
		if cold > 0 {
			e.log.Info("pair partially restored", "pair", ps.Name, "restored", restored, "cold", cold)
		}
	}
	return e, nil
}

func sortedKeys(m map[string]*pair) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
