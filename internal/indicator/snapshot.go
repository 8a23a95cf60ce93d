package indicator

import "fmt"

// EngineState is the serializable state of one Engine, used to checkpoint
// and restore a warmed pipeline across restarts.
type EngineState struct {
	Kind             Kind `json:"kind"`
	SamplingLength   int  `json:"sampling_length"`
	ProcessingLength int  `json:"processing_length"`

	Sampled   []float64 `json:"sampled,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
	Processed []float64 `json:"processed,omitempty"`

	EMA       float64 `json:"ema,omitempty"`
	EMASeeded bool    `json:"ema_seeded,omitempty"`

	Current float64 `json:"current"`
	Ready   bool    `json:"ready"`
}

// Config returns the engine configuration the state was taken from.
func (s EngineState) Config() Config {
	return Config{Kind: s.Kind, SamplingLength: s.SamplingLength, ProcessingLength: s.ProcessingLength}
}

// State captures the engine for checkpointing.
func (e *Engine) State() EngineState {
	st := EngineState{
		Kind:             e.cfg.Kind,
		SamplingLength:   e.cfg.SamplingLength,
		ProcessingLength: e.cfg.ProcessingLength,
		EMA:              e.ema.value,
		EMASeeded:        e.ema.seeded,
		Current:          e.current,
		Ready:            e.ready,
	}
	if e.sampling != nil {
		st.Sampled, st.Weights = e.sampling.contents()
	}
	st.Processed, _ = e.processing.contents()
	return st
}

// CheckState reports whether st could be restored into e without changing e.
func (e *Engine) CheckState(st EngineState) error {
	if st.Config() != e.cfg {
		return &ConfigError{
			Field:  "State",
			Reason: fmt.Sprintf("snapshot is for %s, engine is %s", st.Config().name(), e.Name()),
		}
	}
	if e.trait.weighted && len(st.Weights) != len(st.Sampled) {
		return &ConfigError{
			Field:  "State",
			Reason: fmt.Sprintf("weights length %d does not match sampled length %d", len(st.Weights), len(st.Sampled)),
		}
	}
	return nil
}

// Restore loads st into e. On a *ConfigError from CheckState e is left
// untouched.
func (e *Engine) Restore(st EngineState) error {
	if err := e.CheckState(st); err != nil {
		return err
	}

	if e.sampling != nil {
		e.sampling.restore(st.Sampled, st.Weights)
	}
	e.processing.restore(st.Processed, nil)
	e.ema.value = st.EMA
	e.ema.seeded = st.EMASeeded
	e.current = st.Current
	e.ready = st.Ready
	return nil
}
