package crossover

import (
	"fmt"

	"signal-systemv1/internal/indicator"
)

// State is the serializable state of a Detector.
type State struct {
	Fast       indicator.EngineState `json:"fast"`
	Slow       indicator.EngineState `json:"slow"`
	LastAction Signal                `json:"last_action"`
	Enabled    bool                  `json:"enabled"`
}

// State captures the detector for checkpointing.
func (d *Detector) State() State {
	return State{
		Fast:       d.fast.State(),
		Slow:       d.slow.State(),
		LastAction: d.lastAction,
		Enabled:    d.enabled,
	}
}

// Restore loads st. Both engine states are checked before either engine
// changes, so a failed Restore leaves the detector as it was.
// When restoreEnabled is false the current enabled flag wins over the
// snapshot, so configuration can override a checkpoint.
func (d *Detector) Restore(st State, restoreEnabled bool) error {
	if st.Fast.Config() != d.fast.Config() || st.Slow.Config() != d.slow.Config() {
		return fmt.Errorf("crossover: snapshot engines do not match detector %s/%s: %w",
			d.fast.Name(), d.slow.Name(), indicator.ErrConfiguration)
	}
	if err := d.fast.CheckState(st.Fast); err != nil {
		return fmt.Errorf("fast: %w", err)
	}
	if err := d.slow.CheckState(st.Slow); err != nil {
		return fmt.Errorf("slow: %w", err)
	}
	if err := d.fast.Restore(st.Fast); err != nil {
		return fmt.Errorf("fast: %w", err)
	}
	if err := d.slow.Restore(st.Slow); err != nil {
		return fmt.Errorf("slow: %w", err)
	}
	d.lastAction = st.LastAction
	if restoreEnabled {
		d.enabled = st.Enabled
	}
	return nil
}
