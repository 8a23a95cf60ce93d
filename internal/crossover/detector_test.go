package crossover

import (
	"encoding/json"
	"math/rand"
	"testing"

	"signal-systemv1/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smaDetector(t *testing.T, fast, slow int, enabled bool) *Detector {
	t.Helper()
	d, err := NewFromConfig(Config{
		Kind:             indicator.SMA,
		FastPeriod:       fast,
		SlowPeriod:       slow,
		ProcessingLength: 1,
		Enabled:          enabled,
	})
	require.NoError(t, err)
	return d
}

func run(d *Detector, prices []float64) []Signal {
	out := make([]Signal, len(prices))
	for i, p := range prices {
		out[i] = d.Update(p)
	}
	return out
}

func TestDetector_SingleBuyOnCross(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	got := run(d, []float64{1, 1, 1, 1, 5, 5, 5, 5})

	assert.Equal(t, []Signal{None, None, None, None, Buy, None, None, None}, got)
	assert.Equal(t, Buy, d.LastAction())
	assert.Equal(t, 5.0, d.FastValue().Unwrap())
	assert.Equal(t, 5.0, d.SlowValue().Unwrap())
}

func TestDetector_SellAfterBuy(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	got := run(d, []float64{1, 1, 1, 1, 5, 5, 5, 5, 1, 1})

	// tick 8: fast (5+1)/2=3, slow (5+5+5+1)/4=4 → Sell
	assert.Equal(t, Sell, got[8])
	assert.Equal(t, None, got[9])
	assert.Equal(t, Sell, d.LastAction())
}

func TestDetector_TieNeverEmits(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	for i, s := range run(d, []float64{3, 3, 3, 3, 3, 3}) {
		assert.Equal(t, None, s, "tick %d", i)
	}
	assert.Equal(t, None, d.LastAction())
}

func TestDetector_WarmupLeavesLatch(t *testing.T) {
	d := smaDetector(t, 2, 5, true)
	// Fast is ready from tick 1, slow only from tick 4.
	for i, s := range run(d, []float64{1, 2, 3, 4}) {
		assert.Equal(t, None, s, "tick %d", i)
	}
	assert.Equal(t, None, d.LastAction())
	assert.True(t, d.SlowValue().IsNone())
}

func TestDetector_SignalsAlternate(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, kind := range []indicator.Kind{indicator.SMA, indicator.EMA, indicator.WMA} {
		d, err := NewFromConfig(Config{Kind: kind, FastPeriod: 3, SlowPeriod: 8, ProcessingLength: 1, Enabled: true})
		require.NoError(t, err)

		prev := None
		emitted := 0
		p := 100.0
		for i := 0; i < 5000; i++ {
			p += rng.NormFloat64()
			s := d.Update(p)
			if s == None {
				continue
			}
			emitted++
			require.NotEqual(t, prev, s, "%s tick %d: repeated %s", kind, i, s)
			prev = s
		}
		assert.Greater(t, emitted, 10, kind)
	}
}

func TestDetector_DisabledKeepsEnginesWarm(t *testing.T) {
	prices := []float64{1, 1, 1, 1, 5, 5, 1, 1, 5, 5}

	enabled := smaDetector(t, 2, 4, true)
	disabled := smaDetector(t, 2, 4, false)
	for i, p := range prices {
		enabled.Update(p)
		assert.Equal(t, None, disabled.Update(p), "tick %d", i)
		assert.Equal(t, enabled.FastValue(), disabled.FastValue(), "tick %d", i)
		assert.Equal(t, enabled.SlowValue(), disabled.SlowValue(), "tick %d", i)
	}
	assert.Equal(t, None, disabled.LastAction())

	// Re-enabling resumes detection from the warmed state on the next tick.
	disabled.SetEnabled(true)
	assert.True(t, disabled.Enabled())
	assert.Equal(t, Buy, disabled.Update(5))
}

func TestDetector_DisableKeepsLatch(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	run(d, []float64{1, 1, 1, 1, 5})
	require.Equal(t, Buy, d.LastAction())

	d.SetEnabled(false)
	run(d, []float64{1, 1, 1})
	assert.Equal(t, Buy, d.LastAction())
}

func TestDetector_Evaluate(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	assert.Equal(t, Buy, d.Evaluate(2, 1))
	assert.Equal(t, None, d.Evaluate(3, 1))
	assert.Equal(t, None, d.Evaluate(1, 1))
	assert.Equal(t, Sell, d.Evaluate(1, 2))
	assert.Equal(t, Buy, d.Evaluate(2, 1))
}

func TestDetector_VWAPSamples(t *testing.T) {
	d, err := NewFromConfig(Config{Kind: indicator.VWAP, FastPeriod: 1, SlowPeriod: 3, ProcessingLength: 1, Enabled: true})
	require.NoError(t, err)

	bar := func(p, v float64) indicator.Sample {
		return indicator.Sample{Price: p, High: p, Low: p, Close: p, Volume: v}
	}
	assert.Equal(t, None, d.UpdateSample(bar(10, 100)))
	assert.Equal(t, None, d.UpdateSample(bar(10, 100)))
	// slow: (10*100+10*100+13*100)/300 = 11, fast: 13
	assert.Equal(t, Buy, d.UpdateSample(bar(13, 100)))
}

func TestNew_Errors(t *testing.T) {
	e, err := indicator.New(indicator.Config{Kind: indicator.SMA, SamplingLength: 2, ProcessingLength: 1})
	require.NoError(t, err)

	_, err = New(nil, e, true)
	assert.ErrorIs(t, err, indicator.ErrConfiguration)
	_, err = New(e, e, true)
	assert.ErrorIs(t, err, indicator.ErrConfiguration)

	_, err = NewFromConfig(Config{Kind: indicator.SMA, FastPeriod: 0, SlowPeriod: 4, ProcessingLength: 1})
	assert.ErrorIs(t, err, indicator.ErrConfiguration)
	_, err = NewFromConfig(Config{Kind: indicator.RSI, FastPeriod: 2, SlowPeriod: 4, ProcessingLength: 2})
	assert.ErrorIs(t, err, indicator.ErrConfiguration)
}

func TestDetector_StateRoundTrip(t *testing.T) {
	prices := []float64{1, 1, 1, 1, 5, 5, 4, 3, 2, 2, 3, 6}

	orig := smaDetector(t, 2, 4, true)
	run(orig, prices[:6])

	raw, err := json.Marshal(orig.State())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_action":"BUY"`)

	var st State
	require.NoError(t, json.Unmarshal(raw, &st))

	restored := smaDetector(t, 2, 4, false)
	require.NoError(t, restored.Restore(st, true))
	assert.True(t, restored.Enabled())
	assert.Equal(t, run(orig, prices[6:]), run(restored, prices[6:]))

	other := smaDetector(t, 3, 4, true)
	assert.ErrorIs(t, other.Restore(st, true), indicator.ErrConfiguration)
}

func TestDetector_FailedRestoreLeavesDetector(t *testing.T) {
	cfg := Config{Kind: indicator.VWAP, FastPeriod: 2, SlowPeriod: 3, ProcessingLength: 1, Enabled: true}
	warm, err := NewFromConfig(cfg)
	require.NoError(t, err)
	for _, p := range []float64{10, 11, 12, 13} {
		warm.UpdateSample(indicator.Sample{Price: p, High: p, Low: p, Close: p, Volume: 100})
	}
	st := warm.State()
	require.Len(t, st.Slow.Weights, 3)
	st.Slow.Weights = st.Slow.Weights[:1]

	cold, err := NewFromConfig(cfg)
	require.NoError(t, err)
	before := cold.State()

	err = cold.Restore(st, true)
	assert.ErrorIs(t, err, indicator.ErrConfiguration)
	assert.False(t, cold.Fast().Ready())
	assert.False(t, cold.Slow().Ready())
	assert.Equal(t, before, cold.State())
}

func TestDetector_Reset(t *testing.T) {
	d := smaDetector(t, 2, 4, true)
	run(d, []float64{1, 1, 1, 1, 5})
	d.Reset()

	assert.Equal(t, None, d.LastAction())
	assert.True(t, d.FastValue().IsNone())
	assert.Equal(t, []Signal{None, None, None, None, Buy}, run(d, []float64{1, 1, 1, 1, 5}))
}

func TestSignal_Text(t *testing.T) {
	for _, s := range []Signal{None, Buy, Sell} {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back Signal
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}
	_, err := ParseSignal("hold")
	assert.Error(t, err)
}
