package strategy

import (
	"context"
	"testing"
	"time"

	"signal-systemv1/config"
	"signal-systemv1/internal/indicator"
	"signal-systemv1/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func smaPair(name string) config.PairConfig {
	return config.PairConfig{
		Name:             name,
		MAType:           "SMA",
		FastPeriod:       2,
		SlowPeriod:       4,
		ProcessingLength: 1,
		Enabled:          true,
	}
}

func tick(pair string, i int, price float64) model.Tick {
	return model.Tick{
		Pair:   pair,
		Price:  decimal.NewFromFloat(price),
		Volume: decimal.NewFromInt(10),
		TS:     base.Add(time.Duration(i) * time.Second),
	}
}

func feed(t *testing.T, e *Engine, pair string, start int, prices []float64) []Outcome {
	t.Helper()
	out := make([]Outcome, 0, len(prices))
	for i, p := range prices {
		o, err := e.Evaluate(tick(pair, start+i, p))
		require.NoError(t, err)
		out = append(out, o)
	}
	return out
}

func actions(outs []Outcome) []string {
	var a []string
	for _, o := range outs {
		if o.Emitted {
			a = append(a, o.Signal.Action)
		} else {
			a = append(a, "")
		}
	}
	return a
}

func TestEngine_EmitsSingleBuy(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("BTC-USDT")}, Options{})
	require.NoError(t, err)

	outs := feed(t, e, "BTC-USDT", 0, []float64{1, 1, 1, 1, 5, 5, 5, 5})
	assert.Equal(t, []string{"", "", "", "", "BUY", "", "", ""}, actions(outs))

	ev := outs[4].Signal
	assert.Equal(t, "BTC-USDT", ev.Pair)
	assert.Equal(t, "SMA", ev.Kind)
	assert.Equal(t, 5.0, ev.Price)
	assert.Equal(t, 3.0, ev.Fast)
	assert.Equal(t, 2.0, ev.Slow)
	assert.Equal(t, base.Add(4*time.Second), ev.TS)
	assert.Equal(t, "SMA_2 crossed above SMA_4", ev.Reason)
	_, err = uuid.Parse(ev.ID)
	assert.NoError(t, err)

	st, err := e.Status("BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BUY", st.LastAction)
	assert.EqualValues(t, 8, st.Ticks)
	assert.EqualValues(t, 1, st.Signals)
	require.NotNil(t, st.LastSignal)
	assert.Equal(t, ev.ID, st.LastSignal.ID)
}

func TestEngine_RSIFilterVetoesButLatches(t *testing.T) {
	cfg := smaPair("ETH-USDT")
	cfg.RSIFilter = &config.RSIFilterConfig{Period: 2, Overbought: 70, Oversold: 30}

	var vetoed []string
	e, err := NewEngine([]config.PairConfig{cfg}, Options{
		OnSuppressed: func(pair, action, reason string) { vetoed = append(vetoed, pair+":"+action) },
	})
	require.NoError(t, err)

	// RSI(2) over [1,1,5] is 100: the golden cross is overbought.
	outs := feed(t, e, "ETH-USDT", 0, []float64{1, 1, 1, 1, 5, 6})
	for _, o := range outs {
		assert.False(t, o.Emitted)
	}
	assert.Contains(t, outs[4].Suppressed, "overbought")
	assert.Equal(t, []string{"ETH-USDT:BUY"}, vetoed)

	st, err := e.Status("ETH-USDT")
	require.NoError(t, err)
	assert.Equal(t, "BUY", st.LastAction)
	assert.EqualValues(t, 1, st.Suppressed)
	require.NotNil(t, st.RSI)
	assert.Equal(t, 100.0, *st.RSI)
}

func TestEngine_RSIFilterAllowsNeutral(t *testing.T) {
	cfg := smaPair("ETH-USDT")
	cfg.RSIFilter = &config.RSIFilterConfig{Period: 4, Overbought: 90, Oversold: 10}
	e, err := NewEngine([]config.PairConfig{cfg}, Options{})
	require.NoError(t, err)

	// RSI(4) over [3,1,2,1,4]: gains 1+3=4, losses 2+1=3 → ~57 → allowed.
	outs := feed(t, e, "ETH-USDT", 0, []float64{3, 1, 2, 1, 4})
	assert.True(t, outs[4].Emitted)
	assert.Equal(t, "BUY", outs[4].Signal.Action)
}

func TestEngine_UnknownPairAndBadTick(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A")}, Options{})
	require.NoError(t, err)

	_, err = e.Evaluate(tick("B", 0, 1))
	assert.ErrorIs(t, err, ErrUnknownPair)

	_, err = e.Evaluate(tick("A", 0, 0))
	assert.ErrorIs(t, err, model.ErrTickBadPx)

	_, ok := e.Process(tick("B", 0, 1))
	assert.False(t, ok)

	_, err = e.Evaluate(tick("A", 3, 1))
	require.NoError(t, err)
	_, err = e.Evaluate(tick("A", 3, 1))
	assert.ErrorIs(t, err, ErrStaleTick)
	_, err = e.Evaluate(tick("A", 2, 1))
	assert.ErrorIs(t, err, ErrStaleTick)

	assert.ErrorIs(t, e.SetEnabled("B", false), ErrUnknownPair)
	_, err = e.Status("B")
	assert.ErrorIs(t, err, ErrUnknownPair)
	assert.Nil(t, e.Indicators("B"))
}

func TestEngine_DisabledPairStaysWarm(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A")}, Options{})
	require.NoError(t, err)
	require.NoError(t, e.SetEnabled("A", false))

	outs := feed(t, e, "A", 0, []float64{1, 1, 1, 1, 5, 5})
	assert.Equal(t, []string{"", "", "", "", "", ""}, actions(outs))

	st, _ := e.Status("A")
	assert.False(t, st.Enabled)
	assert.Equal(t, "NONE", st.LastAction)
	require.NotNil(t, st.Fast)
	assert.Equal(t, 5.0, *st.Fast)

	require.NoError(t, e.SetEnabled("A", true))
	outs = feed(t, e, "A", 6, []float64{5})
	assert.True(t, outs[0].Emitted)
}

func TestEngine_PairsAreIndependent(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A"), smaPair("B")}, Options{})
	require.NoError(t, err)

	feed(t, e, "A", 0, []float64{1, 1, 1, 1, 5})
	feed(t, e, "B", 0, []float64{5, 5, 5, 5})

	a, _ := e.Status("A")
	b, _ := e.Status("B")
	assert.Equal(t, "BUY", a.LastAction)
	assert.Equal(t, "NONE", b.LastAction)
	assert.Equal(t, []string{"A", "B"}, e.Pairs())
	assert.Len(t, e.Statuses(), 2)
}

func TestEngine_StatusWarmup(t *testing.T) {
	filtered := smaPair("B")
	filtered.RSIFilter = &config.RSIFilterConfig{Period: 14, Overbought: 70, Oversold: 30}
	e, err := NewEngine([]config.PairConfig{smaPair("A"), filtered}, Options{})
	require.NoError(t, err)

	a, _ := e.Status("A")
	b, _ := e.Status("B")
	assert.Equal(t, 4, a.Warmup)
	assert.Equal(t, 15, b.Warmup)
}

func TestEngine_Run(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A")}, Options{})
	require.NoError(t, err)

	in := make(chan model.Tick, 16)
	out := make(chan model.SignalEvent, 16)
	for i, p := range []float64{1, 1, 1, 1, 5, 5, 1, 1} {
		in <- tick("A", i, p)
	}
	close(in)

	e.Run(context.Background(), in, out)
	close(out)

	var got []string
	for ev := range out {
		got = append(got, ev.Action)
	}
	assert.Equal(t, []string{"BUY", "SELL"}, got)
}

func TestEngine_Indicators(t *testing.T) {
	cfg := smaPair("A")
	cfg.RSIFilter = &config.RSIFilterConfig{Period: 2, Overbought: 70, Oversold: 30}
	cfg.Indicators = []indicator.Config{{Kind: indicator.VWAP, SamplingLength: 2, ProcessingLength: 1}}
	e, err := NewEngine([]config.PairConfig{cfg}, Options{})
	require.NoError(t, err)

	feed(t, e, "A", 0, []float64{10, 20})
	res := e.Indicators("A")
	require.Len(t, res, 4)

	names := []string{res[0].Name, res[1].Name, res[2].Name, res[3].Name}
	assert.Equal(t, []string{"SMA_2", "SMA_4", "RSI_2", "VWAP_2"}, names)
	assert.True(t, res[0].Ready)
	assert.Equal(t, 15.0, res[0].Value)
	assert.False(t, res[1].Ready)
	assert.Equal(t, 15.0, res[3].Value)
	assert.Equal(t, base.Add(time.Second), res[3].TS)
}

func TestEngine_Warmup(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A")}, Options{})
	require.NoError(t, err)

	var hist []model.Tick
	for i, p := range []float64{1, 1, 1, 1, 5, 5} {
		hist = append(hist, tick("A", i, p))
	}
	hist = append(hist, tick("A", 2, 100)) // out of order, skipped
	hist = append(hist, tick("Z", 9, 1))   // unknown pair, skipped

	assert.Equal(t, 6, e.Warmup(hist))

	st, _ := e.Status("A")
	assert.Equal(t, "BUY", st.LastAction)
	assert.EqualValues(t, 0, st.Signals)
	assert.Nil(t, st.LastSignal)

	// Still on the buy side: nothing new fires.
	outs := feed(t, e, "A", 6, []float64{5})
	assert.False(t, outs[0].Emitted)
}

func TestEngine_Reload(t *testing.T) {
	e, err := NewEngine([]config.PairConfig{smaPair("A"), smaPair("B"), smaPair("C")}, Options{})
	require.NoError(t, err)
	for _, p := range []string{"A", "B", "C"} {
		feed(t, e, p, 0, []float64{1, 2, 3, 4})
	}

	changed := smaPair("B")
	changed.SlowPeriod = 3
	disabled := smaPair("A")
	disabled.Enabled = false
	require.NoError(t, e.Reload([]config.PairConfig{disabled, changed, smaPair("D")}))

	assert.Equal(t, []string{"A", "B", "D"}, e.Pairs())

	a, _ := e.Status("A")
	assert.NotNil(t, a.Slow, "unchanged pair keeps warm state")
	assert.False(t, a.Enabled)

	b, _ := e.Status("B")
	assert.Nil(t, b.Fast, "changed pair restarts cold")

	bad := smaPair("A")
	bad.FastPeriod = 0
	assert.Error(t, e.Reload([]config.PairConfig{bad}))
	assert.Equal(t, []string{"A", "B", "D"}, e.Pairs())
	assert.Len(t, e.Configs(), 3)
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine([]config.PairConfig{smaPair("A"), smaPair("A")}, Options{})
	assert.Error(t, err)

	bad := smaPair("A")
	bad.MAType = "RSI"
	bad.ProcessingLength = 2
	_, err = NewEngine([]config.PairConfig{bad}, Options{})
	assert.ErrorIs(t, err, indicator.ErrConfiguration)
}
