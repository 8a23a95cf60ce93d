package indicator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"zero sampling", Config{Kind: SMA, SamplingLength: 0, ProcessingLength: 1}, "SamplingLength"},
		{"negative processing", Config{Kind: SMA, SamplingLength: 5, ProcessingLength: -1}, "ProcessingLength"},
		{"missing kind", Config{SamplingLength: 5, ProcessingLength: 1}, "Kind"},
		{"unknown kind", Config{Kind: "MACD", SamplingLength: 5, ProcessingLength: 1}, "Kind"},
		{"rsi with processing window", Config{Kind: RSI, SamplingLength: 14, ProcessingLength: 3}, "ProcessingLength"},
		{"ema with processing window", Config{Kind: EMA, SamplingLength: 9, ProcessingLength: 2}, "ProcessingLength"},
		{"vwap with processing window", Config{Kind: VWAP, SamplingLength: 9, ProcessingLength: 2}, "ProcessingLength"},
		{"volume with processing window", Config{Kind: Volume, SamplingLength: 1, ProcessingLength: 2}, "ProcessingLength"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestNew_AcceptsTwoStageKinds(t *testing.T) {
	for _, k := range []Kind{SMA, WMA, VolumeAverage} {
		_, err := New(Config{Kind: k, SamplingLength: 3, ProcessingLength: 4})
		assert.NoError(t, err, k)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" volume_average ")
	require.NoError(t, err)
	assert.Equal(t, VolumeAverage, k)

	_, err = ParseKind("bollinger")
	assert.ErrorIs(t, err, ErrConfiguration)

	for _, k := range Kinds() {
		assert.True(t, k.Valid())
	}
	assert.False(t, Kind("MACD").Valid())
}

func TestValidateConfigs_Duplicate(t *testing.T) {
	err := ValidateConfigs([]Config{
		{Kind: SMA, SamplingLength: 9, ProcessingLength: 1},
		{Kind: EMA, SamplingLength: 9, ProcessingLength: 1},
		{Kind: SMA, SamplingLength: 9, ProcessingLength: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "config[2]")
	assert.Contains(t, err.Error(), "SMA_9")
}

func TestEngine_Name(t *testing.T) {
	assert.Equal(t, "SMA_20", mustEngine(t, SMA, 20, 1).Name())
	assert.Equal(t, "VOLUME_AVERAGE_20_5", mustEngine(t, VolumeAverage, 20, 5).Name())
	assert.Equal(t, "RSI_14", mustEngine(t, RSI, 14, 1).Name())
}

func TestEngine_StickyCurrent(t *testing.T) {
	e := mustEngine(t, SMA, 2, 1)
	assert.True(t, e.Current().IsNone())
	assert.False(t, e.Ready())

	e.UpdatePrice(4)
	e.UpdatePrice(6)
	require.True(t, e.Ready())
	assert.Equal(t, 5.0, e.Current().Unwrap())

	// Current does not advance the engine.
	assert.Equal(t, 5.0, e.Current().Unwrap())
}

func TestEngine_Reset(t *testing.T) {
	for _, k := range Kinds() {
		t.Run(string(k), func(t *testing.T) {
			e := mustEngine(t, k, 2, 1)
			for i := 0; i < 5; i++ {
				e.Update(Sample{Price: float64(10 + i), Volume: 100})
			}
			require.True(t, e.Ready())

			e.Reset()
			assert.False(t, e.Ready())
			assert.True(t, e.Current().IsNone())

			// Warm-up starts over after a reset.
			fresh := mustEngine(t, k, 2, 1)
			for i := 0; i < 3; i++ {
				s := Sample{Price: float64(50 - i), Volume: 10}
				assert.Equal(t, fresh.Update(s), e.Update(s), "tick %d", i)
			}
		})
	}
}

func TestEngine_Warmup(t *testing.T) {
	tests := []struct {
		cfg  Config
		want int
	}{
		{Config{Kind: SMA, SamplingLength: 5, ProcessingLength: 1}, 5},
		{Config{Kind: SMA, SamplingLength: 5, ProcessingLength: 3}, 7},
		{Config{Kind: EMA, SamplingLength: 9, ProcessingLength: 1}, 1},
		{Config{Kind: RSI, SamplingLength: 14, ProcessingLength: 1}, 15},
	}
	for _, tt := range tests {
		e, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.want, e.Warmup(), e.Name())

		for i := 0; i < tt.want-1; i++ {
			e.UpdatePrice(float64(i + 1))
		}
		assert.False(t, e.Ready(), e.Name())
		e.UpdatePrice(float64(tt.want))
		assert.True(t, e.Ready(), e.Name())
	}
}

func TestSample_TypicalPrice(t *testing.T) {
	assert.Equal(t, 7.0, PriceSample(7).TypicalPrice())
	assert.Equal(t, 10.0, Sample{High: 12, Low: 8, Close: 10}.TypicalPrice())
}
