package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"signal-systemv1/internal/crossover"
	"signal-systemv1/internal/indicator"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// PairConfig is the strategy configuration for one trading pair.
type PairConfig struct {
	Name             string `yaml:"name" json:"name" validate:"required"`
	MAType           string `yaml:"ma_type" json:"ma_type" validate:"required,oneof=SMA EMA WMA RSI VWAP VOLUME VOLUME_AVERAGE"`
	FastPeriod       int    `yaml:"fast_period" json:"fast_period" validate:"gte=1,nefield=SlowPeriod"`
	SlowPeriod       int    `yaml:"slow_period" json:"slow_period" validate:"gte=1"`
	ProcessingLength int    `yaml:"processing_length" json:"processing_length" validate:"gte=1"`
	Enabled          bool   `yaml:"enabled" json:"enabled"`

	// RSIFilter, when set, suppresses buys into overbought and sells into
	// oversold conditions.
	RSIFilter *RSIFilterConfig `yaml:"rsi_filter,omitempty" json:"rsi_filter,omitempty"`

	// Indicators are extra engines computed for the pair and published
	// alongside the crossover lines.
	Indicators []indicator.Config `yaml:"indicators,omitempty" json:"indicators,omitempty" validate:"dive"`
}

// RSIFilterConfig bounds the RSI filter.
type RSIFilterConfig struct {
	Period     int     `yaml:"period" json:"period" validate:"gte=1"`
	Overbought float64 `yaml:"overbought" json:"overbought" validate:"gt=0,lte=100,gtfield=Oversold"`
	Oversold   float64 `yaml:"oversold" json:"oversold" validate:"gte=0,lt=100"`
}

// Detector returns the crossover configuration of the pair.
func (p PairConfig) Detector() crossover.Config {
	return crossover.Config{
		Kind:             indicator.Kind(p.MAType),
		FastPeriod:       p.FastPeriod,
		SlowPeriod:       p.SlowPeriod,
		ProcessingLength: p.ProcessingLength,
		Enabled:          p.Enabled,
	}
}

// DefaultPair is an SMA 9/21 crossover with an RSI(14) 70/30 filter and
// VWAP/volume-average companions.
func DefaultPair(name string) PairConfig {
	return PairConfig{
		Name:             name,
		MAType:           string(indicator.SMA),
		FastPeriod:       9,
		SlowPeriod:       21,
		ProcessingLength: 1,
		Enabled:          true,
		RSIFilter:        &RSIFilterConfig{Period: 14, Overbought: 70, Oversold: 30},
		Indicators: []indicator.Config{
			{Kind: indicator.VWAP, SamplingLength: 20, ProcessingLength: 1},
			{Kind: indicator.VolumeAverage, SamplingLength: 20, ProcessingLength: 1},
		},
	}
}

// pairsFile is the on-disk layout of PAIRS_FILE.
type pairsFile struct {
	Pairs []rawPair `yaml:"pairs"`
}

// rawPair lets absent keys take defaults: processing_length 1, enabled true.
type rawPair struct {
	Name             string             `yaml:"name"`
	MAType           string             `yaml:"ma_type"`
	FastPeriod       int                `yaml:"fast_period"`
	SlowPeriod       int                `yaml:"slow_period"`
	ProcessingLength *int               `yaml:"processing_length"`
	Enabled          *bool              `yaml:"enabled"`
	RSIFilter        *RSIFilterConfig   `yaml:"rsi_filter"`
	Indicators       []indicator.Config `yaml:"indicators"`
}

// LoadPairsFile reads and validates a YAML pairs file.
func LoadPairsFile(path string) ([]PairConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pairs file: %w", err)
	}
	return ParsePairs(data)
}

// ParsePairs decodes a YAML document of the form `pairs: [...]`.
func ParsePairs(data []byte) ([]PairConfig, error) {
	var f pairsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pairs: %w", err)
	}

	pairs := make([]PairConfig, 0, len(f.Pairs))
	for _, rp := range f.Pairs {
		p := PairConfig{
			Name:             strings.TrimSpace(rp.Name),
			MAType:           strings.ToUpper(strings.TrimSpace(rp.MAType)),
			FastPeriod:       rp.FastPeriod,
			SlowPeriod:       rp.SlowPeriod,
			ProcessingLength: 1,
			Enabled:          true,
			RSIFilter:        rp.RSIFilter,
			Indicators:       rp.Indicators,
		}
		if rp.ProcessingLength != nil {
			p.ProcessingLength = *rp.ProcessingLength
		}
		if rp.Enabled != nil {
			p.Enabled = *rp.Enabled
		}
		for i, ind := range p.Indicators {
			kind, err := indicator.ParseKind(string(ind.Kind))
			if err != nil {
				return nil, fmt.Errorf("pair %q indicator %d: %w", p.Name, i, err)
			}
			p.Indicators[i].Kind = kind
			if ind.ProcessingLength == 0 {
				p.Indicators[i].ProcessingLength = 1
			}
		}
		pairs = append(pairs, p)
	}

	if err := ValidatePairs(pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// ValidatePairs checks struct tags, kind rules and name uniqueness.
func ValidatePairs(pairs []PairConfig) error {
	if len(pairs) == 0 {
		return errors.New("no pairs configured")
	}
	seen := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("pair %q: %w", p.Name, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("pair %q: duplicate name", p.Name)
		}
		seen[p.Name] = true

		det := p.Detector()
		if err := det.FastConfig().Validate(); err != nil {
			return fmt.Errorf("pair %q: %w", p.Name, err)
		}
		if err := indicator.ValidateConfigs(p.Indicators); err != nil {
			return fmt.Errorf("pair %q: %w", p.Name, err)
		}
	}
	return nil
}
