package indicator

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config describes one engine. SamplingLength is the period for the
// averaging kinds and RSI.
type Config struct {
	Kind             Kind `json:"kind" yaml:"kind" validate:"required"`
	SamplingLength   int  `json:"sampling_length" yaml:"sampling_length" validate:"gte=1"`
	ProcessingLength int  `json:"processing_length" yaml:"processing_length" validate:"gte=1"`
}

// Validate checks window lengths and the kind/processing-length pairing.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{
				Field:  fe.Field(),
				Reason: fmt.Sprintf("must satisfy %s%s, got %v", fe.Tag(), paramSuffix(fe.Param()), fe.Value()),
			}
		}
		return &ConfigError{Reason: "validation failed", Cause: err}
	}

	trait, ok := kindTraits[c.Kind]
	if !ok {
		return &ConfigError{Field: "Kind", Reason: fmt.Sprintf("unknown indicator kind %q", c.Kind)}
	}
	if trait.singleStage && c.ProcessingLength != 1 {
		return &ConfigError{
			Field:  "ProcessingLength",
			Reason: fmt.Sprintf("%s requires processing_length 1, got %d", c.Kind, c.ProcessingLength),
		}
	}
	return nil
}

// ValidateConfigs validates a batch and rejects duplicates, which would
// produce two engines with the same Name.
func ValidateConfigs(cfgs []Config) error {
	seen := make(map[Config]bool, len(cfgs))
	for i, c := range cfgs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config[%d]: %w", i, err)
		}
		if seen[c] {
			return fmt.Errorf("config[%d]: %w", i, &ConfigError{
				Field:  "Kind",
				Reason: fmt.Sprintf("duplicate indicator %s", c.name()),
			})
		}
		seen[c] = true
	}
	return nil
}

func (c Config) name() string {
	if c.ProcessingLength > 1 {
		return fmt.Sprintf("%s_%d_%d", c.Kind, c.SamplingLength, c.ProcessingLength)
	}
	return fmt.Sprintf("%s_%d", c.Kind, c.SamplingLength)
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}
