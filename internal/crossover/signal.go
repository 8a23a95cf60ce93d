package crossover

import (
	"fmt"
	"strings"
)

// Signal is the directional output of one Detector update.
type Signal int8

const (
	None Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "NONE"
	}
}

// ParseSignal is the inverse of String, case-insensitive.
func ParseSignal(v string) (Signal, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "NONE":
		return None, nil
	case "BUY":
		return Buy, nil
	case "SELL":
		return Sell, nil
	}
	return None, fmt.Errorf("crossover: unknown signal %q", v)
}

func (s Signal) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signal) UnmarshalText(b []byte) error {
	v, err := ParseSignal(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
