package input

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// RateFeed is the exchange-rate payload of openexchangerates.org. Only Rates is required.
type RateFeed struct {
	Base      string             `json:"base,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
	Rates     map[string]float64 `json:"rates"`
}

// ParseRates accepts either a full feed payload or a bare object of code to rate.
func ParseRates(r io.Reader) (map[string]float64, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode rates: %w", err)
	}

	if nested, ok := raw["rates"]; ok {
		var feed RateFeed
		if err := json.Unmarshal(nested, &feed.Rates); err != nil {
			return nil, fmt.Errorf("failed to decode rates object: %w", err)
		}
		if base, ok := raw["base"]; ok {
			if err := json.Unmarshal(base, &feed.Base); err == nil && feed.Base != "" && feed.Base != "USD" {
				return nil, fmt.Errorf("rates must be anchored at USD, got %s", feed.Base)
			}
		}
		return feed.Rates, nil
	}

	out := make(map[string]float64, len(raw))
	for code, v := range raw {
		var rate float64
		if err := json.Unmarshal(v, &rate); err != nil {
			return nil, fmt.Errorf("rate for %s is not a number: %w", code, err)
		}
		out[code] = rate
	}
	return out, nil
}

// ParseRatesFile reads rates from disk.
func ParseRatesFile(path string) (map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rates file: %w", err)
	}
	defer f.Close()
	return ParseRates(f)
}
