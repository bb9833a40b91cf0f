// Package input decodes the documents handed to the pipeline by its collaborators:
// the scraped price set and the exchange-rate feed.
//
// JSON objects are read token by token so that country order survives decoding.
package input

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// PlanRow is one scraped plan.
type PlanRow struct {
	Plan              string  `json:"plan"`
	Price             string  `json:"price"`
	LastPublishedDate *string `json:"last_published_date,omitempty"`
}

// Country is one country's scraped plans.
type Country struct {
	Code  string
	Plans []PlanRow
}

// ScrapeSet is the scraped price set in source order.
type ScrapeSet []Country

// ParseScrapeSet decodes a JSON object of country code to plan rows.
// Keys starting with "_" carry metadata and are skipped. A repeated country
// replaces the earlier entry in place.
func ParseScrapeSet(r io.Reader) (ScrapeSet, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to read scrape set: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("scrape set must be a JSON object, got %v", tok)
	}

	var set ScrapeSet
	seen := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read country key: %w", err)
		}
		key, _ := keyTok.(string)

		if strings.HasPrefix(key, "_") {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("failed to skip %s: %w", key, err)
			}
			continue
		}

		var rows []PlanRow
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("failed to decode plans for %s: %w", key, err)
		}
		code := strings.ToUpper(strings.TrimSpace(key))
		if i, dup := seen[code]; dup {
			set[i].Plans = rows
			continue
		}
		seen[code] = len(set)
		set = append(set, Country{Code: code, Plans: rows})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("unterminated scrape set: %w", err)
	}
	return set, nil
}

// ParseScrapeSetFile reads a scrape set from disk.
func ParseScrapeSetFile(path string) (ScrapeSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scrape set: %w", err)
	}
	defer f.Close()
	return ParseScrapeSet(f)
}

// MarshalJSON writes the set as an object in source order.
func (s ScrapeSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Code)
		if err != nil {
			return nil, err
		}
		plans := c.Plans
		if plans == nil {
			plans = []PlanRow{}
		}
		val, err := json.Marshal(plans)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Codes returns the country codes in order.
func (s ScrapeSet) Codes() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Code
	}
	return out
}
