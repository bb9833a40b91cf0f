// Package scrape collects the per-country price tables from the Disney+ help center.
package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"subscription-cost/pkg/platform"
)

// DefaultBaseURL is the help-center host.
const DefaultBaseURL = "https://help.disneyplus.com"

const (
	localizationClass = "@udd/01p5f00000e1rTi"
	articleClass      = "@udd/01p5f00000ebl3g"
	brand             = "Disney"
)

// Locale is one language a country's help center is published in.
type Locale struct {
	LocaleCode  string `json:"localeCode"`
	MasterLabel string `json:"masterLabel"`
}

// CountryLocales lists a country's locales in the order the help center returns them.
type CountryLocales struct {
	Code    string
	Locales []Locale
}

// LocalizationClient lists the countries and locales the help center serves.
type LocalizationClient struct {
	baseURL string
	http    *platform.HTTPClient
}

// NewLocalizationClient creates a client against baseURL.
func NewLocalizationClient(baseURL string, h *platform.HTTPClient) *LocalizationClient {
	return &LocalizationClient{baseURL: strings.TrimRight(baseURL, "/"), http: h}
}

// Countries fetches the country to locale map, preserving country order.
func (c *LocalizationClient) Countries(ctx context.Context) ([]CountryLocales, error) {
	params, _ := json.Marshal(map[string]string{"brand": brand, "selectedLanguage": "de"})
	q := url.Values{}
	q.Set("cacheable", "true")
	q.Set("classname", localizationClass)
	q.Set("isContinuation", "false")
	q.Set("method", "getCountryLanguageLocalization")
	q.Set("namespace", "")
	q.Set("params", string(params))
	q.Set("language", "de")
	q.Set("asGuest", "true")
	q.Set("htmlEncode", "false")

	body, err := c.http.Get(ctx, c.baseURL+"/de/webruntime/api/apex/execute?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch localization: %w", err)
	}

	var envelope struct {
		ReturnValue json.RawMessage `json:"returnValue"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode localization: %w", err)
	}
	if len(envelope.ReturnValue) == 0 {
		return nil, fmt.Errorf("localization response has no returnValue")
	}
	return decodeCountries(envelope.ReturnValue)
}

func decodeCountries(raw json.RawMessage) ([]CountryLocales, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("localization must be an object, got %v", tok)
	}

	var out []CountryLocales
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		code, _ := keyTok.(string)
		var info struct {
			LanInfo []Locale `json:"lanInfo"`
		}
		if err := dec.Decode(&info); err != nil {
			return nil, fmt.Errorf("failed to decode locales for %s: %w", code, err)
		}
		out = append(out, CountryLocales{Code: code, Locales: info.LanInfo})
	}
	return out, nil
}

// PickLocale returns the first English locale, else the first listed.
func PickLocale(locales []Locale) (Locale, bool) {
	for _, l := range locales {
		if strings.HasPrefix(l.LocaleCode, "en-") {
			return l, true
		}
	}
	if len(locales) == 0 {
		return Locale{}, false
	}
	return locales[0], true
}
