// Package reference provides the immutable lookup tables the pipeline runs against:
// country profiles, the currency symbol table and the plan-name map.
//
// Defaults are embedded; an optional YAML file can override individual entries.
// A loaded Data value is never mutated and is safe to share across goroutines.
package reference

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"subscription-cost/pkg/util"
)

//go:embed countries.yaml
var countriesYAML []byte

//go:embed plans.yaml
var plansYAML []byte

// CountryProfile holds a storefront's currency and number-format conventions.
type CountryProfile struct {
	Code              string `yaml:"-" json:"code"`
	NameEN            string `yaml:"name_en" json:"name_en"`
	NameCN            string `yaml:"name_cn" json:"name_cn"`
	Currency          string `yaml:"currency" json:"currency"`
	Symbol            string `yaml:"symbol" json:"symbol"`
	DecimalSeparator  string `yaml:"decimal" json:"decimal_separator"`
	ThousandSeparator string `yaml:"thousand" json:"thousand_separator"`
}

// DisplayName returns the Chinese name for "cn" and the English name otherwise.
// Falls back to the code when the requested name is blank.
func (p CountryProfile) DisplayName(lang string) string {
	name := p.NameEN
	if strings.EqualFold(lang, "cn") || strings.EqualFold(lang, "zh") {
		name = p.NameCN
	}
	if name == "" {
		return p.Code
	}
	return name
}

// Validate checks the separator domains.
func (p CountryProfile) Validate() error {
	if p.DecimalSeparator != "." && p.DecimalSeparator != "," {
		return fmt.Errorf("country %s: decimal separator %q must be '.' or ','", p.Code, p.DecimalSeparator)
	}
	switch p.ThousandSeparator {
	case ".", ",", "":
	default:
		return fmt.Errorf("country %s: thousand separator %q must be '.', ',' or empty", p.Code, p.ThousandSeparator)
	}
	return nil
}

// Data is one loaded set of reference tables.
type Data struct {
	countries map[string]CountryProfile
	plans     map[string]string
}

type fileFormat struct {
	Countries map[string]CountryProfile `yaml:"countries"`
	Plans     map[string]string         `yaml:"plans"`
}

var (
	defaultOnce sync.Once
	defaultData *Data
	defaultErr  error
)

// Default returns the embedded reference tables.
func Default() *Data {
	defaultOnce.Do(func() {
		defaultData, defaultErr = parse(countriesYAML, plansYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("reference: embedded tables invalid: %v", defaultErr))
	}
	return defaultData
}

// Load returns the embedded tables with the entries of the YAML file at path
// merged over them. An empty path returns the defaults.
func Load(path string) (*Data, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}
	var override fileFormat
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return nil, fmt.Errorf("failed to parse reference file: %w", err)
	}

	merged := &Data{
		countries: make(map[string]CountryProfile, len(base.countries)+len(override.Countries)),
		plans:     make(map[string]string, len(base.plans)+len(override.Plans)),
	}
	for k, v := range base.countries {
		merged.countries[k] = v
	}
	for k, v := range base.plans {
		merged.plans[k] = v
	}
	if err := merged.addCountries(override.Countries); err != nil {
		return nil, err
	}
	merged.addPlans(override.Plans)
	return merged, nil
}

// New builds reference tables from explicit profiles and plan names.
func New(countries []CountryProfile, plans map[string]string) (*Data, error) {
	d := &Data{
		countries: make(map[string]CountryProfile, len(countries)),
		plans:     make(map[string]string, len(plans)),
	}
	byCode := make(map[string]CountryProfile, len(countries))
	for _, c := range countries {
		byCode[c.Code] = c
	}
	if err := d.addCountries(byCode); err != nil {
		return nil, err
	}
	d.addPlans(plans)
	return d, nil
}

func parse(countries, plans []byte) (*Data, error) {
	var c, p fileFormat
	if err := yaml.Unmarshal(countries, &c); err != nil {
		return nil, fmt.Errorf("countries: %w", err)
	}
	if err := yaml.Unmarshal(plans, &p); err != nil {
		return nil, fmt.Errorf("plans: %w", err)
	}
	d := &Data{
		countries: make(map[string]CountryProfile, len(c.Countries)),
		plans:     make(map[string]string, len(p.Plans)),
	}
	if err := d.addCountries(c.Countries); err != nil {
		return nil, err
	}
	d.addPlans(p.Plans)
	return d, nil
}

func (d *Data) addCountries(in map[string]CountryProfile) error {
	for code, profile := range in {
		code = strings.ToUpper(strings.TrimSpace(code))
		profile.Code = code
		profile.Currency = strings.ToUpper(strings.TrimSpace(profile.Currency))
		if err := profile.Validate(); err != nil {
			return err
		}
		d.countries[code] = profile
	}
	return nil
}

func (d *Data) addPlans(in map[string]string) {
	for label, name := range in {
		d.plans[strings.ToLower(strings.TrimSpace(label))] = name
	}
}

// Country looks up a profile by ISO code, case-insensitively.
func (d *Data) Country(code string) (CountryProfile, bool) {
	p, ok := d.countries[strings.ToUpper(strings.TrimSpace(code))]
	return p, ok
}

// Countries returns every profile sorted by code.
func (d *Data) Countries() []CountryProfile {
	out := make([]CountryProfile, 0, len(d.countries))
	for _, p := range d.countries {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// StandardPlanName maps a storefront label to its standard English name.
// Unmapped labels are whitespace-collapsed and title-cased.
func (d *Data) StandardPlanName(label string) string {
	if name, ok := d.plans[strings.ToLower(strings.TrimSpace(label))]; ok {
		return name
	}
	return util.TitleCase(util.NormalizeSpaces(label))
}
