// Package policy provides the report quality gate.
// Evaluates data-quality policies against a finished normalization run
package policy

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"subscription-cost/decision/normalize"
)

// PolicyType defines the type of policy
type PolicyType string

const (
	PolicyTypeConversionCoverage PolicyType = "conversion_coverage"
	PolicyTypeUnknownCurrency    PolicyType = "unknown_currency"
	PolicyTypeRankingPresent     PolicyType = "ranking_present"
	PolicyTypeSkippedCountries   PolicyType = "skipped_countries"
)

// Severity defines policy violation severity
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Decision is the policy evaluation outcome
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionWarn Decision = "warn"
	DecisionDeny Decision = "deny"
)

// Policy defines a quality rule
type Policy struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Type        PolicyType `json:"type" yaml:"type"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Threshold   float64    `json:"threshold" yaml:"threshold"`
	Enabled     bool       `json:"enabled" yaml:"enabled"`
}

// Violation represents a policy violation
type Violation struct {
	PolicyID   string `json:"policy_id"`
	PolicyName string `json:"policy_name"`
	Message    string `json:"message"`
	Severity   string `json:"severity"`
}

// EvaluationResult contains the policy evaluation outcome
type EvaluationResult struct {
	Decision    Decision    `json:"decision"`
	Violations  []Violation `json:"violations"`
	PoliciesRan int         `json:"policies_ran"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// Engine evaluates policies against runs
type Engine struct {
	policies []Policy
}

// NewEngine creates a policy engine with the default policies
func NewEngine() *Engine {
	return &Engine{policies: DefaultPolicies()}
}

// AddPolicy adds a custom policy
func (e *Engine) AddPolicy(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns the configured policies
func (e *Engine) Policies() []Policy {
	return e.policies
}

// LoadFile replaces the policy set with the YAML list in path.
func (e *Engine) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	var doc struct {
		Policies []Policy `yaml:"policies"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse policy file: %w", err)
	}
	for _, p := range doc.Policies {
		switch p.Type {
		case PolicyTypeConversionCoverage, PolicyTypeUnknownCurrency, PolicyTypeRankingPresent, PolicyTypeSkippedCountries:
		default:
			return fmt.Errorf("policy %s: unknown type %q", p.ID, p.Type)
		}
	}
	e.policies = doc.Policies
	return nil
}

// Evaluate runs all enabled policies against the result
func (e *Engine) Evaluate(ctx context.Context, run *normalize.Result) (*EvaluationResult, error) {
	if run == nil || run.Report == nil {
		return nil, fmt.Errorf("no run to evaluate")
	}
	result := &EvaluationResult{
		Decision:    DecisionPass,
		Violations:  make([]Violation, 0),
		EvaluatedAt: time.Now(),
	}

	for _, policy := range e.policies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !policy.Enabled {
			continue
		}

		result.PoliciesRan++
		violation := evaluatePolicy(policy, run)
		if violation == nil {
			continue
		}
		result.Violations = append(result.Violations, *violation)
		switch {
		case policy.Severity == SeverityError:
			result.Decision = DecisionDeny
		case policy.Severity == SeverityWarning && result.Decision != DecisionDeny:
			result.Decision = DecisionWarn
		}
	}

	return result, nil
}

func evaluatePolicy(p Policy, run *normalize.Result) *Violation {
	stats := run.Stats
	violation := func(msg string) *Violation {
		return &Violation{
			PolicyID:   p.ID,
			PolicyName: p.Name,
			Message:    msg,
			Severity:   string(p.Severity),
		}
	}

	switch p.Type {
	case PolicyTypeConversionCoverage:
		if stats.PlansProcessed == 0 {
			return violation("No plans were processed")
		}
		coverage := float64(stats.PlansConverted) / float64(stats.PlansProcessed)
		if coverage < p.Threshold {
			return violation(fmt.Sprintf("Converted %d of %d plans (%.0f%%), below %.0f%%",
				stats.PlansConverted, stats.PlansProcessed, coverage*100, p.Threshold*100))
		}

	case PolicyTypeUnknownCurrency:
		if float64(stats.PlansUnknown) > p.Threshold {
			return violation(fmt.Sprintf("%d plans have no attributable currency (limit %.0f)", stats.PlansUnknown, p.Threshold))
		}

	case PolicyTypeRankingPresent:
		if float64(len(run.Report.Summary.Entries)) < p.Threshold {
			return violation(fmt.Sprintf("Ranked summary has %d entries, need at least %.0f",
				len(run.Report.Summary.Entries), p.Threshold))
		}

	case PolicyTypeSkippedCountries:
		if float64(stats.CountriesSkipped) > p.Threshold {
			return violation(fmt.Sprintf("%d countries were omitted (limit %.0f)", stats.CountriesSkipped, p.Threshold))
		}
	}

	return nil
}

// DefaultPolicies returns the built-in policy set
func DefaultPolicies() []Policy {
	return []Policy{
		{
			ID:          "min-conversion-coverage",
			Name:        "Minimum Conversion Coverage",
			Description: "Warn when fewer than 80% of plans carry a converted price",
			Type:        PolicyTypeConversionCoverage,
			Severity:    SeverityWarning,
			Threshold:   0.8,
			Enabled:     true,
		},
		{
			ID:          "ranking-present",
			Name:        "Ranking Present",
			Description: "Block reports whose ranked summary is empty",
			Type:        PolicyTypeRankingPresent,
			Severity:    SeverityError,
			Threshold:   1,
			Enabled:     true,
		},
		{
			ID:          "max-unknown-currency",
			Name:        "Unknown Currency Limit",
			Description: "Report plans without an attributable currency",
			Type:        PolicyTypeUnknownCurrency,
			Severity:    SeverityInfo,
			Threshold:   0,
			Enabled:     true,
		},
	}
}
