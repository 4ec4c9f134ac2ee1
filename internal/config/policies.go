package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/skyroute/booking-core/internal/models"
)

// PolicySeed is the on-disk shape of the cancellation policy table
type PolicySeed struct {
	Policies []PolicySeedEntry `yaml:"policies"`
}

// PolicySeedEntry is one tier as written by an administrator.
// Money fields are strings so YAML floats never touch them.
type PolicySeedEntry struct {
	Name                 string `yaml:"name"`
	Description          string `yaml:"description"`
	HoursBeforeDeparture int    `yaml:"hours_before_departure"`
	RefundPercentage     string `yaml:"refund_percentage"`
	CancellationFee      string `yaml:"cancellation_fee"`
	Active               *bool  `yaml:"active"`
}

// LoadPolicySeed reads and validates a YAML policy file
func LoadPolicySeed(path string) ([]models.CancellationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicySeed(data)
}

// ParsePolicySeed converts YAML policy data into validated policies
func ParsePolicySeed(data []byte) ([]models.CancellationPolicy, error) {
	var seed PolicySeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}

	seen := make(map[string]bool, len(seed.Policies))
	policies := make([]models.CancellationPolicy, 0, len(seed.Policies))
	for i, entry := range seed.Policies {
		if entry.Name == "" {
			return nil, fmt.Errorf("policy %d: name is required", i)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("policy %q: duplicate name", entry.Name)
		}
		seen[entry.Name] = true

		if entry.HoursBeforeDeparture < 0 {
			return nil, fmt.Errorf("policy %q: hours_before_departure must not be negative", entry.Name)
		}

		pct, err := parseDecimal(entry.RefundPercentage)
		if err != nil {
			return nil, fmt.Errorf("policy %q: refund_percentage: %w", entry.Name, err)
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("policy %q: refund_percentage must be between 0 and 100", entry.Name)
		}

		fee, err := parseDecimal(entry.CancellationFee)
		if err != nil {
			return nil, fmt.Errorf("policy %q: cancellation_fee: %w", entry.Name, err)
		}
		if fee.IsNegative() {
			return nil, fmt.Errorf("policy %q: cancellation_fee must not be negative", entry.Name)
		}

		active := true
		if entry.Active != nil {
			active = *entry.Active
		}

		policy := models.CancellationPolicy{
			Name:                 entry.Name,
			HoursBeforeDeparture: entry.HoursBeforeDeparture,
			RefundPercentage:     pct,
			CancellationFee:      fee,
			IsActive:             active,
		}
		if entry.Description != "" {
			desc := entry.Description
			policy.Description = &desc
		}
		policies = append(policies, policy)
	}

	return policies, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
