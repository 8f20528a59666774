package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SponsorPolicy is the sponsorship configuration loaded from YAML: the
// operation allowlist and the per-user window parameters.
type SponsorPolicy struct {
	Name            string   `yaml:"name" json:"name"`
	AllowlistedOps  []string `yaml:"allowlisted_ops" json:"allowlisted_ops"`
	DailyQuota      int64    `yaml:"daily_quota" json:"daily_quota"`
	ResetHours      int      `yaml:"reset_hours" json:"reset_hours"`
	InitialDeposit  int64    `yaml:"initial_deposit,omitempty" json:"initial_deposit,omitempty"`
}

// ResetPeriod returns the reset window, defaulting to 24h.
func (p *SponsorPolicy) ResetPeriod() time.Duration {
	if p.ResetHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(p.ResetHours) * time.Hour
}

// LoadSponsorPolicy loads a sponsorship policy YAML file.
func LoadSponsorPolicy(path string) (*SponsorPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load sponsor policy %q: %w", path, err)
	}

	var policy SponsorPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("parse sponsor policy %q: %w", path, err)
	}

	if policy.DailyQuota <= 0 {
		return nil, fmt.Errorf("sponsor policy %q: daily_quota must be positive", path)
	}
	return &policy, nil
}
