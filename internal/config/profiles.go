package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
)

// Profile is a named portfolio recipe: which assets, how much history and how to solve.
// Zero values fall back to the environment defaults.
type Profile struct {
	Name             string                    `yaml:"name" json:"name"`
	Assets           []string                  `yaml:"assets" json:"assets"`
	LookbackDays     int                       `yaml:"lookback_days,omitempty" json:"lookback_days,omitempty"`
	Objective        string                    `yaml:"objective,omitempty" json:"objective,omitempty"`
	TargetReturn     float64                   `yaml:"target_return,omitempty" json:"target_return,omitempty"`
	RiskFreeRate     *float64                  `yaml:"risk_free_rate,omitempty" json:"risk_free_rate,omitempty"`
	Budget           *float64                  `yaml:"budget,omitempty" json:"budget,omitempty"`
	AllocationMethod string                    `yaml:"allocation_method,omitempty" json:"allocation_method,omitempty"`
	ReturnMethod     string                    `yaml:"return_method,omitempty" json:"return_method,omitempty"`
	ShrinkageTarget  string                    `yaml:"shrinkage_target,omitempty" json:"shrinkage_target,omitempty"`
	Bounds           optimization.BoundsConfig `yaml:"bounds,omitempty" json:"bounds,omitempty"`
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads the YAML profiles file at path. A missing path yields no profiles.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles %s: %w", path, err)
	}
	profiles, err := ParseProfiles(content)
	if err != nil {
		return nil, fmt.Errorf("invalid profiles file %s: %w", path, err)
	}
	return profiles, nil
}

// ParseProfiles decodes and validates a profiles document. Unknown keys are rejected.
func ParseProfiles(content []byte) ([]Profile, error) {
	var file profilesFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode profiles: %w", err)
	}

	seen := make(map[string]bool, len(file.Profiles))
	for i := range file.Profiles {
		p := &file.Profiles[i]
		if p.Name == "" {
			return nil, fmt.Errorf("profile %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", p.Name, err)
		}
	}

	sort.SliceStable(file.Profiles, func(i, j int) bool { return file.Profiles[i].Name < file.Profiles[j].Name })
	return file.Profiles, nil
}

// Validate checks the enumerations and ranges of a profile.
func (p Profile) Validate() error {
	if len(p.Assets) < optimization.MinAssets {
		return fmt.Errorf("needs at least %d assets, got %d", optimization.MinAssets, len(p.Assets))
	}
	if p.LookbackDays < 0 {
		return fmt.Errorf("lookback_days must not be negative")
	}
	switch optimization.Objective(p.Objective) {
	case "", optimization.ObjectiveMaxSharpe, optimization.ObjectiveMinVolatility, optimization.ObjectiveEfficientReturn:
	default:
		return fmt.Errorf("unknown objective %q", p.Objective)
	}
	switch optimization.ReturnMethod(p.ReturnMethod) {
	case "", optimization.ReturnMethodCompounded, optimization.ReturnMethodArithmetic:
	default:
		return fmt.Errorf("unknown return_method %q", p.ReturnMethod)
	}
	switch optimization.ShrinkageTarget(p.ShrinkageTarget) {
	case "", optimization.ShrinkConstantCorrelation, optimization.ShrinkConstantVariance:
	default:
		return fmt.Errorf("unknown shrinkage_target %q", p.ShrinkageTarget)
	}
	if p.AllocationMethod != "" {
		if _, err := allocation.ParseMethod(p.AllocationMethod); err != nil {
			return err
		}
	}
	if p.Budget != nil && *p.Budget < 0 {
		return fmt.Errorf("budget must not be negative")
	}
	return nil
}

// BaseSettings returns the pipeline settings implied by the environment alone.
func (c *Config) BaseSettings() optimization.Settings {
	s := optimization.DefaultSettings()
	s.RiskFreeRate = c.RiskFreeRate
	s.Returns.PeriodsPerYear = c.PeriodsPerYear
	s.Covariance.PeriodsPerYear = c.PeriodsPerYear
	s.Clean.Cutoff = c.WeightCutoff
	s.Clean.Decimals = c.WeightDecimals
	if method, err := allocation.ParseMethod(c.AllocationMethod); err == nil {
		s.AllocationMethod = method
	}
	s.Budget = c.DefaultBudget
	return s
}

// Settings overlays p on base.
func (p Profile) Settings(base optimization.Settings) optimization.Settings {
	s := base
	s.Label = p.Name
	if p.Objective != "" {
		s.Objective = optimization.Objective(p.Objective)
	}
	s.TargetReturn = p.TargetReturn
	if p.RiskFreeRate != nil {
		s.RiskFreeRate = *p.RiskFreeRate
	}
	if p.Budget != nil {
		s.Budget = *p.Budget
	}
	if p.AllocationMethod != "" {
		s.AllocationMethod = allocation.Method(p.AllocationMethod)
	}
	if p.ReturnMethod != "" {
		s.Returns.Method = optimization.ReturnMethod(p.ReturnMethod)
	}
	if p.ShrinkageTarget != "" {
		s.Covariance.Target = optimization.ShrinkageTarget(p.ShrinkageTarget)
	}
	s.Bounds = p.Bounds
	return s
}

// FindProfile returns the profile called name, or nil.
func FindProfile(profiles []Profile, name string) *Profile {
	for i := range profiles {
		if profiles[i].Name == name {
			return &profiles[i]
		}
	}
	return nil
}
