package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/coffeechain/pkg/attribution"
	"github.com/Mindburn-Labs/coffeechain/pkg/provenance"
)

// EngineProfile holds the report engine's limits.
type EngineProfile struct {
	Resolver       provenance.Options `yaml:"resolver" json:"resolver"`
	Attribution    AttributionProfile `yaml:"attribution" json:"attribution"`
	RequestTimeout time.Duration      `yaml:"request_timeout" json:"request_timeout"`
}

// AttributionProfile configures producer aggregation.
type AttributionProfile struct {
	Concurrency     int    `yaml:"concurrency" json:"concurrency"`
	DefaultCurrency string `yaml:"default_currency" json:"default_currency"`
}

// AttributionOptions converts the profile to aggregator options.
func (a AttributionProfile) AttributionOptions() attribution.Options {
	return attribution.Options{Concurrency: a.Concurrency, DefaultCurrency: a.DefaultCurrency}
}

// DefaultEngineProfile returns the limits used when no profile file is given.
func DefaultEngineProfile() *EngineProfile {
	return &EngineProfile{
		Resolver: provenance.DefaultOptions(),
		Attribution: AttributionProfile{
			Concurrency:     8,
			DefaultCurrency: attribution.DefaultCurrency,
		},
		RequestTimeout: 10 * time.Second,
	}
}

// LoadEngineProfile reads an engine profile YAML. Fields absent from the
// file keep their defaults. An empty path returns the defaults.
func LoadEngineProfile(path string) (*EngineProfile, error) {
	profile := DefaultEngineProfile()
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load engine profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse engine profile %q: %w", path, err)
	}

	if profile.Resolver.MaxDepth < 0 || profile.Resolver.MaxPaths < 0 || profile.Resolver.Concurrency < 0 {
		return nil, fmt.Errorf("engine profile %q: resolver limits must not be negative", path)
	}
	if profile.RequestTimeout <= 0 {
		return nil, fmt.Errorf("engine profile %q: request_timeout must be positive", path)
	}
	return profile, nil
}
