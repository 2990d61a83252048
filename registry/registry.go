// Package registry selects which scenarios of a parsed feature set take part
// in a run. Selection is driven by an optional YAML run profile carrying tag
// filters and timeout overrides.
package registry

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/gherkit/gherkit/types"
)

// Registry holds the active run profile.
type Registry struct {
	config  Config
	profile Profile
	mu      sync.RWMutex
}

// Config contains registry configuration.
type Config struct {
	Log            log.Logger
	ProfileFile    string        // optional; empty means run everything
	DefaultTimeout time.Duration // per-scenario timeout when the profile has none
}

// Profile is the YAML run profile.
type Profile struct {
	Name            string            `yaml:"name,omitempty"`
	IncludeTags     []string          `yaml:"include_tags,omitempty"`
	ExcludeTags     []string          `yaml:"exclude_tags,omitempty"`
	ScenarioTimeout *Duration         `yaml:"scenario_timeout,omitempty"`
	TimeoutOverride []TimeoutOverride `yaml:"timeout_overrides,omitempty"`
}

// TimeoutOverride raises or lowers the scenario timeout for scenarios
// carrying a given tag.
type TimeoutOverride struct {
	Tag     string   `yaml:"tag"`
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration so profiles can say "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// NewRegistry creates a registry, loading the profile file when configured.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{config: cfg}
	if cfg.ProfileFile != "" {
		profile, err := loadProfile(cfg.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load run profile: %w", err)
		}
		r.profile = *profile
		cfg.Log.Debug("Run profile loaded", "profile", r.profile.Name,
			"includeTags", r.profile.IncludeTags, "excludeTags", r.profile.ExcludeTags)
	}
	return r, nil
}

// Profile returns the active run profile.
func (r *Registry) Profile() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile
}

// FilterFeatures applies the profile's tag filters and returns features with
// only the selected scenarios. Features whose scenarios are all filtered out
// are dropped entirely. The @disabled tag is not evaluated here; the work
// item builder owns that so disabled scenarios never count toward the total.
func (r *Registry) FilterFeatures(features []types.Feature) []types.Feature {
	r.mu.RLock()
	profile := r.profile
	r.mu.RUnlock()

	if len(profile.IncludeTags) == 0 && len(profile.ExcludeTags) == 0 {
		return features
	}

	var selected []types.Feature
	for _, feature := range features {
		kept := feature
		kept.Scenarios = nil
		for _, scenario := range feature.Scenarios {
			if r.selects(&feature, &scenario, &profile) {
				kept.Scenarios = append(kept.Scenarios, scenario)
			}
		}
		if len(kept.Scenarios) > 0 {
			selected = append(selected, kept)
		}
	}
	return selected
}

// TimeoutFor resolves the per-scenario timeout: a matching tag override wins,
// then the profile default, then the registry default.
func (r *Registry) TimeoutFor(feature *types.Feature, scenario *types.Scenario) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, override := range r.profile.TimeoutOverride {
		if scenario.HasTag(override.Tag) || feature.HasTag(override.Tag) {
			return time.Duration(override.Timeout)
		}
	}
	if r.profile.ScenarioTimeout != nil {
		return time.Duration(*r.profile.ScenarioTimeout)
	}
	return r.config.DefaultTimeout
}

func (r *Registry) selects(feature *types.Feature, scenario *types.Scenario, profile *Profile) bool {
	for _, tag := range profile.ExcludeTags {
		if scenario.HasTag(tag) || feature.HasTag(tag) {
			return false
		}
	}
	if len(profile.IncludeTags) == 0 {
		return true
	}
	for _, tag := range profile.IncludeTags {
		if scenario.HasTag(tag) || feature.HasTag(tag) {
			return true
		}
	}
	return false
}

// loadProfile reads a run profile from a YAML file.
func loadProfile(path string) (*Profile, error) {
	log.Debug("Reading run profile file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parsing profile file: %w", err)
	}
	return &profile, nil
}
