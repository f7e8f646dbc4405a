// Package registry holds the per-integration rate configurations: a set of
// conservative built-in defaults plus operator overrides loaded from disk.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ratepacer/ratepacer/internal/core"
)

// Registry maps integration names to their pacing configuration. A Registry
// is assembled once at startup; lookups return value copies, so callers
// cannot mutate shared state.
type Registry struct {
	configs map[string]core.RateConfig
}

// Builtin returns a registry seeded with the shipped integration defaults.
// These are deliberately conservative starting points for the adaptive
// controller to tune around, not authoritative vendor limits.
func Builtin() *Registry {
	r := &Registry{configs: make(map[string]core.RateConfig)}
	for _, cfg := range builtinConfigs() {
		r.configs[cfg.Name] = cfg
	}
	return r
}

// Empty returns a registry with no entries.
func Empty() *Registry {
	return &Registry{configs: make(map[string]core.RateConfig)}
}

// Get returns the configuration for name. Unknown names produce an error
// listing the available integrations.
func (r *Registry) Get(name string) (core.RateConfig, error) {
	cfg, ok := r.configs[name]
	if !ok {
		return core.RateConfig{}, fmt.Errorf("unknown integration %q (available: %s)",
			name, strings.Join(r.Names(), ", "))
	}
	return cfg, nil
}

// Names returns the registered integration names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all configurations sorted by name.
func (r *Registry) List() []core.RateConfig {
	out := make([]core.RateConfig, 0, len(r.configs))
	for _, name := range r.Names() {
		out = append(out, r.configs[name])
	}
	return out
}

// Len returns the number of registered integrations.
func (r *Registry) Len() int {
	return len(r.configs)
}

// Set validates cfg and registers it, replacing any existing entry with the
// same name.
func (r *Registry) Set(cfg core.RateConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.configs[cfg.Name] = cfg
	return nil
}

// Merge returns a new registry containing r's entries with overrides applied
// on top. An override replaces a built-in entry with the same name wholesale.
func (r *Registry) Merge(overrides map[string]core.RateConfig) *Registry {
	merged := &Registry{configs: make(map[string]core.RateConfig, len(r.configs)+len(overrides))}
	for name, cfg := range r.configs {
		merged.configs[name] = cfg
	}
	for name, cfg := range overrides {
		merged.configs[name] = cfg
	}
	return merged
}

func builtinConfigs() []core.RateConfig {
	return []core.RateConfig{
		{
			Name:           "notion",
			BaseURL:        "https://api.notion.com/v1",
			InitialRate:    2.0,
			MinRate:        0.3,
			MaxRate:        3.5,
			IncreaseStep:   0.1,
			DecreaseFactor: 0.5,
			DocumentedLimitDesc: "Conservative starting point near typical Notion guidance of " +
				"a few requests per second per integration.",
		},
		{
			Name:           "vanta",
			BaseURL:        "https://api.vanta.com",
			InitialRate:    2.0,
			MinRate:        0.5,
			MaxRate:        5.0,
			IncreaseStep:   0.2,
			DecreaseFactor: 0.5,
			DocumentedLimitDesc: "Placeholder configuration for Vanta. Tune based on observed " +
				"behavior and vendor guidance.",
		},
		{
			Name:           "fieldguide",
			BaseURL:        "https://api.fieldguide.io",
			InitialRate:    2.0,
			MinRate:        0.5,
			MaxRate:        5.0,
			IncreaseStep:   0.2,
			DecreaseFactor: 0.5,
			DocumentedLimitDesc: "Placeholder configuration for Fieldguide. Tune based on " +
				"observed behavior and vendor guidance.",
		},
	}
}
