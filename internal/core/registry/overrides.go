package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ratepacer/ratepacer/internal/core"
)

// LoadOverrides reads integration overrides from a JSON or YAML file keyed by
// integration name. The format is chosen from the file extension; .json is
// JSON, everything else is parsed as YAML.
func LoadOverrides(path string) (map[string]core.RateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overrides: %w", err)
	}

	raw := map[string]core.RateConfig{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse overrides %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse overrides %s: %w", path, err)
		}
	}

	overrides := make(map[string]core.RateConfig, len(raw))
	for name, cfg := range raw {
		// The map key names the integration unless the entry carries its
		// own name.
		if strings.TrimSpace(cfg.Name) == "" {
			cfg.Name = name
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("override %q: %w", name, err)
		}
		overrides[name] = cfg
	}
	return overrides, nil
}

// LoadMerged builds the effective registry: built-in defaults with the
// overrides file applied on top. An empty path returns the built-ins.
func LoadMerged(path string) (*Registry, error) {
	base := Builtin()
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	overrides, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	return base.Merge(overrides), nil
}
