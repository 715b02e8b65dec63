package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProviderSpec describes one provider adapter in the optional registry file.
// Zero-valued fields inherit the env-derived defaults.
type ProviderSpec struct {
	Name     string        `yaml:"name"`
	ActorID  string        `yaml:"actor_id"`
	StartURL string        `yaml:"start_url,omitempty"`
	Cooldown time.Duration `yaml:"cooldown,omitempty"`
	Enabled  *bool         `yaml:"enabled,omitempty"`
}

type providerRegistry struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// knownProviderNames are the sources this build can adapt.
var knownProviderNames = map[string]bool{
	"immobilienscout24": true,
	"immowelt":          true,
	"kleinanzeigen":     true,
}

// LoadProviderRegistry parses the YAML provider registry at path.
// The registry overrides actor IDs, start URLs, cooldowns, and enablement
// per provider without touching the rest of the configuration.
func LoadProviderRegistry(path string) ([]ProviderSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provider registry: read %s: %w", path, err)
	}

	var reg providerRegistry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("provider registry: unmarshal %s: %w", path, err)
	}

	seen := make(map[string]bool, len(reg.Providers))
	for i := range reg.Providers {
		p := &reg.Providers[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Name == "" {
			return nil, fmt.Errorf("provider registry: entry %d has no name", i)
		}
		if !knownProviderNames[p.Name] {
			return nil, fmt.Errorf("provider registry: unknown provider %q", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("provider registry: duplicate provider %q", p.Name)
		}
		seen[p.Name] = true
		if p.Cooldown < 0 {
			return nil, fmt.Errorf("provider registry: %s: cooldown must not be negative", p.Name)
		}
	}
	return reg.Providers, nil
}
