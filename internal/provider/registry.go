package provider

import (
	"log"
	"net/http"

	"github.com/flatwatch/flatwatch/internal/config"
)

// BuildAdapters wires the enabled adapters from the environment config
// and the optional provider registry file. Registry entries override
// actor IDs, start URLs, cooldowns and enablement per provider.
func BuildAdapters(cfg config.EnvConfig, specs []config.ProviderSpec, hc *http.Client) []Adapter {
	client := newActorClient(hc, cfg.ApifyToken, cfg.SyncRun, cfg.ActorTimeout)

	overrides := make(map[string]config.ProviderSpec, len(specs))
	for _, s := range specs {
		overrides[s.Name] = s
	}

	type entry struct {
		name     string
		actorID  string
		startURL string
		enabled  bool
	}
	entries := []entry{
		{"immobilienscout24", cfg.ActorImmoscout24, cfg.IS24StartURL, true},
		{"immowelt", cfg.ActorImmowelt, cfg.ImmoweltStartURL, cfg.EnableImmoweltLive},
		{"kleinanzeigen", cfg.ActorKleinanzeigen, "", cfg.EnableKleinanzeigen},
	}

	var adapters []Adapter
	for _, e := range entries {
		cooldownBase := cfg.ActorCooldown
		if o, ok := overrides[e.name]; ok {
			if o.ActorID != "" {
				e.actorID = o.ActorID
			}
			if o.StartURL != "" {
				e.startURL = o.StartURL
			}
			if o.Cooldown > 0 {
				cooldownBase = o.Cooldown
			}
			if o.Enabled != nil {
				e.enabled = *o.Enabled
			}
		}
		if !e.enabled {
			log.Printf("[provider] %s disabled", e.name)
			continue
		}

		gate := NewCooldown(cooldownBase, cfg.QuietScaling, cfg.QuietHours)
		switch e.name {
		case "immobilienscout24":
			adapters = append(adapters, NewImmoscout(client, e.actorID, e.startURL, gate))
		case "immowelt":
			adapters = append(adapters, NewImmowelt(client, e.actorID, e.startURL, gate))
		case "kleinanzeigen":
			adapters = append(adapters, NewKleinanzeigen(client, e.actorID, gate))
		}
		log.Printf("[provider] %s enabled (cooldown %s)", e.name, cooldownBase)
	}
	return adapters
}
