// Package roster holds the compiled-in agent roster. A roster declared in the
// config file replaces it wholesale.
package roster

import (
	"strings"

	"clawpulse/internal/domain"
)

var builtin = []domain.Agent{
	{
		ID:       "main",
		Name:     "Main",
		Role:     "coordinator",
		Color:    "#7c5cff",
		Spawn:    []string{"research", "builder", "ops"},
		Channels: []string{"general", "planning"},
	},
	{
		ID:       "research",
		Alias:    "researcher",
		Name:     "Research",
		Role:     "analyst",
		Color:    "#2bb0ed",
		Channels: []string{"general", "research"},
	},
	{
		ID:       "builder",
		Alias:    "coder",
		Name:     "Builder",
		Role:     "engineer",
		Color:    "#f5a623",
		Spawn:    []string{"reviewer"},
		Channels: []string{"general", "dev"},
	},
	{
		ID:       "reviewer",
		Name:     "Reviewer",
		Role:     "qa",
		Color:    "#e94f64",
		Channels: []string{"dev"},
	},
	{
		ID:       "ops",
		Alias:    "ops-bot",
		Name:     "Ops",
		Role:     "operations",
		Color:    "#3ecf8e",
		Channels: []string{"general", "alerts"},
	},
}

// Default returns a copy of the compiled-in roster.
func Default() []domain.Agent {
	return clone(builtin)
}

// Resolve prefers configured agents over the compiled-in roster. Entries
// without an id are skipped.
func Resolve(configured []domain.Agent) []domain.Agent {
	out := make([]domain.Agent, 0, len(configured))
	for _, a := range configured {
		if strings.TrimSpace(a.ID) == "" {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return Default()
	}
	return clone(out)
}

// Lookup finds an agent by id, then alias.
func Lookup(agents []domain.Agent, key string) (domain.Agent, bool) {
	for _, a := range agents {
		if a.ID == key {
			return a, true
		}
	}
	for _, a := range agents {
		if a.Alias != "" && a.Alias == key {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func clone(in []domain.Agent) []domain.Agent {
	out := make([]domain.Agent, len(in))
	for i, a := range in {
		a.Spawn = append([]string(nil), a.Spawn...)
		a.Channels = append([]string(nil), a.Channels...)
		out[i] = a
	}
	return out
}
