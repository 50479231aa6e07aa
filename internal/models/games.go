package models

import (
	"sort"
	"strings"
	"sync"
)

// GameTemplate describes a provisionable game type and its panel template.
type GameTemplate struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	TemplateID  int    `json:"template_id"`
	DefaultRole string `json:"default_role"`
	MinMemoryMB int    `json:"min_memory_mb"`
}

// GameCatalog holds the set of requestable game templates. Template IDs can
// be overridden at runtime by admins to match the panel's configuration.
type GameCatalog struct {
	mu    sync.RWMutex
	games map[string]GameTemplate
}

// DefaultGameCatalog returns a catalog seeded with the built-in game set.
func DefaultGameCatalog() *GameCatalog {
	builtins := []GameTemplate{
		{
			Name:        "minecraft",
			DisplayName: "Minecraft",
			Description: "Minecraft Java Edition server",
			TemplateID:  1,
			DefaultRole: "minecraft_admin",
			MinMemoryMB: 2048,
		},
		{
			Name:        "ark",
			DisplayName: "ARK: Survival Evolved",
			Description: "ARK: Survival Evolved server",
			TemplateID:  3,
			DefaultRole: "ark_admin",
			MinMemoryMB: 8192,
		},
		{
			Name:        "cs2",
			DisplayName: "Counter-Strike 2",
			Description: "Counter-Strike 2 server",
			TemplateID:  5,
			DefaultRole: "cs2_admin",
			MinMemoryMB: 8192,
		},
		{
			Name:        "gmod",
			DisplayName: "Garry's Mod",
			Description: "Garry's Mod server",
			TemplateID:  4,
			DefaultRole: "gmod_admin",
			MinMemoryMB: 4096,
		},
	}

	games := make(map[string]GameTemplate, len(builtins))
	for _, g := range builtins {
		games[g.Name] = g
	}
	return &GameCatalog{games: games}
}

// Get returns the template for name, case-insensitively.
func (c *GameCatalog) Get(name string) (GameTemplate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.games[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// List returns all templates sorted by name.
func (c *GameCatalog) List() []GameTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]GameTemplate, 0, len(c.games))
	for _, g := range c.games {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetTemplateID overrides the panel template ID for an existing game.
// The override lasts until restart; persistent changes belong in deployment
// configuration.
func (c *GameCatalog) SetTemplateID(name string, templateID int) error {
	key := strings.ToLower(strings.TrimSpace(name))

	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.games[key]
	if !ok {
		return NewNotFoundError("Game", name)
	}
	if templateID < 1 {
		return NewValidationError("template ID must be a positive integer")
	}
	g.TemplateID = templateID
	c.games[key] = g
	return nil
}
