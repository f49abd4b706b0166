// Package presets loads the site/category/URL catalogue the orchestrator
// fans tasks out over, grounded in config.py's Presets/load_presets.
package presets

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Item is one crawlable URL tagged with a "category:label" name.
type Item struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Category returns the portion of Name before the first colon.
func (i Item) Category() string {
	if idx := strings.Index(i.Name, ":"); idx >= 0 {
		return i.Name[:idx]
	}
	return i.Name
}

// Presets is the parsed catalogue: default geoid plus per-site item lists.
type Presets struct {
	GeoidDefault string            `yaml:"geoid_default"`
	Sites        map[string][]Item `yaml:"sites"`
}

// Load reads and parses the presets YAML file at path.
func Load(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Presets
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.GeoidDefault == "" {
		p.GeoidDefault = "213"
	}
	return &p, nil
}

// AllCategories returns the distinct set of categories across every site,
// in first-seen order.
func (p *Presets) AllCategories() []string {
	seen := map[string]bool{}
	var out []string
	for _, items := range p.Sites {
		for _, item := range items {
			cat := item.Category()
			if !seen[cat] {
				seen[cat] = true
				out = append(out, cat)
			}
		}
	}
	return out
}
