// Package config handles story configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Story represents the root configuration file structure.
type Story struct {
	Title       string   `yaml:"title" json:"title"`
	Attribution string   `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	DataDir     string   `yaml:"data_dir,omitempty" json:"-"`
	Styles      *Styles  `yaml:"styles,omitempty" json:"styles,omitempty"`
	Basemap     *Basemap `yaml:"basemap,omitempty" json:"basemap,omitempty"`
	Slides      []Slide  `yaml:"slides" json:"slides"`
}

// Slide represents a single narrative panel paired with one geodata key.
type Slide struct {
	ID         string    `yaml:"id" json:"id"`
	Title      string    `yaml:"title,omitempty" json:"title,omitempty"`
	Aliases    []string  `yaml:"aliases,omitempty" json:"-"`
	SourceURL  string    `yaml:"source,omitempty" json:"-"`
	BBox       []float64 `yaml:"bbox,omitempty" json:"bbox,omitempty"`
	ShowPopups bool      `yaml:"popups,omitempty" json:"popups,omitempty"`
	Missing    bool      `yaml:"-" json:"missing,omitempty"`
}

// Styles configures the property-driven marker styling rule.
type Styles struct {
	// Property is the feature property consulted for icon selection.
	Property string                 `yaml:"property,omitempty" json:"property,omitempty"`
	Markers  map[string]MarkerStyle `yaml:"markers,omitempty" json:"markers,omitempty"`
	Default  *MarkerStyle           `yaml:"default,omitempty" json:"default,omitempty"`
}

// MarkerStyle describes one marker icon.
type MarkerStyle struct {
	Icon string `yaml:"icon" json:"icon"`
	Size int    `yaml:"size,omitempty" json:"size,omitempty"`
}

// Basemap configures the self-hosted background tile layer.
type Basemap struct {
	// Source is either a tile URL template ({z}/{x}/{y}) or a single image
	// to slice locally.
	Source    string `yaml:"source" json:"-"`
	TileSize  int    `yaml:"tile_size,omitempty" json:"-"`
	ZoomLimit int    `yaml:"zoom,omitempty" json:"zoom,omitempty"`
	Dir       string `yaml:"dir,omitempty" json:"-"`
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var story Story
	if err := yaml.Unmarshal(data, &story); err != nil {
		return nil, err
	}

	if story.DataDir == "" {
		story.DataDir = "data"
	}

	if len(story.Slides) == 0 {
		return nil, fmt.Errorf("story %q has no slides", path)
	}

	seen := make(map[string]struct{}, len(story.Slides))
	for i := range story.Slides {
		s := &story.Slides[i]
		if s.ID == "" {
			return nil, fmt.Errorf("slide %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("duplicate slide id %q", s.ID)
		}
		seen[s.ID] = struct{}{}

		if len(s.BBox) != 0 && len(s.BBox) != 4 {
			return nil, fmt.Errorf("slide %q: bbox must have 4 numbers, got %d", s.ID, len(s.BBox))
		}
	}

	return &story, nil
}
