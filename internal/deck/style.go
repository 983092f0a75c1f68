package deck

import (
	"github.com/paulmach/orb/geojson"

	"github.com/EChinLee/EChin-CPLN6920-Storymap/internal/config"
)

// Icon describes one marker icon.
type Icon struct {
	Name string `json:"icon"`
	Size int    `json:"size"`
}

// PathStyle is the fixed stroke/fill style applied to line and polygon
// features.
type PathStyle struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

// StyleSet maps a finite set of feature property values to icon descriptors.
// Features whose property value has no entry get the default icon.
type StyleSet struct {
	// Property is the feature property consulted for icon selection.
	Property string          `json:"property"`
	Icons    map[string]Icon `json:"icons"`
	Default  Icon            `json:"default"`
	Path     PathStyle       `json:"path"`
}

// DefaultStyleSet returns the built-in styling rule: features tagged as
// landmarks get a larger star icon, everything else the small pin.
func DefaultStyleSet() *StyleSet {
	return &StyleSet{
		Property: "type",
		Icons: map[string]Icon{
			"landmark": {Name: "star", Size: 36},
		},
		Default: Icon{Name: "pin", Size: 24},
		Path: PathStyle{
			Color:       "#2262cc",
			Weight:      2,
			FillColor:   "#2262cc",
			FillOpacity: 0.2,
		},
	}
}

// StyleSetFromConfig builds a style set from story configuration, falling
// back to the defaults for anything unset.
func StyleSetFromConfig(cfg *config.Styles) *StyleSet {
	s := DefaultStyleSet()
	if cfg == nil {
		return s
	}

	if cfg.Property != "" {
		s.Property = cfg.Property
	}
	if cfg.Default != nil {
		s.Default = iconFromConfig(*cfg.Default)
	}
	if len(cfg.Markers) > 0 {
		s.Icons = make(map[string]Icon, len(cfg.Markers))
		for tag, m := range cfg.Markers {
			s.Icons[tag] = iconFromConfig(m)
		}
	}

	return s
}

func iconFromConfig(m config.MarkerStyle) Icon {
	size := m.Size
	if size <= 0 {
		size = 24
	}
	return Icon{Name: m.Icon, Size: size}
}

// IconFor selects the marker icon for one feature by the property-driven
// rule.
func (s *StyleSet) IconFor(f *geojson.Feature) Icon {
	if f == nil || f.Properties == nil {
		return s.Default
	}

	tag := f.Properties.MustString(s.Property, "")
	if icon, ok := s.Icons[tag]; ok {
		return icon
	}

	return s.Default
}
