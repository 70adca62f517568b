// Package geo attaches geographic attributes to incidents. Sources are
// queried by coordinate; a fixed worker pool walks the incident set so large
// models enrich in parallel.
package geo

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/respstack/respstats/internal/models"
)

// Source resolves attributes for a coordinate. Implementations must be safe
// for concurrent readers; the worker pool shares one instance.
type Source interface {
	Name() string
	// Lookup returns the attributes at (lat, lon). A nil map with nil error
	// means no match. Errors are logged by the enricher and that incident's
	// enrichment is skipped.
	Lookup(lat, lon float64) (map[string]models.Value, error)
}

// Region is a rectangular bounding box carrying attributes.
type Region struct {
	Name       string            `yaml:"name"`
	MinLat     float64           `yaml:"minLat"`
	MaxLat     float64           `yaml:"maxLat"`
	MinLon     float64           `yaml:"minLon"`
	MaxLon     float64           `yaml:"maxLon"`
	Attributes map[string]string `yaml:"attributes"`
}

func (r Region) contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

// RegionSource answers lookups from a fixed region list, first match wins.
// Regions are sorted smallest-area first so the most specific region answers
// when boxes overlap. The region list is immutable after construction, which
// is what makes concurrent lookups safe.
type RegionSource struct {
	name    string
	regions []Region
}

// NewRegionSource builds a source from the given regions.
func NewRegionSource(name string, regions []Region) *RegionSource {
	sorted := make([]Region, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return area(sorted[i]) < area(sorted[j])
	})
	return &RegionSource{name: name, regions: sorted}
}

func area(r Region) float64 {
	return (r.MaxLat - r.MinLat) * (r.MaxLon - r.MinLon)
}

// regionFile is the YAML root for a region pack.
type regionFile struct {
	Name    string   `yaml:"name"`
	Regions []Region `yaml:"regions"`
}

// LoadRegionSource reads a region pack from a YAML file.
func LoadRegionSource(path string) (*RegionSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region pack: %w", err)
	}
	var file regionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse region pack: %w", err)
	}
	name := file.Name
	if name == "" {
		name = path
	}
	return NewRegionSource(name, file.Regions), nil
}

func (s *RegionSource) Name() string { return s.name }

// Lookup returns the attributes of the first containing region.
func (s *RegionSource) Lookup(lat, lon float64) (map[string]models.Value, error) {
	for _, region := range s.regions {
		if !region.contains(lat, lon) {
			continue
		}
		attrs := make(map[string]models.Value, len(region.Attributes)+1)
		attrs["Region"] = models.StringValue(region.Name)
		for key, value := range region.Attributes {
			attrs[key] = models.Coerce(value)
		}
		return attrs, nil
	}
	return nil, nil
}
