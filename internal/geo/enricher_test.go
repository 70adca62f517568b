package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/respstack/respstats/internal/models"
)

func coordIncident(set *models.IncidentSet, id string, lat, lon float64) *models.Incident {
	inc := set.GetOrCreate(id)
	inc.SetLatitude(lat)
	inc.SetLongitude(lon)
	return inc
}

func testRegions() []Region {
	return []Region{
		{
			Name: "Station 7 District", MinLat: 45.0, MaxLat: 45.1, MinLon: -122.7, MaxLon: -122.6,
			Attributes: map[string]string{"Battalion": "2"},
		},
		{
			Name: "City", MinLat: 44.0, MaxLat: 46.0, MinLon: -123.0, MaxLon: -122.0,
			Attributes: map[string]string{"Jurisdiction": "Metro"},
		},
	}
}

func TestRegionSourceFirstMatchIsMostSpecific(t *testing.T) {
	src := NewRegionSource("districts", testRegions())
	attrs, err := src.Lookup(45.05, -122.65)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if attrs["Region"].AsString() != "Station 7 District" {
		t.Fatalf("expected the smaller region to win, got %v", attrs["Region"].AsString())
	}
}

func TestEnrichAppliesAttributes(t *testing.T) {
	set := models.NewIncidentSet()
	inc := coordIncident(set, "A1", 45.05, -122.65)
	resp := inc.EnsureResponse("E7")
	resp.EnsureTiming("OnScene")

	mappings := []AttributeMapping{
		{Attribute: "Region", Target: TargetIncident, Field: "District"},
		{Attribute: "Battalion", Target: TargetResponses},
	}
	enricher := NewEnricher(nil, []Source{NewRegionSource("districts", testRegions())}, mappings, NewMemoryCache(), 2)

	if got := enricher.Enrich(context.Background(), set); got != 1 {
		t.Fatalf("expected 1 enriched incident, got %d", got)
	}
	if inc.Data["District"].AsString() != "Station 7 District" {
		t.Fatalf("incident attribute not applied: %v", inc.Data)
	}
	if v, ok := resp.Data["Battalion"].AsFloat(); !ok || v != 2 {
		t.Fatalf("response attribute not applied: %v", resp.Data)
	}
}

func TestEnrichSkipsIncidentsWithoutCoords(t *testing.T) {
	set := models.NewIncidentSet()
	set.GetOrCreate("A1") // no coordinates

	enricher := NewEnricher(nil, []Source{NewRegionSource("districts", testRegions())}, nil, nil, 1)
	if got := enricher.Enrich(context.Background(), set); got != 0 {
		t.Fatalf("expected no enrichment, got %d", got)
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }
func (failingSource) Lookup(lat, lon float64) (map[string]models.Value, error) {
	return nil, errors.New("gis backend down")
}

func TestEnrichLookupFailureSkipsIncidentOnly(t *testing.T) {
	set := models.NewIncidentSet()
	coordIncident(set, "A1", 45.05, -122.65)
	coordIncident(set, "A2", 45.05, -122.65)

	enricher := NewEnricher(nil, []Source{failingSource{}}, nil, nil, 2)
	if got := enricher.Enrich(context.Background(), set); got != 0 {
		t.Fatalf("failed lookups must not count as enriched, got %d", got)
	}
}

func TestEnrichObservesCancellation(t *testing.T) {
	set := models.NewIncidentSet()
	for i := 0; i < 100; i++ {
		coordIncident(set, string(rune('A'))+string(rune('0'+i%10))+string(rune('a'+i%26)), 45.05, -122.65)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enricher := NewEnricher(nil, []Source{NewRegionSource("districts", testRegions())}, nil, nil, 2)
	if got := enricher.Enrich(ctx, set); got != 0 {
		t.Fatalf("cancelled run must not enrich, got %d", got)
	}
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryCache()
	key := CellKey("districts", 45.05, -122.65)
	cache.Set(key, map[string]models.Value{"Region": models.StringValue("X")})
	attrs, ok := cache.Get(key)
	if !ok || attrs["Region"].AsString() != "X" {
		t.Fatalf("cache round trip failed")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cell, got %d", cache.Len())
	}
}
