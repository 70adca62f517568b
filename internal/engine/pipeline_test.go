package engine

import (
	"context"
	"testing"
	"time"

	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/geo"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/reconcile"
	"github.com/respstack/respstats/internal/sources"
)

func pipelineFixture(t *testing.T) (*Pipeline, *models.ErrorLog) {
	t.Helper()

	records := []sources.Record{
		{
			"incident_id": "INC-1",
			"unit_id":     "E1",
			"alarm_time":  "2024-03-01 10:00:00",
			"arrival":     "2024-03-01 10:06:00",
			"lat":         "40.0100",
			"lon":         "-75.0100",
		},
		{
			"incident_id": "INC-2",
			"unit_id":     "E2",
			"alarm_time":  "2024-03-01 11:00:00",
			"arrival":     "2024-03-01 11:04:00",
			"lat":         "40.0200",
			"lon":         "-75.0200",
		},
	}
	src := sources.NewMemorySource("dispatch", "incident_id", "unit_id", "alarm_time", records)

	groups := []reconcile.SourceMappings{{
		Source: src,
		Mappings: []reconcile.FieldMapping{
			{Field: reconcile.FieldTime, Column: "alarm_time", Kind: reconcile.IncidentField},
			{Field: reconcile.FieldLatitude, Column: "lat", Kind: reconcile.IncidentField},
			{Field: reconcile.FieldLongitude, Column: "lon", Kind: reconcile.IncidentField},
			{Field: derive.BenchOnScene, Column: "arrival", Kind: reconcile.Benchmark},
		},
	}}

	regions := geo.NewRegionSource("districts", []geo.Region{{
		Name:   "Central",
		MinLat: 40.0, MaxLat: 40.1,
		MinLon: -75.1, MaxLon: -75.0,
		Attributes: map[string]string{"District": "Central"},
	}})
	enricher := geo.NewEnricher(nil, []geo.Source{regions}, nil, geo.NoopCache{}, 1)

	errs := models.NewErrorLog()
	deriver := derive.NewEngine(nil, errs)
	return NewPipeline(nil, groups, deriver, enricher, nil, errs), errs
}

func TestPipelineRun(t *testing.T) {
	p, errs := pipelineFixture(t)

	summary, set, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.RunID == "" {
		t.Fatalf("expected a run ID")
	}
	if summary.Records != 2 || summary.Incidents != 2 {
		t.Fatalf("expected 2 records and 2 incidents, got %d/%d", summary.Records, summary.Incidents)
	}
	if summary.SourcesRead != 1 {
		t.Fatalf("expected 1 source read, got %d", summary.SourcesRead)
	}
	if summary.Enriched != 2 {
		t.Fatalf("expected 2 enriched incidents, got %d", summary.Enriched)
	}
	if errs.Len() != 0 {
		t.Fatalf("expected no load errors, got %v", errs.All())
	}

	for _, stage := range []string{StageReconcile, StageDerive, StageGeo} {
		if _, ok := summary.StageDurations[stage]; !ok {
			t.Fatalf("missing duration for stage %s", stage)
		}
	}
	if _, ok := summary.StageDurations[StageScript]; ok {
		t.Fatalf("script stage should be skipped without a hook")
	}

	inc, ok := set.Get("INC-1")
	if !ok {
		t.Fatalf("incident INC-1 missing")
	}
	if district, ok := inc.Data["District"]; !ok || district.AsString() != "Central" {
		t.Fatalf("expected District attribute, got %v", inc.Data)
	}
	resp := inc.Response("E1")
	if resp == nil {
		t.Fatalf("response E1 missing")
	}
	arrival := resp.Timing(derive.BenchOnScene)
	if arrival == nil || !arrival.HasValue || arrival.Value != 6 {
		t.Fatalf("expected OnScene at 6 minutes, got %+v", arrival)
	}
}

func TestPipelineCancelled(t *testing.T) {
	p, _ := pipelineFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, _, err := p.Run(ctx)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if summary == nil {
		t.Fatalf("expected a summary even when cancelled")
	}
	if summary.Records != 0 {
		t.Fatalf("expected no records after immediate cancel, got %d", summary.Records)
	}
}

func TestPipelineProgress(t *testing.T) {
	p, _ := pipelineFixture(t)

	var events []Progress
	p.SetProgress(func(ev Progress) { events = append(events, ev) }, time.Nanosecond)

	if _, _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) == 0 {
		t.Fatalf("expected progress events")
	}

	var sawReconcileBoundary bool
	for _, ev := range events {
		if ev.RunID == "" {
			t.Fatalf("progress event missing run ID: %+v", ev)
		}
		if ev.Stage == StageReconcile && ev.Processed == ev.Total && ev.Total == 1 {
			sawReconcileBoundary = true
		}
	}
	if !sawReconcileBoundary {
		t.Fatalf("expected a reconcile boundary event, got %+v", events)
	}
}
