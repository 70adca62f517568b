package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/engine"
	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/reconcile"
	"github.com/respstack/respstats/internal/sources"
)

const testReportPack = `
reports:
  - name: responses-by-hour
    dimensions:
      - name: HourOfDay
    measure: TimeOfDay
    calculation: Count
`

func serviceFixture(t *testing.T) *StatsService {
	t.Helper()

	records := []sources.Record{
		{"incident_id": "INC-1", "unit_id": "E1", "alarm_time": "2024-03-01 10:00:00", "arrival": "2024-03-01 10:06:00"},
		{"incident_id": "INC-2", "unit_id": "E2", "alarm_time": "2024-03-01 14:00:00", "arrival": "2024-03-01 14:05:00"},
	}
	src := sources.NewMemorySource("dispatch", "incident_id", "unit_id", "alarm_time", records)
	groups := []reconcile.SourceMappings{{
		Source: src,
		Mappings: []reconcile.FieldMapping{
			{Field: reconcile.FieldTime, Column: "alarm_time", Kind: reconcile.IncidentField},
			{Field: derive.BenchOnScene, Column: "arrival", Kind: reconcile.Benchmark},
		},
	}}

	errs := models.NewErrorLog()
	pipeline := engine.NewPipeline(nil, groups, derive.NewEngine(nil, errs), nil, nil, errs)

	packPath := filepath.Join(t.TempDir(), "reports.yaml")
	if err := os.WriteFile(packPath, []byte(testReportPack), 0o644); err != nil {
		t.Fatalf("write report pack: %v", err)
	}
	pack, err := engine.NewReportPack(packPath, nil)
	if err != nil {
		t.Fatalf("load report pack: %v", err)
	}

	return NewStatsService(nil, pipeline, pack)
}

func TestStatsServiceRun(t *testing.T) {
	svc := serviceFixture(t)

	out, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Summary.Incidents != 2 {
		t.Fatalf("expected 2 incidents, got %d", out.Summary.Incidents)
	}
	if len(out.Reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(out.Reports))
	}
	if len(out.Errors) != 0 {
		t.Fatalf("expected no load errors, got %v", out.Errors)
	}

	// HourOfDay has 24 canonical buckets; incidents land at 10:00 and 14:00.
	rows := out.Reports[0].Rows
	if len(rows) != 24 {
		t.Fatalf("expected 24 hour rows, got %d", len(rows))
	}
	populated := 0
	for _, row := range rows {
		if row.Count > 0 {
			populated++
		}
	}
	if populated != 2 {
		t.Fatalf("expected 2 populated hour buckets, got %d", populated)
	}
}

func TestStatsServiceRequiresPipeline(t *testing.T) {
	svc := NewStatsService(nil, nil, nil)
	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatalf("expected error without pipeline")
	}
}
