package reconcile

import (
	"context"
	"testing"

	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/sources"
)

func newSource(name, idCol, respCol string, records []sources.Record) sources.Source {
	return sources.NewMemorySource(name, idCol, respCol, "", records)
}

func TestReconcileIdentityUniqueness(t *testing.T) {
	cad := newSource("cad", "IncidentNum", "", []sources.Record{
		{"IncidentNum": "123", "Alarm": "2024-03-01 10:00:00", "Addr": "12 Main St"},
	})
	rms := newSource("rms", "Key", "", []sources.Record{
		{"Key": "123", "Category": "Structure Fire"},
	})

	r := NewReconciler(nil, nil)
	groups := []SourceMappings{
		{Source: cad, Mappings: []FieldMapping{
			{Field: FieldTime, Column: "Alarm", Kind: IncidentField},
			{Field: FieldLocation, Column: "Addr", Kind: IncidentField},
		}},
		{Source: rms, Mappings: []FieldMapping{
			{Field: "Category", Column: "Category", Kind: IncidentAttr},
		}},
	}
	stats := r.Reconcile(context.Background(), groups)

	if stats.Records != 2 {
		t.Fatalf("expected 2 records processed, got %d", stats.Records)
	}
	if r.Incidents().Len() != 1 {
		t.Fatalf("expected one incident for shared identity, got %d", r.Incidents().Len())
	}
	inc, ok := r.Incidents().Get("123")
	if !ok {
		t.Fatalf("incident 123 missing")
	}
	if inc.Location != "12 Main St" {
		t.Fatalf("typed field not assigned: %q", inc.Location)
	}
	if got := inc.Data["Category"].AsString(); got != "Structure Fire" {
		t.Fatalf("attribute union incomplete: %q", got)
	}
	if r.Errors().Len() != 0 {
		t.Fatalf("expected no load errors, got %v", r.Errors().All())
	}
}

func TestReconcileEmptyIdentity(t *testing.T) {
	src := newSource("cad", "IncidentNum", "", []sources.Record{
		{"IncidentNum": "  ", "Addr": "Nowhere"},
	})
	r := NewReconciler(nil, nil)
	r.Reconcile(context.Background(), []SourceMappings{
		{Source: src, Mappings: []FieldMapping{
			{Field: FieldLocation, Column: "Addr", Kind: IncidentField},
		}},
	})

	errs := r.Errors().All()
	if len(errs) != 1 || errs[0].Kind != models.ErrNullIncidentID {
		t.Fatalf("expected exactly one null-incident-id error, got %v", errs)
	}
	if r.Incidents().Len() != 0 {
		t.Fatalf("no incident may be created for an empty identity")
	}
}

func TestReconcileMissingResponseIDColumn(t *testing.T) {
	src := newSource("cad", "IncidentNum", "", []sources.Record{
		{"IncidentNum": "A1", "Unit": "E7", "Addr": "5 Oak Ave"},
	})
	r := NewReconciler(nil, nil)
	r.Reconcile(context.Background(), []SourceMappings{
		{Source: src, Mappings: []FieldMapping{
			{Field: FieldLocation, Column: "Addr", Kind: IncidentField},
			{Field: "Unit", Column: "Unit", Kind: ResponseAttr},
		}},
	})

	errs := r.Errors().All()
	if len(errs) != 1 || errs[0].Kind != models.ErrNoResponseIDColumn {
		t.Fatalf("expected one no-response-id-column error, got %v", errs)
	}
	inc, ok := r.Incidents().Get("A1")
	if !ok {
		t.Fatalf("incident-level mappings must still run")
	}
	if inc.Location != "5 Oak Ave" {
		t.Fatalf("location not assigned: %q", inc.Location)
	}
	if len(inc.Responses) != 0 {
		t.Fatalf("response mappings must be abandoned for the source")
	}
}

func TestReconcileNullValueSkipsFieldOnly(t *testing.T) {
	src := newSource("cad", "IncidentNum", "", []sources.Record{
		{"IncidentNum": "A1", "Addr": "", "Category": "EMS"},
	})
	r := NewReconciler(nil, nil)
	r.Reconcile(context.Background(), []SourceMappings{
		{Source: src, Mappings: []FieldMapping{
			{Field: FieldLocation, Column: "Addr", Kind: IncidentField},
			{Field: "Category", Column: "Category", Kind: IncidentAttr},
		}},
	})

	errs := r.Errors().All()
	if len(errs) != 1 || errs[0].Kind != models.ErrNullValue {
		t.Fatalf("expected one null-value error, got %v", errs)
	}
	inc, _ := r.Incidents().Get("A1")
	if inc == nil || inc.Data["Category"].AsString() != "EMS" {
		t.Fatalf("record must still be processed after a null value")
	}
}

func TestReconcileBenchmarkStoresRawAndMinutes(t *testing.T) {
	src := newSource("cad", "IncidentNum", "Unit", []sources.Record{
		{"IncidentNum": "A1", "Unit": "E7", "TurnoutMin": "1.5", "OnScene": "10:07:00"},
	})
	r := NewReconciler(nil, nil)
	r.Reconcile(context.Background(), []SourceMappings{
		{Source: src, Mappings: []FieldMapping{
			{Field: "Assigned", Column: "TurnoutMin", Kind: Benchmark},
			{Field: "OnScene", Column: "OnScene", Kind: Benchmark},
		}},
	})

	inc, _ := r.Incidents().Get("A1")
	resp := inc.Response("E7")
	if resp == nil {
		t.Fatalf("response E7 missing")
	}

	assigned := resp.Timing("Assigned")
	if assigned == nil || !assigned.HasValue || assigned.Value != 1.5 {
		t.Fatalf("numeric benchmark must set minutes: %+v", assigned)
	}
	if assigned.RawData.IsEmpty() {
		t.Fatalf("raw data must be preserved")
	}

	onScene := resp.Timing("OnScene")
	if onScene == nil || onScene.HasValue {
		t.Fatalf("timestamp benchmark must not set minutes before derivation: %+v", onScene)
	}
	if _, ok := onScene.RawData.AsTime(); !ok {
		t.Fatalf("raw timestamp must survive for derivation")
	}
}

func TestReconcileMergeConflictKeepsFirstValue(t *testing.T) {
	a := newSource("a", "ID", "", []sources.Record{
		{"ID": "A1", "Alarm": "2024-03-01 10:00:00"},
	})
	b := newSource("b", "ID", "", []sources.Record{
		{"ID": "A1", "Alarm": "2024-03-01 11:00:00"},
	})
	r := NewReconciler(nil, nil)
	mapping := []FieldMapping{{Field: FieldTime, Column: "Alarm", Kind: IncidentField}}
	r.Reconcile(context.Background(), []SourceMappings{
		{Source: a, Mappings: mapping},
		{Source: b, Mappings: mapping},
	})

	errs := r.Errors().All()
	if len(errs) != 1 || errs[0].Kind != models.ErrMergeConflict {
		t.Fatalf("expected one merge-conflict error, got %v", errs)
	}
	inc, _ := r.Incidents().Get("A1")
	if inc.Time.Hour() != 10 {
		t.Fatalf("first value must win, got %v", inc.Time)
	}
}

func TestInternPoolDeduplicates(t *testing.T) {
	pool := NewInternPool()
	first := pool.Intern("Engine 7")
	second := pool.Intern("Engine 7")
	if pool.Size() != 1 {
		t.Fatalf("expected a single interned string, got %d", pool.Size())
	}
	if first != second {
		t.Fatalf("interned strings must be identical")
	}
}
