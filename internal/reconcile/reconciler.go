// Package reconcile merges records from heterogeneous sources into the
// unified incident/response/timing model. All per-record failures are
// recorded as load errors and never abort the pass.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/respstack/respstats/internal/models"
	"github.com/respstack/respstats/internal/sources"
)

// MappingKind selects the target category of a field mapping.
type MappingKind int

const (
	// IncidentField targets one of the typed incident columns
	// (Time, Location, Latitude, Longitude).
	IncidentField MappingKind = iota
	// IncidentAttr targets the incident's open attribute map.
	IncidentAttr
	// ResponseAttr targets a response's open attribute map.
	ResponseAttr
	// Benchmark targets a named timing event on a response.
	Benchmark
)

// Typed incident field names accepted by IncidentField mappings.
const (
	FieldTime      = "Time"
	FieldLocation  = "Location"
	FieldLatitude  = "Latitude"
	FieldLongitude = "Longitude"
)

// FieldMapping binds one source column to one target field.
type FieldMapping struct {
	Field  string
	Column string
	Kind   MappingKind
}

func (m FieldMapping) String() string {
	return fmt.Sprintf("%s<-%s", m.Field, m.Column)
}

// SourceMappings groups the mappings to apply against one source.
type SourceMappings struct {
	Source   sources.Source
	Mappings []FieldMapping
}

// Stats summarises one reconciliation pass.
type Stats struct {
	SourcesRead    int
	SourcesSkipped int
	Records        int
}

// Reconciler applies ordered source mappings into a shared incident set.
type Reconciler struct {
	logger    *slog.Logger
	incidents *models.IncidentSet
	errs      *models.ErrorLog
	intern    *InternPool

	windowStart time.Time
	windowEnd   time.Time
	hasWindow   bool
}

// NewReconciler creates a reconciler feeding the given error log.
func NewReconciler(logger *slog.Logger, errs *models.ErrorLog) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if errs == nil {
		errs = models.NewErrorLog()
	}
	return &Reconciler{
		logger:    logger,
		incidents: models.NewIncidentSet(),
		errs:      errs,
		intern:    NewInternPool(),
	}
}

// SetWindow restricts record fetching to [start, end].
func (r *Reconciler) SetWindow(start, end time.Time) {
	r.windowStart = start
	r.windowEnd = end
	r.hasWindow = true
}

// Incidents returns the shared incident set.
func (r *Reconciler) Incidents() *models.IncidentSet { return r.incidents }

// Errors returns the shared error log.
func (r *Reconciler) Errors() *models.ErrorLog { return r.errs }

// Reconcile walks the source groups in order and merges every record into the
// incident set. Cancellation is observed between records; a cancelled pass
// returns early with whatever was merged so far.
func (r *Reconciler) Reconcile(ctx context.Context, groups []SourceMappings) Stats {
	var stats Stats
	for _, group := range groups {
		if ctx.Err() != nil {
			return stats
		}
		if group.Source == nil || len(group.Mappings) == 0 {
			continue
		}
		if !group.Source.Connect() {
			r.logger.Warn("source connect failed, skipping",
				slog.String("source", group.Source.Name()))
			stats.SourcesSkipped++
			continue
		}
		stats.SourcesRead++
		stats.Records += r.reconcileSource(ctx, group)
		group.Source.Disconnect()
	}

	for _, inc := range r.incidents.All() {
		r.intern.Finalize(inc)
	}
	r.logger.Debug("reconciliation complete",
		slog.Int("incidents", r.incidents.Len()),
		slog.Int("records", stats.Records),
		slog.Int("interned", r.intern.Size()))
	return stats
}

func (r *Reconciler) reconcileSource(ctx context.Context, group SourceMappings) int {
	src := group.Source
	mappings := group.Mappings

	idColumn := src.IDColumn()
	respColumn := src.ResponseIDColumn()

	// A source without a response-ID column cannot serve response-level
	// mappings. The whole category is abandoned for this source with a
	// single error; incident-level mappings still run.
	if respColumn == "" && hasResponseMappings(mappings) {
		r.errs.Append(models.LoadError{
			Kind:   models.ErrNoResponseIDColumn,
			Source: src.Name(),
			Detail: "source declares no response-ID column",
		})
		mappings = incidentLevelOnly(mappings)
		if len(mappings) == 0 {
			return 0
		}
	}

	var records []sources.Record
	if r.hasWindow {
		records = src.RecordsBetween(r.windowStart, r.windowEnd)
	} else {
		records = src.Records()
	}

	processed := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return processed
		}
		r.reconcileRecord(src, rec, idColumn, respColumn, mappings)
		processed++
	}
	return processed
}

func (r *Reconciler) reconcileRecord(src sources.Source, rec sources.Record, idColumn, respColumn string, mappings []FieldMapping) {
	id := strings.TrimSpace(rec[idColumn])
	if id == "" {
		r.errs.Append(models.LoadError{
			Kind:   models.ErrNullIncidentID,
			Source: src.Name(),
			Record: rec,
			Detail: "identity column " + idColumn + " is empty",
		})
		return
	}
	inc := r.incidents.GetOrCreate(id)

	var resp *models.Response
	respMissing := false
	for _, m := range mappings {
		raw, ok := rec[m.Column]
		if !ok || strings.TrimSpace(raw) == "" {
			r.errs.Append(models.LoadError{
				Kind:    models.ErrNullValue,
				Source:  src.Name(),
				Mapping: m.String(),
				Record:  rec,
				Detail:  "column " + m.Column + " has no value",
			})
			continue
		}
		value := models.Coerce(raw)

		switch m.Kind {
		case IncidentField:
			r.assignIncidentField(src, rec, m, inc, value)
		case IncidentAttr:
			inc.Data[m.Field] = value
		case ResponseAttr, Benchmark:
			if resp == nil && !respMissing {
				rid := strings.TrimSpace(rec[respColumn])
				if rid == "" {
					respMissing = true
					r.errs.Append(models.LoadError{
						Kind:   models.ErrNullResponseID,
						Source: src.Name(),
						Record: rec,
						Detail: "response column " + respColumn + " is empty",
					})
				} else {
					resp = inc.EnsureResponse(rid)
				}
			}
			if resp == nil {
				continue
			}
			if m.Kind == ResponseAttr {
				resp.Data[m.Field] = value
			} else {
				r.assignBenchmark(resp, m, value)
			}
		default:
			r.errs.Append(models.LoadError{
				Kind:    models.ErrLoaderException,
				Source:  src.Name(),
				Mapping: m.String(),
				Record:  rec,
				Detail:  fmt.Sprintf("unknown mapping kind %d", m.Kind),
			})
		}
	}
}

func (r *Reconciler) assignIncidentField(src sources.Source, rec sources.Record, m FieldMapping, inc *models.Incident, value models.Value) {
	switch m.Field {
	case FieldTime:
		t, ok := value.AsTime()
		if !ok {
			r.badValue(src, rec, m, "value does not parse as a timestamp")
			return
		}
		if inc.Time.IsZero() {
			inc.Time = t
		} else if !inc.Time.Equal(t) {
			r.mergeConflict(src, rec, m, "incident time already set to a different value")
		}
	case FieldLocation:
		loc := value.AsString()
		if inc.Location == "" {
			inc.Location = loc
		} else if inc.Location != loc {
			r.mergeConflict(src, rec, m, "incident location already set to a different value")
		}
	case FieldLatitude:
		f, ok := value.AsFloat()
		if !ok {
			r.badValue(src, rec, m, "latitude does not parse as a number")
			return
		}
		if !inc.SetLatitude(f) {
			r.mergeConflict(src, rec, m, "latitude already set to a different value")
		}
	case FieldLongitude:
		f, ok := value.AsFloat()
		if !ok {
			r.badValue(src, rec, m, "longitude does not parse as a number")
			return
		}
		if !inc.SetLongitude(f) {
			r.mergeConflict(src, rec, m, "longitude already set to a different value")
		}
	default:
		r.errs.Append(models.LoadError{
			Kind:    models.ErrLoaderException,
			Source:  src.Name(),
			Mapping: m.String(),
			Record:  rec,
			Detail:  "unknown typed incident field " + m.Field,
		})
	}
}

// assignBenchmark stores the coerced raw value on the timing event and, when
// it is numeric, the minute offset. The raw value is what the derivation
// engine falls back to for absolute-timestamp benchmarks.
func (r *Reconciler) assignBenchmark(resp *models.Response, m FieldMapping, value models.Value) {
	ev := resp.EnsureTiming(m.Field)
	ev.RawData = value
	if minutes, ok := value.AsFloat(); ok {
		ev.SetMinutes(minutes)
	}
}

func (r *Reconciler) badValue(src sources.Source, rec sources.Record, m FieldMapping, detail string) {
	r.errs.Append(models.LoadError{
		Kind:    models.ErrBadValue,
		Source:  src.Name(),
		Mapping: m.String(),
		Record:  rec,
		Detail:  detail,
	})
}

func (r *Reconciler) mergeConflict(src sources.Source, rec sources.Record, m FieldMapping, detail string) {
	r.errs.Append(models.LoadError{
		Kind:    models.ErrMergeConflict,
		Source:  src.Name(),
		Mapping: m.String(),
		Record:  rec,
		Detail:  detail,
	})
}

func hasResponseMappings(mappings []FieldMapping) bool {
	for _, m := range mappings {
		if m.Kind == ResponseAttr || m.Kind == Benchmark {
			return true
		}
	}
	return false
}

func incidentLevelOnly(mappings []FieldMapping) []FieldMapping {
	out := make([]FieldMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.Kind == IncidentField || m.Kind == IncidentAttr {
			out = append(out, m)
		}
	}
	return out
}
