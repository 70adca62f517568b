package geo

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/respstack/respstats/internal/models"
)

// TargetKind selects where a looked-up attribute lands.
type TargetKind int

const (
	// TargetIncident writes into the incident's attribute map.
	TargetIncident TargetKind = iota
	// TargetResponses writes into every response's attribute map.
	TargetResponses
	// TargetTimings writes into every timing event's attribute map.
	TargetTimings
)

// AttributeMapping directs one looked-up attribute to a model field.
type AttributeMapping struct {
	Attribute string
	Target    TargetKind
	Field     string
}

// Enricher runs geo lookups over an incident set with a fixed worker pool.
// The queue is fully populated before workers start and each worker writes
// only into the incident it currently holds, so incident state needs no
// locking. Sources must tolerate concurrent readers.
type Enricher struct {
	logger   *slog.Logger
	sources  []Source
	mappings []AttributeMapping
	cache    Cache
	workers  int
}

// NewEnricher creates an enricher. workers <= 0 selects NumCPU-1 (minimum 1).
func NewEnricher(logger *slog.Logger, srcs []Source, mappings []AttributeMapping, cache Cache, workers int) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if cache == nil {
		cache = NoopCache{}
	}
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	return &Enricher{
		logger:   logger,
		sources:  srcs,
		mappings: mappings,
		cache:    cache,
		workers:  workers,
	}
}

// Enrich processes every incident with coordinates. Cancellation is
// cooperative: workers check the context between incidents and drain the
// queue without further lookups once it fires. Returns the number of
// incidents enriched.
func (e *Enricher) Enrich(ctx context.Context, set *models.IncidentSet) int {
	if len(e.sources) == 0 || set.Len() == 0 {
		return 0
	}

	queue := make(chan *models.Incident, set.Len())
	for _, inc := range set.All() {
		queue <- inc
	}
	close(queue)

	var enriched atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for inc := range queue {
				if ctx.Err() != nil {
					continue
				}
				if e.enrichIncident(inc) {
					enriched.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	return int(enriched.Load())
}

func (e *Enricher) enrichIncident(inc *models.Incident) bool {
	if !inc.HasCoords() {
		return false
	}

	matched := false
	for _, src := range e.sources {
		attrs, ok := e.lookup(src, inc.Latitude, inc.Longitude)
		if !ok {
			// Lookup failed; skip this incident's enrichment entirely so a
			// partial attribute set is never applied.
			return false
		}
		if attrs == nil {
			continue
		}
		e.apply(inc, attrs)
		matched = true
	}
	return matched
}

func (e *Enricher) lookup(src Source, lat, lon float64) (map[string]models.Value, bool) {
	key := CellKey(src.Name(), lat, lon)
	if attrs, ok := e.cache.Get(key); ok {
		return attrs, true
	}
	attrs, err := src.Lookup(lat, lon)
	if err != nil {
		e.logger.Warn("geo lookup failed",
			slog.String("source", src.Name()),
			slog.Float64("lat", lat),
			slog.Float64("lon", lon),
			slog.Any("error", err))
		return nil, false
	}
	e.cache.Set(key, attrs)
	return attrs, true
}

func (e *Enricher) apply(inc *models.Incident, attrs map[string]models.Value) {
	if len(e.mappings) == 0 {
		// No explicit mapping: everything lands on the incident under the
		// source-provided attribute names.
		for key, value := range attrs {
			inc.Data[key] = value
		}
		return
	}

	for _, m := range e.mappings {
		value, ok := attrs[m.Attribute]
		if !ok {
			continue
		}
		field := m.Field
		if field == "" {
			field = m.Attribute
		}
		switch m.Target {
		case TargetIncident:
			inc.Data[field] = value
		case TargetResponses:
			for _, resp := range inc.Responses {
				resp.Data[field] = value
			}
		case TargetTimings:
			for _, resp := range inc.Responses {
				for _, timing := range resp.Timings {
					timing.Data[field] = value
				}
			}
		}
	}
}
