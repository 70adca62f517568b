// Package measures holds the domain reducers that operate on grouped
// incidents directly: response-performance timings, arrival rollups and
// utilization. A measure optionally composes with a calculation delegate for
// the final reduction; with a nil delegate the raw per-group value list is
// returned instead.
package measures

import (
	"fmt"
	"sync"

	"github.com/respstack/respstats/internal/aggregate"
	"github.com/respstack/respstats/internal/calc"
	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/models"
)

// Result is a per-group outcome: a reduced scalar or the raw value list.
type Result struct {
	Reduced bool
	Value   float64
	Values  []float64
}

// Delegate reduces grouped incidents per category key.
type Delegate interface {
	Name() string
	Calculate(groups map[aggregate.Key][]*models.Incident, c calc.Delegate) map[aggregate.Key]Result
}

// Factory builds a fresh measure instance.
type Factory func() Delegate

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a measure factory under its name.
func Register(name string, f Factory) {
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

// New builds the named measure; unknown names are a caller error.
func New(name string) (Delegate, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown metric delegate %q", name)
	}
	return f(), nil
}

func init() {
	Register("TimeOfDay", func() Delegate { return timeOfDay{} })
	Register("DispatchTime", func() Delegate { return timingMeasure{name: "DispatchTime", event: "DispatchTime"} })
	Register("TurnoutTime", func() Delegate { return timingMeasure{name: "TurnoutTime", event: derive.DerivedTurnoutTime} })
	Register("TravelTime", func() Delegate { return timingMeasure{name: "TravelTime", event: derive.DerivedTravelTime} })
	Register("SceneTime", func() Delegate { return timingMeasure{name: "SceneTime", event: derive.DerivedSceneTime} })
	Register("CommittedTime", func() Delegate { return timingMeasure{name: "CommittedTime", event: derive.DerivedCommittedHours} })
	Register("InitialResponse", func() Delegate {
		return arrivalMeasure{name: "InitialResponse", rollup: derive.DerivedFirstArrival, earliest: true}
	})
	Register("FullComplement", func() Delegate {
		return arrivalMeasure{name: "FullComplement", rollup: derive.DerivedFullComplement, earliest: false}
	})
	Register("Utilization", func() Delegate { return &Utilization{} })
}

// reduce applies the optional calculation delegate to a raw value list.
func reduce(values []float64, c calc.Delegate) Result {
	if c == nil {
		return Result{Values: values}
	}
	wrapped := make([]models.Value, len(values))
	for i, v := range values {
		wrapped[i] = models.FloatValue(v)
	}
	return Result{Reduced: true, Value: c.Calculate(wrapped)}
}

// timeOfDay measures the incident time as minutes past midnight.
type timeOfDay struct{}

func (timeOfDay) Name() string { return "TimeOfDay" }

func (timeOfDay) Calculate(groups map[aggregate.Key][]*models.Incident, c calc.Delegate) map[aggregate.Key]Result {
	out := make(map[aggregate.Key]Result, len(groups))
	for key, incidents := range groups {
		values := make([]float64, 0, len(incidents))
		for _, inc := range incidents {
			if inc.Time.IsZero() {
				continue
			}
			values = append(values, float64(inc.Time.Hour()*60+inc.Time.Minute())+float64(inc.Time.Second())/60)
		}
		out[key] = reduce(values, c)
	}
	return out
}

// timingMeasure collects one named timing event across every response.
type timingMeasure struct {
	name  string
	event string
}

func (m timingMeasure) Name() string { return m.name }

func (m timingMeasure) Calculate(groups map[aggregate.Key][]*models.Incident, c calc.Delegate) map[aggregate.Key]Result {
	out := make(map[aggregate.Key]Result, len(groups))
	for key, incidents := range groups {
		var values []float64
		for _, inc := range incidents {
			for _, resp := range inc.Responses {
				if ev := resp.Timing(m.event); ev != nil && ev.HasValue {
					values = append(values, ev.Value)
				}
			}
		}
		out[key] = reduce(values, c)
	}
	return out
}

// arrivalMeasure reads an arrival rollup, falling back to scanning OnScene
// values when the rollup was never stamped.
type arrivalMeasure struct {
	name     string
	rollup   string
	earliest bool
}

func (m arrivalMeasure) Name() string { return m.name }

func (m arrivalMeasure) Calculate(groups map[aggregate.Key][]*models.Incident, c calc.Delegate) map[aggregate.Key]Result {
	out := make(map[aggregate.Key]Result, len(groups))
	for key, incidents := range groups {
		var values []float64
		for _, inc := range incidents {
			if v, ok := m.incidentValue(inc); ok {
				values = append(values, v)
			}
		}
		out[key] = reduce(values, c)
	}
	return out
}

func (m arrivalMeasure) incidentValue(inc *models.Incident) (float64, bool) {
	for _, resp := range inc.Responses {
		if ev := resp.Timing(m.rollup); ev != nil && ev.HasValue {
			return ev.Value, true
		}
	}
	best := 0.0
	found := false
	for _, resp := range inc.Responses {
		ev := resp.Timing(derive.BenchOnScene)
		if ev == nil || !ev.HasValue {
			continue
		}
		if !found || (m.earliest && ev.Value < best) || (!m.earliest && ev.Value > best) {
			best = ev.Value
			found = true
		}
	}
	return best, found
}
