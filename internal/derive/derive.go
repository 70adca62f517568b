// Package derive resolves raw benchmark observations into a canonical timing
// model: every benchmark ends up with both a minute offset from the
// incident's base time and an absolute timestamp, and the standard
// response-performance intervals are synthesised from them.
package derive

import (
	"context"
	"log/slog"
	"time"

	"github.com/respstack/respstats/internal/models"
)

// Benchmarks in their fixed processing order.
const (
	BenchAssigned   = "Assigned"
	BenchResponding = "Responding"
	BenchOnScene    = "OnScene"
	BenchClearScene = "ClearScene"
	BenchInService  = "InService"
	BenchInQuarters = "InQuarters"
)

// BenchmarkOrder lists the named benchmarks the engine resolves, in order.
var BenchmarkOrder = []string{
	BenchAssigned,
	BenchResponding,
	BenchOnScene,
	BenchClearScene,
	BenchInService,
	BenchInQuarters,
}

// Derived timing event names.
const (
	DerivedTurnoutTime     = "TurnoutTime"
	DerivedTravelTime      = "TravelTime"
	DerivedCommittedHours  = "CommittedHours" // historical name; unit is minutes
	DerivedSceneTime       = "SceneTime"
	DerivedFirstArrival    = "FirstArrival"
	DerivedFullComplement  = "FullComplement"
	DerivedFirstResponding = "FirstResponding"
)

// FirstEffActionKey is the incident attribute that overrides the base time.
const FirstEffActionKey = "FirstEffAction"

// Engine computes canonical times and derived intervals per response.
type Engine struct {
	logger *slog.Logger
	errs   *models.ErrorLog
}

// NewEngine creates a derivation engine feeding the given error log.
func NewEngine(logger *slog.Logger, errs *models.ErrorLog) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if errs == nil {
		errs = models.NewErrorLog()
	}
	return &Engine{logger: logger, errs: errs}
}

// Derive processes every incident in the set. Failures are localised to the
// offending response or incident; the pass never aborts. Cancellation is
// observed between incidents.
func (e *Engine) Derive(ctx context.Context, set *models.IncidentSet) {
	for _, inc := range set.All() {
		if ctx.Err() != nil {
			return
		}
		e.deriveIncident(inc)
	}
}

func (e *Engine) deriveIncident(inc *models.Incident) {
	base, ok := baseTime(inc)
	if !ok {
		// Without a base time no offsets can be resolved. Benchmarks stay
		// as supplied; one error per response keeps diagnostics usable.
		for _, resp := range inc.Responses {
			e.errs.Append(models.LoadError{
				Kind:    models.ErrBadValue,
				Mapping: resp.ID,
				Detail:  "incident " + inc.ID + " has no time; response timings cannot be derived",
			})
		}
		return
	}

	for _, resp := range inc.Responses {
		e.deriveResponse(resp, base)
	}
	e.rollupIncident(inc)
}

// baseTime is the incident time unless a parseable FirstEffAction override is
// present on the attribute map.
func baseTime(inc *models.Incident) (time.Time, bool) {
	if override, ok := inc.Data[FirstEffActionKey]; ok {
		if t, ok := override.AsTime(); ok {
			return t, true
		}
	}
	if inc.Time.IsZero() {
		return time.Time{}, false
	}
	return inc.Time, true
}

// deriveResponse resolves absolute timestamps and offsets for the named
// benchmarks, then synthesises the derived intervals. The originally supplied
// minute offset wins over an absolute raw timestamp when both are present.
func (e *Engine) deriveResponse(resp *models.Response, base time.Time) {
	for _, name := range BenchmarkOrder {
		ev := resp.Timing(name)
		if ev == nil {
			continue
		}
		if ev.HasValue {
			ev.Timestamp = base.Add(minutesToDuration(ev.Value))
			continue
		}
		if ts, ok := ev.RawData.AsTime(); ok {
			ev.Timestamp = ts
			ev.SetMinutes(ts.Sub(base).Minutes())
		}
	}

	assigned := resp.Timing(BenchAssigned)
	responding := resp.Timing(BenchResponding)
	onScene := resp.Timing(BenchOnScene)
	clearScene := resp.Timing(BenchClearScene)
	inService := resp.Timing(BenchInService)

	e.deriveInterval(resp, DerivedTurnoutTime, assigned, responding, true)
	e.deriveInterval(resp, DerivedTravelTime, responding, onScene, true)

	committedEnd := clearScene
	if committedEnd == nil || !committedEnd.HasTimestamp() {
		committedEnd = inService
	}
	e.deriveInterval(resp, DerivedCommittedHours, assigned, committedEnd, true)

	// SceneTime is only meaningful when an on-scene arrival was recorded.
	if onScene != nil && onScene.HasTimestamp() {
		e.deriveInterval(resp, DerivedSceneTime, onScene, clearScene, false)
	}
}

// deriveInterval creates the named duration event from two resolved
// benchmarks, only when absent and when both ends have absolute times.
func (e *Engine) deriveInterval(resp *models.Response, name string, from, to *models.TimingEvent, clampZero bool) {
	if resp.Timing(name) != nil {
		return
	}
	if from == nil || !from.HasTimestamp() || to == nil || !to.HasTimestamp() {
		return
	}
	minutes := to.Timestamp.Sub(from.Timestamp).Minutes()
	if clampZero && minutes < 0 {
		minutes = 0
	}
	ev := resp.EnsureTiming(name)
	ev.SetMinutes(minutes)
}

// rollupIncident computes the cross-response events. When no response has an
// on-scene time the incident receives none of them.
func (e *Engine) rollupIncident(inc *models.Incident) {
	var firstArrival, fullComplement, firstResponding *models.Response
	var earliestScene, latestScene, earliestResponding time.Time

	for _, resp := range inc.Responses {
		if onScene := resp.Timing(BenchOnScene); onScene != nil && onScene.HasTimestamp() {
			if firstArrival == nil || onScene.Timestamp.Before(earliestScene) {
				firstArrival = resp
				earliestScene = onScene.Timestamp
			}
			if fullComplement == nil || onScene.Timestamp.After(latestScene) {
				fullComplement = resp
				latestScene = onScene.Timestamp
			}
		}
		if responding := resp.Timing(BenchResponding); responding != nil && responding.HasTimestamp() {
			if firstResponding == nil || responding.Timestamp.Before(earliestResponding) {
				firstResponding = resp
				earliestResponding = responding.Timestamp
			}
		}
	}

	if firstArrival == nil {
		return
	}

	stampRollup(firstArrival, DerivedFirstArrival, BenchOnScene)
	stampRollup(fullComplement, DerivedFullComplement, BenchOnScene)
	if firstResponding != nil {
		stampRollup(firstResponding, DerivedFirstResponding, BenchResponding)
	}
}

func stampRollup(resp *models.Response, name, from string) {
	src := resp.Timing(from)
	if src == nil {
		return
	}
	ev := resp.EnsureTiming(name)
	if src.HasValue {
		ev.SetMinutes(src.Value)
	}
	ev.Timestamp = src.Timestamp
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
