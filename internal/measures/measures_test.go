package measures

import (
	"testing"
	"time"

	"github.com/respstack/respstats/internal/aggregate"
	"github.com/respstack/respstats/internal/calc"
	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/models"
)

func timedIncident(set *models.IncidentSet, id string, t time.Time) *models.Incident {
	inc := set.GetOrCreate(id)
	inc.Time = t
	return inc
}

func withTiming(inc *models.Incident, respID, event string, minutes float64) {
	inc.EnsureResponse(respID).EnsureTiming(event).SetMinutes(minutes)
}

func singleGroup(incidents []*models.Incident) map[aggregate.Key][]*models.Incident {
	return map[aggregate.Key][]*models.Incident{aggregate.StringKey("All"): incidents}
}

func TestTurnoutMeasureWithMedian(t *testing.T) {
	set := models.NewIncidentSet()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, minutes := range []float64{1, 2, 3, 4} {
		inc := timedIncident(set, string(rune('A'+i)), base)
		withTiming(inc, "E1", derive.DerivedTurnoutTime, minutes)
	}

	m, err := New("TurnoutTime")
	if err != nil {
		t.Fatalf("registry miss: %v", err)
	}
	median, _ := calc.New("Median")
	results := m.Calculate(singleGroup(set.All()), median)

	got := results[aggregate.StringKey("All")]
	if !got.Reduced || got.Value != 3 {
		t.Fatalf("median turnout = %+v, want reduced 3", got)
	}
}

func TestNilCalcReturnsRawList(t *testing.T) {
	set := models.NewIncidentSet()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := timedIncident(set, "A", base)
	withTiming(inc, "E1", derive.DerivedTravelTime, 5.5)

	m, _ := New("TravelTime")
	results := m.Calculate(singleGroup(set.All()), nil)
	got := results[aggregate.StringKey("All")]
	if got.Reduced || len(got.Values) != 1 || got.Values[0] != 5.5 {
		t.Fatalf("nil delegate must return the raw list, got %+v", got)
	}
}

func TestTimeOfDayMinutesPastMidnight(t *testing.T) {
	set := models.NewIncidentSet()
	timedIncident(set, "A", time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC))

	m, _ := New("TimeOfDay")
	results := m.Calculate(singleGroup(set.All()), nil)
	got := results[aggregate.StringKey("All")]
	if len(got.Values) != 1 || got.Values[0] != 630 {
		t.Fatalf("10:30 = %+v, want 630 minutes past midnight", got)
	}
}

func TestInitialResponseFallsBackToOnScene(t *testing.T) {
	set := models.NewIncidentSet()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	stamped := timedIncident(set, "A", base)
	withTiming(stamped, "E1", derive.DerivedFirstArrival, 4)

	bare := timedIncident(set, "B", base)
	withTiming(bare, "E1", derive.BenchOnScene, 9)
	withTiming(bare, "L1", derive.BenchOnScene, 6)

	m, _ := New("InitialResponse")
	results := m.Calculate(singleGroup(set.All()), nil)
	got := results[aggregate.StringKey("All")]
	if len(got.Values) != 2 {
		t.Fatalf("expected one value per incident, got %+v", got)
	}
	if got.Values[0] != 4 || got.Values[1] != 6 {
		t.Fatalf("expected rollup then earliest OnScene fallback, got %v", got.Values)
	}
}

func TestFullComplementPicksLatest(t *testing.T) {
	set := models.NewIncidentSet()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := timedIncident(set, "A", base)
	withTiming(inc, "E1", derive.BenchOnScene, 9)
	withTiming(inc, "L1", derive.BenchOnScene, 6)

	m, _ := New("FullComplement")
	results := m.Calculate(singleGroup(set.All()), nil)
	got := results[aggregate.StringKey("All")]
	if len(got.Values) != 1 || got.Values[0] != 9 {
		t.Fatalf("expected latest OnScene 9, got %+v", got)
	}
}

func TestUtilizationPeriodInference(t *testing.T) {
	set := models.NewIncidentSet()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	inc := timedIncident(set, "A", base)
	// 144 committed minutes over a 1440-minute day is 10%.
	withTiming(inc, "E1", derive.DerivedCommittedHours, 144)

	u := &Utilization{}
	if err := u.SetPeriod(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("SetPeriod: %v", err)
	}

	dayGroups := map[aggregate.Key][]*models.Incident{aggregate.IntKey(20240301): set.All()}
	got := u.Calculate(dayGroups, nil)[aggregate.IntKey(20240301)]
	if got.Value != 10 {
		t.Fatalf("day-key utilization = %v, want 10", got.Value)
	}

	monthGroups := map[aggregate.Key][]*models.Incident{aggregate.IntKey(202403): set.All()}
	got = u.Calculate(monthGroups, nil)[aggregate.IntKey(202403)]
	want := 144.0 / (31 * 1440) * 100
	if diff := got.Value - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("month-key utilization = %v, want %v", got.Value, want)
	}

	// March 2024 has five Fridays.
	fridayGroups := map[aggregate.Key][]*models.Incident{aggregate.StringKey("Fri"): set.All()}
	got = u.Calculate(fridayGroups, nil)[aggregate.StringKey("Fri")]
	want = 144.0 / (5 * 1440) * 100
	if diff := got.Value - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("weekday-key utilization = %v, want %v", got.Value, want)
	}
}

func TestUtilizationRequiresPeriod(t *testing.T) {
	set := models.NewIncidentSet()
	timedIncident(set, "A", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	u := &Utilization{}
	got := u.Calculate(singleGroup(set.All()), nil)[aggregate.StringKey("All")]
	if got.Value != -1 {
		t.Fatalf("missing period must yield -1, got %v", got.Value)
	}
	if err := u.SetPeriod(time.Now(), time.Now().Add(-time.Hour)); err == nil {
		t.Fatalf("inverted period must be rejected")
	}
}
