package measures

import (
	"fmt"
	"time"

	"github.com/respstack/respstats/internal/aggregate"
	"github.com/respstack/respstats/internal/calc"
	"github.com/respstack/respstats/internal/derive"
	"github.com/respstack/respstats/internal/models"
)

const minutesPerDay = 24 * 60

// Utilization reports committed minutes as a percentage of the period each
// category key spans. The period length is inferred from the key's shape:
// compact numeric keys read as Day/Month/Year, 3-letter names as
// DayOfWeek/MonthOfYear occurrences inside the configured span, anything
// else as the flat start-to-end span. The start/end pair is required.
type Utilization struct {
	start time.Time
	end   time.Time
	set   bool
}

// Name implements Delegate.
func (*Utilization) Name() string { return "Utilization" }

// SetPeriod configures the observation span the aggregation covers.
func (u *Utilization) SetPeriod(start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("utilization period end %v not after start %v", end, start)
	}
	u.start = start
	u.end = end
	u.set = true
	return nil
}

// Calculate reduces each group to a single percentage. The optional
// calculation delegate is not used: utilization is already a scalar per
// group.
func (u *Utilization) Calculate(groups map[aggregate.Key][]*models.Incident, _ calc.Delegate) map[aggregate.Key]Result {
	out := make(map[aggregate.Key]Result, len(groups))
	for key, incidents := range groups {
		period := u.periodMinutes(key)
		if period <= 0 {
			out[key] = Result{Reduced: true, Value: -1}
			continue
		}
		committed := 0.0
		for _, inc := range incidents {
			for _, resp := range inc.Responses {
				if ev := resp.Timing(derive.DerivedCommittedHours); ev != nil && ev.HasValue {
					committed += ev.Value
				}
			}
		}
		out[key] = Result{Reduced: true, Value: committed / period * 100}
	}
	return out
}

func (u *Utilization) periodMinutes(key aggregate.Key) float64 {
	if !u.set {
		return -1
	}
	if n, ok := key.Int(); ok {
		switch {
		case n >= 10000000: // YYYYMMDD
			return minutesPerDay
		case n >= 100000: // YYYYMM
			year, month := n/100, time.Month(n%100)
			return float64(daysInMonth(year, month)) * minutesPerDay
		default: // YYYY
			return float64(daysInYear(n)) * minutesPerDay
		}
	}

	name := key.String()
	if weekday, ok := aggregate.DayIndex(name); ok {
		return float64(weekdayCount(u.start, u.end, weekday)) * minutesPerDay
	}
	if month, ok := aggregate.MonthIndex(name); ok {
		return float64(monthDayCount(u.start, u.end, month)) * minutesPerDay
	}
	return u.end.Sub(u.start).Minutes()
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	return time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC).YearDay()
}

func weekdayCount(start, end time.Time, weekday time.Weekday) int {
	count := 0
	for d := startOfDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == weekday {
			count++
		}
	}
	return count
}

func monthDayCount(start, end time.Time, month time.Month) int {
	count := 0
	for d := startOfDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Month() == month {
			count++
		}
	}
	return count
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
