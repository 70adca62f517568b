package aggregate

import (
	"time"

	"github.com/respstack/respstats/internal/models"
)

// Canonical calendar key orderings.
var (
	dayAbbrevs   = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	monthAbbrevs = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

func init() {
	Register("None", func(string) (Aggregator, error) { return &None{}, nil })
	Register("HourOfDay", func(string) (Aggregator, error) { return &HourOfDay{}, nil })
	Register("DayOfWeek", func(string) (Aggregator, error) { return &DayOfWeek{}, nil })
	Register("MonthOfYear", func(string) (Aggregator, error) { return &MonthOfYear{}, nil })
	Register("Day", func(string) (Aggregator, error) { return &Day{}, nil })
	Register("Month", func(string) (Aggregator, error) { return &Month{}, nil })
	Register("Year", func(string) (Aggregator, error) { return &Year{}, nil })
	Register("Category", func(param string) (Aggregator, error) {
		return &Category{Attribute: param}, nil
	})
}

// None groups every incident into a single "All" bucket.
type None struct{ filter }

func (*None) Name() string { return "None" }

func (a *None) Keys() []Key { return a.filterKeys([]Key{StringKey("All")}) }

func (a *None) KeysFor(*models.Incident) []Key {
	return a.filterKeys([]Key{StringKey("All")})
}

// HourOfDay groups by the incident hour, keys 0-23.
type HourOfDay struct{ filter }

func (*HourOfDay) Name() string { return "HourOfDay" }

func (a *HourOfDay) Keys() []Key {
	keys := make([]Key, 24)
	for h := 0; h < 24; h++ {
		keys[h] = IntKey(h)
	}
	return a.filterKeys(keys)
}

func (a *HourOfDay) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{IntKey(inc.Time.Hour())})
}

// DayOfWeek groups by 3-letter day abbreviation, Sun..Sat.
type DayOfWeek struct{ filter }

func (*DayOfWeek) Name() string { return "DayOfWeek" }

func (a *DayOfWeek) Keys() []Key {
	keys := make([]Key, len(dayAbbrevs))
	for i, d := range dayAbbrevs {
		keys[i] = StringKey(d)
	}
	return a.filterKeys(keys)
}

func (a *DayOfWeek) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{StringKey(dayAbbrevs[int(inc.Time.Weekday())])})
}

// MonthOfYear groups by 3-letter month abbreviation, Jan..Dec.
type MonthOfYear struct{ filter }

func (*MonthOfYear) Name() string { return "MonthOfYear" }

func (a *MonthOfYear) Keys() []Key {
	keys := make([]Key, len(monthAbbrevs))
	for i, m := range monthAbbrevs {
		keys[i] = StringKey(m)
	}
	return a.filterKeys(keys)
}

func (a *MonthOfYear) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{StringKey(monthAbbrevs[int(inc.Time.Month())-1])})
}

// Day groups by compact YYYYMMDD integer keys, ascending.
type Day struct{ filter }

func (*Day) Name() string { return "Day" }

func (a *Day) Keys() []Key { return nil }

func (a *Day) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{IntKey(CompactDay(inc.Time))})
}

// Month groups by compact YYYYMM integer keys, ascending.
type Month struct{ filter }

func (*Month) Name() string { return "Month" }

func (a *Month) Keys() []Key { return nil }

func (a *Month) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{IntKey(CompactMonth(inc.Time))})
}

// Year groups by YYYY integer keys, ascending.
type Year struct{ filter }

func (*Year) Name() string { return "Year" }

func (a *Year) Keys() []Key { return nil }

func (a *Year) KeysFor(inc *models.Incident) []Key {
	if inc.Time.IsZero() {
		return nil
	}
	return a.filterKeys([]Key{IntKey(inc.Time.Year())})
}

// Category groups by the exact value of a named incident attribute.
// Discovered keys keep insertion order.
type Category struct {
	filter
	Attribute string
}

func (*Category) Name() string { return "Category" }

func (a *Category) Keys() []Key { return nil }

func (a *Category) KeysFor(inc *models.Incident) []Key {
	value, ok := inc.Data[a.Attribute]
	if !ok {
		return nil
	}
	var key Key
	if n, numeric := value.AsFloat(); numeric && value.Kind() == models.KindInt {
		key = IntKey(int(n))
	} else {
		key = StringKey(value.AsString())
	}
	return a.filterKeys([]Key{key})
}

// ValueDelegate groups by a caller-supplied key extraction function which may
// return zero or several keys for one incident (fan-out). Constructed
// directly rather than through the registry because it needs a closure.
type ValueDelegate struct {
	filter
	DimName string
	Fn      func(*models.Incident) []Key
}

func (a *ValueDelegate) Name() string {
	if a.DimName == "" {
		return "ValueDelegate"
	}
	return a.DimName
}

func (a *ValueDelegate) Keys() []Key { return nil }

func (a *ValueDelegate) KeysFor(inc *models.Incident) []Key {
	if a.Fn == nil {
		return nil
	}
	return a.filterKeys(a.Fn(inc))
}

// DayIndex maps a 3-letter day abbreviation to its weekday, Sun=0.
func DayIndex(s string) (time.Weekday, bool) {
	for i, d := range dayAbbrevs {
		if d == s {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// MonthIndex maps a 3-letter month abbreviation to its month.
func MonthIndex(s string) (time.Month, bool) {
	for i, m := range monthAbbrevs {
		if m == s {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// CompactDay renders t as a YYYYMMDD integer.
func CompactDay(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// CompactMonth renders t as a YYYYMM integer.
func CompactMonth(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}
