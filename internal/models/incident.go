package models

import "time"

// TimingEvent is a named timestamp or duration observation on a response.
// Value is a minute offset from the parent incident's base time; Timestamp is
// the corresponding absolute time when known. RawData preserves whatever the
// source supplied before derivation.
type TimingEvent struct {
	Name      string
	Value     float64
	HasValue  bool
	Timestamp time.Time
	RawData   Value
	Data      map[string]Value
}

// SetMinutes records the minute-offset value.
func (t *TimingEvent) SetMinutes(minutes float64) {
	t.Value = minutes
	t.HasValue = true
}

// HasTimestamp reports whether an absolute time has been resolved.
func (t *TimingEvent) HasTimestamp() bool { return !t.Timestamp.IsZero() }

// Response captures one unit's involvement in an incident. It refers to its
// parent by identity rather than pointer so the incident set remains the sole
// owner of both records.
type Response struct {
	ID         string
	IncidentID string
	Data       map[string]Value
	Timings    []*TimingEvent
}

// Timing returns the named timing event or nil.
func (r *Response) Timing(name string) *TimingEvent {
	for _, t := range r.Timings {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// EnsureTiming returns the named timing event, creating it if absent.
func (r *Response) EnsureTiming(name string) *TimingEvent {
	if t := r.Timing(name); t != nil {
		return t
	}
	t := &TimingEvent{Name: name, Data: make(map[string]Value)}
	r.Timings = append(r.Timings, t)
	return t
}

// Incident is one emergency-response event. Typed fields cover the columns
// every consumer needs; everything else lands in the open Data map.
type Incident struct {
	ID        string
	Time      time.Time
	Location  string
	Latitude  float64
	Longitude float64
	Data      map[string]Value
	Responses []*Response

	latSet bool
	lonSet bool
}

// SetLatitude records the latitude once. Returns false when a different
// value was already set.
func (i *Incident) SetLatitude(v float64) bool {
	if i.latSet {
		return i.Latitude == v
	}
	i.Latitude = v
	i.latSet = true
	return true
}

// SetLongitude records the longitude once. Returns false when a different
// value was already set.
func (i *Incident) SetLongitude(v float64) bool {
	if i.lonSet {
		return i.Longitude == v
	}
	i.Longitude = v
	i.lonSet = true
	return true
}

// HasCoords reports whether both coordinates have been assigned.
func (i *Incident) HasCoords() bool { return i.latSet && i.lonSet }

// Response returns the child response with the given identity, or nil.
// Response identity is unique within its parent incident, not globally.
func (i *Incident) Response(id string) *Response {
	for _, r := range i.Responses {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// EnsureResponse returns the identified response, creating it if absent.
func (i *Incident) EnsureResponse(id string) *Response {
	if r := i.Response(id); r != nil {
		return r
	}
	r := &Response{ID: id, IncidentID: i.ID, Data: make(map[string]Value)}
	i.Responses = append(i.Responses, r)
	return r
}

// IncidentSet is the owning arena for incidents. Iteration order is
// first-seen order, which keeps pipeline output deterministic across runs.
type IncidentSet struct {
	order []*Incident
	index map[string]*Incident
}

// NewIncidentSet creates an empty incident arena.
func NewIncidentSet() *IncidentSet {
	return &IncidentSet{index: make(map[string]*Incident)}
}

// GetOrCreate returns the incident with the given identity, creating it on
// first reference. Identity is immutable once created.
func (s *IncidentSet) GetOrCreate(id string) *Incident {
	if inc, ok := s.index[id]; ok {
		return inc
	}
	inc := &Incident{ID: id, Data: make(map[string]Value)}
	s.index[id] = inc
	s.order = append(s.order, inc)
	return inc
}

// Get looks up an incident by identity.
func (s *IncidentSet) Get(id string) (*Incident, bool) {
	inc, ok := s.index[id]
	return inc, ok
}

// All returns the incidents in first-seen order. The slice is shared; callers
// must not reorder it.
func (s *IncidentSet) All() []*Incident { return s.order }

// Len returns the number of incidents.
func (s *IncidentSet) Len() int { return len(s.order) }
