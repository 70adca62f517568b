package reconcile

import "github.com/respstack/respstats/internal/models"

// InternPool deduplicates the strings held in attribute maps. Dispatch feeds
// repeat the same unit names, street types and category labels across
// millions of rows; sharing one backing string per distinct value keeps the
// loaded model small. The pool is owned by the Reconciler and Finalize is
// invoked once per incident after its mutations are complete.
type InternPool struct {
	strings map[string]string
}

// NewInternPool creates an empty pool.
func NewInternPool() *InternPool {
	return &InternPool{strings: make(map[string]string)}
}

// Intern returns the canonical copy of s.
func (p *InternPool) Intern(s string) string {
	if canonical, ok := p.strings[s]; ok {
		return canonical
	}
	p.strings[s] = s
	return s
}

// Size returns the number of distinct strings held.
func (p *InternPool) Size() int { return len(p.strings) }

// Finalize interns the attribute keys and string values of an incident, its
// responses and their timing events.
func (p *InternPool) Finalize(inc *models.Incident) {
	inc.Data = p.internMap(inc.Data)
	inc.Location = p.Intern(inc.Location)
	for _, resp := range inc.Responses {
		resp.Data = p.internMap(resp.Data)
		for _, timing := range resp.Timings {
			timing.Data = p.internMap(timing.Data)
		}
	}
}

func (p *InternPool) internMap(data map[string]models.Value) map[string]models.Value {
	if len(data) == 0 {
		return data
	}
	out := make(map[string]models.Value, len(data))
	for key, value := range data {
		out[p.Intern(key)] = p.internValue(value)
	}
	return out
}

func (p *InternPool) internValue(v models.Value) models.Value {
	switch v.Kind() {
	case models.KindString:
		return models.StringValue(p.Intern(v.AsString()))
	case models.KindRaw:
		return models.RawValue(p.Intern(v.AsString()))
	}
	return v
}
