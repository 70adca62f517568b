// Package aggregate partitions incident collections along named dimensions
// and composes dimensions into pivot trees. Dimensions are registered in a
// name-to-factory table at process start; unknown names are caller errors.
package aggregate

import (
	"fmt"
	"sort"
	"sync"

	"github.com/respstack/respstats/internal/models"
)

// Aggregator is a named partition dimension.
type Aggregator interface {
	Name() string
	// Keys returns the dimension's canonical key ordering, or nil when keys
	// are discovered from the data in insertion order.
	Keys() []Key
	// KeysFor resolves the categories an incident belongs to. Most
	// dimensions return exactly one key; ValueDelegate may fan out to
	// several or none.
	KeysFor(inc *models.Incident) []Key
	// SetFilter installs a category whitelist. Non-matching members are
	// dropped, not duplicated. An empty filter admits everything.
	SetFilter(keys []Key)
}

// filter is the shared whitelist implementation embedded by dimensions.
type filter struct {
	allow map[Key]struct{}
}

func (f *filter) SetFilter(keys []Key) {
	if len(keys) == 0 {
		f.allow = nil
		return
	}
	f.allow = make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		f.allow[k] = struct{}{}
	}
}

func (f *filter) admits(k Key) bool {
	if f.allow == nil {
		return true
	}
	_, ok := f.allow[k]
	return ok
}

func (f *filter) filterKeys(keys []Key) []Key {
	if f.allow == nil {
		return keys
	}
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if f.admits(k) {
			out = append(out, k)
		}
	}
	return out
}

// Group is one ordered partition of an aggregation.
type Group struct {
	Key     Key
	Members []*models.Incident
}

// Aggregate partitions incidents by the dimension. With no whitelist the
// groups of a single-key dimension partition the input exactly.
func Aggregate(agg Aggregator, incidents []*models.Incident) map[Key][]*models.Incident {
	groups := make(map[Key][]*models.Incident)
	for _, k := range agg.Keys() {
		groups[k] = nil
	}
	for _, inc := range incidents {
		for _, k := range agg.KeysFor(inc) {
			groups[k] = append(groups[k], inc)
		}
	}
	return groups
}

// Groups partitions incidents and returns the groups in the dimension's key
// order: canonical order when the dimension declares one, ascending numeric
// order for numeric discovered keys, insertion order otherwise. Canonical
// keys appear even when empty.
func Groups(agg Aggregator, incidents []*models.Incident) []Group {
	canonical := agg.Keys()
	members := make(map[Key][]*models.Incident)
	var discovered []Key
	seen := make(map[Key]struct{}, len(canonical))
	for _, k := range canonical {
		seen[k] = struct{}{}
	}

	for _, inc := range incidents {
		for _, k := range agg.KeysFor(inc) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				discovered = append(discovered, k)
			}
			members[k] = append(members[k], inc)
		}
	}

	if canonical == nil && allNumeric(discovered) {
		sort.Slice(discovered, func(i, j int) bool {
			a, _ := discovered[i].Int()
			b, _ := discovered[j].Int()
			return a < b
		})
	}

	ordered := append(append([]Key(nil), canonical...), discovered...)
	groups := make([]Group, 0, len(ordered))
	for _, k := range ordered {
		groups = append(groups, Group{Key: k, Members: members[k]})
	}
	return groups
}

func allNumeric(keys []Key) bool {
	for _, k := range keys {
		if !k.IsNumeric() {
			return false
		}
	}
	return true
}

// Factory builds a configured aggregator. The param carries the attribute
// name for Category; other dimensions ignore it.
type Factory func(param string) (Aggregator, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a dimension factory to the registry. Later registrations of
// the same name win, which lets embedders replace built-ins.
func Register(name string, f Factory) {
	registryMu.Lock()
	registry[name] = f
	registryMu.Unlock()
}

// New builds the named dimension. Unknown names are an error, not a panic.
func New(name, param string) (Aggregator, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown aggregation dimension %q", name)
	}
	return f(param)
}

// Names lists registered dimensions in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
