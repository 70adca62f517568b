package aggregate

import (
	"fmt"

	"github.com/respstack/respstats/internal/models"
)

// PivotNode is one level of a pivot tree. Interior nodes carry ordered
// children keyed by category; leaves carry the incidents satisfying every
// ancestor category membership.
type PivotNode struct {
	Dimension string
	Children  []PivotChild
	Incidents []*models.Incident
}

// PivotChild pairs a category key with its subtree.
type PivotChild struct {
	Key  Key
	Node *PivotNode
}

// IsLeaf reports whether the node holds incidents rather than children.
func (n *PivotNode) IsLeaf() bool { return n.Dimension == "" }

// Child returns the subtree for the key, or nil.
func (n *PivotNode) Child(key Key) *PivotNode {
	for _, c := range n.Children {
		if c.Key == key {
			return c.Node
		}
	}
	return nil
}

// GetAggregatedData composes the dimensions into a pivot tree. Each incident
// is first annotated with one resolved key per dimension (fan-out dimensions
// contribute their first key); duplicate dimension names get a numeric suffix
// so annotations stay unique. Tree depth equals the number of dimensions and
// leaves hold the incidents matching all ancestor keys. Incidents a dimension
// cannot key (no time, missing attribute, filtered out) are dropped from that
// dimension's subtree, mirroring single-dimension whitelist semantics.
func GetAggregatedData(dims []Aggregator, incidents []*models.Incident) *PivotNode {
	if len(dims) == 0 {
		return &PivotNode{Incidents: incidents}
	}

	names := uniqueDimensionNames(dims)

	annotations := make(map[*models.Incident]map[string]Key, len(incidents))
	for _, inc := range incidents {
		keys := make(map[string]Key, len(dims))
		ok := true
		for i, dim := range dims {
			resolved := dim.KeysFor(inc)
			if len(resolved) == 0 {
				ok = false
				break
			}
			keys[names[i]] = resolved[0]
		}
		if ok {
			annotations[inc] = keys
		}
	}

	kept := make([]*models.Incident, 0, len(incidents))
	for _, inc := range incidents {
		if _, ok := annotations[inc]; ok {
			kept = append(kept, inc)
		}
	}

	return buildPivot(dims, names, 0, kept, annotations)
}

func buildPivot(dims []Aggregator, names []string, depth int, incidents []*models.Incident, annotations map[*models.Incident]map[string]Key) *PivotNode {
	if depth == len(dims) {
		return &PivotNode{Incidents: incidents}
	}

	dim := dims[depth]
	name := names[depth]
	node := &PivotNode{Dimension: name}

	for _, group := range annotatedGroups(dim, name, incidents, annotations) {
		child := buildPivot(dims, names, depth+1, group.Members, annotations)
		node.Children = append(node.Children, PivotChild{Key: group.Key, Node: child})
	}
	return node
}

// annotatedGroups partitions using the precomputed annotations so the tree's
// grouping agrees with the per-incident resolved keys, ordered by the
// dimension's own key ordering rule.
func annotatedGroups(dim Aggregator, name string, incidents []*models.Incident, annotations map[*models.Incident]map[string]Key) []Group {
	keyed := &ValueDelegate{
		DimName: name,
		Fn: func(inc *models.Incident) []Key {
			if keys, ok := annotations[inc]; ok {
				return []Key{keys[name]}
			}
			return nil
		},
	}
	canonical := dim.Keys()
	if canonical == nil {
		groups := Groups(keyed, incidents)
		return dropEmpty(groups)
	}
	// Respect the dimension's canonical order but skip empty categories so
	// the tree doesn't branch into vacant subtrees.
	members := make(map[Key][]*models.Incident)
	for _, inc := range incidents {
		for _, k := range keyed.KeysFor(inc) {
			members[k] = append(members[k], inc)
		}
	}
	groups := make([]Group, 0, len(canonical))
	for _, k := range canonical {
		if m := members[k]; len(m) > 0 {
			groups = append(groups, Group{Key: k, Members: m})
		}
	}
	return groups
}

func dropEmpty(groups []Group) []Group {
	out := groups[:0]
	for _, g := range groups {
		if len(g.Members) > 0 {
			out = append(out, g)
		}
	}
	return out
}

func uniqueDimensionNames(dims []Aggregator) []string {
	names := make([]string, len(dims))
	counts := make(map[string]int, len(dims))
	for i, dim := range dims {
		name := dim.Name()
		counts[name]++
		if counts[name] > 1 {
			name = fmt.Sprintf("%s#%d", name, counts[name])
		}
		names[i] = name
	}
	return names
}
