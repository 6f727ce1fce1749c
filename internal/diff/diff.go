// Package diff computes structural differences between two workflow graphs.
package diff

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/flexinfer/mentatlab/services/workbench-go/pkg/types"
)

// Status classifies a node or edge.
type Status string

const (
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
	StatusModified  Status = "modified"
	StatusUnchanged Status = "unchanged"
)

// PropertyChange is a single data key whose value differs between versions.
// Old is nil when the key was added, New is nil when it was removed.
type PropertyChange struct {
	Key string `json:"key"`
	Old any    `json:"old"`
	New any    `json:"new"`
}

// NodeDiff is the classification of one node id.
type NodeDiff struct {
	ID          string           `json:"id"`
	Status      Status           `json:"status"`
	Old         *types.Node      `json:"old,omitempty"`
	New         *types.Node      `json:"new,omitempty"`
	TypeChanged bool             `json:"type_changed,omitempty"`
	Changes     []PropertyChange `json:"changes,omitempty"`
}

// EdgeDiff is the classification of one edge key.
type EdgeDiff struct {
	ID     string      `json:"id"`
	Status Status      `json:"status"`
	Old    *types.Edge `json:"old,omitempty"`
	New    *types.Edge `json:"new,omitempty"`
}

// Summary counts nodes and edges per status, combined.
type Summary struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// Total returns the number of classified ids.
func (s Summary) Total() int {
	return s.Added + s.Removed + s.Modified + s.Unchanged
}

func (s *Summary) count(st Status) {
	switch st {
	case StatusAdded:
		s.Added++
	case StatusRemoved:
		s.Removed++
	case StatusModified:
		s.Modified++
	case StatusUnchanged:
		s.Unchanged++
	}
}

// Result is the diff of two graphs. Nodes and Edges are sorted by id.
type Result struct {
	Nodes   []NodeDiff `json:"nodes"`
	Edges   []EdgeDiff `json:"edges"`
	Summary Summary    `json:"summary"`
}

// NodesWithStatus returns the node diffs in the given bucket.
func (r *Result) NodesWithStatus(st Status) []NodeDiff {
	var out []NodeDiff
	for _, n := range r.Nodes {
		if n.Status == st {
			out = append(out, n)
		}
	}
	return out
}

// EdgesWithStatus returns the edge diffs in the given bucket.
func (r *Result) EdgesWithStatus(st Status) []EdgeDiff {
	var out []EdgeDiff
	for _, e := range r.Edges {
		if e.Status == st {
			out = append(out, e)
		}
	}
	return out
}

// HasChanges reports whether anything was added, removed or modified.
func (r *Result) HasChanges() bool {
	return r.Summary.Added+r.Summary.Removed+r.Summary.Modified > 0
}

// nil and empty maps or slices compare equal.
var equalOpts = []cmp.Option{cmpopts.EquateEmpty()}

// Compute diffs from against to. A nil graph is treated as empty. When an id
// appears more than once in a graph the first occurrence is used.
func Compute(from, to *types.Graph) *Result {
	if from == nil {
		from = &types.Graph{}
	}
	if to == nil {
		to = &types.Graph{}
	}

	res := &Result{Nodes: []NodeDiff{}, Edges: []EdgeDiff{}}

	oldNodes, oldNodeIDs := indexNodes(from.Nodes)
	newNodes, newNodeIDs := indexNodes(to.Nodes)
	for _, id := range union(oldNodeIDs, newNodeIDs) {
		d := diffNode(id, oldNodes[id], newNodes[id])
		res.Summary.count(d.Status)
		res.Nodes = append(res.Nodes, d)
	}

	oldEdges, oldEdgeKeys := indexEdges(from.Edges)
	newEdges, newEdgeKeys := indexEdges(to.Edges)
	for _, key := range union(oldEdgeKeys, newEdgeKeys) {
		d := diffEdge(key, oldEdges[key], newEdges[key])
		res.Summary.count(d.Status)
		res.Edges = append(res.Edges, d)
	}

	return res
}

func diffNode(id string, o, n *types.Node) NodeDiff {
	d := NodeDiff{ID: id, Old: o, New: n}
	switch {
	case o == nil:
		d.Status = StatusAdded
	case n == nil:
		d.Status = StatusRemoved
	default:
		d.TypeChanged = o.ResolvedType() != n.ResolvedType()
		d.Changes = propertyChanges(o.Data, n.Data)
		if d.TypeChanged || len(d.Changes) > 0 {
			d.Status = StatusModified
		} else {
			d.Status = StatusUnchanged
		}
	}
	return d
}

func diffEdge(key string, o, n *types.Edge) EdgeDiff {
	d := EdgeDiff{ID: key, Old: o, New: n}
	switch {
	case o == nil:
		d.Status = StatusAdded
	case n == nil:
		d.Status = StatusRemoved
	case o.Source != n.Source || o.SourceHandle != n.SourceHandle ||
		o.Target != n.Target || o.TargetHandle != n.TargetHandle:
		d.Status = StatusModified
	default:
		d.Status = StatusUnchanged
	}
	return d
}

// propertyChanges lists the data keys whose values differ, sorted by key.
func propertyChanges(o, n types.NodeData) []PropertyChange {
	keys := make(map[string]struct{}, len(o)+len(n))
	for k := range o {
		keys[k] = struct{}{}
	}
	for k := range n {
		keys[k] = struct{}{}
	}

	var changes []PropertyChange
	for k := range keys {
		ov, inOld := o[k]
		nv, inNew := n[k]
		if inOld && inNew && cmp.Equal(ov, nv, equalOpts...) {
			continue
		}
		changes = append(changes, PropertyChange{Key: k, Old: ov, New: nv})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	return changes
}

func indexNodes(nodes []types.Node) (map[string]*types.Node, []string) {
	idx := make(map[string]*types.Node, len(nodes))
	ids := make([]string, 0, len(nodes))
	for i := range nodes {
		id := nodes[i].ID
		if _, dup := idx[id]; dup {
			continue
		}
		idx[id] = &nodes[i]
		ids = append(ids, id)
	}
	return idx, ids
}

func indexEdges(edges []types.Edge) (map[string]*types.Edge, []string) {
	idx := make(map[string]*types.Edge, len(edges))
	keys := make([]string, 0, len(edges))
	for i := range edges {
		key := edges[i].Key()
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = &edges[i]
		keys = append(keys, key)
	}
	return idx, keys
}

// union returns the sorted set union of a and b.
func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
