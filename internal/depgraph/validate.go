package depgraph

import (
	"errors"
	"fmt"
	"os"
	"sort"
)

// ViolationKind names one class of integrity violation.
type ViolationKind string

const (
	ViolationDanglingEdge       ViolationKind = "dangling_edge"
	ViolationDuplicateNodeID    ViolationKind = "duplicate_node_id"
	ViolationDuplicateEdgeID    ViolationKind = "duplicate_edge_id"
	ViolationDuplicateEdge      ViolationKind = "duplicate_edge_triple"
	ViolationDuplicatePath      ViolationKind = "duplicate_path"
	ViolationCountDrift         ViolationKind = "count_drift"
	ViolationDanglingDependency ViolationKind = "dangling_dependency"
)

// Fixable reports whether Fix repairs violations of this kind.
func (k ViolationKind) Fixable() bool {
	switch k {
	case ViolationDanglingEdge, ViolationCountDrift, ViolationDanglingDependency:
		return true
	}
	return false
}

// Violation is one detected integrity problem.
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Subject string        `json:"subject"`
	Detail  string        `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s: %s", v.Kind, v.Subject, v.Detail)
}

// Report is the outcome of validating one Graph Store.
type Report struct {
	GraphID    string      `json:"graph_id"`
	Violations []Violation `json:"violations"`
}

// OK reports whether no violations were found.
func (r Report) OK() bool { return len(r.Violations) == 0 }

// Fixable reports whether any violation can be auto-repaired.
func (r Report) Fixable() bool {
	for _, v := range r.Violations {
		if v.Kind.Fixable() {
			return true
		}
	}
	return false
}

// Count returns the number of violations of kind.
func (r Report) Count(kind ViolationKind) int {
	n := 0
	for _, v := range r.Violations {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// Validate checks referential integrity without mutating g.
func Validate(g *Graph) Report {
	rep := Report{GraphID: g.Metadata.GraphID}
	add := func(kind ViolationKind, subject, format string, args ...any) {
		rep.Violations = append(rep.Violations, Violation{Kind: kind, Subject: subject, Detail: fmt.Sprintf(format, args...)})
	}

	ids := make(map[string]int, len(g.Nodes))
	paths := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID]++
		if n.Path != "" {
			paths[n.Path]++
		}
	}
	for _, id := range sortedKeys(ids) {
		if ids[id] > 1 {
			add(ViolationDuplicateNodeID, id, "appears %d times", ids[id])
		}
	}
	for _, p := range sortedKeys(paths) {
		if paths[p] > 1 {
			add(ViolationDuplicatePath, p, "shared by %d nodes", paths[p])
		}
	}

	edgeIDs := make(map[string]int, len(g.Edges))
	triples := make(map[string]int, len(g.Edges))
	for _, e := range g.Edges {
		edgeIDs[e.ID]++
		triples[e.Source+"\x00"+e.Target+"\x00"+string(e.Type)]++
		if ids[e.Source] == 0 {
			add(ViolationDanglingEdge, e.ID, "source %q does not exist", e.Source)
		} else if ids[e.Target] == 0 {
			add(ViolationDanglingEdge, e.ID, "target %q does not exist", e.Target)
		}
	}
	for _, id := range sortedKeys(edgeIDs) {
		if edgeIDs[id] > 1 {
			add(ViolationDuplicateEdgeID, id, "appears %d times", edgeIDs[id])
		}
	}
	for _, e := range g.Edges {
		key := e.Source + "\x00" + e.Target + "\x00" + string(e.Type)
		if triples[key] > 1 {
			add(ViolationDuplicateEdge, e.Source+"->"+e.Target, "%s edge appears %d times", e.Type, triples[key])
			triples[key] = 0
		}
	}

	if g.Metadata.NodeCount != len(g.Nodes) {
		add(ViolationCountDrift, "node_count", "metadata says %d, have %d", g.Metadata.NodeCount, len(g.Nodes))
	}
	if g.Metadata.EdgeCount != len(g.Edges) {
		add(ViolationCountDrift, "edge_count", "metadata says %d, have %d", g.Metadata.EdgeCount, len(g.Edges))
	}

	for _, n := range g.Nodes {
		for _, d := range n.Dependencies {
			if ids[d] == 0 {
				add(ViolationDanglingDependency, n.ID, "dependency %q does not exist", d)
			}
		}
		for _, d := range n.Dependents {
			if ids[d] == 0 {
				add(ViolationDanglingDependency, n.ID, "dependent %q does not exist", d)
			}
		}
	}
	return rep
}

// FixResult counts what Fix repaired.
type FixResult struct {
	EdgesRemoved       int  `json:"edges_removed"`
	DependenciesPruned int  `json:"dependencies_pruned"`
	CountsFixed        bool `json:"counts_fixed"`
}

// Changed reports whether Fix mutated the graph.
func (r FixResult) Changed() bool {
	return r.EdgesRemoved > 0 || r.DependenciesPruned > 0 || r.CountsFixed
}

// Fix repairs the auto-fixable violations: dangling edges are deleted, cached
// adjacency ids that no longer exist are stripped, and counts are recomputed.
// Duplicate ids and paths are left for a human.
func Fix(g *Graph) FixResult {
	var res FixResult
	ids := g.idSet()

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if ids[e.Source] && ids[e.Target] {
			kept = append(kept, e)
			continue
		}
		res.EdgesRemoved++
	}
	g.Edges = kept

	for i := range g.Nodes {
		n := &g.Nodes[i]
		var pruned int
		n.Dependencies, pruned = filterExisting(n.Dependencies, ids)
		res.DependenciesPruned += pruned
		n.Dependents, pruned = filterExisting(n.Dependents, ids)
		res.DependenciesPruned += pruned
	}

	if g.Metadata.NodeCount != len(g.Nodes) || g.Metadata.EdgeCount != len(g.Edges) {
		res.CountsFixed = true
	}
	g.Stamp()
	return res
}

func filterExisting(list []string, ids map[string]bool) ([]string, int) {
	if list == nil {
		return nil, 0
	}
	out := list[:0]
	removed := 0
	for _, id := range list {
		if ids[id] {
			out = append(out, id)
		} else {
			removed++
		}
	}
	return out, removed
}

// StoreReport is the per-file outcome of ValidateAll.
type StoreReport struct {
	Path   string    `json:"path"`
	Report Report    `json:"report"`
	Fixed  FixResult `json:"fixed"`
	Error  string    `json:"error,omitempty"`
}

// ValidateAll validates every store file in paths. With fix set, repairable
// violations are fixed and the store is written back; the returned report then
// lists what remained after fixing. A file that cannot be read or written is
// reported on its own entry; the others are still processed.
func ValidateAll(paths []string, fix bool) []StoreReport {
	out := make([]StoreReport, 0, len(paths))
	for _, p := range paths {
		sr := StoreReport{Path: p}
		g, err := Load(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				sr.Error = "store file does not exist"
			} else {
				sr.Error = err.Error()
			}
			out = append(out, sr)
			continue
		}
		sr.Report = Validate(g)
		if fix && sr.Report.Fixable() {
			sr.Fixed = Fix(g)
			if err := g.Save(p); err != nil {
				sr.Error = err.Error()
			}
			sr.Report = Validate(g)
		}
		out = append(out, sr)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
