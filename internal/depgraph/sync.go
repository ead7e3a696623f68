package depgraph

import (
	"sort"
	"strings"
)

// ResolveTarget maps a canonical import id to an existing node id. An exact match
// wins; otherwise trailing segments are dropped until a node matches, so
// "pkg.mod.Symbol" lands on "pkg.mod". It returns false when nothing matches.
func (g *Graph) ResolveTarget(importID string) (string, bool) {
	ids := g.idSet()
	return resolveIn(ids, importID)
}

func resolveIn(ids map[string]bool, importID string) (string, bool) {
	candidate := importID
	for candidate != "" {
		if ids[candidate] {
			return candidate, true
		}
		i := strings.LastIndex(candidate, ".")
		if i < 0 {
			break
		}
		candidate = candidate[:i]
	}
	return "", false
}

func (g *Graph) idSet() map[string]bool {
	ids := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		ids[n.ID] = true
	}
	return ids
}

// SyncEdges reconciles the outgoing imports edges of sourceID with imports.
// Edges to targets that are still imported keep their id; stale edges are
// removed and new targets get freshly minted ids. Imports that resolve to no
// node, or back to sourceID itself, produce no edge but are kept on the node.
// Re-running with the same imports is a no-op.
func SyncEdges(g *Graph, sourceID string, imports []string) SyncResult {
	ids := g.idSet()
	if n := g.NodeByID(sourceID); n != nil {
		n.Imports = nil
		if len(imports) > 0 {
			n.Imports = uniqueSorted(imports)
		}
	}

	resolved := make(map[string]bool)
	var order []string
	for _, imp := range imports {
		target, ok := resolveIn(ids, imp)
		if !ok || target == sourceID || resolved[target] {
			continue
		}
		resolved[target] = true
		order = append(order, target)
	}

	current := make(map[string]bool)
	var result SyncResult
	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source == sourceID && e.Type == EdgeImports {
			if !resolved[e.Target] || current[e.Target] {
				// stale target, or a duplicate of one already kept
				result.Removed++
				continue
			}
			current[e.Target] = true
		}
		kept = append(kept, e)
	}
	g.Edges = kept

	for _, target := range order {
		if !current[target] {
			g.AddEdge(sourceID, target, EdgeImports)
			result.Added++
		}
	}
	g.Stamp()
	return result
}

// ResyncImporters re-synchronizes every node outside skip whose recorded
// imports now resolve to one of created. Importers analyzed before their
// target existed, or whose target was deleted and recreated, get their edge
// back this way.
func ResyncImporters(g *Graph, created, skip map[string]bool) SyncResult {
	var total SyncResult
	if len(created) == 0 {
		return total
	}
	ids := g.idSet()
	var sources []string
	for _, n := range g.Nodes {
		if skip[n.ID] {
			continue
		}
		for _, imp := range n.Imports {
			if target, ok := resolveIn(ids, imp); ok && created[target] && target != n.ID {
				sources = append(sources, n.ID)
				break
			}
		}
	}
	for _, id := range sources {
		imports := append([]string(nil), g.NodeByID(id).Imports...)
		res := SyncEdges(g, id, imports)
		total.Added += res.Added
		total.Removed += res.Removed
	}
	return total
}

// HasAdjacencyCache reports whether any node carries cached dependency lists.
func (g *Graph) HasAdjacencyCache() bool {
	for _, n := range g.Nodes {
		if n.Dependencies != nil || n.Dependents != nil {
			return true
		}
	}
	return false
}

// RefreshAdjacency recomputes every node's cached dependencies and dependents
// from the imports edges.
func RefreshAdjacency(g *Graph) {
	deps := make(map[string][]string)
	rdeps := make(map[string][]string)
	ids := g.idSet()
	for _, e := range g.Edges {
		if e.Type != EdgeImports || !ids[e.Source] || !ids[e.Target] {
			continue
		}
		deps[e.Source] = append(deps[e.Source], e.Target)
		rdeps[e.Target] = append(rdeps[e.Target], e.Source)
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		n.Dependencies = uniqueSorted(deps[n.ID])
		n.Dependents = uniqueSorted(rdeps[n.ID])
	}
}

func uniqueSorted(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
