package depgraph

import (
	"sort"

	dgraph "github.com/dominikbraun/graph"
)

// Stats summarizes one Graph Store.
type Stats struct {
	TotalNodes          int              `json:"total_nodes"`
	TotalEdges          int              `json:"total_edges"`
	NodesByType         map[NodeType]int `json:"nodes_by_type"`
	EdgesByType         map[EdgeType]int `json:"edges_by_type"`
	MaxFanOut           int              `json:"max_fan_out"`
	HotspotNode         string           `json:"hotspot_node,omitempty"`
	MaxFanIn            int              `json:"max_fan_in"`
	MostDependedOn      string           `json:"most_depended_on,omitempty"`
	ConnectedComponents int              `json:"connected_components"`
	Cycles              [][]string       `json:"cycles,omitempty"`
	ParseErrors         int              `json:"parse_errors"`
}

// ComputeStats derives node and edge metrics for g.
func ComputeStats(g *Graph) Stats {
	s := Stats{
		TotalNodes:  len(g.Nodes),
		TotalEdges:  len(g.Edges),
		NodesByType: make(map[NodeType]int),
		EdgesByType: make(map[EdgeType]int),
	}
	for _, n := range g.Nodes {
		s.NodesByType[n.Type]++
		if n.ParseError {
			s.ParseErrors++
		}
	}

	fanOut := make(map[string]int)
	fanIn := make(map[string]int)
	for _, e := range g.Edges {
		s.EdgesByType[e.Type]++
		fanOut[e.Source]++
		fanIn[e.Target]++
	}
	s.HotspotNode, s.MaxFanOut = argmax(fanOut)
	s.MostDependedOn, s.MaxFanIn = argmax(fanIn)

	s.ConnectedComponents = countComponents(g)
	s.Cycles = DetectCycles(g)
	return s
}

// argmax returns the key with the highest count, preferring the smallest key on ties.
func argmax(counts map[string]int) (string, int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestN := "", 0
	for _, k := range keys {
		if counts[k] > bestN {
			best, bestN = k, counts[k]
		}
	}
	return best, bestN
}

// countComponents counts weakly connected components via union-find.
func countComponents(g *Graph) int {
	parent := make(map[string]string)
	var find func(string) string
	find = func(x string) string {
		if parent[x] == "" {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	ids := g.idSet()
	for id := range ids {
		find(id)
	}
	for _, e := range g.Edges {
		if ids[e.Source] && ids[e.Target] {
			fa, fb := find(e.Source), find(e.Target)
			if fa != fb {
				parent[fa] = fb
			}
		}
	}

	roots := make(map[string]bool)
	for id := range ids {
		roots[find(id)] = true
	}
	return len(roots)
}

// DetectCycles returns the import cycles in g as strongly connected components
// with more than one member. Members of each cycle are sorted, and cycles are
// ordered by their first member.
func DetectCycles(g *Graph) [][]string {
	dg := dgraph.New(dgraph.StringHash, dgraph.Directed())
	ids := g.idSet()
	for id := range ids {
		_ = dg.AddVertex(id)
	}
	for _, e := range g.Edges {
		if e.Type != EdgeImports || !ids[e.Source] || !ids[e.Target] || e.Source == e.Target {
			continue
		}
		// duplicate edges return ErrEdgeAlreadyExists, which is fine here
		_ = dg.AddEdge(e.Source, e.Target)
	}

	sccs, err := dgraph.StronglyConnectedComponents(dg)
	if err != nil {
		return nil
	}
	var cycles [][]string
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		members := append([]string(nil), scc...)
		sort.Strings(members)
		cycles = append(cycles, members)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}
