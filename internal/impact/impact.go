// Package impact computes who depends on a node and how risky changing it is.
package impact

import (
	"fmt"
	"sort"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

// Risk is the policy tier an impact analysis assigns.
type Risk string

const (
	RiskLow       Risk = "low"
	RiskLowMedium Risk = "low-medium"
	RiskMedium    Risk = "medium"
	RiskHigh      Risk = "high"
)

// DirectDependents returns the ids of nodes that depend on id, sorted. When the
// store carries cached adjacency the cache is authoritative; otherwise imports
// edges targeting id are used.
func DirectDependents(g *depgraph.Graph, id string) []string {
	if deps := dependentsIndex(g)[id]; deps != nil {
		return deps
	}
	return []string{}
}

// dependentsIndex maps every node id to its sorted direct dependents.
func dependentsIndex(g *depgraph.Graph) map[string][]string {
	sets := make(map[string]map[string]bool)
	add := func(target, source string) {
		if target == source {
			return
		}
		if sets[target] == nil {
			sets[target] = make(map[string]bool)
		}
		sets[target][source] = true
	}
	if g.HasAdjacencyCache() {
		for _, n := range g.Nodes {
			for _, d := range n.Dependencies {
				add(d, n.ID)
			}
			for _, d := range n.Dependents {
				add(n.ID, d)
			}
		}
	} else {
		for _, e := range g.Edges {
			if e.Type == depgraph.EdgeImports {
				add(e.Target, e.Source)
			}
		}
	}
	index := make(map[string][]string, len(sets))
	for target, set := range sets {
		index[target] = sortedSet(set)
	}
	return index
}

// Dependencies returns the ids id depends on, sorted.
func Dependencies(g *depgraph.Graph, id string) []string {
	seen := make(map[string]bool)
	if n := g.NodeByID(id); n != nil && g.HasAdjacencyCache() {
		for _, d := range n.Dependencies {
			seen[d] = true
		}
	} else {
		for _, e := range g.Edges {
			if e.Source == id && e.Target != id && e.Type == depgraph.EdgeImports {
				seen[e.Target] = true
			}
		}
	}
	delete(seen, id)
	return sortedSet(seen)
}

// TransitiveDependents returns every node that reaches id through dependents,
// excluding id itself. The walk is breadth-first and never revisits a node, so
// cycles terminate.
func TransitiveDependents(g *depgraph.Graph, id string) []string {
	index := dependentsIndex(g)
	visited := map[string]bool{id: true}
	frontier := []string{id}
	out := []string{}
	for len(frontier) > 0 {
		var next []string
		for _, cur := range frontier {
			for _, dep := range index[cur] {
				if visited[dep] {
					continue
				}
				visited[dep] = true
				out = append(out, dep)
				next = append(next, dep)
			}
		}
		frontier = next
	}
	sort.Strings(out)
	return out
}

// ClassifyRisk maps a node's criticality and transitive dependent count to a tier.
//
//	critical, > 5 dependents  high
//	critical                  medium
//	> 10 dependents           medium
//	> 5 dependents            low-medium
//	otherwise                 low
func ClassifyRisk(c depgraph.Criticality, transitive int) Risk {
	switch {
	case c == depgraph.CriticalityCritical && transitive > 5:
		return RiskHigh
	case c == depgraph.CriticalityCritical:
		return RiskMedium
	case transitive > 10:
		return RiskMedium
	case transitive > 5:
		return RiskLowMedium
	default:
		return RiskLow
	}
}

// Report is the result of Analyze.
type Report struct {
	NodeID               string                       `json:"node_id"`
	Criticality          depgraph.Criticality         `json:"criticality"`
	Direct               []string                     `json:"direct"`
	Transitive           []string                     `json:"transitive"`
	TotalImpact          int                          `json:"total_impact"`
	CriticalityBreakdown map[depgraph.Criticality]int `json:"criticality_breakdown"`
	Risk                 Risk                         `json:"risk"`
	Recommendation       string                       `json:"recommendation"`
}

// Analyze builds the full impact report for id.
func Analyze(g *depgraph.Graph, id string) (Report, error) {
	n := g.NodeByID(id)
	if n == nil {
		return Report{}, fmt.Errorf("impact of %q: %w", id, depgraph.ErrNodeNotFound)
	}

	rep := Report{
		NodeID:               id,
		Criticality:          n.Criticality,
		Direct:               DirectDependents(g, id),
		Transitive:           TransitiveDependents(g, id),
		CriticalityBreakdown: make(map[depgraph.Criticality]int),
	}
	rep.TotalImpact = len(rep.Transitive)
	for _, dep := range rep.Transitive {
		c := depgraph.CriticalityMedium
		if dn := g.NodeByID(dep); dn != nil && dn.Criticality.Valid() {
			c = dn.Criticality
		}
		rep.CriticalityBreakdown[c]++
	}
	rep.Risk = ClassifyRisk(n.Criticality, rep.TotalImpact)
	rep.Recommendation = recommendation(rep)
	return rep, nil
}

func recommendation(r Report) string {
	switch r.Risk {
	case RiskHigh:
		return fmt.Sprintf("High risk: %d modules depend on this critical node. Review every dependent and run the full test suite.", r.TotalImpact)
	case RiskMedium:
		if r.Criticality == depgraph.CriticalityCritical {
			return "Medium risk: critical node with few dependents. Review the direct dependents and run their tests."
		}
		return fmt.Sprintf("Medium risk: %d modules depend on this node. Run the tests of the affected modules.", r.TotalImpact)
	case RiskLowMedium:
		return fmt.Sprintf("Low-medium risk: %d dependents. Check the direct dependents.", r.TotalImpact)
	default:
		if r.TotalImpact == 0 {
			return "Low risk: nothing depends on this node."
		}
		return fmt.Sprintf("Low risk: %d dependents.", r.TotalImpact)
	}
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
