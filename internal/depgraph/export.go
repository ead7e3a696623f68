package depgraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExportDOT generates a Graphviz DOT representation of the graph.
func ExportDOT(g *Graph) string {
	var b strings.Builder
	b.WriteString("digraph dependencies {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\" fontsize=10];\n\n")

	groups, order := groupByCategory(g)
	for _, cat := range order {
		b.WriteString(fmt.Sprintf("  subgraph cluster_%s {\n", sanitizeID(string(cat))))
		b.WriteString(fmt.Sprintf("    label=\"%s\";\n", cat))
		b.WriteString("    style=dashed;\n")
		b.WriteString("    color=\"#58a6ff\";\n")
		for _, n := range groups[cat] {
			b.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\" shape=%s style=filled fillcolor=\"%s\"];\n",
				n.ID, shortName(n.ID), nodeShape(n.Type), criticalityColor(n.Criticality)))
		}
		b.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		b.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [style=%s color=\"%s\"];\n",
			e.Source, e.Target, edgeStyle(e.Type), edgeColor(e.Type)))
	}

	b.WriteString("}\n")
	return b.String()
}

// ExportMermaid generates a Mermaid diagram of the graph.
func ExportMermaid(g *Graph) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	groups, order := groupByCategory(g)
	for _, cat := range order {
		b.WriteString(fmt.Sprintf("  subgraph %s\n", sanitizeID(string(cat))))
		for _, n := range groups[cat] {
			b.WriteString(fmt.Sprintf("    %s%s\n", sanitizeID(n.ID), mermaidNodeShape(n)))
		}
		b.WriteString("  end\n")
	}

	for _, e := range g.Edges {
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			sanitizeID(e.Source), mermaidArrow(e.Type), sanitizeID(e.Target)))
	}

	return b.String()
}

// ExportJSON serializes the graph to JSON.
func ExportJSON(g *Graph) ([]byte, error) {
	return json.MarshalIndent(g, "", "  ")
}

// FormatStats returns a human-readable summary of graph statistics.
func FormatStats(graphID string, s Stats) string {
	var b strings.Builder
	title := "Dependency Graph Statistics"
	if graphID != "" {
		title += " (" + graphID + ")"
	}
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	b.WriteString(fmt.Sprintf("Nodes:       %d total\n", s.TotalNodes))
	for _, t := range sortedNodeTypes(s.NodesByType) {
		b.WriteString(fmt.Sprintf("  %-14s %d\n", string(t)+":", s.NodesByType[t]))
	}
	b.WriteString(fmt.Sprintf("Edges:       %d total\n", s.TotalEdges))
	b.WriteString(fmt.Sprintf("Max Fan-Out: %d (%s)\n", s.MaxFanOut, s.HotspotNode))
	b.WriteString(fmt.Sprintf("Max Fan-In:  %d (%s)\n", s.MaxFanIn, s.MostDependedOn))
	b.WriteString(fmt.Sprintf("Components:  %d\n", s.ConnectedComponents))
	if s.ParseErrors > 0 {
		b.WriteString(fmt.Sprintf("Parse errors: %d\n", s.ParseErrors))
	}

	if len(s.Cycles) > 0 {
		b.WriteString(fmt.Sprintf("\nImport Cycles: %d\n", len(s.Cycles)))
		for i, cycle := range s.Cycles {
			b.WriteString(fmt.Sprintf("  %d: %s\n", i+1, strings.Join(cycle, " <-> ")))
		}
	}

	return b.String()
}

func groupByCategory(g *Graph) (map[Category][]Node, []Category) {
	groups := make(map[Category][]Node)
	for _, n := range g.Nodes {
		cat := n.Category
		if cat == "" {
			cat = CategoryOther
		}
		groups[cat] = append(groups[cat], n)
	}
	order := make([]Category, 0, len(groups))
	for cat := range groups {
		order = append(order, cat)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	return groups, order
}

func sortedNodeTypes(m map[NodeType]int) []NodeType {
	out := make([]NodeType, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func shortName(id string) string {
	if i := strings.LastIndex(id, "."); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, s)
}

func nodeShape(t NodeType) string {
	switch t {
	case NodePackage:
		return "box3d"
	case NodeModule, NodeScript:
		return "box"
	case NodeTest:
		return "ellipse"
	case NodeWorkflow:
		return "diamond"
	case NodeDocumentation, NodeConfig:
		return "note"
	default:
		return "box"
	}
}

func criticalityColor(c Criticality) string {
	switch c {
	case CriticalityCritical:
		return "#f85149"
	case CriticalityHigh:
		return "#d29922"
	case CriticalityMedium:
		return "#1f6feb"
	case CriticalityLow:
		return "#238636"
	default:
		return "#30363d"
	}
}

func edgeStyle(t EdgeType) string {
	switch t {
	case EdgeImports:
		return "solid"
	case EdgeUses:
		return "dotted"
	case EdgeImplements:
		return "bold"
	case EdgeTests, EdgeDocuments:
		return "dashed"
	default:
		return "solid"
	}
}

func edgeColor(t EdgeType) string {
	switch t {
	case EdgeImports:
		return "#3fb950"
	case EdgeUses:
		return "#8957e5"
	case EdgeImplements:
		return "#f85149"
	case EdgeTests:
		return "#d29922"
	case EdgeDocuments:
		return "#8b949e"
	default:
		return "#c9d1d9"
	}
}

func mermaidNodeShape(n Node) string {
	name := shortName(n.ID)
	switch n.Type {
	case NodePackage:
		return fmt.Sprintf("[[\"%s\"]]", name)
	case NodeTest:
		return fmt.Sprintf("([\"%s\"])", name)
	case NodeWorkflow:
		return fmt.Sprintf("{\"%s\"}", name)
	default:
		return fmt.Sprintf("[\"%s\"]", name)
	}
}

func mermaidArrow(t EdgeType) string {
	switch t {
	case EdgeImports:
		return "-->"
	case EdgeUses:
		return "-.->"
	case EdgeImplements:
		return "==>"
	case EdgeTests, EdgeDocuments:
		return "-..->"
	default:
		return "-->"
	}
}
