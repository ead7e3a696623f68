package depgraph

import "time"

// SchemaVersion is written to every persisted Graph Store.
const SchemaVersion = "1.0"

// Node represents one indexed source artifact.
type Node struct {
	ID          string      `json:"id"`
	Path        string      `json:"path"`
	Type        NodeType    `json:"type"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	LinesOfCode int         `json:"lines_of_code,omitempty"`
	Exports     []string    `json:"exports,omitempty"`
	Classes     []string    `json:"classes,omitempty"`
	Functions   []string    `json:"functions,omitempty"`
	Criticality Criticality `json:"criticality"`
	Tags        []string    `json:"tags,omitempty"`
	ParseError  bool        `json:"parse_error,omitempty"`
	// Imports are the canonical import ids last synchronized for this node,
	// kept so targets created later can be linked without re-analysis.
	Imports []string `json:"imports,omitempty"`

	// Cached adjacency. Nil means "not cached"; queries then fall back to edges.
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NodeType classifies graph nodes.
type NodeType string

const (
	NodeModule        NodeType = "module"
	NodePackage       NodeType = "package"
	NodeTest          NodeType = "test"
	NodeWorkflow      NodeType = "workflow"
	NodeDocumentation NodeType = "documentation"
	NodeConfig        NodeType = "config"
	NodeScript        NodeType = "script"
)

// Category groups nodes by their role in the repository.
type Category string

const (
	CategorySource  Category = "source"
	CategoryTest    Category = "test"
	CategoryExample Category = "example"
	CategoryCI      Category = "ci"
	CategoryDocs    Category = "docs"
	CategoryConfig  Category = "config"
	CategoryOther   Category = "other"
)

// Criticality is a node's importance tier used for risk scoring.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

// Valid reports whether c is one of the known tiers.
func (c Criticality) Valid() bool {
	switch c {
	case CriticalityLow, CriticalityMedium, CriticalityHigh, CriticalityCritical:
		return true
	}
	return false
}

// Edge represents a directed relationship between two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}

// EdgeType classifies relationships.
type EdgeType string

const (
	EdgeImports    EdgeType = "imports"
	EdgeUses       EdgeType = "uses"
	EdgeImplements EdgeType = "implements"
	EdgeTests      EdgeType = "tests"
	EdgeDocuments  EdgeType = "documents"
)

// Metadata is the summary block of a Graph Store.
// NodeCount and EdgeCount must equal len(Nodes) and len(Edges).
type Metadata struct {
	Version     string    `json:"version"`
	GraphID     string    `json:"graph_id"`
	GraphName   string    `json:"graph_name"`
	GraphType   string    `json:"graph_type"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	GeneratedAt time.Time `json:"generated_at"`
	// NextEdgeID is the next numeric edge id to mint; ids are never reused.
	NextEdgeID int `json:"next_edge_id,omitempty"`
}

// Graph is one Graph Store instance.
type Graph struct {
	Metadata Metadata `json:"metadata"`
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
}

// SyncResult reports how many edges an edge synchronization added and removed.
type SyncResult struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
}

// Changed reports whether the synchronization mutated the graph.
func (r SyncResult) Changed() bool { return r.Added > 0 || r.Removed > 0 }
