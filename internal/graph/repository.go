// Package graph mirrors committed Graph Stores into a graph database so they
// can be explored with Cypher. The JSON stores stay the source of truth.
package graph

import (
	"context"
	"log/slog"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

// Repository stores mirrored graphs.
type Repository interface {
	// StoreGraph replaces the mirrored copy of g.
	StoreGraph(ctx context.Context, g *depgraph.Graph) error
	// QueryDependents returns the ids of nodes in graphID that import nodeID.
	QueryDependents(ctx context.Context, graphID, nodeID string) ([]string, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// Mirror pushes every committed store to a Repository.
type Mirror struct {
	repo   Repository
	logger *slog.Logger
}

// NewMirror creates a Mirror over repo.
func NewMirror(repo Repository, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{repo: repo, logger: logger}
}

// AfterCommit mirrors g.
func (m *Mirror) AfterCommit(ctx context.Context, g *depgraph.Graph) error {
	if err := m.repo.StoreGraph(ctx, g); err != nil {
		return err
	}
	m.logger.Debug("graph mirrored", "graph", g.Metadata.GraphID, "nodes", len(g.Nodes), "edges", len(g.Edges))
	return nil
}

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

const (
	cypherDropStaleNodes = "MATCH (n:Node {graph: $graph}) WHERE NOT n.id IN $ids DETACH DELETE n"
	cypherUpsertNodes    = "UNWIND $nodes AS row " +
		"MERGE (n:Node {graph: $graph, id: row.id}) " +
		"SET n.path = row.path, n.type = row.type, n.category = row.category, " +
		"n.criticality = row.criticality, n.description = row.description"
	cypherDropEdges   = "MATCH (:Node {graph: $graph})-[r:DEPENDS_ON]->(:Node {graph: $graph}) DELETE r"
	cypherCreateEdges = "UNWIND $edges AS row " +
		"MATCH (a:Node {graph: $graph, id: row.source}), (b:Node {graph: $graph, id: row.target}) " +
		"CREATE (a)-[:DEPENDS_ON {id: row.id, type: row.type}]->(b)"
	cypherDependents = "MATCH (d:Node {graph: $graph})-[:DEPENDS_ON {type: 'imports'}]->(:Node {graph: $graph, id: $id}) " +
		"RETURN DISTINCT d.id AS id ORDER BY id"
)

// Statements builds the statements that replace the mirror of g. They are
// meant to run in one transaction.
func Statements(g *depgraph.Graph) []Statement {
	graphID := g.Metadata.GraphID
	ids := make([]string, 0, len(g.Nodes))
	nodes := make([]map[string]any, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
		nodes = append(nodes, map[string]any{
			"id":          n.ID,
			"path":        n.Path,
			"type":        string(n.Type),
			"category":    string(n.Category),
			"criticality": string(n.Criticality),
			"description": n.Description,
		})
	}
	edges := make([]map[string]any, 0, len(g.Edges))
	for _, e := range g.Edges {
		edges = append(edges, map[string]any{
			"id":     e.ID,
			"source": e.Source,
			"target": e.Target,
			"type":   string(e.Type),
		})
	}

	return []Statement{
		{Cypher: cypherDropStaleNodes, Params: map[string]any{"graph": graphID, "ids": ids}},
		{Cypher: cypherUpsertNodes, Params: map[string]any{"graph": graphID, "nodes": nodes}},
		{Cypher: cypherDropEdges, Params: map[string]any{"graph": graphID}},
		{Cypher: cypherCreateEdges, Params: map[string]any{"graph": graphID, "edges": edges}},
	}
}

// DependentsStatement builds the query behind QueryDependents.
func DependentsStatement(graphID, nodeID string) Statement {
	return Statement{Cypher: cypherDependents, Params: map[string]any{"graph": graphID, "id": nodeID}}
}
