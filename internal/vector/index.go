package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

// pointNamespace scopes the name-based uuids of indexed nodes.
var pointNamespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a0c-1b2d3e4f5a6b")

// PointID returns the stable document id for a node of a graph.
func PointID(graphID, nodeID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(graphID+"/"+nodeID)).String()
}

// NodeText is the text embedded for a node.
func NodeText(n depgraph.Node) string {
	parts := []string{n.ID, n.Path, string(n.Type), n.Description}
	parts = append(parts, n.Classes...)
	parts = append(parts, n.Functions...)
	parts = append(parts, n.Tags...)
	return strings.Join(parts, " ")
}

// Hit is one node returned by Search.
type Hit struct {
	GraphID string  `json:"graph_id"`
	NodeID  string  `json:"node_id"`
	Path    string  `json:"path"`
	Score   float32 `json:"score"`
}

// NodeIndex keeps a Repository in step with committed Graph Stores.
type NodeIndex struct {
	repo     Repository
	embedder *HashEmbedder
	logger   *slog.Logger
}

// NewNodeIndex creates an index writing to repo.
func NewNodeIndex(repo Repository, embedder *HashEmbedder, logger *slog.Logger) *NodeIndex {
	if embedder == nil {
		embedder = NewHashEmbedder(DefaultDimensions)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeIndex{repo: repo, embedder: embedder, logger: logger}
}

// IndexGraph replaces the documents of g with one document per node.
func (ix *NodeIndex) IndexGraph(ctx context.Context, g *depgraph.Graph) error {
	graphID := g.Metadata.GraphID
	if err := ix.repo.DeleteGraph(ctx, graphID); err != nil {
		return fmt.Errorf("clear index for %s: %w", graphID, err)
	}
	if len(g.Nodes) == 0 {
		return nil
	}

	docs := make([]Document, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		text := NodeText(n)
		docs = append(docs, Document{
			ID:      PointID(graphID, n.ID),
			Content: text,
			Vector:  ix.embedder.Embed(text),
			Metadata: map[string]string{
				"graph":   graphID,
				"node_id": n.ID,
				"path":    n.Path,
			},
		})
	}
	if err := ix.repo.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("index %s: %w", graphID, err)
	}
	ix.logger.Debug("graph indexed", "graph", graphID, "documents", len(docs))
	return nil
}

// AfterCommit re-indexes a store after the pipeline commits it.
func (ix *NodeIndex) AfterCommit(ctx context.Context, g *depgraph.Graph) error {
	return ix.IndexGraph(ctx, g)
}

// Search returns up to k nodes most similar to text.
func (ix *NodeIndex) Search(ctx context.Context, text string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}
	results, err := ix.repo.Search(ctx, ix.embedder.Embed(text), k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			GraphID: r.Metadata["graph"],
			NodeID:  r.Metadata["node_id"],
			Path:    r.Metadata["path"],
			Score:   r.Score,
		})
	}
	return hits, nil
}
