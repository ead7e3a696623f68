// Package vector indexes graph nodes for similarity search. Nodes are
// embedded with a local feature-hashing embedder, so no model service is
// needed and the same text always lands on the same vector.
package vector

import "context"

// Document is one embedded node.
type Document struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// Repository provides vector storage and similarity search.
type Repository interface {
	// Upsert inserts or updates documents.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k most similar documents.
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	// DeleteGraph removes every document indexed for graphID.
	DeleteGraph(ctx context.Context, graphID string) error
	// Close releases resources.
	Close() error
}
