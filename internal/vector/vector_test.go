package vector

import (
	"context"
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

func TestTokens(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"pkg.sub.mod", []string{"pkg", "sub", "mod"}},
		{"src/pkg/base_types.py", []string{"src", "pkg", "base", "types", "py"}},
		{"HTTPClient parseConfig", []string{"httpclient", "parse", "config"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Tokens(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	a := e.Embed("pkg.store persistence layer")
	b := e.Embed("pkg.store persistence layer")
	if !reflect.DeepEqual(a, b) {
		t.Fatal("embedding is not deterministic")
	}
	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %f, want 1", norm)
	}

	zero := e.Embed("...")
	for _, v := range zero {
		if v != 0 {
			t.Fatalf("embedding of empty text = %v, want zero vector", zero)
		}
	}

	if NewHashEmbedder(0).Dimensions() != DefaultDimensions {
		t.Error("zero dimensions should fall back to the default")
	}
}

func TestPointID(t *testing.T) {
	if PointID("core", "pkg.a") != PointID("core", "pkg.a") {
		t.Error("PointID is not stable")
	}
	if PointID("core", "pkg.a") == PointID("other", "pkg.a") {
		t.Error("PointID should differ across graphs")
	}
}

// memRepo is an in-memory Repository ranking by dot product.
type memRepo struct {
	docs map[string]Document
}

func newMemRepo() *memRepo { return &memRepo{docs: make(map[string]Document)} }

func (m *memRepo) Upsert(_ context.Context, docs []Document) error {
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return nil
}

func (m *memRepo) Search(_ context.Context, vec []float32, topK int) ([]SearchResult, error) {
	var out []SearchResult
	for _, d := range m.docs {
		var score float32
		for i := range vec {
			score += vec[i] * d.Vector[i]
		}
		out = append(out, SearchResult{ID: d.ID, Score: score, Content: d.Content, Metadata: d.Metadata})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *memRepo) DeleteGraph(_ context.Context, graphID string) error {
	for id, d := range m.docs {
		if d.Metadata["graph"] == graphID {
			delete(m.docs, id)
		}
	}
	return nil
}

func (m *memRepo) Close() error { return nil }

func TestNodeIndex(t *testing.T) {
	ctx := context.Background()
	g := depgraph.New("core", "Core", "domain")
	g.UpsertNode(depgraph.Node{ID: "pkg.store", Path: "pkg/store.py", Description: "Persistence layer", Classes: []string{"Repository"}})
	g.UpsertNode(depgraph.Node{ID: "pkg.cli", Path: "pkg/cli.py", Description: "Command line entry point", Functions: []string{"main"}})

	repo := newMemRepo()
	ix := NewNodeIndex(repo, NewHashEmbedder(128), nil)
	if err := ix.AfterCommit(ctx, g); err != nil {
		t.Fatalf("AfterCommit: %v", err)
	}
	if len(repo.docs) != 2 {
		t.Fatalf("indexed %d documents, want 2", len(repo.docs))
	}

	hits, err := ix.Search(ctx, "persistence repository store", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	want := Hit{GraphID: "core", NodeID: "pkg.store", Path: "pkg/store.py"}
	if len(hits) != 1 || hits[0].NodeID != want.NodeID || hits[0].GraphID != want.GraphID || hits[0].Path != want.Path {
		t.Fatalf("hits = %+v, want %+v", hits, want)
	}

	g.RemoveNode("pkg/cli.py")
	if err := ix.IndexGraph(ctx, g); err != nil {
		t.Fatalf("IndexGraph: %v", err)
	}
	if _, ok := repo.docs[PointID("core", "pkg.cli")]; ok {
		t.Error("removed node is still indexed")
	}
}
