package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
)

func sample() *depgraph.Graph {
	g := depgraph.New("core", "Core", "domain")
	g.UpsertNode(depgraph.Node{ID: "pkg.a", Path: "pkg/a.py", Type: depgraph.NodeModule, Criticality: depgraph.CriticalityHigh})
	g.UpsertNode(depgraph.Node{ID: "pkg.b", Path: "pkg/b.py", Type: depgraph.NodeModule, Criticality: depgraph.CriticalityLow})
	g.AddEdge("pkg.b", "pkg.a", depgraph.EdgeImports)
	return g
}

func TestStatements(t *testing.T) {
	stmts := Statements(sample())
	if len(stmts) != 4 {
		t.Fatalf("got %d statements, want 4", len(stmts))
	}
	for _, st := range stmts {
		if st.Params["graph"] != "core" {
			t.Errorf("statement %q not scoped to the graph: %v", st.Cypher, st.Params)
		}
	}
	if ids := stmts[0].Params["ids"]; !reflect.DeepEqual(ids, []string{"pkg.a", "pkg.b"}) {
		t.Errorf("kept ids = %v", ids)
	}
	nodes := stmts[1].Params["nodes"].([]map[string]any)
	if len(nodes) != 2 || nodes[0]["criticality"] != "high" || nodes[1]["path"] != "pkg/b.py" {
		t.Errorf("node rows = %v", nodes)
	}
	edges := stmts[3].Params["edges"].([]map[string]any)
	want := map[string]any{"id": "e1", "source": "pkg.b", "target": "pkg.a", "type": "imports"}
	if len(edges) != 1 || !reflect.DeepEqual(edges[0], want) {
		t.Errorf("edge rows = %v, want [%v]", edges, want)
	}
}

func TestDependentsStatement(t *testing.T) {
	st := DependentsStatement("core", "pkg.a")
	if st.Params["graph"] != "core" || st.Params["id"] != "pkg.a" {
		t.Errorf("params = %v", st.Params)
	}
}

type fakeRepo struct {
	stored []string
	err    error
}

func (f *fakeRepo) StoreGraph(_ context.Context, g *depgraph.Graph) error {
	if f.err != nil {
		return f.err
	}
	f.stored = append(f.stored, g.Metadata.GraphID)
	return nil
}

func (f *fakeRepo) QueryDependents(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeRepo) Close(context.Context) error { return nil }

func TestMirror_AfterCommit(t *testing.T) {
	repo := &fakeRepo{}
	m := NewMirror(repo, nil)
	if err := m.AfterCommit(context.Background(), sample()); err != nil {
		t.Fatalf("AfterCommit: %v", err)
	}
	if !reflect.DeepEqual(repo.stored, []string{"core"}) {
		t.Errorf("stored = %v", repo.stored)
	}

	repo.err = errors.New("connection refused")
	if err := m.AfterCommit(context.Background(), sample()); !errors.Is(err, repo.err) {
		t.Errorf("err = %v, want the repository error", err)
	}
}
