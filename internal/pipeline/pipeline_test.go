package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/router"
)

var sampleFiles = map[string]string{
	"pkg/__init__.py":     "",
	"pkg/base.py":         "\"\"\"Base types.\"\"\"\n\nclass Base:\n    pass\n",
	"pkg/sub/__init__.py": "",
	"pkg/sub/mod.py":      "\"\"\"Sub module.\"\"\"\nimport os\nfrom ..base import Base\n\n\ndef run():\n    return Base()\n",
	"README.md":           "# Sample project\n",
}

func sampleList() []string {
	return []string{"README.md", "pkg/__init__.py", "pkg/base.py", "pkg/sub/__init__.py", "pkg/sub/mod.py"}
}

type fixture struct {
	t    *testing.T
	root string
	cfg  *config.Config
	p    *Pipeline
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{t: t, root: root}
	for rel, content := range sampleFiles {
		f.write(rel, content)
	}

	cfg := config.Default()
	cfg.Project.Root = root
	cfg.Project.Namespaces = []string{"pkg"}
	f.cfg = cfg
	f.p = f.open(opts...)
	return f
}

// open builds a pipeline over the fixture's current config and hash cache.
func (f *fixture) open(opts ...Option) *Pipeline {
	f.t.Helper()
	hashes, err := hashstore.Open(f.root, f.cfg.HashCachePath())
	if err != nil {
		f.t.Fatalf("open hash store: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{WithLogger(logger), WithMetrics(observability.NewMetrics())}
	return New(f.cfg, analyzer.New(0, logger), hashes, append(base, opts...)...)
}

func (f *fixture) write(rel, content string) {
	f.t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) remove(rel string) {
	f.t.Helper()
	if err := os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) storePath(id string) string {
	s, ok := f.cfg.Store(id)
	if !ok {
		f.t.Fatalf("no store %s", id)
	}
	return f.cfg.StorePath(s)
}

func (f *fixture) graph(id string) *depgraph.Graph {
	f.t.Helper()
	g, err := depgraph.Load(f.storePath(id))
	if err != nil {
		f.t.Fatalf("load %s: %v", id, err)
	}
	return g
}

func (f *fixture) update(rel string, force bool) UpdateResult {
	f.t.Helper()
	res, err := f.p.UpdateForFile(context.Background(), rel, UpdateOptions{Force: force})
	if err != nil {
		f.t.Fatalf("UpdateForFile(%s): %v", rel, err)
	}
	return res
}

func importsEdge(g *depgraph.Graph, source, target string) (depgraph.Edge, bool) {
	for _, e := range g.OutgoingEdges(source, depgraph.EdgeImports) {
		if e.Target == target {
			return e, true
		}
	}
	return depgraph.Edge{}, false
}

const overview = "project_overview"

func TestUpdateForFile_CreatesNodeAndEdges(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)
	res := f.update("pkg/sub/mod.py", false)

	if len(res.GraphsUpdated) != 1 || res.GraphsUpdated[0] != overview {
		t.Errorf("GraphsUpdated = %v", res.GraphsUpdated)
	}
	if res.EdgesAdded != 1 {
		t.Errorf("EdgesAdded = %d, want 1", res.EdgesAdded)
	}

	g := f.graph(overview)
	n := g.NodeByID("pkg.sub.mod")
	if n == nil {
		t.Fatal("expected node pkg.sub.mod")
	}
	if n.Path != "pkg/sub/mod.py" || n.Type != depgraph.NodeModule || n.Description != "Sub module." {
		t.Errorf("unexpected node %+v", n)
	}
	if len(n.Functions) != 1 || n.Functions[0] != "run" {
		t.Errorf("Functions = %v", n.Functions)
	}
	if _, ok := importsEdge(g, "pkg.sub.mod", "pkg.base"); !ok {
		t.Errorf("expected imports edge pkg.sub.mod -> pkg.base, edges: %+v", g.Edges)
	}
	if g.Metadata.NodeCount != len(g.Nodes) || g.Metadata.EdgeCount != len(g.Edges) {
		t.Errorf("count drift: %+v", g.Metadata)
	}
	if rep := depgraph.Validate(g); !rep.OK() {
		t.Errorf("violations after update: %v", rep.Violations)
	}
}

func TestUpdateForFile_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)
	f.update("pkg/sub/mod.py", false)

	before, err := os.ReadFile(f.storePath(overview))
	if err != nil {
		t.Fatal(err)
	}

	res := f.update("pkg/sub/mod.py", false)
	if !res.Skipped {
		t.Error("expected second update to be skipped")
	}
	if len(res.GraphsUpdated) != 0 || res.EdgesAdded != 0 || res.EdgesRemoved != 0 {
		t.Errorf("expected no mutations, got %+v", res)
	}

	after, err := os.ReadFile(f.storePath(overview))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("store file changed on a skipped update")
	}
}

func TestUpdateForFile_ForceKeepsEdgeIDs(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)
	f.update("pkg/sub/mod.py", false)
	first, _ := importsEdge(f.graph(overview), "pkg.sub.mod", "pkg.base")

	res := f.update("pkg/sub/mod.py", true)
	if res.Skipped {
		t.Fatal("forced update must not be skipped")
	}
	if res.EdgesAdded != 0 || res.EdgesRemoved != 0 {
		t.Errorf("forced update changed edges: +%d -%d", res.EdgesAdded, res.EdgesRemoved)
	}
	second, ok := importsEdge(f.graph(overview), "pkg.sub.mod", "pkg.base")
	if !ok || second.ID != first.ID {
		t.Errorf("edge id changed: %q -> %q", first.ID, second.ID)
	}
}

func TestUpdateForFile_EditRemovesStaleEdge(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)
	f.update("pkg/sub/mod.py", false)

	f.write("pkg/sub/mod.py", "\"\"\"Sub module.\"\"\"\nimport os\n")
	res := f.update("pkg/sub/mod.py", false)
	if res.EdgesRemoved != 1 || res.EdgesAdded != 0 {
		t.Errorf("edges: +%d -%d, want +0 -1", res.EdgesAdded, res.EdgesRemoved)
	}
	if _, ok := importsEdge(f.graph(overview), "pkg.sub.mod", "pkg.base"); ok {
		t.Error("stale edge survived")
	}
}

func TestUpdateForFile_DeletedFile(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)
	f.update("pkg/sub/mod.py", false)

	f.remove("pkg/base.py")
	res := f.update("pkg/base.py", false)
	if !res.Removed {
		t.Error("expected Removed")
	}

	g := f.graph(overview)
	if g.HasNode("pkg.base") {
		t.Error("pkg.base still present")
	}
	for _, e := range g.Edges {
		if e.Source == "pkg.base" || e.Target == "pkg.base" {
			t.Errorf("edge %s still touches removed node", e.ID)
		}
	}
	if f.p.Hashes().Has("pkg/base.py") {
		t.Error("hash entry not forgotten")
	}
}

func TestUpdateForFile_PreservesCriticality(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)

	g := f.graph(overview)
	g.NodeByID("pkg.base").Criticality = depgraph.CriticalityCritical
	g.NodeByID("pkg.base").Tags = []string{"core"}
	if err := g.Save(f.storePath(overview)); err != nil {
		t.Fatal(err)
	}

	f.write("pkg/base.py", "\"\"\"Base types, revised.\"\"\"\n\nclass Base:\n    pass\n")
	f.update("pkg/base.py", false)

	n := f.graph(overview).NodeByID("pkg.base")
	if n.Criticality != depgraph.CriticalityCritical {
		t.Errorf("Criticality = %s, want critical", n.Criticality)
	}
	if !n.HasTag("core") {
		t.Errorf("Tags = %v, want core kept", n.Tags)
	}
	if n.Description != "Base types, revised." {
		t.Errorf("Description = %q", n.Description)
	}
}

func TestUpdateForFile_IgnoredAndOutsideRoot(t *testing.T) {
	f := newFixture(t)
	f.write("data.bin", "\x00\x01")

	res := f.update("data.bin", false)
	if !res.Ignored {
		t.Error("expected data.bin to be ignored")
	}
	if _, err := os.Stat(f.storePath(overview)); !errors.Is(err, os.ErrNotExist) {
		t.Error("ignored file must not create a store")
	}

	if _, err := f.p.UpdateForFile(context.Background(), "../outside.py", UpdateOptions{}); err == nil {
		t.Error("expected error for a path outside the root")
	}
}

func TestUpdateForFile_AbsolutePath(t *testing.T) {
	f := newFixture(t)
	res := f.update(filepath.Join(f.root, "pkg", "base.py"), false)
	if res.Path != "pkg/base.py" {
		t.Errorf("Path = %q, want pkg/base.py", res.Path)
	}
	if !f.graph(overview).HasNode("pkg.base") {
		t.Error("expected pkg.base")
	}
}

func TestUpdateForFile_MultipleStores(t *testing.T) {
	f := newFixture(t)
	f.cfg.Stores = []config.StoreConfig{
		{ID: "sub", Name: "Sub", Type: "domain", File: "sub.json", Include: []string{"pkg/sub"}},
		{ID: "all", Name: "All", Type: "domain", File: "all.json"},
	}
	f.p = f.open()

	res := f.update("pkg/sub/mod.py", false)
	if len(res.GraphsUpdated) != 2 || res.GraphsUpdated[0] != "sub" || res.GraphsUpdated[1] != "all" {
		t.Errorf("GraphsUpdated = %v, want [sub all]", res.GraphsUpdated)
	}
	res = f.update("pkg/base.py", false)
	if len(res.GraphsUpdated) != 1 || res.GraphsUpdated[0] != "all" {
		t.Errorf("GraphsUpdated = %v, want [all]", res.GraphsUpdated)
	}
	if f.graph("sub").HasNode("pkg.base") {
		t.Error("pkg.base leaked into the sub store")
	}
}

type recordingHook struct {
	mu     sync.Mutex
	graphs []string
}

func (h *recordingHook) AfterCommit(_ context.Context, g *depgraph.Graph) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.graphs = append(h.graphs, g.Metadata.GraphID)
	return errors.New("mirror unavailable")
}

func TestCommitHooks(t *testing.T) {
	hook := &recordingHook{}
	f := newFixture(t, WithHooks(hook))

	res := f.update("pkg/base.py", false)
	if len(res.GraphsUpdated) != 1 {
		t.Fatalf("hook error must not undo the commit: %+v", res)
	}
	f.update("pkg/base.py", false)

	if len(hook.graphs) != 1 || hook.graphs[0] != overview {
		t.Errorf("hook calls = %v, want one for %s", hook.graphs, overview)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.p.Sweep(ctx, sampleList())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Analyzed != 5 || res.Failed != 0 {
		t.Errorf("Analyzed=%d Failed=%d, want 5 and 0", res.Analyzed, res.Failed)
	}
	if len(res.Stores) != 1 || res.Stores[0].Status != StatusCommitted {
		t.Fatalf("Stores = %+v", res.Stores)
	}
	g := f.graph(overview)
	if len(g.Nodes) != 5 {
		t.Errorf("nodes = %d, want 5", len(g.Nodes))
	}
	// base and mod landed in the same batch, so the edge resolves.
	if _, ok := importsEdge(g, "pkg.sub.mod", "pkg.base"); !ok {
		t.Error("expected pkg.sub.mod -> pkg.base")
	}

	res, err = f.p.Sweep(ctx, sampleList())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if res.Skipped != 5 || res.Analyzed != 0 || len(res.Stores) != 0 {
		t.Errorf("second sweep: %+v", res)
	}

	f.remove("pkg/base.py")
	list := []string{"README.md", "pkg/__init__.py", "pkg/sub/__init__.py", "pkg/sub/mod.py"}
	res, err = f.p.Sweep(ctx, list)
	if err != nil {
		t.Fatalf("third Sweep: %v", err)
	}
	if res.Removed != 1 {
		t.Errorf("Removed = %d, want 1", res.Removed)
	}
	g = f.graph(overview)
	if g.HasNode("pkg.base") || len(g.Edges) != 0 {
		t.Errorf("expected pkg.base and its edge gone: %+v", g.Edges)
	}
}

func TestSweep_AbortWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.p.Sweep(ctx, sampleList())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !res.Aborted {
		t.Error("expected Aborted")
	}
	if _, err := os.Stat(f.storePath(overview)); !errors.Is(err, os.ErrNotExist) {
		t.Error("aborted sweep wrote a store")
	}
}

func TestInitHashCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.p.InitHashCache(ctx, sampleList(), false)
	if err != nil {
		t.Fatalf("InitHashCache: %v", err)
	}
	if res.Recorded != 5 {
		t.Errorf("Recorded = %d, want 5", res.Recorded)
	}

	sweep, err := f.p.Sweep(ctx, sampleList())
	if err != nil {
		t.Fatal(err)
	}
	if sweep.Analyzed != 0 || sweep.Skipped != 5 {
		t.Errorf("sweep after init: %+v", sweep)
	}

	f.p.Hashes().Put("gone.py", "deadbeef")
	res, err = f.p.InitHashCache(ctx, sampleList(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != 5 || len(res.Pruned) != 1 || res.Pruned[0] != "gone.py" {
		t.Errorf("second init: %+v", res)
	}

	res, err = f.p.InitHashCache(ctx, sampleList(), true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Recorded != 5 {
		t.Errorf("forced init Recorded = %d, want 5", res.Recorded)
	}
}

func TestRegenerateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.p.RegenerateAll(ctx, sampleList())
	if err != nil {
		t.Fatalf("RegenerateAll: %v", err)
	}
	if res.Committed() != 1 {
		t.Fatalf("Stores = %+v", res.Stores)
	}
	g := f.graph(overview)
	if len(g.Nodes) != 5 {
		t.Errorf("nodes = %d, want 5", len(g.Nodes))
	}
	edge, ok := importsEdge(g, "pkg.sub.mod", "pkg.base")
	if !ok {
		t.Fatal("expected pkg.sub.mod -> pkg.base")
	}

	r, err := router.Load(f.cfg.RouterPath())
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if _, ok := r.Entry(overview); !ok {
		t.Errorf("router has no %s entry", overview)
	}
	if path, err := r.GraphPath(overview); err != nil || path != f.storePath(overview) {
		t.Errorf("GraphPath = %q, %v", path, err)
	}

	// Dropping README from the listing prunes its node; surviving edges keep their ids.
	res, err = f.p.RegenerateAll(ctx, sampleList()[1:])
	if err != nil {
		t.Fatalf("second RegenerateAll: %v", err)
	}
	g = f.graph(overview)
	if len(g.Nodes) != 4 {
		t.Errorf("nodes = %d, want 4", len(g.Nodes))
	}
	again, ok := importsEdge(g, "pkg.sub.mod", "pkg.base")
	if !ok || again.ID != edge.ID {
		t.Errorf("edge id changed across regeneration: %q -> %q", edge.ID, again.ID)
	}
}

func TestRegenerateAll_KeepsAuthoredRouter(t *testing.T) {
	f := newFixture(t)
	authored := `{
  "metadata": {"version": "1.0", "total_graphs": 2},
  "graphs": {
    "project_overview": {
      "id": "project_overview",
      "name": "Overview",
      "file": "stale.json",
      "description": "Hand written",
      "notes": "start here",
      "when_to_use": ["first look"],
      "typical_queries": []
    },
    "core": {
      "id": "core",
      "file": "core.json",
      "when_to_use": [],
      "typical_queries": [],
      "has_sub_graphs": true,
      "sub_graphs": {"models": {"file": "core/models.json", "recommended_for": ["node schema"]}},
      "router_file": "core/router.json"
    }
  }
}`
	f.write(filepath.ToSlash(mustRel(t, f.root, f.cfg.RouterPath())), authored)

	if _, err := f.p.RegenerateAll(context.Background(), sampleList()); err != nil {
		t.Fatalf("RegenerateAll: %v", err)
	}
	data, err := os.ReadFile(f.cfg.RouterPath())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"total_graphs": 2`, `"notes": "start here"`, `"description": "Hand written"`, `"recommended_for": [`} {
		if !bytes.Contains(data, []byte(want)) {
			t.Errorf("router lost %s:\n%s", want, data)
		}
	}
	r, err := router.Load(f.cfg.RouterPath())
	if err != nil {
		t.Fatal(err)
	}
	if path, err := r.GraphPath(overview); err != nil || path != f.storePath(overview) {
		t.Errorf("GraphPath = %q, %v", path, err)
	}
}

func mustRel(t *testing.T, base, target string) string {
	t.Helper()
	rel, err := filepath.Rel(base, target)
	if err != nil {
		t.Fatal(err)
	}
	return rel
}

func TestRegenerateAll_Aborted(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.p.RegenerateAll(ctx, sampleList())
	if err == nil || !res.Aborted {
		t.Fatalf("expected abort, got %+v, %v", res, err)
	}
	if _, err := os.Stat(f.storePath(overview)); !errors.Is(err, os.ErrNotExist) {
		t.Error("aborted regeneration wrote a store")
	}
}

func TestRegenerateStore(t *testing.T) {
	f := newFixture(t)
	f.cfg.Stores = []config.StoreConfig{
		{ID: "sub", Name: "Sub", Type: "domain", File: "sub.json", Include: []string{"pkg/sub"}},
		{ID: "all", Name: "All", Type: "domain", File: "all.json"},
	}
	f.p = f.open()

	out, err := f.p.RegenerateStore(context.Background(), "sub", sampleList())
	if err != nil {
		t.Fatalf("RegenerateStore: %v", err)
	}
	if out.Status != StatusCommitted || out.Nodes != 2 {
		t.Errorf("outcome = %+v, want committed with 2 nodes", out)
	}
	if _, err := os.Stat(f.storePath("all")); !errors.Is(err, os.ErrNotExist) {
		t.Error("RegenerateStore touched another store")
	}

	if _, err := f.p.RegenerateStore(context.Background(), "nope", nil); !errors.Is(err, ErrUnknownStore) {
		t.Errorf("err = %v, want ErrUnknownStore", err)
	}
}

func TestCommit_FixesDanglingEdges(t *testing.T) {
	f := newFixture(t)
	f.update("pkg/base.py", false)

	g := f.graph(overview)
	g.Edges = append(g.Edges, depgraph.Edge{ID: "e99", Source: "pkg.base", Target: "pkg.ghost", Type: depgraph.EdgeImports})
	if err := g.Save(f.storePath(overview)); err != nil {
		t.Fatal(err)
	}

	f.update("pkg/sub/mod.py", false)
	g = f.graph(overview)
	if rep := depgraph.Validate(g); !rep.OK() {
		t.Errorf("violations after commit: %v", rep.Violations)
	}
	for _, e := range g.Edges {
		if e.ID == "e99" {
			t.Error("dangling edge survived the commit")
		}
	}
}

func edgePairs(g *depgraph.Graph) map[string]bool {
	out := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		out[e.Source+"->"+e.Target] = true
	}
	return out
}

func TestUpdateForFile_TargetCreatedAfterImporter(t *testing.T) {
	tests := []struct {
		name  string
		steps func(f *fixture)
	}{
		{"importer first", func(f *fixture) {
			f.update("pkg/sub/mod.py", false)
			f.update("pkg/base.py", false)
		}},
		{"target deleted and recreated", func(f *fixture) {
			f.update("pkg/base.py", false)
			f.update("pkg/sub/mod.py", false)
			f.remove("pkg/base.py")
			f.update("pkg/base.py", false)
			f.write("pkg/base.py", sampleFiles["pkg/base.py"])
			f.update("pkg/base.py", false)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.steps(f)

			g := f.graph(overview)
			if _, ok := importsEdge(g, "pkg.sub.mod", "pkg.base"); !ok {
				t.Fatalf("expected pkg.sub.mod -> pkg.base, edges: %+v", g.Edges)
			}
			if rep := depgraph.Validate(g); !rep.OK() {
				t.Errorf("violations: %v", rep.Violations)
			}

			incremental := edgePairs(g)
			full := newFixture(t)
			if _, err := full.p.RegenerateAll(context.Background(), []string{"pkg/base.py", "pkg/sub/mod.py"}); err != nil {
				t.Fatal(err)
			}
			if want := edgePairs(full.graph(overview)); !reflect.DeepEqual(incremental, want) {
				t.Errorf("incremental edges %v, regenerated %v", incremental, want)
			}
		})
	}
}

func TestUpdateForFile_ModuleIDCollision(t *testing.T) {
	f := newFixture(t)
	f.write("pkg/sub.py", "\"\"\"Shadowed by the package.\"\"\"\n")
	f.update("pkg/sub/__init__.py", false)

	_, err := f.p.UpdateForFile(context.Background(), "pkg/sub.py", UpdateOptions{})
	if err == nil {
		t.Fatal("expected an error for a module id already owned by another file")
	}
	g := f.graph(overview)
	n := g.NodeByID("pkg.sub")
	if n == nil || n.Path != "pkg/sub/__init__.py" {
		t.Fatalf("owner node overwritten: %+v", n)
	}
	if g.NodeByPath("pkg/sub.py") != nil {
		t.Error("colliding file must not get a node")
	}
	if f.p.Hashes().Has("pkg/sub.py") {
		t.Error("colliding file must not be hashed")
	}

	res, err := f.p.Sweep(context.Background(), append(sampleList(), "pkg/sub.py"))
	if err != nil {
		t.Fatal(err)
	}
	var got Outcome
	for _, o := range res.Files {
		if o.Path == "pkg/sub.py" {
			got = o
		}
	}
	if got.Status != StatusFailed || !strings.Contains(got.Error, "pkg/sub/__init__.py") {
		t.Errorf("sweep outcome for colliding file = %+v", got)
	}

	// Once the owner is gone the id can move.
	f.remove("pkg/sub/__init__.py")
	f.update("pkg/sub/__init__.py", false)
	f.update("pkg/sub.py", false)
	if n := f.graph(overview).NodeByID("pkg.sub"); n == nil || n.Path != "pkg/sub.py" {
		t.Errorf("expected pkg.sub to move to pkg/sub.py, got %+v", n)
	}
}
