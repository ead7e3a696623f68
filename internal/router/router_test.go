package router

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const routerJSON = `{
  "metadata": {"version": "1.0"},
  "graphs": {
    "storage": {
      "id": "storage",
      "name": "Storage",
      "file": "storage.json",
      "description": "Persistence layer",
      "when_to_use": ["changing how data is persisted", "database schema work"],
      "typical_queries": ["where is the cache written"]
    },
    "testing": {
      "id": "testing",
      "name": "Testing",
      "file": "testing.json",
      "description": "Test suite",
      "when_to_use": ["writing new tests", "debugging test failures"],
      "typical_queries": ["which fixtures exist"]
    },
    "core": {
      "id": "core",
      "name": "Core",
      "file": "core.json",
      "when_to_use": ["core graph logic"],
      "typical_queries": [],
      "has_sub_graphs": true,
      "sub_graphs": {"models": {}, "sync": {}},
      "router_file": "core/router.json"
    }
  }
}`

func TestParse_PreservesOrder(t *testing.T) {
	r, err := Parse([]byte(routerJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var keys []string
	for _, e := range r.Entries {
		keys = append(keys, e.Key)
	}
	if want := []string{"storage", "testing", "core"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	core, _ := r.Entry("core")
	if !core.HasSubGraphs || !reflect.DeepEqual(core.SubGraphs, []string{"models", "sync"}) {
		t.Errorf("core entry = %+v", core)
	}
}

func TestRecommend(t *testing.T) {
	r, err := Parse([]byte(routerJSON))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		task     string
		want     string
		fallback bool
	}{
		{"testing task", "I need to write a new test for X", "testing", false},
		{"storage task", "change how the cache data is persisted", "storage", false},
		{"below threshold", "refactor the CLI flags", DefaultFallback, true},
		{"empty task", "", DefaultFallback, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Recommend(tt.task)
			if got.GraphID != tt.want || got.Fallback != tt.fallback {
				t.Errorf("Recommend(%q) = %+v, want %s", tt.task, got, tt.want)
			}
		})
	}
}

func TestRecommend_TieGoesToFirstEntry(t *testing.T) {
	data := `{"graphs": {
  "zeta": {"id": "zeta", "when_to_use": ["graph export"]},
  "alpha": {"id": "alpha", "when_to_use": ["graph export"]}
}}`
	r, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		if got := r.Recommend("graph export please").GraphID; got != "zeta" {
			t.Fatalf("tie resolved to %q, want zeta", got)
		}
	}
}

func TestScore_Weights(t *testing.T) {
	e := Entry{WhenToUse: []string{"graph sync", "sync edges"}, TypicalQueries: []string{"edge ids"}}
	// sync matches both when_to_use phrases (2x2), edges matches one (2), edge ids none
	if got := Score(Tokenize("sync edges now"), e); got != 6 {
		t.Errorf("Score = %d, want 6", got)
	}
	if got := Score(Tokenize("edge ids"), e); got != 2 {
		t.Errorf("Score = %d, want 2", got)
	}
}

func TestFallback(t *testing.T) {
	r := &Router{}
	if r.Fallback() != DefaultFallback {
		t.Errorf("default fallback = %q", r.Fallback())
	}
	r.Metadata.Fallback = "overview"
	if r.Fallback() != "overview" {
		t.Errorf("metadata fallback = %q", r.Fallback())
	}
	r.SetFallback("custom")
	if r.Fallback() != "custom" {
		t.Errorf("configured fallback = %q", r.Fallback())
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.json")
	if err := os.WriteFile(path, []byte(routerJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, err := r.GraphPath("testing")
	if err != nil || p != filepath.Join(dir, "testing.json") {
		t.Errorf("GraphPath = %q, %v", p, err)
	}
	sp, err := r.SubRouterPath("core")
	if err != nil || sp != filepath.Join(dir, "core", "router.json") {
		t.Errorf("SubRouterPath = %q, %v", sp, err)
	}
	if _, err := r.GraphPath("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.SubRouterPath("storage"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for flat graph, got %v", err)
	}

	r.Upsert(Entry{Key: "testing", ID: "testing", File: "tests.json", Description: "ignored"})
	r.Upsert(Entry{Key: "docs", ID: "docs", File: "docs.json"})
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	var keys []string
	for _, e := range again.Entries {
		keys = append(keys, e.Key)
	}
	if want := []string{"storage", "testing", "core", "docs"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("keys after save = %v, want %v", keys, want)
	}
	entry, _ := again.Entry("testing")
	if entry.File != "tests.json" || entry.Description != "Test suite" || len(entry.WhenToUse) != 2 {
		t.Errorf("upsert lost authored fields: %+v", entry)
	}
}

const subRouterJSON = `{
  "metadata": {"domain": "core"},
  "sub_graphs": {
    "models": {"file": "models.json", "recommended_for": ["data model changes", "node schema"]},
    "sync": {"file": "sync.json", "recommended_for": ["edge synchronization", "import resolution"]}
  },
  "cross_graph_edges": [
    {"source": "pkg.sync", "target": "pkg.models", "source_graph": "sync", "target_graph": "models", "type": "imports"},
    {"source": "pkg.cli", "target": "pkg.sync", "source_graph": "cli", "target_graph": "sync", "type": "imports"}
  ]
}`

func TestRecommendSubGraph(t *testing.T) {
	s, err := ParseSubRouter([]byte(subRouterJSON))
	if err != nil {
		t.Fatalf("ParseSubRouter: %v", err)
	}

	tests := []struct {
		task     string
		want     string
		fallback bool
	}{
		{"fix import resolution for relative paths", "sync", false},
		{"add a field to the node schema", "models", false},
		{"unrelated words entirely", "models", true},
	}
	for _, tt := range tests {
		got, ok := s.RecommendSubGraph(tt.task)
		if !ok || got.SubGraphID != tt.want || got.Fallback != tt.fallback {
			t.Errorf("RecommendSubGraph(%q) = %+v, want %s", tt.task, got, tt.want)
		}
	}

	if _, ok := (&SubRouter{}).RecommendSubGraph("x"); ok {
		t.Error("expected false for empty sub-router")
	}
}

func TestCrossEdges(t *testing.T) {
	s, err := ParseSubRouter([]byte(subRouterJSON))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.CrossEdges("sync"); len(got) != 2 {
		t.Errorf("sync cross edges = %d", len(got))
	}
	if got := s.CrossEdges("models"); len(got) != 1 || got[0].Source != "pkg.sync" {
		t.Errorf("models cross edges = %+v", got)
	}
	if got := s.CrossEdges(""); len(got) != 2 {
		t.Errorf("all cross edges = %d", len(got))
	}
}

func TestSubGraphPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core", "router.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(subRouterJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := LoadSubRouter(path)
	if err != nil {
		t.Fatalf("LoadSubRouter: %v", err)
	}
	if s.Domain != "core" {
		t.Errorf("domain = %q", s.Domain)
	}
	p, err := s.SubGraphPath("models")
	if err != nil || p != filepath.Join(dir, "core", "models.json") {
		t.Errorf("SubGraphPath = %q, %v", p, err)
	}
	if _, err := s.SubGraphPath("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

const authoredRouterJSON = `{
  "metadata": {"version": "2.0", "total_graphs": 2, "maintainers": ["graph-team"]},
  "graphs": {
    "core": {
      "id": "core",
      "name": "Core",
      "file": "old/core.json",
      "notes": "split by layer",
      "when_to_use": ["core graph logic"],
      "typical_queries": [],
      "has_sub_graphs": true,
      "sub_graphs": {
        "models": {"file": "core/models.json", "recommended_for": ["node schema"]},
        "sync": {"file": "core/sync.json", "recommended_for": ["edge synchronization"]}
      },
      "router_file": "core/router.json"
    }
  },
  "schema": "router/v2"
}`

func TestSave_KeepsAuthoredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.json")
	if err := os.WriteFile(path, []byte(authoredRouterJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r.Upsert(Entry{Key: "core", ID: "core", Name: "ignored", File: "core.json", Description: "Core graph (3 nodes)"})
	r.Upsert(Entry{Key: "docs", ID: "docs", File: "docs.json"})
	if err := r.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Schema   string                                `json:"schema"`
		Metadata map[string]json.RawMessage            `json:"metadata"`
		Graphs   map[string]map[string]json.RawMessage `json:"graphs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved router is not JSON: %v", err)
	}
	if doc.Schema != "router/v2" {
		t.Errorf("top-level member lost, schema = %q", doc.Schema)
	}
	if string(doc.Metadata["total_graphs"]) != "2" || doc.Metadata["maintainers"] == nil {
		t.Errorf("metadata members lost: %s", data)
	}
	if _, ok := doc.Metadata["updated_at"]; !ok {
		t.Error("updated_at not written")
	}

	core := doc.Graphs["core"]
	if string(core["file"]) != `"core.json"` || string(core["name"]) != `"Core"` {
		t.Errorf("generated fields = file %s name %s", core["file"], core["name"])
	}
	if string(core["description"]) != `"Core graph (3 nodes)"` {
		t.Errorf("empty description not filled: %s", core["description"])
	}
	if string(core["notes"]) != `"split by layer"` {
		t.Errorf("unknown entry member lost: %s", data)
	}
	var subs map[string]SubGraph
	if err := json.Unmarshal(core["sub_graphs"], &subs); err != nil {
		t.Fatalf("sub_graphs no longer an object: %s", core["sub_graphs"])
	}
	if subs["models"].File != "core/models.json" || len(subs["sync"].RecommendedFor) != 1 {
		t.Errorf("sub_graphs members changed: %+v", subs)
	}
	if _, ok := doc.Graphs["docs"]; !ok {
		t.Error("new entry not written")
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	e, _ := again.Entry("core")
	if !reflect.DeepEqual(e.SubGraphs, []string{"models", "sync"}) || e.RouterFile != "core/router.json" {
		t.Errorf("reloaded entry = %+v", e)
	}
}
