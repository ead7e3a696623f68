// Package router holds the Domain Router and Sub-Routers and recommends the
// graph that best matches a task description.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultFallback is recommended when no graph scores at least MinScore.
const DefaultFallback = "project_overview"

// ErrNotFound is returned when a graph or sub-graph id is not in a router.
var ErrNotFound = errors.New("router entry not found")

// Entry is one graph listed in the Domain Router. An entry read from a file
// keeps its authored JSON, and only the generated fields are written back over it.
type Entry struct {
	Key            string   `json:"-"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	File           string   `json:"file"`
	Description    string   `json:"description"`
	WhenToUse      []string `json:"when_to_use"`
	TypicalQueries []string `json:"typical_queries"`
	HasSubGraphs   bool     `json:"has_sub_graphs,omitempty"`
	SubGraphs      []string `json:"sub_graphs,omitempty"`
	RouterFile     string   `json:"router_file,omitempty"`

	raw json.RawMessage
}

// GraphID is the id recommendations report for e.
func (e Entry) GraphID() string {
	if e.ID != "" {
		return e.ID
	}
	return e.Key
}

// UnmarshalJSON accepts sub_graphs either as a list of ids or as an object keyed by id.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var aux struct {
		plain
		SubGraphs json.RawMessage `json:"sub_graphs"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = Entry(aux.plain)
	e.raw = append(json.RawMessage(nil), data...)
	e.SubGraphs = nil
	if len(aux.SubGraphs) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(aux.SubGraphs, &list); err == nil {
		e.SubGraphs = list
		return nil
	}
	return eachMember(aux.SubGraphs, func(key string, _ json.RawMessage) error {
		e.SubGraphs = append(e.SubGraphs, key)
		return nil
	})
}

// MarshalJSON writes a new entry from its fields. A loaded entry is written
// as authored with id, name, file and description patched in place, so
// object-form sub_graphs and unknown members survive.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	if e.raw == nil {
		return json.Marshal(plain(e))
	}
	return patchMembers(e.raw, []field{
		{key: "id", value: e.ID, omit: e.ID == ""},
		{key: "name", value: e.Name, omit: e.Name == ""},
		{key: "file", value: e.File},
		{key: "description", value: e.Description, omit: e.Description == ""},
	})
}

// Metadata is the router file's summary block.
type Metadata struct {
	Version     string    `json:"version,omitempty"`
	Description string    `json:"description,omitempty"`
	Fallback    string    `json:"fallback_graph,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`

	raw json.RawMessage
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	type plain Metadata
	var aux plain
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Metadata(aux)
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON keeps members it does not know, such as total_graphs.
func (m Metadata) MarshalJSON() ([]byte, error) {
	type plain Metadata
	if m.raw == nil {
		return json.Marshal(plain(m))
	}
	return patchMembers(m.raw, []field{
		{key: "version", value: m.Version, omit: m.Version == ""},
		{key: "description", value: m.Description, omit: m.Description == ""},
		{key: "fallback_graph", value: m.Fallback, omit: m.Fallback == ""},
		{key: "updated_at", value: m.UpdatedAt, omit: m.UpdatedAt.IsZero()},
	})
}

// Router is the top-level directory of graphs. Entries keep file order.
type Router struct {
	Metadata Metadata `json:"metadata"`
	Entries  []Entry  `json:"-"`

	raw      json.RawMessage
	path     string
	fallback string
}

// Recommendation is the outcome of scoring a task against a router.
type Recommendation struct {
	GraphID  string `json:"graph_id"`
	Score    int    `json:"score"`
	Fallback bool   `json:"fallback"`
}

// Load reads a router file. Relative graph files resolve against its directory.
func Load(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read router: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("decode router %s: %w", path, err)
	}
	r.path = path
	return r, nil
}

// Parse decodes router JSON.
func Parse(data []byte) (*Router, error) {
	var doc struct {
		Metadata Metadata        `json:"metadata"`
		Graphs   json.RawMessage `json:"graphs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	r := &Router{Metadata: doc.Metadata, raw: append(json.RawMessage(nil), data...)}
	err := eachMember(doc.Graphs, func(key string, value json.RawMessage) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("graph %q: %w", key, err)
		}
		e.Key = key
		r.Entries = append(r.Entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// MarshalJSON writes entries in their current order.
func (r *Router) MarshalJSON() ([]byte, error) {
	keys := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		keys[i] = e.Key
	}
	graphs, err := writeMembers(keys, func(i int) any { return r.Entries[i] })
	if err != nil {
		return nil, err
	}
	if r.raw == nil {
		return json.Marshal(struct {
			Metadata Metadata        `json:"metadata"`
			Graphs   json.RawMessage `json:"graphs"`
		}{r.Metadata, graphs})
	}
	return patchMembers(r.raw, []field{
		{key: "metadata", value: r.Metadata},
		{key: "graphs", value: json.RawMessage(graphs)},
	})
}

// Save writes the router to path atomically.
func (r *Router) Save(path string) error {
	r.Metadata.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode router: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create router dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write router: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace router: %w", err)
	}
	r.path = path
	return nil
}

// SetFallback overrides the graph recommended when nothing scores high enough.
func (r *Router) SetFallback(id string) { r.fallback = id }

// Fallback returns the configured fallback graph id.
func (r *Router) Fallback() string {
	switch {
	case r.fallback != "":
		return r.fallback
	case r.Metadata.Fallback != "":
		return r.Metadata.Fallback
	default:
		return DefaultFallback
	}
}

// Entry finds a graph by id or key.
func (r *Router) Entry(id string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.ID == id || e.Key == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve makes a file reference absolute relative to the router file.
func (r *Router) Resolve(file string) string {
	if file == "" || filepath.IsAbs(file) || r.path == "" {
		return file
	}
	return filepath.Join(filepath.Dir(r.path), filepath.FromSlash(file))
}

// GraphPath is the store file for the graph with id.
func (r *Router) GraphPath(id string) (string, error) {
	e, ok := r.Entry(id)
	if !ok {
		return "", fmt.Errorf("graph %q: %w", id, ErrNotFound)
	}
	return r.Resolve(e.File), nil
}

// SubRouterPath is the Sub-Router file of a hierarchical graph.
func (r *Router) SubRouterPath(id string) (string, error) {
	e, ok := r.Entry(id)
	if !ok || !e.HasSubGraphs || e.RouterFile == "" {
		return "", fmt.Errorf("sub-router for %q: %w", id, ErrNotFound)
	}
	return r.Resolve(e.RouterFile), nil
}

// Score returns the weighted overlap of task with an entry's hints.
func Score(task map[string]bool, e Entry) int {
	return whenToUseWeight*overlap(task, e.WhenToUse) + typicalQueryWeight*overlap(task, e.TypicalQueries)
}

// Recommend picks the graph whose hints best match task. Only a strictly
// higher score replaces the current best, so ties go to the entry listed first.
// Scores below MinScore yield the fallback graph.
func (r *Router) Recommend(task string) Recommendation {
	words := Tokenize(task)
	best, bestScore := "", 0
	for _, e := range r.Entries {
		if s := Score(words, e); s > bestScore {
			best, bestScore = e.GraphID(), s
		}
	}
	if best == "" || bestScore < MinScore {
		return Recommendation{GraphID: r.Fallback(), Score: bestScore, Fallback: true}
	}
	return Recommendation{GraphID: best, Score: bestScore}
}

// Upsert adds a graph entry or refreshes the generated fields of an existing
// one. Authored hints on an existing entry are kept.
func (r *Router) Upsert(e Entry) {
	for i := range r.Entries {
		cur := &r.Entries[i]
		if cur.Key != e.Key {
			continue
		}
		cur.File = e.File
		if cur.ID == "" {
			cur.ID = e.ID
		}
		if cur.Name == "" {
			cur.Name = e.Name
		}
		if cur.Description == "" {
			cur.Description = e.Description
		}
		return
	}
	if e.WhenToUse == nil {
		e.WhenToUse = []string{}
	}
	if e.TypicalQueries == nil {
		e.TypicalQueries = []string{}
	}
	r.Entries = append(r.Entries, e)
}
