package depgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrNodeNotFound is returned when a node id or path is not present in a Graph Store.
var ErrNodeNotFound = errors.New("node not found")

// New creates an empty Graph Store.
func New(id, name, graphType string) *Graph {
	return &Graph{
		Metadata: Metadata{
			Version:     SchemaVersion,
			GraphID:     id,
			GraphName:   name,
			GraphType:   graphType,
			GeneratedAt: time.Now().UTC(),
			NextEdgeID:  1,
		},
		Nodes: []Node{},
		Edges: []Edge{},
	}
}

// Load reads a Graph Store from path.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode graph %s: %w", path, err)
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	if floor := maxEdgeNumber(g.Edges) + 1; g.Metadata.NextEdgeID < floor {
		g.Metadata.NextEdgeID = floor
	}
	return &g, nil
}

// LoadOrNew loads path, or returns a fresh store when the file does not exist.
func LoadOrNew(path, id, name, graphType string) (*Graph, error) {
	g, err := Load(path)
	if err == nil {
		return g, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return New(id, name, graphType), nil
	}
	return nil, err
}

// Save writes the graph to path through a temp file and rename, so readers never
// observe a half-written store.
func (g *Graph) Save(path string) error {
	g.Stamp()
	g.Metadata.GeneratedAt = time.Now().UTC()
	if g.Metadata.Version == "" {
		g.Metadata.Version = SchemaVersion
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace graph: %w", err)
	}
	return nil
}

// Stamp re-derives the summary counts from the node and edge slices.
func (g *Graph) Stamp() {
	g.Metadata.NodeCount = len(g.Nodes)
	g.Metadata.EdgeCount = len(g.Edges)
}

// NodeByID returns the node with id, or nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// NodeByPath returns the node whose path is path, or nil.
func (g *Graph) NodeByPath(path string) *Node {
	path = filepath.ToSlash(path)
	for i := range g.Nodes {
		if g.Nodes[i].Path == path {
			return &g.Nodes[i]
		}
	}
	return nil
}

// HasNode reports whether id is present.
func (g *Graph) HasNode(id string) bool {
	return g.NodeByID(id) != nil
}

// UpsertNode replaces the node with the same id or appends it. Exports are always
// re-derived from classes and functions.
func (g *Graph) UpsertNode(n Node) {
	n.Path = filepath.ToSlash(n.Path)
	n.Exports = deriveExports(n.Classes, n.Functions)
	if existing := g.NodeByID(n.ID); existing != nil {
		*existing = n
	} else {
		g.Nodes = append(g.Nodes, n)
	}
	g.Stamp()
}

// RemoveNode removes the node at path and every edge touching it.
// It returns the removed node id, or false when no node has that path.
func (g *Graph) RemoveNode(path string) (string, bool) {
	path = filepath.ToSlash(path)
	idx := -1
	for i := range g.Nodes {
		if g.Nodes[i].Path == path {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	id := g.Nodes[idx].ID
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept
	g.Stamp()
	return id, true
}

// OutgoingEdges returns edges of kind leaving id.
func (g *Graph) OutgoingEdges(id string, kind EdgeType) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.Source == id && e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}

// AddEdge appends a new edge with a freshly minted id and returns it.
func (g *Graph) AddEdge(source, target string, kind EdgeType) Edge {
	e := Edge{ID: g.mintEdgeID(), Source: source, Target: target, Type: kind}
	g.Edges = append(g.Edges, e)
	g.Stamp()
	return e
}

func (g *Graph) mintEdgeID() string {
	if floor := maxEdgeNumber(g.Edges) + 1; g.Metadata.NextEdgeID < floor {
		g.Metadata.NextEdgeID = floor
	}
	id := "e" + strconv.Itoa(g.Metadata.NextEdgeID)
	g.Metadata.NextEdgeID++
	return id
}

// maxEdgeNumber returns the largest numeric suffix of "e<N>" ids, or 0.
func maxEdgeNumber(edges []Edge) int {
	highest := 0
	for _, e := range edges {
		if n, ok := edgeNumber(e.ID); ok && n > highest {
			highest = n
		}
	}
	return highest
}

func edgeNumber(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "e")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func deriveExports(classes, functions []string) []string {
	if len(classes) == 0 && len(functions) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(classes)+len(functions))
	out := make([]string, 0, len(classes)+len(functions))
	for _, list := range [][]string{classes, functions} {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// Locks serializes writers per Graph Store file. Readers never take these locks;
// they work against loaded snapshots.
type Locks struct {
	mu    sync.Mutex
	byKey map[string]*sync.Mutex
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{byKey: make(map[string]*sync.Mutex)}
}

// Lock acquires the writer lock for key and returns its release func.
func (l *Locks) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.byKey[key]
	if !ok {
		m = &sync.Mutex{}
		l.byKey[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
