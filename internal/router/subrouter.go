package router

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SubGraph is one graph inside a hierarchical domain.
type SubGraph struct {
	ID             string   `json:"-"`
	Name           string   `json:"name,omitempty"`
	File           string   `json:"file"`
	Description    string   `json:"description,omitempty"`
	RecommendedFor []string `json:"recommended_for"`
}

// CrossEdge links nodes that live in different sub-graphs of one domain.
type CrossEdge struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	SourceGraph string `json:"source_graph"`
	TargetGraph string `json:"target_graph"`
	Type        string `json:"type,omitempty"`
}

// SubRouter is the nested directory of a hierarchical domain.
type SubRouter struct {
	Domain     string
	SubGraphs  []SubGraph
	CrossGraph []CrossEdge

	path string
}

// SubRecommendation is the outcome of RecommendSubGraph.
type SubRecommendation struct {
	SubGraphID string `json:"sub_graph_id"`
	Score      int    `json:"score"`
	Fallback   bool   `json:"fallback"`
}

// LoadSubRouter reads a Sub-Router file.
func LoadSubRouter(path string) (*SubRouter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sub-router: %w", err)
	}
	s, err := ParseSubRouter(data)
	if err != nil {
		return nil, fmt.Errorf("decode sub-router %s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// ParseSubRouter decodes Sub-Router JSON, keeping sub-graph order.
func ParseSubRouter(data []byte) (*SubRouter, error) {
	var doc struct {
		Metadata struct {
			Domain string `json:"domain"`
		} `json:"metadata"`
		SubGraphs  json.RawMessage `json:"sub_graphs"`
		CrossEdges []CrossEdge     `json:"cross_graph_edges"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	s := &SubRouter{Domain: doc.Metadata.Domain, CrossGraph: doc.CrossEdges}
	err := eachMember(doc.SubGraphs, func(key string, value json.RawMessage) error {
		var sg SubGraph
		if err := json.Unmarshal(value, &sg); err != nil {
			return fmt.Errorf("sub-graph %q: %w", key, err)
		}
		sg.ID = key
		s.SubGraphs = append(s.SubGraphs, sg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SubGraph finds a sub-graph by id.
func (s *SubRouter) SubGraph(id string) (SubGraph, bool) {
	for _, sg := range s.SubGraphs {
		if sg.ID == id {
			return sg, true
		}
	}
	return SubGraph{}, false
}

// SubGraphPath is the store file of sub-graph id.
func (s *SubRouter) SubGraphPath(id string) (string, error) {
	sg, ok := s.SubGraph(id)
	if !ok {
		return "", fmt.Errorf("sub-graph %q: %w", id, ErrNotFound)
	}
	if sg.File == "" || filepath.IsAbs(sg.File) || s.path == "" {
		return sg.File, nil
	}
	return filepath.Join(filepath.Dir(s.path), filepath.FromSlash(sg.File)), nil
}

// RecommendSubGraph scores task against each sub-graph's recommended_for hints.
// Ties go to the sub-graph listed first; when nothing scores, the first
// sub-graph is returned. It returns false only for an empty Sub-Router.
func (s *SubRouter) RecommendSubGraph(task string) (SubRecommendation, bool) {
	if len(s.SubGraphs) == 0 {
		return SubRecommendation{}, false
	}
	words := Tokenize(task)
	best, bestScore := "", 0
	for _, sg := range s.SubGraphs {
		if sc := recommendedForWeight * overlap(words, sg.RecommendedFor); sc > bestScore {
			best, bestScore = sg.ID, sc
		}
	}
	if bestScore == 0 {
		return SubRecommendation{SubGraphID: s.SubGraphs[0].ID, Fallback: true}, true
	}
	return SubRecommendation{SubGraphID: best, Score: bestScore}, true
}

// CrossEdges returns the cross-graph edges touching sub-graph id, or all of
// them when id is empty.
func (s *SubRouter) CrossEdges(id string) []CrossEdge {
	if id == "" {
		return append([]CrossEdge(nil), s.CrossGraph...)
	}
	var out []CrossEdge
	for _, e := range s.CrossGraph {
		if e.SourceGraph == id || e.TargetGraph == id {
			out = append(out, e)
		}
	}
	return out
}
