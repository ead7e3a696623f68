package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
)

// Reasons a node counts as stale.
const (
	StaleChanged  = "changed"
	StaleMissing  = "missing"
	StaleUnhashed = "unhashed"
)

// StaleFile is a node whose file no longer matches what the store was built from.
type StaleFile struct {
	Path   string `json:"path"`
	NodeID string `json:"node_id"`
	Reason string `json:"reason"`
}

// StoreStatus describes one configured Graph Store.
type StoreStatus struct {
	GraphID     string      `json:"graph_id"`
	File        string      `json:"file"`
	Exists      bool        `json:"exists"`
	Nodes       int         `json:"nodes"`
	Edges       int         `json:"edges"`
	GeneratedAt time.Time   `json:"generated_at,omitempty"`
	Violations  int         `json:"violations"`
	Stale       []StaleFile `json:"stale"`
	Error       string      `json:"error,omitempty"`
}

// StatusReport surfaces how far the stores have drifted from the working tree.
type StatusReport struct {
	Root        string        `json:"root"`
	HashEntries int           `json:"hash_entries"`
	Stores      []StoreStatus `json:"stores"`
	StaleCount  int           `json:"stale_count"`
}

// Fresh reports whether every store exists, validates cleanly and has no stale nodes.
func (r StatusReport) Fresh() bool {
	for _, s := range r.Stores {
		if !s.Exists || s.Violations > 0 || len(s.Stale) > 0 || s.Error != "" {
			return false
		}
	}
	return true
}

// Status compares every configured store against the hash cache and the
// files on disk.
func (s *Service) Status(ctx context.Context) (rep StatusReport, err error) {
	_, span := observability.StartQuerySpan(ctx, "status", "")
	defer func() { s.observe("status", span, err) }()

	root := s.cfg.RootDir()
	hashes, err := hashstore.Open(root, s.cfg.HashCachePath())
	if err != nil {
		return StatusReport{}, err
	}
	rep = StatusReport{Root: root, HashEntries: hashes.Len(), Stores: []StoreStatus{}}

	for _, st := range s.cfg.Stores {
		ss := StoreStatus{GraphID: st.ID, File: s.cfg.StorePath(st), Stale: []StaleFile{}}
		g, err := s.load(ss.File)
		switch {
		case errors.Is(err, os.ErrNotExist):
			rep.Stores = append(rep.Stores, ss)
			continue
		case err != nil:
			ss.Error = err.Error()
			rep.Stores = append(rep.Stores, ss)
			continue
		}
		ss.Exists = true
		ss.Nodes, ss.Edges = len(g.Nodes), len(g.Edges)
		ss.GeneratedAt = g.Metadata.GeneratedAt
		ss.Violations = len(depgraph.Validate(g).Violations)
		ss.Stale = staleNodes(g, root, hashes)
		rep.StaleCount += len(ss.Stale)
		rep.Stores = append(rep.Stores, ss)
	}
	return rep, nil
}

func staleNodes(g *depgraph.Graph, root string, hashes *hashstore.Store) []StaleFile {
	out := []StaleFile{}
	for _, n := range g.Nodes {
		if n.Path == "" {
			continue
		}
		reason := ""
		cached, ok := hashes.Lookup(n.Path)
		digest, err := hashstore.Digest(filepath.Join(root, filepath.FromSlash(n.Path)))
		switch {
		case err != nil:
			reason = StaleMissing
		case !ok:
			reason = StaleUnhashed
		case cached != digest:
			reason = StaleChanged
		}
		if reason != "" {
			out = append(out, StaleFile{Path: n.Path, NodeID: n.ID, Reason: reason})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
