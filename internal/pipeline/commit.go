package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/observability"
)

// Status is the outcome of one file or one store in a batch.
type Status string

const (
	StatusUpdated    Status = "updated"
	StatusSkipped    Status = "skipped"
	StatusRemoved    Status = "removed"
	StatusIgnored    Status = "ignored"
	StatusFailed     Status = "failed"
	StatusParseError Status = "parse_error"
	StatusCommitted  Status = "committed"
	StatusUnchanged  Status = "unchanged"
	StatusRejected   Status = "rejected"
)

// Outcome reports what happened to one file.
type Outcome struct {
	Path   string `json:"path"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StoreOutcome reports what happened to one Graph Store.
type StoreOutcome struct {
	Graph        string      `json:"graph"`
	Status       Status      `json:"status"`
	Upserted     int         `json:"upserted"`
	Removed      int         `json:"removed"`
	EdgesAdded   int         `json:"edges_added"`
	EdgesRemoved int         `json:"edges_removed"`
	Nodes        int         `json:"nodes"`
	Edges        int         `json:"edges"`
	Violations   []string    `json:"violations,omitempty"`
	Collisions   []Collision `json:"collisions,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Collision is a file left out of a store because its module id already
// belongs to another file that still exists.
type Collision struct {
	Path   string `json:"path"`
	NodeID string `json:"node_id"`
	Owner  string `json:"owner"`
}

func (c Collision) Error() string {
	return fmt.Sprintf("module id %s already belongs to %s", c.NodeID, c.Owner)
}

// ok reports whether the store is consistent on disk after the batch.
func (o StoreOutcome) ok() bool {
	return o.Status == StatusCommitted || o.Status == StatusUnchanged
}

// applyStore loads one store under its writer lock, applies changes in two
// phases (node removals and upserts first, then edge synchronization, so
// imports between files of the same batch resolve), validates and commits.
// With prune set, nodes whose path is not among changes are removed too.
func (p *Pipeline) applyStore(ctx context.Context, store config.StoreConfig, changes []change, prune bool) StoreOutcome {
	out := StoreOutcome{Graph: store.ID}
	path := p.cfg.StorePath(store)

	unlock := p.locks.Lock(path)
	defer unlock()

	_, statErr := os.Stat(path)
	missing := errors.Is(statErr, os.ErrNotExist)
	g, err := depgraph.LoadOrNew(path, store.ID, store.Name, store.Type)
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		p.logger.Error("load graph store failed", "graph", store.ID, "error", err)
		return out
	}
	cached := g.HasAdjacencyCache()

	if prune {
		keep := make(map[string]bool, len(changes))
		for _, ch := range changes {
			if !ch.deleted {
				keep[ch.rel] = true
			}
		}
		var stale []string
		for _, n := range g.Nodes {
			if !keep[n.Path] {
				stale = append(stale, n.Path)
			}
		}
		for _, rel := range stale {
			if id, ok := g.RemoveNode(rel); ok {
				out.Removed++
				p.audit.LogFileRemove(ctx, rel, store.ID, id)
			}
		}
	}

	vacated := make(map[string]bool)
	for _, ch := range changes {
		if ch.deleted {
			vacated[ch.rel] = true
		}
	}

	created := make(map[string]bool)
	synced := make(map[string]bool)
	applied := make(map[string]bool)
	for _, ch := range changes {
		if ch.deleted {
			if id, ok := g.RemoveNode(ch.rel); ok {
				out.Removed++
				p.audit.LogFileRemove(ctx, ch.rel, store.ID, id)
			}
			continue
		}
		if owner := g.NodeByID(ch.node.ID); owner != nil && owner.Path != ch.rel && owner.Path != "" &&
			!vacated[owner.Path] && p.exists(owner.Path) {
			out.Collisions = append(out.Collisions, Collision{Path: ch.rel, NodeID: ch.node.ID, Owner: owner.Path})
			p.logger.Warn("module id already taken", "graph", store.ID, "path", ch.rel, "id", ch.node.ID, "owner", owner.Path)
			continue
		}
		if prev := g.NodeByPath(ch.rel); prev != nil && prev.ID != ch.node.ID {
			g.RemoveNode(ch.rel)
		}
		if !g.HasNode(ch.node.ID) {
			created[ch.node.ID] = true
		}
		g.UpsertNode(merge(ch.node, g.NodeByID(ch.node.ID)))
		synced[ch.node.ID] = true
		applied[ch.rel] = true
		out.Upserted++
	}

	for _, ch := range changes {
		if !applied[ch.rel] {
			continue
		}
		res := depgraph.SyncEdges(g, ch.node.ID, ch.imports)
		out.EdgesAdded += res.Added
		out.EdgesRemoved += res.Removed
	}
	res := depgraph.ResyncImporters(g, created, synced)
	out.EdgesAdded += res.Added
	out.EdgesRemoved += res.Removed
	if cached {
		depgraph.RefreshAdjacency(g)
	}

	if out.Upserted == 0 && out.Removed == 0 && !(prune && missing) {
		out.Status = StatusUnchanged
		out.Nodes, out.Edges = len(g.Nodes), len(g.Edges)
		return out
	}

	p.metrics.RecordSync(store.ID, out.EdgesAdded, out.EdgesRemoved)
	if err := p.commit(ctx, g, path); err != nil {
		out.Status = StatusFailed
		var rej *rejectedError
		if errors.As(err, &rej) {
			out.Status = StatusRejected
			out.Violations = rej.violations
		}
		out.Error = err.Error()
		return out
	}
	out.Status = StatusCommitted
	out.Nodes, out.Edges = len(g.Nodes), len(g.Edges)
	return out
}

type rejectedError struct {
	graph      string
	violations []string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("%s: %d unrepaired violations", e.graph, len(e.violations))
}

func (e *rejectedError) Unwrap() error { return ErrRejected }

// commit validates g, repairs what can be repaired and writes it. A store whose
// fixable violations survive repair is not written.
func (p *Pipeline) commit(ctx context.Context, g *depgraph.Graph, path string) error {
	id := g.Metadata.GraphID
	start := time.Now()
	ctx, span := observability.StartValidateSpan(ctx, id)
	defer span.End()

	rep := depgraph.Validate(g)
	for _, v := range rep.Violations {
		p.metrics.Violations.WithLabelValues(id, string(v.Kind)).Inc()
	}
	found := len(rep.Violations)

	fixed := 0
	if rep.Fixable() {
		fr := depgraph.Fix(g)
		p.recordFix(id, fr)
		p.audit.LogValidateFix(ctx, id, fr.EdgesRemoved, fr.DependenciesPruned, fr.CountsFixed)
		fixed = found
		rep = depgraph.Validate(g)
		fixed -= len(rep.Violations)
	}
	observability.RecordValidateResult(span, found, fixed)

	if rep.Fixable() {
		var vs []string
		for _, v := range rep.Violations {
			vs = append(vs, v.String())
		}
		err := &rejectedError{graph: id, violations: vs}
		p.audit.LogStoreRejected(ctx, id, vs)
		p.metrics.RecordCommit(id, 0, 0, err)
		observability.RecordError(span, err)
		p.logger.Error("graph store rejected", "graph", id, "violations", len(vs))
		return err
	}
	for _, v := range rep.Violations {
		p.logger.Warn("integrity violation", "graph", id, "kind", v.Kind, "subject", v.Subject, "detail", v.Detail)
	}

	err := g.Save(path)
	p.metrics.RecordCommit(id, len(g.Nodes), len(g.Edges), err)
	p.audit.LogStoreCommit(ctx, id, len(g.Nodes), len(g.Edges), err)
	p.metrics.ObserveDuration("commit", start)
	if err != nil {
		observability.RecordError(span, err)
		p.logger.Error("graph store commit failed", "graph", id, "error", err)
		return err
	}
	p.logger.Info("graph store committed", "graph", id, "nodes", len(g.Nodes), "edges", len(g.Edges))

	for _, h := range p.hooks {
		if err := h.AfterCommit(ctx, g); err != nil {
			p.logger.Warn("post-commit hook failed", "graph", id, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) recordFix(graph string, fr depgraph.FixResult) {
	if fr.EdgesRemoved > 0 {
		p.metrics.ViolationsFixed.WithLabelValues(graph, string(depgraph.ViolationDanglingEdge)).Add(float64(fr.EdgesRemoved))
	}
	if fr.DependenciesPruned > 0 {
		p.metrics.ViolationsFixed.WithLabelValues(graph, string(depgraph.ViolationDanglingDependency)).Add(float64(fr.DependenciesPruned))
	}
	if fr.CountsFixed {
		p.metrics.ViolationsFixed.WithLabelValues(graph, string(depgraph.ViolationCountDrift)).Inc()
	}
}
