// Package query is the read-only query surface over persisted Graph Stores and
// the Domain Router. Nothing here writes to disk.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/impact"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/router"
)

// Service answers queries against immutable snapshots of the stores. A
// snapshot is reloaded when its file's modification time or size changes.
// Returned graphs are shared and must not be modified.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	snapshots map[string]snapshot
}

type snapshot struct {
	modTime time.Time
	size    int64
	graph   *depgraph.Graph
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// New creates a query Service.
func New(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:       cfg,
		logger:    slog.Default(),
		snapshots: make(map[string]snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observability.Default()
	}
	return s
}

// load returns the snapshot of the store file at path.
func (s *Service) load(path string) (*depgraph.Graph, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	snap, ok := s.snapshots[path]
	s.mu.Unlock()
	if ok && snap.modTime.Equal(info.ModTime()) && snap.size == info.Size() {
		return snap.graph, nil
	}

	g, err := depgraph.Load(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.snapshots[path] = snapshot{modTime: info.ModTime(), size: info.Size(), graph: g}
	s.mu.Unlock()
	return g, nil
}

// Router loads the Domain Router. A missing router file yields an empty one
// with the configured fallback.
func (s *Service) Router() (*router.Router, error) {
	r, err := router.Load(s.cfg.RouterPath())
	if errors.Is(err, os.ErrNotExist) {
		r = &router.Router{}
	} else if err != nil {
		return nil, err
	}
	if s.cfg.Project.FallbackGraph != "" && r.Metadata.Fallback == "" {
		r.SetFallback(s.cfg.Project.FallbackGraph)
	}
	return r, nil
}

// graphPath finds the store file of graphID, preferring the router's entry
// over the configured store list.
func (s *Service) graphPath(graphID string) (string, error) {
	r, err := s.Router()
	if err != nil {
		return "", err
	}
	if path, err := r.GraphPath(graphID); err == nil {
		return path, nil
	}
	if st, ok := s.cfg.Store(graphID); ok {
		return s.cfg.StorePath(st), nil
	}
	return "", &NotFoundError{Kind: KindGraph, ID: graphID}
}

func (s *Service) loadGraph(graphID string) (*depgraph.Graph, error) {
	path, err := s.graphPath(graphID)
	if err != nil {
		return nil, err
	}
	g, err := s.load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Kind: KindGraph, ID: graphID}
	}
	if err != nil {
		return nil, fmt.Errorf("load graph %s: %w", graphID, err)
	}
	return g, nil
}

// observe ends span and counts the query.
func (s *Service) observe(op string, span trace.Span, err error) {
	observability.RecordError(span, err)
	span.End()
	s.metrics.RecordQuery(op, err)
	if err != nil && !IsNotFound(err) {
		s.logger.Warn("query failed", "operation", op, "error", err)
	}
}

// LoadGraph returns the snapshot of graphID.
func (s *Service) LoadGraph(ctx context.Context, graphID string) (g *depgraph.Graph, err error) {
	_, span := observability.StartQuerySpan(ctx, "load_graph", graphID)
	defer func() { s.observe("load_graph", span, err) }()
	return s.loadGraph(graphID)
}

// SubRouter loads the Sub-Router of a hierarchical domain.
func (s *Service) SubRouter(domainID string) (*router.SubRouter, error) {
	r, err := s.Router()
	if err != nil {
		return nil, err
	}
	if _, ok := r.Entry(domainID); !ok {
		if _, configured := s.cfg.Store(domainID); !configured {
			return nil, &NotFoundError{Kind: KindGraph, ID: domainID}
		}
	}
	path, err := r.SubRouterPath(domainID)
	if err != nil {
		return nil, &NotFoundError{Kind: KindSubGraph, ID: domainID, Graph: domainID}
	}
	sr, err := router.LoadSubRouter(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Kind: KindSubGraph, ID: domainID, Graph: domainID}
	}
	return sr, err
}

// LoadSubGraph returns the snapshot of sub-graph subID of domainID.
func (s *Service) LoadSubGraph(ctx context.Context, domainID, subID string) (g *depgraph.Graph, err error) {
	_, span := observability.StartQuerySpan(ctx, "load_sub_graph", domainID)
	defer func() { s.observe("load_sub_graph", span, err) }()

	sr, err := s.SubRouter(domainID)
	if err != nil {
		return nil, err
	}
	path, err := sr.SubGraphPath(subID)
	if err != nil {
		return nil, &NotFoundError{Kind: KindSubGraph, ID: subID, Graph: domainID}
	}
	g, err = s.load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Kind: KindSubGraph, ID: subID, Graph: domainID}
	}
	if err != nil {
		return nil, fmt.Errorf("load sub-graph %s/%s: %w", domainID, subID, err)
	}
	return g, nil
}

// Recommend picks the graph best suited to task.
func (s *Service) Recommend(ctx context.Context, task string) (rec router.Recommendation, err error) {
	_, span := observability.StartQuerySpan(ctx, "recommend", "")
	defer func() { s.observe("recommend", span, err) }()

	r, err := s.Router()
	if err != nil {
		return router.Recommendation{}, err
	}
	rec = r.Recommend(task)
	span.SetAttributes(attribute.String("recommend.graph", rec.GraphID), attribute.Int("recommend.score", rec.Score))
	return rec, nil
}

// RecommendSubGraph picks the sub-graph of domainID best suited to task.
func (s *Service) RecommendSubGraph(ctx context.Context, domainID, task string) (rec router.SubRecommendation, err error) {
	_, span := observability.StartQuerySpan(ctx, "recommend_sub_graph", domainID)
	defer func() { s.observe("recommend_sub_graph", span, err) }()

	sr, err := s.SubRouter(domainID)
	if err != nil {
		return router.SubRecommendation{}, err
	}
	rec, ok := sr.RecommendSubGraph(task)
	if !ok {
		return rec, &NotFoundError{Kind: KindSubGraph, ID: domainID, Graph: domainID}
	}
	return rec, nil
}

// CrossEdges lists the cross-graph edges of domainID touching subID, or all of
// them when subID is empty.
func (s *Service) CrossEdges(ctx context.Context, domainID, subID string) (edges []router.CrossEdge, err error) {
	_, span := observability.StartQuerySpan(ctx, "cross_edges", domainID)
	defer func() { s.observe("cross_edges", span, err) }()

	sr, err := s.SubRouter(domainID)
	if err != nil {
		return nil, err
	}
	if subID != "" {
		if _, ok := sr.SubGraph(subID); !ok {
			return nil, &NotFoundError{Kind: KindSubGraph, ID: subID, Graph: domainID}
		}
	}
	edges = sr.CrossEdges(subID)
	if edges == nil {
		edges = []router.CrossEdge{}
	}
	return edges, nil
}

// node loads graphID and checks that nodeID exists in it.
func (s *Service) node(graphID, nodeID string) (*depgraph.Graph, error) {
	g, err := s.loadGraph(graphID)
	if err != nil {
		return nil, err
	}
	if !g.HasNode(nodeID) {
		return nil, &NotFoundError{Kind: KindNode, ID: nodeID, Graph: graphID}
	}
	return g, nil
}

// FindDependencies returns what nodeID imports.
func (s *Service) FindDependencies(ctx context.Context, graphID, nodeID string) (ids []string, err error) {
	_, span := observability.StartQuerySpan(ctx, "find_dependencies", graphID)
	defer func() { s.observe("find_dependencies", span, err) }()

	g, err := s.node(graphID, nodeID)
	if err != nil {
		return nil, err
	}
	return impact.Dependencies(g, nodeID), nil
}

// FindDependents returns the nodes that import nodeID directly.
func (s *Service) FindDependents(ctx context.Context, graphID, nodeID string) (ids []string, err error) {
	_, span := observability.StartQuerySpan(ctx, "find_dependents", graphID)
	defer func() { s.observe("find_dependents", span, err) }()

	g, err := s.node(graphID, nodeID)
	if err != nil {
		return nil, err
	}
	return impact.DirectDependents(g, nodeID), nil
}

// ImpactAnalysis reports what a change to nodeID would affect.
func (s *Service) ImpactAnalysis(ctx context.Context, graphID, nodeID string) (rep impact.Report, err error) {
	_, span := observability.StartQuerySpan(ctx, "impact_analysis", graphID)
	defer func() { s.observe("impact_analysis", span, err) }()

	g, err := s.node(graphID, nodeID)
	if err != nil {
		return impact.Report{}, err
	}
	rep, err = impact.Analyze(g, nodeID)
	if err == nil {
		span.SetAttributes(attribute.String("impact.risk", string(rep.Risk)), attribute.Int("impact.total", rep.TotalImpact))
	}
	return rep, err
}
