package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/graph"
	"github.com/efebarandurmaz/codegraph/internal/graph/neo4j"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/query"
	"github.com/efebarandurmaz/codegraph/internal/scan"
	"github.com/efebarandurmaz/codegraph/internal/secrets"
	"github.com/efebarandurmaz/codegraph/internal/vector"
	"github.com/efebarandurmaz/codegraph/internal/vector/qdrant"
)

// app carries what every subcommand needs: configuration, logging, metrics,
// the audit journal and any backend connections opened along the way.
type app struct {
	configPath string
	logLevel   string
	jsonOut    bool
	mirror     bool
	index      bool

	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	audit   *observability.AuditLogger
	tracer  *observability.TracerProvider
	closers []func(ctx context.Context) error
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		if fileExists(a.configPath) {
			return err
		}
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	a.cfg = cfg

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	a.logger = observability.NewLogger(level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	a.metrics = observability.Default()

	a.audit, err = observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Log.AuditPath != "",
		OutputPath: cfg.Log.AuditPath,
	})
	if err != nil {
		return err
	}

	tc := observability.DefaultTracingConfig()
	tc.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tc.SampleRate = cfg.Tracing.SampleRate
	a.tracer, err = observability.InitTracing(ctx, tc)
	return err
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	errs = append(errs, a.audit.Close())
	return errors.Join(errs...)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (a *app) scanner(tracked bool) (*scan.Scanner, error) {
	opts := []scan.Option{scan.WithLogger(a.logger)}
	if tracked {
		opts = append(opts, scan.WithTrackedOnly())
	}
	return scan.New(a.cfg.RootDir(), a.cfg.Project.Ignore, opts...)
}

func (a *app) files(ctx context.Context, tracked bool) ([]string, error) {
	sc, err := a.scanner(tracked)
	if err != nil {
		return nil, err
	}
	return sc.Files(ctx)
}

// pipeline builds the mutation pipeline, attaching the Neo4j mirror and the
// Qdrant index as commit hooks when their flags are set.
func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	hashes, err := hashstore.Open(a.cfg.RootDir(), a.cfg.HashCachePath())
	if err != nil {
		return nil, err
	}

	var hooks []pipeline.CommitHook
	if a.mirror {
		repo, err := a.neo4j(ctx)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, graph.NewMirror(repo, a.logger))
	}
	if a.index {
		ix, err := a.nodeIndex(ctx)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, ix)
	}

	an := analyzer.New(a.cfg.Project.DescriptionMaxLen, a.logger)
	return pipeline.New(a.cfg, an, hashes,
		pipeline.WithLogger(a.logger),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithAudit(a.audit),
		pipeline.WithHooks(hooks...),
	), nil
}

func (a *app) query() *query.Service {
	return query.New(a.cfg, query.WithLogger(a.logger), query.WithMetrics(a.metrics))
}

func (a *app) neo4j(ctx context.Context) (*neo4j.Neo4jRepository, error) {
	g := a.cfg.Graph
	if g.URI == "" {
		return nil, errors.New("graph.uri is not configured")
	}
	sm, err := secrets.NewManager(&secrets.Config{Provider: a.cfg.Secrets.Provider, File: a.cfg.Secrets.File})
	if err != nil {
		return nil, err
	}
	user := sm.Resolve(ctx, g.Username, secrets.KeyNeo4jUsername)
	pass := sm.Resolve(ctx, g.Password, secrets.KeyNeo4jPassword)
	repo, err := neo4j.NewNeo4j(ctx, g.URI, user, pass)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, repo.Close)
	return repo, nil
}

func (a *app) nodeIndex(ctx context.Context) (*vector.NodeIndex, error) {
	v := a.cfg.Vector
	repo, err := qdrant.NewQdrant(ctx, v.Host, v.Port, v.Collection)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return repo.Close() })

	embedder := vector.NewHashEmbedder(v.Dimensions)
	if err := repo.EnsureCollection(ctx, embedder.Dimensions()); err != nil {
		return nil, err
	}
	return vector.NewNodeIndex(repo, embedder, a.logger), nil
}

// emit prints v as JSON under --json, otherwise through text.
func (a *app) emit(w io.Writer, v any, text func(io.Writer)) error {
	if a.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
