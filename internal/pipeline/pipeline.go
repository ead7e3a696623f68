// Package pipeline is the mutation surface: it turns file changes into Graph
// Store updates, validating every store before it is committed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/resolver"
)

// ErrRejected is returned when a store still has fixable violations after
// repair and is therefore not written.
var ErrRejected = errors.New("store failed validation")

// CommitHook runs after a store has been written. Hook errors are logged and
// never undo the commit.
type CommitHook interface {
	AfterCommit(ctx context.Context, g *depgraph.Graph) error
}

// Pipeline wires the Hash Store, Module Analyzer, Import Resolver and Graph
// Stores together. All store writes go through one lock per store file.
type Pipeline struct {
	cfg      *config.Config
	root     string
	analyzer *analyzer.Analyzer
	resolver *resolver.Resolver
	hashes   *hashstore.Store
	locks    *depgraph.Locks
	logger   *slog.Logger
	metrics  *observability.Metrics
	audit    *observability.AuditLogger
	hooks    []CommitHook
	workers  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithAudit sets the mutation journal.
func WithAudit(a *observability.AuditLogger) Option { return func(p *Pipeline) { p.audit = a } }

// WithHooks appends post-commit hooks.
func WithHooks(h ...CommitHook) Option { return func(p *Pipeline) { p.hooks = append(p.hooks, h...) } }

// WithLocks shares a lock registry with other writers in the process.
func WithLocks(l *depgraph.Locks) Option { return func(p *Pipeline) { p.locks = l } }

// WithWorkers bounds parallel analysis and per-store work.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// New creates a Pipeline for cfg.
func New(cfg *config.Config, an *analyzer.Analyzer, hashes *hashstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		root:     cfg.RootDir(),
		analyzer: an,
		resolver: resolver.New(cfg.Project.Namespaces),
		hashes:   hashes,
		locks:    depgraph.NewLocks(),
		logger:   slog.Default(),
		audit:    &observability.AuditLogger{},
		workers:  runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observability.Default()
	}
	return p
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// Hashes returns the Hash Store.
func (p *Pipeline) Hashes() *hashstore.Store { return p.hashes }

// Locks returns the store lock registry.
func (p *Pipeline) Locks() *depgraph.Locks { return p.locks }

// relPath normalizes path to a slash-separated path relative to the project root.
func (p *Pipeline) relPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return "", fmt.Errorf("relativize %s: %w", path, err)
		}
		path = rel
	}
	rel := filepath.ToSlash(filepath.Clean(path))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside the project root", path)
	}
	return rel, nil
}

func (p *Pipeline) abs(rel string) string {
	return filepath.Join(p.root, filepath.FromSlash(rel))
}
