package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/server"
	"github.com/efebarandurmaz/codegraph/internal/vector"
	"github.com/efebarandurmaz/codegraph/internal/watcher"
)

const version = "0.1.0"

func watchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Update graph stores as files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(cmd.Context())
			if err != nil {
				return err
			}
			sc, err := a.scanner(false)
			if err != nil {
				return err
			}

			sh := server.NewShutdownHandler(&server.ShutdownConfig{
				Timeout: 10 * time.Second,
				Signals: server.DefaultShutdownConfig().Signals,
				Logger:  a.logger,
			})
			ctx, cancel := sh.Context(cmd.Context())
			defer cancel()
			sh.Add(server.WatcherShutdownHook(cancel))
			sh.Start()

			handler := func(ctx context.Context, rel string) {
				res, err := p.UpdateForFile(ctx, rel, pipeline.UpdateOptions{})
				switch {
				case err != nil:
					a.logger.Error("update failed", "path", rel, "error", err)
				case res.Skipped || res.Ignored:
					a.logger.Debug("no change", "path", rel)
				default:
					a.logger.Info("file updated",
						"path", rel,
						"graphs", res.GraphsUpdated,
						"removed", res.Removed,
						"edges_added", res.EdgesAdded,
						"edges_removed", res.EdgesRemoved,
					)
				}
			}
			w, err := watcher.New(a.cfg.RootDir(), sc, handler,
				watcher.WithDebounce(time.Duration(a.cfg.Watch.DebounceMs)*time.Millisecond),
				watcher.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			runErr := w.Run(ctx)
			sh.Shutdown()
			sh.Wait()
			return runErr
		},
	}
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve graph queries, health probes and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			svc := a.query()

			health := server.NewHealthServer(version)
			health.RegisterCheck("graph_stores", server.GraphStoreHealthChecker(svc.Status))

			opts := []server.APIOption{
				server.WithHealth(health),
				server.WithMetricsHandler(a.metrics.Handler()),
				server.WithAPILogger(a.logger),
			}
			if a.index {
				ix, err := a.nodeIndex(ctx)
				if err != nil {
					return err
				}
				opts = append(opts, server.WithSearch(ix))
				health.RegisterCheck("qdrant", server.DependencyHealthChecker("qdrant", true, func(ctx context.Context) error {
					_, err := ix.Search(ctx, "health", 1)
					return err
				}))
			}
			if a.mirror {
				repo, err := a.neo4j(ctx)
				if err != nil {
					return err
				}
				health.RegisterCheck("neo4j", server.DependencyHealthChecker("neo4j", true, func(ctx context.Context) error {
					return repo.Ping(ctx)
				}))
			}

			gs := server.NewGracefulServer(health, &server.ShutdownConfig{
				Timeout: 30 * time.Second,
				Signals: server.DefaultShutdownConfig().Signals,
				Logger:  a.logger,
			})
			a.handOff(gs.Shutdown)

			a.logger.Info("serving", "addr", addr, "search", a.index, "mirror", a.mirror)
			return gs.Serve(addr, server.NewAPI(svc, opts...).Handler())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}

// handOff moves the app's closers onto sh so they run after the listener
// has drained.
func (a *app) handOff(sh *server.ShutdownHandler) {
	for i, c := range a.closers {
		sh.Add(server.BackendShutdownHook(fmt.Sprintf("backend-%d", i), c))
	}
	a.closers = nil
	if a.tracer != nil {
		sh.Add(server.TracingShutdownHook(a.tracer.Shutdown))
		a.tracer = nil
	}
	if a.audit != nil {
		sh.Add(server.AuditLoggerShutdownHook(a.audit.Close))
		a.audit = nil
	}
}

// storeIDs returns ids, or every configured store when ids is empty.
func storeIDs(cfg *config.Config, ids []string) []string {
	if len(ids) > 0 {
		return ids
	}
	out := make([]string, 0, len(cfg.Stores))
	for _, s := range cfg.Stores {
		out = append(out, s.ID)
	}
	return out
}

func mirrorCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mirror [store-id]...",
		Short: "Copy committed graph stores into Neo4j",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := a.neo4j(ctx)
			if err != nil {
				return err
			}
			svc := a.query()
			var errs []error
			for _, id := range storeIDs(a.cfg, args) {
				g, err := svc.LoadGraph(ctx, id)
				if err == nil {
					err = repo.StoreGraph(ctx, g)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: mirrored %d nodes, %d edges\n", id, len(g.Nodes), len(g.Edges))
			}
			return errors.Join(errs...)
		},
	}
}

func indexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index [store-id]...",
		Short: "Embed graph nodes into Qdrant for free-text search",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ix, err := a.nodeIndex(ctx)
			if err != nil {
				return err
			}
			svc := a.query()
			var errs []error
			for _, id := range storeIDs(a.cfg, args) {
				g, err := svc.LoadGraph(ctx, id)
				if err == nil {
					err = ix.IndexGraph(ctx, g)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", id, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: indexed %d nodes\n", id, len(g.Nodes))
			}
			return errors.Join(errs...)
		},
	}
}

func searchCmd(a *app) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <text>...",
		Short: "Find nodes whose name or description resembles text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ix, err := a.nodeIndex(ctx)
			if err != nil {
				return err
			}
			hits, err := ix.Search(ctx, strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), hits, func(w io.Writer) { printHits(w, hits) })
		},
	}
	cmd.Flags().IntVarP(&k, "limit", "k", 10, "Maximum number of hits")
	return cmd
}

func printHits(w io.Writer, hits []vector.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "(no matches)")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%.3f  %s/%s  %s\n", h.Score, h.GraphID, h.NodeID, h.Path)
	}
}
