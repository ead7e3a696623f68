package main

import (
	"context"
	"log"
	"os"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/codegraph/internal/analyzer"
	"github.com/efebarandurmaz/codegraph/internal/config"
	"github.com/efebarandurmaz/codegraph/internal/hashstore"
	"github.com/efebarandurmaz/codegraph/internal/observability"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	"github.com/efebarandurmaz/codegraph/internal/scan"
	"github.com/efebarandurmaz/codegraph/internal/server"
	temporalmod "github.com/efebarandurmaz/codegraph/internal/temporal"
)

func main() {
	configPath := "codegraph.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)

	audit, err := observability.NewAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Log.AuditPath != "",
		OutputPath: cfg.Log.AuditPath,
	})
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	hashes, err := hashstore.Open(cfg.RootDir(), cfg.HashCachePath())
	if err != nil {
		log.Fatalf("hash cache: %v", err)
	}
	sc, err := scan.New(cfg.RootDir(), cfg.Project.Ignore, scan.WithLogger(logger))
	if err != nil {
		log.Fatalf("scanner: %v", err)
	}
	p := pipeline.New(cfg, analyzer.New(cfg.Project.DescriptionMaxLen, logger), hashes,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(observability.Default()),
		pipeline.WithAudit(audit),
	)

	temporalmod.SetDependencies(&temporalmod.Dependencies{
		Pipeline: p,
		Files:    sc,
	})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}
	logger.Info("worker started", "task_queue", cfg.Temporal.TaskQueue)

	conf := server.DefaultShutdownConfig()
	conf.Logger = logger
	sh := server.NewShutdownHandler(conf)
	sh.Add(server.TemporalWorkerShutdownHook(w.Stop))
	sh.Add(server.AuditLoggerShutdownHook(audit.Close))
	sh.RegisterHook("log", 100, func(context.Context) error {
		logger.Info("worker stopped")
		return nil
	})
	sh.Start()
	sh.Wait()
}
