package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/metrics"
	"github.com/efebarandurmaz/codegraph/internal/pipeline"
	temporalmod "github.com/efebarandurmaz/codegraph/internal/temporal"
)

func updateCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "update <path>...",
		Short: "Update the graph stores fed by one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			var results []pipeline.UpdateResult
			var errs []error
			for _, path := range args {
				res, err := p.UpdateForFile(ctx, path, pipeline.UpdateOptions{Force: force})
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", path, err))
				}
				results = append(results, res)
			}
			if err := a.emit(cmd.OutOrStdout(), results, func(w io.Writer) {
				for _, r := range results {
					printUpdate(w, r)
				}
			}); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-analyze even when the file digest is unchanged")
	return cmd
}

func printUpdate(w io.Writer, r pipeline.UpdateResult) {
	switch {
	case r.Ignored:
		fmt.Fprintf(w, "%s: not indexed\n", r.Path)
	case r.Skipped:
		fmt.Fprintf(w, "%s: unchanged\n", r.Path)
	case r.Removed:
		fmt.Fprintf(w, "%s: removed from %s\n", r.Path, strings.Join(r.GraphsUpdated, ", "))
	default:
		note := ""
		if r.ParseError {
			note = " (parse error)"
		}
		fmt.Fprintf(w, "%s: updated %s, +%d/-%d edges%s\n",
			r.Path, strings.Join(r.GraphsUpdated, ", "), r.EdgesAdded, r.EdgesRemoved, note)
	}
}

func sweepCmd(a *app) *cobra.Command {
	var tracked bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Update every changed file and drop nodes for deleted files",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files, err := a.files(ctx, tracked)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}

			report := metrics.New("sweep")
			res, err := p.Sweep(ctx, files)
			report.AddFiles(res.Files)
			report.AddStores(res.Stores)
			report.Aborted = res.Aborted
			report.Finish(err)
			return a.report(cmd.OutOrStdout(), report, err)
		},
	}
	cmd.Flags().BoolVar(&tracked, "tracked", false, "Only consider files tracked by git")
	return cmd
}

func initHashesCmd(a *app) *cobra.Command {
	var force, tracked bool
	cmd := &cobra.Command{
		Use:   "init-hashes",
		Short: "Record file digests without analyzing, so later sweeps see only real edits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files, err := a.files(ctx, tracked)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}
			res, err := p.InitHashCache(ctx, files, force)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), res, func(w io.Writer) {
				fmt.Fprintf(w, "Recorded %d, unchanged %d, pruned %d\n", res.Recorded, res.Unchanged, len(res.Pruned))
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Discard the existing cache first")
	cmd.Flags().BoolVar(&tracked, "tracked", false, "Only consider files tracked by git")
	return cmd
}

func regenerateCmd(a *app) *cobra.Command {
	var (
		store    string
		tracked  bool
		workflow bool
	)
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rebuild graph stores from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if workflow {
				return a.startRegenerateWorkflow(cmd, store)
			}
			files, err := a.files(ctx, tracked)
			if err != nil {
				return err
			}
			p, err := a.pipeline(ctx)
			if err != nil {
				return err
			}

			report := metrics.New("regenerate")
			if store != "" {
				out, err := p.RegenerateStore(ctx, store, files)
				report.AddStores([]pipeline.StoreOutcome{out})
				report.Finish(err)
				return a.report(cmd.OutOrStdout(), report, err)
			}
			res, err := p.RegenerateAll(ctx, files)
			report.AddFiles(res.Files)
			report.AddStores(res.Stores)
			report.Aborted = res.Aborted
			if err == nil && res.Committed() < len(res.Stores) {
				err = fmt.Errorf("%d of %d stores failed", len(res.Stores)-res.Committed(), len(res.Stores))
			}
			report.Finish(err)
			return a.report(cmd.OutOrStdout(), report, err)
		},
	}
	cmd.Flags().StringVar(&store, "store", "", "Rebuild only this store id")
	cmd.Flags().BoolVar(&tracked, "tracked", false, "Only consider files tracked by git")
	cmd.Flags().BoolVar(&workflow, "workflow", false, "Run as a Temporal workflow on the configured task queue")
	return cmd
}

func (a *app) startRegenerateWorkflow(cmd *cobra.Command, store string) error {
	ctx := cmd.Context()
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  a.cfg.Temporal.Host,
		Namespace: a.cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	input := temporalmod.RegenerateInput{}
	if store != "" {
		input.Stores = []string{store}
	}
	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		TaskQueue: a.cfg.Temporal.TaskQueue,
	}, temporalmod.RegenerateWorkflow, input)
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	a.logger.Info("regeneration workflow started", "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out temporalmod.RegenerateOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	report := metrics.New("regenerate (workflow)")
	report.AddStores(out.Stores)
	report.Files.Total = out.Files
	var failed error
	if len(out.Failed) > 0 {
		failed = fmt.Errorf("stores failed: %s", strings.Join(out.Failed, ", "))
	}
	report.Finish(failed)
	return a.report(cmd.OutOrStdout(), report, failed)
}

func validateCmd(a *app) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "validate [store-id]...",
		Short: "Check graph stores for integrity violations",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := a.storePaths(args)
			if err != nil {
				return err
			}
			reports := depgraph.ValidateAll(paths, fix)

			bad := 0
			for _, r := range reports {
				if r.Error != "" || !r.Report.OK() {
					bad++
				}
			}
			if err := a.emit(cmd.OutOrStdout(), reports, func(w io.Writer) {
				for _, r := range reports {
					printValidation(w, r)
				}
			}); err != nil {
				return err
			}
			if bad > 0 {
				return fmt.Errorf("%d store(s) have problems", bad)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Repair fixable violations and write the store back")
	return cmd
}

func printValidation(w io.Writer, r depgraph.StoreReport) {
	switch {
	case r.Error != "":
		fmt.Fprintf(w, "%s: %s\n", r.Path, r.Error)
		return
	case r.Report.OK():
		fmt.Fprintf(w, "%s: ok", r.Path)
	default:
		fmt.Fprintf(w, "%s: %d violation(s)", r.Path, len(r.Report.Violations))
	}
	if r.Fixed.Changed() {
		fmt.Fprintf(w, " (fixed: %d edges removed, %d adjacency ids pruned)", r.Fixed.EdgesRemoved, r.Fixed.DependenciesPruned)
	}
	fmt.Fprintln(w)
	for _, v := range r.Report.Violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}
}

// storePaths maps store ids to files. No ids means every configured store.
func (a *app) storePaths(ids []string) ([]string, error) {
	if len(ids) == 0 {
		paths := make([]string, 0, len(a.cfg.Stores))
		for _, s := range a.cfg.Stores {
			paths = append(paths, a.cfg.StorePath(s))
		}
		return paths, nil
	}
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		s, ok := a.cfg.Store(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", pipeline.ErrUnknownStore, id)
		}
		paths = append(paths, a.cfg.StorePath(s))
	}
	return paths, nil
}

// report prints a run report and passes err through.
func (a *app) report(w io.Writer, r *metrics.RunReport, err error) error {
	if a.jsonOut {
		data, jerr := r.JSON()
		if jerr != nil {
			return jerr
		}
		fmt.Fprintln(w, string(data))
	} else {
		r.PrintSummary(w)
	}
	return err
}
