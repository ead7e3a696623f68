package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/efebarandurmaz/codegraph/internal/depgraph"
	"github.com/efebarandurmaz/codegraph/internal/impact"
	"github.com/efebarandurmaz/codegraph/internal/query"
)

func recommendCmd(a *app) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "recommend <task>...",
		Short: "Pick the graph most relevant to a task description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			task := strings.Join(args, " ")
			svc := a.query()
			if domain != "" {
				rec, err := svc.RecommendSubGraph(ctx, domain, task)
				if err != nil {
					return err
				}
				return a.emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
					fmt.Fprintf(w, "%s/%s (score %d%s)\n", domain, rec.SubGraphID, rec.Score, fallbackNote(rec.Fallback))
				})
			}
			rec, err := svc.Recommend(ctx, task)
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "%s (score %d%s)\n", rec.GraphID, rec.Score, fallbackNote(rec.Fallback))
			})
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Recommend a sub-graph within this hierarchical domain")
	return cmd
}

func fallbackNote(fallback bool) string {
	if fallback {
		return ", fallback"
	}
	return ""
}

func depsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <graph> <node>",
		Short: "List the modules a node imports",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := a.query().FindDependencies(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), ids, printIDs(ids))
		},
	}
}

func dependentsCmd(a *app) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "dependents <graph> <node>",
		Short: "List the modules that import a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var ids []string
			var err error
			if remote {
				repo, rerr := a.neo4j(ctx)
				if rerr != nil {
					return rerr
				}
				ids, err = repo.QueryDependents(ctx, args[0], args[1])
			} else {
				ids, err = a.query().FindDependents(ctx, args[0], args[1])
			}
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), ids, printIDs(ids))
		},
	}
	cmd.Flags().BoolVar(&remote, "neo4j", false, "Answer from the Neo4j mirror instead of the store file")
	return cmd
}

func printIDs(ids []string) func(io.Writer) {
	return func(w io.Writer) {
		if len(ids) == 0 {
			fmt.Fprintln(w, "(none)")
			return
		}
		for _, id := range ids {
			fmt.Fprintln(w, id)
		}
	}
}

func impactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <graph> <node>",
		Short: "Estimate the blast radius of changing a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.query().ImpactAnalysis(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { printImpact(w, rep) })
		},
	}
}

func printImpact(w io.Writer, rep impact.Report) {
	fmt.Fprintf(w, "Node:        %s (%s)\n", rep.NodeID, rep.Criticality)
	fmt.Fprintf(w, "Direct:      %d\n", len(rep.Direct))
	for _, id := range rep.Direct {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	fmt.Fprintf(w, "Transitive:  %d\n", len(rep.Transitive))
	fmt.Fprintf(w, "Risk:        %s\n", rep.Risk)
	for _, c := range []depgraph.Criticality{depgraph.CriticalityCritical, depgraph.CriticalityHigh, depgraph.CriticalityMedium, depgraph.CriticalityLow} {
		if n := rep.CriticalityBreakdown[c]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", c, n)
		}
	}
	fmt.Fprintln(w, rep.Recommendation)
}

func statusCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how far the graph stores have drifted from the working tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := a.query().Status(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.emit(cmd.OutOrStdout(), rep, func(w io.Writer) { printStatus(w, rep) }); err != nil {
				return err
			}
			if check && !rep.Fresh() {
				return fmt.Errorf("graph stores are stale (%d stale nodes)", rep.StaleCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Exit non-zero unless every store is fresh")
	return cmd
}

func printStatus(w io.Writer, rep query.StatusReport) {
	fmt.Fprintf(w, "Root: %s (%d hashed files)\n", rep.Root, rep.HashEntries)
	for _, s := range rep.Stores {
		switch {
		case s.Error != "":
			fmt.Fprintf(w, "  %-20s error: %s\n", s.GraphID, s.Error)
			continue
		case !s.Exists:
			fmt.Fprintf(w, "  %-20s missing\n", s.GraphID)
			continue
		}
		fmt.Fprintf(w, "  %-20s %d nodes, %d edges, %d violations, %d stale\n",
			s.GraphID, s.Nodes, s.Edges, s.Violations, len(s.Stale))
		for _, f := range s.Stale {
			fmt.Fprintf(w, "    %-9s %s\n", f.Reason, f.Path)
		}
	}
	if rep.Fresh() {
		fmt.Fprintln(w, "All stores fresh.")
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <graph>",
		Short: "Summarize node, edge and cycle metrics for a graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.query().LoadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s := depgraph.ComputeStats(g)
			return a.emit(cmd.OutOrStdout(), s, func(w io.Writer) {
				fmt.Fprint(w, depgraph.FormatStats(args[0], s))
			})
		},
	}
}

func exportCmd(a *app) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export <graph>",
		Short: "Render a graph as DOT, Mermaid or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := a.query().LoadGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var out string
			switch format {
			case "dot":
				out = depgraph.ExportDOT(g)
			case "mermaid":
				out = depgraph.ExportMermaid(g)
			case "json":
				data, err := depgraph.ExportJSON(g)
				if err != nil {
					return err
				}
				out = string(data) + "\n"
			default:
				return fmt.Errorf("unknown format %q (want dot, mermaid or json)", format)
			}
			if output == "" || output == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return err
			}
			a.logger.Info("graph exported", "graph", args[0], "format", format, "path", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "dot", "Output format: dot, mermaid or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
