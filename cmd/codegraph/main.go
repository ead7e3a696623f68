package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "codegraph",
		Short:         "Incremental code-dependency graphs for a source repository",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "codegraph.yaml", "Config file path")
	flags.StringVar(&a.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	flags.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")
	flags.BoolVar(&a.mirror, "mirror", false, "Mirror committed stores to Neo4j")
	flags.BoolVar(&a.index, "index", false, "Index committed stores in Qdrant")

	rootCmd.AddCommand(
		updateCmd(a),
		sweepCmd(a),
		initHashesCmd(a),
		regenerateCmd(a),
		validateCmd(a),
		recommendCmd(a),
		depsCmd(a),
		dependentsCmd(a),
		impactCmd(a),
		statusCmd(a),
		statsCmd(a),
		exportCmd(a),
		watchCmd(a),
		serveCmd(a),
		mirrorCmd(a),
		indexCmd(a),
		searchCmd(a),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
