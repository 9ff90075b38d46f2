package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cognicore/eurovoc/internal/app"
	"github.com/cognicore/eurovoc/pkg/eurovoc/config"
)

var (
	// Version is injected at build time
	Version = "dev"
	// ProgramName is injected at build time
	ProgramName = "eurovoc-miner"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, programName string, args []string) error {
	rootCmd := &cobra.Command{
		Use:   programName + " [output-prefix]",
		Short: "EUR-Lex Eurovoc miner",
		Long: "Mines daily legislative documents from the Cellar SPARQL endpoint, " +
			"tags them with Eurovoc concepts and writes one CSV file per date window.",
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.RunWithDeps(ctx, app.DefaultRunParams(), cmd.Flags(), args)
		},
	}
	rootCmd.SetVersionTemplate(`{{.Version}}
`)
	config.RegisterFlags(rootCmd.Flags())

	var limit int
	auditCmd := &cobra.Command{
		Use:   "audit [output-prefix]",
		Short: "Report calendar days without an output file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunAudit(cmd.OutOrStdout(), config.LoadSettings, cmd.Flags(), args, limit)
		},
	}
	auditCmd.Flags().String("config", "", "path to a YAML settings file")
	auditCmd.Flags().String("output-dir", "files", "directory holding output artifacts")
	auditCmd.Flags().IntVar(&limit, "limit", 20, "missing days to list (0 = all)")
	rootCmd.AddCommand(auditCmd)

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}
