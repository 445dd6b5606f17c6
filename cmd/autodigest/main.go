package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "autodigest",
		Short:         "Daily digest of AI coding papers and repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(runCmd())
	root.AddCommand(collectCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(daemonCmd())

	return root
}

func runCmd() *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), date, dryRun)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "target date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "generate reports without sending")
	return cmd
}

func collectCmd() *cobra.Command {
	var (
		sources    []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Fetch, clean and store items without summarizing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), sources, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVar(&sources, "source", nil, "specific sources to collect (arxiv,github)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func reportCmd() *cobra.Command {
	var (
		runID      string
		minScore   float64
		limit      int
		jsonOutput bool
		explain    bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show stored summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), runID, minScore, limit, jsonOutput, explain)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run id (default: latest run)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "minimum final score")
	cmd.Flags().IntVar(&limit, "limit", 20, "max summaries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&explain, "explain", false, "show the weighted score breakdown")
	return cmd
}

func sendCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Re-send the latest generated reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), date)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "report date to send (default: latest)")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func daemonCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Start scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
