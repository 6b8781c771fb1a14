package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/opscart/rds-idle-manager/pkg/api"
	"github.com/opscart/rds-idle-manager/pkg/config"
	"github.com/opscart/rds-idle-manager/pkg/datasource"
	"github.com/opscart/rds-idle-manager/pkg/metrics"
	"github.com/opscart/rds-idle-manager/pkg/orchestrator"
	awsprovider "github.com/opscart/rds-idle-manager/pkg/provider/aws"
	"github.com/opscart/rds-idle-manager/pkg/reporter"
	"github.com/opscart/rds-idle-manager/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool

	// Sweep flags
	outputFormat string
	saveResults  bool

	// History flags
	historyLimit int

	cfg   *config.Config
	store storage.Store
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rds-idle-manager",
		Short: "Stop idle RDS instances and Aurora clusters",
		Long:  `Sweeps tagged RDS resources, stops the ones whose recent activity is below the idle thresholds, and exposes an on-demand start for stopped resources.`,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML config file overlaying environment settings")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one idle evaluation pass over the fleet",
		Run:   runSweep,
	}
	sweepCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json")
	sweepCmd.Flags().BoolVar(&saveResults, "save", false, "Save the sweep report to the database")

	startCmd := &cobra.Command{
		Use:   "start <resource>",
		Short: "Start a stopped instance, or a cluster with the cluster: prefix",
		Args:  cobra.ExactArgs(1),
		Run:   runStart,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled sweeps",
		Run:   runServe,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View recent persisted sweeps",
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of sweeps to show")

	auditCmd := &cobra.Command{
		Use:   "audit <sweep-id>",
		Short: "View the full action log of one persisted sweep",
		Args:  cobra.ExactArgs(1),
		Run:   runAudit,
	}

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() error {
	cfg = config.NewConfig()
	if configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg.Validate()
}

func initStorage() error {
	if !cfg.StorageEnabled && !saveResults {
		return nil
	}

	var err error
	store, err = storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	return nil
}

func initStorageForced() error {
	var err error
	store, err = storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	return nil
}

// buildOrchestrator wires the AWS collaborators, swapping in the
// Prometheus metric source when configured and reachable.
func buildOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, error) {
	client, err := awsprovider.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var metricSource orchestrator.MetricSource = client
	if cfg.MetricsBackend == "prometheus" {
		prom, err := datasource.NewPrometheusSource(cfg.PrometheusURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Prometheus source: %w", err)
		}
		if prom.IsAvailable(ctx) {
			fmt.Printf("[INFO] Using Prometheus metrics at %s\n", cfg.PrometheusURL)
			metricSource = prom
		} else {
			fmt.Printf("[WARN] Prometheus not reachable at %s, falling back to CloudWatch\n", cfg.PrometheusURL)
		}
	}

	return orchestrator.New(client, client, metricSource, client, client, cfg), nil
}

func runSweep(cmd *cobra.Command, args []string) {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if outputFormat != "text" && outputFormat != "json" {
		fmt.Fprintln(os.Stderr, "Error: output must be text or json")
		os.Exit(1)
	}

	if saveResults {
		if err := initStorage(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ctx := context.Background()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing provider: %v\n", err)
		os.Exit(1)
	}

	if outputFormat != "json" {
		fmt.Printf("[INFO] Starting sweep (lookback cap %d minutes, concurrency %d)\n",
			cfg.LookbackMinutes, cfg.SweepConcurrency)
	}

	report := orch.Sweep(ctx)
	metrics.ObserveSweep(report)

	if saveResults && store != nil {
		if err := store.SaveSweep(ctx, report); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to save sweep: %v\n", err)
		} else if outputFormat != "json" {
			fmt.Printf("[INFO] Saved sweep %s\n", report.ID)
		}
	}

	if err := reporter.Write(os.Stdout, report, reporter.Format(outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing provider: %v\n", err)
		os.Exit(1)
	}

	result := orch.Start(ctx, args[0])
	metrics.ObserveStart(result)

	fmt.Println(result.Message)
	if !result.OK() {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.StorageEnabled {
		if err := initStorageForced(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	ctx := context.Background()

	orch, err := buildOrchestrator(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing provider: %v\n", err)
		os.Exit(1)
	}

	if cfg.SweepInterval > 0 {
		go runScheduledSweeps(ctx, orch)
		fmt.Printf("[INFO] Scheduled sweeps every %s\n", cfg.SweepInterval)
	}

	mux := api.NewHTTPMux(orch, store)
	fmt.Printf("[INFO] Listening on %s\n", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runScheduledSweeps(ctx context.Context, orch *orchestrator.Orchestrator) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		report := orch.Sweep(ctx)
		metrics.ObserveSweep(report)

		for _, action := range report.Actions() {
			fmt.Printf("[INFO] %s\n", action)
		}

		if store != nil {
			if err := store.SaveSweep(ctx, report); err != nil {
				fmt.Printf("[WARN] Failed to save sweep %s: %v\n", report.ID, err)
			}
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := initStorageForced(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	sweeps, err := store.ListSweeps(ctx, historyLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(sweeps) == 0 {
		fmt.Println("No sweeps recorded")
		return
	}

	fmt.Println("Recent sweeps:")
	for i, sweep := range sweeps {
		fmt.Printf("%d. %s\n", i+1, sweep.ID)
		fmt.Printf("   Started: %s\n", sweep.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("   Duration: %s\n", sweep.FinishedAt.Sub(sweep.StartedAt).Round(time.Millisecond))
		fmt.Println()
	}
}

func runAudit(cmd *cobra.Command, args []string) {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := initStorageForced(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	sweep, err := store.GetSweep(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := reporter.Write(os.Stdout, sweep, reporter.FormatText); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
