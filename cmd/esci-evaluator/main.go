// Package main provides the esci-evaluator binary: offline relevance
// evaluation runs plus an HTTP server exposing the same engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/R2-Decide/esci-evaluator/internal/config"
	"github.com/R2-Decide/esci-evaluator/internal/dataset"
	"github.com/R2-Decide/esci-evaluator/internal/evaluation"
	"github.com/R2-Decide/esci-evaluator/internal/pkg/logger"
	"github.com/R2-Decide/esci-evaluator/internal/qdrant"
	"github.com/R2-Decide/esci-evaluator/internal/report"
	"github.com/R2-Decide/esci-evaluator/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "esci-evaluator",
		Short: "ESCI Evaluator - search relevance benchmarking for eCommerce backends",
		Long: `ESCI Evaluator scores search backends against ESCI-graded ground truth.

Queries are replayed against a backend adapter, the ranked results are
graded with the Exact/Substitute/Complement/Irrelevant labels, and
NDCG, precision, recall, MRR and AP are aggregated into a report.

Examples:
  esci-evaluator evaluate --dataset ground_truth.json --results algolia_results.json
  esci-evaluator evaluate --dataset ground_truth.json --backend algolia --output report.json
  esci-evaluator serve --config config.yaml`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(newEvaluateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("esci-evaluator %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := appCfg.Log.Level
	if verbose {
		logLevel = "debug"
	}
	log := logger.New(logLevel, appCfg.Log.Format)

	return appCfg, log, nil
}

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one evaluation and print the report",
		RunE:  runEvaluate,
	}

	cmd.Flags().StringP("dataset", "d", "", "ground truth JSON file")
	cmd.Flags().StringP("backend", "b", "", "backend to evaluate (static, algolia, doofinder, shopify, r2decide)")
	cmd.Flags().String("results", "", "pre-captured results file for the static backend")
	cmd.Flags().IntSlice("ks", nil, "rank cutoffs, e.g. --ks 5,10,20")
	cmd.Flags().Float64("threshold", 0, "relevance threshold in (0,1]")
	cmd.Flags().Int("min-labels", -1, "drop queries with fewer labeled products")
	cmd.Flags().Int("workers", 0, "concurrent query evaluations")
	cmd.Flags().StringP("output", "o", "", "write the full report JSON to a file")
	cmd.Flags().Bool("save", false, "store the report in the Redis run history")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	appCfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Flag overrides
	if path, _ := cmd.Flags().GetString("dataset"); path != "" {
		appCfg.Dataset.Path = path
	}
	if name, _ := cmd.Flags().GetString("backend"); name != "" {
		appCfg.Backends.Default = name
	}
	if path, _ := cmd.Flags().GetString("results"); path != "" {
		appCfg.Backends.ResultsFile = path
	}
	if ks, _ := cmd.Flags().GetIntSlice("ks"); len(ks) > 0 {
		appCfg.Evaluation.Ks = ks
	}
	if threshold, _ := cmd.Flags().GetFloat64("threshold"); threshold > 0 {
		appCfg.Evaluation.Threshold = threshold
	}
	if minLabels, _ := cmd.Flags().GetInt("min-labels"); minLabels >= 0 {
		appCfg.Evaluation.MinLabels = minLabels
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		appCfg.Evaluation.Workers = workers
	}

	if appCfg.Dataset.Path == "" {
		return fmt.Errorf("a ground truth file is required (--dataset or config)")
	}

	ds, err := dataset.LoadFile(appCfg.Dataset.Path, log)
	if err != nil {
		return err
	}
	if appCfg.Dataset.Locale != "" {
		ds = ds.Filter(dataset.LocaleFilter(appCfg.Dataset.Locale))
	}
	if appCfg.Dataset.Category != "" {
		ds = ds.Filter(dataset.CategoryFilter(appCfg.Dataset.Category))
	}
	if appCfg.Evaluation.MinLabels > 0 {
		before := ds.Len()
		ds = ds.Filter(dataset.MinLabelFilter(appCfg.Evaluation.MinLabels))
		log.Info("filtered ground truth", "kept", ds.Len(), "dropped", before-ds.Len())
	}

	// Build the adapter for the selected backend
	var qc *qdrant.Client
	if appCfg.Backends.Default == "r2decide" {
		qc, err = qdrant.NewClient(qdrant.ClientConfig{
			Host:   appCfg.Qdrant.Host,
			Port:   appCfg.Qdrant.Port,
			APIKey: appCfg.Qdrant.APIKey,
			UseTLS: appCfg.Qdrant.UseTLS,
		})
		if err != nil {
			return err
		}
		defer qc.Close()
	}

	registry, err := server.NewRegistry(appCfg.Backends, qc)
	if err != nil {
		return err
	}
	adapter, err := registry.Resolve(appCfg.Backends.Default)
	if err != nil {
		return err
	}

	scorer, err := evaluation.NewScorer(
		appCfg.Weights.Weights(),
		appCfg.Evaluation.Ks,
		appCfg.Evaluation.Threshold,
	)
	if err != nil {
		return err
	}

	driver, err := evaluation.NewDriver(evaluation.DriverConfig{
		Workers:          appCfg.Evaluation.Workers,
		FailureThreshold: appCfg.Evaluation.FailureThreshold,
	}, scorer, adapter, nil, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, runErr := driver.Run(ctx, ds)

	if err := report.WriteSummary(os.Stdout, rep); err != nil {
		return err
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := report.WriteFile(output, rep); err != nil {
			return err
		}
		log.Info("report written", "path", output)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		history, err := report.NewHistory(appCfg.Redis.URL, appCfg.Redis.RetentionDays)
		if err != nil {
			return fmt.Errorf("run history unavailable: %w", err)
		}
		defer history.Close()

		if err := history.Save(cmd.Context(), rep); err != nil {
			return err
		}
		log.Info("report saved", "run_id", rep.RunID)
	}

	return runErr
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the evaluation HTTP server",
		RunE:  runServe,
	}

	cmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	cmd.Flags().String("host", "", "server host (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	appCfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		appCfg.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		appCfg.Host = host
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = appCfg.Host
	srvCfg.Port = appCfg.Port
	srvCfg.Version = version

	srv, err := server.New(srvCfg, appCfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
