package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openaviary/birdfeed/internal/pipeline"
	"github.com/openaviary/birdfeed/pkg/clients"
	"github.com/openaviary/birdfeed/pkg/config"
	"github.com/openaviary/birdfeed/pkg/ebird"
	"github.com/openaviary/birdfeed/pkg/logger"
	"github.com/openaviary/birdfeed/pkg/store"
)

var version = "0.1.0"

func main() {
	// Load .env if present; deployments commonly keep EBIRD_API_TOKEN there.
	_ = godotenv.Load()

	var (
		configFile   string
		databaseURL  string
		dataset      string
		lookbackDays int
		maxResults   int
		logLevel     string
	)

	root := &cobra.Command{
		Use:   "birdfeed",
		Short: "birdfeed - eBird API ingestion engine",
		Long: `birdfeed ingests bird observation data from the eBird API into a SQL
analytical store using declarative per-resource extraction rules.`,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional)")
	root.PersistentFlags().StringVar(&databaseURL, "database", "", "Destination database (SQLite path or postgres:// DSN)")
	root.PersistentFlags().StringVar(&dataset, "dataset", "", "Dataset name prefix for destination tables")
	root.PersistentFlags().IntVar(&lookbackDays, "days-back", 0, "Number of days to look back for observations")
	root.PersistentFlags().IntVar(&maxResults, "max-results", 0, "Maximum results per endpoint")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}
		if dataset != "" {
			cfg.Dataset = dataset
		}
		if lookbackDays > 0 {
			cfg.LookbackDays = lookbackDays
		}
		if maxResults > 0 {
			cfg.MaxResults = maxResults
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := logger.Init(logger.Config{Level: cfg.LogLevel, Encoding: "console"}); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("birdfeed v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	var region string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest all resources for a single region",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if region == "" && len(cfg.Regions) > 0 {
				region = cfg.Regions[0]
			}
			return runRegions(cmd.Context(), cfg, []string{region})
		},
	}
	runCmd.Flags().StringVarP(&region, "region", "r", "", "Region code (country, state, or county), e.g. US-CA")
	root.AddCommand(runCmd)

	var regions []string
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Ingest all resources for multiple regions, in order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(regions) == 0 {
				regions = cfg.Regions
			}
			return runRegions(cmd.Context(), cfg, regions)
		},
	}
	batchCmd.Flags().StringSliceVar(&regions, "regions", nil, "Region codes in execution order, e.g. US-CA,US-NY")
	root.AddCommand(batchCmd)

	tablesCmd := &cobra.Command{
		Use:   "tables",
		Short: "List destination tables with row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cmd.Context(), cfg.DatabaseURL, cfg.Dataset, logger.Get())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			infos, err := st.Tables(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Tables in dataset %s:\n", cfg.Dataset)
			for _, info := range infos {
				fmt.Printf("  - %s: %d rows\n", info.Name, info.Rows)
			}
			return nil
		},
	}
	root.AddCommand(tablesCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runRegions wires the engine together and executes a batch, printing a
// human-readable summary alongside the structured logs.
func runRegions(ctx context.Context, cfg *config.Config, regions []string) error {
	log := logger.Get()
	defer func() { _ = logger.Sync() }()

	client := clients.NewAPIClient(clients.APIConfig{
		BaseURL:   cfg.APIBaseURL,
		Token:     cfg.APIToken,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimitPerSec,
		RateBurst: cfg.RateBurst,
	}, log)

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.Dataset, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	source := ebird.NewSource(client, log)
	engine := pipeline.New(client, source.Resources(), st, pipeline.Options{
		LookbackDays: cfg.LookbackDays,
		MaxResults:   cfg.MaxResults,
	}, log)

	start := time.Now()
	batch, err := engine.RunBatch(ctx, regions)
	if batch != nil {
		printBatchSummary(cfg, batch)
	}
	if err != nil {
		return err
	}

	log.Info("done", zap.Duration("total_duration", time.Since(start)))
	return nil
}

func printBatchSummary(cfg *config.Config, batch *pipeline.BatchResult) {
	for _, outcome := range batch.Outcomes {
		fmt.Printf("\nRegion %s: %s\n", outcome.Region, outcome.State)
		if outcome.Result == nil {
			if outcome.Err != nil {
				fmt.Printf("  error: %v\n", outcome.Err)
			}
			continue
		}
		for _, res := range outcome.Result.Resources {
			status := fmt.Sprintf("%d rows", res.Rows)
			if res.Err != "" {
				status += " (failed: " + res.Err + ")"
			}
			fmt.Printf("  - %s: %s\n", res.Resource, status)
		}

		tables := make([]string, 0, len(outcome.Result.TableCounts))
		for name := range outcome.Result.TableCounts {
			tables = append(tables, name)
		}
		sort.Strings(tables)
		fmt.Printf("  Tables in dataset %s:\n", cfg.Dataset)
		for _, name := range tables {
			fmt.Printf("    - %s: %d rows\n", name, outcome.Result.TableCounts[name])
		}
	}

	fmt.Printf("\nSummary: %d/%d regions loaded successfully in %s\n",
		batch.SucceededCount, batch.TotalCount, batch.Duration.Round(time.Millisecond))
}
