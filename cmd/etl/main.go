package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/config"
	"github.com/Jyllands-Posten/solrprocessors/internal/etl"
	"github.com/Jyllands-Posten/solrprocessors/internal/logger"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, Parquet, or JSON lines)")
		outputFile = flag.String("output", "", "Output file (JSON lines or Parquet)")
		batchSize  = flag.Int("batch-size", 0, "Batch size for processing (default from config)")
		workers    = flag.Int("workers", 0, "Number of worker goroutines (default from config)")
		skipCache  = flag.Bool("skip-cache", false, "Skip updating Redis cache")
		skipStore  = flag.Bool("skip-store", false, "Skip writing to the document store")
		dryRun     = flag.Bool("dry-run", false, "Dry run - process but write nothing")
		clearCache = flag.Bool("clear-cache", false, "Remove all cached results and exit")
		showStats  = flag.Bool("stats", false, "Show store and cache statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*showStats && !*clearCache {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input articles.csv --output articles.jsonl\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input articles.parquet --output clean.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --stats\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting solrproc ETL pipeline", zap.String("config", *configPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	withStore := cfg.Store.Enabled && (*showStats || (!*skipStore && !*dryRun))
	withCache := cfg.Cache.Enabled && (*showStats || *clearCache || (!*skipCache && !*dryRun))

	services, err := initializeServices(cfg, withStore, withCache, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.cleanup()

	switch {
	case *showStats:
		if err := showDatabaseStats(ctx, services); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	case *clearCache:
		if services.resultCache == nil {
			log.Fatal("Result cache is not enabled")
		}
		if err := services.resultCache.Clear(ctx); err != nil {
			log.Fatal("Failed to clear cache", zap.Error(err))
		}
	default:
		etlConfig := &etl.Config{
			BatchSize:      cfg.ETL.BatchSize,
			WorkerCount:    cfg.ETL.WorkerCount,
			ProgressReport: cfg.ETL.ProgressReport,
			IDField:        cfg.ETL.IDField,
			SkipCache:      *skipCache,
			SkipStore:      *skipStore,
			DryRun:         *dryRun,
		}
		if *batchSize > 0 {
			etlConfig.BatchSize = *batchSize
		}
		if *workers > 0 {
			etlConfig.WorkerCount = *workers
		}

		if err := processDataset(ctx, cfg, services, etlConfig, *inputFile, *outputFile, log); err != nil {
			log.Fatal("ETL processing failed", zap.Error(err))
		}
	}

	log.Info("ETL pipeline completed successfully")
}

// services holds all initialized services
type services struct {
	docStore    *store.Store
	resultCache *cache.ResultCache
}

func (s *services) cleanup() {
	if s.docStore != nil {
		s.docStore.Close()
	}
	if s.resultCache != nil {
		s.resultCache.Close()
	}
}

// initializeServices connects to the store and cache when they are needed
func initializeServices(cfg *config.Config, withStore, withCache bool, log *logger.Logger) (*services, error) {
	services := &services{}

	if withStore {
		log.Info("Initializing document store...")
		docStore, err := store.NewStore(&cfg.Store, log.WithComponent("store").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize document store: %w", err)
		}
		services.docStore = docStore
	}

	if withCache {
		log.Info("Initializing result cache...")
		resultCache, err := cache.NewResultCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			services.cleanup()
			return nil, fmt.Errorf("failed to initialize result cache: %w", err)
		}
		services.resultCache = resultCache
	}

	return services, nil
}

// processDataset processes the input dataset file
func processDataset(ctx context.Context, cfg *config.Config, services *services, etlConfig *etl.Config, inputFile, outputFile string, log *logger.Logger) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	processor, err := pipeline.Build(cfg.Processors, log.WithComponent("pipeline").Logger)
	if err != nil {
		return fmt.Errorf("failed to build processor pipeline: %w", err)
	}

	// Typed nils must not reach the pipeline as non-nil interfaces.
	var docStore etl.DocumentStore
	if services.docStore != nil {
		docStore = services.docStore
	}
	var resultCache etl.ResultCache
	if services.resultCache != nil {
		resultCache = services.resultCache
	}

	p, err := etl.NewPipeline(processor, docStore, resultCache, etlConfig, log.WithComponent("etl").Logger)
	if err != nil {
		return err
	}
	defer p.Release()

	result, err := p.ProcessFile(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("pipeline processing failed: %w", err)
	}

	rate := 0.0
	if secs := result.Duration.Seconds(); secs > 0 {
		rate = float64(result.TotalRecords) / secs
	}

	log.Info("Dataset processing completed",
		zap.String("input", inputFile),
		zap.String("output", outputFile),
		zap.Int64("total_records", result.TotalRecords),
		zap.Int64("processed_ok", result.ProcessedOK),
		zap.Int64("processed_failed", result.ProcessedFailed),
		zap.Int64("modified", result.Modified),
		zap.Int64("duplicates", result.Duplicates),
		zap.Duration("total_duration", result.Duration),
		zap.Duration("processing_time", result.ProcessingTime),
		zap.Duration("database_time", result.DatabaseTime),
		zap.Duration("cache_time", result.CacheTime),
		zap.Float64("records_per_second", rate))

	if len(result.Errors) > 0 {
		log.Warn("Processing completed with errors", zap.Strings("errors", result.Errors))
	}

	return nil
}

// showDatabaseStats displays store and cache statistics
func showDatabaseStats(ctx context.Context, services *services) error {
	if services.docStore == nil && services.resultCache == nil {
		return fmt.Errorf("neither store nor cache is enabled")
	}

	if services.docStore != nil {
		stats, err := services.docStore.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get database stats: %w", err)
		}

		modifiedPct := 0.0
		if stats.TotalDocuments > 0 {
			modifiedPct = float64(stats.ModifiedDocuments) / float64(stats.TotalDocuments) * 100
		}

		fmt.Printf("\n=== Processed Document Statistics ===\n")
		fmt.Printf("Total Documents:    %d\n", stats.TotalDocuments)
		fmt.Printf("Modified Documents: %d (%.1f%%)\n", stats.ModifiedDocuments, modifiedPct)
		fmt.Printf("Pipelines:          %d\n", stats.Pipelines)
		if stats.LastStoredAt != nil {
			fmt.Printf("Last Stored:        %s\n", stats.LastStoredAt.Format("2006-01-02 15:04:05"))
		}
	}

	if services.resultCache != nil {
		cacheStats, err := services.resultCache.GetStats(ctx)
		if err == nil {
			fmt.Printf("\n=== Cache Statistics ===\n")
			fmt.Printf("Total Keys:         %d\n", cacheStats.TotalKeys)
			fmt.Printf("Memory Usage:       %.2f MB\n", float64(cacheStats.MemoryUsage)/1024/1024)
		}
	}

	return nil
}
