package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Jyllands-Posten/solrprocessors/internal/cache"
	"github.com/Jyllands-Posten/solrprocessors/internal/config"
	"github.com/Jyllands-Posten/solrprocessors/internal/logger"
	"github.com/Jyllands-Posten/solrprocessors/internal/pipeline"
	"github.com/Jyllands-Posten/solrprocessors/internal/server"
	"github.com/Jyllands-Posten/solrprocessors/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("solrproc %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()

	if *healthCheck {
		port := config.GetDefaults().Server.Port
		if err == nil {
			port = cfg.Server.Port
		}
		performHealthCheck(port)
		return
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(loggerConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting solrproc",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config", loader.ConfigFile()),
		zap.Int("port", cfg.Server.Port))

	p, err := pipeline.Build(cfg.Processors, log.WithComponent("pipeline").Logger)
	if err != nil {
		log.Fatal("Failed to build processor pipeline", zap.Error(err))
	}

	var opts []server.Option

	if cfg.Cache.Enabled {
		resultCache, err := cache.NewResultCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to initialize result cache", zap.Error(err))
		}
		defer resultCache.Close()
		opts = append(opts, server.WithCache(resultCache))
	}

	if cfg.Store.Enabled {
		docStore, err := store.NewStore(&cfg.Store, log.WithComponent("store").Logger)
		if err != nil {
			log.Fatal("Failed to initialize document store", zap.Error(err))
		}
		defer docStore.Close()
		opts = append(opts, server.WithStore(docStore))
	}

	server.Version = version
	srv := server.New(cfg, p, log, opts...)

	// Only the processor chain is hot reloaded; other sections need a restart.
	if loader.ConfigFile() != "" {
		loader.Watch(func(next *config.Config) {
			np, err := pipeline.Build(next.Processors, log.WithComponent("pipeline").Logger)
			if err != nil {
				srv.ReloadFailed(err)
				return
			}
			srv.SwapPipeline(np)
		}, srv.ReloadFailed)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
			os.Exit(1)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

func loggerConfig(cfg *config.Config) logger.Config {
	lc := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		lc.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}
	return lc
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
