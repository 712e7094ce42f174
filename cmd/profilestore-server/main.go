// Package main provides the profilestore-server binary: the profiling
// backend's ingestion RPC, query RPC, debuginfo RPCs, and background
// ingester flush loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/profilestore/internal/config"
	"github.com/coral-mesh/profilestore/internal/dal"
	"github.com/coral-mesh/profilestore/internal/debuginfo"
	"github.com/coral-mesh/profilestore/internal/debuginfod"
	"github.com/coral-mesh/profilestore/internal/ingester"
	"github.com/coral-mesh/profilestore/internal/logging"
	"github.com/coral-mesh/profilestore/internal/metastore"
	"github.com/coral-mesh/profilestore/internal/objectstore"
	"github.com/coral-mesh/profilestore/internal/resolver"
	"github.com/coral-mesh/profilestore/internal/rpc"
	"github.com/coral-mesh/profilestore/internal/symbolizer"
	"github.com/coral-mesh/profilestore/pkg/version"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "profilestore-server",
		Short:         "Continuous profiling backend: ingestion, query, and debuginfo RPCs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env and defaults apply regardless)")
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("profilestore-server version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

func runServer(configPath string) error {
	loader := config.NewLayeredLoader()
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logCfg := logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty}
	logger := logging.New(logCfg)

	store, err := buildObjectStore(cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}

	ig := ingester.New(store, cfg.Ingester.MaxBufferRows, logging.NewWithComponent(logCfg, "ingester"))
	d := dal.New(store, "", cfg.DAL.MaxCacheStaleDuration)

	metadata := metastore.New(cfg.Debuginfo.MetadataCacheCapacity)
	debugClient := debuginfod.New(cfg.Debuginfo.DebuginfodServers, logging.NewWithComponent(logCfg, "debuginfod"))
	fetcher := debuginfo.NewFetcher(store, debugClient)
	cache := symbolizer.NewCache(cfg.Symbolizer.CacheCapacity)
	r := resolver.New(metadata, fetcher, cache, logging.NewWithComponent(logCfg, "resolver"))
	uploads := debuginfo.New(metadata, debugClient, store, cfg.Debuginfo.MaxUploadSize, cfg.Debuginfo.MaxUploadDuration, logging.NewWithComponent(logCfg, "debuginfo"))

	svc := &rpc.Service{
		Ingester: ig,
		DAL:      d,
		Resolver: r,
		Uploads:  uploads,
		Logger:   logging.NewWithComponent(logCfg, "rpc"),
	}

	server := rpc.New(cfg.Listen.Address, svc, logger)
	server.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ig.Flush(shutdownCtx)
	ig.Wait()

	return server.Stop(shutdownCtx)
}

func buildObjectStore(cfg config.ObjectStoreConfig) (objectstore.Store, error) {
	switch cfg.Backend {
	case "s3":
		return objectstore.NewS3(context.Background(), cfg.Region, cfg.Bucket)
	default:
		return objectstore.NewLocal(cfg.Prefix)
	}
}
