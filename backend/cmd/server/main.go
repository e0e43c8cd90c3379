package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memory-mcp/backend/internal/graph"
	"memory-mcp/backend/internal/localgraph"
	"memory-mcp/backend/internal/tools"
	"memory-mcp/backend/internal/transport"
	"memory-mcp/backend/pkg/config"
	"memory-mcp/backend/pkg/logger"
)

// version is stamped at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "memory-mcp",
		Short:        "Knowledge graph memory served over the Model Context Protocol",
		Version:      version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, os.Stdin, os.Stdout)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// run serves the memory tools until ctx is cancelled
func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	if err := logger.Init(cfg.Env, logger.WithOutput(cfg.LogOutput), logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.Get()
	for _, warning := range cfg.Warnings {
		log.Warn(warning)
	}
	log.Info("Starting memory server",
		zap.String("version", version),
		zap.String("backend", cfg.Backend),
		zap.String("transport", cfg.Transport),
	)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Error("Failed to open graph backend", zap.Error(err))
		return err
	}
	defer backend.Close()

	if err := prepareSchema(ctx, backend); err != nil {
		log.Error("Failed to prepare graph schema", zap.Error(err))
		return err
	}

	executor := tools.NewExecutor(backend, cfg.Namespace)
	srv, err := transport.New(tools.NewServer(executor, version), transport.Options{
		Transport:    cfg.Transport,
		Host:         cfg.ServerHost,
		Port:         cfg.ServerPort,
		Path:         cfg.ServerPath,
		AllowOrigins: cfg.AllowOrigins,
		AllowedHosts: cfg.AllowedHosts,
		Production:   cfg.IsProduction(),
		Stdin:        stdin,
		Stdout:       stdout,
	})
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil {
		log.Error("Transport stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (graph.Backend, error) {
	opts := graph.Options{
		Database:         cfg.Database,
		WriteConcurrency: cfg.WriteConcurrency,
	}

	switch cfg.Backend {
	case "sqlite":
		return localgraph.Open(ctx, cfg.SQLitePath, opts)
	case "neo4j":
		driver, err := neo4j.NewDriverWithContext(
			cfg.DBURL,
			neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
		}

		repo := graph.NewRepository(driver, opts)
		if err := repo.VerifyConnectivity(ctx); err != nil {
			repo.Close()
			return nil, err
		}
		logger.Get().Info("Connected to Neo4j", zap.String("url", cfg.DBURL), zap.String("database", cfg.Database))
		return repo, nil
	}
	return nil, fmt.Errorf("unsupported backend: %q", cfg.Backend)
}

// prepareSchema creates the search index. A missing name constraint only
// weakens duplicate protection, so that failure is logged and ignored.
func prepareSchema(ctx context.Context, backend graph.IndexManager) error {
	log := logger.Get()
	if err := backend.CreateNameConstraint(ctx); err != nil {
		log.Warn("Failed to create name constraint", zap.Error(err))
	}
	if err := backend.CreateFulltextIndex(ctx); err != nil {
		return err
	}
	log.Info("Graph schema ready")
	return nil
}
