package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeplane/forgeplane/pkg/config"
	"github.com/forgeplane/forgeplane/pkg/server"
	"github.com/forgeplane/forgeplane/pkg/stack"
	"github.com/forgeplane/forgeplane/pkg/stores"
	"github.com/forgeplane/forgeplane/pkg/telemetry"
	"github.com/forgeplane/forgeplane/pkg/templates"
	"github.com/forgeplane/forgeplane/pkg/workflow"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the provisioning API server",
		Long: `Starts the HTTP API, the template registry with hot reload, the
workflow manager and the stack runner, and serves until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	tcfg := telemetry.DefaultConfig()
	tcfg.Environment = cfg.AppEnv
	tcfg.Logging.Level = cfg.AppLogLevel
	if verbose {
		tcfg.Logging.Level = "debug"
	}
	tcfg.Tracing.Enabled = cfg.TracingEnabled
	tcfg.Tracing.Exporter = cfg.TracingExporter
	tcfg.Tracing.Endpoint = cfg.TracingEndpoint
	tcfg.Metrics.Enabled = cfg.MetricsEnabled

	tel, err := telemetry.NewTelemetry(tcfg)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	log := tel.Logger

	var workflowStore stores.WorkflowStore
	var jobStore stores.JobStore
	switch cfg.StoreBackend {
	case "sqlite":
		sqliteStore, err := stores.NewSQLiteStore(stores.SQLiteConfig{Path: cfg.StorePath})
		if err != nil {
			return fmt.Errorf("creating sqlite store: %w", err)
		}
		if err := sqliteStore.Init(ctx); err != nil {
			return fmt.Errorf("initializing sqlite store: %w", err)
		}
		if err := sqliteStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating sqlite store: %w", err)
		}
		defer sqliteStore.Close()
		workflowStore = sqliteStore
		jobStore = sqliteStore
		log.WithField("path", cfg.StorePath).Info("using sqlite state store")
	default:
		memory := stores.NewMemoryStore()
		workflowStore = memory
		jobStore = memory
		log.Info("using in-memory state store")
	}

	registry, err := templates.NewRegistry(cfg.ProgramsRoot, log)
	if err != nil {
		return fmt.Errorf("loading template registry: %w", err)
	}
	go func() {
		if err := registry.Watch(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("template watcher stopped")
		}
	}()

	engine := stack.NewCLIEngine(cfg.EngineBinary, cfg.InstallBinary, log)
	runner := stack.NewRunner(engine, registry, log, tel.Metrics, tel.Tracer)

	factory := workflow.DefaultServiceFactory(log, tel.Metrics)
	manager := workflow.NewManager(cfg, workflowStore, jobStore, runner, factory, log, tel.Metrics, tel.Events)

	srv := server.New(cfg, manager, registry, tel.Metrics, log)
	log.WithField("port", cfg.AppPort).Info("forgeplane starting")
	return srv.Run(ctx)
}
