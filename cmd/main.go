package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"review-metrics-service/internal/config"
	"review-metrics-service/internal/controller"
	"review-metrics-service/internal/db"
	httpserver "review-metrics-service/internal/http"
	"review-metrics-service/internal/logging"
	"review-metrics-service/internal/model"
	"review-metrics-service/internal/repository"
	"review-metrics-service/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "review-metrics",
		Short:         "Code review activity metrics",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newServeCmd(), newMetricCmd(), newMetricsCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			metricsController := controller.NewMetricsController(app.metrics, app.cfg.DefaultIndex, app.logger)
			server := httpserver.NewServer(app.cfg, metricsController)

			go func() {
				<-cmd.Context().Done()
				if err := server.Shutdown(); err != nil {
					app.logger.Warn("shutdown failed", zap.Error(err))
				}
			}()

			app.logger.Info("starting server", zap.String("addr", app.cfg.HTTPPort), zap.String("backend", app.cfg.StoreBackend))
			if err := server.Listen(app.cfg.HTTPPort); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}
			return nil
		},
	}
}

func newMetricCmd() *cobra.Command {
	var repositoryFullname, index string
	values := make(map[string]*string, len(model.ParamKeys))

	cmd := &cobra.Command{
		Use:   "metric <name>",
		Short: "Compute one metric and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, ok := service.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown metric %q", args[0])
			}

			raw := make(map[string]string, len(values))
			for key, v := range values {
				raw[key] = *v
			}
			params, err := model.ParseParams(raw)
			if err != nil {
				return err
			}

			app, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer app.close()

			if index == "" {
				index = app.cfg.DefaultIndex
			}
			outcome := metric(cmd.Context(), app.metrics, index, repositoryFullname, params)

			out, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			if outcome.OutcomeStatus() == model.StatusBackendFailure {
				return errors.New("metric computation failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repositoryFullname, "repository", "", "repository full name pattern")
	cmd.Flags().StringVar(&index, "index", "", "event index, defaults to DEFAULT_INDEX")
	_ = cmd.MarkFlagRequired("repository")
	for _, key := range model.ParamKeys {
		values[key] = cmd.Flags().String(key, "", key+" parameter")
	}
	return cmd
}

func newMetricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "List the available metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range service.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// application holds the wired dependencies of a command.
type application struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics service.MetricsService
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	app := &application{cfg: cfg, logger: logger}
	repo, err := newRepository(ctx, app)
	if err != nil {
		app.close()
		return nil, err
	}

	runner := service.NewBatchRunner(cfg.FanoutConcurrency, logger)
	app.metrics = service.NewMetricsService(repo, runner, logger)
	return app, nil
}

func newRepository(ctx context.Context, app *application) (repository.EventRepository, error) {
	cfg, logger := app.cfg, app.logger

	switch cfg.StoreBackend {
	case config.BackendClickHouse:
		conn, err := db.NewConnection(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		app.closers = append(app.closers, func() { conn.Close() })

		if err := db.RunMigrations(ctx, conn, cfg.DefaultIndex); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repository.NewClickHouseEventRepository(conn, cfg.QueryTimeout, logger), nil

	case config.BackendMemory:
		repo := repository.NewMemoryEventRepository()
		repo.Add(cfg.DefaultIndex)
		if cfg.MemoryFixture != "" {
			if err := repo.LoadFixture(cfg.DefaultIndex, cfg.MemoryFixture); err != nil {
				return nil, err
			}
			logger.Info("loaded fixture", zap.String("path", cfg.MemoryFixture))
		}
		return repo, nil

	default:
		es, err := db.NewElasticsearch(cfg)
		if err != nil {
			return nil, err
		}

		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := db.EnsureElasticsearchIndex(ensureCtx, es, cfg.DefaultIndex, logger); err != nil {
			logger.Warn("failed to ensure index template (ES may not be available yet)", zap.Error(err))
		}

		return repository.NewElasticsearchEventRepository(es, repository.ElasticsearchConfig{
			QueryTimeout:  cfg.QueryTimeout,
			ScanPageSize:  cfg.ScanPageSize,
			ScanKeepAlive: cfg.ScanKeepAlive,
		}, logger), nil
	}
}
