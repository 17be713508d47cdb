package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-lineqa/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/audit"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/config"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/crypto"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/database"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/metrics/datadog"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/repositories"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/services"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/workerpool"
)

// App is the wired service graph shared by every command.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  metrics.Backend
	DB       *database.DB
	Conns    *datasource.ConnectionManager
	Sources  *sources.Registry
	Store    *storage.ParquetStore
	Fetcher  services.Fetcher
	Combiner services.CombinerService
	Analyzer services.AnalyzerService
	Datasets services.DatasetService
	Products services.ProductService
}

// NewApp opens the metadata store, loads the source registry and builds the
// services. Close releases everything it opened.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.Nop{}}

	if cfg.Metrics.DatadogEnabled {
		a.Metrics = datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    cfg.Metrics.JobName,
			FlushEvery: cfg.Metrics.FlushEvery,
		})
	}

	db, err := database.Open(ctx, cfg.Storage.MetadataDB, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.DB = db

	store, err := storage.NewParquetStore(cfg.Storage.DataDir, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	registry, err := loadRegistry(cfg, a, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sources = registry

	pool := workerpool.New(workerpool.Config{MaxConcurrent: cfg.Fetch.Workers}, logger)
	a.Fetcher = services.NewFetcher(registry, pool, services.FetcherConfig{
		SourceTimeout: cfg.Fetch.SourceTimeout,
		TagColumn:     cfg.Combination.SourceTagColumn,
		Auditor:       audit.NewSecurityAuditor(logger),
	}, a.Metrics, logger)

	repo := repositories.NewDatasetRepository(db.DB)
	a.Combiner = services.NewCombinerService(registry, a.Fetcher, store, repo, services.CombinerDefaults{
		Name:                 cfg.Combination.DefaultName,
		UniqueIdentifier:     cfg.Combination.UniqueIdentifier,
		TimestampColumn:      cfg.Combination.TimestampColumn,
		ProductionLineColumn: cfg.Combination.ProductionLineColumn,
		Strategy:             cfg.Combination.MergeStrategy,
		OrderColumn:          cfg.Fetch.OrderColumn,
	}, a.Metrics, logger)
	a.Analyzer = services.NewAnalyzerService(analyzerConfig(cfg), store, a.Metrics, logger)
	a.Datasets = services.NewDatasetService(repo, store, logger)
	a.Products = services.NewProductService(a.Fetcher, services.ProductColumns{
		Product:          cfg.Combination.ProductNameColumn,
		UniqueIdentifier: cfg.Combination.UniqueIdentifier,
		Timestamp:        cfg.Combination.TimestampColumn,
		ProductionLine:   cfg.Combination.ProductionLineColumn,
	}, logger)

	return a, nil
}

func analyzerConfig(cfg *config.Config) services.AnalyzerConfig {
	return services.AnalyzerConfig{
		OutlierMethod:        cfg.Analysis.OutlierMethod,
		OutlierFactor:        cfg.Analysis.OutlierFactor,
		StableThreshold:      cfg.Quality.StableThreshold,
		UnstableThreshold:    cfg.Quality.UnstableThreshold,
		DefaultDateRangeDays: cfg.Filters.DefaultDateRangeDays,
		CaseSensitive:        cfg.Filters.CaseSensitive,
		ProductionLineColumn: cfg.Combination.ProductionLineColumn,
	}
}

func loadRegistry(cfg *config.Config, a *App, logger *zap.Logger) (*sources.Registry, error) {
	srcs, err := sources.LoadSources(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}
	passwords, err := sources.LoadPasswords(cfg.PasswordsFile)
	if err != nil {
		return nil, err
	}

	var enc *crypto.CredentialEncryptor
	if cfg.CredentialsKey != "" {
		enc, err = crypto.NewCredentialEncryptor(cfg.CredentialsKey)
		if err != nil {
			return nil, fmt.Errorf("invalid LINEQA_CREDENTIALS_KEY: %w", err)
		}
	}

	a.Conns = datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:   cfg.Fetch.ConnectionTTLMinutes,
		PoolMaxConns: cfg.Fetch.PoolMaxConns,
		PoolMinConns: cfg.Fetch.PoolMinConns,
	}, logger)

	registry := sources.NewRegistry(srcs, sources.NewEnvFileCredentials(passwords, enc), datasource.NewExecutorFactory(a.Conns), logger)
	logger.Info("Loaded source configurations",
		zap.Int("sources", registry.Len()),
		zap.String("file", cfg.SourcesFile))
	return registry, nil
}

// Close flushes metrics and closes pools and the metadata database.
func (a *App) Close() {
	var errs []error
	if a.Conns != nil {
		errs = append(errs, a.Conns.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Metrics != nil {
		errs = append(errs, a.Metrics.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("Errors during shutdown", zap.Error(err))
	}
}
