// Package bootstrap собирает пайплайн импорта из конфигурации. Используется и API,
// и importctl.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhukovvlad/residence-go/cmd/internal/config"
	"github.com/zhukovvlad/residence-go/cmd/internal/db"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/crmsync"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/importer"
	"github.com/zhukovvlad/residence-go/cmd/internal/services/progress"
	"github.com/zhukovvlad/residence-go/cmd/pkg/logging"

	_ "github.com/lib/pq"
)

const dbDriver = "postgres"

var ErrNoDatabaseSource = errors.New("store.postgres.source (DB_SOURCE) is not set")

// Pipeline - всё, что нужно точке входа для импорта.
type Pipeline struct {
	Store     db.Store
	Service   *importer.ImportService
	Committer *importer.BatchCommitter
	// Progress равен nil без Redis.
	Progress *progress.Tracker

	closers []func(context.Context) error
}

// Close освобождает ресурсы в обратном порядке. Очередь CRM дочищается в пределах ctx.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore подключает настроенный бэкенд.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger) (db.Store, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendDynamoDB:
		store, err := db.NewDynamoStoreFromConfig(ctx, db.DynamoOptions{
			Region:   cfg.DynamoDB.Region,
			Profile:  cfg.DynamoDB.Profile,
			Endpoint: cfg.DynamoDB.Endpoint,
			Tables: map[string]string{
				db.CollectionStudents:   cfg.DynamoDB.Tables.Students,
				db.CollectionAddresses:  cfg.DynamoDB.Tables.Addresses,
				db.CollectionImportRuns: cfg.DynamoDB.Tables.ImportRuns,
			},
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("using DynamoDB store in %s", cfg.DynamoDB.Region)
		return store, func(context.Context) error { return nil }, nil

	case config.BackendPostgres, "":
		if cfg.Postgres.Source == "" {
			return nil, nil, ErrNoDatabaseSource
		}
		conn, err := sql.Open(dbDriver, cfg.Postgres.Source)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to database: %w", err)
		}
		if err = conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("error pinging database: %w", err)
		}
		store := db.NewPostgresStore(conn, cfg.StoreLimits())
		if err = store.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		logger.Info("Database connection established")
		return store, func(context.Context) error { return conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Build собирает хранилище, трекер прогресса, синхронизацию с CRM и сервис импорта.
// withSideServices=false - без Redis и CRM (пробные прогоны, CLI validate).
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, withSideServices bool) (*Pipeline, error) {
	store, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{Store: store, closers: []func(context.Context) error{closeStore}}

	var sink importer.ProgressSink
	var notifier importer.CRMNotifier = crmsync.NopNotifier{}

	if withSideServices && cfg.Redis.Addr != "" {
		rdb, err := progress.Connect(ctx, progress.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			// Прогресс не критичен для импорта.
			logger.Warnf("progress tracking disabled: %v", err)
		} else {
			p.Progress = progress.NewTracker(rdb, cfg.Import.ProgressTTL)
			sink = p.Progress
			p.closers = append(p.closers, closeRedis(rdb))
		}
	}

	if withSideServices && cfg.CRM.URL != "" {
		sender := crmsync.NewHTTPNotifier(crmsync.HTTPOptions{
			URL:           cfg.CRM.URL,
			APIKey:        cfg.CRM.APIKey,
			Timeout:       cfg.CRM.Timeout,
			RatePerSecond: cfg.CRM.RatePerSecond,
		}, logger.GetLoggerWithField("component", "crm"))
		dispatcher := crmsync.NewDispatcher(sender, logger.GetLoggerWithField("component", "crm"), crmsync.DispatcherOptions{
			Workers:   cfg.CRM.Workers,
			QueueSize: cfg.CRM.QueueSize,
			Timeout:   cfg.CRM.Timeout,
		})
		notifier = dispatcher
		p.closers = append(p.closers, dispatcher.Close)
		logger.Infof("CRM sync enabled: %s (%d workers)", cfg.CRM.URL, cfg.CRM.Workers)
	}

	groupSize, batchSize := cfg.Import.ImportLimits(store.Limits())
	p.Committer = importer.NewBatchCommitter(store, logger, importer.CommitterOptions{
		GroupSize:          groupSize,
		ExistenceBatchSize: batchSize,
		Notifier:           notifier,
	})
	p.Service = importer.NewImportService(store, importer.NewFileValidator(time.Now), p.Committer, sink, logger)

	logger.Infof("import pipeline ready: group size %d, existence batch %d", groupSize, batchSize)
	return p, nil
}

func closeRedis(rdb *redis.Client) func(context.Context) error {
	return func(context.Context) error { return rdb.Close() }
}
