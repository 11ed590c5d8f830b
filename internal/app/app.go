// Package app wires configuration into the services shared by the API
// server and the QA CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/lock"
	"github.com/timmy/recap/internal/logger"
	"github.com/timmy/recap/internal/metrics"
	"github.com/timmy/recap/internal/notify"
	"github.com/timmy/recap/internal/qa"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
	"github.com/timmy/recap/internal/storage"
	"gorm.io/gorm"
)

// App holds the wired services.
type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Repos        *repository.Repositories
	Storage      storage.ObjectStorage
	Router       *notify.Router
	Orchestrator *service.Orchestrator
	Gate         *service.QualityGate
	Retry        *service.RetryCoordinator
	Delivery     *service.DeliveryService
	Harness      *qa.Harness
	Registry     *prometheus.Registry

	closers []func() error
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg *config.Config, service string) *logger.Logger {
	lc := logger.DefaultConfig()
	lc.ServiceName = service
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = cfg.Log.Format
	}
	if cfg.Log.File != "" {
		lc.Output = nil
		lc.File = cfg.Log.File
	}
	return logger.New(lc)
}

// Build connects storage, database, lock and notification backends and
// assembles the pipeline, quality gate and QA harness on top of them.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.FromContext(ctx).WithField(logger.FieldComponent, "app")
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}

	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.Metrics.Enabled {
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		sink = metrics.NewPrometheusSink(a.Registry)
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	a.DB = db
	a.Repos = repository.New(db)
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	objectStorage, err := storage.NewStorage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
		LocalPath: cfg.Storage.LocalPath,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if s3s, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3s.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}
	a.Storage = objectStorage

	locker, err := lock.New(cfg.Lock.Backend, cfg.Lock.RedisURL, cfg.Lock.TTL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init lock: %w", err)
	}
	if rl, ok := locker.(*lock.RedisLocker); ok {
		a.closers = append(a.closers, rl.Close)
	}

	a.Router, err = newNotifyRouter(cfg, sink)
	if err != nil {
		a.Close()
		return nil, err
	}

	oracle := service.NewOpenAIOracle(&service.OracleConfig{
		Model:   cfg.Oracle.Model,
		APIKey:  cfg.Oracle.APIKey,
		BaseURL: cfg.Oracle.BaseURL,
		Timeout: cfg.Oracle.Timeout,
	})
	var transcriber service.Transcriber
	if cfg.Transcriber.APIKey != "" {
		transcriber = service.NewOpenAITranscriber(&service.TranscriberConfig{
			Model:   cfg.Transcriber.Model,
			APIKey:  cfg.Transcriber.APIKey,
			BaseURL: cfg.Transcriber.BaseURL,
			Timeout: cfg.Transcriber.Timeout,
		})
	}
	checker := service.NewLanguageToolChecker(&service.LanguageToolConfig{
		BaseURL:  cfg.Language.BaseURL,
		Language: cfg.Language.Language,
		Timeout:  cfg.Language.Timeout,
	})

	deps := service.OrchestratorDeps{
		Repos:       a.Repos,
		Storage:     objectStorage,
		Oracle:      oracle,
		Transcriber: transcriber,
		Notifier:    a.Router,
		Locker:      locker,
		Metrics:     sink,
	}
	pipelineCfg := service.OrchestratorConfig{
		StepTimeout:     cfg.Pipeline.StepTimeout,
		TemplateRef:     cfg.Pipeline.TemplateRef,
		SignatureMarker: cfg.Quality.SignatureMarker,
	}
	a.Orchestrator = service.NewOrchestrator(deps, pipelineCfg)
	a.Gate = service.NewQualityGate(a.Repos, checker, oracle, cfg.Quality, sink)
	a.Retry = service.NewRetryCoordinator(a.Repos.Deliveries, a.Orchestrator, service.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     cfg.Retry.Backoff,
	})
	a.Delivery = service.NewDeliveryService(a.Repos, a.Router)

	fixtures, err := qa.LoadFixtures(afero.NewOsFs(), cfg.QA.FixturesDir)
	if err != nil {
		log.WithError(err).Warn("QA fixtures unreadable, fixture-dependent checks will be skipped")
		fixtures = nil
	}
	a.Harness = qa.NewHarness(qa.Deps{
		Repos:          a.Repos,
		Pipeline:       deps,
		PipelineConfig: pipelineCfg,
		Gate:           a.Gate,
		Delivery:       a.Delivery,
		Router:         a.Router,
		Fixtures:       fixtures,
		Metrics:        sink,
	}, cfg.QA, cfg.Quality)

	log.WithFields(logger.Fields{
		"storage": cfg.Storage.Type,
		"lock":    cfg.Lock.Backend,
		"db":      cfg.Database.Driver,
	}).Info("Services initialized")
	return a, nil
}

func newNotifyRouter(cfg *config.Config, sink metrics.Sink) (*notify.Router, error) {
	r := notify.NewRouter(sink).
		Register(notify.ChannelLog, notify.NewLogSender()).
		Register(notify.ChannelWebhook, notify.NewWebhookSender(cfg.Notify.Webhook.Timeout, cfg.Notify.Webhook.Secret))

	if token := cfg.Notify.Slack.BotToken; token != "" {
		s, err := notify.NewSlackSender(token)
		if err != nil {
			return nil, fmt.Errorf("init slack: %w", err)
		}
		r.Register(notify.ChannelSlack, s)
	}
	if smtpCfg := cfg.Notify.SMTP; smtpCfg.Host != "" {
		s, err := notify.NewEmailSender(smtpCfg.Host, smtpCfg.Port, smtpCfg.Username, smtpCfg.Password, smtpCfg.From)
		if err != nil {
			return nil, fmt.Errorf("init smtp: %w", err)
		}
		r.Register(notify.ChannelEmail, s)
	}
	return r, nil
}

// Close releases database and lock connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
