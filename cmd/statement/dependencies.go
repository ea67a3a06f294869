package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction/chunker"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/extraction/gemini"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/redaction/pii"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement/repository"
	"github.com/FACorreiaa/bankstatement2csv/internal/domain/statement/service"
	"github.com/FACorreiaa/bankstatement2csv/pkg/bus"
	"github.com/FACorreiaa/bankstatement2csv/pkg/config"
	"github.com/FACorreiaa/bankstatement2csv/pkg/cron"
	"github.com/FACorreiaa/bankstatement2csv/pkg/db"
	"github.com/FACorreiaa/bankstatement2csv/pkg/observability"
	"github.com/FACorreiaa/bankstatement2csv/pkg/pdf"
	"github.com/FACorreiaa/bankstatement2csv/pkg/storage"
)

var errJobsDisabled = errors.New("job tracking needs DATABASE_ENABLED=true")

// Needs selects the optional parts of the dependency graph a command uses.
type Needs struct {
	// Extraction builds the Gemini client and orchestrator.
	Extraction bool
	// Jobs connects to Postgres and builds the job-tracking service.
	Jobs bool
	// Bus connects to NATS.
	Bus bool
	// Storage opens the artifact store. Jobs implies it.
	Storage bool
}

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *db.DB
	Bus    *bus.Client

	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Repositories
	JobRepo statement.JobRepository

	// Services
	Slicer           *pdf.Slicer
	Redactor         *redaction.Redactor
	Flattener        service.Flattener
	Chunker          *chunker.Chunker
	Model            *gemini.Client
	Orchestrator     *extraction.Orchestrator
	Pipeline         *service.Pipeline
	FileStorage      storage.Storage
	StatementService *service.StatementService
	Scheduler        *cron.Scheduler
}

// InitDependencies initializes the dependencies selected by needs
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, needs Needs) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	if needs.Jobs {
		if !cfg.Database.Enabled {
			return nil, errJobsDisabled
		}
		if err := deps.initDatabase(); err != nil {
			deps.Cleanup()
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	}

	if needs.Bus {
		if err := deps.initBus(ctx); err != nil {
			deps.Cleanup()
			return nil, fmt.Errorf("failed to init nats: %w", err)
		}
	}

	if err := deps.initServices(ctx, needs); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("dependencies initialized",
		slog.Bool("extraction", needs.Extraction),
		slog.Bool("jobs", needs.Jobs),
		slog.Bool("bus", needs.Bus),
	)
	return deps, nil
}

func (d *Dependencies) initObservability() error {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(d.Registry)
	if err != nil {
		return err
	}
	d.Metrics = metrics
	return nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

func (d *Dependencies) initRepositories() {
	d.JobRepo = repository.NewPostgresJobRepository(d.DB.Pool)
}

func (d *Dependencies) initBus(ctx context.Context) error {
	if d.Config.NATS.URL == "" {
		return errors.New("NATS_URL is required")
	}
	client, err := bus.NewClient(ctx, d.Config.NATS.URL, d.Config.NATS.Token, d.Logger)
	if err != nil {
		return err
	}
	d.Bus = client
	return nil
}

func (d *Dependencies) initServices(ctx context.Context, needs Needs) error {
	cfg := d.Config

	d.Slicer = pdf.NewSlicer()
	d.Redactor = redaction.NewRedactor(
		pdf.NewTextExtractor(d.Logger),
		pdf.NewEditor(),
		pii.NewDetector(pii.DefaultRegistry(), pii.DefaultDenylist()),
		redaction.Options{
			Debug:       cfg.Redaction.Debug,
			Concurrency: cfg.Redaction.Concurrency,
		},
		d.Logger,
	)
	if cfg.Redaction.Rasterize {
		d.Flattener = pdf.NewRasterizer(pdf.ExecRunner{Logger: d.Logger}, cfg.Redaction.PdftoppmBin, cfg.Redaction.DPI)
	}
	d.Chunker = chunker.New(d.Slicer, cfg.Extraction.PagesPerChunk)

	var extractor service.Extractor
	if needs.Extraction {
		if err := cfg.RequireGemini(); err != nil {
			return err
		}
		model, err := gemini.New(ctx, cfg.Gemini.APIKey, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create gemini client: %w", err)
		}
		d.Model = model
		d.Orchestrator = extraction.New(model, extractionConfig(cfg), d.observer(), d.Logger)
		extractor = d.Orchestrator
	}

	d.Pipeline = service.NewPipeline(d.Redactor, d.Flattener, d.Chunker, extractor, d.Logger).
		WithCurrency(cfg.Server.Currency)

	if !needs.Storage && d.JobRepo == nil {
		return nil
	}
	fileStorage, err := storage.New(&storage.Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	d.FileStorage = fileStorage

	if d.JobRepo != nil {
		notifier := service.NewEmailNotifier(
			cfg.Notification.ResendAPIKey,
			cfg.Notification.FromEmail,
			cfg.Notification.DownloadURL,
			d.Logger,
		)
		d.StatementService = service.NewStatementService(d.JobRepo, d.FileStorage, d.Pipeline, d.Slicer, d.Logger).
			WithNotifier(notifier)
		d.Scheduler = cron.NewScheduler(d.StatementService, cfg.Cron.StaleJobSchedule, cfg.Cron.StaleJobAfter, d.Logger)
	}
	return nil
}

// observer fans extraction events out to the log, the metrics and, when
// connected, the event bus.
func (d *Dependencies) observer() extraction.Observer {
	observers := extraction.MultiObserver{
		extraction.LogObserver{Logger: d.Logger},
		d.Metrics,
	}
	if d.Bus != nil {
		observers = append(observers, observability.NewEventPublisher(d.Bus, d.Config.NATS.EventSubject, d.Logger))
	}
	return observers
}

func extractionConfig(cfg *config.Config) extraction.Config {
	return extraction.Config{
		PrimaryModel:  cfg.Gemini.PrimaryModel,
		FallbackModel: cfg.Gemini.FallbackModel,
		BatchLimit:    cfg.Extraction.BatchLimit,
		Policy: extraction.Policy{
			ContinueOnProgress: cfg.Extraction.ContinueOnProgress,
			MaxEmptyTurns:      cfg.Extraction.MaxEmptyTurns,
			MaxTurns:           cfg.Extraction.MaxTurns,
		},
		PollInterval:      cfg.Extraction.PollInterval,
		PollAttempts:      cfg.Extraction.PollAttempts,
		TurnTimeout:       cfg.Extraction.TurnTimeout,
		RetryDelay:        cfg.Extraction.RetryDelay,
		RequestsPerMinute: cfg.Extraction.RequestsPerMinute,
	}
}

// Cleanup releases connections in reverse order of creation
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.Bus != nil {
		d.Bus.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
