// Package app assembles the repositories and services shared by the HTTP
// server and the command line tool.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/repository"
	"github.com/noah-isme/vzs-club-api/internal/service"
	"github.com/noah-isme/vzs-club-api/pkg/cache"
	"github.com/noah-isme/vzs-club-api/pkg/config"
	"github.com/noah-isme/vzs-club-api/pkg/database"
	"github.com/noah-isme/vzs-club-api/pkg/export"
	"github.com/noah-isme/vzs-club-api/pkg/fio"
	"github.com/noah-isme/vzs-club-api/pkg/jobs"
	"github.com/noah-isme/vzs-club-api/pkg/mailer"
)

const cachePrefix = "vzs"

// Repositories groups the Postgres-backed stores.
type Repositories struct {
	Users        *repository.UserRepository
	Persons      *repository.PersonRepository
	Features     *repository.FeatureRepository
	Groups       *repository.GroupRepository
	Positions    *repository.PositionRepository
	Events       *repository.EventRepository
	Occurrences  *repository.OccurrenceRepository
	Attendance   *repository.AttendanceRepository
	Enrollments  *repository.EnrollmentRepository
	Transactions *repository.TransactionRepository
	Fio          *repository.FioRepository
	Tx           *repository.TxRunner
}

// Services groups the domain services.
type Services struct {
	Metrics       *service.MetricsService
	Cache         *service.CacheService
	Notifications *service.NotificationService
	Auth          *service.AuthService
	Users         *service.UserService
	Persons       *service.PersonService
	Features      *service.FeatureService
	Groups        *service.GroupService
	Positions     *service.PositionService
	Events        *service.EventService
	Enrollments   *service.EnrollmentService
	Occurrences   *service.OccurrenceService
	Transactions  *service.TransactionService
	Reconciler    *service.ReconcilerService
	Exports       *service.ExportService
	Jobs          *service.JobService
	Entities      *service.EntityLoader
}

// App owns the process-wide connections and the wired service graph.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Repos    Repositories
	Services Services

	mail *jobs.Queue[mailer.Message]
}

// Options tune what New does besides wiring.
type Options struct {
	// Migrate applies pending schema migrations before wiring.
	Migrate bool
	// MailWorkers overrides the configured number of delivery goroutines.
	MailWorkers int
}

// New connects to Postgres and Redis and wires every service. The mail
// queue is started; Close drains it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if opts.Migrate {
		version, err := database.Migrate(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("schema migrated", zap.Uint("version", version))
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, ledger cache disabled", zap.Error(err))
		redisClient = nil
	}

	return assemble(ctx, cfg, logger, db, redisClient, opts)
}

// assemble wires the service graph over already opened connections. A nil
// redis client disables the ledger cache.
func assemble(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, DB: db, Redis: redisClient}
	a.Repos = newRepositories(db)
	if err := a.wire(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func newRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:        repository.NewUserRepository(db),
		Persons:      repository.NewPersonRepository(db),
		Features:     repository.NewFeatureRepository(db),
		Groups:       repository.NewGroupRepository(db),
		Positions:    repository.NewPositionRepository(db),
		Events:       repository.NewEventRepository(db),
		Occurrences:  repository.NewOccurrenceRepository(db),
		Attendance:   repository.NewAttendanceRepository(db),
		Enrollments:  repository.NewEnrollmentRepository(db),
		Transactions: repository.NewTransactionRepository(db),
		Fio:          repository.NewFioRepository(db),
		Tx:           repository.NewTxRunner(db),
	}
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.Config
	logger := a.Logger
	repos := a.Repos
	validate := validator.New()
	loc := cfg.Location()

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if a.Redis != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(a.Redis, cachePrefix), metrics, cfg.Cache.LedgerTTL, logger, cfg.Cache.Enabled)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Cache.LedgerTTL, logger, false)
	}

	workers := cfg.Mail.Workers
	if opts.MailWorkers > 0 {
		workers = opts.MailWorkers
	}
	a.mail = jobs.NewQueue[mailer.Message]("mail", service.NewMailHandler(mailer.New(cfg.Mail, logger), metrics, logger), jobs.QueueConfig{
		Workers:    workers,
		BufferSize: 256,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		Logger:     logger,
	})
	a.mail.Start(ctx)

	notifications := service.NewNotificationService(a.mail, repos.Users, cfg.Mail.AdminEmail, metrics, logger)

	var exchanger service.OIDCExchanger
	if cfg.OIDC.Issuer != "" {
		rp, err := service.NewOIDCExchanger(ctx, cfg.OIDC)
		if err != nil {
			return fmt.Errorf("init oidc: %w", err)
		}
		exchanger = rp
	}

	auth := service.NewAuthService(repos.Users, repos.Persons, repos.Tx, exchanger, notifications, validate, logger, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		ResetTokenTTL:      cfg.JWT.PasswordResetTTL,
		Issuer:             "vzs-club-api",
	})

	transactions := service.NewTransactionService(repos.Transactions, repos.Persons, cacheSvc, cfg.Fio, validate, logger)

	features := service.NewFeatureService(repos.Features, repos.Transactions, repos.Persons, repos.Tx, notifications, notifications, validate, logger, service.FeatureConfig{
		Location:          loc,
		ExpiryNoticeHours: cfg.Notifications.FeatureExpiryNoticeHours,
		FeeDueDays:        cfg.Notifications.FeeDueDays,
	}).WithLedgerCache(transactions)

	engine := service.NewEventEngine(service.EngineRepositories{
		Events:      repos.Events,
		Occurrences: repos.Occurrences,
		Attendance:  repos.Attendance,
		Enrollments: repos.Enrollments,
		Ledger:      repos.Transactions,
		Persons:     repos.Persons,
		Groups:      repos.Groups,
		Features:    repos.Features,
		Positions:   repos.Positions,
	}, repos.Tx, notifications, notifications, validate, logger, service.EngineConfig{
		Location:            loc,
		Deadlines:           cfg.Deadlines,
		WageDueDays:         cfg.Notifications.WageDueDays,
		FeeDueDays:          cfg.Notifications.FeeDueDays,
		MinAbsencesForAlert: cfg.Notifications.MinAbsencesForAlert,
		UnclosedDays:        cfg.Notifications.UnclosedOccurrenceDays,
	}).WithLedgerCache(transactions).WithMetrics(metrics)

	occurrences := service.NewOccurrenceService(engine)

	bank := fio.NewClient(cfg.Fio, fio.WithLogger(logger))
	reconciler := service.NewReconcilerService(bank, repos.Fio, repos.Transactions, repos.Tx, notifications, notifications, cfg.Fio.DefaultDays, logger).
		WithLedgerCache(transactions).
		WithMetrics(metrics)

	a.Services = Services{
		Metrics:       metrics,
		Cache:         cacheSvc,
		Notifications: notifications,
		Auth:          auth,
		Users:         service.NewUserService(repos.Users, validate, logger),
		Persons:       service.NewPersonService(repos.Persons, validate, logger),
		Features:      features,
		Groups:        service.NewGroupService(repos.Groups, repos.Persons, validate, logger),
		Positions:     service.NewPositionService(repos.Positions, repos.Groups, repos.Features, validate, logger),
		Events:        service.NewEventService(engine),
		Enrollments:   service.NewEnrollmentService(engine),
		Occurrences:   occurrences,
		Transactions:  transactions,
		Reconciler:    reconciler,
		Exports:       service.NewExportService(repos.Persons, repos.Transactions, loc, logger, export.NewCSVExporter(), export.NewPDFExporter()),
		Jobs:          service.NewJobService(features, occurrences, reconciler, auth, logger),
		Entities: service.NewEntityLoader(service.EntitySources{
			Persons:      repos.Persons,
			Features:     repos.Features,
			Assignments:  repos.Features,
			Groups:       repos.Groups,
			Positions:    repos.Positions,
			Events:       repos.Events,
			Enrollments:  repos.Enrollments,
			Occurrences:  repos.Occurrences,
			Transactions: repos.Transactions,
		}),
	}
	return nil
}

// Close drains pending mail and releases connections.
func (a *App) Close() error {
	if a.mail != nil {
		a.mail.Drain(10 * time.Second)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	return a.DB.Close()
}
