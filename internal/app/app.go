// Package app wires configuration, storage and services into a runnable process.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/internal/timetable"
	"github.com/noah-isme/campus-timetable-api/pkg/cache"
	"github.com/noah-isme/campus-timetable-api/pkg/civil"
	"github.com/noah-isme/campus-timetable-api/pkg/config"
	"github.com/noah-isme/campus-timetable-api/pkg/database"
	"github.com/noah-isme/campus-timetable-api/pkg/signing"
)

type scheduleStore interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error)
	ListBetween(ctx context.Context, from, to civil.Date) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Atomic(ctx context.Context, dates []civil.Date, fn func(tx repository.ScheduleTx) error) error
}

type subjectStore interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
}

type roomStore interface {
	List(ctx context.Context) ([]models.Room, error)
	RoomIDs(ctx context.Context) ([]string, error)
	Create(ctx context.Context, room *models.Room) error
}

// App holds the long-lived dependencies of the API and the CLI.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics   *service.MetricsService
	Auth      *service.AuthService
	Timetable *service.TimetableService
	Placement *service.PlacementService
	Export    *service.ExportService
	Subjects  *service.SubjectService
	Rooms     *service.RoomService
}

// New opens storage for cfg.Database.Driver and builds every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: service.NewMetricsService()}

	catalog, err := Catalog(cfg.Timetable)
	if err != nil {
		return nil, err
	}
	length, err := timetable.ParseWeekLength(cfg.Timetable.WeekDays)
	if err != nil {
		return nil, err
	}

	var (
		entries  scheduleStore
		subjects subjectStore
		rooms    roomStore
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		entries = repository.NewMemoryScheduleStore()
		subjects = repository.NewMemorySubjectRepository()
		rooms = repository.NewMemoryRoomRepository()
	case config.DriverPostgres, config.DriverSQLite:
		if a.DB, err = OpenDB(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := Migrate(ctx, a.DB); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		entries = repository.NewScheduleEntryRepository(a.DB)
		subjects = repository.NewSubjectRepository(a.DB)
		rooms = repository.NewRoomRepository(a.DB)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Database.Driver)
	}

	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, week grid cache disabled", zap.Error(err))
		} else {
			a.Redis = client
			cacheRepo = repository.NewCacheRepository(client, logger)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.Metrics, cfg.Cache.TTL, logger, cacheRepo != nil)

	validate := validator.New()
	loc := cfg.Timetable.Location()

	a.Auth = service.NewAuthService(validate, logger, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
	a.Timetable = service.NewTimetableService(entries, rooms, cacheSvc, a.Metrics, service.TimetableConfig{
		Catalog:    catalog,
		WeekLength: length,
		Location:   loc,
		CacheTTL:   cfg.Cache.TTL,
	}, logger)
	a.Placement = service.NewPlacementService(entries, subjects, service.PlacementConfig{
		Catalog:              catalog,
		RequireSlotAlignment: cfg.Timetable.RequireSlotAlignment,
		MaxOccurrences:       cfg.Timetable.MaxOccurrences,
		Location:             loc,
	}, validate, a.Metrics, a.Timetable, logger)
	var signer *signing.FeedSigner
	if cfg.Feed.Secret != "" {
		signer = signing.NewFeedSigner(cfg.Feed.Secret, cfg.Feed.TTL)
	}
	a.Export = service.NewExportService(a.Timetable, subjects, signer, service.ExportConfig{
		Location:  loc,
		FeedWeeks: cfg.Feed.Weeks,
	}, logger, nil, nil, nil)
	a.Subjects = service.NewSubjectService(subjects, validate, logger)
	a.Rooms = service.NewRoomService(rooms, validate, logger)

	logger.Info("timetable configured",
		zap.String("storage", cfg.Database.Driver),
		zap.Int("slots", catalog.Len()),
		zap.Int("week_days", int(length)),
		zap.Bool("cache", cacheRepo != nil),
	)
	return a, nil
}

// Catalog builds the slot catalog from a YAML file when configured, else from the inline slot list.
func Catalog(cfg config.TimetableConfig) (*timetable.Catalog, error) {
	var (
		slots []models.TimeSlot
		err   error
	)
	if cfg.SlotsFile != "" {
		slots, err = timetable.LoadSlotFile(cfg.SlotsFile)
	} else {
		spec := cfg.Slots
		if spec == "" {
			spec = timetable.DefaultSlotSpec
		}
		slots, err = timetable.ParseSlotSpec(spec)
	}
	if err != nil {
		return nil, err
	}
	return timetable.NewCatalog(slots)
}

// OpenDB connects to the SQL store named by cfg.Driver.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return database.NewPostgres(ctx, cfg)
	case config.DriverSQLite:
		return database.NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("storage driver %q has no database", cfg.Driver)
	}
}

// Migrate applies pending migrations to db.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	migrator, err := database.NewMigrator(db.DB, db.DriverName())
	if err != nil {
		return err
	}
	return migrator.Up(ctx)
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
