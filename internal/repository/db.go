package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrUnknownField is returned by FindBy for a field that is not queryable.
var ErrUnknownField = errors.New("unknown query field")

// Models lists every table owned by the service, in migration order.
var Models = []interface{}{
	&domain.Meeting{},
	&domain.PipelineRun{},
	&domain.DeliveryArtifact{},
	&domain.Checkpoint{},
	&domain.QaRun{},
	&domain.QaCheck{},
}

// InitDB initializes the database connection based on configuration and runs migrations.
// Parameters:
//   - cfg: database configuration including driver and connection settings.
//
// Returns:
//   - *gorm.DB: initialized database handle.
//   - error: non-nil if connection or migration fails.
func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	log := logger.Default().WithField(logger.FieldComponent, "db")
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "postgres":
		log.Info("Using PostgreSQL driver")
		db, err = initPostgres(cfg, gormConfig)
	case "sqlite", "":
		log.Info("Using SQLite driver")
		db, err = initSQLite(cfg, gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(Models...); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.WithField(logger.FieldCount, len(Models)).Info("AutoMigrate complete")
	}

	return db, nil
}

// OpenInMemory opens a private, migrated SQLite database held in memory.
// Used by tests and by ephemeral QA runs.
// Returns:
//   - *gorm.DB: migrated handle private to the caller.
//   - error: open or migration error.
func OpenInMemory() (*gorm.DB, error) {
	return InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         fmt.Sprintf("file:recap-%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
		AutoMigrate:  true,
		LogLevel:     "silent",
	})
}

// initPostgres opens PostgreSQL with the simple protocol so transaction poolers work.
func initPostgres(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

func initSQLite(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	inMemory := strings.Contains(cfg.Path, "mode=memory") || cfg.Path == ":memory:"
	if cfg.Path != "" && !inMemory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}

	if !inMemory {
		db.Exec("PRAGMA journal_mode=WAL")
	}
	db.Exec("PRAGMA foreign_keys=ON")

	return db, nil
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// findBy runs an equality query on an allow-listed column, newest first.
func findBy[T any](db *gorm.DB, columns map[string]string, field string, value interface{}, limit int) ([]T, error) {
	column, ok := columns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	q := db.Where(column+" = ?", value).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []T
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Repositories bundles every repository over one database handle.
type Repositories struct {
	Meetings    *MeetingRepository
	Runs        *RunRepository
	Deliveries  *DeliveryRepository
	Checkpoints *CheckpointRepository
	QA          *QaRepository
}

// New builds the repository set for db.
// Parameters:
//   - db: GORM database handle shared by every repository.
//
// Returns:
//   - *Repositories: the repository set.
func New(db *gorm.DB) *Repositories {
	return &Repositories{
		Meetings:    NewMeetingRepository(db),
		Runs:        NewRunRepository(db),
		Deliveries:  NewDeliveryRepository(db),
		Checkpoints: NewCheckpointRepository(db),
		QA:          NewQaRepository(db),
	}
}
