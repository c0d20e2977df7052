package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/overseer-bot/shop/app/models"
	"github.com/overseer-bot/shop/internal/pkg/env"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

var DB *gorm.DB

// Settings describes the database connection taken from the environment.
type Settings struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

func SettingsFromEnv() Settings {
	driver := Driver()
	defaultPort := "5432"
	if driver == DriverMySQL {
		defaultPort = "3306"
	}
	return Settings{
		Driver:       driver,
		Host:         env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:         env.GetEnv("DB_PORT", defaultPort),
		User:         env.GetEnv("DB_USER", ""),
		Password:     env.GetEnv("DB_PASSWORD", ""),
		Name:         env.GetEnv("DB_NAME", ""),
		SSLMode:      env.GetEnv("DB_SSLMODE", "disable"),
		MaxOpenConns: env.GetEnvInt("DB_MAX_OPEN_CONNS", 20),
		MaxIdleConns: env.GetEnvInt("DB_MAX_IDLE_CONNS", 5),
		AutoMigrate:  env.GetEnvBool("DB_AUTO_MIGRATE", false),
	}
}

// Driver returns the configured driver name, defaulting to postgres.
func Driver() string {
	return strings.ToLower(strings.TrimSpace(env.GetEnv("DB_DRIVER", DriverPostgres)))
}

// DSN renders the driver-specific connection string used by gorm.
func (s Settings) DSN() string {
	switch s.Driver {
	case DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			s.User, s.Password, s.Host, s.Port, s.Name)
	default:
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			s.Host, s.User, s.Password, s.Name, s.Port, s.SSLMode)
	}
}

// MigrateURL renders the golang-migrate database URL.
func (s Settings) MigrateURL() string {
	switch s.Driver {
	case DriverMySQL:
		return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
			s.User, s.Password, s.Host, s.Port, s.Name)
	default:
		return fmt.Sprintf("pgx5://%s:%s@%s:%s/%s?sslmode=%s",
			s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
	}
}

func (s Settings) dialector() (gorm.Dialector, error) {
	switch s.Driver {
	case DriverPostgres:
		return postgres.Open(s.DSN()), nil
	case DriverMySQL:
		return mysql.New(mysql.Config{
			DSN:                       s.DSN(),
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", s.Driver)
	}
}

// SetupDatabase connects with retries and sizes the connection pool.
func SetupDatabase(s Settings) (*gorm.DB, error) {
	dialector, err := s.dialector()
	if err != nil {
		return nil, err
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(dialector, &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err == nil {
			break
		}

		log.Warn().Err(err).Msgf("failed to connect to database (try %d/%d)", i+1, maxRetries)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if s.AutoMigrate {
		if err := DB.AutoMigrate(
			&models.PendingCorrelation{},
			&models.Patron{},
			&models.WebhookEvent{},
		); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	log.Info().Str("driver", s.Driver).Str("host", s.Host).Str("database", s.Name).Msg("connected to database")
	return DB, nil
}

func GetDB() *gorm.DB {
	return DB
}
