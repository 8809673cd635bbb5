package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	JWT       JWTConfig
	Feed      FeedConfig
	CORS      CORSConfig
	Log       LogConfig
	Timetable TimetableConfig
}

type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	SQLitePath   string
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig toggles the Redis-backed week grid cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JWTConfig struct {
	Secret string
}

// FeedConfig controls signed iCalendar subscription links.
type FeedConfig struct {
	Secret string
	TTL    time.Duration
	Weeks  int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// TimetableConfig shapes the grid: slot catalog, week length and placement rules.
type TimetableConfig struct {
	WeekDays             int
	Slots                string
	SlotsFile            string
	RequireSlotAlignment bool
	Timezone             string
	MaxOccurrences       int
}

// Location resolves the configured timezone, falling back to UTC.
func (t TimetableConfig) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.HTTP = HTTPConfig{
		ReadTimeout:  parseDuration(v.GetString("HTTP_READ_TIMEOUT"), 15*time.Second),
		WriteTimeout: parseDuration(v.GetString("HTTP_WRITE_TIMEOUT"), 30*time.Second),
	}

	cfg.Database = DatabaseConfig{
		Driver:       strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		SQLitePath:   v.GetString("SQLITE_PATH"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_TIMETABLE_CACHE"),
		TTL:     parseDuration(v.GetString("TIMETABLE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.Feed = FeedConfig{
		Secret: v.GetString("FEED_SECRET"),
		TTL:    parseDuration(v.GetString("FEED_TOKEN_TTL"), 90*24*time.Hour),
		Weeks:  v.GetInt("FEED_WEEKS"),
	}
	if cfg.Feed.Secret == "" {
		cfg.Feed.Secret = cfg.JWT.Secret
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Timetable = TimetableConfig{
		WeekDays:             v.GetInt("TIMETABLE_WEEK_DAYS"),
		Slots:                v.GetString("TIMETABLE_SLOTS"),
		SlotsFile:            v.GetString("TIMETABLE_SLOTS_FILE"),
		RequireSlotAlignment: v.GetBool("SCHEDULE_REQUIRE_SLOT_ALIGNMENT"),
		Timezone:             v.GetString("TIMETABLE_TIMEZONE"),
		MaxOccurrences:       v.GetInt("RECURRENCE_MAX_OCCURRENCES"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config: unsupported STORAGE_DRIVER %q", c.Database.Driver)
	}
	if c.Timetable.WeekDays != 6 && c.Timetable.WeekDays != 7 {
		return fmt.Errorf("config: TIMETABLE_WEEK_DAYS must be 6 or 7, got %d", c.Timetable.WeekDays)
	}
	if c.Feed.Weeks < 1 || c.Feed.Weeks > 52 {
		return fmt.Errorf("config: FEED_WEEKS must be between 1 and 52, got %d", c.Feed.Weeks)
	}
	if c.Timetable.MaxOccurrences <= 0 {
		return fmt.Errorf("config: RECURRENCE_MAX_OCCURRENCES must be positive")
	}
	if c.Timetable.Timezone != "" {
		if _, err := time.LoadLocation(c.Timetable.Timezone); err != nil {
			return fmt.Errorf("config: TIMETABLE_TIMEZONE: %w", err)
		}
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret" {
		return fmt.Errorf("config: JWT_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("HTTP_READ_TIMEOUT", "15s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "30s")

	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_timetable")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("SQLITE_PATH", "timetable.db")
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ENABLE_TIMETABLE_CACHE", false)
	v.SetDefault("TIMETABLE_CACHE_TTL", "5m")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("FEED_SECRET", "")
	v.SetDefault("FEED_TOKEN_TTL", "2160h")
	v.SetDefault("FEED_WEEKS", 8)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("TIMETABLE_WEEK_DAYS", 6)
	v.SetDefault("TIMETABLE_SLOTS", "08:30-10:00,10:10-11:40,11:50-13:20,14:30-16:00,16:10-17:40")
	v.SetDefault("TIMETABLE_SLOTS_FILE", "")
	v.SetDefault("SCHEDULE_REQUIRE_SLOT_ALIGNMENT", true)
	v.SetDefault("TIMETABLE_TIMEZONE", "UTC")
	v.SetDefault("RECURRENCE_MAX_OCCURRENCES", 60)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
