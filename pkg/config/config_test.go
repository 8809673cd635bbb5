package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 6, cfg.Timetable.WeekDays)
	assert.Equal(t, 60, cfg.Timetable.MaxOccurrences)
	assert.True(t, cfg.Timetable.RequireSlotAlignment)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, time.UTC, cfg.Timetable.Location())
	assert.Equal(t, "dev_secret", cfg.Feed.Secret)
	assert.Equal(t, 8, cfg.Feed.Weeks)
	assert.Equal(t, 90*24*time.Hour, cfg.Feed.TTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "SQLite")
	t.Setenv("TIMETABLE_WEEK_DAYS", "7")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("TIMETABLE_CACHE_TTL", "not-a-duration")
	t.Setenv("SCHEDULE_REQUIRE_SLOT_ALIGNMENT", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 7, cfg.Timetable.WeekDays)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Timetable.RequireSlotAlignment)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("TIMETABLE_WEEK_DAYS", "5")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Env:       EnvProduction,
		Database:  DatabaseConfig{Driver: DriverPostgres},
		JWT:       JWTConfig{Secret: "dev_secret"},
		Feed:      FeedConfig{Weeks: 8},
		Timetable: TimetableConfig{WeekDays: 6, MaxOccurrences: 10},
	}
	assert.Error(t, cfg.Validate())

	cfg.JWT.Secret = "s3cret"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}
