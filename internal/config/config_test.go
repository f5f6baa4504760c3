package config

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
    t.Helper()
    t.Setenv("DB_USER", "cinema")
    t.Setenv("DB_HOST", "localhost")
    t.Setenv("DB_PORT", "3306")
    t.Setenv("DB_NAME", "showtimes")
    t.Setenv("JWT_SECRET", "secret")
    t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
    t.Setenv("REFRESH_TOKEN_TTL_DAYS", "7")
}

func TestLoad_Defaults(t *testing.T) {
    setRequired(t)

    cfg, err := Load()

    require.NoError(t, err)
    assert.Equal(t, DriverMySQL, cfg.DBDriver)
    assert.Equal(t, 15, cfg.Schedule.BufferMin)
    assert.Equal(t, 240, cfg.Schedule.MaxDurationMin)
    assert.Equal(t, 50, cfg.Schedule.MaxBatch)
    assert.Equal(t, 5*time.Second, cfg.Schedule.WriteTimeout)
    assert.Equal(t, 3, cfg.Schedule.RetryAttempts)
    assert.Equal(t, 100*time.Millisecond, cfg.Schedule.RetryBackoff)
}

func TestLoad_ReportsEveryMissingVariable(t *testing.T) {
    setRequired(t)
    t.Setenv("DB_HOST", "")
    t.Setenv("JWT_SECRET", "")

    _, err := Load()

    require.Error(t, err)
    assert.Contains(t, err.Error(), "DB_HOST")
    assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_RejectsUnknownDriver(t *testing.T) {
    setRequired(t)
    t.Setenv("DB_DRIVER", "sqlite")

    _, err := Load()

    require.Error(t, err)
    assert.Contains(t, err.Error(), "sqlite")
}

func TestLoad_PostgresAndOverrides(t *testing.T) {
    setRequired(t)
    t.Setenv("DB_DRIVER", "Postgres")
    t.Setenv("SCHEDULE_BUFFER_MIN", "20")
    t.Setenv("SCHEDULE_RETRY_BACKOFF", "250ms")
    t.Setenv("EVENTS_ENABLED", "yes")

    cfg, err := Load()

    require.NoError(t, err)
    assert.Equal(t, DriverPostgres, cfg.DBDriver)
    assert.Equal(t, 20, cfg.Schedule.BufferMin)
    assert.Equal(t, 250*time.Millisecond, cfg.Schedule.RetryBackoff)
    assert.True(t, cfg.EventsEnabled)
}

func TestSchedulingConfig_Validate(t *testing.T) {
    base := LoadSchedulingConfig()
    require.NoError(t, base.Validate())

    bad := base
    bad.MaxDurationMin = bad.BufferMin
    assert.Error(t, bad.Validate())

    bad = base
    bad.MaxBatch = 0
    assert.Error(t, bad.Validate())
}

func TestLoadRateLimitConfig_Clamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    rl := LoadRateLimitConfig()

    assert.Equal(t, 1, rl.Capacity)
    assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestLoadRedisConfig_HostPortWins(t *testing.T) {
    t.Setenv("REDIS_ADDR", "cache:6379")
    t.Setenv("REDIS_HOST", "redis")
    t.Setenv("REDIS_PORT", "6380")

    assert.Equal(t, "redis:6380", LoadRedisConfig().Addr)
}
