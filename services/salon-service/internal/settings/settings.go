// Package settings collects the salon service configuration from the environment.
package settings

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/calendar"
)

type Settings struct {
	ServiceName string
	DatabaseURL string
	Port        string
	GRPCPort    string
	AutoMigrate bool

	Calendar        calendar.Config
	DefaultDuration int
	ReminderLead    time.Duration
	PhoneRegion     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	KafkaBrokers string
	OutboxPoll   time.Duration

	RateLimitPerMinute int
	CORSOrigins        []string
	BodyLimitBytes     int64
	RequestTimeout     time.Duration

	Log runtime.LogOptions
}

// Load reads the environment. Invalid values fail with a message naming the variable.
func Load() (Settings, error) {
	s := Settings{
		ServiceName:   config.String("SERVICE_NAME", "salon-service"),
		AutoMigrate:   config.Bool("AUTO_MIGRATE", true),
		PhoneRegion:   config.String("PHONE_DEFAULT_REGION", "AR"),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		RedisPassword: config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:  config.String("KAFKA_BROKERS", ""),
		CORSOrigins:   config.List("CORS_ALLOWED_ORIGINS", "*"),
		Log: runtime.LogOptions{
			Level: config.String("LOG_LEVEL", "info"),
			File:  config.String("LOG_FILE", ""),
		},
	}

	var err error
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return Settings{}, err
	}
	if s.Port, err = config.Port("PORT", "3000"); err != nil {
		return Settings{}, err
	}
	if s.GRPCPort, err = config.OptionalPort("GRPC_PORT", "9090"); err != nil {
		return Settings{}, err
	}
	if s.Calendar, err = loadCalendar(); err != nil {
		return Settings{}, err
	}

	ints := []struct {
		key      string
		fallback int
		min, max int
		dst      *int
	}{
		{"DEFAULT_DURATION_MINUTES", 30, 1, 24 * 60, &s.DefaultDuration},
		{"REDIS_DB", 0, 0, 15, &s.RedisDB},
		{"RATE_LIMIT_PER_MINUTE", 120, 1, 100000, &s.RateLimitPerMinute},
		{"LOG_MAX_SIZE_MB", 50, 1, 10240, &s.Log.MaxSizeMB},
		{"LOG_MAX_BACKUPS", 5, 0, 1000, &s.Log.MaxBackups},
	}
	for _, v := range ints {
		if *v.dst, err = config.Int(v.key, v.fallback, v.min, v.max); err != nil {
			return Settings{}, err
		}
	}

	durations := []struct {
		key      string
		fallback int
		min, max int
		unit     time.Duration
		dst      *time.Duration
	}{
		{"REMINDER_LEAD_MINUTES", 15, 1, 24 * 60, time.Minute, &s.ReminderLead},
		{"CACHE_TTL_SECONDS", 60, 1, 24 * 3600, time.Second, &s.CacheTTL},
		{"OUTBOX_POLL_SECONDS", 2, 1, 3600, time.Second, &s.OutboxPoll},
		{"REQUEST_TIMEOUT_SECONDS", 15, 1, 600, time.Second, &s.RequestTimeout},
	}
	for _, v := range durations {
		n, err := config.Int(v.key, v.fallback, v.min, v.max)
		if err != nil {
			return Settings{}, err
		}
		*v.dst = time.Duration(n) * v.unit
	}

	limit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1024, 64<<20)
	if err != nil {
		return Settings{}, err
	}
	s.BodyLimitBytes = int64(limit)
	return s, nil
}

func loadCalendar() (calendar.Config, error) {
	cal := calendar.DefaultConfig()

	var err error
	if cal.Open, err = calendar.ParseClock(config.String("BUSINESS_OPEN", "09:00")); err != nil {
		return cal, fmt.Errorf("BUSINESS_OPEN: %w", err)
	}
	if cal.Close, err = calendar.ParseClock(config.String("BUSINESS_CLOSE", "19:00")); err != nil {
		return cal, fmt.Errorf("BUSINESS_CLOSE: %w", err)
	}
	if cal.SlotMinutes, err = config.Int("SLOT_MINUTES", 30, 5, 24*60); err != nil {
		return cal, err
	}
	if cal.DaysOff, err = calendar.ParseWeekdays(config.List("DAYS_OFF", "sunday")); err != nil {
		return cal, fmt.Errorf("DAYS_OFF: %w", err)
	}
	tz := config.String("BUSINESS_TIMEZONE", "America/Argentina/Buenos_Aires")
	if cal.Location, err = time.LoadLocation(tz); err != nil {
		return cal, fmt.Errorf("BUSINESS_TIMEZONE: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return cal, err
	}
	return cal, nil
}
