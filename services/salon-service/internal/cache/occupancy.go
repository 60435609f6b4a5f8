package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Occupancy caches the booked appointments of a date in Redis. Callers invalidate
// a date after every mutation touching it. Redis failures are logged and reported
// as misses so requests fall through to the database.
type Occupancy struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewOccupancy(rdb redis.Cmdable, prefix string, ttl time.Duration, logger *slog.Logger) *Occupancy {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "salon"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Occupancy{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *Occupancy) Key(date string) string {
	return c.prefix + ":occupancy:" + date
}

func (c *Occupancy) Get(ctx context.Context, date string) ([]model.Appointment, bool) {
	raw, err := c.rdb.Get(ctx, c.Key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("occupancy cache read failed", "date", date, "err", err)
		return nil, false
	}
	var appts []model.Appointment
	if err := json.Unmarshal(raw, &appts); err != nil {
		c.logger.Warn("occupancy cache entry corrupt", "date", date, "err", err)
		return nil, false
	}
	return appts, true
}

func (c *Occupancy) Set(ctx context.Context, date string, appts []model.Appointment) {
	raw, err := json.Marshal(appts)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.Key(date), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("occupancy cache write failed", "date", date, "err", err)
	}
}

func (c *Occupancy) Invalidate(ctx context.Context, dates ...string) {
	keys := make([]string, 0, len(dates))
	for _, d := range dates {
		if d != "" {
			keys = append(keys, c.Key(d))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("occupancy cache invalidation failed", "dates", dates, "err", err)
	}
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]model.Appointment, bool) { return nil, false }
func (Noop) Set(context.Context, string, []model.Appointment)        {}
func (Noop) Invalidate(context.Context, ...string)                   {}

// ReadyCheck pings Redis for /readyz.
func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
