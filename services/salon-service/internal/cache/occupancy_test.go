package cache

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/salon-service/internal/model"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOccupancyKeyAndDefaults(t *testing.T) {
	c := NewOccupancy(nil, " ", 0, discardLogger())
	if got := c.Key("2026-03-04"); got != "salon:occupancy:2026-03-04" {
		t.Fatalf("unexpected key %q", got)
	}
	if c.ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", c.ttl)
	}
}

func TestOccupancyUnreachableRedisIsAMiss(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	c := NewOccupancy(rdb, "test", time.Minute, discardLogger())

	ctx := context.Background()
	c.Set(ctx, "2026-03-04", []model.Appointment{{ID: 1}})
	if _, ok := c.Get(ctx, "2026-03-04"); ok {
		t.Fatal("expected miss when redis is down")
	}
	c.Invalidate(ctx, "2026-03-04")
}

func TestOccupancyRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	c := NewOccupancy(rdb, "salon-test", time.Minute, discardLogger())

	ctx := context.Background()
	date := "2090-05-05"
	c.Invalidate(ctx, date)
	if _, ok := c.Get(ctx, date); ok {
		t.Fatal("expected miss after invalidate")
	}

	c.Set(ctx, date, []model.Appointment{{ID: 9, Date: date, Time: "10:00", Status: model.StatusConfirmed}})
	got, ok := c.Get(ctx, date)
	if !ok || len(got) != 1 || got[0].ID != 9 || got[0].Time != "10:00" {
		t.Fatalf("unexpected cached value %+v ok=%v", got, ok)
	}

	c.Set(ctx, date, []model.Appointment{})
	got, ok = c.Get(ctx, date)
	if !ok || len(got) != 0 {
		t.Fatalf("an empty day must be cached as a hit, got %+v ok=%v", got, ok)
	}

	c.Invalidate(ctx, date, "")
	if _, ok := c.Get(ctx, date); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestReadyCheckWithoutClient(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error for missing client")
	}
}
