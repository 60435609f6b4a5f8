package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migration commands understood by Migrate.
const (
	MigrateUp     = "up"
	MigrateDown   = "down"
	MigrateStatus = "status"
)

// Migrate runs a goose command against the pool using SQL files from dir inside fsys.
func Migrate(ctx context.Context, pool *Pool, fsys fs.FS, dir, command string, logger *slog.Logger) error {
	if pool == nil || pool.Pool == nil {
		return fmt.Errorf("migrate: db not configured")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, stdlib.OpenDBFromPool(pool.Pool), subFS(fsys, dir))
	if err != nil {
		return fmt.Errorf("migrate: new provider: %w", err)
	}
	defer func() { _ = provider.Close() }()

	switch command {
	case MigrateUp, "":
		results, err := provider.Up(ctx)
		if err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		for _, res := range results {
			logger.Info("migration applied", "version", res.Source.Version, "path", res.Source.Path, "duration_ms", res.Duration.Milliseconds())
		}
	case MigrateDown:
		res, err := provider.Down(ctx)
		if err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		if res != nil {
			logger.Info("migration rolled back", "version", res.Source.Version, "path", res.Source.Path)
		}
	case MigrateStatus:
		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("migrate status: %w", err)
		}
		for _, st := range statuses {
			logger.Info("migration status", "version", st.Source.Version, "path", st.Source.Path, "state", string(st.State))
		}
	default:
		return fmt.Errorf("migrate: unknown command %q", command)
	}
	return nil
}

func subFS(fsys fs.FS, dir string) fs.FS {
	if dir == "" || dir == "." {
		return fsys
	}
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return fsys
	}
	return sub
}
