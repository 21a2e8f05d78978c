package backend

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded schema for a SQLStore. goose keeps its
// configuration in package globals, so migrations must not run concurrently.
type Migrator struct {
	store *SQLStore
	log   *zap.Logger
}

// NewMigrator returns a migrator for store.
func NewMigrator(store *SQLStore, log *zap.Logger) *Migrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Migrator{store: store, log: log}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	dir, err := m.setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	m.log.Info("applying migrations", zap.String("driver", m.store.driver))
	if err := goose.UpContext(ctx, m.store.db, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	m.log.Info("migrations applied")
	return nil
}

// Status logs applied and pending migrations.
func (m *Migrator) Status(ctx context.Context) error {
	dir, err := m.setup()
	if err != nil {
		return err
	}
	if err := goose.StatusContext(ctx, m.store.db, dir); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Down rolls back the latest migration, or everything above target when
// target is positive.
func (m *Migrator) Down(ctx context.Context, target int64) error {
	dir, err := m.setup()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if target > 0 {
		m.log.Info("rolling back migrations", zap.Int64("target", target))
		if err := goose.DownToContext(ctx, m.store.db, dir, target); err != nil {
			return fmt.Errorf("rollback to version %d: %w", target, err)
		}
		return nil
	}
	m.log.Info("rolling back latest migration")
	if err := goose.DownContext(ctx, m.store.db, dir); err != nil {
		return fmt.Errorf("rollback latest migration: %w", err)
	}
	return nil
}

func (m *Migrator) setup() (string, error) {
	dialect := "sqlite3"
	if m.store.driver == DriverPostgres {
		dialect = "postgres"
	}
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{m.log.Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return "", fmt.Errorf("configure goose: %w", err)
	}
	return "migrations/" + m.store.driver, nil
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Infof(strings.TrimSpace(format), v...)
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatalf(strings.TrimSpace(format), v...)
}
