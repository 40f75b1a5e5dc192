package repositories

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"eventsCatalog/internal/config"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/schema.sql
var schema string

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type Repository struct {
	logger *slog.Logger
	DB     *sqlx.DB
}

// New opens the Postgres pool and pings it.
func New(logger *slog.Logger, cfg *config.Config) (*Repository, error) {
	op := "repository.New()"
	log := logger.With(slog.String("op", op))

	db, err := sqlx.Connect("postgres", cfg.DBConfig.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cfg.DBConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBConfig.MaxOpenConns)
		db.SetMaxIdleConns(cfg.DBConfig.MaxOpenConns)
	}

	log.Info("connected to postgres",
		slog.String("host", cfg.DBConfig.Host),
		slog.String("db", cfg.DBConfig.Name),
	)

	return NewWithDB(logger, db), nil
}

func NewWithDB(logger *slog.Logger, db *sqlx.DB) *Repository {
	return &Repository{
		logger: logger,
		DB:     db,
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	op := "repository.Migrate()"
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.logger.Info("schema applied", slog.String("op", op))
	return nil
}

func (r *Repository) Shutdown(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("force exit repository: %w", ctx.Err())
	default:
		return r.DB.Close()
	}
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}
