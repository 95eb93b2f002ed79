package recorder

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // register pgx5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const insertRecordSQL = `
INSERT INTO analysis_records (
	id, kind, created_at, sender_masked, subject, body, url,
	phishing_probability, safety_score, category, url_score, url_label,
	calibration, indicators, payload
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (id) DO NOTHING`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresConfig configures the Postgres sink.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
	Migrate  bool
}

// PostgresSink inserts records into the analysis_records table.
type PostgresSink struct {
	db    execer
	close func()
}

// NewPostgresSink opens a pool, optionally applies the embedded migrations
// and verifies connectivity.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if cfg.Migrate {
		if err := RunMigrations(cfg.DSN); err != nil {
			return nil, err
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresSink{db: pool, close: pool.Close}, nil
}

// RunMigrations applies the embedded schema migrations to dsn.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("postgres: create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("postgres: run migrations up: %w", err)
	}
	return nil
}

// migrateURL rewrites a libpq style URL to the pgx5 scheme used by migrate.
func migrateURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

func (s *PostgresSink) Name() string { return "postgres:analysis_records" }

func (s *PostgresSink) Deliver(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var body *string
	if rec.Body != "" {
		body = &rec.Body
	}
	indicators := rec.Indicators
	if indicators == nil {
		indicators = []string{}
	}

	_, err = s.db.Exec(ctx, insertRecordSQL,
		rec.ID, rec.Kind, rec.CreatedAt, rec.SenderMasked, rec.Subject, body, rec.URL,
		rec.PhishingProbability, rec.SafetyScore, rec.Category, rec.URLScore, rec.URLLabel,
		rec.Calibration, indicators, payload,
	)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresSink) Close(context.Context) error {
	if s.close != nil {
		s.close()
	}
	return nil
}
