package store

import (
	"context"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Postgres is the production Store backed by a pgx connection pool.
type Postgres struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ Store = (*Postgres)(nil)

// Connect opens a pgx pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string, log zerolog.Logger) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 20
	cfg.MinConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("url", maskDSN(databaseURL)).
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("database connected")

	return &Postgres{Pool: pool, log: log}, nil
}

// HealthCheck pings the pool with a short timeout.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.Pool.Ping(ctx)
}

// InitSchema applies the embedded schema on a fresh database. It
// checks whether the "recordings" table exists as a proxy for whether
// the schema has been loaded; if present, it's a no-op.
func (p *Postgres) InitSchema(ctx context.Context) error {
	var exists bool
	err := p.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'recordings')`,
	).Scan(&exists)
	if err != nil {
		return err
	}

	if exists {
		p.log.Debug().Msg("schema already initialized, skipping")
		return nil
	}

	p.log.Info().Msg("fresh database detected — applying schema")
	if _, err := p.Pool.Exec(ctx, schemaSQL); err != nil {
		return err
	}
	p.log.Info().Msg("schema applied successfully")
	return nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.log.Info().Msg("closing database pool")
	p.Pool.Close()
}
