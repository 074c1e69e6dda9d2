package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/model"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS farm_fields (
	farm_id       TEXT NOT NULL,
	id            TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	crop          TEXT NOT NULL DEFAULT '',
	area_hectares DOUBLE PRECISION,
	boundary      JSONB NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (farm_id, id)
);

CREATE INDEX IF NOT EXISTS idx_farm_fields_farm_id ON farm_fields(farm_id);
`

const postgresUpsertField = `
INSERT INTO farm_fields (farm_id, id, name, crop, area_hectares, boundary, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (farm_id, id) DO UPDATE SET
	name = EXCLUDED.name,
	crop = EXCLUDED.crop,
	area_hectares = EXCLUDED.area_hectares,
	boundary = EXCLUDED.boundary,
	updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpsertFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error) {
	return s.write(ctx, farmID, fields, false)
}

func (s *PostgresStore) ReplaceFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error) {
	return s.write(ctx, farmID, fields, true)
}

func (s *PostgresStore) write(ctx context.Context, farmID string, fields []model.FieldBoundary, replace bool) ([]model.FieldBoundary, error) {
	fields, err := prepare(farmID, fields)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if replace {
		if _, err := tx.Exec(ctx, `DELETE FROM farm_fields WHERE farm_id = $1`, farmID); err != nil {
			return nil, eris.Wrapf(err, "postgres: clear fields for farm %s", farmID)
		}
	}

	now := time.Now().UTC()
	for _, f := range fields {
		boundary, err := encodeBoundary(f.Polygon)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, postgresUpsertField,
			farmID, f.ID, f.Name, f.Crop, f.AreaHectares, boundary, now,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert field %s", f.ID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}
	return fields, nil
}

func (s *PostgresStore) ListFields(ctx context.Context, farmID string) ([]model.FieldBoundary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, crop, area_hectares, boundary FROM farm_fields WHERE farm_id = $1 ORDER BY name, id`,
		farmID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list fields for farm %s", farmID)
	}
	defer rows.Close()

	var out []model.FieldBoundary
	for rows.Next() {
		var (
			f        model.FieldBoundary
			boundary []byte
		)
		if err := rows.Scan(&f.ID, &f.Name, &f.Crop, &f.AreaHectares, &boundary); err != nil {
			return nil, eris.Wrap(err, "postgres: scan field")
		}
		if f.Polygon, err = decodeBoundary(boundary, f.ID); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate fields")
}

func (s *PostgresStore) DeleteField(ctx context.Context, farmID, fieldID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM farm_fields WHERE farm_id = $1 AND id = $2`, farmID, fieldID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete field %s", fieldID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "field %s/%s", farmID, fieldID)
	}
	return nil
}
