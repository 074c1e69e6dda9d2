package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/farmndvi/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS farm_fields (
	farm_id       TEXT NOT NULL,
	id            TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	crop          TEXT NOT NULL DEFAULT '',
	area_hectares REAL,
	boundary      TEXT NOT NULL,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (farm_id, id)
);

CREATE INDEX IF NOT EXISTS idx_farm_fields_farm_id ON farm_fields(farm_id);
`

const sqliteUpsertField = `
INSERT INTO farm_fields (farm_id, id, name, crop, area_hectares, boundary, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (farm_id, id) DO UPDATE SET
	name = excluded.name,
	crop = excluded.crop,
	area_hectares = excluded.area_hectares,
	boundary = excluded.boundary,
	updated_at = excluded.updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error) {
	return s.write(ctx, farmID, fields, false)
}

func (s *SQLiteStore) ReplaceFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error) {
	return s.write(ctx, farmID, fields, true)
}

func (s *SQLiteStore) write(ctx context.Context, farmID string, fields []model.FieldBoundary, replace bool) ([]model.FieldBoundary, error) {
	fields, err := prepare(farmID, fields)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM farm_fields WHERE farm_id = ?`, farmID); err != nil {
			return nil, eris.Wrapf(err, "sqlite: clear fields for farm %s", farmID)
		}
	}

	now := time.Now().UTC()
	for _, f := range fields {
		boundary, err := encodeBoundary(f.Polygon)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertField,
			farmID, f.ID, f.Name, f.Crop, f.AreaHectares, string(boundary), now,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert field %s", f.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return fields, nil
}

func (s *SQLiteStore) ListFields(ctx context.Context, farmID string) ([]model.FieldBoundary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, crop, area_hectares, boundary FROM farm_fields WHERE farm_id = ? ORDER BY name, id`,
		farmID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list fields for farm %s", farmID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FieldBoundary
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate fields")
}

func (s *SQLiteStore) DeleteField(ctx context.Context, farmID, fieldID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM farm_fields WHERE farm_id = ? AND id = ?`, farmID, fieldID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete field %s", fieldID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "field %s/%s", farmID, fieldID)
	}
	return nil
}

func scanField(row scannable) (*model.FieldBoundary, error) {
	var (
		f        model.FieldBoundary
		area     sql.NullFloat64
		boundary string
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Crop, &area, &boundary); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan field")
	}
	if area.Valid {
		v := area.Float64
		f.AreaHectares = &v
	}
	ring, err := decodeBoundary([]byte(boundary), f.ID)
	if err != nil {
		return nil, err
	}
	f.Polygon = ring
	return &f, nil
}
