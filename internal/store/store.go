// Package store persists farm field boundaries. It backs the local field
// API that the boundary resolver reads from; NDVI results are never stored.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/model"
)

// ErrNotFound is returned when a field does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for field boundaries.
type Store interface {
	// UpsertFields inserts or updates fields by (farmID, field id). Fields
	// without an id get a new UUID. The stored fields are returned.
	UpsertFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error)
	// ReplaceFields atomically swaps a farm's fields for the given set.
	ReplaceFields(ctx context.Context, farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error)
	ListFields(ctx context.Context, farmID string) ([]model.FieldBoundary, error)
	DeleteField(ctx context.Context, farmID, fieldID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// prepare validates fields and assigns missing ids.
func prepare(farmID string, fields []model.FieldBoundary) ([]model.FieldBoundary, error) {
	if farmID == "" {
		return nil, eris.New("store: farm id is required")
	}
	out := make([]model.FieldBoundary, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		if err := f.Validate(); err != nil {
			return nil, eris.Wrap(err, "store: invalid field")
		}
		if _, dup := seen[f.ID]; dup {
			return nil, eris.Errorf("store: duplicate field id %s", f.ID)
		}
		seen[f.ID] = struct{}{}
		out[i] = f
	}
	return out, nil
}

func encodeBoundary(ring []model.LatLng) ([]byte, error) {
	data, err := json.Marshal(ring)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal boundary")
	}
	return data, nil
}

func decodeBoundary(data []byte, fieldID string) ([]model.LatLng, error) {
	var ring []model.LatLng
	if err := json.Unmarshal(data, &ring); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("store: unmarshal boundary for field %s", fieldID))
	}
	return ring, nil
}

type scannable interface {
	Scan(dest ...any) error
}
