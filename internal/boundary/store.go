package boundary

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/model"
)

// FieldLister reads stored field boundaries. store.Store satisfies it.
type FieldLister interface {
	ListFields(ctx context.Context, farmID string) ([]model.FieldBoundary, error)
}

// StoreProvider answers the local rung straight from the field store, for
// commands that run without the HTTP API in front of it.
type StoreProvider struct {
	fields FieldLister
}

// NewStoreProvider creates a local rung backed by fl.
func NewStoreProvider(fl FieldLister) *StoreProvider {
	return &StoreProvider{fields: fl}
}

// Name implements Provider. It shares the HTTP rung's name since both serve
// the same stored fields.
func (p *StoreProvider) Name() string { return "local" }

// Available implements Provider.
func (p *StoreProvider) Available() bool { return p.fields != nil }

// Fields implements Provider. A farm with no stored fields is ErrNoFields,
// matching the 404 of the field API.
func (p *StoreProvider) Fields(ctx context.Context, farmID string) ([]model.FieldBoundary, error) {
	fields, err := p.fields.ListFields(ctx, farmID)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: stored fields for farm %s", farmID)
	}
	if len(fields) == 0 {
		return nil, ErrNoFields
	}
	// Same shape the HTTP rung decodes.
	return Encode(fields).Decode(), nil
}
