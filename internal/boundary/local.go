package boundary

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/model"
)

// LocalProvider reads field boundaries from this service's own field API,
// GET {baseURL}/api/farms/{farmId}/fields.
type LocalProvider struct {
	baseURL string
	http    *http.Client
}

// NewLocalProvider creates a local field API client. A nil client gets a
// default with a 20 second timeout.
func NewLocalProvider(baseURL string, hc *http.Client) *LocalProvider {
	if hc == nil {
		hc = &http.Client{Timeout: 20 * time.Second}
	}
	return &LocalProvider{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Name implements Provider.
func (p *LocalProvider) Name() string { return "local" }

// Available implements Provider.
func (p *LocalProvider) Available() bool { return p.baseURL != "" }

// Fields implements Provider.
func (p *LocalProvider) Fields(ctx context.Context, farmID string) ([]model.FieldBoundary, error) {
	endpoint := p.baseURL + "/api/farms/" + url.PathEscape(farmID) + "/fields"
	resp, err := getFields(ctx, p.http, endpoint, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: local fields for farm %s", farmID)
	}
	return resp.Decode(), nil
}
