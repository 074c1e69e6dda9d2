package boundary

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmndvi/internal/resilience"
)

const maxErrorBodyPreview = 256

// getFields issues a GET and decodes a boundary Response. 5xx and 429
// responses come back as *resilience.TransientError, with any Retry-After,
// so callers can retry.
func getFields(ctx context.Context, hc *http.Client, url string, header http.Header) (Response, error) {
	var out Response

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return out, eris.Wrap(err, "create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return out, eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyPreview))
		return out, resilience.ResponseError(resp, string(preview))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, eris.Wrap(err, "decode response")
	}
	return out, nil
}
