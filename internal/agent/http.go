package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAgent POSTs the regeneration spec to a configured endpoint and
// decodes the JSON response as a RegenerationResult.
type HTTPAgent struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewHTTPAgent builds an HTTPAgent that calls endpoint with the given
// per-call timeout.
func NewHTTPAgent(endpoint string, timeout time.Duration) *HTTPAgent {
	return &HTTPAgent{endpoint: endpoint, timeout: timeout, client: &http.Client{}}
}

func (a *HTTPAgent) Regenerate(ctx context.Context, spec RegenerationSpec) (*RegenerationResult, error) {
	if a.endpoint == "" {
		return nil, fmt.Errorf("http agent: no endpoint configured")
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("http agent: encode spec: %w", err)
	}

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http agent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http agent: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http agent: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &RegenerationFailedError{ArtifactID: spec.ArtifactID, Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	}

	var out RegenerationResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("http agent: decode result: %w", err)
	}
	return &out, nil
}
