package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RemoteError is an error reported by the remote calculation service
type RemoteError struct {
	Computation string
	StatusCode  int
	Message     string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: remote evaluator returned status %d", e.Computation, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Computation, e.Message)
}

type remoteRequest struct {
	Values map[string]any `json:"values"`
}

type remoteResponse struct {
	Outputs map[string]any `json:"outputs"`
	Error   string         `json:"error,omitempty"`
}

// Remote invokes computations on an HTTP calculation service.
// Each computation is a POST to {base}/{computation}.
type Remote struct {
	base   string
	client *http.Client
}

// RemoteOption customises a Remote
type RemoteOption func(*Remote)

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.client = c
	}
}

// WithTimeout bounds every call. The default client has no timeout.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		r.client.Timeout = d
	}
}

// NewRemote creates a remote evaluator for the service at base
func NewRemote(base string, opts ...RemoteOption) (*Remote, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid remote evaluator url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote evaluator url %q: scheme must be http or https", base)
	}

	r := &Remote{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Remote) Invoke(ctx context.Context, computation string, values map[string]any) (map[string]any, error) {
	body, err := json.Marshal(remoteRequest{Values: values})
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", computation, err)
	}

	endpoint := r.base + "/" + url.PathEscape(computation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", computation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", computation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", computation, err)
	}

	var decoded remoteResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Computation: computation, StatusCode: resp.StatusCode, Message: decoded.Error}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", computation, decodeErr)
	}
	if decoded.Error != "" {
		return nil, &RemoteError{Computation: computation, StatusCode: resp.StatusCode, Message: decoded.Error}
	}

	if decoded.Outputs == nil {
		decoded.Outputs = map[string]any{}
	}
	return decoded.Outputs, nil
}
