package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"gateway/internal/domain"
	"gateway/internal/infra"
)

// BasicAuth carries optional credentials attached to outbound calls.
type BasicAuth struct {
	Username string
	Password string
}

// Target identifies one backend for the lifetime of a single inbound request.
// Targets are built fresh from request input and never cached.
type Target struct {
	BaseURL *url.URL
	Auth    *BasicAuth
}

// ParseTarget validates a caller-supplied base URL and pairs it with optional
// credentials. A URL that does not parse as an absolute http(s) URL is a
// client input error.
func ParseTarget(raw string, auth *BasicAuth) (*Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: backend url is required", domain.ErrClientInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed backend url %q", domain.ErrClientInput, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: backend url %q must be absolute http(s)", domain.ErrClientInput, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: backend url %q has no host", domain.ErrClientInput, raw)
	}
	if auth != nil && auth.Username == "" && auth.Password == "" {
		auth = nil
	}
	return &Target{BaseURL: u, Auth: auth}, nil
}

// Endpoint copies the base URL and replaces its path with subPath, discarding
// any prior path, query, or fragment. Scheme, host, and port are preserved.
func (t *Target) Endpoint(subPath string) *url.URL {
	u := *t.BaseURL
	u.Path = subPath
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return &u
}

// Client performs single outbound calls against backend targets. It imposes
// no timeout of its own; callers bound long operations through the request
// context.
type Client struct {
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a relay client. A nil http.Client yields one without
// a timeout, which is intentional: generation backends can legitimately take
// minutes to answer a synchronous call.
func NewClient(httpClient *http.Client, logger *infra.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		discard := infra.Logger(zerolog.Nop())
		logger = &discard
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// GetJSON issues one GET against the target sub-path and decodes the JSON
// response into out.
func (c *Client) GetJSON(ctx context.Context, target *Target, subPath string, out any) error {
	body, _, err := c.do(ctx, target, subPath, http.MethodGet, nil)
	if err != nil {
		return err
	}
	return c.decode(body, subPath, out)
}

// PostJSON issues one POST with a JSON-encoded payload and decodes the JSON
// response into out. A nil out discards the response body.
func (c *Client) PostJSON(ctx context.Context, target *Target, subPath string, payload, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("relay: encode payload for %s: %w", subPath, err)
	}
	body, _, err := c.do(ctx, target, subPath, http.MethodPost, encoded)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return c.decode(body, subPath, out)
}

// GetBinary issues one GET against a fully constructed URL and returns the
// raw body plus its content type. Used for asset fetches where the query
// string is built by the caller.
func (c *Client) GetBinary(ctx context.Context, target *Target, u *url.URL) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("relay: build request: %w", err)
	}
	return c.roundTrip(req, target, u.Path)
}

func (c *Client) do(ctx context.Context, target *Target, subPath, method string, payload []byte) ([]byte, string, error) {
	u := target.Endpoint(subPath)
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, "", fmt.Errorf("relay: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req, target, subPath)
}

// roundTrip performs the single call. There are no retries here: one non-2xx
// response or network failure is terminal for the call. Backend error text
// is logged, never relayed.
func (c *Client) roundTrip(req *http.Request, target *Target, subPath string) ([]byte, string, error) {
	applyAuth(req, target)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		c.logger.Error().Err(err).Str("path", subPath).Msg("relay: backend unreachable")
		return nil, "", fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, subPath)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("path", subPath).Msg("relay: read backend response")
		return nil, "", fmt.Errorf("%w: %s", domain.ErrBackendUnavailable, subPath)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", subPath).
			Str("body", truncate(string(body), 512)).
			Msg("relay: backend error")
		return nil, "", fmt.Errorf("%w: %s returned status %d", domain.ErrBackendUnavailable, subPath, resp.StatusCode)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) decode(body []byte, subPath string, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error().Err(err).Str("path", subPath).Msg("relay: malformed backend response")
		return fmt.Errorf("%w: %s returned malformed response", domain.ErrBackendUnavailable, subPath)
	}
	return nil
}

func applyAuth(req *http.Request, target *Target) {
	if target.Auth != nil {
		req.SetBasicAuth(target.Auth.Username, target.Auth.Password)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
