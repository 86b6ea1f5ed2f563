package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/approvalflow/approval-gateway/internal"
	"github.com/approvalflow/approval-gateway/internal/obs"
)

// TokenSource supplies the bearer token for the session a request belongs to
// and owns the recovery actions the client may trigger. RefreshAccessToken is
// invoked at most once per failing request; ClearSession is the terminal path.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshAccessToken(ctx context.Context) (string, error)
	ClearSession(ctx context.Context) error
}

type tokenSourceKey struct{}

// WithTokenSource binds a per-session token source to the context. Requests
// issued without one go out anonymously (login, token refresh).
func WithTokenSource(ctx context.Context, ts TokenSource) context.Context {
	return context.WithValue(ctx, tokenSourceKey{}, ts)
}

func tokenSourceFromContext(ctx context.Context) TokenSource {
	if ts, ok := ctx.Value(tokenSourceKey{}).(TokenSource); ok {
		return ts
	}
	return nil
}

// Anonymous strips any bound token source so the request goes out without
// credentials and without the 401 recovery policy.
func Anonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, tokenSourceKey{}, nil)
}

// envelope is the upstream response shape: {success, data, message, errors}.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	EP Endpoints
}

func NewClient(cfg internal.UpstreamConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
		EP:      NewEndpoints(cfg.APIPrefix, cfg.AuthPrefix),
	}
}

func (c *Client) Get(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodGet, endpoint, nil, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, endpoint, body, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out interface{}) error {
	return c.do(ctx, http.MethodPut, endpoint, body, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, endpoint, nil, out)
}

// Ping reports whether the upstream answers HTTP at all. It probes the
// token validation endpoint unauthenticated; any status code counts as
// reachable, only transport failures do not.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.EP.TokenValidate(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// do issues one request, handling the 401 recovery policy: a single token
// refresh followed by a single retried request. A second 401, or a refresh
// failure, clears the session and is never retried again.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	ts := tokenSourceFromContext(ctx)

	token := ""
	if ts != nil {
		token, _ = ts.AccessToken(ctx)
	}

	status, err := c.send(ctx, method, endpoint, body, out, token)
	if err != nil {
		return err
	}
	if status != http.StatusUnauthorized {
		return nil
	}

	if ts == nil {
		// Anonymous call rejected: credentials problem, not a session problem.
		return internal.ErrInvalidCredentials
	}

	newToken, refreshErr := ts.RefreshAccessToken(ctx)
	if refreshErr != nil {
		c.logger.Warn("token refresh failed, clearing session", "endpoint", endpoint, "error", refreshErr)
		obs.ObserveTokenRefresh("failure")
		if clearErr := ts.ClearSession(ctx); clearErr != nil {
			c.logger.Error("failed to clear session after refresh failure", "error", clearErr)
		}
		return internal.ErrSessionExpired
	}
	obs.ObserveTokenRefresh("success")

	status, err = c.send(ctx, method, endpoint, body, out, newToken)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.logger.Warn("request unauthorized after refresh, clearing session", "endpoint", endpoint)
		if clearErr := ts.ClearSession(ctx); clearErr != nil {
			c.logger.Error("failed to clear session after repeated 401", "error", clearErr)
		}
		return internal.ErrSessionExpired
	}
	return nil
}

// send performs a single HTTP round trip. It returns (401, nil) so the caller
// can run the refresh policy; every other non-success status is mapped to an
// error here.
func (c *Client) send(ctx context.Context, method, endpoint string, body, out interface{}, token string) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, internal.NewInternalError("failed to encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, internal.NewInternalError("failed to build upstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		obs.ObserveUpstream(method, endpoint, 0, time.Since(start))
		return 0, internal.NewUpstreamError("upstream request failed", internal.ErrCodeUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	obs.ObserveUpstream(method, endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body)
		return http.StatusUnauthorized, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, internal.NewUpstreamError("failed to read upstream response", internal.ErrCodeUpstreamUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return resp.StatusCode, internal.NewUpstreamError(
				fmt.Sprintf("malformed upstream response (status %d)", resp.StatusCode),
				internal.ErrCodeUpstreamUnavailable, err)
		}
	}

	if resp.StatusCode >= 400 || (len(raw) > 0 && !env.Success) {
		return resp.StatusCode, c.rejectionError(resp.StatusCode, env)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, internal.NewUpstreamError("failed to decode upstream payload", internal.ErrCodeUpstreamUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}

// rejectionError carries the upstream's own message through so business-rule
// rejections reach the user unchanged.
func (c *Client) rejectionError(status int, env envelope) *internal.AppError {
	message := env.Message
	if message == "" {
		message = fmt.Sprintf("upstream rejected the request (status %d)", status)
	}

	appErr := &internal.AppError{
		Type:       internal.ErrorTypeUpstream,
		Code:       internal.ErrCodeUpstreamRejected,
		Message:    message,
		StatusCode: status,
	}
	if len(env.Errors) > 0 {
		appErr.Details = env.Errors
	}
	if status >= 500 {
		appErr.Code = internal.ErrCodeUpstreamUnavailable
		appErr.StatusCode = http.StatusBadGateway
	}
	return appErr
}
