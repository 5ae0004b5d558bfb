package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
)

// Envelope is the normalised reply of every remote call
type Envelope struct {
	Code int           `json:"code"`
	Msg  string        `json:"msg,omitempty"`
	Data *EnvelopeData `json:"data,omitempty"`
}

// EnvelopeData is the list payload of a paged reply
type EnvelopeData struct {
	Rows  json.RawMessage `json:"rows"`
	Total int64           `json:"total"`
}

// IsSuccess returns true if the remote reported success
func (e *Envelope) IsSuccess() bool {
	return e.Code == integration.CodeSuccess
}

// Err converts a nonzero code into a *integration.RemoteError
func (e *Envelope) Err() error {
	if e.IsSuccess() {
		return nil
	}
	return &integration.RemoteError{Code: e.Code, Msg: e.Msg}
}

// RemoteCaller performs one signed call against the open API
type RemoteCaller interface {
	Call(ctx context.Context, path, method string, body any) (*Envelope, error)
}

// Client is the signed HTTP client of the marketplace open API.
// Every HTTP request it sends first acquires a slot from the shared limiter.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	tokens     *TokenSource
	limiter    integration.SlotLimiter
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient creates a new open API client
func NewClient(config *ClientConfig, tokens *TokenSource, limiter integration.SlotLimiter, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger.Named("remote"),
		now:        time.Now,
	}, nil
}

// Call sends one request and returns the decoded envelope. Nonzero codes are
// returned in the envelope, not as errors. A token-expired reply triggers one
// bounded refresh: invalidate the cached token, reacquire it, retry once.
func (c *Client) Call(ctx context.Context, path, method string, body any) (*Envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("ecommerce: failed to marshal request: %w", err)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	env, err := c.do(ctx, path, method, payload, token)
	if err != nil || env.Code != integration.CodeTokenExpired {
		return env, err
	}

	c.logger.Info("Access token rejected, refreshing once", zap.String("path", path))
	if err := c.tokens.Invalidate(ctx); err != nil {
		c.logger.Warn("Failed to invalidate cached token", zap.Error(err))
	}
	token, err = c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, path, method, payload, token)
}

func (c *Client) do(ctx context.Context, path, method string, payload []byte, token string) (*Envelope, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	params := map[string]string{
		"app_key":      c.config.AppID,
		"access_token": token,
		"timestamp":    strconv.FormatInt(c.now().Unix(), 10),
	}
	params["sign"] = c.config.Sign(params, payload)

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	endpoint := c.config.BaseURL + path + "?" + query.Encode()

	var reader io.Reader
	if len(payload) > 0 {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("ecommerce: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrRemoteTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", integration.ErrRemoteTransport, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrRemoteTransport, resp.StatusCode)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrRemoteInvalidReply, err)
	}

	c.logger.Debug("Remote call completed",
		zap.String("path", path),
		zap.Int("code", env.Code),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &env, nil
}

var _ RemoteCaller = (*Client)(nil)
