package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
)

// TokenStore caches access tokens. Get returns "" when no valid token is cached.
type TokenStore interface {
	GetToken(ctx context.Context, key string) (string, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error
}

// Tokens shorter-lived than this are not worth caching
const (
	tokenExpirySkew = time.Minute
	minTokenTTL     = 30 * time.Second
)

type tokenResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	} `json:"data"`
}

// TokenSource hands out the cached access token and reacquires it on demand
type TokenSource struct {
	config     *ClientConfig
	httpClient *http.Client
	store      TokenStore
	limiter    integration.SlotLimiter
	logger     *zap.Logger

	// serialises reacquisition so concurrent callers fetch one token
	mu sync.Mutex
}

// NewTokenSource creates a token source backed by store
func NewTokenSource(config *ClientConfig, store TokenStore, limiter integration.SlotLimiter, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		store:      store,
		limiter:    limiter,
		logger:     logger.Named("token"),
	}
}

func (s *TokenSource) key() string {
	return "ordersync:token:" + s.config.AppID
}

// Token returns a valid access token, fetching one if none is cached
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if tok, err := s.store.GetToken(ctx, s.key()); err == nil && tok != "" {
		return tok, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// another caller may have refreshed while we waited
	if tok, err := s.store.GetToken(ctx, s.key()); err == nil && tok != "" {
		return tok, nil
	}
	return s.fetch(ctx)
}

// Invalidate drops the cached token so the next Token call reacquires it
func (s *TokenSource) Invalidate(ctx context.Context) error {
	return s.store.DeleteToken(ctx, s.key())
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]string{
		"app_id":     s.config.AppID,
		"app_secret": s.config.AppSecret,
	})
	if err != nil {
		return "", fmt.Errorf("ecommerce: failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+s.config.TokenPath, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ecommerce: failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", integration.ErrTokenUnavailable, integration.ErrRemoteTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %w: %v", integration.ErrTokenUnavailable, integration.ErrRemoteTransport, err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %w: HTTP %d", integration.ErrTokenUnavailable, integration.ErrRemoteTransport, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: %w: %v", integration.ErrTokenUnavailable, integration.ErrRemoteInvalidReply, err)
	}
	if tr.Code != integration.CodeSuccess || tr.Data.AccessToken == "" {
		return "", fmt.Errorf("%w: code %d: %s", integration.ErrTokenUnavailable, tr.Code, tr.Msg)
	}

	ttl := time.Duration(tr.Data.ExpiresIn)*time.Second - tokenExpirySkew
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	if err := s.store.SetToken(ctx, s.key(), tr.Data.AccessToken, ttl); err != nil {
		// the token is still usable for this call
		s.logger.Warn("Failed to cache access token", zap.Error(err))
	}

	s.logger.Info("Access token acquired", zap.Duration("ttl", ttl))
	return tr.Data.AccessToken, nil
}
