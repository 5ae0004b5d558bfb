package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// ClientConfig holds configuration for the marketplace open API
type ClientConfig struct {
	// AppID is the application id issued by the open platform
	AppID string
	// AppSecret signs requests and authenticates token requests
	AppSecret string
	// BaseURL is the API endpoint, without trailing slash
	BaseURL string
	// TokenPath is the access-token endpoint path
	TokenPath string
	// Timeout bounds one HTTP request
	Timeout time.Duration
	// MaxResponseBytes caps how much of a response body is read
	MaxResponseBytes int64
}

const (
	// DefaultAPIBaseURL is the production API endpoint
	DefaultAPIBaseURL = "https://openapi.lingxing.com"
	// DefaultTokenPath is the access-token endpoint
	DefaultTokenPath = "/api/auth-server/oauth/access-token"
	// DefaultRequestTimeout bounds one remote HTTP request
	DefaultRequestTimeout = 30 * time.Second

	defaultMaxResponseBytes = 16 << 20
)

// Errors for client configuration
var (
	ErrClientConfigMissingAppID     = errors.New("ecommerce: app id is required")
	ErrClientConfigMissingAppSecret = errors.New("ecommerce: app secret is required")
)

// NewClientConfig creates a configuration with defaults
func NewClientConfig(appID, appSecret string) *ClientConfig {
	return &ClientConfig{
		AppID:            appID,
		AppSecret:        appSecret,
		BaseURL:          DefaultAPIBaseURL,
		TokenPath:        DefaultTokenPath,
		Timeout:          DefaultRequestTimeout,
		MaxResponseBytes: defaultMaxResponseBytes,
	}
}

// Validate validates the configuration and fills defaults
func (c *ClientConfig) Validate() error {
	if c.AppID == "" {
		return ErrClientConfigMissingAppID
	}
	if c.AppSecret == "" {
		return ErrClientConfigMissingAppSecret
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultAPIBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TokenPath == "" {
		c.TokenPath = DefaultTokenPath
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultRequestTimeout
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = defaultMaxResponseBytes
	}
	return nil
}

// Sign computes the request signature: HMAC-SHA256 keyed with the app secret
// over the sorted key/value pairs followed by the request body.
func (c *ClientConfig) Sign(params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sign" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(k)
		builder.WriteString(params[k])
	}
	builder.Write(body)

	h := hmac.New(sha256.New, []byte(c.AppSecret))
	h.Write([]byte(builder.String()))
	return hex.EncodeToString(h.Sum(nil))
}
