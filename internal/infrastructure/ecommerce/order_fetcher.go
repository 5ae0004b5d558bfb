package ecommerce

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
)

// DefaultOrderListPath is the "list orders" endpoint
const DefaultOrderListPath = "/erp/sc/data/mws/orders"

// FetcherConfig tunes the retry policy of the order fetcher
type FetcherConfig struct {
	Path            string
	MaxAttempts     int
	RetryDelay      time.Duration
	ReducedPageSize int
}

// DefaultFetcherConfig returns the production retry policy
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Path:            DefaultOrderListPath,
		MaxAttempts:     3,
		RetryDelay:      time.Second,
		ReducedPageSize: integration.ReducedPageSize,
	}
}

// OrderFetcher pulls one page of remote orders with bounded retry.
// Rate limiting happens inside the RemoteCaller for every HTTP request.
type OrderFetcher struct {
	caller RemoteCaller
	config FetcherConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrderFetcher creates a fetcher over caller
func NewOrderFetcher(caller RemoteCaller, config FetcherConfig, logger *zap.Logger) *OrderFetcher {
	defaults := DefaultFetcherConfig()
	if config.Path == "" {
		config.Path = defaults.Path
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if config.ReducedPageSize <= 0 {
		config.ReducedPageSize = defaults.ReducedPageSize
	}
	return &OrderFetcher{
		caller: caller,
		config: config,
		logger: logger.Named("order_fetcher"),
		sleep:  sleepContext,
	}
}

// FetchPage fetches one page. Transport and logical failures are retried up
// to MaxAttempts with RetryDelay between attempts. A page-too-large reply
// downgrades the page size and retries without consuming an attempt.
func (f *OrderFetcher) FetchPage(ctx context.Context, req integration.OrderPullRequest) (*integration.OrderPullResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pageSize := req.PageSize
	attempts := 0
	var lastErr error

	for attempts < f.config.MaxAttempts {
		call := req
		call.PageSize = pageSize

		env, err := f.caller.Call(ctx, f.config.Path, http.MethodPost, newOrderListRequest(call))
		if err == nil && env.Code == integration.CodePageSizeTooLarge && pageSize > f.config.ReducedPageSize {
			f.logger.Warn("Remote rejected page size, downgrading",
				zap.Int("page", req.PageNo),
				zap.Int("from", pageSize),
				zap.Int("to", f.config.ReducedPageSize),
			)
			pageSize = f.config.ReducedPageSize
			continue
		}

		attempts++
		if err == nil {
			err = env.Err()
		}
		if err == nil {
			resp, decodeErr := f.decode(env, pageSize, attempts)
			if decodeErr == nil {
				return resp, nil
			}
			err = decodeErr
		}

		if !integration.IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = err
		f.logger.Warn("Order page fetch failed",
			zap.Int("page", req.PageNo),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", f.config.MaxAttempts),
			zap.Error(err),
		)

		if attempts < f.config.MaxAttempts {
			if err := f.sleep(ctx, f.config.RetryDelay); err != nil {
				return nil, fmt.Errorf("%w: %v", integration.ErrRateLimiterCanceled, err)
			}
		}
	}

	return nil, fmt.Errorf("%w: %w", integration.ErrFetchExhausted, lastErr)
}

func (f *OrderFetcher) decode(env *Envelope, pageSize, attempts int) (*integration.OrderPullResponse, error) {
	resp := &integration.OrderPullResponse{
		PageSize: pageSize,
		Attempts: attempts,
	}
	if env.Data == nil {
		return resp, nil
	}
	orders, err := decodeOrderRows(env.Data.Rows)
	if err != nil {
		return nil, err
	}
	resp.Orders = orders
	resp.TotalCount = env.Data.Total
	return resp, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ integration.OrderFetcher = (*OrderFetcher)(nil)
