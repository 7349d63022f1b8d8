package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig defines retry behavior for chain calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  4,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFatal
)

// ClassifyError separates request-shaped errors (fatal, retrying cannot
// help) from transient network/server failures.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	s := err.Error()

	// -32700: Parse error, -32600: Invalid Request, -32601: Method not
	// found, -32602: Invalid params, 3: execution reverted
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") ||
		strings.Contains(strings.ToLower(s), "execution reverted") {
		return ActionFatal
	}

	// Network errors, timeouts, 5xx, rate limits all retry.
	return ActionRetry
}

// CallWithRetry executes an RPC call with capped exponential backoff,
// stopping early on fatal errors.
func CallWithRetry(ctx context.Context, c *Client, method string, params []any, cfg RetryConfig) (any, error) {
	backoff := retry.NewExponential(cfg.InitialDelay)
	backoff = retry.WithCappedDuration(cfg.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(cfg.MaxAttempts-1), backoff)

	var result any
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.Call(ctx, method, params)
		if err != nil {
			if ClassifyError(err) == ActionFatal {
				return err
			}
			return retry.RetryableError(err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
