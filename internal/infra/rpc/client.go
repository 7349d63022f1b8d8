package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claimgate/claimgate/internal/reconcile/metrics"
)

// Client is a JSON-RPC client bound to one endpoint. No internal retries;
// retry policy lives in callers via CallWithRetry.
type Client struct {
	name       string
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a JSON-RPC client with a bounded per-call timeout.
func NewClient(name, endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		name:     name,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the client's configured name, used in metrics labels.
func (c *Client) Name() string { return c.name }

// Call makes a single JSON-RPC call and returns the raw result.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	start := time.Now()
	result, err := c.call(ctx, method, params)
	latency := time.Since(start)

	metrics.RPCCallsTotal.WithLabelValues(c.name, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.name, method).Observe(latency.Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.name, method).Inc()
	}
	return result, err
}

func (c *Client) call(ctx context.Context, method string, params []any) (any, error) {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result any             `json:"result"`
		Error  *map[string]any `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if rpcResp.Error != nil {
		errMsg := "unknown error"
		if msg, ok := (*rpcResp.Error)["message"].(string); ok {
			errMsg = msg
		}
		if code, ok := (*rpcResp.Error)["code"].(float64); ok {
			return nil, fmt.Errorf("rpc error %d: %s", int(code), errMsg)
		}
		return nil, fmt.Errorf("rpc error: %s", errMsg)
	}

	return rpcResp.Result, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
