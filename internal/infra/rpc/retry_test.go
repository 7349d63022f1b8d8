package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorAction
	}{
		{"parse error", errors.New("rpc error -32700: parse error"), ActionFatal},
		{"invalid request", errors.New("rpc error -32600"), ActionFatal},
		{"method not found", errors.New("rpc error -32601"), ActionFatal},
		{"invalid params", errors.New("rpc error -32602"), ActionFatal},
		{"reverted", errors.New("Execution reverted"), ActionFatal},
		{"timeout", errors.New("context deadline exceeded"), ActionRetry},
		{"connection refused", errors.New("dial tcp: connection refused"), ActionRetry},
		{"rate limited", errors.New("429 too many requests"), ActionRetry},
		{"server error", errors.New("rpc error -32000: header not found"), ActionRetry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCallWithRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1, "result": "0x10",
		})
	}))
	defer srv.Close()

	client := NewClient("test", srv.URL, 5*time.Second)
	defer client.Close()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	result, err := CallWithRetry(context.Background(), client, "eth_blockNumber", nil, cfg)
	if err != nil {
		t.Fatalf("CallWithRetry: %v", err)
	}
	if result != "0x10" {
		t.Errorf("result = %v, want 0x10", result)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestCallWithRetryStopsOnFatal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0", "id": 1,
			"error": map[string]any{"code": -32601, "message": "method not found"},
		})
	}))
	defer srv.Close()

	client := NewClient("test", srv.URL, 5*time.Second)
	defer client.Close()

	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	if _, err := CallWithRetry(context.Background(), client, "eth_bogus", nil, cfg); err == nil {
		t.Fatal("expected error")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1 for a fatal error", n)
	}
}

func TestCallWithRetryExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient("test", srv.URL, 5*time.Second)
	defer client.Close()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	if _, err := CallWithRetry(context.Background(), client, "eth_blockNumber", nil, cfg); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}
