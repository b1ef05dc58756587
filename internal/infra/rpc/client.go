// Package rpc provides JSON-RPC connectivity to the supported networks.
//
// Each Client is bound to one network endpoint. The Pool groups one client
// per network and is what the planner and executor consume: it resolves
// chain heads and fetches block data for backfill chunks.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chainfill/chainfill/internal/core/domain"
	"github.com/chainfill/chainfill/internal/indexing/metrics"
)

const defaultTimeout = 30 * time.Second

// Client is a JSON-RPC 2.0 client for one network endpoint.
type Client struct {
	network    domain.Network
	endpoint   string
	httpClient *http.Client
	log        *slog.Logger
	retryBase  time.Duration
}

// NewClient creates a client for the given endpoint. A zero timeout uses the
// default of 30 seconds.
func NewClient(network domain.Network, endpoint string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		network:  network,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log:       log.With("network", network),
		retryBase: time.Second,
	}
}

// Network returns the network this client talks to.
func (c *Client) Network() domain.Network { return c.network }

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Call makes a single JSON-RPC call with exponential backoff. Transient
// failures (network errors, 5xx, rate limits) are retried; malformed-request
// errors from the node are not.
func (c *Client) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	backoff := retry.WithMaxRetries(5, retry.WithCappedDuration(
		60*time.Second, retry.NewExponential(c.retryBase)))

	var result json.RawMessage
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.callOnce(ctx, method, params)
		if callErr == nil {
			return nil
		}
		if retryableError(callErr) {
			c.log.Warn("rpc call failed, retrying", "method", method, "error", callErr)
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	return result, err
}

func (c *Client) callOnce(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	start := time.Now()
	metrics.RPCCallsTotal.WithLabelValues(string(c.network), method).Inc()

	result, err := c.post(ctx, method, params)

	metrics.RPCLatency.WithLabelValues(string(c.network), method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(string(c.network), method).Inc()
	}
	return result, err
}

func (c *Client) post(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}
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

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429), retry after: %s", resp.Header.Get("Retry-After"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// retryableError reports whether the call should be retried. Request-shape
// errors (-32700..-32602) indicate a bug, not a transient condition.
func retryableError(err error) bool {
	s := err.Error()
	for _, code := range []string{"-32700", "-32600", "-32601", "-32602"} {
		if strings.Contains(s, code) {
			return false
		}
	}
	return true
}
